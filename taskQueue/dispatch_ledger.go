package taskqueue

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"clipflow/models"
)

const dispatchPrefix = "dispatch/"

// DispatchState is the lifecycle of a dispatch ledger entry.
type DispatchState string

const (
	DispatchReserved  DispatchState = "dispatching"
	DispatchPublished DispatchState = "dispatched"
)

// DispatchRecord notes that the fan-out event for a job is being, or was,
// published.
type DispatchRecord struct {
	JobID          string        `json:"job_id"`
	State          DispatchState `json:"state"`
	ConvertedFiles []string      `json:"converted_files,omitempty"`
	AnalysisTypes  []string      `json:"analysis_types,omitempty"`
	ReservedAt     time.Time     `json:"reserved_at"`
	DispatchedAt   time.Time     `json:"dispatched_at"`
}

// Published reports whether the fan-out event went out.
func (r DispatchRecord) Published() bool {
	return r.State == DispatchPublished
}

// IsDispatched reports whether a fan-out event was already published for
// the job.
func IsDispatched(jobID string) (bool, error) {
	rec, err := GetDispatch(jobID)
	if err != nil {
		return false, err
	}
	return rec != nil && rec.Published(), nil
}

// ReserveDispatch claims the right to publish the job's fan-out event. It
// reports false when the event was already published or another caller holds
// a reservation younger than lease. A reservation older than lease is taken
// over, so a crash between reserve and publish does not block redrives.
func ReserveDispatch(jobID string, lease time.Duration) (bool, error) {
	q, err := registry()
	if err != nil {
		return false, err
	}
	now := time.Now().UTC()
	won := false
	err = q.Update(dispatchPrefix+jobID, func(current []byte) ([]byte, error) {
		if current != nil {
			var rec DispatchRecord
			if err := json.Unmarshal(current, &rec); err != nil {
				return nil, fmt.Errorf("failed to decode dispatch record %s: %w", jobID, err)
			}
			if rec.Published() || now.Sub(rec.ReservedAt) < lease {
				return nil, nil
			}
		}
		won = true
		return json.Marshal(DispatchRecord{JobID: jobID, State: DispatchReserved, ReservedAt: now})
	})
	if err != nil {
		return false, err
	}
	return won, nil
}

// ReleaseDispatch drops a reservation whose publish failed so a redelivered
// notification can try again. Published records are left alone.
func ReleaseDispatch(jobID string) error {
	rec, err := GetDispatch(jobID)
	if err != nil || rec == nil || rec.Published() {
		return err
	}
	return Registry.Delete(dispatchPrefix + jobID)
}

// MarkDispatched turns the job's reservation into a published record.
func MarkDispatched(ev models.FanoutEvent) error {
	q, err := registry()
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	return q.Update(dispatchPrefix+ev.MediaConvertJobID, func(current []byte) ([]byte, error) {
		rec := DispatchRecord{ReservedAt: now}
		if current != nil {
			if err := json.Unmarshal(current, &rec); err != nil {
				return nil, fmt.Errorf("failed to decode dispatch record %s: %w", ev.MediaConvertJobID, err)
			}
		}
		rec.JobID = ev.MediaConvertJobID
		rec.State = DispatchPublished
		rec.ConvertedFiles = ev.ConvertedFiles
		rec.AnalysisTypes = ev.AnalysisTypes
		rec.DispatchedAt = now
		return json.Marshal(rec)
	})
}

// GetDispatch returns the dispatch record, or nil when none exists.
func GetDispatch(jobID string) (*DispatchRecord, error) {
	q, err := registry()
	if err != nil {
		return nil, err
	}
	data, err := q.Get(dispatchPrefix + jobID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec DispatchRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode dispatch record %s: %w", jobID, err)
	}
	return &rec, nil
}
