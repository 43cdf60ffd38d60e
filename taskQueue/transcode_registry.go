package taskqueue

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"clipflow/config"
	"clipflow/models"
)

// Registry holds transcode job records and the fan-out dispatch ledger.
var Registry *DBQueue

const jobPrefix = "job/"

func OpenRegistryDB() error {
	q, err := OpenQueue(config.GetRegistryDBPath())
	if err != nil {
		return fmt.Errorf("failed to open transcode registry: %w", err)
	}
	Registry = q
	return nil
}

func CloseRegistryDB() error {
	if Registry == nil {
		return nil
	}
	err := Registry.Close()
	Registry = nil
	return err
}

func registry() (*DBQueue, error) {
	if Registry == nil {
		return nil, fmt.Errorf("transcode registry not initialized")
	}
	return Registry, nil
}

// PutJob records a freshly submitted job.
func PutJob(job models.TranscodeJob) error {
	q, err := registry()
	if err != nil {
		return err
	}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job %s: %w", job.ID, err)
	}
	return q.Add(jobPrefix+job.ID, data)
}

// GetJob returns the job record, or nil when the id is unknown.
func GetJob(id string) (*models.TranscodeJob, error) {
	q, err := registry()
	if err != nil {
		return nil, err
	}
	data, err := q.Get(jobPrefix + id)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var job models.TranscodeJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to decode job %s: %w", id, err)
	}
	return &job, nil
}

// Transition applies a status change. A terminal job never transitions
// again; changed reports whether anything was written. Unknown ids (jobs
// submitted by another process) are created on first sight.
func Transition(id string, status models.JobStatus, outputs []string, errMsg string) (job models.TranscodeJob, changed bool, err error) {
	q, err := registry()
	if err != nil {
		return job, false, err
	}
	err = q.Update(jobPrefix+id, func(current []byte) ([]byte, error) {
		now := time.Now().UTC()
		if current != nil {
			if err := json.Unmarshal(current, &job); err != nil {
				return nil, fmt.Errorf("failed to decode job %s: %w", id, err)
			}
		} else {
			job = models.TranscodeJob{ID: id, CreatedAt: now}
		}
		if job.Status.Terminal() || job.Status == status {
			return nil, nil
		}
		job.Status = status
		job.UpdatedAt = now
		if status == models.JobStatusComplete {
			job.Outputs = append([]string{}, outputs...)
		}
		if status == models.JobStatusError {
			job.ErrorMessage = errMsg
		}
		changed = true
		return json.Marshal(job)
	})
	return job, changed, err
}

// ListJobs returns every job record in id order.
func ListJobs() ([]models.TranscodeJob, error) {
	q, err := registry()
	if err != nil {
		return nil, err
	}
	var jobs []models.TranscodeJob
	err = q.List(jobPrefix, func(key string, value []byte) error {
		var job models.TranscodeJob
		if err := json.Unmarshal(value, &job); err != nil {
			return nil // skip invalid records
		}
		jobs = append(jobs, job)
		return nil
	})
	return jobs, err
}

// PruneJobs removes terminal jobs last updated before cutoff, together with
// their dispatch ledger entries.
func PruneJobs(cutoff time.Time) (int, error) {
	jobs, err := ListJobs()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, job := range jobs {
		if !job.Status.Terminal() || !job.UpdatedAt.Before(cutoff) {
			continue
		}
		if err := Registry.Delete(jobPrefix + job.ID); err != nil {
			return removed, fmt.Errorf("failed to delete job %s: %w", job.ID, err)
		}
		if err := Registry.Delete(dispatchPrefix + job.ID); err != nil {
			return removed, fmt.Errorf("failed to delete dispatch entry %s: %w", job.ID, err)
		}
		removed++
	}
	return removed, nil
}
