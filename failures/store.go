package failures

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"clipflow/models"

	pebble "github.com/cockroachdb/pebble"
)

// FailureRecord represents a fatal stage failure, keyed by stage and the job
// id or storage key an operator would trace.
type FailureRecord struct {
	Stage      string    `json:"stage"`
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Error      string    `json:"error"`
	StatusCode int       `json:"status_code"`
	Detail     string    `json:"detail"` // JSON of the triggering input
}

var db *pebble.DB

// Init initializes the failure store
func Init(dbPath string) error {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return fmt.Errorf("failed to create failure store directory: %w", err)
	}
	var err error
	db, err = pebble.Open(dbPath, &pebble.Options{})
	if err != nil {
		return fmt.Errorf("failed to open failure store: %w", err)
	}
	return nil
}

// Close closes the failure store
func Close() error {
	if db != nil {
		err := db.Close()
		db = nil
		return err
	}
	return nil
}

func key(stage, id string) []byte {
	return []byte(stage + "/" + id)
}

// StoreFailure stores a stage failure
func StoreFailure(stage, id string, err error, detail interface{}) error {
	if db == nil {
		return fmt.Errorf("failure store not initialized")
	}

	detailJSON, jsonErr := json.Marshal(detail)
	if jsonErr != nil {
		detailJSON = []byte(fmt.Sprintf("failed to marshal detail: %v", jsonErr))
	}

	record := FailureRecord{
		Stage:      stage,
		ID:         id,
		Timestamp:  time.Now(),
		Error:      err.Error(),
		StatusCode: models.StatusFor(err),
		Detail:     string(detailJSON),
	}

	data, jsonErr := json.Marshal(record)
	if jsonErr != nil {
		return fmt.Errorf("failed to marshal failure record: %w", jsonErr)
	}
	return db.Set(key(stage, id), data, pebble.Sync)
}

// GetFailure retrieves a failure record; nil when absent
func GetFailure(stage, id string) (*FailureRecord, error) {
	if db == nil {
		return nil, fmt.Errorf("failure store not initialized")
	}

	data, closer, err := db.Get(key(stage, id))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, nil // No failure found
		}
		return nil, fmt.Errorf("failed to get failure: %w", err)
	}
	defer closer.Close()

	var record FailureRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal failure record: %w", err)
	}
	return &record, nil
}

// DeleteFailure removes a failure record
func DeleteFailure(stage, id string) error {
	if db == nil {
		return fmt.Errorf("failure store not initialized")
	}
	return db.Delete(key(stage, id), pebble.Sync)
}

// ListFailures returns all failure records (for admin purposes)
func ListFailures() ([]FailureRecord, error) {
	if db == nil {
		return nil, fmt.Errorf("failure store not initialized")
	}

	var failures []FailureRecord
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		var record FailureRecord
		if err := json.Unmarshal(iter.Value(), &record); err != nil {
			continue // Skip invalid records
		}
		failures = append(failures, record)
	}

	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iteration error: %w", err)
	}
	return failures, nil
}

// CleanupOldFailures removes failure records older than maxAge
func CleanupOldFailures(maxAge time.Duration) error {
	records, err := ListFailures()
	if err != nil {
		return err
	}
	cutoff := time.Now().Add(-maxAge)
	for _, r := range records {
		if r.Timestamp.Before(cutoff) {
			if err := DeleteFailure(r.Stage, r.ID); err != nil {
				return fmt.Errorf("failed to delete old failure record: %w", err)
			}
		}
	}
	return nil
}
