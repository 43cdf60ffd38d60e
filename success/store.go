package success

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	pebble "github.com/cockroachdb/pebble"
)

// SuccessRecord represents one stage that finished successfully for an asset
// or job.
type SuccessRecord struct {
	Stage     string    `json:"stage"`
	ID        string    `json:"id"` // job id or storage key
	Timestamp time.Time `json:"timestamp"`
	Detail    string    `json:"detail"` // JSON of the stage outcome
	Count     int       `json:"count"`  // files produced or analyzed
}

var db *pebble.DB

// Init initializes the success store
func Init(dbPath string) error {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return fmt.Errorf("failed to create success store directory: %w", err)
	}
	var err error
	db, err = pebble.Open(dbPath, &pebble.Options{})
	if err != nil {
		return fmt.Errorf("failed to open success store: %w", err)
	}
	return nil
}

// Close closes the success store
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

// StoreSuccess records a successful stage outcome, replacing any earlier
// record for the same stage and id.
func StoreSuccess(stage, id string, detail interface{}, count int) error {
	if db == nil {
		return fmt.Errorf("success store not initialized")
	}

	detailJSON, jsonErr := json.Marshal(detail)
	if jsonErr != nil {
		detailJSON = []byte(fmt.Sprintf("failed to marshal detail: %v", jsonErr))
	}

	record := SuccessRecord{
		Stage:     stage,
		ID:        id,
		Timestamp: time.Now(),
		Detail:    string(detailJSON),
		Count:     count,
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal success record: %w", err)
	}
	return db.Set(key(stage, id), data, pebble.Sync)
}

// GetSuccess retrieves a success record; nil when absent
func GetSuccess(stage, id string) (*SuccessRecord, error) {
	if db == nil {
		return nil, fmt.Errorf("success store not initialized")
	}

	data, closer, err := db.Get(key(stage, id))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	defer closer.Close()

	var record SuccessRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal success record: %w", err)
	}
	return &record, nil
}

// DeleteSuccess removes a success record
func DeleteSuccess(stage, id string) error {
	if db == nil {
		return fmt.Errorf("success store not initialized")
	}
	return db.Delete(key(stage, id), pebble.Sync)
}

// ListSuccessRecords returns all success records, optionally limited to one
// stage (empty string lists everything).
func ListSuccessRecords(stage string) ([]SuccessRecord, error) {
	if db == nil {
		return nil, fmt.Errorf("success store not initialized")
	}

	opts := &pebble.IterOptions{}
	if stage != "" {
		opts.LowerBound = []byte(stage + "/")
		opts.UpperBound = []byte(stage + "0") // '0' follows '/'
	}
	iter, err := db.NewIter(opts)
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var records []SuccessRecord
	for iter.First(); iter.Valid(); iter.Next() {
		var record SuccessRecord
		if err := json.Unmarshal(iter.Value(), &record); err != nil {
			continue // Skip invalid records
		}
		records = append(records, record)
	}
	return records, iter.Error()
}

// CleanupOldRecords removes success records older than the specified duration
func CleanupOldRecords(maxAge time.Duration) error {
	if db == nil {
		return fmt.Errorf("success store not initialized")
	}

	cutoff := time.Now().Add(-maxAge)
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return err
	}
	defer iter.Close()

	var keysToDelete [][]byte
	for iter.First(); iter.Valid(); iter.Next() {
		var record SuccessRecord
		if err := json.Unmarshal(iter.Value(), &record); err != nil {
			continue
		}
		if record.Timestamp.Before(cutoff) {
			keysToDelete = append(keysToDelete, append([]byte(nil), iter.Key()...))
		}
	}

	for _, k := range keysToDelete {
		if err := db.Delete(k, pebble.Sync); err != nil {
			return fmt.Errorf("failed to delete old success record: %w", err)
		}
	}
	return nil
}

// CheckHealth performs a basic health check on the success database
func CheckHealth() error {
	if db == nil {
		return fmt.Errorf("success database not initialized")
	}

	_, closer, err := db.Get([]byte("__health_check__"))
	if err != nil && !errors.Is(err, pebble.ErrNotFound) {
		return fmt.Errorf("database health check failed: %w", err)
	}
	if closer != nil {
		closer.Close()
	}
	return nil
}
