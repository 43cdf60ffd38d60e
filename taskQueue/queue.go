package taskqueue

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/pebble"
)

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = pebble.ErrNotFound

// DBQueue is a small wrapper around a Pebble DB instance used by the
// registries in this package.
type DBQueue struct {
	DB       *pebble.DB
	DataFile string

	mu sync.Mutex // serializes read-modify-write helpers
}

// OpenQueue opens (or creates) a pebble DB at the given dataFile path and
// returns a DBQueue wrapper.
func OpenQueue(dataFile string) (*DBQueue, error) {
	if err := os.MkdirAll(filepath.Dir(dataFile), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	db, err := pebble.Open(dataFile, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &DBQueue{DB: db, DataFile: dataFile}, nil
}

// Add stores a value under the given key.
func (q *DBQueue) Add(key string, value []byte) error {
	return q.DB.Set([]byte(key), value, pebble.Sync)
}

// Get returns a copy of the value for the given key.
func (q *DBQueue) Get(key string) ([]byte, error) {
	value, closer, err := q.DB.Get([]byte(key))
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	return append([]byte(nil), value...), nil
}

// PutIfAbsent stores value only when key does not exist yet and reports
// whether it did.
func (q *DBQueue) PutIfAbsent(key string, value []byte) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, err := q.Get(key); err == nil {
		return false, nil
	} else if !errors.Is(err, pebble.ErrNotFound) {
		return false, err
	}
	return true, q.Add(key, value)
}

// Update runs fn on the current value (nil when absent) and stores what it
// returns. Returning a nil slice leaves the key untouched.
func (q *DBQueue) Update(key string, fn func(current []byte) ([]byte, error)) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	current, err := q.Get(key)
	if err != nil && !errors.Is(err, pebble.ErrNotFound) {
		return err
	}
	next, err := fn(current)
	if err != nil || next == nil {
		return err
	}
	return q.Add(key, next)
}

// List calls fn for every key with the given prefix, in key order.
func (q *DBQueue) List(prefix string, fn func(key string, value []byte) error) error {
	iter, err := q.DB.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: prefixEnd([]byte(prefix)),
	})
	if err != nil {
		return err
	}
	defer iter.Close()
	for iter.First(); iter.Valid(); iter.Next() {
		if err := fn(string(iter.Key()), iter.Value()); err != nil {
			return err
		}
	}
	return iter.Error()
}

// Delete removes the key from the DB.
func (q *DBQueue) Delete(key string) error {
	return q.DB.Delete([]byte(key), pebble.Sync)
}

// Close closes the underlying DB.
func (q *DBQueue) Close() error {
	return q.DB.Close()
}

// prefixEnd returns the smallest key greater than every key with prefix.
func prefixEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
