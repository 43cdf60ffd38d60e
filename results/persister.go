package results

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"clipflow/logger"
	"clipflow/models"
	writerbackends "clipflow/writerBackends"
)

// TimestampLayout is the UTC timestamp embedded in result keys. Microsecond
// resolution keeps keys from two invocations apart.
const TimestampLayout = "20060102_150405.000000"

// ErrResultExists is returned when the key for a result is already taken.
var ErrResultExists = errors.New("results: result record already exists")

// Key returns the storage key of one aggregated result.
func Key(kind models.AnalyzerKind, jobID, timestamp string) string {
	return fmt.Sprintf("analysis/%s/%s_%s_results.json", kind, jobID, timestamp)
}

// SidecarKey returns where an extra artifact for a job is stored.
func SidecarKey(kind models.AnalyzerKind, jobID, name string) string {
	return fmt.Sprintf("analysis/%s/subtitles/%s_%s", kind, jobID, name)
}

// Timestamp formats t the way result keys expect.
func Timestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Persister writes aggregated results to a storage backend. Writes are never
// retried and never overwrite an existing record.
type Persister struct {
	backend writerbackends.Backend
}

func NewPersister(backend writerbackends.Backend) *Persister {
	return &Persister{backend: backend}
}

// Persist stores result and returns the key it was written under.
func (p *Persister) Persist(ctx context.Context, result models.AggregatedResult) (string, error) {
	if result.MediaConvertJobID == "" || result.AnalysisType == "" || result.Timestamp == "" {
		return "", fmt.Errorf("result is missing job id, analysis type or timestamp")
	}
	body, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode result: %w", err)
	}

	key := Key(result.AnalysisType, result.MediaConvertJobID, result.Timestamp)
	err = p.backend.Write(ctx, key, bytes.NewReader(body), writerbackends.WriteOptions{
		ContentType: "application/json",
		Exclusive:   true,
	})
	if errors.Is(err, writerbackends.ErrExists) {
		return key, fmt.Errorf("%w: %s", ErrResultExists, key)
	}
	if err != nil {
		return key, fmt.Errorf("failed to persist %s: %w", key, err)
	}

	logger.Infof("Persisted %s result for job %s to %s", result.AnalysisType, result.MediaConvertJobID, p.backend.Location(key))
	return key, nil
}

// PersistSidecars writes extra artifacts next to a result. Failures are
// logged and counted but never fail the caller.
func (p *Persister) PersistSidecars(ctx context.Context, kind models.AnalyzerKind, jobID string, sidecars []models.Sidecar) int {
	written := 0
	for _, sc := range sidecars {
		key := SidecarKey(kind, jobID, sc.Name)
		err := p.backend.Write(ctx, key, bytes.NewReader(sc.Body), writerbackends.WriteOptions{ContentType: sc.ContentType})
		if err != nil {
			logger.Warnf("Failed to store sidecar %s: %v", key, err)
			continue
		}
		written++
	}
	return written
}
