package analysis

import (
	"context"

	"clipflow/models"
)

// Analyzer drives one analysis service. Implementations must be safe for
// concurrent use; the coordinator calls them from many goroutines.
type Analyzer interface {
	Kind() models.AnalyzerKind
	// Capabilities lists the independent sub-analyses run per artifact.
	Capabilities() []string
	// Resolve turns a converted file path into something the service can
	// address. An error skips the artifact.
	Resolve(ctx context.Context, artifact string) (models.SourceRef, error)
	// Start submits one sub-job. Synchronous capabilities may return a job
	// that is already SUCCEEDED with its Result set.
	Start(ctx context.Context, src models.SourceRef, capability string) (models.AnalysisSubJob, error)
	// Check polls a running sub-job. done with a nil error means success and
	// result holds the capability output.
	Check(ctx context.Context, job models.AnalysisSubJob) (done bool, result interface{}, err error)
}

// Releaser is implemented by analyzers whose external jobs must be cleaned
// up once they settle, time out, or are abandoned.
type Releaser interface {
	Release(ctx context.Context, job models.AnalysisSubJob) error
}

// SidecarCollector is implemented by analyzers that produce extra artifacts
// to be stored next to the result record. Sidecars is called for each
// succeeded sub-job before it is released.
type SidecarCollector interface {
	Sidecars(ctx context.Context, job models.AnalysisSubJob) []models.Sidecar
}

// Store persists aggregated results.
type Store interface {
	Persist(ctx context.Context, result models.AggregatedResult) (string, error)
	PersistSidecars(ctx context.Context, kind models.AnalyzerKind, jobID string, sidecars []models.Sidecar) int
}
