// Package job wires the pipeline stages together: upload notifications become
// transcode jobs, completion notifications become fan-out events, and fan-out
// events are handed to the analyzer coordinators.
package job

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"clipflow/analysis"
	"clipflow/failures"
	"clipflow/logger"
	"clipflow/models"
	"clipflow/success"
	taskqueue "clipflow/taskQueue"
)

// Submitter creates transcode jobs.
type Submitter interface {
	Submit(ctx context.Context, asset models.MediaAsset) (models.TranscodeJob, error)
	OutputPath(asset models.MediaAsset) string
}

// Dispatcher broadcasts the fan-out event of a completed transcode job.
type Dispatcher interface {
	Dispatch(ctx context.Context, jobID string, files []string, original json.RawMessage) (models.FanoutEvent, error)
}

// Pipeline holds the stage dependencies. Any of them may be nil, in which
// case the stage that needs it fails with a fatal error.
type Pipeline struct {
	submitter           Submitter
	dispatcher          Dispatcher
	coordinators        map[models.AnalyzerKind]*analysis.Coordinator
	publishFailureFatal bool
}

type Option func(*Pipeline)

func WithSubmitter(s Submitter) Option { return func(p *Pipeline) { p.submitter = s } }

func WithDispatcher(d Dispatcher) Option { return func(p *Pipeline) { p.dispatcher = d } }

// WithCoordinator registers the coordinator for its analyzer kind.
func WithCoordinator(c *analysis.Coordinator) Option {
	return func(p *Pipeline) { p.coordinators[c.Kind()] = c }
}

// WithPublishFailureFatal makes a failed fan-out publish a 500 instead of a
// 200 outcome with analysis_triggered=false.
func WithPublishFailureFatal(fatal bool) Option {
	return func(p *Pipeline) { p.publishFailureFatal = fatal }
}

func New(opts ...Option) *Pipeline {
	p := &Pipeline{coordinators: map[models.AnalyzerKind]*analysis.Coordinator{}}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Kinds lists the registered analyzer kinds in name order.
func (p *Pipeline) Kinds() []models.AnalyzerKind {
	kinds := make([]models.AnalyzerKind, 0, len(p.coordinators))
	for k := range p.coordinators {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// HandleEvent routes a bus envelope to the stage for its source.
func (p *Pipeline) HandleEvent(ctx context.Context, body []byte) (models.Outcome, error) {
	env, _, err := decodeEnvelope("event", body)
	if err != nil {
		return models.Outcome{}, err
	}
	switch env.Source {
	case models.SourceS3:
		return p.HandleUpload(ctx, body)
	case models.SourceMediaConvert:
		return p.HandleCompletion(ctx, body)
	}
	return models.Outcome{}, models.Invalid("event", nil, "unsupported event source %q", env.Source)
}

// decodeEnvelope returns the envelope and its detail. A body without a
// detail field is treated as a bare detail document.
func decodeEnvelope(stage string, body []byte) (models.Envelope, json.RawMessage, error) {
	var env models.Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return env, nil, models.Invalid(stage, err, "malformed event")
	}
	if len(env.Detail) == 0 || string(env.Detail) == "null" {
		return env, json.RawMessage(body), nil
	}
	return env, env.Detail, nil
}

func recordSuccess(stage, id string, detail interface{}, count int) {
	if err := success.StoreSuccess(stage, id, detail, count); err != nil {
		logger.Warnf("Failed to record %s success for %s: %v", stage, id, err)
	}
}

func recordFailure(stage, id string, cause error, detail interface{}) {
	if err := failures.StoreFailure(stage, id, cause, detail); err != nil {
		logger.Warnf("Failed to record %s failure for %s: %v", stage, id, err)
	}
}

func transition(id string, status models.JobStatus, outputs []string, errMsg string) {
	job, changed, err := taskqueue.Transition(id, status, outputs, errMsg)
	if err != nil {
		logger.Warnf("Failed to record status %s for job %s: %v", status, id, err)
		return
	}
	if !changed && job.Status != status {
		logger.Infof("Job %s is already %s, ignoring %s", id, job.Status, status)
	}
}

func notConfigured(stage, what string) error {
	return models.Fatal(stage, "", fmt.Errorf("%s not configured", what), "stage unavailable")
}
