package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"clipflow/logger"
	"clipflow/models"
	"clipflow/poll"
	"clipflow/results"

	"golang.org/x/sync/errgroup"
)

// Options bound one coordinator invocation.
type Options struct {
	Policy         poll.Policy
	Workers        int
	ReleaseTimeout time.Duration
}

// Coordinator fans one analyzer out over every (artifact, capability) pair of
// a fan-out event and aggregates whatever succeeds.
type Coordinator struct {
	analyzer Analyzer
	store    Store
	tracker  *Tracker
	opts     Options
	now      func() time.Time
}

func NewCoordinator(analyzer Analyzer, store Store, tracker *Tracker, opts Options) *Coordinator {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.ReleaseTimeout <= 0 {
		opts.ReleaseTimeout = 30 * time.Second
	}
	if tracker == nil {
		tracker = NewTracker()
	}
	return &Coordinator{analyzer: analyzer, store: store, tracker: tracker, opts: opts, now: time.Now}
}

func (c *Coordinator) Kind() models.AnalyzerKind { return c.analyzer.Kind() }

func (c *Coordinator) Tracker() *Tracker { return c.tracker }

// Run handles one fan-out event. Expected no-ops (kind not requested, no
// files, duplicate delivery, no results) return a 200 outcome and a nil
// error. Nothing is persisted unless every sub-job has settled and ctx is
// still live.
func (c *Coordinator) Run(ctx context.Context, ev models.FanoutEvent) (models.Outcome, error) {
	kind := c.analyzer.Kind()
	jobID := ev.MediaConvertJobID
	log := logger.With("analysis_type", kind, "job_id", jobID)

	if !ev.Requests(kind) {
		log.Infof("%s not requested, skipping", kind)
		return c.outcome(jobID, "%s analysis not requested", kind), nil
	}
	if len(ev.ConvertedFiles) == 0 {
		log.Info("No converted files to analyze")
		return c.outcome(jobID, "no files to analyze"), nil
	}

	runCtx, finish, ok := c.tracker.Begin(ctx, kind, jobID)
	if !ok {
		log.Info("Analysis already running, ignoring duplicate delivery")
		return c.outcome(jobID, "%s analysis already running", kind), nil
	}
	out, err := c.run(runCtx, ev, log)
	finish(err)
	return out, err
}

type eventLogger interface {
	Infof(string, ...interface{})
	Warnf(string, ...interface{})
	Errorf(string, ...interface{})
}

func (c *Coordinator) run(ctx context.Context, ev models.FanoutEvent, log eventLogger) (models.Outcome, error) {
	kind := c.analyzer.Kind()
	jobID := ev.MediaConvertJobID
	capabilities := c.analyzer.Capabilities()
	log.Infof("Analyzing %d files with capabilities %v", len(ev.ConvertedFiles), capabilities)

	sources := c.resolveAll(ctx, ev.ConvertedFiles, log)
	jobs := c.runAll(ctx, sources, capabilities, log)

	if err := ctx.Err(); err != nil {
		log.Warnf("Analysis abandoned before aggregation: %v", err)
		return models.Outcome{}, models.Fatal("analysis", jobID, err, "%s analysis cancelled", kind)
	}

	now := c.now()
	timestamp := results.Timestamp(now)
	aggregated := models.AggregatedResult{
		MediaConvertJobID: jobID,
		AnalysisType:      kind,
		Timestamp:         timestamp,
		Results:           []models.FileResult{},
		CreatedAt:         now,
	}
	var sidecars []models.Sidecar
	for i, src := range sources {
		if src == nil {
			continue
		}
		fr := models.FileResult{
			FilePath:       ev.ConvertedFiles[i],
			AnalysisType:   kind,
			AnalysisResult: map[string]interface{}{},
			Timestamp:      now.UTC().Format(time.RFC3339Nano),
		}
		for _, job := range jobs[i] {
			if job.Status == models.SubJobSucceeded {
				fr.AnalysisResult[job.Capability] = job.Result
				sidecars = append(sidecars, job.Sidecars...)
			}
		}
		if len(fr.AnalysisResult) > 0 {
			aggregated.Results = append(aggregated.Results, fr)
		}
	}

	if len(aggregated.Results) == 0 {
		log.Warnf("Every sub-job failed, nothing to persist")
		return c.outcome(jobID, "no %s results", kind), nil
	}

	key, err := c.store.Persist(ctx, aggregated)
	if err != nil {
		log.Errorf("Failed to persist result: %v", err)
		return models.Outcome{}, models.Fatal("analysis", jobID, err, "failed to persist %s result", kind)
	}

	if len(sidecars) > 0 {
		n := c.store.PersistSidecars(ctx, kind, jobID, sidecars)
		log.Infof("Stored %d of %d sidecar files", n, len(sidecars))
	}

	out := c.outcome(jobID, "%s analysis completed", kind)
	out.AnalyzedFilesCount = len(aggregated.Results)
	out.ResultKey = key
	return out, nil
}

// resolveAll resolves every artifact concurrently. Slot i stays nil when
// artifact i could not be resolved.
func (c *Coordinator) resolveAll(ctx context.Context, artifacts []string, log eventLogger) []*models.SourceRef {
	sources := make([]*models.SourceRef, len(artifacts))
	var g errgroup.Group
	g.SetLimit(c.opts.Workers)
	for i, artifact := range artifacts {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			src, err := c.analyzer.Resolve(ctx, artifact)
			if err != nil {
				log.Warnf("Skipping %s: %v", artifact, err)
				return nil
			}
			sources[i] = &src
			return nil
		})
	}
	g.Wait()
	return sources
}

// runAll runs every (artifact, capability) sub-job on the worker pool. A
// failing sub-job never cancels its siblings.
func (c *Coordinator) runAll(ctx context.Context, sources []*models.SourceRef, capabilities []string, log eventLogger) [][]models.AnalysisSubJob {
	jobs := make([][]models.AnalysisSubJob, len(sources))
	var g errgroup.Group
	g.SetLimit(c.opts.Workers)
	for i, src := range sources {
		if src == nil {
			continue
		}
		jobs[i] = make([]models.AnalysisSubJob, len(capabilities))
		for j, capability := range capabilities {
			g.Go(func() error {
				job := c.runSubJob(ctx, *src, capability)
				if job.Status != models.SubJobSucceeded {
					log.Warnf("%s on %s ended %s: %v", capability, src.Artifact, job.Status, job.Err)
				}
				jobs[i][j] = job
				return nil
			})
		}
	}
	g.Wait()
	return jobs
}

func (c *Coordinator) runSubJob(ctx context.Context, src models.SourceRef, capability string) models.AnalysisSubJob {
	base := models.AnalysisSubJob{
		Kind:       c.analyzer.Kind(),
		Capability: capability,
		Artifact:   src.Artifact,
		Source:     src,
	}
	if err := ctx.Err(); err != nil {
		base.Status, base.Err = models.SubJobFailed, err
		return base
	}

	job, err := c.analyzer.Start(ctx, src, capability)
	if err != nil {
		base.Status, base.Err = models.SubJobFailed, fmt.Errorf("start: %w", err)
		return base
	}
	job.Kind, job.Capability, job.Artifact, job.Source = base.Kind, capability, src.Artifact, src
	if job.Status == models.SubJobSucceeded || job.Status == models.SubJobFailed {
		return c.settle(ctx, job)
	}

	job.Status = models.SubJobRunning
	err = poll.Until(ctx, c.opts.Policy, func(ctx context.Context) (bool, error) {
		done, result, err := c.analyzer.Check(ctx, job)
		if err != nil || !done {
			return false, err
		}
		job.Result = result
		return true, nil
	})
	switch {
	case err == nil:
		job.Status = models.SubJobSucceeded
	case errors.Is(err, poll.ErrTimeout):
		job.Status, job.Err = models.SubJobTimedOut, err
	default:
		job.Status, job.Err = models.SubJobFailed, err
	}
	return c.settle(ctx, job)
}

// settle collects the sidecar files of a succeeded sub-job, then releases
// the external job. Release may delete what the sidecars are fetched from.
func (c *Coordinator) settle(ctx context.Context, job models.AnalysisSubJob) models.AnalysisSubJob {
	if collector, ok := c.analyzer.(SidecarCollector); ok && job.Status == models.SubJobSucceeded && ctx.Err() == nil {
		job.Sidecars = collector.Sidecars(ctx, job)
	}
	c.release(ctx, job)
	return job
}

// release cleans up the external job on a context that outlives
// cancellation of the invocation.
func (c *Coordinator) release(ctx context.Context, job models.AnalysisSubJob) {
	r, ok := c.analyzer.(Releaser)
	if !ok || job.ExternalID == "" {
		return
	}
	relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.ReleaseTimeout)
	defer cancel()
	if err := r.Release(relCtx, job); err != nil {
		logger.Warnf("Failed to release %s job %s: %v", job.Kind, job.ExternalID, err)
	}
}

func (c *Coordinator) outcome(jobID, format string, args ...interface{}) models.Outcome {
	out := models.OK(jobID, format, args...)
	out.AnalysisType = c.analyzer.Kind()
	return out
}
