package job

import (
	"context"
	"fmt"
	"time"

	"clipflow/analysis"
	"clipflow/fanout"
	"clipflow/models"
)

// HandleAnalysis runs the coordinator for kind against a fan-out event.
func (p *Pipeline) HandleAnalysis(ctx context.Context, kind models.AnalyzerKind, body []byte) (models.Outcome, error) {
	c, ok := p.coordinators[kind]
	if !ok {
		return models.Outcome{}, models.Invalid("analysis", nil, "unknown analyzer kind %q", kind)
	}
	ev, err := fanout.Decode(body)
	if err != nil {
		return models.Outcome{}, err
	}

	out, err := c.Run(ctx, ev)
	if err != nil {
		recordFailure(string(kind), ev.MediaConvertJobID, err, ev)
		return models.Outcome{}, err
	}
	if out.ResultKey != "" {
		recordSuccess(string(kind), ev.MediaConvertJobID, out, out.AnalyzedFilesCount)
	}
	return out, nil
}

// CancelAnalysis stops an in-flight coordinator invocation.
func (p *Pipeline) CancelAnalysis(kind models.AnalyzerKind, jobID string) error {
	c, ok := p.coordinators[kind]
	if !ok {
		return models.Invalid("cancel", nil, "unknown analyzer kind %q", kind)
	}
	if err := c.Tracker().Cancel(kind, jobID); err != nil {
		return fmt.Errorf("cancel %s analysis of %s: %w", kind, jobID, err)
	}
	return nil
}

// RunningAnalyses lists in-flight invocations across every coordinator.
func (p *Pipeline) RunningAnalyses() []string {
	seen := map[string]bool{}
	var running []string
	for _, kind := range p.Kinds() {
		for _, key := range p.coordinators[kind].Tracker().Running() {
			if !seen[key] {
				seen[key] = true
				running = append(running, key)
			}
		}
	}
	return running
}

// PruneAnalyses drops settled invocation states older than cutoff from every
// coordinator's tracker.
func (p *Pipeline) PruneAnalyses(cutoff time.Time) int {
	seen := map[*analysis.Tracker]bool{}
	removed := 0
	for _, c := range p.coordinators {
		if tr := c.Tracker(); !seen[tr] {
			seen[tr] = true
			removed += tr.Prune(cutoff)
		}
	}
	return removed
}
