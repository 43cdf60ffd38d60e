package fanout

import (
	"context"
	"encoding/json"
	"time"

	"clipflow/logger"
	"clipflow/models"
)

// Dispatcher builds and broadcasts one fan-out event per completed transcode
// job. It never waits for, or learns about, analyzer outcomes.
type Dispatcher struct {
	pub           Publisher
	bucket        string
	analysisTypes []string
	now           func() time.Time
}

func NewDispatcher(pub Publisher, analysisBucket string, analysisTypes []string) *Dispatcher {
	types := append([]string(nil), analysisTypes...)
	return &Dispatcher{pub: pub, bucket: analysisBucket, analysisTypes: types, now: time.Now}
}

// Build assembles the event without publishing it.
func (d *Dispatcher) Build(jobID string, files []string, original json.RawMessage) models.FanoutEvent {
	if files == nil {
		files = []string{}
	}
	return models.FanoutEvent{
		MediaConvertJobID: jobID,
		ConvertedFiles:    files,
		AnalysisBucket:    d.bucket,
		Timestamp:         d.now().UTC().Format(time.RFC3339Nano),
		OriginalDetail:    original,
		AnalysisTypes:     append([]string(nil), d.analysisTypes...),
	}
}

// Dispatch publishes the event. A publish error is returned to the caller,
// which decides whether it matters; the completed transcode is unaffected.
func (d *Dispatcher) Dispatch(ctx context.Context, jobID string, files []string, original json.RawMessage) (models.FanoutEvent, error) {
	ev := d.Build(jobID, files, original)
	if err := d.pub.Publish(ctx, ev); err != nil {
		logger.Errorf("Failed to dispatch analysis for job %s: %v", jobID, err)
		return ev, err
	}
	logger.Infof("Dispatched analysis for job %s: %d files, types %v", jobID, len(files), ev.AnalysisTypes)
	return ev, nil
}
