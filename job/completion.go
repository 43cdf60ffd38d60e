package job

import (
	"context"
	"encoding/json"
	"time"

	"clipflow/logger"
	"clipflow/models"
	taskqueue "clipflow/taskQueue"
	"clipflow/transcode"
)

// dispatchLease bounds how long a dispatch reservation blocks duplicate
// notifications before a redrive may take it over.
const dispatchLease = 5 * time.Minute

// HandleCompletion applies a transcoder state change. COMPLETE publishes one
// fan-out event per job; ERROR is fatal; anything else is acknowledged.
func (p *Pipeline) HandleCompletion(ctx context.Context, body []byte) (models.Outcome, error) {
	_, detail, err := decodeEnvelope("completion", body)
	if err != nil {
		return models.Outcome{}, err
	}
	var n models.CompletionNotification
	if err := json.Unmarshal(detail, &n); err != nil {
		return models.Outcome{}, models.Invalid("completion", err, "malformed completion notification")
	}
	r, err := transcode.Route(n)
	if err != nil {
		return models.Outcome{}, err
	}
	log := logger.With("job_id", r.JobID, "status", n.Status)

	switch r.Decision {
	case transcode.DecisionIgnore:
		if r.Status != "" {
			transition(r.JobID, r.Status, nil, "")
		}
		log.Infof("Job not finished yet")
		return models.OK(r.JobID, "job status %s acknowledged", n.Status), nil
	case transcode.DecisionFail:
		log.Errorf("Transcode job failed: %v", r.Err)
		transition(r.JobID, models.JobStatusError, nil, r.Err.Error())
		recordFailure("transcode", r.JobID, r.Err, n)
		return models.Outcome{}, r.Err
	}

	transition(r.JobID, models.JobStatusComplete, r.Outputs, "")
	out := models.OK(r.JobID, "transcode job completed")
	out.OutputFiles = r.Outputs
	triggered := false
	out.AnalysisTriggered = &triggered

	if len(r.Outputs) == 0 {
		log.Warnf("Job completed without output files, nothing to analyze")
		out.Message = "transcode job completed with no output files"
		recordSuccess("transcode", r.JobID, out, 0)
		return out, nil
	}

	if p.dispatcher == nil {
		return models.Outcome{}, notConfigured("completion", "fan-out dispatcher")
	}

	reserved, err := taskqueue.ReserveDispatch(r.JobID, dispatchLease)
	if err != nil {
		log.Warnf("Failed to reserve dispatch, publishing anyway: %v", err)
	} else if !reserved {
		log.Infof("Analysis already dispatched, ignoring duplicate notification")
		out.Message = "analysis already dispatched"
		return out, nil
	}

	ev, err := p.dispatcher.Dispatch(ctx, r.JobID, r.Outputs, detail)
	if err != nil {
		if reserved {
			if relErr := taskqueue.ReleaseDispatch(r.JobID); relErr != nil {
				log.Warnf("Failed to release dispatch reservation: %v", relErr)
			}
		}
		recordFailure("dispatch", r.JobID, err, ev)
		if p.publishFailureFatal {
			return models.Outcome{}, models.Fatal("completion", r.JobID, err, "failed to publish analysis event")
		}
		out.Error = err.Error()
		recordSuccess("transcode", r.JobID, out, len(r.Outputs))
		return out, nil
	}

	if err := taskqueue.MarkDispatched(ev); err != nil {
		log.Warnf("Failed to record dispatch: %v", err)
	}
	triggered = true
	out.Message = "transcode job completed, analysis dispatched"
	recordSuccess("transcode", r.JobID, out, len(r.Outputs))
	return out, nil
}
