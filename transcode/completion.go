package transcode

import (
	"fmt"

	"clipflow/models"
)

// Decision is the branch the router takes for one notification.
type Decision int

const (
	DecisionIgnore   Decision = iota // job still in progress
	DecisionFail                     // job errored, terminal
	DecisionDispatch                 // job completed, fan out its outputs
)

func (d Decision) String() string {
	switch d {
	case DecisionDispatch:
		return "dispatch"
	case DecisionFail:
		return "fail"
	default:
		return "ignore"
	}
}

// Routing is the result of routing one completion notification.
type Routing struct {
	Decision Decision
	JobID    string
	Status   models.JobStatus // registry status to record, empty when unknown
	Outputs  []string         // set for DecisionDispatch, may be empty
	Err      error            // set for DecisionFail
}

// Route decides what a completion notification means. It has no side
// effects, so repeated notifications always route the same way.
func Route(n models.CompletionNotification) (Routing, error) {
	if n.JobID == "" {
		return Routing{}, models.Invalid("completion", nil, "notification has no job id")
	}
	r := Routing{JobID: n.JobID}
	switch n.Status {
	case "COMPLETE":
		r.Decision = DecisionDispatch
		r.Status = models.JobStatusComplete
		r.Outputs = FlattenOutputs(n)
	case "ERROR":
		r.Decision = DecisionFail
		r.Status = models.JobStatusError
		r.Err = models.Fatal("completion", n.JobID, nil, "%s", errorText(n))
	case "SUBMITTED":
		r.Status = models.JobStatusSubmitted
	case "PROGRESSING", "STATUS_UPDATE", "INPUT_INFORMATION":
		r.Status = models.JobStatusRunning
	}
	return r, nil
}

// FlattenOutputs collects every output path in group, output, path order.
func FlattenOutputs(n models.CompletionNotification) []string {
	paths := []string{}
	for _, group := range n.OutputGroupDetails {
		for _, out := range group.OutputDetails {
			paths = append(paths, out.OutputFilePaths...)
		}
	}
	return paths
}

func errorText(n models.CompletionNotification) string {
	msg := "transcode job failed"
	if n.ErrorCode != 0 {
		msg = fmt.Sprintf("%s with code %d", msg, n.ErrorCode)
	}
	if n.ErrorMessage != "" {
		msg += ": " + n.ErrorMessage
	}
	return msg
}
