package fanout

import (
	"encoding/json"

	"clipflow/models"
)

// wireEvent accepts both the current and the legacy name of the
// correlation field.
type wireEvent struct {
	models.FanoutEvent
	LegacyDetail json.RawMessage `json:"original_mediaconvert_detail,omitempty"`
}

// Decode reads a fan-out event from either a full bus envelope or a bare
// detail document.
func Decode(body []byte) (models.FanoutEvent, error) {
	var env models.Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return models.FanoutEvent{}, models.Invalid("analysis", err, "malformed fan-out event")
	}
	detail := body
	if len(env.Detail) > 0 && string(env.Detail) != "null" {
		detail = env.Detail
	}

	var w wireEvent
	if err := json.Unmarshal(detail, &w); err != nil {
		return models.FanoutEvent{}, models.Invalid("analysis", err, "malformed fan-out detail")
	}
	ev := w.FanoutEvent
	if len(ev.OriginalDetail) == 0 {
		ev.OriginalDetail = w.LegacyDetail
	}
	if ev.MediaConvertJobID == "" {
		return models.FanoutEvent{}, models.Invalid("analysis", nil, "fan-out event has no mediaconvert_job_id")
	}
	if ev.ConvertedFiles == nil {
		ev.ConvertedFiles = []string{}
	}
	return ev, nil
}
