package routes

import (
	"encoding/json"
	"net/http"

	"clipflow/logger"
	"clipflow/success"
)

// SuccessQueryHandler looks up the success record of one stage and id
func SuccessQueryHandler(w http.ResponseWriter, r *http.Request) {
	stage, id := r.URL.Query().Get("stage"), r.URL.Query().Get("id")
	if stage == "" || id == "" {
		http.Error(w, "stage and id parameters required", http.StatusBadRequest)
		return
	}

	record, err := success.GetSuccess(stage, id)
	if err != nil {
		logger.Errorf("Failed to query success for %s/%s: %v", stage, id, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if record == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"stage":   stage,
			"id":      id,
			"status":  "not_found",
			"message": "No success record found",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"stage":     record.Stage,
		"id":        record.ID,
		"status":    "success",
		"timestamp": record.Timestamp,
		"count":     record.Count,
		"detail":    rawDetail(record.Detail),
	})
}

// rawDetail embeds a stored JSON detail as is; empty or malformed details
// fall back to null or a plain string.
func rawDetail(detail string) interface{} {
	if detail == "" {
		return nil
	}
	if !json.Valid([]byte(detail)) {
		return detail
	}
	return json.RawMessage(detail)
}

// SuccessListHandler lists success records, optionally for one stage
func SuccessListHandler(w http.ResponseWriter, r *http.Request) {
	records, err := success.ListSuccessRecords(r.URL.Query().Get("stage"))
	if err != nil {
		logger.Errorf("Failed to list success records: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []success.SuccessRecord{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success_records": records,
		"count":           len(records),
	})
}
