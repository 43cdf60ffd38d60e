package routes

import (
	"net/http"

	"clipflow/failures"
	"clipflow/logger"
)

// FailureQueryHandler handles queries for stage failures
func FailureQueryHandler(w http.ResponseWriter, r *http.Request) {
	stage, id := r.URL.Query().Get("stage"), r.URL.Query().Get("id")
	if stage == "" || id == "" {
		http.Error(w, "stage and id parameters required", http.StatusBadRequest)
		return
	}

	record, err := failures.GetFailure(stage, id)
	if err != nil {
		logger.Errorf("Failed to query failure for %s/%s: %v", stage, id, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if record == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"stage":   stage,
			"id":      id,
			"status":  "ok",
			"message": "No failure recorded",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"stage":       record.Stage,
		"id":          record.ID,
		"status":      "failed",
		"timestamp":   record.Timestamp,
		"error":       record.Error,
		"status_code": record.StatusCode,
		"detail":      rawDetail(record.Detail),
	})
}

// FailureListHandler handles listing all failures (admin endpoint)
func FailureListHandler(w http.ResponseWriter, r *http.Request) {
	failuresList, err := failures.ListFailures()
	if err != nil {
		logger.Errorf("Failed to list failures: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if failuresList == nil {
		failuresList = []failures.FailureRecord{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"failures": failuresList,
		"count":    len(failuresList),
	})
}
