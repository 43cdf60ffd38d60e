package routes

import (
	"fmt"
	"net/http"

	"clipflow/logger"
	taskqueue "clipflow/taskQueue"

	"github.com/gorilla/mux"
)

// JobStatusResponse is a transcode registry record plus its dispatch state.
type JobStatusResponse struct {
	ID           string   `json:"id"`
	Status       string   `json:"status"`
	Source       string   `json:"source,omitempty"`
	Profile      string   `json:"profile,omitempty"`
	Outputs      []string `json:"outputs,omitempty"`
	Error        string   `json:"error,omitempty"`
	Dispatched   bool     `json:"analysis_dispatched"`
	CreatedAt    string   `json:"created_at"`
	UpdatedAt    string   `json:"updated_at"`
	DispatchedAt string   `json:"dispatched_at,omitempty"`
}

// JobStatusHandler returns the registry record of a transcode job.
func JobStatusHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	logger.Debugf("Checking status for job: %s", id)

	job, err := taskqueue.GetJob(id)
	if err != nil {
		logger.Errorf("Failed to read job %s: %v", id, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if job == nil {
		logger.Warnf("Job not found: %s", id)
		http.Error(w, fmt.Sprintf("Job %s not found", id), http.StatusNotFound)
		return
	}

	response := JobStatusResponse{
		ID:        job.ID,
		Status:    string(job.Status),
		Profile:   job.Profile,
		Outputs:   job.Outputs,
		Error:     job.ErrorMessage,
		CreatedAt: job.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt: job.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
	if job.Source.Bucket != "" {
		response.Source = job.Source.URI()
	}
	if rec, err := taskqueue.GetDispatch(id); err != nil {
		logger.Warnf("Failed to read dispatch record for %s: %v", id, err)
	} else if rec != nil && rec.Published() {
		response.Dispatched = true
		response.DispatchedAt = rec.DispatchedAt.Format("2006-01-02T15:04:05Z07:00")
	}

	writeJSON(w, http.StatusOK, response)
}

// JobListHandler lists every job in the registry.
func JobListHandler(w http.ResponseWriter, r *http.Request) {
	jobs, err := taskqueue.ListJobs()
	if err != nil {
		logger.Errorf("Failed to list jobs: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	status := r.URL.Query().Get("status")
	filtered := jobs[:0]
	for _, j := range jobs {
		if status == "" || string(j.Status) == status {
			filtered = append(filtered, j)
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  filtered,
		"count": len(filtered),
	})
}
