package routes

import (
	"errors"
	"fmt"
	"net/http"

	"clipflow/analysis"
	"clipflow/logger"
	"clipflow/models"

	"github.com/gorilla/mux"
)

// CancelAnalysisHandler cancels an in-flight analysis invocation. Nothing is
// persisted for a cancelled run; external jobs are still released.
func (s *Server) CancelAnalysisHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	kind, jobID := models.AnalyzerKind(vars["kind"]), vars["id"]

	logger.Infof("Attempting to cancel %s analysis of job %s", kind, jobID)
	err := s.pipeline.CancelAnalysis(kind, jobID)
	switch {
	case err == nil:
		logger.Infof("Analysis cancelled: %s/%s", kind, jobID)
		w.WriteHeader(http.StatusNoContent)
	case models.StatusFor(err) == http.StatusBadRequest:
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, analysis.ErrUnknownInvocation):
		http.Error(w, fmt.Sprintf("Analysis not found: %v", err), http.StatusNotFound)
	default:
		logger.Errorf("Failed to cancel %s/%s: %v", kind, jobID, err)
		http.Error(w, fmt.Sprintf("Cannot cancel analysis: %v", err), http.StatusConflict)
	}
}

// RunningAnalysesHandler lists in-flight invocations as kind/job keys.
func (s *Server) RunningAnalysesHandler(w http.ResponseWriter, r *http.Request) {
	running := s.pipeline.RunningAnalyses()
	if running == nil {
		running = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"running": running,
		"count":   len(running),
	})
}
