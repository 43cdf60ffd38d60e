package routes

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"clipflow/logger"
	"clipflow/models"

	"github.com/gorilla/mux"
)

const maxEventBytes = 1 << 20

func readEvent(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxEventBytes))
	if err != nil {
		writeOutcome(w, models.Outcome{}, models.Invalid("event", err, "failed to read request body"))
		return nil, false
	}
	return body, true
}

// EventHandler accepts any bus envelope and routes it by source.
func (s *Server) EventHandler(w http.ResponseWriter, r *http.Request) {
	body, ok := readEvent(w, r)
	if !ok {
		return
	}
	out, err := s.pipeline.HandleEvent(r.Context(), body)
	writeOutcome(w, out, err)
}

func (s *Server) UploadEventHandler(w http.ResponseWriter, r *http.Request) {
	body, ok := readEvent(w, r)
	if !ok {
		return
	}
	out, err := s.pipeline.HandleUpload(r.Context(), body)
	writeOutcome(w, out, err)
}

func (s *Server) CompletionEventHandler(w http.ResponseWriter, r *http.Request) {
	body, ok := readEvent(w, r)
	if !ok {
		return
	}
	out, err := s.pipeline.HandleCompletion(r.Context(), body)
	writeOutcome(w, out, err)
}

// AnalysisEventHandler runs one analyzer kind against a fan-out event. With
// async=true the run continues in the background and 202 is returned.
func (s *Server) AnalysisEventHandler(w http.ResponseWriter, r *http.Request) {
	kind := models.AnalyzerKind(mux.Vars(r)["kind"])
	body, ok := readEvent(w, r)
	if !ok {
		return
	}

	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		go func(ctx context.Context) {
			out, err := s.pipeline.HandleAnalysis(ctx, kind, body)
			if err != nil {
				logger.Errorf("Background %s analysis failed: %v", kind, err)
				return
			}
			logger.Infof("Background %s analysis finished: %s", kind, out.Message)
		}(s.base)
		writeJSON(w, http.StatusAccepted, models.Outcome{StatusCode: http.StatusAccepted, Message: "analysis started", AnalysisType: kind})
		return
	}

	out, err := s.pipeline.HandleAnalysis(r.Context(), kind, body)
	writeOutcome(w, out, err)
}
