package routes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"clipflow/job"
	"clipflow/logger"
	"clipflow/models"
	"clipflow/utils"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// Options configures the HTTP surface.
type Options struct {
	WebhookSecret string // empty disables bearer token checks
	WebhookIssuer string
}

// Server exposes the pipeline stages and the operator endpoints over HTTP.
type Server struct {
	pipeline *job.Pipeline
	opts     Options
	// background analysis runs are bound to this context
	base context.Context
}

func NewServer(base context.Context, pipeline *job.Pipeline, opts Options) *Server {
	return &Server{pipeline: pipeline, opts: opts, base: base}
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(requestID)

	events := r.PathPrefix("/events").Subrouter()
	events.HandleFunc("", s.authorize("event", s.EventHandler)).Methods(http.MethodPost)
	events.HandleFunc("/upload", s.authorize("upload", s.UploadEventHandler)).Methods(http.MethodPost)
	events.HandleFunc("/transcode", s.authorize("completion", s.CompletionEventHandler)).Methods(http.MethodPost)
	events.HandleFunc("/analysis/{kind}", s.authorize("analysis", s.AnalysisEventHandler)).Methods(http.MethodPost)

	r.HandleFunc("/jobs", JobListHandler).Methods(http.MethodGet)
	r.HandleFunc("/jobs/{id}", JobStatusHandler).Methods(http.MethodGet)
	r.HandleFunc("/analysis/running", s.RunningAnalysesHandler).Methods(http.MethodGet)
	r.HandleFunc("/analysis/{kind}/{id}", s.CancelAnalysisHandler).Methods(http.MethodDelete)

	r.HandleFunc("/success", SuccessQueryHandler).Methods(http.MethodGet)
	r.HandleFunc("/success/list", SuccessListHandler).Methods(http.MethodGet)
	r.HandleFunc("/failures", FailureQueryHandler).Methods(http.MethodGet)
	r.HandleFunc("/failures/list", FailureListHandler).Methods(http.MethodGet)
	r.HandleFunc("/health", HealthHandler).Methods(http.MethodGet)
	r.HandleFunc("/version", VersionHandler).Methods(http.MethodGet)
	return r
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		logger.Debugf("Request %s: method=%s, path=%s, remoteAddr=%s", id, r.Method, r.URL.Path, r.RemoteAddr)
		next.ServeHTTP(w, r)
	})
}

// authorize checks the bearer token when a webhook secret is configured.
// A valid token scoped to other stages is answered with 403.
func (s *Server) authorize(stage string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.opts.WebhookSecret == "" {
			next(w, r)
			return
		}
		if err := s.verifyJWT(r, stage); err != nil {
			logger.Warnf("Rejected %s request: %v", stage, err)
			if errors.Is(err, utils.ErrStageNotAllowed) {
				http.Error(w, err.Error(), http.StatusForbidden)
				return
			}
			http.Error(w, fmt.Sprintf("Invalid token: %v", err), http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) verifyJWT(r *http.Request, stage string) error {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return fmt.Errorf("authorization header required")
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == authHeader {
		return fmt.Errorf("invalid authorization header format")
	}
	verifier := utils.WebhookVerifier{
		Secret: []byte(s.opts.WebhookSecret),
		Issuer: s.opts.WebhookIssuer,
	}
	_, err := verifier.Verify(token, stage)
	return err
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Errorf("Failed to encode response: %v", err)
	}
}

// writeOutcome answers with the stage outcome, or the error mapped to its
// status code.
func writeOutcome(w http.ResponseWriter, out models.Outcome, err error) {
	if err != nil {
		out = models.Failed(err)
	}
	writeJSON(w, out.StatusCode, out)
}
