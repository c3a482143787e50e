// Package api exposes the organizer stages over HTTP as JSON endpoints.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/fruitsalade/fruitsalade/organizer/internal/logging"
	"github.com/fruitsalade/fruitsalade/organizer/internal/metrics"
	"github.com/fruitsalade/fruitsalade/organizer/internal/models"
	"github.com/fruitsalade/fruitsalade/organizer/internal/pipeline"
)

// maxBodyBytes caps request bodies; classify requests carry text content.
const maxBodyBytes = 8 << 20

// JobRunner executes a batch job.
type JobRunner interface {
	Run(ctx context.Context, req pipeline.JobRequest) (*pipeline.Manifest, error)
}

// Services are the stages the server dispatches to.
type Services struct {
	Gate       pipeline.Gate
	Pager      pipeline.Pager
	Extractor  pipeline.Extractor
	Classifier pipeline.Classifier
	Planner    pipeline.Planner
	Jobs       JobRunner
}

// Server is the organizer HTTP API server.
type Server struct {
	svc     Services
	limiter *RateLimiter
}

// NewServer creates a server. limiter may be nil.
func NewServer(svc Services, limiter *RateLimiter) *Server {
	return &Server{svc: svc, limiter: limiter}
}

// Handler returns the HTTP handler with all routes and middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("POST /api/v1/guardrail", s.handleGuardRail)
	mux.HandleFunc("POST /api/v1/files/list", s.handleListFiles)
	mux.HandleFunc("POST /api/v1/exif", s.handleExif)
	mux.HandleFunc("POST /api/v1/classify", s.handleClassify)
	mux.HandleFunc("POST /api/v1/folders/suggest", s.handleSuggestFolders)
	mux.HandleFunc("POST /api/v1/jobs", s.handleRunJob)

	return metrics.Middleware(logging.Middleware(RateLimitMiddleware(s.limiter)(mux)))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": "1.0"})
}

func (s *Server) handleGuardRail(w http.ResponseWriter, r *http.Request) {
	var req models.GuardRailRequest
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, s.svc.Gate.Evaluate(r.Context(), req))
}

// scopeError is the error-shaped listing response.
type scopeError struct {
	Scope string `json:"scope"`
	Error string `json:"error"`
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	var req models.ScopeRequest
	if !decode(w, r, &req) {
		return
	}
	page, err := s.svc.Pager.NextPage(r.Context(), req)
	if err != nil {
		logging.WithContext(r.Context()).Warn("list files failed",
			zap.String("scope", req.Scope), zap.Error(err))
		writeJSON(w, http.StatusOK, scopeError{Scope: req.Scope, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, page)
}

type exifRequest struct {
	FileKey string `json:"file_key"`
}

func (s *Server) handleExif(w http.ResponseWriter, r *http.Request) {
	var req exifRequest
	if !decode(w, r, &req) {
		return
	}
	if req.FileKey == "" {
		sendError(w, http.StatusBadRequest, "file_key is required")
		return
	}
	writeJSON(w, http.StatusOK, s.svc.Extractor.Extract(r.Context(), req.FileKey))
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req models.ClassifyRequest
	if !decode(w, r, &req) {
		return
	}
	if req.FileKey == "" {
		sendError(w, http.StatusBadRequest, "file_key is required")
		return
	}
	writeJSON(w, http.StatusOK, s.svc.Classifier.Classify(req))
}

func (s *Server) handleSuggestFolders(w http.ResponseWriter, r *http.Request) {
	var req models.PlanRequest
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, s.svc.Planner.Plan(req))
}

func (s *Server) handleRunJob(w http.ResponseWriter, r *http.Request) {
	var req pipeline.JobRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Scope == "" {
		sendError(w, http.StatusBadRequest, "scope is required")
		return
	}
	m, err := s.svc.Jobs.Run(r.Context(), req)
	if m == nil {
		logging.WithContext(r.Context()).Error("job failed to start", zap.Error(err))
		sendError(w, http.StatusInternalServerError, "job failed to start")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// decode reads a JSON body into v, answering 400 itself on failure. The
// error body echoes whichever identifying key could still be read.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		sendError(w, http.StatusBadRequest, "read body: "+err.Error())
		return false
	}
	if len(bytes.TrimSpace(body)) == 0 {
		sendError(w, http.StatusBadRequest, "request body is required")
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		resp := ErrorResponse{Error: "invalid JSON: " + err.Error(), Code: http.StatusBadRequest}
		resp.identity = recoverIdentity(body)
		writeJSON(w, http.StatusBadRequest, resp)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// identity holds the keys that name what a request was about.
type identity struct {
	FileKey string `json:"file_key,omitempty"`
	Scope   string `json:"scope,omitempty"`
	UserID  string `json:"user_id,omitempty"`
}

// recoverIdentity reads the identifying keys from a body that failed to
// decode in full. A plan request carries its file key in the classification.
func recoverIdentity(body []byte) identity {
	var id struct {
		identity
		Classification struct {
			FileKey string `json:"file_key"`
		} `json:"classification"`
	}
	if err := json.Unmarshal(body, &id); err != nil {
		return identity{}
	}
	if id.FileKey == "" {
		id.FileKey = id.Classification.FileKey
	}
	return id.identity
}

// ErrorResponse is the body of a non-2xx response.
type ErrorResponse struct {
	identity
	Error string `json:"error"`
	Code  int    `json:"code"`
}

func sendError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, ErrorResponse{Error: message, Code: code})
}
