// Package server exposes the idea orchestrator as a JSON API, plus an HTML
// dossier page, Prometheus metrics and a health check.
package server

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"time"

	"github.com/startopia/startopia/internal/identity"
	"github.com/startopia/startopia/internal/ideas"
	"github.com/startopia/startopia/internal/metrics"
	"github.com/startopia/startopia/internal/report"
	"github.com/startopia/startopia/internal/users"
)

//go:embed templates/*.html
var templateFS embed.FS

// Options wires the server's collaborators. Metrics may be nil.
type Options struct {
	Ideas     *ideas.Service
	Users     *users.Service
	Validator *identity.Validator
	Metrics   *metrics.Metrics
}

// Server is the HTTP front of the orchestrator.
type Server struct {
	ideas   *ideas.Service
	users   *users.Service
	auth    func(http.Handler) http.Handler
	metrics *metrics.Metrics
	page    *template.Template
	mux     *http.ServeMux
}

// New creates a new Server.
func New(opts Options) (*Server, error) {
	page, err := template.ParseFS(templateFS, "templates/report.html")
	if err != nil {
		return nil, fmt.Errorf("parsing report template: %w", err)
	}
	s := &Server{
		ideas:   opts.Ideas,
		users:   opts.Users,
		auth:    identity.Middleware(opts.Validator),
		metrics: opts.Metrics,
		page:    page,
		mux:     http.NewServeMux(),
	}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	if s.metrics == nil {
		return s.mux
	}
	return s.metrics.Middleware(s.mux)
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics.Handler())
	}

	s.private("POST /api/session", s.handleSession)

	s.private("GET /api/ideas", s.handleListIdeas)
	s.private("POST /api/ideas", s.handleCreateIdea)
	s.private("POST /api/ideas/generate", s.handleGenerateIdeas)
	s.private("GET /api/ideas/{id}", s.handleGetIdea)
	s.private("PATCH /api/ideas/{id}", s.handleUpdateIdea)
	s.private("DELETE /api/ideas/{id}", s.handleDeleteIdea)
	s.private("POST /api/ideas/{id}/reset", s.handleResetIdea)

	s.private("POST /api/ideas/{id}/evaluate", s.handleEvaluate)
	s.private("GET /api/ideas/{id}/evaluation", s.handleGetEvaluation)
	s.private("POST /api/ideas/{id}/plan", s.handleGeneratePlan)
	s.private("GET /api/ideas/{id}/plan", s.handleGetPlan)

	s.private("POST /api/ideas/{id}/competitors", s.handleGenerateCompetitors)
	s.private("GET /api/ideas/{id}/competitors", s.handleGetCompetitors)
	s.private("PUT /api/ideas/{id}/competitors", s.handleReplaceCompetitors)
	s.private("POST /api/ideas/{id}/risks", s.handleGenerateRisks)
	s.private("GET /api/ideas/{id}/risks", s.handleGetRisks)
	s.private("PUT /api/ideas/{id}/risks", s.handleReplaceRisks)
	s.private("POST /api/ideas/{id}/consumers", s.handleGenerateConsumers)
	s.private("GET /api/ideas/{id}/consumers", s.handleGetConsumers)
	s.private("PUT /api/ideas/{id}/consumers", s.handleReplaceConsumers)

	s.private("GET /ideas/{id}/report", s.handleReport)
}

// private registers a handler behind bearer-token authentication.
func (s *Server) private(pattern string, h func(http.ResponseWriter, *http.Request, *identity.Principal)) {
	s.mux.Handle(pattern, s.auth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h(w, r, identity.FromContext(r.Context()))
	})))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request, p *identity.Principal) {
	u, err := s.users.Login(r.Context(), p.UserID, p.Name, p.Email)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request, _ *identity.Principal) {
	d, err := report.Load(r.Context(), s.ideas, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if d == nil {
		writeError(w, ideas.ErrNotFound)
		return
	}
	body, err := report.HTML(report.Compose(*d))
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	data := map[string]any{
		"Title": d.Idea.Title,
		"Body":  template.HTML(body), //nolint: gosec
	}
	if err := s.page.Execute(w, data); err != nil {
		log.Printf("Error rendering report for %s: %v", d.Idea.ID, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

type errorBody struct {
	Error    string   `json:"error"`
	Problems []string `json:"problems,omitempty"`
}

// writeError maps the orchestrator's error taxonomy onto status codes.
func writeError(w http.ResponseWriter, err error) {
	var verr *ideas.ValidationError
	var gerr *ideas.GenerationError
	var berr *badRequest
	switch {
	case errors.Is(err, ideas.ErrUnauthorized):
		writeJSON(w, http.StatusForbidden, errorBody{Error: err.Error()})
	case errors.Is(err, ideas.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	case errors.As(err, &berr):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: err.Error(), Problems: verr.Problems})
	case errors.As(err, &gerr):
		writeJSON(w, http.StatusBadGateway, errorBody{Error: err.Error()})
	default:
		log.Printf("Internal error: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal server error"})
	}
}

// Serve runs the server on addr until ctx is cancelled.
func Serve(ctx context.Context, srv *Server, addr string) error {
	hs := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Server listening on http://%s", addr)
		errCh <- hs.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Println("Shutting down server")
		return hs.Shutdown(shutdownCtx)
	}
}
