package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"

	"fedwatch.dashboard/internal/core/domain"
	"fedwatch.dashboard/internal/core/jobconfig"
	"fedwatch.dashboard/internal/core/logger"
	"fedwatch.dashboard/internal/core/services"
)

const (
	msgRetrieveJob  = "Error retrieving job."
	maxImportBytes  = 1 << 20
	shutdownTimeout = 10 * time.Second
)

// HealthChecker is implemented by services.HealthService.
type HealthChecker interface {
	CheckHealth(ctx context.Context) *services.HealthReport
	SimpleHealthCheck(ctx context.Context) (string, int)
}

type Server struct {
	router    *chi.Mux
	jobs      *services.JobService
	auth      *services.AuthService
	healthSvc HealthChecker
	hub       *Hub
	staticDir string
	http      *http.Server
}

func NewServer(jobs *services.JobService, auth *services.AuthService, healthSvc HealthChecker, hub *Hub, staticDir string) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		jobs:      jobs,
		auth:      auth,
		healthSvc: healthSvc,
		hub:       hub,
		staticDir: staticDir,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(requestContext)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(MetricsMiddleware)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s.router.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		MetricsHandler().ServeHTTP(w, r)
	})

	// Kubernetes liveness and readiness checks
	s.router.Get("/health/live", s.handleLiveness)
	if s.healthSvc != nil {
		s.router.Get("/health/ready", s.handleReadiness)
		s.router.Get("/api/health/detailed", s.handleDetailedHealth)
	}

	s.router.Post("/api/auth/token", s.handleLogin)

	s.router.Group(func(r chi.Router) {
		r.Use(s.requireAuth)

		r.Get("/api/auth/me", s.handleMe)
		r.Post("/api/auth/change_password", s.handleChangePassword)
		r.Post("/api/auth/logout", s.handleLogout)

		if s.hub != nil {
			r.Get("/api/ws", s.handleWS)
		}

		r.Route("/api/jobs", func(r chi.Router) {
			r.Post("/", s.handleCreateJob)
			r.Post("/import", s.handleImportJob)
			r.Get("/counts", s.handleCountJobs)
			r.Get("/status/{status}", s.handleListJobs)
			r.Get("/status/{status}/views", s.handleListJobViews)
			r.Get("/{id}", s.handleGetJob)
			r.Get("/{id}/view", s.handleGetJobView)
			r.Post("/{id}/status", s.handleChangeStatus)
		})
	})

	if s.staticDir != "" {
		fileServer := http.FileServer(http.Dir(s.staticDir))
		s.router.Handle("/*", fileServer)
	}
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}

// requestContext exposes chi's request id to the structured logger.
func requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), logger.RequestIDKey, middleware.GetReqID(r.Context()))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response", "error", err)
	}
}

type errorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string, details any) {
	if s, ok := details.(string); ok && s == "" {
		details = nil
	}
	writeJSON(w, status, errorResponse{Error: msg, Details: details})
}

// writeJobError maps service errors for job endpoints.
func writeJobError(w http.ResponseWriter, r *http.Request, err error) {
	var verrs validator.ValidationErrors
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, msgRetrieveJob, "job not found")
	case errors.Is(err, domain.ErrInvalidStatus):
		writeError(w, http.StatusBadRequest, "Validation failed", err.Error())
	case errors.As(err, &verrs):
		writeError(w, http.StatusUnprocessableEntity, "Validation failed", validationDetails(verrs))
	default:
		logger.ErrorContext(r.Context(), "Job request failed", "error", err)
		writeError(w, http.StatusInternalServerError, msgRetrieveJob, "")
	}
}

func validationDetails(verrs validator.ValidationErrors) map[string]string {
	details := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		details[fe.Namespace()] = fe.Tag()
	}
	return details
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	status, code := s.healthSvc.SimpleHealthCheck(r.Context())
	w.WriteHeader(code)
	w.Write([]byte(status))
}

func (s *Server) handleDetailedHealth(w http.ResponseWriter, r *http.Request) {
	report := s.healthSvc.CheckHealth(r.Context())

	statusCode := http.StatusOK
	if report.Status == services.HealthStatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSON(w, statusCode, report)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ServeWs(s.hub, w, r)
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxImportBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid body", err.Error())
		return
	}
	draft, err := jobconfig.Parse(body, jobconfig.FormatJSON)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}

	job, err := s.jobs.CreateJob(r.Context(), draft)
	if err != nil {
		writeJobError(w, r, err)
		return
	}
	RecordJobCreated()
	logger.InfoContext(r.Context(), "Job created", "job_id", job.ID, "model", job.Model)
	writeJSON(w, http.StatusCreated, job)
}

type importResponse struct {
	Draft  *jobconfig.Draft  `json:"draft"`
	Valid  bool              `json:"valid"`
	Errors map[string]string `json:"errors,omitempty"`
}

// handleImportJob turns an uploaded JSON or YAML file into a draft for the
// creation form. Format comes from ?format=, the filename or Content-Type.
func (s *Server) handleImportJob(w http.ResponseWriter, r *http.Request) {
	format, err := importFormat(r)
	if err != nil {
		writeError(w, http.StatusUnsupportedMediaType, "Unsupported format", err.Error())
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxImportBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid body", err.Error())
		return
	}
	draft, err := jobconfig.Parse(body, format)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Error parsing job configuration.", err.Error())
		return
	}

	resp := importResponse{Draft: draft, Valid: true}
	if err := draft.Validate(); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			writeError(w, http.StatusBadRequest, "Validation failed", err.Error())
			return
		}
		resp.Valid = false
		resp.Errors = validationDetails(verrs)
	}
	writeJSON(w, http.StatusOK, resp)
}

func importFormat(r *http.Request) (jobconfig.Format, error) {
	if f := r.URL.Query().Get("format"); f != "" {
		return jobconfig.FormatFromFilename("import." + f)
	}
	if name := r.URL.Query().Get("filename"); name != "" {
		return jobconfig.FormatFromFilename(name)
	}
	return jobconfig.FormatFromContentType(r.Header.Get("Content-Type"))
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	status := domain.JobStatus(chi.URLParam(r, "status"))
	jobs, err := s.jobs.ListJobsByStatus(r.Context(), status)
	if err != nil {
		writeJobError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": status, "jobs": jobs})
}

func (s *Server) handleListJobViews(w http.ResponseWriter, r *http.Request) {
	status := domain.JobStatus(chi.URLParam(r, "status"))
	views, err := s.jobs.ListViews(r.Context(), status)
	if err != nil {
		writeJobError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": status, "jobs": views})
}

func (s *Server) handleCountJobs(w http.ResponseWriter, r *http.Request) {
	counts, err := s.jobs.CountJobsByStatus(r.Context())
	if err != nil {
		writeJobError(w, r, err)
		return
	}
	SetJobsByStatus(counts)
	writeJSON(w, http.StatusOK, counts)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.GetJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeJobError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleGetJobView(w http.ResponseWriter, r *http.Request) {
	view, err := s.jobs.View(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeJobError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type changeStatusRequest struct {
	Status       domain.JobStatus `json:"status"`
	ErrorMessage string           `json:"error_message"`
}

func (s *Server) handleChangeStatus(w http.ResponseWriter, r *http.Request) {
	var req changeStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}

	job, err := s.jobs.ChangeStatus(r.Context(), chi.URLParam(r, "id"), req.Status, req.ErrorMessage)
	if err != nil {
		writeJobError(w, r, err)
		return
	}
	RecordStatusChange(string(job.Status))
	writeJSON(w, http.StatusOK, job)
}
