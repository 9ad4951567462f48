package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/voyagen/streamvault/internal/config"
	"github.com/voyagen/streamvault/internal/models"
	"github.com/voyagen/streamvault/internal/queue"
	"github.com/voyagen/streamvault/internal/store"
)

// Server holds dependencies for the HTTP API.
type Server struct {
	store store.Store
	queue *queue.Queue
	redis *queue.Redis
	cfg   *config.Config
	log   *logrus.Logger
	mux   *http.ServeMux
}

// New creates a Server and registers routes.
func New(s store.Store, q *queue.Queue, r *queue.Redis, cfg *config.Config, log *logrus.Logger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	srv := &Server{store: s, queue: q, redis: r, cfg: cfg, log: log, mux: http.NewServeMux()}
	srv.routes()
	return srv
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	s.mux.Handle("GET /metrics", promhttp.Handler())

	// Providers
	s.mux.HandleFunc("GET /api/providers", s.handleListProviders)
	s.mux.HandleFunc("POST /api/providers", s.handleCreateProvider)
	s.mux.HandleFunc("GET /api/providers/{id}", s.handleGetProvider)
	s.mux.HandleFunc("PATCH /api/providers/{id}", s.handleUpdateProvider)
	s.mux.HandleFunc("DELETE /api/providers/{id}", s.handleDeleteProvider)

	// Sync triggers (enqueue only; workers do the actual run)
	s.mux.HandleFunc("POST /api/sync/categories/{providerId}", s.handleEnqueueSync(models.JobSyncCategory))
	s.mux.HandleFunc("POST /api/sync/live/{providerId}", s.handleEnqueueSync(models.JobSyncLive))
	s.mux.HandleFunc("POST /api/sync/vod/{providerId}", s.handleEnqueueSync(models.JobSyncVOD))
	s.mux.HandleFunc("POST /api/sync/series/{providerId}", s.handleEnqueueSync(models.JobSyncSeries))

	// Jobs
	s.mux.HandleFunc("GET /api/jobs/{id}", s.handleGetJob)
	s.mux.HandleFunc("DELETE /api/jobs", s.handlePurgeJobs)

	// Catalog reads
	s.mux.HandleFunc("GET /api/categories", s.handleListCategories)
	s.mux.HandleFunc("DELETE /api/categories/{id}", s.handleDeleteCategory)
	s.mux.HandleFunc("GET /api/streams/{kind}", s.handleListStreams)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe starts the HTTP server on the configured port.
// It blocks until the server is shut down or ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := ":" + s.cfg.ServerPort
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      withCORS(withLogging(s.log, s)),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown on context cancellation.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.log.WithError(err).Warn("server shutdown")
		}
	}()

	s.log.WithField("addr", addr).Info("listening")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("ListenAndServe: %w", err)
	}
	return nil
}

// --- handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok", "redis": "ok"}
	code := http.StatusOK
	if err := s.redis.Ping(r.Context()); err != nil {
		status["status"] = "degraded"
		status["redis"] = err.Error()
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

// --- provider handlers ---

func (s *Server) handleListProviders(w http.ResponseWriter, r *http.Request) {
	onlyActive := r.URL.Query().Get("active") == "true"
	providers, err := s.store.ListProviders(r.Context(), onlyActive)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if providers == nil {
		providers = []models.Provider{}
	}
	writeJSON(w, http.StatusOK, providers)
}

type createProviderRequest struct {
	Owner              string `json:"owner"`
	Name               string `json:"name"`
	APIEndpoint        string `json:"apiEndpoint"`
	DNS                string `json:"dns"`
	Status             string `json:"status"`
	MaxConcurrentUsers int    `json:"maxConcurrentUsers"`
	ExpiryHours        int    `json:"expiryHours"`
}

func (s *Server) handleCreateProvider(w http.ResponseWriter, r *http.Request) {
	var req createProviderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
		return
	}
	if req.Owner == "" || req.Name == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("owner and name are required"))
		return
	}
	for _, raw := range []string{req.APIEndpoint, req.DNS} {
		if raw == "" {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("apiEndpoint and dns are required"))
			return
		}
		if u, err := url.ParseRequestURI(raw); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("%s must be a valid http or https URL", raw))
			return
		}
	}
	if req.Status == "" {
		req.Status = models.ProviderActive
	}
	if !validProviderStatus(req.Status) {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid status: %s", req.Status))
		return
	}

	p := &models.Provider{
		Owner:              req.Owner,
		Name:               req.Name,
		APIEndpoint:        req.APIEndpoint,
		DNS:                req.DNS,
		Status:             req.Status,
		MaxConcurrentUsers: req.MaxConcurrentUsers,
		ExpiryHours:        req.ExpiryHours,
	}
	id, err := s.store.CreateProvider(r.Context(), p)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	p.ID = id
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleGetProvider(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}

	p, err := s.store.GetProvider(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeErr(w, http.StatusNotFound, fmt.Errorf("provider %d not found", id))
			return
		}
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type updateProviderRequest struct {
	Name               *string `json:"name"`
	APIEndpoint        *string `json:"apiEndpoint"`
	DNS                *string `json:"dns"`
	Status             *string `json:"status"`
	MaxConcurrentUsers *int    `json:"maxConcurrentUsers"`
	ExpiryHours        *int    `json:"expiryHours"`
}

func (s *Server) handleUpdateProvider(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}

	var req updateProviderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
		return
	}
	if req.Status != nil && !validProviderStatus(*req.Status) {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid status: %s", *req.Status))
		return
	}

	fields := store.ProviderUpdate{
		Name:               req.Name,
		APIEndpoint:        req.APIEndpoint,
		DNS:                req.DNS,
		Status:             req.Status,
		MaxConcurrentUsers: req.MaxConcurrentUsers,
		ExpiryHours:        req.ExpiryHours,
	}
	if err := s.store.UpdateProvider(r.Context(), id, fields); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeErr(w, http.StatusNotFound, fmt.Errorf("provider %d not found", id))
			return
		}
		writeErr(w, http.StatusInternalServerError, err)
		return
	}

	// Return the updated provider.
	p, err := s.store.GetProvider(r.Context(), id)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeleteProvider(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}

	if err := s.store.DeleteProvider(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeErr(w, http.StatusNotFound, fmt.Errorf("provider %d not found", id))
			return
		}
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeNoContent(w)
}

func validProviderStatus(s string) bool {
	switch s {
	case models.ProviderActive, models.ProviderInactive, models.ProviderSuspended:
		return true
	}
	return false
}

// --- sync handlers ---

// handleEnqueueSync enqueues a sync job for a provider. The provider must
// exist; its status is checked again by the worker at run time, so a
// provider suspended after enqueue never reaches the network.
func (s *Server) handleEnqueueSync(kind models.JobKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, err := parseID(r, "providerId")
		if err != nil {
			writeErr(w, http.StatusBadRequest, err)
			return
		}

		if _, err := s.store.GetProvider(r.Context(), providerID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeErr(w, http.StatusNotFound, fmt.Errorf("provider %d not found", providerID))
				return
			}
			writeErr(w, http.StatusInternalServerError, err)
			return
		}

		job, err := s.queue.Enqueue(r.Context(), kind, providerID)
		if err != nil {
			writeErr(w, http.StatusInternalServerError, fmt.Errorf("enqueue: %w", err))
			return
		}
		writeJSON(w, http.StatusAccepted, job)
	}
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	job, err := s.queue.GetJob(r.Context(), id)
	if err != nil {
		if errors.Is(err, queue.ErrJobNotFound) {
			writeErr(w, http.StatusNotFound, fmt.Errorf("job %s not found", id))
			return
		}
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handlePurgeJobs(w http.ResponseWriter, r *http.Request) {
	if err := s.queue.Purge(r.Context()); err != nil {
		writeErr(w, http.StatusInternalServerError, fmt.Errorf("purge: %w", err))
		return
	}
	writeNoContent(w)
}

// --- catalog handlers ---

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := store.CategoryFilter{}
	if v := q.Get("provider_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid provider_id: %s", v))
			return
		}
		filter.ProviderID = &id
	}
	if v := q.Get("type"); v != "" {
		kind, ok := kindFromParam(v)
		if !ok {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid type: %s (use live, vod or series)", v))
			return
		}
		filter.Kind = kind
	}

	categories, err := s.store.ListCategories(r.Context(), filter)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if categories == nil {
		categories = []models.Category{}
	}
	writeJSON(w, http.StatusOK, categories)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}

	if err := s.store.DeleteCategory(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeErr(w, http.StatusNotFound, fmt.Errorf("category %d not found", id))
		case errors.Is(err, store.ErrHasChildren):
			writeErr(w, http.StatusConflict, err)
		default:
			writeErr(w, http.StatusInternalServerError, err)
		}
		return
	}
	writeNoContent(w)
}

func (s *Server) handleListStreams(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindFromParam(r.PathValue("kind"))
	if !ok {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid kind: %s (use live, vod or series)", r.PathValue("kind")))
		return
	}

	q := r.URL.Query()
	filter := store.StreamFilter{
		CategoryID: q.Get("category_id"),
		Status:     q.Get("status"),
		Search:     q.Get("search"),
	}

	if v := q.Get("provider_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid provider_id: %s", v))
			return
		}
		filter.ProviderID = &id
	}
	if v := q.Get("feature"); v != "" {
		switch v {
		case "true", "1":
			f := true
			filter.Feature = &f
		case "false", "0":
			f := false
			filter.Feature = &f
		default:
			writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid feature: %s (use true or false)", v))
			return
		}
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid limit: %s", v))
			return
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid offset: %s", v))
			return
		}
		filter.Offset = n
	}

	// Apply defaults so the response reflects actual values used.
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Limit > 200 {
		filter.Limit = 200
	}

	streams, total, err := s.store.ListStreams(r.Context(), kind, filter)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if streams == nil {
		streams = []models.StreamRecord{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"streams": streams,
		"total":   total,
		"limit":   filter.Limit,
		"offset":  filter.Offset,
	})
}

func kindFromParam(v string) (models.ContentKind, bool) {
	switch v {
	case "live":
		return models.KindLive, true
	case "vod":
		return models.KindVOD, true
	case "series":
		return models.KindSeries, true
	}
	return "", false
}

// --- middleware ---

// withCORS adds CORS headers to every response and handles preflight OPTIONS requests.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// withLogging wraps a handler and logs each request with method, path, status, and duration.
func withLogging(log *logrus.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   sw.status,
			"duration": formatDuration(time.Since(start)),
		}).Info("request")
	})
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return fmt.Sprintf("%dus", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	default:
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
}

// --- helpers ---

// APIError is the standard error envelope for all error responses.
type APIError struct {
	Status int    `json:"status"`
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// parseID extracts a path parameter by name and parses it as int64.
func parseID(r *http.Request, param string) (int64, error) {
	v := r.PathValue(param)
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %s", param, v)
	}
	return id, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Debug("writeJSON")
	}
}

func writeNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

func writeErr(w http.ResponseWriter, status int, err error) {
	if status >= 500 {
		logrus.WithError(err).Error("request failed")
	}
	writeJSON(w, status, APIError{
		Status: status,
		Error:  http.StatusText(status),
		Detail: err.Error(),
	})
}
