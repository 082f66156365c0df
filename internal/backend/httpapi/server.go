// Package httpapi exposes the backend's control surface over loopback HTTP.
package httpapi

import (
	stdcontext "context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quickdock/quickdock/internal/backend/docker"
	"github.com/quickdock/quickdock/internal/metrics"
)

const (
	defaultAddr            = "127.0.0.1:18093"
	defaultReadHeader      = 5 * time.Second
	defaultShutdownTimeout = 5 * time.Second
	defaultLogTail         = 200
	eventsInterval         = 2 * time.Second
)

// ErrInvalidAction marks a request naming an action outside the allowed set.
var ErrInvalidAction = errors.New("invalid action")

// Manager is the slice of the Docker layer the API needs.
type Manager interface {
	Ping(ctx stdcontext.Context) (docker.Health, error)
	ListContainers(ctx stdcontext.Context) ([]docker.ContainerInfo, error)
	ListProjects(ctx stdcontext.Context) ([]docker.Project, error)
	ContainerAction(ctx stdcontext.Context, id, action string) error
	ComposeAction(ctx stdcontext.Context, project, action string) (string, error)
	ContainerLogs(ctx stdcontext.Context, id string, tail int, w io.Writer) error
}

// Config controls construction of the API server.
type Config struct {
	Addr              string
	Manager           Manager
	Listener          net.Listener
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

// Server wraps an http.Server exposing the Docker dashboard API.
type Server struct {
	mgr             Manager
	srv             *http.Server
	listener        net.Listener
	shutdownTimeout time.Duration
}

// NewServer constructs a Server with sane defaults.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Manager == nil {
		return nil, fmt.Errorf("manager is required")
	}
	addr := normalizeAddr(cfg.Addr)
	mux := http.NewServeMux()
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
	if srv.ReadHeaderTimeout == 0 {
		srv.ReadHeaderTimeout = defaultReadHeader
	}
	server := &Server{
		mgr:             cfg.Manager,
		srv:             srv,
		listener:        cfg.Listener,
		shutdownTimeout: cfg.ShutdownTimeout,
	}
	if server.shutdownTimeout == 0 {
		server.shutdownTimeout = defaultShutdownTimeout
	}
	server.registerRoutes(mux)
	return server, nil
}

// Run starts serving until the provided context is cancelled.
func (s *Server) Run(ctx stdcontext.Context) error {
	if ctx == nil {
		ctx = stdcontext.Background()
	}
	errCh := make(chan error, 1)
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := stdcontext.WithTimeout(stdcontext.Background(), s.shutdownTimeout)
			defer cancel()
			_ = s.srv.Shutdown(shutdownCtx)
		case <-stop:
		}
	}()

	go func() {
		var err error
		if s.listener != nil {
			err = s.srv.Serve(s.listener)
		} else {
			err = s.srv.ListenAndServe()
		}
		errCh <- err
	}()

	err := <-errCh
	close(stop)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.srv.Addr
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.Handle("/api/health", instrument("health", s.handleHealth))
	mux.Handle("/api/projects", instrument("projects", s.handleProjects))
	mux.Handle("/api/containers", instrument("containers", s.handleContainers))
	mux.Handle("/api/compose/", instrument("compose", s.handleCompose))
	mux.Handle("/api/container/", instrument("container", s.handleContainer))
	mux.Handle("/api/events", http.HandlerFunc(s.handleEvents))
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}
	health, err := s.mgr.Ping(r.Context())
	if err != nil {
		s.writeJSON(w, http.StatusServiceUnavailable, errorBody{
			Code:    "daemon_unavailable",
			Message: err.Error(),
		})
		return
	}
	s.writeJSON(w, http.StatusOK, health)
}

func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}
	projects, err := s.mgr.ListProjects(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, projects)
}

func (s *Server) handleContainers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}
	containers, err := s.mgr.ListContainers(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, containers)
}

func (s *Server) handleCompose(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}
	project, action, ok := splitPathPair(r.URL.Path, "/api/compose/")
	if !ok {
		s.writeError(w, fmt.Errorf("%w: expected /api/compose/{project}/{action}", ErrInvalidAction))
		return
	}
	switch action {
	case "up", "down", "restart":
	default:
		s.writeError(w, fmt.Errorf("%w: %q", ErrInvalidAction, action))
		return
	}
	output, err := s.mgr.ComposeAction(r.Context(), project, action)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"ok": true, "output": output})
}

func (s *Server) handleContainer(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/container/")

	if r.Method == http.MethodGet && strings.HasSuffix(rest, "/logs") {
		s.handleContainerLogs(w, r, strings.TrimSuffix(rest, "/logs"))
		return
	}

	if r.Method == http.MethodDelete {
		id := strings.TrimSpace(rest)
		if id == "" || strings.Contains(id, "/") {
			s.writeError(w, fmt.Errorf("%w: expected /api/container/{id}", ErrInvalidAction))
			return
		}
		s.runContainerAction(w, r, id, "remove")
		return
	}

	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}
	id, action, ok := splitPathPair(r.URL.Path, "/api/container/")
	if !ok {
		s.writeError(w, fmt.Errorf("%w: expected /api/container/{id}/{action}", ErrInvalidAction))
		return
	}
	switch action {
	case "start", "stop", "restart":
	default:
		s.writeError(w, fmt.Errorf("%w: %q", ErrInvalidAction, action))
		return
	}
	s.runContainerAction(w, r, id, action)
}

func (s *Server) runContainerAction(w http.ResponseWriter, r *http.Request, id, action string) {
	if err := s.mgr.ContainerAction(r.Context(), id, action); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleContainerLogs(w http.ResponseWriter, r *http.Request, id string) {
	id = strings.TrimSpace(id)
	if id == "" || strings.Contains(id, "/") {
		s.writeError(w, fmt.Errorf("%w: expected /api/container/{id}/logs", ErrInvalidAction))
		return
	}
	tail := defaultLogTail
	if raw := r.URL.Query().Get("tail"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			s.writeError(w, fmt.Errorf("%w: tail=%q", ErrInvalidAction, raw))
			return
		}
		tail = parsed
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, errors.New("streaming unsupported by connection"))
		return
	}
	sse := newSSEWriter(w, flusher)

	// The stream header has to go out before the first chunk, so a missing
	// container is probed up front via the error return of the copy itself.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-store")

	if err := s.mgr.ContainerLogs(r.Context(), id, tail, sse); err != nil {
		if !sse.wroteAny() {
			status := http.StatusInternalServerError
			if docker.IsNotFound(err) {
				status = http.StatusNotFound
			}
			w.Header().Set("Content-Type", "application/json")
			s.writeJSON(w, status, errorBody{Code: "log_stream_failed", Message: err.Error()})
			return
		}
	}
	sse.flushPartial()
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, errors.New("streaming unsupported by connection"))
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-store")

	ticker := time.NewTicker(eventsInterval)
	defer ticker.Stop()

	for {
		projects, err := s.mgr.ListProjects(r.Context())
		if err == nil {
			payload, marshalErr := json.Marshal(map[string]any{"type": "state", "projects": projects})
			if marshalErr == nil {
				fmt.Fprintf(w, "data: %s\n\n", payload)
				flusher.Flush()
			}
		}
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) methodNotAllowed(w http.ResponseWriter, method string) {
	w.Header().Set("Allow", method)
	s.writeJSON(w, http.StatusMethodNotAllowed, errorBody{
		Code:    "method_not_allowed",
		Message: fmt.Sprintf("method %s not allowed", method),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status, code := classifyError(err)
	s.writeJSON(w, status, errorBody{Code: code, Message: err.Error()})
}

func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, stdcontext.Canceled):
		return 499, "context_canceled"
	case errors.Is(err, ErrInvalidAction):
		return http.StatusBadRequest, "invalid_action"
	case docker.IsNotFound(err):
		return http.StatusNotFound, "not_found"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// splitPathPair extracts the two trailing segments of prefix/{a}/{b}.
func splitPathPair(path, prefix string) (string, string, bool) {
	rest := strings.TrimPrefix(path, prefix)
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func normalizeAddr(addr string) string {
	if strings.TrimSpace(addr) == "" {
		return defaultAddr
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		// If parsing failed, trust caller.
		return addr
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func instrument(route string, handler http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		handler(rec, r)
		metrics.ObserveHTTPRequest(route, strconv.Itoa(rec.status))
	})
}
