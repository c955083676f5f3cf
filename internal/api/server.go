// Package api exposes the dispatcher and the read accessor over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/ppiankov/taskgate/internal/dispatch"
	"github.com/ppiankov/taskgate/internal/fileread"
	"github.com/ppiankov/taskgate/internal/metrics"
	"github.com/ppiankov/taskgate/internal/ratelimit"
)

// TaskRunner dispatches one instruction.
type TaskRunner interface {
	Dispatch(ctx context.Context, instruction string) (*dispatch.Outcome, error)
}

// FileReader returns a file's text content.
type FileReader interface {
	Read(path string) (string, error)
}

// Config holds server configuration. Tasks and Files are required.
type Config struct {
	Addr            string
	ShutdownTimeout time.Duration
	Tasks           TaskRunner
	Files           FileReader
	Logger          *zap.Logger
	Metrics         *metrics.Metrics
	// RunLimit bounds POST /run per client; nil disables it.
	RunLimit *ratelimit.Limiter
}

// Server serves /run, /read, /healthz and /metrics.
type Server struct {
	cfg     Config
	log     *zap.Logger
	metrics *metrics.Metrics
	srv     *http.Server

	mu   sync.Mutex
	addr string
}

// maxBodySize bounds the JSON body accepted by /run.
const maxBodySize = 1 << 20

// NewServer creates a Server with the routes mounted.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Tasks == nil {
		return nil, errors.New("api: task runner is required")
	}
	if cfg.Files == nil {
		return nil, errors.New("api: file reader is required")
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	s := &Server{cfg: cfg, log: log, metrics: cfg.Metrics, addr: cfg.Addr}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(peerAddr)
	r.Use(middleware.RealIP)
	r.Use(s.accessLog)
	r.Use(s.recoverer)

	r.With(s.limitRuns).Post("/run", s.handleRun)
	r.Get("/read", s.handleRead)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	s.srv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Handler returns the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Start listens and serves until ctx is cancelled, then shuts down
// gracefully within the configured timeout.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.srv.Addr, err)
	}
	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.mu.Unlock()
	s.log.Info("listening", zap.String("addr", ln.Addr().String()))

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
			return
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.log.Warn("shutdown incomplete", zap.Error(err))
		}
	}()

	err = s.srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Addr returns the listen address; the bound address once Start has run.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

type runRequest struct {
	Task string `json:"task"`
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	task := r.URL.Query().Get("task")
	if task == "" && r.Body != nil && strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var req runRequest
		dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
		if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeDetail(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
			return
		}
		task = req.Task
	}
	if strings.TrimSpace(task) == "" {
		writeDetail(w, http.StatusBadRequest, "task is required")
		return
	}

	out, err := s.cfg.Tasks.Dispatch(r.Context(), task)
	if err != nil {
		status, detail := failureResponse(err)
		writeDetail(w, status, detail)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": out.Message,
	})
}

// failureResponse maps a dispatch error to a status and detail. Rejections
// before any handler ran are client errors; everything else is a 500.
func failureResponse(err error) (int, string) {
	var f *dispatch.Failure
	if errors.As(err, &f) {
		switch f.Kind {
		case dispatch.PolicyViolation, dispatch.UnknownTask:
			return http.StatusBadRequest, f.Detail
		default:
			return http.StatusInternalServerError, internalDetail(f.Detail)
		}
	}
	return http.StatusInternalServerError, internalDetail(err.Error())
}

func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeDetail(w, http.StatusBadRequest, "path is required")
		return
	}

	content, err := s.cfg.Files.Read(path)
	switch {
	case err == nil:
		s.metrics.ObserveRead("ok")
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "success",
			"content": content,
		})
	case errors.Is(err, fileread.ErrNotFound):
		s.metrics.ObserveRead("not_found")
		writeDetail(w, http.StatusNotFound, "File not found")
	case errors.Is(err, fileread.ErrOutsideSandbox):
		s.metrics.ObserveRead("forbidden")
		writeDetail(w, http.StatusForbidden, err.Error())
	default:
		s.metrics.ObserveRead("error")
		writeDetail(w, http.StatusInternalServerError, internalDetail(err.Error()))
	}
}

func internalDetail(msg string) string {
	return "Internal server error: " + msg
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
