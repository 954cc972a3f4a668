// Package api implements the Local Control API (spec.md §4.L): a
// localhost-only, read-only HTTP mirror of the queue/resume state for
// tooling that can't bind Go method calls directly. Grounded on the
// teacher's internal/api/server.go (chi router, loopback-enforced
// listener, handler-per-route shape); unlike the teacher's surface this
// one exposes no write routes — Enqueue/Pause/Activate/... stay Go-level
// calls made by the UI shell process, per §1.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Minlor/TwintailLauncher/internal/model"
)

// QueueStateSource is the subset of queue.Scheduler this server reads.
// Declared locally so this package never imports internal/queue.
type QueueStateSource interface {
	GetQueueState() model.QueueState
	GetResumeStates(installDirs map[string]string) map[string]model.ResumeStates
}

// InstallDirLookup resolves an install id to its on-disk directory, e.g.
// settings.Store.InstallDir.
type InstallDirLookup func(installID string) (string, error)

// Server is the Local Control API's HTTP surface.
type Server struct {
	logger *slog.Logger
	queue  QueueStateSource
	dirs   InstallDirLookup
	router *chi.Mux
}

// NewServer builds a Server. Call Start to begin listening.
func NewServer(logger *slog.Logger, queue QueueStateSource, dirs InstallDirLookup) *Server {
	s := &Server{logger: logger, queue: queue, dirs: dirs, router: chi.NewRouter()}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.loopbackOnly)

	s.router.Get("/queue", s.handleGetQueue)
	s.router.Get("/resume-state/{install_id}", s.handleGetResumeState)
}

// loopbackOnly rejects any request not originating from 127.0.0.1/::1,
// mirroring the teacher's securityMiddleware localhost enforcement (minus
// the token/audit-log layers, which guarded a write surface this server
// doesn't expose).
func (s *Server) loopbackOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, _ := net.SplitHostPort(r.RemoteAddr)
		if host != "127.0.0.1" && host != "::1" {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start binds the server to 127.0.0.1:port in the background. Enforces
// loopback at the listener itself, like the teacher's own Start.
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	conn, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("control api: bind %s: %w", addr, err)
	}

	s.logger.Info("local control API listening", "addr", addr)
	go func() {
		if err := http.Serve(conn, s.router); err != nil {
			s.logger.Error("local control API stopped", "error", err)
		}
	}()
	return nil
}

func (s *Server) handleGetQueue(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.queue.GetQueueState())
}

func (s *Server) handleGetResumeState(w http.ResponseWriter, r *http.Request) {
	installID := chi.URLParam(r, "install_id")

	dir, err := s.dirs(installID)
	if err != nil {
		http.Error(w, "install not found", http.StatusNotFound)
		return
	}

	states := s.queue.GetResumeStates(map[string]string{installID: dir})
	writeJSON(w, http.StatusOK, states[installID])
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
