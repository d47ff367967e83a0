// Package debughttp exposes a loopback-only, read-only introspection
// surface over the job store. It carries no control operations; those
// live exclusively on the IPC endpoint (spec §4.5/§6).
package debughttp

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/essmehdi/flowd/internal/store"
)

type Server struct {
	store  *store.Store
	log    *slog.Logger
	router *chi.Mux
}

func New(st *store.Store, log *slog.Logger) *Server {
	s := &Server{store: st, log: log, router: chi.NewRouter()}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.loopbackOnly)

	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/jobs", s.handleListJobs)
	s.router.Get("/jobs/{id}", s.handleGetJob)
}

// Start binds a loopback-only listener and serves until the process exits.
// A bind failure is logged, not fatal: the debug surface is ambient, not
// required for the daemon's core contract.
func (s *Server) Start(port int) {
	addr := fmt.Sprintf("127.0.0.1:%d", port)

	go func() {
		conn, err := net.Listen("tcp", addr)
		if err != nil {
			s.log.Warn("debughttp: failed to bind, introspection surface disabled", "addr", addr, "error", err)
			return
		}
		s.log.Info("debughttp: listening", "addr", addr)
		if err := http.Serve(conn, s.router); err != nil {
			s.log.Warn("debughttp: server stopped", "error", err)
		}
	}()
}

func (s *Server) loopbackOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil || (host != "127.0.0.1" && host != "::1") {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte(`{"status":"UP"}`))
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.store.GetSorted()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(jobs)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	job, err := s.store.GetByID(id)
	if err != nil {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}
	json.NewEncoder(w).Encode(job)
}
