package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Checker reports the health of one dependency.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

// Server provides HTTP endpoints for health monitoring.
type Server struct {
	checkers []Checker
	server   *http.Server
}

// NewServer creates a new health server.
func NewServer(port int, checkers ...Checker) *Server {
	mux := http.NewServeMux()
	s := &Server{
		checkers: checkers,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
	}

	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	return s
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	report := make(map[string]string, len(s.checkers))
	for _, c := range s.checkers {
		if err := c.Check(r.Context()); err != nil {
			report[c.Name] = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			report[c.Name] = "ok"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(report)
}
