package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"r2-share/internal/config"
	"r2-share/internal/logging"
	"r2-share/internal/registry"
)

// Pinger reports whether the object store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Config struct {
	Addr     string // e.g. ":8080"
	Registry *registry.Service
	Auth     config.Auth
	Store    Pinger // health checks; nil skips the store component
	Version  string
}

type Server struct {
	httpServer *http.Server

	registry *registry.Service
	auth     config.Auth
	store    Pinger
	version  string
	metrics  *Metrics
	started  time.Time
}

func New(cfg Config) *Server {
	s := &Server{
		registry: cfg.Registry,
		auth:     cfg.Auth,
		store:    cfg.Store,
		version:  cfg.Version,
		metrics:  NewMetrics(),
		started:  time.Now(),
	}
	if !s.auth.Enabled() {
		logging.Warn("basic_auth_disabled", logging.Fields{"reason": "BASIC_AUTH_USERNAME and BASIC_AUTH_PASSWORD not set"})
	}

	mux := http.NewServeMux()

	// Ops endpoints live under "-/", a prefix uploads may not use.
	mux.HandleFunc("/-/health", s.HandleHealth)
	mux.Handle("/-/metrics", s.metricsHandler())

	mux.Handle("/{$}", s.rootHandler())
	mux.Handle("/{path...}", s.fileHandler())

	// Wrap middleware: requestID -> logging -> security headers -> mux
	var handler http.Handler = mux
	handler = securityHeadersMiddleware(handler)
	handler = s.loggingMiddleware(handler)
	handler = requestIDMiddleware(handler)

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the fully wrapped handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Metrics returns the server's counters.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	logging.Info("server_listening", logging.Fields{"addr": ln.Addr().String()})
	return s.httpServer.Serve(ln)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// rootHandler serves GET / (listing) and POST / (upload).
func (s *Server) rootHandler() http.Handler {
	list := s.requireBasicAuth(compressJSON(http.HandlerFunc(s.listHandler)))
	upload := http.HandlerFunc(s.uploadHandler)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead:
			list.ServeHTTP(w, r)
		case http.MethodPost:
			upload.ServeHTTP(w, r)
		default:
			w.Header().Set("Allow", "GET, HEAD, POST")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
}

// fileHandler serves /{path}: download and delete.
func (s *Server) fileHandler() http.Handler {
	download := http.HandlerFunc(s.downloadHandler)
	remove := s.requireBasicAuth(http.HandlerFunc(s.deleteHandler))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead:
			download.ServeHTTP(w, r)
		case http.MethodDelete:
			remove.ServeHTTP(w, r)
		default:
			w.Header().Set("Allow", "GET, HEAD, DELETE")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
}
