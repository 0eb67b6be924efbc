package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/pitlane/paddock/pkg/allocator"
	"github.com/pitlane/paddock/pkg/config"
	"github.com/pitlane/paddock/pkg/events"
	"github.com/pitlane/paddock/pkg/images"
	"github.com/pitlane/paddock/pkg/log"
	"github.com/pitlane/paddock/pkg/metrics"
	"github.com/pitlane/paddock/pkg/store"
)

// apiVersion is reported to installers in every config response
const apiVersion = "3.0"

// apiTimeout bounds the API routes. Image streaming is exempt; a target
// pulling a multi-gigabyte image holds its connection as long as it needs.
const apiTimeout = 5 * time.Second

// Server is the deployment-network HTTP API. Installers hit it for their
// hostname and image assignment, report progress to it, and pull image
// content from it.
type Server struct {
	cfg        *config.Config
	store      *store.Store
	alloc      *allocator.Allocator
	images     *images.Library
	bus        *events.Broker
	statusLog  *statusLog
	imageBase  string
	httpServer *http.Server
	logger     zerolog.Logger
}

// NewServer creates the deployment server. Start must be called before it
// accepts traffic.
func NewServer(cfg *config.Config, st *store.Store, alloc *allocator.Allocator, lib *images.Library, bus *events.Broker) *Server {
	s := &Server{
		cfg:       cfg,
		store:     st,
		alloc:     alloc,
		images:    lib,
		bus:       bus,
		statusLog: newStatusLog(cfg.LogDir),
		imageBase: advertisedBase(cfg),
		logger:    log.WithComponent("coordinator"),
	}

	s.httpServer = &http.Server{
		Addr:    cfg.DeploymentBind,
		Handler: s.routes(),
		// Request reads are bounded globally; image GETs carry no body.
		ReadTimeout: apiTimeout,
		IdleTimeout: 120 * time.Second,
	}
	return s
}

// routes builds the deployment API mux
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("POST /api/config", s.instrument("/api/config", true, s.handleConfig))
	mux.Handle("POST /api/status", s.instrument("/api/status", true, s.handleStatus))
	mux.Handle("GET /images/{filename}", s.instrument("/images", false, s.handleImage))
	mux.Handle("GET /health", s.instrument("/health", true, s.handleHealth))
	return mux
}

// Handler exposes the route table for tests
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins serving on the deployment bind address. It returns once the
// listener is up; serving continues in the background until Stop.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}

	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("Deployment API listening")

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Deployment server error")
		}
	}()
	return nil
}

// Stop drains in-flight requests and shuts the server down
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down deployment server")
	return s.httpServer.Shutdown(ctx)
}

// instrument wraps a handler with request logging and metrics. Handlers
// registered with timed=true get a write deadline so a stuck client cannot
// pin an API worker; the image route opts out.
func (s *Server) instrument(route string, timed bool, h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timer := metrics.NewTimer()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		if timed {
			// Best effort: recorders in tests do not support deadlines.
			_ = http.NewResponseController(rec).SetWriteDeadline(time.Now().Add(apiTimeout))
		}

		h(rec, r)

		metrics.HTTPRequestsTotal.WithLabelValues("deployment", route, strconv.Itoa(rec.status)).Inc()
		timer.ObserveDurationVec(metrics.HTTPRequestDuration, "deployment", route)

		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote", r.RemoteAddr).
			Int("status", rec.status).
			Dur("duration", timer.Duration()).
			Msg("Request handled")
	})
}

// statusRecorder captures the response code for logging and metrics
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// advertisedBase derives the URL prefix installers use to reach this
// server: the advertised deployment-network IP plus the bound port.
func advertisedBase(cfg *config.Config) string {
	_, port, err := net.SplitHostPort(cfg.DeploymentBind)
	if err != nil || port == "" {
		return fmt.Sprintf("http://%s", cfg.ServerIP)
	}
	return fmt.Sprintf("http://%s:%s", cfg.ServerIP, port)
}

// decodeJSON reads a JSON request body into v
func decodeJSON(r *http.Request, v interface{}) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// writeJSON writes v as a JSON response with the given status code
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("failed to encode response", err)
	}
}

// writeError writes a JSON error body. Callers pass client-safe text for
// 4xx responses and a generic message for 5xx.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// remoteIP strips the port from a request's remote address
func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
