package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/pitlane/paddock/pkg/allocator"
	"github.com/pitlane/paddock/pkg/config"
	"github.com/pitlane/paddock/pkg/events"
	"github.com/pitlane/paddock/pkg/log"
	"github.com/pitlane/paddock/pkg/metrics"
	"github.com/pitlane/paddock/pkg/store"
	"github.com/pitlane/paddock/pkg/sysmon"
	"github.com/pitlane/paddock/pkg/types"
)

// apiTimeout bounds REST routes. Websocket connections are exempt;
// dashboards hold theirs open for hours.
const apiTimeout = 5 * time.Second

// statsInterval is how often connected dashboards get a fresh stats
// snapshot without asking.
const statsInterval = 5 * time.Second

// refreshLimit caps the history slice pushed for a deployments refresh
const refreshLimit = 50

// Outbound events pushed to dashboard clients
const (
	eventStatus             = "status"
	eventStatsUpdate        = "stats_update"
	eventDeploymentsRefresh = "deployments_refresh"
	eventSystemStatus       = "system_status"
	eventDeploymentUpdate   = "deployment_update"
)

// Inbound request events clients may send
const (
	eventRequestStats        = "request_stats"
	eventRequestDeployments  = "request_deployments"
	eventRequestSystemStatus = "request_system_status"
	eventTriggerUpdate       = "trigger_deployment_update"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Dashboards load from this same server on a closed management
	// network; there is no cross-origin surface.
	CheckOrigin: func(*http.Request) bool { return true },
}

// HealthSource produces a fresh system health snapshot on demand
type HealthSource interface {
	Snapshot(ctx context.Context) *sysmon.Snapshot
}

// Server is the management surface: the operator REST API, the
// Prometheus endpoint, and the websocket fan-out that keeps dashboards
// live. It bridges the internal event bus onto connected clients.
type Server struct {
	cfg    *config.Config
	store  *store.Store
	alloc  *allocator.Allocator
	health HealthSource
	bus    *events.Broker
	hub    *Hub

	depSub    *events.Subscription
	healthSub *events.Subscription

	mu         sync.Mutex
	lastHealth *sysmon.Snapshot

	httpServer *http.Server
	listener   net.Listener
	stopCh     chan struct{}
	stopOnce   sync.Once
	runDone    chan struct{}
	started    atomic.Bool
	logger     zerolog.Logger
}

// NewServer creates the management server. It subscribes to the event
// bus immediately so no transition published between construction and
// Start is lost; Start brings up the listener and the fan-out loops.
func NewServer(cfg *config.Config, st *store.Store, alloc *allocator.Allocator, health HealthSource, bus *events.Broker) *Server {
	s := &Server{
		cfg:       cfg,
		store:     st,
		alloc:     alloc,
		health:    health,
		bus:       bus,
		hub:       newHub(),
		depSub:    bus.Subscribe(events.TopicDeploymentStatus),
		healthSub: bus.Subscribe(events.TopicSystemHealth),
		stopCh:    make(chan struct{}),
		runDone:   make(chan struct{}),
		logger:    log.WithComponent("fanout"),
	}

	s.httpServer = &http.Server{
		Addr:    cfg.ManagementBind,
		Handler: s.routes(),
		// Only header reads are bounded at the server level; REST
		// routes get per-request deadlines from instrument and
		// websockets manage their own.
		ReadHeaderTimeout: apiTimeout,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// routes builds the management mux
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /api/stats", s.instrument("/api/stats", s.handleStats))
	mux.Handle("GET /api/venues", s.instrument("/api/venues", s.handleVenues))
	mux.Handle("GET /api/venues/{code}/stats", s.instrument("/api/venues/stats", s.handleVenueStats))
	mux.Handle("GET /api/deployments", s.instrument("/api/deployments", s.handleDeployments))
	mux.Handle("GET /api/system/status", s.instrument("/api/system/status", s.handleSystemStatus))

	mux.Handle("GET /api/batches", s.instrument("/api/batches", s.handleListBatches))
	mux.Handle("POST /api/batches", s.instrument("/api/batches", s.handleCreateBatch))
	mux.Handle("GET /api/batches/active", s.instrument("/api/batches/active", s.handleActiveBatch))
	mux.Handle("GET /api/batches/{id}", s.instrument("/api/batches/id", s.handleGetBatch))
	mux.Handle("POST /api/batches/{id}/start", s.instrument("/api/batches/start", s.handleStartBatch))
	mux.Handle("POST /api/batches/{id}/pause", s.instrument("/api/batches/pause", s.handlePauseBatch))
	mux.Handle("PUT /api/batches/{id}/priority", s.instrument("/api/batches/priority", s.handleBatchPriority))

	mux.Handle("GET /api/pool", s.instrument("/api/pool", s.handleListPool))
	mux.Handle("POST /api/pool/import", s.instrument("/api/pool/import", s.handlePoolImport))
	mux.Handle("POST /api/pool/release", s.instrument("/api/pool/release", s.handlePoolRelease))
	mux.Handle("POST /api/pool/retire", s.instrument("/api/pool/retire", s.handlePoolRetire))

	// The websocket endpoint hijacks its connection and the Prometheus
	// handler writes its own content type; neither goes through
	// instrument.
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.Handle("GET /metrics", metrics.Handler())

	return mux
}

// Handler exposes the route table for tests
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Addr reports the bound listener address once Start has succeeded
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.httpServer.Addr
	}
	return s.listener.Addr().String()
}

// Start begins serving on the management bind address and starts the
// hub and bus pump. It returns once the listener is up.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	s.listener = ln
	s.started.Store(true)

	go s.hub.run()
	go s.run()

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("Management API listening")

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Management server error")
		}
	}()
	return nil
}

// Stop drains REST requests, disconnects every websocket client, and
// detaches from the event bus.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down management server")

	// Shutdown does not wait for hijacked websocket connections; the
	// hub closes those on its way out.
	err := s.httpServer.Shutdown(ctx)

	s.stopOnce.Do(func() { close(s.stopCh) })
	if s.started.Load() {
		<-s.runDone
		s.hub.stop()
	}
	s.bus.Unsubscribe(s.depSub)
	s.bus.Unsubscribe(s.healthSub)
	return err
}

// run pumps bus events to connected clients and pushes stats on a
// fixed cadence. Deployment transitions pass through as-is; health
// snapshots are cached for the system status fallback.
func (s *Server) run() {
	defer close(s.runDone)

	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	depCh := s.depSub.C()
	healthCh := s.healthSub.C()

	for {
		select {
		case <-s.stopCh:
			return

		case <-ticker.C:
			if s.hub.clientCount() == 0 {
				continue
			}
			s.broadcastStats()

		case ev, ok := <-depCh:
			if !ok {
				depCh = nil
				continue
			}
			s.hub.Broadcast(eventDeploymentUpdate, ev.Payload)

		case ev, ok := <-healthCh:
			if !ok {
				healthCh = nil
				continue
			}
			if snap, ok := ev.Payload.(*sysmon.Snapshot); ok {
				s.mu.Lock()
				s.lastHealth = snap
				s.mu.Unlock()
			}
		}
	}
}

// broadcastStats materializes one dashboard snapshot and fans it out
func (s *Server) broadcastStats() {
	stats, err := s.store.DashboardStats()
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to compute dashboard stats")
		return
	}
	s.hub.Broadcast(eventStatsUpdate, stats)
}

// systemStatus prefers a fresh probe and falls back to the last
// snapshot seen on the bus.
func (s *Server) systemStatus(ctx context.Context) *sysmon.Snapshot {
	if s.health != nil {
		return s.health.Snapshot(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastHealth
}

// handleWS upgrades the connection and hands it to the hub. The
// greeting and the first stats snapshot are queued before the client
// joins the broadcast set, so they are always the first frames out.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		s.logger.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("Websocket upgrade failed")
		return
	}

	c := newClient(s.hub, conn, s.logger)

	c.queue(eventStatus, map[string]string{
		"message":   "Connected to deployment server",
		"timestamp": nowISO(),
	})
	if stats, err := s.store.DashboardStats(); err != nil {
		s.logger.Error().Err(err).Msg("Failed to compute dashboard stats")
	} else {
		c.queue(eventStatsUpdate, stats)
	}

	s.hub.add(c)
	go c.writePump()
	go c.readPump(s.dispatch)
}

// inboundMessage is the envelope clients send
type inboundMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// dispatch routes one client request envelope
func (s *Server) dispatch(c *client, raw []byte) {
	var msg inboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.logger.Debug().Err(err).Msg("Malformed client message")
		return
	}

	switch msg.Event {
	case eventRequestStats:
		// Refreshing one dashboard refreshes them all
		s.broadcastStats()

	case eventRequestDeployments:
		records, err := s.store.ListDeployments(store.DeploymentFilter{Limit: refreshLimit})
		if err != nil {
			s.logger.Error().Err(err).Msg("Failed to list deployments")
			return
		}
		if records == nil {
			records = []*types.DeploymentRecord{}
		}
		s.hub.sendTo(c, eventDeploymentsRefresh, map[string]interface{}{"deployments": records})

	case eventRequestSystemStatus:
		ctx, cancel := context.WithTimeout(context.Background(), apiTimeout)
		defer cancel()
		snap := s.systemStatus(ctx)
		if snap == nil {
			c.logger.Debug().Msg("System status unavailable")
			return
		}
		s.hub.sendTo(c, eventSystemStatus, snap)

	case eventTriggerUpdate:
		payload := map[string]interface{}{}
		if len(msg.Data) > 0 {
			if err := json.Unmarshal(msg.Data, &payload); err != nil {
				c.logger.Debug().Err(err).Msg("Malformed trigger payload")
				return
			}
		}
		if _, ok := payload["timestamp"]; !ok {
			payload["timestamp"] = nowISO()
		}
		s.hub.Broadcast(eventDeploymentUpdate, payload)

	default:
		c.logger.Debug().Str("event", msg.Event).Msg("Unknown client event")
	}
}

// instrument wraps a REST handler with deadlines, metrics, and request
// logging.
func (s *Server) instrument(route string, h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timer := metrics.NewTimer()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		// Best effort: recorders in tests do not support deadlines.
		rc := http.NewResponseController(rec)
		_ = rc.SetReadDeadline(time.Now().Add(apiTimeout))
		_ = rc.SetWriteDeadline(time.Now().Add(apiTimeout))

		h(rec, r)

		metrics.HTTPRequestsTotal.WithLabelValues("management", route, strconv.Itoa(rec.status)).Inc()
		timer.ObserveDurationVec(metrics.HTTPRequestDuration, "management", route)

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

// nowISO formats the current UTC time the way dashboards expect
func nowISO() string {
	return time.Now().UTC().Format(types.ISO8601)
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

// writeError writes a JSON error body. Callers pass client-safe text
// for 4xx responses and a generic message for 5xx.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
