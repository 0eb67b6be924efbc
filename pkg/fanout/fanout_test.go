package fanout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitlane/paddock/pkg/allocator"
	"github.com/pitlane/paddock/pkg/config"
	"github.com/pitlane/paddock/pkg/events"
	"github.com/pitlane/paddock/pkg/store"
	"github.com/pitlane/paddock/pkg/sysmon"
	"github.com/pitlane/paddock/pkg/types"
)

type testEnv struct {
	srv   *Server
	cfg   *config.Config
	store *store.Store
	alloc *allocator.Allocator
	bus   *events.Broker
}

// fakeHealth satisfies HealthSource without touching systemd
type fakeHealth struct {
	snap *sysmon.Snapshot
}

func (f *fakeHealth) Snapshot(context.Context) *sysmon.Snapshot {
	return f.snap
}

func newTestEnv(t *testing.T, health HealthSource) *testEnv {
	t.Helper()

	dir := t.TempDir()
	cfg := config.Default()
	cfg.DatabasePath = filepath.Join(dir, "paddock.db")
	cfg.ManagementBind = "127.0.0.1:0"

	st, err := store.Open(cfg.DatabasePath)
	require.NoError(t, err)
	require.NoError(t, st.Migrate())
	t.Cleanup(func() { _ = st.Close() })

	bus := events.NewBroker()
	t.Cleanup(bus.Close)

	alloc := allocator.New(st)

	return &testEnv{
		srv:   NewServer(cfg, st, alloc, health, bus),
		cfg:   cfg,
		store: st,
		alloc: alloc,
		bus:   bus,
	}
}

// startTestServer binds the server to an ephemeral port and tears it
// down with the test.
func startTestServer(t *testing.T, env *testEnv) {
	t.Helper()

	require.NoError(t, env.srv.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = env.srv.Stop(ctx)
	})
}

func seedVenuePool(t *testing.T, env *testEnv, code string, ids ...string) {
	t.Helper()

	require.NoError(t, env.alloc.CreateVenue(code, code+" Speedway", "", ""))
	if len(ids) > 0 {
		_, err := env.alloc.BulkImport(code, "KXP2", ids)
		require.NoError(t, err)
	}
}

// seedDeployment inserts a history row and optionally advances it
func seedDeployment(t *testing.T, env *testEnv, hostname string, product types.ProductType, status types.DeploymentStatus) {
	t.Helper()

	rec := &types.DeploymentRecord{
		Hostname:     hostname,
		MACAddress:   "aa:bb:cc:dd:ee:ff",
		SerialNumber: "SER-" + hostname,
		IPAddress:    "10.0.0.10",
		ProductType:  product,
		VenueCode:    "CORO",
		ImageVersion: "1.0.0",
	}
	require.NoError(t, env.store.InsertHistory(rec))

	if status != types.DeploymentStarted {
		advanced, err := env.store.AdvanceHistory(hostname, status, "")
		require.NoError(t, err)
		require.True(t, advanced)
	}
}

func doJSON(t *testing.T, env *testEnv, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

// wsFrame is one decoded push envelope
type wsFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func dialWS(t *testing.T, env *testEnv) *websocket.Conn {
	t.Helper()

	conn, resp, err := websocket.DefaultDialer.Dial("ws://"+env.srv.Addr()+"/ws", nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// connectClient dials and drains the greeting frames, so the caller
// knows the client is registered with the hub.
func connectClient(t *testing.T, env *testEnv) *websocket.Conn {
	t.Helper()

	conn := dialWS(t, env)
	require.Equal(t, eventStatus, readFrame(t, conn).Event)
	require.Equal(t, eventStatsUpdate, readFrame(t, conn).Event)
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) wsFrame {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var frame wsFrame
	require.NoError(t, json.Unmarshal(data, &frame))
	return frame
}

func sendFrame(t *testing.T, conn *websocket.Conn, event string, data interface{}) {
	t.Helper()

	payload := map[string]interface{}{"event": event}
	if data != nil {
		payload["data"] = data
	}
	require.NoError(t, conn.WriteJSON(payload))
}

func TestStatsEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	seedVenuePool(t, env, "CORO", "001", "002")

	hostname, err := env.alloc.Assign("KXP2", "CORO", "aa:bb:cc:dd:ee:ff", "SER001")
	require.NoError(t, err)
	require.Equal(t, "KXP2-CORO-001", hostname)

	rec := doJSON(t, env, http.MethodGet, "/api/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	stats := decodeBody[types.DashboardStats](t, rec)
	assert.Equal(t, 1, stats.TotalVenues)
	assert.Equal(t, 2, stats.TotalHostnames)
	assert.Equal(t, 1, stats.AvailableKXP2)
	assert.Equal(t, 1, stats.AssignedKXP2)
	assert.Equal(t, 1, stats.AvailableHostnames)
	assert.Equal(t, 1, stats.AssignedHostnames)
	assert.NotEmpty(t, stats.Timestamp)
}

func TestVenuesEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := doJSON(t, env, http.MethodGet, "/api/venues", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))

	seedVenuePool(t, env, "MONZ", "001")
	seedVenuePool(t, env, "CORO", "001", "002")

	rec = doJSON(t, env, http.MethodGet, "/api/venues", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	venues := decodeBody[[]*types.VenueSummary](t, rec)
	require.Len(t, venues, 2)
	assert.Equal(t, "CORO", venues[0].Code)
	assert.Equal(t, 2, venues[0].KXP2Available)
	assert.Equal(t, "MONZ", venues[1].Code)
	assert.Equal(t, 1, venues[1].KXP2Available)
}

func TestVenueStatsEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	seedVenuePool(t, env, "CORO", "001", "002")

	_, err := env.alloc.Assign("KXP2", "CORO", "", "SER001")
	require.NoError(t, err)

	rec := doJSON(t, env, http.MethodGet, "/api/venues/coro/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	stats := decodeBody[types.VenueStats](t, rec)
	assert.Equal(t, "CORO", stats.VenueCode)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Available)
	assert.Equal(t, 1, stats.Assigned)

	rec = doJSON(t, env, http.MethodGet, "/api/venues/ZZZZ/stats", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, env, http.MethodGet, "/api/venues/bad!/stats", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeploymentsEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	seedDeployment(t, env, "KXP2-CORO-001", types.ProductKXP2, types.DeploymentSuccess)
	seedDeployment(t, env, "KXP2-CORO-002", types.ProductKXP2, types.DeploymentFailed)
	seedDeployment(t, env, "RXP2-CORO-ABC12345", types.ProductRXP2, types.DeploymentStarted)

	rec := doJSON(t, env, http.MethodGet, "/api/deployments", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	records := decodeBody[[]*types.DeploymentRecord](t, rec)
	require.Len(t, records, 3)
	assert.Equal(t, "RXP2-CORO-ABC12345", records[0].Hostname)

	rec = doJSON(t, env, http.MethodGet, "/api/deployments?limit=1&offset=1", nil)
	records = decodeBody[[]*types.DeploymentRecord](t, rec)
	require.Len(t, records, 1)
	assert.Equal(t, "KXP2-CORO-002", records[0].Hostname)

	// Status filters accept installer wording and canonical values alike
	rec = doJSON(t, env, http.MethodGet, "/api/deployments?status=completed", nil)
	records = decodeBody[[]*types.DeploymentRecord](t, rec)
	require.Len(t, records, 1)
	assert.Equal(t, "KXP2-CORO-001", records[0].Hostname)
	assert.Equal(t, types.DeploymentSuccess, records[0].Status)

	rec = doJSON(t, env, http.MethodGet, "/api/deployments?product=rxp2", nil)
	records = decodeBody[[]*types.DeploymentRecord](t, rec)
	require.Len(t, records, 1)

	rec = doJSON(t, env, http.MethodGet, "/api/deployments?venue=coro", nil)
	records = decodeBody[[]*types.DeploymentRecord](t, rec)
	require.Len(t, records, 3)

	for _, path := range []string{
		"/api/deployments?limit=0",
		"/api/deployments?limit=abc",
		"/api/deployments?offset=-1",
		"/api/deployments?status=bogus",
		"/api/deployments?product=XYZ1",
	} {
		rec = doJSON(t, env, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
	}
}

func TestSystemStatusEndpoint(t *testing.T) {
	snap := &sysmon.Snapshot{
		Services: map[string]sysmon.ServiceStatus{
			"dnsmasq": {Running: true, Status: "active"},
		},
		Database:  sysmon.DatabaseStatus{Accessible: true, SizeMB: 1.5},
		DiskSpace: sysmon.DiskStatus{TotalGB: 100, UsedGB: 40, AvailableGB: 60, PercentUsed: 40},
		Timestamp: "2026-02-11T10:00:00",
	}
	env := newTestEnv(t, &fakeHealth{snap: snap})

	rec := doJSON(t, env, http.MethodGet, "/api/system/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody[map[string]json.RawMessage](t, rec)
	assert.Contains(t, body, "dnsmasq")
	assert.Contains(t, body, "database")
	assert.Contains(t, body, "disk_space")
	assert.JSONEq(t, `"2026-02-11T10:00:00"`, string(body["timestamp"]))
}

func TestSystemStatusUnavailable(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := doJSON(t, env, http.MethodGet, "/api/system/status", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestBatchEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)
	seedVenuePool(t, env, "CORO", "001", "002", "003")

	rec := doJSON(t, env, http.MethodPost, "/api/batches", map[string]interface{}{
		"venue_code":   "CORO",
		"product_type": "KXP2",
		"total_count":  2,
		"priority":     5,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	batch := decodeBody[types.DeploymentBatch](t, rec)
	assert.Equal(t, types.BatchPending, batch.Status)
	assert.Equal(t, 2, batch.TotalCount)
	assert.Equal(t, 2, batch.RemainingCount)
	assert.Equal(t, 5, batch.Priority)

	rec = doJSON(t, env, http.MethodPost, fmt.Sprintf("/api/batches/%d/start", batch.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	started := decodeBody[types.DeploymentBatch](t, rec)
	assert.Equal(t, types.BatchActive, started.Status)
	assert.NotNil(t, started.StartedAt)

	rec = doJSON(t, env, http.MethodGet, "/api/batches/active", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	active := decodeBody[types.DeploymentBatch](t, rec)
	assert.Equal(t, batch.ID, active.ID)

	rec = doJSON(t, env, http.MethodPut, fmt.Sprintf("/api/batches/%d/priority", batch.ID), map[string]int{"priority": 9})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 9, decodeBody[types.DeploymentBatch](t, rec).Priority)

	rec = doJSON(t, env, http.MethodPost, fmt.Sprintf("/api/batches/%d/pause", batch.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, types.BatchPaused, decodeBody[types.DeploymentBatch](t, rec).Status)

	rec = doJSON(t, env, http.MethodGet, fmt.Sprintf("/api/batches/%d", batch.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, env, http.MethodGet, "/api/batches?status=paused", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]*types.DeploymentBatch](t, rec), 1)

	rec = doJSON(t, env, http.MethodGet, "/api/batches?status=active", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody[[]*types.DeploymentBatch](t, rec))
}

func TestBatchEndpointValidation(t *testing.T) {
	env := newTestEnv(t, nil)
	seedVenuePool(t, env, "MONZ", "001")

	// More slots than available hostnames
	rec := doJSON(t, env, http.MethodPost, "/api/batches", map[string]interface{}{
		"venue_code":   "MONZ",
		"product_type": "KXP2",
		"total_count":  5,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, env, http.MethodPost, "/api/batches", map[string]interface{}{
		"venue_code":   "x",
		"product_type": "KXP2",
		"total_count":  1,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, env, http.MethodPost, "/api/batches", map[string]interface{}{
		"venue_code":   "ZZZZ",
		"product_type": "KXP2",
		"total_count":  1,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, env, http.MethodPost, "/api/batches", map[string]interface{}{
		"venue_code":   "MONZ",
		"product_type": "KXP2",
		"total_count":  0,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, env, http.MethodGet, "/api/batches/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, env, http.MethodGet, "/api/batches/999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, env, http.MethodGet, "/api/batches/active", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "No active batches", decodeBody[map[string]string](t, rec)["message"])

	rec = doJSON(t, env, http.MethodPost, "/api/batches/999/start", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Pausing a batch that was never started
	created := doJSON(t, env, http.MethodPost, "/api/batches", map[string]interface{}{
		"venue_code":   "MONZ",
		"product_type": "KXP2",
		"total_count":  1,
	})
	require.Equal(t, http.StatusCreated, created.Code)
	id := decodeBody[types.DeploymentBatch](t, created).ID

	rec = doJSON(t, env, http.MethodPost, fmt.Sprintf("/api/batches/%d/pause", id), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestPoolEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)
	seedVenuePool(t, env, "CORO", "001", "002")

	rec := doJSON(t, env, http.MethodGet, "/api/pool?venue=CORO", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decodeBody[[]*types.PoolEntry](t, rec), 2)

	rec = doJSON(t, env, http.MethodPost, "/api/pool/import", map[string]interface{}{
		"venue_code":   "CORO",
		"product_type": "KXP2",
		"identifiers":  []string{"002", "003", "004"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	result := decodeBody[types.ImportResult](t, rec)
	assert.Equal(t, 2, result.Imported)
	assert.Equal(t, 1, result.Duplicates)

	hostname, err := env.alloc.Assign("KXP2", "CORO", "aa:bb:cc:dd:ee:ff", "SER001")
	require.NoError(t, err)
	require.Equal(t, "KXP2-CORO-001", hostname)

	rec = doJSON(t, env, http.MethodGet, "/api/pool?status=assigned", nil)
	entries := decodeBody[[]*types.PoolEntry](t, rec)
	require.Len(t, entries, 1)
	assert.Equal(t, "001", entries[0].Identifier)

	rec = doJSON(t, env, http.MethodPost, "/api/pool/release", map[string]string{"hostname": hostname})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "available", decodeBody[map[string]string](t, rec)["status"])

	rec = doJSON(t, env, http.MethodGet, "/api/pool?status=assigned", nil)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))

	rec = doJSON(t, env, http.MethodPost, "/api/pool/retire", map[string]string{"hostname": "KXP2-CORO-002"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, env, http.MethodGet, "/api/pool?status=retired", nil)
	require.Len(t, decodeBody[[]*types.PoolEntry](t, rec), 1)

	rec = doJSON(t, env, http.MethodPost, "/api/pool/release", map[string]string{"hostname": "garbage"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, env, http.MethodPost, "/api/pool/release", map[string]string{"hostname": "KXP2-CORO-999"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, env, http.MethodGet, "/api/pool?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPoolImportUnknownVenue(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := doJSON(t, env, http.MethodPost, "/api/pool/import", map[string]interface{}{
		"venue_code":   "ZZZZ",
		"product_type": "KXP2",
		"identifiers":  []string{"001"},
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := doJSON(t, env, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "paddock_push_clients")
}

func TestWebsocketGreeting(t *testing.T) {
	env := newTestEnv(t, nil)
	seedVenuePool(t, env, "CORO", "001")
	startTestServer(t, env)

	conn := dialWS(t, env)

	first := readFrame(t, conn)
	require.Equal(t, eventStatus, first.Event)
	var greeting map[string]string
	require.NoError(t, json.Unmarshal(first.Data, &greeting))
	assert.Equal(t, "Connected to deployment server", greeting["message"])
	assert.NotEmpty(t, greeting["timestamp"])

	second := readFrame(t, conn)
	require.Equal(t, eventStatsUpdate, second.Event)
	var stats types.DashboardStats
	require.NoError(t, json.Unmarshal(second.Data, &stats))
	assert.Equal(t, 1, stats.TotalVenues)
	assert.Equal(t, 1, stats.TotalHostnames)
}

func TestWebsocketRequestStatsBroadcasts(t *testing.T) {
	env := newTestEnv(t, nil)
	seedVenuePool(t, env, "CORO", "001")
	startTestServer(t, env)

	first := connectClient(t, env)
	second := connectClient(t, env)

	sendFrame(t, first, eventRequestStats, nil)

	for _, conn := range []*websocket.Conn{first, second} {
		frame := readFrame(t, conn)
		require.Equal(t, eventStatsUpdate, frame.Event)

		var stats types.DashboardStats
		require.NoError(t, json.Unmarshal(frame.Data, &stats))
		assert.Equal(t, 1, stats.TotalHostnames)
	}
}

func TestWebsocketRequestDeploymentsRepliesToRequester(t *testing.T) {
	env := newTestEnv(t, nil)
	seedDeployment(t, env, "KXP2-CORO-001", types.ProductKXP2, types.DeploymentSuccess)
	startTestServer(t, env)

	requester := connectClient(t, env)
	bystander := connectClient(t, env)

	sendFrame(t, requester, eventRequestDeployments, nil)

	frame := readFrame(t, requester)
	require.Equal(t, eventDeploymentsRefresh, frame.Event)

	var payload struct {
		Deployments []*types.DeploymentRecord `json:"deployments"`
	}
	require.NoError(t, json.Unmarshal(frame.Data, &payload))
	require.Len(t, payload.Deployments, 1)
	assert.Equal(t, "KXP2-CORO-001", payload.Deployments[0].Hostname)

	// The refresh is addressed to the requester alone
	require.NoError(t, bystander.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	_, _, err := bystander.ReadMessage()
	var netErr net.Error
	require.ErrorAs(t, err, &netErr)
	assert.True(t, netErr.Timeout())
}

func TestWebsocketSystemStatusRequest(t *testing.T) {
	snap := &sysmon.Snapshot{
		Services:  map[string]sysmon.ServiceStatus{"nginx": {Running: true, Status: "active"}},
		Database:  sysmon.DatabaseStatus{Accessible: true, SizeMB: 0.5},
		DiskSpace: sysmon.DiskStatus{TotalGB: 50, UsedGB: 10, AvailableGB: 40, PercentUsed: 20},
		Timestamp: "2026-02-11T10:00:00",
	}
	env := newTestEnv(t, &fakeHealth{snap: snap})
	startTestServer(t, env)

	conn := connectClient(t, env)
	sendFrame(t, conn, eventRequestSystemStatus, nil)

	frame := readFrame(t, conn)
	require.Equal(t, eventSystemStatus, frame.Event)

	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(frame.Data, &body))
	assert.Contains(t, body, "nginx")
	assert.Contains(t, body, "disk_space")
	assert.JSONEq(t, `"2026-02-11T10:00:00"`, string(body["timestamp"]))
}

func TestWebsocketTriggerDeploymentUpdate(t *testing.T) {
	env := newTestEnv(t, nil)
	startTestServer(t, env)

	first := connectClient(t, env)
	second := connectClient(t, env)

	sendFrame(t, first, eventTriggerUpdate, map[string]string{
		"hostname": "KXP2-CORO-001",
		"status":   "success",
	})

	for _, conn := range []*websocket.Conn{first, second} {
		frame := readFrame(t, conn)
		require.Equal(t, eventDeploymentUpdate, frame.Event)

		var payload map[string]interface{}
		require.NoError(t, json.Unmarshal(frame.Data, &payload))
		assert.Equal(t, "KXP2-CORO-001", payload["hostname"])
		assert.NotEmpty(t, payload["timestamp"])
	}
}

func TestWebsocketBridgesBusTransitions(t *testing.T) {
	env := newTestEnv(t, nil)
	startTestServer(t, env)

	first := connectClient(t, env)
	second := connectClient(t, env)

	env.bus.Publish(events.TopicDeploymentStatus, &types.DeploymentEvent{
		DeploymentID: 7,
		Hostname:     "KXP2-CORO-001",
		Status:       types.DeploymentSuccess,
		Timestamp:    "2026-02-11T10:00:00",
	})

	for _, conn := range []*websocket.Conn{first, second} {
		frame := readFrame(t, conn)
		require.Equal(t, eventDeploymentUpdate, frame.Event)

		var ev types.DeploymentEvent
		require.NoError(t, json.Unmarshal(frame.Data, &ev))
		assert.Equal(t, "KXP2-CORO-001", ev.Hostname)
		assert.Equal(t, types.DeploymentSuccess, ev.Status)
	}
}

func TestWebsocketIgnoresUnknownEvents(t *testing.T) {
	env := newTestEnv(t, nil)
	startTestServer(t, env)

	conn := connectClient(t, env)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	sendFrame(t, conn, "bogus_event", nil)

	// The connection survives both and still answers requests
	sendFrame(t, conn, eventRequestStats, nil)
	assert.Equal(t, eventStatsUpdate, readFrame(t, conn).Event)
}

func TestServerStopDisconnectsClients(t *testing.T) {
	env := newTestEnv(t, nil)
	startTestServer(t, env)

	conn := connectClient(t, env)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, env.srv.Stop(ctx))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure),
		"expected a normal closure, got %v", err)
}

func TestClientQueueDropsOldest(t *testing.T) {
	c := &client{send: make(chan []byte, 2)}

	c.enqueue([]byte("one"))
	c.enqueue([]byte("two"))
	c.enqueue([]byte("three"))

	assert.Equal(t, uint64(1), c.dropped.Load())
	assert.Equal(t, "two", string(<-c.send))
	assert.Equal(t, "three", string(<-c.send))
}
