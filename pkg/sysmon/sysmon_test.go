package sysmon

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitlane/paddock/pkg/config"
	"github.com/pitlane/paddock/pkg/events"
	"github.com/pitlane/paddock/pkg/store"
	"github.com/pitlane/paddock/pkg/types"
)

func newTestSampler(t *testing.T, services ...string) (*Sampler, *events.Broker) {
	t.Helper()

	cfg := config.Default()
	cfg.DatabasePath = filepath.Join(t.TempDir(), "paddock.db")
	cfg.DiskPath = t.TempDir()
	cfg.MonitoredServices = services

	st, err := store.Open(cfg.DatabasePath)
	require.NoError(t, err)
	require.NoError(t, st.Migrate())
	t.Cleanup(func() { _ = st.Close() })

	bus := events.NewBroker()
	t.Cleanup(bus.Close)

	return NewSampler(cfg, st, bus), bus
}

func TestSnapshotProbesEverything(t *testing.T) {
	// The unit does not exist, and in most test environments neither
	// does a reachable service manager. Both degrade, never fail.
	s, _ := newTestSampler(t, "paddock-test-unit-does-not-exist")

	snap := s.Snapshot(context.Background())

	svc, ok := snap.Services["paddock-test-unit-does-not-exist"]
	require.True(t, ok)
	assert.False(t, svc.Running)

	assert.True(t, snap.Database.Accessible)
	assert.Empty(t, snap.Database.Error)

	assert.Greater(t, snap.DiskSpace.TotalGB, 0.0)
	assert.GreaterOrEqual(t, snap.DiskSpace.PercentUsed, 0.0)
	assert.LessOrEqual(t, snap.DiskSpace.PercentUsed, 100.0)

	_, err := time.Parse(types.ISO8601, snap.Timestamp)
	require.NoError(t, err)
}

func TestSnapshotWireShape(t *testing.T) {
	snap := &Snapshot{
		Services: map[string]ServiceStatus{
			"dnsmasq": {Running: true, Status: "active"},
		},
		Database:  DatabaseStatus{Accessible: true, SizeMB: 1.25},
		DiskSpace: DiskStatus{TotalGB: 100, UsedGB: 40, AvailableGB: 60, PercentUsed: 40.0},
		Timestamp: "2026-08-25T10:00:00",
	}

	data, err := json.Marshal(snap)
	require.NoError(t, err)

	var wire map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &wire))

	// Services flatten to top-level keys beside the fixed sections.
	assert.Contains(t, wire, "dnsmasq")
	assert.Contains(t, wire, "database")
	assert.Contains(t, wire, "disk_space")
	assert.Contains(t, wire, "timestamp")

	var svc ServiceStatus
	require.NoError(t, json.Unmarshal(wire["dnsmasq"], &svc))
	assert.True(t, svc.Running)
	assert.Equal(t, "active", svc.Status)

	var db DatabaseStatus
	require.NoError(t, json.Unmarshal(wire["database"], &db))
	assert.Equal(t, 1.25, db.SizeMB)
}

func TestProbeDatabaseAfterClose(t *testing.T) {
	s, _ := newTestSampler(t)
	require.NoError(t, s.store.Close())

	status := s.probeDatabase()
	assert.False(t, status.Accessible)
	assert.NotEmpty(t, status.Error)
}

func TestProbeDiskMissingPath(t *testing.T) {
	s, _ := newTestSampler(t)
	s.diskPath = filepath.Join(t.TempDir(), "does", "not", "exist")

	status := s.probeDisk()
	assert.NotEmpty(t, status.Error)
	assert.Zero(t, status.TotalGB)
}

func TestProbeDiskAccounting(t *testing.T) {
	s, _ := newTestSampler(t)

	status := s.probeDisk()
	require.Empty(t, status.Error)
	assert.Greater(t, status.TotalGB, 0.0)
	// Rounding can shift the sum by a hundredth either way.
	assert.InDelta(t, status.TotalGB, status.UsedGB+status.AvailableGB, 0.03)
}

func TestSamplerPublishesOnStart(t *testing.T) {
	s, bus := newTestSampler(t)

	sub := bus.Subscribe(events.TopicSystemHealth)
	defer bus.Unsubscribe(sub)

	s.Start()
	defer s.Stop()

	select {
	case ev := <-sub.C():
		snap, ok := ev.Payload.(*Snapshot)
		require.True(t, ok)
		assert.True(t, snap.Database.Accessible)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for health snapshot")
	}
}

func TestRoundTo(t *testing.T) {
	assert.Equal(t, 1.23, roundTo(1.2344, 2))
	assert.Equal(t, 1.24, roundTo(1.236, 2))
	assert.Equal(t, 99.9, roundTo(99.94, 1))
	assert.Equal(t, 100.0, roundTo(99.96, 1))
}
