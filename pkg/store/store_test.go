package store

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitlane/paddock/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	st, err := Open(filepath.Join(t.TempDir(), "paddock.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate())
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func seedTestVenue(t *testing.T, st *Store, code string) {
	t.Helper()
	require.NoError(t, st.CreateVenue(&types.Venue{Code: code, Name: code + " Speedway"}))
}

func TestOpenMigrateVerify(t *testing.T) {
	st, err := Open(filepath.Join(t.TempDir(), "paddock.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	// Fresh file: no schema yet
	require.Error(t, st.Verify())
	version, dirty, err := st.SchemaVersion()
	require.NoError(t, err)
	assert.Zero(t, version)
	assert.False(t, dirty)

	require.NoError(t, st.Migrate())
	require.NoError(t, st.Verify())

	version, dirty, err = st.SchemaVersion()
	require.NoError(t, err)
	assert.NotZero(t, version)
	assert.False(t, dirty)

	// Migrating an up-to-date schema is a no-op
	require.NoError(t, st.Migrate())

	require.NoError(t, st.Ping())
	size, err := st.SizeMB()
	require.NoError(t, err)
	assert.Greater(t, size, 0.0)
	assert.Contains(t, st.Path(), "paddock.db")
}

func TestReset(t *testing.T) {
	st := newTestStore(t)
	seedTestVenue(t, st, "CORO")

	venues, err := st.ListVenues()
	require.NoError(t, err)
	require.Len(t, venues, 1)

	require.NoError(t, st.Reset())
	require.NoError(t, st.Verify())

	venues, err = st.ListVenues()
	require.NoError(t, err)
	assert.Empty(t, venues)

	// The rebuilt schema accepts writes
	seedTestVenue(t, st, "MONZ")
}

func TestInsertHistoryDefaults(t *testing.T) {
	st := newTestStore(t)

	rec := &types.DeploymentRecord{Hostname: "KXP2-CORO-001"}
	require.NoError(t, st.InsertHistory(rec))
	assert.NotZero(t, rec.ID)
	assert.Equal(t, types.DeploymentStarted, rec.Status)
	assert.False(t, rec.StartedAt.IsZero())

	got, err := st.GetDeployment(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "KXP2-CORO-001", got.Hostname)
	assert.Equal(t, types.DeploymentStarted, got.Status)
	assert.Empty(t, got.MACAddress)
	assert.Nil(t, got.CompletedAt)

	_, err = st.GetDeployment(9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAdvanceHistoryLifecycle(t *testing.T) {
	st := newTestStore(t)

	rec := &types.DeploymentRecord{Hostname: "KXP2-CORO-001"}
	require.NoError(t, st.InsertHistory(rec))

	advanced, err := st.AdvanceHistory("KXP2-CORO-001", types.DeploymentDownloading, "")
	require.NoError(t, err)
	require.True(t, advanced)

	got, err := st.GetDeployment(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, types.DeploymentDownloading, got.Status)
	assert.Nil(t, got.CompletedAt)

	advanced, err = st.AdvanceHistory("KXP2-CORO-001", types.DeploymentFailed, "sd card died")
	require.NoError(t, err)
	require.True(t, advanced)

	got, err = st.GetDeployment(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, types.DeploymentFailed, got.Status)
	require.NotNil(t, got.CompletedAt)
	assert.Equal(t, "sd card died", got.ErrorMessage)

	// Terminal rows never move again
	advanced, err = st.AdvanceHistory("KXP2-CORO-001", types.DeploymentSuccess, "")
	require.NoError(t, err)
	assert.False(t, advanced)

	got, err = st.GetDeployment(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, types.DeploymentFailed, got.Status)
}

func TestAdvanceHistoryUnknownHostname(t *testing.T) {
	st := newTestStore(t)

	advanced, err := st.AdvanceHistory("KXP2-CORO-999", types.DeploymentSuccess, "")
	require.NoError(t, err)
	assert.False(t, advanced)
}

func TestAdvanceHistoryTargetsNewestRun(t *testing.T) {
	st := newTestStore(t)

	first := &types.DeploymentRecord{
		Hostname:  "KXP2-CORO-001",
		StartedAt: time.Now().UTC().Add(-time.Hour),
	}
	require.NoError(t, st.InsertHistory(first))
	advanced, err := st.AdvanceHistory("KXP2-CORO-001", types.DeploymentSuccess, "")
	require.NoError(t, err)
	require.True(t, advanced)

	// Same device is being reimaged
	second := &types.DeploymentRecord{Hostname: "KXP2-CORO-001"}
	require.NoError(t, st.InsertHistory(second))

	advanced, err = st.AdvanceHistory("KXP2-CORO-001", types.DeploymentDownloading, "")
	require.NoError(t, err)
	require.True(t, advanced)

	oldRun, err := st.GetDeployment(first.ID)
	require.NoError(t, err)
	assert.Equal(t, types.DeploymentSuccess, oldRun.Status)

	newRun, err := st.GetDeployment(second.ID)
	require.NoError(t, err)
	assert.Equal(t, types.DeploymentDownloading, newRun.Status)

	latest, err := st.LatestDeployment("KXP2-CORO-001")
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)

	_, err = st.LatestDeployment("KXP2-CORO-999")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListDeploymentsPaging(t *testing.T) {
	st := newTestStore(t)

	base := time.Now().UTC().Add(-time.Hour)
	for i := 1; i <= 5; i++ {
		rec := &types.DeploymentRecord{
			Hostname:    fmt.Sprintf("KXP2-CORO-%03d", i),
			VenueCode:   "CORO",
			ProductType: types.ProductKXP2,
			StartedAt:   base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, st.InsertHistory(rec))
	}

	page, err := st.ListDeployments(DeploymentFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "KXP2-CORO-005", page[0].Hostname)
	assert.Equal(t, "KXP2-CORO-004", page[1].Hostname)

	page, err = st.ListDeployments(DeploymentFilter{Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "KXP2-CORO-003", page[0].Hostname)

	all, err := st.ListDeployments(DeploymentFilter{Status: types.DeploymentStarted})
	require.NoError(t, err)
	assert.Len(t, all, 5)

	none, err := st.ListDeployments(DeploymentFilter{VenueCode: "MONZ"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRecentDeployments(t *testing.T) {
	st := newTestStore(t)

	base := time.Now().UTC().Add(-time.Hour)
	for i := 1; i <= 3; i++ {
		rec := &types.DeploymentRecord{
			Hostname:  fmt.Sprintf("KXP2-CORO-%03d", i),
			StartedAt: base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, st.InsertHistory(rec))
	}
	advanced, err := st.AdvanceHistory("KXP2-CORO-003", types.DeploymentSuccess, "")
	require.NoError(t, err)
	require.True(t, advanced)

	summaries, err := st.RecentDeployments(2)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, "KXP2-CORO-003", summaries[0].Hostname)
	assert.Equal(t, types.DeploymentSuccess, summaries[0].Status)
	assert.NotNil(t, summaries[0].CompletedAt)
	assert.Equal(t, "KXP2-CORO-002", summaries[1].Hostname)
	assert.Nil(t, summaries[1].CompletedAt)
}

func TestCountDeploymentsSince(t *testing.T) {
	st := newTestStore(t)
	now := time.Now().UTC()

	require.NoError(t, st.InsertHistory(&types.DeploymentRecord{
		Hostname:  "KXP2-CORO-001",
		Status:    types.DeploymentSuccess,
		StartedAt: now.Add(-48 * time.Hour),
	}))
	require.NoError(t, st.InsertHistory(&types.DeploymentRecord{
		Hostname:  "KXP2-CORO-002",
		Status:    types.DeploymentSuccess,
		StartedAt: now.Add(-time.Hour),
	}))
	require.NoError(t, st.InsertHistory(&types.DeploymentRecord{
		Hostname:  "KXP2-CORO-003",
		StartedAt: now.Add(-10 * time.Minute),
	}))

	total, successful, err := st.CountDeploymentsSince(now.Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, 1, successful)
}

func TestDashboardStatsSnapshot(t *testing.T) {
	st := newTestStore(t)
	seedTestVenue(t, st, "CORO")
	seedTestVenue(t, st, "MONZ")

	_, err := st.BulkInsertPool(types.ProductKXP2, "CORO", []string{"001", "002", "003"})
	require.NoError(t, err)

	_, err = st.AssignNextAvailable(types.ProductKXP2, "CORO", "aa:bb:cc:dd:ee:ff", "SER001")
	require.NoError(t, err)

	entry, created, err := st.EnsureSerialAssignment("CORO", "RXSERIAL", "11:22:33:44:55:66")
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, types.ProductRXP2, entry.ProductType)

	now := time.Now().UTC()
	require.NoError(t, st.InsertHistory(&types.DeploymentRecord{
		Hostname:  "KXP2-CORO-001",
		Status:    types.DeploymentSuccess,
		StartedAt: now.Add(-time.Hour),
	}))
	require.NoError(t, st.InsertHistory(&types.DeploymentRecord{
		Hostname:  "KXP2-CORO-002",
		StartedAt: now.Add(-10 * time.Minute),
	}))
	require.NoError(t, st.InsertHistory(&types.DeploymentRecord{
		Hostname:  "KXP2-CORO-003",
		Status:    types.DeploymentSuccess,
		StartedAt: now.Add(-72 * time.Hour),
	}))

	stats, err := st.DashboardStats()
	require.NoError(t, err)

	assert.Equal(t, 2, stats.TotalVenues)
	assert.Equal(t, 4, stats.TotalHostnames)
	assert.Equal(t, 2, stats.AvailableKXP2)
	assert.Equal(t, 1, stats.AssignedKXP2)
	assert.Equal(t, 0, stats.AvailableRXP2)
	assert.Equal(t, 1, stats.AssignedRXP2)
	assert.Equal(t, 2, stats.AvailableHostnames)
	assert.Equal(t, 2, stats.AssignedHostnames)

	// The 24 h window excludes the oldest run; the recent list does not
	assert.Equal(t, 2, stats.RecentDeploymentsCount)
	assert.Equal(t, 1, stats.SuccessfulDeployments)
	assert.Len(t, stats.RecentDeployments, 3)

	_, err = time.Parse(types.ISO8601, stats.Timestamp)
	assert.NoError(t, err)
}
