package allocator

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitlane/paddock/pkg/store"
	"github.com/pitlane/paddock/pkg/types"
)

func newTestAllocator(t *testing.T) *Allocator {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "paddock.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate())
	t.Cleanup(func() { _ = st.Close() })

	return New(st)
}

func seedVenue(t *testing.T, a *Allocator, code string) {
	t.Helper()
	require.NoError(t, a.CreateVenue(code, code+" Speedway", "", ""))
}

func TestNormalizeVenueCode(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		want    string
		wantErr bool
	}{
		{name: "lowercase with spaces", code: " monz ", want: "MONZ"},
		{name: "already canonical", code: "SPA1", want: "SPA1"},
		{name: "digits only", code: "1234", want: "1234"},
		{name: "too short", code: "ABC", wantErr: true},
		{name: "too long", code: "ABCDE", wantErr: true},
		{name: "punctuation", code: "AB-C", wantErr: true},
		{name: "empty", code: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeVenueCode(tt.code)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeIdentifier(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{name: "single digit padded", raw: "1", want: "001"},
		{name: "two digits padded", raw: "02", want: "002"},
		{name: "already padded", raw: "010", want: "010"},
		{name: "three digits", raw: "100", want: "100"},
		{name: "wider than pad", raw: "1000", want: "1000"},
		{name: "whitespace trimmed", raw: " 7 ", want: "007"},
		{name: "alphanumeric uppercased", raw: "a5x", want: "A5X"},
		{name: "empty", raw: "", wantErr: true},
		{name: "blank", raw: "   ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := normalizeIdentifier(tt.raw)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCreateVenue(t *testing.T) {
	a := newTestAllocator(t)

	require.NoError(t, a.CreateVenue("monz", "Monza Indoor", "Monza", "ops@example.com"))

	venue, err := a.GetVenue("MONZ")
	require.NoError(t, err)
	assert.Equal(t, "MONZ", venue.Code)
	assert.Equal(t, "Monza Indoor", venue.Name)

	err = a.CreateVenue("MONZ", "Duplicate", "", "")
	assert.ErrorIs(t, err, ErrAlreadyExists)

	err = a.CreateVenue("TOOLONG", "Bad Code", "", "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	err = a.CreateVenue("SPA1", "   ", "", "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestUpdateVenue(t *testing.T) {
	a := newTestAllocator(t)
	seedVenue(t, a, "MONZ")

	require.NoError(t, a.UpdateVenue("monz", "Monza Renamed", "Lombardy", "new@example.com"))

	venue, err := a.GetVenue("MONZ")
	require.NoError(t, err)
	assert.Equal(t, "Monza Renamed", venue.Name)
	assert.Equal(t, "Lombardy", venue.Location)

	assert.ErrorIs(t, a.UpdateVenue("NOPE", "Ghost", "", ""), ErrNotFound)
	assert.ErrorIs(t, a.UpdateVenue("MONZ", "", "", ""), ErrInvalidInput)
}

func TestBulkImport(t *testing.T) {
	a := newTestAllocator(t)
	seedVenue(t, a, "MONZ")

	result, err := a.BulkImport("monz", "kxp2", []string{"1", "02", "010", "100"})
	require.NoError(t, err)
	assert.Equal(t, 4, result.Imported)
	assert.Equal(t, 0, result.Duplicates)

	entries, err := a.ListPool("MONZ", "KXP2", "available")
	require.NoError(t, err)
	require.Len(t, entries, 4)
	got := make([]string, 0, len(entries))
	for _, e := range entries {
		got = append(got, e.Identifier)
	}
	assert.Equal(t, []string{"001", "002", "010", "100"}, got)

	// Re-importing the same numbers counts every one as a duplicate,
	// even under different spellings of the same identifier.
	result, err = a.BulkImport("MONZ", "KXP2", []string{"1", "2", "10", "100"})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Imported)
	assert.Equal(t, 4, result.Duplicates)
}

func TestBulkImportValidation(t *testing.T) {
	a := newTestAllocator(t)
	seedVenue(t, a, "MONZ")

	_, err := a.BulkImport("GHST", "KXP2", []string{"1"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = a.BulkImport("MONZ", "XXXX", []string{"1"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = a.BulkImport("MONZ", "KXP2", []string{"1", "  "})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestAssignKXP2(t *testing.T) {
	a := newTestAllocator(t)
	seedVenue(t, a, "MONZ")

	_, err := a.BulkImport("MONZ", "KXP2", []string{"5", "3"})
	require.NoError(t, err)

	// Smallest identifier first, regardless of import order.
	hostname, err := a.Assign("KXP2", "monz", "AA:BB:CC:DD:EE:01", "SER001")
	require.NoError(t, err)
	assert.Equal(t, "KXP2-MONZ-003", hostname)

	hostname, err = a.Assign("KXP2", "MONZ", "AA:BB:CC:DD:EE:02", "SER002")
	require.NoError(t, err)
	assert.Equal(t, "KXP2-MONZ-005", hostname)

	// Pool is now empty.
	_, err = a.Assign("KXP2", "MONZ", "AA:BB:CC:DD:EE:03", "SER003")
	assert.ErrorIs(t, err, ErrExhausted)

	assigned, err := a.ListPool("MONZ", "KXP2", "assigned")
	require.NoError(t, err)
	assert.Len(t, assigned, 2)
	assert.Equal(t, "AA:BB:CC:DD:EE:01", assigned[0].MACAddress)
	assert.Equal(t, "SER001", assigned[0].SerialNumber)
}

func TestAssignValidation(t *testing.T) {
	a := newTestAllocator(t)

	_, err := a.Assign("FOO2", "MONZ", "", "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = a.Assign("KXP2", "bad code", "", "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = a.Assign("RXP2", "MONZ", "AA:BB:CC:DD:EE:01", "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestAssignRXP2(t *testing.T) {
	a := newTestAllocator(t)
	seedVenue(t, a, "MONZ")

	// Identifier is the last 8 characters of the serial, uppercased.
	hostname, err := a.Assign("RXP2", "MONZ", "AA:BB:CC:DD:EE:01", "abc123xyz9")
	require.NoError(t, err)
	assert.Equal(t, "RXP2-MONZ-C123XYZ9", hostname)

	// Same serial resolves to the same hostname without a second row.
	again, err := a.Assign("RXP2", "MONZ", "AA:BB:CC:DD:EE:01", "abc123xyz9")
	require.NoError(t, err)
	assert.Equal(t, hostname, again)

	entries, err := a.ListPool("MONZ", "RXP2", "")
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	// Serials shorter than 8 characters are used whole.
	short, err := a.Assign("RXP2", "MONZ", "", "ab12")
	require.NoError(t, err)
	assert.Equal(t, "RXP2-MONZ-AB12", short)
}

func TestReleaseRecyclesHostname(t *testing.T) {
	a := newTestAllocator(t)
	seedVenue(t, a, "MONZ")

	_, err := a.BulkImport("MONZ", "KXP2", []string{"1"})
	require.NoError(t, err)

	hostname, err := a.Assign("KXP2", "MONZ", "AA:BB:CC:DD:EE:01", "SER001")
	require.NoError(t, err)

	_, err = a.Assign("KXP2", "MONZ", "", "")
	require.ErrorIs(t, err, ErrExhausted)

	require.NoError(t, a.Release(hostname))

	available, err := a.ListPool("MONZ", "KXP2", "available")
	require.NoError(t, err)
	require.Len(t, available, 1)
	assert.Empty(t, available[0].MACAddress)
	assert.Empty(t, available[0].SerialNumber)
	assert.Nil(t, available[0].AssignedAt)

	// The released identifier goes back into rotation.
	again, err := a.Assign("KXP2", "MONZ", "AA:BB:CC:DD:EE:02", "SER002")
	require.NoError(t, err)
	assert.Equal(t, hostname, again)
}

func TestReleaseErrors(t *testing.T) {
	a := newTestAllocator(t)

	assert.ErrorIs(t, a.Release("KXP2-MONZ-999"), ErrNotFound)
	assert.ErrorIs(t, a.Release("not-a-hostname-with-four-parts"), ErrInvalidInput)
	assert.ErrorIs(t, a.Release("KXP2MONZ001"), ErrInvalidInput)
}

func TestRetire(t *testing.T) {
	a := newTestAllocator(t)
	seedVenue(t, a, "MONZ")

	_, err := a.BulkImport("MONZ", "KXP2", []string{"1"})
	require.NoError(t, err)

	require.NoError(t, a.Retire("KXP2-MONZ-001"))

	// Retired entries never come back out of the pool.
	_, err = a.Assign("KXP2", "MONZ", "", "")
	assert.ErrorIs(t, err, ErrExhausted)

	retired, err := a.ListPool("MONZ", "KXP2", "retired")
	require.NoError(t, err)
	assert.Len(t, retired, 1)
}

func TestCreateBatchValidation(t *testing.T) {
	a := newTestAllocator(t)
	seedVenue(t, a, "MONZ")

	_, err := a.CreateBatch("MONZ", "KXP2", 0, 0)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = a.CreateBatch("MONZ", "FOO2", 5, 0)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = a.CreateBatch("GHST", "KXP2", 5, 0)
	assert.ErrorIs(t, err, ErrNotFound)

	// KXP2 batches need enough available pool entries up front.
	_, err = a.CreateBatch("MONZ", "KXP2", 5, 0)
	assert.ErrorIs(t, err, ErrInsufficientPool)

	// RXP2 entries are serial-derived, so no pool pre-check applies.
	_, err = a.CreateBatch("MONZ", "RXP2", 5, 0)
	assert.NoError(t, err)
}

func TestBatchLifecycle(t *testing.T) {
	a := newTestAllocator(t)
	seedVenue(t, a, "MONZ")

	_, err := a.BulkImport("MONZ", "KXP2", []string{"1", "2", "3"})
	require.NoError(t, err)

	id, err := a.CreateBatch("MONZ", "KXP2", 2, 10)
	require.NoError(t, err)

	batch, err := a.GetBatch(id)
	require.NoError(t, err)
	assert.Equal(t, types.BatchPending, batch.Status)
	assert.Equal(t, 2, batch.RemainingCount)
	assert.Nil(t, batch.StartedAt)

	// Pending batches are not eligible for assignment.
	_, err = a.GetActiveBatch()
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = a.AssignFromBatch(id, "AA:BB:CC:DD:EE:01", "SER001")
	assert.ErrorIs(t, err, ErrBatchNotActive)

	require.NoError(t, a.StartBatch(id))
	batch, err = a.GetActiveBatch()
	require.NoError(t, err)
	assert.Equal(t, id, batch.ID)
	require.NotNil(t, batch.StartedAt)
	firstStart := *batch.StartedAt

	// Starting an active batch is a no-op.
	require.NoError(t, a.StartBatch(id))

	hostname, err := a.AssignFromBatch(id, "AA:BB:CC:DD:EE:01", "SER001")
	require.NoError(t, err)
	assert.Equal(t, "KXP2-MONZ-001", hostname)

	batch, err = a.GetBatch(id)
	require.NoError(t, err)
	assert.Equal(t, 1, batch.RemainingCount)

	// Pause blocks assignment; resume keeps the original start time.
	require.NoError(t, a.PauseBatch(id))
	_, err = a.AssignFromBatch(id, "AA:BB:CC:DD:EE:02", "SER002")
	assert.ErrorIs(t, err, ErrBatchNotActive)
	require.NoError(t, a.PauseBatch(id)) // no-op
	require.NoError(t, a.StartBatch(id))
	batch, err = a.GetBatch(id)
	require.NoError(t, err)
	require.NotNil(t, batch.StartedAt)
	assert.Equal(t, firstStart, *batch.StartedAt)

	// The final draw completes the batch.
	_, err = a.AssignFromBatch(id, "AA:BB:CC:DD:EE:02", "SER002")
	require.NoError(t, err)

	batch, err = a.GetBatch(id)
	require.NoError(t, err)
	assert.Equal(t, types.BatchCompleted, batch.Status)
	assert.Equal(t, 0, batch.RemainingCount)
	assert.NotNil(t, batch.CompletedAt)

	_, err = a.AssignFromBatch(id, "AA:BB:CC:DD:EE:03", "SER003")
	assert.ErrorIs(t, err, ErrBatchNotActive)
	assert.ErrorIs(t, a.StartBatch(id), ErrBatchNotActive)

	_, err = a.GetActiveBatch()
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestActiveBatchPriorityOrder(t *testing.T) {
	a := newTestAllocator(t)
	seedVenue(t, a, "MONZ")
	seedVenue(t, a, "SPA1")

	low, err := a.CreateBatch("MONZ", "RXP2", 5, 1)
	require.NoError(t, err)
	high, err := a.CreateBatch("SPA1", "RXP2", 5, 9)
	require.NoError(t, err)
	tied, err := a.CreateBatch("MONZ", "RXP2", 5, 9)
	require.NoError(t, err)

	require.NoError(t, a.StartBatch(low))
	require.NoError(t, a.StartBatch(high))
	require.NoError(t, a.StartBatch(tied))

	// Highest priority wins; the older batch wins ties.
	active, err := a.GetActiveBatch()
	require.NoError(t, err)
	assert.Equal(t, high, active.ID)

	require.NoError(t, a.PauseBatch(high))
	active, err = a.GetActiveBatch()
	require.NoError(t, err)
	assert.Equal(t, tied, active.ID)

	// Raising a priority reorders the queue.
	require.NoError(t, a.UpdateBatchPriority(low, 20))
	active, err = a.GetActiveBatch()
	require.NoError(t, err)
	assert.Equal(t, low, active.ID)
}

func TestListBatches(t *testing.T) {
	a := newTestAllocator(t)
	seedVenue(t, a, "MONZ")
	seedVenue(t, a, "SPA1")

	for i := 0; i < 2; i++ {
		_, err := a.CreateBatch("MONZ", "RXP2", 5, i)
		require.NoError(t, err)
	}
	spa, err := a.CreateBatch("SPA1", "RXP2", 5, 0)
	require.NoError(t, err)
	require.NoError(t, a.StartBatch(spa))

	all, err := a.ListBatches("", "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	monz, err := a.ListBatches("monz", "")
	require.NoError(t, err)
	assert.Len(t, monz, 2)

	active, err := a.ListBatches("", "active")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, spa, active[0].ID)

	_, err = a.ListBatches("", "bogus")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRXP2BatchAssignment(t *testing.T) {
	a := newTestAllocator(t)
	seedVenue(t, a, "MONZ")

	id, err := a.CreateBatch("MONZ", "RXP2", 2, 0)
	require.NoError(t, err)
	require.NoError(t, a.StartBatch(id))

	hostname, err := a.AssignFromBatch(id, "AA:BB:CC:DD:EE:01", "SN12345678")
	require.NoError(t, err)
	assert.Equal(t, "RXP2-MONZ-12345678", hostname)

	hostname, err = a.AssignFromBatch(id, "AA:BB:CC:DD:EE:02", "SN87654321")
	require.NoError(t, err)
	assert.Equal(t, "RXP2-MONZ-87654321", hostname)

	batch, err := a.GetBatch(id)
	require.NoError(t, err)
	assert.Equal(t, types.BatchCompleted, batch.Status)
}

func TestListPoolValidation(t *testing.T) {
	a := newTestAllocator(t)

	_, err := a.ListPool("", "", "bogus")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = a.ListPool("bad!", "", "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = a.ListPool("", "FOO2", "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestConcurrentAssignNoDoubleIssue(t *testing.T) {
	a := newTestAllocator(t)
	seedVenue(t, a, "MONZ")

	const n = 10
	ids := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		ids = append(ids, fmt.Sprintf("%d", i))
	}
	_, err := a.BulkImport("MONZ", "KXP2", ids)
	require.NoError(t, err)

	results := make(chan string, n)
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func(i int) {
			hostname, err := a.Assign("KXP2", "MONZ", fmt.Sprintf("AA:BB:CC:DD:EE:%02d", i), fmt.Sprintf("SER%03d", i))
			if err != nil {
				errs <- err
				return
			}
			results <- hostname
		}(i)
	}

	seen := make(map[string]bool)
	for i := 0; i < n; i++ {
		select {
		case hostname := <-results:
			assert.False(t, seen[hostname], "hostname %s issued twice", hostname)
			seen[hostname] = true
		case err := <-errs:
			t.Fatalf("assignment failed: %v", err)
		}
	}
	assert.Len(t, seen, n)
}
