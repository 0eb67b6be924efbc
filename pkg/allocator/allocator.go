package allocator

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/pitlane/paddock/pkg/log"
	"github.com/pitlane/paddock/pkg/metrics"
	"github.com/pitlane/paddock/pkg/store"
	"github.com/pitlane/paddock/pkg/types"
)

// ErrInvalidInput rejects malformed venue codes, product types,
// identifiers, and hostnames before they reach the store.
var ErrInvalidInput = errors.New("invalid input")

// Store sentinels re-exported so callers translate one package's errors
// at the HTTP edge.
var (
	ErrNotFound         = store.ErrNotFound
	ErrAlreadyExists    = store.ErrAlreadyExists
	ErrExhausted        = store.ErrPoolExhausted
	ErrInsufficientPool = store.ErrInsufficientPool
	ErrBatchNotActive   = store.ErrBatchState
	ErrBatchDepleted    = store.ErrBatchDepleted
)

var venueCodePattern = regexp.MustCompile(`^[A-Z0-9]{4}$`)

// Assignment outcomes recorded in metrics.
const (
	outcomeAssigned  = "assigned"
	outcomeExhausted = "exhausted"
	outcomeInvalid   = "invalid"
	outcomeError     = "error"
)

// Allocator owns hostname assignment, venue management, pool imports,
// and deployment batches. All state lives in the store; the allocator
// adds validation, normalization, and the product-specific disciplines.
type Allocator struct {
	store  *store.Store
	logger zerolog.Logger
}

// New creates an allocator backed by the given store
func New(st *store.Store) *Allocator {
	return &Allocator{
		store:  st,
		logger: log.WithComponent("allocator"),
	}
}

// NormalizeVenueCode trims, uppercases, and validates a venue code.
// Codes are exactly four alphanumeric characters.
func NormalizeVenueCode(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !venueCodePattern.MatchString(code) {
		return "", fmt.Errorf("venue code %q must be 4 alphanumeric characters: %w", code, ErrInvalidInput)
	}
	return code, nil
}

// normalizeProduct trims, uppercases, and validates a product type.
func normalizeProduct(product string) (types.ProductType, error) {
	p := types.ProductType(strings.ToUpper(strings.TrimSpace(product)))
	if !p.Valid() {
		return "", fmt.Errorf("product type %q must be KXP2 or RXP2: %w", product, ErrInvalidInput)
	}
	return p, nil
}

// normalizeIdentifier maps a raw pool identifier onto its canonical
// form: purely numeric values are zero-padded to width 3, everything
// else is uppercased.
func normalizeIdentifier(raw string) (string, error) {
	id := strings.TrimSpace(raw)
	if id == "" {
		return "", fmt.Errorf("empty identifier: %w", ErrInvalidInput)
	}
	if isDigits(id) {
		if n, err := strconv.Atoi(id); err == nil {
			return fmt.Sprintf("%03d", n), nil
		}
		// Numeric but too large for an int; keep the digits as given.
		return id, nil
	}
	return strings.ToUpper(id), nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// CreateVenue registers a new venue after normalizing its code
func (a *Allocator) CreateVenue(code, name, location, email string) error {
	normalized, err := NormalizeVenueCode(code)
	if err != nil {
		return err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("venue name is required: %w", ErrInvalidInput)
	}

	venue := &types.Venue{
		Code:         normalized,
		Name:         name,
		Location:     strings.TrimSpace(location),
		ContactEmail: strings.TrimSpace(email),
	}
	return a.store.CreateVenue(venue)
}

// UpdateVenue replaces a venue's mutable fields. The code itself never
// changes; assigned hostnames embed it.
func (a *Allocator) UpdateVenue(code, name, location, email string) error {
	normalized, err := NormalizeVenueCode(code)
	if err != nil {
		return err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("venue name is required: %w", ErrInvalidInput)
	}
	return a.store.UpdateVenue(normalized, name, strings.TrimSpace(location), strings.TrimSpace(email))
}

// GetVenue returns one venue by code
func (a *Allocator) GetVenue(code string) (*types.Venue, error) {
	normalized, err := NormalizeVenueCode(code)
	if err != nil {
		return nil, err
	}
	return a.store.GetVenue(normalized)
}

// ListVenues returns every venue with its per-product pool counts
func (a *Allocator) ListVenues() ([]*types.VenueSummary, error) {
	return a.store.ListVenues()
}

// VenueStats returns pool counts for one venue
func (a *Allocator) VenueStats(code string) (*types.VenueStats, error) {
	normalized, err := NormalizeVenueCode(code)
	if err != nil {
		return nil, err
	}
	return a.store.VenueStats(normalized)
}

// BulkImport normalizes and loads identifiers into a venue's pool.
// Identifiers already present count as duplicates, never an error, so
// Imported + Duplicates always equals len(ids). The venue must exist.
func (a *Allocator) BulkImport(venue, product string, ids []string) (types.ImportResult, error) {
	code, err := NormalizeVenueCode(venue)
	if err != nil {
		return types.ImportResult{}, err
	}
	productType, err := normalizeProduct(product)
	if err != nil {
		return types.ImportResult{}, err
	}
	if _, err := a.store.GetVenue(code); err != nil {
		return types.ImportResult{}, err
	}

	normalized := make([]string, 0, len(ids))
	for _, raw := range ids {
		id, err := normalizeIdentifier(raw)
		if err != nil {
			return types.ImportResult{}, err
		}
		normalized = append(normalized, id)
	}

	result, err := a.store.BulkInsertPool(productType, code, normalized)
	if err != nil {
		return types.ImportResult{}, err
	}
	return *result, nil
}

// Assign draws a hostname for a device. KXP2 consumes the smallest
// available identifier from the venue's pre-loaded pool; RXP2 derives
// the identifier from the device serial and is idempotent per serial.
func (a *Allocator) Assign(product, venue, mac, serial string) (string, error) {
	productType, err := normalizeProduct(product)
	if err != nil {
		metrics.AssignmentsTotal.WithLabelValues("unknown", outcomeInvalid).Inc()
		return "", err
	}
	code, err := NormalizeVenueCode(venue)
	if err != nil {
		metrics.AssignmentsTotal.WithLabelValues(string(productType), outcomeInvalid).Inc()
		return "", err
	}
	mac = strings.TrimSpace(mac)
	serial = strings.TrimSpace(serial)

	var entry *types.PoolEntry
	switch productType {
	case types.ProductKXP2:
		entry, err = a.store.AssignNextAvailable(productType, code, mac, serial)
	case types.ProductRXP2:
		if serial == "" {
			metrics.AssignmentsTotal.WithLabelValues(string(productType), outcomeInvalid).Inc()
			return "", fmt.Errorf("RXP2 assignment requires a serial number: %w", ErrInvalidInput)
		}
		entry, _, err = a.store.EnsureSerialAssignment(code, serial, mac)
	}
	if err != nil {
		metrics.AssignmentsTotal.WithLabelValues(string(productType), assignOutcome(err)).Inc()
		return "", err
	}

	metrics.AssignmentsTotal.WithLabelValues(string(productType), outcomeAssigned).Inc()
	return entry.Hostname(), nil
}

// Release returns an assigned hostname to the available pool. The
// hostname must parse as PRODUCT-VENUE-IDENTIFIER.
func (a *Allocator) Release(hostname string) error {
	product, code, identifier, err := types.ParseHostname(strings.TrimSpace(hostname))
	if err != nil {
		return fmt.Errorf("%s: %w", err, ErrInvalidInput)
	}
	return a.store.ReleaseByTriple(product, code, identifier)
}

// Retire permanently removes a hostname from circulation. The entry is
// kept for audit and never handed out again.
func (a *Allocator) Retire(hostname string) error {
	product, code, identifier, err := types.ParseHostname(strings.TrimSpace(hostname))
	if err != nil {
		return fmt.Errorf("%s: %w", err, ErrInvalidInput)
	}
	return a.store.RetireByTriple(product, code, identifier)
}

// ListPool returns pool entries matching the filters. Empty filters
// match everything.
func (a *Allocator) ListPool(venue, product, status string) ([]*types.PoolEntry, error) {
	var (
		code        string
		productType types.ProductType
		err         error
	)
	if venue != "" {
		code, err = NormalizeVenueCode(venue)
		if err != nil {
			return nil, err
		}
	}
	if product != "" {
		productType, err = normalizeProduct(product)
		if err != nil {
			return nil, err
		}
	}
	poolStatus := types.PoolStatus(strings.ToLower(strings.TrimSpace(status)))
	switch poolStatus {
	case "", types.PoolAvailable, types.PoolAssigned, types.PoolRetired:
	default:
		return nil, fmt.Errorf("unknown pool status %q: %w", status, ErrInvalidInput)
	}
	return a.store.ListPool(productType, code, poolStatus)
}

// CreateBatch queues a deployment batch for a venue. KXP2 batches
// require enough available pool entries to cover the count; RXP2
// entries are serial-derived so no pre-check applies.
func (a *Allocator) CreateBatch(venue, product string, total, priority int) (int64, error) {
	code, err := NormalizeVenueCode(venue)
	if err != nil {
		return 0, err
	}
	productType, err := normalizeProduct(product)
	if err != nil {
		return 0, err
	}
	if total <= 0 {
		return 0, fmt.Errorf("batch count must be positive, got %d: %w", total, ErrInvalidInput)
	}

	batch, err := a.store.CreateBatch(code, productType, total, priority)
	if err != nil {
		return 0, err
	}
	return batch.ID, nil
}

// StartBatch activates a pending or paused batch
func (a *Allocator) StartBatch(id int64) error {
	return a.store.StartBatch(id)
}

// PauseBatch pauses an active batch
func (a *Allocator) PauseBatch(id int64) error {
	return a.store.PauseBatch(id)
}

// UpdateBatchPriority changes a batch's scheduling priority
func (a *Allocator) UpdateBatchPriority(id int64, priority int) error {
	return a.store.SetBatchPriority(id, priority)
}

// GetBatch returns one batch by id
func (a *Allocator) GetBatch(id int64) (*types.DeploymentBatch, error) {
	return a.store.GetBatch(id)
}

// GetActiveBatch returns the active batch with the highest priority,
// oldest first on ties, or ErrNotFound when no batch is active.
func (a *Allocator) GetActiveBatch() (*types.DeploymentBatch, error) {
	return a.store.ActiveBatch()
}

// ListBatches returns batches matching the filters. Empty filters match
// everything.
func (a *Allocator) ListBatches(venue, status string) ([]*types.DeploymentBatch, error) {
	var (
		code string
		err  error
	)
	if venue != "" {
		code, err = NormalizeVenueCode(venue)
		if err != nil {
			return nil, err
		}
	}
	batchStatus := types.BatchStatus(strings.ToLower(strings.TrimSpace(status)))
	switch batchStatus {
	case "", types.BatchPending, types.BatchActive, types.BatchPaused, types.BatchCompleted, types.BatchCancelled:
	default:
		return nil, fmt.Errorf("unknown batch status %q: %w", status, ErrInvalidInput)
	}
	return a.store.ListBatches(code, batchStatus)
}

// AssignFromBatch draws a hostname under a batch and consumes one slot.
// The batch must be active with remaining slots; the final draw
// completes the batch.
func (a *Allocator) AssignFromBatch(id int64, mac, serial string) (string, error) {
	entry, batch, err := a.store.AssignFromBatch(id, strings.TrimSpace(mac), strings.TrimSpace(serial))
	if err != nil {
		product := "unknown"
		if b, berr := a.store.GetBatch(id); berr == nil {
			product = string(b.ProductType)
		}
		metrics.AssignmentsTotal.WithLabelValues(product, assignOutcome(err)).Inc()
		return "", err
	}

	metrics.AssignmentsTotal.WithLabelValues(string(batch.ProductType), outcomeAssigned).Inc()
	if batch.Status == types.BatchCompleted {
		a.logger.Info().
			Int64("batch_id", batch.ID).
			Str("venue_code", batch.VenueCode).
			Int("total", batch.TotalCount).
			Msg("Batch fulfilled by final assignment")
	}
	return entry.Hostname(), nil
}

// assignOutcome maps an assignment error onto its metrics label
func assignOutcome(err error) string {
	switch {
	case errors.Is(err, ErrExhausted):
		return outcomeExhausted
	case errors.Is(err, ErrInvalidInput):
		return outcomeInvalid
	default:
		return outcomeError
	}
}
