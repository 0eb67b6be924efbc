package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pitlane/paddock/pkg/types"
)

// poolColumns is the select list every pool query shares.
const poolColumns = `id, product_type, venue_code, identifier, status,
	mac_address, serial_number, assigned_at, notes, created_at`

// InsertPoolEntry adds a single hostname slot. A duplicate
// (product, venue, identifier) triple returns ErrAlreadyExists.
func (s *Store) InsertPoolEntry(e *types.PoolEntry) error {
	if e.Status == "" {
		e.Status = types.PoolAvailable
	}
	now := time.Now().UTC()
	res, err := s.db.Exec(
		`INSERT INTO hostname_pool
		 (product_type, venue_code, identifier, status, mac_address, serial_number, assigned_at, notes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ProductType, e.VenueCode, e.Identifier, e.Status,
		nullableString(e.MACAddress), nullableString(e.SerialNumber),
		e.AssignedAt, nullableString(e.Notes), now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("pool entry %s: %w", e.Hostname(), ErrAlreadyExists)
		}
		return fmt.Errorf("failed to insert pool entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read pool entry id: %w", err)
	}
	e.ID = id
	e.CreatedAt = now
	return nil
}

// BulkInsertPool inserts a set of pre-normalized identifiers as available
// entries in one transaction. Identifiers already present are counted as
// duplicates and skipped, never an error.
func (s *Store) BulkInsertPool(product types.ProductType, venueCode string, identifiers []string) (*types.ImportResult, error) {
	result := &types.ImportResult{}
	if len(identifiers) == 0 {
		return result, nil
	}

	now := time.Now().UTC()
	err := s.withTx(func(tx *sql.Tx) error {
		for _, identifier := range identifiers {
			res, err := tx.Exec(
				`INSERT OR IGNORE INTO hostname_pool
				 (product_type, venue_code, identifier, status, created_at)
				 VALUES (?, ?, ?, 'available', ?)`,
				product, venueCode, identifier, now,
			)
			if err != nil {
				return fmt.Errorf("failed to import identifier %s: %w", identifier, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to read import result: %w", err)
			}
			if n == 0 {
				result.Duplicates++
				continue
			}
			result.Imported++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("venue_code", venueCode).
		Str("product_type", string(product)).
		Int("imported", result.Imported).
		Int("duplicates", result.Duplicates).
		Msg("Pool import finished")
	return result, nil
}

// AssignNextAvailable draws the smallest available identifier for the
// (product, venue) pair, marks it assigned, and records the device's MAC
// and serial. An empty pool returns ErrPoolExhausted. The select and the
// update run in one transaction so concurrent draws never hand out the
// same entry.
func (s *Store) AssignNextAvailable(product types.ProductType, venueCode, mac, serial string) (*types.PoolEntry, error) {
	var entry *types.PoolEntry
	err := s.withTx(func(tx *sql.Tx) error {
		var txErr error
		entry, txErr = assignNextAvailableTx(tx, product, venueCode, mac, serial)
		return txErr
	})
	if err != nil {
		if isBusy(err) {
			// Retries are exhausted; surface as a pool problem rather
			// than a raw driver conflict.
			return nil, fmt.Errorf("%s pool for %s: %w", product, venueCode, ErrPoolExhausted)
		}
		return nil, err
	}
	s.logger.Info().Str("hostname", entry.Hostname()).Msg("Hostname assigned")
	return entry, nil
}

func assignNextAvailableTx(tx querier, product types.ProductType, venueCode, mac, serial string) (*types.PoolEntry, error) {
	var (
		id         int64
		identifier string
	)
	err := tx.QueryRow(
		`SELECT id, identifier FROM hostname_pool
		 WHERE product_type = ? AND venue_code = ? AND status = 'available'
		 ORDER BY identifier
		 LIMIT 1`,
		product, venueCode,
	).Scan(&id, &identifier)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%s pool for %s: %w", product, venueCode, ErrPoolExhausted)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query available pool: %w", err)
	}

	now := time.Now().UTC()
	if _, err := tx.Exec(
		`UPDATE hostname_pool
		 SET status = 'assigned', mac_address = ?, serial_number = ?, assigned_at = ?
		 WHERE id = ?`,
		nullableString(mac), nullableString(serial), now, id,
	); err != nil {
		return nil, fmt.Errorf("failed to mark entry assigned: %w", err)
	}

	return &types.PoolEntry{
		ID:           id,
		ProductType:  product,
		VenueCode:    venueCode,
		Identifier:   identifier,
		Status:       types.PoolAssigned,
		MACAddress:   mac,
		SerialNumber: serial,
		AssignedAt:   &now,
	}, nil
}

// EnsureSerialAssignment resolves a serial-derived entry for the venue,
// creating it as assigned when it does not exist yet. The returned bool
// reports whether a new row was created. Calling it again with the same
// serial returns the existing row untouched.
func (s *Store) EnsureSerialAssignment(venueCode, serial, mac string) (*types.PoolEntry, bool, error) {
	var (
		entry   *types.PoolEntry
		created bool
	)
	err := s.withTx(func(tx *sql.Tx) error {
		var txErr error
		entry, created, txErr = ensureSerialAssignmentTx(tx, venueCode, serial, mac)
		return txErr
	})
	if err != nil {
		return nil, false, err
	}
	if created {
		s.logger.Info().Str("hostname", entry.Hostname()).Msg("Hostname assigned")
	} else {
		s.logger.Debug().Str("hostname", entry.Hostname()).Msg("Hostname already assigned to serial")
	}
	return entry, created, nil
}

func ensureSerialAssignmentTx(tx querier, venueCode, serial, mac string) (*types.PoolEntry, bool, error) {
	identifier := types.RXP2Identifier(serial)

	existing, err := getPoolEntry(tx, types.ProductRXP2, venueCode, identifier)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	now := time.Now().UTC()
	res, err := tx.Exec(
		`INSERT INTO hostname_pool
		 (product_type, venue_code, identifier, status, mac_address, serial_number, assigned_at, created_at)
		 VALUES ('RXP2', ?, ?, 'assigned', ?, ?, ?, ?)`,
		venueCode, identifier, nullableString(mac), nullableString(serial), now, now,
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert serial entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, false, fmt.Errorf("failed to read pool entry id: %w", err)
	}

	return &types.PoolEntry{
		ID:           id,
		ProductType:  types.ProductRXP2,
		VenueCode:    venueCode,
		Identifier:   identifier,
		Status:       types.PoolAssigned,
		MACAddress:   mac,
		SerialNumber: serial,
		AssignedAt:   &now,
		CreatedAt:    now,
	}, true, nil
}

// ReleaseByTriple returns an entry to the available pool, clearing the
// recorded MAC, serial, and assignment time. The row itself is kept.
func (s *Store) ReleaseByTriple(product types.ProductType, venueCode, identifier string) error {
	res, err := s.db.Exec(
		`UPDATE hostname_pool
		 SET status = 'available', mac_address = NULL, serial_number = NULL, assigned_at = NULL
		 WHERE product_type = ? AND venue_code = ? AND identifier = ?`,
		product, venueCode, identifier,
	)
	if err != nil {
		return fmt.Errorf("failed to release entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read release result: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("pool entry %s: %w", types.BuildHostname(product, venueCode, identifier), ErrNotFound)
	}
	s.logger.Info().
		Str("hostname", types.BuildHostname(product, venueCode, identifier)).
		Msg("Hostname released")
	return nil
}

// RetireByTriple permanently removes an entry from circulation. The MAC
// and serial are kept for audit; only the status changes.
func (s *Store) RetireByTriple(product types.ProductType, venueCode, identifier string) error {
	res, err := s.db.Exec(
		`UPDATE hostname_pool SET status = 'retired'
		 WHERE product_type = ? AND venue_code = ? AND identifier = ?`,
		product, venueCode, identifier,
	)
	if err != nil {
		return fmt.Errorf("failed to retire entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read retire result: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("pool entry %s: %w", types.BuildHostname(product, venueCode, identifier), ErrNotFound)
	}
	s.logger.Info().
		Str("hostname", types.BuildHostname(product, venueCode, identifier)).
		Msg("Hostname retired")
	return nil
}

// GetPoolEntry returns the entry for a (product, venue, identifier)
// triple, or ErrNotFound.
func (s *Store) GetPoolEntry(product types.ProductType, venueCode, identifier string) (*types.PoolEntry, error) {
	return getPoolEntry(s.db, product, venueCode, identifier)
}

func getPoolEntry(tx querier, product types.ProductType, venueCode, identifier string) (*types.PoolEntry, error) {
	row := tx.QueryRow(
		`SELECT `+poolColumns+` FROM hostname_pool
		 WHERE product_type = ? AND venue_code = ? AND identifier = ?`,
		product, venueCode, identifier,
	)
	entry, err := scanPoolEntry(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("pool entry %s: %w", types.BuildHostname(product, venueCode, identifier), ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan pool entry: %w", err)
	}
	return entry, nil
}

// ListPool returns pool entries matching the given filters. Empty filter
// values match everything. Results are ordered by product, venue, then
// identifier.
func (s *Store) ListPool(product types.ProductType, venueCode string, status types.PoolStatus) ([]*types.PoolEntry, error) {
	query := `SELECT ` + poolColumns + ` FROM hostname_pool WHERE 1=1`
	var args []interface{}

	if product != "" {
		query += ` AND product_type = ?`
		args = append(args, product)
	}
	if venueCode != "" {
		query += ` AND venue_code = ?`
		args = append(args, venueCode)
	}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY product_type, venue_code, identifier`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list pool: %w", err)
	}
	defer rows.Close()

	var entries []*types.PoolEntry
	for rows.Next() {
		entry, err := scanPoolEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pool entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// CountPool counts entries matching the filters. Empty filter values
// match everything.
func (s *Store) CountPool(product types.ProductType, venueCode string, status types.PoolStatus) (int, error) {
	query := `SELECT COUNT(*) FROM hostname_pool WHERE 1=1`
	var args []interface{}

	if product != "" {
		query += ` AND product_type = ?`
		args = append(args, product)
	}
	if venueCode != "" {
		query += ` AND venue_code = ?`
		args = append(args, venueCode)
	}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}

	var count int
	if err := s.db.QueryRow(query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count pool: %w", err)
	}
	return count, nil
}

// rowScanner abstracts sql.Row and sql.Rows for the shared scan helpers.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanPoolEntry reads one pool row. sql.ErrNoRows passes through for the
// caller to translate.
func scanPoolEntry(row rowScanner) (*types.PoolEntry, error) {
	var (
		e          types.PoolEntry
		mac        sql.NullString
		serial     sql.NullString
		assignedAt sql.NullTime
		notes      sql.NullString
	)
	if err := row.Scan(
		&e.ID, &e.ProductType, &e.VenueCode, &e.Identifier, &e.Status,
		&mac, &serial, &assignedAt, &notes, &e.CreatedAt,
	); err != nil {
		return nil, err
	}
	e.MACAddress = mac.String
	e.SerialNumber = serial.String
	e.AssignedAt = timePtr(assignedAt)
	e.Notes = notes.String
	return &e, nil
}
