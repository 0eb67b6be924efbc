package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/pitlane/paddock/pkg/types"
)

// CreateVenue inserts a new venue. The venue's ID and CreatedAt are
// filled in on success. A duplicate code returns ErrAlreadyExists.
func (s *Store) CreateVenue(v *types.Venue) error {
	now := time.Now().UTC()
	res, err := s.db.Exec(
		`INSERT INTO venues (code, name, location, contact_email, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		v.Code, v.Name, nullableString(v.Location), nullableString(v.ContactEmail), now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("venue %s: %w", v.Code, ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create venue: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read venue id: %w", err)
	}
	v.ID = id
	v.CreatedAt = now

	s.logger.Info().Str("venue_code", v.Code).Str("name", v.Name).Msg("Venue created")
	return nil
}

// GetVenue returns the venue with the given code, or ErrNotFound.
func (s *Store) GetVenue(code string) (*types.Venue, error) {
	row := s.db.QueryRow(
		`SELECT id, code, name, location, contact_email, created_at
		 FROM venues WHERE code = ?`, code,
	)
	return scanVenue(row)
}

// UpdateVenue replaces the mutable fields of a venue. The code itself is
// immutable; pool rows and batches reference it.
func (s *Store) UpdateVenue(code, name, location, email string) error {
	res, err := s.db.Exec(
		`UPDATE venues SET name = ?, location = ?, contact_email = ? WHERE code = ?`,
		name, nullableString(location), nullableString(email), code,
	)
	if err != nil {
		return fmt.Errorf("failed to update venue: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("venue %s: %w", code, ErrNotFound)
	}
	s.logger.Info().Str("venue_code", code).Msg("Venue updated")
	return nil
}

// ListVenues returns every venue with its per-product pool counts,
// ordered by code.
func (s *Store) ListVenues() ([]*types.VenueSummary, error) {
	rows, err := s.db.Query(
		`SELECT
		    v.id, v.code, v.name, v.location, v.contact_email, v.created_at,
		    COALESCE(SUM(CASE WHEN h.product_type = 'KXP2' AND h.status = 'available' THEN 1 ELSE 0 END), 0),
		    COALESCE(SUM(CASE WHEN h.product_type = 'KXP2' AND h.status = 'assigned' THEN 1 ELSE 0 END), 0),
		    COALESCE(SUM(CASE WHEN h.product_type = 'RXP2' AND h.status = 'available' THEN 1 ELSE 0 END), 0),
		    COALESCE(SUM(CASE WHEN h.product_type = 'RXP2' AND h.status = 'assigned' THEN 1 ELSE 0 END), 0)
		 FROM venues v
		 LEFT JOIN hostname_pool h ON v.code = h.venue_code
		 GROUP BY v.id, v.code, v.name, v.location, v.contact_email, v.created_at
		 ORDER BY v.code`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list venues: %w", err)
	}
	defer rows.Close()

	var venues []*types.VenueSummary
	for rows.Next() {
		var (
			vs       types.VenueSummary
			location sql.NullString
			email    sql.NullString
		)
		if err := rows.Scan(
			&vs.ID, &vs.Code, &vs.Name, &location, &email, &vs.CreatedAt,
			&vs.KXP2Available, &vs.KXP2Assigned, &vs.RXP2Available, &vs.RXP2Assigned,
		); err != nil {
			return nil, fmt.Errorf("failed to scan venue: %w", err)
		}
		vs.Location = location.String
		vs.ContactEmail = email.String
		venues = append(venues, &vs)
	}
	return venues, rows.Err()
}

// VenueStats returns pool counts for a single venue. The venue must
// exist; a venue with an empty pool reports zeros.
func (s *Store) VenueStats(code string) (*types.VenueStats, error) {
	if _, err := s.GetVenue(code); err != nil {
		return nil, err
	}

	stats := &types.VenueStats{VenueCode: code}
	err := s.db.QueryRow(
		`SELECT
		    COUNT(*),
		    COALESCE(SUM(CASE WHEN status = 'available' THEN 1 ELSE 0 END), 0),
		    COALESCE(SUM(CASE WHEN status = 'assigned' THEN 1 ELSE 0 END), 0),
		    COALESCE(SUM(CASE WHEN status = 'retired' THEN 1 ELSE 0 END), 0)
		 FROM hostname_pool WHERE venue_code = ?`, code,
	).Scan(&stats.Total, &stats.Available, &stats.Assigned, &stats.Retired)
	if err != nil {
		return nil, fmt.Errorf("failed to compute venue stats: %w", err)
	}
	return stats, nil
}

// scanVenue reads one venue row from a QueryRow result.
func scanVenue(row *sql.Row) (*types.Venue, error) {
	var (
		v        types.Venue
		location sql.NullString
		email    sql.NullString
	)
	err := row.Scan(&v.ID, &v.Code, &v.Name, &location, &email, &v.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("venue: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan venue: %w", err)
	}
	v.Location = location.String
	v.ContactEmail = email.String
	return &v, nil
}
