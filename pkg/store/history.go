package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/pitlane/paddock/pkg/types"
)

// historyColumns is the select list every history query shares.
const historyColumns = `id, hostname, mac_address, serial_number, ip_address,
	product_type, venue_code, image_version, deployment_status,
	started_at, completed_at, error_message`

// DeploymentFilter narrows ListDeployments results. Zero values match
// everything; Limit 0 means no limit.
type DeploymentFilter struct {
	VenueCode   string
	ProductType types.ProductType
	Status      types.DeploymentStatus
	Limit       int
	Offset      int
}

// InsertHistory records the start of a deployment. The record's ID and
// StartedAt are filled in on success.
func (s *Store) InsertHistory(rec *types.DeploymentRecord) error {
	if rec.Status == "" {
		rec.Status = types.DeploymentStarted
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now().UTC()
	}

	res, err := s.db.Exec(
		`INSERT INTO deployment_history
		 (hostname, mac_address, serial_number, ip_address, product_type,
		  venue_code, image_version, deployment_status, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Hostname, nullableString(rec.MACAddress), nullableString(rec.SerialNumber),
		nullableString(rec.IPAddress), nullableString(string(rec.ProductType)),
		nullableString(rec.VenueCode), nullableString(rec.ImageVersion),
		rec.Status, rec.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert deployment record: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read deployment record id: %w", err)
	}
	rec.ID = id
	return nil
}

// AdvanceHistory moves the most recent non-terminal row for a hostname to
// the given status. Terminal statuses also stamp completed_at and record
// the error message. The returned bool is false when no row advanced,
// which means the hostname is unknown or its deployment already finished.
func (s *Store) AdvanceHistory(hostname string, status types.DeploymentStatus, errMsg string) (bool, error) {
	// SQLite builds without the update-limit option reject
	// UPDATE ... ORDER BY ... LIMIT, so the target row is picked by a
	// subquery instead.
	const target = `(
		SELECT id FROM deployment_history
		WHERE hostname = ? AND deployment_status NOT IN ('success', 'failed')
		ORDER BY started_at DESC, id DESC
		LIMIT 1
	)`

	var (
		res sql.Result
		err error
	)
	if status.IsTerminal() {
		res, err = s.db.Exec(
			`UPDATE deployment_history
			 SET deployment_status = ?, completed_at = ?, error_message = ?
			 WHERE id = `+target,
			status, time.Now().UTC(), nullableString(errMsg), hostname,
		)
	} else {
		res, err = s.db.Exec(
			`UPDATE deployment_history
			 SET deployment_status = ?
			 WHERE id = `+target,
			status, hostname,
		)
	}
	if err != nil {
		return false, fmt.Errorf("failed to advance deployment: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read advance result: %w", err)
	}
	return n > 0, nil
}

// GetDeployment returns one history row by id, or ErrNotFound.
func (s *Store) GetDeployment(id int64) (*types.DeploymentRecord, error) {
	row := s.db.QueryRow(`SELECT `+historyColumns+` FROM deployment_history WHERE id = ?`, id)
	rec, err := scanDeployment(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("deployment %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan deployment: %w", err)
	}
	return rec, nil
}

// LatestDeployment returns the most recent history row for a hostname,
// or ErrNotFound.
func (s *Store) LatestDeployment(hostname string) (*types.DeploymentRecord, error) {
	row := s.db.QueryRow(
		`SELECT `+historyColumns+` FROM deployment_history
		 WHERE hostname = ?
		 ORDER BY started_at DESC, id DESC
		 LIMIT 1`, hostname,
	)
	rec, err := scanDeployment(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("deployment for %s: %w", hostname, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan deployment: %w", err)
	}
	return rec, nil
}

// ListDeployments returns history rows matching the filter, newest first.
func (s *Store) ListDeployments(filter DeploymentFilter) ([]*types.DeploymentRecord, error) {
	query := `SELECT ` + historyColumns + ` FROM deployment_history WHERE 1=1`
	var args []interface{}

	if filter.VenueCode != "" {
		query += ` AND venue_code = ?`
		args = append(args, filter.VenueCode)
	}
	if filter.ProductType != "" {
		query += ` AND product_type = ?`
		args = append(args, filter.ProductType)
	}
	if filter.Status != "" {
		query += ` AND deployment_status = ?`
		args = append(args, filter.Status)
	}
	query += ` ORDER BY started_at DESC, id DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, filter.Offset)
		}
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list deployments: %w", err)
	}
	defer rows.Close()

	var records []*types.DeploymentRecord
	for rows.Next() {
		rec, err := scanDeployment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deployment: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// RecentDeployments returns compact summaries of the newest rows for
// dashboard payloads.
func (s *Store) RecentDeployments(limit int) ([]*types.DeploymentSummary, error) {
	rows, err := s.db.Query(
		`SELECT hostname, deployment_status, started_at, completed_at
		 FROM deployment_history
		 ORDER BY started_at DESC, id DESC
		 LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent deployments: %w", err)
	}
	defer rows.Close()

	var summaries []*types.DeploymentSummary
	for rows.Next() {
		var (
			sum         types.DeploymentSummary
			completedAt sql.NullTime
		)
		if err := rows.Scan(&sum.Hostname, &sum.Status, &sum.StartedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("failed to scan deployment summary: %w", err)
		}
		sum.CompletedAt = timePtr(completedAt)
		summaries = append(summaries, &sum)
	}
	return summaries, rows.Err()
}

// CountDeploymentsSince reports how many deployments started at or after
// the given time, and how many of those have succeeded.
func (s *Store) CountDeploymentsSince(since time.Time) (total, successful int, err error) {
	err = s.db.QueryRow(
		`SELECT
		    COUNT(*),
		    COALESCE(SUM(CASE WHEN deployment_status = 'success' THEN 1 ELSE 0 END), 0)
		 FROM deployment_history
		 WHERE started_at >= ?`, since,
	).Scan(&total, &successful)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count deployments: %w", err)
	}
	return total, successful, nil
}

// scanDeployment reads one history row. sql.ErrNoRows passes through for
// the caller to translate.
func scanDeployment(row rowScanner) (*types.DeploymentRecord, error) {
	var (
		rec          types.DeploymentRecord
		mac          sql.NullString
		serial       sql.NullString
		ip           sql.NullString
		product      sql.NullString
		venue        sql.NullString
		imageVersion sql.NullString
		completedAt  sql.NullTime
		errMsg       sql.NullString
	)
	if err := row.Scan(
		&rec.ID, &rec.Hostname, &mac, &serial, &ip, &product, &venue,
		&imageVersion, &rec.Status, &rec.StartedAt, &completedAt, &errMsg,
	); err != nil {
		return nil, err
	}
	rec.MACAddress = mac.String
	rec.SerialNumber = serial.String
	rec.IPAddress = ip.String
	rec.ProductType = types.ProductType(product.String)
	rec.VenueCode = venue.String
	rec.ImageVersion = imageVersion.String
	rec.CompletedAt = timePtr(completedAt)
	rec.ErrorMessage = errMsg.String
	return &rec, nil
}
