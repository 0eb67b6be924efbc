package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/pitlane/paddock/pkg/types"
)

// batchColumns is the select list every batch query shares.
const batchColumns = `id, venue_code, product_type, total_count,
	remaining_count, priority, status, created_at, started_at, completed_at`

// CreateBatch records a new pending batch. The venue must exist, and for
// KXP2 the venue's available pool must cover the requested count; RXP2
// batches derive hostnames from serials and need no pool.
func (s *Store) CreateBatch(venueCode string, product types.ProductType, totalCount, priority int) (*types.DeploymentBatch, error) {
	now := time.Now().UTC()
	batch := &types.DeploymentBatch{
		VenueCode:      venueCode,
		ProductType:    product,
		TotalCount:     totalCount,
		RemainingCount: totalCount,
		Priority:       priority,
		Status:         types.BatchPending,
		CreatedAt:      now,
	}

	err := s.withTx(func(tx *sql.Tx) error {
		var code string
		err := tx.QueryRow(`SELECT code FROM venues WHERE code = ?`, venueCode).Scan(&code)
		if err == sql.ErrNoRows {
			return fmt.Errorf("venue %s: %w", venueCode, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to look up venue: %w", err)
		}

		if product == types.ProductKXP2 {
			var available int
			err := tx.QueryRow(
				`SELECT COUNT(*) FROM hostname_pool
				 WHERE venue_code = ? AND product_type = ? AND status = 'available'`,
				venueCode, product,
			).Scan(&available)
			if err != nil {
				return fmt.Errorf("failed to count available pool: %w", err)
			}
			if available < totalCount {
				return fmt.Errorf("requested %d, available %d: %w", totalCount, available, ErrInsufficientPool)
			}
		}

		res, err := tx.Exec(
			`INSERT INTO deployment_batches
			 (venue_code, product_type, total_count, remaining_count, priority, status, created_at)
			 VALUES (?, ?, ?, ?, ?, 'pending', ?)`,
			venueCode, product, totalCount, totalCount, priority, now,
		)
		if err != nil {
			return fmt.Errorf("failed to create batch: %w", err)
		}
		batch.ID, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read batch id: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Int64("batch_id", batch.ID).
		Str("venue_code", venueCode).
		Str("product_type", string(product)).
		Int("total_count", totalCount).
		Int("priority", priority).
		Msg("Batch created")
	return batch, nil
}

// GetBatch returns one batch by id, or ErrNotFound.
func (s *Store) GetBatch(id int64) (*types.DeploymentBatch, error) {
	return getBatch(s.db, id)
}

func getBatch(tx querier, id int64) (*types.DeploymentBatch, error) {
	row := tx.QueryRow(`SELECT `+batchColumns+` FROM deployment_batches WHERE id = ?`, id)
	batch, err := scanBatch(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("batch %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan batch: %w", err)
	}
	return batch, nil
}

// ListBatches returns batches matching the filters, highest priority
// first with creation order breaking ties. Empty filters match all.
func (s *Store) ListBatches(venueCode string, status types.BatchStatus) ([]*types.DeploymentBatch, error) {
	query := `SELECT ` + batchColumns + ` FROM deployment_batches WHERE 1=1`
	var args []interface{}
	if venueCode != "" {
		query += ` AND venue_code = ?`
		args = append(args, venueCode)
	}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY priority DESC, id ASC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}
	defer rows.Close()

	var batches []*types.DeploymentBatch
	for rows.Next() {
		batch, err := scanBatch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan batch: %w", err)
		}
		batches = append(batches, batch)
	}
	return batches, rows.Err()
}

// ActiveBatch returns the highest priority active batch, or ErrNotFound
// when no batch is active. Equal priorities resolve to the oldest batch.
func (s *Store) ActiveBatch() (*types.DeploymentBatch, error) {
	row := s.db.QueryRow(
		`SELECT ` + batchColumns + ` FROM deployment_batches
		 WHERE status = 'active'
		 ORDER BY priority DESC, id ASC
		 LIMIT 1`,
	)
	batch, err := scanBatch(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("active batch: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan batch: %w", err)
	}
	return batch, nil
}

// StartBatch activates a pending or paused batch. Starting an already
// active batch is a no-op; completed and cancelled batches cannot be
// restarted. The first activation stamps started_at; later reactivations
// keep the original time.
func (s *Store) StartBatch(id int64) error {
	err := s.withTx(func(tx *sql.Tx) error {
		batch, err := getBatch(tx, id)
		if err != nil {
			return err
		}
		switch batch.Status {
		case types.BatchCompleted, types.BatchCancelled:
			return fmt.Errorf("cannot start %s batch %d: %w", batch.Status, id, ErrBatchState)
		case types.BatchActive:
			s.logger.Debug().Int64("batch_id", id).Msg("Batch already active")
			return nil
		}

		if _, err := tx.Exec(
			`UPDATE deployment_batches
			 SET status = 'active', started_at = COALESCE(started_at, ?)
			 WHERE id = ?`,
			time.Now().UTC(), id,
		); err != nil {
			return fmt.Errorf("failed to start batch: %w", err)
		}
		s.logger.Info().Int64("batch_id", id).Msg("Batch started")
		return nil
	})
	return err
}

// PauseBatch pauses an active batch. Pausing an already paused batch is
// a no-op; any other state is an error.
func (s *Store) PauseBatch(id int64) error {
	err := s.withTx(func(tx *sql.Tx) error {
		batch, err := getBatch(tx, id)
		if err != nil {
			return err
		}
		switch batch.Status {
		case types.BatchPaused:
			s.logger.Debug().Int64("batch_id", id).Msg("Batch already paused")
			return nil
		case types.BatchActive:
		default:
			return fmt.Errorf("cannot pause %s batch %d: %w", batch.Status, id, ErrBatchState)
		}

		if _, err := tx.Exec(
			`UPDATE deployment_batches SET status = 'paused' WHERE id = ?`, id,
		); err != nil {
			return fmt.Errorf("failed to pause batch: %w", err)
		}
		s.logger.Info().Int64("batch_id", id).Msg("Batch paused")
		return nil
	})
	return err
}

// SetBatchPriority changes a batch's scheduling priority.
func (s *Store) SetBatchPriority(id int64, priority int) error {
	res, err := s.db.Exec(
		`UPDATE deployment_batches SET priority = ? WHERE id = ?`, priority, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update batch priority: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read priority result: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("batch %d: %w", id, ErrNotFound)
	}
	s.logger.Info().Int64("batch_id", id).Int("priority", priority).Msg("Batch priority updated")
	return nil
}

// AssignFromBatch draws a hostname for a device under an active batch
// and consumes one slot, in a single transaction. KXP2 batches draw from
// the venue pool; RXP2 batches derive the entry from the device serial.
// When the last slot is consumed the batch completes automatically.
func (s *Store) AssignFromBatch(id int64, mac, serial string) (*types.PoolEntry, *types.DeploymentBatch, error) {
	var (
		entry *types.PoolEntry
		batch *types.DeploymentBatch
	)
	err := s.withTx(func(tx *sql.Tx) error {
		var err error
		batch, err = getBatch(tx, id)
		if err != nil {
			return err
		}
		if batch.Status != types.BatchActive {
			return fmt.Errorf("batch %d is %s: %w", id, batch.Status, ErrBatchState)
		}
		if batch.RemainingCount <= 0 {
			return fmt.Errorf("batch %d: %w", id, ErrBatchDepleted)
		}

		switch batch.ProductType {
		case types.ProductKXP2:
			entry, err = assignNextAvailableTx(tx, batch.ProductType, batch.VenueCode, mac, serial)
		default:
			entry, _, err = ensureSerialAssignmentTx(tx, batch.VenueCode, serial, mac)
		}
		if err != nil {
			return err
		}

		batch.RemainingCount--
		if batch.RemainingCount == 0 {
			now := time.Now().UTC()
			if _, err := tx.Exec(
				`UPDATE deployment_batches
				 SET remaining_count = ?, status = 'completed', completed_at = ?
				 WHERE id = ?`,
				batch.RemainingCount, now, id,
			); err != nil {
				return fmt.Errorf("failed to complete batch: %w", err)
			}
			batch.Status = types.BatchCompleted
			batch.CompletedAt = &now
			s.logger.Info().Int64("batch_id", id).Msg("Batch completed")
			return nil
		}

		if _, err := tx.Exec(
			`UPDATE deployment_batches SET remaining_count = ? WHERE id = ?`,
			batch.RemainingCount, id,
		); err != nil {
			return fmt.Errorf("failed to decrement batch: %w", err)
		}
		return nil
	})
	if err != nil {
		if isBusy(err) {
			// Retries are exhausted; surface as a pool problem rather
			// than a raw driver conflict.
			return nil, nil, fmt.Errorf("batch %d: %w", id, ErrPoolExhausted)
		}
		return nil, nil, err
	}

	s.logger.Info().
		Int64("batch_id", id).
		Str("hostname", entry.Hostname()).
		Int("remaining", batch.RemainingCount).
		Msg("Assigned hostname from batch")
	return entry, batch, nil
}

// scanBatch reads one batch row. sql.ErrNoRows passes through for the
// caller to translate.
func scanBatch(row rowScanner) (*types.DeploymentBatch, error) {
	var (
		b           types.DeploymentBatch
		startedAt   sql.NullTime
		completedAt sql.NullTime
	)
	if err := row.Scan(
		&b.ID, &b.VenueCode, &b.ProductType, &b.TotalCount, &b.RemainingCount,
		&b.Priority, &b.Status, &b.CreatedAt, &startedAt, &completedAt,
	); err != nil {
		return nil, err
	}
	b.StartedAt = timePtr(startedAt)
	b.CompletedAt = timePtr(completedAt)
	return &b, nil
}
