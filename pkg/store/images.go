package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/pitlane/paddock/pkg/types"
)

// imageColumns is the select list every image query shares.
const imageColumns = `id, filename, product_type, version, size_bytes,
	checksum, description, is_active, uploaded_at`

// RegisterImage records image metadata, replacing any previous record
// with the same filename. The image's ID and UploadedAt are filled in
// on success. Registration never changes which image is active.
func (s *Store) RegisterImage(img *types.MasterImage) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(
		`INSERT INTO master_images
		 (filename, product_type, version, size_bytes, checksum, description, is_active, uploaded_at)
		 VALUES (?, ?, ?, ?, ?, ?, 0, ?)
		 ON CONFLICT(filename) DO UPDATE SET
		    product_type = excluded.product_type,
		    version = excluded.version,
		    size_bytes = excluded.size_bytes,
		    checksum = excluded.checksum,
		    description = excluded.description,
		    uploaded_at = excluded.uploaded_at`,
		img.Filename, img.ProductType, img.Version, img.SizeBytes,
		nullableString(img.Checksum), nullableString(img.Description), now,
	)
	if err != nil {
		return fmt.Errorf("failed to register image: %w", err)
	}

	// The upsert keeps the existing row id on conflict, so read it back.
	stored, err := s.GetImageByFilename(img.Filename)
	if err != nil {
		return err
	}
	img.ID = stored.ID
	img.IsActive = stored.IsActive
	img.UploadedAt = stored.UploadedAt

	s.logger.Info().
		Str("filename", img.Filename).
		Str("product_type", string(img.ProductType)).
		Str("version", img.Version).
		Msg("Image registered")
	return nil
}

// SetActiveImage activates one image and deactivates every other image
// for the same product, in one transaction.
func (s *Store) SetActiveImage(id int64) error {
	err := s.withTx(func(tx *sql.Tx) error {
		var product types.ProductType
		err := tx.QueryRow(`SELECT product_type FROM master_images WHERE id = ?`, id).Scan(&product)
		if err == sql.ErrNoRows {
			return fmt.Errorf("image %d: %w", id, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to look up image: %w", err)
		}

		if _, err := tx.Exec(
			`UPDATE master_images SET is_active = 0 WHERE product_type = ?`, product,
		); err != nil {
			return fmt.Errorf("failed to clear active images: %w", err)
		}
		if _, err := tx.Exec(
			`UPDATE master_images SET is_active = 1 WHERE id = ?`, id,
		); err != nil {
			return fmt.Errorf("failed to activate image: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info().Int64("image_id", id).Msg("Active image changed")
	return nil
}

// ActiveImage returns the active image for a product, or ErrNotFound
// when none is marked active. With multiple active rows (legacy data)
// the most recently uploaded wins.
func (s *Store) ActiveImage(product types.ProductType) (*types.MasterImage, error) {
	row := s.db.QueryRow(
		`SELECT `+imageColumns+` FROM master_images
		 WHERE product_type = ? AND is_active = 1
		 ORDER BY uploaded_at DESC, id DESC
		 LIMIT 1`, product,
	)
	img, err := scanImage(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("active image for %s: %w", product, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan image: %w", err)
	}
	return img, nil
}

// GetImage returns one image by id, or ErrNotFound.
func (s *Store) GetImage(id int64) (*types.MasterImage, error) {
	row := s.db.QueryRow(`SELECT `+imageColumns+` FROM master_images WHERE id = ?`, id)
	img, err := scanImage(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("image %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan image: %w", err)
	}
	return img, nil
}

// GetImageByFilename returns one image by filename, or ErrNotFound.
func (s *Store) GetImageByFilename(filename string) (*types.MasterImage, error) {
	row := s.db.QueryRow(`SELECT `+imageColumns+` FROM master_images WHERE filename = ?`, filename)
	img, err := scanImage(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("image %s: %w", filename, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan image: %w", err)
	}
	return img, nil
}

// ListImages returns images, newest first. An empty product matches all
// products.
func (s *Store) ListImages(product types.ProductType) ([]*types.MasterImage, error) {
	query := `SELECT ` + imageColumns + ` FROM master_images WHERE 1=1`
	var args []interface{}
	if product != "" {
		query += ` AND product_type = ?`
		args = append(args, product)
	}
	query += ` ORDER BY uploaded_at DESC, id DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list images: %w", err)
	}
	defer rows.Close()

	var images []*types.MasterImage
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan image: %w", err)
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

// scanImage reads one image row. sql.ErrNoRows passes through for the
// caller to translate.
func scanImage(row rowScanner) (*types.MasterImage, error) {
	var (
		img         types.MasterImage
		sizeBytes   sql.NullInt64
		checksum    sql.NullString
		description sql.NullString
	)
	if err := row.Scan(
		&img.ID, &img.Filename, &img.ProductType, &img.Version,
		&sizeBytes, &checksum, &description, &img.IsActive, &img.UploadedAt,
	); err != nil {
		return nil, err
	}
	img.SizeBytes = sizeBytes.Int64
	img.Checksum = checksum.String
	img.Description = description.String
	return &img, nil
}
