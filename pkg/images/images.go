package images

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/pitlane/paddock/pkg/log"
	"github.com/pitlane/paddock/pkg/store"
	"github.com/pitlane/paddock/pkg/types"
)

// ErrNotFound re-exports the store sentinel; missing files and unsafe
// names resolve to it as well, so the serving path answers 404 for all
// of them.
var ErrNotFound = store.ErrNotFound

// Library manages master images: metadata lives in the store, content
// lives as plain files in one directory.
type Library struct {
	dir    string
	store  *store.Store
	logger zerolog.Logger
}

// NewLibrary creates a library rooted at dir
func NewLibrary(dir string, st *store.Store) *Library {
	return &Library{
		dir:    dir,
		store:  st,
		logger: log.WithComponent("images"),
	}
}

// Dir returns the directory images are served from
func (l *Library) Dir() string {
	return l.dir
}

// Checksum returns the hex sha256 of the file at path. The file is
// streamed; images are multi-gigabyte.
func Checksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open image for checksum: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to checksum image: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Register records the image file at path for a product: the file is
// checksummed and measured, and its metadata upserted under its base
// filename. With activate set the image also becomes the product's
// active image.
func (l *Library) Register(path, product, version string, activate bool) (*types.MasterImage, error) {
	productType := types.ProductType(strings.ToUpper(strings.TrimSpace(product)))
	if !productType.Valid() {
		return nil, fmt.Errorf("product type %q must be KXP2 or RXP2", product)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat image: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("image path %s is a directory", path)
	}

	checksum, err := Checksum(path)
	if err != nil {
		return nil, err
	}

	img := &types.MasterImage{
		Filename:    filepath.Base(path),
		ProductType: productType,
		Version:     strings.TrimSpace(version),
		SizeBytes:   info.Size(),
		Checksum:    checksum,
	}
	if err := l.store.RegisterImage(img); err != nil {
		return nil, err
	}

	if activate {
		if err := l.store.SetActiveImage(img.ID); err != nil {
			return nil, err
		}
		img.IsActive = true
	}

	l.logger.Info().
		Str("filename", img.Filename).
		Str("product_type", string(productType)).
		Str("version", img.Version).
		Int64("size_bytes", img.SizeBytes).
		Bool("active", activate).
		Msg("Image registered in library")
	return img, nil
}

// Activate makes the named image the active one for its product
func (l *Library) Activate(filename string) error {
	img, err := l.store.GetImageByFilename(filename)
	if err != nil {
		return err
	}
	return l.store.SetActiveImage(img.ID)
}

// List returns registered images, optionally filtered by product
func (l *Library) List(product types.ProductType) ([]*types.MasterImage, error) {
	return l.store.ListImages(product)
}

// Active returns the registered active image for a product
func (l *Library) Active(product types.ProductType) (*types.MasterImage, error) {
	return l.store.ActiveImage(product)
}

// Resolve returns the image to deploy for a product: the active
// registered image when one exists, otherwise the conventional
// <product>_master.img file in the library directory, checksummed on
// the fly. ErrNotFound when neither exists.
func (l *Library) Resolve(product types.ProductType) (*types.MasterImage, error) {
	img, err := l.store.ActiveImage(product)
	if err == nil {
		return img, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	filename := strings.ToLower(string(product)) + "_master.img"
	path := filepath.Join(l.dir, filename)
	info, statErr := os.Stat(path)
	if statErr != nil {
		return nil, fmt.Errorf("no active image for %s: %w", product, ErrNotFound)
	}

	checksum, err := Checksum(path)
	if err != nil {
		return nil, err
	}

	l.logger.Debug().
		Str("filename", filename).
		Str("product_type", string(product)).
		Msg("Falling back to conventional master image")

	// Transient record; nothing is persisted for the fallback file.
	return &types.MasterImage{
		Filename:    filename,
		ProductType: product,
		SizeBytes:   info.Size(),
		Checksum:    checksum,
		UploadedAt:  info.ModTime().UTC(),
	}, nil
}

// Open opens an image file for serving. The name must be a bare
// filename; anything resembling a path resolves to ErrNotFound so the
// caller can answer 404 without leaking directory structure.
func (l *Library) Open(filename string) (*os.File, os.FileInfo, error) {
	if filename == "" || filename != filepath.Base(filename) || strings.Contains(filename, "..") {
		l.logger.Warn().Str("filename", filename).Msg("Rejected unsafe image name")
		return nil, nil, fmt.Errorf("image %q: %w", filename, ErrNotFound)
	}

	f, err := os.Open(filepath.Join(l.dir, filename))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("image %q: %w", filename, ErrNotFound)
		}
		return nil, nil, fmt.Errorf("failed to open image: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("failed to stat image: %w", err)
	}
	if info.IsDir() {
		f.Close()
		return nil, nil, fmt.Errorf("image %q: %w", filename, ErrNotFound)
	}
	return f, info, nil
}
