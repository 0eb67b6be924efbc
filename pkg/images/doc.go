/*
Package images manages the master image library for fleet provisioning.

Image metadata (filename, product, version, size, checksum, active flag)
lives in the store; image content lives as plain files in one directory,
served verbatim to devices. The package keeps the two in sync and decides
which image a product deploys.

# Architecture

	┌────────────────── IMAGE LIBRARY ───────────────────┐
	│                                                      │
	│  ┌──────────────────────┐  ┌──────────────────────┐ │
	│  │  master_images table │  │   images directory   │ │
	│  │  (metadata, active   │  │   kxp2_gold.img      │ │
	│  │   flag per product)  │  │   rxp2_master.img    │ │
	│  └──────────┬───────────┘  └──────────┬───────────┘ │
	│             │                          │             │
	│  ┌──────────▼──────────────────────────▼──────────┐ │
	│  │                   Library                       │ │
	│  │  Register: checksum + stat + upsert             │ │
	│  │  Activate: one active image per product         │ │
	│  │  Resolve: active row, else <product>_master.img │ │
	│  │  Open: safe filename → readable stream          │ │
	│  └─────────────────────────────────────────────────┘ │
	└──────────────────────────────────────────────────────┘

# Core Components

Library:
  - Register(path, product, version, activate): streams a sha256 over
    the file, stats its size, and upserts the metadata row keyed by
    base filename. Re-registering a filename updates it in place.
  - Activate(filename): marks an image active; the store clears the
    product's previous active image in the same transaction.
  - Resolve(product): deployment-time lookup. Prefers the registered
    active image; with none registered it falls back to the
    conventional <product>_master.img file in the directory,
    checksummed on the fly and never persisted.
  - Open(filename): opens a file for HTTP streaming. Names containing
    path separators or traversal resolve to ErrNotFound.

Checksum:
  - Plain streaming sha256 helper; images are multi-gigabyte, nothing
    is buffered.

# Usage

	lib := images.NewLibrary(cfg.ImageDir, st)

	img, err := lib.Register("/var/lib/paddock/images/kxp2_gold.img", "KXP2", "3.1.0", true)

	img, err = lib.Resolve(types.ProductKXP2)
	if errors.Is(err, images.ErrNotFound) {
		// nothing deployable for the product
	}

	f, info, err := lib.Open(img.Filename)
	defer f.Close()

# Integration Points

This package integrates with:

  - pkg/store: master_images metadata and the active flag
  - pkg/coordinator: Resolve during /api/config, Open for /images/
  - cmd/paddock: image register/activate/list commands

# Design Notes

The fallback convention mirrors how field servers were provisioned
before metadata existed: drop kxp2_master.img into the images directory
and devices can deploy with no registration step. The fallback is
checksummed per request, so prefer registering images on busy servers.

Checksums are verified by the device after download, not by this
package; a corrupted file surfaces as a failed deployment report.
*/
package images
