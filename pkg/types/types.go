package types

import (
	"fmt"
	"strings"
	"time"
)

// ISO8601 is the timestamp layout used on both wire surfaces.
const ISO8601 = "2006-01-02T15:04:05"

// ProductType selects the hostname allocation discipline
type ProductType string

const (
	ProductKXP2 ProductType = "KXP2"
	ProductRXP2 ProductType = "RXP2"
)

// Valid reports whether the product type is one of the known products
func (p ProductType) Valid() bool {
	return p == ProductKXP2 || p == ProductRXP2
}

// PoolStatus represents the lifecycle state of a hostname pool entry
type PoolStatus string

const (
	PoolAvailable PoolStatus = "available"
	PoolAssigned  PoolStatus = "assigned"
	PoolRetired   PoolStatus = "retired"
)

// BatchStatus represents the lifecycle state of a deployment batch
type BatchStatus string

const (
	BatchPending   BatchStatus = "pending"
	BatchActive    BatchStatus = "active"
	BatchPaused    BatchStatus = "paused"
	BatchCompleted BatchStatus = "completed"
	BatchCancelled BatchStatus = "cancelled"
)

// DeploymentStatus represents the state of a single device deployment
type DeploymentStatus string

const (
	DeploymentStarted     DeploymentStatus = "started"
	DeploymentDownloading DeploymentStatus = "downloading"
	DeploymentVerifying   DeploymentStatus = "verifying"
	DeploymentCustomizing DeploymentStatus = "customizing"
	DeploymentSuccess     DeploymentStatus = "success"
	DeploymentFailed      DeploymentStatus = "failed"
)

// IsTerminal reports whether the status ends a deployment.
// Terminal rows are never overwritten by later reports.
func (s DeploymentStatus) IsTerminal() bool {
	return s == DeploymentSuccess || s == DeploymentFailed
}

// NormalizeDeploymentStatus maps the ingress status taxonomy onto the
// canonical set. Installers report "starting" where history stores
// "started", and some report "completed" where history stores "success".
func NormalizeDeploymentStatus(raw string) (DeploymentStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "starting", "started":
		return DeploymentStarted, true
	case "downloading":
		return DeploymentDownloading, true
	case "verifying":
		return DeploymentVerifying, true
	case "customizing":
		return DeploymentCustomizing, true
	case "completed", "success":
		return DeploymentSuccess, true
	case "failed":
		return DeploymentFailed, true
	default:
		return "", false
	}
}

// Venue is the scoping unit for hostnames
type Venue struct {
	ID           int64     `json:"id"`
	Code         string    `json:"code"`
	Name         string    `json:"name"`
	Location     string    `json:"location"`
	ContactEmail string    `json:"contact_email"`
	CreatedAt    time.Time `json:"created_at"`
}

// VenueSummary is a venue together with its per-product pool counts
type VenueSummary struct {
	Venue
	KXP2Available int `json:"kxp2_available"`
	KXP2Assigned  int `json:"kxp2_assigned"`
	RXP2Available int `json:"rxp2_available"`
	RXP2Assigned  int `json:"rxp2_assigned"`
}

// VenueStats holds pool counts for one venue
type VenueStats struct {
	VenueCode string `json:"venue_code"`
	Total     int    `json:"total_hostnames"`
	Available int    `json:"available_hostnames"`
	Assigned  int    `json:"assigned_hostnames"`
	Retired   int    `json:"retired_hostnames"`
}

// PoolEntry is one hostname slot, pre-loaded (KXP2) or serial-derived (RXP2).
// The hostname string itself is derived, never stored.
type PoolEntry struct {
	ID           int64       `json:"id"`
	ProductType  ProductType `json:"product_type"`
	VenueCode    string      `json:"venue_code"`
	Identifier   string      `json:"identifier"`
	Status       PoolStatus  `json:"status"`
	MACAddress   string      `json:"mac_address"`
	SerialNumber string      `json:"serial_number"`
	AssignedAt   *time.Time  `json:"assigned_at"`
	Notes        string      `json:"notes"`
	CreatedAt    time.Time   `json:"created_at"`
}

// Hostname derives the full hostname for the entry
func (e *PoolEntry) Hostname() string {
	return BuildHostname(e.ProductType, e.VenueCode, e.Identifier)
}

// DeploymentBatch is a prioritized intent to deploy N devices for a venue/product
type DeploymentBatch struct {
	ID             int64       `json:"id"`
	VenueCode      string      `json:"venue_code"`
	ProductType    ProductType `json:"product_type"`
	TotalCount     int         `json:"total_count"`
	RemainingCount int         `json:"remaining_count"`
	Priority       int         `json:"priority"`
	Status         BatchStatus `json:"status"`
	CreatedAt      time.Time   `json:"created_at"`
	StartedAt      *time.Time  `json:"started_at"`
	CompletedAt    *time.Time  `json:"completed_at"`
}

// DeploymentRecord is one row of deployment history for a device
type DeploymentRecord struct {
	ID           int64            `json:"id"`
	Hostname     string           `json:"hostname"`
	MACAddress   string           `json:"mac_address"`
	SerialNumber string           `json:"serial_number"`
	IPAddress    string           `json:"ip_address"`
	ProductType  ProductType      `json:"product_type"`
	VenueCode    string           `json:"venue_code"`
	ImageVersion string           `json:"image_version"`
	Status       DeploymentStatus `json:"status"`
	StartedAt    time.Time        `json:"started_at"`
	CompletedAt  *time.Time       `json:"completed_at"`
	ErrorMessage string           `json:"error_message"`
}

// MasterImage is an opaque disk image served to targets
type MasterImage struct {
	ID          int64       `json:"id"`
	Filename    string      `json:"filename"`
	ProductType ProductType `json:"product_type"`
	Version     string      `json:"version"`
	SizeBytes   int64       `json:"size_bytes"`
	Checksum    string      `json:"checksum"`
	Description string      `json:"description"`
	IsActive    bool        `json:"is_active"`
	UploadedAt  time.Time   `json:"uploaded_at"`
}

// ImportResult reports the outcome of a bulk identifier import
type ImportResult struct {
	Imported   int `json:"imported"`
	Duplicates int `json:"duplicates"`
}

// BuildHostname derives the hostname string PRODUCT-VENUE-IDENTIFIER
func BuildHostname(product ProductType, venueCode, identifier string) string {
	return fmt.Sprintf("%s-%s-%s", product, venueCode, identifier)
}

// ParseHostname splits a hostname produced by BuildHostname back into its
// triple. Hostnames are exactly three dash-separated parts.
func ParseHostname(hostname string) (ProductType, string, string, error) {
	parts := strings.Split(hostname, "-")
	if len(parts) != 3 {
		return "", "", "", fmt.Errorf("invalid hostname format: %s", hostname)
	}
	return ProductType(parts[0]), parts[1], parts[2], nil
}

// RXP2Identifier derives the pool identifier for a serial-based
// assignment: the last 8 characters of the serial uppercased, or the
// whole serial when it is shorter than 8.
func RXP2Identifier(serial string) string {
	if len(serial) >= 8 {
		serial = serial[len(serial)-8:]
	}
	return strings.ToUpper(serial)
}

// FallbackHostname synthesizes the hostname used when no venue is known:
// PRODUCT-DEFAULT-<last 6 of serial>. No pool row backs it.
func FallbackHostname(product ProductType, serial string) string {
	if serial == "" {
		return "unknown"
	}
	suffix := serial
	if len(suffix) > 6 {
		suffix = suffix[len(suffix)-6:]
	}
	return fmt.Sprintf("%s-DEFAULT-%s", product, suffix)
}

// DeploymentSummary is the compact history row embedded in dashboard
// statistics broadcasts.
type DeploymentSummary struct {
	Hostname    string           `json:"hostname"`
	Status      DeploymentStatus `json:"status"`
	StartedAt   time.Time        `json:"started_at"`
	CompletedAt *time.Time       `json:"completed_at"`
}

// DashboardStats is the snapshot payload served by the management API
// and pushed to every live-update client. It is materialized once per
// broadcast, never per subscriber.
type DashboardStats struct {
	TotalVenues            int                  `json:"total_venues"`
	TotalHostnames         int                  `json:"total_hostnames"`
	AvailableKXP2          int                  `json:"available_kxp2"`
	AvailableRXP2          int                  `json:"available_rxp2"`
	AssignedKXP2           int                  `json:"assigned_kxp2"`
	AssignedRXP2           int                  `json:"assigned_rxp2"`
	AvailableHostnames     int                  `json:"available_hostnames"`
	AssignedHostnames      int                  `json:"assigned_hostnames"`
	RecentDeployments      []*DeploymentSummary `json:"recent_deployments"`
	RecentDeploymentsCount int                  `json:"recent_deployments_count"`
	SuccessfulDeployments  int                  `json:"successful_deployments"`
	Timestamp              string               `json:"timestamp"`
}

// DeploymentEvent is the per-device status transition pushed to
// live-update clients whenever a history row is inserted or advanced.
type DeploymentEvent struct {
	DeploymentID int64            `json:"deployment_id"`
	Hostname     string           `json:"hostname"`
	MACAddress   string           `json:"mac_address,omitempty"`
	SerialNumber string           `json:"serial_number,omitempty"`
	ProductType  ProductType      `json:"product_type,omitempty"`
	VenueCode    string           `json:"venue_code,omitempty"`
	Status       DeploymentStatus `json:"status"`
	Message      string           `json:"message,omitempty"`
	ErrorMessage string           `json:"error_message,omitempty"`
	Timestamp    string           `json:"timestamp"`
}
