package coordinator

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pitlane/paddock/pkg/allocator"
	"github.com/pitlane/paddock/pkg/events"
	"github.com/pitlane/paddock/pkg/images"
	"github.com/pitlane/paddock/pkg/metrics"
	"github.com/pitlane/paddock/pkg/types"
)

// configRequest is what an installer posts on first contact
type configRequest struct {
	ProductType  string `json:"product_type"`
	VenueCode    string `json:"venue_code"`
	SerialNumber string `json:"serial_number"`
	MACAddress   string `json:"mac_address"`
}

// configResponse tells the installer who it is and what to flash
type configResponse struct {
	ServerIP      string            `json:"server_ip"`
	Hostname      string            `json:"hostname"`
	ProductType   types.ProductType `json:"product_type"`
	VenueCode     string            `json:"venue_code"`
	ImageURL      string            `json:"image_url"`
	ImageSize     int64             `json:"image_size"`
	ImageChecksum string            `json:"image_checksum"`
	Version       string            `json:"version"`
	Timestamp     string            `json:"timestamp"`
}

// statusRequest is a progress report from an installer. Timestamp arrives
// as epoch seconds from the field; the server stamps its own times, so it
// is accepted and ignored.
type statusRequest struct {
	Status       string      `json:"status"`
	Hostname     string      `json:"hostname"`
	Serial       string      `json:"serial"`
	MACAddress   string      `json:"mac_address"`
	Message      string      `json:"message"`
	ErrorMessage string      `json:"error_message"`
	Timestamp    interface{} `json:"timestamp"`
}

// statusResponse acknowledges a progress report
type statusResponse struct {
	Received bool   `json:"received"`
	Hostname string `json:"hostname"`
}

// handleConfig assigns the device a hostname and image. An active batch
// takes precedence and overrides the requested venue and product; with no
// batch, a provided venue draws from its pool; with neither, the device
// gets a synthetic DEFAULT hostname that touches no pool state.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	var req configRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	product := types.ProductType(strings.ToUpper(strings.TrimSpace(req.ProductType)))
	if product == "" {
		product = types.ProductKXP2
	}
	if !product.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("product_type %q must be KXP2 or RXP2", req.ProductType))
		return
	}

	venueCode := strings.ToUpper(strings.TrimSpace(req.VenueCode))
	mac := strings.TrimSpace(req.MACAddress)
	serial := strings.TrimSpace(req.SerialNumber)

	var hostname string

	batch, err := s.alloc.GetActiveBatch()
	switch {
	case err == nil:
		h, berr := s.alloc.AssignFromBatch(batch.ID, orUnknown(mac), orUnknown(serial))
		if berr != nil {
			// The venue path below still gets its chance.
			s.logger.Warn().Err(berr).
				Int64("batch_id", batch.ID).
				Msg("Batch assignment failed, falling back to venue assignment")
		} else {
			hostname = h
			product = batch.ProductType
			venueCode = batch.VenueCode
			s.logger.Info().
				Str("hostname", hostname).
				Int64("batch_id", batch.ID).
				Msg("Assigned hostname from batch")
		}
	case errors.Is(err, allocator.ErrNotFound):
		// No batch queued; fall through to venue assignment.
	default:
		s.logger.Error().Err(err).Msg("Active batch lookup failed")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if hostname == "" {
		if venueCode != "" {
			h, aerr := s.alloc.Assign(string(product), venueCode, mac, serial)
			if aerr != nil {
				s.respondAssignError(w, venueCode, aerr)
				return
			}
			hostname = h
			s.logger.Info().
				Str("hostname", hostname).
				Str("venue_code", venueCode).
				Str("product_type", string(product)).
				Msg("Assigned hostname from venue pool")
		} else {
			hostname = types.FallbackHostname(product, serial)
			s.logger.Info().
				Str("hostname", hostname).
				Str("serial", serial).
				Msg("No venue provided, synthesized fallback hostname")
		}
	}

	img, err := s.images.Resolve(product)
	if err != nil {
		if errors.Is(err, images.ErrNotFound) {
			s.logger.Info().Str("product_type", string(product)).Msg("No deployable image")
			writeError(w, http.StatusNotFound, fmt.Sprintf("No active image for product type %s", product))
			return
		}
		s.logger.Error().Err(err).Str("product_type", string(product)).Msg("Image resolution failed")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	rec := &types.DeploymentRecord{
		Hostname:     hostname,
		MACAddress:   mac,
		SerialNumber: serial,
		IPAddress:    remoteIP(r),
		ProductType:  product,
		VenueCode:    venueCode,
		ImageVersion: img.Filename,
		Status:       types.DeploymentStarted,
	}
	if err := s.store.InsertHistory(rec); err != nil {
		s.logger.Error().Err(err).Str("hostname", hostname).Msg("Failed to record deployment start")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	s.bus.Publish(events.TopicDeploymentStatus, &types.DeploymentEvent{
		DeploymentID: rec.ID,
		Hostname:     hostname,
		MACAddress:   mac,
		SerialNumber: serial,
		ProductType:  product,
		VenueCode:    venueCode,
		Status:       types.DeploymentStarted,
		Timestamp:    time.Now().UTC().Format(types.ISO8601),
	})
	metrics.DeploymentTransitionsTotal.WithLabelValues(string(types.DeploymentStarted)).Inc()

	writeJSON(w, http.StatusOK, configResponse{
		ServerIP:      s.cfg.ServerIP,
		Hostname:      hostname,
		ProductType:   product,
		VenueCode:     venueCode,
		ImageURL:      fmt.Sprintf("%s/images/%s", s.imageBase, img.Filename),
		ImageSize:     img.SizeBytes,
		ImageChecksum: img.Checksum,
		Version:       apiVersion,
		Timestamp:     time.Now().UTC().Format(types.ISO8601),
	})
}

// respondAssignError translates allocator errors for the installer
func (s *Server) respondAssignError(w http.ResponseWriter, venueCode string, err error) {
	switch {
	case errors.Is(err, allocator.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, allocator.ErrExhausted):
		s.logger.Warn().Err(err).Str("venue_code", venueCode).Msg("Hostname pool exhausted")
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, allocator.ErrNotFound):
		s.logger.Info().Err(err).Str("venue_code", venueCode).Msg("Venue not found")
		writeError(w, http.StatusNotFound, err.Error())
	default:
		s.logger.Error().Err(err).Str("venue_code", venueCode).Msg("Hostname assignment failed")
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// handleStatus records an installer progress report. Reports for unknown
// hostnames or already-finished deployments are acknowledged but change
// nothing; installers retry on anything but a 200.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	hostname := strings.TrimSpace(req.Hostname)
	if hostname == "" {
		writeError(w, http.StatusBadRequest, "hostname is required")
		return
	}
	status, ok := types.NormalizeDeploymentStatus(req.Status)
	if !ok {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", req.Status))
		return
	}

	advanced, err := s.store.AdvanceHistory(hostname, status, strings.TrimSpace(req.ErrorMessage))
	if err != nil {
		s.logger.Error().Err(err).Str("hostname", hostname).Msg("Failed to advance deployment")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if advanced {
		metrics.DeploymentTransitionsTotal.WithLabelValues(string(status)).Inc()
		s.logger.Info().
			Str("hostname", hostname).
			Str("status", string(status)).
			Msg("Deployment status updated")
	} else {
		s.logger.Debug().
			Str("hostname", hostname).
			Str("status", string(status)).
			Msg("Status report for unknown or finished deployment")
	}

	// The daily log keeps the status string exactly as reported.
	if err := s.statusLog.Append(remoteIP(r), hostname, orUnknown(strings.TrimSpace(req.Serial)), strings.TrimSpace(req.Status)); err != nil {
		s.logger.Error().Err(err).Msg("Failed to append status log")
	}

	s.bus.Publish(events.TopicDeploymentStatus, &types.DeploymentEvent{
		Hostname:     hostname,
		SerialNumber: strings.TrimSpace(req.Serial),
		MACAddress:   strings.TrimSpace(req.MACAddress),
		Status:       status,
		Message:      req.Message,
		ErrorMessage: strings.TrimSpace(req.ErrorMessage),
		Timestamp:    time.Now().UTC().Format(types.ISO8601),
	})

	writeJSON(w, http.StatusOK, statusResponse{Received: true, Hostname: hostname})
}

// handleImage streams image content to an installer. The response is
// written without a deadline; cancellation comes from the client side.
func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	filename := r.PathValue("filename")

	f, info, err := s.images.Open(filename)
	if err != nil {
		s.logger.Info().Str("filename", filename).Msg("Image not found")
		writeError(w, http.StatusNotFound, "image not found")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))

	n, err := io.Copy(w, f)
	metrics.ImageBytesServed.Add(float64(n))
	if err != nil {
		if r.Context().Err() != nil {
			s.logger.Debug().
				Str("filename", filename).
				Int64("bytes_sent", n).
				Msg("Image download cancelled by client")
			return
		}
		s.logger.Warn().Err(err).Str("filename", filename).Int64("bytes_sent", n).Msg("Image stream failed")
		return
	}

	s.logger.Info().
		Str("filename", filename).
		Int64("bytes_sent", n).
		Str("remote", r.RemoteAddr).
		Msg("Image served")
}

// handleHealth answers deployment-network liveness probes
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(types.ISO8601),
	})
}

// orUnknown substitutes the placeholder installers expect for blank values
func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
