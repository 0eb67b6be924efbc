package fanout

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/pitlane/paddock/pkg/allocator"
	"github.com/pitlane/paddock/pkg/store"
	"github.com/pitlane/paddock/pkg/types"
)

// History pagination bounds. Operators page through history; the cap
// keeps a single response from dragging the whole table over the wire.
const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

type createBatchRequest struct {
	VenueCode   string `json:"venue_code"`
	ProductType string `json:"product_type"`
	TotalCount  int    `json:"total_count"`
	Priority    int    `json:"priority"`
}

type priorityRequest struct {
	Priority int `json:"priority"`
}

type importRequest struct {
	VenueCode   string   `json:"venue_code"`
	ProductType string   `json:"product_type"`
	Identifiers []string `json:"identifiers"`
}

type hostnameRequest struct {
	Hostname string `json:"hostname"`
}

// respondError translates allocator and store errors onto HTTP status
// codes. 4xx bodies carry the error text; anything unexpected is a
// generic 500 so internals stay out of responses.
func (s *Server) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, allocator.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, allocator.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, allocator.ErrAlreadyExists),
		errors.Is(err, allocator.ErrInsufficientPool),
		errors.Is(err, allocator.ErrBatchNotActive),
		errors.Is(err, allocator.ErrBatchDepleted),
		errors.Is(err, allocator.ErrExhausted):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error().Err(err).Msg("Management request failed")
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.DashboardStats()
	if err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleVenues(w http.ResponseWriter, r *http.Request) {
	venues, err := s.alloc.ListVenues()
	if err != nil {
		s.respondError(w, err)
		return
	}
	if venues == nil {
		venues = []*types.VenueSummary{}
	}
	writeJSON(w, http.StatusOK, venues)
}

func (s *Server) handleVenueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.alloc.VenueStats(r.PathValue("code"))
	if err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleDeployments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.DeploymentFilter{Limit: defaultHistoryLimit}

	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = min(n, maxHistoryLimit)
	}
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
			return
		}
		filter.Offset = n
	}
	if raw := q.Get("venue"); raw != "" {
		filter.VenueCode = strings.ToUpper(strings.TrimSpace(raw))
	}
	if raw := q.Get("product"); raw != "" {
		product := types.ProductType(strings.ToUpper(strings.TrimSpace(raw)))
		if !product.Valid() {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown product type: %s", raw))
			return
		}
		filter.ProductType = product
	}
	if raw := q.Get("status"); raw != "" {
		status, ok := types.NormalizeDeploymentStatus(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown deployment status: %s", raw))
			return
		}
		filter.Status = status
	}

	records, err := s.store.ListDeployments(filter)
	if err != nil {
		s.respondError(w, err)
		return
	}
	if records == nil {
		records = []*types.DeploymentRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.systemStatus(r.Context())
	if snap == nil {
		writeError(w, http.StatusServiceUnavailable, "system status unavailable")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleListBatches(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	batches, err := s.alloc.ListBatches(
		strings.TrimSpace(q.Get("venue")),
		strings.TrimSpace(q.Get("status")),
	)
	if err != nil {
		s.respondError(w, err)
		return
	}
	if batches == nil {
		batches = []*types.DeploymentBatch{}
	}
	writeJSON(w, http.StatusOK, batches)
}

func (s *Server) handleActiveBatch(w http.ResponseWriter, r *http.Request) {
	batch, err := s.alloc.GetActiveBatch()
	switch {
	case errors.Is(err, allocator.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "No active batches"})
	case err != nil:
		s.respondError(w, err)
	default:
		writeJSON(w, http.StatusOK, batch)
	}
}

func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	id, err := batchID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	batch, err := s.alloc.GetBatch(id)
	if err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

func (s *Server) handleCreateBatch(w http.ResponseWriter, r *http.Request) {
	var req createBatchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	id, err := s.alloc.CreateBatch(req.VenueCode, req.ProductType, req.TotalCount, req.Priority)
	if err != nil {
		s.respondError(w, err)
		return
	}
	batch, err := s.alloc.GetBatch(id)
	if err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, batch)
}

func (s *Server) handleStartBatch(w http.ResponseWriter, r *http.Request) {
	s.batchTransition(w, r, s.alloc.StartBatch)
}

func (s *Server) handlePauseBatch(w http.ResponseWriter, r *http.Request) {
	s.batchTransition(w, r, s.alloc.PauseBatch)
}

// batchTransition applies a state change to the batch in the path and
// responds with the updated row.
func (s *Server) batchTransition(w http.ResponseWriter, r *http.Request, apply func(int64) error) {
	id, err := batchID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := apply(id); err != nil {
		s.respondError(w, err)
		return
	}
	batch, err := s.alloc.GetBatch(id)
	if err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

func (s *Server) handleBatchPriority(w http.ResponseWriter, r *http.Request) {
	id, err := batchID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req priorityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.alloc.UpdateBatchPriority(id, req.Priority); err != nil {
		s.respondError(w, err)
		return
	}
	batch, err := s.alloc.GetBatch(id)
	if err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

func (s *Server) handleListPool(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	entries, err := s.alloc.ListPool(
		strings.TrimSpace(q.Get("venue")),
		strings.TrimSpace(q.Get("product")),
		strings.TrimSpace(q.Get("status")),
	)
	if err != nil {
		s.respondError(w, err)
		return
	}
	if entries == nil {
		entries = []*types.PoolEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handlePoolImport(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	result, err := s.alloc.BulkImport(req.VenueCode, req.ProductType, req.Identifiers)
	if err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handlePoolRelease(w http.ResponseWriter, r *http.Request) {
	var req hostnameRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.alloc.Release(req.Hostname); err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"hostname": req.Hostname, "status": "available"})
}

func (s *Server) handlePoolRetire(w http.ResponseWriter, r *http.Request) {
	var req hostnameRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.alloc.Retire(req.Hostname); err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"hostname": req.Hostname, "status": "retired"})
}

// batchID parses the {id} path segment
func batchID(r *http.Request) (int64, error) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid batch id: %s", raw)
	}
	return id, nil
}
