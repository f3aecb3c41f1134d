package http

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/catalog-indexer/internal/reindex"
	"github.com/utafrali/catalog-indexer/internal/service"
	"github.com/utafrali/catalog-indexer/internal/worker"
	apperrors "github.com/utafrali/catalog-indexer/pkg/errors"
	"github.com/utafrali/catalog-indexer/pkg/httputil"
	"github.com/utafrali/catalog-indexer/pkg/middleware"
	"github.com/utafrali/catalog-indexer/pkg/validator"
)

// Reindex modes.
const (
	ModeAll = "all"
	ModeDue = "due"
)

// IndexHandler handles HTTP requests for the indexing admin endpoints.
type IndexHandler struct {
	service *service.IndexService
	logger  *slog.Logger
}

// NewIndexHandler creates a new index HTTP handler.
func NewIndexHandler(svc *service.IndexService, logger *slog.Logger) *IndexHandler {
	return &IndexHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Request / response DTOs ---

// EnqueueRequest is the JSON body of POST /api/v1/index/products.
type EnqueueRequest struct {
	ProductIDs []string `json:"productIds" validate:"required,min=1,max=10000,dive,entityid"`
	Owner      string   `json:"owner" validate:"omitempty,entityid"`
}

// ReindexRequest is the JSON body of POST /api/v1/index/reindex.
type ReindexRequest struct {
	Mode  string `json:"mode" validate:"required,oneof=all due"`
	Owner string `json:"owner" validate:"omitempty,entityid"`
	Limit int    `json:"limit" validate:"gte=0,lte=100000"`
}

// EnqueueResponse reports how many ids were queued.
type EnqueueResponse struct {
	Owner  string `json:"owner"`
	Queued int    `json:"queued"`
}

// DueResponse lists products awaiting a dated rebuild.
type DueResponse struct {
	Owner   string          `json:"owner"`
	Before  time.Time       `json:"before"`
	Entries []reindex.Entry `json:"entries"`
}

// owner resolves the target owner from the request body value or the
// X-Index-Owner header.
func (h *IndexHandler) owner(r *http.Request, explicit string) string {
	if explicit != "" {
		return explicit
	}
	return h.service.Owner(r.Header.Get(middleware.OwnerHeader))
}

// --- Handlers ---

// EnqueueProducts handles POST /api/v1/index/products
func (h *IndexHandler) EnqueueProducts(w http.ResponseWriter, r *http.Request) {
	var req EnqueueRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	owner := h.owner(r, req.Owner)
	n, err := h.service.Enqueue(r.Context(), owner, req.ProductIDs)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusAccepted, EnqueueResponse{Owner: owner, Queued: n})
}

// EnqueueProduct handles POST /api/v1/index/products/{id}
func (h *IndexHandler) EnqueueProduct(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !validator.IsEntityID(id) {
		httputil.WriteError(w, r, apperrors.InvalidInput("invalid product id"), h.logger)
		return
	}

	owner := h.owner(r, r.URL.Query().Get("owner"))
	n, err := h.service.Enqueue(r.Context(), owner, []string{id})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusAccepted, EnqueueResponse{Owner: owner, Queued: n})
}

// Reindex handles POST /api/v1/index/reindex
func (h *IndexHandler) Reindex(w http.ResponseWriter, r *http.Request) {
	var req ReindexRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	owner := h.owner(r, req.Owner)
	var (
		n   int
		err error
	)
	switch req.Mode {
	case ModeAll:
		n, err = h.service.ReindexAll(r.Context(), owner)
	case ModeDue:
		n, err = h.service.ReindexDue(r.Context(), owner, req.Limit)
	}
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusAccepted, EnqueueResponse{Owner: owner, Queued: n})
}

// Status handles GET /api/v1/index/status
func (h *IndexHandler) Status(w http.ResponseWriter, r *http.Request) {
	httputil.WriteData(w, http.StatusOK, map[string][]worker.Status{
		"workers": h.service.Status(r.Context()),
	})
}

// ReindexDue handles GET /api/v1/index/reindex-due
func (h *IndexHandler) ReindexDue(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	before := time.Now().UTC()
	if v := q.Get("before"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			httputil.WriteError(w, r, apperrors.InvalidInput("before must be an RFC 3339 timestamp"), h.logger)
			return
		}
		before = t
	}

	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			httputil.WriteError(w, r, apperrors.InvalidInput("limit must be a non-negative integer"), h.logger)
			return
		}
		limit = n
	}

	owner := h.owner(r, q.Get("owner"))
	entries, err := h.service.Due(r.Context(), owner, before, limit)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, DueResponse{Owner: owner, Before: before, Entries: entries})
}
