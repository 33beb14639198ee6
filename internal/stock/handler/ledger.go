package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/wareflow/wareflow-backend/internal/stock/repository"
	"github.com/wareflow/wareflow-backend/internal/stock/service"
	"github.com/wareflow/wareflow-backend/pkg/httputil"
	"github.com/wareflow/wareflow-backend/pkg/logger"
)

// LedgerHandler handles movement ledger endpoints
type LedgerHandler struct {
	service *service.AllocationService
	logger  *logger.Logger
}

// NewLedgerHandler creates a new ledger handler
func NewLedgerHandler(svc *service.AllocationService, log *logger.Logger) *LedgerHandler {
	return &LedgerHandler{
		service: svc,
		logger:  log,
	}
}

// List lists ledger entries
func (h *LedgerHandler) List(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}

	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	if perPage < 1 || perPage > 200 {
		perPage = 50
	}

	filter := repository.LedgerFilter{
		Warehouse:    r.URL.Query().Get("warehouse"),
		Barcode:      r.URL.Query().Get("barcode"),
		MovementType: r.URL.Query().Get("movement_type"),
		Page:         page,
		PerPage:      perPage,
	}
	if from := r.URL.Query().Get("date_from"); from != "" {
		if t, err := time.Parse("2006-01-02", from); err == nil {
			filter.DateFrom = t
		}
	}
	if to := r.URL.Query().Get("date_to"); to != "" {
		if t, err := time.Parse("2006-01-02", to); err == nil {
			filter.DateTo = t.Add(24*time.Hour - time.Nanosecond)
		}
	}

	entries, total, err := h.service.ListLedger(r.Context(), filter)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	totalPages := int(total) / perPage
	if int(total)%perPage > 0 {
		totalPages++
	}

	httputil.JSONWithMeta(w, http.StatusOK, entries, &httputil.Meta{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: totalPages,
	})
}
