package handler

import (
	"net/http"
	"strconv"

	"github.com/wareflow/wareflow-backend/internal/stock/service"
	"github.com/wareflow/wareflow-backend/pkg/errors"
	"github.com/wareflow/wareflow-backend/pkg/httputil"
	"github.com/wareflow/wareflow-backend/pkg/logger"
)

// BatchHandler handles batch intake and availability endpoints
type BatchHandler struct {
	service *service.AllocationService
	logger  *logger.Logger
}

// NewBatchHandler creates a new batch handler
func NewBatchHandler(svc *service.AllocationService, log *logger.Logger) *BatchHandler {
	return &BatchHandler{
		service: svc,
		logger:  log,
	}
}

// Create receives new stock batches into a warehouse
func (h *BatchHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req service.IntakeRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.service.Intake(r.Context(), &req)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, result)
}

// List lists active batches for a barcode in FIFO order
func (h *BatchHandler) List(w http.ResponseWriter, r *http.Request) {
	warehouse := r.URL.Query().Get("warehouse")
	barcode := r.URL.Query().Get("barcode")
	if warehouse == "" || barcode == "" {
		httputil.Error(w, errors.BadRequest("warehouse and barcode are required"))
		return
	}

	batches, err := h.service.ListBatches(r.Context(), warehouse, barcode)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, batches)
}

// Availability reports available stock for a barcode
func (h *BatchHandler) Availability(w http.ResponseWriter, r *http.Request) {
	warehouse := r.URL.Query().Get("warehouse")
	barcode := r.URL.Query().Get("barcode")
	if warehouse == "" || barcode == "" {
		httputil.Error(w, errors.BadRequest("warehouse and barcode are required"))
		return
	}

	qty, _ := strconv.Atoi(r.URL.Query().Get("qty"))

	result, err := h.service.Availability(r.Context(), warehouse, barcode, qty)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}
