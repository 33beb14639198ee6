package handler

import (
	"net/http"

	"github.com/wareflow/wareflow-backend/internal/stock/service"
	"github.com/wareflow/wareflow-backend/pkg/httputil"
	"github.com/wareflow/wareflow-backend/pkg/logger"
)

// AdjustmentHandler handles damage/recovery and return endpoints
type AdjustmentHandler struct {
	service *service.AllocationService
	logger  *logger.Logger
}

// NewAdjustmentHandler creates a new adjustment handler
func NewAdjustmentHandler(svc *service.AllocationService, log *logger.Logger) *AdjustmentHandler {
	return &AdjustmentHandler{
		service: svc,
		logger:  log,
	}
}

// DamageRecovery records a damage or recovery event
func (h *AdjustmentHandler) DamageRecovery(w http.ResponseWriter, r *http.Request) {
	var req service.DamageRecoveryRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.service.DamageRecovery(r.Context(), &req)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, result)
}

// Return records an inbound customer return
func (h *AdjustmentHandler) Return(w http.ResponseWriter, r *http.Request) {
	var req service.ReturnRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.service.Return(r.Context(), &req)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, result)
}
