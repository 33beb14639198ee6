package handler

import (
	"net/http"

	"github.com/wareflow/wareflow-backend/internal/stock/service"
	"github.com/wareflow/wareflow-backend/pkg/httputil"
	"github.com/wareflow/wareflow-backend/pkg/logger"
)

// TransferHandler handles warehouse transfer endpoints
type TransferHandler struct {
	service *service.AllocationService
	logger  *logger.Logger
}

// NewTransferHandler creates a new transfer handler
func NewTransferHandler(svc *service.AllocationService, log *logger.Logger) *TransferHandler {
	return &TransferHandler{
		service: svc,
		logger:  log,
	}
}

// Create moves stock between warehouses
func (h *TransferHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req service.TransferRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.service.Transfer(r.Context(), &req)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, result)
}
