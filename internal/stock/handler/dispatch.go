package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/wareflow/wareflow-backend/internal/stock/repository"
	"github.com/wareflow/wareflow-backend/internal/stock/service"
	"github.com/wareflow/wareflow-backend/pkg/httputil"
	"github.com/wareflow/wareflow-backend/pkg/logger"
)

// DispatchHandler handles dispatch endpoints
type DispatchHandler struct {
	service *service.AllocationService
	logger  *logger.Logger
}

// NewDispatchHandler creates a new dispatch handler
func NewDispatchHandler(svc *service.AllocationService, log *logger.Logger) *DispatchHandler {
	return &DispatchHandler{
		service: svc,
		logger:  log,
	}
}

// Create dispatches stock against an order
func (h *DispatchHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req service.DispatchRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.service.Dispatch(r.Context(), &req)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, result)
}

// List lists dispatch headers
func (h *DispatchHandler) List(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}

	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	if perPage < 1 || perPage > 200 {
		perPage = 50
	}

	filter := repository.DispatchFilter{
		Warehouse: r.URL.Query().Get("warehouse"),
		Status:    r.URL.Query().Get("status"),
		Search:    r.URL.Query().Get("search"),
		Page:      page,
		PerPage:   perPage,
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

	dispatches, total, err := h.service.ListDispatches(r.Context(), filter)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	totalPages := int(total) / perPage
	if int(total)%perPage > 0 {
		totalPages++
	}

	httputil.JSONWithMeta(w, http.StatusOK, dispatches, &httputil.Meta{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: totalPages,
	})
}

// UpdateStatus updates a dispatch's fulfillment status
func (h *DispatchHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		Status      string  `json:"status" validate:"required,oneof=pending shipped delivered cancelled"`
		ProcessedBy *string `json:"processed_by,omitempty"`
		Remarks     *string `json:"remarks,omitempty"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	if err := h.service.UpdateDispatchStatus(r.Context(), id, req.Status, req.ProcessedBy, req.Remarks); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]string{
		"id":     id,
		"status": req.Status,
	})
}
