package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pratik-mahalle/changewatch/internal/api/dto"
	"github.com/pratik-mahalle/changewatch/internal/api/middleware"
	"github.com/pratik-mahalle/changewatch/internal/domain/monitor"
	"github.com/pratik-mahalle/changewatch/internal/pkg/logger"
	"github.com/pratik-mahalle/changewatch/internal/pkg/utils"
	"github.com/pratik-mahalle/changewatch/internal/pkg/validator"
)

// MonitorHandler serves monitor management endpoints
type MonitorHandler struct {
	service   monitor.Service
	checker   Checker
	logger    *logger.Logger
	validator *validator.Validator
}

// NewMonitorHandler creates a new monitor handler
func NewMonitorHandler(service monitor.Service, checker Checker, log *logger.Logger, val *validator.Validator) *MonitorHandler {
	return &MonitorHandler{service: service, checker: checker, logger: log, validator: val}
}

// Create registers a new monitor
func (h *MonitorHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req dto.CreateMonitorRequest
	if !decodeAndValidate(w, r, h.validator, &req) {
		return
	}

	m, err := h.service.Create(r.Context(), userID, req)
	if err != nil {
		utils.WriteErr(w, err, "Failed to create monitor")
		return
	}

	middleware.AddLogField(w, "monitor_id", m.ID)
	utils.WriteSuccess(w, http.StatusCreated, dto.FromMonitor(m))
}

// List returns the caller's monitors
func (h *MonitorHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	page := utils.ParsePaginationParams(r)
	filter := monitor.Filter{
		Status: r.URL.Query().Get("status"),
		Entity: r.URL.Query().Get("entity"),
	}

	monitors, total, err := h.service.List(r.Context(), userID, filter, page.PageSize, page.Offset)
	if err != nil {
		utils.WriteErr(w, err, "Failed to list monitors")
		return
	}

	utils.WriteSuccess(w, http.StatusOK, utils.NewPaginatedResponse(dto.FromMonitors(monitors), page.Page, page.PageSize, total))
}

// Get returns one monitor
func (h *MonitorHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	m, err := h.service.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		utils.WriteErr(w, err, "Failed to get monitor")
		return
	}

	utils.WriteSuccess(w, http.StatusOK, dto.FromMonitor(m))
}

// Update changes a monitor's configuration
func (h *MonitorHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req dto.UpdateMonitorRequest
	if !decodeAndValidate(w, r, h.validator, &req) {
		return
	}

	m, err := h.service.UpdateConfig(r.Context(), userID, chi.URLParam(r, "id"), req)
	if err != nil {
		utils.WriteErr(w, err, "Failed to update monitor")
		return
	}

	utils.WriteSuccess(w, http.StatusOK, dto.FromMonitor(m))
}

// Delete soft-deletes a monitor
func (h *MonitorHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		utils.WriteErr(w, err, "Failed to delete monitor")
		return
	}

	utils.WriteSuccessWithMessage(w, http.StatusOK, "Monitor deleted", nil)
}

// Pause stops scheduled checks
func (h *MonitorHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Pause)
}

// Resume reactivates a paused or errored monitor
func (h *MonitorHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Resume)
}

type transitionFunc func(ctx context.Context, userID, id string) (*monitor.Monitor, error)

func (h *MonitorHandler) transition(w http.ResponseWriter, r *http.Request, fn transitionFunc) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	m, err := fn(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		utils.WriteErr(w, err, "Failed to change monitor status")
		return
	}

	utils.WriteSuccess(w, http.StatusOK, dto.FromMonitor(m))
}

// Check runs a check now and returns its outcome. A paused monitor is
// checked only with force=true.
func (h *MonitorHandler) Check(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "id")
	if _, err := h.service.Get(r.Context(), userID, id); err != nil {
		utils.WriteErr(w, err, "Failed to get monitor")
		return
	}

	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))
	result, err := h.checker.RunCheck(r.Context(), id, force)
	if err != nil {
		utils.WriteErr(w, err, "Failed to run check")
		return
	}

	m, err := h.service.Get(r.Context(), userID, id)
	if err != nil {
		utils.WriteErr(w, err, "Failed to get monitor")
		return
	}

	middleware.AddLogField(w, "check_status", result.Status)
	utils.WriteSuccess(w, http.StatusOK, dto.CheckResponse{Result: result, Monitor: dto.FromMonitor(m)})
}
