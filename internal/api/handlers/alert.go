package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pratik-mahalle/changewatch/internal/api/dto"
	"github.com/pratik-mahalle/changewatch/internal/domain/alert"
	"github.com/pratik-mahalle/changewatch/internal/pkg/errors"
	"github.com/pratik-mahalle/changewatch/internal/pkg/logger"
	"github.com/pratik-mahalle/changewatch/internal/pkg/utils"
	"github.com/pratik-mahalle/changewatch/internal/pkg/validator"
)

// AlertHandler serves alert endpoints
type AlertHandler struct {
	service   alert.Service
	logger    *logger.Logger
	validator *validator.Validator
}

// NewAlertHandler creates a new alert handler
func NewAlertHandler(service alert.Service, log *logger.Logger, val *validator.Validator) *AlertHandler {
	return &AlertHandler{service: service, logger: log, validator: val}
}

// ListByMonitor returns a monitor's alerts, newest first
func (h *AlertHandler) ListByMonitor(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	filter := alert.Filter{Urgency: q.Get("urgency")}
	if filter.Urgency != "" && !isUrgency(filter.Urgency) {
		utils.WriteError(w, errors.BadRequest("Invalid urgency: "+filter.Urgency))
		return
	}
	filter.UnreadOnly, _ = strconv.ParseBool(q.Get("unread"))
	if q.Get("since") != "" {
		since, err := parseTimeQuery(r, "since", time.Time{})
		if err != nil {
			utils.WriteErr(w, err, "Invalid since")
			return
		}
		filter.Since = &since
	}

	page := utils.ParsePaginationParams(r)
	alerts, total, err := h.service.ListByMonitor(r.Context(), userID, chi.URLParam(r, "id"), filter, page.PageSize, page.Offset)
	if err != nil {
		utils.WriteErr(w, err, "Failed to list alerts")
		return
	}

	utils.WriteSuccess(w, http.StatusOK, utils.NewPaginatedResponse(dto.FromAlerts(alerts), page.Page, page.PageSize, total))
}

// Get returns one alert
func (h *AlertHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	a, err := h.service.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		utils.WriteErr(w, err, "Failed to get alert")
		return
	}

	utils.WriteSuccess(w, http.StatusOK, dto.FromAlert(a))
}

// MarkRead marks an alert as read
func (h *AlertHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.MarkRead(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		utils.WriteErr(w, err, "Failed to mark alert read")
		return
	}

	utils.WriteSuccessWithMessage(w, http.StatusOK, "Alert marked as read", nil)
}

// Feedback records whether an alert was useful
func (h *AlertHandler) Feedback(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req dto.FeedbackRequest
	if !decodeAndValidate(w, r, h.validator, &req) {
		return
	}

	if err := h.service.SubmitFeedback(r.Context(), userID, chi.URLParam(r, "id"), req.Feedback, req.Comment); err != nil {
		utils.WriteErr(w, err, "Failed to record feedback")
		return
	}

	utils.WriteSuccessWithMessage(w, http.StatusOK, "Feedback recorded", nil)
}

func isUrgency(v string) bool {
	switch v {
	case alert.UrgencyCritical, alert.UrgencyHigh, alert.UrgencyMedium, alert.UrgencyLow:
		return true
	default:
		return false
	}
}
