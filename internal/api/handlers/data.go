package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pratik-mahalle/changewatch/internal/api/dto"
	"github.com/pratik-mahalle/changewatch/internal/domain/aggregation"
	"github.com/pratik-mahalle/changewatch/internal/domain/monitor"
	"github.com/pratik-mahalle/changewatch/internal/domain/snapshot"
	"github.com/pratik-mahalle/changewatch/internal/pkg/errors"
	"github.com/pratik-mahalle/changewatch/internal/pkg/logger"
	"github.com/pratik-mahalle/changewatch/internal/pkg/utils"
)

const (
	defaultSnapshotWindow = 7 * 24 * time.Hour
	defaultSnapshotLimit  = 100
	maxSnapshotLimit      = 1000
	defaultAggregations   = 30
)

// DataHandler serves stored snapshots and their rollups
type DataHandler struct {
	monitors     monitor.Service
	store        snapshot.Store
	aggregations aggregation.Service
	logger       *logger.Logger
	now          func() time.Time
}

// NewDataHandler creates a new data handler
func NewDataHandler(monitors monitor.Service, store snapshot.Store, aggregations aggregation.Service, log *logger.Logger) *DataHandler {
	return &DataHandler{
		monitors:     monitors,
		store:        store,
		aggregations: aggregations,
		logger:       log,
		now:          time.Now,
	}
}

// Snapshots returns decoded snapshots with start <= ts < end. The window
// defaults to the last seven days.
func (h *DataHandler) Snapshots(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ownedMonitor(w, r)
	if !ok {
		return
	}

	now := h.now().UTC()
	end, err := parseTimeQuery(r, "end", now)
	if err != nil {
		utils.WriteErr(w, err, "Invalid end")
		return
	}
	start, err := parseTimeQuery(r, "start", end.Add(-defaultSnapshotWindow))
	if err != nil {
		utils.WriteErr(w, err, "Invalid start")
		return
	}
	if !start.Before(end) {
		utils.WriteError(w, errors.BadRequest("start must be before end"))
		return
	}

	limit := utils.ParseIntQuery(r.URL.Query().Get("limit"), defaultSnapshotLimit)
	if limit < 1 || limit > maxSnapshotLimit {
		limit = defaultSnapshotLimit
	}

	snaps, err := h.store.Range(r.Context(), id, start, end, limit)
	if err != nil {
		utils.WriteErr(w, err, "Failed to read snapshots")
		return
	}

	utils.WriteSuccess(w, http.StatusOK, dto.FromSnapshots(snaps))
}

// Aggregations returns the rollup of the period containing start, or the
// most recent rollups when start is omitted
func (h *DataHandler) Aggregations(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ownedMonitor(w, r)
	if !ok {
		return
	}

	period := r.URL.Query().Get("period")
	if period == "" {
		period = aggregation.PeriodDaily
	}
	if !aggregation.IsValidPeriod(period) {
		utils.WriteError(w, errors.BadRequest("Invalid period: "+period))
		return
	}

	if r.URL.Query().Get("start") != "" {
		start, err := parseTimeQuery(r, "start", time.Time{})
		if err != nil {
			utils.WriteErr(w, err, "Invalid start")
			return
		}
		agg, err := h.aggregations.Get(r.Context(), id, period, aggregation.PeriodStart(period, start))
		if err != nil {
			utils.WriteErr(w, err, "Failed to read aggregation")
			return
		}
		if agg == nil {
			utils.WriteError(w, errors.NotFound("Aggregation"))
			return
		}
		utils.WriteSuccess(w, http.StatusOK, agg)
		return
	}

	limit := utils.ParseIntQuery(r.URL.Query().Get("limit"), defaultAggregations)
	if limit < 1 || limit > utils.MaxPageSize {
		limit = defaultAggregations
	}
	aggs, err := h.aggregations.ListByMonitor(r.Context(), id, period, limit)
	if err != nil {
		utils.WriteErr(w, err, "Failed to list aggregations")
		return
	}
	if aggs == nil {
		aggs = []*aggregation.Aggregation{}
	}

	utils.WriteSuccess(w, http.StatusOK, aggs)
}

func (h *DataHandler) ownedMonitor(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return "", false
	}
	m, err := h.monitors.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		utils.WriteErr(w, err, "Failed to get monitor")
		return "", false
	}
	return m.ID, true
}
