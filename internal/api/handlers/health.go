package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/pratik-mahalle/changewatch/internal/pkg/logger"
	"github.com/pratik-mahalle/changewatch/internal/pkg/utils"
)

// PendingCounter reports how many snapshot writes are waiting for a flush
type PendingCounter interface {
	Pending() int
}

// HealthHandler handles health check requests
type HealthHandler struct {
	db     *sql.DB
	store  PendingCounter
	logger *logger.Logger
}

// NewHealthHandler creates a new health handler. store may be nil.
func NewHealthHandler(db *sql.DB, store PendingCounter, log *logger.Logger) *HealthHandler {
	return &HealthHandler{
		db:     db,
		store:  store,
		logger: log,
	}
}

// Healthz handles the liveness probe
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	utils.WriteSuccess(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Readyz reports readiness, which requires a reachable database
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		h.logger.ErrorWithErr(err, "Database ping failed")
		utils.WriteErrorMessage(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Database connection failed")
		return
	}

	status := map[string]interface{}{
		"status":   "ready",
		"database": "connected",
	}
	if h.store != nil {
		status["pending_snapshots"] = h.store.Pending()
	}
	utils.WriteSuccess(w, http.StatusOK, status)
}
