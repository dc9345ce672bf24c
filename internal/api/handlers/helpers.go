package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/pratik-mahalle/changewatch/internal/api/middleware"
	"github.com/pratik-mahalle/changewatch/internal/domain/monitor"
	"github.com/pratik-mahalle/changewatch/internal/pkg/errors"
	"github.com/pratik-mahalle/changewatch/internal/pkg/utils"
	"github.com/pratik-mahalle/changewatch/internal/pkg/validator"
)

const maxBodyBytes = 1 << 20

// Checker runs an on-demand check for a monitor
type Checker interface {
	RunCheck(ctx context.Context, monitorID string, force bool) (*monitor.CheckResult, error)
}

// requireUserID returns the caller's ID, writing 401 when it is missing
func requireUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := middleware.GetUserID(r)
	if !ok {
		utils.WriteError(w, errors.Unauthorized("Missing user identity"))
	}
	return userID, ok
}

// decodeAndValidate reads a JSON body into dst and validates it, writing
// the error response on failure
func decodeAndValidate(w http.ResponseWriter, r *http.Request, val *validator.Validator, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		utils.WriteError(w, errors.BadRequest("Invalid request body: "+err.Error()))
		return false
	}
	if verrs := val.Validate(dst); len(verrs) > 0 {
		utils.WriteError(w, errors.ValidationError("Validation failed", verrs))
		return false
	}
	return true
}

// parseTimeQuery parses an RFC3339 timestamp or a YYYY-MM-DD date
func parseTimeQuery(r *http.Request, key string, def time.Time) (time.Time, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, errors.BadRequest("Invalid " + key + ": expected RFC3339 or YYYY-MM-DD")
	}
	return t.UTC(), nil
}
