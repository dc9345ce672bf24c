package monitor

import (
	"github.com/pratik-mahalle/changewatch/internal/domain/alert"
)

// Check outcome status
const (
	CheckOK       = "ok"
	CheckDegraded = "degraded"
	CheckFailed   = "failed"
)

// CheckResult is the tagged outcome of one check cycle
type CheckResult struct {
	MonitorID  string       `json:"monitor_id"`
	Status     string       `json:"status"`
	Reasons    []string     `json:"reasons,omitempty"`
	Baseline   bool         `json:"baseline"`
	SnapshotID string       `json:"snapshot_id,omitempty"`
	Changes    int          `json:"changes"`
	Alert      *alert.Alert `json:"alert,omitempty"`
	Suppressed string       `json:"suppressed,omitempty"`
}

// Degrade marks the result degraded unless it already failed
func (r *CheckResult) Degrade(reason string) {
	if r.Status != CheckFailed {
		r.Status = CheckDegraded
	}
	r.Reasons = append(r.Reasons, reason)
}

// Fail marks the result failed
func (r *CheckResult) Fail(reason string) {
	r.Status = CheckFailed
	r.Reasons = append(r.Reasons, reason)
}
