package dto

import (
	"time"

	"github.com/pratik-mahalle/changewatch/internal/domain/monitor"
	"github.com/pratik-mahalle/changewatch/internal/domain/snapshot"
)

// SnapshotDTO represents a decoded snapshot in API responses
type SnapshotDTO struct {
	ID               string            `json:"id"`
	Timestamp        time.Time         `json:"timestamp"`
	Payload          *snapshot.Payload `json:"payload"`
	Compressed       bool              `json:"compressed"`
	CompressionRatio float64           `json:"compression_ratio"`
	StoredSize       int               `json:"stored_size"`
}

// FromSnapshots converts decoded snapshots to their API form
func FromSnapshots(snaps []*snapshot.Snapshot) []SnapshotDTO {
	out := make([]SnapshotDTO, len(snaps))
	for i, s := range snaps {
		out[i] = SnapshotDTO{
			ID:               s.ID,
			Timestamp:        s.Timestamp,
			Payload:          s.Payload,
			Compressed:       s.Compressed,
			CompressionRatio: s.CompressionRatio,
			StoredSize:       s.StoredSize,
		}
	}
	return out
}

// CheckResponse is returned by a forced check
type CheckResponse struct {
	Result  *monitor.CheckResult `json:"result"`
	Monitor MonitorDTO           `json:"monitor"`
}
