package snapshot

import (
	"sort"
	"time"
)

// Payload is the structured content produced for one check
type Payload struct {
	Metrics   map[string]float64 `json:"metrics,omitempty" yaml:"metrics"`
	Narrative map[string]string  `json:"narrative,omitempty" yaml:"narrative"`
	Sources   []string           `json:"sources,omitempty" yaml:"sources"`
}

// MetricNames returns the payload's metric names in sorted order
func (p *Payload) MetricNames() []string {
	if p == nil {
		return nil
	}
	names := make([]string, 0, len(p.Metrics))
	for name := range p.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot is one point-in-time analysis result for a monitor
type Snapshot struct {
	ID               string    `json:"id"`
	MonitorID        string    `json:"monitor_id"`
	Timestamp        time.Time `json:"timestamp"`
	Payload          *Payload  `json:"payload"`
	Compressed       bool      `json:"compressed"`
	CompressionRatio float64   `json:"compression_ratio"`
	OriginalSize     int       `json:"original_size"`
	StoredSize       int       `json:"stored_size"`

	// Data is the encoded payload exactly as persisted
	Data []byte `json:"-"`
}

// Ack acknowledges an accepted write
type Ack struct {
	SnapshotID       string    `json:"snapshot_id"`
	MonitorID        string    `json:"monitor_id"`
	Timestamp        time.Time `json:"timestamp"`
	Compressed       bool      `json:"compressed"`
	CompressionRatio float64   `json:"compression_ratio"`
	Flushed          bool      `json:"flushed"`
}

// Point is a single metric observation
type Point struct {
	Timestamp time.Time
	Value     float64
}

// Series extracts the observations of one metric, skipping snapshots
// that do not carry it.
func Series(snapshots []*Snapshot, metric string) []Point {
	points := make([]Point, 0, len(snapshots))
	for _, s := range snapshots {
		if s.Payload == nil {
			continue
		}
		if v, ok := s.Payload.Metrics[metric]; ok {
			points = append(points, Point{Timestamp: s.Timestamp, Value: v})
		}
	}
	return points
}

// Values drops the timestamps of a series
func Values(points []Point) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Value
	}
	return out
}
