package analytics

import "time"

// DefaultSampleCapacity bounds the heatmap buffer.
const DefaultSampleCapacity = 1000

// #region sample
// Sample is one tracked surface position.
type Sample struct {
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	Z         float64   `json:"z"`
	Timestamp time.Time `json:"timestamp"`
}

// #endregion sample

// #region snapshot
// Snapshot is a deep copy of the aggregator, as flushed to telemetry and
// stored with the session record.
type Snapshot struct {
	SessionStart   time.Time                 `json:"session_start"`
	TakenAt        time.Time                 `json:"taken_at"`
	Placements     int                       `json:"placements"`
	Impressions    map[string]int            `json:"impressions"`
	Interactions   map[string]map[string]int `json:"interactions"`
	Conversions    map[string]int            `json:"conversions"`
	HeatmapSamples []Sample                  `json:"heatmap_samples"`
}

// TotalConversions sums conversions across entries.
func (s Snapshot) TotalConversions() int {
	n := 0
	for _, c := range s.Conversions {
		n += c
	}
	return n
}

// #endregion snapshot

// #region entry-count
// EntryCount pairs an entry id with a count, used for leaderboards.
type EntryCount struct {
	EntryID string
	Count   int
}

// #endregion entry-count
