package analytics

import (
	"sort"
	"time"

	"github.com/danielpatrickdp/placement-engine/internal/geom"
)

// #region aggregator
// Aggregator holds session counters and a bounded FIFO of heatmap samples.
// It is not safe for concurrent use; the session loop is its only writer.
type Aggregator struct {
	placements   int
	impressions  map[string]int
	interactions map[string]map[string]int
	conversions  map[string]int

	ring  []Sample
	head  int // index of the oldest sample
	count int

	sessionStart time.Time
}

// NewAggregator creates an aggregator whose heatmap holds at most capacity
// samples. A non-positive capacity uses DefaultSampleCapacity.
func NewAggregator(capacity int) *Aggregator {
	if capacity <= 0 {
		capacity = DefaultSampleCapacity
	}
	a := &Aggregator{ring: make([]Sample, capacity)}
	a.Reset(time.Time{})
	return a
}

// Reset clears every counter and sample and stamps the session start.
func (a *Aggregator) Reset(start time.Time) {
	a.placements = 0
	a.impressions = make(map[string]int)
	a.interactions = make(map[string]map[string]int)
	a.conversions = make(map[string]int)
	a.head, a.count = 0, 0
	a.sessionStart = start
}

// #endregion aggregator

// #region record
// RecordPlacement bumps the monotonic placement counter.
func (a *Aggregator) RecordPlacement() {
	a.placements++
}

// RecordImpression counts one impression for entryID.
func (a *Aggregator) RecordImpression(entryID string) {
	a.impressions[entryID]++
}

// RecordInteraction counts one action of kind action on entryID.
func (a *Aggregator) RecordInteraction(entryID, action string) {
	byAction, ok := a.interactions[entryID]
	if !ok {
		byAction = make(map[string]int)
		a.interactions[entryID] = byAction
	}
	byAction[action]++
}

// RecordConversion counts one confirmed purchase of entryID.
func (a *Aggregator) RecordConversion(entryID string) {
	a.conversions[entryID]++
}

// RecordSample appends a heatmap sample, evicting the oldest when full.
func (a *Aggregator) RecordSample(pos geom.Vec3, at time.Time) {
	s := Sample{X: pos.X, Y: pos.Y, Z: pos.Z, Timestamp: at}
	capacity := len(a.ring)
	if a.count < capacity {
		a.ring[(a.head+a.count)%capacity] = s
		a.count++
		return
	}
	a.ring[a.head] = s
	a.head = (a.head + 1) % capacity
}

// #endregion record

// #region accessors
// Placements returns the number of placements this session.
func (a *Aggregator) Placements() int { return a.placements }

// Impressions returns the impression count for entryID.
func (a *Aggregator) Impressions(entryID string) int { return a.impressions[entryID] }

// Conversions returns the conversion count for entryID.
func (a *Aggregator) Conversions(entryID string) int { return a.conversions[entryID] }

// SessionStart returns the timestamp of the last Reset.
func (a *Aggregator) SessionStart() time.Time { return a.sessionStart }

// SampleCount returns the number of buffered heatmap samples.
func (a *Aggregator) SampleCount() int { return a.count }

// Interactions returns a copy of the per-action counts for entryID.
func (a *Aggregator) Interactions(entryID string) map[string]int {
	out := make(map[string]int, len(a.interactions[entryID]))
	for k, v := range a.interactions[entryID] {
		out[k] = v
	}
	return out
}

// Samples returns the buffered samples, oldest first.
func (a *Aggregator) Samples() []Sample {
	out := make([]Sample, a.count)
	for i := 0; i < a.count; i++ {
		out[i] = a.ring[(a.head+i)%len(a.ring)]
	}
	return out
}

// TopEntries returns up to n entries by impressions, ties by id.
func (a *Aggregator) TopEntries(n int) []EntryCount {
	out := make([]EntryCount, 0, len(a.impressions))
	for id, c := range a.impressions {
		out = append(out, EntryCount{EntryID: id, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].EntryID < out[j].EntryID
	})
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// #endregion accessors

// #region snapshot
// Snapshot returns a deep copy of the current state.
func (a *Aggregator) Snapshot(now time.Time) Snapshot {
	s := Snapshot{
		SessionStart:   a.sessionStart,
		TakenAt:        now,
		Placements:     a.placements,
		Impressions:    copyCounts(a.impressions),
		Interactions:   make(map[string]map[string]int, len(a.interactions)),
		Conversions:    copyCounts(a.conversions),
		HeatmapSamples: a.Samples(),
	}
	for id, byAction := range a.interactions {
		s.Interactions[id] = copyCounts(byAction)
	}
	return s
}

func copyCounts(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// #endregion snapshot
