package replay

import (
	"github.com/danielpatrickdp/placement-engine/internal/catalog"
	"github.com/danielpatrickdp/placement-engine/internal/profile"
	"github.com/danielpatrickdp/placement-engine/internal/scoring"
)

// #region types
// Case is a single input to rank during replay.
type Case struct {
	ID      string
	Input   string
	Hour    int
	Profile *profile.Profile // may be nil
}

// Expectation is what a case should produce. An empty Top expects no
// candidate above the confidence floor.
type Expectation struct {
	Top           string
	MinConfidence float64
}

// Result captures the ranking of one case.
type Result struct {
	CaseID     string
	Top        string // empty when nothing cleared the floor
	Confidence float64
	Reason     string
	Candidates int
}

// Summary provides aggregate stats from a replay run.
type Summary struct {
	Total      int
	Matched    int
	Mismatched int
	Empty      int
}

// #endregion types

// #region replay
// Replay ranks each case against entries. Profiles are never mutated, so
// cases are independent of one another.
func Replay(entries []catalog.Entry, cases []Case, config scoring.Config) []Result {
	engine := scoring.NewEngine(config)
	results := make([]Result, 0, len(cases))
	for _, c := range cases {
		ranked := engine.Rank(c.Input, entries, c.Profile, c.Hour)
		r := Result{CaseID: c.ID, Candidates: len(ranked)}
		if len(ranked) > 0 {
			r.Top = ranked[0].Entry.ID
			r.Confidence = ranked[0].Confidence
			r.Reason = ranked[0].Reason
		}
		results = append(results, r)
	}
	return results
}

// Matches reports whether r satisfies e.
func (r Result) Matches(e Expectation) bool {
	if r.Top != e.Top {
		return false
	}
	return r.Top == "" || r.Confidence >= e.MinConfidence
}

// Summarize counts matches. Results beyond len(expected) are mismatches.
func Summarize(results []Result, expected []Expectation) Summary {
	s := Summary{Total: len(results)}
	for i, r := range results {
		if r.Top == "" {
			s.Empty++
		}
		if i < len(expected) && r.Matches(expected[i]) {
			s.Matched++
		} else {
			s.Mismatched++
		}
	}
	return s
}

// #endregion replay
