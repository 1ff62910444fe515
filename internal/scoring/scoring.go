package scoring

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/danielpatrickdp/placement-engine/internal/catalog"
	"github.com/danielpatrickdp/placement-engine/internal/profile"
)

// #region engine
// Engine ranks catalog entries against free text. It holds no mutable state.
type Engine struct {
	config Config
}

// NewEngine creates an engine with the given configuration.
func NewEngine(config Config) *Engine {
	return &Engine{config: config}
}

// Config returns the engine's configuration.
func (e *Engine) Config() Config {
	return e.config
}

// #endregion engine

// #region rank
// Rank scores every entry against input and returns those above the
// confidence floor, highest raw score first. Equal scores keep catalog order.
// prof may be nil. hour is the local hour of day (0-23) used for
// time-of-day context.
func (e *Engine) Rank(input string, entries []catalog.Entry, prof *profile.Profile, hour int) []Candidate {
	tokens := tokenize(input)
	if len(tokens) == 0 || len(entries) == 0 {
		return nil
	}
	tokenSet := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		tokenSet[t] = true
	}

	var out []Candidate
	for _, entry := range entries {
		c := e.score(entry, tokens, tokenSet, prof, hour)
		if c.Confidence > e.config.MinConfidence {
			out = append(out, c)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}

// RankAt is Rank with the hour taken from now's local clock.
func (e *Engine) RankAt(input string, entries []catalog.Entry, prof *profile.Profile, now time.Time) []Candidate {
	return e.Rank(input, entries, prof, now.Hour())
}

// #endregion rank

// #region score
// score runs every stage for one entry. No stage exits early.
func (e *Engine) score(entry catalog.Entry, tokens []string, tokenSet map[string]bool, prof *profile.Profile, hour int) Candidate {
	cfg := e.config
	c := Candidate{Entry: entry}

	// Additive: trigger terms
	for _, trigger := range entry.Triggers {
		if e.triggerMatches(trigger, tokens) {
			c.Score += cfg.TriggerBonus
			if c.MatchedTrigger == "" {
				c.MatchedTrigger = trigger
				c.Reason = trigger
			}
		}
	}

	// Additive: shared tokens
	shared := 0
	for t := range entryTokens(entry) {
		if tokenSet[t] {
			shared++
		}
	}
	c.Score += cfg.OverlapWeight * float64(shared)

	// Multiplicative: profile
	if prof != nil {
		if prof.PrefersCategory(entry.Category) {
			c.Score *= cfg.CategoryBoost
			if c.Reason == "" {
				c.Reason = ReasonPreferences
			}
		}
		if prof.HasViewed(entry.ID) {
			c.Score *= cfg.ViewedBoost
		}
		if prof.PrefersBrand(entry.Brand) {
			c.Score *= cfg.BrandBoost
		}
		if prof.PriceRange.Contains(entry.Price) {
			c.Score *= cfg.InRangeBoost
		} else {
			c.Score *= cfg.OutOfRangeScale
		}
	}

	// Multiplicative: time of day
	switch {
	case inWindow(hour, cfg.MorningStart, cfg.MorningEnd) && (entry.HasTag("coffee") || entry.HasTag("breakfast")):
		c.Score *= cfg.MorningBoost
		c.Reason = ReasonMorning
	case inWindow(hour, cfg.EveningStart, cfg.EveningEnd) && (entry.HasTag("relax") || entry.HasTag("home")):
		c.Score *= cfg.EveningBoost
	}

	// Multiplicative: stock. Out of stock is penalized, never excluded.
	switch {
	case entry.Stock <= 0:
		c.Score *= cfg.OutOfStockScale
	case entry.Stock < cfg.LowStockThreshold:
		c.Score *= cfg.LowStockBoost
		c.Reason = ReasonLowStock
	}

	// Multiplicative: quality and promotion
	if entry.Rating >= cfg.TopRatedMin {
		c.Score *= cfg.TopRatedBoost
	}
	if entry.Discount > cfg.DiscountMin {
		c.Score *= cfg.DiscountBoost
		c.Reason = fmt.Sprintf("%.0f%% off", entry.Discount)
	}

	c.Confidence = confidence(c.Score, cfg.ConfidenceScale)
	return c
}

// triggerMatches reports whether any token overlaps trigger by substring in
// either direction or lies within the edit distance tolerance.
func (e *Engine) triggerMatches(trigger string, tokens []string) bool {
	for _, t := range tokens {
		if strings.Contains(trigger, t) || strings.Contains(t, trigger) {
			return true
		}
		if Levenshtein(t, trigger) <= e.config.MaxEditDistance {
			return true
		}
	}
	return false
}

// #endregion score

// #region helpers
// tokenize splits text into lowercase whitespace-delimited tokens.
func tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

// entryTokens is the set of tags, lowercase name words and category.
func entryTokens(entry catalog.Entry) map[string]bool {
	set := make(map[string]bool, len(entry.Tags)+4)
	for _, t := range entry.Tags {
		set[t] = true
	}
	for _, w := range strings.Fields(strings.ToLower(entry.Name)) {
		set[w] = true
	}
	if entry.Category != "" {
		set[strings.ToLower(entry.Category)] = true
	}
	return set
}

func inWindow(hour, start, end int) bool {
	return hour >= start && hour < end
}

func confidence(score, scale float64) float64 {
	if scale <= 0 {
		return 0
	}
	c := score / scale
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// #endregion helpers
