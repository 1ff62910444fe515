package scoring

import "github.com/danielpatrickdp/placement-engine/internal/catalog"

// #region reasons
const (
	ReasonPreferences = "matches preferences"
	ReasonMorning     = "perfect for morning"
	ReasonLowStock    = "low stock — buy now"
)

// #endregion reasons

// #region config
// Config holds the additive weights, multipliers and cut-offs of the ranking.
type Config struct {
	TriggerBonus    float64 // added once per matched trigger term
	MaxEditDistance int     // fuzzy trigger match tolerance
	OverlapWeight   float64 // per shared token between input and entry

	CategoryBoost   float64 // preferred category
	ViewedBoost     float64 // entry already in viewed history
	BrandBoost      float64 // preferred brand
	InRangeBoost    float64 // price inside preferred band
	OutOfRangeScale float64 // price outside preferred band

	MorningStart, MorningEnd int // [start, end) hours
	MorningBoost             float64
	EveningStart, EveningEnd int
	EveningBoost             float64

	OutOfStockScale   float64
	LowStockThreshold int // stock strictly below this is "low"
	LowStockBoost     float64

	TopRatedMin     float64
	TopRatedBoost   float64
	DiscountMin     float64 // percent, strictly greater than
	DiscountBoost   float64
	ConfidenceScale float64 // score that maps to confidence 1
	MinConfidence   float64 // strictly greater than to be returned
}

// DefaultConfig returns the production ranking constants.
func DefaultConfig() Config {
	return Config{
		TriggerBonus:    2,
		MaxEditDistance: 2,
		OverlapWeight:   1.5,

		CategoryBoost:   1.3,
		ViewedBoost:     1.2,
		BrandBoost:      1.25,
		InRangeBoost:    1.1,
		OutOfRangeScale: 0.8,

		MorningStart: 6,
		MorningEnd:   10,
		MorningBoost: 1.4,
		EveningStart: 17,
		EveningEnd:   20,
		EveningBoost: 1.3,

		OutOfStockScale:   0.5,
		LowStockThreshold: 10,
		LowStockBoost:     1.2,

		TopRatedMin:     4.5,
		TopRatedBoost:   1.25,
		DiscountMin:     15,
		DiscountBoost:   1.3,
		ConfidenceScale: 20,
		MinConfidence:   0.1,
	}
}

// #endregion config

// #region candidate
// Candidate is one ranked catalog entry.
type Candidate struct {
	Entry          catalog.Entry
	Score          float64 // raw, unbounded
	Confidence     float64 // Score/ConfidenceScale clamped to [0,1]
	MatchedTrigger string  // first trigger term that matched the input, if any
	Reason         string  // display reason, last stage to set it wins
}

// #endregion candidate
