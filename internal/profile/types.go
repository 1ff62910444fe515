package profile

import "time"

// #region price-range
// PriceRange is the inclusive price band a user prefers.
type PriceRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Contains reports whether price lies inside [Min, Max].
func (r PriceRange) Contains(price float64) bool {
	return price >= r.Min && price <= r.Max
}

// #endregion price-range

// #region history
// History holds append-only interaction sequences, oldest first.
type History struct {
	Viewed    []string `json:"viewed"`
	Purchased []string `json:"purchased"`
	Searched  []string `json:"searched"`
}

// #endregion history

// #region profile
// Profile is the per-device user profile. The JSON shape is the stored contract.
type Profile struct {
	ID         string     `json:"id"`
	PriceRange PriceRange `json:"price_range"`
	Categories []string   `json:"preferred_categories"`
	Brands     []string   `json:"preferred_brands"`
	History    History    `json:"history"`
	CreatedAt  time.Time  `json:"created_at"`
}

// #endregion profile
