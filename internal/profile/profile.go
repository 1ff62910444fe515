package profile

import (
	"time"

	"github.com/google/uuid"
)

const defaultMaxPrice = 1000

// #region default
// Default returns a fresh profile with a new id and an open price band.
func Default() *Profile {
	return &Profile{
		ID:         uuid.New().String(),
		PriceRange: PriceRange{Min: 0, Max: defaultMaxPrice},
		CreatedAt:  time.Now().UTC(),
	}
}

// #endregion default

// #region queries
// PrefersCategory reports whether category is among the preferred categories.
func (p *Profile) PrefersCategory(category string) bool {
	return category != "" && contains(p.Categories, category)
}

// PrefersBrand reports whether brand is among the preferred brands.
func (p *Profile) PrefersBrand(brand string) bool {
	return brand != "" && contains(p.Brands, brand)
}

// HasViewed reports whether the entry id appears in the viewed history.
func (p *Profile) HasViewed(id string) bool {
	return contains(p.History.Viewed, id)
}

// #endregion queries

// #region mutators
// View appends id to the viewed history.
func (p *Profile) View(id string) {
	p.History.Viewed = append(p.History.Viewed, id)
}

// Search appends a query to the searched history.
func (p *Profile) Search(query string) {
	p.History.Searched = append(p.History.Searched, query)
}

// Purchase appends id to the purchased history.
func (p *Profile) Purchase(id string) {
	p.History.Purchased = append(p.History.Purchased, id)
}

// Clone returns a deep copy safe to hand to another goroutine.
func (p *Profile) Clone() *Profile {
	c := *p
	c.Categories = append([]string(nil), p.Categories...)
	c.Brands = append([]string(nil), p.Brands...)
	c.History = History{
		Viewed:    append([]string(nil), p.History.Viewed...),
		Purchased: append([]string(nil), p.History.Purchased...),
		Searched:  append([]string(nil), p.History.Searched...),
	}
	return &c
}

// #endregion mutators

// #region helpers
func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// #endregion helpers
