package catalog

import (
	"errors"

	"github.com/danielpatrickdp/placement-engine/internal/geom"
)

// #region errors
var (
	ErrInvalidEntry = errors.New("invalid catalog entry")
	ErrDuplicateID  = errors.New("duplicate catalog id")
	ErrUnknownEntry = errors.New("unknown catalog entry")
)

// #endregion errors

// #region shipping
// Shipping describes delivery terms for an entry.
type Shipping struct {
	Days int     `json:"days" toml:"days"`
	Cost float64 `json:"cost" toml:"cost"`
	Free bool    `json:"free" toml:"free"`
}

// #endregion shipping

// #region entry
// Entry is one immutable catalog product. Field names and tags are the
// on-disk contract consumed by catalog tooling.
type Entry struct {
	ID             string    `json:"id" toml:"id"`
	Name           string    `json:"name" toml:"name"`
	Brand          string    `json:"brand" toml:"brand"`
	Category       string    `json:"category" toml:"category"`
	Price          float64   `json:"price" toml:"price"`
	Discount       float64   `json:"discount" toml:"discount"` // percent, 0-100
	Rating         float64   `json:"rating" toml:"rating"`     // 0-5
	Stock          int       `json:"stock" toml:"stock"`
	Tags           []string  `json:"tags" toml:"tags"`
	Triggers       []string  `json:"triggers" toml:"triggers"`
	AssetRef       string    `json:"asset_ref" toml:"asset_ref"`
	PlacementScale float64   `json:"placement_scale" toml:"placement_scale"`
	Dimensions     geom.Vec3 `json:"dimensions" toml:"dimensions"`
	Shipping       Shipping  `json:"shipping" toml:"shipping"`
}

// InStock reports whether at least one unit is available.
func (e Entry) InStock() bool {
	return e.Stock > 0
}

// HasTag reports whether the entry carries tag (case-insensitive after load).
func (e Entry) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// SalePrice is the unit price after discount.
func (e Entry) SalePrice() float64 {
	return e.Price * (1 - e.Discount/100)
}

// #endregion entry

// #region file
// file is the top-level shape of a catalog file.
type file struct {
	Products []Entry `json:"products" toml:"products"`
}

// #endregion file
