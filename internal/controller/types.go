package controller

import (
	"database/sql"
	"errors"
	"time"

	"github.com/danielpatrickdp/placement-engine/internal/cart"
	"github.com/danielpatrickdp/placement-engine/internal/catalog"
	"github.com/danielpatrickdp/placement-engine/internal/logging"
	"github.com/danielpatrickdp/placement-engine/internal/placement"
	"github.com/danielpatrickdp/placement-engine/internal/scoring"
	"github.com/danielpatrickdp/placement-engine/internal/storage"
)

// ErrNoSuggestion is returned by PlaceTop before any text produced a ranking.
var ErrNoSuggestion = errors.New("no suggestion to place")

// #region actions
// Interaction kinds reported by the UI.
const (
	ActionTap       = "tap"
	ActionRotate    = "rotate"
	ActionScale     = "scale"
	ActionInfo      = "info"
	ActionAddToCart = "add_to_cart"
)

// EventSuggestion is tracked every time text input produces a ranking.
const EventSuggestion = "suggestion"

// #endregion actions

// #region config
// Config groups the tunables of every component the controller owns.
type Config struct {
	Scoring   scoring.Config
	Placement placement.Config
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Scoring:   scoring.DefaultConfig(),
		Placement: placement.DefaultConfig(),
	}
}

// #endregion config

// #region deps
// Deps are the controller's collaborators.
type Deps struct {
	// Catalog is the initial catalog. If nil, LoadCatalog is called.
	Catalog *catalog.Catalog
	// LoadCatalog re-reads the catalog after CatalogChanged.
	LoadCatalog func() (*catalog.Catalog, error)

	KV storage.KV
	// SessionDB, when set, also receives a session_log row per session.
	SessionDB *sql.DB
	DeviceID  string

	Loader    placement.AssetLoader
	Poses     placement.PoseSource
	Renderer  placement.Renderer
	Telemetry placement.Telemetry
	Payments  cart.PaymentProcessor

	Now    func() time.Time
	Notify func(msg string)
	Log    *logging.Logger
}

// #endregion deps
