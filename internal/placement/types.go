package placement

import (
	"context"
	"errors"
	"time"

	"github.com/danielpatrickdp/placement-engine/internal/catalog"
	"github.com/danielpatrickdp/placement-engine/internal/geom"
)

// #region errors
var (
	// ErrNoSurface rejects a placement while the reticle is hidden.
	ErrNoSurface = errors.New("no surface detected")
	// ErrNotActive rejects operations outside a running session.
	ErrNotActive = errors.New("session not active")
	// ErrAlreadyStarted rejects Start on a running session.
	ErrAlreadyStarted = errors.New("session already started")
	// ErrUnknownInstance is returned for an instance id the session does not own.
	ErrUnknownInstance = errors.New("unknown instance")
)

// #endregion errors

// #region state
// State is the session lifecycle position.
type State int

const (
	StateIdle State = iota
	StateScanning
	StateActive
	StateEnding
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StateActive:
		return "active"
	case StateEnding:
		return "ending"
	}
	return "unknown"
}

// Live reports whether the session accepts ticks and placements.
func (s State) Live() bool {
	return s == StateScanning || s == StateActive
}

// #endregion state

// #region collaborators
// Model is a renderable asset. Dispose releases its geometry and materials.
type Model interface {
	Dispose()
}

// AssetLoader instantiates the model behind an asset reference.
type AssetLoader interface {
	Load(ctx context.Context, ref string) (Model, error)
}

// PoseSource reports the tracked surface pose, if any, each tick.
type PoseSource interface {
	Poll() (geom.Pose, bool)
}

// Projection is a world point mapped to screen space. Depth is in
// normalized device coordinates; points in front of the camera lie in (-1, 1).
type Projection struct {
	X, Y  float64
	Depth float64
}

// Viewport is the screen size in pixels.
type Viewport struct {
	Width, Height float64
}

// Renderer owns the scene graph and the camera.
type Renderer interface {
	Project(world geom.Vec3) Projection
	Viewport() Viewport
	CameraPosition() geom.Vec3
	Attach(instanceID string, m Model, pose geom.Pose, scale float64)
	Detach(instanceID string)
	// Placeholder builds the default stand-in geometry for an entry.
	Placeholder(entry catalog.Entry) Model
}

// Telemetry receives fire-and-forget events. Implementations never block.
type Telemetry interface {
	Track(kind string, payload map[string]any)
}

// #endregion collaborators

// #region instance
// Instance is a catalog entry committed to a surface pose.
type Instance struct {
	ID           string
	Entry        catalog.Entry
	Pose         geom.Pose
	CreatedAt    time.Time
	Interactions int
	Placeholder  bool
	// Loading is true until the asset load completes either way.
	Loading bool
	Reason  string

	model    Model
	attached bool
}

// Label is the screen-space annotation bound 1:1 to an instance.
type Label struct {
	InstanceID string
	Text       string
	X, Y       float64
	Scale      float64
	Visible    bool
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// #endregion instance

// #region config
// Config holds the timing and layout constants of a session.
type Config struct {
	AutoPlaceDelay time.Duration
	LabelLifetime  time.Duration
	// LabelMargin expands the viewport on each side for label visibility.
	LabelMargin    float64
	LabelScaleBase float64
	MinLabelScale  float64
	MaxLabelScale  float64
	SampleCapacity int
}

// DefaultConfig returns the production constants.
func DefaultConfig() Config {
	return Config{
		AutoPlaceDelay: 2 * time.Second,
		LabelLifetime:  30 * time.Second,
		LabelMargin:    50,
		LabelScaleBase: 3,
		MinLabelScale:  0.5,
		MaxLabelScale:  1.5,
		SampleCapacity: 1000,
	}
}

// #endregion config

// #region event-kinds
// Telemetry event kinds emitted by the session.
const (
	EventSessionStart = "session_start"
	EventPlacement    = "placement"
	EventAssetFailed  = "asset_fallback"
	EventInteraction  = "interaction"
	EventConversion   = "conversion"
	EventSessionEnd   = "session_end"
)

// #endregion event-kinds
