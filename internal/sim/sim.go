// Package sim provides stand-in collaborators for running the placement
// engine without a device: a tracked floor, a pinhole camera, an asset
// library with latency and a payment processor with a spending limit.
package sim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/danielpatrickdp/placement-engine/internal/cart"
	"github.com/danielpatrickdp/placement-engine/internal/catalog"
	"github.com/danielpatrickdp/placement-engine/internal/geom"
	"github.com/danielpatrickdp/placement-engine/internal/placement"
)

// #region poses
// Floor is a PoseSource that finds a surface after a warm-up and then
// sweeps the hit point in a slow circle, as a hand-held phone would.
type Floor struct {
	Center geom.Vec3
	Radius float64
	// Warmup is the number of polls that return no surface.
	Warmup int
	// Step is the angle advanced per poll, in radians.
	Step float64

	polls int
	lost  bool
}

// NewFloor returns a floor 1.5m below and 2m in front of the origin.
func NewFloor() *Floor {
	return &Floor{Center: geom.Vec3{Y: -1.5, Z: -2}, Radius: 0.3, Warmup: 30, Step: 0.01}
}

// SetLost simulates losing and regaining tracking.
func (f *Floor) SetLost(lost bool) { f.lost = lost }

// Poll implements placement.PoseSource.
func (f *Floor) Poll() (geom.Pose, bool) {
	f.polls++
	if f.lost || f.polls <= f.Warmup {
		return geom.Pose{}, false
	}
	a := float64(f.polls-f.Warmup) * f.Step
	pos := geom.Vec3{
		X: f.Center.X + f.Radius*math.Cos(a),
		Y: f.Center.Y,
		Z: f.Center.Z + f.Radius*math.Sin(a),
	}
	return geom.Pose{Position: pos, Rotation: geom.Identity}, true
}

// #endregion poses

// #region models
// Mesh is a loaded asset.
type Mesh struct {
	Ref      string
	disposed bool
}

func (m *Mesh) Dispose()       { m.disposed = true }
func (m *Mesh) Disposed() bool { return m.disposed }

// Box is placeholder geometry sized to the entry's dimensions.
type Box struct {
	Size     geom.Vec3
	disposed bool
}

func (b *Box) Dispose()       { b.disposed = true }
func (b *Box) Disposed() bool { return b.disposed }

// #endregion models

// #region renderer
// Node is one attached model.
type Node struct {
	Model placement.Model
	Pose  geom.Pose
	Scale float64
}

// Camera is a pinhole renderer looking down -Z from Position.
type Camera struct {
	Position geom.Vec3
	Width    float64
	Height   float64
	// Focal is the focal length in pixels.
	Focal     float64
	Near, Far float64

	scene map[string]Node
}

// NewCamera returns a 1170x2532 portrait camera at the origin.
func NewCamera() *Camera {
	return &Camera{Width: 1170, Height: 2532, Focal: 1400, Near: 0.1, Far: 50, scene: make(map[string]Node)}
}

// Project implements placement.Renderer. Points behind the camera get
// a depth outside (-1, 1).
func (c *Camera) Project(world geom.Vec3) placement.Projection {
	v := world.Sub(c.Position)
	z := -v.Z
	if z <= 0 {
		return placement.Projection{Depth: 2}
	}
	depth := (c.Far+c.Near)/(c.Far-c.Near) - 2*c.Far*c.Near/((c.Far-c.Near)*z)
	return placement.Projection{
		X:     c.Width/2 + c.Focal*v.X/z,
		Y:     c.Height/2 - c.Focal*v.Y/z,
		Depth: depth,
	}
}

func (c *Camera) Viewport() placement.Viewport {
	return placement.Viewport{Width: c.Width, Height: c.Height}
}

func (c *Camera) CameraPosition() geom.Vec3 { return c.Position }

func (c *Camera) Attach(id string, m placement.Model, pose geom.Pose, scale float64) {
	c.scene[id] = Node{Model: m, Pose: pose, Scale: scale}
}

func (c *Camera) Detach(id string) { delete(c.scene, id) }

func (c *Camera) Placeholder(e catalog.Entry) placement.Model {
	size := e.Dimensions
	if size == (geom.Vec3{}) {
		size = geom.Vec3{X: 0.2, Y: 0.2, Z: 0.2}
	}
	return &Box{Size: size}
}

// Scene returns a copy of the attached nodes.
func (c *Camera) Scene() map[string]Node {
	out := make(map[string]Node, len(c.scene))
	for k, v := range c.scene {
		out[k] = v
	}
	return out
}

// #endregion renderer

// #region assets
// ErrAssetNotFound is returned for refs the library does not hold.
var ErrAssetNotFound = errors.New("asset not found")

// Library is an AssetLoader over a fixed set of refs.
type Library struct {
	Latency time.Duration

	mu   sync.RWMutex
	refs map[string]bool
}

// NewLibrary creates a library holding refs.
func NewLibrary(latency time.Duration, refs ...string) *Library {
	l := &Library{Latency: latency, refs: make(map[string]bool)}
	for _, r := range refs {
		l.refs[r] = true
	}
	return l
}

// LibraryFor holds every asset ref in entries.
func LibraryFor(latency time.Duration, entries []catalog.Entry) *Library {
	l := NewLibrary(latency)
	for _, e := range entries {
		if e.AssetRef != "" {
			l.refs[e.AssetRef] = true
		}
	}
	return l
}

// Remove makes ref unavailable.
func (l *Library) Remove(ref string) {
	l.mu.Lock()
	delete(l.refs, ref)
	l.mu.Unlock()
}

// Load implements placement.AssetLoader.
func (l *Library) Load(ctx context.Context, ref string) (placement.Model, error) {
	if err := sleep(ctx, l.Latency); err != nil {
		return nil, err
	}
	l.mu.RLock()
	ok := l.refs[ref]
	l.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("load %q: %w", ref, ErrAssetNotFound)
	}
	return &Mesh{Ref: ref}, nil
}

// #endregion assets

// #region payments
// ErrLimitExceeded is returned when an order total is above the limit.
var ErrLimitExceeded = errors.New("card limit exceeded")

// Payments approves orders up to Limit after Delay.
type Payments struct {
	Delay time.Duration
	Limit float64
}

// Charge implements cart.PaymentProcessor.
func (p *Payments) Charge(ctx context.Context, order cart.Order) (cart.Receipt, error) {
	if err := sleep(ctx, p.Delay); err != nil {
		return cart.Receipt{}, err
	}
	if p.Limit > 0 && order.Total > p.Limit {
		return cart.Receipt{}, fmt.Errorf("charge %.2f: %w", order.Total, ErrLimitExceeded)
	}
	return cart.Receipt{OrderID: order.ID, Reference: uuid.NewString()}, nil
}

// #endregion payments

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
