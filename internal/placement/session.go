package placement

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/danielpatrickdp/placement-engine/internal/analytics"
	"github.com/danielpatrickdp/placement-engine/internal/catalog"
	"github.com/danielpatrickdp/placement-engine/internal/geom"
	"github.com/danielpatrickdp/placement-engine/internal/logging"
	"github.com/danielpatrickdp/placement-engine/internal/scheduler"
	"github.com/danielpatrickdp/placement-engine/internal/scoring"
)

// #region deps
// Deps are the collaborators a Session calls out to. Loader, Poses and
// Renderer are required; the rest have no-op or wall-clock defaults.
type Deps struct {
	Loader    AssetLoader
	Poses     PoseSource
	Renderer  Renderer
	Telemetry Telemetry
	Now       func() time.Time
	// Yaw returns the initial rotation of a new instance in radians.
	Yaw func() float64
	// Notify shows a non-blocking notice to the user.
	Notify func(msg string)
	// OnPlaced runs after every successful placement, manual or automatic.
	OnPlaced func(inst Instance)
	Log      *logging.Logger
}

type nopTelemetry struct{}

func (nopTelemetry) Track(string, map[string]any) {}

// #endregion deps

// #region session-struct
// Session is the placement state machine. All methods must be called from
// one loop goroutine; asynchronous collaborator results re-enter through Tick.
type Session struct {
	cfg       Config
	loader    AssetLoader
	poses     PoseSource
	renderer  Renderer
	telemetry Telemetry
	now       func() time.Time
	yaw       func() float64
	notify    func(string)
	onPlaced  func(Instance)
	log       *logging.Logger

	state     State
	sessionID string

	reticle        geom.Pose
	reticleVisible bool

	instances  map[string]*Instance
	order      []string
	labels     map[string]*Label
	labelTasks map[string]*scheduler.Task
	autoPlace  *scheduler.Task

	stats *analytics.Aggregator
	sched *scheduler.Scheduler
	async *scheduler.Async

	snapshots    int
	lastSnapshot analytics.Snapshot
}

// #endregion session-struct

// #region constructor
// NewSession creates an idle session.
func NewSession(cfg Config, deps Deps) *Session {
	s := &Session{
		cfg:        cfg,
		loader:     deps.Loader,
		poses:      deps.Poses,
		renderer:   deps.Renderer,
		telemetry:  deps.Telemetry,
		now:        deps.Now,
		yaw:        deps.Yaw,
		notify:     deps.Notify,
		onPlaced:   deps.OnPlaced,
		log:        deps.Log,
		instances:  make(map[string]*Instance),
		labels:     make(map[string]*Label),
		labelTasks: make(map[string]*scheduler.Task),
		stats:      analytics.NewAggregator(cfg.SampleCapacity),
		sched:      scheduler.New(),
		async:      scheduler.NewAsync(),
	}
	if s.telemetry == nil {
		s.telemetry = nopTelemetry{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.yaw == nil {
		s.yaw = func() float64 { return rand.Float64() * 2 * math.Pi }
	}
	if s.notify == nil {
		s.notify = func(string) {}
	}
	if s.onPlaced == nil {
		s.onPlaced = func(Instance) {}
	}
	if s.log == nil {
		s.log = logging.Nop()
	}
	s.log = s.log.With("component", "placement")
	return s
}

// #endregion constructor

// #region start
// Start resets analytics and begins scanning for a surface.
func (s *Session) Start() error {
	if s.state != StateIdle {
		return ErrAlreadyStarted
	}
	now := s.now()
	s.sessionID = uuid.NewString()
	s.stats.Reset(now)
	s.reticleVisible = false
	s.state = StateScanning

	s.log.Info("session started", "session_id", s.sessionID)
	s.telemetry.Track(EventSessionStart, map[string]any{
		"session_id": s.sessionID,
		"started_at": now,
	})
	return nil
}

// #endregion start

// #region tick
// Tick runs one loop iteration: apply finished asset loads, poll the pose,
// fire due timers, refresh labels.
func (s *Session) Tick() {
	s.async.Drain()
	if !s.state.Live() {
		return
	}
	now := s.now()

	if pose, ok := s.poses.Poll(); ok {
		s.reticle = pose
		s.reticleVisible = true
		s.stats.RecordSample(pose.Position, now)
	} else {
		s.reticleVisible = false
	}

	s.sched.Fire(now)
	s.refreshLabels()
}

// #endregion tick

// #region place
// PlaceBest commits a ranked candidate at the reticle.
func (s *Session) PlaceBest(c scoring.Candidate) (Instance, error) {
	return s.place(c.Entry, c.Reason)
}

// PlaceExplicit commits a specific entry at the reticle.
func (s *Session) PlaceExplicit(entry catalog.Entry) (Instance, error) {
	return s.place(entry, "")
}

func (s *Session) place(entry catalog.Entry, reason string) (Instance, error) {
	if !s.state.Live() {
		return Instance{}, ErrNotActive
	}
	if !s.reticleVisible {
		s.notify("Point the camera at a flat surface first")
		return Instance{}, ErrNoSurface
	}

	now := s.now()
	inst := &Instance{
		ID:        uuid.NewString(),
		Entry:     entry,
		Pose:      s.reticle.Rotated(s.yaw()),
		CreatedAt: now,
		Loading:   true,
		Reason:    reason,
	}
	s.instances[inst.ID] = inst
	s.order = append(s.order, inst.ID)
	s.state = StateActive

	s.stats.RecordPlacement()
	s.stats.RecordImpression(entry.ID)
	s.bindLabel(inst, now)
	s.load(inst)

	s.log.Info("placed", "instance_id", inst.ID, "entry_id", entry.ID, "reason", reason)
	s.telemetry.Track(EventPlacement, map[string]any{
		"session_id":  s.sessionID,
		"instance_id": inst.ID,
		"entry_id":    entry.ID,
		"reason":      reason,
	})
	s.onPlaced(*inst)
	return *inst, nil
}

// load requests the asset without blocking the loop. A failed load is
// replaced by a placeholder so the placement is never dropped.
func (s *Session) load(inst *Instance) {
	id, entry := inst.ID, inst.Entry
	s.async.Go(func(ctx context.Context) scheduler.Done {
		m, err := s.loader.Load(ctx, entry.AssetRef)
		return func(stale bool) {
			s.finishLoad(id, m, err, stale)
		}
	})
}

func (s *Session) finishLoad(id string, m Model, err error, stale bool) {
	inst, ok := s.instances[id]
	if stale || !ok {
		if m != nil {
			m.Dispose()
		}
		return
	}
	inst.Loading = false

	if err != nil {
		s.log.Warn("asset load failed, using placeholder", "entry_id", inst.Entry.ID, "ref", inst.Entry.AssetRef, "error", err)
		if m != nil {
			m.Dispose()
		}
		m = s.renderer.Placeholder(inst.Entry)
		inst.Placeholder = true
		s.dropLabel(id)
		s.notify(fmt.Sprintf("Couldn't load %s, showing a preview box", inst.Entry.Name))
		s.telemetry.Track(EventAssetFailed, map[string]any{
			"session_id":  s.sessionID,
			"instance_id": id,
			"entry_id":    inst.Entry.ID,
			"error":       err.Error(),
		})
	}

	inst.model = m
	s.renderer.Attach(id, m, inst.Pose, inst.Entry.PlacementScale)
	inst.attached = true
}

// #endregion place

// #region auto-place
// ScheduleAutoPlace places c after the configured delay if the session is
// still live and a surface is visible then. It supersedes any earlier
// pending auto-placement.
func (s *Session) ScheduleAutoPlace(c scoring.Candidate) error {
	if !s.state.Live() {
		return ErrNotActive
	}
	s.CancelAutoPlace()
	s.autoPlace = s.sched.After(s.now(), s.cfg.AutoPlaceDelay, func() {
		s.autoPlace = nil
		if !s.state.Live() || !s.reticleVisible {
			s.log.Debug("auto-place skipped", "entry_id", c.Entry.ID, "reticle", s.reticleVisible)
			return
		}
		if _, err := s.PlaceBest(c); err != nil {
			s.log.Warn("auto-place failed", "entry_id", c.Entry.ID, "error", err)
		}
	})
	return nil
}

// CancelAutoPlace drops the pending auto-placement, if any.
func (s *Session) CancelAutoPlace() {
	s.autoPlace.Cancel()
	s.autoPlace = nil
}

// AutoPlacePending reports whether an auto-placement is waiting to fire.
func (s *Session) AutoPlacePending() bool {
	return s.autoPlace != nil && !s.autoPlace.Cancelled()
}

// #endregion auto-place

// #region interactions
// RecordInteraction counts a user action on a placed instance.
func (s *Session) RecordInteraction(instanceID, action string) error {
	inst, ok := s.instances[instanceID]
	if !ok {
		return fmt.Errorf("interaction %s on %s: %w", action, instanceID, ErrUnknownInstance)
	}
	inst.Interactions++
	s.stats.RecordInteraction(inst.Entry.ID, action)
	s.telemetry.Track(EventInteraction, map[string]any{
		"session_id":  s.sessionID,
		"instance_id": instanceID,
		"entry_id":    inst.Entry.ID,
		"action":      action,
	})
	return nil
}

// RecordConversion counts a confirmed purchase of entryID.
func (s *Session) RecordConversion(entryID string) error {
	if !s.state.Live() {
		return ErrNotActive
	}
	s.stats.RecordConversion(entryID)
	s.telemetry.Track(EventConversion, map[string]any{
		"session_id": s.sessionID,
		"entry_id":   entryID,
	})
	return nil
}

// Remove detaches one instance and releases its resources.
func (s *Session) Remove(instanceID string) error {
	inst, ok := s.instances[instanceID]
	if !ok {
		return fmt.Errorf("remove %s: %w", instanceID, ErrUnknownInstance)
	}
	s.release(inst)
	delete(s.instances, instanceID)
	for i, id := range s.order {
		if id == instanceID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *Session) release(inst *Instance) {
	s.dropLabel(inst.ID)
	if inst.attached {
		s.renderer.Detach(inst.ID)
		inst.attached = false
	}
	if inst.model != nil {
		inst.model.Dispose()
		inst.model = nil
	}
}

// #endregion interactions

// #region end
// End tears the session down and returns the final analytics snapshot.
// A second call returns ok=false and does nothing.
func (s *Session) End(reason string) (snap analytics.Snapshot, ok bool) {
	if !s.state.Live() {
		return analytics.Snapshot{}, false
	}
	s.state = StateEnding

	s.sched.CancelAll()
	s.autoPlace = nil
	s.async.Reset()

	for _, id := range s.order {
		s.release(s.instances[id])
	}
	s.instances = make(map[string]*Instance)
	s.order = nil
	s.labels = make(map[string]*Label)
	s.labelTasks = make(map[string]*scheduler.Task)
	s.reticleVisible = false

	snap = s.stats.Snapshot(s.now())
	s.snapshots++
	s.lastSnapshot = snap
	s.telemetry.Track(EventSessionEnd, map[string]any{
		"session_id": s.sessionID,
		"reason":     reason,
		"analytics":  snap,
	})
	s.log.Info("session ended", "session_id", s.sessionID, "reason", reason,
		"placements", snap.Placements, "samples", len(snap.HeatmapSamples))

	// Loads that already finished are released now rather than at the next tick.
	s.async.Drain()
	s.state = StateIdle
	return snap, true
}

// Settle waits for in-flight collaborator calls and applies their results.
func (s *Session) Settle(ctx context.Context) error {
	return s.async.Settle(ctx)
}

// Close ends the session if needed and waits for background work.
func (s *Session) Close() {
	s.End("shutdown")
	s.async.Close()
}

// #endregion end

// #region accessors
func (s *Session) State() State                     { return s.state }
func (s *Session) SessionID() string                { return s.sessionID }
func (s *Session) ReticleVisible() bool             { return s.reticleVisible }
func (s *Session) Analytics() *analytics.Aggregator { return s.stats }

// Snapshots returns how many times End produced a snapshot.
func (s *Session) Snapshots() int { return s.snapshots }

// LastSnapshot returns the snapshot of the most recent End.
func (s *Session) LastSnapshot() analytics.Snapshot { return s.lastSnapshot }

// Reticle returns the last tracked pose and whether it is current.
func (s *Session) Reticle() (geom.Pose, bool) { return s.reticle, s.reticleVisible }

// Instances returns copies of the live instances in placement order.
func (s *Session) Instances() []Instance {
	out := make([]Instance, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.instances[id])
	}
	return out
}

// Instance returns a copy of one live instance.
func (s *Session) Instance(id string) (Instance, bool) {
	inst, ok := s.instances[id]
	if !ok {
		return Instance{}, false
	}
	return *inst, true
}

// Labels returns copies of the live labels in placement order.
func (s *Session) Labels() []Label {
	out := make([]Label, 0, len(s.labels))
	for _, id := range s.order {
		if l, ok := s.labels[id]; ok {
			out = append(out, *l)
		}
	}
	return out
}

// #endregion accessors
