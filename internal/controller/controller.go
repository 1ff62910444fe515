package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/danielpatrickdp/placement-engine/internal/analytics"
	"github.com/danielpatrickdp/placement-engine/internal/cart"
	"github.com/danielpatrickdp/placement-engine/internal/catalog"
	"github.com/danielpatrickdp/placement-engine/internal/logging"
	"github.com/danielpatrickdp/placement-engine/internal/placement"
	"github.com/danielpatrickdp/placement-engine/internal/profile"
	"github.com/danielpatrickdp/placement-engine/internal/scheduler"
	"github.com/danielpatrickdp/placement-engine/internal/scoring"
	"github.com/danielpatrickdp/placement-engine/internal/storage"
)

const closeGrace = 2 * time.Second

// #region controller-struct
// Controller is the session context handed to the UI. It owns the
// catalog, profile, cart and placement session, and must be driven from a
// single loop goroutine like the session itself.
type Controller struct {
	engine    *scoring.Engine
	session   *placement.Session
	cart      *cart.Cart
	profiles  *profile.Store
	profile   *profile.Profile
	telemetry placement.Telemetry
	async     *scheduler.Async

	catalog      *catalog.Catalog
	loadCatalog  func() (*catalog.Catalog, error)
	catalogDirty atomic.Bool

	kv        storage.KV
	deviceID  string
	recordSQL func(logging.SessionRecord) error

	now    func() time.Time
	notify func(string)
	log    *logging.Logger

	suggestions   []scoring.Candidate
	profileLoaded bool
	saving        bool
	saveAgain     bool
}

// #endregion controller-struct

// #region constructor
// New wires a controller. The session starts idle.
func New(cfg Config, deps Deps) (*Controller, error) {
	if deps.KV == nil {
		return nil, errors.New("controller: storage is required")
	}
	cat := deps.Catalog
	if cat == nil {
		if deps.LoadCatalog == nil {
			return nil, errors.New("controller: catalog is required")
		}
		var err error
		if cat, err = deps.LoadCatalog(); err != nil {
			return nil, fmt.Errorf("load catalog: %w", err)
		}
	}

	log := deps.Log
	if log == nil {
		log = logging.Nop()
	}
	c := &Controller{
		engine:      scoring.NewEngine(cfg.Scoring),
		telemetry:   deps.Telemetry,
		async:       scheduler.NewAsync(),
		catalog:     cat,
		loadCatalog: deps.LoadCatalog,
		kv:          deps.KV,
		deviceID:    deps.DeviceID,
		now:         deps.Now,
		notify:      deps.Notify,
		log:         log.With("component", "controller"),
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.notify == nil {
		c.notify = func(string) {}
	}
	if c.telemetry == nil {
		c.telemetry = nopTelemetry{}
	}
	if db := deps.SessionDB; db != nil {
		c.recordSQL = func(rec logging.SessionRecord) error { return logging.LogSession(db, rec) }
	}

	c.profiles = profile.NewStore(deps.KV, deps.DeviceID, log)
	c.profile = profile.Default()
	c.cart = cart.New(deps.Payments, c.async, log)
	c.session = placement.NewSession(cfg.Placement, placement.Deps{
		Loader:    deps.Loader,
		Poses:     deps.Poses,
		Renderer:  deps.Renderer,
		Telemetry: c.telemetry,
		Now:       c.now,
		Notify:    c.notify,
		OnPlaced:  c.placed,
		Log:       log,
	})
	return c, nil
}

type nopTelemetry struct{}

func (nopTelemetry) Track(string, map[string]any) {}

// #endregion constructor

// #region lifecycle
// CatalogChanged marks the catalog for reload at the next Start. Safe to
// call from any goroutine.
func (c *Controller) CatalogChanged() {
	c.catalogDirty.Store(true)
}

// Start begins a session, loading the profile on the first call. The
// catalog is fixed for the whole session.
func (c *Controller) Start(ctx context.Context) error {
	if c.session.State() != placement.StateIdle {
		return placement.ErrAlreadyStarted
	}
	if c.catalogDirty.Swap(false) && c.loadCatalog != nil {
		cat, err := c.loadCatalog()
		if err != nil {
			c.log.Warn("catalog reload failed, keeping previous", "error", err)
		} else {
			c.log.Info("catalog reloaded", "entries", cat.Len())
			c.catalog = cat
		}
	}
	// Later sessions keep the in-memory copy, which may be ahead of storage.
	if !c.profileLoaded {
		c.profile = c.profiles.Load(ctx)
		c.profileLoaded = true
	}
	c.suggestions = nil
	c.cart.Reset()
	return c.session.Start()
}

// Tick applies finished background work and advances the session.
func (c *Controller) Tick() {
	c.async.Drain()
	c.session.Tick()
}

// End stops the session and persists its record. A checkout still being
// charged is detached from the cart. It is idempotent.
func (c *Controller) End(reason string) (analytics.Snapshot, bool) {
	id := c.session.SessionID()
	snap, ok := c.session.End(reason)
	if !ok {
		return snap, false
	}
	c.suggestions = nil
	c.cart.Reset()
	c.writeRecord(id, reason, snap)
	return snap, true
}

// Settle waits for background work: asset loads, profile and session
// writes, payments. Used by tests and before shutdown.
func (c *Controller) Settle(ctx context.Context) error {
	if err := c.async.Settle(ctx); err != nil {
		return err
	}
	return c.session.Settle(ctx)
}

// Close ends the session, gives pending writes a short grace period and
// abandons whatever is still running after it.
func (c *Controller) Close() {
	c.End("shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), closeGrace)
	defer cancel()
	if err := c.Settle(ctx); err != nil {
		c.log.Warn("background work abandoned at close", "error", err)
	}
	c.session.Close()
	c.async.Close()
}

// #endregion lifecycle

// #region input
// SubmitText ranks the catalog against text, records the search and
// schedules auto-placement of the best candidate.
func (c *Controller) SubmitText(text string) ([]scoring.Candidate, error) {
	if !c.session.State().Live() {
		return nil, placement.ErrNotActive
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	c.profile.Search(text)
	c.persistProfile()

	ranked := c.engine.RankAt(text, c.catalog.Entries(), c.profile, c.now())
	c.suggestions = ranked

	payload := map[string]any{"query": text, "count": len(ranked)}
	if len(ranked) > 0 {
		top := ranked[0]
		payload["top"] = top.Entry.ID
		payload["confidence"] = top.Confidence
		if err := c.session.ScheduleAutoPlace(top); err != nil {
			return ranked, err
		}
		c.log.Info("suggestion", "query", text, "top", top.Entry.ID,
			"score", top.Score, "confidence", top.Confidence, "reason", top.Reason)
	} else {
		c.session.CancelAutoPlace()
		c.log.Info("no suggestion", "query", text)
	}
	c.telemetry.Track(EventSuggestion, payload)
	return ranked, nil
}

// SubmitVoice handles a transcribed utterance exactly like typed text.
func (c *Controller) SubmitVoice(transcript string) ([]scoring.Candidate, error) {
	return c.SubmitText(transcript)
}

// #endregion input

// #region placement
// PlaceTop places the current best suggestion now and drops the pending
// auto-placement.
func (c *Controller) PlaceTop() (placement.Instance, error) {
	if len(c.suggestions) == 0 {
		return placement.Instance{}, ErrNoSuggestion
	}
	inst, err := c.session.PlaceBest(c.suggestions[0])
	if err != nil {
		return inst, err
	}
	c.session.CancelAutoPlace()
	return inst, nil
}

// PlaceEntry places a catalog entry chosen by the user.
func (c *Controller) PlaceEntry(id string) (placement.Instance, error) {
	entry, ok := c.catalog.Get(id)
	if !ok {
		return placement.Instance{}, fmt.Errorf("place %s: %w", id, catalog.ErrUnknownEntry)
	}
	return c.session.PlaceExplicit(entry)
}

// Remove takes one instance off the surface.
func (c *Controller) Remove(instanceID string) error {
	return c.session.Remove(instanceID)
}

// Interact records an action on a placed instance. add_to_cart also puts
// the entry in the cart.
func (c *Controller) Interact(instanceID, action string) error {
	if err := c.session.RecordInteraction(instanceID, action); err != nil {
		return err
	}
	if action != ActionAddToCart {
		return nil
	}
	inst, _ := c.session.Instance(instanceID)
	return c.AddToCart(inst.Entry.ID)
}

// placed appends every placed entry to the viewed history.
func (c *Controller) placed(inst placement.Instance) {
	c.profile.View(inst.Entry.ID)
	c.persistProfile()
}

// #endregion placement

// #region cart
// AddToCart adds one unit of id. Out-of-stock entries are rejected with a
// notice; placement of the same entry stays allowed.
func (c *Controller) AddToCart(id string) error {
	entry, ok := c.catalog.Get(id)
	if !ok {
		return fmt.Errorf("cart %s: %w", id, catalog.ErrUnknownEntry)
	}
	if err := c.cart.Add(entry); err != nil {
		if errors.Is(err, cart.ErrOutOfStock) {
			c.notify(fmt.Sprintf("%s is out of stock", entry.Name))
		}
		return err
	}
	return nil
}

// RemoveFromCart drops one unit of id.
func (c *Controller) RemoveFromCart(id string) error {
	return c.cart.Remove(id)
}

// Checkout charges the cart in the background. Confirmed purchases are
// counted as conversions and added to the purchase history.
func (c *Controller) Checkout() error {
	return c.cart.Checkout(c.checkedOut)
}

func (c *Controller) checkedOut(res cart.Result) {
	if res.Err != nil {
		c.notify("Payment failed: " + res.Err.Error())
		c.telemetry.Track("checkout_failed", map[string]any{"order_id": res.Order.ID, "error": res.Err.Error()})
		return
	}
	for _, it := range res.Order.Items {
		for i := 0; i < it.Quantity; i++ {
			if err := c.session.RecordConversion(it.Entry.ID); err != nil {
				c.log.Debug("conversion after session end", "entry_id", it.Entry.ID)
			}
		}
		c.profile.Purchase(it.Entry.ID)
	}
	c.persistProfile()
	c.notify(fmt.Sprintf("Order confirmed, total $%.2f", res.Order.Total))
}

// #endregion cart

// #region persistence
// persistProfile saves a copy of the profile in the background. Saves
// never overlap; a change during a save triggers one more save after it.
func (c *Controller) persistProfile() {
	if c.saving {
		c.saveAgain = true
		return
	}
	c.saving = true
	snap := c.profile.Clone()
	c.async.Go(func(ctx context.Context) scheduler.Done {
		err := c.profiles.Save(ctx, snap)
		return func(bool) {
			c.saving = false
			if err != nil {
				c.log.Warn("profile save failed", "error", err)
			}
			if c.saveAgain {
				c.saveAgain = false
				c.persistProfile()
			}
		}
	})
}

// SessionKey is the storage key of a session record.
func SessionKey(sessionID string) string { return "session:" + sessionID }

func (c *Controller) writeRecord(sessionID, reason string, snap analytics.Snapshot) {
	raw, err := json.Marshal(snap)
	if err != nil {
		c.log.Error("marshal analytics", "error", err)
		return
	}
	rec := logging.SessionRecord{
		SessionID:     sessionID,
		DeviceID:      c.deviceID,
		StartedAt:     snap.SessionStart,
		EndedAt:       snap.TakenAt,
		Placements:    snap.Placements,
		Conversions:   snap.TotalConversions(),
		EndReason:     reason,
		AnalyticsJSON: string(raw),
	}
	c.async.Go(func(ctx context.Context) scheduler.Done {
		body, err := json.Marshal(rec)
		if err == nil {
			err = c.kv.Set(ctx, SessionKey(sessionID), body)
		}
		if err != nil {
			c.log.Warn("session record write failed", "session_id", sessionID, "error", err)
		}
		if c.recordSQL != nil {
			if err := c.recordSQL(rec); err != nil {
				c.log.Warn("session log write failed", "session_id", sessionID, "error", err)
			}
		}
		return nil
	})
}

// #endregion persistence

// #region accessors
func (c *Controller) Session() *placement.Session      { return c.session }
func (c *Controller) Cart() *cart.Cart                 { return c.cart }
func (c *Controller) Catalog() *catalog.Catalog        { return c.catalog }
func (c *Controller) Analytics() *analytics.Aggregator { return c.session.Analytics() }

// Profile returns a copy of the current profile.
func (c *Controller) Profile() *profile.Profile { return c.profile.Clone() }

// Suggestions returns the ranking of the last text input.
func (c *Controller) Suggestions() []scoring.Candidate {
	return append([]scoring.Candidate(nil), c.suggestions...)
}

// #endregion accessors
