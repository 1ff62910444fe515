package controller

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/danielpatrickdp/placement-engine/internal/cart"
	"github.com/danielpatrickdp/placement-engine/internal/catalog"
	"github.com/danielpatrickdp/placement-engine/internal/logging"
	"github.com/danielpatrickdp/placement-engine/internal/placement"
	"github.com/danielpatrickdp/placement-engine/internal/profile"
	"github.com/danielpatrickdp/placement-engine/internal/sim"
	"github.com/danielpatrickdp/placement-engine/internal/storage"
)

// #region fixtures
func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.New([]catalog.Entry{
		{
			ID: "coffee-kit", Name: "Pour Over Coffee Kit", Category: "kitchen",
			Price: 40, Discount: 20, Rating: 4.8, Stock: 5,
			Tags: []string{"coffee", "breakfast"}, Triggers: []string{"coffee"},
			AssetRef: "coffee.glb",
		},
		{
			ID: "desk-lamp", Name: "Desk Lamp", Category: "lighting",
			Price: 60, Rating: 4.1, Stock: 20,
			Tags: []string{"relax", "home"}, Triggers: []string{"lamp"},
			AssetRef: "lamp.glb",
		},
		{
			ID: "vintage-mug", Name: "Vintage Mug", Category: "kitchen",
			Price: 15, Rating: 4.0, Stock: 0,
			Tags: []string{"mug"}, Triggers: []string{"mug"},
			AssetRef: "missing.glb",
		},
	})
	if err != nil {
		t.Fatalf("catalog.New: %v", err)
	}
	return cat
}

type recTelemetry struct{ kinds []string }

func (r *recTelemetry) Track(kind string, _ map[string]any) { r.kinds = append(r.kinds, kind) }

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

type harness struct {
	c       *Controller
	store   *storage.Store
	clk     *clock
	tel     *recTelemetry
	floor   *sim.Floor
	notices []string
}

func newHarness(t *testing.T, mutate func(*Deps)) *harness {
	t.Helper()
	store, err := storage.NewStore(filepath.Join(t.TempDir(), "placement.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	cat := testCatalog(t)
	h := &harness{
		store: store,
		clk:   &clock{now: time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)},
		tel:   &recTelemetry{},
		floor: sim.NewFloor(),
	}
	h.floor.Warmup = 0
	deps := Deps{
		Catalog:   cat,
		KV:        store,
		SessionDB: store.DB(),
		DeviceID:  "dev",
		Loader:    sim.LibraryFor(0, cat.Entries()[:2]),
		Poses:     h.floor,
		Renderer:  sim.NewCamera(),
		Telemetry: h.tel,
		Payments:  &sim.Payments{Limit: 100},
		Now:       h.clk.Now,
		Notify:    func(msg string) { h.notices = append(h.notices, msg) },
	}
	if mutate != nil {
		mutate(&deps)
	}
	c, err := New(DefaultConfig(), deps)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(c.Close)
	h.c = c
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	if err := h.c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.c.Tick()
}

func (h *harness) settle(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.c.Settle(ctx); err != nil {
		t.Fatalf("Settle: %v", err)
	}
}

// gatedKV holds every Set while the gate is shut.
type gatedKV struct {
	storage.KV
	mu   sync.Mutex
	gate chan struct{}
}

func (g *gatedKV) shut() {
	g.mu.Lock()
	g.gate = make(chan struct{})
	g.mu.Unlock()
}

func (g *gatedKV) open() {
	g.mu.Lock()
	if g.gate != nil {
		close(g.gate)
		g.gate = nil
	}
	g.mu.Unlock()
}

func (g *gatedKV) Set(ctx context.Context, key string, value []byte) error {
	g.mu.Lock()
	gate := g.gate
	g.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return g.KV.Set(ctx, key, value)
}

// heldPayments approves every order once released.
type heldPayments struct{ release chan struct{} }

func (p *heldPayments) Charge(ctx context.Context, order cart.Order) (cart.Receipt, error) {
	select {
	case <-p.release:
		return cart.Receipt{OrderID: order.ID, Reference: "ref"}, nil
	case <-ctx.Done():
		return cart.Receipt{}, ctx.Err()
	}
}

func (h *harness) storedProfile(t *testing.T) *profile.Profile {
	t.Helper()
	return profile.NewStore(h.store, "dev", nil).Load(context.Background())
}

// #endregion fixtures

// #region constructor-tests
func TestNew_RequiresStorageAndCatalog(t *testing.T) {
	if _, err := New(DefaultConfig(), Deps{Catalog: testCatalog(t)}); err == nil {
		t.Error("expected error without storage")
	}
	store := storage.NewStoreWithDB(nil)
	if _, err := New(DefaultConfig(), Deps{KV: store}); err == nil {
		t.Error("expected error without catalog")
	}
	failing := func() (*catalog.Catalog, error) { return nil, errors.New("no file") }
	if _, err := New(DefaultConfig(), Deps{KV: store, LoadCatalog: failing}); err == nil {
		t.Error("expected catalog load error")
	}
}

// #endregion constructor-tests

// #region flow-tests
func TestSubmitText_BeforeStart(t *testing.T) {
	h := newHarness(t, nil)
	if _, err := h.c.SubmitText("coffee"); !errors.Is(err, placement.ErrNotActive) {
		t.Fatalf("expected ErrNotActive, got %v", err)
	}
}

func TestSubmitText_EmptyInput(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)
	ranked, err := h.c.SubmitText("   ")
	if err != nil || ranked != nil {
		t.Fatalf("expected empty result, got %v / %v", ranked, err)
	}
	if h.c.Session().AutoPlacePending() {
		t.Fatal("empty input must not schedule a placement")
	}
}

func TestMorningCoffeeFlow(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)

	ranked, err := h.c.SubmitText("I need coffee")
	if err != nil {
		t.Fatalf("SubmitText: %v", err)
	}
	if len(ranked) != 1 || ranked[0].Entry.ID != "coffee-kit" {
		t.Fatalf("expected coffee kit as sole suggestion, got %+v", ranked)
	}
	if ranked[0].Confidence <= 0.5 {
		t.Errorf("expected confidence > 0.5, got %f", ranked[0].Confidence)
	}
	if !h.c.Session().AutoPlacePending() {
		t.Fatal("expected auto-placement to be scheduled")
	}

	h.clk.now = h.clk.now.Add(2 * time.Second)
	h.c.Tick()
	h.settle(t)

	insts := h.c.Session().Instances()
	if len(insts) != 1 || insts[0].Entry.ID != "coffee-kit" || insts[0].Loading {
		t.Fatalf("expected loaded coffee kit instance, got %+v", insts)
	}

	p := h.storedProfile(t)
	if len(p.History.Searched) != 1 || p.History.Searched[0] != "I need coffee" {
		t.Errorf("expected persisted search history, got %v", p.History.Searched)
	}
	if len(p.History.Viewed) != 1 || p.History.Viewed[0] != "coffee-kit" {
		t.Errorf("expected persisted view history, got %v", p.History.Viewed)
	}
}

func TestTwoInputsThenEnd_NoPlacements(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)

	h.c.SubmitText("coffee please")
	h.clk.now = h.clk.now.Add(time.Second)
	h.c.Tick()
	h.c.SubmitVoice("a desk lamp")

	snap, ok := h.c.End("user")
	if !ok {
		t.Fatal("expected End to run")
	}
	if snap.Placements != 0 {
		t.Fatalf("expected zero placements, got %d", snap.Placements)
	}
	h.clk.now = h.clk.now.Add(10 * time.Second)
	h.c.Tick()
	if len(h.c.Session().Instances()) != 0 {
		t.Fatal("no instance may appear after End")
	}
	if _, ok := h.c.End("user"); ok {
		t.Fatal("second End must be a no-op")
	}
}

func TestEnd_PersistsSessionRecord(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)
	id := h.c.Session().SessionID()
	if _, err := h.c.PlaceEntry("desk-lamp"); err != nil {
		t.Fatalf("PlaceEntry: %v", err)
	}
	h.c.End("user")
	h.settle(t)

	raw, ok, err := h.store.Get(context.Background(), SessionKey(id))
	if err != nil || !ok {
		t.Fatalf("expected session record in storage: ok=%v err=%v", ok, err)
	}
	var rec logging.SessionRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if rec.Placements != 1 || rec.DeviceID != "dev" || rec.EndReason != "user" {
		t.Errorf("unexpected record: %+v", rec)
	}

	rows, err := logging.ListSessions(h.store.DB(), 10)
	if err != nil || len(rows) != 1 || rows[0].SessionID != id {
		t.Fatalf("expected one session_log row for %s, got %+v (%v)", id, rows, err)
	}
}

// #endregion flow-tests

// #region placement-tests
func TestPlaceTop(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)
	if _, err := h.c.PlaceTop(); !errors.Is(err, ErrNoSuggestion) {
		t.Fatalf("expected ErrNoSuggestion, got %v", err)
	}

	h.c.SubmitText("coffee")
	if _, err := h.c.PlaceTop(); err != nil {
		t.Fatalf("PlaceTop: %v", err)
	}
	if h.c.Session().AutoPlacePending() {
		t.Fatal("manual placement should drop the pending auto-placement")
	}
	h.clk.now = h.clk.now.Add(5 * time.Second)
	h.c.Tick()
	if n := h.c.Analytics().Placements(); n != 1 {
		t.Fatalf("expected exactly one placement, got %d", n)
	}
}

func TestPlaceTop_NoSurfaceKeepsAutoPlace(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)
	h.c.SubmitText("coffee")

	h.floor.SetLost(true)
	h.c.Tick()
	if _, err := h.c.PlaceTop(); !errors.Is(err, placement.ErrNoSurface) {
		t.Fatalf("expected ErrNoSurface, got %v", err)
	}
	if !h.c.Session().AutoPlacePending() {
		t.Fatal("failed manual placement must not cancel auto-placement")
	}
}

func TestSubmitText_NoMatchCancelsAutoPlace(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)
	h.c.SubmitText("coffee")
	if !h.c.Session().AutoPlacePending() {
		t.Fatal("expected auto-placement after a match")
	}

	ranked, err := h.c.SubmitText("umbrella")
	if err != nil || len(ranked) != 0 {
		t.Fatalf("expected no candidates, got %d (%v)", len(ranked), err)
	}
	if h.c.Session().AutoPlacePending() {
		t.Fatal("a query without candidates must drop the earlier auto-placement")
	}
	if _, err := h.c.PlaceTop(); !errors.Is(err, ErrNoSuggestion) {
		t.Fatalf("expected ErrNoSuggestion, got %v", err)
	}
}

func TestPlaceEntry(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)
	if _, err := h.c.PlaceEntry("nope"); !errors.Is(err, catalog.ErrUnknownEntry) {
		t.Fatalf("expected ErrUnknownEntry, got %v", err)
	}

	// Out of stock and without an asset: still placed, as a placeholder.
	inst, err := h.c.PlaceEntry("vintage-mug")
	if err != nil {
		t.Fatalf("PlaceEntry: %v", err)
	}
	h.settle(t)
	got, _ := h.c.Session().Instance(inst.ID)
	if !got.Placeholder {
		t.Fatal("expected placeholder for a missing asset")
	}
	if len(h.notices) == 0 {
		t.Fatal("expected a user notice for the asset failure")
	}
}

func TestInteract_AddToCart(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)
	inst, _ := h.c.PlaceEntry("coffee-kit")

	if err := h.c.Interact(inst.ID, ActionRotate); err != nil {
		t.Fatalf("Interact: %v", err)
	}
	if err := h.c.Interact(inst.ID, ActionAddToCart); err != nil {
		t.Fatalf("Interact add_to_cart: %v", err)
	}
	if h.c.Cart().Count() != 1 {
		t.Fatal("add_to_cart should fill the cart")
	}
	counts := h.c.Analytics().Interactions("coffee-kit")
	if counts[ActionRotate] != 1 || counts[ActionAddToCart] != 1 {
		t.Fatalf("unexpected interactions: %v", counts)
	}
	if err := h.c.Interact("missing", ActionTap); !errors.Is(err, placement.ErrUnknownInstance) {
		t.Fatalf("expected ErrUnknownInstance, got %v", err)
	}
}

// #endregion placement-tests

// #region cart-tests
func TestAddToCart_OutOfStock(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)
	if err := h.c.AddToCart("vintage-mug"); !errors.Is(err, cart.ErrOutOfStock) {
		t.Fatalf("expected ErrOutOfStock, got %v", err)
	}
	if len(h.notices) != 1 {
		t.Fatalf("expected an out-of-stock notice, got %v", h.notices)
	}
}

func TestCheckout_RecordsConversions(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)
	h.c.AddToCart("coffee-kit")
	h.c.AddToCart("coffee-kit")

	if err := h.c.Checkout(); err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	h.settle(t)

	if h.c.Analytics().Conversions("coffee-kit") != 2 {
		t.Fatalf("expected 2 conversions, got %d", h.c.Analytics().Conversions("coffee-kit"))
	}
	if h.c.Cart().Count() != 0 {
		t.Fatal("cart should be empty after a confirmed order")
	}
	p := h.storedProfile(t)
	if len(p.History.Purchased) != 1 || p.History.Purchased[0] != "coffee-kit" {
		t.Fatalf("expected purchase history, got %v", p.History.Purchased)
	}
}

func TestCheckout_PaymentFailureKeepsCart(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)
	for i := 0; i < 2; i++ {
		h.c.AddToCart("desk-lamp")
	}

	h.c.Checkout()
	h.settle(t)

	if h.c.Cart().Count() != 2 || h.c.Cart().State() != cart.CheckoutReady {
		t.Fatal("failed payment must keep items and reset the checkout")
	}
	if h.c.Analytics().Conversions("desk-lamp") != 0 {
		t.Fatal("failed payment must not count conversions")
	}
	if len(h.notices) == 0 {
		t.Fatal("expected a payment failure notice")
	}
}

func TestCheckout_FromEndedSessionLeavesNextAlone(t *testing.T) {
	pay := &heldPayments{release: make(chan struct{})}
	h := newHarness(t, func(d *Deps) { d.Payments = pay })
	h.start(t)

	h.c.AddToCart("coffee-kit")
	if err := h.c.Checkout(); err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	h.c.End("user")
	h.start(t)

	if err := h.c.AddToCart("desk-lamp"); err != nil {
		t.Fatalf("AddToCart: %v", err)
	}
	if err := h.c.Checkout(); err != nil {
		t.Fatalf("checkout in the new session must not be busy: %v", err)
	}
	close(pay.release)
	h.settle(t)

	if n := h.c.Analytics().Conversions("coffee-kit"); n != 0 {
		t.Fatalf("expected no conversions carried over, got %d", n)
	}
	if n := h.c.Analytics().Conversions("desk-lamp"); n != 1 {
		t.Fatalf("expected the new order's conversion, got %d", n)
	}
	if h.c.Cart().Count() != 0 || h.c.Cart().State() != cart.CheckoutReady {
		t.Fatal("expected the new order to clear the cart")
	}
	if got := h.storedProfile(t).History.Purchased; !reflect.DeepEqual(got, []string{"desk-lamp"}) {
		t.Fatalf("expected only the new purchase, got %v", got)
	}
}

// #endregion cart-tests

// #region reload-tests
func TestCatalogReloadAtNextStart(t *testing.T) {
	reloaded, _ := catalog.New([]catalog.Entry{{ID: "only", Name: "Only", Price: 1, Stock: 1}})
	h := newHarness(t, func(d *Deps) {
		d.LoadCatalog = func() (*catalog.Catalog, error) { return reloaded, nil }
	})
	h.start(t)

	h.c.CatalogChanged()
	if h.c.Catalog().Len() != 3 {
		t.Fatal("catalog must not change mid-session")
	}
	h.c.End("user")
	h.start(t)
	if h.c.Catalog() != reloaded {
		t.Fatal("expected catalog reload at the next start")
	}
}

func TestStart_CorruptProfileYieldsDefault(t *testing.T) {
	h := newHarness(t, nil)
	h.store.Set(context.Background(), "profile:dev", []byte("{not json"))
	if err := h.c.Start(context.Background()); err != nil {
		t.Fatalf("corrupt profile must not fail Start: %v", err)
	}
	if h.c.Profile().ID == "" {
		t.Fatal("expected a fresh default profile")
	}
}

func TestProfileSurvivesPendingSaveAcrossSessions(t *testing.T) {
	var kv *gatedKV
	h := newHarness(t, func(d *Deps) {
		kv = &gatedKV{KV: d.KV}
		d.KV = kv
	})
	h.start(t)
	id := h.c.Profile().ID

	h.c.SubmitText("coffee")
	h.settle(t)

	kv.shut()
	h.c.SubmitText("lamp")
	h.c.End("user")
	h.start(t)
	kv.open()
	h.c.SubmitText("mug")
	h.settle(t)

	want := []string{"coffee", "lamp", "mug"}
	if got := h.storedProfile(t).History.Searched; !reflect.DeepEqual(got, want) {
		t.Fatalf("expected searched=%v, got %v", want, got)
	}
	if h.c.Profile().ID != id {
		t.Fatal("profile identity must not change between sessions")
	}
}

func TestStart_MissingProfileIsCreated(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)
	if got := h.storedProfile(t).ID; got != h.c.Profile().ID {
		t.Fatalf("expected the new profile to be stored, got id %q want %q", got, h.c.Profile().ID)
	}
}

// #endregion reload-tests
