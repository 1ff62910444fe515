package catalog

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danielpatrickdp/placement-engine/internal/logging"
)

func validEntry(id string) Entry {
	return Entry{ID: id, Name: "Thing " + id, Price: 10, Rating: 4, Stock: 3}
}

// #region new-tests
func TestNew_NormalizesSets(t *testing.T) {
	e := validEntry("a")
	e.Tags = []string{"Coffee", " coffee", "Home", ""}
	e.Triggers = []string{"Espresso"}

	c, err := New([]Entry{e})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, ok := c.Get("a")
	if !ok {
		t.Fatal("expected entry a")
	}
	if len(got.Tags) != 2 || got.Tags[0] != "coffee" || got.Tags[1] != "home" {
		t.Errorf("unexpected tags: %v", got.Tags)
	}
	if got.Triggers[0] != "espresso" {
		t.Errorf("expected lowercased trigger, got %q", got.Triggers[0])
	}
	if got.PlacementScale != 1 {
		t.Errorf("expected default placement scale 1, got %f", got.PlacementScale)
	}
}

func TestNew_RejectsDuplicateIDs(t *testing.T) {
	_, err := New([]Entry{validEntry("a"), validEntry("a")})
	if !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
}

func TestNew_RejectsOutOfRangeFields(t *testing.T) {
	cases := map[string]func(*Entry){
		"empty id":       func(e *Entry) { e.ID = " " },
		"negative price": func(e *Entry) { e.Price = -1 },
		"discount high":  func(e *Entry) { e.Discount = 101 },
		"discount low":   func(e *Entry) { e.Discount = -5 },
		"rating high":    func(e *Entry) { e.Rating = 5.1 },
		"negative stock": func(e *Entry) { e.Stock = -1 },
		"nan price":      func(e *Entry) { e.Price = math.NaN() },
		"nan rating":     func(e *Entry) { e.Rating = math.NaN() },
		"nan discount":   func(e *Entry) { e.Discount = math.NaN() },
		"inf price":      func(e *Entry) { e.Price = math.Inf(1) },
		"nan scale":      func(e *Entry) { e.PlacementScale = math.NaN() },
		"inf shipping":   func(e *Entry) { e.Shipping.Cost = math.Inf(1) },
	}
	for name, mutate := range cases {
		e := validEntry("x")
		mutate(&e)
		if _, err := New([]Entry{e}); !errors.Is(err, ErrInvalidEntry) {
			t.Errorf("%s: expected ErrInvalidEntry, got %v", name, err)
		}
	}
}

func TestNew_ReportsEveryViolation(t *testing.T) {
	bad1 := validEntry("a")
	bad1.Price = -1
	bad2 := validEntry("b")
	bad2.Rating = 9

	_, err := New([]Entry{bad1, bad2, validEntry("c")})
	if err == nil {
		t.Fatal("expected error")
	}
	var joined interface{ Unwrap() []error }
	if !errors.As(err, &joined) || len(joined.Unwrap()) != 2 {
		t.Fatalf("expected 2 joined errors, got %v", err)
	}
}

func TestCatalog_OrderAndLookup(t *testing.T) {
	c, err := New([]Entry{validEntry("b"), validEntry("a")})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", c.Len())
	}
	if c.Entries()[0].ID != "b" {
		t.Error("expected catalog order preserved")
	}
	if _, ok := c.Get("missing"); ok {
		t.Error("expected missing lookup to fail")
	}
}

func TestCatalog_NilSafe(t *testing.T) {
	var c *Catalog
	if c.Len() != 0 || c.Entries() != nil {
		t.Fatal("nil catalog should be empty")
	}
	if _, ok := c.Get("a"); ok {
		t.Fatal("nil catalog lookup should fail")
	}
}

// #endregion new-tests

// #region entry-tests
func TestEntry_Helpers(t *testing.T) {
	e := Entry{Price: 100, Discount: 20, Stock: 0, Tags: []string{"home"}}
	if e.InStock() {
		t.Error("stock 0 should not be in stock")
	}
	if !e.HasTag("home") || e.HasTag("coffee") {
		t.Error("HasTag mismatch")
	}
	if e.SalePrice() != 80 {
		t.Errorf("expected sale price 80, got %f", e.SalePrice())
	}
}

// #endregion entry-tests

// #region load-tests
const tomlCatalog = `
[[products]]
id = "mug-01"
name = "Morning Mug"
brand = "Acme"
category = "kitchen"
price = 12.5
discount = 10.0
rating = 4.6
stock = 4
tags = ["coffee", "breakfast"]
triggers = ["coffee", "mug"]
asset_ref = "models/mug.glb"
placement_scale = 0.5
dimensions = { x = 0.1, y = 0.12, z = 0.1 }
shipping = { days = 2, cost = 0, free = true }
`

func TestLoad_TOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.toml")
	if err := os.WriteFile(path, []byte(tomlCatalog), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	e, ok := c.Get("mug-01")
	if !ok {
		t.Fatal("expected mug-01")
	}
	if e.Dimensions.Y != 0.12 || !e.Shipping.Free || e.PlacementScale != 0.5 {
		t.Errorf("unexpected decoded entry: %+v", e)
	}
}

func TestLoad_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json")
	data := `{"products":[{"id":"lamp","name":"Desk Lamp","price":30,"rating":4.1,"stock":0,"tags":["home"]}]}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", c.Len())
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := Parse([]byte("not toml = ["), ".toml"); err == nil {
		t.Error("expected toml parse error")
	}
	if _, err := Parse([]byte("{"), ".json"); err == nil {
		t.Error("expected json parse error")
	}
}

func TestParse_RejectsTOMLNaN(t *testing.T) {
	data := `[[products]]
id = "odd"
price = nan
rating = 4.0
stock = 1
`
	if _, err := Parse([]byte(data), ".toml"); !errors.Is(err, ErrInvalidEntry) {
		t.Fatalf("expected ErrInvalidEntry for nan price, got %v", err)
	}
}

// #endregion load-tests

// #region watch-tests
func TestWatch_FiresOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.json")
	if err := os.WriteFile(path, []byte(`{"products":[]}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan struct{}, 8)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, logging.Nop(), func() { changed <- struct{}{} })
	}()

	// Keep writing until the watcher is registered and reports a change.
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-changed:
			cancel()
			if err := <-done; err != nil {
				t.Fatalf("Watch returned error: %v", err)
			}
			return
		case <-tick.C:
			os.WriteFile(path, []byte(`{"products":[]}`), 0o644)
		case <-deadline:
			t.Fatal("timed out waiting for change notification")
		}
	}
}

// #endregion watch-tests
