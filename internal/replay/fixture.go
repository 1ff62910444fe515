package replay

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/danielpatrickdp/placement-engine/internal/catalog"
	"github.com/danielpatrickdp/placement-engine/internal/profile"
	"github.com/danielpatrickdp/placement-engine/internal/scoring"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a ranking fixture.
type Fixture struct {
	Description string           `json:"description"`
	CatalogPath string           `json:"catalog_path,omitempty"`
	Products    []catalog.Entry  `json:"products,omitempty"`
	Profile     *profile.Profile `json:"profile,omitempty"`
	Config      FixtureConfig    `json:"config"`
	Cases       []FixtureCase    `json:"cases"`
}

// FixtureCase is one input and what the engine should make of it.
type FixtureCase struct {
	ID    string `json:"id"`
	Input string `json:"input"`
	Hour  int    `json:"hour"`
	// ExpectTop is the entry id expected first; empty expects no result.
	ExpectTop     string  `json:"expect_top"`
	MinConfidence float64 `json:"min_confidence,omitempty"`
}

// FixtureConfig overrides scoring weights. Zero fields keep the default.
type FixtureConfig struct {
	TriggerBonus    float64 `json:"trigger_bonus"`
	MaxEditDistance int     `json:"max_edit_distance"`
	OverlapWeight   float64 `json:"overlap_weight"`
	ConfidenceScale float64 `json:"confidence_scale"`
	MinConfidence   float64 `json:"min_confidence"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file. A relative
// catalog_path is resolved against the fixture's directory.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	if f.CatalogPath != "" && !filepath.IsAbs(f.CatalogPath) {
		f.CatalogPath = filepath.Join(filepath.Dir(path), f.CatalogPath)
	}
	return &f, nil
}

// Catalog builds the fixture's catalog from products or catalog_path.
func (f *Fixture) Catalog() (*catalog.Catalog, error) {
	if f.CatalogPath != "" {
		return catalog.Load(f.CatalogPath)
	}
	return catalog.New(f.Products)
}

// ToCases converts fixture cases to harness cases sharing the fixture profile.
func (f *Fixture) ToCases() []Case {
	cases := make([]Case, len(f.Cases))
	for i, fc := range f.Cases {
		cases[i] = Case{ID: fc.ID, Input: fc.Input, Hour: fc.Hour, Profile: f.Profile}
	}
	return cases
}

// Expectations returns the expected top id and confidence floor per case.
func (f *Fixture) Expectations() []Expectation {
	out := make([]Expectation, len(f.Cases))
	for i, fc := range f.Cases {
		out[i] = Expectation{Top: fc.ExpectTop, MinConfidence: fc.MinConfidence}
	}
	return out
}

// ToScoringConfig applies the overrides on top of scoring.DefaultConfig.
func (fc FixtureConfig) ToScoringConfig() scoring.Config {
	cfg := scoring.DefaultConfig()
	if fc.TriggerBonus > 0 {
		cfg.TriggerBonus = fc.TriggerBonus
	}
	if fc.MaxEditDistance > 0 {
		cfg.MaxEditDistance = fc.MaxEditDistance
	}
	if fc.OverlapWeight > 0 {
		cfg.OverlapWeight = fc.OverlapWeight
	}
	if fc.ConfidenceScale > 0 {
		cfg.ConfidenceScale = fc.ConfidenceScale
	}
	if fc.MinConfidence > 0 {
		cfg.MinConfidence = fc.MinConfidence
	}
	return cfg
}

// #endregion fixture-loader

// #region fixture-writer

// NewBaseline ranks inputs and records the current tops as expectations,
// producing a fixture that passes today and flags drift later. The
// profile's history is cleared so the fixture does not depend on the
// order of the recorded inputs.
func NewBaseline(description string, entries []catalog.Entry, prof *profile.Profile, inputs []string, hour int, fc FixtureConfig) *Fixture {
	var p *profile.Profile
	if prof != nil {
		p = prof.Clone()
		p.History = profile.History{}
	}
	f := &Fixture{
		Description: description,
		Products:    append([]catalog.Entry(nil), entries...),
		Profile:     p,
		Config:      fc,
		Cases:       make([]FixtureCase, len(inputs)),
	}
	for i, in := range inputs {
		f.Cases[i] = FixtureCase{ID: fmt.Sprintf("case-%d", i+1), Input: in, Hour: hour}
	}
	for i, r := range Replay(entries, f.ToCases(), fc.ToScoringConfig()) {
		f.Cases[i].ExpectTop = r.Top
		// Two decimals, rounded down, so the floor never rejects today's value.
		f.Cases[i].MinConfidence = math.Floor(r.Confidence*100) / 100
	}
	return f
}

// Write stores the fixture as indented JSON.
func (f *Fixture) Write(path string) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal fixture: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("write fixture %s: %w", path, err)
	}
	return nil
}

// #endregion fixture-writer
