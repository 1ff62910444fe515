package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// #region catalog
// Catalog is an ordered, validated, read-only set of entries.
type Catalog struct {
	entries []Entry
	byID    map[string]int
}

// New validates entries and builds a catalog. Tags and triggers are
// lowercased and de-duplicated; a non-positive placement scale becomes 1.
// Every violation is reported in the returned error.
func New(entries []Entry) (*Catalog, error) {
	c := &Catalog{
		entries: make([]Entry, 0, len(entries)),
		byID:    make(map[string]int, len(entries)),
	}
	var errs []error
	for i, e := range entries {
		if err := validate(e); err != nil {
			errs = append(errs, fmt.Errorf("entry %d (%q): %w", i, e.ID, err))
			continue
		}
		if _, dup := c.byID[e.ID]; dup {
			errs = append(errs, fmt.Errorf("entry %d: %w: %s", i, ErrDuplicateID, e.ID))
			continue
		}
		e.Tags = normalizeSet(e.Tags)
		e.Triggers = normalizeSet(e.Triggers)
		if e.PlacementScale <= 0 {
			e.PlacementScale = 1
		}
		c.byID[e.ID] = len(c.entries)
		c.entries = append(c.entries, e)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return c, nil
}

// Entries returns the entries in catalog order. The slice must not be modified.
func (c *Catalog) Entries() []Entry {
	if c == nil {
		return nil
	}
	return c.entries
}

// Len returns the number of entries.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.entries)
}

// Get looks up an entry by id.
func (c *Catalog) Get(id string) (Entry, bool) {
	if c == nil {
		return Entry{}, false
	}
	i, ok := c.byID[id]
	if !ok {
		return Entry{}, false
	}
	return c.entries[i], true
}

// #endregion catalog

// #region load
// Load reads a catalog file. The format is chosen by extension:
// .toml, or .json for anything else.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data, filepath.Ext(path))
}

// Parse decodes catalog bytes in the given format (".toml" or ".json").
func Parse(data []byte, ext string) (*Catalog, error) {
	var f file
	switch strings.ToLower(ext) {
	case ".toml":
		if err := toml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("parse catalog toml: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("parse catalog json: %w", err)
		}
	}
	return New(f.Products)
}

// #endregion load

// #region validate
func validate(e Entry) error {
	switch {
	case strings.TrimSpace(e.ID) == "":
		return fmt.Errorf("%w: empty id", ErrInvalidEntry)
	case !finite(e.Price, e.Discount, e.Rating, e.PlacementScale, e.Shipping.Cost):
		return fmt.Errorf("%w: non-finite number", ErrInvalidEntry)
	case e.Price < 0:
		return fmt.Errorf("%w: price %.2f < 0", ErrInvalidEntry, e.Price)
	case e.Discount < 0 || e.Discount > 100:
		return fmt.Errorf("%w: discount %.2f outside [0,100]", ErrInvalidEntry, e.Discount)
	case e.Rating < 0 || e.Rating > 5:
		return fmt.Errorf("%w: rating %.2f outside [0,5]", ErrInvalidEntry, e.Rating)
	case e.Stock < 0:
		return fmt.Errorf("%w: stock %d < 0", ErrInvalidEntry, e.Stock)
	}
	return nil
}

// finite rejects NaN and infinities, which every range check lets through.
func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func normalizeSet(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// #endregion validate
