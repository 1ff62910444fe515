package profile

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/danielpatrickdp/placement-engine/internal/logging"
	"github.com/danielpatrickdp/placement-engine/internal/storage"
)

// #region store
// Store loads and saves one device's profile through a KV backend.
type Store struct {
	kv  storage.KV
	key string
	log *logging.Logger
}

// NewStore creates a profile store for deviceID.
func NewStore(kv storage.KV, deviceID string, log *logging.Logger) *Store {
	return &Store{kv: kv, key: "profile:" + deviceID, log: log.With("component", "profile")}
}

// Load returns the stored profile. Missing, unreadable, or malformed data
// yields a fresh default profile; the failure is logged, never returned.
// A missing profile is created and saved so the device keeps one identity.
func (s *Store) Load(ctx context.Context) *Profile {
	data, ok, err := s.kv.Get(ctx, s.key)
	if err != nil {
		s.log.Warn("profile read failed, using defaults", "key", s.key, "error", err)
		return Default()
	}
	if !ok {
		p := Default()
		if err := s.Save(ctx, p); err != nil {
			s.log.Warn("first profile save failed", "key", s.key, "error", err)
		} else {
			s.log.Info("profile created", "key", s.key, "profile_id", p.ID)
		}
		return p
	}
	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		s.log.Warn("profile corrupt, using defaults", "key", s.key, "error", err)
		return Default()
	}
	if !valid(&p) {
		s.log.Warn("profile invalid, using defaults", "key", s.key)
		return Default()
	}
	return &p
}

// Save persists p.
func (s *Store) Save(ctx context.Context, p *Profile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	if err := s.kv.Set(ctx, s.key, data); err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

// #endregion store

// #region validate
func valid(p *Profile) bool {
	return p.ID != "" && p.PriceRange.Min >= 0 && p.PriceRange.Min <= p.PriceRange.Max
}

// #endregion validate
