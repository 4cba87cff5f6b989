// Package mode persists the detected cultural mode with a validity window.
// The mode is written by an external detection collaborator and only read by
// the session core; an expired or missing value falls back to the default.
package mode

import (
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "github.com/sageorb/platform/internal/errors"
	"github.com/sageorb/platform/internal/syncx"
)

// Mode is a regional/contextual response-phrasing preference.
type Mode string

// Default is used when no detection has happened or the cached value expired.
const Default Mode = "default"

// cacheFile is the on-disk representation.
type cacheFile struct {
	Mode          Mode      `yaml:"mode"`
	DetectedItems []string  `yaml:"detected_items,omitempty"`
	SetAt         time.Time `yaml:"set_at"`
}

type cached struct {
	mode  Mode
	items []string
	setAt time.Time
}

// Store holds the current mode in memory and mirrors it to disk so the value
// survives restarts within its validity window.
type Store struct {
	path  string
	ttl   time.Duration
	now   func() time.Time
	state *syncx.RWGuard[cached]
}

// NewStore creates a store backed by path. A cached value older than ttl is
// treated as absent.
func NewStore(path string, ttl time.Duration) *Store {
	return &Store{
		path:  path,
		ttl:   ttl,
		now:   time.Now,
		state: syncx.NewGuard(cached{mode: Default}),
	}
}

// Load reads the persisted mode at process start. A missing or unreadable
// file is not an error; the store simply starts at the default. Expiry is
// re-validated here, not just at write time.
func (s *Store) Load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("failed to read mode cache", "path", s.path, "error", err)
		}
		return
	}

	var f cacheFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		slog.Warn("malformed mode cache, ignoring", "path", s.path, "error", err)
		return
	}
	if f.Mode == "" {
		return
	}

	s.state.Set(cached{mode: f.Mode, items: f.DetectedItems, setAt: f.SetAt})
	slog.Info("loaded cultural mode", "mode", f.Mode, "set_at", f.SetAt)
}

// Set records a freshly detected mode and persists it.
func (s *Store) Set(m Mode, detectedItems []string) error {
	setAt := s.now()
	s.state.Set(cached{mode: m, items: detectedItems, setAt: setAt})

	data, err := yaml.Marshal(cacheFile{Mode: m, DetectedItems: detectedItems, SetAt: setAt})
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeModeStoreFailed, "failed to encode mode cache")
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return apperrors.Wrap(err, apperrors.CodeModeStoreFailed, "failed to persist mode cache")
	}
	return nil
}

// Current returns the mode in effect: the cached value while fresh, the
// default once it crosses the validity window.
func (s *Store) Current() Mode {
	c := s.state.Get()
	if c.setAt.IsZero() || s.now().Sub(c.setAt) >= s.ttl {
		return Default
	}
	return c.mode
}

// DetectedItems returns the items that informed the current mode, or nil
// when the cache is expired.
func (s *Store) DetectedItems() []string {
	c := s.state.Get()
	if c.setAt.IsZero() || s.now().Sub(c.setAt) >= s.ttl {
		return nil
	}
	return c.items
}
