// CrossWatch - Cross-Provider Media Library Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crosswatch

/*
store.go - Pair-Scoped State Store

Every sync pair owns an isolated set of JSON state files under the state
directory (.cw_state by default):

  baseline.<feature>.<scope>.json   last reconciled index view
  shadow.<feature>.<scope>.json     unresolved / ignored items with provenance
  watermarks.<scope>.json           last consumed upstream timestamps
  runs.<scope>.json                 bounded ring of recent run summaries

Scope strings are sanitized ([^A-Za-z0-9._-] -> _, collapsed, max 96 chars).
A scope named "unscoped", "default", or "none" disables persistence: reads
return empty state and writes are no-ops. Capture mode (CW_CAPTURE_MODE=1)
behaves the same so recordings never touch durable state.

Writes go through renameio (write tmp, fsync, rename) so a partially
written file is never observable. Legacy unscoped files (<name>.json) are
migrated to the scoped name on first read.
*/

//nolint:staticcheck // File documentation, not package doc
package state

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/goccy/go-json"
	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"

	"github.com/tomtom215/crosswatch/internal/identity"
	"github.com/tomtom215/crosswatch/internal/logging"
)

// maxScopeLen bounds sanitized scope strings.
const maxScopeLen = 96

var (
	scopeUnsafe   = regexp.MustCompile(`[^A-Za-z0-9._-]+`)
	scopeCollapse = regexp.MustCompile(`_{2,}`)
)

// disabledScopes are the scope names that turn persistence off.
var disabledScopes = map[string]bool{
	"":         true,
	"default":  true,
	"unscoped": true,
	"none":     true,
}

// SanitizeScope maps a raw pair-scope string onto a filesystem-safe token.
// Unsafe runs become single underscores; the result is truncated to 96
// characters and falls back to "default" when nothing survives.
func SanitizeScope(raw string) string {
	s := scopeUnsafe.ReplaceAllString(strings.TrimSpace(raw), "_")
	s = scopeCollapse.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if len(s) > maxScopeLen {
		s = s[:maxScopeLen]
	}
	if s == "" {
		return "default"
	}
	return s
}

// Store is the per-pair state store. A Store is scoped at construction and
// never shared across pairs; two Stores with distinct scopes never touch
// the same files.
type Store struct {
	dir     string
	scope   string
	capture bool
	log     zerolog.Logger
}

// NewStore creates a store rooted at dir for the given raw scope.
// captureMode suppresses all reads and writes (CW_CAPTURE_MODE).
func NewStore(dir, rawScope string, captureMode bool) (*Store, error) {
	s := &Store{
		dir:     dir,
		scope:   SanitizeScope(rawScope),
		capture: captureMode,
		log:     logging.With().Str("component", "state").Str("scope", SanitizeScope(rawScope)).Logger(),
	}
	if s.Enabled() {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create state dir: %w", err)
		}
	}
	return s, nil
}

// Scope returns the sanitized scope token.
func (s *Store) Scope() string {
	return s.scope
}

// Enabled reports whether this store persists anything.
func (s *Store) Enabled() bool {
	return !s.capture && !disabledScopes[s.scope]
}

// path builds the scoped file path for a logical name.
func (s *Store) path(name string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s.%s.json", name, s.scope))
}

// legacyPath is the pre-scoping location of a logical name.
func (s *Store) legacyPath(name string) string {
	return filepath.Join(s.dir, name+".json")
}

// loadJSON reads a logical name into out. Missing files leave out untouched
// and return false. A legacy unscoped file is migrated to the scoped path
// on first read.
func (s *Store) loadJSON(name string, out any) (bool, error) {
	if !s.Enabled() {
		return false, nil
	}

	p := s.path(name)
	data, err := os.ReadFile(p)
	if os.IsNotExist(err) {
		legacy := s.legacyPath(name)
		data, err = os.ReadFile(legacy)
		if os.IsNotExist(err) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("read legacy state %s: %w", name, err)
		}
		// Migrate once; the legacy file stays behind for other scopes that
		// may still be on their first read.
		if werr := renameio.WriteFile(p, data, 0o644); werr != nil {
			return false, fmt.Errorf("migrate state %s: %w", name, werr)
		}
		s.log.Info().Str("file", name).Msg("migrated legacy unscoped state file")
	} else if err != nil {
		return false, fmt.Errorf("read state %s: %w", name, err)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("decode state %s: %w", name, err)
	}
	return true, nil
}

// saveJSON atomically persists v under a logical name.
func (s *Store) saveJSON(name string, v any) error {
	if !s.Enabled() {
		return nil
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state %s: %w", name, err)
	}
	if err := renameio.WriteFile(s.path(name), data, 0o644); err != nil {
		return fmt.Errorf("write state %s: %w", name, err)
	}
	return nil
}

// baselineDoc is the on-disk shape of a baseline file.
type baselineDoc struct {
	Items     identity.Index `json:"items"`
	UpdatedAt string         `json:"updated_at,omitempty"`
}

// LoadBaseline returns the last reconciled index for a feature.
// Empty on first run or when persistence is disabled.
func (s *Store) LoadBaseline(feature string) (identity.Index, error) {
	var doc baselineDoc
	ok, err := s.loadJSON("baseline."+feature, &doc)
	if err != nil {
		return nil, err
	}
	if !ok || doc.Items == nil {
		return identity.Index{}, nil
	}
	return doc.Items, nil
}

// SaveBaseline atomically replaces the baseline for a feature.
func (s *Store) SaveBaseline(feature string, idx identity.Index, updatedAt string) error {
	return s.saveJSON("baseline."+feature, baselineDoc{Items: idx, UpdatedAt: updatedAt})
}

// LoadWatermark returns the last consumed upstream timestamp for a feature,
// or "" when none is recorded.
func (s *Store) LoadWatermark(feature string) (string, error) {
	marks := map[string]string{}
	if _, err := s.loadJSON("watermarks", &marks); err != nil {
		return "", err
	}
	return marks[feature], nil
}

// SaveWatermark records the last consumed upstream timestamp for a feature.
func (s *Store) SaveWatermark(feature, ts string) error {
	marks := map[string]string{}
	if _, err := s.loadJSON("watermarks", &marks); err != nil {
		return err
	}
	marks[feature] = ts
	return s.saveJSON("watermarks", marks)
}
