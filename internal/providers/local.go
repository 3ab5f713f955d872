// CrossWatch - Cross-Provider Media Library Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crosswatch

/*
local.go - Authoritative Local Adapter

The "crosswatch" provider is a plain JSON store on local disk, one file
per feature per pair scope:

  <root>/<feature>.<scope>.json                      live state
  <root>/snapshots/<feature>.<scope>.<stamp>.json    change snapshots

Every successful write lands atomically (renameio) and, when
auto_snapshot is on, leaves a timestamped snapshot behind. Old snapshots
are swept by retention_days and max_snapshots (oldest first). When
restore_<feature> is set, the selected snapshot ("latest" picks the
newest) replaces the live file once at startup, before the first
operation touches the feature.
*/

//nolint:staticcheck // File documentation, not package doc
package providers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"

	"github.com/tomtom215/crosswatch/internal/config"
	"github.com/tomtom215/crosswatch/internal/identity"
	"github.com/tomtom215/crosswatch/internal/logging"
	"github.com/tomtom215/crosswatch/internal/state"
)

// localStamp is the snapshot filename timestamp layout.
const localStamp = "20060102T150405Z"

// localDoc is the on-disk shape of one feature file.
type localDoc struct {
	Items     identity.Index `json:"items"`
	UpdatedAt string         `json:"updated_at,omitempty"`
}

// Local implements Adapter backed by local JSON files. It performs no
// network I/O and is always healthy when its root is writable.
type Local struct {
	cfg   config.LocalConfig
	deps  Deps
	scope string
	log   zerolog.Logger

	mu       sync.Mutex
	restored sync.Once
}

// NewLocal constructs the local adapter for one instance profile.
func NewLocal(cfg config.LocalConfig, deps Deps) *Local {
	if cfg.RootDir == "" {
		cfg.RootDir = "/config/.cw_provider"
	}
	scope := "default"
	if deps.Store != nil {
		scope = deps.Store.Scope()
	}
	return &Local{
		cfg:   cfg,
		deps:  deps,
		scope: state.SanitizeScope(scope),
		log:   logging.With().Str("provider", "crosswatch").Logger(),
	}
}

// Manifest implements Adapter.
func (l *Local) Manifest() Manifest {
	return Manifest{
		Name:          "crosswatch",
		Label:         "CrossWatch Local",
		Version:       "1.0.0",
		Type:          "sync",
		Bidirectional: true,
		Features: map[string]bool{
			FeatureWatchlist: true,
			FeatureRatings:   true,
			FeatureHistory:   true,
			FeaturePlaylists: false,
		},
		Capabilities: l.Capabilities(),
	}
}

// Features implements Adapter.
func (l *Local) Features() map[string]bool {
	return l.Manifest().Features
}

// Capabilities implements Adapter.
func (l *Local) Capabilities() Capabilities {
	return Capabilities{
		Ratings: RatingCaps{
			Types:    RatingTypes{Movies: true, Shows: true, Seasons: true, Episodes: true},
			Upsert:   true,
			Unrate:   true,
			FromDate: true,
		},
		IndexSemantics:  SemanticsPresent,
		ObservedDeletes: true,
		CanTarget:       true,
	}
}

// IsConfigured implements Adapter. Always true; the root dir is created
// on first write.
func (l *Local) IsConfigured() bool {
	return true
}

// Health implements Adapter. Verifies the root directory is writable.
func (l *Local) Health(ctx context.Context) Health {
	h := Health{Status: "ok", Features: l.Features()}
	if err := os.MkdirAll(l.cfg.RootDir, 0o755); err != nil {
		h.Status = ReasonUpstreamError
		h.Details.Reason = err.Error()
		return h
	}
	h.OK = true
	return h
}

func (l *Local) featurePath(feature string) string {
	return filepath.Join(l.cfg.RootDir, fmt.Sprintf("%s.%s.json", feature, l.scope))
}

func (l *Local) snapshotsDir() string {
	return filepath.Join(l.cfg.RootDir, "snapshots")
}

// ensureRestored applies pending restore_<feature> selectors exactly once
// per process, before the first read or write.
func (l *Local) ensureRestored() {
	l.restored.Do(func() {
		for feature, selector := range map[string]string{
			FeatureWatchlist: l.cfg.RestoreWatchlist,
			FeatureRatings:   l.cfg.RestoreRatings,
			FeatureHistory:   l.cfg.RestoreHistory,
		} {
			if selector == "" {
				continue
			}
			if err := l.restore(feature, selector); err != nil {
				l.log.Warn().Err(err).Str("feature", feature).Str("selector", selector).Msg("snapshot restore failed")
			} else {
				l.log.Info().Str("feature", feature).Str("selector", selector).Msg("restored feature from snapshot")
			}
		}
	})
}

// restore replaces the live feature file with a snapshot. "latest" picks
// the newest by stamp; anything else must match the stamp or filename.
func (l *Local) restore(feature, selector string) error {
	matches, err := l.featureSnapshots(feature)
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		return fmt.Errorf("no snapshots for %s", feature)
	}

	var chosen string
	if selector == "latest" {
		chosen = matches[len(matches)-1]
	} else {
		for _, path := range matches {
			base := filepath.Base(path)
			if base == selector || strings.Contains(base, selector) {
				chosen = path
				break
			}
		}
	}
	if chosen == "" {
		return fmt.Errorf("snapshot %q not found for %s", selector, feature)
	}

	data, err := os.ReadFile(chosen)
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}
	return renameio.WriteFile(l.featurePath(feature), data, 0o644)
}

// featureSnapshots lists this feature+scope's snapshots sorted by stamp
// ascending.
func (l *Local) featureSnapshots(feature string) ([]string, error) {
	pattern := filepath.Join(l.snapshotsDir(), fmt.Sprintf("%s.%s.*.json", feature, l.scope))
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

func (l *Local) load(feature string) (identity.Index, error) {
	l.ensureRestored()

	data, err := os.ReadFile(l.featurePath(feature))
	if os.IsNotExist(err) {
		return identity.Index{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read local %s: %w", feature, err)
	}

	var doc localDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode local %s: %w", feature, err)
	}
	if doc.Items == nil {
		doc.Items = identity.Index{}
	}
	return doc.Items, nil
}

// save atomically writes the feature file, then snapshots and sweeps.
func (l *Local) save(feature string, idx identity.Index) error {
	if err := os.MkdirAll(l.cfg.RootDir, 0o755); err != nil {
		return fmt.Errorf("create local root: %w", err)
	}

	doc := localDoc{Items: idx, UpdatedAt: time.Now().UTC().Format(time.RFC3339)}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode local %s: %w", feature, err)
	}
	if err := renameio.WriteFile(l.featurePath(feature), data, 0o644); err != nil {
		return fmt.Errorf("write local %s: %w", feature, err)
	}

	if l.cfg.AutoSnapshot {
		if err := l.writeSnapshot(feature, data); err != nil {
			l.log.Warn().Err(err).Str("feature", feature).Msg("auto snapshot failed")
		}
		l.sweep(feature)
	}
	return nil
}

func (l *Local) writeSnapshot(feature string, data []byte) error {
	if err := os.MkdirAll(l.snapshotsDir(), 0o755); err != nil {
		return err
	}
	stamp := time.Now().UTC().Format(localStamp)
	name := fmt.Sprintf("%s.%s.%s.json", feature, l.scope, stamp)
	return renameio.WriteFile(filepath.Join(l.snapshotsDir(), name), data, 0o644)
}

// sweep enforces retention_days and max_snapshots, dropping oldest first.
func (l *Local) sweep(feature string) {
	matches, err := l.featureSnapshots(feature)
	if err != nil {
		return
	}

	if days := l.cfg.RetentionDays; days > 0 {
		cutoff := time.Now().UTC().AddDate(0, 0, -days)
		kept := matches[:0]
		for _, path := range matches {
			if info, err := os.Stat(path); err == nil && info.ModTime().Before(cutoff) {
				_ = os.Remove(path)
				continue
			}
			kept = append(kept, path)
		}
		matches = kept
	}

	if max := l.cfg.MaxSnapshots; max > 0 && len(matches) > max {
		for _, path := range matches[:len(matches)-max] {
			_ = os.Remove(path)
		}
	}
}

// BuildIndex implements Adapter.
func (l *Local) BuildIndex(ctx context.Context, feature string) (identity.Index, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load(feature)
}

// Add implements Adapter.
func (l *Local) Add(ctx context.Context, items []identity.Item, feature string, dryRun bool) (*WriteResult, error) {
	return l.write(ctx, items, feature, false, dryRun)
}

// Remove implements Adapter.
func (l *Local) Remove(ctx context.Context, items []identity.Item, feature string, dryRun bool) (*WriteResult, error) {
	return l.write(ctx, items, feature, true, dryRun)
}

func (l *Local) write(ctx context.Context, items []identity.Item, feature string, remove, dryRun bool) (*WriteResult, error) {
	result := &WriteResult{OK: true}
	if len(items) == 0 {
		return result, nil
	}
	if dryRun {
		result.Count = len(items)
		result.ConfirmedKeys = confirmKeys(items)
		return result, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	idx, err := l.load(feature)
	if err != nil {
		return nil, err
	}

	changed := false
	for _, item := range items {
		key := identity.CanonicalKey(item)
		if key == "" {
			result.Unresolved = append(result.Unresolved, Unresolved{Key: key, Reason: ReasonMissingIDs})
			continue
		}

		if remove {
			if _, ok := idx[key]; ok {
				delete(idx, key)
				changed = true
			}
			// Removing an absent item is still success.
		} else {
			prev, existed := idx[key]
			next := identity.Minimal(item)
			if existed {
				next.IDs = identity.MergeIDs(next.IDs, prev.IDs)
			}
			idx[key] = next
			changed = true
		}
		result.ConfirmedKeys = append(result.ConfirmedKeys, key)
		result.Count++
	}

	if changed {
		if err := l.save(feature, idx); err != nil {
			return nil, err
		}
	}
	return result, nil
}
