// CrossWatch - Cross-Provider Media Library Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crosswatch

/*
snapshot.go - Snapshot Documents and Lifecycle

Snapshots are immutable JSON captures of one provider feature index,
written under a per-day directory:

  <root>/YYYY-MM-DD/<stamp>__<PROVIDER>__<inst>__<feature>__<label>.json

A snapshot of feature "all" is a bundle: a parent document whose
children reference the per-feature snapshots created under the same UTC
stamp, by path relative to the snapshots root. Files are written with
renameio and never modified afterwards; delete is the only mutation.
*/

//nolint:staticcheck // File documentation, not package doc
package snapshot

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/renameio/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tomtom215/crosswatch/internal/config"
	"github.com/tomtom215/crosswatch/internal/identity"
	"github.com/tomtom215/crosswatch/internal/logging"
	"github.com/tomtom215/crosswatch/internal/metrics"
	"github.com/tomtom215/crosswatch/internal/providers"
	"github.com/tomtom215/crosswatch/internal/resolvecache"
	"github.com/tomtom215/crosswatch/internal/state"
)

// Document kinds.
const (
	KindSnapshot = "snapshot"
	KindBundle   = "snapshot_bundle"
)

// stampLayout is the shared UTC stamp embedded in filenames and bundles.
const stampLayout = "20060102T150405Z"

// fileName parses the snapshot filename grammar.
var fileName = regexp.MustCompile(
	`^(?P<stamp>\d{8}T\d{6}Z)__(?P<prov>[A-Z0-9]+)__(?P<inst>[A-Za-z0-9._-]+)__(?P<feat>watchlist|ratings|history|playlists|all)__(?P<label>[A-Za-z0-9._ -]+)\.json$`)

// labelUnsafe strips label characters the filename grammar rejects.
var labelUnsafe = regexp.MustCompile(`[^A-Za-z0-9._ -]+`)

// Stats summarizes a snapshot's payload. Features is only set on bundle
// parents and carries the per-feature item counts, zeros included.
type Stats struct {
	Count    int            `json:"count"`
	ByType   map[string]int `json:"by_type,omitempty"`
	Features map[string]int `json:"features,omitempty"`
}

func (s Stats) add(other Stats) Stats {
	out := Stats{Count: s.Count + other.Count}
	if len(s.ByType) > 0 || len(other.ByType) > 0 {
		out.ByType = map[string]int{}
		for k, v := range s.ByType {
			out.ByType[k] += v
		}
		for k, v := range other.ByType {
			out.ByType[k] += v
		}
	}
	return out
}

// Child references one per-feature snapshot from a bundle, by path
// relative to the snapshots root.
type Child struct {
	Feature string `json:"feature"`
	Path    string `json:"path"`
	Stats   Stats  `json:"stats"`
}

// Document is the on-disk snapshot shape.
type Document struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	CreatedAt string `json:"created_at"`
	Provider  string `json:"provider"`
	Instance  string `json:"instance"`
	Feature   string `json:"feature"`
	Label     string `json:"label"`
	Stats     Stats  `json:"stats"`

	Items identity.Index `json:"items,omitempty"`

	Children []Child `json:"children,omitempty"`
}

// Meta is a listed snapshot: filename fields plus file facts.
type Meta struct {
	Path     string    `json:"path"`
	Stamp    string    `json:"stamp"`
	Provider string    `json:"provider"`
	Instance string    `json:"instance"`
	Feature  string    `json:"feature"`
	Label    string    `json:"label"`
	Size     int64     `json:"size"`
	ModTime  time.Time `json:"mtime"`
	Bundle   bool      `json:"bundle"`
}

// Snapshotter owns the snapshot directory lifecycle. Adapters are built
// fresh per operation through the registry so configuration reloads are
// always reflected.
type Snapshotter struct {
	cfg      *config.Config
	registry *providers.Registry
	resolve  *resolvecache.Cache
	root     string
	log      zerolog.Logger

	// now is swappable for tests.
	now func() time.Time
}

// New creates a Snapshotter rooted at cfg.SnapshotsDir().
func New(cfg *config.Config, registry *providers.Registry, resolve *resolvecache.Cache) *Snapshotter {
	return &Snapshotter{
		cfg:      cfg,
		registry: registry,
		resolve:  resolve,
		root:     cfg.SnapshotsDir(),
		log:      logging.With().Str("component", "snapshot").Logger(),
		now:      time.Now,
	}
}

// adapter builds the provider adapter used by snapshot operations. State
// is scoped per provider+instance so shadow writes during restores stay
// apart from pair-sync state.
func (s *Snapshotter) adapter(provider, instance string) (providers.Adapter, error) {
	if instance == "" {
		instance = config.DefaultInstance
	}
	scope := fmt.Sprintf("snapshot-%s-%s", provider, instance)
	store, err := state.NewStore(s.cfg.StateDir(), scope, false)
	if err != nil {
		return nil, err
	}
	return s.registry.Build(provider, instance, providers.Deps{Store: store, Resolve: s.resolve})
}

func sanitizeLabel(label string) string {
	label = strings.TrimSpace(labelUnsafe.ReplaceAllString(label, ""))
	if label == "" {
		return "manual"
	}
	return label
}

func statsOf(idx identity.Index) Stats {
	st := Stats{Count: len(idx), ByType: map[string]int{}}
	for _, item := range idx {
		st.ByType[string(item.Type)]++
	}
	if len(st.ByType) == 0 {
		st.ByType = nil
	}
	return st
}

// snapshotID derives a stable document ID from the capture coordinates,
// so re-listing or re-reading a snapshot always yields the same ID.
func snapshotID(stamp time.Time, provider, instance, feature string) string {
	name := fmt.Sprintf("crosswatch:snapshot:%s:%s:%s:%s",
		stamp.Format(stampLayout), provider, instance, feature)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}

// relPathFor builds the root-relative path of a snapshot file.
func relPathFor(stamp time.Time, provider, instance, feature, label string) string {
	name := fmt.Sprintf("%s__%s__%s__%s__%s.json",
		stamp.Format(stampLayout), strings.ToUpper(provider), instance, feature, label)
	return filepath.Join(stamp.Format("2006-01-02"), name)
}

// writeDoc atomically persists a document at a root-relative path.
func (s *Snapshotter) writeDoc(rel string, doc *Document) error {
	abs := filepath.Join(s.root, rel)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := renameio.WriteFile(abs, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// Create captures one provider feature, or every enabled feature when
// feature is "all" (a bundle). It returns the metadata of the written
// parent document.
func (s *Snapshotter) Create(ctx context.Context, provider, feature, label, instance string) (*Meta, error) {
	if instance == "" {
		instance = config.DefaultInstance
	}
	label = sanitizeLabel(label)

	a, err := s.adapter(provider, instance)
	if err != nil {
		return nil, err
	}

	stamp := s.now().UTC()
	created := stamp.Format(time.RFC3339)

	if feature != "all" {
		idx, err := a.BuildIndex(ctx, feature)
		if err != nil {
			return nil, fmt.Errorf("snapshot %s/%s: %w", provider, feature, err)
		}
		doc := &Document{
			ID:        snapshotID(stamp, provider, instance, feature),
			Kind:      KindSnapshot,
			CreatedAt: created,
			Provider:  provider,
			Instance:  instance,
			Feature:   feature,
			Label:     label,
			Stats:     statsOf(idx),
			Items:     idx,
		}
		rel := relPathFor(stamp, provider, instance, feature, label)
		if err := s.writeDoc(rel, doc); err != nil {
			return nil, err
		}
		metrics.SnapshotsTotal.WithLabelValues(provider, "create").Inc()
		s.log.Info().Str("provider", provider).Str("feature", feature).
			Int("items", doc.Stats.Count).Str("path", rel).Msg("snapshot created")
		return s.metaFor(rel)
	}

	// Bundle: one child per enabled non-empty feature, sharing the
	// stamp. Empty features are counted in the parent stats but get no
	// file of their own.
	var children []Child
	total := Stats{Features: map[string]int{}}
	enabled := 0
	for _, feat := range providers.Features {
		if !a.Features()[feat] {
			continue
		}
		enabled++
		idx, err := a.BuildIndex(ctx, feat)
		if err != nil {
			return nil, fmt.Errorf("snapshot %s/%s: %w", provider, feat, err)
		}
		total.Features[feat] = len(idx)
		if len(idx) == 0 {
			continue
		}
		doc := &Document{
			ID:        snapshotID(stamp, provider, instance, feat),
			Kind:      KindSnapshot,
			CreatedAt: created,
			Provider:  provider,
			Instance:  instance,
			Feature:   feat,
			Label:     label,
			Stats:     statsOf(idx),
			Items:     idx,
		}
		rel := relPathFor(stamp, provider, instance, feat, label)
		if err := s.writeDoc(rel, doc); err != nil {
			return nil, err
		}
		children = append(children, Child{Feature: feat, Path: rel, Stats: doc.Stats})
		feats := total.Features
		total = total.add(doc.Stats)
		total.Features = feats
		metrics.SnapshotsTotal.WithLabelValues(provider, "create").Inc()
	}
	if enabled == 0 {
		return nil, fmt.Errorf("snapshot %s: no enabled features", provider)
	}

	bundle := &Document{
		ID:        snapshotID(stamp, provider, instance, "all"),
		Kind:      KindBundle,
		CreatedAt: created,
		Provider:  provider,
		Instance:  instance,
		Feature:   "all",
		Label:     label,
		Stats:     total,
		Children:  children,
	}
	rel := relPathFor(stamp, provider, instance, "all", label)
	if err := s.writeDoc(rel, bundle); err != nil {
		return nil, err
	}
	s.log.Info().Str("provider", provider).Int("features", len(children)).
		Int("items", total.Count).Str("path", rel).Msg("snapshot bundle created")
	return s.metaFor(rel)
}

// metaFor stats one root-relative path into a Meta.
func (s *Snapshotter) metaFor(rel string) (*Meta, error) {
	info, err := os.Stat(filepath.Join(s.root, rel))
	if err != nil {
		return nil, err
	}
	m := parseName(filepath.Base(rel))
	if m == nil {
		return nil, fmt.Errorf("unparseable snapshot name %q", rel)
	}
	m.Path = rel
	m.Size = info.Size()
	m.ModTime = info.ModTime()
	return m, nil
}

// parseName extracts the filename fields, or nil when the name does not
// match the grammar.
func parseName(base string) *Meta {
	sub := fileName.FindStringSubmatch(base)
	if sub == nil {
		return nil
	}
	feat := sub[4]
	return &Meta{
		Stamp:    sub[1],
		Provider: strings.ToLower(sub[2]),
		Instance: sub[3],
		Feature:  feat,
		Label:    sub[5],
		Bundle:   feat == "all",
	}
}

// List scans the snapshots root recursively and returns parsed metadata
// sorted by modification time, newest first.
func (s *Snapshotter) List() ([]Meta, error) {
	var out []Meta
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
			return nil
		}
		m := parseName(d.Name())
		if m == nil {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return nil
		}
		m.Path = rel
		m.Size = info.Size()
		m.ModTime = info.ModTime()
		out = append(out, *m)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModTime.After(out[j].ModTime) })
	return out, nil
}

// resolvePath normalizes a caller-supplied path (absolute or relative to
// the root) and rejects anything that escapes the snapshots root.
func (s *Snapshotter) resolvePath(path string) (string, error) {
	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(s.root, path)
	}
	abs = filepath.Clean(abs)

	rel, err := filepath.Rel(s.root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes snapshots root", path)
	}
	return abs, nil
}

// Read loads one snapshot document. Bundle stats missing from the file
// are reconstructed by summing the children.
func (s *Snapshotter) Read(path string) (*Document, error) {
	abs, err := s.resolvePath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}

	if doc.Kind == KindBundle && doc.Stats.Count == 0 {
		total := Stats{}
		for _, child := range doc.Children {
			if child.Stats.Count > 0 {
				total = total.add(child.Stats)
				continue
			}
			cd, err := s.Read(child.Path)
			if err != nil {
				continue
			}
			total = total.add(cd.Stats)
		}
		total.Features = doc.Stats.Features
		doc.Stats = total
	}
	return &doc, nil
}

// Delete removes one snapshot file. Deleting a bundle with
// deleteChildren removes the referenced per-feature snapshots first.
func (s *Snapshotter) Delete(path string, deleteChildren bool) error {
	abs, err := s.resolvePath(path)
	if err != nil {
		return err
	}

	doc, err := s.Read(path)
	if err != nil {
		return err
	}
	if doc.Kind == KindBundle && deleteChildren {
		for _, child := range doc.Children {
			childAbs, err := s.resolvePath(child.Path)
			if err != nil {
				continue
			}
			if err := os.Remove(childAbs); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("delete bundle child %s: %w", child.Path, err)
			}
		}
	}
	if err := os.Remove(abs); err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	metrics.SnapshotsTotal.WithLabelValues(doc.Provider, "delete").Inc()
	return nil
}
