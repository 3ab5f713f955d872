// CrossWatch - Cross-Provider Media Library Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crosswatch

package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tomtom215/crosswatch/internal/config"
	"github.com/tomtom215/crosswatch/internal/identity"
	"github.com/tomtom215/crosswatch/internal/providers"
)

// newTestSnapshotter runs against the local "crosswatch" provider so no
// network is involved.
func newTestSnapshotter(t *testing.T) *Snapshotter {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{ConfigDir: dir}
	cfg.Local.RootDir = filepath.Join(dir, "local")

	s := New(cfg, providers.NewRegistry(cfg), nil)

	// Deterministic, strictly increasing stamps.
	base := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		base = base.Add(time.Second)
		return base
	}
	return s
}

func seed(t *testing.T, s *Snapshotter, feature string, items ...identity.Item) {
	t.Helper()
	a, err := s.adapter("crosswatch", "")
	if err != nil {
		t.Fatalf("adapter: %v", err)
	}
	if len(items) == 0 {
		return
	}
	if _, err := a.Add(context.Background(), items, feature, false); err != nil {
		t.Fatalf("seed %s: %v", feature, err)
	}
}

func movie(tmdbID, title string, year int) identity.Item {
	return identity.Item{
		Type:  identity.TypeMovie,
		Title: title,
		Year:  year,
		IDs:   map[string]string{identity.KindTMDB: tmdbID},
	}
}

func TestSnapshotIDStable(t *testing.T) {
	stamp := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	a := snapshotID(stamp, "trakt", "default", "watchlist")
	b := snapshotID(stamp, "trakt", "default", "watchlist")
	c := snapshotID(stamp, "trakt", "default", "ratings")
	if a != b {
		t.Errorf("same coordinates produced different IDs: %q vs %q", a, b)
	}
	if a == c {
		t.Error("different features produced the same ID")
	}
}

func TestCreateListRead(t *testing.T) {
	s := newTestSnapshotter(t)
	seed(t, s, providers.FeatureWatchlist,
		movie("100", "Arrival", 2016),
		movie("200", "Blade Runner", 1982),
	)

	meta, err := s.Create(context.Background(), "crosswatch", providers.FeatureWatchlist, "before upgrade", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if meta.Provider != "crosswatch" || meta.Feature != providers.FeatureWatchlist {
		t.Fatalf("bad meta: %+v", meta)
	}

	metas, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(metas) != 1 {
		t.Fatalf("listed %d snapshots, want 1", len(metas))
	}
	if metas[0].Label != "before upgrade" || metas[0].Bundle {
		t.Fatalf("bad listed meta: %+v", metas[0])
	}

	doc, err := s.Read(meta.Path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if doc.Kind != KindSnapshot || doc.Stats.Count != 2 || len(doc.Items) != 2 {
		t.Fatalf("bad document: kind=%s count=%d items=%d", doc.Kind, doc.Stats.Count, len(doc.Items))
	}
	if doc.Stats.ByType["movie"] != 2 {
		t.Fatalf("by_type wrong: %v", doc.Stats.ByType)
	}
}

func TestBundleCreateSharesStampAndSumsStats(t *testing.T) {
	s := newTestSnapshotter(t)
	seed(t, s, providers.FeatureWatchlist,
		movie("1", "Arrival", 2016), movie("2", "Dune", 2021), movie("3", "Her", 2013))
	seed(t, s, providers.FeatureRatings,
		movie("4", "Alien", 1979), movie("5", "Heat", 1995))

	meta, err := s.Create(context.Background(), "crosswatch", "all", "bundle", "")
	if err != nil {
		t.Fatalf("Create all: %v", err)
	}
	if !meta.Bundle {
		t.Fatalf("parent not a bundle: %+v", meta)
	}

	doc, err := s.Read(meta.Path)
	if err != nil {
		t.Fatalf("Read bundle: %v", err)
	}
	if doc.Kind != KindBundle {
		t.Fatalf("kind=%s, want bundle", doc.Kind)
	}
	// History is enabled but empty: counted in stats, no child file.
	if len(doc.Children) != 2 {
		t.Fatalf("children=%d, want 2", len(doc.Children))
	}
	if doc.Stats.Count != 5 {
		t.Fatalf("bundle count=%d, want 5", doc.Stats.Count)
	}
	feats := doc.Stats.Features
	if feats["watchlist"] != 3 || feats["ratings"] != 2 || feats["history"] != 0 {
		t.Fatalf("per-feature stats wrong: %v", feats)
	}
	if _, ok := feats["history"]; !ok {
		t.Fatal("empty enabled feature missing from stats")
	}

	stamp := meta.Stamp
	for _, child := range doc.Children {
		cd, err := s.Read(child.Path)
		if err != nil {
			t.Fatalf("read child %s: %v", child.Path, err)
		}
		cm := parseName(filepath.Base(child.Path))
		if cm == nil || cm.Stamp != stamp {
			t.Fatalf("child %s does not share bundle stamp %s", child.Path, stamp)
		}
		if cd.Stats.Count != child.Stats.Count {
			t.Fatalf("child stats mismatch for %s", child.Feature)
		}
	}
}

func TestRestoreMergeRoundTrip(t *testing.T) {
	s := newTestSnapshotter(t)
	seed(t, s, providers.FeatureWatchlist,
		movie("100", "Arrival", 2016),
		movie("200", "Blade Runner", 1982),
	)

	meta, err := s.Create(context.Background(), "crosswatch", providers.FeatureWatchlist, "t", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Empty the destination, then restore onto it.
	if _, err := s.ClearProviderFeatures(context.Background(), "crosswatch", []string{providers.FeatureWatchlist}, ""); err != nil {
		t.Fatalf("ClearProviderFeatures: %v", err)
	}

	res, err := s.Restore(context.Background(), meta.Path, ModeMerge, "")
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if !res.OK || res.Added != 2 {
		t.Fatalf("restore result %+v, want ok with 2 added", res)
	}

	a, err := s.adapter("crosswatch", "")
	if err != nil {
		t.Fatalf("adapter: %v", err)
	}
	idx, err := a.BuildIndex(context.Background(), providers.FeatureWatchlist)
	if err != nil {
		t.Fatalf("BuildIndex: %v", err)
	}

	doc, _ := s.Read(meta.Path)
	if len(idx) != len(doc.Items) {
		t.Fatalf("restored %d items, snapshot has %d", len(idx), len(doc.Items))
	}
	for key := range doc.Items {
		if _, ok := idx[key]; !ok {
			t.Fatalf("key %s missing after restore", key)
		}
	}
}

func TestClearRestoreReplacesCurrentState(t *testing.T) {
	s := newTestSnapshotter(t)
	seed(t, s, providers.FeatureWatchlist, movie("100", "Arrival", 2016))

	meta, err := s.Create(context.Background(), "crosswatch", providers.FeatureWatchlist, "t", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// An item added after the snapshot must not survive clear_restore.
	seed(t, s, providers.FeatureWatchlist, movie("999", "Intruder", 2024))

	res, err := s.Restore(context.Background(), meta.Path, ModeClearRestore, "")
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if !res.OK || res.Removed != 2 || res.Added != 1 {
		t.Fatalf("restore result %+v, want 2 removed / 1 added", res)
	}

	a, _ := s.adapter("crosswatch", "")
	idx, err := a.BuildIndex(context.Background(), providers.FeatureWatchlist)
	if err != nil {
		t.Fatalf("BuildIndex: %v", err)
	}
	if len(idx) != 1 {
		t.Fatalf("index has %d items after clear_restore, want 1", len(idx))
	}
}

func TestPathTraversalRejected(t *testing.T) {
	s := newTestSnapshotter(t)

	if _, err := s.Read("../outside.json"); err == nil {
		t.Fatal("Read accepted a traversal path")
	}
	if err := s.Delete("../../etc/passwd", false); err == nil {
		t.Fatal("Delete accepted a traversal path")
	}
}

func TestDeleteBundleWithChildren(t *testing.T) {
	s := newTestSnapshotter(t)
	seed(t, s, providers.FeatureWatchlist, movie("100", "Arrival", 2016))

	meta, err := s.Create(context.Background(), "crosswatch", "all", "t", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.Delete(meta.Path, true); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	metas, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(metas) != 0 {
		t.Fatalf("%d snapshots survive bundle delete: %+v", len(metas), metas)
	}
}

func TestDiffBucketsAndFieldChanges(t *testing.T) {
	s := newTestSnapshotter(t)

	rated := movie("100", "Arrival", 2016)
	rated.Rating = 7

	rerated := rated
	rerated.Rating = 9

	docA := &Document{Kind: KindSnapshot, Provider: "crosswatch", Feature: "ratings",
		Items: identity.Index{}}
	docA.Items.Merge(rated)
	docA.Items.Merge(movie("200", "Blade Runner", 1982))

	docB := &Document{Kind: KindSnapshot, Provider: "crosswatch", Feature: "ratings",
		Items: identity.Index{}}
	docB.Items.Merge(rerated)
	docB.Items.Merge(movie("300", "Dune", 2021))

	stamp := s.now()
	relA := relPathFor(stamp, "crosswatch", "default", "ratings", "a")
	relB := relPathFor(s.now(), "crosswatch", "default", "ratings", "b")
	if err := s.writeDoc(relA, docA); err != nil {
		t.Fatalf("writeDoc: %v", err)
	}
	if err := s.writeDoc(relB, docB); err != nil {
		t.Fatalf("writeDoc: %v", err)
	}

	result, err := s.Diff(relA, relB, DiffOptions{})
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	if result.Summary.Added != 1 || result.Summary.Removed != 1 || result.Summary.Updated != 1 {
		t.Fatalf("summary %+v, want 1/1/1", result.Summary)
	}
	if len(result.Updated) != 1 || len(result.Updated[0].Changes) != 1 {
		t.Fatalf("updated entries wrong: %+v", result.Updated)
	}
	change := result.Updated[0].Changes[0]
	if change.Path != "rating" {
		t.Fatalf("change path %q, want rating", change.Path)
	}

	// A limit of zero buckets flags truncation without dropping counts.
	capped, err := s.Diff(relA, relB, DiffOptions{Limit: 1, MaxChanges: 1})
	if err != nil {
		t.Fatalf("Diff capped: %v", err)
	}
	if capped.Summary.Added != 1 {
		t.Fatalf("capped summary lost counts: %+v", capped.Summary)
	}
}

func TestSweepRetention(t *testing.T) {
	s := newTestSnapshotter(t)
	s.cfg.Snapshots.MaxSnapshots = 2

	// Three snapshots of the same scope, oldest first.
	var rels []string
	for i, label := range []string{"one", "two", "three"} {
		rel := relPathFor(s.now(), "crosswatch", "default", "watchlist", label)
		doc := &Document{Kind: KindSnapshot, Provider: "crosswatch", Feature: "watchlist", Items: identity.Index{}}
		if err := s.writeDoc(rel, doc); err != nil {
			t.Fatalf("writeDoc: %v", err)
		}
		mtime := time.Date(2026, 8, 20, 10, i, 0, 0, time.UTC)
		if err := os.Chtimes(filepath.Join(s.root, rel), mtime, mtime); err != nil {
			t.Fatalf("Chtimes: %v", err)
		}
		rels = append(rels, rel)
	}

	deleted, err := s.Sweep()
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("deleted=%d, want 1", deleted)
	}
	if _, err := os.Stat(filepath.Join(s.root, rels[0])); !os.IsNotExist(err) {
		t.Fatal("oldest snapshot survived the sweep")
	}

	metas, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(metas) != 2 {
		t.Fatalf("%d snapshots remain, want 2", len(metas))
	}
}

func TestListIgnoresForeignFiles(t *testing.T) {
	s := newTestSnapshotter(t)
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(s.root, "notes.json"), []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	metas, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(metas) != 0 {
		t.Fatalf("foreign file listed: %+v", metas)
	}
}
