// CrossWatch - Cross-Provider Media Library Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crosswatch

package providers

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/tomtom215/crosswatch/internal/config"
	"github.com/tomtom215/crosswatch/internal/identity"
)

func localTestAdapter(t *testing.T, mutate func(*config.LocalConfig)) *Local {
	t.Helper()
	cfg := config.LocalConfig{RootDir: t.TempDir()}
	if mutate != nil {
		mutate(&cfg)
	}
	return NewLocal(cfg, Deps{})
}

func TestLocalAddRemoveLifecycle(t *testing.T) {
	ctx := context.Background()
	a := localTestAdapter(t, nil)

	items := []identity.Item{
		{Type: identity.TypeMovie, Title: "Heat", Year: 1995, IDs: map[string]string{identity.KindIMDB: "tt0113277"}},
		{Type: identity.TypeShow, Title: "Dark", Year: 2017, IDs: map[string]string{identity.KindTVDB: "332484"}},
	}
	wr, err := a.Add(ctx, items, FeatureWatchlist, false)
	if err != nil {
		t.Fatal(err)
	}
	if !wr.OK || wr.Count != 2 {
		t.Fatalf("got %+v", wr)
	}

	idx, err := a.BuildIndex(ctx, FeatureWatchlist)
	if err != nil {
		t.Fatal(err)
	}
	if len(idx) != 2 {
		t.Fatalf("got %d items: %v", len(idx), idx.Keys())
	}

	// Re-adding is idempotent and merges lower-priority IDs into the
	// stored row without changing its canonical key.
	richer := items[0]
	richer.IDs = map[string]string{identity.KindIMDB: "tt0113277", identity.KindTrakt: "921"}
	if _, err := a.Add(ctx, []identity.Item{richer}, FeatureWatchlist, false); err != nil {
		t.Fatal(err)
	}
	idx, _ = a.BuildIndex(ctx, FeatureWatchlist)
	if len(idx) != 2 {
		t.Fatalf("re-add duplicated the item: %v", idx.Keys())
	}
	if idx["imdb:tt0113277"].IDs[identity.KindTrakt] != "921" {
		t.Fatalf("ids not merged: %v", idx["imdb:tt0113277"].IDs)
	}

	// Removing an absent item is still success.
	wr, err = a.Remove(ctx, []identity.Item{
		items[0],
		{Type: identity.TypeMovie, Title: "Never Added", IDs: map[string]string{identity.KindTMDB: "1"}},
	}, FeatureWatchlist, false)
	if err != nil {
		t.Fatal(err)
	}
	if !wr.OK || wr.Count != 2 {
		t.Fatalf("got %+v", wr)
	}

	idx, _ = a.BuildIndex(ctx, FeatureWatchlist)
	if len(idx) != 1 {
		t.Fatalf("got %d items after remove: %v", len(idx), idx.Keys())
	}
}

func TestLocalDryRunTouchesNothing(t *testing.T) {
	ctx := context.Background()
	a := localTestAdapter(t, nil)

	item := identity.Item{Type: identity.TypeMovie, Title: "Heat", IDs: map[string]string{identity.KindIMDB: "tt0113277"}}
	wr, err := a.Add(ctx, []identity.Item{item}, FeatureWatchlist, true)
	if err != nil {
		t.Fatal(err)
	}
	if !wr.OK || wr.Count != 1 {
		t.Fatalf("got %+v", wr)
	}

	idx, _ := a.BuildIndex(ctx, FeatureWatchlist)
	if len(idx) != 0 {
		t.Fatalf("dry run persisted state: %v", idx.Keys())
	}
}

func TestLocalAutoSnapshotAndSweep(t *testing.T) {
	ctx := context.Background()
	a := localTestAdapter(t, func(cfg *config.LocalConfig) {
		cfg.AutoSnapshot = true
		cfg.MaxSnapshots = 2
	})

	// Each write leaves a snapshot; only the newest two survive the sweep.
	// Snapshot stamps have second resolution, so space the writes out.
	for i, id := range []string{"1", "2", "3"} {
		if i > 0 {
			time.Sleep(1100 * time.Millisecond)
		}
		item := identity.Item{Type: identity.TypeMovie, Title: "m" + id, IDs: map[string]string{identity.KindTMDB: id}}
		if _, err := a.Add(ctx, []identity.Item{item}, FeatureWatchlist, false); err != nil {
			t.Fatal(err)
		}
	}

	snaps, err := a.featureSnapshots(FeatureWatchlist)
	if err != nil {
		t.Fatal(err)
	}
	if len(snaps) != 2 {
		t.Fatalf("got %d snapshots, want 2: %v", len(snaps), snaps)
	}
}

func TestLocalRestoreLatestReplacesLiveState(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	first := NewLocal(config.LocalConfig{RootDir: root, AutoSnapshot: true, MaxSnapshots: 10}, Deps{})
	item := identity.Item{Type: identity.TypeMovie, Title: "Heat", IDs: map[string]string{identity.KindIMDB: "tt0113277"}}
	if _, err := first.Add(ctx, []identity.Item{item}, FeatureWatchlist, false); err != nil {
		t.Fatal(err)
	}

	// Clobber the live file, then a fresh adapter with restore=latest
	// brings the snapshot back before the first read.
	a := NewLocal(config.LocalConfig{RootDir: root}, Deps{})
	if err := os.Remove(a.featurePath(FeatureWatchlist)); err != nil {
		t.Fatal(err)
	}

	restored := NewLocal(config.LocalConfig{RootDir: root, RestoreWatchlist: "latest"}, Deps{})
	idx, err := restored.BuildIndex(ctx, FeatureWatchlist)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := idx["imdb:tt0113277"]; !ok {
		t.Fatalf("restore did not bring the item back: %v", idx.Keys())
	}
}

func TestLocalUnkeyableItemIsUnresolved(t *testing.T) {
	a := localTestAdapter(t, nil)
	wr, err := a.Add(context.Background(), []identity.Item{{Type: identity.TypeMovie}}, FeatureWatchlist, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(wr.Unresolved) != 1 || wr.Unresolved[0].Reason != ReasonMissingIDs {
		t.Fatalf("got %+v", wr)
	}
	if wr.Count != 0 {
		t.Fatalf("unkeyable item counted: %+v", wr)
	}
}
