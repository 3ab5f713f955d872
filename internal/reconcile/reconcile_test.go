// CrossWatch - Cross-Provider Media Library Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crosswatch

package reconcile

import (
	"context"
	"testing"

	"github.com/tomtom215/crosswatch/internal/config"
	"github.com/tomtom215/crosswatch/internal/identity"
	"github.com/tomtom215/crosswatch/internal/providers"
	"github.com/tomtom215/crosswatch/internal/state"
)

// mockAdapter is a scriptable in-memory Adapter.
type mockAdapter struct {
	idx  identity.Index
	caps providers.Capabilities

	addFn    func(items []identity.Item) (*providers.WriteResult, error)
	removeFn func(items []identity.Item) (*providers.WriteResult, error)

	adds    [][]identity.Item
	removes [][]identity.Item
}

func (m *mockAdapter) Manifest() providers.Manifest {
	return providers.Manifest{Name: "mock", Features: m.Features(), Capabilities: m.caps}
}

func (m *mockAdapter) Features() map[string]bool {
	return map[string]bool{
		providers.FeatureWatchlist: true,
		providers.FeatureRatings:   true,
		providers.FeatureHistory:   true,
	}
}

func (m *mockAdapter) Capabilities() providers.Capabilities { return m.caps }
func (m *mockAdapter) IsConfigured() bool                   { return true }

func (m *mockAdapter) Health(context.Context) providers.Health {
	return providers.Health{OK: true, Status: "ok"}
}

func (m *mockAdapter) BuildIndex(context.Context, string) (identity.Index, error) {
	if m.idx == nil {
		return identity.Index{}, nil
	}
	return m.idx.Clone(), nil
}

func (m *mockAdapter) Add(_ context.Context, items []identity.Item, _ string, _ bool) (*providers.WriteResult, error) {
	m.adds = append(m.adds, items)
	if m.addFn != nil {
		return m.addFn(items)
	}
	return confirmAll(items), nil
}

func (m *mockAdapter) Remove(_ context.Context, items []identity.Item, _ string, _ bool) (*providers.WriteResult, error) {
	m.removes = append(m.removes, items)
	if m.removeFn != nil {
		return m.removeFn(items)
	}
	return confirmAll(items), nil
}

func confirmAll(items []identity.Item) *providers.WriteResult {
	wr := &providers.WriteResult{OK: true, Count: len(items)}
	for _, it := range items {
		wr.ConfirmedKeys = append(wr.ConfirmedKeys, identity.CanonicalKey(it))
	}
	return wr
}

func movie(tmdbID, title string, year int) identity.Item {
	return identity.Item{
		Type:  identity.TypeMovie,
		Title: title,
		Year:  year,
		IDs:   map[string]string{identity.KindTMDB: tmdbID},
	}
}

func indexOf(items ...identity.Item) identity.Index {
	idx := identity.Index{}
	for _, it := range items {
		idx.Merge(it)
	}
	return idx
}

func newTask(t *testing.T, src, dst *mockAdapter, pair config.PairConfig) *Task {
	t.Helper()
	store, err := state.NewStore(t.TempDir(), "src-default--dst-default", false)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return &Task{
		SourceName: "src",
		TargetName: "dst",
		Source:     src,
		Target:     dst,
		Feature:    providers.FeatureWatchlist,
		Pair:       pair,
		Store:      store,
	}
}

func TestMirrorAddsMissingItems(t *testing.T) {
	a := movie("100", "Arrival", 2016)
	b := movie("200", "Blade Runner", 1982)

	src := &mockAdapter{idx: indexOf(a, b), caps: providers.Capabilities{ObservedDeletes: true}}
	dst := &mockAdapter{idx: indexOf(b)}

	task := newTask(t, src, dst, config.PairConfig{Direction: config.DirectionMirror})
	res, err := task.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.Added != 1 || res.Removed != 0 {
		t.Fatalf("added=%d removed=%d, want 1/0", res.Added, res.Removed)
	}
	if len(dst.adds) != 1 || len(dst.adds[0]) != 1 {
		t.Fatalf("unexpected add batches: %v", dst.adds)
	}
	if got := identity.CanonicalKey(dst.adds[0][0]); got != identity.CanonicalKey(a) {
		t.Fatalf("added %q, want %q", got, identity.CanonicalKey(a))
	}

	baseline, err := task.Store.LoadBaseline(providers.FeatureWatchlist)
	if err != nil {
		t.Fatalf("LoadBaseline: %v", err)
	}
	if len(baseline) != 2 {
		t.Fatalf("baseline has %d items, want 2", len(baseline))
	}
}

func TestRemovalsRequireObservedDeletes(t *testing.T) {
	kept := movie("100", "Arrival", 2016)
	gone := movie("200", "Blade Runner", 1982)

	cases := []struct {
		name        string
		observed    bool
		allowDelete bool
		wantRemoved int
	}{
		{"no observed deletes", false, false, 0},
		{"observed deletes", true, false, 1},
		{"baseline deletes allowed", false, true, 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			src := &mockAdapter{idx: indexOf(kept), caps: providers.Capabilities{ObservedDeletes: tc.observed}}
			dst := &mockAdapter{idx: indexOf(kept, gone)}

			task := newTask(t, src, dst, config.PairConfig{AllowBaselineDeletes: tc.allowDelete})
			if err := task.Store.SaveBaseline(providers.FeatureWatchlist, indexOf(kept, gone), ""); err != nil {
				t.Fatalf("SaveBaseline: %v", err)
			}

			res, err := task.Run(context.Background())
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if res.Removed != tc.wantRemoved {
				t.Fatalf("removed=%d, want %d", res.Removed, tc.wantRemoved)
			}
		})
	}
}

func TestSuppressReaddsSkipsUserRemovals(t *testing.T) {
	it := movie("100", "Arrival", 2016)

	src := &mockAdapter{idx: indexOf(it)}
	dst := &mockAdapter{idx: identity.Index{}}

	task := newTask(t, src, dst, config.PairConfig{SuppressReadds: true})
	// The item was reconciled before and has since vanished from dst.
	if err := task.Store.SaveBaseline(providers.FeatureWatchlist, indexOf(it), ""); err != nil {
		t.Fatalf("SaveBaseline: %v", err)
	}

	res, err := task.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Added != 0 {
		t.Fatalf("added=%d, want 0 (re-add suppressed)", res.Added)
	}
	if len(dst.adds) != 0 {
		t.Fatalf("dst received add batches: %v", dst.adds)
	}
}

func TestIgnoredShadowEntriesNeverReadded(t *testing.T) {
	it := movie("100", "Arrival", 2016)
	key := identity.CanonicalKey(it)

	src := &mockAdapter{idx: indexOf(it)}
	dst := &mockAdapter{idx: identity.Index{}}

	task := newTask(t, src, dst, config.PairConfig{})
	sh := state.NewShadow()
	sh.Ignore(key, "no-match", it)
	if err := task.Store.SaveShadow(providers.FeatureWatchlist, sh); err != nil {
		t.Fatalf("SaveShadow: %v", err)
	}

	res, err := task.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Added != 0 || len(dst.adds) != 0 {
		t.Fatalf("ignored item was re-added: %+v", res)
	}
}

func TestTwoWayAddsBothWaysAndUnionsBaseline(t *testing.T) {
	onlySrc := movie("100", "Arrival", 2016)
	onlyDst := movie("200", "Blade Runner", 1982)

	src := &mockAdapter{idx: indexOf(onlySrc), caps: providers.Capabilities{ObservedDeletes: true}}
	dst := &mockAdapter{idx: indexOf(onlyDst), caps: providers.Capabilities{ObservedDeletes: true}}

	task := newTask(t, src, dst, config.PairConfig{Direction: config.DirectionTwoWay})
	res, err := task.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.Added != 2 {
		t.Fatalf("added=%d, want 2 (one per direction)", res.Added)
	}
	if len(dst.adds) != 1 || len(src.adds) != 1 {
		t.Fatalf("adds src=%d dst=%d, want 1 each", len(src.adds), len(dst.adds))
	}

	baseline, err := task.Store.LoadBaseline(providers.FeatureWatchlist)
	if err != nil {
		t.Fatalf("LoadBaseline: %v", err)
	}
	if len(baseline) != 2 {
		t.Fatalf("baseline has %d items, want union of 2", len(baseline))
	}
}

func TestTwoWayRatingConflictLastWriterWins(t *testing.T) {
	older := movie("100", "Arrival", 2016)
	older.Rating = 7
	older.RatedAt = "2026-01-01T00:00:00Z"

	newer := older
	newer.Rating = 9
	newer.RatedAt = "2026-06-01T00:00:00Z"

	// dst carries the newer rating; it must flow back to src.
	src := &mockAdapter{idx: indexOf(older)}
	dst := &mockAdapter{idx: indexOf(newer)}

	task := newTask(t, src, dst, config.PairConfig{Direction: config.DirectionTwoWay})
	task.Feature = providers.FeatureRatings

	if _, err := task.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(dst.adds) != 0 {
		t.Fatalf("stale side pushed its rating forward: %v", dst.adds)
	}
	if len(src.adds) != 1 || len(src.adds[0]) != 1 {
		t.Fatalf("winner not pushed to stale side: %v", src.adds)
	}
	if got := src.adds[0][0].Rating; got != 9 {
		t.Fatalf("pushed rating %d, want 9", got)
	}
}

func TestRateLimitExhaustionAbortsRemainingBatches(t *testing.T) {
	add := movie("100", "Arrival", 2016)
	keep := movie("300", "Dune", 2021)
	rem := movie("200", "Blade Runner", 1982)

	src := &mockAdapter{idx: indexOf(add, keep), caps: providers.Capabilities{ObservedDeletes: true}}
	dst := &mockAdapter{idx: indexOf(keep, rem)}
	dst.addFn = func(items []identity.Item) (*providers.WriteResult, error) {
		return &providers.WriteResult{
			OK: false,
			Unresolved: []providers.Unresolved{
				{Key: identity.CanonicalKey(items[0]), Reason: providers.ReasonRateLimited, Hint: "http:429"},
			},
		}, nil
	}

	task := newTask(t, src, dst, config.PairConfig{})
	if err := task.Store.SaveBaseline(providers.FeatureWatchlist, indexOf(keep, rem), ""); err != nil {
		t.Fatalf("SaveBaseline: %v", err)
	}

	res, err := task.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(dst.removes) != 0 {
		t.Fatalf("removals ran after rate-limit exhaustion: %v", dst.removes)
	}
	// One unresolved from the failed add, one marked for the skipped removal.
	if len(res.Unresolved) != 2 {
		t.Fatalf("unresolved=%d, want 2: %+v", len(res.Unresolved), res.Unresolved)
	}
	var sawSkipped bool
	for _, u := range res.Unresolved {
		if u.Key == identity.CanonicalKey(rem) && u.Hint == "http:429" {
			sawSkipped = true
		}
	}
	if !sawSkipped {
		t.Fatalf("skipped removal not marked unresolved: %+v", res.Unresolved)
	}
}

func TestDryRunSkipsBaselineWrite(t *testing.T) {
	it := movie("100", "Arrival", 2016)

	src := &mockAdapter{idx: indexOf(it)}
	dst := &mockAdapter{idx: identity.Index{}}

	task := newTask(t, src, dst, config.PairConfig{DryRun: true})
	res, err := task.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.DryRun {
		t.Fatal("result not flagged dry-run")
	}

	baseline, err := task.Store.LoadBaseline(providers.FeatureWatchlist)
	if err != nil {
		t.Fatalf("LoadBaseline: %v", err)
	}
	if len(baseline) != 0 {
		t.Fatalf("dry run persisted a baseline of %d items", len(baseline))
	}
}

func TestEnrichMergesRicherIDs(t *testing.T) {
	slim := movie("100", "Arrival", 2016)
	rich := movie("100", "Arrival", 2016)
	rich.IDs[identity.KindIMDB] = "tt2543164"

	got := enrich(slim, indexOf(rich))
	if got.IDs[identity.KindIMDB] != "tt2543164" {
		t.Fatalf("imdb id not merged: %v", got.IDs)
	}
}
