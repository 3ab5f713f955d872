// CrossWatch - Cross-Provider Media Library Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crosswatch

package providers

import (
	"context"
	"testing"

	"github.com/tomtom215/crosswatch/internal/config"
	"github.com/tomtom215/crosswatch/internal/identity"
	"github.com/tomtom215/crosswatch/internal/state"
)

func TestMDBBuildBodySplitsMoviesAndShows(t *testing.T) {
	chunk := []identity.Item{
		{Type: identity.TypeMovie, Title: "Heat", Year: 1995, IDs: map[string]string{identity.KindIMDB: "tt0113277"}},
		{Type: identity.TypeShow, Title: "Dark", Year: 2017, IDs: map[string]string{identity.KindTVDB: "332484"}},
		{Type: identity.TypeMovie, Title: "No IDs"},
	}
	result := &WriteResult{OK: true}

	body, kept := mdbBuildBody(chunk, result)

	if len(body.Movies) != 1 || len(body.Shows) != 1 {
		t.Fatalf("wrong split: %d movies, %d shows", len(body.Movies), len(body.Shows))
	}
	if body.Movies[0].IMDBID != "tt0113277" || body.Shows[0].TVDBID != 332484 {
		t.Fatalf("ids not projected: %+v / %+v", body.Movies[0], body.Shows[0])
	}
	if len(kept) != 2 {
		t.Fatalf("got %d kept items, want 2", len(kept))
	}
	if len(result.Unresolved) != 1 || result.Unresolved[0].Reason != ReasonMissingIDs {
		t.Fatalf("got unresolved %+v", result.Unresolved)
	}
}

func TestMDBNotFoundKeys(t *testing.T) {
	lists := mdbItemLists{
		Movies: []mdbItem{{TMDBID: 603}},
		Shows:  []mdbItem{{TVDBID: 332484}, {}}, // empty row unkeyable
	}
	keys := mdbNotFoundKeys(lists)
	if len(keys) != 2 {
		t.Fatalf("got %d keys: %v", len(keys), keys)
	}
	if _, ok := keys["tmdb:603"]; !ok {
		t.Fatalf("movie key missing: %v", keys)
	}
	if _, ok := keys["tvdb:332484"]; !ok {
		t.Fatalf("show key missing: %v", keys)
	}
}

func TestMDBItemRoundTrip(t *testing.T) {
	item := identity.Item{
		Type:    identity.TypeMovie,
		Title:   "Heat",
		Year:    1995,
		IDs:     map[string]string{identity.KindIMDB: "tt0113277", identity.KindTMDB: "949"},
		Rating:  9,
		RatedAt: "2026-01-02T00:00:00Z",
	}
	row, ok := mdbItemFrom(item)
	if !ok {
		t.Fatal("projectable item rejected")
	}
	back := row.toItem(identity.TypeMovie)
	if identity.CanonicalKey(back) != identity.CanonicalKey(item) {
		t.Fatalf("identity lost: %q vs %q", identity.CanonicalKey(back), identity.CanonicalKey(item))
	}
	if back.Rating != 9 || back.RatedAt != "2026-01-02T00:00:00Z" {
		t.Fatalf("rating payload lost: %+v", back)
	}

	if _, ok := mdbItemFrom(identity.Item{Type: identity.TypeMovie, Title: "x"}); ok {
		t.Fatal("item without projectable ids should be rejected")
	}
}

// Frozen shadow entries are filtered before any HTTP happens, so a fully
// frozen batch succeeds offline.
func TestMDBListFrozenItemsSkippedWithoutNetwork(t *testing.T) {
	store, err := state.NewStore(t.TempDir(), "crosswatch-default--mdblist-default", false)
	if err != nil {
		t.Fatal(err)
	}

	item := identity.Item{Type: identity.TypeMovie, Title: "Heat", IDs: map[string]string{identity.KindIMDB: "tt0113277"}}
	key := identity.CanonicalKey(item)

	sh := state.NewShadow()
	sh.Freeze(key, "not-found", item)
	if err := store.SaveShadow(FeatureWatchlist, sh); err != nil {
		t.Fatal(err)
	}

	a := NewMDBList(config.MDBListConfig{APIKey: "k"}, Deps{Store: store})
	wr, err := a.Add(context.Background(), []identity.Item{item}, FeatureWatchlist, false)
	if err != nil {
		t.Fatal(err)
	}
	if !wr.OK || wr.Count != 0 {
		t.Fatalf("got %+v", wr)
	}
	if len(wr.SkippedKeys) != 1 || wr.SkippedKeys[0] != key {
		t.Fatalf("frozen key not skipped: %+v", wr)
	}

	// Removals bypass the freeze filter; dry-run keeps them offline.
	wr, err = a.Remove(context.Background(), []identity.Item{item}, FeatureWatchlist, true)
	if err != nil {
		t.Fatal(err)
	}
	if wr.Count != 1 || len(wr.SkippedKeys) != 0 {
		t.Fatalf("removal should ignore the freeze: %+v", wr)
	}
}

func TestMDBListUnconfiguredRefusesWrites(t *testing.T) {
	a := NewMDBList(config.MDBListConfig{}, Deps{})
	wr, err := a.Add(context.Background(), []identity.Item{{Type: identity.TypeMovie, Title: "x"}}, FeatureWatchlist, false)
	if err != nil {
		t.Fatal(err)
	}
	if wr.OK || wr.Error != ReasonMissingConfig {
		t.Fatalf("got %+v", wr)
	}
}
