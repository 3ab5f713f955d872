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
)

func traktTestConfig(configured bool) config.TraktConfig {
	var cfg config.TraktConfig
	if configured {
		cfg.ClientID = "client-id"
		cfg.AccessToken = "token"
	}
	return cfg
}

func TestBuildSyncBodyGroupsByType(t *testing.T) {
	items := []identity.Item{
		{Type: identity.TypeMovie, Title: "The Matrix", Year: 1999, IDs: map[string]string{identity.KindTMDB: "603"}},
		{Type: identity.TypeShow, Title: "Dark", Year: 2017, IDs: map[string]string{identity.KindTVDB: "332484"}},
		{Type: identity.TypeEpisode, Season: 1, Episode: 2, IDs: map[string]string{identity.KindTrakt: "73641"}},
		{Type: identity.TypeMovie, Title: "No IDs At All"},
	}

	body, sent, missing := buildSyncBody(items, FeatureWatchlist, false)

	if len(body.Movies) != 1 || len(body.Shows) != 1 || len(body.Episodes) != 1 {
		t.Fatalf("wrong grouping: %d movies, %d shows, %d episodes",
			len(body.Movies), len(body.Shows), len(body.Episodes))
	}
	if len(sent) != 3 {
		t.Fatalf("sent %d items, want 3", len(sent))
	}
	if body.Movies[0].IDs.TMDB != 603 {
		t.Fatalf("tmdb id not projected: %+v", body.Movies[0].IDs)
	}
	if body.Episodes[0].Season != 1 || body.Episodes[0].Number != 2 {
		t.Fatalf("episode numbering lost: %+v", body.Episodes[0])
	}
	if len(missing) != 1 || missing[0].Reason != ReasonMissingIDs {
		t.Fatalf("got missing %+v", missing)
	}
}

func TestBuildSyncBodyPayloadOnlyForRatedFeatures(t *testing.T) {
	items := []identity.Item{{
		Type:    identity.TypeMovie,
		IDs:     map[string]string{identity.KindTMDB: "603"},
		Rating:  9,
		RatedAt: "2026-08-01T00:00:00Z",
	}}

	// Watchlist writes never carry a rating payload.
	body, _, _ := buildSyncBody(items, FeatureWatchlist, true)
	if body.Movies[0].Rating != 0 || body.Movies[0].RatedAt != "" {
		t.Fatalf("watchlist body carries payload: %+v", body.Movies[0])
	}

	// Ratings adds do.
	body, _, _ = buildSyncBody(items, FeatureRatings, true)
	if body.Movies[0].Rating != 9 || body.Movies[0].RatedAt != "2026-08-01T00:00:00Z" {
		t.Fatalf("ratings body missing payload: %+v", body.Movies[0])
	}

	// Removes (withPayload false) strip it again even for ratings.
	body, _, _ = buildSyncBody(items, FeatureRatings, false)
	if body.Movies[0].Rating != 0 {
		t.Fatalf("remove body carries payload: %+v", body.Movies[0])
	}
}

func TestWriteAccountingExcludesUnsendableItems(t *testing.T) {
	items := []identity.Item{
		{Type: identity.TypeMovie, IDs: map[string]string{identity.KindTMDB: "603"}},
		{Type: identity.TypeMovie, Title: "no ids", Year: 1999},
	}

	_, sent, missing := buildSyncBody(items, FeatureWatchlist, false)
	if len(sent) != 1 || len(missing) != 1 {
		t.Fatalf("sent=%d missing=%d, want 1/1", len(sent), len(missing))
	}

	result := &WriteResult{OK: true}
	result.Unresolved = append(result.Unresolved, missing...)
	confirmWrites(result, sent, nil)

	// The ID-less item must be unresolved once and never confirmed.
	if result.Count != 1 || len(result.ConfirmedKeys) != 1 {
		t.Fatalf("count=%d confirmed=%v, want a single confirmation", result.Count, result.ConfirmedKeys)
	}
	if result.ConfirmedKeys[0] != "tmdb:603" {
		t.Fatalf("confirmed %q, want tmdb:603", result.ConfirmedKeys[0])
	}
	if len(result.Unresolved) != 1 || result.Unresolved[0].Reason != ReasonMissingIDs {
		t.Fatalf("unresolved %+v", result.Unresolved)
	}
	if result.Unresolved[0].Key == result.ConfirmedKeys[0] {
		t.Fatal("same key both confirmed and unresolved")
	}
}

func TestConfirmWritesSettlesNotFound(t *testing.T) {
	sent := []identity.Item{
		{Type: identity.TypeMovie, IDs: map[string]string{identity.KindTMDB: "603"}},
		{Type: identity.TypeMovie, IDs: map[string]string{identity.KindIMDB: "tt9999999"}},
	}
	result := &WriteResult{OK: true}
	confirmWrites(result, sent, map[string]struct{}{"imdb:tt9999999": {}})

	if result.Count != 1 || len(result.ConfirmedKeys) != 1 || result.ConfirmedKeys[0] != "tmdb:603" {
		t.Fatalf("got %+v", result)
	}
	if len(result.Unresolved) != 1 || result.Unresolved[0].Reason != ReasonNotFound {
		t.Fatalf("unresolved %+v", result.Unresolved)
	}
}

func TestTraktWritePath(t *testing.T) {
	cases := []struct {
		feature string
		remove  bool
		want    string
	}{
		{FeatureWatchlist, false, "/sync/watchlist"},
		{FeatureWatchlist, true, "/sync/watchlist/remove"},
		{FeatureRatings, false, "/sync/ratings"},
		{FeatureRatings, true, "/sync/ratings/remove"},
		{FeatureHistory, true, "/sync/history/remove"},
	}
	for _, c := range cases {
		if got := traktWritePath(c.feature, c.remove); got != c.want {
			t.Errorf("traktWritePath(%q, %v) = %q, want %q", c.feature, c.remove, got, c.want)
		}
	}
}

func TestTraktEntryToItem(t *testing.T) {
	entry := traktEntry{
		Rating:  8,
		RatedAt: "2026-05-01T12:00:00Z",
		Movie: &traktMedia{
			Title: "Heat",
			Year:  1995,
			IDs:   traktIDs{Trakt: 921, IMDB: "tt0113277", TMDB: 949},
		},
	}
	item, ok := entry.toItem()
	if !ok {
		t.Fatal("movie entry did not map")
	}
	if item.Type != identity.TypeMovie || item.Title != "Heat" || item.Year != 1995 {
		t.Fatalf("got %+v", item)
	}
	if item.Rating != 8 || item.RatedAt != "2026-05-01T12:00:00Z" {
		t.Fatalf("rating payload lost: %+v", item)
	}
	if item.IDs[identity.KindIMDB] != "tt0113277" || item.IDs[identity.KindTMDB] != "949" {
		t.Fatalf("ids not mapped: %v", item.IDs)
	}

	// Episode entries inherit show identity.
	entry = traktEntry{
		WatchedAt: "2026-06-01T00:00:00Z",
		Episode:   &traktEpisode{Season: 2, Number: 5, IDs: traktIDs{}},
		Show:      &traktMedia{Title: "Dark", Year: 2017, IDs: traktIDs{TVDB: 332484}},
	}
	item, ok = entry.toItem()
	if !ok {
		t.Fatal("episode entry did not map")
	}
	if item.Type != identity.TypeEpisode || item.Season != 2 || item.Episode != 5 {
		t.Fatalf("got %+v", item)
	}
	if item.Title != "Dark" || item.ShowIDs[identity.KindTVDB] != "332484" {
		t.Fatalf("show identity not inherited: %+v", item)
	}

	if _, ok := (traktEntry{}).toItem(); ok {
		t.Fatal("empty entry should not map")
	}
}

func TestTraktIDsRoundTrip(t *testing.T) {
	ids := map[string]string{
		identity.KindTrakt: "12",
		identity.KindSlug:  "the-matrix-1999",
		identity.KindIMDB:  "tt0133093",
		identity.KindTMDB:  "603",
		identity.KindTVDB:  "0", // zero drops on the way back
	}
	vendor := traktIDsFrom(ids)
	back := vendor.toMap()

	for _, kind := range []string{identity.KindTrakt, identity.KindSlug, identity.KindIMDB, identity.KindTMDB} {
		if back[kind] != ids[kind] {
			t.Errorf("%s: got %q, want %q", kind, back[kind], ids[kind])
		}
	}
	if _, ok := back[identity.KindTVDB]; ok {
		t.Error("zero tvdb id should not survive the round trip")
	}
}

func TestNotFoundKeySet(t *testing.T) {
	var resp traktSyncResponse
	resp.NotFound.Movies = []traktMedia{{IDs: traktIDs{TMDB: 603}}}
	resp.NotFound.Shows = []traktMedia{{IDs: traktIDs{TVDB: 332484}}}
	resp.NotFound.Episodes = []traktEpisode{{IDs: traktIDs{}}} // unkeyable, dropped

	keys := notFoundKeySet(resp)
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

func TestTraktUnconfiguredRefusesWrites(t *testing.T) {
	a := NewTrakt(traktTestConfig(false), Deps{})
	wr, err := a.Add(context.Background(), []identity.Item{{Type: identity.TypeMovie, Title: "x"}}, FeatureWatchlist, false)
	if err != nil {
		t.Fatal(err)
	}
	if wr.OK || wr.Error != ReasonMissingConfig {
		t.Fatalf("got %+v", wr)
	}
}

func TestTraktDryRunConfirmsWithoutNetwork(t *testing.T) {
	a := NewTrakt(traktTestConfig(true), Deps{})
	items := []identity.Item{
		{Type: identity.TypeMovie, IDs: map[string]string{identity.KindTMDB: "603"}},
		{Type: identity.TypeMovie, IDs: map[string]string{identity.KindIMDB: "tt0113277"}},
	}
	wr, err := a.Add(context.Background(), items, FeatureWatchlist, true)
	if err != nil {
		t.Fatal(err)
	}
	if !wr.OK || wr.Count != 2 || len(wr.ConfirmedKeys) != 2 {
		t.Fatalf("got %+v", wr)
	}
}
