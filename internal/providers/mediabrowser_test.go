// CrossWatch - Cross-Provider Media Library Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crosswatch

package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"

	"github.com/tomtom215/crosswatch/internal/config"
	"github.com/tomtom215/crosswatch/internal/identity"
)

func mbTestCore(server string) *mediaBrowser {
	cfg := config.MediaBrowserConfig{Server: server, AccessToken: "tok", UserID: "u1"}
	return newMediaBrowser("jellyfin", "Jellyfin", identity.KindJellyfin, cfg, Deps{})
}

func TestMediaBrowserToItem(t *testing.T) {
	mb := mbTestCore("http://example.invalid")

	row := mbItem{
		ID:             "55",
		Name:           "Heat",
		Type:           "Movie",
		ProductionYear: 1995,
		ProviderIds:    map[string]string{"Imdb": "tt0113277", "Tmdb": "949"},
		UserData:       &mbUserData{Rating: 8.6, LastPlayedDate: "2026-01-02T00:00:00Z"},
	}
	item := mb.toItem(row)
	if item.Type != identity.TypeMovie || item.Title != "Heat" || item.Year != 1995 {
		t.Fatalf("got %+v", item)
	}
	// Vendor-cased ProviderIds keys normalize to canonical kinds.
	if item.IDs[identity.KindIMDB] != "tt0113277" || item.IDs[identity.KindTMDB] != "949" {
		t.Fatalf("ids not normalized: %v", item.IDs)
	}
	if item.IDs[identity.KindJellyfin] != "55" {
		t.Fatalf("internal id not kept: %v", item.IDs)
	}
	if item.Rating != 9 || item.WatchedAt != "2026-01-02T00:00:00Z" {
		t.Fatalf("user data not mapped: %+v", item)
	}

	ep := mb.toItem(mbItem{
		ID:          "77",
		Name:        "The Gun",
		SeriesName:  "Dark",
		Type:        "Episode",
		ParentIndex: 2,
		IndexNumber: 5,
	})
	if ep.Type != identity.TypeEpisode || ep.Title != "Dark" || ep.Season != 2 || ep.Episode != 5 {
		t.Fatalf("got %+v", ep)
	}
}

func TestMediaBrowserFavoritesIndexAndWrites(t *testing.T) {
	var favoriteCalls []string

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/Users/u1/Items" && r.URL.Query().Get("AnyProviderIdEquals") != "":
			_ = json.NewEncoder(w).Encode(mbItemsPage{
				Items:            []mbItem{{ID: "55", Name: "Heat", Type: "Movie"}},
				TotalRecordCount: 1,
			})
		case r.URL.Path == "/Users/u1/Items" && r.URL.Query().Get("Filters") == "IsFavorite":
			_ = json.NewEncoder(w).Encode(mbItemsPage{
				Items: []mbItem{{
					ID:             "55",
					Name:           "Heat",
					Type:           "Movie",
					ProductionYear: 1995,
					ProviderIds:    map[string]string{"Imdb": "tt0113277"},
				}},
				TotalRecordCount: 1,
			})
		case strings.HasPrefix(r.URL.Path, "/Users/u1/FavoriteItems/"):
			favoriteCalls = append(favoriteCalls, r.Method+" "+r.URL.Path)
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer ts.Close()

	mb := mbTestCore(ts.URL)
	ctx := context.Background()

	idx, err := mb.buildIndex(ctx, FeatureWatchlist)
	if err != nil {
		t.Fatal(err)
	}
	if len(idx) != 1 {
		t.Fatalf("got %d items: %v", len(idx), idx.Keys())
	}
	if _, ok := idx["imdb:tt0113277"]; !ok {
		t.Fatalf("favorite not indexed: %v", idx.Keys())
	}

	// Add resolves the internal id first, then POSTs the favorite.
	item := identity.Item{Type: identity.TypeMovie, Title: "Heat", IDs: map[string]string{identity.KindIMDB: "tt0113277"}}
	wr, err := mb.add(ctx, []identity.Item{item}, FeatureWatchlist, false)
	if err != nil {
		t.Fatal(err)
	}
	if !wr.OK || wr.Count != 1 {
		t.Fatalf("got %+v", wr)
	}

	wr, err = mb.remove(ctx, []identity.Item{item}, FeatureWatchlist, false)
	if err != nil {
		t.Fatal(err)
	}
	if !wr.OK || wr.Count != 1 {
		t.Fatalf("got %+v", wr)
	}

	if len(favoriteCalls) != 2 ||
		favoriteCalls[0] != "POST /Users/u1/FavoriteItems/55" ||
		favoriteCalls[1] != "DELETE /Users/u1/FavoriteItems/55" {
		t.Fatalf("got favorite calls %v", favoriteCalls)
	}
}

func TestMediaBrowserUnresolvableItemIsUnresolved(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(mbItemsPage{}) // library knows nothing
	}))
	defer ts.Close()

	mb := mbTestCore(ts.URL)
	item := identity.Item{Type: identity.TypeMovie, Title: "Obscure", IDs: map[string]string{identity.KindTMDB: "999999"}}
	wr, err := mb.add(context.Background(), []identity.Item{item}, FeatureWatchlist, false)
	if err != nil {
		t.Fatal(err)
	}
	if wr.Count != 0 || len(wr.Unresolved) != 1 {
		t.Fatalf("got %+v", wr)
	}
	if wr.Unresolved[0].Reason != ReasonUnresolvedIDs {
		t.Fatalf("got reason %q", wr.Unresolved[0].Reason)
	}

	// Items with no external ids at all never hit the wire.
	bare := identity.Item{Type: identity.TypeMovie, Title: "No IDs"}
	wr, err = mb.add(context.Background(), []identity.Item{bare}, FeatureWatchlist, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(wr.Unresolved) != 1 || wr.Unresolved[0].Reason != ReasonMissingIDs {
		t.Fatalf("got %+v", wr)
	}
}

func TestMediaBrowserUnconfigured(t *testing.T) {
	mb := newMediaBrowser("emby", "Emby", identity.KindEmby, config.MediaBrowserConfig{}, Deps{})
	if mb.isConfigured() {
		t.Fatal("empty config reported configured")
	}
	if _, err := mb.buildIndex(context.Background(), FeatureWatchlist); err == nil {
		t.Fatal("index on unconfigured adapter should fail")
	}
	wr, err := mb.add(context.Background(), []identity.Item{{Type: identity.TypeMovie, Title: "x"}}, FeatureWatchlist, false)
	if err != nil {
		t.Fatal(err)
	}
	if wr.OK || wr.Error != ReasonMissingConfig {
		t.Fatalf("got %+v", wr)
	}
}
