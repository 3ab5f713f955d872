// CrossWatch - Cross-Provider Media Library Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crosswatch

package identity

import (
	"testing"
)

func TestNormalizeIMDB(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"tt0111161", "tt0111161"},
		{"TT0111161", "tt0111161"},
		{"0111161", "tt0111161"},
		{"  tt0111161  ", "tt0111161"},
		{"", ""},
		{"abc", ""},
		{"tt", ""},
	}
	for _, tt := range tests {
		if got := Normalize(KindIMDB, tt.raw); got != tt.want {
			t.Errorf("Normalize(imdb, %q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestNormalizeNumericKinds(t *testing.T) {
	for _, kind := range []string{KindTMDB, KindTVDB, KindTrakt, KindSIMKL, KindAniList, KindMAL} {
		if got := Normalize(kind, " 550 "); got != "550" {
			t.Errorf("Normalize(%s) = %q, want 550", kind, got)
		}
		if got := Normalize(kind, "55x0"); got != "" {
			t.Errorf("Normalize(%s, non-digit) = %q, want empty", kind, got)
		}
	}
}

func TestNormalizeGUIDStripsQueryAndFragment(t *testing.T) {
	got := Normalize(KindGUID, "plex://movie/5d776b59ad5437001f79c6f8?lang=en#frag")
	want := "plex://movie/5d776b59ad5437001f79c6f8"
	if got != want {
		t.Errorf("Normalize(guid) = %q, want %q", got, want)
	}
}

func TestIDsFromGUIDDerivation(t *testing.T) {
	tests := []struct {
		guid     string
		wantKind string
		wantVal  string
	}{
		{"imdb://tt0111161", KindIMDB, "tt0111161"},
		{"tmdb://550", KindTMDB, "550"},
		{"tvdb://81189", KindTVDB, "81189"},
		{"com.plexapp.agents.imdb://tt0111161?lang=en", KindIMDB, "tt0111161"},
		{"com.plexapp.agents.thetvdb://81189/2/5?lang=en", KindTVDB, "81189"},
		{"plex://movie/5d776b59ad5437001f79c6f8?lang=en", KindPlex, "plex://movie/5d776b59ad5437001f79c6f8"},
	}
	for _, tt := range tests {
		item := Item{Type: TypeMovie, IDs: map[string]string{KindGUID: tt.guid}}
		ids := IDsFrom(item)
		if ids[tt.wantKind] != tt.wantVal {
			t.Errorf("IDsFrom(%q)[%s] = %q, want %q", tt.guid, tt.wantKind, ids[tt.wantKind], tt.wantVal)
		}
	}
}

func TestCanonicalKeyPriority(t *testing.T) {
	item := Item{
		Type: TypeMovie,
		IDs: map[string]string{
			KindIMDB:  "tt0137523",
			KindTMDB:  "550",
			KindSlug:  "fight-club",
			KindSIMKL: "1234",
		},
	}
	if got := CanonicalKey(item); got != "tmdb:550" {
		t.Errorf("CanonicalKey = %q, want tmdb:550", got)
	}

	delete(item.IDs, KindTMDB)
	if got := CanonicalKey(item); got != "imdb:tt0137523" {
		t.Errorf("CanonicalKey = %q, want imdb:tt0137523", got)
	}
}

func TestCanonicalKeyTitleYearFallback(t *testing.T) {
	item := Item{Type: TypeMovie, Title: "  The   Matrix ", Year: 1999}
	if got := CanonicalKey(item); got != "movie|the matrix|1999" {
		t.Errorf("CanonicalKey = %q", got)
	}
}

func TestCanonicalKeyStability(t *testing.T) {
	// P4: normalizing twice never changes the key.
	item := Item{
		Type:  TypeMovie,
		Title: "Fight Club",
		Year:  1999,
		IDs:   map[string]string{KindIMDB: "0137523", KindGUID: "tmdb://550?x=1"},
	}
	once := Minimal(item)
	twice := Minimal(once)
	if CanonicalKey(once) != CanonicalKey(twice) {
		t.Errorf("canonical key unstable: %q vs %q", CanonicalKey(once), CanonicalKey(twice))
	}
	if CanonicalKey(item) != CanonicalKey(once) {
		t.Errorf("canonical key changed by Minimal: %q vs %q", CanonicalKey(item), CanonicalKey(once))
	}
}

func TestEpisodeKeySynthesis(t *testing.T) {
	ep := Item{
		Type:    TypeEpisode,
		Season:  2,
		Episode: 5,
		ShowIDs: map[string]string{KindTVDB: "81189"},
	}
	if got := CanonicalKey(ep); got != "tvdb:81189#s02e05" {
		t.Errorf("episode key = %q, want tvdb:81189#s02e05", got)
	}

	// Episode-level IDs take precedence over synthesis.
	ep.IDs = map[string]string{KindIMDB: "tt1234567"}
	if got := CanonicalKey(ep); got != "imdb:tt1234567" {
		t.Errorf("episode key = %q, want imdb:tt1234567", got)
	}
}

func TestAnyKeyOverlap(t *testing.T) {
	a := Item{Type: TypeMovie, Title: "Fight Club", Year: 1999, IDs: map[string]string{KindIMDB: "tt0137523"}}
	b := Item{Type: TypeMovie, Title: "Fight Club", Year: 1999, IDs: map[string]string{KindTMDB: "550"}}
	c := Item{Type: TypeMovie, Title: "Se7en", Year: 1995, IDs: map[string]string{KindTMDB: "807"}}

	// Match via title/year despite disjoint ID sets.
	if !AnyKeyOverlap(a, b) {
		t.Error("expected overlap via type|title|year")
	}
	if AnyKeyOverlap(a, c) {
		t.Error("unexpected overlap")
	}

	// P5: symmetry and reflexivity.
	if AnyKeyOverlap(a, b) != AnyKeyOverlap(b, a) {
		t.Error("overlap not symmetric")
	}
	if !AnyKeyOverlap(a, a) {
		t.Error("overlap not reflexive")
	}
}

func TestMergeIDs(t *testing.T) {
	primary := map[string]string{KindIMDB: "tt0137523", KindTMDB: "550"}
	secondary := map[string]string{KindTMDB: "999", KindTVDB: "81189", KindTrakt: "bad-id"}

	got := MergeIDs(primary, secondary)
	if got[KindTMDB] != "550" {
		t.Errorf("primary should win: tmdb = %q", got[KindTMDB])
	}
	if got[KindTVDB] != "81189" {
		t.Errorf("secondary should fill gaps: tvdb = %q", got[KindTVDB])
	}
	if _, ok := got[KindTrakt]; ok {
		t.Error("non-normalizable value should be dropped")
	}
}

func TestMinimalProjection(t *testing.T) {
	item := Item{
		Type:    TypeMovie,
		Title:   "Fight Club",
		Year:    1999,
		IDs:     map[string]string{KindIMDB: "0137523"},
		Rating:  9,
		RatedAt: "2024-01-01T00:00:00Z",
		Private: map[string]any{"anilist": map[string]any{"list_entry_id": 42}},
	}
	min := Minimal(item)
	if min.IDs[KindIMDB] != "tt0137523" {
		t.Errorf("ids not normalized: %q", min.IDs[KindIMDB])
	}
	if min.Rating != 9 || min.RatedAt != "2024-01-01T00:00:00Z" {
		t.Error("rating payload should pass through")
	}
	if min.Private != nil {
		t.Error("private substructure should be dropped")
	}
}

func TestIndexMergeTakesRicherIDSet(t *testing.T) {
	idx := Index{}
	idx.Merge(Item{Type: TypeMovie, Title: "Fight Club", IDs: map[string]string{KindTMDB: "550"}})
	idx.Merge(Item{Type: TypeMovie, Year: 1999, IDs: map[string]string{KindTMDB: "550", KindIMDB: "tt0137523"}})

	if len(idx) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(idx))
	}
	got := idx["tmdb:550"]
	if got.IDs[KindIMDB] != "tt0137523" {
		t.Error("merge should adopt new IDs")
	}
	if got.Title != "Fight Club" || got.Year != 1999 {
		t.Errorf("merge should fill display hints: %q %d", got.Title, got.Year)
	}
}
