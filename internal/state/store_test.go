// CrossWatch - Cross-Provider Media Library Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crosswatch

package state

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tomtom215/crosswatch/internal/identity"
)

func TestSanitizeScope(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"T→S#1", "T_S_1"},
		{"plex:default->trakt:default:watchlist", "plex_default-_trakt_default_watchlist"},
		{"  ", "default"},
		{"___", "default"},
		{"a//b", "a_b"},
		{strings.Repeat("x", 200), strings.Repeat("x", 96)},
	}
	for _, tt := range tests {
		if got := SanitizeScope(tt.raw); got != tt.want {
			t.Errorf("SanitizeScope(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestDisabledScopesDoNotPersist(t *testing.T) {
	dir := t.TempDir()
	for _, scope := range []string{"", "default", "unscoped", "none"} {
		s, err := NewStore(dir, scope, false)
		if err != nil {
			t.Fatalf("NewStore(%q): %v", scope, err)
		}
		if s.Enabled() {
			t.Errorf("scope %q should disable persistence", scope)
		}
		if err := s.SaveBaseline("watchlist", identity.Index{"imdb:tt1": {Type: identity.TypeMovie}}, ""); err != nil {
			t.Fatalf("SaveBaseline: %v", err)
		}
		idx, err := s.LoadBaseline("watchlist")
		if err != nil {
			t.Fatalf("LoadBaseline: %v", err)
		}
		if len(idx) != 0 {
			t.Errorf("scope %q: expected empty read-back", scope)
		}
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("disabled scopes wrote %d files", len(entries))
	}
}

func TestCaptureModeSuppressesState(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir, "pair-a", true)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if s.Enabled() {
		t.Error("capture mode should disable persistence")
	}
}

func TestBaselineRoundTrip(t *testing.T) {
	s, err := NewStore(t.TempDir(), "trakt-simkl-1", false)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	idx := identity.Index{
		"imdb:tt0111161": {Type: identity.TypeMovie, Title: "The Shawshank Redemption", Year: 1994, IDs: map[string]string{"imdb": "tt0111161"}},
	}
	if err := s.SaveBaseline("watchlist", idx, "2024-01-01T00:00:00Z"); err != nil {
		t.Fatalf("SaveBaseline: %v", err)
	}

	got, err := s.LoadBaseline("watchlist")
	if err != nil {
		t.Fatalf("LoadBaseline: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d items", len(got))
	}
	if got["imdb:tt0111161"].Title != "The Shawshank Redemption" {
		t.Errorf("round trip lost title")
	}
}

func TestScopeIsolation(t *testing.T) {
	// P7: writes under scope A never change files under scope B.
	dir := t.TempDir()
	a, _ := NewStore(dir, "scope-a", false)
	b, _ := NewStore(dir, "scope-b", false)

	if err := b.SaveBaseline("watchlist", identity.Index{"tmdb:1": {Type: identity.TypeMovie}}, ""); err != nil {
		t.Fatalf("SaveBaseline b: %v", err)
	}
	before, err := os.ReadFile(filepath.Join(dir, "baseline.watchlist.scope-b.json"))
	if err != nil {
		t.Fatalf("read b: %v", err)
	}

	if err := a.SaveBaseline("watchlist", identity.Index{"tmdb:2": {Type: identity.TypeShow}}, ""); err != nil {
		t.Fatalf("SaveBaseline a: %v", err)
	}

	after, err := os.ReadFile(filepath.Join(dir, "baseline.watchlist.scope-b.json"))
	if err != nil {
		t.Fatalf("re-read b: %v", err)
	}
	if string(before) != string(after) {
		t.Error("write under scope-a changed scope-b's file")
	}

	got, _ := a.LoadBaseline("watchlist")
	if _, ok := got["tmdb:2"]; !ok {
		t.Error("scope-a lost its own write")
	}
}

func TestLegacyMigration(t *testing.T) {
	dir := t.TempDir()
	legacy := `{"items":{"imdb:tt1":{"type":"movie","title":"Legacy"}}}`
	if err := os.WriteFile(filepath.Join(dir, "baseline.watchlist.json"), []byte(legacy), 0o644); err != nil {
		t.Fatalf("seed legacy: %v", err)
	}

	s, _ := NewStore(dir, "pair-x", false)
	idx, err := s.LoadBaseline("watchlist")
	if err != nil {
		t.Fatalf("LoadBaseline: %v", err)
	}
	if idx["imdb:tt1"].Title != "Legacy" {
		t.Error("legacy content not readable")
	}
	if _, err := os.Stat(filepath.Join(dir, "baseline.watchlist.pair-x.json")); err != nil {
		t.Error("legacy file not migrated to scoped path")
	}
}

func TestShadowFreezeIgnoreResolve(t *testing.T) {
	s, _ := NewStore(t.TempDir(), "pair-y", false)
	sh := NewShadow()

	item := identity.Item{Type: identity.TypeMovie, Title: "Ghost", Year: 1990, IDs: map[string]string{"imdb": "tt9999999"}}
	sh.Freeze("imdb:tt9999999", "add:not-found", item)
	sh.Freeze("imdb:tt9999999", "add:not-found", item)

	entry := sh.Items["imdb:tt9999999"]
	if entry.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", entry.Attempts)
	}
	if len(entry.Reasons) != 1 || entry.Reasons[0] != "add:not-found" {
		t.Errorf("reasons = %v", entry.Reasons)
	}
	if entry.SourceIDs["imdb"] != "tt9999999" {
		t.Error("provenance ids missing")
	}

	sh.Ignore("anilist-miss", "not-anime", identity.Item{Type: identity.TypeMovie, Title: "Heat"})
	if !sh.IsIgnored("anilist-miss") {
		t.Error("expected ignored entry")
	}
	sh.Resolve("anilist-miss")
	if !sh.IsIgnored("anilist-miss") {
		t.Error("Resolve must not drop ignored entries")
	}

	sh.Resolve("imdb:tt9999999")
	if sh.IsFrozen("imdb:tt9999999") {
		t.Error("Resolve should drop frozen entry")
	}

	if err := s.SaveShadow("watchlist", sh); err != nil {
		t.Fatalf("SaveShadow: %v", err)
	}
	got, err := s.LoadShadow("watchlist")
	if err != nil {
		t.Fatalf("LoadShadow: %v", err)
	}
	if !got.IsIgnored("anilist-miss") {
		t.Error("ignored entry lost in round trip")
	}
}

func TestWatermarks(t *testing.T) {
	s, _ := NewStore(t.TempDir(), "pair-z", false)
	if err := s.SaveWatermark("ratings", "2024-02-01T00:00:00Z"); err != nil {
		t.Fatalf("SaveWatermark: %v", err)
	}
	if err := s.SaveWatermark("history", "2024-03-01T00:00:00Z"); err != nil {
		t.Fatalf("SaveWatermark: %v", err)
	}

	got, err := s.LoadWatermark("ratings")
	if err != nil {
		t.Fatalf("LoadWatermark: %v", err)
	}
	if got != "2024-02-01T00:00:00Z" {
		t.Errorf("watermark = %q", got)
	}
}

func TestRunHistoryBounded(t *testing.T) {
	s, _ := NewStore(t.TempDir(), "pair-r", false)
	for i := 0; i < maxRunHistory+10; i++ {
		if err := s.AppendRun(RunSummary{RunID: "r", Added: i}); err != nil {
			t.Fatalf("AppendRun: %v", err)
		}
	}
	runs, err := s.RecentRuns()
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != maxRunHistory {
		t.Errorf("history len = %d, want %d", len(runs), maxRunHistory)
	}
	if runs[len(runs)-1].Added != maxRunHistory+9 {
		t.Error("newest run missing")
	}
}
