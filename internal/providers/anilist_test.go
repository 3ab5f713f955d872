// CrossWatch - Cross-Provider Media Library Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crosswatch

package providers

import (
	"testing"

	"github.com/tomtom215/crosswatch/internal/identity"
)

func anilistCandidate(english, romaji string, year int, format string) anilistMedia {
	var m anilistMedia
	m.Title.English = english
	m.Title.Romaji = romaji
	m.StartDate.Year = year
	m.Format = format
	return m
}

func TestScoreCandidateExactTitleAndYear(t *testing.T) {
	item := identity.Item{Type: identity.TypeShow, Title: "Cowboy Bebop", Year: 1998}
	cand := anilistCandidate("Cowboy Bebop", "Kaubōi Bebappu", 1998, "TV")

	// exact(70) + year(30) + kind(5) clears the default 85 threshold
	if got := scoreCandidate(item, cand); got != 105 {
		t.Fatalf("got score %d, want 105", got)
	}
}

func TestScoreCandidateSubstringWithYearMismatchRejects(t *testing.T) {
	item := identity.Item{Type: identity.TypeShow, Title: "Bebop", Year: 1998}
	cand := anilistCandidate("Cowboy Bebop", "", 2001, "TV")

	// substring(20) + year differ(-50) + kind(5) stays far below threshold
	if got := scoreCandidate(item, cand); got != -25 {
		t.Fatalf("got score %d, want -25", got)
	}
}

func TestScoreCandidateNoTitleMatchIsZero(t *testing.T) {
	item := identity.Item{Type: identity.TypeShow, Title: "Monster", Year: 2004}
	cand := anilistCandidate("Cowboy Bebop", "", 2004, "TV")

	// No title overlap short-circuits; year never contributes.
	if got := scoreCandidate(item, cand); got != 0 {
		t.Fatalf("got score %d, want 0", got)
	}
}

func TestScoreCandidateKindAlignment(t *testing.T) {
	item := identity.Item{Type: identity.TypeMovie, Title: "Akira", Year: 1988}

	aligned := scoreCandidate(item, anilistCandidate("Akira", "", 1988, "MOVIE"))
	misaligned := scoreCandidate(item, anilistCandidate("Akira", "", 1988, "TV"))
	if aligned-misaligned != anilistScoreKindAligned {
		t.Fatalf("alignment delta = %d, want %d", aligned-misaligned, anilistScoreKindAligned)
	}
}

func TestScoreCandidateMissingYearSkipsYearTerm(t *testing.T) {
	item := identity.Item{Type: identity.TypeShow, Title: "Cowboy Bebop"}
	cand := anilistCandidate("Cowboy Bebop", "", 1998, "TV")

	// exact(70) + kind(5), no year term either way
	if got := scoreCandidate(item, cand); got != 75 {
		t.Fatalf("got score %d, want 75", got)
	}
}

func TestScoreCandidateRomajiFallback(t *testing.T) {
	item := identity.Item{Type: identity.TypeShow, Title: "Shingeki no Kyojin", Year: 2013}
	cand := anilistCandidate("Attack on Titan", "Shingeki no Kyojin", 2013, "TV")

	if got := scoreCandidate(item, cand); got < anilistScoreExactTitle {
		t.Fatalf("romaji title should match exactly, got %d", got)
	}
}

func TestNormalizeTitle(t *testing.T) {
	cases := []struct{ in, want string }{
		{"  Cowboy   Bebop ", "cowboy bebop"},
		{"AKIRA", "akira"},
		{"", ""},
		{"\tShin\nSekai ", "shin sekai"},
	}
	for _, c := range cases {
		if got := normalizeTitle(c.in); got != c.want {
			t.Errorf("normalizeTitle(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestAniListEntryToItemMapsScoreAndTimestamps(t *testing.T) {
	e := anilistEntry{
		ID:        42,
		Status:    "COMPLETED",
		Score:     8.6,
		UpdatedAt: 1756000000,
	}
	e.Media.ID = 1
	e.Media.IDMal = 5
	e.Media.Title.English = "Cowboy Bebop"
	e.Media.StartDate.Year = 1998
	e.Media.Format = "TV"

	item := e.toItem()
	if item.Type != identity.TypeShow || item.Title != "Cowboy Bebop" || item.Year != 1998 {
		t.Fatalf("got %+v", item)
	}
	if item.Rating != 9 {
		t.Fatalf("score 8.6 should round to 9, got %d", item.Rating)
	}
	if item.RatedAt == "" || item.WatchedAt != item.RatedAt {
		t.Fatalf("completed entries get watched_at = rated_at, got %+v", item)
	}
	if item.IDs[identity.KindAniList] != "1" || item.IDs[identity.KindMAL] != "5" {
		t.Fatalf("vendor ids not mapped: %v", item.IDs)
	}
	if item.Private["list_entry_id"] != 42 {
		t.Fatalf("list entry id not carried: %v", item.Private)
	}
}
