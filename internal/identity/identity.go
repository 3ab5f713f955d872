// CrossWatch - Cross-Provider Media Library Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crosswatch

package identity

import (
	"fmt"
	"strings"
)

// digitKinds are the ID kinds whose values are digits-only after normalization.
var digitKinds = map[string]bool{
	KindTMDB:    true,
	KindTVDB:    true,
	KindTrakt:   true,
	KindSIMKL:   true,
	KindAniList: true,
	KindMAL:     true,
}

// Normalize enforces the storage format for a raw provider ID.
// Returns "" for blanks and uninterpretable values.
//
//   - imdb: lowercased, "tt" prefix; bare digits are promoted to tt<digits>
//   - numeric kinds (tmdb, tvdb, trakt, simkl, anilist, mal): digits only
//   - guid: trimmed, query string and fragment stripped
//   - slug: trimmed, lowercased
//   - plex / jellyfin / emby and unknown kinds: trimmed opaque value
func Normalize(kind, raw string) string {
	v := strings.TrimSpace(raw)
	if v == "" {
		return ""
	}

	switch {
	case kind == KindIMDB:
		v = strings.ToLower(v)
		if allDigits(v) {
			return "tt" + v
		}
		if strings.HasPrefix(v, "tt") && len(v) > 2 && allDigits(v[2:]) {
			return v
		}
		return ""
	case digitKinds[kind]:
		if allDigits(v) {
			return v
		}
		return ""
	case kind == KindGUID:
		if i := strings.IndexAny(v, "?#"); i >= 0 {
			v = v[:i]
		}
		return strings.TrimSpace(v)
	case kind == KindSlug:
		return strings.ToLower(v)
	default:
		return v
	}
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// IDsFrom merges item.IDs with GUID-derived IDs into one normalized map.
// Recognized GUID shapes: imdb://tt…, tmdb://n, tvdb://n, plex://…, and the
// legacy com.plexapp.agents.* URIs.
func IDsFrom(item Item) map[string]string {
	out := make(map[string]string, len(item.IDs)+2)
	for kind, raw := range item.IDs {
		if v := Normalize(kind, raw); v != "" {
			out[kind] = v
		}
	}
	if guid := out[KindGUID]; guid != "" {
		for kind, v := range idsFromGUID(guid) {
			if _, exists := out[kind]; !exists {
				out[kind] = v
			}
		}
	}
	return out
}

// idsFromGUID extracts typed IDs out of a vendor GUID string.
func idsFromGUID(guid string) map[string]string {
	out := map[string]string{}

	switch {
	case strings.HasPrefix(guid, "imdb://"):
		if v := Normalize(KindIMDB, strings.TrimPrefix(guid, "imdb://")); v != "" {
			out[KindIMDB] = v
		}
	case strings.HasPrefix(guid, "tmdb://"), strings.HasPrefix(guid, "themoviedb://"):
		raw := strings.TrimPrefix(strings.TrimPrefix(guid, "tmdb://"), "themoviedb://")
		if v := Normalize(KindTMDB, firstSegment(raw)); v != "" {
			out[KindTMDB] = v
		}
	case strings.HasPrefix(guid, "tvdb://"), strings.HasPrefix(guid, "thetvdb://"):
		raw := strings.TrimPrefix(strings.TrimPrefix(guid, "tvdb://"), "thetvdb://")
		if v := Normalize(KindTVDB, firstSegment(raw)); v != "" {
			out[KindTVDB] = v
		}
	case strings.HasPrefix(guid, "com.plexapp.agents.imdb://"):
		if v := Normalize(KindIMDB, firstSegment(strings.TrimPrefix(guid, "com.plexapp.agents.imdb://"))); v != "" {
			out[KindIMDB] = v
		}
	case strings.HasPrefix(guid, "com.plexapp.agents.themoviedb://"):
		if v := Normalize(KindTMDB, firstSegment(strings.TrimPrefix(guid, "com.plexapp.agents.themoviedb://"))); v != "" {
			out[KindTMDB] = v
		}
	case strings.HasPrefix(guid, "com.plexapp.agents.thetvdb://"):
		if v := Normalize(KindTVDB, firstSegment(strings.TrimPrefix(guid, "com.plexapp.agents.thetvdb://"))); v != "" {
			out[KindTVDB] = v
		}
	case strings.HasPrefix(guid, "plex://"):
		// Modern Plex GUIDs are opaque; the whole URI is the plex id.
		if v := Normalize(KindPlex, guid); v != "" {
			out[KindPlex] = v
		}
	}

	return out
}

// firstSegment cuts a GUID payload at the first path separator. Legacy
// agent GUIDs encode season/episode as path segments after the show id.
func firstSegment(s string) string {
	if i := strings.IndexByte(s, '/'); i >= 0 {
		return s[:i]
	}
	return s
}

// CanonicalKey returns the single deterministic key for an item, in
// "<kind>:<value>" form, preferring IDs over title/year. Episode items
// without episode-level IDs get a key synthesized from the show key plus
// season/episode numbers.
func CanonicalKey(item Item) string {
	ids := IDsFrom(item)

	if item.Type == TypeEpisode || item.Type == TypeSeason {
		if key := episodeKey(item, ids); key != "" {
			return key
		}
	}

	for _, kind := range keyPriority {
		if v, ok := ids[kind]; ok {
			return kind + ":" + v
		}
	}
	return titleYearKey(item)
}

// episodeKey keys an episode by its own external IDs when present, else by
// show identity plus SxxExx.
func episodeKey(item Item, ids map[string]string) string {
	for _, kind := range []string{KindTMDB, KindIMDB, KindTVDB} {
		if v, ok := ids[kind]; ok {
			return kind + ":" + v
		}
	}

	show := Item{Type: TypeShow, Title: item.Title, Year: item.Year, IDs: item.ShowIDs}
	showKey := CanonicalKey(show)
	if showKey == "" {
		return ""
	}
	return fmt.Sprintf("%s#s%02de%02d", showKey, item.Season, item.Episode)
}

// titleYearKey builds the lossy fallback key "type|title|year".
func titleYearKey(item Item) string {
	title := strings.ToLower(strings.Join(strings.Fields(item.Title), " "))
	if title == "" {
		return ""
	}
	return fmt.Sprintf("%s|%s|%d", item.Type, title, item.Year)
}

// KeysForItem returns the full comparable key set for an item: every
// normalized kind:value pair plus the type|title|year key.
func KeysForItem(item Item) map[string]struct{} {
	keys := make(map[string]struct{})
	for kind, v := range IDsFrom(item) {
		keys[kind+":"+v] = struct{}{}
	}
	if ty := titleYearKey(item); ty != "" {
		keys[ty] = struct{}{}
	}
	return keys
}

// AnyKeyOverlap reports whether two items refer to the same entity: any
// normalized kind:value key in one set intersects the other, or their
// type|title|year keys match. Symmetric and reflexive.
func AnyKeyOverlap(a, b Item) bool {
	ka := KeysForItem(a)
	for k := range KeysForItem(b) {
		if _, ok := ka[k]; ok {
			return true
		}
	}
	return false
}

// MergeIDs combines two ID maps: primary wins on collisions, secondary
// fills gaps. Values are normalized; empty results are dropped.
func MergeIDs(primary, secondary map[string]string) map[string]string {
	out := make(map[string]string, len(primary)+len(secondary))
	for kind, raw := range secondary {
		if v := Normalize(kind, raw); v != "" {
			out[kind] = v
		}
	}
	for kind, raw := range primary {
		if v := Normalize(kind, raw); v != "" {
			out[kind] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Minimal projects an item down to identity plus portable feature payloads:
// ids, type, title, year, and rating/rated_at/watched_at when present.
func Minimal(item Item) Item {
	out := Item{
		Type:      item.Type,
		Title:     item.Title,
		Year:      item.Year,
		IDs:       IDsFrom(item),
		Rating:    item.Rating,
		RatedAt:   item.RatedAt,
		WatchedAt: item.WatchedAt,
	}
	if item.Type == TypeEpisode || item.Type == TypeSeason {
		out.Season = item.Season
		out.Episode = item.Episode
		out.ShowIDs = MergeIDs(item.ShowIDs, nil)
	}
	return out
}
