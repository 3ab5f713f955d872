// CrossWatch - Cross-Provider Media Library Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crosswatch

// Package identity implements the cross-provider identity model: the Item
// entity shared by every adapter, ID normalization, canonical keying, and
// overlap-based matching.
//
// All functions in this package are pure; no I/O, no globals. Adapters map
// vendor payloads into Item and everything downstream (reconciler, state
// store, snapshotter) operates on canonical keys only.
package identity

// MediaType classifies an Item across all providers.
type MediaType string

const (
	TypeMovie   MediaType = "movie"
	TypeShow    MediaType = "show"
	TypeSeason  MediaType = "season"
	TypeEpisode MediaType = "episode"
	TypeAnime   MediaType = "anime"
)

// Recognized ID kinds. Values are stored normalized; see Normalize.
const (
	KindIMDB     = "imdb"
	KindTMDB     = "tmdb"
	KindTVDB     = "tvdb"
	KindTrakt    = "trakt"
	KindSIMKL    = "simkl"
	KindSlug     = "slug"
	KindAniList  = "anilist"
	KindMAL      = "mal"
	KindPlex     = "plex"
	KindGUID     = "guid"
	KindJellyfin = "jellyfin"
	KindEmby     = "emby"
)

// keyPriority is the deterministic canonical-key preference order.
// Title/year keys are used only when none of these kinds is present.
var keyPriority = []string{
	KindTMDB, KindIMDB, KindTVDB, KindTrakt, KindPlex, KindGUID, KindSlug, KindSIMKL,
}

// Item is the universal unit of state across providers and features.
// Feature payloads (rating, watched_at, ...) are optional; zero values mean
// absent and are omitted on the wire.
type Item struct {
	Type  MediaType `json:"type"`
	Title string    `json:"title,omitempty"`
	Year  int       `json:"year,omitempty"`

	// IDs maps provider-id kind to normalized value.
	IDs map[string]string `json:"ids,omitempty"`

	// Rating is an integer 1-10 when the item carries a rating.
	Rating int `json:"rating,omitempty"`
	// RatedAt and WatchedAt are ISO-8601 UTC strings with trailing Z.
	RatedAt   string `json:"rated_at,omitempty"`
	WatchedAt string `json:"watched_at,omitempty"`

	// Season and Episode scope episode-level items.
	Season  int `json:"season,omitempty"`
	Episode int `json:"episode,omitempty"`

	// ShowIDs carries show-level IDs when the Item is an episode or season.
	ShowIDs map[string]string `json:"show_ids,omitempty"`

	// Private holds provider-private substructure (e.g. anilist list_entry_id),
	// opaque to every other component and carried through verbatim.
	Private map[string]any `json:"private,omitempty"`
}

// Index is the complete present set for one provider+feature, keyed by
// canonical key. An Index never holds two items with the same key;
// duplicates resolve by taking the richer ID set (see Merge).
type Index map[string]Item

// Merge inserts item into the index under its canonical key. On collision
// the stored item keeps its feature payloads but gains any IDs the new
// item carries that it lacks.
func (idx Index) Merge(item Item) {
	key := CanonicalKey(item)
	if key == "" {
		return
	}
	existing, ok := idx[key]
	if !ok {
		idx[key] = item
		return
	}
	existing.IDs = MergeIDs(existing.IDs, IDsFrom(item))
	if existing.Title == "" {
		existing.Title = item.Title
	}
	if existing.Year == 0 {
		existing.Year = item.Year
	}
	idx[key] = existing
}

// Keys returns the canonical key set of the index.
func (idx Index) Keys() map[string]struct{} {
	keys := make(map[string]struct{}, len(idx))
	for k := range idx {
		keys[k] = struct{}{}
	}
	return keys
}

// Clone returns a shallow copy of the index with copied ID maps.
func (idx Index) Clone() Index {
	out := make(Index, len(idx))
	for k, v := range idx {
		v.IDs = MergeIDs(v.IDs, nil)
		out[k] = v
	}
	return out
}
