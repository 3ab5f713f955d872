// CrossWatch - Cross-Provider Media Library Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crosswatch

/*
anilist.go - AniList Adapter

All traffic is GraphQL against https://graphql.anilist.co (bearer auth):

  Viewer                    health probe + user id
  MediaListCollection       index reads (PLANNING=watchlist,
                            COMPLETED=history, scored entries=ratings)
  SaveMediaListEntry        adds and rating upserts
  DeleteMediaListEntry      removals (needs the list entry id)
  Page.media(search:)       title-search fallback

Identity is the AniList media id with MAL fallback. Writes persist
{anilist_id, list_entry_id} per source key in the pair shadow so later
reads re-attach canonical identity and removals know which entry to
delete. Items that fail the title search below the acceptance threshold
are permanently ignored within the pair scope.

Search scoring: exact normalized-title match +70, substring +20, year
equal +30, year differing -50, kind-aligned format +5. The best candidate
is accepted only at or above anilist.search_min_score (default 85).
*/

//nolint:staticcheck // File documentation, not package doc
package providers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/crosswatch/internal/config"
	"github.com/tomtom215/crosswatch/internal/httpx"
	"github.com/tomtom215/crosswatch/internal/identity"
	"github.com/tomtom215/crosswatch/internal/state"
)

const anilistAPI = "https://graphql.anilist.co"

// anilistDefaultMinScore is the rubric acceptance threshold.
const anilistDefaultMinScore = 85

// Rubric weights.
const (
	anilistScoreExactTitle  = 70
	anilistScoreSubstring   = 20
	anilistScoreYearEqual   = 30
	anilistScoreYearDiffer  = -50
	anilistScoreKindAligned = 5
)

// AniList implements Adapter for anilist.co.
type AniList struct {
	cfg  config.AniListConfig
	deps Deps
	hc   *httpx.Client
}

// NewAniList constructs the AniList adapter for one instance profile.
func NewAniList(cfg config.AniListConfig, deps Deps) *AniList {
	hc := httpx.NewClient(httpx.Config{
		Provider:    "anilist",
		Timeout:     cfg.Timeout,
		MaxRetries:  cfg.MaxRetries,
		BackoffBase: 500 * time.Millisecond,
		VerifySSL:   cfg.VerifySSL,
		Headers: map[string]string{
			"Authorization": "Bearer " + cfg.AccessToken,
		},
	})
	hc.Labeler().Register(
		httpx.LabelRule{Method: http.MethodPost, PathContains: "graphql", Label: "graphql"},
	)
	return &AniList{cfg: cfg, deps: deps, hc: hc}
}

func (a *AniList) minScore() int {
	if a.cfg.SearchMinScore > 0 {
		return a.cfg.SearchMinScore
	}
	return anilistDefaultMinScore
}

// Manifest implements Adapter.
func (a *AniList) Manifest() Manifest {
	return Manifest{
		Name:          "anilist",
		Label:         "AniList",
		Version:       "1.0.0",
		Type:          "sync",
		Bidirectional: true,
		Features: map[string]bool{
			FeatureWatchlist: true,
			FeatureRatings:   true,
			FeatureHistory:   true,
			FeaturePlaylists: false,
		},
		Requires:     []string{"access_token"},
		Capabilities: a.Capabilities(),
	}
}

// Features implements Adapter.
func (a *AniList) Features() map[string]bool {
	return a.Manifest().Features
}

// Capabilities implements Adapter.
func (a *AniList) Capabilities() Capabilities {
	return Capabilities{
		Ratings: RatingCaps{
			Types:  RatingTypes{Movies: true, Shows: true},
			Upsert: true,
			Unrate: true,
		},
		IndexSemantics:  SemanticsPresent,
		ObservedDeletes: true,
		CanTarget:       true,
	}
}

// IsConfigured implements Adapter.
func (a *AniList) IsConfigured() bool {
	return a.cfg.AccessToken != ""
}

// gql posts one GraphQL document and decodes data into out.
func (a *AniList) gql(ctx context.Context, query string, variables map[string]any, out any) (*httpx.Response, error) {
	body := map[string]any{"query": query}
	if len(variables) > 0 {
		body["variables"] = variables
	}

	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors,omitempty"`
	}
	resp, err := a.hc.PostJSON(ctx, anilistAPI, nil, body, &envelope)
	if err != nil {
		return nil, err
	}
	if resp.OK() && len(envelope.Errors) > 0 {
		return resp, fmt.Errorf("anilist: %s", envelope.Errors[0].Message)
	}
	if resp.OK() && out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return resp, fmt.Errorf("decode graphql data: %w", err)
		}
	}
	return resp, nil
}

// Health implements Adapter. Probes Viewer.
func (a *AniList) Health(ctx context.Context) Health {
	h := Health{Status: "ok", Features: a.Features(), API: map[string]EndpointHealth{}}
	if !a.IsConfigured() {
		h.Status = ReasonMissingConfig
		h.Details.Reason = "access_token missing"
		return h
	}

	start := time.Now()
	var data struct {
		Viewer struct {
			ID int `json:"id"`
		} `json:"Viewer"`
	}
	resp, err := a.gql(ctx, `query { Viewer { id name } }`, nil, &data)
	h.LatencyMS = time.Since(start).Milliseconds()
	if err != nil {
		h.Status = ReasonNetworkError
		h.Details.Reason = err.Error()
		return h
	}

	h.API["graphql"] = EndpointHealth{Status: resp.StatusCode, Rate: resp.RateLimit()}
	switch {
	case resp.OK() && data.Viewer.ID != 0:
		h.OK = true
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		h.Status = ReasonAuthFailed
	case resp.StatusCode == http.StatusTooManyRequests:
		h.Status = ReasonRateLimited
	default:
		h.Status = ReasonUpstreamError
	}
	return h
}

// anilistMedia is the media fragment shared by list and search queries.
type anilistMedia struct {
	ID    int `json:"id"`
	IDMal int `json:"idMal,omitempty"`
	Title struct {
		Romaji  string `json:"romaji,omitempty"`
		English string `json:"english,omitempty"`
	} `json:"title"`
	StartDate struct {
		Year int `json:"year,omitempty"`
	} `json:"startDate"`
	Format string `json:"format,omitempty"`
}

func (m anilistMedia) title() string {
	if m.Title.English != "" {
		return m.Title.English
	}
	return m.Title.Romaji
}

type anilistEntry struct {
	ID          int     `json:"id"`
	Status      string  `json:"status"`
	Score       float64 `json:"score,omitempty"`
	UpdatedAt   int64   `json:"updatedAt,omitempty"`
	CompletedAt struct {
		Year  int `json:"year,omitempty"`
		Month int `json:"month,omitempty"`
		Day   int `json:"day,omitempty"`
	} `json:"completedAt"`
	Media anilistMedia `json:"media"`
}

const anilistListQuery = `
query ($userId: Int, $status: MediaListStatus) {
  MediaListCollection(userId: $userId, type: ANIME, status: $status) {
    lists {
      entries {
        id status score(format: POINT_10) updatedAt
        completedAt { year month day }
        media { id idMal title { romaji english } startDate { year } format }
      }
    }
  }
}`

// viewerID fetches the authenticated user's id.
func (a *AniList) viewerID(ctx context.Context) (int, error) {
	var data struct {
		Viewer struct {
			ID int `json:"id"`
		} `json:"Viewer"`
	}
	resp, err := a.gql(ctx, `query { Viewer { id } }`, nil, &data)
	if err != nil {
		return 0, err
	}
	if !resp.OK() || data.Viewer.ID == 0 {
		return 0, fmt.Errorf("anilist viewer: %s", httpHint(resp.StatusCode))
	}
	return data.Viewer.ID, nil
}

func (e anilistEntry) toItem() identity.Item {
	typ := identity.TypeShow
	if e.Media.Format == "MOVIE" {
		typ = identity.TypeMovie
	}
	ids := map[string]string{identity.KindAniList: strconv.Itoa(e.Media.ID)}
	if e.Media.IDMal != 0 {
		ids[identity.KindMAL] = strconv.Itoa(e.Media.IDMal)
	}

	item := identity.Item{
		Type:  typ,
		Title: e.Media.title(),
		Year:  e.Media.StartDate.Year,
		IDs:   ids,
		Private: map[string]any{
			"list_entry_id": e.ID,
		},
	}
	if e.Score > 0 {
		item.Rating = int(e.Score + 0.5)
	}
	if e.UpdatedAt > 0 {
		ts := time.Unix(e.UpdatedAt, 0).UTC().Format(time.RFC3339)
		item.RatedAt = ts
		if e.Status == "COMPLETED" {
			item.WatchedAt = ts
		}
	}
	return item
}

// BuildIndex implements Adapter. Canonical identity recorded at write time
// is re-attached from the pair shadow.
func (a *AniList) BuildIndex(ctx context.Context, feature string) (identity.Index, error) {
	if !a.IsConfigured() {
		return nil, fmt.Errorf("anilist: %s", ReasonMissingConfig)
	}

	userID, err := a.viewerID(ctx)
	if err != nil {
		return nil, err
	}

	status := "PLANNING"
	if feature == FeatureHistory {
		status = "COMPLETED"
	}
	vars := map[string]any{"userId": userID, "status": status}
	if feature == FeatureRatings {
		// Scored entries live across statuses.
		delete(vars, "status")
	}

	var data struct {
		MediaListCollection struct {
			Lists []struct {
				Entries []anilistEntry `json:"entries"`
			} `json:"lists"`
		} `json:"MediaListCollection"`
	}
	resp, err := a.gql(ctx, anilistListQuery, vars, &data)
	if err != nil {
		return nil, fmt.Errorf("anilist index: %w", err)
	}
	if !resp.OK() {
		return nil, fmt.Errorf("anilist index: %s", httpHint(resp.StatusCode))
	}

	sourceIDs := a.shadowSourceIDs(feature)

	idx := identity.Index{}
	for _, list := range data.MediaListCollection.Lists {
		for _, entry := range list.Entries {
			if feature == FeatureRatings && entry.Score == 0 {
				continue
			}
			item := entry.toItem()
			if src, ok := sourceIDs[entry.Media.ID]; ok {
				item.IDs = identity.MergeIDs(item.IDs, src)
			}
			idx.Merge(item)
		}
	}
	return idx, nil
}

// shadowSourceIDs builds the anilist_id -> canonical source IDs map from
// the pair shadow.
func (a *AniList) shadowSourceIDs(feature string) map[int]map[string]string {
	out := map[int]map[string]string{}
	if a.deps.Store == nil {
		return out
	}
	sh, err := a.deps.Store.LoadShadow(feature)
	if err != nil {
		return out
	}
	for _, entry := range sh.Items {
		raw, ok := entry.Extra["anilist_id"]
		if !ok {
			continue
		}
		id := 0
		switch v := raw.(type) {
		case float64:
			id = int(v)
		case int:
			id = v
		}
		if id != 0 && len(entry.SourceIDs) > 0 {
			out[id] = entry.SourceIDs
		}
	}
	return out
}

// Add implements Adapter.
func (a *AniList) Add(ctx context.Context, items []identity.Item, feature string, dryRun bool) (*WriteResult, error) {
	return a.write(ctx, items, feature, false, dryRun)
}

// Remove implements Adapter.
func (a *AniList) Remove(ctx context.Context, items []identity.Item, feature string, dryRun bool) (*WriteResult, error) {
	return a.write(ctx, items, feature, true, dryRun)
}

func (a *AniList) write(ctx context.Context, items []identity.Item, feature string, remove, dryRun bool) (*WriteResult, error) {
	if !a.IsConfigured() {
		return &WriteResult{OK: false, Error: ReasonMissingConfig}, nil
	}
	result := &WriteResult{OK: true}
	if len(items) == 0 {
		return result, nil
	}
	if dryRun {
		result.Count = len(items)
		result.ConfirmedKeys = confirmKeys(items)
		return result, nil
	}

	shadow := a.loadShadow(feature)

	for _, item := range items {
		key := identity.CanonicalKey(item)
		if shadow != nil && shadow.IsIgnored(key) {
			result.SkippedKeys = append(result.SkippedKeys, key)
			continue
		}

		mediaID, err := a.resolveMediaID(ctx, item, shadow, key)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			result.Unresolved = append(result.Unresolved, Unresolved{
				Key:    key,
				Reason: ReasonUnresolvedIDs,
				Hint:   err.Error(),
			})
			continue
		}
		if mediaID == 0 {
			// Below-threshold search: permanently ignored in this scope.
			if shadow != nil {
				shadow.Ignore(key, "no-match", item)
			}
			result.Unresolved = append(result.Unresolved, Unresolved{Key: key, Reason: ReasonUnresolvedIDs, Hint: "search below threshold"})
			continue
		}

		var werr error
		if remove {
			werr = a.deleteEntry(ctx, mediaID, shadow, key)
		} else {
			werr = a.saveEntry(ctx, item, feature, mediaID, shadow, key)
		}
		if werr != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			result.Unresolved = append(result.Unresolved, Unresolved{Key: key, Reason: ReasonUpstreamError, Hint: werr.Error()})
			continue
		}

		result.ConfirmedKeys = append(result.ConfirmedKeys, key)
		result.Count++
		if shadow != nil {
			shadow.Resolve(key)
		}
	}

	a.saveShadow(feature, shadow)
	return result, nil
}

// resolveMediaID finds the AniList media id for an item: direct anilist
// kind, shadow extra, MAL lookup, then scored title search. A zero id with
// nil error means the search stayed below the acceptance threshold.
func (a *AniList) resolveMediaID(ctx context.Context, item identity.Item, shadow *state.Shadow, key string) (int, error) {
	ids := identity.IDsFrom(item)
	if v := ids[identity.KindAniList]; v != "" {
		if id, err := strconv.Atoi(v); err == nil {
			return id, nil
		}
	}
	if shadow != nil {
		if entry, ok := shadow.Items[key]; ok {
			if raw, ok := entry.Extra["anilist_id"]; ok {
				if f, ok := raw.(float64); ok && f != 0 {
					return int(f), nil
				}
			}
		}
	}

	if v := ids[identity.KindMAL]; v != "" {
		if mal, err := strconv.Atoi(v); err == nil {
			id, err := a.lookupByMAL(ctx, mal)
			if err == nil && id != 0 {
				return id, nil
			}
		}
	}

	return a.searchByTitle(ctx, item)
}

func (a *AniList) lookupByMAL(ctx context.Context, mal int) (int, error) {
	var data struct {
		Media *anilistMedia `json:"Media"`
	}
	resp, err := a.gql(ctx, `query ($idMal: Int) { Media(idMal: $idMal, type: ANIME) { id idMal } }`,
		map[string]any{"idMal": mal}, &data)
	if err != nil {
		return 0, err
	}
	if !resp.OK() || data.Media == nil {
		return 0, fmt.Errorf("anilist mal lookup: %s", httpHint(resp.StatusCode))
	}
	return data.Media.ID, nil
}

const anilistSearchQuery = `
query ($search: String) {
  Page(perPage: 10) {
    media(search: $search, type: ANIME) {
      id idMal title { romaji english } startDate { year } format
    }
  }
}`

// searchByTitle runs the scored title search. Returns (0, nil) when no
// candidate reaches the acceptance threshold.
func (a *AniList) searchByTitle(ctx context.Context, item identity.Item) (int, error) {
	if item.Title == "" {
		return 0, fmt.Errorf("anilist search: %s", ReasonMissingIDs)
	}

	var data struct {
		Page struct {
			Media []anilistMedia `json:"media"`
		} `json:"Page"`
	}
	resp, err := a.gql(ctx, anilistSearchQuery, map[string]any{"search": item.Title}, &data)
	if err != nil {
		return 0, err
	}
	if !resp.OK() {
		return 0, fmt.Errorf("anilist search: %s", httpHint(resp.StatusCode))
	}

	best, bestScore := 0, 0
	for _, cand := range data.Page.Media {
		score := scoreCandidate(item, cand)
		if score > bestScore {
			best, bestScore = cand.ID, score
		}
	}
	if bestScore < a.minScore() {
		return 0, nil
	}
	return best, nil
}

// scoreCandidate applies the acceptance rubric to one search candidate.
func scoreCandidate(item identity.Item, cand anilistMedia) int {
	want := normalizeTitle(item.Title)
	score := 0

	matched := false
	for _, got := range []string{normalizeTitle(cand.Title.English), normalizeTitle(cand.Title.Romaji)} {
		if got == "" {
			continue
		}
		if got == want {
			score += anilistScoreExactTitle
			matched = true
			break
		}
		if strings.Contains(got, want) || strings.Contains(want, got) {
			score += anilistScoreSubstring
			matched = true
			break
		}
	}
	if !matched {
		return 0
	}

	if item.Year != 0 && cand.StartDate.Year != 0 {
		if item.Year == cand.StartDate.Year {
			score += anilistScoreYearEqual
		} else {
			score += anilistScoreYearDiffer
		}
	}

	isMovie := cand.Format == "MOVIE"
	if (item.Type == identity.TypeMovie) == isMovie {
		score += anilistScoreKindAligned
	}
	return score
}

func normalizeTitle(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// saveEntry upserts the media list entry and records the reverse mapping
// in the shadow.
func (a *AniList) saveEntry(ctx context.Context, item identity.Item, feature string, mediaID int, shadow *state.Shadow, key string) error {
	vars := map[string]any{"mediaId": mediaID}
	switch feature {
	case FeatureWatchlist:
		vars["status"] = "PLANNING"
	case FeatureHistory:
		vars["status"] = "COMPLETED"
	case FeatureRatings:
		vars["score"] = float64(item.Rating)
	}

	var data struct {
		SaveMediaListEntry struct {
			ID int `json:"id"`
		} `json:"SaveMediaListEntry"`
	}
	resp, err := a.gql(ctx, `
mutation ($mediaId: Int, $status: MediaListStatus, $score: Float) {
  SaveMediaListEntry(mediaId: $mediaId, status: $status, score: $score) { id }
}`, vars, &data)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return fmt.Errorf("anilist save: %s", httpHint(resp.StatusCode))
	}

	if shadow != nil {
		shadow.SetExtra(key, map[string]any{
			"anilist_id":    mediaID,
			"list_entry_id": data.SaveMediaListEntry.ID,
		})
		entry := shadow.Items[key]
		if len(entry.SourceIDs) == 0 {
			entry.SourceIDs = identity.IDsFrom(item)
			entry.Title = item.Title
			entry.Year = item.Year
			shadow.Items[key] = entry
		}
	}
	return nil
}

// deleteEntry removes the media list entry, resolving the entry id from
// the shadow or a direct media lookup.
func (a *AniList) deleteEntry(ctx context.Context, mediaID int, shadow *state.Shadow, key string) error {
	entryID := 0
	if shadow != nil {
		if entry, ok := shadow.Items[key]; ok {
			if f, ok := entry.Extra["list_entry_id"].(float64); ok {
				entryID = int(f)
			} else if n, ok := entry.Extra["list_entry_id"].(int); ok {
				entryID = n
			}
		}
	}
	if entryID == 0 {
		var data struct {
			Media *struct {
				MediaListEntry *struct {
					ID int `json:"id"`
				} `json:"mediaListEntry"`
			} `json:"Media"`
		}
		resp, err := a.gql(ctx, `query ($id: Int) { Media(id: $id, type: ANIME) { mediaListEntry { id } } }`,
			map[string]any{"id": mediaID}, &data)
		if err != nil {
			return err
		}
		if !resp.OK() {
			return fmt.Errorf("anilist entry lookup: %s", httpHint(resp.StatusCode))
		}
		if data.Media == nil || data.Media.MediaListEntry == nil {
			// Already absent; removal is idempotent.
			return nil
		}
		entryID = data.Media.MediaListEntry.ID
	}

	resp, err := a.gql(ctx, `mutation ($id: Int) { DeleteMediaListEntry(id: $id) { deleted } }`,
		map[string]any{"id": entryID}, nil)
	if err != nil {
		return err
	}
	if !resp.OK() && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("anilist delete: %s", httpHint(resp.StatusCode))
	}
	return nil
}

func (a *AniList) loadShadow(feature string) *state.Shadow {
	if a.deps.Store == nil {
		return nil
	}
	sh, err := a.deps.Store.LoadShadow(feature)
	if err != nil {
		return state.NewShadow()
	}
	return sh
}

func (a *AniList) saveShadow(feature string, sh *state.Shadow) {
	if a.deps.Store == nil || sh == nil {
		return
	}
	_ = a.deps.Store.SaveShadow(feature, sh)
}
