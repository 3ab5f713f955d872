// CrossWatch - Cross-Provider Media Library Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crosswatch

/*
trakt.go - Trakt Adapter

Reads and writes the authenticated user's watchlist, ratings, and history
through the Trakt v2 API:

  GET  /sync/watchlist            watchlist index
  POST /sync/watchlist[/remove]   watchlist writes
  GET  /sync/ratings              ratings index
  POST /sync/ratings[/remove]     ratings writes
  GET  /sync/history              history index (paginated)
  POST /sync/history[/remove]     history writes
  GET  /sync/last_activities      watermarks + health probe

Auth is a bearer token plus the trakt-api-key/-version headers. Items the
vendor reports under not_found come back as unresolved with reason
"not_found".
*/

//nolint:staticcheck // File documentation, not package doc
package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tomtom215/crosswatch/internal/config"
	"github.com/tomtom215/crosswatch/internal/httpx"
	"github.com/tomtom215/crosswatch/internal/identity"
)

const traktAPIBase = "https://api.trakt.tv"

// traktPageLimit is the page size for paginated endpoints.
const traktPageLimit = 100

// traktWriteChunk bounds one write request (contract range 25-100).
const traktWriteChunk = 100

// Trakt implements Adapter for trakt.tv.
type Trakt struct {
	cfg  config.TraktConfig
	deps Deps
	hc   *httpx.Client
}

// NewTrakt constructs the Trakt adapter for one instance profile.
func NewTrakt(cfg config.TraktConfig, deps Deps) *Trakt {
	hc := httpx.NewClient(httpx.Config{
		Provider:    "trakt",
		Timeout:     cfg.Timeout,
		MaxRetries:  cfg.MaxRetries,
		BackoffBase: 500 * time.Millisecond,
		VerifySSL:   cfg.VerifySSL,
		// Trakt budgets 1000 calls per 5 minutes; pace below that.
		RPS: 3,
		Headers: map[string]string{
			"Authorization":     "Bearer " + cfg.AccessToken,
			"trakt-api-version": "2",
			"trakt-api-key":     cfg.ClientID,
		},
	})
	hc.Labeler().Register(
		httpx.LabelRule{Method: http.MethodPost, PathContains: "/sync/watchlist/remove", Label: "watchlist:remove"},
		httpx.LabelRule{Method: http.MethodPost, PathContains: "/sync/watchlist", Label: "watchlist:add"},
		httpx.LabelRule{Method: http.MethodGet, PathContains: "/sync/watchlist", Label: "watchlist:index"},
		httpx.LabelRule{Method: http.MethodPost, PathContains: "/sync/ratings/remove", Label: "ratings:remove"},
		httpx.LabelRule{Method: http.MethodPost, PathContains: "/sync/ratings", Label: "ratings:add"},
		httpx.LabelRule{Method: http.MethodGet, PathContains: "/sync/ratings", Label: "ratings:index"},
		httpx.LabelRule{Method: http.MethodPost, PathContains: "/sync/history/remove", Label: "history:remove"},
		httpx.LabelRule{Method: http.MethodPost, PathContains: "/sync/history", Label: "history:add"},
		httpx.LabelRule{Method: http.MethodGet, PathContains: "/sync/history", Label: "history:index"},
		httpx.LabelRule{Method: http.MethodGet, PathContains: "/sync/last_activities", Label: "activities"},
	)
	return &Trakt{cfg: cfg, deps: deps, hc: hc}
}

// Manifest implements Adapter.
func (t *Trakt) Manifest() Manifest {
	return Manifest{
		Name:          "trakt",
		Label:         "Trakt",
		Version:       "1.0.0",
		Type:          "sync",
		Bidirectional: true,
		Features: map[string]bool{
			FeatureWatchlist: true,
			FeatureRatings:   true,
			FeatureHistory:   true,
			FeaturePlaylists: false,
		},
		Requires:     []string{"client_id", "access_token"},
		Capabilities: t.Capabilities(),
	}
}

// Features implements Adapter.
func (t *Trakt) Features() map[string]bool {
	return t.Manifest().Features
}

// Capabilities implements Adapter.
func (t *Trakt) Capabilities() Capabilities {
	return Capabilities{
		Ratings: RatingCaps{
			Types:    RatingTypes{Movies: true, Shows: true, Seasons: true, Episodes: true},
			Upsert:   true,
			Unrate:   true,
			FromDate: true,
		},
		IndexSemantics:  SemanticsPresent,
		ObservedDeletes: true,
		CanTarget:       true,
		Incremental:     true,
	}
}

// IsConfigured implements Adapter.
func (t *Trakt) IsConfigured() bool {
	return t.cfg.ClientID != "" && t.cfg.AccessToken != ""
}

// Health implements Adapter. One probe against /sync/last_activities.
func (t *Trakt) Health(ctx context.Context) Health {
	h := Health{Status: "ok", Features: t.Features(), API: map[string]EndpointHealth{}}
	if !t.IsConfigured() {
		h.Status = ReasonMissingConfig
		h.Details.Reason = "client_id or access_token missing"
		return h
	}

	start := time.Now()
	resp, err := t.hc.GetJSON(ctx, traktAPIBase+"/sync/last_activities", nil, nil)
	h.LatencyMS = time.Since(start).Milliseconds()
	if err != nil {
		h.Status = ReasonNetworkError
		h.Details.Reason = err.Error()
		return h
	}

	ep := EndpointHealth{Status: resp.StatusCode, Rate: resp.RateLimit()}
	if ra, ok := httpx.ParseRetryAfter(resp.Header.Get("Retry-After")); ok {
		ep.RetryAfter = int(ra.Seconds())
		h.Details.RetryAfterS = int(ra.Seconds())
	}
	h.API["activities"] = ep

	switch {
	case resp.OK():
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

// traktIDs is the vendor ID block.
type traktIDs struct {
	Trakt int    `json:"trakt,omitempty"`
	Slug  string `json:"slug,omitempty"`
	IMDB  string `json:"imdb,omitempty"`
	TMDB  int    `json:"tmdb,omitempty"`
	TVDB  int    `json:"tvdb,omitempty"`
}

func (ids traktIDs) toMap() map[string]string {
	out := map[string]string{}
	if ids.Trakt != 0 {
		out[identity.KindTrakt] = strconv.Itoa(ids.Trakt)
	}
	if ids.Slug != "" {
		out[identity.KindSlug] = ids.Slug
	}
	if ids.IMDB != "" {
		out[identity.KindIMDB] = ids.IMDB
	}
	if ids.TMDB != 0 {
		out[identity.KindTMDB] = strconv.Itoa(ids.TMDB)
	}
	if ids.TVDB != 0 {
		out[identity.KindTVDB] = strconv.Itoa(ids.TVDB)
	}
	return out
}

// traktIDsFrom projects canonical IDs into the vendor block.
func traktIDsFrom(ids map[string]string) traktIDs {
	out := traktIDs{
		Slug: ids[identity.KindSlug],
		IMDB: ids[identity.KindIMDB],
	}
	out.Trakt, _ = strconv.Atoi(ids[identity.KindTrakt])
	out.TMDB, _ = strconv.Atoi(ids[identity.KindTMDB])
	out.TVDB, _ = strconv.Atoi(ids[identity.KindTVDB])
	return out
}

type traktMedia struct {
	Title string   `json:"title,omitempty"`
	Year  int      `json:"year,omitempty"`
	IDs   traktIDs `json:"ids"`

	// Write-only payloads for /sync/ratings and /sync/history.
	Rating    int    `json:"rating,omitempty"`
	RatedAt   string `json:"rated_at,omitempty"`
	WatchedAt string `json:"watched_at,omitempty"`
}

type traktEpisode struct {
	Season int      `json:"season"`
	Number int      `json:"number"`
	Title  string   `json:"title,omitempty"`
	IDs    traktIDs `json:"ids"`

	Rating    int    `json:"rating,omitempty"`
	RatedAt   string `json:"rated_at,omitempty"`
	WatchedAt string `json:"watched_at,omitempty"`
}

type traktEntry struct {
	Type      string        `json:"type,omitempty"`
	Rating    int           `json:"rating,omitempty"`
	RatedAt   string        `json:"rated_at,omitempty"`
	WatchedAt string        `json:"watched_at,omitempty"`
	ListedAt  string        `json:"listed_at,omitempty"`
	Movie     *traktMedia   `json:"movie,omitempty"`
	Show      *traktMedia   `json:"show,omitempty"`
	Episode   *traktEpisode `json:"episode,omitempty"`
}

// toItem maps a sync entry onto the universal Item.
func (e traktEntry) toItem() (identity.Item, bool) {
	item := identity.Item{
		Rating:    e.Rating,
		RatedAt:   e.RatedAt,
		WatchedAt: e.WatchedAt,
	}
	switch {
	case e.Episode != nil:
		item.Type = identity.TypeEpisode
		item.Title = e.Episode.Title
		item.Season = e.Episode.Season
		item.Episode = e.Episode.Number
		item.IDs = e.Episode.IDs.toMap()
		if e.Show != nil {
			item.ShowIDs = e.Show.IDs.toMap()
			if item.Title == "" {
				item.Title = e.Show.Title
			}
			item.Year = e.Show.Year
		}
	case e.Show != nil:
		item.Type = identity.TypeShow
		item.Title = e.Show.Title
		item.Year = e.Show.Year
		item.IDs = e.Show.IDs.toMap()
	case e.Movie != nil:
		item.Type = identity.TypeMovie
		item.Title = e.Movie.Title
		item.Year = e.Movie.Year
		item.IDs = e.Movie.IDs.toMap()
	default:
		return identity.Item{}, false
	}
	return item, true
}

// BuildIndex implements Adapter.
func (t *Trakt) BuildIndex(ctx context.Context, feature string) (identity.Index, error) {
	if !t.IsConfigured() {
		return nil, fmt.Errorf("trakt: %s", ReasonMissingConfig)
	}

	switch feature {
	case FeatureWatchlist:
		return t.indexFromEndpoint(ctx, "/sync/watchlist", false)
	case FeatureRatings:
		return t.indexFromEndpoint(ctx, "/sync/ratings", false)
	case FeatureHistory:
		return t.indexFromEndpoint(ctx, "/sync/history", true)
	default:
		return identity.Index{}, nil
	}
}

// indexFromEndpoint pulls one sync endpoint into an index, paginating when
// asked. Pagination aborts after two consecutive duplicate pages (broken
// vendor paging safety).
func (t *Trakt) indexFromEndpoint(ctx context.Context, path string, paginate bool) (identity.Index, error) {
	idx := identity.Index{}
	page := 1
	var lastSig string
	dupes := 0

	for {
		query := url.Values{}
		if paginate {
			query.Set("page", strconv.Itoa(page))
			query.Set("limit", strconv.Itoa(traktPageLimit))
		}

		var entries []traktEntry
		resp, err := t.hc.GetJSON(ctx, traktAPIBase+path, query, &entries)
		if err != nil {
			return nil, fmt.Errorf("trakt %s: %w", path, err)
		}
		if !resp.OK() {
			return nil, fmt.Errorf("trakt %s: %s", path, httpHint(resp.StatusCode))
		}

		var pageKeys []string
		for _, e := range entries {
			item, ok := e.toItem()
			if !ok {
				continue
			}
			idx.Merge(item)
			pageKeys = append(pageKeys, identity.CanonicalKey(item))
		}

		if !paginate || len(entries) < traktPageLimit {
			break
		}
		sig := pageSignature(pageKeys)
		if sig != "" && sig == lastSig {
			dupes++
			if dupes >= 2 {
				break
			}
		} else {
			dupes = 0
		}
		lastSig = sig
		page++
	}

	return idx, nil
}

// Watermark returns the last activity timestamp for a feature from
// /sync/last_activities.
func (t *Trakt) Watermark(ctx context.Context, feature string) (string, error) {
	var activities struct {
		All    string `json:"all"`
		Movies struct {
			WatchedAt     string `json:"watched_at"`
			RatedAt       string `json:"rated_at"`
			WatchlistedAt string `json:"watchlisted_at"`
		} `json:"movies"`
	}
	resp, err := t.hc.GetJSON(ctx, traktAPIBase+"/sync/last_activities", nil, &activities)
	if err != nil {
		return "", err
	}
	if !resp.OK() {
		return "", fmt.Errorf("trakt last_activities: %s", httpHint(resp.StatusCode))
	}
	switch feature {
	case FeatureHistory:
		return activities.Movies.WatchedAt, nil
	case FeatureRatings:
		return activities.Movies.RatedAt, nil
	case FeatureWatchlist:
		return activities.Movies.WatchlistedAt, nil
	default:
		return activities.All, nil
	}
}

// traktSyncBody is the write payload grouped by media type.
type traktSyncBody struct {
	Movies   []traktMedia   `json:"movies,omitempty"`
	Shows    []traktMedia   `json:"shows,omitempty"`
	Episodes []traktEpisode `json:"episodes,omitempty"`
}

// traktSyncResponse covers add and remove response shapes.
type traktSyncResponse struct {
	Added    map[string]int `json:"added,omitempty"`
	Deleted  map[string]int `json:"deleted,omitempty"`
	Existing map[string]int `json:"existing,omitempty"`
	NotFound struct {
		Movies   []traktMedia   `json:"movies,omitempty"`
		Shows    []traktMedia   `json:"shows,omitempty"`
		Episodes []traktEpisode `json:"episodes,omitempty"`
	} `json:"not_found,omitempty"`
}

// buildSyncBody groups items by vendor media type. When withPayload is set
// (adds to ratings/history) the per-item rating and timestamps are inlined
// next to the ids block, the shape the write endpoints expect. Items
// lacking any projectable ID are reported in missing and excluded from
// sent; only sent items may be confirmed afterwards.
func buildSyncBody(items []identity.Item, feature string, withPayload bool) (body traktSyncBody, sent []identity.Item, missing []Unresolved) {
	payload := withPayload && (feature == FeatureRatings || feature == FeatureHistory)

	for _, item := range items {
		ids := identity.IDsFrom(item)
		vendorIDs := traktIDsFrom(ids)
		if vendorIDs == (traktIDs{}) {
			missing = append(missing, Unresolved{
				Key:    identity.CanonicalKey(item),
				Reason: ReasonMissingIDs,
			})
			continue
		}

		switch item.Type {
		case identity.TypeEpisode:
			ep := traktEpisode{Season: item.Season, Number: item.Episode, IDs: vendorIDs}
			if payload {
				ep.Rating = item.Rating
				ep.RatedAt = item.RatedAt
				ep.WatchedAt = item.WatchedAt
			}
			body.Episodes = append(body.Episodes, ep)
		case identity.TypeShow, identity.TypeSeason:
			m := traktMedia{Title: item.Title, Year: item.Year, IDs: vendorIDs}
			if payload {
				m.Rating = item.Rating
				m.RatedAt = item.RatedAt
				m.WatchedAt = item.WatchedAt
			}
			body.Shows = append(body.Shows, m)
		default:
			m := traktMedia{Title: item.Title, Year: item.Year, IDs: vendorIDs}
			if payload {
				m.Rating = item.Rating
				m.RatedAt = item.RatedAt
				m.WatchedAt = item.WatchedAt
			}
			body.Movies = append(body.Movies, m)
		}
		sent = append(sent, item)
	}
	return body, sent, missing
}

// writePath maps a feature+op to the sync endpoint.
func traktWritePath(feature string, remove bool) string {
	base := "/sync/" + feature
	if feature == FeatureWatchlist {
		base = "/sync/watchlist"
	}
	if remove {
		return base + "/remove"
	}
	return base
}

// Add implements Adapter.
func (t *Trakt) Add(ctx context.Context, items []identity.Item, feature string, dryRun bool) (*WriteResult, error) {
	return t.write(ctx, items, feature, false, dryRun)
}

// Remove implements Adapter.
func (t *Trakt) Remove(ctx context.Context, items []identity.Item, feature string, dryRun bool) (*WriteResult, error) {
	return t.write(ctx, items, feature, true, dryRun)
}

func (t *Trakt) write(ctx context.Context, items []identity.Item, feature string, remove, dryRun bool) (*WriteResult, error) {
	if !t.IsConfigured() {
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

	for _, chunk := range chunkItems(items, traktWriteChunk) {
		body, sent, missing := buildSyncBody(chunk, feature, !remove)
		result.Unresolved = append(result.Unresolved, missing...)
		if len(sent) == 0 {
			continue
		}

		var syncResp traktSyncResponse
		resp, err := t.hc.PostJSON(ctx, traktAPIBase+traktWritePath(feature, remove), nil, body, &syncResp)
		if err != nil {
			return nil, fmt.Errorf("trakt write: %w", err)
		}

		if reason := classifyStatus(resp.StatusCode, remove); reason != "" {
			for _, it := range sent {
				result.Unresolved = append(result.Unresolved, Unresolved{
					Key:    identity.CanonicalKey(it),
					Reason: reason,
					Hint:   httpHint(resp.StatusCode),
				})
			}
			// Auth failure and rate limiting abort the batch; other
			// statuses stay per-chunk.
			if reason == ReasonAuthFailed || reason == ReasonRateLimited {
				result.OK = false
				return result, nil
			}
			continue
		}

		confirmWrites(result, sent, notFoundKeySet(syncResp))
	}

	return result, nil
}

func notFoundKeySet(resp traktSyncResponse) map[string]struct{} {
	out := map[string]struct{}{}
	add := func(ids traktIDs, typ identity.MediaType) {
		item := identity.Item{Type: typ, IDs: ids.toMap()}
		if key := identity.CanonicalKey(item); key != "" {
			out[key] = struct{}{}
		}
	}
	for _, m := range resp.NotFound.Movies {
		add(m.IDs, identity.TypeMovie)
	}
	for _, s := range resp.NotFound.Shows {
		add(s.IDs, identity.TypeShow)
	}
	for _, e := range resp.NotFound.Episodes {
		add(e.IDs, identity.TypeEpisode)
	}
	return out
}
