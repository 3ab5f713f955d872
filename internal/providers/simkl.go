// CrossWatch - Cross-Provider Media Library Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crosswatch

/*
simkl.go - SIMKL Adapter

Watchlist, ratings, and history against the SIMKL API:

  GET  /sync/all-items/{type}/{status}   plantowatch / completed index
  GET  /sync/ratings                     ratings index
  POST /sync/add-to-list                 watchlist adds (to: plantowatch)
  POST /sync/watchlist/remove            watchlist removals
  POST /sync/history[/remove]            history writes
  POST /sync/ratings[/remove]            ratings writes
  GET  /sync/activities                  watermarks + health probe

ID projection is restricted to simkl/imdb/tmdb/tvdb/slug; other kinds are
dropped before writes. SIMKL cannot report history deletions, so
observed_deletes stays false and removals ride on baseline diffs.
*/

//nolint:staticcheck // File documentation, not package doc
package providers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/tomtom215/crosswatch/internal/config"
	"github.com/tomtom215/crosswatch/internal/httpx"
	"github.com/tomtom215/crosswatch/internal/identity"
)

const simklAPIBase = "https://api.simkl.com"

const simklWriteChunk = 100

// SIMKL implements Adapter for simkl.com.
type SIMKL struct {
	cfg  config.SIMKLConfig
	deps Deps
	hc   *httpx.Client
}

// NewSIMKL constructs the SIMKL adapter for one instance profile.
func NewSIMKL(cfg config.SIMKLConfig, deps Deps) *SIMKL {
	hc := httpx.NewClient(httpx.Config{
		Provider:    "simkl",
		Timeout:     cfg.Timeout,
		MaxRetries:  cfg.MaxRetries,
		BackoffBase: 500 * time.Millisecond,
		VerifySSL:   cfg.VerifySSL,
		Headers: map[string]string{
			"Authorization": "Bearer " + cfg.AccessToken,
			"simkl-api-key": cfg.ClientID,
		},
	})
	hc.Labeler().Register(
		httpx.LabelRule{Method: http.MethodGet, PathContains: "/sync/all-items", Label: "all-items"},
		httpx.LabelRule{Method: http.MethodGet, PathContains: "/sync/ratings", Label: "ratings:index"},
		httpx.LabelRule{Method: http.MethodPost, PathContains: "/sync/add-to-list", Label: "watchlist:add"},
		httpx.LabelRule{Method: http.MethodPost, PathContains: "/sync/watchlist/remove", Label: "watchlist:remove"},
		httpx.LabelRule{Method: http.MethodPost, PathContains: "/sync/history/remove", Label: "history:remove"},
		httpx.LabelRule{Method: http.MethodPost, PathContains: "/sync/history", Label: "history:add"},
		httpx.LabelRule{Method: http.MethodPost, PathContains: "/sync/ratings/remove", Label: "ratings:remove"},
		httpx.LabelRule{Method: http.MethodPost, PathContains: "/sync/ratings", Label: "ratings:add"},
		httpx.LabelRule{Method: http.MethodGet, PathContains: "/sync/activities", Label: "activities"},
	)
	return &SIMKL{cfg: cfg, deps: deps, hc: hc}
}

// Manifest implements Adapter.
func (s *SIMKL) Manifest() Manifest {
	return Manifest{
		Name:          "simkl",
		Label:         "SIMKL",
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
		Capabilities: s.Capabilities(),
	}
}

// Features implements Adapter.
func (s *SIMKL) Features() map[string]bool {
	return s.Manifest().Features
}

// Capabilities implements Adapter.
func (s *SIMKL) Capabilities() Capabilities {
	return Capabilities{
		Ratings: RatingCaps{
			Types:  RatingTypes{Movies: true, Shows: true},
			Upsert: true,
			Unrate: true,
		},
		IndexSemantics: SemanticsPresent,
		// SIMKL cannot report history deletions.
		ObservedDeletes: false,
		CanTarget:       true,
		Incremental:     true,
	}
}

// IsConfigured implements Adapter.
func (s *SIMKL) IsConfigured() bool {
	return s.cfg.ClientID != "" && s.cfg.AccessToken != ""
}

// Health implements Adapter.
func (s *SIMKL) Health(ctx context.Context) Health {
	h := Health{Status: "ok", Features: s.Features(), API: map[string]EndpointHealth{}}
	if !s.IsConfigured() {
		h.Status = ReasonMissingConfig
		h.Details.Reason = "client_id or access_token missing"
		return h
	}

	start := time.Now()
	resp, err := s.hc.GetJSON(ctx, simklAPIBase+"/sync/activities", nil, nil)
	h.LatencyMS = time.Since(start).Milliseconds()
	if err != nil {
		h.Status = ReasonNetworkError
		h.Details.Reason = err.Error()
		return h
	}

	h.API["activities"] = EndpointHealth{Status: resp.StatusCode, Rate: resp.RateLimit()}
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

// simklIDs is the vendor ID block.
type simklIDs struct {
	Simkl int    `json:"simkl,omitempty"`
	Slug  string `json:"slug,omitempty"`
	IMDB  string `json:"imdb,omitempty"`
	TMDB  string `json:"tmdb,omitempty"`
	TVDB  string `json:"tvdb,omitempty"`
}

func (ids simklIDs) toMap() map[string]string {
	out := map[string]string{}
	if ids.Simkl != 0 {
		out[identity.KindSIMKL] = strconv.Itoa(ids.Simkl)
	}
	if ids.Slug != "" {
		out[identity.KindSlug] = ids.Slug
	}
	if ids.IMDB != "" {
		out[identity.KindIMDB] = ids.IMDB
	}
	if ids.TMDB != "" {
		out[identity.KindTMDB] = ids.TMDB
	}
	if ids.TVDB != "" {
		out[identity.KindTVDB] = ids.TVDB
	}
	return out
}

// simklIDsFrom projects canonical IDs into the restricted vendor set.
func simklIDsFrom(ids map[string]string) simklIDs {
	out := simklIDs{
		Slug: ids[identity.KindSlug],
		IMDB: ids[identity.KindIMDB],
		TMDB: ids[identity.KindTMDB],
		TVDB: ids[identity.KindTVDB],
	}
	out.Simkl, _ = strconv.Atoi(ids[identity.KindSIMKL])
	return out
}

type simklMedia struct {
	Title string   `json:"title,omitempty"`
	Year  int      `json:"year,omitempty"`
	IDs   simklIDs `json:"ids"`

	// Write-only payloads.
	To        string `json:"to,omitempty"`
	Rating    int    `json:"rating,omitempty"`
	RatedAt   string `json:"rated_at,omitempty"`
	WatchedAt string `json:"watched_at,omitempty"`
}

type simklListRow struct {
	Status        string      `json:"status,omitempty"`
	UserRating    int         `json:"user_rating,omitempty"`
	RatedAt       string      `json:"rated_at,omitempty"`
	LastWatchedAt string      `json:"last_watched_at,omitempty"`
	AddedToList   string      `json:"added_to_watchlist_at,omitempty"`
	Movie         *simklMedia `json:"movie,omitempty"`
	Show          *simklMedia `json:"show,omitempty"`
}

type simklAllItems struct {
	Movies []simklListRow `json:"movies,omitempty"`
	Shows  []simklListRow `json:"shows,omitempty"`
	Anime  []simklListRow `json:"anime,omitempty"`
}

func (r simklListRow) toItem() (identity.Item, bool) {
	item := identity.Item{
		Rating:    r.UserRating,
		RatedAt:   r.RatedAt,
		WatchedAt: r.LastWatchedAt,
	}
	switch {
	case r.Show != nil:
		item.Type = identity.TypeShow
		item.Title = r.Show.Title
		item.Year = r.Show.Year
		item.IDs = r.Show.IDs.toMap()
	case r.Movie != nil:
		item.Type = identity.TypeMovie
		item.Title = r.Movie.Title
		item.Year = r.Movie.Year
		item.IDs = r.Movie.IDs.toMap()
	default:
		return identity.Item{}, false
	}
	return item, true
}

// simklStatusFor maps a feature to the all-items status filter.
func simklStatusFor(feature string) string {
	if feature == FeatureHistory {
		return "completed"
	}
	return "plantowatch"
}

// BuildIndex implements Adapter.
func (s *SIMKL) BuildIndex(ctx context.Context, feature string) (identity.Index, error) {
	if !s.IsConfigured() {
		return nil, fmt.Errorf("simkl: %s", ReasonMissingConfig)
	}

	switch feature {
	case FeatureWatchlist, FeatureHistory:
		return s.allItemsIndex(ctx, simklStatusFor(feature))
	case FeatureRatings:
		return s.ratingsIndex(ctx)
	default:
		return identity.Index{}, nil
	}
}

func (s *SIMKL) allItemsIndex(ctx context.Context, status string) (identity.Index, error) {
	idx := identity.Index{}
	for _, typ := range []string{"movies", "shows"} {
		var page simklAllItems
		resp, err := s.hc.GetJSON(ctx, simklAPIBase+"/sync/all-items/"+typ+"/"+status, nil, &page)
		if err != nil {
			return nil, fmt.Errorf("simkl all-items %s: %w", typ, err)
		}
		if !resp.OK() {
			return nil, fmt.Errorf("simkl all-items %s: %s", typ, httpHint(resp.StatusCode))
		}

		for _, rows := range [][]simklListRow{page.Movies, page.Shows, page.Anime} {
			for _, row := range rows {
				if item, ok := row.toItem(); ok {
					idx.Merge(item)
				}
			}
		}
	}
	return idx, nil
}

func (s *SIMKL) ratingsIndex(ctx context.Context) (identity.Index, error) {
	var page simklAllItems
	resp, err := s.hc.GetJSON(ctx, simklAPIBase+"/sync/ratings", nil, &page)
	if err != nil {
		return nil, fmt.Errorf("simkl ratings: %w", err)
	}
	if !resp.OK() {
		return nil, fmt.Errorf("simkl ratings: %s", httpHint(resp.StatusCode))
	}

	idx := identity.Index{}
	for _, rows := range [][]simklListRow{page.Movies, page.Shows, page.Anime} {
		for _, row := range rows {
			item, ok := row.toItem()
			if !ok || item.Rating == 0 {
				continue
			}
			idx.Merge(item)
		}
	}
	return idx, nil
}

// Watermark returns the last activity timestamp from /sync/activities.
func (s *SIMKL) Watermark(ctx context.Context, feature string) (string, error) {
	var activities struct {
		All string `json:"all"`
	}
	resp, err := s.hc.GetJSON(ctx, simklAPIBase+"/sync/activities", nil, &activities)
	if err != nil {
		return "", err
	}
	if !resp.OK() {
		return "", fmt.Errorf("simkl activities: %s", httpHint(resp.StatusCode))
	}
	_ = feature
	return activities.All, nil
}

type simklSyncBody struct {
	Movies []simklMedia `json:"movies,omitempty"`
	Shows  []simklMedia `json:"shows,omitempty"`
}

type simklSyncResponse struct {
	Added    map[string]int `json:"added,omitempty"`
	Deleted  map[string]int `json:"deleted,omitempty"`
	NotFound struct {
		Movies []simklMedia `json:"movies,omitempty"`
		Shows  []simklMedia `json:"shows,omitempty"`
	} `json:"not_found,omitempty"`
}

// simklWritePath maps feature+op to the endpoint. Watchlist adds go to the
// list mover; everything else mirrors the Trakt-style sync layout.
func simklWritePath(feature string, remove bool) string {
	if feature == FeatureWatchlist {
		if remove {
			return "/sync/watchlist/remove"
		}
		return "/sync/add-to-list"
	}
	base := "/sync/" + feature
	if remove {
		return base + "/remove"
	}
	return base
}

// buildBody projects items into the vendor body. Items without any
// projectable ID are reported in missing and excluded from sent.
func (s *SIMKL) buildBody(items []identity.Item, feature string, remove bool) (body simklSyncBody, sent []identity.Item, missing []Unresolved) {
	for _, item := range items {
		vendorIDs := simklIDsFrom(identity.IDsFrom(item))
		if vendorIDs == (simklIDs{}) {
			missing = append(missing, Unresolved{
				Key:    identity.CanonicalKey(item),
				Reason: ReasonMissingIDs,
			})
			continue
		}

		m := simklMedia{Title: item.Title, Year: item.Year, IDs: vendorIDs}
		if !remove {
			switch feature {
			case FeatureWatchlist:
				m.To = "plantowatch"
			case FeatureRatings:
				m.Rating = item.Rating
				m.RatedAt = item.RatedAt
			case FeatureHistory:
				m.WatchedAt = item.WatchedAt
			}
		}

		if item.Type == identity.TypeMovie {
			body.Movies = append(body.Movies, m)
		} else {
			body.Shows = append(body.Shows, m)
		}
		sent = append(sent, item)
	}
	return body, sent, missing
}

// Add implements Adapter.
func (s *SIMKL) Add(ctx context.Context, items []identity.Item, feature string, dryRun bool) (*WriteResult, error) {
	return s.write(ctx, items, feature, false, dryRun)
}

// Remove implements Adapter.
func (s *SIMKL) Remove(ctx context.Context, items []identity.Item, feature string, dryRun bool) (*WriteResult, error) {
	return s.write(ctx, items, feature, true, dryRun)
}

func (s *SIMKL) write(ctx context.Context, items []identity.Item, feature string, remove, dryRun bool) (*WriteResult, error) {
	if !s.IsConfigured() {
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

	for _, chunk := range chunkItems(items, simklWriteChunk) {
		body, sent, missing := s.buildBody(chunk, feature, remove)
		result.Unresolved = append(result.Unresolved, missing...)
		if len(sent) == 0 {
			continue
		}

		var syncResp simklSyncResponse
		resp, err := s.hc.PostJSON(ctx, simklAPIBase+simklWritePath(feature, remove), nil, body, &syncResp)
		if err != nil {
			return nil, fmt.Errorf("simkl write: %w", err)
		}

		if reason := classifyStatus(resp.StatusCode, remove); reason != "" {
			for _, it := range sent {
				result.Unresolved = append(result.Unresolved, Unresolved{
					Key:    identity.CanonicalKey(it),
					Reason: reason,
					Hint:   httpHint(resp.StatusCode),
				})
			}
			if reason == ReasonAuthFailed || reason == ReasonRateLimited {
				result.OK = false
				return result, nil
			}
			continue
		}

		confirmWrites(result, sent, simklNotFoundKeys(syncResp))
	}

	return result, nil
}

func simklNotFoundKeys(resp simklSyncResponse) map[string]struct{} {
	out := map[string]struct{}{}
	for _, m := range resp.NotFound.Movies {
		item := identity.Item{Type: identity.TypeMovie, IDs: m.IDs.toMap()}
		if key := identity.CanonicalKey(item); key != "" {
			out[key] = struct{}{}
		}
	}
	for _, s := range resp.NotFound.Shows {
		item := identity.Item{Type: identity.TypeShow, IDs: s.IDs.toMap()}
		if key := identity.CanonicalKey(item); key != "" {
			out[key] = struct{}{}
		}
	}
	return out
}
