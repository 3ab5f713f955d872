// CrossWatch - Cross-Provider Media Library Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crosswatch

/*
tmdb.go - TMDb Sync Adapter

Account watchlist and ratings through the TMDb v3 API (api_key +
session_id auth):

  GET    /account                              health probe
  GET    /account/{id}/watchlist/{movies|tv}   watchlist index (paged)
  POST   /account/{id}/watchlist               watchlist writes
  GET    /account/{id}/rated/{movies|tv}       ratings index (paged)
  POST   /{movie|tv}/{id}/rating               rating upsert
  DELETE /{movie|tv}/{id}/rating               rating removal
  GET    /find/{external_id}                   imdb/tvdb -> tmdb id

Writes need an internal tmdb id; items arriving without one go through
/find with external_source=imdb_id|tvdb_id and the answer is disk-cached
under "<feature>:<source>:<value>|tmdb".
*/

//nolint:staticcheck // File documentation, not package doc
package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tomtom215/crosswatch/internal/config"
	"github.com/tomtom215/crosswatch/internal/httpx"
	"github.com/tomtom215/crosswatch/internal/identity"
	"github.com/tomtom215/crosswatch/internal/resolvecache"
)

const tmdbAPIBase = "https://api.themoviedb.org/3"

// tmdbFindTTL bounds cached /find resolutions.
const tmdbFindTTL = 30 * 24 * time.Hour

// TMDB implements Adapter for themoviedb.org account sync.
type TMDB struct {
	cfg   config.TMDBConfig
	deps  Deps
	hc    *httpx.Client
	cache *resolvecache.Cache
}

// NewTMDB constructs the TMDb adapter for one instance profile.
func NewTMDB(cfg config.TMDBConfig, deps Deps) *TMDB {
	hc := httpx.NewClient(httpx.Config{
		Provider:    "tmdb",
		Timeout:     cfg.Timeout,
		MaxRetries:  cfg.MaxRetries,
		BackoffBase: 500 * time.Millisecond,
		VerifySSL:   cfg.VerifySSL,
	})
	hc.Labeler().Register(
		httpx.LabelRule{Method: http.MethodGet, PathContains: "/watchlist/", Label: "watchlist:index"},
		httpx.LabelRule{Method: http.MethodPost, PathContains: "/watchlist", Label: "watchlist:write"},
		httpx.LabelRule{Method: http.MethodGet, PathContains: "/rated/", Label: "ratings:index"},
		httpx.LabelRule{Method: http.MethodPost, PathContains: "/rating", Label: "ratings:add"},
		httpx.LabelRule{Method: http.MethodDelete, PathContains: "/rating", Label: "ratings:remove"},
		httpx.LabelRule{Method: http.MethodGet, PathContains: "/find/", Label: "find"},
		httpx.LabelRule{Method: http.MethodGet, PathContains: "/account", Label: "account"},
	)
	return &TMDB{cfg: cfg, deps: deps, hc: hc, cache: deps.Resolve.Scoped("tmdb")}
}

// Manifest implements Adapter.
func (t *TMDB) Manifest() Manifest {
	return Manifest{
		Name:          "tmdb",
		Label:         "TMDb",
		Version:       "1.0.0",
		Type:          "sync",
		Bidirectional: true,
		Features: map[string]bool{
			FeatureWatchlist: true,
			FeatureRatings:   true,
			FeatureHistory:   false,
			FeaturePlaylists: false,
		},
		Requires:     []string{"api_key", "session_id"},
		Capabilities: t.Capabilities(),
	}
}

// Features implements Adapter.
func (t *TMDB) Features() map[string]bool {
	return t.Manifest().Features
}

// Capabilities implements Adapter.
func (t *TMDB) Capabilities() Capabilities {
	return Capabilities{
		Ratings: RatingCaps{
			Types:  RatingTypes{Movies: true, Shows: true, Episodes: true},
			Upsert: true,
			Unrate: true,
		},
		IndexSemantics:  SemanticsPresent,
		ObservedDeletes: true,
		CanTarget:       true,
	}
}

// IsConfigured implements Adapter.
func (t *TMDB) IsConfigured() bool {
	return t.cfg.APIKey != "" && t.cfg.SessionID != ""
}

func (t *TMDB) auth(extra url.Values) url.Values {
	q := url.Values{}
	for k, vs := range extra {
		q[k] = vs
	}
	q.Set("api_key", t.cfg.APIKey)
	q.Set("session_id", t.cfg.SessionID)
	return q
}

func (t *TMDB) accountPath() string {
	return tmdbAPIBase + "/account/" + strconv.Itoa(t.cfg.AccountID)
}

// Health implements Adapter. Probes /account.
func (t *TMDB) Health(ctx context.Context) Health {
	h := Health{Status: "ok", Features: t.Features(), API: map[string]EndpointHealth{}}
	if !t.IsConfigured() {
		h.Status = ReasonMissingConfig
		h.Details.Reason = "api_key or session_id missing"
		return h
	}

	start := time.Now()
	resp, err := t.hc.GetJSON(ctx, tmdbAPIBase+"/account", t.auth(nil), nil)
	h.LatencyMS = time.Since(start).Milliseconds()
	if err != nil {
		h.Status = ReasonNetworkError
		h.Details.Reason = err.Error()
		return h
	}

	h.API["account"] = EndpointHealth{Status: resp.StatusCode, Rate: resp.RateLimit()}
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

// tmdbRow is one result row in watchlist/rated listings.
type tmdbRow struct {
	ID           int     `json:"id"`
	Title        string  `json:"title,omitempty"`
	Name         string  `json:"name,omitempty"`
	ReleaseDate  string  `json:"release_date,omitempty"`
	FirstAirDate string  `json:"first_air_date,omitempty"`
	Rating       float64 `json:"rating,omitempty"`
}

type tmdbPage struct {
	Page         int       `json:"page"`
	TotalPages   int       `json:"total_pages"`
	TotalResults int       `json:"total_results"`
	Results      []tmdbRow `json:"results"`
}

func (r tmdbRow) toItem(typ identity.MediaType) identity.Item {
	item := identity.Item{
		Type: typ,
		IDs:  map[string]string{identity.KindTMDB: strconv.Itoa(r.ID)},
	}
	if typ == identity.TypeMovie {
		item.Title = r.Title
		item.Year = yearOf(r.ReleaseDate)
	} else {
		item.Title = r.Name
		item.Year = yearOf(r.FirstAirDate)
	}
	if r.Rating > 0 {
		item.Rating = int(r.Rating + 0.5)
	}
	return item
}

func yearOf(date string) int {
	if len(date) < 4 {
		return 0
	}
	y, _ := strconv.Atoi(date[:4])
	return y
}

// BuildIndex implements Adapter.
func (t *TMDB) BuildIndex(ctx context.Context, feature string) (identity.Index, error) {
	if !t.IsConfigured() {
		return nil, fmt.Errorf("tmdb: %s", ReasonMissingConfig)
	}

	switch feature {
	case FeatureWatchlist:
		return t.listingIndex(ctx, "watchlist")
	case FeatureRatings:
		return t.listingIndex(ctx, "rated")
	default:
		return identity.Index{}, nil
	}
}

func (t *TMDB) listingIndex(ctx context.Context, listing string) (identity.Index, error) {
	idx := identity.Index{}
	for _, seg := range []struct {
		path string
		typ  identity.MediaType
	}{
		{"/" + listing + "/movies", identity.TypeMovie},
		{"/" + listing + "/tv", identity.TypeShow},
	} {
		page := 1
		for {
			q := url.Values{}
			q.Set("page", strconv.Itoa(page))

			var body tmdbPage
			resp, err := t.hc.GetJSON(ctx, t.accountPath()+seg.path, t.auth(q), &body)
			if err != nil {
				return nil, fmt.Errorf("tmdb %s: %w", listing, err)
			}
			if !resp.OK() {
				return nil, fmt.Errorf("tmdb %s: %s", listing, httpHint(resp.StatusCode))
			}

			for _, row := range body.Results {
				idx.Merge(row.toItem(seg.typ))
			}
			if page >= body.TotalPages || len(body.Results) == 0 {
				break
			}
			page++
		}
	}
	return idx, nil
}

// resolveTMDBID maps a canonical item to its tmdb id through /find when
// the item does not already carry one.
func (t *TMDB) resolveTMDBID(ctx context.Context, item identity.Item, feature string) (int, error) {
	ids := identity.IDsFrom(item)
	if v := ids[identity.KindTMDB]; v != "" {
		id, err := strconv.Atoi(v)
		if err == nil {
			return id, nil
		}
	}

	var external, source string
	switch {
	case ids[identity.KindIMDB] != "":
		external, source = ids[identity.KindIMDB], "imdb_id"
	case ids[identity.KindTVDB] != "":
		external, source = ids[identity.KindTVDB], "tvdb_id"
	default:
		return 0, fmt.Errorf("tmdb resolve: %s", ReasonMissingIDs)
	}

	cacheKey := feature + ":" + source + ":" + external + "|tmdb"
	var cached int
	if t.cache.Get(cacheKey, &cached) && cached != 0 {
		return cached, nil
	}

	q := url.Values{}
	q.Set("external_source", source)
	q.Set("api_key", t.cfg.APIKey)

	var body struct {
		MovieResults []tmdbRow `json:"movie_results"`
		TVResults    []tmdbRow `json:"tv_results"`
	}
	resp, err := t.hc.GetJSON(ctx, tmdbAPIBase+"/find/"+external, q, &body)
	if err != nil {
		return 0, fmt.Errorf("tmdb resolve: %w", err)
	}
	if !resp.OK() {
		return 0, fmt.Errorf("tmdb resolve: %s", httpHint(resp.StatusCode))
	}

	var id int
	if item.Type == identity.TypeMovie && len(body.MovieResults) > 0 {
		id = body.MovieResults[0].ID
	} else if len(body.TVResults) > 0 {
		id = body.TVResults[0].ID
	} else if len(body.MovieResults) > 0 {
		id = body.MovieResults[0].ID
	}
	if id == 0 {
		return 0, fmt.Errorf("tmdb resolve: %s", ReasonUnresolvedIDs)
	}

	_ = t.cache.Put(cacheKey, id, tmdbFindTTL)
	return id, nil
}

// Add implements Adapter.
func (t *TMDB) Add(ctx context.Context, items []identity.Item, feature string, dryRun bool) (*WriteResult, error) {
	return t.write(ctx, items, feature, false, dryRun)
}

// Remove implements Adapter.
func (t *TMDB) Remove(ctx context.Context, items []identity.Item, feature string, dryRun bool) (*WriteResult, error) {
	return t.write(ctx, items, feature, true, dryRun)
}

func (t *TMDB) write(ctx context.Context, items []identity.Item, feature string, remove, dryRun bool) (*WriteResult, error) {
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

	for _, item := range items {
		key := identity.CanonicalKey(item)
		id, err := t.resolveTMDBID(ctx, item, feature)
		if err != nil {
			result.Unresolved = append(result.Unresolved, Unresolved{Key: key, Reason: tmdbWriteReason(err), Hint: err.Error()})
			continue
		}

		var werr error
		switch feature {
		case FeatureWatchlist:
			werr = t.writeWatchlistItem(ctx, item, id, remove)
		case FeatureRatings:
			werr = t.writeRatingItem(ctx, item, id, remove)
		default:
			continue
		}
		if werr != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			result.Unresolved = append(result.Unresolved, Unresolved{Key: key, Reason: tmdbWriteReason(werr), Hint: werr.Error()})
			continue
		}
		result.ConfirmedKeys = append(result.ConfirmedKeys, key)
		result.Count++
	}
	return result, nil
}

func tmdbWriteReason(err error) string {
	msg := err.Error()
	switch {
	case strings.Contains(msg, ReasonMissingIDs):
		return ReasonMissingIDs
	case strings.Contains(msg, ReasonUnresolvedIDs):
		return ReasonUnresolvedIDs
	case strings.Contains(msg, "http:401") || strings.Contains(msg, "http:403"):
		return ReasonAuthFailed
	case strings.Contains(msg, "http:429"):
		return ReasonRateLimited
	default:
		return ReasonUpstreamError
	}
}

func tmdbMediaType(typ identity.MediaType) string {
	if typ == identity.TypeMovie {
		return "movie"
	}
	return "tv"
}

func (t *TMDB) writeWatchlistItem(ctx context.Context, item identity.Item, id int, remove bool) error {
	body := map[string]any{
		"media_type": tmdbMediaType(item.Type),
		"media_id":   id,
		"watchlist":  !remove,
	}
	resp, err := t.hc.PostJSON(ctx, t.accountPath()+"/watchlist", t.auth(nil), body, nil)
	if err != nil {
		return err
	}
	if reason := classifyStatus(resp.StatusCode, remove); reason != "" {
		return fmt.Errorf("tmdb watchlist: %s", httpHint(resp.StatusCode))
	}
	return nil
}

func (t *TMDB) writeRatingItem(ctx context.Context, item identity.Item, id int, remove bool) error {
	u := tmdbAPIBase + "/" + tmdbMediaType(item.Type) + "/" + strconv.Itoa(id) + "/rating"

	var resp *httpx.Response
	var err error
	if remove {
		resp, err = t.hc.DeleteJSON(ctx, u, t.auth(nil), nil, nil)
	} else {
		resp, err = t.hc.PostJSON(ctx, u, t.auth(nil), map[string]any{"value": item.Rating}, nil)
	}
	if err != nil {
		return err
	}
	if reason := classifyStatus(resp.StatusCode, remove); reason != "" {
		return fmt.Errorf("tmdb rating: %s", httpHint(resp.StatusCode))
	}
	return nil
}
