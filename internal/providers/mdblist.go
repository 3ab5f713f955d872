// CrossWatch - Cross-Provider Media Library Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crosswatch

/*
mdblist.go - MDBList Adapter

Watchlist and ratings against the MDBList API (apikey query auth):

  GET  /user                       health probe + limits
  GET  /watchlist/items            watchlist index (paginated)
  POST /watchlist/items/add        batch watchlist adds
  POST /watchlist/items/remove     batch watchlist removals
  GET  /ratings/{movies|shows}     ratings index (paginated)
  POST /ratings/add                ratings writes (paced)
  POST /ratings/remove             ratings removals (paced)

The watchlist index is cached in the resolve cache with a TTL; any
successful write busts it. Items the vendor reports under not_found are
frozen into the pair shadow with reason "not-found" and skipped on
follow-up adds in the same scope until resolved.

Ratings writes are paced: a fixed inter-chunk delay, plus adaptive
backoff (200ms doubling to the configured cap, 4 extra attempts) when a
chunk still comes back 429/503 after client-level retries.
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
	"github.com/tomtom215/crosswatch/internal/resolvecache"
	"github.com/tomtom215/crosswatch/internal/state"
)

const mdbAPIBase = "https://api.mdblist.com"

// mdbShadowReason marks vendor-unknown items in the pair shadow.
const mdbShadowReason = "not-found"

// mdbRatingsBackoffBase seeds the adaptive ratings backoff.
const mdbRatingsBackoffBase = 200 * time.Millisecond

// mdbRatingsExtraAttempts bounds re-posts of a throttled ratings chunk.
const mdbRatingsExtraAttempts = 4

// mdbIndexCacheKey is the resolve-cache slot of the watchlist shadow index.
const mdbIndexCacheKey = "watchlist:index"

// MDBList implements Adapter for mdblist.com.
type MDBList struct {
	cfg   config.MDBListConfig
	deps  Deps
	hc    *httpx.Client
	cache *resolvecache.Cache
}

// NewMDBList constructs the MDBList adapter for one instance profile.
func NewMDBList(cfg config.MDBListConfig, deps Deps) *MDBList {
	hc := httpx.NewClient(httpx.Config{
		Provider:    "mdblist",
		Timeout:     cfg.Timeout,
		MaxRetries:  cfg.MaxRetries,
		BackoffBase: 500 * time.Millisecond,
		VerifySSL:   cfg.VerifySSL,
	})
	hc.Labeler().Register(
		httpx.LabelRule{Method: http.MethodGet, PathContains: "/user", Label: "user"},
		httpx.LabelRule{Method: http.MethodPost, PathContains: "/watchlist/items/add", Label: "watchlist:add"},
		httpx.LabelRule{Method: http.MethodPost, PathContains: "/watchlist/items/remove", Label: "watchlist:remove"},
		httpx.LabelRule{Method: http.MethodGet, PathContains: "/watchlist/items", Label: "watchlist:index"},
		httpx.LabelRule{Method: http.MethodPost, PathContains: "/ratings/add", Label: "ratings:add"},
		httpx.LabelRule{Method: http.MethodPost, PathContains: "/ratings/remove", Label: "ratings:remove"},
		httpx.LabelRule{Method: http.MethodGet, PathContains: "/ratings/", Label: "ratings:index"},
	)
	return &MDBList{cfg: cfg, deps: deps, hc: hc, cache: deps.Resolve.Scoped("mdblist")}
}

// Manifest implements Adapter.
func (m *MDBList) Manifest() Manifest {
	return Manifest{
		Name:          "mdblist",
		Label:         "MDBList",
		Version:       "1.0.0",
		Type:          "sync",
		Bidirectional: true,
		Features: map[string]bool{
			FeatureWatchlist: true,
			FeatureRatings:   true,
			FeatureHistory:   false,
			FeaturePlaylists: false,
		},
		Requires:     []string{"api_key"},
		Capabilities: m.Capabilities(),
	}
}

// Features implements Adapter.
func (m *MDBList) Features() map[string]bool {
	return m.Manifest().Features
}

// Capabilities implements Adapter.
func (m *MDBList) Capabilities() Capabilities {
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
func (m *MDBList) IsConfigured() bool {
	return m.cfg.APIKey != ""
}

// auth returns the apikey query values merged over extra.
func (m *MDBList) auth(extra url.Values) url.Values {
	q := url.Values{}
	for k, vs := range extra {
		q[k] = vs
	}
	q.Set("apikey", m.cfg.APIKey)
	return q
}

// Health implements Adapter. Probes /user.
func (m *MDBList) Health(ctx context.Context) Health {
	h := Health{Status: "ok", Features: m.Features(), API: map[string]EndpointHealth{}}
	if !m.IsConfigured() {
		h.Status = ReasonMissingConfig
		h.Details.Reason = "api_key missing"
		return h
	}

	start := time.Now()
	resp, err := m.hc.GetJSON(ctx, mdbAPIBase+"/user", m.auth(nil), nil)
	h.LatencyMS = time.Since(start).Milliseconds()
	if err != nil {
		h.Status = ReasonNetworkError
		h.Details.Reason = err.Error()
		return h
	}

	h.API["user"] = EndpointHealth{Status: resp.StatusCode, Rate: resp.RateLimit()}
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

// mdbItem is one vendor row in list and ratings responses.
type mdbItem struct {
	ID      int    `json:"id,omitempty"`
	Title   string `json:"title,omitempty"`
	Year    int    `json:"release_year,omitempty"`
	IMDBID  string `json:"imdb_id,omitempty"`
	TMDBID  int    `json:"tmdb_id,omitempty"`
	TVDBID  int    `json:"tvdb_id,omitempty"`
	Rating  int    `json:"rating,omitempty"`
	RatedAt string `json:"rated_at,omitempty"`
}

type mdbItemLists struct {
	Movies []mdbItem `json:"movies,omitempty"`
	Shows  []mdbItem `json:"shows,omitempty"`
}

func (it mdbItem) toItem(typ identity.MediaType) identity.Item {
	ids := map[string]string{}
	if it.IMDBID != "" {
		ids[identity.KindIMDB] = it.IMDBID
	}
	if it.TMDBID != 0 {
		ids[identity.KindTMDB] = strconv.Itoa(it.TMDBID)
	}
	if it.TVDBID != 0 {
		ids[identity.KindTVDB] = strconv.Itoa(it.TVDBID)
	}
	return identity.Item{
		Type:    typ,
		Title:   it.Title,
		Year:    it.Year,
		IDs:     ids,
		Rating:  it.Rating,
		RatedAt: it.RatedAt,
	}
}

// mdbItemFrom projects a canonical item into the vendor write shape.
func mdbItemFrom(item identity.Item) (mdbItem, bool) {
	ids := identity.IDsFrom(item)
	out := mdbItem{
		Title:   item.Title,
		Year:    item.Year,
		IMDBID:  ids[identity.KindIMDB],
		Rating:  item.Rating,
		RatedAt: item.RatedAt,
	}
	out.TMDBID, _ = strconv.Atoi(ids[identity.KindTMDB])
	out.TVDBID, _ = strconv.Atoi(ids[identity.KindTVDB])
	if out.IMDBID == "" && out.TMDBID == 0 && out.TVDBID == 0 {
		return mdbItem{}, false
	}
	return out, true
}

// BuildIndex implements Adapter.
func (m *MDBList) BuildIndex(ctx context.Context, feature string) (identity.Index, error) {
	if !m.IsConfigured() {
		return nil, fmt.Errorf("mdblist: %s", ReasonMissingConfig)
	}

	switch feature {
	case FeatureWatchlist:
		return m.watchlistIndex(ctx)
	case FeatureRatings:
		return m.ratingsIndex(ctx)
	default:
		return identity.Index{}, nil
	}
}

func (m *MDBList) watchlistIndex(ctx context.Context) (identity.Index, error) {
	var cached identity.Index
	if m.cache.Get(mdbIndexCacheKey, &cached) && cached != nil {
		return cached, nil
	}

	pageSize := m.cfg.WatchlistPageSize
	if pageSize <= 0 {
		pageSize = 100
	}

	idx := identity.Index{}
	offset := 0
	var lastSig string
	dupes := 0

	for {
		q := url.Values{}
		q.Set("limit", strconv.Itoa(pageSize))
		q.Set("offset", strconv.Itoa(offset))

		var page mdbItemLists
		resp, err := m.hc.GetJSON(ctx, mdbAPIBase+"/watchlist/items", m.auth(q), &page)
		if err != nil {
			return nil, fmt.Errorf("mdblist watchlist: %w", err)
		}
		if !resp.OK() {
			return nil, fmt.Errorf("mdblist watchlist: %s", httpHint(resp.StatusCode))
		}

		var pageKeys []string
		for _, row := range page.Movies {
			item := row.toItem(identity.TypeMovie)
			idx.Merge(item)
			pageKeys = append(pageKeys, identity.CanonicalKey(item))
		}
		for _, row := range page.Shows {
			item := row.toItem(identity.TypeShow)
			idx.Merge(item)
			pageKeys = append(pageKeys, identity.CanonicalKey(item))
		}

		got := len(page.Movies) + len(page.Shows)
		if got < pageSize {
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
		offset += got
	}

	if ttl := m.shadowTTL(); ttl > 0 {
		_ = m.cache.Put(mdbIndexCacheKey, idx, ttl)
	}
	return idx, nil
}

func (m *MDBList) shadowTTL() time.Duration {
	hrs := m.cfg.WatchlistShadowTTLHrs
	if hrs <= 0 {
		hrs = 6
	}
	return time.Duration(hrs) * time.Hour
}

func (m *MDBList) ratingsIndex(ctx context.Context) (identity.Index, error) {
	perPage := m.cfg.RatingsPerPage
	if perPage <= 0 {
		perPage = 100
	}

	idx := identity.Index{}
	for _, seg := range []struct {
		path string
		typ  identity.MediaType
	}{
		{"/ratings/movies", identity.TypeMovie},
		{"/ratings/shows", identity.TypeShow},
	} {
		offset := 0
		for {
			q := url.Values{}
			q.Set("limit", strconv.Itoa(perPage))
			q.Set("offset", strconv.Itoa(offset))

			var rows []mdbItem
			resp, err := m.hc.GetJSON(ctx, mdbAPIBase+seg.path, m.auth(q), &rows)
			if err != nil {
				return nil, fmt.Errorf("mdblist ratings: %w", err)
			}
			if !resp.OK() {
				return nil, fmt.Errorf("mdblist ratings: %s", httpHint(resp.StatusCode))
			}

			for _, row := range rows {
				if row.Rating == 0 {
					continue
				}
				idx.Merge(row.toItem(seg.typ))
			}
			if len(rows) < perPage {
				break
			}
			offset += len(rows)
		}
	}
	return idx, nil
}

// Add implements Adapter.
func (m *MDBList) Add(ctx context.Context, items []identity.Item, feature string, dryRun bool) (*WriteResult, error) {
	return m.write(ctx, items, feature, false, dryRun)
}

// Remove implements Adapter.
func (m *MDBList) Remove(ctx context.Context, items []identity.Item, feature string, dryRun bool) (*WriteResult, error) {
	return m.write(ctx, items, feature, true, dryRun)
}

func (m *MDBList) write(ctx context.Context, items []identity.Item, feature string, remove, dryRun bool) (*WriteResult, error) {
	if !m.IsConfigured() {
		return &WriteResult{OK: false, Error: ReasonMissingConfig}, nil
	}
	result := &WriteResult{OK: true}
	if len(items) == 0 {
		return result, nil
	}

	shadow := m.loadShadow(feature)

	// Frozen items skip follow-up adds in the same scope until resolved.
	pending := items
	if !remove && shadow != nil {
		pending = pending[:0:0]
		for _, it := range items {
			key := identity.CanonicalKey(it)
			if shadow.IsFrozen(key) {
				result.SkippedKeys = append(result.SkippedKeys, key)
				continue
			}
			pending = append(pending, it)
		}
	}

	if dryRun {
		result.Count = len(pending)
		result.ConfirmedKeys = confirmKeys(pending)
		return result, nil
	}
	if len(pending) == 0 {
		return result, nil
	}

	var err error
	switch feature {
	case FeatureWatchlist:
		err = m.writeWatchlist(ctx, pending, remove, shadow, result)
	case FeatureRatings:
		err = m.writeRatings(ctx, pending, remove, shadow, result)
	default:
		return result, nil
	}
	if err != nil {
		return nil, err
	}

	if result.Count > 0 {
		// Successful writes invalidate the shadow index.
		_ = m.cache.Delete(mdbIndexCacheKey)
	}
	m.saveShadow(feature, shadow)
	return result, nil
}

func (m *MDBList) writeWatchlist(ctx context.Context, items []identity.Item, remove bool, shadow *state.Shadow, result *WriteResult) error {
	path := "/watchlist/items/add"
	if remove {
		path = "/watchlist/items/remove"
	}
	batch := clampChunk(m.cfg.WatchlistBatchSize, 25, 100, 100)

	for _, chunk := range chunkItems(items, batch) {
		body, sent := mdbBuildBody(chunk, result)

		var writeResp struct {
			Added    map[string]int `json:"added,omitempty"`
			Removed  map[string]int `json:"removed,omitempty"`
			NotFound mdbItemLists   `json:"not_found,omitempty"`
		}
		resp, err := m.hc.PostJSON(ctx, mdbAPIBase+path, m.auth(nil), body, &writeResp)
		if err != nil {
			return fmt.Errorf("mdblist watchlist write: %w", err)
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
				return nil
			}
			continue
		}

		notFound := mdbNotFoundKeys(writeResp.NotFound)
		for _, it := range sent {
			key := identity.CanonicalKey(it)
			if _, miss := notFound[key]; miss {
				result.Unresolved = append(result.Unresolved, Unresolved{Key: key, Reason: ReasonNotFound})
				if shadow != nil {
					shadow.Freeze(key, mdbShadowReason, it)
				}
				continue
			}
			result.ConfirmedKeys = append(result.ConfirmedKeys, key)
			result.Count++
			if shadow != nil {
				shadow.Resolve(key)
			}
		}
	}
	return nil
}

// writeRatings posts rating chunks with inter-chunk pacing and adaptive
// backoff when a chunk stays throttled after client-level retries.
func (m *MDBList) writeRatings(ctx context.Context, items []identity.Item, remove bool, shadow *state.Shadow, result *WriteResult) error {
	path := "/ratings/add"
	if remove {
		path = "/ratings/remove"
	}
	chunkSize := clampChunk(m.cfg.RatingsChunkSize, 25, 100, 50)
	delay := time.Duration(m.cfg.RatingsWriteDelayMS) * time.Millisecond
	if delay <= 0 {
		delay = 600 * time.Millisecond
	}
	maxBackoff := time.Duration(m.cfg.RatingsMaxBackoffMS) * time.Millisecond
	if maxBackoff <= 0 {
		maxBackoff = 8 * time.Second
	}

	chunks := chunkItems(items, chunkSize)
	for i, chunk := range chunks {
		body, sent := mdbBuildBody(chunk, result)

		resp, err := m.postRatingsChunk(ctx, path, body, maxBackoff)
		if err != nil {
			return err
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
				return nil
			}
			continue
		}

		for _, it := range sent {
			key := identity.CanonicalKey(it)
			result.ConfirmedKeys = append(result.ConfirmedKeys, key)
			result.Count++
			if shadow != nil {
				shadow.Resolve(key)
			}
		}

		if i < len(chunks)-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return nil
}

// postRatingsChunk re-posts a chunk that still reads 429/503 after the
// client's own retries, backing off 200ms -> maxBackoff across at most 4
// extra attempts. The final response is returned either way.
func (m *MDBList) postRatingsChunk(ctx context.Context, path string, body mdbItemLists, maxBackoff time.Duration) (*httpx.Response, error) {
	backoff := mdbRatingsBackoffBase

	var resp *httpx.Response
	var err error
	for attempt := 0; ; attempt++ {
		resp, err = m.hc.PostJSON(ctx, mdbAPIBase+path, m.auth(nil), body, nil)
		if err != nil {
			return nil, fmt.Errorf("mdblist ratings write: %w", err)
		}
		throttled := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable
		if !throttled || attempt >= mdbRatingsExtraAttempts {
			return resp, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// mdbBuildBody splits items into the vendor movie/show lists, recording
// unprojectable items in result and returning the subset that made it into
// the body.
func mdbBuildBody(chunk []identity.Item, result *WriteResult) (mdbItemLists, []identity.Item) {
	var body mdbItemLists
	kept := make([]identity.Item, 0, len(chunk))
	for _, it := range chunk {
		row, ok := mdbItemFrom(it)
		if !ok {
			result.Unresolved = append(result.Unresolved, Unresolved{
				Key:    identity.CanonicalKey(it),
				Reason: ReasonMissingIDs,
			})
			continue
		}
		if it.Type == identity.TypeMovie {
			body.Movies = append(body.Movies, row)
		} else {
			body.Shows = append(body.Shows, row)
		}
		kept = append(kept, it)
	}
	return body, kept
}

func mdbNotFoundKeys(lists mdbItemLists) map[string]struct{} {
	out := map[string]struct{}{}
	for _, row := range lists.Movies {
		if key := identity.CanonicalKey(row.toItem(identity.TypeMovie)); key != "" {
			out[key] = struct{}{}
		}
	}
	for _, row := range lists.Shows {
		if key := identity.CanonicalKey(row.toItem(identity.TypeShow)); key != "" {
			out[key] = struct{}{}
		}
	}
	return out
}

func (m *MDBList) loadShadow(feature string) *state.Shadow {
	if m.deps.Store == nil {
		return nil
	}
	sh, err := m.deps.Store.LoadShadow(feature)
	if err != nil {
		return state.NewShadow()
	}
	return sh
}

func (m *MDBList) saveShadow(feature string, sh *state.Shadow) {
	if m.deps.Store == nil || sh == nil {
		return
	}
	_ = m.deps.Store.SaveShadow(feature, sh)
}
