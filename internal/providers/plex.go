// CrossWatch - Cross-Provider Media Library Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crosswatch

/*
plex.go - Plex Adapter

Plex state lives in two places and this adapter talks to both:

  discover.provider.plex.tv   cloud-scoped watchlist
    GET /library/sections/watchlist/all          watchlist index
    PUT /actions/addToWatchlist?ratingKey=       watchlist add
    PUT /actions/removeFromWatchlist?ratingKey=  watchlist remove
  metadata.provider.plex.tv
    GET /library/metadata/matches                guid -> cloud ratingKey
  the local PMS (server_url)
    GET /identity                                health probe
    GET /library/sections                        section discovery
    GET /library/sections/{key}/all              ratings index
    GET /status/sessions/history/all             history index
    GET /:/rate, /:/scrobble                     ratings / history writes

Cloud ratingKeys are resolved from canonical IDs through the metadata
matches endpoint and cached on disk. History rows are scoped by the local
PMS account id (1..n), never the cloud account id. History removals are
not supported by the PMS API and come back read-only.
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

const (
	plexDiscoverBase = "https://discover.provider.plex.tv"
	plexMetadataBase = "https://metadata.provider.plex.tv"
)

// plexHistoryPageSize is the container size for history pagination.
const plexHistoryPageSize = 200

// plexRatingKeyTTL bounds cached guid->ratingKey resolutions.
const plexRatingKeyTTL = 30 * 24 * time.Hour

// Plex implements Adapter for a Plex account plus its local PMS.
type Plex struct {
	cfg   config.PlexConfig
	deps  Deps
	cloud *httpx.Client
	pms   *httpx.Client
	cache *resolvecache.Cache
}

// NewPlex constructs the Plex adapter for one instance profile.
func NewPlex(cfg config.PlexConfig, deps Deps) *Plex {
	headers := map[string]string{
		"X-Plex-Token":             cfg.AccountToken,
		"X-Plex-Client-Identifier": cfg.ClientID,
		"X-Plex-Product":           "CrossWatch",
	}

	cloud := httpx.NewClient(httpx.Config{
		Provider:    "plex",
		Timeout:     cfg.Timeout,
		MaxRetries:  cfg.MaxRetries,
		BackoffBase: 500 * time.Millisecond,
		VerifySSL:   cfg.VerifySSL,
		Headers:     headers,
	})
	cloud.Labeler().Register(
		httpx.LabelRule{Method: http.MethodGet, PathContains: "/watchlist/all", Label: "watchlist:index"},
		httpx.LabelRule{Method: http.MethodPut, PathContains: "/actions/addToWatchlist", Label: "watchlist:add"},
		httpx.LabelRule{Method: http.MethodPut, PathContains: "/actions/removeFromWatchlist", Label: "watchlist:remove"},
		httpx.LabelRule{Method: http.MethodGet, PathContains: "/metadata/matches", Label: "matches"},
	)

	pms := httpx.NewClient(httpx.Config{
		Provider:    "plex",
		Timeout:     cfg.Timeout,
		MaxRetries:  cfg.MaxRetries,
		BackoffBase: 500 * time.Millisecond,
		VerifySSL:   cfg.VerifySSL,
		Headers:     headers,
	})
	pms.Labeler().Register(
		httpx.LabelRule{Method: http.MethodGet, PathContains: "/identity", Label: "identity"},
		httpx.LabelRule{Method: http.MethodGet, PathContains: "/library/sections", Label: "sections"},
		httpx.LabelRule{Method: http.MethodGet, PathContains: "/status/sessions/history", Label: "history:index"},
		httpx.LabelRule{Method: http.MethodGet, PathContains: "/:/rate", Label: "ratings:write"},
		httpx.LabelRule{Method: http.MethodGet, PathContains: "/:/scrobble", Label: "history:add"},
	)

	return &Plex{
		cfg:   cfg,
		deps:  deps,
		cloud: cloud,
		pms:   pms,
		cache: deps.Resolve.Scoped("plex"),
	}
}

// Manifest implements Adapter.
func (p *Plex) Manifest() Manifest {
	return Manifest{
		Name:          "plex",
		Label:         "Plex",
		Version:       "1.0.0",
		Type:          "sync",
		Bidirectional: true,
		Features: map[string]bool{
			FeatureWatchlist: true,
			FeatureRatings:   p.cfg.ServerURL != "",
			FeatureHistory:   p.cfg.ServerURL != "",
			FeaturePlaylists: false,
		},
		Requires:     []string{"account_token", "client_id"},
		Capabilities: p.Capabilities(),
	}
}

// Features implements Adapter.
func (p *Plex) Features() map[string]bool {
	return p.Manifest().Features
}

// Capabilities implements Adapter.
func (p *Plex) Capabilities() Capabilities {
	return Capabilities{
		Ratings: RatingCaps{
			Types:    RatingTypes{Movies: true, Shows: true, Seasons: true, Episodes: true},
			Upsert:   true,
			Unrate:   true,
			FromDate: false,
		},
		IndexSemantics:  SemanticsPresent,
		ObservedDeletes: true,
		CanTarget:       true,
	}
}

// IsConfigured implements Adapter.
func (p *Plex) IsConfigured() bool {
	return p.cfg.AccountToken != "" && p.cfg.ClientID != ""
}

// Health implements Adapter. Probes the cloud watchlist endpoint and, when
// a server is configured, the PMS identity endpoint.
func (p *Plex) Health(ctx context.Context) Health {
	h := Health{Status: "ok", Features: p.Features(), API: map[string]EndpointHealth{}}
	if !p.IsConfigured() {
		h.Status = ReasonMissingConfig
		h.Details.Reason = "account_token or client_id missing"
		return h
	}

	start := time.Now()
	q := url.Values{}
	q.Set("X-Plex-Container-Size", "0")
	resp, err := p.cloud.GetJSON(ctx, plexDiscoverBase+"/library/sections/watchlist/all", q, nil)
	h.LatencyMS = time.Since(start).Milliseconds()
	if err != nil {
		h.Status = ReasonNetworkError
		h.Details.Reason = err.Error()
		return h
	}
	h.API["watchlist"] = EndpointHealth{Status: resp.StatusCode, Rate: resp.RateLimit()}
	h.OK = resp.OK()
	if !h.OK {
		h.Status = plexProbeStatus(resp.StatusCode)
	}

	if p.cfg.ServerURL != "" {
		sresp, serr := p.pms.GetJSON(ctx, p.cfg.ServerURL+"/identity", nil, nil)
		if serr != nil {
			h.API["server"] = EndpointHealth{Status: 0}
			if h.OK {
				h.Status = "degraded"
				h.Details.Reason = serr.Error()
			}
		} else {
			h.API["server"] = EndpointHealth{Status: sresp.StatusCode, Rate: sresp.RateLimit()}
			if !sresp.OK() && h.OK {
				h.Status = "degraded"
			}
		}
	}
	return h
}

func plexProbeStatus(code int) string {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return ReasonAuthFailed
	case code == http.StatusTooManyRequests:
		return ReasonRateLimited
	default:
		return ReasonUpstreamError
	}
}

// plexGuidRef is one external-id row inside PMS / discover metadata.
type plexGuidRef struct {
	ID string `json:"id"`
}

// plexMetadata is the shared metadata row shape of cloud and PMS payloads.
type plexMetadata struct {
	RatingKey        string        `json:"ratingKey"`
	Type             string        `json:"type"`
	Title            string        `json:"title"`
	GrandparentTitle string        `json:"grandparentTitle,omitempty"`
	Year             int           `json:"year,omitempty"`
	GUID             string        `json:"guid,omitempty"`
	Guids            []plexGuidRef `json:"Guid,omitempty"`
	UserRating       float64       `json:"userRating,omitempty"`
	LastRatedAt      int64         `json:"lastRatedAt,omitempty"`
	ViewedAt         int64         `json:"viewedAt,omitempty"`
	ParentIndex      int           `json:"parentIndex,omitempty"`
	Index            int           `json:"index,omitempty"`
	LibrarySectionID any           `json:"librarySectionID,omitempty"`
	AccountID        int           `json:"accountID,omitempty"`
}

type plexContainer struct {
	MediaContainer struct {
		Size      int            `json:"size"`
		TotalSize int            `json:"totalSize,omitempty"`
		Metadata  []plexMetadata `json:"Metadata,omitempty"`
	} `json:"MediaContainer"`
}

// toItem maps a metadata row onto the universal Item. The row's ratingKey
// is always preserved under the plex kind for removal matching.
func (md plexMetadata) toItem() identity.Item {
	ids := map[string]string{}
	if md.RatingKey != "" {
		ids[identity.KindPlex] = md.RatingKey
	}
	if v := identity.Normalize(identity.KindGUID, md.GUID); v != "" {
		ids[identity.KindGUID] = v
	}
	// Guid rows come as "<kind>://<value>" (imdb://tt123, tmdb://456).
	for _, ref := range md.Guids {
		if kind, raw, ok := strings.Cut(ref.ID, "://"); ok {
			if v := identity.Normalize(kind, raw); v != "" {
				ids[kind] = v
			}
		}
	}

	item := identity.Item{
		Title: md.Title,
		Year:  md.Year,
		IDs:   ids,
	}
	switch md.Type {
	case "show":
		item.Type = identity.TypeShow
	case "season":
		item.Type = identity.TypeSeason
		item.Season = md.Index
	case "episode":
		item.Type = identity.TypeEpisode
		item.Season = md.ParentIndex
		item.Episode = md.Index
		if md.GrandparentTitle != "" {
			item.Title = md.GrandparentTitle
		}
	default:
		item.Type = identity.TypeMovie
	}
	if md.UserRating > 0 {
		item.Rating = int(md.UserRating + 0.5)
	}
	if md.LastRatedAt > 0 {
		item.RatedAt = epochToUTC(md.LastRatedAt)
	}
	if md.ViewedAt > 0 {
		item.WatchedAt = epochToUTC(md.ViewedAt)
	}
	return item
}

func epochToUTC(sec int64) string {
	return time.Unix(sec, 0).UTC().Format(time.RFC3339)
}

// BuildIndex implements Adapter.
func (p *Plex) BuildIndex(ctx context.Context, feature string) (identity.Index, error) {
	if !p.IsConfigured() {
		return nil, fmt.Errorf("plex: %s", ReasonMissingConfig)
	}

	switch feature {
	case FeatureWatchlist:
		return p.watchlistIndex(ctx)
	case FeatureRatings:
		return p.ratingsIndex(ctx)
	case FeatureHistory:
		return p.historyIndex(ctx)
	default:
		return identity.Index{}, nil
	}
}

func (p *Plex) watchlistIndex(ctx context.Context) (identity.Index, error) {
	idx := identity.Index{}
	start := 0

	for {
		q := url.Values{}
		q.Set("X-Plex-Container-Start", strconv.Itoa(start))
		q.Set("X-Plex-Container-Size", strconv.Itoa(plexHistoryPageSize))

		var page plexContainer
		resp, err := p.cloud.GetJSON(ctx, plexDiscoverBase+"/library/sections/watchlist/all", q, &page)
		if err != nil {
			return nil, fmt.Errorf("plex watchlist: %w", err)
		}
		if !resp.OK() {
			return nil, fmt.Errorf("plex watchlist: %s", httpHint(resp.StatusCode))
		}

		for _, md := range page.MediaContainer.Metadata {
			idx.Merge(md.toItem())
		}

		got := len(page.MediaContainer.Metadata)
		start += got
		if got == 0 || (page.MediaContainer.TotalSize > 0 && start >= page.MediaContainer.TotalSize) {
			break
		}
	}
	return idx, nil
}

// plexSection is one PMS library section.
type plexSection struct {
	Key   string `json:"key"`
	Title string `json:"title"`
	Type  string `json:"type"`
}

// sections lists PMS library sections filtered by an allowlist of titles
// (empty allows all).
func (p *Plex) sections(ctx context.Context, allow []string) ([]plexSection, error) {
	var body struct {
		MediaContainer struct {
			Directory []plexSection `json:"Directory"`
		} `json:"MediaContainer"`
	}
	resp, err := p.pms.GetJSON(ctx, p.cfg.ServerURL+"/library/sections", nil, &body)
	if err != nil {
		return nil, fmt.Errorf("plex sections: %w", err)
	}
	if !resp.OK() {
		return nil, fmt.Errorf("plex sections: %s", httpHint(resp.StatusCode))
	}

	if len(allow) == 0 {
		return body.MediaContainer.Directory, nil
	}
	allowed := map[string]bool{}
	for _, title := range allow {
		allowed[strings.ToLower(title)] = true
	}
	var out []plexSection
	for _, sec := range body.MediaContainer.Directory {
		if allowed[strings.ToLower(sec.Title)] {
			out = append(out, sec)
		}
	}
	return out, nil
}

func (p *Plex) ratingsIndex(ctx context.Context) (identity.Index, error) {
	if p.cfg.ServerURL == "" {
		return nil, fmt.Errorf("plex ratings: %s", ReasonMissingConfig)
	}
	secs, err := p.sections(ctx, p.cfg.RatingsLibraries)
	if err != nil {
		return nil, err
	}

	idx := identity.Index{}
	for _, sec := range secs {
		q := url.Values{}
		q.Set("userRating>", "0")
		q.Set("includeGuids", "1")

		var page plexContainer
		resp, err := p.pms.GetJSON(ctx, p.cfg.ServerURL+"/library/sections/"+sec.Key+"/all", q, &page)
		if err != nil {
			return nil, fmt.Errorf("plex ratings section %s: %w", sec.Key, err)
		}
		if !resp.OK() {
			return nil, fmt.Errorf("plex ratings section %s: %s", sec.Key, httpHint(resp.StatusCode))
		}

		for _, md := range page.MediaContainer.Metadata {
			item := md.toItem()
			if item.Rating == 0 {
				continue
			}
			idx.Merge(item)
		}
	}
	return idx, nil
}

func (p *Plex) historyIndex(ctx context.Context) (identity.Index, error) {
	if p.cfg.ServerURL == "" {
		return nil, fmt.Errorf("plex history: %s", ReasonMissingConfig)
	}

	idx := identity.Index{}
	start := 0
	for {
		q := url.Values{}
		q.Set("sort", "viewedAt:desc")
		q.Set("X-Plex-Container-Start", strconv.Itoa(start))
		q.Set("X-Plex-Container-Size", strconv.Itoa(plexHistoryPageSize))
		if p.cfg.AccountID > 0 {
			q.Set("accountID", strconv.Itoa(p.cfg.AccountID))
		}

		var page plexContainer
		resp, err := p.pms.GetJSON(ctx, p.cfg.ServerURL+"/status/sessions/history/all", q, &page)
		if err != nil {
			return nil, fmt.Errorf("plex history: %w", err)
		}
		if !resp.OK() {
			return nil, fmt.Errorf("plex history: %s", httpHint(resp.StatusCode))
		}

		for _, md := range page.MediaContainer.Metadata {
			// History rows from other local accounts are skipped when an
			// account id is pinned.
			if p.cfg.AccountID > 0 && md.AccountID > 0 && md.AccountID != p.cfg.AccountID {
				continue
			}
			item := md.toItem()
			if item.WatchedAt == "" {
				continue
			}
			idx.Merge(item)
		}

		got := len(page.MediaContainer.Metadata)
		start += got
		if got < plexHistoryPageSize {
			break
		}
	}
	return idx, nil
}

// resolveRatingKey resolves a canonical item to a cloud ratingKey through
// the metadata matches endpoint, preferring an already-known plex kind.
// Resolutions are disk-cached.
func (p *Plex) resolveRatingKey(ctx context.Context, item identity.Item) (string, error) {
	ids := identity.IDsFrom(item)
	if rk := ids[identity.KindPlex]; rk != "" {
		return rk, nil
	}

	guid := ""
	switch {
	case ids[identity.KindIMDB] != "":
		guid = "imdb://" + ids[identity.KindIMDB]
	case ids[identity.KindTMDB] != "":
		guid = "tmdb://" + ids[identity.KindTMDB]
	case ids[identity.KindTVDB] != "":
		guid = "tvdb://" + ids[identity.KindTVDB]
	default:
		return "", fmt.Errorf("plex resolve: %s", ReasonMissingIDs)
	}

	cacheKey := "watchlist:" + guid + "|ratingKey"
	var cached string
	if p.cache.Get(cacheKey, &cached) && cached != "" {
		return cached, nil
	}

	q := url.Values{}
	q.Set("guid", guid)
	if item.Type == identity.TypeShow {
		q.Set("type", "2")
	} else {
		q.Set("type", "1")
	}

	var body plexContainer
	resp, err := p.cloud.GetJSON(ctx, plexMetadataBase+"/library/metadata/matches", q, &body)
	if err != nil {
		return "", fmt.Errorf("plex resolve: %w", err)
	}
	if !resp.OK() || len(body.MediaContainer.Metadata) == 0 {
		return "", fmt.Errorf("plex resolve: %s", ReasonUnresolvedIDs)
	}

	rk := body.MediaContainer.Metadata[0].RatingKey
	if rk != "" {
		_ = p.cache.Put(cacheKey, rk, plexRatingKeyTTL)
	}
	return rk, nil
}

// Add implements Adapter.
func (p *Plex) Add(ctx context.Context, items []identity.Item, feature string, dryRun bool) (*WriteResult, error) {
	return p.write(ctx, items, feature, false, dryRun)
}

// Remove implements Adapter.
func (p *Plex) Remove(ctx context.Context, items []identity.Item, feature string, dryRun bool) (*WriteResult, error) {
	return p.write(ctx, items, feature, true, dryRun)
}

func (p *Plex) write(ctx context.Context, items []identity.Item, feature string, remove, dryRun bool) (*WriteResult, error) {
	if !p.IsConfigured() {
		return &WriteResult{OK: false, Error: ReasonMissingConfig}, nil
	}
	if feature == FeatureHistory && remove {
		// The PMS has no per-row history deletion API.
		return readOnlyResult(), nil
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
		var err error
		switch feature {
		case FeatureWatchlist:
			err = p.writeWatchlistItem(ctx, item, remove)
		case FeatureRatings:
			err = p.writeRatingItem(ctx, item, remove)
		case FeatureHistory:
			err = p.scrobbleItem(ctx, item)
		default:
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			result.Unresolved = append(result.Unresolved, Unresolved{
				Key:    key,
				Reason: plexWriteReason(err),
				Hint:   err.Error(),
			})
			continue
		}
		result.ConfirmedKeys = append(result.ConfirmedKeys, key)
		result.Count++
	}
	return result, nil
}

// plexWriteReason folds a write error onto the error taxonomy.
func plexWriteReason(err error) string {
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

func (p *Plex) writeWatchlistItem(ctx context.Context, item identity.Item, remove bool) error {
	rk, err := p.resolveRatingKey(ctx, item)
	if err != nil {
		return err
	}

	action := "/actions/addToWatchlist"
	if remove {
		action = "/actions/removeFromWatchlist"
	}
	q := url.Values{}
	q.Set("ratingKey", rk)

	resp, err := p.cloud.PutJSON(ctx, plexDiscoverBase+action, q, nil, nil)
	if err != nil {
		return err
	}
	if reason := classifyStatus(resp.StatusCode, remove); reason != "" {
		return fmt.Errorf("plex watchlist write: %s", httpHint(resp.StatusCode))
	}
	return nil
}

func (p *Plex) writeRatingItem(ctx context.Context, item identity.Item, remove bool) error {
	if p.cfg.ServerURL == "" {
		return fmt.Errorf("plex ratings: %s", ReasonMissingConfig)
	}
	rk := identity.IDsFrom(item)[identity.KindPlex]
	if rk == "" {
		return fmt.Errorf("plex ratings: %s", ReasonMissingIDs)
	}

	q := url.Values{}
	q.Set("key", rk)
	q.Set("identifier", "com.plexapp.plugins.library")
	if remove {
		q.Set("rating", "-1")
	} else {
		q.Set("rating", strconv.Itoa(item.Rating))
	}

	resp, err := p.pms.Do(ctx, http.MethodGet, p.cfg.ServerURL+"/:/rate", q, nil, nil)
	if err != nil {
		return err
	}
	if reason := classifyStatus(resp.StatusCode, remove); reason != "" {
		return fmt.Errorf("plex rate: %s", httpHint(resp.StatusCode))
	}
	return nil
}

func (p *Plex) scrobbleItem(ctx context.Context, item identity.Item) error {
	if p.cfg.ServerURL == "" {
		return fmt.Errorf("plex history: %s", ReasonMissingConfig)
	}
	rk := identity.IDsFrom(item)[identity.KindPlex]
	if rk == "" {
		return fmt.Errorf("plex history: %s", ReasonMissingIDs)
	}

	q := url.Values{}
	q.Set("key", rk)
	q.Set("identifier", "com.plexapp.plugins.library")

	resp, err := p.pms.Do(ctx, http.MethodGet, p.cfg.ServerURL+"/:/scrobble", q, nil, nil)
	if err != nil {
		return err
	}
	if reason := classifyStatus(resp.StatusCode, false); reason != "" {
		return fmt.Errorf("plex scrobble: %s", httpHint(resp.StatusCode))
	}
	return nil
}
