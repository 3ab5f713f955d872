// CrossWatch - Cross-Provider Media Library Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crosswatch

/*
tautulli.go - Tautulli Adapter (read-only history)

Tautulli only sources play history; it is never a sync target:

  GET /api/v2?cmd=status         health probe
  GET /api/v2?cmd=get_history    paginated history rows
  GET /api/v2?cmd=get_metadata   external-id enrichment per rating key

History rows that arrive without external IDs (episodes in particular)
are enriched through get_metadata for their rating key; resolutions are
disk-cached. Multiple rows for the same item collapse to the newest
watched timestamp.
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

// tautulliMetadataTTL bounds cached get_metadata resolutions.
const tautulliMetadataTTL = 7 * 24 * time.Hour

// Tautulli implements Adapter for a Tautulli instance.
type Tautulli struct {
	cfg   config.TautulliConfig
	deps  Deps
	hc    *httpx.Client
	cache *resolvecache.Cache
}

// NewTautulli constructs the Tautulli adapter for one instance profile.
func NewTautulli(cfg config.TautulliConfig, deps Deps) *Tautulli {
	hc := httpx.NewClient(httpx.Config{
		Provider:    "tautulli",
		Timeout:     cfg.Timeout,
		MaxRetries:  cfg.MaxRetries,
		BackoffBase: 500 * time.Millisecond,
		VerifySSL:   cfg.VerifySSL,
	})
	hc.Labeler().Register(
		httpx.LabelRule{Method: http.MethodGet, PathContains: "cmd=get_history", Label: "history:index"},
		httpx.LabelRule{Method: http.MethodGet, PathContains: "cmd=get_metadata", Label: "metadata"},
		httpx.LabelRule{Method: http.MethodGet, PathContains: "cmd=status", Label: "status"},
	)
	return &Tautulli{cfg: cfg, deps: deps, hc: hc, cache: deps.Resolve.Scoped("tautulli")}
}

// Manifest implements Adapter.
func (t *Tautulli) Manifest() Manifest {
	return Manifest{
		Name:          "tautulli",
		Label:         "Tautulli",
		Version:       "1.0.0",
		Type:          "sync",
		Bidirectional: false,
		Features: map[string]bool{
			FeatureWatchlist: false,
			FeatureRatings:   false,
			FeatureHistory:   true,
			FeaturePlaylists: false,
		},
		Requires:     []string{"server_url", "api_key"},
		Capabilities: t.Capabilities(),
	}
}

// Features implements Adapter.
func (t *Tautulli) Features() map[string]bool {
	return t.Manifest().Features
}

// Capabilities implements Adapter.
func (t *Tautulli) Capabilities() Capabilities {
	return Capabilities{
		IndexSemantics:  SemanticsEvents,
		ObservedDeletes: false,
		CanTarget:       false,
	}
}

// IsConfigured implements Adapter.
func (t *Tautulli) IsConfigured() bool {
	return t.cfg.ServerURL != "" && t.cfg.APIKey != ""
}

func (t *Tautulli) apiQuery(cmd string, extra url.Values) url.Values {
	q := url.Values{}
	for k, vs := range extra {
		q[k] = vs
	}
	q.Set("apikey", t.cfg.APIKey)
	q.Set("cmd", cmd)
	return q
}

func (t *Tautulli) apiURL() string {
	return t.cfg.ServerURL + "/api/v2"
}

// Health implements Adapter. Probes cmd=status.
func (t *Tautulli) Health(ctx context.Context) Health {
	h := Health{Status: "ok", Features: t.Features(), API: map[string]EndpointHealth{}}
	if !t.IsConfigured() {
		h.Status = ReasonMissingConfig
		h.Details.Reason = "server_url or api_key missing"
		return h
	}

	start := time.Now()
	var body struct {
		Response struct {
			Result string `json:"result"`
		} `json:"response"`
	}
	resp, err := t.hc.GetJSON(ctx, t.apiURL(), t.apiQuery("status", nil), &body)
	h.LatencyMS = time.Since(start).Milliseconds()
	if err != nil {
		h.Status = ReasonNetworkError
		h.Details.Reason = err.Error()
		return h
	}

	h.API["status"] = EndpointHealth{Status: resp.StatusCode, Rate: resp.RateLimit()}
	switch {
	case resp.OK() && body.Response.Result == "success":
		h.OK = true
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		h.Status = ReasonAuthFailed
	default:
		h.Status = ReasonUpstreamError
	}
	return h
}

// tautulliHistoryRow is one play-history record.
type tautulliHistoryRow struct {
	MediaType        string `json:"media_type"`
	Title            string `json:"title,omitempty"`
	GrandparentTitle string `json:"grandparent_title,omitempty"`
	Year             int    `json:"year,omitempty"`
	RatingKey        any    `json:"rating_key,omitempty"`
	ParentMediaIndex any    `json:"parent_media_index,omitempty"`
	MediaIndex       any    `json:"media_index,omitempty"`
	WatchedStatus    any    `json:"watched_status,omitempty"`
	Date             int64  `json:"date,omitempty"`
	GUID             string `json:"guid,omitempty"`
}

// asInt coerces Tautulli's string-or-number JSON fields.
func asInt(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case string:
		i, _ := strconv.Atoi(n)
		return i
	default:
		return 0
	}
}

// BuildIndex implements Adapter. Only history is sourced.
func (t *Tautulli) BuildIndex(ctx context.Context, feature string) (identity.Index, error) {
	if !t.IsConfigured() {
		return nil, fmt.Errorf("tautulli: %s", ReasonMissingConfig)
	}
	if feature != FeatureHistory {
		return identity.Index{}, nil
	}

	perPage := t.cfg.HistoryPerPage
	if perPage <= 0 {
		perPage = 200
	}
	maxPages := t.cfg.HistoryMaxPages
	if maxPages <= 0 {
		maxPages = 50
	}

	idx := identity.Index{}
	for page := 0; page < maxPages; page++ {
		q := url.Values{}
		q.Set("length", strconv.Itoa(perPage))
		q.Set("start", strconv.Itoa(page*perPage))
		if t.cfg.HistoryUserID > 0 {
			q.Set("user_id", strconv.Itoa(t.cfg.HistoryUserID))
		}

		var body struct {
			Response struct {
				Result string `json:"result"`
				Data   struct {
					Data []tautulliHistoryRow `json:"data"`
				} `json:"data"`
			} `json:"response"`
		}
		resp, err := t.hc.GetJSON(ctx, t.apiURL(), t.apiQuery("get_history", q), &body)
		if err != nil {
			return nil, fmt.Errorf("tautulli history: %w", err)
		}
		if !resp.OK() || body.Response.Result != "success" {
			return nil, fmt.Errorf("tautulli history: %s", httpHint(resp.StatusCode))
		}

		for _, row := range body.Response.Data.Data {
			if asInt(row.WatchedStatus) == 0 {
				continue
			}
			item, ok := t.rowToItem(ctx, row)
			if !ok {
				continue
			}
			// Repeat plays collapse to the newest watched timestamp.
			key := identity.CanonicalKey(item)
			if existing, found := idx[key]; found && existing.WatchedAt >= item.WatchedAt {
				continue
			}
			idx.Merge(item)
		}

		if len(body.Response.Data.Data) < perPage {
			break
		}
	}
	return idx, nil
}

// rowToItem maps a history row to the canonical shape, enriching rows
// without external IDs through get_metadata.
func (t *Tautulli) rowToItem(ctx context.Context, row tautulliHistoryRow) (identity.Item, bool) {
	item := identity.Item{
		Title: row.Title,
		Year:  row.Year,
		IDs:   map[string]string{},
	}
	switch row.MediaType {
	case "episode":
		item.Type = identity.TypeEpisode
		item.Season = asInt(row.ParentMediaIndex)
		item.Episode = asInt(row.MediaIndex)
		if row.GrandparentTitle != "" {
			item.Title = row.GrandparentTitle
		}
	case "show":
		item.Type = identity.TypeShow
	default:
		item.Type = identity.TypeMovie
	}
	if row.Date > 0 {
		item.WatchedAt = time.Unix(row.Date, 0).UTC().Format(time.RFC3339)
	}

	if v := identity.Normalize(identity.KindGUID, row.GUID); v != "" {
		item.IDs[identity.KindGUID] = v
	}
	rk := asInt(row.RatingKey)
	if rk > 0 {
		item.IDs[identity.KindPlex] = strconv.Itoa(rk)
	}

	// Rows whose GUID carries no external identity need the metadata
	// lookup (episodes in particular).
	if len(identity.IDsFrom(item)) <= 1 && rk > 0 {
		if guids, err := t.metadataGUIDs(ctx, rk); err == nil {
			for _, g := range guids {
				if kind, raw, ok := strings.Cut(g, "://"); ok {
					if v := identity.Normalize(kind, raw); v != "" {
						item.IDs[kind] = v
					}
				}
			}
		}
	}

	if identity.CanonicalKey(item) == "" {
		return identity.Item{}, false
	}
	return item, true
}

// metadataGUIDs resolves the external GUID list of a rating key, cached.
func (t *Tautulli) metadataGUIDs(ctx context.Context, ratingKey int) ([]string, error) {
	cacheKey := "history:rating_key:" + strconv.Itoa(ratingKey) + "|guids"
	var cached []string
	if t.cache.Get(cacheKey, &cached) {
		return cached, nil
	}

	q := url.Values{}
	q.Set("rating_key", strconv.Itoa(ratingKey))

	var body struct {
		Response struct {
			Result string `json:"result"`
			Data   struct {
				GUIDs []string `json:"guids"`
			} `json:"data"`
		} `json:"response"`
	}
	resp, err := t.hc.GetJSON(ctx, t.apiURL(), t.apiQuery("get_metadata", q), &body)
	if err != nil {
		return nil, err
	}
	if !resp.OK() || body.Response.Result != "success" {
		return nil, fmt.Errorf("tautulli metadata: %s", httpHint(resp.StatusCode))
	}

	_ = t.cache.Put(cacheKey, body.Response.Data.GUIDs, tautulliMetadataTTL)
	return body.Response.Data.GUIDs, nil
}

// Add implements Adapter. Tautulli is read-only.
func (t *Tautulli) Add(ctx context.Context, items []identity.Item, feature string, dryRun bool) (*WriteResult, error) {
	return readOnlyResult(), nil
}

// Remove implements Adapter. Tautulli is read-only.
func (t *Tautulli) Remove(ctx context.Context, items []identity.Item, feature string, dryRun bool) (*WriteResult, error) {
	return readOnlyResult(), nil
}
