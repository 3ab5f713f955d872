// CrossWatch - Cross-Provider Media Library Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crosswatch

/*
mediabrowser.go - Shared Jellyfin/Emby Core

Jellyfin and Emby expose the same MediaBrowser API surface, so both
adapters delegate to this core:

  GET    /System/Info/Public                  health probe
  GET    /Users/{uid}/Items                   item queries (paginated)
  POST   /Users/{uid}/FavoriteItems/{id}      favorite add (DELETE removes)
  POST   /Users/{uid}/PlayedItems/{id}        played add (DELETE removes)
  POST   /Users/{uid}/Items/{id}/UserData     rating upsert
  POST   /Playlists, /Playlists/{id}/Items    playlist mode
  POST   /Collections, /Collections/{id}/Items collection mode

The watchlist is backed by one of three modes chosen in config: favorites
(default), a named playlist, or a named collection. Removal differs per
mode: favorites delete per item, playlists delete by EntryIds, collections
delete by Ids. Items arriving without an internal ItemId are resolved with
an AnyProviderIdEquals query and the answer is disk-cached.
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

// mbPageSize is the StartIndex/Limit page size for item queries.
const mbPageSize = 200

// mbItemIDTTL bounds cached AnyProviderIdEquals resolutions.
const mbItemIDTTL = 30 * 24 * time.Hour

// mediaBrowser is the shared Jellyfin/Emby adapter core. The provider
// field selects naming, metrics labels, and the identity kind used for
// internal ItemIds.
type mediaBrowser struct {
	provider string
	label    string
	idKind   string
	cfg      config.MediaBrowserConfig
	deps     Deps
	hc       *httpx.Client
	cache    *resolvecache.Cache
}

func newMediaBrowser(provider, label, idKind string, cfg config.MediaBrowserConfig, deps Deps) *mediaBrowser {
	device := cfg.DeviceID
	if device == "" {
		device = "crosswatch"
	}
	hc := httpx.NewClient(httpx.Config{
		Provider:    provider,
		Timeout:     cfg.Timeout,
		MaxRetries:  cfg.MaxRetries,
		BackoffBase: 500 * time.Millisecond,
		VerifySSL:   cfg.VerifySSL,
		Headers: map[string]string{
			"X-Emby-Token": cfg.AccessToken,
			"Authorization": fmt.Sprintf(
				`MediaBrowser Client="CrossWatch", Device="crosswatch", DeviceId=%q, Version="1.0.0", Token=%q`,
				device, cfg.AccessToken),
		},
	})
	hc.Labeler().Register(
		httpx.LabelRule{Method: http.MethodGet, PathContains: "/System/Info", Label: "system"},
		httpx.LabelRule{PathContains: "/FavoriteItems/", Label: "favorites:write"},
		httpx.LabelRule{PathContains: "/PlayedItems/", Label: "history:write"},
		httpx.LabelRule{Method: http.MethodPost, PathContains: "/UserData", Label: "ratings:write"},
		httpx.LabelRule{PathContains: "/Playlists", Label: "playlist"},
		httpx.LabelRule{PathContains: "/Collections", Label: "collection"},
		httpx.LabelRule{Method: http.MethodGet, PathContains: "/Items", Label: "items"},
	)
	return &mediaBrowser{
		provider: provider,
		label:    label,
		idKind:   idKind,
		cfg:      cfg,
		deps:     deps,
		hc:       hc,
		cache:    deps.Resolve.Scoped(provider),
	}
}

func (mb *mediaBrowser) watchlistMode() string {
	switch mb.cfg.WatchlistMode {
	case config.WatchlistModePlaylist, config.WatchlistModeCollection:
		return mb.cfg.WatchlistMode
	default:
		return config.WatchlistModeFavorites
	}
}

func (mb *mediaBrowser) playlistName() string {
	if mb.cfg.WatchlistPlaylist != "" {
		return mb.cfg.WatchlistPlaylist
	}
	return "Watchlist"
}

func (mb *mediaBrowser) manifest() Manifest {
	return Manifest{
		Name:          mb.provider,
		Label:         mb.label,
		Version:       "1.0.0",
		Type:          "sync",
		Bidirectional: true,
		Features: map[string]bool{
			FeatureWatchlist: true,
			FeatureRatings:   true,
			FeatureHistory:   true,
			FeaturePlaylists: true,
		},
		Requires:     []string{"server", "access_token", "user_id"},
		Capabilities: mb.capabilities(),
	}
}

func (mb *mediaBrowser) capabilities() Capabilities {
	return Capabilities{
		Ratings: RatingCaps{
			Types:  RatingTypes{Movies: true, Shows: true, Seasons: true, Episodes: true},
			Upsert: true,
			Unrate: true,
		},
		IndexSemantics:  SemanticsPresent,
		ObservedDeletes: true,
		CanTarget:       true,
	}
}

func (mb *mediaBrowser) isConfigured() bool {
	return mb.cfg.Server != "" && mb.cfg.AccessToken != "" && mb.cfg.UserID != ""
}

func (mb *mediaBrowser) health(ctx context.Context) Health {
	h := Health{Status: "ok", Features: mb.manifest().Features, API: map[string]EndpointHealth{}}
	if !mb.isConfigured() {
		h.Status = ReasonMissingConfig
		h.Details.Reason = "server, access_token, or user_id missing"
		return h
	}

	start := time.Now()
	resp, err := mb.hc.GetJSON(ctx, mb.cfg.Server+"/System/Info/Public", nil, nil)
	h.LatencyMS = time.Since(start).Milliseconds()
	if err != nil {
		h.Status = ReasonNetworkError
		h.Details.Reason = err.Error()
		return h
	}

	h.API["system"] = EndpointHealth{Status: resp.StatusCode, Rate: resp.RateLimit()}
	switch {
	case resp.OK():
		h.OK = true
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		h.Status = ReasonAuthFailed
	default:
		h.Status = ReasonUpstreamError
	}
	return h
}

// mbUserData is the per-user item state block.
type mbUserData struct {
	IsFavorite     bool    `json:"IsFavorite,omitempty"`
	Played         bool    `json:"Played,omitempty"`
	Rating         float64 `json:"Rating,omitempty"`
	LastPlayedDate string  `json:"LastPlayedDate,omitempty"`
}

// mbItem is one MediaBrowser item row.
type mbItem struct {
	ID             string            `json:"Id"`
	Name           string            `json:"Name,omitempty"`
	SeriesName     string            `json:"SeriesName,omitempty"`
	Type           string            `json:"Type,omitempty"`
	ProductionYear int               `json:"ProductionYear,omitempty"`
	ProviderIds    map[string]string `json:"ProviderIds,omitempty"`
	IndexNumber    int               `json:"IndexNumber,omitempty"`
	ParentIndex    int               `json:"ParentIndexNumber,omitempty"`
	UserData       *mbUserData       `json:"UserData,omitempty"`
	PlaylistItemID string            `json:"PlaylistItemId,omitempty"`
}

type mbItemsPage struct {
	Items            []mbItem `json:"Items"`
	TotalRecordCount int      `json:"TotalRecordCount"`
}

// toItem maps a MediaBrowser row onto the universal Item. ProviderIds keys
// arrive in vendor casing (Imdb, Tmdb, Tvdb) and are lowercased before
// normalization.
func (mb *mediaBrowser) toItem(row mbItem) identity.Item {
	ids := map[string]string{}
	if row.ID != "" {
		ids[mb.idKind] = row.ID
	}
	for kind, raw := range row.ProviderIds {
		k := strings.ToLower(kind)
		if v := identity.Normalize(k, raw); v != "" {
			ids[k] = v
		}
	}

	item := identity.Item{
		Title: row.Name,
		Year:  row.ProductionYear,
		IDs:   ids,
	}
	switch row.Type {
	case "Series":
		item.Type = identity.TypeShow
	case "Season":
		item.Type = identity.TypeSeason
		item.Season = row.IndexNumber
	case "Episode":
		item.Type = identity.TypeEpisode
		item.Season = row.ParentIndex
		item.Episode = row.IndexNumber
		if row.SeriesName != "" {
			item.Title = row.SeriesName
		}
	default:
		item.Type = identity.TypeMovie
	}
	if ud := row.UserData; ud != nil {
		if ud.Rating > 0 {
			item.Rating = int(ud.Rating + 0.5)
		}
		if ud.LastPlayedDate != "" {
			item.WatchedAt = ud.LastPlayedDate
		}
	}
	return item
}

func (mb *mediaBrowser) userItemsURL() string {
	return mb.cfg.Server + "/Users/" + mb.cfg.UserID + "/Items"
}

// queryItems pages through /Users/{uid}/Items with the given filters,
// invoking visit per row.
func (mb *mediaBrowser) queryItems(ctx context.Context, base url.Values, visit func(mbItem)) error {
	start := 0
	for {
		q := url.Values{}
		for k, vs := range base {
			q[k] = vs
		}
		q.Set("StartIndex", strconv.Itoa(start))
		q.Set("Limit", strconv.Itoa(mbPageSize))

		var page mbItemsPage
		resp, err := mb.hc.GetJSON(ctx, mb.userItemsURL(), q, &page)
		if err != nil {
			return fmt.Errorf("%s items: %w", mb.provider, err)
		}
		if !resp.OK() {
			return fmt.Errorf("%s items: %s", mb.provider, httpHint(resp.StatusCode))
		}

		for _, row := range page.Items {
			visit(row)
		}

		start += len(page.Items)
		if len(page.Items) < mbPageSize || (page.TotalRecordCount > 0 && start >= page.TotalRecordCount) {
			break
		}
	}
	return nil
}

func (mb *mediaBrowser) buildIndex(ctx context.Context, feature string) (identity.Index, error) {
	if !mb.isConfigured() {
		return nil, fmt.Errorf("%s: %s", mb.provider, ReasonMissingConfig)
	}

	switch feature {
	case FeatureWatchlist:
		return mb.watchlistIndex(ctx)
	case FeatureRatings:
		return mb.ratingsIndex(ctx)
	case FeatureHistory:
		return mb.historyIndex(ctx)
	default:
		return identity.Index{}, nil
	}
}

func (mb *mediaBrowser) watchlistIndex(ctx context.Context) (identity.Index, error) {
	switch mb.watchlistMode() {
	case config.WatchlistModePlaylist:
		listID, err := mb.findContainer(ctx, "Playlist", mb.playlistName(), false)
		if err != nil {
			return nil, err
		}
		if listID == "" {
			return identity.Index{}, nil
		}
		return mb.containerItems(ctx, "/Playlists/"+listID+"/Items")
	case config.WatchlistModeCollection:
		boxID, err := mb.findContainer(ctx, "BoxSet", mb.playlistName(), false)
		if err != nil {
			return nil, err
		}
		if boxID == "" {
			return identity.Index{}, nil
		}
		q := url.Values{}
		q.Set("ParentId", boxID)
		q.Set("Fields", "ProviderIds,ProductionYear")
		idx := identity.Index{}
		err = mb.queryItems(ctx, q, func(row mbItem) { idx.Merge(mb.toItem(row)) })
		return idx, err
	default:
		q := url.Values{}
		q.Set("Recursive", "true")
		q.Set("Filters", "IsFavorite")
		q.Set("IncludeItemTypes", "Movie,Series")
		q.Set("Fields", "ProviderIds,ProductionYear")
		idx := identity.Index{}
		err := mb.queryItems(ctx, q, func(row mbItem) { idx.Merge(mb.toItem(row)) })
		return idx, err
	}
}

// containerItems reads a playlist's item listing (carries PlaylistItemId
// rows needed for EntryIds removal).
func (mb *mediaBrowser) containerItems(ctx context.Context, path string) (identity.Index, error) {
	q := url.Values{}
	q.Set("UserId", mb.cfg.UserID)
	q.Set("Fields", "ProviderIds,ProductionYear")

	var page mbItemsPage
	resp, err := mb.hc.GetJSON(ctx, mb.cfg.Server+path, q, &page)
	if err != nil {
		return nil, fmt.Errorf("%s playlist items: %w", mb.provider, err)
	}
	if !resp.OK() {
		return nil, fmt.Errorf("%s playlist items: %s", mb.provider, httpHint(resp.StatusCode))
	}

	idx := identity.Index{}
	for _, row := range page.Items {
		item := mb.toItem(row)
		if row.PlaylistItemID != "" {
			if item.Private == nil {
				item.Private = map[string]any{}
			}
			item.Private["playlist_item_id"] = row.PlaylistItemID
		}
		idx.Merge(item)
	}
	return idx, nil
}

func (mb *mediaBrowser) ratingsIndex(ctx context.Context) (identity.Index, error) {
	q := url.Values{}
	q.Set("Recursive", "true")
	q.Set("IncludeItemTypes", "Movie,Series,Episode")
	q.Set("Fields", "ProviderIds,ProductionYear,UserData")

	idx := identity.Index{}
	err := mb.queryItems(ctx, q, func(row mbItem) {
		item := mb.toItem(row)
		if item.Rating == 0 {
			return
		}
		idx.Merge(item)
	})
	return idx, err
}

func (mb *mediaBrowser) historyIndex(ctx context.Context) (identity.Index, error) {
	q := url.Values{}
	q.Set("Recursive", "true")
	q.Set("Filters", "IsPlayed")
	q.Set("IncludeItemTypes", "Movie,Episode")
	q.Set("Fields", "ProviderIds,ProductionYear,UserData")

	idx := identity.Index{}
	err := mb.queryItems(ctx, q, func(row mbItem) {
		item := mb.toItem(row)
		if item.WatchedAt == "" {
			return
		}
		idx.Merge(item)
	})
	return idx, err
}

// findContainer locates a playlist or boxset by exact name, optionally
// creating it when absent.
func (mb *mediaBrowser) findContainer(ctx context.Context, itemType, name string, create bool) (string, error) {
	q := url.Values{}
	q.Set("Recursive", "true")
	q.Set("IncludeItemTypes", itemType)

	var found string
	err := mb.queryItems(ctx, q, func(row mbItem) {
		if found == "" && strings.EqualFold(row.Name, name) {
			found = row.ID
		}
	})
	if err != nil || found != "" || !create {
		return found, err
	}

	switch itemType {
	case "Playlist":
		body := map[string]any{"Name": name, "UserId": mb.cfg.UserID}
		var created struct {
			ID string `json:"Id"`
		}
		resp, err := mb.hc.PostJSON(ctx, mb.cfg.Server+"/Playlists", nil, body, &created)
		if err != nil {
			return "", fmt.Errorf("%s create playlist: %w", mb.provider, err)
		}
		if !resp.OK() {
			return "", fmt.Errorf("%s create playlist: %s", mb.provider, httpHint(resp.StatusCode))
		}
		return created.ID, nil
	default:
		cq := url.Values{}
		cq.Set("Name", name)
		var created struct {
			ID string `json:"Id"`
		}
		resp, err := mb.hc.PostJSON(ctx, mb.cfg.Server+"/Collections", cq, nil, &created)
		if err != nil {
			return "", fmt.Errorf("%s create collection: %w", mb.provider, err)
		}
		if !resp.OK() {
			return "", fmt.Errorf("%s create collection: %s", mb.provider, httpHint(resp.StatusCode))
		}
		return created.ID, nil
	}
}

// resolveItemID maps a canonical item to the internal ItemId with an
// AnyProviderIdEquals query; answers are disk-cached.
func (mb *mediaBrowser) resolveItemID(ctx context.Context, item identity.Item) (string, error) {
	ids := identity.IDsFrom(item)
	if id := ids[mb.idKind]; id != "" {
		return id, nil
	}

	var probes []string
	for _, kind := range []string{identity.KindIMDB, identity.KindTMDB, identity.KindTVDB} {
		if v := ids[kind]; v != "" {
			probes = append(probes, kind+"."+v)
		}
	}
	if len(probes) == 0 {
		return "", fmt.Errorf("%s resolve: %s", mb.provider, ReasonMissingIDs)
	}

	cacheKey := "itemid:" + strings.Join(probes, ",")
	var cached string
	if mb.cache.Get(cacheKey, &cached) && cached != "" {
		return cached, nil
	}

	q := url.Values{}
	q.Set("Recursive", "true")
	q.Set("AnyProviderIdEquals", strings.Join(probes, ","))
	q.Set("IncludeItemTypes", "Movie,Series,Episode")
	q.Set("Limit", "1")

	var page mbItemsPage
	resp, err := mb.hc.GetJSON(ctx, mb.userItemsURL(), q, &page)
	if err != nil {
		return "", fmt.Errorf("%s resolve: %w", mb.provider, err)
	}
	if !resp.OK() || len(page.Items) == 0 {
		return "", fmt.Errorf("%s resolve: %s", mb.provider, ReasonUnresolvedIDs)
	}

	id := page.Items[0].ID
	if id != "" {
		_ = mb.cache.Put(cacheKey, id, mbItemIDTTL)
	}
	return id, nil
}

func (mb *mediaBrowser) add(ctx context.Context, items []identity.Item, feature string, dryRun bool) (*WriteResult, error) {
	return mb.write(ctx, items, feature, false, dryRun)
}

func (mb *mediaBrowser) remove(ctx context.Context, items []identity.Item, feature string, dryRun bool) (*WriteResult, error) {
	return mb.write(ctx, items, feature, true, dryRun)
}

func (mb *mediaBrowser) write(ctx context.Context, items []identity.Item, feature string, remove, dryRun bool) (*WriteResult, error) {
	if !mb.isConfigured() {
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

	if feature == FeatureWatchlist && mb.watchlistMode() != config.WatchlistModeFavorites {
		return result, mb.writeContainer(ctx, items, remove, result)
	}

	for _, item := range items {
		key := identity.CanonicalKey(item)
		id, err := mb.resolveItemID(ctx, item)
		if err != nil {
			result.Unresolved = append(result.Unresolved, Unresolved{Key: key, Reason: mbWriteReason(err), Hint: err.Error()})
			continue
		}

		var werr error
		switch feature {
		case FeatureWatchlist:
			werr = mb.writeFavorite(ctx, id, remove)
		case FeatureRatings:
			werr = mb.writeRating(ctx, id, item.Rating, remove)
		case FeatureHistory:
			werr = mb.writePlayed(ctx, id, item.WatchedAt, remove)
		default:
			continue
		}
		if werr != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			result.Unresolved = append(result.Unresolved, Unresolved{Key: key, Reason: mbWriteReason(werr), Hint: werr.Error()})
			continue
		}
		result.ConfirmedKeys = append(result.ConfirmedKeys, key)
		result.Count++
	}
	return result, nil
}

func mbWriteReason(err error) string {
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

func (mb *mediaBrowser) writeFavorite(ctx context.Context, itemID string, remove bool) error {
	u := mb.cfg.Server + "/Users/" + mb.cfg.UserID + "/FavoriteItems/" + itemID
	method := http.MethodPost
	if remove {
		method = http.MethodDelete
	}
	resp, err := mb.hc.Do(ctx, method, u, nil, nil, nil)
	if err != nil {
		return err
	}
	if reason := classifyStatus(resp.StatusCode, remove); reason != "" {
		return fmt.Errorf("%s favorite: %s", mb.provider, httpHint(resp.StatusCode))
	}
	return nil
}

func (mb *mediaBrowser) writeRating(ctx context.Context, itemID string, rating int, remove bool) error {
	u := mb.cfg.Server + "/Users/" + mb.cfg.UserID + "/Items/" + itemID + "/UserData"
	body := map[string]any{"Rating": rating}
	if remove {
		body = map[string]any{"Rating": nil}
	}
	resp, err := mb.hc.PostJSON(ctx, u, nil, body, nil)
	if err != nil {
		return err
	}
	if reason := classifyStatus(resp.StatusCode, remove); reason != "" {
		return fmt.Errorf("%s rating: %s", mb.provider, httpHint(resp.StatusCode))
	}
	return nil
}

func (mb *mediaBrowser) writePlayed(ctx context.Context, itemID, watchedAt string, remove bool) error {
	u := mb.cfg.Server + "/Users/" + mb.cfg.UserID + "/PlayedItems/" + itemID
	method := http.MethodPost
	q := url.Values{}
	if remove {
		method = http.MethodDelete
	} else if watchedAt != "" {
		q.Set("DatePlayed", watchedAt)
	}
	resp, err := mb.hc.Do(ctx, method, u, q, nil, nil)
	if err != nil {
		return err
	}
	if reason := classifyStatus(resp.StatusCode, remove); reason != "" {
		return fmt.Errorf("%s played: %s", mb.provider, httpHint(resp.StatusCode))
	}
	return nil
}

// writeContainer applies watchlist writes in playlist or collection mode.
// Adds are batched by Ids; removals use EntryIds (playlist) or Ids
// (collection).
func (mb *mediaBrowser) writeContainer(ctx context.Context, items []identity.Item, remove bool, result *WriteResult) error {
	mode := mb.watchlistMode()
	itemType := "Playlist"
	if mode == config.WatchlistModeCollection {
		itemType = "BoxSet"
	}

	containerID, err := mb.findContainer(ctx, itemType, mb.playlistName(), !remove)
	if err != nil {
		return err
	}
	if containerID == "" {
		// Nothing to remove from.
		return nil
	}

	// Playlist removal needs the playlist entry ids of current rows.
	var entryByKey map[string]string
	if remove && mode == config.WatchlistModePlaylist {
		current, err := mb.containerItems(ctx, "/Playlists/"+containerID+"/Items")
		if err != nil {
			return err
		}
		entryByKey = map[string]string{}
		for key, row := range current {
			if eid, ok := row.Private["playlist_item_id"].(string); ok {
				entryByKey[key] = eid
			}
		}
	}

	var ids, entries, keys []string
	for _, item := range items {
		key := identity.CanonicalKey(item)
		if remove && mode == config.WatchlistModePlaylist {
			eid, ok := entryByKey[key]
			if !ok {
				// Already absent; removal is idempotent.
				result.ConfirmedKeys = append(result.ConfirmedKeys, key)
				result.Count++
				continue
			}
			entries = append(entries, eid)
			keys = append(keys, key)
			continue
		}

		id, err := mb.resolveItemID(ctx, item)
		if err != nil {
			result.Unresolved = append(result.Unresolved, Unresolved{Key: key, Reason: mbWriteReason(err), Hint: err.Error()})
			continue
		}
		ids = append(ids, id)
		keys = append(keys, key)
	}
	if len(ids) == 0 && len(entries) == 0 {
		return nil
	}

	var path string
	q := url.Values{}
	method := http.MethodPost
	switch {
	case mode == config.WatchlistModePlaylist && remove:
		path = "/Playlists/" + containerID + "/Items"
		method = http.MethodDelete
		q.Set("EntryIds", strings.Join(entries, ","))
	case mode == config.WatchlistModePlaylist:
		path = "/Playlists/" + containerID + "/Items"
		q.Set("Ids", strings.Join(ids, ","))
		q.Set("UserId", mb.cfg.UserID)
	case remove:
		path = "/Collections/" + containerID + "/Items"
		method = http.MethodDelete
		q.Set("Ids", strings.Join(ids, ","))
	default:
		path = "/Collections/" + containerID + "/Items"
		q.Set("Ids", strings.Join(ids, ","))
	}

	resp, err := mb.hc.Do(ctx, method, mb.cfg.Server+path, q, nil, nil)
	if err != nil {
		return fmt.Errorf("%s container write: %w", mb.provider, err)
	}
	if reason := classifyStatus(resp.StatusCode, remove); reason != "" {
		for _, key := range keys {
			result.Unresolved = append(result.Unresolved, Unresolved{
				Key:    key,
				Reason: reason,
				Hint:   httpHint(resp.StatusCode),
			})
		}
		return nil
	}

	result.ConfirmedKeys = append(result.ConfirmedKeys, keys...)
	result.Count += len(keys)
	return nil
}
