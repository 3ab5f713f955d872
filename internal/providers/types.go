// CrossWatch - Cross-Provider Media Library Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crosswatch

// Package providers implements the uniform adapter abstraction over every
// supported backend (Plex, Jellyfin, Emby, Trakt, SIMKL, MDBList, TMDb,
// AniList, Tautulli, and the local CrossWatch store), plus the static
// registry that enumerates them.
//
// Each adapter lives in its own file and implements the Adapter interface:
// manifest/features/capabilities/is-configured/health/build-index/add/remove.
// Adapters map vendor payloads to identity.Item and vendor IDs to canonical
// keys; everything above this package is provider-agnostic.
package providers

import (
	"strconv"

	"github.com/tomtom215/crosswatch/internal/httpx"
	"github.com/tomtom215/crosswatch/internal/identity"
)

// Feature names the syncable state surfaces.
const (
	FeatureWatchlist = "watchlist"
	FeatureRatings   = "ratings"
	FeatureHistory   = "history"
	FeaturePlaylists = "playlists"
	// FeatureAll is accepted by the snapshotter only (bundle captures).
	FeatureAll = "all"
)

// Features lists the concrete feature names in stable order.
var Features = []string{FeatureWatchlist, FeatureRatings, FeatureHistory, FeaturePlaylists}

// Index semantics values (Capabilities.IndexSemantics).
const (
	// SemanticsPresent means build_index returns the current full set;
	// deletions are inferred from baseline set difference.
	SemanticsPresent = "present"
	// SemanticsEvents means the index is an append-only event view.
	SemanticsEvents = "events"
)

// Error reasons surfaced in Unresolved.Reason and Health.Status.
const (
	ReasonMissingConfig = "missing_config"
	ReasonAuthFailed    = "auth_failed"
	ReasonRateLimited   = "rate_limited"
	ReasonNotFound      = "not_found"
	ReasonMissingIDs    = "missing_ids"
	ReasonUnresolvedIDs = "unresolved_ids"
	ReasonNetworkError  = "network_error"
	ReasonUpstreamError = "upstream_error"
	ReasonConflict      = "conflict"
	ReasonCancelled     = "cancelled"
	ReasonTimeout       = "timeout"
	ReasonReadOnly      = "read-only"
)

// Manifest is the static description every adapter declares once.
type Manifest struct {
	Name          string          `json:"name"`
	Label         string          `json:"label"`
	Version       string          `json:"version"`
	Type          string          `json:"type"` // always "sync"
	Bidirectional bool            `json:"bidirectional"`
	Features      map[string]bool `json:"features"`
	Requires      []string        `json:"requires,omitempty"`
	Capabilities  Capabilities    `json:"capabilities"`
}

// RatingTypes enumerates the media types a provider can rate.
type RatingTypes struct {
	Movies   bool `json:"movies"`
	Shows    bool `json:"shows"`
	Seasons  bool `json:"seasons"`
	Episodes bool `json:"episodes"`
}

// RatingCaps describes a provider's rating surface.
type RatingCaps struct {
	Types    RatingTypes `json:"types"`
	Upsert   bool        `json:"upsert"`
	Unrate   bool        `json:"unrate"`
	FromDate bool        `json:"from_date"`
}

// Capabilities describes behavioral deltas from the generic contract.
type Capabilities struct {
	Ratings         RatingCaps `json:"ratings"`
	IndexSemantics  string     `json:"index_semantics"`
	ObservedDeletes bool       `json:"observed_deletes"`
	// CanTarget is false for read-only adapters (e.g. Tautulli).
	CanTarget bool `json:"can_target"`
	// Incremental marks providers exposing activity watermarks.
	Incremental bool `json:"incremental,omitempty"`
}

// EndpointHealth is the probe result for one relevant vendor endpoint.
type EndpointHealth struct {
	Status     int             `json:"status"`
	RetryAfter int             `json:"retry_after,omitempty"`
	Rate       httpx.RateLimit `json:"rate"`
}

// HealthDetails carries failure context when a probe is degraded.
type HealthDetails struct {
	Reason      string `json:"reason,omitempty"`
	RetryAfterS int    `json:"retry_after_s,omitempty"`
}

// Health is the aggregate probe result of one adapter instance.
type Health struct {
	OK        bool                      `json:"ok"`
	Status    string                    `json:"status"`
	LatencyMS int64                     `json:"latency_ms"`
	Features  map[string]bool           `json:"features"`
	Details   HealthDetails             `json:"details"`
	API       map[string]EndpointHealth `json:"api,omitempty"`
}

// Unresolved is one item that could not be applied this run.
type Unresolved struct {
	Key    string `json:"key"`
	Reason string `json:"reason"`
	Hint   string `json:"hint,omitempty"`
}

// WriteResult is the shaped outcome of an add or remove batch.
type WriteResult struct {
	OK            bool         `json:"ok"`
	Count         int          `json:"count"`
	ConfirmedKeys []string     `json:"confirmed_keys,omitempty"`
	SkippedKeys   []string     `json:"skipped_keys,omitempty"`
	Unresolved    []Unresolved `json:"unresolved,omitempty"`
	Error         string       `json:"error,omitempty"`
}

// MergeFrom folds another batch result into this one.
func (w *WriteResult) MergeFrom(other *WriteResult) {
	if other == nil {
		return
	}
	w.OK = w.OK && other.OK
	w.Count += other.Count
	w.ConfirmedKeys = append(w.ConfirmedKeys, other.ConfirmedKeys...)
	w.SkippedKeys = append(w.SkippedKeys, other.SkippedKeys...)
	w.Unresolved = append(w.Unresolved, other.Unresolved...)
	if w.Error == "" {
		w.Error = other.Error
	}
}

// readOnlyResult is the canonical refusal of a read-only adapter.
func readOnlyResult() *WriteResult {
	return &WriteResult{OK: false, Error: ReasonReadOnly, Count: 0}
}

// classifyStatus maps an HTTP status to the error taxonomy for an
// unresolved record. Returns "" for success-equivalent statuses.
func classifyStatus(status int, isDelete bool) string {
	switch {
	case status >= 200 && status < 300:
		return ""
	case status == 401 || status == 403:
		return ReasonAuthFailed
	case status == 404 && isDelete:
		// Deleting something already absent is success.
		return ""
	case status == 404:
		return ReasonNotFound
	case status == 409 || status == 422:
		if !isDelete {
			// Add conflicts mean already present.
			return ""
		}
		return ReasonConflict
	case status == 429:
		return ReasonRateLimited
	case status >= 500:
		return ReasonUpstreamError
	default:
		return ReasonUpstreamError
	}
}

// httpHint formats the standard unresolved hint for a status code.
func httpHint(status int) string {
	return "http:" + strconv.Itoa(status)
}

// confirmKeys extracts the canonical keys of a slice of items.
func confirmKeys(items []identity.Item) []string {
	keys := make([]string, 0, len(items))
	for _, it := range items {
		if k := identity.CanonicalKey(it); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}
