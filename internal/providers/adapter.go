// CrossWatch - Cross-Provider Media Library Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crosswatch

package providers

import (
	"context"
	"strconv"

	"github.com/tomtom215/crosswatch/internal/identity"
	"github.com/tomtom215/crosswatch/internal/resolvecache"
	"github.com/tomtom215/crosswatch/internal/state"
)

// Adapter is the uniform contract every backend implements.
//
// BuildIndex returns the complete present set for a feature; deletions are
// inferred by the reconciler from baseline diffs. Add and Remove are
// idempotent: re-adding a present item and re-removing an absent one are
// both success. Per-item failures never abort a batch; they come back in
// WriteResult.Unresolved.
type Adapter interface {
	// Manifest is the static adapter description.
	Manifest() Manifest

	// Features reports the effectively enabled features for this instance.
	Features() map[string]bool

	// Capabilities reports behavioral deltas from the generic contract.
	Capabilities() Capabilities

	// IsConfigured reports whether required credentials/URLs are present.
	IsConfigured() bool

	// Health runs one cheap probe per relevant endpoint.
	Health(ctx context.Context) Health

	// BuildIndex returns the complete present set for a feature.
	BuildIndex(ctx context.Context, feature string) (identity.Index, error)

	// Add upserts items into the feature set.
	Add(ctx context.Context, items []identity.Item, feature string, dryRun bool) (*WriteResult, error)

	// Remove deletes items from the feature set.
	Remove(ctx context.Context, items []identity.Item, feature string, dryRun bool) (*WriteResult, error)
}

// Deps carries the injected collaborators an adapter may use. All fields
// are optional; a nil Store disables shadow persistence and a nil Resolve
// disables the external-id disk cache.
type Deps struct {
	// Instance is the credential profile name ("default" when unset).
	Instance string

	// Store is the pair-scoped state store for shadow files.
	Store *state.Store

	// Resolve is the external-id resolution cache.
	Resolve *resolvecache.Cache
}

// instanceOr returns the instance name with the default fallback.
func (d Deps) instanceOr() string {
	if d.Instance == "" {
		return "default"
	}
	return d.Instance
}

// chunkItems splits items into batches of at most size.
func chunkItems(items []identity.Item, size int) [][]identity.Item {
	if size <= 0 {
		size = len(items)
	}
	if len(items) == 0 {
		return nil
	}
	var out [][]identity.Item
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[start:end])
	}
	return out
}

// clampChunk bounds a configured chunk size to [lo, hi], using def when
// unset.
func clampChunk(n, lo, hi, def int) int {
	if n <= 0 {
		n = def
	}
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

// confirmWrites settles one accepted write chunk: items the vendor
// reported not_found become unresolved, every other sent item is
// confirmed and counted. Items never sent (missing IDs) must not be in
// sent.
func confirmWrites(result *WriteResult, sent []identity.Item, notFound map[string]struct{}) {
	for _, it := range sent {
		key := identity.CanonicalKey(it)
		if _, miss := notFound[key]; miss {
			result.Unresolved = append(result.Unresolved, Unresolved{Key: key, Reason: ReasonNotFound})
			continue
		}
		result.ConfirmedKeys = append(result.ConfirmedKeys, key)
		result.Count++
	}
}

// pageSignature fingerprints a page of canonical keys to detect broken
// pagination (vendors that keep returning the same page). The signature is
// first key + last key + length.
func pageSignature(keys []string) string {
	if len(keys) == 0 {
		return ""
	}
	return keys[0] + "|" + keys[len(keys)-1] + "|" + strconv.Itoa(len(keys))
}
