// CrossWatch - Cross-Provider Media Library Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crosswatch

package snapshot

import (
	"context"
	"fmt"
	"sort"

	"github.com/tomtom215/crosswatch/internal/identity"
	"github.com/tomtom215/crosswatch/internal/metrics"
	"github.com/tomtom215/crosswatch/internal/providers"
)

// Restore modes.
const (
	ModeMerge        = "merge"
	ModeClearRestore = "clear_restore"
)

// restoreChunk bounds one add/remove batch during restores.
const restoreChunk = 100

// RestoreResult is the aggregated outcome of a restore.
type RestoreResult struct {
	OK      bool     `json:"ok"`
	Added   int      `json:"added"`
	Removed int      `json:"removed"`
	Errors  []string `json:"errors,omitempty"`
}

func (r *RestoreResult) merge(other *RestoreResult) {
	r.OK = r.OK && other.OK
	r.Added += other.Added
	r.Removed += other.Removed
	r.Errors = append(r.Errors, other.Errors...)
}

// Restore applies a snapshot back onto its provider.
//
// merge adds every snapshot item absent from the current index.
// clear_restore first removes everything currently present, then adds
// the full snapshot; any remove failure aborts before the add phase so
// a half-cleared destination is never topped up. Bundles restore each
// child in turn and aggregate. The instance override, when non-empty,
// restores onto a different profile than the one captured.
func (s *Snapshotter) Restore(ctx context.Context, path, mode, instance string) (*RestoreResult, error) {
	if mode == "" {
		mode = ModeMerge
	}
	if mode != ModeMerge && mode != ModeClearRestore {
		return nil, fmt.Errorf("unknown restore mode %q", mode)
	}

	doc, err := s.Read(path)
	if err != nil {
		return nil, err
	}

	if doc.Kind == KindBundle {
		result := &RestoreResult{OK: true}
		for _, child := range doc.Children {
			cr, err := s.Restore(ctx, child.Path, mode, instance)
			if err != nil {
				result.OK = false
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", child.Feature, err))
				continue
			}
			result.merge(cr)
		}
		return result, nil
	}

	if instance == "" {
		instance = doc.Instance
	}
	a, err := s.adapter(doc.Provider, instance)
	if err != nil {
		return nil, err
	}
	if !a.Capabilities().CanTarget {
		return nil, fmt.Errorf("provider %s is read-only", doc.Provider)
	}

	current, err := a.BuildIndex(ctx, doc.Feature)
	if err != nil {
		return nil, fmt.Errorf("restore %s/%s: index: %w", doc.Provider, doc.Feature, err)
	}

	result := &RestoreResult{OK: true}

	if mode == ModeClearRestore {
		removed, errs := s.applyChunked(ctx, a, sortedItems(current), doc.Feature, true)
		result.Removed = removed
		if len(errs) > 0 {
			result.OK = false
			result.Errors = append(result.Errors, errs...)
			// Half-cleared destination: do not add on top.
			return result, nil
		}
		current = identity.Index{}
	}

	var toAdd []identity.Item
	for key, item := range doc.Items {
		if _, ok := current[key]; ok {
			continue
		}
		toAdd = append(toAdd, item)
	}
	sort.Slice(toAdd, func(i, j int) bool {
		return identity.CanonicalKey(toAdd[i]) < identity.CanonicalKey(toAdd[j])
	})

	added, errs := s.applyChunked(ctx, a, toAdd, doc.Feature, false)
	result.Added = added
	if len(errs) > 0 {
		result.OK = false
		result.Errors = append(result.Errors, errs...)
	}

	metrics.SnapshotsTotal.WithLabelValues(doc.Provider, "restore").Inc()
	s.log.Info().Str("provider", doc.Provider).Str("feature", doc.Feature).
		Str("mode", mode).Int("added", result.Added).Int("removed", result.Removed).
		Int("errors", len(result.Errors)).Msg("snapshot restored")
	return result, nil
}

// applyChunked issues adds or removes in fixed chunks, collecting error
// strings instead of stopping. Returns the confirmed count.
func (s *Snapshotter) applyChunked(ctx context.Context, a providers.Adapter, items []identity.Item, feature string, remove bool) (int, []string) {
	var done int
	var errs []string
	for start := 0; start < len(items); start += restoreChunk {
		end := start + restoreChunk
		if end > len(items) {
			end = len(items)
		}
		chunk := items[start:end]

		var wr *providers.WriteResult
		var err error
		if remove {
			wr, err = a.Remove(ctx, chunk, feature, false)
		} else {
			wr, err = a.Add(ctx, chunk, feature, false)
		}
		if err != nil {
			errs = append(errs, err.Error())
			continue
		}
		done += len(wr.ConfirmedKeys)
		for _, u := range wr.Unresolved {
			errs = append(errs, fmt.Sprintf("%s: %s", u.Key, u.Reason))
		}
		if !wr.OK && wr.Error != "" {
			errs = append(errs, wr.Error)
		}
	}
	return done, errs
}

// ClearProviderFeatures empties the listed features of a provider by
// building each index and removing everything in chunks. Results are
// reported per feature; one feature failing does not stop the others.
func (s *Snapshotter) ClearProviderFeatures(ctx context.Context, provider string, features []string, instance string) (map[string]*RestoreResult, error) {
	a, err := s.adapter(provider, instance)
	if err != nil {
		return nil, err
	}
	if !a.Capabilities().CanTarget {
		return nil, fmt.Errorf("provider %s is read-only", provider)
	}

	out := map[string]*RestoreResult{}
	for _, feature := range features {
		result := &RestoreResult{OK: true}
		out[feature] = result

		idx, err := a.BuildIndex(ctx, feature)
		if err != nil {
			result.OK = false
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		removed, errs := s.applyChunked(ctx, a, sortedItems(idx), feature, true)
		result.Removed = removed
		if len(errs) > 0 {
			result.OK = false
			result.Errors = errs
		}
	}
	return out, nil
}

// sortedItems flattens an index in canonical-key order for deterministic
// batching.
func sortedItems(idx identity.Index) []identity.Item {
	keys := make([]string, 0, len(idx))
	for k := range idx {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	items := make([]identity.Item, 0, len(keys))
	for _, k := range keys {
		items = append(items, idx[k])
	}
	return items
}
