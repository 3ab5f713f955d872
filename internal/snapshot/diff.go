// CrossWatch - Cross-Provider Media Library Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crosswatch

package snapshot

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/goccy/go-json"

	"github.com/tomtom215/crosswatch/internal/identity"
)

// Diff defaults.
const (
	diffDefaultLimit      = 100
	diffDefaultMaxDepth   = 4
	diffDefaultMaxChanges = 25
)

// FieldChange is one leaf-level difference inside an updated item.
type FieldChange struct {
	Path string `json:"path"`
	From any    `json:"from"`
	To   any    `json:"to"`
}

// UpdatedEntry is an item present in both snapshots with differing
// content.
type UpdatedEntry struct {
	Key       string        `json:"key"`
	Changes   []FieldChange `json:"changes"`
	Truncated bool          `json:"truncated,omitempty"`
}

// DiffSummary carries full bucket counts plus truncation flags when a
// bucket was capped at the limit.
type DiffSummary struct {
	Added            int  `json:"added"`
	Removed          int  `json:"removed"`
	Updated          int  `json:"updated"`
	AddedTruncated   bool `json:"added_truncated,omitempty"`
	RemovedTruncated bool `json:"removed_truncated,omitempty"`
	UpdatedTruncated bool `json:"updated_truncated,omitempty"`
}

// DiffResult compares snapshot B against snapshot A.
type DiffResult struct {
	Added   []string       `json:"added"`
	Removed []string       `json:"removed"`
	Updated []UpdatedEntry `json:"updated"`
	Summary DiffSummary    `json:"summary"`
}

// DiffOptions tunes the diff engine; zero values take the defaults.
type DiffOptions struct {
	// Limit caps each result bucket.
	Limit int
	// MaxDepth bounds nested field comparison; deeper subtrees compare
	// as whole values.
	MaxDepth int
	// MaxChanges caps the per-item change list.
	MaxChanges int
}

func (o DiffOptions) normalized() DiffOptions {
	if o.Limit <= 0 {
		o.Limit = diffDefaultLimit
	}
	if o.MaxDepth <= 0 {
		o.MaxDepth = diffDefaultMaxDepth
	}
	if o.MaxChanges <= 0 {
		o.MaxChanges = diffDefaultMaxChanges
	}
	return o
}

// Diff compares two snapshots by canonical key. Items only in B are
// added, only in A removed; items in both with differing content carry
// per-field changes down to MaxDepth, lists compared as whole values.
func (s *Snapshotter) Diff(pathA, pathB string, opts DiffOptions) (*DiffResult, error) {
	opts = opts.normalized()

	docA, err := s.Read(pathA)
	if err != nil {
		return nil, err
	}
	docB, err := s.Read(pathB)
	if err != nil {
		return nil, err
	}
	if docA.Kind == KindBundle || docB.Kind == KindBundle {
		return nil, fmt.Errorf("diff operates on single snapshots, not bundles")
	}

	result := &DiffResult{}

	for _, key := range sortedKeys(docB.Items) {
		if _, ok := docA.Items[key]; !ok {
			result.Summary.Added++
			if len(result.Added) < opts.Limit {
				result.Added = append(result.Added, key)
			} else {
				result.Summary.AddedTruncated = true
			}
		}
	}
	for _, key := range sortedKeys(docA.Items) {
		if _, ok := docB.Items[key]; !ok {
			result.Summary.Removed++
			if len(result.Removed) < opts.Limit {
				result.Removed = append(result.Removed, key)
			} else {
				result.Summary.RemovedTruncated = true
			}
		}
	}

	for _, key := range sortedKeys(docA.Items) {
		b, ok := docB.Items[key]
		if !ok {
			continue
		}
		entry := diffItems(key, docA.Items[key], b, opts)
		if entry == nil {
			continue
		}
		result.Summary.Updated++
		if len(result.Updated) < opts.Limit {
			result.Updated = append(result.Updated, *entry)
		} else {
			result.Summary.UpdatedTruncated = true
		}
	}

	return result, nil
}

// diffItems compares two items field by field, nil when identical.
func diffItems(key string, a, b identity.Item, opts DiffOptions) *UpdatedEntry {
	am, bm := toMap(a), toMap(b)
	entry := &UpdatedEntry{Key: key}
	diffValue("", am, bm, 0, opts, entry)
	if len(entry.Changes) == 0 && !entry.Truncated {
		return nil
	}
	return entry
}

// toMap round-trips an item through JSON so the diff sees the wire
// shape, not Go struct internals.
func toMap(item identity.Item) map[string]any {
	data, err := json.Marshal(item)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	return m
}

// diffValue records leaf changes under entry, descending into nested
// maps until depth reaches MaxDepth. Slices and deeper subtrees are
// compared as whole values.
func diffValue(path string, a, b any, depth int, opts DiffOptions, entry *UpdatedEntry) {
	if entry.Truncated {
		return
	}

	am, aIsMap := a.(map[string]any)
	bm, bIsMap := b.(map[string]any)
	if aIsMap && bIsMap && depth < opts.MaxDepth {
		for _, k := range unionKeys(am, bm) {
			child := k
			if path != "" {
				child = path + "." + k
			}
			av, aok := am[k]
			bv, bok := bm[k]
			switch {
			case !aok:
				record(entry, opts, FieldChange{Path: child, From: nil, To: bv})
			case !bok:
				record(entry, opts, FieldChange{Path: child, From: av, To: nil})
			default:
				diffValue(child, av, bv, depth+1, opts, entry)
			}
		}
		return
	}

	if !reflect.DeepEqual(a, b) {
		record(entry, opts, FieldChange{Path: path, From: a, To: b})
	}
}

func record(entry *UpdatedEntry, opts DiffOptions, change FieldChange) {
	if len(entry.Changes) >= opts.MaxChanges {
		entry.Truncated = true
		return
	}
	entry.Changes = append(entry.Changes, change)
}

func unionKeys(a, b map[string]any) []string {
	seen := map[string]struct{}{}
	for k := range a {
		seen[k] = struct{}{}
	}
	for k := range b {
		seen[k] = struct{}{}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedKeys(idx identity.Index) []string {
	keys := make([]string, 0, len(idx))
	for k := range idx {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
