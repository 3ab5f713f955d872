// CrossWatch - Cross-Provider Media Library Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crosswatch

package state

import (
	"time"

	"github.com/tomtom215/crosswatch/internal/identity"
)

// ShadowEntry is one frozen or ignored item in per-pair shadow state.
// Entries carry provenance for debugging; Extra holds provider-private
// mappings (e.g. anilist id + list entry id) opaque to everything else.
type ShadowEntry struct {
	Reasons      []string          `json:"reasons,omitempty"`
	SourceKey    string            `json:"source_key,omitempty"`
	SourceIDs    map[string]string `json:"source_ids,omitempty"`
	Title        string            `json:"title,omitempty"`
	Year         int               `json:"year,omitempty"`
	Attempts     int               `json:"attempts"`
	FirstSeen    string            `json:"first_seen"`
	LastAttempt  string            `json:"last_attempt"`
	Ignored      bool              `json:"ignored,omitempty"`
	IgnoreReason string            `json:"ignore_reason,omitempty"`
	Extra        map[string]any    `json:"extra,omitempty"`
}

// Shadow is the keyed set of shadow entries for one pair+feature.
type Shadow struct {
	Items map[string]ShadowEntry `json:"items"`
}

// NewShadow returns an empty shadow set.
func NewShadow() *Shadow {
	return &Shadow{Items: map[string]ShadowEntry{}}
}

// Freeze records (or re-records) an unresolved item under key. Repeat
// freezes increment Attempts and append previously unseen reasons.
func (sh *Shadow) Freeze(key, reason string, item identity.Item) {
	now := time.Now().UTC().Format(time.RFC3339)
	entry, ok := sh.Items[key]
	if !ok {
		entry = ShadowEntry{
			SourceKey: key,
			SourceIDs: identity.IDsFrom(item),
			Title:     item.Title,
			Year:      item.Year,
			FirstSeen: now,
		}
	}
	entry.Attempts++
	entry.LastAttempt = now
	if !containsString(entry.Reasons, reason) {
		entry.Reasons = append(entry.Reasons, reason)
	}
	sh.Items[key] = entry
}

// Ignore permanently marks key as ignored with a reason. Ignored entries
// survive index rebuilds and are never retried within the pair scope.
func (sh *Shadow) Ignore(key, reason string, item identity.Item) {
	sh.Freeze(key, reason, item)
	entry := sh.Items[key]
	entry.Ignored = true
	entry.IgnoreReason = reason
	sh.Items[key] = entry
}

// Resolve drops a non-ignored entry after a later operation on the key
// succeeded. Ignored entries stay.
func (sh *Shadow) Resolve(key string) {
	entry, ok := sh.Items[key]
	if !ok || entry.Ignored {
		return
	}
	delete(sh.Items, key)
}

// IsFrozen reports whether key is currently frozen or ignored.
func (sh *Shadow) IsFrozen(key string) bool {
	_, ok := sh.Items[key]
	return ok
}

// IsIgnored reports whether key is permanently ignored.
func (sh *Shadow) IsIgnored(key string) bool {
	entry, ok := sh.Items[key]
	return ok && entry.Ignored
}

// SetExtra attaches provider-private data to an entry, creating the entry
// when absent (used for reverse lookup maps like anilist list_entry_id).
func (sh *Shadow) SetExtra(key string, extra map[string]any) {
	entry, ok := sh.Items[key]
	if !ok {
		now := time.Now().UTC().Format(time.RFC3339)
		entry = ShadowEntry{SourceKey: key, FirstSeen: now, LastAttempt: now}
	}
	if entry.Extra == nil {
		entry.Extra = map[string]any{}
	}
	for k, v := range extra {
		entry.Extra[k] = v
	}
	sh.Items[key] = entry
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// LoadShadow returns the shadow set for a feature, empty when absent.
func (s *Store) LoadShadow(feature string) (*Shadow, error) {
	sh := NewShadow()
	if _, err := s.loadJSON("shadow."+feature, sh); err != nil {
		return nil, err
	}
	if sh.Items == nil {
		sh.Items = map[string]ShadowEntry{}
	}
	return sh, nil
}

// SaveShadow atomically persists the shadow set for a feature.
func (s *Store) SaveShadow(feature string, sh *Shadow) error {
	return s.saveJSON("shadow."+feature, sh)
}
