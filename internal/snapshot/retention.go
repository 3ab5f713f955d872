// CrossWatch - Cross-Provider Media Library Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crosswatch

package snapshot

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/tomtom215/crosswatch/internal/metrics"
)

// Sweep enforces the retention policy over the whole snapshots root:
// files older than retention_days go first, then each
// provider/instance/feature group is trimmed to max_snapshots newest by
// mtime. Empty per-day directories are removed afterwards. Returns the
// number of deleted snapshots.
func (s *Snapshotter) Sweep() (int, error) {
	metas, err := s.List()
	if err != nil {
		return 0, err
	}

	deleted := 0
	remove := func(m Meta) {
		if err := os.Remove(filepath.Join(s.root, m.Path)); err != nil {
			if !os.IsNotExist(err) {
				s.log.Warn().Err(err).Str("path", m.Path).Msg("retention delete failed")
			}
			return
		}
		deleted++
		metrics.SnapshotsTotal.WithLabelValues(m.Provider, "retention").Inc()
	}

	kept := metas[:0]
	if days := s.cfg.Snapshots.RetentionDays; days > 0 {
		cutoff := s.now().UTC().AddDate(0, 0, -days)
		for _, m := range metas {
			if m.ModTime.Before(cutoff) {
				remove(m)
				continue
			}
			kept = append(kept, m)
		}
		metas = kept
	}

	if max := s.cfg.Snapshots.MaxSnapshots; max > 0 {
		groups := map[string][]Meta{}
		for _, m := range metas {
			key := m.Provider + "|" + m.Instance + "|" + m.Feature
			groups[key] = append(groups[key], m)
		}
		for _, group := range groups {
			if len(group) <= max {
				continue
			}
			// List() is newest-first; re-sort oldest-first for the cull.
			sort.Slice(group, func(i, j int) bool { return group[i].ModTime.Before(group[j].ModTime) })
			for _, m := range group[:len(group)-max] {
				remove(m)
			}
		}
	}

	s.pruneEmptyDays()

	if deleted > 0 {
		s.log.Info().Int("deleted", deleted).Msg("snapshot retention sweep")
	}
	return deleted, nil
}

// pruneEmptyDays drops per-day directories emptied by the sweep.
func (s *Snapshotter) pruneEmptyDays() {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := time.Parse("2006-01-02", e.Name()); err != nil {
			continue
		}
		dir := filepath.Join(s.root, e.Name())
		children, err := os.ReadDir(dir)
		if err != nil || len(children) > 0 {
			continue
		}
		_ = os.Remove(dir)
	}
}
