// CrossWatch - Cross-Provider Media Library Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crosswatch

package state

// RunSummary is the user-visible result of one pair-sync run, kept in a
// bounded ring per scope for UI rendering.
type RunSummary struct {
	RunID      string `json:"run_id"`
	Source     string `json:"source"`
	Target     string `json:"target"`
	Feature    string `json:"feature"`
	Direction  string `json:"direction"`
	OK         bool   `json:"ok"`
	Status     string `json:"status"`
	Added      int    `json:"added"`
	Removed    int    `json:"removed"`
	Unresolved int    `json:"unresolved"`
	DurationMS int64  `json:"duration_ms"`
	StartedAt  string `json:"started_at"`
	DryRun     bool   `json:"dry_run,omitempty"`
}

// maxRunHistory bounds the run summary ring.
const maxRunHistory = 50

// AppendRun records a run summary, dropping the oldest entries beyond the
// history bound.
func (s *Store) AppendRun(run RunSummary) error {
	var runs []RunSummary
	if _, err := s.loadJSON("runs", &runs); err != nil {
		return err
	}
	runs = append(runs, run)
	if len(runs) > maxRunHistory {
		runs = runs[len(runs)-maxRunHistory:]
	}
	return s.saveJSON("runs", runs)
}

// RecentRuns returns the recorded run summaries, newest last.
func (s *Store) RecentRuns() ([]RunSummary, error) {
	var runs []RunSummary
	if _, err := s.loadJSON("runs", &runs); err != nil {
		return nil, err
	}
	return runs, nil
}
