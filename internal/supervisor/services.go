// CrossWatch - Cross-Provider Media Library Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crosswatch

package supervisor

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/crosswatch/internal/logging"
	"github.com/tomtom215/crosswatch/internal/reconcile"
	"github.com/tomtom215/crosswatch/internal/snapshot"
)

// SchedulerService runs the pair reconciliation loop on the configured
// interval. The first cycle starts one interval after boot so operators
// can reach the API before any writes happen.
type SchedulerService struct {
	Runner *reconcile.PairRunner

	log zerolog.Logger
}

// NewSchedulerService wraps a pair runner.
func NewSchedulerService(runner *reconcile.PairRunner) *SchedulerService {
	return &SchedulerService{
		Runner: runner,
		log:    logging.With().Str("component", "scheduler").Logger(),
	}
}

// Serve implements suture.Service.
func (s *SchedulerService) Serve(ctx context.Context) error {
	interval := s.Runner.NextInterval()
	s.log.Info().Dur("interval", interval).Msg("scheduler started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			started := time.Now()
			results := s.Runner.RunAll(ctx)
			s.log.Info().
				Int("pairs", len(results)).
				Dur("took", time.Since(started)).
				Msg("scheduled sync cycle finished")
		}
	}
}

func (s *SchedulerService) String() string {
	return "sync-scheduler"
}

// RetentionService sweeps the snapshot directory on a fixed cadence.
type RetentionService struct {
	Snaps    *snapshot.Snapshotter
	Interval time.Duration

	log zerolog.Logger
}

// NewRetentionService wraps the snapshotter's retention sweep. A zero
// interval defaults to hourly.
func NewRetentionService(snaps *snapshot.Snapshotter, interval time.Duration) *RetentionService {
	if interval <= 0 {
		interval = time.Hour
	}
	return &RetentionService{
		Snaps:    snaps,
		Interval: interval,
		log:      logging.With().Str("component", "retention").Logger(),
	}
}

// Serve implements suture.Service.
func (s *RetentionService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			deleted, err := s.Snaps.Sweep()
			if err != nil {
				s.log.Warn().Err(err).Msg("retention sweep failed")
				continue
			}
			if deleted > 0 {
				s.log.Info().Int("deleted", deleted).Msg("retention sweep")
			}
		}
	}
}

func (s *RetentionService) String() string {
	return "snapshot-retention"
}
