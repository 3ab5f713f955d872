// CrossWatch - Cross-Provider Media Library Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crosswatch

package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/crosswatch/internal/config"
	"github.com/tomtom215/crosswatch/internal/logging"
	"github.com/tomtom215/crosswatch/internal/providers"
	"github.com/tomtom215/crosswatch/internal/resolvecache"
	"github.com/tomtom215/crosswatch/internal/state"
)

// PairRunner executes every enabled feature of configured pairs. It owns
// the per-pair state store wiring; adapters and stores are built fresh
// per run so configuration reloads take effect.
type PairRunner struct {
	Registry *providers.Registry
	Cfg      *config.Config
	Runtime  config.Runtime
	Resolve  *resolvecache.Cache
	Progress *Emitter
}

// RunPair reconciles all enabled features of one pair sequentially.
// Feature-level failures are collected, not fatal to later features.
func (r *PairRunner) RunPair(ctx context.Context, pair config.PairConfig) ([]*Result, error) {
	if !providers.IsKnown(pair.Source) || !providers.IsKnown(pair.Target) {
		return nil, fmt.Errorf("pair %s: unknown provider", pair.Scope())
	}

	scope := r.Runtime.PairScope
	if scope == "" {
		scope = pair.Scope()
	}
	store, err := state.NewStore(r.Cfg.StateDir(), scope, r.Runtime.CaptureMode)
	if err != nil {
		return nil, err
	}
	deps := providers.Deps{Store: store, Resolve: r.Resolve}

	src, err := r.Registry.Build(pair.Source, pair.SourceInstance, deps)
	if err != nil {
		return nil, err
	}
	dst, err := r.Registry.Build(pair.Target, pair.TargetInstance, deps)
	if err != nil {
		return nil, err
	}
	if !dst.Capabilities().CanTarget {
		return nil, fmt.Errorf("pair %s: target %s is read-only", pair.Scope(), pair.Target)
	}

	log := logging.With().Str("component", "runner").Str("pair", pair.Scope()).Logger()

	var results []*Result
	var firstErr error
	for _, feature := range providers.Features {
		if !pair.Features[feature] {
			continue
		}
		if !src.Features()[feature] || !dst.Features()[feature] {
			log.Debug().Str("feature", feature).Msg("feature not supported by both ends, skipping")
			continue
		}

		runCtx := ctx
		var cancel context.CancelFunc
		if d := r.Cfg.Sync.Deadline; d > 0 {
			runCtx, cancel = context.WithTimeout(ctx, d)
		}

		task := &Task{
			SourceName: pair.Source,
			TargetName: pair.Target,
			Source:     src,
			Target:     dst,
			Feature:    feature,
			Pair:       pair,
			Store:      store,
			Progress:   r.Progress,
		}
		res, err := task.Run(runCtx)
		if cancel != nil {
			cancel()
		}
		if err != nil {
			log.Error().Err(err).Str("feature", feature).Msg("feature reconciliation failed")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		results = append(results, res)
	}

	if len(results) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return results, nil
}

// RunAll reconciles every enabled pair in declaration order.
func (r *PairRunner) RunAll(ctx context.Context) map[string][]*Result {
	out := map[string][]*Result{}
	for _, pair := range r.Cfg.Pairs {
		if !pair.Enabled {
			continue
		}
		results, err := r.RunPair(ctx, pair)
		if err != nil {
			logging.Error().Err(err).Str("pair", pair.Scope()).Msg("pair run failed")
			continue
		}
		out[pair.Scope()] = results

		select {
		case <-ctx.Done():
			return out
		default:
		}
	}
	return out
}

// NextInterval returns the scheduler period with a sane floor.
func (r *PairRunner) NextInterval() time.Duration {
	if r.Cfg.Sync.Interval > 0 {
		return r.Cfg.Sync.Interval
	}
	return time.Hour
}
