// CrossWatch - Cross-Provider Media Library Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crosswatch

/*
reconcile.go - Pair Reconciler

One Task reconciles a single (source, target, feature) triple:

 1. Build both indexes concurrently.
 2. Diff against the stored baseline:
    to_add    = src - dst          (minus suppressed re-adds)
    to_remove = baseline ∩ dst - src
 3. Enrich each planned item with the richer ID set from either side.
 4. Apply through the target adapter; per-item failures accumulate,
    rate-limit exhaustion aborts only the remaining batches.
 5. Persist the new baseline and a run summary.

Mirror runs apply src onto dst only. Two-way runs repeat the plan with
roles swapped; keys present on both sides with differing payloads
resolve last-writer-wins by rated_at/watched_at (the newer payload is
pushed to the stale side), and without timestamps neither side is
touched. Removals ride on observed deletions;
sources that cannot observe deletions never cause removals unless the
pair explicitly allows baseline deletes.
*/

//nolint:staticcheck // File documentation, not package doc
package reconcile

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/crosswatch/internal/config"
	"github.com/tomtom215/crosswatch/internal/identity"
	"github.com/tomtom215/crosswatch/internal/logging"
	"github.com/tomtom215/crosswatch/internal/metrics"
	"github.com/tomtom215/crosswatch/internal/providers"
	"github.com/tomtom215/crosswatch/internal/state"
)

// Task reconciles one feature of one pair.
type Task struct {
	SourceName string
	TargetName string
	Source     providers.Adapter
	Target     providers.Adapter
	Feature    string
	Pair       config.PairConfig

	// Store persists baseline/shadow/run state; nil disables persistence.
	Store *state.Store
	// Progress receives throttled ticks; nil drops them.
	Progress *Emitter

	log zerolog.Logger
}

// Result is the outcome of one reconciliation run.
type Result struct {
	RunID      string                 `json:"run_id"`
	Feature    string                 `json:"feature"`
	Direction  string                 `json:"direction"`
	DryRun     bool                   `json:"dry_run,omitempty"`
	PlanAdd    int                    `json:"plan_add"`
	PlanRem    int                    `json:"plan_remove"`
	Added      int                    `json:"added"`
	Removed    int                    `json:"removed"`
	Unresolved []providers.Unresolved `json:"unresolved,omitempty"`
	Duration   time.Duration          `json:"-"`
}

// Run executes the reconciliation.
func (t *Task) Run(ctx context.Context) (*Result, error) {
	t.log = logging.With().
		Str("component", "reconcile").
		Str("source", t.SourceName).
		Str("target", t.TargetName).
		Str("feature", t.Feature).
		Logger()

	start := time.Now()
	direction := t.Pair.Direction
	if direction == "" {
		direction = config.DirectionMirror
	}

	result := &Result{
		RunID:     uuid.NewString(),
		Feature:   t.Feature,
		Direction: direction,
		DryRun:    t.Pair.DryRun,
	}

	t.Progress.Force(Event{Stage: "build_index", Dst: t.TargetName, Feature: t.Feature})

	srcIdx, dstIdx, err := t.buildIndexes(ctx)
	if err != nil {
		metrics.SyncRunsTotal.WithLabelValues(t.SourceName, t.TargetName, t.Feature, "error").Inc()
		return nil, err
	}
	metrics.IndexSize.WithLabelValues(t.SourceName, t.Feature).Set(float64(len(srcIdx)))
	metrics.IndexSize.WithLabelValues(t.TargetName, t.Feature).Set(float64(len(dstIdx)))

	baseline, err := t.loadBaseline()
	if err != nil {
		return nil, err
	}
	ignored := t.ignoredKeys()

	toAdd, toRemove := t.plan(srcIdx, dstIdx, baseline, ignored, t.Source.Capabilities())

	var pushRev []identity.Item
	if direction == config.DirectionTwoWay {
		var pushFwd []identity.Item
		pushFwd, pushRev = payloadConflicts(srcIdx, dstIdx)
		toAdd = append(toAdd, pushFwd...)
		sortItems(toAdd)
	}
	result.PlanAdd, result.PlanRem = len(toAdd), len(toRemove)

	t.log.Info().
		Int("src_items", len(srcIdx)).
		Int("dst_items", len(dstIdx)).
		Int("to_add", len(toAdd)).
		Int("to_remove", len(toRemove)).
		Str("direction", direction).
		Msg("reconciliation plan")

	if err := t.apply(ctx, t.Target, t.TargetName, toAdd, toRemove, result); err != nil {
		return nil, err
	}

	newBaseline := srcIdx

	if direction == config.DirectionTwoWay {
		revAdd, revRemove := t.plan(dstIdx, srcIdx, baseline, ignored, t.Target.Capabilities())
		revAdd = append(revAdd, pushRev...)
		sortItems(revAdd)
		result.PlanAdd += len(revAdd)
		result.PlanRem += len(revRemove)
		if err := t.apply(ctx, t.Source, t.SourceName, revAdd, revRemove, result); err != nil {
			return nil, err
		}
		newBaseline = unionIndex(srcIdx, dstIdx)
	}

	if !t.Pair.DryRun {
		if err := t.saveBaseline(newBaseline); err != nil {
			return nil, err
		}
	}

	result.Duration = time.Since(start)
	t.finish(result)
	return result, nil
}

// buildIndexes fetches both present sets concurrently.
func (t *Task) buildIndexes(ctx context.Context) (identity.Index, identity.Index, error) {
	var srcIdx, dstIdx identity.Index

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		idx, err := t.Source.BuildIndex(gctx, t.Feature)
		if err != nil {
			return fmt.Errorf("source index (%s): %w", t.SourceName, err)
		}
		srcIdx = idx
		return nil
	})
	g.Go(func() error {
		idx, err := t.Target.BuildIndex(gctx, t.Feature)
		if err != nil {
			return fmt.Errorf("target index (%s): %w", t.TargetName, err)
		}
		dstIdx = idx
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return srcIdx, dstIdx, nil
}

// plan computes the add and remove sets for applying src onto dst.
// Removals require the source to observe deletions (or the pair to allow
// baseline deletes). Ignored keys are never re-added.
func (t *Task) plan(src, dst, baseline identity.Index, ignored map[string]bool, srcCaps providers.Capabilities) (toAdd, toRemove []identity.Item) {
	for key, item := range src {
		if _, present := dst[key]; present {
			continue
		}
		if ignored[key] {
			continue
		}
		if t.Pair.SuppressReadds {
			// In baseline but gone from dst: the user removed it there.
			if _, wasKnown := baseline[key]; wasKnown {
				continue
			}
		}
		toAdd = append(toAdd, enrich(item, dst, baseline))
	}

	if srcCaps.ObservedDeletes || t.Pair.AllowBaselineDeletes {
		for key := range baseline {
			if _, inSrc := src[key]; inSrc {
				continue
			}
			dstItem, inDst := dst[key]
			if !inDst {
				continue
			}
			toRemove = append(toRemove, dstItem)
		}
	}

	sortItems(toAdd)
	sortItems(toRemove)
	return toAdd, toRemove
}

// enrich merges the richer ID set from any index that knows the item.
func enrich(item identity.Item, others ...identity.Index) identity.Item {
	key := identity.CanonicalKey(item)
	for _, idx := range others {
		if other, ok := idx[key]; ok {
			item.IDs = identity.MergeIDs(identity.IDsFrom(item), identity.IDsFrom(other))
		}
	}
	return item
}

// sortItems orders a plan deterministically by canonical key.
func sortItems(items []identity.Item) {
	sort.Slice(items, func(i, j int) bool {
		return identity.CanonicalKey(items[i]) < identity.CanonicalKey(items[j])
	})
}

// payloadConflicts finds keys present on both sides whose feature
// payloads disagree and routes the newer payload (by rated_at, else
// watched_at) to the stale side. Keys where neither side carries a
// timestamp are left alone; there is nothing to arbitrate with.
func payloadConflicts(srcIdx, dstIdx identity.Index) (pushFwd, pushRev []identity.Item) {
	for key, s := range srcIdx {
		d, ok := dstIdx[key]
		if !ok {
			continue
		}
		if s.Rating == d.Rating && s.RatedAt == d.RatedAt && s.WatchedAt == d.WatchedAt {
			continue
		}

		srcTS, dstTS := payloadTime(s), payloadTime(d)
		switch {
		case srcTS == "" && dstTS == "":
		case srcTS >= dstTS:
			pushFwd = append(pushFwd, s)
		default:
			pushRev = append(pushRev, d)
		}
	}
	sortItems(pushFwd)
	sortItems(pushRev)
	return pushFwd, pushRev
}

// payloadTime returns the item's conflict timestamp (rated_at wins over
// watched_at). RFC3339 strings compare lexically.
func payloadTime(item identity.Item) string {
	if item.RatedAt != "" {
		return item.RatedAt
	}
	return item.WatchedAt
}

// apply pushes the planned writes through an adapter. Rate-limit
// exhaustion stops the remaining work against this adapter; everything
// already confirmed stays committed.
func (t *Task) apply(ctx context.Context, target providers.Adapter, targetName string, toAdd, toRemove []identity.Item, result *Result) error {
	total := len(toAdd) + len(toRemove)
	done := 0

	if len(toAdd) > 0 {
		t.Progress.Force(Event{Stage: "apply:add", Dst: targetName, Feature: t.Feature, Total: total})
		wr, err := target.Add(ctx, toAdd, t.Feature, t.Pair.DryRun)
		if err != nil {
			return fmt.Errorf("apply add (%s): %w", targetName, err)
		}
		done += wr.Count
		result.Added += wr.Count
		result.Unresolved = append(result.Unresolved, wr.Unresolved...)
		metrics.ItemsApplied.WithLabelValues(targetName, t.Feature, "add").Add(float64(wr.Count))
		t.Progress.Tick(Event{Stage: "apply:add", Dst: targetName, Feature: t.Feature, Done: done, Total: total, OK: wr.OK})

		if !wr.OK && hasRateLimit(wr.Unresolved) {
			// Remaining removals retry next cycle.
			t.markRemaining(toRemove, result)
			t.log.Warn().Str("target", targetName).Msg("rate limit exhausted, aborting remaining batches")
			return nil
		}
	}

	if len(toRemove) > 0 {
		t.Progress.Force(Event{Stage: "apply:remove", Dst: targetName, Feature: t.Feature, Done: done, Total: total})
		wr, err := target.Remove(ctx, toRemove, t.Feature, t.Pair.DryRun)
		if err != nil {
			return fmt.Errorf("apply remove (%s): %w", targetName, err)
		}
		done += wr.Count
		result.Removed += wr.Count
		result.Unresolved = append(result.Unresolved, wr.Unresolved...)
		metrics.ItemsApplied.WithLabelValues(targetName, t.Feature, "remove").Add(float64(wr.Count))
	}

	t.Progress.Final(Event{Stage: "apply", Dst: targetName, Feature: t.Feature, Done: done, Total: total, OK: true})
	return nil
}

func hasRateLimit(unresolved []providers.Unresolved) bool {
	for _, u := range unresolved {
		if u.Reason == providers.ReasonRateLimited {
			return true
		}
	}
	return false
}

// markRemaining records items never attempted due to an aborted run.
func (t *Task) markRemaining(items []identity.Item, result *Result) {
	for _, item := range items {
		result.Unresolved = append(result.Unresolved, providers.Unresolved{
			Key:    identity.CanonicalKey(item),
			Reason: providers.ReasonRateLimited,
			Hint:   "http:429",
		})
	}
}

func (t *Task) loadBaseline() (identity.Index, error) {
	if t.Store == nil {
		return identity.Index{}, nil
	}
	return t.Store.LoadBaseline(t.Feature)
}

func (t *Task) saveBaseline(idx identity.Index) error {
	if t.Store == nil {
		return nil
	}
	return t.Store.SaveBaseline(t.Feature, idx, time.Now().UTC().Format(time.RFC3339))
}

// ignoredKeys collects permanently ignored shadow keys for this feature.
func (t *Task) ignoredKeys() map[string]bool {
	out := map[string]bool{}
	if t.Store == nil {
		return out
	}
	sh, err := t.Store.LoadShadow(t.Feature)
	if err != nil {
		return out
	}
	metrics.ShadowEntries.WithLabelValues(t.Store.Scope(), t.Feature).Set(float64(len(sh.Items)))
	for key, entry := range sh.Items {
		if entry.Ignored {
			out[key] = true
		}
	}
	return out
}

// unionIndex merges two indexes, preferring a's payloads and combining IDs.
func unionIndex(a, b identity.Index) identity.Index {
	out := a.Clone()
	for _, item := range b {
		out.Merge(item)
	}
	return out
}

// finish records metrics and the run summary.
func (t *Task) finish(result *Result) {
	status := "ok"
	if len(result.Unresolved) > 0 {
		status = "partial"
	}
	metrics.SyncRunsTotal.WithLabelValues(t.SourceName, t.TargetName, t.Feature, status).Inc()
	metrics.SyncDuration.WithLabelValues(t.SourceName, t.TargetName, t.Feature).Observe(result.Duration.Seconds())
	byReason := map[string]int{}
	for _, u := range result.Unresolved {
		byReason[u.Reason]++
	}
	for reason, n := range byReason {
		metrics.ItemsUnresolved.WithLabelValues(t.TargetName, t.Feature, reason).Add(float64(n))
	}

	t.log.Info().
		Str("run_id", result.RunID).
		Int("added", result.Added).
		Int("removed", result.Removed).
		Int("unresolved", len(result.Unresolved)).
		Dur("duration", result.Duration).
		Bool("dry_run", result.DryRun).
		Msg("reconciliation finished")

	if t.Store != nil {
		_ = t.Store.AppendRun(state.RunSummary{
			RunID:      result.RunID,
			Source:     t.SourceName,
			Target:     t.TargetName,
			Feature:    t.Feature,
			Direction:  result.Direction,
			OK:         len(result.Unresolved) == 0,
			Status:     status,
			Added:      result.Added,
			Removed:    result.Removed,
			Unresolved: len(result.Unresolved),
			DurationMS: result.Duration.Milliseconds(),
			StartedAt:  time.Now().UTC().Add(-result.Duration).Format(time.RFC3339),
			DryRun:     result.DryRun,
		})
	}
}
