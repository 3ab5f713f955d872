// CrossWatch - Cross-Provider Media Library Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crosswatch

// Package main is the CrossWatch entry point.
//
// CrossWatch synchronizes watchlists, ratings, and play history between
// media services (Plex, Jellyfin, Emby, Trakt, SIMKL, AniList, MDBList,
// TMDb, Tautulli) and a local authoritative store. Sync pairs are
// declared in the configuration; a scheduler reconciles them on an
// interval and an operational HTTP endpoint exposes health, manifests,
// manual sync triggers, run history, and the snapshot lifecycle.
//
// # Configuration
//
// Configuration is loaded via koanf with layered sources (highest
// priority wins):
//   - CW_* environment variables
//   - Config file (config.json or config.yaml under the config dir,
//     or the path given by -config / CW_CONFIG_PATH)
//   - Built-in defaults
//
// # Modes
//
//	crosswatch              run the supervisor tree (scheduler + API)
//	crosswatch -once        run every enabled pair once, then exit
//	crosswatch -pair SCOPE  with -once, restrict to one pair scope
//
// # Signal Handling
//
// SIGINT and SIGTERM stop the supervisor tree: the API drains in-flight
// requests and the scheduler finishes or cancels the current cycle.
// Already-applied batches are never rolled back; the next cycle picks up
// from the persisted baseline.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/crosswatch/internal/api"
	"github.com/tomtom215/crosswatch/internal/config"
	"github.com/tomtom215/crosswatch/internal/logging"
	"github.com/tomtom215/crosswatch/internal/providers"
	"github.com/tomtom215/crosswatch/internal/reconcile"
	"github.com/tomtom215/crosswatch/internal/resolvecache"
	"github.com/tomtom215/crosswatch/internal/snapshot"
	"github.com/tomtom215/crosswatch/internal/supervisor"
)

func main() {
	var (
		configPath = flag.String("config", "", "config file path (overrides CW_CONFIG_PATH)")
		once       = flag.Bool("once", false, "run all enabled pairs once and exit")
		pairScope  = flag.String("pair", "", "with -once, restrict to one pair scope")
		dumpHealth = flag.Bool("health", false, "probe configured providers and exit")
	)
	flag.Parse()

	path := *configPath
	if path == "" {
		path = os.Getenv("CW_CONFIG_PATH")
	}

	cfg, err := config.Load(path)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		logging.Fatal().Err(err).Msg("invalid configuration")
	}

	rt := config.LoadRuntime()
	level := cfg.Logging.Level
	if rt.LogLevel != "" {
		level = rt.LogLevel
	}
	if rt.Debug {
		level = "debug"
	}
	format := cfg.Logging.Format
	if rt.LogFormat != "" {
		format = rt.LogFormat
	}
	logging.Init(logging.Config{Level: level, Format: format})

	logging.Info().
		Str("config_dir", cfg.ConfigDir).
		Int("pairs", len(cfg.Pairs)).
		Bool("capture_mode", rt.CaptureMode).
		Msg("crosswatch starting")

	resolve, err := resolvecache.Open(cfg.ResolveCacheDir())
	if err != nil {
		logging.Warn().Err(err).Msg("resolve cache unavailable, continuing without it")
		resolve = nil
	}
	defer resolve.Close()

	registry := providers.NewRegistry(cfg)
	runner := &reconcile.PairRunner{
		Registry: registry,
		Cfg:      cfg,
		Runtime:  rt,
		Resolve:  resolve,
	}
	snaps := snapshot.New(cfg, registry, resolve)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *dumpHealth {
		os.Exit(runHealth(ctx, registry, runner))
	}
	if *once {
		os.Exit(runOnce(ctx, runner, *pairScope))
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddSyncService(supervisor.NewSchedulerService(runner))
	tree.AddSyncService(supervisor.NewRetentionService(snaps, cfg.Snapshots.SweepInterval))
	tree.AddAPIService(api.NewServer(cfg, registry, runner, snaps, resolve))

	err = tree.Root().Serve(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		logging.Fatal().Err(err).Msg("supervisor tree failed")
	}
	logging.Info().Msg("crosswatch stopped")
}

// runOnce reconciles once and reports via exit code: 0 clean, 1 any
// pair failed or left unresolved items.
func runOnce(ctx context.Context, runner *reconcile.PairRunner, scope string) int {
	exit := 0

	if scope != "" {
		pair, ok := findPair(runner.Cfg.Pairs, scope)
		if !ok {
			logging.Error().Str("pair", scope).Msg("unknown pair scope")
			return 2
		}
		results, err := runner.RunPair(ctx, pair)
		if err != nil {
			logging.Error().Err(err).Str("pair", scope).Msg("pair run failed")
			return 1
		}
		return reportResults(scope, results)
	}

	for pairScope, results := range runner.RunAll(ctx) {
		if code := reportResults(pairScope, results); code != 0 {
			exit = code
		}
	}
	return exit
}

func findPair(pairs []config.PairConfig, scope string) (config.PairConfig, bool) {
	for _, p := range pairs {
		if p.Scope() == scope {
			return p, true
		}
	}
	return config.PairConfig{}, false
}

func reportResults(scope string, results []*reconcile.Result) int {
	exit := 0
	for _, res := range results {
		ev := logging.Info()
		if len(res.Unresolved) > 0 {
			ev = logging.Warn()
			exit = 1
		}
		ev.Str("pair", scope).
			Str("feature", res.Feature).
			Int("added", res.Added).
			Int("removed", res.Removed).
			Int("unresolved", len(res.Unresolved)).
			Bool("dry_run", res.DryRun).
			Msg("pair-sync finished")
	}
	return exit
}

// runHealth probes every configured provider and prints a summary line
// per provider. Exit code 1 when any configured provider is degraded.
func runHealth(ctx context.Context, registry *providers.Registry, runner *reconcile.PairRunner) int {
	deps := providers.Deps{Resolve: runner.Resolve}
	exit := 0
	for name, h := range registry.AggregateHealth(ctx, deps) {
		status := h.Status
		if h.OK {
			status = "ok"
		} else if status != providers.ReasonMissingConfig {
			exit = 1
		}
		fmt.Printf("%-12s %s\n", name, status)
	}
	return exit
}
