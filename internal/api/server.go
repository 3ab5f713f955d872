// CrossWatch - Cross-Provider Media Library Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crosswatch

/*
server.go - Operational HTTP Endpoint

The API surface is operational, not a public product API: health,
manifests, sync triggers, run history, and the snapshot lifecycle. It
binds to server.host:server.port and shuts down gracefully when the
supervisor cancels its context.
*/

//nolint:staticcheck // File documentation, not package doc
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/tomtom215/crosswatch/internal/config"
	"github.com/tomtom215/crosswatch/internal/logging"
	"github.com/tomtom215/crosswatch/internal/providers"
	"github.com/tomtom215/crosswatch/internal/reconcile"
	"github.com/tomtom215/crosswatch/internal/resolvecache"
	"github.com/tomtom215/crosswatch/internal/snapshot"
	"github.com/tomtom215/crosswatch/internal/state"
)

// rate limit for the operational surface; generous, it only guards
// against runaway dashboards.
const (
	rateLimitRequests = 120
	rateLimitWindow   = time.Minute
)

// Server is the operational HTTP endpoint.
type Server struct {
	cfg      *config.Config
	registry *providers.Registry
	runner   *reconcile.PairRunner
	snaps    *snapshot.Snapshotter
	resolve  *resolvecache.Cache
	log      zerolog.Logger
}

// NewServer wires the endpoint against the shared components.
func NewServer(cfg *config.Config, registry *providers.Registry, runner *reconcile.PairRunner, snaps *snapshot.Snapshotter, resolve *resolvecache.Cache) *Server {
	return &Server{
		cfg:      cfg,
		registry: registry,
		runner:   runner,
		snaps:    snaps,
		resolve:  resolve,
		log:      logging.With().Str("component", "api").Logger(),
	}
}

// deps builds the adapter dependencies for stateless queries (manifests,
// health). The disabled "default" scope keeps these probes away from any
// pair's persistent state.
func (s *Server) deps() providers.Deps {
	store, err := state.NewStore(s.cfg.StateDir(), "default", false)
	if err != nil {
		store = nil
	}
	return providers.Deps{Store: store, Resolve: s.resolve}
}

// Router assembles the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(httprate.LimitByIP(rateLimitRequests, rateLimitWindow))

	r.Get("/healthz", s.handleLiveness)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/providers", s.handleManifests)
		r.Get("/providers/health", s.handleHealth)
		r.Get("/providers/{provider}/instances", s.handleInstances)
		r.Post("/providers/{provider}/clear", s.handleClearFeatures)

		r.Post("/sync", s.handleSync)
		r.Get("/runs", s.handleRuns)

		r.Route("/snapshots", func(r chi.Router) {
			r.Get("/", s.handleSnapshotList)
			r.Post("/", s.handleSnapshotCreate)
			r.Get("/read", s.handleSnapshotRead)
			r.Post("/restore", s.handleSnapshotRestore)
			r.Post("/diff", s.handleSnapshotDiff)
			r.Delete("/", s.handleSnapshotDelete)
		})
	})

	return r
}

// Serve runs the HTTP server until ctx is cancelled; it satisfies the
// supervisor's service contract.
func (s *Server) Serve(ctx context.Context) error {
	host := s.cfg.Server.Host
	port := s.cfg.Server.Port
	if port == 0 {
		port = 8787
	}
	timeout := s.cfg.Server.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", host, port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       timeout,
		WriteTimeout:      timeout,
		IdleTimeout:       2 * timeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", srv.Addr).Msg("api listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// String implements fmt.Stringer for supervisor logs.
func (s *Server) String() string {
	return "api-server"
}
