// CrossWatch - Cross-Provider Media Library Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crosswatch

package providers

import (
	"context"
	"fmt"
	"sort"

	"github.com/tomtom215/crosswatch/internal/config"
)

// factory builds one adapter instance from a resolved config view.
type factory func(view config.View, deps Deps) Adapter

// factories is the static provider table. Registration is compile-time
// only; there is no dynamic discovery.
var factories = map[string]factory{
	"plex":       func(v config.View, d Deps) Adapter { return NewPlex(v.Plex(), d) },
	"jellyfin":   func(v config.View, d Deps) Adapter { return NewJellyfin(v.Jellyfin(), d) },
	"emby":       func(v config.View, d Deps) Adapter { return NewEmby(v.Emby(), d) },
	"trakt":      func(v config.View, d Deps) Adapter { return NewTrakt(v.Trakt(), d) },
	"simkl":      func(v config.View, d Deps) Adapter { return NewSIMKL(v.SIMKL(), d) },
	"mdblist":    func(v config.View, d Deps) Adapter { return NewMDBList(v.MDBList(), d) },
	"tmdb":       func(v config.View, d Deps) Adapter { return NewTMDB(v.TMDB(), d) },
	"anilist":    func(v config.View, d Deps) Adapter { return NewAniList(v.AniList(), d) },
	"tautulli":   func(v config.View, d Deps) Adapter { return NewTautulli(v.Tautulli(), d) },
	"crosswatch": func(v config.View, d Deps) Adapter { return NewLocal(v.Local(), d) },
}

// Known lists the registered provider keys in stable order.
func Known() []string {
	keys := make([]string, 0, len(factories))
	for k := range factories {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// IsKnown reports whether a provider key is registered.
func IsKnown(provider string) bool {
	_, ok := factories[provider]
	return ok
}

// Registry builds adapters against the loaded configuration. Adapters are
// constructed fresh per request so a config reload is always reflected;
// nothing here caches across configuration changes.
type Registry struct {
	cfg *config.Config
}

// NewRegistry wraps a loaded configuration.
func NewRegistry(cfg *config.Config) *Registry {
	return &Registry{cfg: cfg}
}

// Build constructs the adapter for provider at the named instance profile.
func (r *Registry) Build(provider, instance string, deps Deps) (Adapter, error) {
	f, ok := factories[provider]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
	view := config.BuildView(r.cfg, map[string]string{provider: instance})
	deps.Instance = instance
	return f(view, deps), nil
}

// Instances lists the instance profiles configured for a provider; the
// default profile is always first.
func (r *Registry) Instances(provider string) []string {
	names := []string{config.DefaultInstance}

	var extra map[string]struct{}
	collect := func(keys []string) {
		if extra == nil {
			extra = map[string]struct{}{}
		}
		for _, k := range keys {
			extra[k] = struct{}{}
		}
	}

	switch provider {
	case "plex":
		collect(mapKeys(r.cfg.Plex.Instances))
	case "jellyfin":
		collect(mapKeys(r.cfg.Jellyfin.Instances))
	case "emby":
		collect(mapKeys(r.cfg.Emby.Instances))
	case "trakt":
		collect(mapKeys(r.cfg.Trakt.Instances))
	case "simkl":
		collect(mapKeys(r.cfg.SIMKL.Instances))
	case "mdblist":
		collect(mapKeys(r.cfg.MDBList.Instances))
	case "tmdb":
		collect(mapKeys(r.cfg.TMDB.Instances))
	case "anilist":
		collect(mapKeys(r.cfg.AniList.Instances))
	case "tautulli":
		collect(mapKeys(r.cfg.Tautulli.Instances))
	case "crosswatch":
		collect(mapKeys(r.cfg.Local.Instances))
	}

	sorted := make([]string, 0, len(extra))
	for k := range extra {
		if k != config.DefaultInstance {
			sorted = append(sorted, k)
		}
	}
	sort.Strings(sorted)
	return append(names, sorted...)
}

func mapKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

// Manifests returns the manifest of every registered provider at its
// default instance.
func (r *Registry) Manifests(deps Deps) map[string]Manifest {
	out := make(map[string]Manifest, len(factories))
	for _, key := range Known() {
		a, err := r.Build(key, config.DefaultInstance, deps)
		if err != nil {
			continue
		}
		out[key] = a.Manifest()
	}
	return out
}

// AggregateHealth probes every registered provider at its default
// instance. Probes run sequentially; they are cheap and sequential
// keeps vendor rate limits calm.
func (r *Registry) AggregateHealth(ctx context.Context, deps Deps) map[string]Health {
	out := map[string]Health{}
	for _, key := range Known() {
		a, err := r.Build(key, config.DefaultInstance, deps)
		if err != nil {
			continue
		}
		if !a.IsConfigured() {
			out[key] = Health{Status: ReasonMissingConfig, Features: a.Features()}
			continue
		}
		out[key] = a.Health(ctx)
	}
	return out
}
