// CrossWatch - Cross-Provider Media Library Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crosswatch

package config

// DefaultInstance names the implicit credential profile of every provider.
const DefaultInstance = "default"

// View is the immutable per-task configuration slice: for each provider the
// concrete instance profile selected for this pair-sync. Adapters read from
// a View and never from the shared Config.
type View struct {
	cfg       *Config
	instances map[string]string
}

// BuildView resolves instance selections against cfg. Missing selections
// fall back to the default profile.
func BuildView(cfg *Config, instances map[string]string) View {
	sel := make(map[string]string, len(instances))
	for prov, inst := range instances {
		sel[prov] = inst
	}
	return View{cfg: cfg, instances: sel}
}

// instance returns the selected instance name for a provider.
func (v View) instance(provider string) string {
	if inst, ok := v.instances[provider]; ok && inst != "" {
		return inst
	}
	return DefaultInstance
}

// Instance exposes the selected instance name (for scope construction).
func (v View) Instance(provider string) string {
	return v.instance(provider)
}

// Plex resolves the Plex profile for this view.
func (v View) Plex() PlexConfig {
	cfg := v.cfg.Plex
	if inst := v.instance("plex"); inst != DefaultInstance {
		if p, ok := cfg.Instances[inst]; ok {
			p.Instances = nil
			return p
		}
	}
	cfg.Instances = nil
	return cfg
}

// Jellyfin resolves the Jellyfin profile for this view.
func (v View) Jellyfin() MediaBrowserConfig {
	return resolveMediaBrowser(v.cfg.Jellyfin, v.instance("jellyfin"))
}

// Emby resolves the Emby profile for this view.
func (v View) Emby() MediaBrowserConfig {
	return resolveMediaBrowser(v.cfg.Emby, v.instance("emby"))
}

func resolveMediaBrowser(cfg MediaBrowserConfig, inst string) MediaBrowserConfig {
	if inst != DefaultInstance {
		if p, ok := cfg.Instances[inst]; ok {
			p.Instances = nil
			return p
		}
	}
	cfg.Instances = nil
	return cfg
}

// Trakt resolves the Trakt profile for this view.
func (v View) Trakt() TraktConfig {
	cfg := v.cfg.Trakt
	if inst := v.instance("trakt"); inst != DefaultInstance {
		if p, ok := cfg.Instances[inst]; ok {
			p.Instances = nil
			return p
		}
	}
	cfg.Instances = nil
	return cfg
}

// SIMKL resolves the SIMKL profile for this view.
func (v View) SIMKL() SIMKLConfig {
	cfg := v.cfg.SIMKL
	if inst := v.instance("simkl"); inst != DefaultInstance {
		if p, ok := cfg.Instances[inst]; ok {
			p.Instances = nil
			return p
		}
	}
	cfg.Instances = nil
	return cfg
}

// MDBList resolves the MDBList profile for this view.
func (v View) MDBList() MDBListConfig {
	cfg := v.cfg.MDBList
	if inst := v.instance("mdblist"); inst != DefaultInstance {
		if p, ok := cfg.Instances[inst]; ok {
			p.Instances = nil
			return p
		}
	}
	cfg.Instances = nil
	return cfg
}

// TMDB resolves the TMDb profile for this view.
func (v View) TMDB() TMDBConfig {
	cfg := v.cfg.TMDB
	if inst := v.instance("tmdb"); inst != DefaultInstance {
		if p, ok := cfg.Instances[inst]; ok {
			p.Instances = nil
			return p
		}
	}
	cfg.Instances = nil
	return cfg
}

// AniList resolves the AniList profile for this view.
func (v View) AniList() AniListConfig {
	cfg := v.cfg.AniList
	if inst := v.instance("anilist"); inst != DefaultInstance {
		if p, ok := cfg.Instances[inst]; ok {
			p.Instances = nil
			return p
		}
	}
	cfg.Instances = nil
	return cfg
}

// Tautulli resolves the Tautulli profile for this view.
func (v View) Tautulli() TautulliConfig {
	cfg := v.cfg.Tautulli
	if inst := v.instance("tautulli"); inst != DefaultInstance {
		if p, ok := cfg.Instances[inst]; ok {
			p.Instances = nil
			return p
		}
	}
	cfg.Instances = nil
	return cfg
}

// Local resolves the local CrossWatch profile for this view.
func (v View) Local() LocalConfig {
	cfg := v.cfg.Local
	if inst := v.instance("crosswatch"); inst != DefaultInstance {
		if p, ok := cfg.Instances[inst]; ok {
			p.Instances = nil
			return p
		}
	}
	cfg.Instances = nil
	return cfg
}
