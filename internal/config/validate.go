// CrossWatch - Cross-Provider Media Library Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crosswatch

package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// knownProviders are the valid pair endpoints.
var knownProviders = map[string]bool{
	"plex": true, "jellyfin": true, "emby": true, "trakt": true,
	"simkl": true, "mdblist": true, "tmdb": true, "anilist": true,
	"tautulli": true, "crosswatch": true,
}

// Validate checks struct tags plus the cross-field rules the tags cannot
// express. Called once at load; the config is immutable afterwards.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}

	for i, p := range c.Pairs {
		if !knownProviders[p.Source] {
			return fmt.Errorf("pairs[%d]: unknown source provider %q", i, p.Source)
		}
		if !knownProviders[p.Target] {
			return fmt.Errorf("pairs[%d]: unknown target provider %q", i, p.Target)
		}
		if p.Source == p.Target && p.SourceInstance == p.TargetInstance {
			return fmt.Errorf("pairs[%d]: source and target are the same instance", i)
		}
		if p.Direction != "" && p.Direction != DirectionMirror && p.Direction != DirectionTwoWay {
			return fmt.Errorf("pairs[%d]: invalid direction %q", i, p.Direction)
		}
		for f := range p.Features {
			switch f {
			case "watchlist", "ratings", "history", "playlists":
			default:
				return fmt.Errorf("pairs[%d]: unknown feature %q", i, f)
			}
		}
	}

	if c.Jellyfin.WatchlistMode == WatchlistModePlaylist && c.Jellyfin.WatchlistPlaylist == "" {
		return fmt.Errorf("jellyfin: watchlist_mode=playlist requires watchlist_playlist_name")
	}
	if c.Emby.WatchlistMode == WatchlistModePlaylist && c.Emby.WatchlistPlaylist == "" {
		return fmt.Errorf("emby: watchlist_mode=playlist requires watchlist_playlist_name")
	}

	return nil
}
