// CrossWatch - Cross-Provider Media Library Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crosswatch

package config

import (
	"os"
	"strings"
)

// Runtime carries the side-channel environment contract, resolved exactly
// once at startup and passed to components as explicit fields (the pair
// scope on the state store, capture mode on the reconciler, log levels on
// the logger). Nothing reads these variables after startup.
type Runtime struct {
	// PairScope selects the active pair scope for state files.
	PairScope string
	// CaptureMode suppresses reads/writes of persistent state.
	CaptureMode bool
	// LogLevel / LogFormat override the configured logging block.
	LogLevel  string
	LogFormat string
	// Debug forces debug level globally.
	Debug bool
	// ProviderLogLevels maps provider name to a level override
	// (CW_<PROV>_LOG_LEVEL, with CW_<PROV>_DEBUG as a shorthand).
	ProviderLogLevels map[string]string
}

// pairScopeVars in lookup order; the first non-empty value wins.
var pairScopeVars = []string{"CW_PAIR_SCOPE", "CW_PAIR_KEY", "CW_SYNC_PAIR", "CW_PAIR"}

var runtimeProviders = []string{
	"PLEX", "JELLYFIN", "EMBY", "TRAKT", "SIMKL", "MDBLIST", "TMDB",
	"ANILIST", "TAUTULLI", "CROSSWATCH",
}

// LoadRuntime resolves the environment contract.
func LoadRuntime() Runtime {
	rt := Runtime{
		LogLevel:          os.Getenv("CW_LOG_LEVEL"),
		LogFormat:         os.Getenv("CW_LOG_FORMAT"),
		Debug:             isTruthy(os.Getenv("CW_DEBUG")),
		CaptureMode:       isTruthy(os.Getenv("CW_CAPTURE_MODE")),
		ProviderLogLevels: map[string]string{},
	}

	for _, v := range pairScopeVars {
		if s := os.Getenv(v); s != "" {
			rt.PairScope = s
			break
		}
	}

	for _, p := range runtimeProviders {
		name := strings.ToLower(p)
		if lvl := os.Getenv("CW_" + p + "_LOG_LEVEL"); lvl != "" {
			rt.ProviderLogLevels[name] = lvl
		} else if isTruthy(os.Getenv("CW_" + p + "_DEBUG")) {
			rt.ProviderLogLevels[name] = "debug"
		}
	}

	return rt
}

// LevelFor returns the effective log level for a provider.
func (rt Runtime) LevelFor(provider string) string {
	return rt.ProviderLogLevels[strings.ToLower(provider)]
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
