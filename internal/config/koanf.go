// CrossWatch - Cross-Provider Media Library Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crosswatch

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched, first hit wins.
var DefaultConfigPaths = []string{
	"config.json",
	"config.yaml",
	"config.yml",
	"/config/config.json",
	"/config/config.yaml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CW_CONFIG_PATH"

// defaultConfig returns a Config with all defaults applied. Defaults load
// first, then the config file, then CW_* environment variables.
func defaultConfig() *Config {
	verify := true
	common := Common{
		Timeout:    15 * time.Second,
		MaxRetries: 3,
		VerifySSL:  &verify,
	}
	return &Config{
		ConfigDir: "/config",
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Server: ServerConfig{
			Host:    "127.0.0.1",
			Port:    8787,
			Timeout: 30 * time.Second,
		},
		Sync: SyncConfig{
			Interval: 1 * time.Hour,
			Deadline: 30 * time.Minute,
		},
		Snapshots: SnapshotConfig{
			RetentionDays: 30,
			MaxSnapshots:  50,
			SweepInterval: 6 * time.Hour,
		},
		Plex:     PlexConfig{Common: common},
		Jellyfin: MediaBrowserConfig{Common: common, WatchlistMode: WatchlistModeFavorites},
		Emby:     MediaBrowserConfig{Common: common, WatchlistMode: WatchlistModeFavorites},
		Trakt:    TraktConfig{Common: common},
		SIMKL:    SIMKLConfig{Common: common},
		MDBList: MDBListConfig{
			Common:                common,
			WatchlistBatchSize:    100,
			WatchlistPageSize:     100,
			WatchlistShadowTTLHrs: 6,
			RatingsChunkSize:      50,
			RatingsWriteDelayMS:   600,
			RatingsMaxBackoffMS:   8000,
			RatingsPerPage:        100,
		},
		TMDB:    TMDBConfig{Common: common},
		AniList: AniListConfig{Common: common, SearchMinScore: 85},
		Tautulli: TautulliConfig{
			Common:          common,
			HistoryPerPage:  200,
			HistoryMaxPages: 50,
		},
		Local: LocalConfig{
			Common:        common,
			RootDir:       "/config/.cw_provider",
			RetentionDays: 30,
			AutoSnapshot:  true,
			MaxSnapshots:  20,
		},
	}
}

// jsonParser adapts goccy/go-json to the koanf parser interface so the
// authoritative config.json loads without an extra dependency.
type jsonParser struct{}

func (jsonParser) Unmarshal(b []byte) (map[string]any, error) {
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (jsonParser) Marshal(m map[string]any) ([]byte, error) {
	return json.Marshal(m)
}

// Load builds the configuration from defaults, the config file at path
// (auto-discovered when empty), and CW_* environment variables.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), parserFor(path)); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("CW_", ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation: %w", err)
	}

	return cfg, nil
}

func parserFor(path string) koanf.Parser {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Parser()
	default:
		return jsonParser{}
	}
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransform maps CW_* environment variables to koanf paths:
//
//	CW_LOG_LEVEL          -> logging.level
//	CW_LOG_FORMAT         -> logging.format
//	CW_SERVER_PORT        -> server.port
//	CW_TRAKT_ACCESS_TOKEN -> trakt.access_token
//	CW_SYNC_INTERVAL      -> sync.interval
//
// The first underscore segment selects the config section; the remainder
// becomes the snake_case key. CW_PAIR* and CW_CAPTURE_MODE are process
// environment contracts handled by Runtime, not configuration keys.
func envTransform(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, "CW_"))

	switch {
	case key == "log_level":
		return "logging.level"
	case key == "log_format":
		return "logging.format"
	case key == "config_dir":
		return "config_dir"
	case strings.HasPrefix(key, "pair") || key == "sync_pair" || key == "capture_mode" || key == "debug":
		return "" // runtime contract, not config
	}

	for _, section := range []string{
		"server", "sync", "snapshots", "plex", "jellyfin", "emby", "trakt",
		"simkl", "mdblist", "tmdb", "anilist", "tautulli", "crosswatch", "logging",
	} {
		if strings.HasPrefix(key, section+"_") {
			return section + "." + strings.TrimPrefix(key, section+"_")
		}
	}
	return ""
}
