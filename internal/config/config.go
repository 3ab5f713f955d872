// CrossWatch - Cross-Provider Media Library Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crosswatch

// Package config defines the CrossWatch configuration model and loads it
// with koanf: struct defaults, then the config file (config.json or
// config.yaml), then CW_* environment variables, each layer overriding the
// previous one.
//
// The loaded Config is treated as immutable. Pair-sync tasks receive a
// View built by BuildView(cfg, instances) and adapters never mutate shared
// configuration.
package config

import (
	"time"
)

// Common holds options every provider block accepts.
type Common struct {
	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration `koanf:"timeout" json:"timeout"`
	// MaxRetries bounds retryable-status retries.
	MaxRetries int `koanf:"max_retries" json:"max_retries"`
	Debug      bool `koanf:"debug" json:"debug"`
	// VerifySSL defaults to true; nil means unset.
	VerifySSL *bool  `koanf:"verify_ssl" json:"verify_ssl"`
	LogLevel  string `koanf:"log_level" json:"log_level"`
}

// PlexConfig configures the Plex adapter.
type PlexConfig struct {
	Common       `koanf:",squash"`
	AccountToken string `koanf:"account_token" json:"account_token"`
	ClientID     string `koanf:"client_id" json:"client_id"`
	ServerURL    string `koanf:"server_url" json:"server_url" validate:"omitempty,url"`
	Username     string `koanf:"username" json:"username"`
	// AccountID is the local PMS account id (1..n), never the cloud id.
	AccountID int `koanf:"account_id" json:"account_id"`

	HistoryLibraries  []string `koanf:"history_libraries" json:"history_libraries"`
	RatingsLibraries  []string `koanf:"ratings_libraries" json:"ratings_libraries"`
	ScrobbleLibraries []string `koanf:"scrobble_libraries" json:"scrobble_libraries"`

	Instances map[string]PlexConfig `koanf:"instances" json:"instances,omitempty"`
}

// MediaBrowserWatchlistMode selects the Jellyfin/Emby watchlist backing.
const (
	WatchlistModeFavorites  = "favorites"
	WatchlistModePlaylist   = "playlist"
	WatchlistModeCollection = "collection"
)

// MediaBrowserConfig configures the Jellyfin and Emby adapters (shared
// MediaBrowser API surface).
type MediaBrowserConfig struct {
	Common      `koanf:",squash"`
	Server      string `koanf:"server" json:"server" validate:"omitempty,url"`
	AccessToken string `koanf:"access_token" json:"access_token"`
	UserID      string `koanf:"user_id" json:"user_id"`
	DeviceID    string `koanf:"device_id" json:"device_id"`

	// WatchlistMode is one of favorites, playlist, collection.
	WatchlistMode     string `koanf:"watchlist_mode" json:"watchlist_mode" validate:"omitempty,oneof=favorites playlist collection"`
	WatchlistPlaylist string `koanf:"watchlist_playlist_name" json:"watchlist_playlist_name"`

	Instances map[string]MediaBrowserConfig `koanf:"instances" json:"instances,omitempty"`
}

// TraktConfig configures the Trakt adapter.
type TraktConfig struct {
	Common         `koanf:",squash"`
	ClientID       string `koanf:"client_id" json:"client_id"`
	ClientSecret   string `koanf:"client_secret" json:"client_secret"`
	AccessToken    string `koanf:"access_token" json:"access_token"`
	RefreshToken   string `koanf:"refresh_token" json:"refresh_token"`
	TokenExpiresAt int64  `koanf:"token_expires_at" json:"token_expires_at"`

	Instances map[string]TraktConfig `koanf:"instances" json:"instances,omitempty"`
}

// SIMKLConfig configures the SIMKL adapter.
type SIMKLConfig struct {
	Common         `koanf:",squash"`
	ClientID       string `koanf:"client_id" json:"client_id"`
	ClientSecret   string `koanf:"client_secret" json:"client_secret"`
	AccessToken    string `koanf:"access_token" json:"access_token"`
	TokenExpiresAt int64  `koanf:"token_expires_at" json:"token_expires_at"`

	Instances map[string]SIMKLConfig `koanf:"instances" json:"instances,omitempty"`
}

// MDBListConfig configures the MDBList adapter, including its write
// chunking and shadow-cache tuning.
type MDBListConfig struct {
	Common `koanf:",squash"`
	APIKey string `koanf:"api_key" json:"api_key"`

	WatchlistBatchSize    int `koanf:"watchlist_batch_size" json:"watchlist_batch_size" validate:"omitempty,min=25,max=100"`
	WatchlistPageSize     int `koanf:"watchlist_page_size" json:"watchlist_page_size"`
	WatchlistShadowTTLHrs int `koanf:"watchlist_shadow_ttl_hours" json:"watchlist_shadow_ttl_hours"`

	RatingsChunkSize    int `koanf:"ratings_chunk_size" json:"ratings_chunk_size" validate:"omitempty,min=25,max=100"`
	RatingsWriteDelayMS int `koanf:"ratings_write_delay_ms" json:"ratings_write_delay_ms"`
	RatingsMaxBackoffMS int `koanf:"ratings_max_backoff_ms" json:"ratings_max_backoff_ms"`
	RatingsPerPage      int `koanf:"ratings_per_page" json:"ratings_per_page"`

	Instances map[string]MDBListConfig `koanf:"instances" json:"instances,omitempty"`
}

// TMDBConfig configures the TMDb sync adapter (v3 api_key + session_id).
type TMDBConfig struct {
	Common    `koanf:",squash"`
	APIKey    string `koanf:"api_key" json:"api_key"`
	SessionID string `koanf:"session_id" json:"session_id"`
	AccountID int    `koanf:"account_id" json:"account_id"`

	Instances map[string]TMDBConfig `koanf:"instances" json:"instances,omitempty"`
}

// AniListConfig configures the AniList GraphQL adapter.
type AniListConfig struct {
	Common      `koanf:",squash"`
	AccessToken string `koanf:"access_token" json:"access_token"`
	// SearchMinScore is the acceptance threshold of the title-search
	// scoring rubric. Default 85.
	SearchMinScore int `koanf:"search_min_score" json:"search_min_score"`

	Instances map[string]AniListConfig `koanf:"instances" json:"instances,omitempty"`
}

// TautulliConfig configures the read-only Tautulli history adapter.
type TautulliConfig struct {
	Common    `koanf:",squash"`
	ServerURL string `koanf:"server_url" json:"server_url" validate:"omitempty,url"`
	APIKey    string `koanf:"api_key" json:"api_key"`

	HistoryUserID   int `koanf:"history_user_id" json:"history_user_id"`
	HistoryPerPage  int `koanf:"history_per_page" json:"history_per_page"`
	HistoryMaxPages int `koanf:"history_max_pages" json:"history_max_pages"`

	Instances map[string]TautulliConfig `koanf:"instances" json:"instances,omitempty"`
}

// LocalConfig configures the authoritative local CrossWatch adapter.
type LocalConfig struct {
	Common        `koanf:",squash"`
	RootDir       string `koanf:"root_dir" json:"root_dir"`
	RetentionDays int    `koanf:"retention_days" json:"retention_days"`
	AutoSnapshot  bool   `koanf:"auto_snapshot" json:"auto_snapshot"`
	MaxSnapshots  int    `koanf:"max_snapshots" json:"max_snapshots"`

	// Restore selectors: "", "latest", or a snapshot id.
	RestoreWatchlist string `koanf:"restore_watchlist" json:"restore_watchlist"`
	RestoreRatings   string `koanf:"restore_ratings" json:"restore_ratings"`
	RestoreHistory   string `koanf:"restore_history" json:"restore_history"`

	Instances map[string]LocalConfig `koanf:"instances" json:"instances,omitempty"`
}

// Direction values for a pair.
const (
	DirectionMirror = "mirror"
	DirectionTwoWay = "two-way"
)

// PairConfig declares one sync pair.
type PairConfig struct {
	Source         string `koanf:"source" json:"source" validate:"required"`
	SourceInstance string `koanf:"source_instance" json:"source_instance"`
	Target         string `koanf:"target" json:"target" validate:"required"`
	TargetInstance string `koanf:"target_instance" json:"target_instance"`

	Direction string          `koanf:"direction" json:"direction" validate:"omitempty,oneof=mirror two-way"`
	Features  map[string]bool `koanf:"features" json:"features"`
	Enabled   bool            `koanf:"enabled" json:"enabled"`
	DryRun    bool            `koanf:"dry_run" json:"dry_run"`

	// SuppressReadds skips re-adding items the user removed on the
	// destination since the last baseline.
	SuppressReadds bool `koanf:"suppress_readds" json:"suppress_readds"`
	// AllowBaselineDeletes lets observed_deletes=false sources cause
	// destination removals via baseline diff alone.
	AllowBaselineDeletes bool `koanf:"allow_baseline_deletes" json:"allow_baseline_deletes"`
}

// Scope returns the pair's state scope token: source:instance->target:instance:feature
// is resolved per feature by the reconciler; this is the pair-level prefix.
func (p PairConfig) Scope() string {
	si := p.SourceInstance
	if si == "" {
		si = "default"
	}
	ti := p.TargetInstance
	if ti == "" {
		ti = "default"
	}
	return p.Source + "-" + si + "--" + p.Target + "-" + ti
}

// SyncConfig drives the scheduler.
type SyncConfig struct {
	Interval time.Duration `koanf:"interval" json:"interval"`
	// Deadline bounds one pair-sync run.
	Deadline time.Duration `koanf:"deadline" json:"deadline"`
}

// SnapshotConfig drives the snapshotter and retention sweeper.
type SnapshotConfig struct {
	RetentionDays int           `koanf:"retention_days" json:"retention_days"`
	MaxSnapshots  int           `koanf:"max_snapshots" json:"max_snapshots"`
	SweepInterval time.Duration `koanf:"sweep_interval" json:"sweep_interval"`
}

// ServerConfig configures the operational HTTP endpoint.
type ServerConfig struct {
	Host    string        `koanf:"host" json:"host"`
	Port    int           `koanf:"port" json:"port" validate:"omitempty,min=1,max=65535"`
	Timeout time.Duration `koanf:"timeout" json:"timeout"`
}

// LoggingConfig mirrors the CW_LOG_* environment contract.
type LoggingConfig struct {
	Level  string `koanf:"level" json:"level" validate:"omitempty,oneof=off error warn info debug trace"`
	Format string `koanf:"format" json:"format" validate:"omitempty,oneof=kv json"`
}

// Config is the root configuration document.
type Config struct {
	// ConfigDir anchors all relative state paths (default /config).
	ConfigDir string `koanf:"config_dir" json:"config_dir"`

	Logging   LoggingConfig  `koanf:"logging" json:"logging"`
	Server    ServerConfig   `koanf:"server" json:"server"`
	Sync      SyncConfig     `koanf:"sync" json:"sync"`
	Snapshots SnapshotConfig `koanf:"snapshots" json:"snapshots"`

	Plex     PlexConfig         `koanf:"plex" json:"plex"`
	Jellyfin MediaBrowserConfig `koanf:"jellyfin" json:"jellyfin"`
	Emby     MediaBrowserConfig `koanf:"emby" json:"emby"`
	Trakt    TraktConfig        `koanf:"trakt" json:"trakt"`
	SIMKL    SIMKLConfig        `koanf:"simkl" json:"simkl"`
	MDBList  MDBListConfig      `koanf:"mdblist" json:"mdblist"`
	TMDB     TMDBConfig         `koanf:"tmdb" json:"tmdb"`
	AniList  AniListConfig      `koanf:"anilist" json:"anilist"`
	Tautulli TautulliConfig     `koanf:"tautulli" json:"tautulli"`
	Local    LocalConfig        `koanf:"crosswatch" json:"crosswatch"`

	Pairs []PairConfig `koanf:"pairs" json:"pairs" validate:"dive"`
}

// StateDir returns the pair-state directory.
func (c *Config) StateDir() string {
	return c.ConfigDir + "/.cw_state"
}

// SnapshotsDir returns the snapshot root.
func (c *Config) SnapshotsDir() string {
	return c.ConfigDir + "/snapshots"
}

// ResolveCacheDir returns the external-id resolution cache directory.
func (c *Config) ResolveCacheDir() string {
	return c.ConfigDir + "/.cw_cache"
}
