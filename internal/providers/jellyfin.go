// CrossWatch - Cross-Provider Media Library Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crosswatch

package providers

import (
	"context"

	"github.com/tomtom215/crosswatch/internal/config"
	"github.com/tomtom215/crosswatch/internal/identity"
)

// Jellyfin implements Adapter over the shared MediaBrowser core.
type Jellyfin struct {
	core *mediaBrowser
}

// NewJellyfin constructs the Jellyfin adapter for one instance profile.
func NewJellyfin(cfg config.MediaBrowserConfig, deps Deps) *Jellyfin {
	return &Jellyfin{core: newMediaBrowser("jellyfin", "Jellyfin", identity.KindJellyfin, cfg, deps)}
}

func (j *Jellyfin) Manifest() Manifest          { return j.core.manifest() }
func (j *Jellyfin) Features() map[string]bool   { return j.core.manifest().Features }
func (j *Jellyfin) Capabilities() Capabilities  { return j.core.capabilities() }
func (j *Jellyfin) IsConfigured() bool          { return j.core.isConfigured() }
func (j *Jellyfin) Health(ctx context.Context) Health { return j.core.health(ctx) }

func (j *Jellyfin) BuildIndex(ctx context.Context, feature string) (identity.Index, error) {
	return j.core.buildIndex(ctx, feature)
}

func (j *Jellyfin) Add(ctx context.Context, items []identity.Item, feature string, dryRun bool) (*WriteResult, error) {
	return j.core.add(ctx, items, feature, dryRun)
}

func (j *Jellyfin) Remove(ctx context.Context, items []identity.Item, feature string, dryRun bool) (*WriteResult, error) {
	return j.core.remove(ctx, items, feature, dryRun)
}
