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

// Emby implements Adapter over the shared MediaBrowser core.
type Emby struct {
	core *mediaBrowser
}

// NewEmby constructs the Emby adapter for one instance profile.
func NewEmby(cfg config.MediaBrowserConfig, deps Deps) *Emby {
	return &Emby{core: newMediaBrowser("emby", "Emby", identity.KindEmby, cfg, deps)}
}

func (e *Emby) Manifest() Manifest          { return e.core.manifest() }
func (e *Emby) Features() map[string]bool   { return e.core.manifest().Features }
func (e *Emby) Capabilities() Capabilities  { return e.core.capabilities() }
func (e *Emby) IsConfigured() bool          { return e.core.isConfigured() }
func (e *Emby) Health(ctx context.Context) Health { return e.core.health(ctx) }

func (e *Emby) BuildIndex(ctx context.Context, feature string) (identity.Index, error) {
	return e.core.buildIndex(ctx, feature)
}

func (e *Emby) Add(ctx context.Context, items []identity.Item, feature string, dryRun bool) (*WriteResult, error) {
	return e.core.add(ctx, items, feature, dryRun)
}

func (e *Emby) Remove(ctx context.Context, items []identity.Item, feature string, dryRun bool) (*WriteResult, error) {
	return e.core.remove(ctx, items, feature, dryRun)
}
