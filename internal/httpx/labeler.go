// CrossWatch - Cross-Provider Media Library Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crosswatch

package httpx

import (
	"net/url"
	"strings"
)

// LabelRule maps an endpoint shape to a stable observability label such as
// "watchlist:index" or "ratings:add". Rules are evaluated in registration
// order; first match wins.
type LabelRule struct {
	// Method matches the HTTP method when non-empty.
	Method string
	// PathContains matches a substring of the URL path.
	PathContains string
	// Label is the stable endpoint label.
	Label string
}

// Labeler classifies request URLs into stable endpoint labels. Adapters
// register their rules at construction; unmatched requests label as "other".
type Labeler struct {
	rules []LabelRule
}

// NewLabeler creates an empty labeler.
func NewLabeler() *Labeler {
	return &Labeler{}
}

// Register appends rules to the labeler.
func (l *Labeler) Register(rules ...LabelRule) {
	l.rules = append(l.rules, rules...)
}

// Label classifies a request. Query parameters participate via the rule's
// PathContains match against "path?query" so API-key style endpoints
// (e.g. Tautulli ?cmd=get_history) can be distinguished.
func (l *Labeler) Label(method, rawurl string, query url.Values) string {
	u, err := url.Parse(rawurl)
	if err != nil {
		return "other"
	}
	target := u.Path
	if len(query) > 0 {
		target += "?" + query.Encode()
	} else if u.RawQuery != "" {
		target += "?" + u.RawQuery
	}

	for _, r := range l.rules {
		if r.Method != "" && !strings.EqualFold(r.Method, method) {
			continue
		}
		if r.PathContains != "" && !strings.Contains(target, r.PathContains) {
			continue
		}
		return r.Label
	}
	return "other"
}
