// CrossWatch - Cross-Provider Media Library Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crosswatch

package httpx

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RateLimit is the parsed view of a provider's rate-limit response headers.
// Zero values mean the header was absent.
type RateLimit struct {
	Limit     int   `json:"limit,omitempty"`
	Remaining int   `json:"remaining,omitempty"`
	Reset     int64 `json:"reset,omitempty"`
}

// ParseRateLimit recognizes both the X-RateLimit-* and RateLimit-* header
// variants. Reset is passed through as the raw integer the vendor sent
// (epoch seconds or delta seconds, vendor-dependent).
func ParseRateLimit(h http.Header) RateLimit {
	var rl RateLimit
	rl.Limit = headerInt(h, "X-RateLimit-Limit", "RateLimit-Limit")
	rl.Remaining = headerInt(h, "X-RateLimit-Remaining", "RateLimit-Remaining")
	rl.Reset = int64(headerInt(h, "X-RateLimit-Reset", "RateLimit-Reset"))
	return rl
}

func headerInt(h http.Header, names ...string) int {
	for _, name := range names {
		v := strings.TrimSpace(h.Get(name))
		if v == "" {
			continue
		}
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return 0
}

// ParseRetryAfter interprets a Retry-After header value as either delta
// seconds or an HTTP-date (RFC 7231). Negative results clamp to zero.
func ParseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}

	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			secs = 0
		}
		return time.Duration(secs) * time.Second, true
	}

	if t, err := http.ParseTime(value); err == nil {
		d := time.Until(t)
		if d < 0 {
			d = 0
		}
		return d, true
	}

	return 0, false
}
