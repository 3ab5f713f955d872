// CrossWatch - Cross-Provider Media Library Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crosswatch

package httpx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"
)

func testClient(provider string) *Client {
	return NewClient(Config{
		Provider:       provider,
		Timeout:        5 * time.Second,
		MaxRetries:     3,
		BackoffBase:    5 * time.Millisecond,
		DisableBreaker: true,
	})
}

func TestDoRetriesOn429ThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := testClient("test")
	resp, err := c.Do(context.Background(), http.MethodGet, srv.URL, nil, nil, nil)
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDoReturnsLastResponseOnExhaustion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := testClient("test")
	resp, err := c.Do(context.Background(), http.MethodGet, srv.URL, nil, nil, nil)
	if err != nil {
		t.Fatalf("expected last response, got error: %v", err)
	}
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}

func TestDoDoesNotRetryAuthFailures(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := testClient("test")
	resp, err := c.Do(context.Background(), http.MethodGet, srv.URL, nil, nil, nil)
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("calls = %d, want 1 (no retries on 401)", calls)
	}
}

func TestDoCancelledDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	c := testClient("test")
	_, err := c.Do(ctx, http.MethodGet, srv.URL, nil, nil, nil)
	if err == nil {
		t.Fatal("expected context error")
	}
}

func TestPacerHonorsContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewClient(Config{Provider: "test", RPS: 1, DisableBreaker: true})

	// First call drains the single-token burst.
	if _, err := c.Do(context.Background(), http.MethodGet, srv.URL, nil, nil, nil); err != nil {
		t.Fatalf("first call failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := c.Do(ctx, http.MethodGet, srv.URL, nil, nil, nil); err == nil {
		t.Fatal("expected context error while waiting for a token")
	}
}

func TestBaselineAndAuthHeaders(t *testing.T) {
	var gotUA, gotAccept, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotAccept = r.Header.Get("Accept")
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewClient(Config{
		Provider:       "test",
		Headers:        map[string]string{"Authorization": "Bearer token123"},
		DisableBreaker: true,
	})
	if _, err := c.GetJSON(context.Background(), srv.URL, nil, nil); err != nil {
		t.Fatalf("GetJSON failed: %v", err)
	}

	if gotUA != userAgent {
		t.Errorf("User-Agent = %q", gotUA)
	}
	if gotAccept != "application/json" {
		t.Errorf("Accept = %q", gotAccept)
	}
	if gotAuth != "Bearer token123" {
		t.Errorf("Authorization = %q", gotAuth)
	}
}

func TestParseRetryAfter(t *testing.T) {
	if d, ok := ParseRetryAfter("7"); !ok || d != 7*time.Second {
		t.Errorf("seconds form: %v %v", d, ok)
	}

	date := time.Now().Add(30 * time.Second).UTC().Format(http.TimeFormat)
	d, ok := ParseRetryAfter(date)
	if !ok || d < 25*time.Second || d > 31*time.Second {
		t.Errorf("http-date form: %v %v", d, ok)
	}

	if _, ok := ParseRetryAfter("garbage"); ok {
		t.Error("garbage should not parse")
	}
	if d, ok := ParseRetryAfter("-5"); !ok || d != 0 {
		t.Errorf("negative should clamp to zero: %v %v", d, ok)
	}
}

func TestParseRateLimitVariants(t *testing.T) {
	h := http.Header{}
	h.Set("X-RateLimit-Limit", "1000")
	h.Set("X-RateLimit-Remaining", "9")
	h.Set("X-RateLimit-Reset", "1700000000")
	rl := ParseRateLimit(h)
	if rl.Limit != 1000 || rl.Remaining != 9 || rl.Reset != 1700000000 {
		t.Errorf("X- variant: %+v", rl)
	}

	h2 := http.Header{}
	h2.Set("RateLimit-Limit", "60")
	h2.Set("RateLimit-Remaining", "0")
	rl2 := ParseRateLimit(h2)
	if rl2.Limit != 60 || rl2.Remaining != 0 {
		t.Errorf("bare variant: %+v", rl2)
	}
}

func TestLabeler(t *testing.T) {
	l := NewLabeler()
	l.Register(
		LabelRule{Method: http.MethodGet, PathContains: "/sync/watchlist", Label: "watchlist:index"},
		LabelRule{Method: http.MethodPost, PathContains: "/sync/watchlist/remove", Label: "watchlist:remove"},
		LabelRule{Method: http.MethodPost, PathContains: "/sync/watchlist", Label: "watchlist:add"},
		LabelRule{PathContains: "cmd=get_history", Label: "history:index"},
	)

	tests := []struct {
		method string
		url    string
		query  url.Values
		want   string
	}{
		{http.MethodGet, "https://api.trakt.tv/sync/watchlist/movies", nil, "watchlist:index"},
		{http.MethodPost, "https://api.trakt.tv/sync/watchlist/remove", nil, "watchlist:remove"},
		{http.MethodPost, "https://api.trakt.tv/sync/watchlist", nil, "watchlist:add"},
		{http.MethodGet, "http://tautulli/api/v2", url.Values{"cmd": {"get_history"}}, "history:index"},
		{http.MethodGet, "https://api.trakt.tv/users/settings", nil, "other"},
	}
	for _, tt := range tests {
		if got := l.Label(tt.method, tt.url, tt.query); got != tt.want {
			t.Errorf("Label(%s %s) = %q, want %q", tt.method, tt.url, got, tt.want)
		}
	}
}
