// CrossWatch - Cross-Provider Media Library Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crosswatch

package reconcile

import (
	"sync"
	"time"
)

// progressInterval is the minimum spacing between emitted ticks.
const progressInterval = 300 * time.Millisecond

// Event is one progress tick of a running pair-sync.
type Event struct {
	Stage   string `json:"stage"`
	Dst     string `json:"dst,omitempty"`
	Done    int    `json:"done"`
	Total   int    `json:"total"`
	Feature string `json:"feature,omitempty"`
	OK      bool   `json:"ok,omitempty"`
	Final   bool   `json:"final,omitempty"`
}

// Emitter throttles progress events to one per interval, always letting
// forced and final events through. Safe for concurrent use; a nil Emitter
// drops everything.
type Emitter struct {
	mu   sync.Mutex
	sink func(Event)
	last time.Time
	now  func() time.Time
}

// NewEmitter wraps a sink callback. A nil sink yields an emitter that
// discards events.
func NewEmitter(sink func(Event)) *Emitter {
	return &Emitter{sink: sink, now: time.Now}
}

// Tick reports progress, dropped when the previous emit was less than the
// throttle interval ago.
func (e *Emitter) Tick(ev Event) {
	e.emit(ev, false)
}

// Force reports progress bypassing the throttle (stage transitions and
// final flushes).
func (e *Emitter) Force(ev Event) {
	e.emit(ev, true)
}

// Final marks and emits the terminal event, always delivered.
func (e *Emitter) Final(ev Event) {
	ev.Final = true
	e.emit(ev, true)
}

func (e *Emitter) emit(ev Event, force bool) {
	if e == nil || e.sink == nil {
		return
	}
	e.mu.Lock()
	now := e.now()
	if !force && now.Sub(e.last) < progressInterval {
		e.mu.Unlock()
		return
	}
	e.last = now
	sink := e.sink
	e.mu.Unlock()

	sink(ev)
}
