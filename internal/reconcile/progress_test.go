// CrossWatch - Cross-Provider Media Library Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crosswatch

package reconcile

import (
	"testing"
	"time"
)

func TestEmitterThrottlesTicks(t *testing.T) {
	var events []Event
	e := NewEmitter(func(ev Event) { events = append(events, ev) })

	now := time.Unix(0, 0)
	e.now = func() time.Time { return now }

	e.Tick(Event{Done: 1})
	e.Tick(Event{Done: 2}) // inside the throttle window, dropped
	now = now.Add(progressInterval)
	e.Tick(Event{Done: 3})

	if len(events) != 2 {
		t.Fatalf("got %d events, want 2: %+v", len(events), events)
	}
	if events[0].Done != 1 || events[1].Done != 3 {
		t.Fatalf("wrong events delivered: %+v", events)
	}
}

func TestEmitterForceAndFinalBypassThrottle(t *testing.T) {
	var events []Event
	e := NewEmitter(func(ev Event) { events = append(events, ev) })

	now := time.Unix(0, 0)
	e.now = func() time.Time { return now }

	e.Tick(Event{Done: 1})
	e.Force(Event{Done: 2})
	e.Final(Event{Dst: "simkl", Done: 3, OK: true})

	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	if !events[2].Final {
		t.Fatal("final event not flagged")
	}
	if events[2].Dst != "simkl" || !events[2].OK {
		t.Fatalf("destination/outcome not carried: %+v", events[2])
	}
}

func TestNilEmitterDropsEverything(t *testing.T) {
	var e *Emitter
	e.Tick(Event{})
	e.Force(Event{})
	e.Final(Event{})

	e2 := NewEmitter(nil)
	e2.Tick(Event{})
}
