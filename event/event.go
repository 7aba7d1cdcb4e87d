// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package event carries the structured events the vault, gateway and hub
// emit. Consumers depend on the exact field values, so events are plain
// structs rather than formatted strings.
package event

import (
	"sync"

	log "github.com/luxfi/log"
)

// Event is any emitted record. Name returns a stable identifier for filtering.
type Event interface {
	Name() string
}

// Emitter receives events as they happen.
type Emitter func(Event)

// Discard drops every event.
func Discard(Event) {}

// LogEmitter forwards every event to a logger at info level.
func LogEmitter(logger log.Logger) Emitter {
	return func(e Event) {
		logger.Info("event", "name", e.Name(), "body", e)
	}
}

// Recorder collects events for inspection in tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

// Emit is an Emitter.
func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// All returns every recorded event in emission order.
func (r *Recorder) All() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Named returns recorded events whose Name matches.
func (r *Recorder) Named(name string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Name() == name {
			out = append(out, e)
		}
	}
	return out
}

// Count returns how many recorded events carry the given name.
func (r *Recorder) Count(name string) int {
	return len(r.Named(name))
}
