// PicoClaw - Ultra-lightweight personal AI agent
// License: MIT
//
// Copyright (c) 2026 PicoClaw contributors

// Package progress fans out monologue progress events — plan, step
// added, progress, step complete, complete, error — to adapter
// callbacks registered against a Tracker. Dispatch to one event's
// callbacks is sequential and in registration order; a callback panic
// or the lack of any error return is swallowed and logged, never
// propagated to the emitting engine.
package progress

import (
	"fmt"
	"sync"

	"github.com/crucibleai/kernel/pkg/logger"
)

// EventType is the closed set of progress events a Tracker delivers.
type EventType string

const (
	EventPlan         EventType = "plan"
	EventStepAdded    EventType = "step_added"
	EventProgress     EventType = "progress"
	EventStepComplete EventType = "step_complete"
	EventComplete     EventType = "complete"
	EventError        EventType = "error"
)

// Event is one progress notification handed to every registered callback.
type Event struct {
	Type    EventType
	RoomID  string
	Message string
	Data    map[string]any
}

// Callback receives one Event. A returned error is logged and swallowed.
type Callback func(event Event) error

type registration struct {
	name string
	fn   Callback
}

// Tracker holds the registered callbacks and dispatches events to them.
// Safe for concurrent Register and Emit calls.
type Tracker struct {
	mu        sync.Mutex
	callbacks []registration
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Register adds a named callback. Callbacks registered earlier run
// first for any subsequent Emit call (stable registration order).
func (t *Tracker) Register(name string, fn Callback) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.callbacks = append(t.callbacks, registration{name: name, fn: fn})
}

// Unregister removes a previously registered callback by name. No-op if
// the name was never registered.
func (t *Tracker) Unregister(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.callbacks[:0]
	for _, r := range t.callbacks {
		if r.name != name {
			out = append(out, r)
		}
	}
	t.callbacks = out
}

// Emit dispatches event to every registered callback, sequentially, in
// registration order. A callback's panic or error is logged and
// swallowed; it never aborts dispatch to the remaining callbacks.
func (t *Tracker) Emit(event Event) {
	t.mu.Lock()
	callbacks := append([]registration(nil), t.callbacks...)
	t.mu.Unlock()

	for _, r := range callbacks {
		t.runOne(r, event)
	}
}

func (t *Tracker) runOne(r registration, event Event) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.ErrorCF("progress", "callback panic", map[string]any{
				"callback": r.name,
				"event":    string(event.Type),
				"panic":    fmt.Sprintf("%v", rec),
			})
		}
	}()
	if err := r.fn(event); err != nil {
		logger.WarnCF("progress", "callback error", map[string]any{
			"callback": r.name,
			"event":    string(event.Type),
			"error":    err.Error(),
		})
	}
}

// Plan emits an EventPlan notification.
func (t *Tracker) Plan(roomID, message string, data map[string]any) {
	t.Emit(Event{Type: EventPlan, RoomID: roomID, Message: message, Data: data})
}

// StepAdded emits an EventStepAdded notification.
func (t *Tracker) StepAdded(roomID, message string, data map[string]any) {
	t.Emit(Event{Type: EventStepAdded, RoomID: roomID, Message: message, Data: data})
}

// Progress emits an EventProgress notification.
func (t *Tracker) Progress(roomID, message string, data map[string]any) {
	t.Emit(Event{Type: EventProgress, RoomID: roomID, Message: message, Data: data})
}

// StepComplete emits an EventStepComplete notification.
func (t *Tracker) StepComplete(roomID, message string, data map[string]any) {
	t.Emit(Event{Type: EventStepComplete, RoomID: roomID, Message: message, Data: data})
}

// Complete emits an EventComplete notification.
func (t *Tracker) Complete(roomID, message string, data map[string]any) {
	t.Emit(Event{Type: EventComplete, RoomID: roomID, Message: message, Data: data})
}

// Error emits an EventError notification.
func (t *Tracker) Error(roomID, message string, data map[string]any) {
	t.Emit(Event{Type: EventError, RoomID: roomID, Message: message, Data: data})
}
