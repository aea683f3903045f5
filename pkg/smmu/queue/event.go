// Copyright 2024 The SMMU Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package queue

import (
	deadlock "github.com/sasha-s/go-deadlock"

	"github.com/jpgreninger/smmu/pkg/smmu/fault"
)

// EventKind discriminates the heterogeneous events carried by EventQueue.
type EventKind int

const (
	EventFault EventKind = iota
	EventCommandSyncCompletion
	EventPagePageRequest
	EventInvalidationCompletion
	EventConfigurationError
	EventInternalError
)

// Event is one entry of the event FIFO.
type Event struct {
	Kind  EventKind
	Fault fault.Record // valid when Kind == EventFault
	// PageRequest fields, valid when Kind == EventPagePageRequest.
	StreamID, ContextID uint32
	Address             uint64
	// Detail carries a short human-readable note for non-fault events
	// (e.g. which command completed, or what configuration step failed).
	Detail string
}

// EventQueue is a bounded FIFO of Events. Overflow drops the oldest
// (lossy), per spec.md §4.6.
type EventQueue struct {
	mu deadlock.Mutex
	q  boundedDeque[Event]
}

// NewEventQueue constructs an EventQueue bounded to capacity.
func NewEventQueue(capacity int) *EventQueue {
	return &EventQueue{q: newBoundedDeque[Event](capacity)}
}

// Push appends an event, dropping the oldest if full.
func (e *EventQueue) Push(ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.q.pushLossy(ev)
}

// Drain returns every queued event and empties the queue.
func (e *EventQueue) Drain() []Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.q.drain()
}

// Snapshot returns every queued event without draining.
func (e *EventQueue) Snapshot() []Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.q.snapshot()
}

// Len returns the number of queued events.
func (e *EventQueue) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.q.len()
}

// HasEvents reports whether any events are queued.
func (e *EventQueue) HasEvents() bool {
	return e.Len() > 0
}

// Clear empties the queue.
func (e *EventQueue) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.q.clear()
}

// SetCapacity resizes the queue, trimming from the oldest on shrink.
func (e *EventQueue) SetCapacity(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.q.setCapacity(n)
}
