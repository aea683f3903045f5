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

// Package queue implements component C6: the bounded command, event, and
// page-request FIFOs. All three share one bounded-deque helper; their
// overflow policies differ only in whether Push reports failure.
package queue

import (
	"github.com/samber/lo"

	"github.com/jpgreninger/smmu/pkg/smmu/internal/invariant"
)

// boundedDeque is a minimal bounded FIFO shared by EventQueue, CommandQueue,
// and PRIQueue. It is not safe for concurrent use by itself; callers
// (EventQueue etc.) add their own locking.
type boundedDeque[T any] struct {
	capacity int
	items    []T
}

func newBoundedDeque[T any](capacity int) boundedDeque[T] {
	return boundedDeque[T]{capacity: capacity}
}

// pushLossy appends v, dropping the oldest entry if at capacity. Returns
// true if an existing entry was dropped.
func (q *boundedDeque[T]) pushLossy(v T) (dropped bool) {
	if q.capacity > 0 && len(q.items) >= q.capacity {
		q.items = q.items[1:]
		dropped = true
	}
	q.items = append(q.items, v)
	return dropped
}

// pushStrict appends v, refusing if at capacity.
func (q *boundedDeque[T]) pushStrict(v T) bool {
	if q.capacity > 0 && len(q.items) >= q.capacity {
		return false
	}
	q.items = append(q.items, v)
	invariant.Check(q.capacity <= 0 || len(q.items) <= q.capacity, "queue: pushStrict exceeded capacity %d", q.capacity)
	return true
}

// popFront removes and returns the oldest entry, if any.
func (q *boundedDeque[T]) popFront() (T, bool) {
	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	v := q.items[0]
	q.items = q.items[1:]
	return v, true
}

// drain returns every queued entry and empties the queue.
func (q *boundedDeque[T]) drain() []T {
	out := q.items
	q.items = nil
	return out
}

// snapshot returns a defensive copy without draining.
func (q *boundedDeque[T]) snapshot() []T {
	return lo.Map(q.items, func(v T, _ int) T { return v })
}

func (q *boundedDeque[T]) len() int {
	return len(q.items)
}

func (q *boundedDeque[T]) clear() {
	q.items = nil
}

// setCapacity applies a new bound, trimming from the oldest if shrinking
// (spec.md §4.6: "capacities are mutable via configuration updates, which
// trim from the oldest on shrink").
func (q *boundedDeque[T]) setCapacity(n int) {
	q.capacity = n
	if n > 0 {
		for len(q.items) > n {
			q.items = q.items[1:]
		}
	}
}
