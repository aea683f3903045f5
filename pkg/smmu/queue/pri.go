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

	"github.com/jpgreninger/smmu/pkg/hostarch"
)

// PageRequest is a stalled-transaction page request, modeling the ARM PRI
// (Page Request Interface) for Stall-mode faults.
type PageRequest struct {
	StreamID  uint32
	ContextID uint32
	Address   hostarch.Addr
	Access    hostarch.AccessType
}

// PRIQueue is a bounded FIFO of page requests. Overflow drops the oldest
// (lossy), per spec.md §4.6.
type PRIQueue struct {
	mu deadlock.Mutex
	q  boundedDeque[PageRequest]
}

// NewPRIQueue constructs a PRIQueue bounded to capacity.
func NewPRIQueue(capacity int) *PRIQueue {
	return &PRIQueue{q: newBoundedDeque[PageRequest](capacity)}
}

// Submit appends a page request, dropping the oldest if full.
func (p *PRIQueue) Submit(req PageRequest) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.q.pushLossy(req)
}

// PopFront removes and returns the oldest page request, if any.
func (p *PRIQueue) PopFront() (PageRequest, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.q.popFront()
}

// Snapshot returns every queued page request without draining.
func (p *PRIQueue) Snapshot() []PageRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.q.snapshot()
}

// Len returns the number of queued page requests.
func (p *PRIQueue) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.q.len()
}

// Clear empties the queue.
func (p *PRIQueue) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.q.clear()
}

// SetCapacity resizes the queue, trimming from the oldest on shrink.
func (p *PRIQueue) SetCapacity(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.q.setCapacity(n)
}
