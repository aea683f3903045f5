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
	"github.com/jpgreninger/smmu/pkg/smmu/smmuerr"
)

// CommandKind enumerates the commands the queue layer dispatches (spec.md
// §4.6).
type CommandKind int

const (
	PrefetchConfig CommandKind = iota
	PrefetchAddr
	InvalidateSte
	InvalidateAllConfig
	TlbiNhAll
	TlbiEl2All
	TlbiS12Vmall
	AtcInvalidate
	PriResponse
	Resume
	Sync
)

// CommandEntry is one entry of the CommandQueue.
type CommandEntry struct {
	Kind      CommandKind
	StreamID  uint32
	ContextID uint32
	Start     hostarch.Addr
	End       hostarch.Addr
	Address   hostarch.Addr
}

// CommandQueue is a bounded, strict-overflow FIFO: Submit refuses new
// commands at capacity rather than dropping old ones (spec.md §4.6).
type CommandQueue struct {
	mu deadlock.Mutex
	q  boundedDeque[CommandEntry]
}

// NewCommandQueue constructs a CommandQueue bounded to capacity.
func NewCommandQueue(capacity int) *CommandQueue {
	return &CommandQueue{q: newBoundedDeque[CommandEntry](capacity)}
}

// Submit appends a command, returning CommandQueueFull if at capacity.
func (c *CommandQueue) Submit(entry CommandEntry) *smmuerr.Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.q.pushStrict(entry) {
		return smmuerr.New(smmuerr.CommandQueueFull)
	}
	return nil
}

// PopFront removes and returns the oldest command, if any.
func (c *CommandQueue) PopFront() (CommandEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.q.popFront()
}

// IsFull reports whether the queue is at capacity.
func (c *CommandQueue) IsFull() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.q.capacity > 0 && c.q.len() >= c.q.capacity
}

// Len returns the number of queued commands.
func (c *CommandQueue) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.q.len()
}

// Clear empties the queue.
func (c *CommandQueue) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.q.clear()
}

// SetCapacity resizes the queue, trimming from the oldest on shrink.
func (c *CommandQueue) SetCapacity(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.q.setCapacity(n)
}
