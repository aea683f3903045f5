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

package controller

import (
	"github.com/jpgreninger/smmu/pkg/smmu/queue"
	"github.com/jpgreninger/smmu/pkg/smmu/smmuerr"
)

// --- Events ---

// GetEvents drains every queued event.
func (c *Controller) GetEvents() []queue.Event {
	return c.events.Drain()
}

// ClearEvents empties the event queue without returning its contents.
func (c *Controller) ClearEvents() {
	c.events.Clear()
}

// HasEvents reports whether any events are queued.
func (c *Controller) HasEvents() bool {
	return c.events.HasEvents()
}

// GetEventQueueSize returns the number of queued events.
func (c *Controller) GetEventQueueSize() int {
	return c.events.Len()
}

// --- Commands ---

// SubmitCommand enqueues a command, failing with CommandQueueFull at
// capacity.
func (c *Controller) SubmitCommand(entry queue.CommandEntry) *smmuerr.Error {
	return c.commands.Submit(entry)
}

// ProcessCommandQueue drains commands up to and including the next Sync
// barrier (spec.md §4.6, Testable property 8).
func (c *Controller) ProcessCommandQueue() int {
	return queue.ProcessCommandQueue(c.commands, c.events, c)
}

// IsCommandQueueFull reports whether the command queue is at capacity.
func (c *Controller) IsCommandQueueFull() bool {
	return c.commands.IsFull()
}

// GetCommandQueueSize returns the number of queued commands.
func (c *Controller) GetCommandQueueSize() int {
	return c.commands.Len()
}

// ClearCommandQueue empties the command queue.
func (c *Controller) ClearCommandQueue() {
	c.commands.Clear()
}

// --- PRI ---

// SubmitPageRequest enqueues a stalled-transaction page request and emits a
// PagePageRequest event (spec.md §4.6).
func (c *Controller) SubmitPageRequest(req queue.PageRequest) {
	c.pri.Submit(req)
	c.events.Push(queue.Event{
		Kind:      queue.EventPagePageRequest,
		StreamID:  req.StreamID,
		ContextID: req.ContextID,
		Address:   uint64(req.Address),
	})
}

// ProcessPRIQueue drains one page request and, on success, emits a
// PriResponse command (spec.md §4.6).
func (c *Controller) ProcessPRIQueue() (queue.PageRequest, bool) {
	req, ok := c.pri.PopFront()
	if !ok {
		return queue.PageRequest{}, false
	}
	c.commands.Submit(queue.CommandEntry{
		Kind:      queue.PriResponse,
		StreamID:  req.StreamID,
		ContextID: req.ContextID,
		Address:   req.Address,
	})
	return req, true
}

// GetPRIQueue returns every queued page request without draining.
func (c *Controller) GetPRIQueue() []queue.PageRequest {
	return c.pri.Snapshot()
}

// ClearPRIQueue empties the PRI queue.
func (c *Controller) ClearPRIQueue() {
	c.pri.Clear()
}

// GetPRIQueueSize returns the number of queued page requests.
func (c *Controller) GetPRIQueueSize() int {
	return c.pri.Len()
}

// --- Invalidation ---

// InvalidateTranslationCache invalidates the entire TLB.
func (c *Controller) InvalidateTranslationCache() {
	c.tlbCache.InvalidateAll()
}

// InvalidateStreamCache invalidates every TLB entry for streamID.
func (c *Controller) InvalidateStreamCache(streamID uint32) {
	c.tlbCache.InvalidateByStream(streamID)
}

// InvalidateContextCache invalidates every TLB entry for (streamID,
// contextID).
func (c *Controller) InvalidateContextCache(streamID, contextID uint32) {
	c.tlbCache.InvalidateByContext(streamID, contextID)
}
