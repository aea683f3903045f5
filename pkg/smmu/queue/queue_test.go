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
	"testing"

	"github.com/jpgreninger/smmu/pkg/hostarch"
)

func TestEventQueueLossyOverflow(t *testing.T) {
	eq := NewEventQueue(2)
	eq.Push(Event{Kind: EventFault, StreamID: 1})
	eq.Push(Event{Kind: EventFault, StreamID: 2})
	eq.Push(Event{Kind: EventFault, StreamID: 3}) // drops StreamID 1
	events := eq.Drain()
	if len(events) != 2 {
		t.Fatalf("Drain() returned %d events, want 2", len(events))
	}
	if events[0].StreamID != 2 || events[1].StreamID != 3 {
		t.Fatalf("events = %+v, want oldest dropped", events)
	}
	if eq.HasEvents() {
		t.Fatal("HasEvents() after Drain should be false")
	}
}

func TestCommandQueueStrictOverflow(t *testing.T) {
	cq := NewCommandQueue(1)
	if err := cq.Submit(CommandEntry{Kind: Sync}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := cq.Submit(CommandEntry{Kind: Sync}); err == nil {
		t.Fatal("expected CommandQueueFull at capacity")
	}
	if !cq.IsFull() {
		t.Fatal("IsFull() should be true at capacity")
	}
}

func TestPRIQueueLossyOverflow(t *testing.T) {
	pq := NewPRIQueue(1)
	pq.Submit(PageRequest{StreamID: 1})
	pq.Submit(PageRequest{StreamID: 2})
	if pq.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", pq.Len())
	}
	req, ok := pq.PopFront()
	if !ok || req.StreamID != 2 {
		t.Fatalf("PopFront() = %+v, %v, want stream 2", req, ok)
	}
}

func TestSetCapacityTrimsFromOldest(t *testing.T) {
	eq := NewEventQueue(4)
	for i := uint32(0); i < 4; i++ {
		eq.Push(Event{StreamID: i})
	}
	eq.SetCapacity(2)
	events := eq.Snapshot()
	if len(events) != 2 {
		t.Fatalf("Snapshot() after SetCapacity(2) returned %d events, want 2", len(events))
	}
	if events[0].StreamID != 2 || events[1].StreamID != 3 {
		t.Fatalf("events = %+v, want the two newest retained", events)
	}
}

type fakeHooks struct {
	invalidatedStreams  []uint32
	invalidatedContexts [][2]uint32
	invalidatedAllCount int
	resumed             []uint32
	completed           [][2]uint32
}

func (f *fakeHooks) InvalidateByStream(streamID uint32) {
	f.invalidatedStreams = append(f.invalidatedStreams, streamID)
}
func (f *fakeHooks) InvalidateByContext(streamID, contextID uint32) {
	f.invalidatedContexts = append(f.invalidatedContexts, [2]uint32{streamID, contextID})
}
func (f *fakeHooks) InvalidateAll() { f.invalidatedAllCount++ }
func (f *fakeHooks) InvalidatePageAllSecurity(streamID, contextID uint32, iova hostarch.Addr) {
}
func (f *fakeHooks) ResumeStream(streamID uint32) { f.resumed = append(f.resumed, streamID) }
func (f *fakeHooks) CompletePageRequest(streamID, contextID uint32, address hostarch.Addr) {
	f.completed = append(f.completed, [2]uint32{streamID, contextID})
}

func TestProcessCommandQueueStopsAtSync(t *testing.T) {
	cq := NewCommandQueue(0)
	eq := NewEventQueue(0)
	hooks := &fakeHooks{}

	cq.Submit(CommandEntry{Kind: InvalidateSte, StreamID: 1})
	cq.Submit(CommandEntry{Kind: Sync})
	cq.Submit(CommandEntry{Kind: TlbiNhAll})

	processed := ProcessCommandQueue(cq, eq, hooks)
	if processed != 1 {
		t.Fatalf("processed = %d, want 1 (stop at Sync)", processed)
	}
	if len(hooks.invalidatedStreams) != 1 || hooks.invalidatedStreams[0] != 1 {
		t.Fatalf("invalidatedStreams = %v, want [1]", hooks.invalidatedStreams)
	}
	events := eq.Drain()
	if len(events) != 1 || events[0].Kind != EventCommandSyncCompletion {
		t.Fatalf("events = %+v, want one CommandSyncCompletion", events)
	}
	if cq.Len() != 1 {
		t.Fatalf("remaining queue length = %d, want 1 (command after Sync untouched)", cq.Len())
	}

	// A second drain call processes the command left after the barrier.
	processed = ProcessCommandQueue(cq, eq, hooks)
	if processed != 1 || hooks.invalidatedAllCount != 1 {
		t.Fatalf("second drain processed=%d invalidatedAllCount=%d, want 1,1", processed, hooks.invalidatedAllCount)
	}
}

func TestDispatchAtcInvalidateWholeStream(t *testing.T) {
	hooks := &fakeHooks{}
	dispatchAtcInvalidate(CommandEntry{StreamID: 5}, hooks)
	if len(hooks.invalidatedStreams) != 1 || hooks.invalidatedStreams[0] != 5 {
		t.Fatalf("invalidatedStreams = %v, want [5]", hooks.invalidatedStreams)
	}
}

func TestDispatchAtcInvalidateWholeContext(t *testing.T) {
	hooks := &fakeHooks{}
	dispatchAtcInvalidate(CommandEntry{StreamID: 5, ContextID: 2}, hooks)
	if len(hooks.invalidatedContexts) != 1 || hooks.invalidatedContexts[0] != [2]uint32{5, 2} {
		t.Fatalf("invalidatedContexts = %v, want [[5 2]]", hooks.invalidatedContexts)
	}
}

func TestDispatchAtcInvalidateAddressRange(t *testing.T) {
	hooks := &fakeHooks{}
	start := hostarch.Addr(0)
	end := hostarch.Addr(2 * hostarch.PageSize)
	// ContextID 0 with a non-zero range must walk page by page, not be
	// mistaken for "whole stream" (that path requires start==end==0).
	dispatchAtcInvalidate(CommandEntry{StreamID: 1, Start: start, End: end}, hooks)
	// InvalidatePageAllSecurity is a no-op in fakeHooks, but the call must
	// not panic and must not fall through to InvalidateByStream.
	if len(hooks.invalidatedStreams) != 0 {
		t.Fatalf("invalidatedStreams = %v, want none (range path, not whole-stream)", hooks.invalidatedStreams)
	}
}

func TestDispatchPriResponseResumesStream(t *testing.T) {
	hooks := &fakeHooks{}
	handler := dispatchTable[PriResponse]
	handler(CommandEntry{StreamID: 7, ContextID: 3}, hooks)
	if len(hooks.completed) != 1 || hooks.completed[0] != [2]uint32{7, 3} {
		t.Fatalf("completed = %v, want [[7 3]]", hooks.completed)
	}
	if len(hooks.resumed) != 1 || hooks.resumed[0] != 7 {
		t.Fatalf("resumed = %v, want [7]", hooks.resumed)
	}
}
