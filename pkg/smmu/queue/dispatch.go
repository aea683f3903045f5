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

import "github.com/jpgreninger/smmu/pkg/hostarch"

// Hooks is the set of TLB-invalidation and stream-lifecycle callbacks a
// command dispatch needs. The queue package only knows about FIFOs and
// command shapes; Hooks is implemented by the controller (C8), which owns
// both the TLB (C3) and the stream table (C2), keeping queue free of a
// direct dependency on either.
type Hooks interface {
	InvalidateByStream(streamID uint32)
	InvalidateByContext(streamID, contextID uint32)
	InvalidateAll()
	InvalidatePageAllSecurity(streamID, contextID uint32, iova hostarch.Addr)
	ResumeStream(streamID uint32)
	CompletePageRequest(streamID, contextID uint32, address hostarch.Addr)
}

// dispatchTable maps each CommandKind to its handler, gVisor-style
// table-driven dispatch (see systrap's seccomp.RuleSet tables) rather than a
// long switch. Sync is handled specially by ProcessCommandQueue since it
// must stop the drain rather than run a hook.
var dispatchTable = map[CommandKind]func(CommandEntry, Hooks){
	PrefetchConfig: func(CommandEntry, Hooks) {},
	PrefetchAddr:   func(CommandEntry, Hooks) {},
	InvalidateSte: func(e CommandEntry, h Hooks) {
		h.InvalidateByStream(e.StreamID)
	},
	InvalidateAllConfig: func(_ CommandEntry, h Hooks) {
		h.InvalidateAll()
	},
	TlbiNhAll: func(_ CommandEntry, h Hooks) {
		h.InvalidateAll()
	},
	TlbiEl2All: func(_ CommandEntry, h Hooks) {
		h.InvalidateAll()
	},
	TlbiS12Vmall: func(e CommandEntry, h Hooks) {
		h.InvalidateByStream(e.StreamID)
	},
	AtcInvalidate: func(e CommandEntry, h Hooks) {
		dispatchAtcInvalidate(e, h)
	},
	PriResponse: func(e CommandEntry, h Hooks) {
		h.CompletePageRequest(e.StreamID, e.ContextID, e.Address)
		h.ResumeStream(e.StreamID)
	},
	Resume: func(e CommandEntry, h Hooks) {
		h.ResumeStream(e.StreamID)
	},
}

func dispatchAtcInvalidate(e CommandEntry, h Hooks) {
	start, end := uint64(e.Start), uint64(e.End)
	switch {
	case start == 0 && end == 0 && e.ContextID != 0:
		h.InvalidateByContext(e.StreamID, e.ContextID)
	case start == 0 && end == 0:
		h.InvalidateByStream(e.StreamID)
	default:
		for addr := start; addr <= end; addr += hostarch.PageSize {
			h.InvalidatePageAllSecurity(e.StreamID, e.ContextID, hostarch.Addr(addr).PageAligned())
			if addr+hostarch.PageSize < addr {
				// Address wrapped; terminate rather than loop forever
				// (spec.md §4.6: "must tolerate address overflow by
				// terminating when the address wraps").
				break
			}
		}
	}
}

// ProcessCommandQueue drains cq in FIFO order, dispatching each command via
// Hooks, until either the queue empties or a Sync command is reached. A
// Sync emits a CommandSyncCompletion event on eq and stops the drain for
// this call; commands after it remain queued for the next call (spec.md
// §4.6, Testable property 8).
func ProcessCommandQueue(cq *CommandQueue, eq *EventQueue, hooks Hooks) int {
	processed := 0
	for {
		entry, ok := cq.PopFront()
		if !ok {
			return processed
		}
		if entry.Kind == Sync {
			eq.Push(Event{Kind: EventCommandSyncCompletion})
			return processed
		}
		if handler, ok := dispatchTable[entry.Kind]; ok {
			handler(entry, hooks)
		}
		processed++
	}
}
