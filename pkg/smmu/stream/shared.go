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

package stream

import (
	"sync/atomic"

	"github.com/jpgreninger/smmu/pkg/smmu/addrspace"
)

// SharedAddressSpace is a reference-counted stage-2 AddressSpace that may be
// attached to multiple StreamContexts (spec.md §9 "Stage-2 sharing";
// copy-on-share scenarios). It is released — its underlying AddressSpace
// cleared — when the last holder drops its reference, rather than relying
// solely on Go's garbage collector, so that cache-invalidation semantics
// tied to "the space is gone" are observable immediately.
type SharedAddressSpace struct {
	space *addrspace.AddressSpace
	refs  *atomic.Int64
}

// NewSharedAddressSpace creates a fresh stage-2 space with one reference.
func NewSharedAddressSpace() *SharedAddressSpace {
	refs := &atomic.Int64{}
	refs.Store(1)
	return &SharedAddressSpace{space: addrspace.New(), refs: refs}
}

// Acquire returns a new holder referencing the same underlying space and
// increments the reference count.
func (s *SharedAddressSpace) Acquire() *SharedAddressSpace {
	s.refs.Add(1)
	return &SharedAddressSpace{space: s.space, refs: s.refs}
}

// Release decrements the reference count, clearing the underlying space
// once the last holder has released it. Idempotent past zero.
func (s *SharedAddressSpace) Release() {
	if s.refs.Add(-1) == 0 {
		s.space.Clear()
	}
}

// Space returns the underlying AddressSpace for translation/mapping calls.
func (s *SharedAddressSpace) Space() *addrspace.AddressSpace {
	return s.space
}

// RefCount reports the current holder count, for tests and diagnostics.
func (s *SharedAddressSpace) RefCount() int64 {
	return s.refs.Load()
}
