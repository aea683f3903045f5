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
	"github.com/jpgreninger/smmu/pkg/hostarch"
	"github.com/jpgreninger/smmu/pkg/smmu/smmuerr"
	"github.com/jpgreninger/smmu/pkg/smmu/stream"
)

// ConfigureStream creates (or reconfigures) a stream.
func (c *Controller) ConfigureStream(streamID uint32, cfg stream.Config) *smmuerr.Error {
	if streamID > hostarch.MaxStreamID {
		return smmuerr.New(smmuerr.InvalidStreamID)
	}
	c.mu.Lock()
	limit := c.cfg.Addresses.MaxContextCount
	sc, exists := c.streams[streamID]
	if !exists {
		sc = stream.New(limit)
		c.streams[streamID] = sc
	}
	c.mu.Unlock()

	return sc.Configure(cfg)
}

// RemoveStream deletes a stream, releases its stage-2 reference, and
// invalidates its TLB scope.
func (c *Controller) RemoveStream(streamID uint32) *smmuerr.Error {
	c.mu.Lock()
	sc, ok := c.streams[streamID]
	if ok {
		delete(c.streams, streamID)
	}
	c.mu.Unlock()
	if !ok {
		return smmuerr.New(smmuerr.StreamNotFound)
	}
	sc.DetachStage2()
	c.tlbCache.InvalidateByStream(streamID)
	return nil
}

// IsStreamConfigured reports whether streamID has a stream record.
func (c *Controller) IsStreamConfigured(streamID uint32) (bool, *smmuerr.Error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.streams[streamID]
	return ok, nil
}

// EnableStream transitions a stream to Active.
func (c *Controller) EnableStream(streamID uint32) *smmuerr.Error {
	sc, ok := c.lookupStream(streamID)
	if !ok {
		return smmuerr.New(smmuerr.StreamNotFound)
	}
	return sc.EnableStream()
}

// DisableStream transitions a stream back to Configured.
func (c *Controller) DisableStream(streamID uint32) *smmuerr.Error {
	sc, ok := c.lookupStream(streamID)
	if !ok {
		return smmuerr.New(smmuerr.StreamNotFound)
	}
	return sc.DisableStream()
}

// IsStreamEnabled reports whether a stream currently accepts translations.
func (c *Controller) IsStreamEnabled(streamID uint32) (bool, *smmuerr.Error) {
	sc, ok := c.lookupStream(streamID)
	if !ok {
		return false, smmuerr.New(smmuerr.StreamNotFound)
	}
	return sc.IsEnabled(), nil
}

// CreateStreamContext creates a per-PASID stage-1 address space on a
// stream.
func (c *Controller) CreateStreamContext(streamID, contextID uint32) *smmuerr.Error {
	sc, ok := c.lookupStream(streamID)
	if !ok {
		return smmuerr.New(smmuerr.StreamNotConfigured)
	}
	return sc.CreateContext(contextID)
}

// RemoveStreamContext removes a per-PASID stage-1 address space and
// invalidates its TLB scope.
func (c *Controller) RemoveStreamContext(streamID, contextID uint32) *smmuerr.Error {
	sc, ok := c.lookupStream(streamID)
	if !ok {
		return smmuerr.New(smmuerr.StreamNotConfigured)
	}
	if err := sc.RemoveContext(contextID); err != nil {
		return err
	}
	c.tlbCache.InvalidateByContext(streamID, contextID)
	return nil
}

// AttachStage2 installs a shared stage-2 address space on a stream (see
// stream.SharedAddressSpace for the copy-on-share reference-counting
// semantics of spec.md §9).
func (c *Controller) AttachStage2(streamID uint32, shared *stream.SharedAddressSpace) *smmuerr.Error {
	sc, ok := c.lookupStream(streamID)
	if !ok {
		return smmuerr.New(smmuerr.StreamNotConfigured)
	}
	sc.AttachStage2(shared)
	return nil
}

// MapPage installs a page-aligned translation and invalidates any stale TLB
// entry for that page.
func (c *Controller) MapPage(streamID, contextID uint32, iova, pa hostarch.Addr, perms hostarch.Permissions, security hostarch.SecurityState) *smmuerr.Error {
	sc, ok := c.lookupStream(streamID)
	if !ok {
		return smmuerr.New(smmuerr.StreamNotConfigured)
	}
	as, ok := sc.ContextSpace(contextID)
	if !ok {
		return smmuerr.New(smmuerr.ContextNotFound)
	}
	if err := as.MapPage(iova, pa, perms, security); err != nil {
		return err
	}
	c.tlbCache.InvalidatePageAllSecurity(streamID, contextID, iova.PageAligned())
	return nil
}

// UnmapPage removes a page-aligned translation and invalidates any cached
// copy (Testable property 4).
func (c *Controller) UnmapPage(streamID, contextID uint32, iova hostarch.Addr) *smmuerr.Error {
	sc, ok := c.lookupStream(streamID)
	if !ok {
		return smmuerr.New(smmuerr.StreamNotConfigured)
	}
	as, ok := sc.ContextSpace(contextID)
	if !ok {
		return smmuerr.New(smmuerr.ContextNotFound)
	}
	if err := as.UnmapPage(iova); err != nil {
		return err
	}
	c.tlbCache.InvalidatePageAllSecurity(streamID, contextID, iova.PageAligned())
	return nil
}

// --- queue.Hooks implementation (command dispatch callbacks) ---

func (c *Controller) InvalidateByStream(streamID uint32) {
	c.tlbCache.InvalidateByStream(streamID)
}

func (c *Controller) InvalidateByContext(streamID, contextID uint32) {
	c.tlbCache.InvalidateByContext(streamID, contextID)
}

func (c *Controller) InvalidateAll() {
	c.tlbCache.InvalidateAll()
}

func (c *Controller) InvalidatePageAllSecurity(streamID, contextID uint32, iova hostarch.Addr) {
	c.tlbCache.InvalidatePageAllSecurity(streamID, contextID, iova)
}

func (c *Controller) ResumeStream(streamID uint32) {
	if sc, ok := c.lookupStream(streamID); ok {
		sc.Resume()
	}
}

func (c *Controller) CompletePageRequest(streamID, contextID uint32, _ hostarch.Addr) {
	if sc, ok := c.lookupStream(streamID); ok {
		sc.CompleteStall(contextID)
	}
}
