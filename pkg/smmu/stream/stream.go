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

// Package stream implements component C2: per-stream state, its
// context-indexed (PASID-indexed) stage-1 address spaces, an optional
// shared stage-2 address space, and the stream lifecycle state machine of
// spec.md §4.2.
//
// Lock order (spec.md §5): controller -> this package's Context.mu -> tlb.
// A Context method must never call back into the controller or the TLB
// while holding mu.
package stream

import (
	deadlock "github.com/sasha-s/go-deadlock"

	"github.com/jpgreninger/smmu/pkg/hostarch"
	"github.com/jpgreninger/smmu/pkg/smmu/addrspace"
	"github.com/jpgreninger/smmu/pkg/smmu/config"
	"github.com/jpgreninger/smmu/pkg/smmu/smmuerr"
)

// State is a stream's position in the lifecycle state machine of
// spec.md §4.2.
type State int

const (
	Unconfigured State = iota
	Configured
	Active
	Stalled
)

func (s State) String() string {
	switch s {
	case Unconfigured:
		return "unconfigured"
	case Configured:
		return "configured"
	case Active:
		return "active"
	case Stalled:
		return "stalled"
	default:
		return "unknown"
	}
}

// Config is the per-stream StreamConfig of spec.md §3.
type Config struct {
	TranslationEnabled bool
	Stage1Enabled      bool
	Stage2Enabled      bool
	FaultMode          config.FaultMode
}

// Validate applies the rules of spec.md §4.2: translationEnabled requires
// at least one stage bit, and the fault mode must be one of the defined
// variants.
func (c Config) Validate() *smmuerr.Error {
	if c.TranslationEnabled && !c.Stage1Enabled && !c.Stage2Enabled {
		return smmuerr.Newf(smmuerr.StreamConfigurationError, "translationEnabled requires at least one stage")
	}
	if c.FaultMode != config.Terminate && c.FaultMode != config.Stall {
		return smmuerr.New(smmuerr.StreamConfigurationError)
	}
	return nil
}

// Statistics accumulates monotonic per-stream counters.
type Statistics struct {
	Translations      uint64
	Faults            uint64
	ConfigChanges     uint64
	StalledRequests   uint64
	CompletedRequests uint64
}

// Context is a single stream's full state (spec.md's "StreamContext").
type Context struct {
	mu deadlock.Mutex

	state  State
	config Config

	contexts     map[uint32]*addrspace.AddressSpace
	contextLimit uint32

	stage2 *SharedAddressSpace

	configChanged bool
	stats         Statistics

	// stalledRequests tracks outstanding PASIDs waiting on a page response
	// while the stream is Stalled, so CompletePageRequest knows when the
	// stream may return to Active (all outstanding requests resolved).
	stalledRequests map[uint32]int
}

// New returns an unconfigured stream context with the given per-context
// limit (0 means unlimited).
func New(contextLimit uint32) *Context {
	return &Context{
		state:           Unconfigured,
		contexts:        make(map[uint32]*addrspace.AddressSpace),
		contextLimit:    contextLimit,
		stalledRequests: make(map[uint32]int),
	}
}

// Configure transitions Unconfigured -> Configured (or updates an already
// configured stream), validating cfg.
func (c *Context) Configure(cfg Config) *smmuerr.Error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.config = cfg
	if c.state == Unconfigured {
		c.state = Configured
	}
	c.configChanged = true
	c.stats.ConfigChanges++
	return nil
}

// UpdateConfiguration validates and atomically replaces cfg, per spec.md
// §4.2. On validation failure the old configuration remains in force.
func (c *Context) UpdateConfiguration(cfg Config) *smmuerr.Error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.config = cfg
	c.configChanged = true
	c.stats.ConfigChanges++
	return nil
}

// EnableStream transitions Configured -> Active.
func (c *Context) EnableStream() *smmuerr.Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Unconfigured {
		return smmuerr.New(smmuerr.StreamNotConfigured)
	}
	c.state = Active
	return nil
}

// DisableStream transitions Active/Stalled -> Configured.
func (c *Context) DisableStream() *smmuerr.Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Unconfigured {
		return smmuerr.New(smmuerr.StreamNotConfigured)
	}
	c.state = Configured
	return nil
}

// IsEnabled reports whether the stream currently accepts translations.
func (c *Context) IsEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == Active || c.state == Stalled
}

// State returns the current lifecycle state.
func (c *Context) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Config returns a copy of the current StreamConfig.
func (c *Context) Config() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.config
}

// Statistics returns a copy of the current per-stream statistics.
func (c *Context) Statistics() Statistics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// ConfigChanged reports and clears the configuration-changed flag.
func (c *Context) ConfigChanged() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := c.configChanged
	c.configChanged = false
	return v
}

// CreateContext creates a new per-PASID stage-1 address space.
func (c *Context) CreateContext(id uint32) *smmuerr.Error {
	if id > hostarch.MaxContextID {
		return smmuerr.New(smmuerr.InvalidContextID)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.contexts[id]; ok {
		return smmuerr.New(smmuerr.ContextAlreadyExists)
	}
	if c.contextLimit > 0 && uint32(len(c.contexts)) >= c.contextLimit {
		return smmuerr.New(smmuerr.ContextLimitExceeded)
	}
	c.contexts[id] = addrspace.New()
	return nil
}

// AddContext attaches an externally owned address space under id (used for
// copy-on-share scenarios, spec.md §4.2).
func (c *Context) AddContext(id uint32, shared *addrspace.AddressSpace) *smmuerr.Error {
	if id > hostarch.MaxContextID {
		return smmuerr.New(smmuerr.InvalidContextID)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.contexts[id]; ok {
		return smmuerr.New(smmuerr.ContextAlreadyExists)
	}
	c.contexts[id] = shared
	return nil
}

// RemoveContext deletes a per-PASID address space.
func (c *Context) RemoveContext(id uint32) *smmuerr.Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.contexts[id]; !ok {
		return smmuerr.New(smmuerr.ContextNotFound)
	}
	delete(c.contexts, id)
	return nil
}

// ContextSpace returns the stage-1 address space for id, if any.
func (c *Context) ContextSpace(id uint32) (*addrspace.AddressSpace, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	as, ok := c.contexts[id]
	return as, ok
}

// ContextCount returns the number of configured per-PASID contexts.
func (c *Context) ContextCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.contexts)
}

// SetContextLimit updates the per-context cap applied by CreateContext.
// Existing contexts above the new limit are left in place; only further
// CreateContext calls are affected.
func (c *Context) SetContextLimit(limit uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.contextLimit = limit
}

// AttachStage2 installs (or replaces) the stream's shared stage-2 address
// space. The Context takes its own reference via Acquire; callers retain
// their own.
func (c *Context) AttachStage2(shared *SharedAddressSpace) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stage2 != nil {
		c.stage2.Release()
	}
	c.stage2 = shared.Acquire()
}

// Stage2Space returns the stream's shared stage-2 address space, if any.
func (c *Context) Stage2Space() (*addrspace.AddressSpace, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stage2 == nil {
		return nil, false
	}
	return c.stage2.Space(), true
}

// DetachStage2 releases the stream's reference to its stage-2 space.
func (c *Context) DetachStage2() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stage2 != nil {
		c.stage2.Release()
		c.stage2 = nil
	}
}

// RecordTranslation increments the per-stream translation counter.
func (c *Context) RecordTranslation() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.Translations++
}

// RecordFault increments the per-stream fault counter.
func (c *Context) RecordFault() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.Faults++
}

// EnterStall transitions Active -> Stalled and records one outstanding
// request for contextID (spec.md §4.2: "Active --fault(stall)--> Stalled").
func (c *Context) EnterStall(contextID uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = Stalled
	c.stalledRequests[contextID]++
	c.stats.StalledRequests++
}

// CompleteStall resolves one outstanding request for contextID. If no
// requests remain outstanding for any context, the stream returns to
// Active (spec.md §4.2: "Stalled --page-resp--> Active").
func (c *Context) CompleteStall(contextID uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n := c.stalledRequests[contextID]; n > 0 {
		if n == 1 {
			delete(c.stalledRequests, contextID)
		} else {
			c.stalledRequests[contextID] = n - 1
		}
		c.stats.CompletedRequests++
	}
	if len(c.stalledRequests) == 0 && c.state == Stalled {
		c.state = Active
	}
}

// Resume forces the stream back to Active regardless of outstanding
// requests (used by the Resume command, spec.md §4.6).
func (c *Context) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stalledRequests = make(map[uint32]int)
	if c.state == Stalled {
		c.state = Active
	}
}
