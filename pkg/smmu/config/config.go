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

// Package config implements component C7: a validated configuration record
// split into four self-validating groups, a textual key=value round-trip
// format, and a set of factory profiles with concrete numeric presets.
package config

import (
	"github.com/mohae/deepcopy"

	"github.com/jpgreninger/smmu/pkg/smmu/smmuerr"
)

// QueueSizes bounds the three FIFOs of the queue layer (C6).
type QueueSizes struct {
	EventQueueSize   uint32
	CommandQueueSize uint32
	PRIQueueSize     uint32
}

const (
	MinQueueSize = 1
	MaxQueueSize = 1 << 20
)

func (q QueueSizes) validate() *smmuerr.Error {
	for name, v := range map[string]uint32{
		"eventQueueSize":   q.EventQueueSize,
		"commandQueueSize": q.CommandQueueSize,
		"priQueueSize":     q.PRIQueueSize,
	} {
		if v < MinQueueSize || v > MaxQueueSize {
			return smmuerr.Newf(smmuerr.InvalidConfiguration, "%s=%d out of range [%d,%d]", name, v, MinQueueSize, MaxQueueSize)
		}
	}
	return nil
}

// CacheSettings bounds the TLB (C3).
type CacheSettings struct {
	TLBSize       uint32
	MaxAgeMicros  uint64
	EnableCaching bool
}

const (
	MinTLBSize      = 1
	MaxTLBSize      = 1 << 20
	MaxAgeMicrosCap = 1 << 34 // ~4.8 hours; validate rejects anything larger
)

func (c CacheSettings) validate() *smmuerr.Error {
	if c.TLBSize < MinTLBSize || c.TLBSize > MaxTLBSize {
		return smmuerr.Newf(smmuerr.InvalidConfiguration, "tlbSize=%d out of range [%d,%d]", c.TLBSize, MinTLBSize, MaxTLBSize)
	}
	if c.MaxAgeMicros > MaxAgeMicrosCap {
		return smmuerr.Newf(smmuerr.InvalidConfiguration, "maxAgeMicros=%d exceeds cap %d", c.MaxAgeMicros, MaxAgeMicrosCap)
	}
	return nil
}

// AddressLimits bounds the identifier and address-bit space.
type AddressLimits struct {
	MaxIovaBits     uint8
	MaxPaBits       uint8
	MaxStreamCount  uint32
	MaxContextCount uint32
}

const (
	MinAddressBits  = 12 // at least one page's worth
	MaxAddressBits  = 52 // ARMv8 maximum output address size
	MinStreamCount  = 1
	MaxStreamCount  = 1 << 20
	MinContextCount = 1
	MaxContextCount = 1 << 20
)

func (a AddressLimits) validate() *smmuerr.Error {
	if a.MaxIovaBits < MinAddressBits || a.MaxIovaBits > MaxAddressBits {
		return smmuerr.Newf(smmuerr.InvalidConfiguration, "maxIovaBits=%d out of range [%d,%d]", a.MaxIovaBits, MinAddressBits, MaxAddressBits)
	}
	if a.MaxPaBits < MinAddressBits || a.MaxPaBits > MaxAddressBits {
		return smmuerr.Newf(smmuerr.InvalidConfiguration, "maxPaBits=%d out of range [%d,%d]", a.MaxPaBits, MinAddressBits, MaxAddressBits)
	}
	if a.MaxStreamCount < MinStreamCount || a.MaxStreamCount > MaxStreamCount {
		return smmuerr.Newf(smmuerr.InvalidConfiguration, "maxStreamCount=%d out of range [%d,%d]", a.MaxStreamCount, MinStreamCount, MaxStreamCount)
	}
	if a.MaxContextCount < MinContextCount || a.MaxContextCount > MaxContextCount {
		return smmuerr.Newf(smmuerr.InvalidConfiguration, "maxContextCount=%d out of range [%d,%d]", a.MaxContextCount, MinContextCount, MaxContextCount)
	}
	return nil
}

// ResourceLimits bounds host resource consumption; advisory except for
// ThreadCap, which the controller enforces with a semaphore.
type ResourceLimits struct {
	MemoryCapBytes uint64
	ThreadCap      uint32
	TimeoutMs      uint32
}

const (
	MinThreadCap = 1
	MaxThreadCap = 1 << 16
	MaxTimeoutMs = 1 << 20
)

func (r ResourceLimits) validate() *smmuerr.Error {
	if r.ThreadCap < MinThreadCap || r.ThreadCap > MaxThreadCap {
		return smmuerr.Newf(smmuerr.InvalidConfiguration, "threadCap=%d out of range [%d,%d]", r.ThreadCap, MinThreadCap, MaxThreadCap)
	}
	if r.TimeoutMs > MaxTimeoutMs {
		return smmuerr.Newf(smmuerr.InvalidConfiguration, "timeoutMs=%d exceeds cap %d", r.TimeoutMs, MaxTimeoutMs)
	}
	return nil
}

// FaultMode is the stream-level recovery policy on a translation failure.
type FaultMode int

const (
	Terminate FaultMode = iota
	Stall
)

func (m FaultMode) valid() bool {
	return m == Terminate || m == Stall
}

// Configuration is the full C7 record.
type Configuration struct {
	Queues    QueueSizes
	Cache     CacheSettings
	Addresses AddressLimits
	Resources ResourceLimits
	// GlobalFaultMode is the default applied to newly configured streams;
	// each stream's StreamConfig may still override it.
	GlobalFaultMode FaultMode
}

// Validate checks every group. Group validation is independent; all
// failures are still reported via the first one encountered, matching the
// "old configuration remains in force" rollback rule of spec.md §4.2.
func (c Configuration) Validate() *smmuerr.Error {
	if err := c.Queues.validate(); err != nil {
		return err
	}
	if err := c.Cache.validate(); err != nil {
		return err
	}
	if err := c.Addresses.validate(); err != nil {
		return err
	}
	if err := c.Resources.validate(); err != nil {
		return err
	}
	if !c.GlobalFaultMode.valid() {
		return smmuerr.New(smmuerr.InvalidConfiguration)
	}
	return nil
}

// Clone deep-copies c so a caller can validate-then-swap without the old
// and new records aliasing any nested state. Configuration is presently
// flat, but Clone keeps the swap-then-rollback path in pkg/smmu/controller
// correct even if a field grows reference semantics later.
func (c Configuration) Clone() Configuration {
	return deepcopy.Copy(c).(Configuration)
}
