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

// Package fault implements component C4 (bounded fault FIFO with counters)
// and the bit-exact fault syndrome encoding of spec.md §4.5 — the only
// wire-stable format this core exports. It is hand-encoded with shifts and
// masks per spec.md §9 ("do not rely on host bitfield packing"), never a
// host struct layout.
package fault

import "github.com/jpgreninger/smmu/pkg/hostarch"

// FaultType enumerates the kinds of translation/structural failure.
type FaultType int

const (
	TranslationFault FaultType = iota
	PermissionFault
	AccessFault
	AddressSizeFault
	ExternalAbortFault
	FormatFault
	SecurityFault
	TLBConflictFault
	Stage2TranslationFault
	ConfigurationErrorFault
)

// Stage identifies which translation regime a fault occurred in.
type Stage int

const (
	StageUnknown Stage = iota
	Stage1Only
	Stage2Only
	BothStages
)

// Privilege is the decoded exception level a fault is attributed to.
type Privilege int

const (
	EL0 Privilege = iota
	EL1
	EL2
	EL3
)

// Classification distinguishes an instruction fetch from a data access.
type Classification int

const (
	DataAccess Classification = iota
	InstructionFetch
)

// implID is the implementer-defined identifier placed in bits[23:16] of the
// syndrome word (§4.5).
const implID = 0x42

// fscFor computes the FSC (bits 5:0) for a given fault type and stage level,
// per the table in spec.md §4.5.
func fscFor(ft FaultType, level int) uint32 {
	switch ft {
	case TranslationFault:
		return 0x04 | uint32(level)
	case PermissionFault:
		return 0x0C | uint32(level)
	case AccessFault:
		return 0x08 | uint32(level)
	case AddressSizeFault:
		return 0x00
	case ExternalAbortFault:
		return 0x10 // synchronous; Encode uses 0x11 instead when Syndrome.Async is set
	case FormatFault:
		return 0x0A
	case SecurityFault:
		return 0x20
	case TLBConflictFault, ConfigurationErrorFault:
		return 0x30
	default:
		return 0x02 // default debug
	}
}

// Syndrome is the decoded, 32-bit-encodable fault syndrome of spec.md §4.5.
type Syndrome struct {
	FaultType FaultType
	Stage     Stage
	Level     int
	Access    hostarch.AccessType
	Security  hostarch.SecurityState
	// Async selects the 0x11 (asynchronous) external-abort FSC instead of
	// 0x10 (synchronous); meaningless for any FaultType other than
	// ExternalAbortFault.
	Async bool
	// ContextDescriptorIndex is propagated by the caller when relevant
	// (e.g. a multi-level context descriptor walk); the core's page-indexed
	// model always sets it to 0.
	ContextDescriptorIndex uint8
	Valid                  bool
}

// Privilege derives the decoded privilege level: EL3 if Secure, EL2 if
// Realm, EL0 if Execute in NonSecure, else EL1.
func (s Syndrome) Privilege() Privilege {
	switch {
	case s.Security == hostarch.Secure:
		return EL3
	case s.Security == hostarch.Realm:
		return EL2
	case s.Security == hostarch.NonSecure && s.Access == hostarch.Execute:
		return EL0
	default:
		return EL1
	}
}

// Classification derives InstructionFetch for Execute accesses, DataAccess
// otherwise.
func (s Syndrome) Classification() Classification {
	if s.Access == hostarch.Execute {
		return InstructionFetch
	}
	return DataAccess
}

// Encode produces the bit-exact 32-bit syndrome word of spec.md §4.5.
func (s Syndrome) Encode() uint32 {
	var fsc uint32
	if s.FaultType == ExternalAbortFault && s.Async {
		fsc = 0x11
	} else {
		fsc = fscFor(s.FaultType, s.Level)
	}

	var word uint32
	word |= fsc & 0x3F // bits 5:0

	if s.Access == hostarch.Write {
		word |= 1 << 6 // WnR
	}
	if s.Stage == Stage2Only || s.Stage == BothStages {
		word |= 1 << 7 // S2
	}
	if s.Access == hostarch.Execute {
		word |= 1 << 8 // INST
	}
	// bits 15:9 reserved, left zero.
	word |= (uint32(implID) & 0xFF) << 16 // bits 23:16
	// bits 31:24 reserved, left zero.
	return word
}
