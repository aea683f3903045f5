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

// Package hostarch provides address and permission types shared by every
// layer of the translation pipeline. It is intentionally small: the core
// models a page-indexed translator, not a host MMU, so there is no
// architecture-specific code here beyond the page size.
package hostarch

import "fmt"

// PageSize is the granule size assumed throughout the translator. The spec
// fixes this at 4096; there is no support for huge pages.
const PageSize = 4096

// PageMask is the bitmask of the in-page offset.
const PageMask = PageSize - 1

// MaxStreamID is the largest representable StreamID (2^32 - 1).
const MaxStreamID = 1<<32 - 1

// MaxContextID is the largest representable ContextID, i.e. PASID (2^20 - 1).
const MaxContextID = 1<<20 - 1

// Addr is a 64-bit IOVA, IPA, or PA.
type Addr uint64

// PageNumber returns addr's page number, i.e. addr >> 12.
func (addr Addr) PageNumber() uint64 {
	return uint64(addr) >> 12
}

// Offset returns addr's offset within its page.
func (addr Addr) Offset() uint64 {
	return uint64(addr) & PageMask
}

// IsPageAligned reports whether addr falls exactly on a page boundary.
func (addr Addr) IsPageAligned() bool {
	return uint64(addr)&PageMask == 0
}

// PageAligned truncates addr down to its containing page.
func (addr Addr) PageAligned() Addr {
	return Addr(uint64(addr) &^ PageMask)
}

// PageNumberToAddr reconstructs the page-aligned address for a page number.
func PageNumberToAddr(pageNumber uint64) Addr {
	return Addr(pageNumber << 12)
}

// AccessType describes the kind of memory access being translated.
type AccessType int

const (
	Read AccessType = iota
	Write
	Execute
)

func (a AccessType) String() string {
	switch a {
	case Read:
		return "read"
	case Write:
		return "write"
	case Execute:
		return "execute"
	default:
		return fmt.Sprintf("AccessType(%d)", int(a))
	}
}

// Permissions is a (read, write, execute) triple. Intersection is elementwise
// AND; there is no implicit escalation between access types.
type Permissions struct {
	Read    bool
	Write   bool
	Execute bool
}

// FullPermissions is the identity/bypass permission set.
var FullPermissions = Permissions{Read: true, Write: true, Execute: true}

// Allows reports whether the permission set permits the given access.
func (p Permissions) Allows(access AccessType) bool {
	switch access {
	case Read:
		return p.Read
	case Write:
		return p.Write
	case Execute:
		return p.Execute
	default:
		return false
	}
}

// Intersect returns the elementwise AND of p and other, matching gVisor's
// hostarch.AccessType.Intersect pattern of composing permissions across
// translation stages.
func (p Permissions) Intersect(other Permissions) Permissions {
	return Permissions{
		Read:    p.Read && other.Read,
		Write:   p.Write && other.Write,
		Execute: p.Execute && other.Execute,
	}
}

// IsEmpty reports whether all three bits are false.
func (p Permissions) IsEmpty() bool {
	return !p.Read && !p.Write && !p.Execute
}

// SecurityState is the ARM security world of a request or a page.
type SecurityState int

const (
	NonSecure SecurityState = iota
	Secure
	Realm
)

func (s SecurityState) String() string {
	switch s {
	case NonSecure:
		return "non-secure"
	case Secure:
		return "secure"
	case Realm:
		return "realm"
	default:
		return fmt.Sprintf("SecurityState(%d)", int(s))
	}
}

// CompatibleWithPage reports whether a request in security state req may
// access a page stored with security state pageSec, per spec.md §4.1: equal
// states are always compatible and any mismatch is not, so both a NonSecure
// request against a Secure page and a Secure request against a NonSecure
// page fail here. The translator applies this check to each page's
// effective security state (stage-2's in two-stage mode).
func (req SecurityState) CompatibleWithPage(pageSec SecurityState) bool {
	return req == pageSec
}
