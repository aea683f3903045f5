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

// Package addrspace implements component C1 of the translator: a sparse,
// page-indexed map from IOVA (or IPA) to physical page plus permissions and
// security state, with page- and range-granularity map/unmap and a compact
// contiguous-run query.
package addrspace

import (
	"github.com/google/btree"

	"github.com/jpgreninger/smmu/pkg/hostarch"
	"github.com/jpgreninger/smmu/pkg/smmu/smmuerr"
)

// PageEntry is a single page's translation and access-control state.
// Invariant: a present key in AddressSpace implies Valid == true; entries
// are never stored with Valid == false, they are removed instead.
type PageEntry struct {
	PhysicalPageBase hostarch.Addr
	Permissions      hostarch.Permissions
	Security         hostarch.SecurityState
	Valid            bool
}

// pageItem is the btree element: the page index keyed by page number, plus
// the keyed-off entry it stores. Ordering by PageNumber alone lets
// getMappedRanges walk the tree in address order to find contiguous runs.
type pageItem struct {
	PageNumber uint64
	Entry      PageEntry
}

func lessPageItem(a, b pageItem) bool {
	return a.PageNumber < b.PageNumber
}

// TranslationResult is the outcome of translating a single page.
type TranslationResult struct {
	PhysicalAddress hostarch.Addr
	Permissions     hostarch.Permissions
	Security        hostarch.SecurityState
}

// MappedRange is a maximal contiguous run returned by GetMappedRanges.
type MappedRange struct {
	StartIOVA   hostarch.Addr
	EndIOVA     hostarch.Addr // inclusive
	StartPA     hostarch.Addr
	Permissions hostarch.Permissions
	Security    hostarch.SecurityState
}

// AddressSpace holds the per-context (or shared stage-2) page map. The zero
// value is not usable; construct with New. Callers are responsible for
// serializing access (StreamContext's mutex, per spec.md §5).
type AddressSpace struct {
	tree *btree.BTreeG[pageItem]
}

// New returns an empty AddressSpace.
func New() *AddressSpace {
	return &AddressSpace{tree: btree.NewG(32, lessPageItem)}
}

// MapPage installs a page-aligned translation. Repeated calls against the
// same IOVA are an overwrite (spec.md §4.1 policy); the caller is expected
// to invalidate any cache entries keyed on this page.
func (as *AddressSpace) MapPage(iova, pa hostarch.Addr, perms hostarch.Permissions, security hostarch.SecurityState) *smmuerr.Error {
	if !iova.IsPageAligned() || !pa.IsPageAligned() {
		return smmuerr.Newf(smmuerr.InvalidAddress, "iova=%#x pa=%#x not page-aligned", iova, pa)
	}
	as.tree.ReplaceOrInsert(pageItem{
		PageNumber: iova.PageNumber(),
		Entry: PageEntry{
			PhysicalPageBase: pa,
			Permissions:      perms,
			Security:         security,
			Valid:            true,
		},
	})
	return nil
}

// UnmapPage removes a single page's mapping.
func (as *AddressSpace) UnmapPage(iova hostarch.Addr) *smmuerr.Error {
	_, ok := as.tree.Delete(pageItem{PageNumber: iova.PageNumber()})
	if !ok {
		return smmuerr.New(smmuerr.PageNotMapped)
	}
	return nil
}

// MapRange maps every page in [startIova, endIova) to the matching page of
// [startPa, ...), page by page. On any page-level failure every page
// mapped during this call is unmapped again, restoring the pre-call state
// (transactional range insertion, spec.md §4.1).
func (as *AddressSpace) MapRange(startIova, endIova, startPa hostarch.Addr, perms hostarch.Permissions, security hostarch.SecurityState) *smmuerr.Error {
	if !startIova.IsPageAligned() || !endIova.IsPageAligned() || !startPa.IsPageAligned() {
		return smmuerr.New(smmuerr.InvalidAddress)
	}
	if endIova < startIova {
		return smmuerr.New(smmuerr.InvalidAddress)
	}
	var mapped []hostarch.Addr
	rollback := func() {
		for _, iova := range mapped {
			as.tree.Delete(pageItem{PageNumber: iova.PageNumber()})
		}
	}
	pages := (uint64(endIova) - uint64(startIova)) / hostarch.PageSize
	for i := uint64(0); i < pages; i++ {
		iova := hostarch.Addr(uint64(startIova) + i*hostarch.PageSize)
		pa := hostarch.Addr(uint64(startPa) + i*hostarch.PageSize)
		if err := as.MapPage(iova, pa, perms, security); err != nil {
			rollback()
			return err
		}
		mapped = append(mapped, iova)
	}
	return nil
}

// UnmapRange removes every present page in the inclusive range
// [startIova, endIova]; absent pages are silently skipped.
func (as *AddressSpace) UnmapRange(startIova, endIova hostarch.Addr) {
	startPN := startIova.PageNumber()
	endPN := endIova.PageNumber()
	var toDelete []pageItem
	as.tree.AscendRange(pageItem{PageNumber: startPN}, pageItem{PageNumber: endPN + 1}, func(item pageItem) bool {
		toDelete = append(toDelete, item)
		return true
	})
	for _, item := range toDelete {
		as.tree.Delete(item)
	}
}

// GetPageEntry returns the raw stored entry for iova's page, without
// checking access type or security state. The translator (C5) uses this
// directly when walking a stage whose permission/security check must be
// deferred (e.g. stage-1 of a two-stage translation, where the final check
// applies to the stage1 ∧ stage2 intersection, not to stage-1 alone).
func (as *AddressSpace) GetPageEntry(iova hostarch.Addr) (PageEntry, bool) {
	item, ok := as.tree.Get(pageItem{PageNumber: iova.PageNumber()})
	if !ok {
		return PageEntry{}, false
	}
	return item.Entry, true
}

// TranslatePage looks up a single page and checks the requested access type
// and security state against it. This is the direct, single-stage
// AddressSpace operation of spec.md §4.1; the translator's multi-stage
// pipeline uses GetPageEntry instead so it can defer permission checks
// until stage permissions have been intersected.
func (as *AddressSpace) TranslatePage(iova hostarch.Addr, access hostarch.AccessType, security hostarch.SecurityState) (TranslationResult, *smmuerr.Error) {
	entry, ok := as.GetPageEntry(iova)
	if !ok {
		return TranslationResult{}, smmuerr.New(smmuerr.PageNotMapped)
	}
	if !entry.Permissions.Allows(access) {
		return TranslationResult{}, smmuerr.New(smmuerr.PagePermissionViolation)
	}
	if !security.CompatibleWithPage(entry.Security) {
		return TranslationResult{}, smmuerr.New(smmuerr.InvalidSecurityState)
	}
	pa := hostarch.Addr(uint64(entry.PhysicalPageBase) + iova.Offset())
	return TranslationResult{PhysicalAddress: pa, Permissions: entry.Permissions, Security: entry.Security}, nil
}

// GetMappedRanges returns the maximal contiguous runs in the address space,
// where a run continues from one page to the next only if IOVA and PA are
// both consecutive and permissions/security match.
func (as *AddressSpace) GetMappedRanges() []MappedRange {
	var ranges []MappedRange
	var cur *MappedRange
	var curStartPN uint64

	flush := func() {
		if cur != nil {
			ranges = append(ranges, *cur)
			cur = nil
		}
	}

	as.tree.Ascend(func(item pageItem) bool {
		pn := item.PageNumber
		entry := item.Entry
		iova := hostarch.PageNumberToAddr(pn)
		iovaEnd := hostarch.Addr(uint64(iova) + hostarch.PageSize - 1)

		if cur != nil &&
			pn == cur.EndIOVA.PageNumber()+1 &&
			uint64(entry.PhysicalPageBase) == uint64(cur.StartPA)+(pn-curStartPN)*hostarch.PageSize &&
			entry.Permissions == cur.Permissions &&
			entry.Security == cur.Security {
			cur.EndIOVA = iovaEnd
			return true
		}

		flush()
		cur = &MappedRange{
			StartIOVA:   iova,
			EndIOVA:     iovaEnd,
			StartPA:     entry.PhysicalPageBase,
			Permissions: entry.Permissions,
			Security:    entry.Security,
		}
		curStartPN = pn
		return true
	})
	flush()
	return ranges
}

// IsPageMapped reports whether iova's page has a present entry.
func (as *AddressSpace) IsPageMapped(iova hostarch.Addr) bool {
	_, ok := as.tree.Get(pageItem{PageNumber: iova.PageNumber()})
	return ok
}

// GetPageCount returns the number of present pages.
func (as *AddressSpace) GetPageCount() int {
	return as.tree.Len()
}

// GetPagePermissions returns the stored permissions for a mapped page.
func (as *AddressSpace) GetPagePermissions(iova hostarch.Addr) (hostarch.Permissions, bool) {
	item, ok := as.tree.Get(pageItem{PageNumber: iova.PageNumber()})
	if !ok {
		return hostarch.Permissions{}, false
	}
	return item.Entry.Permissions, true
}

// GetAddressSpaceSize returns the span in bytes from the lowest to the
// highest mapped page, inclusive, or 0 if nothing is mapped.
func (as *AddressSpace) GetAddressSpaceSize() uint64 {
	if as.tree.Len() == 0 {
		return 0
	}
	min, _ := as.tree.Min()
	max, _ := as.tree.Max()
	return (max.PageNumber-min.PageNumber+1)*hostarch.PageSize
}

// Clear removes every mapping.
func (as *AddressSpace) Clear() {
	as.tree.Clear(false)
}
