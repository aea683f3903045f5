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

package addrspace

import (
	"testing"

	"github.com/jpgreninger/smmu/pkg/hostarch"
	"github.com/jpgreninger/smmu/pkg/smmu/smmuerr"
)

func rw() hostarch.Permissions { return hostarch.Permissions{Read: true, Write: true} }

func TestMapAndTranslatePage(t *testing.T) {
	as := New()
	iova := hostarch.Addr(0x1000)
	pa := hostarch.Addr(0x9000)
	if err := as.MapPage(iova, pa, rw(), hostarch.NonSecure); err != nil {
		t.Fatalf("MapPage: %v", err)
	}
	res, err := as.TranslatePage(hostarch.Addr(0x1010), hostarch.Read, hostarch.NonSecure)
	if err != nil {
		t.Fatalf("TranslatePage: %v", err)
	}
	if res.PhysicalAddress != hostarch.Addr(0x9010) {
		t.Fatalf("PhysicalAddress = %#x, want %#x", res.PhysicalAddress, 0x9010)
	}
}

func TestMapPageRejectsUnaligned(t *testing.T) {
	as := New()
	err := as.MapPage(hostarch.Addr(0x1001), hostarch.Addr(0x9000), rw(), hostarch.NonSecure)
	if err == nil || err.Kind != smmuerr.InvalidAddress {
		t.Fatalf("MapPage(unaligned) = %v, want InvalidAddress", err)
	}
}

func TestTranslateUnmappedPage(t *testing.T) {
	as := New()
	_, err := as.TranslatePage(hostarch.Addr(0x2000), hostarch.Read, hostarch.NonSecure)
	if err == nil || err.Kind != smmuerr.PageNotMapped {
		t.Fatalf("TranslatePage(unmapped) = %v, want PageNotMapped", err)
	}
}

func TestTranslatePagePermissionViolation(t *testing.T) {
	as := New()
	ro := hostarch.Permissions{Read: true}
	as.MapPage(hostarch.Addr(0x1000), hostarch.Addr(0x9000), ro, hostarch.NonSecure)
	_, err := as.TranslatePage(hostarch.Addr(0x1000), hostarch.Write, hostarch.NonSecure)
	if err == nil || err.Kind != smmuerr.PagePermissionViolation {
		t.Fatalf("TranslatePage(write to ro) = %v, want PagePermissionViolation", err)
	}
}

func TestTranslatePageSecurityMismatch(t *testing.T) {
	as := New()
	as.MapPage(hostarch.Addr(0x1000), hostarch.Addr(0x9000), rw(), hostarch.Secure)
	_, err := as.TranslatePage(hostarch.Addr(0x1000), hostarch.Read, hostarch.NonSecure)
	if err == nil || err.Kind != smmuerr.InvalidSecurityState {
		t.Fatalf("TranslatePage(NonSecure against Secure page) = %v, want InvalidSecurityState", err)
	}
}

func TestUnmapPage(t *testing.T) {
	as := New()
	as.MapPage(hostarch.Addr(0x1000), hostarch.Addr(0x9000), rw(), hostarch.NonSecure)
	if err := as.UnmapPage(hostarch.Addr(0x1000)); err != nil {
		t.Fatalf("UnmapPage: %v", err)
	}
	if as.IsPageMapped(hostarch.Addr(0x1000)) {
		t.Fatal("page still mapped after UnmapPage")
	}
	if err := as.UnmapPage(hostarch.Addr(0x1000)); err == nil || err.Kind != smmuerr.PageNotMapped {
		t.Fatalf("UnmapPage(already gone) = %v, want PageNotMapped", err)
	}
}

func TestMapRangeAndRollbackOnFailure(t *testing.T) {
	as := New()
	start := hostarch.Addr(0)
	end := hostarch.Addr(4 * hostarch.PageSize)
	if err := as.MapRange(start, end, hostarch.Addr(0x100000), rw(), hostarch.NonSecure); err != nil {
		t.Fatalf("MapRange: %v", err)
	}
	if as.GetPageCount() != 4 {
		t.Fatalf("GetPageCount() = %d, want 4", as.GetPageCount())
	}

	as2 := New()
	badEnd := hostarch.Addr(hostarch.PageSize + 1)
	if err := as2.MapRange(start, badEnd, hostarch.Addr(0x100000), rw(), hostarch.NonSecure); err == nil {
		t.Fatal("expected MapRange to reject an unaligned end address")
	}
	if as2.GetPageCount() != 0 {
		t.Fatalf("GetPageCount() after failed MapRange = %d, want 0", as2.GetPageCount())
	}
}

func TestUnmapRange(t *testing.T) {
	as := New()
	as.MapRange(0, 4*hostarch.PageSize, 0x100000, rw(), hostarch.NonSecure)
	as.UnmapRange(hostarch.PageSize, 2*hostarch.PageSize)
	if as.GetPageCount() != 2 {
		t.Fatalf("GetPageCount() = %d, want 2", as.GetPageCount())
	}
	if as.IsPageMapped(hostarch.PageSize) || as.IsPageMapped(2*hostarch.PageSize) {
		t.Fatal("UnmapRange left a page mapped inside its inclusive range")
	}
	if !as.IsPageMapped(0) || !as.IsPageMapped(3*hostarch.PageSize) {
		t.Fatal("UnmapRange removed a page outside its range")
	}
}

func TestGetMappedRangesCoalescesContiguousRuns(t *testing.T) {
	as := New()
	as.MapRange(0, 3*hostarch.PageSize, 0x100000, rw(), hostarch.NonSecure)
	// Leave a gap, then a second contiguous run with different permissions.
	ro := hostarch.Permissions{Read: true}
	as.MapPage(hostarch.Addr(5*hostarch.PageSize), hostarch.Addr(0x200000), ro, hostarch.NonSecure)
	as.MapPage(hostarch.Addr(6*hostarch.PageSize), hostarch.Addr(0x200000+hostarch.PageSize), ro, hostarch.NonSecure)

	ranges := as.GetMappedRanges()
	if len(ranges) != 2 {
		t.Fatalf("GetMappedRanges() returned %d ranges, want 2", len(ranges))
	}
	if ranges[0].StartIOVA != 0 || ranges[0].EndIOVA != hostarch.Addr(3*hostarch.PageSize-1) {
		t.Fatalf("first range = %+v", ranges[0])
	}
	if ranges[1].StartIOVA != hostarch.Addr(5*hostarch.PageSize) {
		t.Fatalf("second range start = %#x, want %#x", ranges[1].StartIOVA, 5*hostarch.PageSize)
	}
}

func TestGetAddressSpaceSize(t *testing.T) {
	as := New()
	if as.GetAddressSpaceSize() != 0 {
		t.Fatal("empty address space should report size 0")
	}
	as.MapPage(0, 0x1000, rw(), hostarch.NonSecure)
	as.MapPage(hostarch.Addr(3*hostarch.PageSize), hostarch.Addr(0x4000), rw(), hostarch.NonSecure)
	if got := as.GetAddressSpaceSize(); got != 4*hostarch.PageSize {
		t.Fatalf("GetAddressSpaceSize() = %d, want %d", got, 4*hostarch.PageSize)
	}
}

func TestClear(t *testing.T) {
	as := New()
	as.MapRange(0, 2*hostarch.PageSize, 0x1000, rw(), hostarch.NonSecure)
	as.Clear()
	if as.GetPageCount() != 0 {
		t.Fatalf("GetPageCount() after Clear = %d, want 0", as.GetPageCount())
	}
}

func TestMapPageOverwritesExisting(t *testing.T) {
	as := New()
	as.MapPage(0x1000, 0x9000, rw(), hostarch.NonSecure)
	as.MapPage(0x1000, 0xA000, hostarch.Permissions{Read: true}, hostarch.Secure)
	entry, ok := as.GetPageEntry(0x1000)
	if !ok {
		t.Fatal("expected entry after overwrite")
	}
	if entry.PhysicalPageBase != 0xA000 || entry.Security != hostarch.Secure {
		t.Fatalf("entry after overwrite = %+v", entry)
	}
}
