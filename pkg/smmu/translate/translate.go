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

// Package translate implements component C5, the hard core of the
// translator: stage selection, stage-1 -> stage-2 chaining, permission
// intersection, and bit-exact fault-syndrome construction, per spec.md
// §4.5.
package translate

import (
	"github.com/sirupsen/logrus"

	"github.com/jpgreninger/smmu/pkg/hostarch"
	"github.com/jpgreninger/smmu/pkg/smmu/config"
	"github.com/jpgreninger/smmu/pkg/smmu/fault"
	"github.com/jpgreninger/smmu/pkg/smmu/queue"
	"github.com/jpgreninger/smmu/pkg/smmu/smmuerr"
	"github.com/jpgreninger/smmu/pkg/smmu/stream"
	"github.com/jpgreninger/smmu/pkg/smmu/tlb"
)

// Result is a successful translation outcome.
type Result struct {
	PhysicalAddress hostarch.Addr
	Permissions     hostarch.Permissions
	Security        hostarch.SecurityState
}

// StreamLookup resolves a StreamID to its Context. The controller (C8),
// which owns the stream table, implements this; Translator never imports
// the controller package, avoiding an import cycle.
type StreamLookup func(streamID uint32) (*stream.Context, bool)

// Translator is component C5. It is stateless beyond its injected
// collaborators, so a single instance may be shared across streams; all
// synchronization happens inside TLB and stream.Context.
type Translator struct {
	TLB    *tlb.Cache
	Faults *fault.Log
	Events *queue.EventQueue
	PRI    *queue.PRIQueue

	Lookup StreamLookup

	// CachingEnabled reports the controller's global caching toggle
	// (spec.md §4.7 enableCaching); the translator consults it on every
	// call rather than caching the value, so a live configuration update
	// takes effect immediately.
	CachingEnabled func() bool

	// Now supplies the current monotonic microsecond timestamp, normally
	// clock.NowMicros, injected so tests can control aging deterministically.
	Now func() uint64

	Log logrus.FieldLogger
}

func (t *Translator) logger() logrus.FieldLogger {
	if t.Log != nil {
		return t.Log
	}
	return logrus.StandardLogger()
}

func (t *Translator) recordFault(streamID, contextID uint32, addr hostarch.Addr, ft fault.FaultType, access hostarch.AccessType, security hostarch.SecurityState, stage fault.Stage, level int) fault.Record {
	now := t.Now()
	syn := fault.Syndrome{
		FaultType: ft,
		Stage:     stage,
		Level:     level,
		Access:    access,
		Security:  security,
		Valid:     true,
	}
	rec := fault.Record{
		StreamID:        streamID,
		ContextID:       contextID,
		FaultingAddress: addr,
		FaultType:       ft,
		Access:          access,
		Security:        security,
		Syndrome:        syn,
		TimestampMicros: now,
	}
	t.Faults.Record(rec)
	t.Events.Push(queue.Event{Kind: queue.EventFault, Fault: rec})
	t.logger().WithFields(logrus.Fields{
		"stream":     streamID,
		"context":    contextID,
		"fault_type": ft,
		"stage":      stage,
		"level":      level,
	}).Debug("translation fault recorded")
	return rec
}

// Translate runs the full pipeline of spec.md §4.5 for a single request.
func (t *Translator) Translate(streamID, contextID uint32, iova hostarch.Addr, access hostarch.AccessType, security hostarch.SecurityState) (Result, *smmuerr.Error) {
	// 1. Bounds.
	if streamID > hostarch.MaxStreamID {
		t.recordFault(streamID, contextID, iova, fault.TranslationFault, access, security, fault.StageUnknown, 0)
		return Result{}, smmuerr.New(smmuerr.InvalidStreamID)
	}

	pageIOVA := iova.PageAligned()

	// 2. Fast path.
	cachingEnabled := t.CachingEnabled != nil && t.CachingEnabled()
	if cachingEnabled {
		key := tlb.Key{StreamID: streamID, ContextID: contextID, PageNumber: pageIOVA.PageNumber(), Security: security}
		if entry, ok := t.TLB.Lookup(key, t.Now()); ok {
			if entry.Key.Security == security {
				if !entry.Permissions.Allows(access) {
					t.recordFault(streamID, contextID, iova, fault.PermissionFault, access, security, fault.BothStages, 2)
					return Result{}, smmuerr.New(smmuerr.PagePermissionViolation)
				}
				pa := hostarch.Addr(uint64(entry.PhysicalPageBase) + iova.Offset())
				return Result{PhysicalAddress: pa, Permissions: entry.Permissions, Security: entry.Security}, nil
			}
			// Stored security no longer matches; invalidate and fall
			// through to a full walk.
			t.TLB.InvalidatePage(key)
		}
	}

	// 3. Dispatch.
	sc, ok := t.Lookup(streamID)
	if !ok {
		t.recordFault(streamID, contextID, iova, fault.TranslationFault, access, security, fault.StageUnknown, 0)
		return Result{}, smmuerr.New(smmuerr.StreamNotConfigured)
	}
	if !sc.IsEnabled() {
		return Result{}, smmuerr.New(smmuerr.StreamDisabled)
	}
	cfg := sc.Config()

	// 4. Stage selection.
	if !cfg.TranslationEnabled {
		sc.RecordTranslation()
		return Result{PhysicalAddress: iova, Permissions: hostarch.FullPermissions, Security: security}, nil
	}

	var result Result
	var terr *smmuerr.Error

	switch {
	case cfg.Stage1Enabled && cfg.Stage2Enabled:
		result, terr = t.translateTwoStage(sc, streamID, contextID, iova, access, security)
	case cfg.Stage1Enabled:
		result, terr = t.translateStage1Only(sc, streamID, contextID, iova, access, security)
	case cfg.Stage2Enabled:
		result, terr = t.translateStage2Only(sc, streamID, contextID, iova, access, security)
	default:
		t.recordFault(streamID, contextID, iova, fault.ConfigurationErrorFault, access, security, fault.StageUnknown, 0)
		terr = smmuerr.New(smmuerr.ConfigurationError)
	}

	if terr != nil {
		sc.RecordFault()
		if cfg.FaultMode == config.Stall {
			t.PRI.Submit(queue.PageRequest{StreamID: streamID, ContextID: contextID, Address: iova, Access: access})
			t.Events.Push(queue.Event{Kind: queue.EventPagePageRequest, StreamID: streamID, ContextID: contextID, Address: uint64(iova)})
			sc.EnterStall(contextID)
		}
		return Result{}, terr
	}

	sc.RecordTranslation()

	// 9. Cacheability.
	if cachingEnabled && (result.PhysicalAddress != 0 || iova == 0) {
		t.TLB.Insert(tlb.Entry{
			Key:              tlb.Key{StreamID: streamID, ContextID: contextID, PageNumber: pageIOVA.PageNumber(), Security: security},
			PhysicalPageBase: result.PhysicalAddress.PageAligned(),
			Permissions:      result.Permissions,
			TimestampMicros:  t.Now(),
		})
	}

	return result, nil
}

func (t *Translator) translateStage1Only(sc *stream.Context, streamID, contextID uint32, iova hostarch.Addr, access hostarch.AccessType, security hostarch.SecurityState) (Result, *smmuerr.Error) {
	as, ok := sc.ContextSpace(contextID)
	if !ok {
		t.recordFault(streamID, contextID, iova, fault.TranslationFault, access, security, fault.Stage1Only, 0)
		return Result{}, smmuerr.New(smmuerr.ContextNotFound)
	}
	entry, ok := as.GetPageEntry(iova)
	if !ok {
		t.recordFault(streamID, contextID, iova, fault.TranslationFault, access, security, fault.Stage1Only, 1)
		return Result{}, smmuerr.New(smmuerr.PageNotMapped)
	}
	if entry.PhysicalPageBase == 0 && iova != 0 {
		t.recordFault(streamID, contextID, iova, fault.TranslationFault, access, security, fault.Stage1Only, 1)
		return Result{}, smmuerr.New(smmuerr.TranslationTableError)
	}
	if !entry.Permissions.Allows(access) {
		t.recordFault(streamID, contextID, iova, fault.PermissionFault, access, security, fault.Stage1Only, 1)
		return Result{}, smmuerr.New(smmuerr.PagePermissionViolation)
	}
	if !security.CompatibleWithPage(entry.Security) {
		t.recordFault(streamID, contextID, iova, fault.SecurityFault, access, security, fault.Stage1Only, 1)
		return Result{}, smmuerr.New(smmuerr.InvalidSecurityState)
	}
	pa := hostarch.Addr(uint64(entry.PhysicalPageBase) + iova.Offset())
	return Result{PhysicalAddress: pa, Permissions: entry.Permissions, Security: entry.Security}, nil
}

func (t *Translator) translateStage2Only(sc *stream.Context, streamID, contextID uint32, ipa hostarch.Addr, access hostarch.AccessType, security hostarch.SecurityState) (Result, *smmuerr.Error) {
	s2, ok := sc.Stage2Space()
	if !ok {
		t.recordFault(streamID, contextID, ipa, fault.Stage2TranslationFault, access, security, fault.Stage2Only, 0)
		return Result{}, smmuerr.New(smmuerr.AddressSpaceExhausted)
	}
	entry, ok := s2.GetPageEntry(ipa)
	if !ok {
		t.recordFault(streamID, contextID, ipa, fault.TranslationFault, access, security, fault.Stage2Only, 1)
		return Result{}, smmuerr.New(smmuerr.PageNotMapped)
	}
	if !entry.Permissions.Allows(access) {
		t.recordFault(streamID, contextID, ipa, fault.PermissionFault, access, security, fault.Stage2Only, 1)
		return Result{}, smmuerr.New(smmuerr.PagePermissionViolation)
	}
	if !security.CompatibleWithPage(entry.Security) {
		t.recordFault(streamID, contextID, ipa, fault.SecurityFault, access, security, fault.Stage2Only, 1)
		return Result{}, smmuerr.New(smmuerr.InvalidSecurityState)
	}
	pa := hostarch.Addr(uint64(entry.PhysicalPageBase) + ipa.Offset())
	return Result{PhysicalAddress: pa, Permissions: entry.Permissions, Security: entry.Security}, nil
}

func (t *Translator) translateTwoStage(sc *stream.Context, streamID, contextID uint32, iova hostarch.Addr, access hostarch.AccessType, security hostarch.SecurityState) (Result, *smmuerr.Error) {
	// Stage-1 walk: raw lookup, permission check deferred to the
	// intersection step (spec.md §4.5 step 7).
	as, ok := sc.ContextSpace(contextID)
	if !ok {
		t.recordFault(streamID, contextID, iova, fault.TranslationFault, access, security, fault.Stage1Only, 0)
		return Result{}, smmuerr.New(smmuerr.ContextNotFound)
	}
	s1entry, ok := as.GetPageEntry(iova)
	if !ok {
		t.recordFault(streamID, contextID, iova, fault.TranslationFault, access, security, fault.Stage1Only, 1)
		return Result{}, smmuerr.New(smmuerr.PageNotMapped)
	}
	if s1entry.PhysicalPageBase == 0 && iova != 0 {
		t.recordFault(streamID, contextID, iova, fault.TranslationFault, access, security, fault.Stage1Only, 1)
		return Result{}, smmuerr.New(smmuerr.TranslationTableError)
	}
	ipa := hostarch.Addr(uint64(s1entry.PhysicalPageBase) + iova.Offset())

	// Stage-2 walk.
	s2, ok := sc.Stage2Space()
	if !ok {
		t.recordFault(streamID, contextID, iova, fault.Stage2TranslationFault, access, security, fault.Stage2Only, 0)
		return Result{}, smmuerr.New(smmuerr.AddressSpaceExhausted)
	}
	s2entry, ok := s2.GetPageEntry(ipa)
	if !ok {
		t.recordFault(streamID, contextID, iova, fault.TranslationFault, access, security, fault.BothStages, 1)
		return Result{}, smmuerr.New(smmuerr.PageNotMapped)
	}

	// 7. Permission intersection.
	finalPerms := s1entry.Permissions.Intersect(s2entry.Permissions)
	if !finalPerms.Allows(access) {
		t.recordFault(streamID, contextID, iova, fault.PermissionFault, access, security, fault.BothStages, 2)
		return Result{}, smmuerr.New(smmuerr.PagePermissionViolation)
	}

	// 8. Security consistency: the two stages must agree with each other,
	// and the result (using stage-2's security as the page's effective
	// security) must be compatible with the request.
	if s1entry.Security != s2entry.Security {
		t.recordFault(streamID, contextID, iova, fault.SecurityFault, access, security, fault.BothStages, 2)
		return Result{}, smmuerr.New(smmuerr.InvalidSecurityState)
	}
	if !security.CompatibleWithPage(s2entry.Security) {
		t.recordFault(streamID, contextID, iova, fault.SecurityFault, access, security, fault.BothStages, 2)
		return Result{}, smmuerr.New(smmuerr.InvalidSecurityState)
	}

	pa := hostarch.Addr(uint64(s2entry.PhysicalPageBase) + ipa.Offset())
	return Result{PhysicalAddress: pa, Permissions: finalPerms, Security: s2entry.Security}, nil
}
