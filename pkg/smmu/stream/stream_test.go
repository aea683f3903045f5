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
	"testing"

	"github.com/jpgreninger/smmu/pkg/hostarch"
	"github.com/jpgreninger/smmu/pkg/smmu/config"
	"github.com/jpgreninger/smmu/pkg/smmu/smmuerr"
)

func validConfig() Config {
	return Config{TranslationEnabled: true, Stage1Enabled: true, FaultMode: config.Terminate}
}

func TestConfigureTransitionsToConfigured(t *testing.T) {
	sc := New(0)
	if sc.State() != Unconfigured {
		t.Fatalf("initial state = %v, want Unconfigured", sc.State())
	}
	if err := sc.Configure(validConfig()); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if sc.State() != Configured {
		t.Fatalf("state after Configure = %v, want Configured", sc.State())
	}
}

func TestConfigureRejectsTranslationWithoutStage(t *testing.T) {
	sc := New(0)
	err := sc.Configure(Config{TranslationEnabled: true, FaultMode: config.Terminate})
	if err == nil || err.Kind != smmuerr.StreamConfigurationError {
		t.Fatalf("Configure() = %v, want StreamConfigurationError", err)
	}
}

func TestLifecycleStateMachine(t *testing.T) {
	sc := New(0)
	sc.Configure(validConfig())
	if err := sc.EnableStream(); err != nil {
		t.Fatalf("EnableStream: %v", err)
	}
	if !sc.IsEnabled() {
		t.Fatal("IsEnabled() should be true after EnableStream")
	}
	if err := sc.DisableStream(); err != nil {
		t.Fatalf("DisableStream: %v", err)
	}
	if sc.IsEnabled() {
		t.Fatal("IsEnabled() should be false after DisableStream")
	}
}

func TestEnableUnconfiguredStreamFails(t *testing.T) {
	sc := New(0)
	if err := sc.EnableStream(); err == nil || err.Kind != smmuerr.StreamNotConfigured {
		t.Fatalf("EnableStream() on unconfigured = %v, want StreamNotConfigured", err)
	}
}

func TestCreateContextAndLimit(t *testing.T) {
	sc := New(2)
	if err := sc.CreateContext(1); err != nil {
		t.Fatalf("CreateContext: %v", err)
	}
	if err := sc.CreateContext(1); err == nil || err.Kind != smmuerr.ContextAlreadyExists {
		t.Fatalf("CreateContext(duplicate) = %v, want ContextAlreadyExists", err)
	}
	if err := sc.CreateContext(2); err != nil {
		t.Fatalf("CreateContext(2): %v", err)
	}
	if err := sc.CreateContext(3); err == nil || err.Kind != smmuerr.ContextLimitExceeded {
		t.Fatalf("CreateContext(3) over limit = %v, want ContextLimitExceeded", err)
	}
}

func TestSetContextLimitAppliesToFutureCreates(t *testing.T) {
	sc := New(1)
	sc.CreateContext(1)
	if err := sc.CreateContext(2); err == nil {
		t.Fatal("expected ContextLimitExceeded before SetContextLimit")
	}
	sc.SetContextLimit(2)
	if err := sc.CreateContext(2); err != nil {
		t.Fatalf("CreateContext after raising limit: %v", err)
	}
}

func TestRemoveContext(t *testing.T) {
	sc := New(0)
	sc.CreateContext(1)
	if err := sc.RemoveContext(1); err != nil {
		t.Fatalf("RemoveContext: %v", err)
	}
	if _, ok := sc.ContextSpace(1); ok {
		t.Fatal("context should be gone after RemoveContext")
	}
	if err := sc.RemoveContext(1); err == nil || err.Kind != smmuerr.ContextNotFound {
		t.Fatalf("RemoveContext(already gone) = %v, want ContextNotFound", err)
	}
}

func TestStageTransitionsEnterAndCompleteStall(t *testing.T) {
	sc := New(0)
	sc.Configure(validConfig())
	sc.EnableStream()
	sc.EnterStall(1)
	if sc.State() != Stalled {
		t.Fatalf("state after EnterStall = %v, want Stalled", sc.State())
	}
	sc.CompleteStall(1)
	if sc.State() != Active {
		t.Fatalf("state after CompleteStall = %v, want Active", sc.State())
	}
}

func TestStallWithMultipleOutstandingRequests(t *testing.T) {
	sc := New(0)
	sc.Configure(validConfig())
	sc.EnableStream()
	sc.EnterStall(1)
	sc.EnterStall(2)
	sc.CompleteStall(1)
	if sc.State() != Stalled {
		t.Fatal("stream should remain Stalled while context 2 is still outstanding")
	}
	sc.CompleteStall(2)
	if sc.State() != Active {
		t.Fatal("stream should return to Active once every outstanding request completes")
	}
}

func TestResumeForcesActive(t *testing.T) {
	sc := New(0)
	sc.Configure(validConfig())
	sc.EnableStream()
	sc.EnterStall(1)
	sc.Resume()
	if sc.State() != Active {
		t.Fatalf("state after Resume = %v, want Active", sc.State())
	}
}

func TestStatisticsAccumulate(t *testing.T) {
	sc := New(0)
	sc.RecordTranslation()
	sc.RecordTranslation()
	sc.RecordFault()
	stats := sc.Statistics()
	if stats.Translations != 2 || stats.Faults != 1 {
		t.Fatalf("stats = %+v, want Translations=2 Faults=1", stats)
	}
}

func TestConfigChangedFlagClearsOnRead(t *testing.T) {
	sc := New(0)
	sc.Configure(validConfig())
	if !sc.ConfigChanged() {
		t.Fatal("expected ConfigChanged() true after Configure")
	}
	if sc.ConfigChanged() {
		t.Fatal("ConfigChanged() should clear after being read once")
	}
}

func TestAttachAndDetachStage2(t *testing.T) {
	sc := New(0)
	shared := NewSharedAddressSpace()
	sc.AttachStage2(shared)
	if shared.RefCount() != 2 {
		t.Fatalf("RefCount() after Attach = %d, want 2", shared.RefCount())
	}
	if _, ok := sc.Stage2Space(); !ok {
		t.Fatal("expected a stage-2 space after AttachStage2")
	}
	sc.DetachStage2()
	if shared.RefCount() != 1 {
		t.Fatalf("RefCount() after Detach = %d, want 1", shared.RefCount())
	}
	if _, ok := sc.Stage2Space(); ok {
		t.Fatal("expected no stage-2 space after DetachStage2")
	}
}

func TestSharedAddressSpaceReleaseClearsAtZero(t *testing.T) {
	shared := NewSharedAddressSpace()
	shared.Space().MapPage(hostarch.Addr(0x1000), hostarch.Addr(0x9000), hostarch.FullPermissions, hostarch.NonSecure)
	second := shared.Acquire()
	if shared.RefCount() != 2 {
		t.Fatalf("RefCount() = %d, want 2", shared.RefCount())
	}
	shared.Release()
	if shared.RefCount() != 1 {
		t.Fatalf("RefCount() after one Release = %d, want 1", shared.RefCount())
	}
	second.Release()
	if second.RefCount() != 0 {
		t.Fatalf("RefCount() after final Release = %d, want 0", second.RefCount())
	}
	if second.Space().GetPageCount() != 0 {
		t.Fatalf("GetPageCount() after final Release = %d, want 0", second.Space().GetPageCount())
	}
}
