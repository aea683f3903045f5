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

package invariant

import (
	"strings"
	"testing"
)

func TestCheckPasses(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("Check(true) panicked: %v", r)
		}
	}()
	Check(true, "never")
}

func callGuarded() (err error) {
	defer Guard(&err)
	Check(false, "broken invariant: %d", 42)
	return nil
}

func TestGuardRecoversViolation(t *testing.T) {
	err := callGuarded()
	if err == nil {
		t.Fatal("expected a non-nil error from a failed Check")
	}
	if !strings.Contains(err.Error(), "broken invariant: 42") {
		t.Fatalf("error = %q, want it to contain the Check message", err.Error())
	}
}

func TestGuardRepanicsOnOtherPanics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected a non-Violation panic to propagate through Guard")
		}
	}()
	func() (err error) {
		defer Guard(&err)
		panic("not a Violation")
	}()
}
