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

// Package invariant guards the boundary between programming-bug assertions
// (spec.md §9: "reserve aborts for contract violations detectable only by
// the implementation") and the ordinary error taxonomy. Internal code calls
// Check for conditions that must never be false if the package is correct;
// Guard recovers any resulting panic at the public-API boundary and
// rewraps it with a stack trace, rather than letting it escape as a Go
// panic into caller code.
package invariant

import (
	"fmt"

	goerrors "github.com/go-errors/errors"
)

// Violation is a panic value raised by Check on a broken invariant.
type Violation struct {
	*goerrors.Error
}

// Check panics with a stack-bearing Violation if cond is false. msg should
// name the broken invariant, e.g. "tlb: secondary index missing entry".
func Check(cond bool, msg string, args ...any) {
	if cond {
		return
	}
	panic(Violation{goerrors.Wrap(fmt.Errorf(msg, args...), 1)})
}

// Guard recovers a Violation panic (and only a Violation panic; anything
// else is re-panicked) and stores it in *errOut as a stack-bearing error.
// Call via defer at the top of any exported method that calls Check
// transitively.
func Guard(errOut *error) {
	r := recover()
	if r == nil {
		return
	}
	v, ok := r.(Violation)
	if !ok {
		panic(r)
	}
	*errOut = v.Error
}
