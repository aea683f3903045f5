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

// Package clock supplies the monotonic microsecond clock used for TLB entry
// aging (spec.md §9 open question (c): "implementers may use any monotonic
// clock with the same unit"). The platform-specific source lives in
// clock_unix.go / clock_other.go, following the teacher's convention of
// splitting platform code into per-arch files (see
// sysmsg_thread_amd64.go in the retrieved gVisor tree).
package clock

// NowMicros returns a monotonically non-decreasing timestamp in
// microseconds. Callers must only use it for computing durations between two
// readings, never as a wall-clock value.
func NowMicros() uint64 {
	return nowMicros()
}
