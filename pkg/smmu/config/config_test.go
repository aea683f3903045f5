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

package config

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/jpgreninger/smmu/pkg/smmu/smmuerr"
)

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
}

func TestAllProfilesValidate(t *testing.T) {
	for name, factory := range Profiles {
		t.Run(name, func(t *testing.T) {
			if err := factory().Validate(); err != nil {
				t.Fatalf("%s profile failed validation: %v", name, err)
			}
		})
	}
}

func TestValidateRejectsOutOfRangeQueueSize(t *testing.T) {
	c := Default()
	c.Queues.EventQueueSize = 0
	err := c.Validate()
	if err == nil || err.Kind != smmuerr.InvalidConfiguration {
		t.Fatalf("Validate() = %v, want InvalidConfiguration", err)
	}
}

func TestValidateRejectsBadFaultMode(t *testing.T) {
	c := Default()
	c.GlobalFaultMode = FaultMode(99)
	if err := c.Validate(); err == nil {
		t.Fatal("expected Validate() to reject an unknown FaultMode")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	c := Default()
	clone := c.Clone()
	clone.Queues.EventQueueSize = 1
	if c.Queues.EventQueueSize == 1 {
		t.Fatal("Clone() aliased the original Configuration")
	}
}

func TestToStringFromStringRoundTrip(t *testing.T) {
	c := HighPerformance()
	text := c.ToString()
	parsed, err := FromString(text)
	if err != nil {
		t.Fatalf("FromString: %v", err)
	}
	if diff := cmp.Diff(c, parsed); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestFromStringSizeSuffixes(t *testing.T) {
	text := "eventQueueSize=1K\n" +
		"commandQueueSize=1\n" +
		"priQueueSize=1\n" +
		"tlbSize=1\n" +
		"maxAgeMicros=0\n" +
		"enableCaching=true\n" +
		"maxIovaBits=48\n" +
		"maxPaBits=48\n" +
		"maxStreamCount=1\n" +
		"maxContextCount=1\n" +
		"memoryCapBytes=2M\n" +
		"threadCap=1\n" +
		"timeoutMs=0\n" +
		"globalFaultMode=stall\n"
	c, err := FromString(text)
	if err != nil {
		t.Fatalf("FromString: %v", err)
	}
	if c.Queues.EventQueueSize != 1024 {
		t.Fatalf("eventQueueSize = %d, want 1024", c.Queues.EventQueueSize)
	}
	if c.Resources.MemoryCapBytes != 2*(1<<20) {
		t.Fatalf("memoryCapBytes = %d, want %d", c.Resources.MemoryCapBytes, 2*(1<<20))
	}
	if c.GlobalFaultMode != Stall {
		t.Fatalf("globalFaultMode = %v, want Stall", c.GlobalFaultMode)
	}
}

func TestFromStringRejectsUnknownKey(t *testing.T) {
	_, err := FromString("bogusKey=1\n")
	if err == nil || err.Kind != smmuerr.ParseError {
		t.Fatalf("FromString(unknown key) = %v, want ParseError", err)
	}
}

func TestFromStringRejectsMalformedLine(t *testing.T) {
	_, err := FromString("not-a-key-value-line\n")
	if err == nil || err.Kind != smmuerr.ParseError {
		t.Fatalf("FromString(malformed) = %v, want ParseError", err)
	}
}

func TestFromStringIgnoresCommentsAndBlankLines(t *testing.T) {
	text := "# a comment\n\neventQueueSize=1\n" +
		"commandQueueSize=1\npriQueueSize=1\ntlbSize=1\nmaxAgeMicros=0\n" +
		"enableCaching=false\nmaxIovaBits=48\nmaxPaBits=48\nmaxStreamCount=1\n" +
		"maxContextCount=1\nmemoryCapBytes=0\nthreadCap=1\ntimeoutMs=0\n" +
		"globalFaultMode=terminate\n"
	if _, err := FromString(text); err != nil {
		t.Fatalf("FromString with comments/blank lines: %v", err)
	}
}
