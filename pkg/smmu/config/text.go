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
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"github.com/jpgreninger/smmu/pkg/smmu/smmuerr"
)

// No pack library parses line-oriented key=value text with K/M/G size
// suffixes the way spec.md §6 requires (parseBoolean/parseUInt32/
// parseUInt64/parseSize); this is a small enough format that the stdlib
// (bufio.Scanner + strconv) is the right tool, not a dependency.

// ToString serializes c as key=value lines in a fixed field order, the inverse of
// FromString for every Configuration produced by Validate.
func (c Configuration) ToString() string {
	var b strings.Builder
	fmt.Fprintf(&b, "eventQueueSize=%d\n", c.Queues.EventQueueSize)
	fmt.Fprintf(&b, "commandQueueSize=%d\n", c.Queues.CommandQueueSize)
	fmt.Fprintf(&b, "priQueueSize=%d\n", c.Queues.PRIQueueSize)
	fmt.Fprintf(&b, "tlbSize=%d\n", c.Cache.TLBSize)
	fmt.Fprintf(&b, "maxAgeMicros=%d\n", c.Cache.MaxAgeMicros)
	fmt.Fprintf(&b, "enableCaching=%t\n", c.Cache.EnableCaching)
	fmt.Fprintf(&b, "maxIovaBits=%d\n", c.Addresses.MaxIovaBits)
	fmt.Fprintf(&b, "maxPaBits=%d\n", c.Addresses.MaxPaBits)
	fmt.Fprintf(&b, "maxStreamCount=%d\n", c.Addresses.MaxStreamCount)
	fmt.Fprintf(&b, "maxContextCount=%d\n", c.Addresses.MaxContextCount)
	fmt.Fprintf(&b, "memoryCapBytes=%d\n", c.Resources.MemoryCapBytes)
	fmt.Fprintf(&b, "threadCap=%d\n", c.Resources.ThreadCap)
	fmt.Fprintf(&b, "timeoutMs=%d\n", c.Resources.TimeoutMs)
	fmt.Fprintf(&b, "globalFaultMode=%s\n", faultModeName(c.GlobalFaultMode))
	return b.String()
}

func faultModeName(m FaultMode) string {
	if m == Stall {
		return "stall"
	}
	return "terminate"
}

func parseFaultMode(s string) (FaultMode, *smmuerr.Error) {
	switch strings.ToLower(s) {
	case "terminate":
		return Terminate, nil
	case "stall":
		return Stall, nil
	default:
		return 0, smmuerr.Newf(smmuerr.ParseError, "unknown faultMode %q", s)
	}
}

func parseBoolean(s string) (bool, *smmuerr.Error) {
	switch strings.ToLower(s) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return false, smmuerr.Newf(smmuerr.ParseError, "not a boolean: %q", s)
	}
}

func parseUInt64(s string) (uint64, *smmuerr.Error) {
	// Accept an optional K/M/G size suffix (base-1024), per spec.md §6.
	mult := uint64(1)
	trimmed := s
	if len(s) > 0 {
		switch s[len(s)-1] {
		case 'K', 'k':
			mult = 1 << 10
			trimmed = s[:len(s)-1]
		case 'M', 'm':
			mult = 1 << 20
			trimmed = s[:len(s)-1]
		case 'G', 'g':
			mult = 1 << 30
			trimmed = s[:len(s)-1]
		}
	}
	v, err := strconv.ParseUint(trimmed, 10, 64)
	if err != nil {
		return 0, smmuerr.Newf(smmuerr.ParseError, "not an unsigned size: %q", s)
	}
	return v * mult, nil
}

func parseUInt32(s string) (uint32, *smmuerr.Error) {
	v, err := parseUInt64(s)
	if err != nil {
		return 0, err
	}
	if v > 1<<32-1 {
		return 0, smmuerr.Newf(smmuerr.ParseError, "value %d overflows uint32", v)
	}
	return uint32(v), nil
}

// FromString parses a key=value text block into a Configuration. Unknown
// keys are rejected (ParseError) rather than silently ignored, so a typo in
// a hand-edited config file surfaces immediately.
func FromString(text string) (Configuration, *smmuerr.Error) {
	c := Configuration{}
	seen := map[string]bool{}

	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return Configuration{}, smmuerr.Newf(smmuerr.ParseError, "malformed line: %q", line)
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		seen[key] = true

		var perr *smmuerr.Error
		switch key {
		case "eventQueueSize":
			c.Queues.EventQueueSize, perr = parseUInt32(value)
		case "commandQueueSize":
			c.Queues.CommandQueueSize, perr = parseUInt32(value)
		case "priQueueSize":
			c.Queues.PRIQueueSize, perr = parseUInt32(value)
		case "tlbSize":
			c.Cache.TLBSize, perr = parseUInt32(value)
		case "maxAgeMicros":
			c.Cache.MaxAgeMicros, perr = parseUInt64(value)
		case "enableCaching":
			c.Cache.EnableCaching, perr = parseBoolean(value)
		case "maxIovaBits":
			var v uint32
			v, perr = parseUInt32(value)
			c.Addresses.MaxIovaBits = uint8(v)
		case "maxPaBits":
			var v uint32
			v, perr = parseUInt32(value)
			c.Addresses.MaxPaBits = uint8(v)
		case "maxStreamCount":
			c.Addresses.MaxStreamCount, perr = parseUInt32(value)
		case "maxContextCount":
			c.Addresses.MaxContextCount, perr = parseUInt32(value)
		case "memoryCapBytes":
			c.Resources.MemoryCapBytes, perr = parseUInt64(value)
		case "threadCap":
			c.Resources.ThreadCap, perr = parseUInt32(value)
		case "timeoutMs":
			c.Resources.TimeoutMs, perr = parseUInt32(value)
		case "globalFaultMode":
			c.GlobalFaultMode, perr = parseFaultMode(value)
		default:
			return Configuration{}, smmuerr.Newf(smmuerr.ParseError, "unknown key %q", key)
		}
		if perr != nil {
			return Configuration{}, perr
		}
	}
	return c, nil
}
