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

// Default returns the baseline profile: moderate queues and cache, 48-bit
// IOVA and PA limits, and a 64-thread cap.
func Default() Configuration {
	return Configuration{
		Queues:    QueueSizes{EventQueueSize: 1024, CommandQueueSize: 256, PRIQueueSize: 256},
		Cache:     CacheSettings{TLBSize: 4096, MaxAgeMicros: 1_000_000, EnableCaching: true},
		Addresses: AddressLimits{MaxIovaBits: 48, MaxPaBits: 48, MaxStreamCount: 65536, MaxContextCount: 1 << 20},
		Resources: ResourceLimits{MemoryCapBytes: 1 << 30, ThreadCap: 64, TimeoutMs: 1000},
		GlobalFaultMode: Terminate,
	}
}

// HighPerformance favors throughput: the largest cache and queues of any
// profile, a longer aging window, and the highest thread cap.
func HighPerformance() Configuration {
	c := Default()
	c.Queues = QueueSizes{EventQueueSize: 16384, CommandQueueSize: 4096, PRIQueueSize: 4096}
	c.Cache = CacheSettings{TLBSize: 65536, MaxAgeMicros: 5_000_000, EnableCaching: true}
	c.Addresses.MaxStreamCount = 1 << 20
	c.Resources = ResourceLimits{MemoryCapBytes: 8 << 30, ThreadCap: 256, TimeoutMs: 2000}
	return c
}

// LowMemory favors a small footprint over hit rate.
func LowMemory() Configuration {
	c := Default()
	c.Queues = QueueSizes{EventQueueSize: 64, CommandQueueSize: 32, PRIQueueSize: 32}
	c.Cache = CacheSettings{TLBSize: 128, MaxAgeMicros: 250_000, EnableCaching: true}
	c.Addresses.MaxStreamCount = 256
	c.Addresses.MaxContextCount = 256
	c.Resources = ResourceLimits{MemoryCapBytes: 16 << 20, ThreadCap: 4, TimeoutMs: 500}
	return c
}

// Server targets a many-stream, many-context host: large identifier space,
// generous queues, moderate cache.
func Server() Configuration {
	c := Default()
	c.Queues = QueueSizes{EventQueueSize: 8192, CommandQueueSize: 2048, PRIQueueSize: 2048}
	c.Cache = CacheSettings{TLBSize: 16384, MaxAgeMicros: 2_000_000, EnableCaching: true}
	c.Addresses = AddressLimits{MaxIovaBits: 52, MaxPaBits: 52, MaxStreamCount: 1 << 20, MaxContextCount: 1 << 20}
	c.Resources = ResourceLimits{MemoryCapBytes: 4 << 30, ThreadCap: 128, TimeoutMs: 1500}
	return c
}

// Embedded is the smallest profile of any, for constrained hosts; the
// smallest cache and queues, caching left on since even a tiny TLB helps.
func Embedded() Configuration {
	c := Default()
	c.Queues = QueueSizes{EventQueueSize: 16, CommandQueueSize: 8, PRIQueueSize: 8}
	c.Cache = CacheSettings{TLBSize: 32, MaxAgeMicros: 100_000, EnableCaching: true}
	c.Addresses = AddressLimits{MaxIovaBits: 32, MaxPaBits: 32, MaxStreamCount: 16, MaxContextCount: 16}
	c.Resources = ResourceLimits{MemoryCapBytes: 1 << 20, ThreadCap: 1, TimeoutMs: 250}
	return c
}

// Development disables caching so that every translation re-walks,
// maximizing observability of faults while debugging a client.
func Development() Configuration {
	c := Default()
	c.Cache.EnableCaching = false
	c.Resources.TimeoutMs = 60_000
	return c
}

// Profiles lists every factory profile by name, for lookup by e.g. a CLI
// collaborator outside the core.
var Profiles = map[string]func() Configuration{
	"default":        Default,
	"highPerformance": HighPerformance,
	"lowMemory":       LowMemory,
	"server":          Server,
	"embedded":        Embedded,
	"development":     Development,
}
