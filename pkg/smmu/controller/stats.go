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

package controller

import "github.com/jpgreninger/smmu/pkg/smmu/tlb"

// GetStreamCount returns the number of configured streams.
func (c *Controller) GetStreamCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.streams)
}

// GetTotalTranslations returns the lifetime count of Translate calls.
func (c *Controller) GetTotalTranslations() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalTranslations
}

// GetTotalFaults returns the lifetime count of Translate calls that
// returned an error.
func (c *Controller) GetTotalFaults() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalFaults
}

// GetCacheHitCount returns the TLB's lifetime hit count.
func (c *Controller) GetCacheHitCount() uint64 {
	return c.tlbCache.GetStatistics().HitCount
}

// GetCacheMissCount returns the TLB's lifetime miss count.
func (c *Controller) GetCacheMissCount() uint64 {
	return c.tlbCache.GetStatistics().MissCount
}

// GetCacheStatistics returns a consistent TLB statistics snapshot.
func (c *Controller) GetCacheStatistics() tlb.Statistics {
	return c.tlbCache.GetStatistics()
}

// ResetStatistics zeroes the translation/fault counters and the TLB's
// hit/miss counters, without evicting cached entries or touching streams.
func (c *Controller) ResetStatistics() {
	c.mu.Lock()
	c.totalTranslations = 0
	c.totalFaults = 0
	c.mu.Unlock()
	c.tlbCache.ResetStatistics()
}
