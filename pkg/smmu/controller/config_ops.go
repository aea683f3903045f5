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

import (
	"golang.org/x/sync/semaphore"

	"github.com/jpgreninger/smmu/pkg/smmu/config"
	"github.com/jpgreninger/smmu/pkg/smmu/smmuerr"
	"github.com/jpgreninger/smmu/pkg/smmu/stream"
)

// GetConfiguration returns a deep copy of the current configuration.
func (c *Controller) GetConfiguration() config.Configuration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.Clone()
}

// UpdateConfiguration validates newCfg, then atomically swaps the current
// record and applies every derived change (queue trimming, TLB resize,
// caching toggle). On any downstream failure the pre-update record is
// restored (spec.md §4.7, Testable property 9).
func (c *Controller) UpdateConfiguration(newCfg config.Configuration) *smmuerr.Error {
	if err := newCfg.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	old := c.cfg.Clone()
	c.cfg = newCfg
	c.mu.Unlock()

	if err := c.applyDerivedConfig(newCfg); err != nil {
		c.mu.Lock()
		c.cfg = old
		c.mu.Unlock()
		c.applyDerivedConfig(old) //nolint:errcheck // rolling back to a record that was already valid cannot itself fail
		return err
	}
	return nil
}

// applyDerivedConfig pushes a validated Configuration's consequences into
// the queues, TLB, and thread-cap semaphore. It cannot itself fail today
// (every target structure accepts any in-range size), but keeps the
// signature of an operation that might, so UpdateConfiguration's rollback
// path stays correct if a future derived change can fail downstream.
func (c *Controller) applyDerivedConfig(cfg config.Configuration) *smmuerr.Error {
	c.events.SetCapacity(int(cfg.Queues.EventQueueSize))
	c.commands.SetCapacity(int(cfg.Queues.CommandQueueSize))
	c.pri.SetCapacity(int(cfg.Queues.PRIQueueSize))

	c.tlbCache.SetMaxSize(int(cfg.Cache.TLBSize))

	c.mu.Lock()
	c.cachingEnabled = cfg.Cache.EnableCaching
	c.sem = semaphore.NewWeighted(int64(cfg.Resources.ThreadCap))
	streams := make([]*stream.Context, 0, len(c.streams))
	for _, sc := range c.streams {
		streams = append(streams, sc)
	}
	c.mu.Unlock()

	for _, sc := range streams {
		sc.SetContextLimit(cfg.Addresses.MaxContextCount)
	}

	if !cfg.Cache.EnableCaching {
		c.tlbCache.InvalidateAll()
	}
	return nil
}

// UpdateQueueConfiguration updates only the queue-size group.
func (c *Controller) UpdateQueueConfiguration(sizes config.QueueSizes) *smmuerr.Error {
	cur := c.GetConfiguration()
	cur.Queues = sizes
	return c.UpdateConfiguration(cur)
}

// UpdateCacheConfiguration updates only the cache-settings group.
func (c *Controller) UpdateCacheConfiguration(settings config.CacheSettings) *smmuerr.Error {
	cur := c.GetConfiguration()
	cur.Cache = settings
	return c.UpdateConfiguration(cur)
}

// UpdateAddressConfiguration updates only the address-limits group.
func (c *Controller) UpdateAddressConfiguration(limits config.AddressLimits) *smmuerr.Error {
	cur := c.GetConfiguration()
	cur.Addresses = limits
	return c.UpdateConfiguration(cur)
}

// UpdateResourceLimits updates only the resource-limits group.
func (c *Controller) UpdateResourceLimits(limits config.ResourceLimits) *smmuerr.Error {
	cur := c.GetConfiguration()
	cur.Resources = limits
	return c.UpdateConfiguration(cur)
}

// SetGlobalFaultMode updates the default fault mode applied to newly
// configured streams.
func (c *Controller) SetGlobalFaultMode(mode config.FaultMode) *smmuerr.Error {
	cur := c.GetConfiguration()
	cur.GlobalFaultMode = mode
	return c.UpdateConfiguration(cur)
}

// EnableCaching toggles the global caching policy, clearing the TLB when
// disabling it.
func (c *Controller) EnableCaching(enabled bool) *smmuerr.Error {
	cur := c.GetConfiguration()
	cur.Cache.EnableCaching = enabled
	return c.UpdateConfiguration(cur)
}
