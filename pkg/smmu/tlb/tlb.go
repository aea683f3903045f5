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

// Package tlb implements component C3: a bounded LRU cache of page-level
// translation results keyed by (streamID, contextID, pageNumber,
// securityState), with secondary indices supporting O(1)+k mass
// invalidation by stream, by (stream, context), and by security state.
//
// Lock order (spec.md §5): controller -> stream context -> tlb. Cache.mu
// must never be held while acquiring a stream or controller lock.
package tlb

import (
	"container/list"
	"sync/atomic"

	deadlock "github.com/sasha-s/go-deadlock"

	"github.com/jpgreninger/smmu/pkg/hostarch"
	"github.com/jpgreninger/smmu/pkg/smmu/internal/invariant"
)

// Key identifies a cached translation.
type Key struct {
	StreamID   uint32
	ContextID  uint32
	PageNumber uint64
	Security   hostarch.SecurityState
}

// Entry is a single cached, page-aligned translation.
type Entry struct {
	Key
	PhysicalPageBase hostarch.Addr
	Permissions      hostarch.Permissions
	// TimestampMicros is the clock.NowMicros() reading at insertion (or last
	// refresh); see Cache.lookup aging check.
	TimestampMicros uint64
}

type node struct {
	entry Entry
	elem  *list.Element // this node's element in Cache.lru
}

// Statistics is an atomic snapshot of cache counters (spec.md §4.3).
type Statistics struct {
	HitCount    uint64
	MissCount   uint64
	TotalLookups uint64
	HitRate     float64
	CurrentSize int
	MaxSize     int
}

// Cache is a bounded LRU keyed by Key, with secondary multimaps for mass
// invalidation. A single mutex guards the whole structure; hit/miss
// counters are additionally exposed lock-free via atomic.Uint64 so callers
// may poll them without contending the mutex, while GetStatistics returns a
// consistent snapshot taken under the lock.
type Cache struct {
	mu deadlock.Mutex

	maxSize      int
	cacheMaxAgeMicros uint64

	lru     *list.List // front = MRU, back = LRU
	primary map[Key]*node

	byStream        map[uint32]map[*node]struct{}
	byStreamContext map[streamContextKey]map[*node]struct{}
	bySecurity      map[hostarch.SecurityState]map[*node]struct{}

	hitCount  atomic.Uint64
	missCount atomic.Uint64
}

type streamContextKey struct {
	StreamID  uint32
	ContextID uint32
}

// New constructs a Cache with the given capacity and aging threshold.
func New(maxSize int, cacheMaxAgeMicros uint64) *Cache {
	return &Cache{
		maxSize:           maxSize,
		cacheMaxAgeMicros: cacheMaxAgeMicros,
		lru:               list.New(),
		primary:           make(map[Key]*node),
		byStream:          make(map[uint32]map[*node]struct{}),
		byStreamContext:   make(map[streamContextKey]map[*node]struct{}),
		bySecurity:        make(map[hostarch.SecurityState]map[*node]struct{}),
	}
}

func (c *Cache) indexInsert(n *node) {
	k := n.entry.Key
	if c.byStream[k.StreamID] == nil {
		c.byStream[k.StreamID] = make(map[*node]struct{})
	}
	c.byStream[k.StreamID][n] = struct{}{}

	sc := streamContextKey{k.StreamID, k.ContextID}
	if c.byStreamContext[sc] == nil {
		c.byStreamContext[sc] = make(map[*node]struct{})
	}
	c.byStreamContext[sc][n] = struct{}{}

	if c.bySecurity[k.Security] == nil {
		c.bySecurity[k.Security] = make(map[*node]struct{})
	}
	c.bySecurity[k.Security][n] = struct{}{}
}

func (c *Cache) indexRemove(n *node) {
	k := n.entry.Key
	delete(c.byStream[k.StreamID], n)
	if len(c.byStream[k.StreamID]) == 0 {
		delete(c.byStream, k.StreamID)
	}
	sc := streamContextKey{k.StreamID, k.ContextID}
	delete(c.byStreamContext[sc], n)
	if len(c.byStreamContext[sc]) == 0 {
		delete(c.byStreamContext, sc)
	}
	delete(c.bySecurity[k.Security], n)
	if len(c.bySecurity[k.Security]) == 0 {
		delete(c.bySecurity, k.Security)
	}
}

// removeNode unlinks n from the LRU list, the primary map, and every
// secondary index. Caller must hold c.mu.
func (c *Cache) removeNode(n *node) {
	invariant.Check(n != nil && n.elem != nil, "tlb: removeNode called with an unlinked node")
	c.lru.Remove(n.elem)
	delete(c.primary, n.entry.Key)
	c.indexRemove(n)
}

// evictLRU drops the least-recently-used entry. Caller must hold c.mu and
// have verified the cache is non-empty.
func (c *Cache) evictLRU() {
	back := c.lru.Back()
	n := back.Value.(*node)
	c.removeNode(n)
}

// Insert installs or updates an entry, promoting it to MRU. If the key
// already exists, its value is updated in place (spec.md §4.3: "inserting
// an existing primary key updates in place and promotes to MRU").
func (c *Cache) Insert(entry Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.primary[entry.Key]; ok {
		c.indexRemove(existing)
		existing.entry = entry
		c.indexInsert(existing)
		c.lru.MoveToFront(existing.elem)
		return
	}

	if len(c.primary) >= c.maxSize && c.maxSize > 0 {
		c.evictLRU()
	}
	n := &node{entry: entry}
	n.elem = c.lru.PushFront(n)
	c.primary[entry.Key] = n
	c.indexInsert(n)
}

// Lookup looks up key, promoting a hit to MRU and counting hit/miss. If the
// entry's age exceeds the configured max age, it is treated as a miss and
// removed.
func (c *Cache) Lookup(key Key, now uint64) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.primary[key]
	if !ok {
		c.missCount.Add(1)
		return Entry{}, false
	}
	if c.cacheMaxAgeMicros > 0 && now > n.entry.TimestampMicros && now-n.entry.TimestampMicros > c.cacheMaxAgeMicros {
		c.removeNode(n)
		c.missCount.Add(1)
		return Entry{}, false
	}
	c.lru.MoveToFront(n.elem)
	c.hitCount.Add(1)
	return n.entry, true
}

// InvalidateByStream removes every entry for streamID.
func (c *Cache) InvalidateByStream(streamID uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for n := range c.byStream[streamID] {
		c.removeNode(n)
	}
}

// InvalidateByContext removes every entry for (streamID, contextID).
func (c *Cache) InvalidateByContext(streamID, contextID uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sc := streamContextKey{streamID, contextID}
	for n := range c.byStreamContext[sc] {
		c.removeNode(n)
	}
}

// InvalidateBySecurityState removes every entry carrying security state sec.
func (c *Cache) InvalidateBySecurityState(sec hostarch.SecurityState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for n := range c.bySecurity[sec] {
		c.removeNode(n)
	}
}

// InvalidatePage removes a single entry, if present. Idempotent.
func (c *Cache) InvalidatePage(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n, ok := c.primary[key]; ok {
		c.removeNode(n)
	}
}

// InvalidatePageAllSecurity removes the entry for (streamID, contextID,
// pageNumber) under every security state, used by the AtcInvalidate command
// whose signature does not carry a security state (spec.md §4.6).
func (c *Cache) InvalidatePageAllSecurity(streamID, contextID uint32, pageAlignedIOVA hostarch.Addr) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, sec := range []hostarch.SecurityState{hostarch.NonSecure, hostarch.Secure, hostarch.Realm} {
		key := Key{StreamID: streamID, ContextID: contextID, PageNumber: pageAlignedIOVA.PageNumber(), Security: sec}
		if n, ok := c.primary[key]; ok {
			c.removeNode(n)
		}
	}
}

// InvalidateAll empties the cache.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Init()
	c.primary = make(map[Key]*node)
	c.byStream = make(map[uint32]map[*node]struct{})
	c.byStreamContext = make(map[streamContextKey]map[*node]struct{})
	c.bySecurity = make(map[hostarch.SecurityState]map[*node]struct{})
}

// SetMaxSize trims by LRU eviction until size <= n, then applies n as the
// new capacity.
func (c *Cache) SetMaxSize(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.primary) > n && c.lru.Len() > 0 {
		c.evictLRU()
	}
	c.maxSize = n
}

// GetStatistics returns a consistent snapshot under the lock.
func (c *Cache) GetStatistics() Statistics {
	c.mu.Lock()
	defer c.mu.Unlock()

	size := len(c.primary)
	maxSize := c.maxSize
	hit := c.hitCount.Load()
	miss := c.missCount.Load()
	total := hit + miss
	var rate float64
	if total > 0 {
		rate = float64(hit) / float64(total)
	}
	return Statistics{
		HitCount:     hit,
		MissCount:    miss,
		TotalLookups: total,
		HitRate:      rate,
		CurrentSize:  size,
		MaxSize:      maxSize,
	}
}

// ResetStatistics zeroes the hit/miss counters without touching entries.
func (c *Cache) ResetStatistics() {
	c.hitCount.Store(0)
	c.missCount.Store(0)
}

// Len returns the current number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.primary)
}
