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

// Package controller implements component C8, the public facade: stream
// and context lifecycle, global policy, and statistics aggregation over
// the translator (C5), TLB (C3), fault log (C4), and queue layer (C6).
//
// Lock order (spec.md §5): Controller.mu -> stream.Context's own mutex ->
// tlb.Cache's own mutex. No method below may acquire a stream or TLB lock
// and then call back up into the controller.
package controller

import (
	"context"

	deadlock "github.com/sasha-s/go-deadlock"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/jpgreninger/smmu/pkg/clock"
	"github.com/jpgreninger/smmu/pkg/hostarch"
	"github.com/jpgreninger/smmu/pkg/smmu/config"
	"github.com/jpgreninger/smmu/pkg/smmu/fault"
	"github.com/jpgreninger/smmu/pkg/smmu/internal/invariant"
	"github.com/jpgreninger/smmu/pkg/smmu/queue"
	"github.com/jpgreninger/smmu/pkg/smmu/smmuerr"
	"github.com/jpgreninger/smmu/pkg/smmu/stream"
	"github.com/jpgreninger/smmu/pkg/smmu/tlb"
	"github.com/jpgreninger/smmu/pkg/smmu/translate"
)

// Controller is the single public entry point of the core (C8). The zero
// value is not usable; construct with New.
type Controller struct {
	mu deadlock.Mutex

	cfg config.Configuration

	streams map[uint32]*stream.Context

	tlbCache   *tlb.Cache
	faultLog   *fault.Log
	events     *queue.EventQueue
	commands   *queue.CommandQueue
	pri        *queue.PRIQueue
	translator *translate.Translator

	cachingEnabled bool

	sem *semaphore.Weighted

	totalTranslations uint64
	totalFaults       uint64

	log logrus.FieldLogger
}

// Option customizes a Controller at construction time.
type Option func(*Controller)

// WithLogger overrides the default logrus.StandardLogger().
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Controller) { c.log = l }
}

// New constructs a Controller. If cfg is the zero value, config.Default()
// is used.
func New(cfg config.Configuration, opts ...Option) (*Controller, *smmuerr.Error) {
	if (cfg == config.Configuration{}) {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Controller{
		cfg:            cfg,
		streams:        make(map[uint32]*stream.Context),
		tlbCache:       tlb.New(int(cfg.Cache.TLBSize), cfg.Cache.MaxAgeMicros),
		faultLog:       fault.NewLog(int(cfg.Queues.EventQueueSize)),
		events:         queue.NewEventQueue(int(cfg.Queues.EventQueueSize)),
		commands:       queue.NewCommandQueue(int(cfg.Queues.CommandQueueSize)),
		pri:            queue.NewPRIQueue(int(cfg.Queues.PRIQueueSize)),
		cachingEnabled: cfg.Cache.EnableCaching,
		sem:            semaphore.NewWeighted(int64(cfg.Resources.ThreadCap)),
		log:            logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.translator = &translate.Translator{
		TLB:            c.tlbCache,
		Faults:         c.faultLog,
		Events:         c.events,
		PRI:            c.pri,
		Lookup:         c.lookupStream,
		CachingEnabled: func() bool { return c.isCachingEnabled() },
		Now:            clock.NowMicros,
		Log:            c.log,
	}
	return c, nil
}

func (c *Controller) isCachingEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cachingEnabled
}

func (c *Controller) lookupStream(streamID uint32) (*stream.Context, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sc, ok := c.streams[streamID]
	return sc, ok
}

// acquireThread bounds concurrent in-flight operations to
// ResourceLimits.ThreadCap (SPEC_FULL.md domain stack: golang.org/x/sync
// semaphore). Blocks until a slot is free or ctx is done.
func (c *Controller) acquireThread(ctx context.Context) error {
	c.mu.Lock()
	sem := c.sem
	c.mu.Unlock()
	return sem.Acquire(ctx, 1)
}

func (c *Controller) releaseThread() {
	c.mu.Lock()
	sem := c.sem
	c.mu.Unlock()
	sem.Release(1)
}

// Translate is the single translation entry point (spec.md §6). A broken
// internal invariant surfaces here as a SpecViolation error rather than a Go
// panic (pkg/smmu/internal/invariant.Guard).
func (c *Controller) Translate(streamID, contextID uint32, iova hostarch.Addr, access hostarch.AccessType, security hostarch.SecurityState) (res translate.Result, rerr *smmuerr.Error) {
	if err := c.acquireThread(context.Background()); err != nil {
		return translate.Result{}, smmuerr.Wrap(smmuerr.ResourceExhausted, err)
	}
	defer c.releaseThread()

	var panicErr error
	defer func() {
		if panicErr != nil {
			c.log.WithError(panicErr).Error("internal invariant violated during translate")
			rerr = smmuerr.Wrap(smmuerr.SpecViolation, panicErr)
		}
	}()
	// Deferred directly (and so run first) so that its recover() call stops
	// the panic; the closure above then turns the result into rerr.
	defer invariant.Guard(&panicErr)

	res, terr := c.translator.Translate(streamID, contextID, iova, access, security)
	c.mu.Lock()
	c.totalTranslations++
	if terr != nil {
		c.totalFaults++
	}
	c.mu.Unlock()
	return res, terr
}

// Reset clears every stream, the TLB, the fault log, and all three queues,
// restoring the controller to its just-constructed state (configuration is
// left untouched; callers that also want a fresh configuration should
// construct a new Controller).
func (c *Controller) Reset() {
	c.mu.Lock()
	c.streams = make(map[uint32]*stream.Context)
	c.totalTranslations = 0
	c.totalFaults = 0
	c.mu.Unlock()

	c.tlbCache.InvalidateAll()
	c.tlbCache.ResetStatistics()
	c.faultLog.Clear()
	c.events.Clear()
	c.commands.Clear()
	c.pri.Clear()
}
