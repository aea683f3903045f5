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

package fault

import (
	deadlock "github.com/sasha-s/go-deadlock"

	"github.com/jpgreninger/smmu/pkg/hostarch"
)

// Record is a single fault occurrence, appended to the event FIFO and
// retained in the bounded fault log.
type Record struct {
	StreamID        uint32
	ContextID       uint32
	FaultingAddress hostarch.Addr
	FaultType       FaultType
	Access          hostarch.AccessType
	Security        hostarch.SecurityState
	Syndrome        Syndrome
	TimestampMicros uint64
}

// Log is a bounded FIFO of Records plus monotonic per-type/per-access-type
// counters. Overflow uses the newest-preserving policy of spec.md §4.4: the
// newest record is kept, the oldest dropped.
type Log struct {
	mu deadlock.Mutex

	capacity int
	records  []Record

	countByFaultType map[FaultType]uint64
	countByAccess    map[hostarch.AccessType]uint64
}

// NewLog constructs a Log bounded to capacity records.
func NewLog(capacity int) *Log {
	return &Log{
		capacity:         capacity,
		countByFaultType: make(map[FaultType]uint64),
		countByAccess:    make(map[hostarch.AccessType]uint64),
	}
}

// Record appends a fault, dropping the oldest entry if at capacity. The
// per-type counters are monotonic and are never affected by overflow
// eviction.
func (l *Log) Record(rec Record) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.capacity > 0 && len(l.records) >= l.capacity {
		l.records = l.records[1:]
	}
	l.records = append(l.records, rec)
	l.countByFaultType[rec.FaultType]++
	l.countByAccess[rec.Access]++
}

// GetAll drains every retained record, emptying the log.
func (l *Log) GetAll() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.records
	l.records = nil
	return out
}

// Peek returns a copy of every retained record without draining the log.
func (l *Log) Peek() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Record, len(l.records))
	copy(out, l.records)
	return out
}

// GetByStream returns retained records for a single stream, without
// draining.
func (l *Log) GetByStream(streamID uint32) []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Record
	for _, r := range l.records {
		if r.StreamID == streamID {
			out = append(out, r)
		}
	}
	return out
}

// GetByContext returns retained records for a single (stream, context) pair.
func (l *Log) GetByContext(streamID, contextID uint32) []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Record
	for _, r := range l.records {
		if r.StreamID == streamID && r.ContextID == contextID {
			out = append(out, r)
		}
	}
	return out
}

// GetRecent returns records whose timestamp falls within [now-windowUs,
// now].
func (l *Log) GetRecent(now uint64, windowUs uint64) []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Record
	for _, r := range l.records {
		if now >= r.TimestampMicros && now-r.TimestampMicros <= windowUs {
			out = append(out, r)
		}
	}
	return out
}

// Count returns the monotonic count of faults of the given type.
func (l *Log) Count(ft FaultType) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.countByFaultType[ft]
}

// CountByAccess returns the monotonic count of faults with the given access
// type.
func (l *Log) CountByAccess(access hostarch.AccessType) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.countByAccess[access]
}

// Rate returns the number of faults within the trailing window divided by
// the window length in seconds.
func (l *Log) Rate(now uint64, windowUs uint64) float64 {
	if windowUs == 0 {
		return 0
	}
	recent := l.GetRecent(now, windowUs)
	return float64(len(recent)) / (float64(windowUs) / 1_000_000)
}

// Len returns the number of retained (undrained) records.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// Clear empties the retained records without touching the counters.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = nil
}
