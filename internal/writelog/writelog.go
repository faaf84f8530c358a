// Package writelog implements the per-transaction write log (spec.md §4.5):
// the set of cells a transaction intends to publish to at commit time, plus
// the bloom-filtered membership index that lets read-your-own-writes checks
// skip a full scan in the common case.
//
// Grounded on the source's internal/write_log.rs. That implementation
// type-erases each entry into a hand-rolled vtable vector so entries of
// different T can share one contiguous buffer; Go has no equivalent need
// since a closure already erases the pending value's type for us, so each
// entry here is a uniform (lock, perform, pending) triple rather than a DynVec
// element. The bloom-then-hashmap-overflow membership strategy, and the
// "write log" as the source of truth for write-write deduplication within
// one transaction, are carried over unchanged.
package writelog

import (
	"fmt"
	"sync/atomic"

	"github.com/kolkov/swymgo/internal/bloom"
	"github.com/kolkov/swymgo/internal/epoch"
)

// WriteAfterWriteCount returns how many times RecordValue has overwritten
// an already-pending write within a single transaction attempt, over this
// Log's lifetime.
func (l *Log) WriteAfterWriteCount() uint64 { return l.writeAfterWrite.Load() }

// BloomCollisionCount returns how many times find's membership filter
// reported Maybe for a lock that the ensuing linear scan did not actually
// contain, over this Log's lifetime.
func (l *Log) BloomCollisionCount() uint64 { return l.bloomCollisions.Load() }

// DebugAlloc gates the extra consistency assertions Config.DebugAlloc
// enables. When set, RecordValue brute-force-scans existing entries before
// appending a new one, to catch find() disagreeing with a linear search —
// e.g. a bloom filter false negative or an overflow index left stale by a
// bug elsewhere in this package. Off by default: the scan makes every
// append linear instead of amortized O(1).
var DebugAlloc atomic.Bool

type entry struct {
	lock    *epoch.Lock
	perform func()
	pending any
}

// Log is the write log for one transaction attempt. The zero value is
// ready to use. writeAfterWrite and bloomCollisions are lifetime counters
// for the goroutine this Log belongs to — Clear does not reset them, so
// internal/txn.Runtime can sum them across every goroutine for diagnostics
// (see WriteAfterWriteCount, BloomCollisionCount).
type Log struct {
	filter        bloom.Filter[epoch.Lock]
	entries       []entry
	overflowIndex map[*epoch.Lock]int

	writeAfterWrite atomic.Uint64
	bloomCollisions atomic.Uint64
}

// Len returns the number of distinct cells recorded for write.
func (l *Log) Len() int { return len(l.entries) }

// IsEmpty reports whether no writes have been recorded.
func (l *Log) IsEmpty() bool { return len(l.entries) == 0 }

// Record adds or overwrites the pending write for lock. A second write to
// the same cell within one transaction replaces the first entry's perform
// closure in place rather than appending a duplicate (spec.md §4.5
// "second write wins"); the source achieves the same effect via
// tombstone_replace, needed there only because its type-erased storage
// can't shrink an existing slot to fit a differently-sized T in place.
func (l *Log) Record(lock *epoch.Lock, perform func()) {
	l.RecordValue(lock, perform, nil)
}

// RecordValue is Record plus a pending value retrievable via Pending, used
// by read-your-own-writes lookups (spec.md §4.5 get_slow). pending is
// stored as-is (boxed in an interface) and is never interpreted by this
// package — callers type-assert it back to the concrete T they recorded.
func (l *Log) RecordValue(lock *epoch.Lock, perform func(), pending any) {
	if idx, ok := l.find(lock); ok {
		l.entries[idx].perform = perform
		l.entries[idx].pending = pending
		l.writeAfterWrite.Add(1)
		return
	}
	if DebugAlloc.Load() {
		for _, e := range l.entries {
			if e.lock == lock {
				panic(fmt.Sprintf("writelog: find() missed an existing entry for %p (double-insertion)", lock))
			}
		}
	}
	l.entries = append(l.entries, entry{lock: lock, perform: perform, pending: pending})
	idx := len(l.entries) - 1
	l.filter.Insert(lock)
	if l.overflowIndex != nil {
		l.overflowIndex[lock] = idx
	}
}

// Contains reports whether lock already has a pending write in this log.
func (l *Log) Contains(lock *epoch.Lock) bool {
	_, ok := l.find(lock)
	return ok
}

// Pending returns the value last stashed for lock via RecordValue, if any.
func (l *Log) Pending(lock *epoch.Lock) (any, bool) {
	idx, ok := l.find(lock)
	if !ok {
		return nil, false
	}
	return l.entries[idx].pending, true
}

func (l *Log) find(lock *epoch.Lock) (int, bool) {
	if l.filter.Test(lock) == bloom.No {
		return -1, false
	}
	if l.filter.Overflowed() {
		if l.overflowIndex == nil {
			l.rebuildOverflowIndex()
		}
		idx, ok := l.overflowIndex[lock]
		return idx, ok
	}
	for i := len(l.entries) - 1; i >= 0; i-- {
		if l.entries[i].lock == lock {
			return i, true
		}
	}
	l.bloomCollisions.Add(1)
	return -1, false
}

func (l *Log) rebuildOverflowIndex() {
	l.overflowIndex = make(map[*epoch.Lock]int, len(l.entries))
	for i, e := range l.entries {
		l.overflowIndex[e.lock] = i
	}
}

// Each invokes f for every recorded (lock, perform) pair, in record order.
func (l *Log) Each(f func(lock *epoch.Lock, perform func())) {
	for _, e := range l.entries {
		f(e.lock, e.perform)
	}
}

// IterLocks invokes f with each distinct cell lock this log will publish
// to, in record order (spec.md §4.5 epoch_locks). Used by the parking
// protocol to set and clear parked bits on write-log cells.
func (l *Log) IterLocks(f func(lock *epoch.Lock)) {
	for _, e := range l.entries {
		f(e.lock)
	}
}

// LockAll attempts to acquire every recorded cell's lock for a committer
// pinned at maxExpected, in record order. On the first failure it releases
// every lock already acquired, in acquisition order, and returns ok=false;
// spec.md §4.8.2 step 3 requires no partial lock set to survive a failed
// commit attempt.
//
// anyParked reports whether any acquired lock had its parked bit set,
// which the commit protocol uses to decide whether an unpark sweep is
// needed after a successful publish (spec.md §4.8.2 step 8).
func (l *Log) LockAll(maxExpected epoch.Epoch) (ok bool, anyParked bool) {
	acquired := 0
	for _, e := range l.entries {
		lockOK, wasParked := e.lock.TryLock(maxExpected)
		if !lockOK {
			for i := 0; i < acquired; i++ {
				l.entries[i].lock.UnlockUndo()
			}
			return false, false
		}
		if wasParked {
			anyParked = true
		}
		acquired++
	}
	return true, anyParked
}

// ValidateWrites reports whether every recorded cell's lock is still valid
// to write at pinEpoch. Used by the hardware-transaction path, which
// validates instead of locking (spec.md §4.8.3).
func (l *Log) ValidateWrites(pinEpoch epoch.Epoch) bool {
	for _, e := range l.entries {
		if !e.lock.ReadWriteValidAt(pinEpoch) {
			return false
		}
	}
	return true
}

// PerformWrites runs every recorded perform closure, copying each
// transaction-local pending value into its cell's storage. The caller must
// hold every entry's lock (spec.md §4.8.2 step 5).
func (l *Log) PerformWrites() {
	for _, e := range l.entries {
		e.perform()
	}
}

// Publish stores newEpoch into every recorded cell's lock, releasing it
// (spec.md §4.8.2 step 7). The caller must hold every entry's lock.
func (l *Log) Publish(newEpoch epoch.Epoch) {
	for _, e := range l.entries {
		e.lock.UnlockPublish(newEpoch)
	}
}

// UnlockAllUndo releases every recorded cell's lock without publishing,
// restoring each to its pre-lock state. Used by the software commit path
// when read validation fails after LockAll succeeded.
func (l *Log) UnlockAllUndo() {
	for _, e := range l.entries {
		e.lock.UnlockUndo()
	}
}

// Clear empties the log for reuse across transaction attempts.
func (l *Log) Clear() {
	l.filter.Clear()
	l.entries = l.entries[:0]
	l.overflowIndex = nil
}
