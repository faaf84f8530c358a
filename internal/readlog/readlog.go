// Package readlog implements the per-transaction read log (spec.md §4.4):
// an append-only, duplicate-tolerant record of every cell observed during
// the current transaction, validated at commit time by a single linear
// scan.
package readlog

import (
	"fmt"
	"sync/atomic"

	"github.com/kolkov/swymgo/internal/epoch"
)

// DefaultCapacity is the initial backing-array size, matching the source's
// READ_CAPACITY = 1024 (spec.md §6 Config.ReadLogInitialCap default).
const DefaultCapacity = 1024

// DebugAlloc gates the extra consistency assertion Config.DebugAlloc
// enables. When set, Clear zeroes every retained slot instead of just
// resetting the length, so a stale *epoch.Lock surviving from a prior
// attempt (e.g. Each called on indices past len by mistake elsewhere) turns
// into an immediate nil-pointer panic rather than silent reuse of garbage
// state.
var DebugAlloc atomic.Bool

// Log is the read log for one transaction attempt. The zero value is not
// usable; construct with New.
type Log struct {
	cells []*epoch.Lock
}

// New returns an empty log pre-sized to cap.
func New(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{cells: make([]*epoch.Lock, 0, capacity)}
}

// Push records that the current transaction observed lock. Duplicates are
// permitted; validation is a simple linear scan regardless.
func (l *Log) Push(lock *epoch.Lock) {
	l.cells = append(l.cells, lock)
}

// Len returns the number of logged reads, duplicates included.
func (l *Log) Len() int { return len(l.cells) }

// IsEmpty reports whether no reads have been logged.
func (l *Log) IsEmpty() bool { return len(l.cells) == 0 }

// At returns the i'th logged cell lock.
func (l *Log) At(i int) *epoch.Lock { return l.cells[i] }

// Clear empties the log for reuse across transaction attempts, retaining
// its backing array (spec.md §4.4 clear()).
func (l *Log) Clear() {
	if DebugAlloc.Load() {
		for i := range l.cells {
			l.cells[i] = nil
		}
	}
	l.cells = l.cells[:0]
}

// AssertNoStaleSlots panics if any retained-but-unused slot beyond the
// current length still holds a lock from a prior attempt. Only meaningful
// right after Clear with DebugAlloc enabled; exists for tests that want to
// verify the assertion itself fires rather than waiting for an incidental
// nil dereference.
func (l *Log) AssertNoStaleSlots() {
	for i := len(l.cells); i < cap(l.cells); i++ {
		if l.cells[:cap(l.cells)][i] != nil {
			panic(fmt.Sprintf("readlog: stale slot %d survived Clear()", i))
		}
	}
}

// FilterInPlace keeps only the entries for which keep returns true,
// compacting the backing array without allocating. Used by the commit
// protocol to drop read-log entries that are also present in the write log
// before lock acquisition (spec.md §4.8.2 step 2, the "newer" ordering
// adopted per spec.md §9).
func (l *Log) FilterInPlace(keep func(lock *epoch.Lock) bool) {
	out := l.cells[:0]
	for _, c := range l.cells {
		if keep(c) {
			out = append(out, c)
		}
	}
	l.cells = out
}

// Validate reports whether every logged cell's lock is still unlocked and
// at an epoch <= pinEpoch (spec.md §4.4 validate). A single failing entry
// invalidates the whole scan — there is no early distinction between
// "locked by someone else" and "epoch advanced".
func (l *Log) Validate(pinEpoch epoch.Epoch) bool {
	for _, c := range l.cells {
		if !c.ReadWriteValidAt(pinEpoch) {
			return false
		}
	}
	return true
}

// Contains reports whether lock has already been logged. Used only by
// tests; the commit hot path and the parking protocol (which walks the log
// with Each) never need it.
func (l *Log) Contains(lock *epoch.Lock) bool {
	for _, c := range l.cells {
		if c == lock {
			return true
		}
	}
	return false
}

// Each invokes f for every logged cell, in log order.
func (l *Log) Each(f func(lock *epoch.Lock)) {
	for _, c := range l.cells {
		f(c)
	}
}
