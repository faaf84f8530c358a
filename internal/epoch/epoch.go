// Package epoch implements the global logical clock and per-cell epoch
// locks that underpin swymgo's optimistic concurrency control.
//
// An Epoch is a 64-bit logical timestamp. The two most significant bits are
// overloaded as flags on a per-cell EpochLock: bit 63 is the lock bit (set
// while some committer is publishing a new value), bit 62 is the parked
// bit (set while some goroutine is parked waiting on this cell, see
// internal/park). The remaining 62 bits hold the actual epoch value, which
// is a process-wide monotonically increasing counter starting at 1 — in
// practice this never approaches the 62-bit ceiling, but Clock.FetchAndTick
// guards against it anyway (ErrClockExhaustion).
//
// This mirrors the bit-packing technique the teacher's epoch package uses
// to fold a thread id and clock into one machine word
// (internal/race/epoch/epoch.go), applied here to the different flag set
// spec.md §4.1 calls for.
package epoch

import (
	"fmt"
	"sync/atomic"
)

// Epoch is a logical commit timestamp, or one of the two sentinel values
// Inactive / EndOfTime.
type Epoch uint64

const (
	lockBit   Epoch = 1 << 63
	parkedBit Epoch = 1 << 62
	flagBits  Epoch = lockBit | parkedBit
	valueMask Epoch = ^flagBits

	// First is the value of the global clock before any commit has happened.
	First Epoch = 1

	// Inactive marks a thread synch record (or a pin) that is not currently
	// participating in any transaction. All bits set.
	Inactive Epoch = ^Epoch(0)

	// EndOfTime is the largest legal active epoch: Inactive with the lock
	// bit cleared. The clock must never be allowed to reach it.
	EndOfTime Epoch = Inactive &^ lockBit

	// MaxEpoch is the largest value FetchAndTick may safely hand out.
	MaxEpoch Epoch = valueMask - 1
)

// LockBitSet reports whether e has its lock bit set.
func (e Epoch) LockBitSet() bool { return e&lockBit != 0 }

// ParkedBitSet reports whether e has its parked bit set.
func (e Epoch) ParkedBitSet() bool { return e&parkedBit != 0 }

// Value strips the flag bits, returning the bare epoch value.
func (e Epoch) Value() Epoch { return e & valueMask }

// IsActive reports whether e is not the Inactive sentinel.
func (e Epoch) IsActive() bool { return e != Inactive }

// ReadWriteValid reports whether a pin at epoch e may safely observe or
// publish over a cell whose (unlocked) stored epoch is target.
//
// spec.md §4.1: the unlocked epoch must be <= the pin epoch.
func (e Epoch) ReadWriteValid(target Epoch) bool {
	return target.Value() <= e.Value()
}

// String renders an epoch for diagnostics.
func (e Epoch) String() string {
	switch e {
	case Inactive:
		return "inactive"
	case EndOfTime:
		return "end-of-time"
	default:
		flags := ""
		if e.LockBitSet() {
			flags += "L"
		}
		if e.ParkedBitSet() {
			flags += "P"
		}
		if flags == "" {
			return fmt.Sprintf("%d", uint64(e.Value()))
		}
		return fmt.Sprintf("%d[%s]", uint64(e.Value()), flags)
	}
}

// Clock is the single process-wide epoch clock (spec.md §4.1). The zero
// value is not usable; use NewClock.
type Clock struct {
	value atomic.Uint64
}

// NewClock returns a clock initialized to First.
func NewClock() *Clock {
	c := &Clock{}
	c.value.Store(uint64(First))
	return c
}

// Now returns the current value of the clock without advancing it.
func (c *Clock) Now() Epoch {
	return Epoch(c.value.Load())
}

// FetchAndTick atomically reads and increments the clock, returning the
// pre-increment value. By convention (spec.md §4.1) the returned value is
// the "sync_epoch": the epoch at which the committer finished acquiring
// locks, and sync_epoch+1 is the epoch published on committed cells.
//
// Panics with ErrClockExhaustion if the clock is about to reach EndOfTime;
// spec.md §7 treats this as a fatal, process-aborting condition.
func (c *Clock) FetchAndTick() Epoch {
	prev := Epoch(c.value.Add(1) - 1)
	if prev >= MaxEpoch {
		panic(ErrClockExhaustion)
	}
	return prev
}

// ErrClockExhaustion is the panic value raised when the global epoch clock
// is about to overflow its reserved flag bits. spec.md §7 classifies this
// as fatal: there is no recovery, the process must abort.
var ErrClockExhaustion = fmt.Errorf("swymgo: epoch clock exhausted")

// Lock is a single machine word holding either an unlocked epoch, or an
// epoch with the lock bit (and possibly the parked bit) set. It guards one
// versioned cell (spec.md §4.1/§4.2).
type Lock struct {
	word atomic.Uint64
}

// NewLock returns a lock initialized to First, unlocked, unparked.
func NewLock() *Lock {
	l := &Lock{}
	l.Init()
	return l
}

// Init resets l to First, unlocked, unparked, in place. Used by embedders
// that need to initialize a Lock field without copying a whole Lock value
// (copying would trip go vet's copylocks check on the atomic word).
func (l *Lock) Init() { l.word.Store(uint64(First)) }

func (l *Lock) load() Epoch { return Epoch(l.word.Load()) }

// TryLock attempts to acquire the lock on behalf of a transaction pinned at
// maxExpected. It succeeds iff the lock bit is clear and the stored
// (unlocked) epoch is <= maxExpected; on success the lock bit is set,
// preserving the epoch value and the parked bit, with release ordering.
//
// The second return value reports whether the parked bit was set at the
// moment of acquisition — callers use this to decide whether an unpark scan
// is needed after a successful commit (spec.md §4.8.2 step 8).
func (l *Lock) TryLock(maxExpected Epoch) (ok bool, wasParked bool) {
	for {
		actual := l.load()
		if actual.LockBitSet() {
			return false, false
		}
		if !maxExpected.ReadWriteValid(actual) {
			return false, false
		}
		if l.word.CompareAndSwap(uint64(actual), uint64(actual|lockBit)) {
			return true, actual.ParkedBitSet()
		}
		// lost the race to another writer or a parked-bit toggle; retry.
	}
}

// UnlockPublish stores newEpoch, clearing both the lock bit and the parked
// bit, with release ordering. The caller must already hold the lock.
// Precondition: caller holds the lock (spec.md §4.1 unlock_publish).
func (l *Lock) UnlockPublish(newEpoch Epoch) {
	l.word.Store(uint64(newEpoch.Value()))
}

// UnlockUndo releases the lock, restoring the epoch (and parked bit) that
// was present before TryLock succeeded. Precondition: caller holds the lock.
func (l *Lock) UnlockUndo() {
	for {
		actual := l.load()
		if !actual.LockBitSet() {
			panic("swymgo: UnlockUndo called on an unlocked EpochLock")
		}
		if l.word.CompareAndSwap(uint64(actual), uint64(actual&^lockBit)) {
			return
		}
	}
}

// ReadWriteValidAt reports whether the lock's current unlocked epoch is
// valid to read or write at pinEpoch: the stored epoch must be <= pinEpoch
// and the lock must not currently be held by another committer.
func (l *Lock) ReadWriteValidAt(pinEpoch Epoch) bool {
	actual := l.load()
	return !actual.LockBitSet() && pinEpoch.ReadWriteValid(actual)
}

// Epoch returns the raw word, flags included. Used by optimistic reads
// which must check the lock bit themselves (spec.md §4.2 optimistic_read).
func (l *Lock) Epoch() Epoch { return l.load() }

// SetParkedIfValid sets the parked bit iff the lock's unlocked epoch is
// still <= pinEpoch (spec.md §4.9 park protocol step a). It returns false,
// leaving the bit untouched, if the cell has since advanced past pinEpoch —
// the caller must then unset any parked bits it already set and restart the
// transaction.
func (l *Lock) SetParkedIfValid(pinEpoch Epoch) bool {
	for {
		actual := l.load()
		if !pinEpoch.ReadWriteValid(actual) {
			return false
		}
		if actual.ParkedBitSet() {
			return true
		}
		if l.word.CompareAndSwap(uint64(actual), uint64(actual|parkedBit)) {
			return true
		}
	}
}

// ClearParkedBit unconditionally clears the parked bit. Used to roll back a
// partially-completed park attempt (spec.md §4.9 step a, abort path).
func (l *Lock) ClearParkedBit() {
	for {
		actual := l.load()
		if !actual.ParkedBitSet() {
			return
		}
		if l.word.CompareAndSwap(uint64(actual), uint64(actual&^parkedBit)) {
			return
		}
	}
}
