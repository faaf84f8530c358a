// Package park implements swymgo's condition-wait protocol: a transaction
// that wants to block until one of the cells it observed changes, instead
// of busy-retrying (spec.md §4.9, the AwaitRetry status).
//
// Grounded on the source's internal/parking.rs, which multiplexes every
// waiting transaction in the process onto parking_lot_core's single
// generic wait queue, keyed by the address of the global epoch clock so
// that one swym instance's parked transactions never interact with
// another's. Go has no equivalent cross-goroutine parking primitive, so
// Queue reimplements the same three-phase protocol (mark logged cells
// parked, double-check validity before actually sleeping, wake only the
// waiters a commit actually invalidated) on top of a mutex-protected
// waiter list and one buffered channel per waiter.
package park

import (
	"github.com/kolkov/swymgo/internal/epoch"
	"github.com/kolkov/swymgo/internal/readlog"
	"github.com/kolkov/swymgo/internal/writelog"
)

// Parkable reports whether a transaction has anything to wait on. Parking
// a transaction with empty logs would sleep the calling goroutine forever,
// since no commit could ever touch a cell it never read or wrote.
func Parkable(reads *readlog.Log, writes *writelog.Log) bool {
	return !reads.IsEmpty() || !writes.IsEmpty()
}

type waiter struct {
	wake   chan struct{}
	pin    epoch.Epoch
	reads  *readlog.Log
	writes *writelog.Log
}

// Queue is one process-wide (per swym runtime instance) wait queue. The
// zero value is ready to use.
type Queue struct {
	mu      chan struct{} // 1-buffered mutex; see lock/unlock below
	waiters []*waiter
}

func (q *Queue) lock() {
	if q.mu == nil {
		q.mu = make(chan struct{}, 1)
	}
	q.mu <- struct{}{}
}

func (q *Queue) unlock() { <-q.mu }

// Park blocks the calling goroutine until a commit invalidates one of the
// cells in reads or writes, or returns immediately with woken=false if
// one of those cells was already invalid at the time of the call — in
// either case the caller must restart its transaction attempt. The caller
// must already have checked Parkable.
func (q *Queue) Park(pin epoch.Epoch, reads *readlog.Log, writes *writelog.Log) (woken bool) {
	if !setParkedBits(pin, reads, writes) {
		return false
	}

	w := &waiter{wake: make(chan struct{}, 1), pin: pin, reads: reads, writes: writes}

	q.lock()
	if !reads.Validate(pin) || !writes.ValidateWrites(pin) {
		q.unlock()
		clearParkedBits(reads, writes)
		return false
	}
	q.waiters = append(q.waiters, w)
	q.unlock()

	<-w.wake
	clearParkedBits(reads, writes)
	return true
}

// Unpark wakes every currently-parked waiter whose logged cells are no
// longer valid, leaving everyone else parked. It returns how many waiters
// were woken. Called by a successful committer that observed a parked bit
// set on one of the cells it just published (spec.md §4.8.2 step 8).
func (q *Queue) Unpark() int {
	q.lock()
	remaining := q.waiters[:0]
	var woken []*waiter
	for _, w := range q.waiters {
		if !w.reads.Validate(w.pin) || !w.writes.ValidateWrites(w.pin) {
			woken = append(woken, w)
		} else {
			remaining = append(remaining, w)
		}
	}
	q.waiters = remaining
	q.unlock()

	for _, w := range woken {
		w.wake <- struct{}{}
	}
	return len(woken)
}

func setParkedBits(pin epoch.Epoch, reads *readlog.Log, writes *writelog.Log) bool {
	var set []*epoch.Lock
	ok := true
	mark := func(l *epoch.Lock) {
		if !ok {
			return
		}
		if l.SetParkedIfValid(pin) {
			set = append(set, l)
		} else {
			ok = false
		}
	}
	reads.Each(mark)
	if ok {
		writes.IterLocks(mark)
	}
	if !ok {
		for _, l := range set {
			l.ClearParkedBit()
		}
		return false
	}
	return true
}

func clearParkedBits(reads *readlog.Log, writes *writelog.Log) {
	reads.Each(func(l *epoch.Lock) { l.ClearParkedBit() })
	writes.IterLocks(func(l *epoch.Lock) { l.ClearParkedBit() })
}
