// Package starve implements the fairness backstop described in spec.md
// §4.10: a committer that has failed to acquire its write-log locks
// repeatedly takes this lock exclusively for one commit attempt, and every
// other committer waits for it to be free before attempting its own.
//
// Grounded on the source's internal/starvation.rs, a hand-rolled raw mutex
// built directly on parking_lot_core with two independent operations: a
// cheap non-blocking check ("is anyone starving right now") for the common
// case, and a real exclusive acquisition for the starved thread's one
// guaranteed attempt. golang.org/x/sync/semaphore.Weighted gives the same
// shape as a binary semaphore without hand-rolling the park/unpark state
// machine parking_lot_core provides in Rust.
package starve

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Lock is the process-wide starvation backstop. The zero value is not
// usable; construct with New.
type Lock struct {
	sem *semaphore.Weighted
}

// New returns an unheld Lock.
func New() *Lock {
	return &Lock{sem: semaphore.NewWeighted(1)}
}

// Acquire blocks until the calling goroutine holds the lock exclusively.
// A committer calls this only after exhausting its ordinary retry budget
// (spec.md §4.10); it guarantees that no other goroutine can be mid-commit
// while this one runs.
func (l *Lock) Acquire() {
	// context.Background() never cancels; Acquire with weight 1 against a
	// capacity-1 semaphore can only ever return nil here.
	_ = l.sem.Acquire(context.Background(), 1)
}

// Release gives up the lock acquired by Acquire.
func (l *Lock) Release() {
	l.sem.Release(1)
}

// WaitUnlocked blocks only if some other goroutine currently holds the
// lock via Acquire, returning as soon as it is free. Ordinary committers
// call this before each commit attempt so a starved goroutine's exclusive
// window is actually exclusive (spec.md §4.10).
func (l *Lock) WaitUnlocked() {
	_ = l.sem.Acquire(context.Background(), 1)
	l.sem.Release(1)
}
