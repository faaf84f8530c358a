package stm

import (
	"github.com/kolkov/swymgo/internal/epoch"
	"github.com/kolkov/swymgo/internal/txn"
)

// Status is returned by a transaction closure to tell the driving
// ReadOnly/ReadWrite loop what to do next (spec.md §6).
type Status int

const (
	// StatusOK means the closure finished and its effects should be
	// committed.
	StatusOK Status = iota
	// StatusRetry means the closure could not make progress right now
	// (e.g. a queue it read was empty) and should be retried immediately
	// without waiting on any particular cell to change.
	StatusRetry
	// StatusAwaitRetry means the closure could not make progress and
	// should block until one of the cells it has already read or written
	// changes, rather than busy-retrying (spec.md §4.9).
	StatusAwaitRetry
)

// ErrNested is returned by ReadOnly/ReadWrite when the calling goroutine
// already holds a pin — swymgo rejects nested transactions rather than
// supporting them (spec.md §7, §9 Open Questions).
var ErrNested = txn.ErrNested

// ErrClockExhaustion is the error passed to panic when the global epoch
// clock is about to overflow (spec.md §7 fatal/process-aborting
// condition). There is no recovery; a process that reaches this has
// already run long enough, at high enough transaction throughput, that
// continuing would risk epoch-comparison wraparound bugs.
var ErrClockExhaustion = epoch.ErrClockExhaustion

// conflict is panicked internally whenever an optimistic read or a blind
// write observes a cell that is locked or has advanced past the current
// pin epoch. It is always recovered by the ReadOnly/ReadWrite driver loop
// and never escapes to caller code.
type conflict struct{}
