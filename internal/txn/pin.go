// Package txn implements the pinning and commit protocol that the public
// stm package's transaction drivers sit on top of (spec.md §4.8).
//
// Grounded on the source's thread.rs (PinRw/PinMutRef, the non-reentrancy
// guard) and commit.rs (the commit algorithm itself, see commit.go).
// Pinning a goroutine publishes its intent to read/write cell state at the
// current global epoch into the shared registry (internal/synch), so that
// epoch-based garbage collection never reclaims anything a pinned
// goroutine could still observe.
package txn

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/kolkov/swymgo/internal/epoch"
	"github.com/kolkov/swymgo/internal/gcbag"
	"github.com/kolkov/swymgo/internal/gid"
	"github.com/kolkov/swymgo/internal/park"
	"github.com/kolkov/swymgo/internal/readlog"
	"github.com/kolkov/swymgo/internal/starve"
	"github.com/kolkov/swymgo/internal/synch"
	"github.com/kolkov/swymgo/internal/writelog"
)

// ErrNested is returned by Runtime.Pin when the calling goroutine is
// already inside a pinned transaction. swymgo has no notion of nested
// transactions (spec.md §7 Non-goals); a transaction body that tries to
// start another one is a programming error, not a retryable condition.
var ErrNested = errors.New("swymgo: transaction already pinned on this goroutine")

// Runtime is the shared, process-wide state backing every pinned
// transaction: the global epoch clock, the goroutine registry epoch-based
// GC quiesces against, the parking queue, and the starvation backstop.
// One Runtime corresponds to one independent universe of Cells — cells
// created from different Runtimes must never be mixed in the same
// transaction (spec.md §9 Open Questions).
type Runtime struct {
	Clock      *epoch.Clock
	Registry   *synch.Registry
	ParkQueue  *park.Queue
	StarveLock *starve.Lock

	reservoirBagCount int
	readLogInitialCap int

	threads sync.Map // int64 (goroutine id) -> *threadState

	softCommits      atomic.Uint64
	hardwareAttempts atomic.Uint64
	hardwareAborts   atomic.Uint64
	unparks          atomic.Uint64
}

// CommitStats returns lifetime commit-path counters for diagnostics: how
// many commits took the software path, how many commits started a
// hardware transaction and how many of those aborted (both stay 0 in this
// build, since internal/htm never starts one), and how many unpark sweeps
// successful commits issued.
func (rt *Runtime) CommitStats() (softCommits, hardwareAttempts, hardwareAborts, unparks uint64) {
	return rt.softCommits.Load(), rt.hardwareAttempts.Load(), rt.hardwareAborts.Load(), rt.unparks.Load()
}

// WriteLogStats sums the write-after-write and bloom-collision counters of
// every goroutine that has ever pinned a transaction on rt.
func (rt *Runtime) WriteLogStats() (writeAfterWrite, bloomCollisions uint64) {
	rt.threads.Range(func(_, v any) bool {
		ts := v.(*threadState)
		writeAfterWrite += ts.writes.WriteAfterWriteCount()
		bloomCollisions += ts.writes.BloomCollisionCount()
		return true
	})
	return
}

// NewRuntime constructs a Runtime. reservoirBagCount and readLogInitialCap
// of 0 fall back to the package defaults (spec.md §6 Config).
func NewRuntime(reservoirBagCount, readLogInitialCap int) *Runtime {
	return &Runtime{
		Clock:             epoch.NewClock(),
		Registry:          &synch.Registry{},
		ParkQueue:         &park.Queue{},
		StarveLock:        starve.New(),
		reservoirBagCount: reservoirBagCount,
		readLogInitialCap: readLogInitialCap,
	}
}

// threadState is the per-goroutine state a Runtime lazily creates the
// first time that goroutine pins a transaction, and keeps for the life of
// the process (goroutines that pin transactions are assumed long-lived,
// matching the source's thread-local TLS-backed ThreadKey).
type threadState struct {
	record  *synch.Record
	garbage *gcbag.Garbage
	reads   *readlog.Log
	writes  *writelog.Log
	pinned  bool

	// consecutiveFailures counts this goroutine's failed Commit calls in a
	// row, reset to 0 on the next successful one. Once it reaches
	// starvationThreshold, commitSlow acquires the runtime's StarveLock
	// exclusively instead of merely waiting for it to be free (spec.md
	// §4.10), so this goroutine's next attempt runs with every other
	// committer briefly held back.
	consecutiveFailures int
}

func (rt *Runtime) threadStateFor(id int64) *threadState {
	if v, ok := rt.threads.Load(id); ok {
		return v.(*threadState)
	}
	ts := &threadState{
		record:  rt.Registry.Register(),
		garbage: gcbag.New(rt.reservoirBagCount),
		reads:   readlog.New(rt.readLogInitialCap),
		writes:  &writelog.Log{},
	}
	actual, _ := rt.threads.LoadOrStore(id, ts)
	return actual.(*threadState)
}

// Pin is a single pinned transaction attempt, owned exclusively by the
// goroutine that created it via Runtime.Pin.
type Pin struct {
	rt    *Runtime
	ts    *threadState
	epoch epoch.Epoch
}

// Pin registers the calling goroutine as active at the Runtime's current
// epoch and returns a handle to drive one transaction attempt. It returns
// ErrNested if this goroutine is already inside a pinned transaction.
func (rt *Runtime) Pin() (*Pin, error) {
	ts := rt.threadStateFor(gid.Current())
	if ts.pinned {
		return nil, ErrNested
	}
	ts.pinned = true
	now := rt.Clock.Now()
	ts.record.Pin(now)
	return &Pin{rt: rt, ts: ts, epoch: now}, nil
}

// Epoch returns the epoch this pin is currently valid through. Reads and
// writes logged against cells are only safe as long as the cell's own
// epoch is <= this value.
func (p *Pin) Epoch() epoch.Epoch { return p.epoch }

// ThreadID returns the debug identifier assigned to this pin's goroutine
// when it first registered with the runtime. Stable across repeated
// Pin/Unpin cycles on the same goroutine; only meant for diagnostics.
func (p *Pin) ThreadID() string { return p.ts.record.ID().String() }

// Reads returns this pin's read log.
func (p *Pin) Reads() *readlog.Log { return p.ts.reads }

// Writes returns this pin's write log.
func (p *Pin) Writes() *writelog.Log { return p.ts.writes }

// Garbage returns this pin's pending-finalizer bag, for cells privatized
// during the transaction (spec.md §4.7).
func (p *Pin) Garbage() *gcbag.Garbage { return p.ts.garbage }

// Starving reports whether this goroutine has failed enough consecutive
// Commit calls to raise its priority via the runtime's StarveLock
// (spec.md §4.10).
func (p *Pin) Starving() bool { return p.ts.consecutiveFailures >= starvationThreshold }

// ConsecutiveFailures returns this goroutine's current failed-commit
// streak, for diagnostics and tests.
func (p *Pin) ConsecutiveFailures() int { return p.ts.consecutiveFailures }

// Repin clears both logs and re-announces the goroutine as active at the
// Runtime's current epoch, without unpinning — used when a transaction
// attempt fails validation and must restart from scratch (spec.md §4.8.1).
func (p *Pin) Repin() {
	p.ts.reads.Clear()
	p.ts.writes.Clear()
	p.epoch = p.rt.Clock.Now()
	p.ts.record.Repin(p.epoch)
}

// Abort discards a transaction attempt without publishing any of its
// writes: it leaks any finalizers queued by privatizations (those values
// were never actually exposed, so there is nothing to finalize) and
// clears both logs. Used on the panic-safety and user-level-retry paths,
// where the attempt must not be allowed to commit (spec.md §4.8.1, §7).
func (p *Pin) Abort() {
	p.ts.garbage.LeakCurrentEpoch()
	p.ts.reads.Clear()
	p.ts.writes.Clear()
}

// Unpin ends this goroutine's participation in the current transaction.
// The Pin must not be used again afterward. Every successful Runtime.Pin
// must be matched by exactly one Unpin, typically via defer.
func (p *Pin) Unpin() {
	p.ts.record.Unpin()
	p.ts.pinned = false
}

// Park blocks until a commit invalidates something in this pin's logs (or
// returns immediately if that has already happened), as described by
// internal/park. The caller must restart its transaction attempt
// regardless of the return value.
func (p *Pin) Park() bool {
	return p.rt.ParkQueue.Park(p.epoch, p.ts.reads, p.ts.writes)
}

// Parkable reports whether Park would have anything to wait on.
func (p *Pin) Parkable() bool {
	return park.Parkable(p.ts.reads, p.ts.writes)
}
