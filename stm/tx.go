package stm

import (
	"fmt"
	"os"

	"github.com/kolkov/swymgo/internal/txn"
)

// Ordering selects whether a read is logged for commit-time validation.
// A read at OrderingReadWrite is pushed to the read log and validated
// again when a read-write transaction commits; a read at OrderingRead is
// validated only at the moment it happens and is not logged, so a
// transaction whose reads use OrderingRead is not guaranteed to be
// serializable (see Borrow). Ordering matches the source's
// AtomicOrdering-flavored Ordering parameter without its memory-ordering
// implications, which don't apply to Go's atomic.Uint64-backed locks.
type Ordering int

const (
	// OrderingRead marks a read with no planned follow-up write.
	OrderingRead Ordering = iota
	// OrderingReadWrite marks a read the caller expects to Set afterward.
	OrderingReadWrite
)

// ReadTx is the handle a ReadOnly closure receives. It lets the closure
// observe Cell state consistently as of the transaction's pin epoch, but
// — since it carries no write log of its own effects beyond what the
// underlying pin already tracks — offers no Set or Privatize.
type ReadTx struct {
	pin *txn.Pin
}

// RWTx is the handle a ReadWrite closure receives: a ReadTx plus Set and
// Privatize.
type RWTx struct {
	ReadTx
}

// Flat marks types cheap and safe to return by value from Get: Get copies
// the Cell's stored value out from under the lock, so T must not contain
// anything that would be unsound to read concurrently with a torn write
// (e.g. a slice header mid-append). AssertFlat is the only way to obtain
// a Flat for some T, which documents at the call site that the caller has
// made that judgement.
type Flat interface{ flatCopyable() }

type flatWrapper[T any] struct{ value T }

func (flatWrapper[T]) flatCopyable() {}

// Value returns the wrapped value.
func (f flatWrapper[T]) Value() T { return f.value }

// AssertFlat wraps v as Flat, asserting that copying T's representation
// out from under a Cell's lock is safe. Typical T: integers, strings,
// small structs of these, and pointers (the pointed-to value is not
// copied, only the pointer).
func AssertFlat[T any](v T) flatWrapper[T] { return flatWrapper[T]{value: v} }

// validCell reports whether c's lock is currently unlocked and still at or
// before tx's pin epoch — the common validity check every read and write
// performs before touching a cell.
func validCell[T any](pin *txn.Pin, c *Cell[T]) bool {
	e := c.lock.Epoch()
	return !e.LockBitSet() && pin.Epoch().ReadWriteValid(e)
}

// Borrow returns a pointer to a snapshot of c's value as observed by tx
// (spec.md §6 Borrow). The returned pointer never aliases c's live
// storage: it either points at a pending value this same attempt already
// wrote (see below), or at the *T a prior Set atomically published into
// c — a box nothing ever mutates in place again, since every Set boxes a
// fresh copy rather than writing through an existing one (see Cell). A
// concurrent committer can only ever swap c's pointer to a different box,
// never change the bytes behind the one Borrow just loaded, so the
// pointer stays valid and unchanging for as long as the caller holds it,
// including across repeated Borrow calls on the same Cell within one
// attempt. Still, it must never be retained past the ReadOnly/ReadWrite
// call that produced tx.
//
// If c has a pending write recorded earlier in the same attempt (RWTx
// only — a plain ReadTx never has one), Borrow returns a pointer to that
// pending value instead of the cell's published storage, giving
// read-your-own-writes semantics; it still validates the cell even in
// that case, since a concurrent committer could lock and publish past
// this pin's epoch before this transaction ever gets to commit its own
// pending write (spec.md §4.8.1).
//
// o controls whether this read is logged into the read log at all: at
// OrderingRead the cell is deliberately left out, the documented
// non-serializability hazard for that ordering (spec.md §4.8.1, §7). A
// cell already found in the write log is never pushed to the read log
// regardless of o, since the commit protocol validates it there instead
// (spec.md §4.8.2 step 2).
func Borrow[T any](tx *ReadTx, c *Cell[T], o Ordering) *T {
	if !validCell(tx.pin, c) {
		panic(conflict{})
	}
	if v, ok := tx.pin.Writes().Pending(&c.lock); ok {
		return v.(*T)
	}
	snapshot := c.value.Load()
	// Re-check after the load: a committer may have stored a new value
	// between the first check and the load.
	if !validCell(tx.pin, c) {
		panic(conflict{})
	}
	if o == OrderingReadWrite {
		tx.pin.Reads().Push(&c.lock)
	}
	return snapshot
}

// Get returns a copy of c's current value as observed by tx, honoring
// read-your-own-writes the same way Borrow does. The source gates this
// kind of copy-by-value access on T: Copy and the pointer-returning
// borrow on the weaker T: Freeze (every type without interior
// mutability, which is almost everything); Go's generics have no
// blanket auto-trait to play Freeze's role, so Borrow above is
// unconstrained and relies instead on Cell never exposing a pointer into
// memory anyone else can still mutate. Flat is kept here, on Get alone,
// as the opt-in marker for "also safe to hand back by value" — narrower
// than Freeze would be, but the only shape Go's type system can check at
// compile time without forcing every Cell[T] to carry the assertion.
func Get[T Flat](tx *ReadTx, c *Cell[T], o Ordering) T {
	return *Borrow(tx, c, o)
}

// Set records v as c's pending value, to be published if and when tx's
// transaction attempt commits. Set still validates c exactly as a read
// would (spec.md §4.5): a blind write to a cell another committer
// currently holds, or that has advanced past tx's pin epoch, is still a
// conflict, since the commit protocol must be able to trust that every
// write-log cell was valid to touch at the pin epoch.
func Set[T any](tx *RWTx, c *Cell[T], v T) {
	if !validCell(tx.pin, c) {
		panic(conflict{})
	}
	boxed := new(T)
	*boxed = v
	tx.pin.Writes().RecordValue(&c.lock, func() { c.value.Store(boxed) }, boxed)
}

// Privatize queues f to run once no transaction that could still be
// reading tx's prior view of shared state is active — typically used
// after removing a Cell from every shared structure a transaction body
// reaches, to release resources the Cell held (spec.md §4.7). f never
// runs at all if tx's attempt does not go on to commit.
func Privatize(tx *RWTx, f func()) {
	tx.pin.Garbage().Trash(f)
}

func statsEnabled() bool { return globalConfig.Stats }

// recoverConflict is deferred around a transaction closure's invocation.
// It sets *hadConflict and swallows the panic if the recovered value is
// the internal conflict{} marker; any other recovered value is a real
// user panic, which aborts the pin (so its effects are never committed
// and its garbage never leaked as live) before being re-panicked.
func recoverConflict(pin *txn.Pin, hadConflict *bool) {
	r := recover()
	if r == nil {
		return
	}
	if _, ok := r.(conflict); ok {
		*hadConflict = true
		return
	}
	pin.Abort()
	fmt.Fprintf(os.Stderr, "swymgo: thread %s panicked inside a transaction: %v\n", pin.ThreadID(), r)
	panic(r)
}

// ReadOnly runs f as a read-only transaction, rerunning it until an
// attempt returns StatusOK: StatusRetry reruns it at once, StatusAwaitRetry
// parks first. Returns ErrNested if the calling goroutine is already
// inside a transaction.
//
// A read-only attempt can never fail to commit (spec.md §4.8.2
// commit_empty_write_log): every read is validated as it happens, so by
// the time f returns with StatusOK, either every read it performed is
// still good — in which case there is nothing left to publish — or one
// already triggered a conflict panic and the attempt is retried before f
// ever gets to return.
func ReadOnly[T any](f func(*ReadTx) (T, Status)) (T, error) {
	var zero T
	pin, err := sharedRuntime().Pin()
	if err != nil {
		return zero, err
	}
	defer pin.Unpin()

	for {
		tx := &ReadTx{pin: pin}
		result, status, hadConflict := runReadOnly(pin, tx, f)
		if hadConflict {
			if statsEnabled() {
				DefaultStats().Retries.Add(1)
			}
			pin.Repin()
			continue
		}
		switch status {
		case StatusOK:
			pin.Repin()
			return result, nil
		case StatusRetry:
			if statsEnabled() {
				DefaultStats().Retries.Add(1)
			}
			pin.Repin()
		case StatusAwaitRetry:
			parkIfPossible(pin)
			pin.Repin()
		}
	}
}

func runReadOnly[T any](pin *txn.Pin, tx *ReadTx, f func(*ReadTx) (T, Status)) (result T, status Status, hadConflict bool) {
	defer recoverConflict(pin, &hadConflict)
	result, status = f(tx)
	return
}

// ReadWrite runs f as a read-write transaction, rerunning it until an
// attempt returns StatusOK and its effects commit: StatusRetry reruns it
// at once, StatusAwaitRetry parks first. Returns ErrNested if the calling
// goroutine is already inside a transaction.
func ReadWrite[T any](f func(*RWTx) (T, Status)) (T, error) {
	var zero T
	pin, err := sharedRuntime().Pin()
	if err != nil {
		return zero, err
	}
	defer pin.Unpin()

	for {
		tx := &RWTx{ReadTx{pin: pin}}
		result, status, hadConflict := runReadWrite(pin, tx, f)
		if hadConflict {
			// The closure may have queued Set/Privatize effects before the
			// conflicting read or write panicked; Abort discards them
			// (leaking, not running, any queued finalizers — they describe
			// state that was never published) before Repin starts fresh.
			if statsEnabled() {
				DefaultStats().Retries.Add(1)
			}
			pin.Abort()
			pin.Repin()
			continue
		}
		switch status {
		case StatusOK:
			if pin.Commit() {
				if statsEnabled() {
					DefaultStats().Commits.Add(1)
				}
				return result, nil
			}
			if statsEnabled() {
				DefaultStats().Retries.Add(1)
			}
			pin.Abort()
			pin.Repin()
		case StatusRetry:
			if statsEnabled() {
				DefaultStats().Retries.Add(1)
			}
			pin.Abort()
			pin.Repin()
		case StatusAwaitRetry:
			// Park while the logs still reflect what this attempt
			// read and wrote; only after waking (or finding nothing
			// to wait on) do we discard them.
			parkIfPossible(pin)
			pin.Abort()
			pin.Repin()
		}
	}
}

func runReadWrite[T any](pin *txn.Pin, tx *RWTx, f func(*RWTx) (T, Status)) (result T, status Status, hadConflict bool) {
	defer recoverConflict(pin, &hadConflict)
	result, status = f(tx)
	return
}

// parkIfPossible blocks until something this pin already read or wrote
// changes, if there is anything to wait on (spec.md §4.9). It must be
// called before the caller clears or repins the pin's logs — Park reads
// them to know what to wait on. A pin with nothing logged yet
// (AwaitRetry returned before any Borrow/Get/Set) has nothing to park
// on and returns immediately, equivalent to StatusRetry.
func parkIfPossible(pin *txn.Pin) {
	if statsEnabled() {
		DefaultStats().AwaitRetries.Add(1)
	}
	if pin.Parkable() {
		if statsEnabled() {
			DefaultStats().Parks.Add(1)
		}
		pin.Park()
	}
}
