package stm

import (
	"sync/atomic"

	"github.com/kolkov/swymgo/internal/epoch"
)

// Cell is a versioned memory cell: the basic unit of shared state that
// transactions read and write (spec.md §4.2). value is stored behind an
// atomic.Pointer rather than inline: Set always boxes a fresh copy and
// swaps the pointer at publish time (see internal/writelog's recorded
// perform closure), so nothing ever mutates a *T in place once a reader
// may be holding it from a prior Borrow. That makes the published value
// itself the non-tearing snapshot spec.md §4.2's optimistic read
// describes, without needing the source's volatile-read-plus-fence
// sequence — Go has no portable volatile read, and an ordinary field copy
// racing a concurrent writer's plain store is a real data race under the
// language's memory model, not just a theoretical STM conflict.
type Cell[T any] struct {
	value atomic.Pointer[T]
	lock  epoch.Lock
}

// NewCell returns a new Cell holding v, unlocked, at epoch.First. A Cell created mid-transaction is not itself
// transactional until it has been published by that transaction's commit
// — see Set and Privatize.
func NewCell[T any](v T) *Cell[T] {
	c := &Cell[T]{}
	boxed := new(T)
	*boxed = v
	c.value.Store(boxed)
	c.lock.Init()
	return c
}

// IntoInner returns the Cell's current value directly, bypassing the
// transactional machinery entirely. Callers must ensure no other
// goroutine can be concurrently reading or writing the Cell — typically
// because the Cell has just been privatized out of shared state, or was
// never published to another goroutine in the first place.
func (c *Cell[T]) IntoInner() T { return *c.value.Load() }

// BorrowMut returns a pointer to the Cell's current storage for direct,
// non-transactional mutation. Same exclusivity requirement as IntoInner:
// a caller that mutates through this pointer while another goroutine
// holds a pointer from a concurrent Borrow would reintroduce the aliasing
// hazard Borrow itself is built to avoid.
func (c *Cell[T]) BorrowMut() *T { return c.value.Load() }
