// Package stm is a software transactional memory runtime: goroutines read
// and mutate shared Cell[T] values inside atomic, serializable
// transactions using optimistic concurrency control, with an
// epoch-based quiescent-state garbage collector reclaiming values
// privatized out of cells.
//
// A transaction is a closure passed to ReadOnly or ReadWrite. The closure
// may run more than once: if another goroutine's commit invalidates
// something this one observed, the runtime discards the attempt's effects
// and reruns the closure from the start. Because of this, transaction
// bodies must not perform irreversible side effects (sending on a
// channel, writing to a file) — only Cell reads/writes and ordinary
// computation.
//
//	total, err := stm.ReadWrite(func(tx *stm.RWTx) (int, stm.Status) {
//	        a := *stm.Borrow(&tx.ReadTx, accountA, stm.OrderingReadWrite)
//	        b := *stm.Borrow(&tx.ReadTx, accountB, stm.OrderingReadWrite)
//	        stm.Set(tx, accountA, a-10)
//	        stm.Set(tx, accountB, b+10)
//	        return a + b, stm.StatusOK
//	})
package stm
