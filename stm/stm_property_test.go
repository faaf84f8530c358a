package stm_test

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kolkov/swymgo/stm"
)

// TestSerializabilityOfReadWriteTransactions runs many goroutines each
// incrementing a shared counter through a full read-modify-write
// transaction. If commits were not serializable, concurrent increments
// would be lost and the final total would undercount.
func TestSerializabilityOfReadWriteTransactions(t *testing.T) {
	const goroutines = 16
	const incrementsEach = 2000

	cell := stm.NewCell(0)

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < incrementsEach; j++ {
				_, err := stm.ReadWrite(func(tx *stm.RWTx) (struct{}, stm.Status) {
					cur := *stm.Borrow(&tx.ReadTx, cell, stm.OrderingReadWrite)
					stm.Set(tx, cell, cur+1)
					return struct{}{}, stm.StatusOK
				})
				require.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	got, err := stm.ReadOnly(func(tx *stm.ReadTx) (int, stm.Status) {
		return *stm.Borrow(tx, cell, stm.OrderingRead), stm.StatusOK
	})
	require.NoError(t, err)
	require.Equal(t, goroutines*incrementsEach, got)
}

// TestAtMostOneWritePerCellPerCommit publishes a sequence of distinct
// values to the same cell from many goroutines and asserts the final
// value is exactly one of the values written, never a mix of two (which
// would indicate a torn or double-applied write).
func TestAtMostOneWritePerCellPerCommit(t *testing.T) {
	const goroutines = 32

	type stamped struct {
		writer int
		value  int
	}
	cell := stm.NewCell(stamped{writer: -1, value: -1})

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func(id int) {
			defer wg.Done()
			_, err := stm.ReadWrite(func(tx *stm.RWTx) (struct{}, stm.Status) {
				stm.Set(tx, cell, stamped{writer: id, value: id * 1000})
				return struct{}{}, stm.StatusOK
			})
			require.NoError(t, err)
		}(i)
	}
	wg.Wait()

	final, err := stm.ReadOnly(func(tx *stm.ReadTx) (stamped, stm.Status) {
		return *stm.Borrow(tx, cell, stm.OrderingRead), stm.StatusOK
	})
	require.NoError(t, err)
	require.Equal(t, final.writer*1000, final.value, "final value must match exactly one writer's stamp, never a torn mix")
}

// TestPanicSafetyLeavesUntouchedCellsUsable verifies that a user panic
// inside a transaction does not corrupt swymgo's internal state: the
// same goroutine can immediately start and commit a fresh transaction on
// an unrelated cell.
func TestPanicSafetyLeavesUntouchedCellsUsable(t *testing.T) {
	victim := stm.NewCell(42)
	untouched := stm.NewCell(7)

	func() {
		defer func() {
			r := recover()
			require.NotNil(t, r, "expected the transaction panic to propagate")
		}()
		_, _ = stm.ReadWrite(func(tx *stm.RWTx) (struct{}, stm.Status) {
			stm.Set(tx, victim, 99)
			panic("boom")
		})
	}()

	got, err := stm.ReadWrite(func(tx *stm.RWTx) (int, stm.Status) {
		v := *stm.Borrow(&tx.ReadTx, untouched, stm.OrderingReadWrite)
		stm.Set(tx, untouched, v+1)
		return v, stm.StatusOK
	})
	require.NoError(t, err)
	require.Equal(t, 7, got)

	victimValue, err := stm.ReadOnly(func(tx *stm.ReadTx) (int, stm.Status) {
		return *stm.Borrow(tx, victim, stm.OrderingRead), stm.StatusOK
	})
	require.NoError(t, err)
	require.Equal(t, 42, victimValue, "victim cell's pre-transaction value must survive an aborted write")
}

// TestNestingRejectionLeavesOuterTransactionIntact checks that starting a
// transaction from within another, on the same goroutine, fails with
// ErrNested without disturbing the outer transaction's ability to
// commit.
func TestNestingRejectionLeavesOuterTransactionIntact(t *testing.T) {
	cell := stm.NewCell("outer")
	var nestedAttempts atomic.Int32

	got, err := stm.ReadWrite(func(tx *stm.RWTx) (string, stm.Status) {
		_, err := stm.ReadOnly(func(*stm.ReadTx) (struct{}, stm.Status) {
			return struct{}{}, stm.StatusOK
		})
		nestedAttempts.Add(1)
		require.ErrorIs(t, err, stm.ErrNested)

		stm.Set(tx, cell, "committed")
		return "outer result", stm.StatusOK
	})
	require.NoError(t, err)
	require.Equal(t, "outer result", got)
	require.Equal(t, int32(1), nestedAttempts.Load())

	final, err := stm.ReadOnly(func(tx *stm.ReadTx) (string, stm.Status) {
		return *stm.Borrow(tx, cell, stm.OrderingRead), stm.StatusOK
	})
	require.NoError(t, err)
	require.Equal(t, "committed", final)
}

// TestGetRequiresAssertFlat exercises the Flat/AssertFlat escape hatch
// that lets Get return a value by copy: a Cell built over AssertFlat's
// wrapper type can be read with Get and unwrapped with Value.
func TestGetRequiresAssertFlat(t *testing.T) {
	cell := stm.NewCell(stm.AssertFlat(123))

	got, err := stm.ReadOnly(func(tx *stm.ReadTx) (int, stm.Status) {
		return stm.Get(tx, cell, stm.OrderingRead).Value(), stm.StatusOK
	})
	require.NoError(t, err)
	require.Equal(t, 123, got)
}
