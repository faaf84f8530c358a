package writelog

import (
	"testing"

	"github.com/kolkov/swymgo/internal/epoch"
)

func TestRecordAndContains(t *testing.T) {
	var l Log
	a := epoch.NewLock()

	if l.Contains(a) {
		t.Fatalf("empty log should not contain a")
	}

	written := false
	l.Record(a, func() { written = true })

	if !l.Contains(a) {
		t.Fatalf("log should contain a after Record")
	}
	if l.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", l.Len())
	}

	l.PerformWrites()
	if !written {
		t.Fatalf("PerformWrites did not invoke the recorded closure")
	}
}

func TestRecordTwiceOverwritesPending(t *testing.T) {
	var l Log
	a := epoch.NewLock()

	calls := 0
	l.Record(a, func() { calls = 1 })
	l.Record(a, func() { calls = 2 })

	if l.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 after second write to same cell", l.Len())
	}
	l.PerformWrites()
	if calls != 2 {
		t.Fatalf("calls = %d, want 2 (second write should win)", calls)
	}
}

func TestLockAllSucceedsAndPublishes(t *testing.T) {
	var l Log
	a := epoch.NewLock()
	b := epoch.NewLock()
	l.Record(a, func() {})
	l.Record(b, func() {})

	pin := epoch.Epoch(10)
	ok, _ := l.LockAll(pin)
	if !ok {
		t.Fatalf("LockAll failed unexpectedly")
	}
	if a.ReadWriteValidAt(pin) || b.ReadWriteValidAt(pin) {
		t.Fatalf("locks should report held (invalid to read/write) while locked")
	}

	l.Publish(epoch.Epoch(11))
	if a.Epoch().Value() != epoch.Epoch(11) || b.Epoch().Value() != epoch.Epoch(11) {
		t.Fatalf("Publish did not advance both cells to the new epoch")
	}
}

func TestLockAllRollsBackOnFailure(t *testing.T) {
	var l Log
	a := epoch.NewLock()
	b := epoch.NewLock()
	l.Record(a, func() {})
	l.Record(b, func() {})

	// Pre-lock b on behalf of another committer so LockAll fails on it.
	if ok, _ := b.TryLock(epoch.Epoch(1000)); !ok {
		t.Fatalf("setup TryLock(b) failed")
	}

	ok, _ := l.LockAll(epoch.Epoch(1000))
	if ok {
		t.Fatalf("LockAll should have failed because b was already locked")
	}
	if !a.ReadWriteValidAt(epoch.Epoch(1000)) {
		t.Fatalf("a should have been unlocked again after rollback")
	}
	b.UnlockUndo()
}

func TestClearResetsFilterAndEntries(t *testing.T) {
	var l Log
	a := epoch.NewLock()
	l.Record(a, func() {})
	l.Clear()

	if !l.IsEmpty() || l.Contains(a) {
		t.Fatalf("Clear did not reset the log")
	}
}

func TestValidateWrites(t *testing.T) {
	var l Log
	a := epoch.NewLock()
	l.Record(a, func() {})

	pin := epoch.Epoch(50)
	if !l.ValidateWrites(pin) {
		t.Fatalf("ValidateWrites() = false, want true for an untouched cell")
	}

	a.TryLock(epoch.Epoch(1000))
	if l.ValidateWrites(pin) {
		t.Fatalf("ValidateWrites() = true, want false while a is locked")
	}
	a.UnlockUndo()
}

func TestFindSurvivesBloomOverflow(t *testing.T) {
	var l Log
	locks := make([]*epoch.Lock, 256)
	for i := range locks {
		locks[i] = epoch.NewLock()
		l.Record(locks[i], func() {})
	}

	for _, lk := range locks {
		if !l.Contains(lk) {
			t.Fatalf("lost a write-log entry after bloom overflow")
		}
	}

	other := epoch.NewLock()
	if l.Contains(other) {
		t.Fatalf("Contains reported a false positive for an unrecorded lock past overflow")
	}
}

func TestDebugAllocCatchesDoubleInsertion(t *testing.T) {
	DebugAlloc.Store(true)
	defer DebugAlloc.Store(false)

	var l Log
	a := epoch.NewLock()
	l.entries = append(l.entries, entry{lock: a, perform: func() {}})

	defer func() {
		if recover() == nil {
			t.Fatalf("RecordValue should have panicked on a find()-missed duplicate")
		}
	}()
	// find() only consults the bloom filter and overflow index, neither of
	// which l.entries was pushed through above, so it reports "not found"
	// even though a already has a raw entry — exactly the disagreement
	// DebugAlloc exists to catch.
	l.RecordValue(a, func() {}, nil)
}
