package txn

import (
	"testing"

	"github.com/kolkov/swymgo/internal/epoch"
)

func TestCommitEmptyWriteLog(t *testing.T) {
	rt := NewRuntime(0, 0)
	p, err := rt.Pin()
	if err != nil {
		t.Fatalf("Pin() error: %v", err)
	}
	defer p.Unpin()

	lock := epoch.NewLock()
	p.Reads().Push(lock)

	if !p.Commit() {
		t.Fatalf("Commit() with an empty write log should always succeed")
	}
	if p.Reads().Len() != 0 {
		t.Fatalf("Commit() did not clear the read log")
	}
}

func TestCommitSoftSucceedsAndPublishes(t *testing.T) {
	rt := NewRuntime(0, 0)
	p, err := rt.Pin()
	if err != nil {
		t.Fatalf("Pin() error: %v", err)
	}
	defer p.Unpin()

	lock := epoch.NewLock()
	p.Reads().Push(lock)
	written := false
	p.Writes().Record(lock, func() { written = true })

	if !p.Commit() {
		t.Fatalf("Commit() should have succeeded")
	}
	if !written {
		t.Fatalf("Commit() did not perform the write")
	}
	if p.Writes().Len() != 0 || p.Reads().Len() != 0 {
		t.Fatalf("Commit() should clear both logs on success")
	}
	if lock.Epoch().LockBitSet() {
		t.Fatalf("committed cell should be unlocked")
	}
}

func TestCommitSoftFailsWhenReadInvalidated(t *testing.T) {
	rt := NewRuntime(0, 0)
	p, err := rt.Pin()
	if err != nil {
		t.Fatalf("Pin() error: %v", err)
	}
	defer p.Unpin()

	readOnly := epoch.NewLock()
	p.Reads().Push(readOnly)

	written := epoch.NewLock()
	p.Writes().Record(written, func() {})

	// Simulate another committer advancing readOnly's epoch past the pin
	// after it was logged but before this commit runs.
	readOnly.TryLock(epoch.Epoch(1 << 40))
	readOnly.UnlockPublish(epoch.Epoch(1 << 40))

	if p.Commit() {
		t.Fatalf("Commit() should fail: a logged read was invalidated")
	}
	if written.Epoch().LockBitSet() {
		t.Fatalf("failed commit must leave the write-log cell unlocked")
	}
}

func TestCommitStatsCountsSoftCommits(t *testing.T) {
	rt := NewRuntime(0, 0)
	p, err := rt.Pin()
	if err != nil {
		t.Fatalf("Pin() error: %v", err)
	}
	defer p.Unpin()

	before, _, _, _ := rt.CommitStats()

	lock := epoch.NewLock()
	p.Writes().Record(lock, func() {})
	if !p.Commit() {
		t.Fatalf("Commit() should have succeeded")
	}

	after, _, _, _ := rt.CommitStats()
	if after != before+1 {
		t.Fatalf("CommitStats() soft commits = %d, want %d", after, before+1)
	}
}

func TestWriteLogStatsSumsAcrossGoroutineLog(t *testing.T) {
	rt := NewRuntime(0, 0)
	p, err := rt.Pin()
	if err != nil {
		t.Fatalf("Pin() error: %v", err)
	}
	defer p.Unpin()

	lock := epoch.NewLock()
	p.Writes().Record(lock, func() {})
	p.Writes().Record(lock, func() {}) // write-after-write to the same cell

	wrAfterWr, _ := rt.WriteLogStats()
	if wrAfterWr != 1 {
		t.Fatalf("WriteLogStats() write-after-write = %d, want 1", wrAfterWr)
	}
}

func TestCommitSoftRejectsStaleCellInBothLogs(t *testing.T) {
	rt := NewRuntime(0, 0)
	p, err := rt.Pin()
	if err != nil {
		t.Fatalf("Pin() error: %v", err)
	}
	defer p.Unpin()

	lock := epoch.NewLock()
	p.Reads().Push(lock)
	p.Writes().Record(lock, func() {})

	// Advance the cell's epoch out from under the pin the way a concurrent
	// committer would. commitSoft drops this cell from the read log because
	// it is also in the write log; the commit must still fail, since
	// LockAll's TryLock rejects the stale write-log cell itself.
	lock.TryLock(epoch.Epoch(1 << 40))
	lock.UnlockPublish(epoch.Epoch(1 << 40))

	if p.Commit() {
		t.Fatalf("Commit() should fail: the write-log cell itself is stale at this pin's epoch")
	}
}
