package starve

import (
	"testing"
	"time"
)

func TestWaitUnlockedReturnsImmediatelyWhenFree(t *testing.T) {
	l := New()
	done := make(chan struct{})
	go func() {
		l.WaitUnlocked()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("WaitUnlocked blocked with no holder")
	}
}

func TestWaitUnlockedBlocksWhileHeld(t *testing.T) {
	l := New()
	l.Acquire()

	done := make(chan struct{})
	go func() {
		l.WaitUnlocked()
		close(done)
	}()

	select {
	case <-done:
		t.Fatalf("WaitUnlocked returned while the lock was held")
	case <-time.After(30 * time.Millisecond):
	}

	l.Release()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("WaitUnlocked never returned after Release")
	}
}

func TestAcquireIsExclusive(t *testing.T) {
	l := New()
	l.Acquire()

	acquired := make(chan struct{})
	go func() {
		l.Acquire()
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatalf("second Acquire succeeded while first holder had not released")
	case <-time.After(30 * time.Millisecond):
	}

	l.Release()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatalf("second Acquire never completed after Release")
	}
}
