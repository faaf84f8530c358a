package synch

import (
	"sync"
	"testing"
	"time"

	"github.com/kolkov/swymgo/internal/epoch"
)

func TestNewRecordIsInactive(t *testing.T) {
	var reg Registry
	rec := reg.Register()
	if rec.Load() != epoch.Inactive {
		t.Fatalf("new record should start Inactive")
	}
	if !rec.IsQuiescedPast(epoch.Epoch(1000)) {
		t.Fatalf("an inactive record should be quiesced past any epoch")
	}
}

func TestPinUnpin(t *testing.T) {
	var reg Registry
	rec := reg.Register()

	rec.Pin(epoch.Epoch(5))
	if rec.Load() != epoch.Epoch(5) {
		t.Fatalf("Load() = %v, want 5", rec.Load())
	}
	if rec.IsQuiescedPast(epoch.Epoch(5)) {
		t.Fatalf("a record pinned at 5 should not be quiesced past 5")
	}
	if !rec.IsQuiescedPast(epoch.Epoch(4)) {
		t.Fatalf("a record pinned at 5 should be quiesced past 4")
	}

	rec.Unpin()
	if rec.Load() != epoch.Inactive {
		t.Fatalf("Unpin did not reset to Inactive")
	}
}

func TestUnregisterRemovesRecord(t *testing.T) {
	var reg Registry
	a := reg.Register()
	b := reg.Register()
	if reg.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", reg.Len())
	}
	reg.Unregister(a)
	if reg.Len() != 1 {
		t.Fatalf("Len() after Unregister = %d, want 1", reg.Len())
	}
	_ = b
}

func TestQuiesceReturnsInactiveWhenNothingActive(t *testing.T) {
	var reg Registry
	reg.Register()
	reg.Register()
	if got := reg.Quiesce(epoch.Epoch(10)); got != epoch.Inactive {
		t.Fatalf("Quiesce() = %v, want Inactive when nothing is active", got)
	}
}

func TestQuiesceWaitsForLaggingRecord(t *testing.T) {
	var reg Registry
	lagging := reg.Register()
	lagging.Pin(epoch.Epoch(1))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		time.Sleep(10 * time.Millisecond)
		lagging.Pin(epoch.Epoch(50))
	}()

	got := reg.Quiesce(epoch.Epoch(10))
	wg.Wait()
	if got.Value() != epoch.Epoch(50).Value() {
		t.Fatalf("Quiesce() = %v, want 50", got)
	}
}

func TestRecordIDIsUniqueAndStable(t *testing.T) {
	var reg Registry
	a := reg.Register()
	b := reg.Register()

	if a.ID() == b.ID() {
		t.Fatalf("two distinct records got the same ID")
	}
	id := a.ID()
	a.Pin(epoch.Epoch(5))
	a.Unpin()
	if a.ID() != id {
		t.Fatalf("ID() changed across Pin/Unpin")
	}
}

func TestQuiesceReturnsMinimumActiveEpoch(t *testing.T) {
	var reg Registry
	a := reg.Register()
	b := reg.Register()
	a.Pin(epoch.Epoch(20))
	b.Pin(epoch.Epoch(30))

	got := reg.Quiesce(epoch.Epoch(10))
	if got.Value() != epoch.Epoch(20).Value() {
		t.Fatalf("Quiesce() = %v, want 20 (the minimum active epoch)", got)
	}
}
