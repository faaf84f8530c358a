// Package synch implements the global thread registry and quiescence
// protocol that epoch-based garbage collection depends on (spec.md §4.6).
//
// Grounded on the source's internal/gc/quiesce/{synch,global}.rs: every
// goroutine that ever pins a transaction owns one Record holding its
// current epoch (or Inactive), and the registry can ask "has everyone
// moved past epoch E" to learn when it is safe to reclaim garbage sealed
// at E. The source guards its registry with a per-thread sharded lock plus
// an outer exclusive lock so that quiescence scans and registry mutation
// never block each other unnecessarily; a single sync.RWMutex gives Go the
// same property (many concurrent readers, rare structural writers) without
// needing the "lock every shard to mutate" trick that scheme exists for.
package synch

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/kolkov/swymgo/internal/epoch"
)

// Record is one goroutine's entry in the registry: the epoch it is
// currently pinned at, or Inactive between transactions. Only the owning
// goroutine calls Pin/Repin/Unpin; any goroutine may call Load or
// IsQuiescedPast while scanning the registry.
type Record struct {
	epoch atomic.Uint64
	id    uuid.UUID
}

func newRecord() *Record {
	r := &Record{id: uuid.New()}
	r.epoch.Store(uint64(epoch.Inactive))
	return r
}

// ID returns a process-unique identifier assigned to this record when it
// was registered. It has no bearing on commit correctness — it exists so
// panic diagnostics and Stats output can name a specific goroutine's
// transaction history across retries without exposing the goroutine id
// (which Go reuses after exit, see internal/gid).
func (r *Record) ID() uuid.UUID { return r.id }

// Load returns the record's current epoch.
func (r *Record) Load() epoch.Epoch { return epoch.Epoch(r.epoch.Load()) }

// Pin announces that the owning goroutine is now active at e.
func (r *Record) Pin(e epoch.Epoch) { r.epoch.Store(uint64(e)) }

// Repin updates the owning goroutine's active epoch without going through
// Inactive, used when a transaction restarts in place (spec.md §4.8.1).
func (r *Record) Repin(e epoch.Epoch) { r.epoch.Store(uint64(e)) }

// Unpin announces that the owning goroutine is no longer participating in
// any transaction.
func (r *Record) Unpin() { r.epoch.Store(uint64(epoch.Inactive)) }

// IsQuiescedPast reports whether the owning goroutine is either inactive
// or has moved strictly past target — i.e. it can no longer be observing
// any cell state older than target (spec.md §4.6 is_quiesced).
func (r *Record) IsQuiescedPast(target epoch.Epoch) bool {
	cur := r.Load()
	return cur == epoch.Inactive || cur.Value() > target.Value()
}

// Registry is the process-wide set of registered Records. The zero value
// is ready to use.
type Registry struct {
	mu      sync.RWMutex
	records []*Record
}

// Register adds a new, initially-inactive Record to the registry. Callers
// keep the returned Record for the lifetime of their participation and
// pass it to Unregister when done (typically never, for long-lived worker
// goroutines — see internal/txn, which registers once per goroutine and
// leaves it registered for the life of the process).
func (g *Registry) Register() *Record {
	rec := newRecord()
	g.mu.Lock()
	g.records = append(g.records, rec)
	g.mu.Unlock()
	return rec
}

// Unregister removes rec from the registry. rec must be Inactive.
func (g *Registry) Unregister(rec *Record) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, r := range g.records {
		if r == rec {
			g.records = append(g.records[:i], g.records[i+1:]...)
			return
		}
	}
}

// Quiesce blocks until every registered Record (besides those already
// inactive) has moved strictly past target, then returns the minimum
// epoch observed among the ones that were still active — the earliest
// point from which it is now safe to assume nothing holds an older view
// (spec.md §4.6 quiesce). If no Record is active past target, it returns
// epoch.Inactive, meaning "no bound; anything may be collected".
//
// Busy-waits on each lagging Record via runtime.Gosched, matching the
// source's local_quiesce spin loop; quiescence is expected to resolve in
// microseconds since it only waits on in-flight transactions to finish
// their current attempt.
func (g *Registry) Quiesce(target epoch.Epoch) epoch.Epoch {
	g.mu.RLock()
	defer g.mu.RUnlock()

	result := epoch.Inactive
	for _, r := range g.records {
		for {
			cur := r.Load()
			if cur == epoch.Inactive || cur.Value() > target.Value() {
				if cur != epoch.Inactive && cur.Value() < result.Value() {
					result = cur
				}
				break
			}
			runtime.Gosched()
		}
	}
	return result
}

// Len reports the number of currently registered records, for tests and
// diagnostics.
func (g *Registry) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.records)
}
