// Package gcbag implements per-goroutine epoch-based garbage collection
// for values privatized out of cells (spec.md §4.7).
//
// Grounded on the source's internal/gc/thread_garbage.rs: finalizers for
// privatized values accumulate in a "current bag" tagged with no epoch
// yet; when a committer needs to start a new bag (because the previous one
// might still be visible to a lagging reader) it seals the old one with
// the commit epoch and files it away. A sealed bag's finalizers only run
// once every goroutine in the registry has quiesced past its seal epoch.
// Go's garbage collector already reclaims the *memory* backing a
// privatized value; this package exists because a privatized value may
// carry its own finalization semantics (an attached io.Closer, a
// manually-managed resource) that swymgo promises to run exactly once
// other readers can no longer be racing with it.
package gcbag

import (
	"github.com/kolkov/swymgo/internal/epoch"
	"github.com/kolkov/swymgo/internal/synch"
)

// DefaultUnusedBagCount matches the source's UNUSED_BAG_COUNT: how many
// empty bags a goroutine keeps warm before it has to allocate a new one.
const DefaultUnusedBagCount = 64

type bag struct {
	finalizers []func()
}

func (b *bag) isEmpty() bool { return len(b.finalizers) == 0 }

func (b *bag) collect() {
	for _, f := range b.finalizers {
		f()
	}
	b.finalizers = b.finalizers[:0]
}

type sealedBag struct {
	epoch epoch.Epoch
	bag   *bag
}

// Garbage is one goroutine's local view of pending finalizers. It is not
// safe for concurrent use by multiple goroutines; each transaction-running
// goroutine owns exactly one, mirroring the source's ThreadGarbage being
// thread-local.
type Garbage struct {
	current    *bag
	sealed     []sealedBag
	unused     []*bag
	unusedCap  int
}

// New returns an empty Garbage with unused bags pre-warmed to capacity.
func New(reservoirSize int) *Garbage {
	if reservoirSize <= 0 {
		reservoirSize = DefaultUnusedBagCount
	}
	g := &Garbage{unusedCap: reservoirSize}
	for i := 0; i < reservoirSize; i++ {
		g.unused = append(g.unused, &bag{})
	}
	g.current = g.openBag()
	return g
}

func (g *Garbage) openBag() *bag {
	if n := len(g.unused); n > 0 {
		b := g.unused[n-1]
		g.unused = g.unused[:n-1]
		return b
	}
	return &bag{}
}

func (g *Garbage) recycleBag(b *bag) {
	b.collect()
	if len(g.unused) < g.unusedCap {
		g.unused = append(g.unused, b)
	}
}

// IsCurrentEpochEmpty reports whether the current (unsealed) bag has any
// pending finalizers.
func (g *Garbage) IsCurrentEpochEmpty() bool { return g.current.isEmpty() }

// Trash queues finalize to run once no goroutine can still be observing
// the value it cleans up (spec.md §4.7 trash). finalize must not panic;
// swymgo treats a panicking finalizer as the same fatal condition as a
// panicking transaction body.
func (g *Garbage) Trash(finalize func()) {
	g.current.finalizers = append(g.current.finalizers, finalize)
}

// LeakCurrentEpoch discards the current bag's finalizers without running
// them. Used only when a transaction that queued privatizations is rolled
// back entirely before it ever commits (spec.md §4.7, abort path) — those
// finalizers describe state that was never actually published.
func (g *Garbage) LeakCurrentEpoch() { g.current.finalizers = g.current.finalizers[:0] }

// SealWithEpoch seals the current bag under quiesceEpoch if it holds any
// finalizers, opening a fresh current bag, and eagerly reclaims previously
// sealed bags that have already quiesced (spec.md §4.7 seal_with_epoch).
func (g *Garbage) SealWithEpoch(quiesceEpoch epoch.Epoch, registry *synch.Registry) {
	if g.IsCurrentEpochEmpty() {
		return
	}
	sealed := sealedBag{epoch: quiesceEpoch, bag: g.current}
	g.current = g.openBag()
	g.sealed = append(g.sealed, sealed)

	if len(g.sealed) >= g.unusedCap {
		g.synchAndCollect(registry, g.earliestSealedEpoch())
	}
}

// SynchAndCollectAll forces every sealed bag to be reclaimed regardless of
// reservoir pressure, quiescing past the most recently sealed epoch.
// Intended for shutdown paths and tests, mirroring
// synch_and_collect_all (spec.md §4.7).
func (g *Garbage) SynchAndCollectAll(registry *synch.Registry) {
	if len(g.sealed) == 0 {
		return
	}
	g.synchAndCollect(registry, g.latestSealedEpoch())
}

func (g *Garbage) synchAndCollect(registry *synch.Registry, upTo epoch.Epoch) {
	collectEpoch := registry.Quiesce(upTo)
	g.collect(collectEpoch)
}

// collect reclaims every sealed bag whose seal epoch is strictly less than
// maxEpoch, i.e. every bag known to no longer be visible to any goroutine.
func (g *Garbage) collect(maxEpoch epoch.Epoch) {
	i := 0
	for ; i < len(g.sealed); i++ {
		if !(g.sealed[i].epoch.Value() < maxEpoch.Value()) {
			break
		}
		g.recycleBag(g.sealed[i].bag)
	}
	g.sealed = g.sealed[:copy(g.sealed, g.sealed[i:])]
}

func (g *Garbage) earliestSealedEpoch() epoch.Epoch { return g.sealed[0].epoch }
func (g *Garbage) latestSealedEpoch() epoch.Epoch   { return g.sealed[len(g.sealed)-1].epoch }

// PendingBagCount reports how many sealed-but-not-yet-reclaimed bags exist,
// for tests and diagnostics.
func (g *Garbage) PendingBagCount() int { return len(g.sealed) }
