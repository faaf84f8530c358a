// Package htm exposes the hardware-transactional-memory acceleration path
// described in spec.md §4.8.3 and §9.
//
// Grounded on the source's swym-htm crate, which wraps Intel RTM / POWER
// HTM intrinsics behind begin/end/test/abort plus a BeginCode abort-reason
// taxonomy, and falls back to an "unsupported" backend on platforms
// without hardware support. Go exposes golang.org/x/sys/cpu.X86.HasRTM for
// detection, but the language has no portable way to emit the XBEGIN/
// XEND/XABORT instructions themselves — that requires either cgo or
// architecture-specific assembly tied to a single Go release's ABI, which
// this module avoids for the same reason internal/gid avoids reading
// runtime.g offsets directly. Supported() therefore reports what the CPU
// can do, while Begin unconditionally returns the software-fallback
// reason. internal/txn calls Begin once per eligible commit and falls back
// to the software commit protocol when it does not start; it makes no
// hardware retries and never observes a real hardware transaction in this
// build.
package htm

import "golang.org/x/sys/cpu"

// Reason classifies why a hardware transaction attempt did not commit.
type Reason int

const (
	// ReasonUnsupported means this build/CPU never attempts a hardware
	// transaction at all.
	ReasonUnsupported Reason = iota
	// ReasonStarted means the transaction began successfully. Begin never
	// returns this in the current build; internal/txn's hardware branch
	// still checks for it, so that branch is written against the full
	// abort taxonomy.
	ReasonStarted
	// ReasonExplicitAbort means the transaction body called Abort.
	ReasonExplicitAbort
	// ReasonConflict means the transaction aborted due to a memory
	// conflict with another thread.
	ReasonConflict
	// ReasonCapacity means the transaction exceeded the hardware's
	// transactional buffer (typically bounded by L1 cache size).
	ReasonCapacity
	// ReasonRetry means the hardware suggests retrying the transaction.
	ReasonRetry
)

// Result is the outcome of a Begin attempt.
type Result struct {
	Reason Reason
}

// Started reports whether the transaction represented by r began
// successfully and is still open.
func (r Result) Started() bool { return r.Reason == ReasonStarted }

// ShouldRetry reports whether spec.md §9's retry policy considers this
// failure worth another hardware attempt, as opposed to falling back to
// the software commit protocol immediately.
func (r Result) ShouldRetry() bool {
	return r.Reason == ReasonRetry || r.Reason == ReasonConflict
}

// Supported reports whether the current CPU implements a hardware
// transactional memory extension this package knows how to detect.
// Detection succeeding does not imply Begin will ever report Started in
// this build; see the package doc comment.
func Supported() bool {
	return cpu.X86.HasRTM
}

// Begin attempts to start a hardware transaction. Every call in this
// build reports ReasonUnsupported: there is no portable way to emit the
// underlying CPU instruction from pure Go. Callers (internal/txn) treat
// this exactly like a transaction that aborted immediately for capacity
// reasons — they fall back to the software commit protocol without ever
// assuming hardware acceleration is unavailable system-wide, so a future
// build wiring in a real backend here changes no other package.
func Begin() Result {
	return Result{Reason: ReasonUnsupported}
}

// End commits an open hardware transaction. Calling it without a Started
// Result from Begin is a programmer error.
func End() {
	panic("swymgo: htm.End called without an open hardware transaction")
}

// Abort aborts an open hardware transaction. Calling it without a Started
// Result from Begin is a programmer error.
func Abort() {
	panic("swymgo: htm.Abort called without an open hardware transaction")
}
