package stm

import (
	"fmt"
	"io"
	"sync/atomic"
)

// Stats holds the counters the driver loops in tx.go update directly on
// every transaction attempt. When Config.Stats is false the driver loops
// skip the updates and these fields stay zero.
//
// Fprint additionally reports soft-commit/hardware-transaction/unpark
// counts and write-log diagnostics (write-after-write, bloom collisions)
// pulled live from the process-wide runtime rather than kept as fields
// here: those happen inside internal/txn's commit protocol and per-
// goroutine write logs, not in the driver loop, so mirroring them into
// Stats fields would mean updating two counters at every call site instead
// of one.
type Stats struct {
	Commits      atomic.Uint64
	Retries      atomic.Uint64
	AwaitRetries atomic.Uint64
	Parks        atomic.Uint64
}

// Fprint writes a human-readable summary of s to w.
func (s *Stats) Fprint(w io.Writer) {
	soft, hwAttempts, hwAborts, unparks := sharedRuntime().CommitStats()
	writeAfterWrite, bloomCollisions := sharedRuntime().WriteLogStats()

	fmt.Fprintf(w, "swymgo stats:\n")
	fmt.Fprintf(w, "  commits:            %d (%d soft, %d hardware attempts, %d hardware aborts)\n",
		s.Commits.Load(), soft, hwAttempts, hwAborts)
	fmt.Fprintf(w, "  retries:            %d\n", s.Retries.Load())
	fmt.Fprintf(w, "  await-retries:      %d\n", s.AwaitRetries.Load())
	fmt.Fprintf(w, "  parks:              %d (%d unparks issued)\n", s.Parks.Load(), unparks)
	fmt.Fprintf(w, "  bloom collisions:   %d\n", bloomCollisions)
	fmt.Fprintf(w, "  write-after-write:  %d\n", writeAfterWrite)
}
