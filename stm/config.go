package stm

import (
	"os"
	"strconv"
)

// Config carries the runtime knobs a process can use to tune swymgo
// before its first transaction runs. It mirrors the teacher's
// NewDetector/NewDetectorWithOptions split: DefaultConfig returns sane
// defaults, ConfigFromEnv layers SWYM_* environment variables on top for
// deployments that tune the runtime without a code change.
type Config struct {
	// Stats enables the atomic counters exposed via Stats.Fprint. Disabled
	// by default since every counter is an extra atomic add on a hot path.
	Stats bool

	// DebugAlloc enables extra consistency assertions around the read and
	// write logs: the write log brute-force-scans for an existing entry
	// before every append to catch find() disagreeing with a linear search
	// (internal/writelog.DebugAlloc), and the read log zeroes retained
	// slots on Clear so stale reuse panics immediately instead of reading
	// garbage (internal/readlog.DebugAlloc). Costs a full linear scan per
	// write-log append; intended for tests, not production.
	DebugAlloc bool

	// HardwareTx is parsed and stored but not read by the runtime in this
	// build: the commit path probes internal/htm on every eligible commit
	// whatever its value, and internal/htm.Begin never reports success
	// here (see DESIGN.md).
	HardwareTx bool

	// MaxHTMRetries is parsed and stored but not read by the runtime: the
	// commit path makes no hardware retries.
	MaxHTMRetries uint8

	// MaxParkHTMRetries is parsed and stored but not read by the runtime:
	// parking sets parked bits one cell at a time and uses no hardware
	// transaction.
	MaxParkHTMRetries uint8

	// ReservoirBagCount is how many empty garbage bags each goroutine
	// keeps warm (spec.md §4.7). Default 64.
	ReservoirBagCount int

	// ReadLogInitialCap is the read log's pre-allocated capacity (spec.md
	// §4.4). Default 1024.
	ReadLogInitialCap int
}

// DefaultConfig returns the out-of-the-box configuration.
func DefaultConfig() Config {
	return Config{
		Stats:             false,
		DebugAlloc:        false,
		HardwareTx:        true,
		MaxHTMRetries:     3,
		MaxParkHTMRetries: 10,
		ReservoirBagCount: 64,
		ReadLogInitialCap: 1024,
	}
}

// ConfigFromEnv returns DefaultConfig with any of the following
// environment variables overriding their matching field, if set and
// parseable: SWYM_STATS, SWYM_DEBUG_ALLOC, SWYM_HARDWARE_TX (booleans via
// strconv.ParseBool), SWYM_MAX_HTM_RETRIES, SWYM_MAX_PARK_HTM_RETRIES,
// SWYM_RESERVOIR_BAG_COUNT, SWYM_READ_LOG_INITIAL_CAPACITY (integers via
// strconv.Atoi). An unset or unparseable variable silently leaves the
// default in place, matching the teacher's documented tolerance for a
// malformed GORACE-style environment variable.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()

	if v, ok := envBool("SWYM_STATS"); ok {
		cfg.Stats = v
	}
	if v, ok := envBool("SWYM_DEBUG_ALLOC"); ok {
		cfg.DebugAlloc = v
	}
	if v, ok := envBool("SWYM_HARDWARE_TX"); ok {
		cfg.HardwareTx = v
	}
	if v, ok := envUint8("SWYM_MAX_HTM_RETRIES"); ok {
		cfg.MaxHTMRetries = v
	}
	if v, ok := envUint8("SWYM_MAX_PARK_HTM_RETRIES"); ok {
		cfg.MaxParkHTMRetries = v
	}
	if v, ok := envInt("SWYM_RESERVOIR_BAG_COUNT"); ok {
		cfg.ReservoirBagCount = v
	}
	if v, ok := envInt("SWYM_READ_LOG_INITIAL_CAPACITY"); ok {
		cfg.ReadLogInitialCap = v
	}
	return cfg
}

func envBool(name string) (bool, bool) {
	raw, present := os.LookupEnv(name)
	if !present {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}

func envInt(name string) (int, bool) {
	raw, present := os.LookupEnv(name)
	if !present {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

func envUint8(name string) (uint8, bool) {
	v, ok := envInt(name)
	if !ok || v < 0 || v > 255 {
		return 0, false
	}
	return uint8(v), true
}
