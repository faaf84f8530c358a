package stm

import (
	"sync"

	"github.com/kolkov/swymgo/internal/readlog"
	"github.com/kolkov/swymgo/internal/txn"
	"github.com/kolkov/swymgo/internal/writelog"
)

var (
	globalOnce    sync.Once
	globalConfig  Config
	globalRuntime *txn.Runtime
	globalStats   Stats
)

// Init sets the configuration used by the process-wide runtime. It must
// be called, if at all, before the first call to ReadOnly or ReadWrite;
// afterward it has no effect. Calling Init is optional — the first
// transaction call initializes the runtime with ConfigFromEnv if Init was
// never called, matching spec.md §6's "Config is read once at first use".
func Init(cfg Config) {
	globalOnce.Do(func() { initRuntime(cfg) })
}

func initRuntime(cfg Config) {
	globalConfig = cfg
	writelog.DebugAlloc.Store(cfg.DebugAlloc)
	readlog.DebugAlloc.Store(cfg.DebugAlloc)
	globalRuntime = txn.NewRuntime(cfg.ReservoirBagCount, cfg.ReadLogInitialCap)
}

func sharedRuntime() *txn.Runtime {
	globalOnce.Do(func() { initRuntime(ConfigFromEnv()) })
	return globalRuntime
}

// DefaultStats returns the process-wide Stats instance that the ReadOnly
// and ReadWrite driver loops update when Config.Stats is enabled.
func DefaultStats() *Stats { return &globalStats }
