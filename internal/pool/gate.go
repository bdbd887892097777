package pool

import "sync/atomic"

// reentrancyGate rejects logical reentry into the pool. Calls are otherwise
// serialized by the caller, so the gate's only job is to fail a mutating
// entry point reached from inside another in-flight call (for example via a
// swap funds callback).
type reentrancyGate struct {
	locked atomic.Bool
}

func (g *reentrancyGate) acquire() error {
	if !g.locked.CompareAndSwap(false, true) {
		return ErrReentrant
	}
	return nil
}

func (g *reentrancyGate) release() {
	g.locked.Store(false)
}
