package render

import "sync/atomic"

// ConcurrencyGate bounds the number of in-flight operations. Acquisition is
// fail-fast: callers over the ceiling are rejected immediately, never queued.
type ConcurrencyGate struct {
	max    int64
	active atomic.Int64
}

// NewConcurrencyGate builds a gate with the given ceiling. A ceiling below 1
// is treated as 1.
func NewConcurrencyGate(max int) *ConcurrencyGate {
	if max < 1 {
		max = 1
	}
	return &ConcurrencyGate{max: int64(max)}
}

// TryAcquire claims a slot if one is free. It never blocks.
func (g *ConcurrencyGate) TryAcquire() bool {
	for {
		cur := g.active.Load()
		if cur >= g.max {
			return false
		}
		if g.active.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}

// Release returns a previously acquired slot. The count never goes negative,
// so a stray Release after Reset is harmless.
func (g *ConcurrencyGate) Release() {
	for {
		cur := g.active.Load()
		if cur <= 0 {
			return
		}
		if g.active.CompareAndSwap(cur, cur-1) {
			return
		}
	}
}

// Reset forces the count to zero. Used when the engine connection drops and
// every in-flight lease is already dead.
func (g *ConcurrencyGate) Reset() {
	g.active.Store(0)
}

// Active returns the current in-flight count.
func (g *ConcurrencyGate) Active() int {
	return int(g.active.Load())
}

// Max returns the ceiling.
func (g *ConcurrencyGate) Max() int {
	return int(g.max)
}
