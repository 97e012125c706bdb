package render

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Reaper periodically closes stray pages left behind by crashed attempts or
// force-kill races, bounding memory growth on the shared instance. It only
// runs while no operation is in flight and never triggers a launch.
type Reaper struct {
	pool     *Pool
	gate     *ConcurrencyGate
	interval time.Duration
	logger   *zap.Logger

	reaped func(n int)
}

// NewReaper builds a reaper over the pool's current instance.
func NewReaper(pool *Pool, gate *ConcurrencyGate, interval time.Duration, logger *zap.Logger) *Reaper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Reaper{
		pool:     pool,
		gate:     gate,
		interval: interval,
		logger:   logger,
		reaped:   func(int) {},
	}
}

// ObserveReaped attaches a metric hook called with the count of closed pages.
func (r *Reaper) ObserveReaped(fn func(n int)) {
	r.reaped = fn
}

// Run ticks until ctx is canceled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

// sweep closes every page beyond the baseline blank one. Individual close
// failures are already swallowed below the Instance boundary.
func (r *Reaper) sweep(ctx context.Context) {
	if r.gate.Active() != 0 {
		return
	}
	inst := r.pool.Current()
	if inst == nil {
		return
	}

	sweepCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	closed, err := inst.CloseExtraPages(sweepCtx)
	if err != nil {
		r.logger.Warn("reaper sweep failed", zap.Error(err))
		return
	}
	if closed > 0 {
		r.logger.Info("reaped stray pages", zap.Int("count", closed))
		r.reaped(closed)
	}
}
