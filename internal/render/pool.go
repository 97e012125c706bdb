package render

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// PoolConfig tunes the instance pool.
type PoolConfig struct {
	Profile       LaunchProfile
	PageCeiling   int
	HealthProbe   time.Duration
	ShutdownGrace time.Duration
}

func (c *PoolConfig) applyDefaults() {
	if c.PageCeiling <= 0 {
		c.PageCeiling = 5
	}
	if c.HealthProbe <= 0 {
		c.HealthProbe = 3 * time.Second
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = 10 * time.Second
	}
}

// Pool owns at most one live rendering-engine instance process-wide. It
// health-checks the instance on every acquire, recycles it when it looks
// poisoned, and serializes concurrent launches into one shared flight.
type Pool struct {
	client EngineClient
	cfg    PoolConfig
	logger *zap.Logger

	mu       sync.Mutex
	instance Instance
	closed   bool

	launches singleflight.Group

	// onInstanceLost runs after a disconnect clears the instance. The
	// executor hooks its gate reset here.
	onInstanceLost func()

	launchCount  func(mode string)
	recycleCount func(reason string)
}

// NewPool builds a pool around the given engine client. The instance is
// launched lazily on first Acquire.
func NewPool(client EngineClient, cfg PoolConfig, logger *zap.Logger) *Pool {
	cfg.applyDefaults()
	return &Pool{
		client:       client,
		cfg:          cfg,
		logger:       logger,
		launchCount:  func(string) {},
		recycleCount: func(string) {},
	}
}

// OnInstanceLost registers a handler invoked whenever the live instance
// disconnects out from under the pool. Must be set before the first Acquire.
func (p *Pool) OnInstanceLost(fn func()) {
	p.onInstanceLost = fn
}

// ObserveLaunches and ObserveRecycles attach metric hooks.
func (p *Pool) ObserveLaunches(fn func(mode string)) { p.launchCount = fn }

func (p *Pool) ObserveRecycles(fn func(reason string)) { p.recycleCount = fn }

// Acquire returns a live, healthy instance, launching or recycling as needed.
// Concurrent callers during a launch share a single launch attempt.
func (p *Pool) Acquire(ctx context.Context) (Instance, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, Errorf(KindLaunch, "pool is shut down")
	}
	current := p.instance
	p.mu.Unlock()

	if current != nil {
		if p.healthy(ctx, current) {
			return current, nil
		}
		p.Recycle("unhealthy")
	}

	return p.launch(ctx)
}

// healthy runs the bounded page-count probe. A probe failure or a page count
// over the ceiling marks the instance for recycling.
func (p *Pool) healthy(ctx context.Context, inst Instance) bool {
	probeCtx, cancel := context.WithTimeout(ctx, p.cfg.HealthProbe)
	defer cancel()

	count, err := inst.PageCount(probeCtx)
	if err != nil {
		p.logger.Warn("instance health probe failed", zap.Error(err))
		return false
	}
	if count > p.cfg.PageCeiling {
		p.logger.Warn("instance exceeds page ceiling",
			zap.Int("pages", count),
			zap.Int("ceiling", p.cfg.PageCeiling))
		return false
	}
	return true
}

// launch starts a new instance, deduplicating concurrent launch attempts.
// The flight runs under its own deadline derived from the first caller so a
// canceled caller cannot poison the shared launch for everyone behind it.
func (p *Pool) launch(ctx context.Context) (Instance, error) {
	v, err, _ := p.launches.Do("launch", func() (any, error) {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, Errorf(KindLaunch, "pool is shut down")
		}
		if p.instance != nil {
			inst := p.instance
			p.mu.Unlock()
			return inst, nil
		}
		p.mu.Unlock()

		launchCtx, cancel := mergeDeadline(context.Background(), ctx)
		defer cancel()

		inst, mode, err := p.launchWithFallback(launchCtx)
		if err != nil {
			return nil, err
		}
		p.launchCount(mode)

		inst.OnDisconnect(func() {
			p.handleDisconnect(inst)
		})

		p.mu.Lock()
		p.instance = inst
		p.mu.Unlock()
		return inst, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Instance), nil
}

// launchWithFallback tries the primary profile, then once more with the
// degraded profile before giving up.
func (p *Pool) launchWithFallback(ctx context.Context) (Instance, string, error) {
	inst, err := p.client.Launch(ctx, p.cfg.Profile)
	if err == nil {
		return inst, "primary", nil
	}
	p.logger.Warn("primary launch failed, retrying degraded", zap.Error(err))

	degraded := p.cfg.Profile
	degraded.Degraded = true
	inst, derr := p.client.Launch(ctx, degraded)
	if derr != nil {
		return nil, "", WrapErr(KindLaunch, derr, "degraded launch failed after primary: %v", err)
	}
	return inst, "degraded", nil
}

// handleDisconnect clears a lost instance so the next Acquire relaunches,
// then notifies the executor so stale in-flight accounting is reset.
func (p *Pool) handleDisconnect(inst Instance) {
	p.mu.Lock()
	if p.instance != inst {
		p.mu.Unlock()
		return
	}
	p.instance = nil
	p.mu.Unlock()

	p.logger.Warn("instance disconnected")
	p.recycleCount("disconnect")
	if p.onInstanceLost != nil {
		p.onInstanceLost()
	}
}

// Recycle closes and discards the current instance, if any. The next Acquire
// launches a fresh one.
func (p *Pool) Recycle(reason string) {
	p.mu.Lock()
	inst := p.instance
	p.instance = nil
	p.mu.Unlock()

	if inst == nil {
		return
	}
	p.logger.Info("recycling instance", zap.String("reason", reason))
	p.recycleCount(reason)
	if err := inst.Close(p.cfg.ShutdownGrace); err != nil {
		p.logger.Warn("instance close during recycle failed", zap.Error(err))
	}
}

// Held reports whether the pool currently holds a live instance.
func (p *Pool) Held() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.instance != nil
}

// Current returns the held instance without health checks, or nil. Used by
// the idle reaper, which must not trigger launches.
func (p *Pool) Current() Instance {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.instance
}

// Shutdown tears the pool down. Idempotent; bounded by the configured grace.
func (p *Pool) Shutdown() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	inst := p.instance
	p.instance = nil
	p.mu.Unlock()

	if inst == nil {
		return nil
	}
	if err := inst.Close(p.cfg.ShutdownGrace); err != nil {
		return WrapErr(KindProtocol, err, "pool shutdown")
	}
	return nil
}
