package render

import (
	"context"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// Routine is the caller-supplied page operation, run once per attempt against
// a fresh lease. It returns the operation payload.
type Routine func(ctx context.Context, page Page) (string, error)

// ExecutorConfig tunes the operation executor.
type ExecutorConfig struct {
	MaxConcurrent  int
	RetryBudget    int
	BackoffBase    time.Duration
	NavTimeout     time.Duration
	OpTimeout      time.Duration
	PageCloseGrace time.Duration
}

func (c *ExecutorConfig) applyDefaults() {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 10
	}
	if c.RetryBudget < 0 {
		c.RetryBudget = 0
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 500 * time.Millisecond
	}
	if c.NavTimeout <= 0 {
		c.NavTimeout = 30 * time.Second
	}
	if c.OpTimeout <= 0 {
		c.OpTimeout = 60 * time.Second
	}
	if c.PageCloseGrace <= 0 {
		c.PageCloseGrace = 5 * time.Second
	}
}

// Executor runs page operations against the pool: fail-fast admission,
// bounded attempts with backoff, instance recycling on transient failures,
// and a guaranteed page release on every exit path.
type Executor struct {
	pool   *Pool
	gate   *ConcurrencyGate
	cfg    ExecutorConfig
	logger *zap.Logger

	// sleep is swapped out in tests to avoid real backoff delays.
	sleep func(context.Context, time.Duration)
}

// NewExecutor wires an executor to the pool. The pool's disconnect handler is
// pointed at the gate so counts for dead leases are cleared.
func NewExecutor(pool *Pool, cfg ExecutorConfig, logger *zap.Logger) *Executor {
	cfg.applyDefaults()
	e := &Executor{
		pool:   pool,
		gate:   NewConcurrencyGate(cfg.MaxConcurrent),
		cfg:    cfg,
		logger: logger,
		sleep:  sleepCtx,
	}
	pool.OnInstanceLost(e.gate.Reset)
	return e
}

// Gate exposes the admission gate for stats reporting.
func (e *Executor) Gate() *ConcurrencyGate {
	return e.gate
}

// Perform validates the URL, claims a concurrency slot, and runs the routine
// with the configured retry budget. Invalid input is rejected before the pool
// is ever contacted; a full gate is rejected immediately, never queued.
func (e *Executor) Perform(ctx context.Context, rawURL string, routine Routine) (string, error) {
	if err := validateURL(rawURL); err != nil {
		return "", err
	}
	if !e.gate.TryAcquire() {
		return "", Errorf(KindConcurrencyLimit, "at capacity (%d in flight)", e.gate.Max())
	}
	defer e.gate.Release()

	attempts := e.cfg.RetryBudget + 1
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			e.sleep(ctx, e.cfg.BackoffBase*time.Duration(attempt+1))
			if ctx.Err() != nil {
				return "", WrapErr(KindTimeout, ctx.Err(), "operation abandoned during backoff")
			}
		}

		payload, err := e.attempt(ctx, rawURL, routine)
		if err == nil {
			return payload, nil
		}
		lastErr = err

		kind := KindOf(err)
		e.logger.Warn("operation attempt failed",
			zap.String("url", rawURL),
			zap.Int("attempt", attempt),
			zap.Stringer("kind", kind),
			zap.Error(err))

		if !kind.Transient() {
			return "", err
		}
		// The instance is presumed poisoned; the next attempt gets a
		// fresh one.
		e.pool.Recycle(kind.String())
	}
	return "", lastErr
}

// attempt runs one bounded try: acquire instance, lease a page, navigate,
// run the routine. The lease is closed on every path; close errors never mask
// the attempt's outcome.
func (e *Executor) attempt(ctx context.Context, rawURL string, routine Routine) (string, error) {
	opCtx, cancel := context.WithTimeout(ctx, e.cfg.OpTimeout)
	defer cancel()

	inst, err := e.pool.Acquire(opCtx)
	if err != nil {
		return "", err
	}

	page, err := inst.NewPage(opCtx)
	if err != nil {
		return "", err
	}
	defer func() {
		if cerr := page.Close(e.cfg.PageCloseGrace); cerr != nil {
			e.logger.Debug("page close failed", zap.Error(cerr))
		}
	}()

	navCtx, navCancel := context.WithTimeout(opCtx, e.cfg.NavTimeout)
	err = page.Navigate(navCtx, rawURL)
	navCancel()
	if err != nil {
		return "", timeoutIfExpired(navCtx, err)
	}

	payload, err := routine(opCtx, page)
	if err != nil {
		return "", timeoutIfExpired(opCtx, err)
	}
	return payload, nil
}

// timeoutIfExpired reclassifies a failure as a timeout when the stage
// deadline had already expired, so deadline blame wins over whatever the
// aborted protocol call reported.
func timeoutIfExpired(ctx context.Context, err error) error {
	if ctx.Err() == context.DeadlineExceeded && KindOf(err) != KindTimeout {
		return WrapErr(KindTimeout, err, "stage deadline exceeded")
	}
	return err
}

// validateURL accepts only well-formed absolute http(s) URLs.
func validateURL(rawURL string) error {
	if rawURL == "" {
		return Errorf(KindInvalidInput, "url is required")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return WrapErr(KindInvalidInput, err, "malformed url %q", rawURL)
	}
	if !parsed.IsAbs() || parsed.Host == "" {
		return Errorf(KindInvalidInput, "url %q must be absolute", rawURL)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return Errorf(KindInvalidInput, "unsupported scheme %q", parsed.Scheme)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
