// Package render drives a shared headless rendering engine: a single-instance
// pool with health monitoring, a fail-fast concurrency gate, and a retrying
// operation executor that leases one page per attempt.
package render

import (
	"context"
	"time"
)

// WaitCondition names the page lifecycle event navigation waits for.
type WaitCondition string

// Supported readiness conditions, matching CDP lifecycle event names.
const (
	WaitDOMContentLoaded WaitCondition = "DOMContentLoaded"
	WaitLoad             WaitCondition = "load"
	WaitNetworkIdle      WaitCondition = "networkIdle"
)

// LaunchProfile describes how to start a rendering-engine process.
type LaunchProfile struct {
	ExecPath  string
	Headless  bool
	UserAgent string
	WaitUntil WaitCondition
	// Degraded requests a reduced-feature launch (no sandbox, no shared
	// memory) used as a fallback when the primary profile fails to start.
	Degraded bool
}

// EngineClient launches rendering-engine instances. It is the only boundary
// that talks the control protocol; everything above it works with Instance
// and Page capabilities so the pool and executor can be tested with fakes.
type EngineClient interface {
	Launch(ctx context.Context, profile LaunchProfile) (Instance, error)
}

// Instance is one live rendering-engine process hosting multiple pages.
type Instance interface {
	// NewPage opens a configured page: caching disabled, fixed user agent
	// and viewport, request interception active.
	NewPage(ctx context.Context) (Page, error)
	// PageCount reports the number of open page targets, used as the pool's
	// health probe.
	PageCount(ctx context.Context) (int, error)
	// CloseExtraPages closes every open page beyond the baseline blank one
	// and returns how many it closed. Individual close errors are swallowed.
	CloseExtraPages(ctx context.Context) (int, error)
	// Close tears the process down, closing pages first, bounded by the
	// given grace period before the process is force-killed.
	Close(grace time.Duration) error
	// OnDisconnect registers a handler invoked once when the control
	// connection is lost for any reason other than Close.
	OnDisconnect(fn func())
}

// Page is one leased page bound to a single operation attempt.
type Page interface {
	Navigate(ctx context.Context, url string) error
	HTML(ctx context.Context) (string, error)
	VisibleText(ctx context.Context) (string, error)
	Evaluate(ctx context.Context, js string, out any) error
	Close(grace time.Duration) error
}
