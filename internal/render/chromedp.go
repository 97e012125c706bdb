package render

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// Fixed page identity. A small viewport keeps layout work cheap; the client
// signature is constant so origin servers see one well-known agent.
const (
	viewportWidth  = 1280
	viewportHeight = 800
)

// ChromedpClient launches headless Chrome instances over the DevTools
// protocol via chromedp.
type ChromedpClient struct {
	blocklist *Blocklist
	logger    *zap.Logger
}

// NewChromedpClient builds the production EngineClient.
func NewChromedpClient(blocklist *Blocklist, logger *zap.Logger) *ChromedpClient {
	if blocklist == nil {
		blocklist = NewBlocklist(nil)
	}
	return &ChromedpClient{blocklist: blocklist, logger: logger}
}

// Launch starts a browser process and verifies the control connection with a
// warmup round-trip. The returned Instance owns the process.
func (c *ChromedpClient) Launch(ctx context.Context, profile LaunchProfile) (Instance, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", profile.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("no-first-run", true),
	)
	if profile.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(profile.ExecPath))
	}
	if profile.Degraded {
		// Reduced-feature fallback for constrained environments where the
		// sandbox or /dev/shm is unavailable.
		opts = append(opts,
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-setuid-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	warmupCtx, cancel := mergeDeadline(browserCtx, ctx)
	err := chromedp.Run(warmupCtx)
	cancel()
	if err != nil {
		browserCancel()
		allocCancel()
		return nil, WrapErr(KindLaunch, err, "chromedp warmup")
	}

	inst := &chromedpInstance{
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
		profile:       profile,
		blocklist:     c.blocklist,
		logger:        c.logger,
		createdAt:     time.Now(),
	}
	go inst.watchConnection()
	return inst, nil
}

type chromedpInstance struct {
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
	profile       LaunchProfile
	blocklist     *Blocklist
	logger        *zap.Logger
	createdAt     time.Time

	mu           sync.Mutex
	closing      bool
	disconnected bool
	onDisconnect func()
}

// watchConnection fires the disconnect handler when the browser context dies
// before Close was requested: a crashed or killed process.
func (i *chromedpInstance) watchConnection() {
	<-i.browserCtx.Done()
	i.mu.Lock()
	fire := !i.disconnected && !i.closing
	i.disconnected = true
	fn := i.onDisconnect
	i.mu.Unlock()
	if fire && fn != nil {
		fn()
	}
}

func (i *chromedpInstance) OnDisconnect(fn func()) {
	i.mu.Lock()
	i.onDisconnect = fn
	i.mu.Unlock()
}

func (i *chromedpInstance) NewPage(ctx context.Context) (Page, error) {
	tabCtx, tabCancel := chromedp.NewContext(i.browserCtx)

	p := &chromedpPage{
		tabCtx:    tabCtx,
		tabCancel: tabCancel,
		profile:   i.profile,
		logger:    i.logger,
	}
	// The interception listener lives for the whole tab, so it is bound to
	// the tab context rather than the setup deadline.
	p.installInterception(i.blocklist)
	if err := p.run(ctx,
		network.Enable(),
		fetch.Enable(),
		network.SetCacheDisabled(true),
		emulation.SetUserAgentOverride(i.profile.UserAgent),
		emulation.SetDeviceMetricsOverride(viewportWidth, viewportHeight, 1.0, false),
		enableLifecycleEvents(),
	); err != nil {
		tabCancel()
		return nil, WrapErr(KindProtocol, err, "configure page")
	}
	return p, nil
}

func (i *chromedpInstance) PageCount(ctx context.Context) (int, error) {
	probeCtx, cancel := mergeDeadline(i.browserCtx, ctx)
	defer cancel()

	infos, err := chromedp.Targets(probeCtx)
	if err != nil {
		return 0, WrapErr(KindProtocol, err, "list targets")
	}
	count := 0
	for _, info := range infos {
		if info.Type == "page" {
			count++
		}
	}
	return count, nil
}

func (i *chromedpInstance) CloseExtraPages(ctx context.Context) (int, error) {
	probeCtx, cancel := mergeDeadline(i.browserCtx, ctx)
	defer cancel()

	infos, err := chromedp.Targets(probeCtx)
	if err != nil {
		return 0, WrapErr(KindProtocol, err, "list targets")
	}

	closed := 0
	keptBaseline := false
	for _, info := range infos {
		if info.Type != "page" {
			continue
		}
		if !keptBaseline && info.URL == "about:blank" {
			keptBaseline = true
			continue
		}
		tabCtx, tabCancel := chromedp.NewContext(i.browserCtx, chromedp.WithTargetID(info.TargetID))
		if err := chromedp.Run(tabCtx, page.Close()); err != nil {
			i.logger.Debug("reap page close failed", zap.String("target", string(info.TargetID)), zap.Error(err))
		} else {
			closed++
		}
		tabCancel()
	}
	return closed, nil
}

// Close drains pages and shuts the browser down, waiting up to grace before
// the process is force-terminated via the allocator.
func (i *chromedpInstance) Close(grace time.Duration) error {
	i.mu.Lock()
	i.closing = true
	i.disconnected = true
	i.mu.Unlock()

	drainCtx, cancel := context.WithTimeout(context.Background(), grace)
	_, _ = i.CloseExtraPages(drainCtx)
	cancel()

	done := make(chan error, 1)
	go func() {
		done <- chromedp.Cancel(i.browserCtx)
	}()
	var err error
	select {
	case err = <-done:
	case <-time.After(grace):
		err = errors.New("graceful browser close timed out, killing process")
	}
	i.browserCancel()
	i.allocCancel()
	if err != nil {
		return WrapErr(KindProtocol, err, "close instance")
	}
	return nil
}

type chromedpPage struct {
	tabCtx    context.Context
	tabCancel context.CancelFunc
	profile   LaunchProfile
	logger    *zap.Logger
}

// run executes actions on the tab, bounded by the caller's deadline and
// aborted if the caller's context is canceled mid-flight.
func (p *chromedpPage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := mergeDeadline(p.tabCtx, ctx)
	defer cancel()
	stop := forwardCancel(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	return classifyCDPError(ctx, err)
}

// installInterception wires the request-abort policy onto the tab. Each
// paused request is resolved on its own goroutine so slow decisions never
// stall the tab; an undecidable request is failed rather than left hanging in
// the paused state.
func (p *chromedpPage) installInterception(blocklist *Blocklist) {
	chromedp.ListenTarget(p.tabCtx, func(ev any) {
		paused, ok := ev.(*fetch.EventRequestPaused)
		if !ok {
			return
		}
		go func() {
			cmdCtx, cancel := context.WithTimeout(p.tabCtx, 2*time.Second)
			defer cancel()
			executor := cdp.WithExecutor(cmdCtx, chromedp.FromContext(p.tabCtx).Target)

			if blocklist.BlocksResourceType(string(paused.ResourceType)) || blocklist.BlocksURL(paused.Request.URL) {
				if err := fetch.FailRequest(paused.RequestID, network.ErrorReasonAborted).Do(executor); err != nil {
					p.logger.Debug("abort request failed", zap.String("url", paused.Request.URL), zap.Error(err))
				}
				return
			}
			if err := fetch.ContinueRequest(paused.RequestID).Do(executor); err != nil {
				_ = fetch.FailRequest(paused.RequestID, network.ErrorReasonAborted).Do(executor)
			}
		}()
	})
}

func (p *chromedpPage) Navigate(ctx context.Context, url string) error {
	return p.run(ctx, p.navigateAndWait(url, p.profile.WaitUntil))
}

// navigateAndWait starts navigation and blocks until the configured lifecycle
// event fires for the navigated frame, or the context deadline expires.
func (p *chromedpPage) navigateAndWait(url string, wait WaitCondition) chromedp.ActionFunc {
	return func(ctx context.Context) error {
		if wait == "" {
			wait = WaitDOMContentLoaded
		}

		ready := make(chan struct{})
		var once sync.Once
		var mu sync.Mutex
		var matchFrame, matchLoader string
		var pending []*page.EventLifecycleEvent

		matches := func(e *page.EventLifecycleEvent) bool {
			return string(e.FrameID) == matchFrame &&
				string(e.LoaderID) == matchLoader &&
				string(e.Name) == string(wait)
		}

		listenerCtx, stopListening := context.WithCancel(ctx)
		defer stopListening()
		chromedp.ListenTarget(listenerCtx, func(ev any) {
			e, ok := ev.(*page.EventLifecycleEvent)
			if !ok {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if matchFrame == "" {
				// Navigation has not returned its frame yet; hold the
				// event so a fast page cannot slip past the matcher.
				pending = append(pending, e)
				return
			}
			if matches(e) {
				once.Do(func() { close(ready) })
			}
		})

		frameID, loaderID, _, _, err := page.Navigate(url).Do(ctx)
		if err != nil {
			return err
		}

		mu.Lock()
		matchFrame, matchLoader = string(frameID), string(loaderID)
		for _, e := range pending {
			if matches(e) {
				once.Do(func() { close(ready) })
			}
		}
		pending = nil
		mu.Unlock()

		select {
		case <-ready:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (p *chromedpPage) HTML(ctx context.Context) (string, error) {
	var html string
	if err := p.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

func (p *chromedpPage) VisibleText(ctx context.Context) (string, error) {
	var text string
	err := p.run(ctx, chromedp.Evaluate(`document.body ? document.body.innerText : ""`, &text))
	if err != nil {
		return "", err
	}
	return text, nil
}

func (p *chromedpPage) Evaluate(ctx context.Context, js string, out any) error {
	return p.run(ctx, chromedp.Evaluate(js, out))
}

// Close releases the tab, waiting up to grace for a clean detach before the
// tab context is torn down regardless.
func (p *chromedpPage) Close(grace time.Duration) error {
	done := make(chan struct{})
	go func() {
		_ = chromedp.Cancel(p.tabCtx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(grace):
	}
	p.tabCancel()
	return nil
}

// classifyCDPError maps raw chromedp failures onto the error taxonomy. This
// is the one place message sniffing is allowed: chromedp does not expose
// typed errors for transport-level failures, so the class is decided here and
// everything above works with kinds only.
func classifyCDPError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	var re *Error
	if errors.As(err, &re) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return WrapErr(KindTimeout, err, "page operation deadline exceeded")
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "context canceled"),
		strings.Contains(msg, "websocket"),
		strings.Contains(msg, "connection"),
		strings.Contains(msg, "session"),
		strings.Contains(msg, "target"),
		strings.Contains(msg, "net::err_"):
		return WrapErr(KindProtocol, err, "render engine protocol failure")
	default:
		return WrapErr(KindProtocol, err, "page operation failed")
	}
}

// mergeDeadline derives a child of base that also honors the deadline of
// bound, if it has one.
func mergeDeadline(base, bound context.Context) (context.Context, context.CancelFunc) {
	if d, ok := bound.Deadline(); ok {
		return context.WithDeadline(base, d)
	}
	return context.WithCancel(base)
}

// forwardCancel propagates cancellation of parent onto cancel until the
// returned stop function is called.
func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}

func enableLifecycleEvents() chromedp.ActionFunc {
	return func(ctx context.Context) error {
		if err := page.Enable().Do(ctx); err != nil {
			return err
		}
		return page.SetLifecycleEventsEnabled(true).Do(ctx)
	}
}
