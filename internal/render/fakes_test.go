package render

import (
	"context"
	"sync"
	"time"
)

// fakeClient is an EngineClient whose launches are scripted per call.
type fakeClient struct {
	mu          sync.Mutex
	launchDelay time.Duration
	primaryErr  error
	degradedErr error

	launches  int
	profiles  []LaunchProfile
	instances []*fakeInstance

	// newInstance overrides the default instance factory when set.
	newInstance func() *fakeInstance
}

func (c *fakeClient) Launch(ctx context.Context, profile LaunchProfile) (Instance, error) {
	if c.launchDelay > 0 {
		select {
		case <-time.After(c.launchDelay):
		case <-ctx.Done():
			return nil, WrapErr(KindLaunch, ctx.Err(), "launch canceled")
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.launches++
	c.profiles = append(c.profiles, profile)
	if profile.Degraded {
		if c.degradedErr != nil {
			return nil, c.degradedErr
		}
	} else if c.primaryErr != nil {
		return nil, c.primaryErr
	}
	inst := &fakeInstance{}
	if c.newInstance != nil {
		inst = c.newInstance()
	}
	c.instances = append(c.instances, inst)
	return inst, nil
}

func (c *fakeClient) launchCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.launches
}

func (c *fakeClient) instanceAt(i int) *fakeInstance {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.instances[i]
}

// fakeInstance scripts the health probe and page leasing.
type fakeInstance struct {
	mu           sync.Mutex
	pageCount    int
	pageCountErr error
	newPageErr   error
	pages        []*fakePage
	closeCalls   int
	extraClosed  int
	disconnect   func()

	// newPage overrides the default page factory when set.
	newPage func() *fakePage
}

func (i *fakeInstance) NewPage(context.Context) (Page, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.newPageErr != nil {
		return nil, i.newPageErr
	}
	p := &fakePage{}
	if i.newPage != nil {
		p = i.newPage()
	}
	i.pages = append(i.pages, p)
	return p, nil
}

func (i *fakeInstance) PageCount(context.Context) (int, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.pageCountErr != nil {
		return 0, i.pageCountErr
	}
	return i.pageCount, nil
}

func (i *fakeInstance) CloseExtraPages(context.Context) (int, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.pageCount <= 1 {
		return 0, nil
	}
	closed := i.pageCount - 1
	i.pageCount = 1
	i.extraClosed += closed
	return closed, nil
}

func (i *fakeInstance) Close(time.Duration) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.closeCalls++
	return nil
}

func (i *fakeInstance) OnDisconnect(fn func()) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.disconnect = fn
}

func (i *fakeInstance) closeCount() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.closeCalls
}

func (i *fakeInstance) fireDisconnect() {
	i.mu.Lock()
	fn := i.disconnect
	i.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// fakePage records navigation and close calls.
type fakePage struct {
	mu         sync.Mutex
	navErr     error
	html       string
	htmlErr    error
	text       string
	textErr    error
	navigated  []string
	closeCalls int
}

func (p *fakePage) Navigate(_ context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navigated = append(p.navigated, url)
	return p.navErr
}

func (p *fakePage) HTML(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.html, p.htmlErr
}

func (p *fakePage) VisibleText(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.text, p.textErr
}

func (p *fakePage) Evaluate(_ context.Context, _ string, _ any) error {
	return nil
}

func (p *fakePage) Close(time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeCalls++
	return nil
}

func (p *fakePage) closeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closeCalls
}
