// Package headless renders pages in headless Chrome through chromedp.
package headless

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/article-digest/internal/crawler"
	"github.com/JakeFAU/article-digest/internal/metrics"
)

// Defaults applied by New for zero Config fields.
const (
	DefaultNavigationTimeout = 30 * time.Second
	DefaultWaitTimeout       = 10 * time.Second
	DefaultOverlayTimeout    = 2 * time.Second
	DefaultScrollPause       = time.Second
	DefaultViewportWidth     = 1920
	DefaultViewportHeight    = 1080
)

// OverlaySelectors are cookie and consent controls clicked away before scrolling.
var OverlaySelectors = []string{
	"#onetrust-accept-btn-handler",
	"button#accept-cookies",
	"button[aria-label='Accept cookies']",
	"button[data-testid='cookie-accept']",
	".cookie-consent button.accept",
	"[id*='cookie'] button[class*='accept']",
	"button[class*='consent'][class*='accept']",
}

const scrollScript = `window.scrollTo(0, document.body ? document.body.scrollHeight : 0)`

// Config controls the browser and every page it opens.
type Config struct {
	ExecPath          string
	Headless          bool
	UserAgent         string
	AcceptLanguage    string
	NavigationTimeout time.Duration
	WaitTimeout       time.Duration
	OverlayTimeout    time.Duration
	ScrollPause       time.Duration
	ViewportWidth     int64
	ViewportHeight    int64
}

func (c Config) withDefaults() Config {
	if c.UserAgent == "" {
		c.UserAgent = crawler.DefaultUserAgent
	}
	if c.AcceptLanguage == "" {
		c.AcceptLanguage = crawler.DefaultAcceptLanguage
	}
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = DefaultNavigationTimeout
	}
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = DefaultWaitTimeout
	}
	if c.OverlayTimeout <= 0 {
		c.OverlayTimeout = DefaultOverlayTimeout
	}
	if c.ScrollPause <= 0 {
		c.ScrollPause = DefaultScrollPause
	}
	if c.ViewportWidth <= 0 {
		c.ViewportWidth = DefaultViewportWidth
	}
	if c.ViewportHeight <= 0 {
		c.ViewportHeight = DefaultViewportHeight
	}
	return c
}

// Browser implements crawler.Renderer. Chrome is started on the first
// NewPage call and shared by every page until Close.
type Browser struct {
	cfg    Config
	logger *zap.Logger

	startOnce     sync.Once
	startErr      error
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

// New creates a Browser without starting Chrome.
func New(cfg Config, logger *zap.Logger) *Browser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Browser{cfg: cfg.withDefaults(), logger: logger}
}

func (b *Browser) start() error {
	b.startOnce.Do(func() {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", b.cfg.Headless),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("hide-scrollbars", true),
			chromedp.Flag("enable-automation", false),
			chromedp.UserAgent(b.cfg.UserAgent),
			chromedp.WindowSize(int(b.cfg.ViewportWidth), int(b.cfg.ViewportHeight)),
		)
		if b.cfg.ExecPath != "" {
			opts = append(opts, chromedp.ExecPath(b.cfg.ExecPath))
		}
		allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
		browserCtx, browserCancel := chromedp.NewContext(allocCtx)
		if err := chromedp.Run(browserCtx); err != nil {
			browserCancel()
			allocCancel()
			b.startErr = fmt.Errorf("chromedp warmup: %w", err)
			return
		}
		b.allocCancel = allocCancel
		b.browserCtx = browserCtx
		b.browserCancel = browserCancel
		b.logger.Info("browser started", zap.Bool("headless", b.cfg.Headless))
	})
	return b.startErr
}

// NewPage opens a tab. The caller owns it and must Close it.
func (b *Browser) NewPage(ctx context.Context) (crawler.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	if err := b.start(); err != nil {
		return nil, fmt.Errorf("%w: %w", crawler.ErrRendererDisabled, err)
	}
	tabCtx, cancel := chromedp.NewContext(b.browserCtx)
	// The tab must be allocated with its own context, not a later timeout child.
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("open tab: %w", err)
	}
	page := &Page{
		cfg:    b.cfg,
		logger: b.logger,
		tabCtx: tabCtx,
		cancel: cancel,
		meta:   newResponseMeta(),
	}
	chromedp.ListenTarget(tabCtx, page.meta.captureEvent)
	return page, nil
}

// Close tears down the browser and allocator contexts.
func (b *Browser) Close() {
	if b.browserCancel != nil {
		b.browserCancel()
	}
	if b.allocCancel != nil {
		b.allocCancel()
	}
}

// Page is one Chrome tab.
type Page struct {
	cfg    Config
	logger *zap.Logger
	tabCtx context.Context
	cancel context.CancelFunc
	meta   *responseMeta

	closeOnce sync.Once
}

// Close closes the tab. It is safe to call more than once.
func (p *Page) Close() error {
	p.closeOnce.Do(p.cancel)
	return nil
}

// Render runs one full navigation: identity setup, navigation, optional
// wait, overlay dismissal, scrolling, and document capture. Navigation
// failures and non-2xx documents wrap crawler.ErrFetchFailure; a WaitFor
// timeout is logged and the page is still returned.
func (p *Page) Render(ctx context.Context, request crawler.RenderRequest) (crawler.FetchResponse, error) {
	runCtx, cancel := context.WithCancel(p.tabCtx)
	defer cancel()
	stopForward := forwardCancel(ctx, cancel)
	defer stopForward()

	start := time.Now()
	p.meta.reset()
	logger := p.logger.With(zap.String("url", request.URL))

	if err := chromedp.Run(runCtx, p.identityAction(request.Headers)); err != nil {
		return p.fail(request.URL, fmt.Errorf("configure identity: %w", err))
	}

	navCtx, navCancel := context.WithTimeout(runCtx, p.cfg.NavigationTimeout)
	err := chromedp.Run(navCtx, chromedp.Navigate(request.URL))
	navCancel()
	if err != nil {
		return p.fail(request.URL, fmt.Errorf("navigate: %w", err))
	}
	status, headers, finalURL, requestID := p.meta.snapshot()
	if status == 0 {
		return p.fail(request.URL, errors.New("navigate: no document response"))
	}
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return p.fail(request.URL, fmt.Errorf("navigate: status %d", status))
	}

	if request.WaitFor != "" {
		waitCtx, waitCancel := context.WithTimeout(runCtx, p.cfg.WaitTimeout)
		err := chromedp.Run(waitCtx, chromedp.WaitVisible(request.WaitFor, chromedp.ByQuery))
		waitCancel()
		if err != nil {
			logger.Warn("wait selector not visible, continuing", zap.String("selector", request.WaitFor), zap.Error(err))
		}
	}

	if request.DismissOverlays {
		p.dismissOverlays(runCtx, logger)
	}

	for i := 0; i < request.ScrollTimes; i++ {
		if err := chromedp.Run(runCtx,
			chromedp.Evaluate(scrollScript, nil),
			chromedp.Sleep(p.cfg.ScrollPause),
		); err != nil {
			logger.Debug("scroll failed", zap.Int("scroll", i+1), zap.Error(err))
			break
		}
	}

	body, err := p.capture(runCtx, request.Raw, requestID)
	if err != nil {
		return p.fail(request.URL, err)
	}
	if finalURL == "" {
		finalURL = request.URL
	}
	metrics.ObserveFetch("browser", request.URL, "success", len(body))
	return crawler.FetchResponse{
		URL:          finalURL,
		StatusCode:   status,
		Headers:      headers,
		Body:         body,
		Duration:     time.Since(start),
		UsedHeadless: true,
	}, nil
}

func (p *Page) fail(rawURL string, err error) (crawler.FetchResponse, error) {
	metrics.ObserveFetch("browser", rawURL, "error", 0)
	return crawler.FetchResponse{}, fmt.Errorf("%w: %w", crawler.ErrFetchFailure, err)
}

func (p *Page) identityAction(headers http.Header) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if err := emulation.SetDeviceMetricsOverride(p.cfg.ViewportWidth, p.cfg.ViewportHeight, 1, false).Do(ctx); err != nil {
			return fmt.Errorf("set viewport: %w", err)
		}
		userAgent := p.cfg.UserAgent
		if ua := headers.Get("User-Agent"); ua != "" {
			userAgent = ua
		}
		if err := emulation.SetUserAgentOverride(userAgent).WithAcceptLanguage(p.cfg.AcceptLanguage).Do(ctx); err != nil {
			return fmt.Errorf("set user-agent: %w", err)
		}
		extra := navigationHeaders(headers)
		if len(extra) > 0 {
			if err := network.SetExtraHTTPHeaders(extra).Do(ctx); err != nil {
				return fmt.Errorf("set extra headers: %w", err)
			}
		}
		return nil
	})
}

func (p *Page) dismissOverlays(ctx context.Context, logger *zap.Logger) {
	for _, selector := range OverlaySelectors {
		var present bool
		if err := chromedp.Run(ctx, chromedp.Evaluate(presenceScript(selector), &present)); err != nil || !present {
			continue
		}
		clickCtx, cancel := context.WithTimeout(ctx, p.cfg.OverlayTimeout)
		err := chromedp.Run(clickCtx, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible))
		cancel()
		if err != nil {
			logger.Debug("overlay click failed", zap.String("selector", selector), zap.Error(err))
			continue
		}
		logger.Debug("overlay dismissed", zap.String("selector", selector))
	}
}

func (p *Page) capture(ctx context.Context, raw bool, requestID network.RequestID) ([]byte, error) {
	if raw && requestID != "" {
		var body []byte
		err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
			b, err := network.GetResponseBody(requestID).Do(ctx)
			body = b
			return err
		}))
		if err == nil {
			return body, nil
		}
		p.logger.Debug("raw body unavailable, using rendered dom", zap.Error(err))
	}
	var html string
	if err := chromedp.Run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return nil, fmt.Errorf("capture dom: %w", err)
	}
	return []byte(html), nil
}

func presenceScript(selector string) string {
	return fmt.Sprintf(`document.querySelector(%q) !== null`, selector)
}

// navigationHeaders drops headers Chrome manages itself.
func navigationHeaders(h http.Header) network.Headers {
	filtered := cloneHeader(h)
	for _, key := range []string{"User-Agent", "Accept-Encoding", "Connection"} {
		filtered.Del(key)
	}
	return toNetworkHeaders(filtered)
}

type responseMeta struct {
	mu        sync.RWMutex
	status    int
	headers   http.Header
	url       string
	requestID network.RequestID
}

func newResponseMeta() *responseMeta {
	return &responseMeta{
		headers: http.Header{},
	}
}

func (m *responseMeta) reset() {
	m.mu.Lock()
	m.status = 0
	m.headers = http.Header{}
	m.url = ""
	m.requestID = ""
	m.mu.Unlock()
}

func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	headers := http.Header{}
	for key, value := range event.Response.Headers {
		switch v := value.(type) {
		case string:
			headers.Add(key, v)
		case []string:
			for _, entry := range v {
				headers.Add(key, entry)
			}
		case []interface{}:
			for _, entry := range v {
				headers.Add(key, fmt.Sprint(entry))
			}
		default:
			headers.Add(key, fmt.Sprint(v))
		}
	}
	m.mu.Lock()
	m.status = int(event.Response.Status)
	m.headers = headers
	m.url = event.Response.URL
	m.requestID = event.RequestID
	m.mu.Unlock()
}

func (m *responseMeta) snapshot() (int, http.Header, string, network.RequestID) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status, cloneHeader(m.headers), m.url, m.requestID
}

func (m *responseMeta) captureEvent(ev any) {
	if resp, ok := ev.(*network.EventResponseReceived); ok {
		m.capture(resp)
	}
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
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

func cloneHeader(src http.Header) http.Header {
	dst := make(http.Header, len(src))
	for k, values := range src {
		for _, v := range values {
			dst.Add(k, v)
		}
	}
	return dst
}

func toNetworkHeaders(h http.Header) network.Headers {
	headers := network.Headers{}
	for key, values := range h {
		if len(values) == 0 {
			continue
		}
		if len(values) == 1 {
			headers[key] = values[0]
		} else {
			headers[key] = append([]string(nil), values...)
		}
	}
	return headers
}
