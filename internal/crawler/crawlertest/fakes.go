// Package crawlertest provides in-memory transports and clocks for crawler tests.
package crawlertest

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/JakeFAU/article-digest/internal/crawler"
)

// Response is a canned transport answer.
type Response struct {
	Status int
	Body   string
	Err    error
}

// Fetcher answers HTTP fetches from a URL-keyed table and records calls.
type Fetcher struct {
	mu        sync.Mutex
	Responses map[string]Response
	Calls     []crawler.FetchRequest
}

// NewFetcher builds a Fetcher over responses.
func NewFetcher(responses map[string]Response) *Fetcher {
	return &Fetcher{Responses: responses}
}

// Fetch implements crawler.Fetcher. Unknown URLs and non-2xx statuses fail.
func (f *Fetcher) Fetch(_ context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, request)
	resp, ok := f.Responses[request.URL]
	if !ok {
		return crawler.FetchResponse{}, fmt.Errorf("%w: no response for %s", crawler.ErrFetchFailure, request.URL)
	}
	return answer(request.URL, resp, false)
}

// CallCount returns how many fetches targeted rawURL.
func (f *Fetcher) CallCount(rawURL string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.Calls {
		if c.URL == rawURL {
			n++
		}
	}
	return n
}

// Page answers renders from a URL-keyed table and records requests.
type Page struct {
	mu        sync.Mutex
	Responses map[string]Response
	Requests  []crawler.RenderRequest
	Closed    bool
}

// Render implements crawler.Page.
func (p *Page) Render(ctx context.Context, request crawler.RenderRequest) (crawler.FetchResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Requests = append(p.Requests, request)
	if p.Closed {
		return crawler.FetchResponse{}, fmt.Errorf("%w: page closed", crawler.ErrFetchFailure)
	}
	if err := ctx.Err(); err != nil {
		return crawler.FetchResponse{}, fmt.Errorf("%w: %w", crawler.ErrFetchFailure, err)
	}
	resp, ok := p.Responses[request.URL]
	if !ok {
		return crawler.FetchResponse{}, fmt.Errorf("%w: navigate %s: %w", crawler.ErrFetchFailure, request.URL, context.DeadlineExceeded)
	}
	return answer(request.URL, resp, true)
}

// Close implements crawler.Page.
func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Closed = true
	return nil
}

// RenderCount returns how many renders targeted rawURL.
func (p *Page) RenderCount(rawURL string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, r := range p.Requests {
		if r.URL == rawURL {
			n++
		}
	}
	return n
}

// Renderer hands out pages that share one response table.
type Renderer struct {
	mu        sync.Mutex
	Responses map[string]Response
	Pages     []*Page
	Err       error
}

// NewPage implements crawler.Renderer.
func (r *Renderer) NewPage(context.Context) (crawler.Page, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	page := &Page{Responses: r.Responses}
	r.Pages = append(r.Pages, page)
	return page, nil
}

// OpenPages returns how many pages were opened and not closed.
func (r *Renderer) OpenPages() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, p := range r.Pages {
		p.mu.Lock()
		if !p.Closed {
			n++
		}
		p.mu.Unlock()
	}
	return n
}

// Clock is a crawler.Clock whose Sleep returns at once and records the wait.
type Clock struct {
	mu     sync.Mutex
	At     time.Time
	Sleeps []time.Duration
}

// Now implements crawler.Clock.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.At
}

// Sleep implements crawler.Clock.
func (c *Clock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Sleeps = append(c.Sleeps, d)
	c.At = c.At.Add(d)
	return ctx.Err()
}

// Waits returns a copy of the recorded sleeps.
func (c *Clock) Waits() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.Sleeps...)
}

// RetryPolicy returns a default policy that never really sleeps.
func RetryPolicy(clock *Clock) *crawler.RetryPolicy {
	if clock == nil {
		clock = &Clock{}
	}
	return crawler.NewExponentialRetryPolicy(crawler.WithClock(clock))
}

func answer(rawURL string, resp Response, headless bool) (crawler.FetchResponse, error) {
	if resp.Err != nil {
		return crawler.FetchResponse{}, fmt.Errorf("%w: %w", crawler.ErrFetchFailure, resp.Err)
	}
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	if status < 200 || status > 299 {
		return crawler.FetchResponse{}, fmt.Errorf("%w: status %d", crawler.ErrFetchFailure, status)
	}
	return crawler.FetchResponse{
		URL:          rawURL,
		StatusCode:   status,
		Headers:      http.Header{},
		Body:         []byte(resp.Body),
		UsedHeadless: headless,
	}, nil
}
