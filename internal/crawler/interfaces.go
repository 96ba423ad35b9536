package crawler

import (
	"context"
	"errors"
	"time"

	"github.com/samber/mo"
)

// ErrFetchFailure wraps every transport-level failure: network errors,
// non-2xx responses, navigation timeouts, and missing responses.
var ErrFetchFailure = errors.New("fetch failure")

// ErrRendererDisabled is returned when a source needs a browser but none is configured.
var ErrRendererDisabled = errors.New("renderer disabled")

// Crawler is the capability contract shared by the browser, feed, and API transports.
type Crawler interface {
	// FetchListing returns the listing document, or None once retries are exhausted.
	FetchListing(ctx context.Context, src Source, session Session) mo.Option[FetchResponse]
	// ParseArticles returns at most src.ArticlesPerSite stubs in listing order.
	ParseArticles(doc FetchResponse, src Source) []ArticleStub
	// FetchArticleContent returns the body of one article, or None when unavailable.
	FetchArticleContent(ctx context.Context, link string, src Source, session Session) mo.Option[ArticleContent]
}

// Fetcher fetches a URL over plain HTTP and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Renderer opens browser pages. One renderer is shared by a whole run.
type Renderer interface {
	NewPage(ctx context.Context) (Page, error)
}

// Page is one browser tab. Callers must Close it on every exit path.
type Page interface {
	Render(ctx context.Context, request RenderRequest) (FetchResponse, error)
	Close() error
}

// Session carries the run-scoped transports into a crawler call.
type Session struct {
	HTTP    Fetcher
	Browser Renderer
	// Page is the source-scoped tab; nil for sources that never render.
	Page Page
}

// Summarizer condenses article text. Too-short input yields None.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (mo.Option[Summary], error)
}

// Sink persists the digest produced by a run.
type Sink interface {
	Write(ctx context.Context, digest Digest) error
	Close(ctx context.Context) error
}

// Clock returns the current time and sleeps (useful for testing).
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// AcquirePage returns the session page, or a transient page from the browser
// when fresh is set or the session has none. release closes transient pages
// only and must be called on every path.
func (s Session) AcquirePage(ctx context.Context, fresh bool) (Page, func(), error) {
	if s.Page != nil && !fresh {
		return s.Page, func() {}, nil
	}
	if s.Browser == nil {
		return nil, nil, ErrRendererDisabled
	}
	page, err := s.Browser.NewPage(ctx)
	if err != nil {
		return nil, nil, err
	}
	return page, func() { _ = page.Close() }, nil
}
