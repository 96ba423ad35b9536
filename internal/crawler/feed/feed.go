// Package feed implements the crawler for RSS and Atom sources.
package feed

import (
	"bytes"
	"context"
	"net/http"
	"strings"

	"github.com/mmcdole/gofeed"
	"github.com/samber/mo"
	"go.uber.org/zap"

	"github.com/JakeFAU/article-digest/internal/crawler"
	"github.com/JakeFAU/article-digest/internal/extract"
)

// DefaultMinEmbeddedLength is the number of characters embedded entry
// content needs before it replaces a live article fetch.
const DefaultMinEmbeddedLength = 200

// hostContentSelectors are tried after the source's content selector when
// reading article pages linked from feeds.
var hostContentSelectors = map[string][]string{
	"arxiv.org":     {"blockquote.abstract"},
	"medium.com":    {"article section", "article"},
	"substack.com":  {"div.available-content", "div.body.markup"},
	"ghost.io":      {"section.gh-content", "div.post-content"},
	"wordpress.com": {"div.entry-content"},
}

// Crawler implements crawler.Crawler for feeds. An instance serves one
// source batch: ParseArticles fills the content cache FetchArticleContent drains.
type Crawler struct {
	retry       *crawler.RetryPolicy
	extractor   *extract.Extractor
	logger      *zap.Logger
	minEmbedded int
	cache       *crawler.ContentCache
	detector    Detector
}

// Detector flags HTTP responses whose article text only appears after scripts run.
type Detector interface {
	ScriptRendered(resp crawler.FetchResponse) bool
}

// Option customizes a Crawler.
type Option func(*Crawler)

// WithMinEmbeddedLength overrides DefaultMinEmbeddedLength.
func WithMinEmbeddedLength(n int) Option {
	return func(c *Crawler) {
		if n > 0 {
			c.minEmbedded = n
		}
	}
}

// WithDetector renders articles in a browser page when their plain HTTP
// response yields no content and d flags it as script-rendered.
func WithDetector(d Detector) Option {
	return func(c *Crawler) {
		c.detector = d
	}
}

// New builds a feed crawler.
func New(retry *crawler.RetryPolicy, extractor *extract.Extractor, logger *zap.Logger, opts ...Option) *Crawler {
	if retry == nil {
		retry = crawler.NewExponentialRetryPolicy()
	}
	if extractor == nil {
		extractor = extract.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Crawler{
		retry:       retry,
		extractor:   extractor,
		logger:      logger,
		minEmbedded: DefaultMinEmbeddedLength,
		cache:       crawler.NewContentCache(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchListing downloads the feed document over HTTP, or through a browser
// page when the source rejects plain clients.
func (c *Crawler) FetchListing(ctx context.Context, src crawler.Source, session crawler.Session) mo.Option[crawler.FetchResponse] {
	headers := crawler.RequestHeaders(src, src.URL, crawler.AcceptFeed)
	if src.RequiresBrowser {
		page, release, err := session.AcquirePage(ctx, false)
		if err != nil {
			c.logger.Warn("no page for feed", zap.String("source", src.Name), zap.Error(err))
			return mo.None[crawler.FetchResponse]()
		}
		defer release()
		request := crawler.RenderRequest{URL: src.URL, Headers: headers, Raw: true}
		return crawler.Retry(ctx, c.retry, "feed.listing", func(ctx context.Context) (crawler.FetchResponse, error) {
			return page.Render(ctx, request)
		})
	}
	if session.HTTP == nil {
		c.logger.Warn("no http fetcher for feed", zap.String("source", src.Name))
		return mo.None[crawler.FetchResponse]()
	}
	request := crawler.FetchRequest{URL: src.URL, Headers: headers}
	return crawler.Retry(ctx, c.retry, "feed.listing", func(ctx context.Context) (crawler.FetchResponse, error) {
		return session.HTTP.Fetch(ctx, request)
	})
}

// ParseArticles parses the feed and replaces the crawler's content cache
// with one holding this batch's embedded bodies.
func (c *Crawler) ParseArticles(doc crawler.FetchResponse, src crawler.Source) []crawler.ArticleStub {
	stubs, cache := ParseFeed(doc, src, c.minEmbedded, c.logger)
	c.cache = cache
	return stubs
}

// ParseFeed turns a feed document into at most src.ArticlesPerSite stubs, in
// feed order, and a cache of embedded content longer than minEmbedded.
func ParseFeed(doc crawler.FetchResponse, src crawler.Source, minEmbedded int, logger *zap.Logger) ([]crawler.ArticleStub, *crawler.ContentCache) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cache := crawler.NewContentCache()
	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(doc.Body))
	if err != nil {
		logger.Warn("parse feed", zap.String("source", src.Name), zap.Error(err))
		return nil, cache
	}

	stubs := make([]crawler.ArticleStub, 0, src.ArticlesPerSite)
	seen := make(map[string]struct{}, src.ArticlesPerSite)
	for i, item := range parsed.Items {
		if len(stubs) >= src.ArticlesPerSite {
			break
		}
		if item == nil {
			continue
		}
		title := strings.Join(strings.Fields(item.Title), " ")
		link, ok := crawler.ResolveLink(src, entryLink(item))
		if title == "" || !ok {
			logger.Debug("skipping feed entry", zap.String("source", src.Name), zap.Int("index", i))
			continue
		}
		if _, dup := seen[link]; dup {
			continue
		}
		seen[link] = struct{}{}

		stub := crawler.ArticleStub{Title: title, Link: link}
		if raw := EntryContent(item, src.FeedContentField); raw != "" {
			content := extract.FromHTML(raw)
			if !content.Empty() {
				stub.Embedded = mo.Some(content)
				if content.Len() > minEmbedded {
					cache.Put(link, content)
				}
			}
		}
		stubs = append(stubs, stub)
	}
	logger.Debug("parsed feed",
		zap.String("source", src.Name),
		zap.Int("entries", len(parsed.Items)),
		zap.Int("articles", len(stubs)),
		zap.Int("cached", cache.Len()),
	)
	return stubs, cache
}

// FetchArticleContent returns cached embedded content once, then falls back
// to a transient browser page or a plain HTTP fetch of the article.
func (c *Crawler) FetchArticleContent(ctx context.Context, link string, src crawler.Source, session crawler.Session) mo.Option[crawler.ArticleContent] {
	if content, ok := c.cache.Pop(link); ok {
		c.logger.Debug("using embedded content", zap.String("link", link))
		return mo.Some(content)
	}

	selectors := contentSelectors(src, link)
	headers := crawler.RequestHeaders(src, link, crawler.AcceptHTML)

	if src.RequiresBrowser || src.NeedsJS {
		return c.renderArticle(ctx, link, src, session, headers, selectors)
	}
	if session.HTTP == nil {
		c.logger.Warn("no http fetcher for article", zap.String("link", link))
		return mo.None[crawler.ArticleContent]()
	}

	request := crawler.FetchRequest{URL: link, Headers: headers}
	resp, ok := crawler.Retry(ctx, c.retry, "feed.article", func(ctx context.Context) (crawler.FetchResponse, error) {
		return session.HTTP.Fetch(ctx, request)
	}).Get()
	if !ok {
		return mo.None[crawler.ArticleContent]()
	}
	content := c.extractor.Extract(resp.Body, selectors...)
	if content.IsPresent() || c.detector == nil || session.Browser == nil || !c.detector.ScriptRendered(resp) {
		return content
	}
	c.logger.Info("article is script-rendered; retrying in a browser page", zap.String("link", link))
	return c.renderArticle(ctx, link, src, session, headers, selectors)
}

func (c *Crawler) renderArticle(
	ctx context.Context,
	link string,
	src crawler.Source,
	session crawler.Session,
	headers http.Header,
	selectors []string,
) mo.Option[crawler.ArticleContent] {
	page, release, err := session.AcquirePage(ctx, true)
	if err != nil {
		c.logger.Warn("no page for article", zap.String("link", link), zap.Error(err))
		return mo.None[crawler.ArticleContent]()
	}
	defer release()
	request := crawler.RenderRequest{
		URL:             link,
		Headers:         headers,
		WaitFor:         src.ContentSelector,
		DismissOverlays: true,
	}
	resp, ok := crawler.Retry(ctx, c.retry, "feed.article", func(ctx context.Context) (crawler.FetchResponse, error) {
		return page.Render(ctx, request)
	}).Get()
	if !ok {
		return mo.None[crawler.ArticleContent]()
	}
	return c.extractor.Extract(resp.Body, selectors...)
}

// CachedEntries reports how many embedded bodies are still unconsumed.
func (c *Crawler) CachedEntries() int {
	return c.cache.Len()
}

func contentSelectors(src crawler.Source, link string) []string {
	selectors := []string{src.ContentSelector}
	host := hostOf(link)
	for suffix, fallbacks := range hostContentSelectors {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			selectors = append(selectors, fallbacks...)
		}
	}
	return selectors
}
