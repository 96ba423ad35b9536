// Package jsonapi implements the crawler for sources that publish a JSON
// listing. Response shapes are handled by small per-host adapters.
package jsonapi

import (
	"context"

	"github.com/samber/mo"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/JakeFAU/article-digest/internal/crawler"
	"github.com/JakeFAU/article-digest/internal/extract"
)

// Crawler implements crawler.Crawler for JSON APIs. An instance serves one source batch.
type Crawler struct {
	retry  *crawler.RetryPolicy
	logger *zap.Logger
	cache  *crawler.ContentCache
}

// New builds an API crawler.
func New(retry *crawler.RetryPolicy, logger *zap.Logger) *Crawler {
	if retry == nil {
		retry = crawler.NewExponentialRetryPolicy()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Crawler{retry: retry, logger: logger, cache: crawler.NewContentCache()}
}

// FetchListing GETs the endpoint. Non-2xx responses are fetch failures.
func (c *Crawler) FetchListing(ctx context.Context, src crawler.Source, session crawler.Session) mo.Option[crawler.FetchResponse] {
	if session.HTTP == nil {
		c.logger.Warn("no http fetcher for api", zap.String("source", src.Name))
		return mo.None[crawler.FetchResponse]()
	}
	request := crawler.FetchRequest{URL: src.URL, Headers: crawler.RequestHeaders(src, src.URL, crawler.AcceptJSON)}
	return crawler.Retry(ctx, c.retry, "api.listing", func(ctx context.Context) (crawler.FetchResponse, error) {
		return session.HTTP.Fetch(ctx, request)
	})
}

// ParseArticles adapts the JSON body. An unexpected shape yields no articles.
func (c *Crawler) ParseArticles(doc crawler.FetchResponse, src crawler.Source) []crawler.ArticleStub {
	adapter := AdapterFor(src)
	items := adapter.Items(doc.Body)
	if items == nil {
		c.logger.Warn("unexpected api response shape",
			zap.String("source", src.Name),
			zap.String("adapter", adapter.Name()),
			zap.Int("bytes", len(doc.Body)),
		)
	}

	c.cache = crawler.NewContentCache()
	stubs := make([]crawler.ArticleStub, 0, src.ArticlesPerSite)
	seen := make(map[string]struct{}, src.ArticlesPerSite)
	for _, item := range items {
		if len(stubs) >= src.ArticlesPerSite {
			break
		}
		link, ok := crawler.ResolveLink(src, item.Link)
		if item.Title == "" || !ok {
			continue
		}
		if _, dup := seen[link]; dup {
			continue
		}
		seen[link] = struct{}{}
		stub := crawler.ArticleStub{Title: item.Title, Link: link}
		if content := extract.FromHTML(item.Content); !content.Empty() {
			stub.Embedded = mo.Some(content)
			c.cache.Put(link, content)
		}
		stubs = append(stubs, stub)
	}
	return stubs
}

// FetchArticleContent returns the body embedded in the listing. Adapters
// whose listings are not self-contained fetch the article URL and read its
// content path.
func (c *Crawler) FetchArticleContent(ctx context.Context, link string, src crawler.Source, session crawler.Session) mo.Option[crawler.ArticleContent] {
	if content, ok := c.cache.Pop(link); ok {
		return mo.Some(content)
	}
	adapter := AdapterFor(src)
	if adapter.Embedded() || session.HTTP == nil {
		return mo.None[crawler.ArticleContent]()
	}

	request := crawler.FetchRequest{URL: link, Headers: crawler.RequestHeaders(src, link, crawler.AcceptJSON)}
	doc, ok := crawler.Retry(ctx, c.retry, "api.article", func(ctx context.Context) (crawler.FetchResponse, error) {
		return session.HTTP.Fetch(ctx, request)
	}).Get()
	if !ok || !gjson.ValidBytes(doc.Body) {
		return mo.None[crawler.ArticleContent]()
	}
	path := src.API.ContentPath
	if path == "" {
		path = "content"
	}
	content := extract.FromHTML(gjson.GetBytes(doc.Body, path).String())
	if content.Empty() {
		return mo.None[crawler.ArticleContent]()
	}
	return mo.Some(content)
}
