// Package browser implements the crawler for sources that need JavaScript
// rendering. Listings and articles are both fetched through a chromedp page.
package browser

import (
	"bytes"
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/samber/mo"
	"go.uber.org/zap"

	"github.com/JakeFAU/article-digest/internal/crawler"
	"github.com/JakeFAU/article-digest/internal/extract"
)

// SelfSelector as a link or title selector refers to the article element itself.
const SelfSelector = "self"

// Crawler implements crawler.Crawler for browser sources.
type Crawler struct {
	retry     *crawler.RetryPolicy
	extractor *extract.Extractor
	logger    *zap.Logger
}

// New builds a browser crawler.
func New(retry *crawler.RetryPolicy, extractor *extract.Extractor, logger *zap.Logger) *Crawler {
	if retry == nil {
		retry = crawler.NewExponentialRetryPolicy()
	}
	if extractor == nil {
		extractor = extract.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Crawler{retry: retry, extractor: extractor, logger: logger}
}

// FetchListing renders the listing page on the session page.
func (c *Crawler) FetchListing(ctx context.Context, src crawler.Source, session crawler.Session) mo.Option[crawler.FetchResponse] {
	page, release, err := session.AcquirePage(ctx, false)
	if err != nil {
		c.logger.Warn("no page for listing", zap.String("source", src.Name), zap.Error(err))
		return mo.None[crawler.FetchResponse]()
	}
	defer release()

	request := crawler.RenderRequest{
		URL:             src.URL,
		Headers:         crawler.RequestHeaders(src, src.URL, crawler.AcceptHTML),
		WaitFor:         src.WaitFor,
		ScrollTimes:     src.ScrollTimes,
		DismissOverlays: true,
	}
	return crawler.Retry(ctx, c.retry, "browser.listing", func(ctx context.Context) (crawler.FetchResponse, error) {
		return page.Render(ctx, request)
	})
}

// ParseArticles selects article elements and reads a title and link from
// each. Elements missing either are skipped; duplicate links are ignored.
func (c *Crawler) ParseArticles(doc crawler.FetchResponse, src crawler.Source) []crawler.ArticleStub {
	root, err := goquery.NewDocumentFromReader(bytes.NewReader(doc.Body))
	if err != nil {
		c.logger.Warn("parse listing", zap.String("source", src.Name), zap.Error(err))
		return nil
	}

	stubs := make([]crawler.ArticleStub, 0, src.ArticlesPerSite)
	seen := make(map[string]struct{}, src.ArticlesPerSite)
	root.Find(src.ArticleSelector).EachWithBreak(func(i int, article *goquery.Selection) bool {
		title := readTitle(article, src.TitleSelector)
		href := readHref(article, src.LinkSelector)
		link, ok := crawler.ResolveLink(src, href)
		if title == "" || !ok {
			c.logger.Debug("skipping listing item",
				zap.String("source", src.Name),
				zap.Int("index", i),
				zap.String("title", title),
				zap.String("href", href),
			)
			return true
		}
		key, err := crawler.NormalizeURL(link)
		if err != nil {
			key = link
		}
		if _, dup := seen[key]; dup {
			return true
		}
		seen[key] = struct{}{}
		stubs = append(stubs, crawler.ArticleStub{Title: title, Link: link})
		return len(stubs) < src.ArticlesPerSite
	})
	c.logger.Debug("parsed listing", zap.String("source", src.Name), zap.Int("articles", len(stubs)))
	return stubs
}

// FetchArticleContent navigates straight to the article and extracts its body.
// Sources with IsolateArticles get a fresh tab per article.
func (c *Crawler) FetchArticleContent(ctx context.Context, link string, src crawler.Source, session crawler.Session) mo.Option[crawler.ArticleContent] {
	page, release, err := session.AcquirePage(ctx, src.IsolateArticles)
	if err != nil {
		c.logger.Warn("no page for article", zap.String("link", link), zap.Error(err))
		return mo.None[crawler.ArticleContent]()
	}
	defer release()

	request := crawler.RenderRequest{
		URL:             link,
		Headers:         crawler.RequestHeaders(src, link, crawler.AcceptHTML),
		WaitFor:         src.ContentSelector,
		DismissOverlays: true,
	}
	doc, ok := crawler.Retry(ctx, c.retry, "browser.article", func(ctx context.Context) (crawler.FetchResponse, error) {
		return page.Render(ctx, request)
	}).Get()
	if !ok {
		return mo.None[crawler.ArticleContent]()
	}
	return c.extractor.Extract(doc.Body, src.ContentSelector)
}

func readTitle(article *goquery.Selection, selector string) string {
	if selector == SelfSelector {
		return collapse(article.Text())
	}
	var title string
	article.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		title = collapse(s.Text())
		if title == "" {
			title = strings.TrimSpace(s.AttrOr("title", ""))
		}
		return title == ""
	})
	return title
}

func readHref(article *goquery.Selection, selector string) string {
	if selector == SelfSelector {
		return article.AttrOr("href", "")
	}
	var href string
	article.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href = strings.TrimSpace(s.AttrOr("href", ""))
		if href == "" {
			// Selectors sometimes land on a wrapper around the anchor.
			href = strings.TrimSpace(s.Find("a[href]").First().AttrOr("href", ""))
		}
		return href == ""
	})
	return href
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
