// Package orchestrator drives one batch: every source is crawled in order,
// every article is summarized, and the results are collected into a digest.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/article-digest/internal/crawler"
	"github.com/JakeFAU/article-digest/internal/metrics"
)

// DefaultArticleDelay is the pause after every article.
const DefaultArticleDelay = 2 * time.Second

// Dispatcher hands out a crawler per source.
type Dispatcher interface {
	For(src crawler.Source) (crawler.Crawler, error)
}

// Config controls Orchestrator behavior.
type Config struct {
	ArticleDelay time.Duration
}

// Orchestrator runs sources sequentially. It never fails a batch because of
// a single source or article.
type Orchestrator struct {
	dispatcher Dispatcher
	summarizer crawler.Summarizer
	clock      crawler.Clock
	ids        crawler.IDGenerator
	http       crawler.Fetcher
	browser    crawler.Renderer
	cfg        Config
	logger     *zap.Logger
}

// New constructs an Orchestrator. browser may be nil when no source renders.
func New(
	dispatcher Dispatcher,
	summarizer crawler.Summarizer,
	clock crawler.Clock,
	ids crawler.IDGenerator,
	http crawler.Fetcher,
	browser crawler.Renderer,
	cfg Config,
	logger *zap.Logger,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ArticleDelay < 0 {
		cfg.ArticleDelay = 0
	}
	return &Orchestrator{
		dispatcher: dispatcher,
		summarizer: summarizer,
		clock:      clock,
		ids:        ids,
		http:       http,
		browser:    browser,
		cfg:        cfg,
		logger:     logger,
	}
}

// Run processes sources in order and returns the digest of every record produced.
func (o *Orchestrator) Run(ctx context.Context, sources []crawler.Source) (crawler.Digest, error) {
	runID, err := o.ids.NewID()
	if err != nil {
		return crawler.Digest{}, fmt.Errorf("generate run id: %w", err)
	}
	digest := crawler.Digest{
		RunID:     runID,
		StartedAt: o.clock.Now(),
		Articles:  []crawler.Record{},
	}
	logger := o.logger.With(zap.String("run_id", runID))
	logger.Info("run started", zap.Int("sources", len(sources)))

	for _, src := range sources {
		if ctx.Err() != nil {
			logger.Warn("run cancelled", zap.Error(ctx.Err()))
			break
		}
		records := o.ProcessSource(ctx, src)
		digest.Articles = append(digest.Articles, records...)
	}

	digest.FinishedAt = o.clock.Now()
	status := "success"
	if ctx.Err() != nil {
		status = "cancelled"
	}
	metrics.ObserveRun(status, digest.FinishedAt)
	logger.Info("run finished",
		zap.String("status", status),
		zap.Int("articles", len(digest.Articles)),
		zap.Duration("duration", digest.FinishedAt.Sub(digest.StartedAt)),
	)
	return digest, nil
}

// ProcessSource crawls one source and returns its records. Failures are
// logged and yield fewer (possibly zero) records.
func (o *Orchestrator) ProcessSource(ctx context.Context, src crawler.Source) []crawler.Record {
	logger := o.logger.With(zap.String("source", src.Name), zap.Stringer("kind", src.ResolvedKind()))
	kind := src.ResolvedKind().String()

	c, err := o.dispatcher.For(src)
	if err != nil {
		logger.Error("no crawler for source", zap.Error(err))
		metrics.ObserveSource(kind, "unsupported")
		return nil
	}

	session := crawler.Session{HTTP: o.http, Browser: o.browser}
	if src.NeedsPage() {
		page, err := o.openPage(ctx)
		if err != nil {
			logger.Error("open page failed", zap.Error(err))
			metrics.ObserveSource(kind, "no_browser")
			return nil
		}
		defer func() {
			if err := page.Close(); err != nil {
				logger.Warn("close page failed", zap.Error(err))
			}
		}()
		session.Page = page
	}

	listing, ok := c.FetchListing(ctx, src, session).Get()
	if !ok {
		logger.Warn("listing unavailable")
		metrics.ObserveSource(kind, "listing_failed")
		return nil
	}
	stubs := c.ParseArticles(listing, src)
	if len(stubs) == 0 {
		logger.Warn("no articles found in listing")
		metrics.ObserveSource(kind, "empty")
		return nil
	}
	logger.Info("articles found", zap.Int("count", len(stubs)))

	records := make([]crawler.Record, 0, len(stubs))
	for _, stub := range stubs {
		if record, ok := o.processArticle(ctx, c, src, session, stub, logger); ok {
			records = append(records, record)
		}
		if err := o.clock.Sleep(ctx, o.cfg.ArticleDelay); err != nil {
			logger.Warn("source interrupted", zap.Error(err))
			break
		}
	}

	outcome := "success"
	if len(records) == 0 {
		outcome = "no_records"
	}
	metrics.ObserveSource(kind, outcome)
	return records
}

func (o *Orchestrator) openPage(ctx context.Context) (crawler.Page, error) {
	if o.browser == nil {
		return nil, crawler.ErrRendererDisabled
	}
	return o.browser.NewPage(ctx)
}

func (o *Orchestrator) processArticle(
	ctx context.Context,
	c crawler.Crawler,
	src crawler.Source,
	session crawler.Session,
	stub crawler.ArticleStub,
	logger *zap.Logger,
) (crawler.Record, bool) {
	logger = logger.With(zap.String("url", stub.Link))

	content, ok := c.FetchArticleContent(ctx, stub.Link, src, session).Get()
	if !ok || content.Empty() {
		logger.Warn("no content extracted")
		metrics.ObserveArticle(src.Name, "no_content")
		return crawler.Record{}, false
	}

	result, err := o.summarizer.Summarize(ctx, content.String())
	if err != nil {
		logger.Error("summarize failed", zap.Error(err))
		outcome := "summarize_error"
		if errors.Is(err, context.Canceled) {
			outcome = "cancelled"
		}
		metrics.ObserveArticle(src.Name, outcome)
		return crawler.Record{}, false
	}
	summary, ok := result.Get()
	if !ok {
		logger.Info("content too short to summarize", zap.Int("chars", content.Len()))
		metrics.ObserveArticle(src.Name, "too_short")
		return crawler.Record{}, false
	}

	metrics.ObserveArticle(src.Name, "success")
	logger.Info("article summarized", zap.String("title", stub.Title))
	return NewRecord(src, stub, summary, o.clock.Now()), true
}

// NewRecord builds the output record for one summarized article.
func NewRecord(src crawler.Source, stub crawler.ArticleStub, summary crawler.Summary, at time.Time) crawler.Record {
	return crawler.Record{
		Site:        src.Name,
		Category:    src.Category,
		Title:       stub.Title,
		Link:        stub.Link,
		SummaryEN:   summary.Summary.EN,
		SummaryZH:   summary.Summary.ZH,
		KeyPointsEN: summary.KeyPoints.EN,
		KeyPointsZH: summary.KeyPoints.ZH,
		Timestamp:   at.UTC(),
	}
}
