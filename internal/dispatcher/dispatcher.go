// Package dispatcher selects the transport crawler for each source.
package dispatcher

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/article-digest/internal/crawler"
	"github.com/JakeFAU/article-digest/internal/crawler/browser"
	"github.com/JakeFAU/article-digest/internal/crawler/feed"
	"github.com/JakeFAU/article-digest/internal/crawler/jsonapi"
	"github.com/JakeFAU/article-digest/internal/extract"
	"github.com/JakeFAU/article-digest/internal/headless/detector"
)

// ErrUnknownKind is returned for a Kind outside the closed set.
var ErrUnknownKind = errors.New("unknown source kind")

// Factory builds a crawler for one source batch. Crawlers with per-batch
// state, such as the feed content cache, are never shared between sources.
type Factory func() crawler.Crawler

// Dispatcher maps each source Kind onto exactly one crawler factory.
type Dispatcher struct {
	browser Factory
	feed    Factory
	api     Factory
}

// New creates a Dispatcher from explicit factories.
func New(browserFactory, feedFactory, apiFactory Factory) *Dispatcher {
	return &Dispatcher{
		browser: browserFactory,
		feed:    feedFactory,
		api:     apiFactory,
	}
}

// Deps are the shared collaborators the built-in crawlers need.
type Deps struct {
	Retry             *crawler.RetryPolicy
	Extractor         *extract.Extractor
	Logger            *zap.Logger
	MinEmbeddedLength int
	// Detector flags script-rendered feed articles; nil uses the heuristic detector.
	Detector feed.Detector
}

// NewDefault wires the browser, feed, and API crawlers.
func NewDefault(deps Deps) *Dispatcher {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	shells := deps.Detector
	if shells == nil {
		shells = detector.NewHeuristic(0)
	}
	return New(
		func() crawler.Crawler {
			return browser.New(deps.Retry, deps.Extractor, logger.Named("browser"))
		},
		func() crawler.Crawler {
			return feed.New(deps.Retry, deps.Extractor, logger.Named("feed"),
				feed.WithMinEmbeddedLength(deps.MinEmbeddedLength),
				feed.WithDetector(shells),
			)
		},
		func() crawler.Crawler {
			return jsonapi.New(deps.Retry, logger.Named("api"))
		},
	)
}

// For returns a fresh crawler for src. The result depends only on the
// source's flags, through its resolved Kind.
func (d *Dispatcher) For(src crawler.Source) (crawler.Crawler, error) {
	kind := src.ResolvedKind()
	var factory Factory
	switch kind {
	case crawler.KindAPI:
		factory = d.api
	case crawler.KindRSS:
		factory = d.feed
	case crawler.KindBrowser:
		factory = d.browser
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	if factory == nil {
		return nil, fmt.Errorf("no crawler registered for %s sources", kind)
	}
	return factory(), nil
}
