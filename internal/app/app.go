// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/article-digest/internal/api"
	"github.com/JakeFAU/article-digest/internal/clock/system"
	"github.com/JakeFAU/article-digest/internal/config"
	"github.com/JakeFAU/article-digest/internal/crawler"
	"github.com/JakeFAU/article-digest/internal/dispatcher"
	"github.com/JakeFAU/article-digest/internal/extract"
	collyfetcher "github.com/JakeFAU/article-digest/internal/fetcher/colly"
	"github.com/JakeFAU/article-digest/internal/fetcher/headless"
	"github.com/JakeFAU/article-digest/internal/id/uuid"
	"github.com/JakeFAU/article-digest/internal/metrics"
	"github.com/JakeFAU/article-digest/internal/orchestrator"
	"github.com/JakeFAU/article-digest/internal/policy/ratelimit"
	"github.com/JakeFAU/article-digest/internal/sink"
	"github.com/JakeFAU/article-digest/internal/sink/feed"
	"github.com/JakeFAU/article-digest/internal/sink/gcs"
	"github.com/JakeFAU/article-digest/internal/sink/local"
	"github.com/JakeFAU/article-digest/internal/sink/postgres"
	"github.com/JakeFAU/article-digest/internal/sink/pubsub"
	"github.com/JakeFAU/article-digest/internal/summarizer"
)

const (
	shutdownTimeout  = 10 * time.Second
	sinkWriteTimeout = 30 * time.Second
)

// App holds all the shared, long-lived services for the application. It is
// initialized once at startup; every crawl shares its fetcher, browser and sinks.
type App struct {
	cfg          config.Config
	logger       *zap.Logger
	browser      *headless.Browser
	orchestrator *orchestrator.Orchestrator
	latest       *sink.Latest
	sinks        *sink.Multi
	server       *api.Server
}

// New builds every service named by cfg. It fails fast if a configured sink
// cannot be initialized.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	logger.Info("initializing application services")

	clock := system.New()
	retry := crawler.NewExponentialRetryPolicy(
		crawler.WithMaxAttempts(cfg.Crawler.MaxRetries),
		crawler.WithClock(clock),
		crawler.WithLogger(logger.Named("retry")),
		crawler.WithTransitions(func(op string, state crawler.AttemptState, _ int) {
			metrics.ObserveRetryTransition(op, string(state))
		}),
	)
	extractor := extract.New(
		extract.WithMinLength(cfg.Crawler.ExtractMinLength),
		extract.WithAncestorDepth(cfg.Crawler.AncestorDepth),
	)

	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.HTTP.RateLimitRPS,
		DefaultBurst: cfg.HTTP.RateLimitBurst,
		HostRPS:      cfg.HTTP.HostRPS,
	})
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:        cfg.HTTP.UserAgent,
		Timeout:          cfg.HTTP.Timeout,
		CloudflareBypass: cfg.HTTP.CloudflareBypass,
		MaxBodySize:      cfg.HTTP.MaxBodySize,
	}, collyfetcher.WithLimiter(limiter), collyfetcher.WithLogger(logger.Named("http")))

	a := &App{
		cfg:    cfg,
		logger: logger,
		latest: sink.NewLatest(),
	}

	var renderer crawler.Renderer = headless.NewDisabled()
	if cfg.Browser.Enabled {
		a.browser = headless.New(headless.Config{
			ExecPath:          cfg.Browser.ExecPath,
			Headless:          cfg.Browser.Headless,
			UserAgent:         cfg.HTTP.UserAgent,
			NavigationTimeout: cfg.Browser.NavigationTimeout,
			WaitTimeout:       cfg.Browser.WaitTimeout,
			OverlayTimeout:    cfg.Browser.OverlayTimeout,
			ScrollPause:       cfg.Browser.ScrollPause,
		}, logger.Named("browser"))
		renderer = a.browser
	} else {
		logger.Info("browser disabled; browser sources will be skipped")
	}

	model, err := newModel(cfg.Summarizer)
	if err != nil {
		return nil, err
	}

	d := dispatcher.NewDefault(dispatcher.Deps{
		Retry:             retry,
		Extractor:         extractor,
		Logger:            logger,
		MinEmbeddedLength: cfg.Feed.MinEmbeddedLength,
	})
	a.orchestrator = orchestrator.New(
		d,
		summarizer.New(model, logger.Named("summarizer")),
		clock,
		uuid.New(),
		fetcher,
		renderer,
		orchestrator.Config{ArticleDelay: cfg.Crawler.ArticleDelay},
		logger.Named("orchestrator"),
	)

	outputs, err := buildSinks(ctx, cfg.Output, logger)
	if err != nil {
		a.closeBrowser()
		return nil, err
	}
	a.sinks = sink.NewMulti(logger, append([]crawler.Sink{a.latest}, outputs...)...)

	a.server = api.NewServer(a.latest, api.Config{
		APIKey: cfg.Metrics.APIKey,
		Feed:   cfg.Output.Feed.Meta,
	}, logger.Named("api"))

	logger.Info("application services initialized", zap.Int("sinks", a.sinks.Len()))
	return a, nil
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Config returns the configuration the app was built from.
func (a *App) Config() config.Config {
	return a.cfg
}

// Handler exposes the metrics and digest API routes.
func (a *App) Handler() http.Handler {
	return a.server.Handler()
}

// Latest returns the most recent digest produced by this process.
func (a *App) Latest() (crawler.Digest, bool) {
	return a.latest.Get()
}

// Crawl runs one batch over the named categories (all when empty) and
// hands the digest to every sink. A cancelled batch still persists the
// records collected before cancellation.
func (a *App) Crawl(ctx context.Context, categories ...string) (crawler.Digest, error) {
	sources, err := a.cfg.Sources(categories...)
	if err != nil {
		return crawler.Digest{}, err
	}
	if len(sources) == 0 {
		return crawler.Digest{}, errors.New("no sources configured")
	}
	if config.NeedsBrowser(sources) && a.browser == nil {
		a.logger.Warn("selected sources need a browser but it is disabled")
	}

	digest, err := a.orchestrator.Run(ctx, sources)
	if err != nil {
		return crawler.Digest{}, err
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sinkWriteTimeout)
	defer cancel()
	if err := a.sinks.Write(writeCtx, digest); err != nil {
		return digest, fmt.Errorf("write digest: %w", err)
	}
	a.logger.Info("digest written",
		zap.String("run_id", digest.RunID),
		zap.Int("articles", len(digest.Articles)),
	)
	return digest, nil
}

// Serve runs the HTTP server on cfg.Metrics.ListenAddr until ctx ends. It
// returns nil immediately when no address is configured.
func (a *App) Serve(ctx context.Context) error {
	addr := a.cfg.Metrics.ListenAddr
	if addr == "" {
		return nil
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("http server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// Close shuts down every service in the App container.
func (a *App) Close(ctx context.Context) error {
	a.logger.Info("shutting down application services")
	err := a.sinks.Close(ctx)
	a.closeBrowser()
	return err
}

func (a *App) closeBrowser() {
	if a.browser != nil {
		a.browser.Close()
	}
}

func newModel(cfg config.SummarizerConfig) (summarizer.Model, error) {
	switch cfg.Provider {
	case config.ProviderLead, "":
		return summarizer.Lead{}, nil
	case config.ProviderHuggingFace:
		return summarizer.NewHuggingFace(summarizer.HFConfig{
			Endpoint:         cfg.Endpoint,
			Token:            cfg.Token,
			SummaryModel:     cfg.SummaryModel,
			TranslationModel: cfg.TranslationModel,
			Timeout:          cfg.Timeout,
		}, nil), nil
	default:
		return nil, fmt.Errorf("unknown summarizer provider: %s", cfg.Provider)
	}
}

// buildSinks initializes every output whose required setting is present.
func buildSinks(ctx context.Context, cfg config.OutputConfig, logger *zap.Logger) ([]crawler.Sink, error) {
	var built []crawler.Sink
	fail := func(err error) ([]crawler.Sink, error) {
		for _, s := range built {
			_ = s.Close(ctx)
		}
		return nil, err
	}

	if cfg.Local.Dir != "" {
		s, err := local.New(cfg.Local, logger.Named("sink.local"))
		if err != nil {
			return fail(fmt.Errorf("init local sink: %w", err))
		}
		built = append(built, s)
	}
	if cfg.Feed.Path != "" {
		s, err := feed.New(cfg.Feed, logger.Named("sink.feed"))
		if err != nil {
			return fail(fmt.Errorf("init feed sink: %w", err))
		}
		built = append(built, s)
	}
	if cfg.GCS.Bucket != "" {
		client, err := storage.NewClient(ctx)
		if err != nil {
			return fail(fmt.Errorf("create storage client: %w", err))
		}
		s, err := gcs.New(client, cfg.GCS, logger.Named("sink.gcs"))
		if err != nil {
			_ = client.Close()
			return fail(fmt.Errorf("init gcs sink: %w", err))
		}
		built = append(built, s)
	}
	if cfg.PubSub.Topic != "" {
		s, err := pubsub.New(ctx, cfg.PubSub, logger.Named("sink.pubsub"))
		if err != nil {
			return fail(fmt.Errorf("init pubsub sink: %w", err))
		}
		built = append(built, s)
	}
	if cfg.Postgres.DSN != "" {
		s, err := postgres.New(ctx, cfg.Postgres, logger.Named("sink.postgres"))
		if err != nil {
			return fail(fmt.Errorf("init postgres sink: %w", err))
		}
		built = append(built, s)
		if err := s.Migrate(ctx); err != nil {
			return fail(fmt.Errorf("migrate postgres sink: %w", err))
		}
	}
	return built, nil
}
