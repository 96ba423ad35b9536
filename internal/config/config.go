// Package config loads and validates digest configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/samber/lo"
	"github.com/spf13/viper"

	"github.com/JakeFAU/article-digest/internal/crawler"
	"github.com/JakeFAU/article-digest/internal/sink/feed"
	"github.com/JakeFAU/article-digest/internal/sink/gcs"
	"github.com/JakeFAU/article-digest/internal/sink/local"
	"github.com/JakeFAU/article-digest/internal/sink/postgres"
	"github.com/JakeFAU/article-digest/internal/sink/pubsub"
)

// EnvPrefix namespaces environment overrides, e.g. DIGEST_CRAWLER_ARTICLE_DELAY.
const EnvPrefix = "DIGEST"

// Summarizer providers.
const (
	ProviderLead        = "lead"
	ProviderHuggingFace = "huggingface"
)

// ErrUnknownCategory is returned when a requested category is not in the catalog.
var ErrUnknownCategory = errors.New("unknown category")

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Crawler    CrawlerConfig               `mapstructure:"crawler"`
	HTTP       HTTPConfig                  `mapstructure:"http"`
	Browser    BrowserConfig               `mapstructure:"browser"`
	Feed       FeedConfig                  `mapstructure:"feed"`
	Summarizer SummarizerConfig            `mapstructure:"summarizer"`
	Output     OutputConfig                `mapstructure:"output"`
	Metrics    MetricsConfig               `mapstructure:"metrics"`
	Logging    LoggingConfig               `mapstructure:"logging"`
	Sentry     SentryConfig                `mapstructure:"sentry"`
	Schedule   ScheduleConfig              `mapstructure:"schedule"`
	Categories map[string][]crawler.Source `mapstructure:"categories"`
}

// CrawlerConfig governs the batch pipeline.
type CrawlerConfig struct {
	MaxRetries       int           `mapstructure:"max_retries"`
	ArticlesPerSite  int           `mapstructure:"articles_per_site"`
	ArticleDelay     time.Duration `mapstructure:"article_delay"`
	ExtractMinLength int           `mapstructure:"extract_min_length"`
	AncestorDepth    int           `mapstructure:"ancestor_depth"`
}

// HTTPConfig configures the plain HTTP fetcher.
type HTTPConfig struct {
	Timeout          time.Duration      `mapstructure:"timeout"`
	UserAgent        string             `mapstructure:"user_agent"`
	CloudflareBypass bool               `mapstructure:"cloudflare_bypass"`
	MaxBodySize      int                `mapstructure:"max_body_size"`
	RateLimitRPS     float64            `mapstructure:"rate_limit_rps"`
	RateLimitBurst   int                `mapstructure:"rate_limit_burst"`
	HostRPS          map[string]float64 `mapstructure:"host_rps"`
}

// BrowserConfig configures the chromedp renderer.
type BrowserConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	ExecPath          string        `mapstructure:"exec_path"`
	Headless          bool          `mapstructure:"headless"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	WaitTimeout       time.Duration `mapstructure:"wait_timeout"`
	OverlayTimeout    time.Duration `mapstructure:"overlay_timeout"`
	ScrollPause       time.Duration `mapstructure:"scroll_pause"`
}

// FeedConfig tunes the feed crawler.
type FeedConfig struct {
	MinEmbeddedLength int `mapstructure:"min_embedded_length"`
}

// SummarizerConfig selects and configures the summarization model.
type SummarizerConfig struct {
	Provider         string        `mapstructure:"provider"`
	Token            string        `mapstructure:"token"`
	Endpoint         string        `mapstructure:"endpoint"`
	SummaryModel     string        `mapstructure:"summary_model"`
	TranslationModel string        `mapstructure:"translation_model"`
	Timeout          time.Duration `mapstructure:"timeout"`
}

// OutputConfig enables each sink whose required field is set.
type OutputConfig struct {
	Local    local.Config    `mapstructure:"local"`
	GCS      gcs.Config      `mapstructure:"gcs"`
	PubSub   pubsub.Config   `mapstructure:"pubsub"`
	Postgres postgres.Config `mapstructure:"postgres"`
	Feed     feed.Config     `mapstructure:"feed"`
}

// MetricsConfig controls the HTTP server for metrics and the digest API.
type MetricsConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
	APIKey     string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// SentryConfig forwards error logs to Sentry when DSN is set.
type SentryConfig struct {
	DSN         string `mapstructure:"dsn"`
	Environment string `mapstructure:"environment"`
}

// ScheduleConfig drives the schedule command.
type ScheduleConfig struct {
	Cron       string   `mapstructure:"cron"`
	Categories []string `mapstructure:"categories"`
}

// Load builds a Config from .env files, the config file, and the environment.
func Load(path string) (Config, error) {
	if err := LoadDotEnv(); err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// LoadDotEnv loads KEY=value pairs from the given files (default ".env")
// without overriding variables already set. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("crawler.max_retries", crawler.DefaultMaxAttempts)
	v.SetDefault("crawler.articles_per_site", crawler.DefaultArticlesPerSite)
	v.SetDefault("crawler.article_delay", "2s")
	v.SetDefault("crawler.extract_min_length", 200)
	v.SetDefault("crawler.ancestor_depth", 3)
	v.SetDefault("http.timeout", "30s")
	v.SetDefault("http.user_agent", crawler.DefaultUserAgent)
	v.SetDefault("http.cloudflare_bypass", false)
	v.SetDefault("http.max_body_size", 10<<20)
	v.SetDefault("http.rate_limit_rps", 1.0)
	v.SetDefault("http.rate_limit_burst", 1)
	v.SetDefault("browser.enabled", true)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.navigation_timeout", "30s")
	v.SetDefault("browser.wait_timeout", "10s")
	v.SetDefault("browser.overlay_timeout", "2s")
	v.SetDefault("browser.scroll_pause", "1s")
	v.SetDefault("feed.min_embedded_length", 200)
	v.SetDefault("summarizer.provider", ProviderLead)
	v.SetDefault("summarizer.timeout", "60s")
	v.SetDefault("output.local.dir", "output")
	v.SetDefault("output.local.file_name", local.DefaultFileName)
	v.SetDefault("output.postgres.table", postgres.DefaultTable)
	v.SetDefault("output.feed.format", feed.FormatRSS)
	v.SetDefault("output.feed.title", "Article digest")
	v.SetDefault("logging.development", true)
	v.SetDefault("schedule.cron", "0 7 * * *")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	var errs []error
	if c.Crawler.MaxRetries < 1 {
		errs = append(errs, errors.New("crawler.max_retries must be >= 1"))
	}
	if c.Crawler.ArticlesPerSite < 1 || c.Crawler.ArticlesPerSite > crawler.MaxArticlesPerSite {
		errs = append(errs, fmt.Errorf("crawler.articles_per_site must be within 1..%d", crawler.MaxArticlesPerSite))
	}
	if c.Crawler.ArticleDelay < 0 {
		errs = append(errs, errors.New("crawler.article_delay must be >= 0"))
	}
	if c.HTTP.Timeout <= 0 {
		errs = append(errs, errors.New("http.timeout must be > 0"))
	}
	switch c.Summarizer.Provider {
	case ProviderLead:
	case ProviderHuggingFace:
		if c.Summarizer.Token == "" {
			errs = append(errs, errors.New("summarizer.token is required for the huggingface provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("summarizer.provider %q must be %q or %q", c.Summarizer.Provider, ProviderLead, ProviderHuggingFace))
	}
	if c.Output.PubSub.Topic != "" && c.Output.PubSub.ProjectID == "" {
		errs = append(errs, errors.New("output.pubsub.project_id is required with a topic"))
	}
	if c.Schedule.Cron != "" {
		if _, err := cron.ParseStandard(c.Schedule.Cron); err != nil {
			errs = append(errs, fmt.Errorf("schedule.cron: %w", err))
		}
	}
	if _, err := c.Sources(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// CategoryNames returns the catalog's categories in sorted order.
func (c Config) CategoryNames() []string {
	names := lo.Keys(c.Categories)
	sort.Strings(names)
	return names
}

// Sources returns the normalized descriptors for the requested categories,
// in request order, or for every category when none are named. A source
// listed under several categories is returned once.
func (c Config) Sources(categories ...string) ([]crawler.Source, error) {
	if len(categories) == 0 {
		categories = c.CategoryNames()
	}
	var (
		out  []crawler.Source
		errs []error
	)
	for _, category := range lo.Uniq(lo.Map(categories, func(s string, _ int) string {
		return strings.ToLower(strings.TrimSpace(s))
	})) {
		descriptors, ok := c.Categories[category]
		if !ok {
			errs = append(errs, fmt.Errorf("%w: %q (known: %s)", ErrUnknownCategory, category, strings.Join(c.CategoryNames(), ", ")))
			continue
		}
		for _, d := range descriptors {
			d.Category = category
			if d.ArticlesPerSite == 0 {
				d.ArticlesPerSite = c.Crawler.ArticlesPerSite
			}
			src, err := d.Normalize()
			if err != nil {
				errs = append(errs, fmt.Errorf("category %s: %w", category, err))
				continue
			}
			out = append(out, src)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return lo.UniqBy(out, func(s crawler.Source) string {
		return s.Name
	}), nil
}

// NeedsBrowser reports whether any source opens browser pages.
func NeedsBrowser(sources []crawler.Source) bool {
	return lo.SomeBy(sources, func(s crawler.Source) bool {
		return s.NeedsPage()
	})
}
