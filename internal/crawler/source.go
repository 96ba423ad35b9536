package crawler

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Article limits applied when a source does not set its own.
const (
	DefaultArticlesPerSite = 2
	MaxArticlesPerSite     = 20
	DefaultScrollTimes     = 3
)

// Kind is the transport used to acquire a source.
type Kind int

// Kinds are resolved once per source, in priority order api > rss > browser.
// The zero value means the Kind has not been resolved yet.
const (
	KindUnknown Kind = iota
	KindBrowser
	KindRSS
	KindAPI
)

func (k Kind) String() string {
	switch k {
	case KindUnknown:
		return "unknown"
	case KindBrowser:
		return "browser"
	case KindRSS:
		return "rss"
	case KindAPI:
		return "api"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ResolveKind maps the descriptor flags onto exactly one Kind.
func ResolveKind(isAPI, isRSS bool) Kind {
	switch {
	case isAPI:
		return KindAPI
	case isRSS:
		return KindRSS
	default:
		return KindBrowser
	}
}

// APISettings configures the JSON adapter for API sources. Paths use gjson syntax.
type APISettings struct {
	Adapter      string `mapstructure:"adapter"`
	ItemsPath    string `mapstructure:"items_path"`
	TitlePath    string `mapstructure:"title_path"`
	LinkPath     string `mapstructure:"link_path"`
	LinkTemplate string `mapstructure:"link_template"`
	ContentPath  string `mapstructure:"content_path"`
}

// Source is the static descriptor for one content source. It is built by the
// catalog loader and never mutated afterwards; crawlers receive copies.
type Source struct {
	Name             string            `mapstructure:"name"`
	Category         string            `mapstructure:"category"`
	URL              string            `mapstructure:"url"`
	BaseURL          string            `mapstructure:"base_url"`
	IsRSS            bool              `mapstructure:"is_rss"`
	IsAPI            bool              `mapstructure:"is_api"`
	RequiresBrowser  bool              `mapstructure:"requires_browser"`
	NeedsJS          bool              `mapstructure:"needs_js"`
	ArticleSelector  string            `mapstructure:"article_selector"`
	TitleSelector    string            `mapstructure:"title_selector"`
	LinkSelector     string            `mapstructure:"link_selector"`
	ContentSelector  string            `mapstructure:"content_selector"`
	WaitFor          string            `mapstructure:"wait_for"`
	ScrollTimes      int               `mapstructure:"scroll_times"`
	ArticlesPerSite  int               `mapstructure:"articles_per_site"`
	IsolateArticles  bool              `mapstructure:"isolate_articles"`
	FeedContentField string            `mapstructure:"rss_content_field"`
	Headers          map[string]string `mapstructure:"headers"`
	API              APISettings       `mapstructure:"api"`

	// Kind is computed by Normalize. Use ResolvedKind when the source may not
	// have been normalized.
	Kind Kind `mapstructure:"-"`
}

// ResolvedKind returns Kind, or the Kind implied by the flags when unset.
func (s Source) ResolvedKind() Kind {
	if s.Kind != KindUnknown {
		return s.Kind
	}
	return ResolveKind(s.IsAPI, s.IsRSS)
}

// Normalize fills defaults, resolves the Kind, and validates the descriptor.
func (s Source) Normalize() (Source, error) {
	s.Name = strings.TrimSpace(s.Name)
	s.URL = strings.TrimSpace(s.URL)
	s.BaseURL = strings.TrimSpace(s.BaseURL)
	if s.ArticlesPerSite == 0 {
		s.ArticlesPerSite = DefaultArticlesPerSite
	}
	if s.ScrollTimes == 0 {
		s.ScrollTimes = DefaultScrollTimes
	}
	s.Kind = ResolveKind(s.IsAPI, s.IsRSS)
	return s, s.Validate()
}

// Validate checks the descriptor for values the crawlers cannot work with.
func (s Source) Validate() error {
	var errs []error
	if s.Name == "" {
		errs = append(errs, errors.New("name must be set"))
	}
	if !isAbsoluteHTTP(s.URL) {
		errs = append(errs, fmt.Errorf("url %q must be an absolute http(s) url", s.URL))
	}
	if s.BaseURL != "" && !isAbsoluteHTTP(s.BaseURL) {
		errs = append(errs, fmt.Errorf("base_url %q must be an absolute http(s) url", s.BaseURL))
	}
	if s.ArticlesPerSite < 1 || s.ArticlesPerSite > MaxArticlesPerSite {
		errs = append(errs, fmt.Errorf("articles_per_site must be within 1..%d", MaxArticlesPerSite))
	}
	if s.ScrollTimes < 0 {
		errs = append(errs, errors.New("scroll_times must be >= 0"))
	}
	if s.ResolvedKind() == KindBrowser && (s.ArticleSelector == "" || s.TitleSelector == "" || s.LinkSelector == "") {
		errs = append(errs, errors.New("browser sources need article, title and link selectors"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("source %q: %w", s.Name, err)
	}
	return nil
}

// NeedsPage reports whether acquiring the source opens browser pages.
func (s Source) NeedsPage() bool {
	kind := s.ResolvedKind()
	return kind == KindBrowser || (kind == KindRSS && s.RequiresBrowser)
}

// Host returns the lowercase hostname of the listing URL.
func (s Source) Host() string {
	return hostOf(s.URL)
}

func isAbsoluteHTTP(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
