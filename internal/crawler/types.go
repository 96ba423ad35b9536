package crawler

import (
	"net/http"
	"strings"
	"time"

	"github.com/samber/mo"
)

// ArticleStub is a listing-derived reference to an article prior to content fetch.
// Link is always absolute.
type ArticleStub struct {
	Title    string
	Link     string
	Embedded mo.Option[ArticleContent]
}

// Section is one heading-delimited block of an article body.
type Section struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// ArticleContent is extracted body text, either flat or segmented by headings.
type ArticleContent struct {
	Text     string
	Sections []Section
}

// TextContent wraps flat text.
func TextContent(text string) ArticleContent {
	return ArticleContent{Text: strings.TrimSpace(text)}
}

// SectionedContent wraps ordered sections, dropping those without a body.
func SectionedContent(sections []Section) ArticleContent {
	out := make([]Section, 0, len(sections))
	for _, s := range sections {
		body := strings.TrimSpace(s.Body)
		if body == "" {
			continue
		}
		out = append(out, Section{Title: strings.TrimSpace(s.Title), Body: body})
	}
	return ArticleContent{Sections: out}
}

// String flattens the content into plain text suitable for summarization.
func (c ArticleContent) String() string {
	if len(c.Sections) == 0 {
		return c.Text
	}
	parts := make([]string, 0, len(c.Sections))
	for _, s := range c.Sections {
		if s.Title == "" {
			parts = append(parts, s.Body)
			continue
		}
		parts = append(parts, s.Title+"\n"+s.Body)
	}
	return strings.Join(parts, "\n\n")
}

// Len reports the number of characters in the flattened content.
func (c ArticleContent) Len() int {
	return len([]rune(c.String()))
}

// Empty reports whether the content carries no text at all.
func (c ArticleContent) Empty() bool {
	return strings.TrimSpace(c.String()) == ""
}

// FetchRequest captures everything needed to fetch a URL over plain HTTP.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// RenderRequest captures one browser navigation.
type RenderRequest struct {
	URL     string
	Headers http.Header
	// WaitFor is awaited after load; a timeout is logged, not returned.
	WaitFor     string
	ScrollTimes int
	// DismissOverlays clicks away cookie/consent banners before scrolling.
	DismissOverlays bool
	// Raw returns the document response body instead of the rendered DOM.
	Raw bool
}

// FetchResponse is the listing or article document returned by a transport.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}

// Bilingual holds the same text in English and Chinese.
type Bilingual struct {
	EN string `json:"en"`
	ZH string `json:"zh"`
}

// KeyPoints holds per-chunk summaries in both languages.
type KeyPoints struct {
	EN []string `json:"en"`
	ZH []string `json:"zh"`
}

// Summary is the summarizer output for one article.
type Summary struct {
	Summary   Bilingual `json:"summary"`
	KeyPoints KeyPoints `json:"key_points"`
}

// Record is produced per processed article and handed to the sinks.
type Record struct {
	Site        string    `json:"site"`
	Category    string    `json:"category,omitempty"`
	Title       string    `json:"title"`
	Link        string    `json:"link"`
	SummaryEN   string    `json:"summary_en"`
	SummaryZH   string    `json:"summary_zh"`
	KeyPointsEN []string  `json:"key_points_en,omitempty"`
	KeyPointsZH []string  `json:"key_points_zh,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Digest is the output of one batch run.
type Digest struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"timestamp"`
	Articles   []Record  `json:"articles"`
}
