// Package extract pulls readable article text out of HTML documents using an
// ordered chain of goquery strategies.
package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/samber/lo"
	"github.com/samber/mo"

	"github.com/JakeFAU/article-digest/internal/crawler"
)

// Defaults applied by New.
const (
	DefaultMinLength     = 200
	DefaultAncestorDepth = 3
)

// noiseSelectors are removed from every document before any strategy runs.
const noiseSelectors = "script, style, iframe, nav, noscript, template"

const headingSelectors = "h2, h3"

// GenericSelectors are tried after the caller's selectors.
var GenericSelectors = []string{"article", "main", "[role=main]", "div.post-content", "div.entry-content"}

// Strategy locates and reads article content in a parsed document.
type Strategy interface {
	Name() string
	Apply(doc *goquery.Document) mo.Option[crawler.ArticleContent]
}

// Extractor runs strategies in order and stops at the first result of at
// least minLength characters. Shorter non-empty results are kept and
// returned when nothing better turns up. A document where every strategy
// misses yields None.
type Extractor struct {
	minLength     int
	ancestorDepth int
	generic       []string
}

// Option customizes an Extractor.
type Option func(*Extractor)

// WithMinLength sets the length a result needs to end the chain early.
func WithMinLength(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.minLength = n
		}
	}
}

// WithAncestorDepth bounds how many parents the ancestor scan visits.
func WithAncestorDepth(n int) Option {
	return func(e *Extractor) {
		if n >= 0 {
			e.ancestorDepth = n
		}
	}
}

// WithGenericSelectors replaces the selectors tried after the caller's.
func WithGenericSelectors(selectors []string) Option {
	return func(e *Extractor) {
		e.generic = selectors
	}
}

// New returns an Extractor with the default chain settings.
func New(opts ...Option) *Extractor {
	e := &Extractor{
		minLength:     DefaultMinLength,
		ancestorDepth: DefaultAncestorDepth,
		generic:       GenericSelectors,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Plan returns the ordered strategies for the given selectors, most specific first.
func (e *Extractor) Plan(selectors ...string) []Strategy {
	plan := make([]Strategy, 0, 2*len(selectors)+len(e.generic))
	for _, s := range compact(selectors) {
		plan = append(plan, Selector{Query: s})
	}
	for _, s := range compact(selectors) {
		plan = append(plan, Ancestor{Query: s, MaxDepth: e.ancestorDepth, MinLength: e.minLength})
	}
	for _, s := range e.generic {
		plan = append(plan, Selector{Query: s})
	}
	return plan
}

// Extract parses body and runs the strategy chain for selectors.
func (e *Extractor) Extract(body []byte, selectors ...string) mo.Option[crawler.ArticleContent] {
	doc, err := Parse(body)
	if err != nil {
		return mo.None[crawler.ArticleContent]()
	}
	return e.Run(doc, selectors...)
}

// Run executes the chain against an already parsed document.
func (e *Extractor) Run(doc *goquery.Document, selectors ...string) mo.Option[crawler.ArticleContent] {
	best := mo.None[crawler.ArticleContent]()
	for _, strategy := range e.Plan(selectors...) {
		content, ok := strategy.Apply(doc).Get()
		if !ok {
			continue
		}
		if content.Len() >= e.minLength {
			return mo.Some(content)
		}
		if best.IsAbsent() {
			best = mo.Some(content)
		}
	}
	return best
}

// Parse builds a goquery document and strips non-content elements.
func Parse(body []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	doc.Find(noiseSelectors).Remove()
	return doc, nil
}

// FromHTML converts an HTML fragment, such as a feed entry body, into content.
func FromHTML(fragment string) crawler.ArticleContent {
	if strings.TrimSpace(fragment) == "" {
		return crawler.ArticleContent{}
	}
	doc, err := Parse([]byte(fragment))
	if err != nil {
		return crawler.TextContent(fragment)
	}
	return Read(doc.Selection)
}

// Selector reads the first element matching Query.
type Selector struct {
	Query string
}

// Name implements Strategy.
func (s Selector) Name() string { return "selector:" + s.Query }

// Apply implements Strategy.
func (s Selector) Apply(doc *goquery.Document) mo.Option[crawler.ArticleContent] {
	root := doc.Find(s.Query).First()
	if root.Length() == 0 {
		return mo.None[crawler.ArticleContent]()
	}
	return nonEmpty(Read(root))
}

// Ancestor widens a match that is too thin on its own: it walks up to
// MaxDepth parents of the first Query match and reads the first one holding
// at least MinLength characters.
type Ancestor struct {
	Query     string
	MaxDepth  int
	MinLength int
}

// Name implements Strategy.
func (a Ancestor) Name() string { return "ancestor:" + a.Query }

// Apply implements Strategy.
func (a Ancestor) Apply(doc *goquery.Document) mo.Option[crawler.ArticleContent] {
	node := doc.Find(a.Query).First()
	if node.Length() == 0 {
		return mo.None[crawler.ArticleContent]()
	}
	for depth := 0; depth < a.MaxDepth; depth++ {
		node = node.Parent()
		if node.Length() == 0 || goquery.NodeName(node) == "body" || goquery.NodeName(node) == "html" {
			break
		}
		content := Read(node)
		if content.Len() >= a.MinLength {
			return mo.Some(content)
		}
	}
	return mo.None[crawler.ArticleContent]()
}

// Read converts a subtree into content: heading sections when the subtree
// holds two or more h2/h3 headings, else its paragraphs, else its text.
func Read(root *goquery.Selection) crawler.ArticleContent {
	if sections := readSections(root); len(sections) > 0 {
		if content := crawler.SectionedContent(sections); !content.Empty() {
			return content
		}
	}
	paragraphs := make([]string, 0)
	root.Find("p").Each(func(_ int, p *goquery.Selection) {
		if text := collapse(p.Text()); text != "" {
			paragraphs = append(paragraphs, text)
		}
	})
	if len(paragraphs) > 0 {
		return crawler.TextContent(strings.Join(paragraphs, " "))
	}
	return crawler.TextContent(collapse(root.Text()))
}

func readSections(root *goquery.Selection) []crawler.Section {
	headings := root.Find(headingSelectors)
	if headings.Length() < 2 {
		return nil
	}
	container := headings.First().Parent()
	if container.ChildrenFiltered(headingSelectors).Length() < 2 {
		return nil
	}

	var (
		sections []crawler.Section
		current  crawler.Section
		parts    []string
	)
	flush := func() {
		current.Body = strings.Join(parts, "\n")
		if current.Title != "" || current.Body != "" {
			sections = append(sections, current)
		}
		current, parts = crawler.Section{}, nil
	}
	container.Children().Each(func(_ int, child *goquery.Selection) {
		if child.Is(headingSelectors) {
			flush()
			current.Title = collapse(child.Text())
			return
		}
		if text := collapse(child.Text()); text != "" {
			parts = append(parts, text)
		}
	})
	flush()
	return sections
}

func nonEmpty(content crawler.ArticleContent) mo.Option[crawler.ArticleContent] {
	if content.Empty() {
		return mo.None[crawler.ArticleContent]()
	}
	return mo.Some(content)
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func compact(selectors []string) []string {
	trimmed := lo.Map(selectors, func(s string, _ int) string { return strings.TrimSpace(s) })
	return lo.Uniq(lo.Filter(trimmed, func(s string, _ int) bool { return s != "" }))
}
