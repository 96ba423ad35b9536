package jsonapi

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/JakeFAU/article-digest/internal/crawler"
)

// Adapter names accepted in the api.adapter source setting.
const (
	AdapterOpenAI = "openai"
	AdapterPath   = "path"
)

// Item is one article read from a JSON listing.
type Item struct {
	Title   string
	Link    string
	Content string
}

// Adapter maps one response schema onto articles.
type Adapter interface {
	Name() string
	// Items returns nil when the body does not have the expected shape.
	Items(body []byte) []Item
	// Embedded reports whether listings carry full bodies, making a second
	// request per article unnecessary.
	Embedded() bool
}

// AdapterFor picks the adapter for src: an explicit api.adapter wins,
// then a host match, then the generic path adapter.
func AdapterFor(src crawler.Source) Adapter {
	switch strings.ToLower(src.API.Adapter) {
	case AdapterOpenAI:
		return openAIAdapter{}
	case AdapterPath:
		return newPathAdapter(src.API)
	}
	host := src.Host()
	if host == "openai.com" || strings.HasSuffix(host, ".openai.com") {
		return openAIAdapter{}
	}
	return newPathAdapter(src.API)
}

// openAIAdapter reads the openai.com news listing: items[] with title, slug, and content.
type openAIAdapter struct{}

func (openAIAdapter) Name() string   { return AdapterOpenAI }
func (openAIAdapter) Embedded() bool { return true }

func (openAIAdapter) Items(body []byte) []Item {
	return pathAdapter{
		items:    "items",
		title:    "title",
		link:     "slug",
		template: "https://openai.com/blog/{}",
		content:  "content",
	}.Items(body)
}

// pathAdapter reads items with gjson paths.
type pathAdapter struct {
	items    string
	title    string
	link     string
	template string
	content  string
}

func newPathAdapter(s crawler.APISettings) pathAdapter {
	return pathAdapter{
		items:    orDefault(s.ItemsPath, "items"),
		title:    orDefault(s.TitlePath, "title"),
		link:     orDefault(s.LinkPath, "url"),
		template: s.LinkTemplate,
		content:  orDefault(s.ContentPath, "content"),
	}
}

func (pathAdapter) Name() string { return AdapterPath }

func (pathAdapter) Embedded() bool { return false }

func (p pathAdapter) Items(body []byte) []Item {
	if !gjson.ValidBytes(body) {
		return nil
	}
	list := gjson.GetBytes(body, p.items)
	if !list.IsArray() {
		return nil
	}
	items := make([]Item, 0, len(list.Array()))
	list.ForEach(func(_, value gjson.Result) bool {
		if !value.IsObject() {
			return true
		}
		link := strings.TrimSpace(value.Get(p.link).String())
		if link != "" && p.template != "" {
			link = strings.ReplaceAll(p.template, "{}", link)
		}
		items = append(items, Item{
			Title:   strings.TrimSpace(value.Get(p.title).String()),
			Link:    link,
			Content: strings.TrimSpace(value.Get(p.content).String()),
		})
		return true
	})
	return items
}

func orDefault(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
