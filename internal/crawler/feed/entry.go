package feed

import (
	"net/url"
	"strings"

	"github.com/mmcdole/gofeed"
)

// EntryContent returns the richest body an entry carries: the named field
// when set, then content:encoded, content, description, and the iTunes summary.
func EntryContent(item *gofeed.Item, field string) string {
	if field != "" {
		if v := namedField(item, field); v != "" {
			return v
		}
	}
	if v := extensionValue(item, "content", "encoded"); v != "" {
		return v
	}
	if v := strings.TrimSpace(item.Content); v != "" {
		return v
	}
	if v := strings.TrimSpace(item.Description); v != "" {
		return v
	}
	if item.ITunesExt != nil {
		return strings.TrimSpace(item.ITunesExt.Summary)
	}
	return ""
}

func namedField(item *gofeed.Item, field string) string {
	switch strings.ToLower(field) {
	case "content":
		return strings.TrimSpace(item.Content)
	case "description", "summary":
		return strings.TrimSpace(item.Description)
	case "content:encoded", "content_encoded", "encoded":
		return extensionValue(item, "content", "encoded")
	}
	if prefix, name, ok := strings.Cut(field, ":"); ok {
		return extensionValue(item, prefix, name)
	}
	if item.Custom != nil {
		return strings.TrimSpace(item.Custom[field])
	}
	return ""
}

func extensionValue(item *gofeed.Item, prefix, name string) string {
	if item.Extensions == nil {
		return ""
	}
	for _, e := range item.Extensions[prefix][name] {
		if v := strings.TrimSpace(e.Value); v != "" {
			return v
		}
	}
	return ""
}

// entryLink prefers the explicit link, then alternate links, then a GUID
// that looks like a URL.
func entryLink(item *gofeed.Item) string {
	if link := strings.TrimSpace(item.Link); link != "" {
		return link
	}
	for _, link := range item.Links {
		if link = strings.TrimSpace(link); link != "" {
			return link
		}
	}
	if strings.HasPrefix(item.GUID, "http") {
		return item.GUID
	}
	return ""
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
