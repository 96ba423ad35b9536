package crawler

// ContentCache maps article links to content already embedded in a listing.
// Entries are consumed exactly once. A cache belongs to one crawler instance
// processing one source batch and is not safe for concurrent use.
type ContentCache struct {
	entries map[string]ArticleContent
}

// NewContentCache returns an empty cache.
func NewContentCache() *ContentCache {
	return &ContentCache{entries: make(map[string]ArticleContent)}
}

// Put stores content for link, replacing any earlier entry.
func (c *ContentCache) Put(link string, content ArticleContent) {
	if c == nil || link == "" {
		return
	}
	c.entries[link] = content
}

// Pop returns and removes the content stored for link.
func (c *ContentCache) Pop(link string) (ArticleContent, bool) {
	if c == nil {
		return ArticleContent{}, false
	}
	content, ok := c.entries[link]
	if ok {
		delete(c.entries, link)
	}
	return content, ok
}

// Len reports the number of unconsumed entries.
func (c *ContentCache) Len() int {
	if c == nil {
		return 0
	}
	return len(c.entries)
}
