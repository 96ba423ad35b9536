package headless

import (
	"context"

	"github.com/JakeFAU/article-digest/internal/crawler"
)

// Disabled implements crawler.Renderer for runs without a browser. Browser
// sources fail their listing fetch and yield no records.
type Disabled struct{}

// NewDisabled creates a renderer that never opens pages.
func NewDisabled() Disabled {
	return Disabled{}
}

// NewPage always returns crawler.ErrRendererDisabled.
func (Disabled) NewPage(context.Context) (crawler.Page, error) {
	return nil, crawler.ErrRendererDisabled
}
