package dispatcher

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/article-digest/internal/crawler"
	"github.com/JakeFAU/article-digest/internal/crawler/browser"
	"github.com/JakeFAU/article-digest/internal/crawler/feed"
	"github.com/JakeFAU/article-digest/internal/crawler/jsonapi"
)

func TestForResolvesByFlags(t *testing.T) {
	t.Parallel()

	d := NewDefault(Deps{})
	tests := []struct {
		name   string
		source crawler.Source
		check  func(t *testing.T, c crawler.Crawler)
	}{
		{
			name:   "api wins regardless of other flags",
			source: crawler.Source{IsAPI: true, IsRSS: true, RequiresBrowser: true, NeedsJS: true},
			check: func(t *testing.T, c crawler.Crawler) {
				require.IsType(t, &jsonapi.Crawler{}, c)
			},
		},
		{
			name:   "rss when not api",
			source: crawler.Source{IsRSS: true, RequiresBrowser: true},
			check: func(t *testing.T, c crawler.Crawler) {
				require.IsType(t, &feed.Crawler{}, c)
			},
		},
		{
			name:   "rss only",
			source: crawler.Source{IsRSS: true},
			check: func(t *testing.T, c crawler.Crawler) {
				require.IsType(t, &feed.Crawler{}, c)
			},
		},
		{
			name:   "api only",
			source: crawler.Source{IsAPI: true},
			check: func(t *testing.T, c crawler.Crawler) {
				require.IsType(t, &jsonapi.Crawler{}, c)
			},
		},
		{
			name:   "browser otherwise",
			source: crawler.Source{NeedsJS: false},
			check: func(t *testing.T, c crawler.Crawler) {
				require.IsType(t, &browser.Crawler{}, c)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c, err := d.For(tt.source)
			require.NoError(t, err)
			tt.check(t, c)
		})
	}
}

func TestForPrefersResolvedKind(t *testing.T) {
	t.Parallel()

	src, err := crawler.Source{Name: "feed", URL: "https://example.com/rss.xml", IsRSS: true}.Normalize()
	require.NoError(t, err)
	c, err := NewDefault(Deps{}).For(src)
	require.NoError(t, err)
	require.IsType(t, &feed.Crawler{}, c)
}

func TestForReturnsFreshInstances(t *testing.T) {
	t.Parallel()

	d := NewDefault(Deps{})
	src := crawler.Source{Kind: crawler.KindRSS}
	first, err := d.For(src)
	require.NoError(t, err)
	second, err := d.For(src)
	require.NoError(t, err)
	require.NotSame(t, first, second)
}

func TestForRejectsUnknownKind(t *testing.T) {
	t.Parallel()

	_, err := NewDefault(Deps{}).For(crawler.Source{Kind: crawler.Kind(42)})
	require.ErrorIs(t, err, ErrUnknownKind)
}

func TestForMissingFactory(t *testing.T) {
	t.Parallel()

	_, err := New(nil, nil, nil).For(crawler.Source{Kind: crawler.KindBrowser})
	require.Error(t, err)
}
