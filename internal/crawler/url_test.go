package crawler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveLink(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		src    Source
		href   string
		want   string
		wantOK bool
	}{
		{
			name:   "relative against base url",
			src:    Source{URL: "https://news.example.com/list", BaseURL: "https://example.com"},
			href:   "/blog/x",
			want:   "https://example.com/blog/x",
			wantOK: true,
		},
		{
			name:   "relative falls back to url origin",
			src:    Source{URL: "https://example.com/news/list?page=2"},
			href:   "/blog/x",
			want:   "https://example.com/blog/x",
			wantOK: true,
		},
		{
			name:   "absolute kept, fragment dropped",
			src:    Source{URL: "https://example.com"},
			href:   "https://other.example.org/post#comments",
			want:   "https://other.example.org/post",
			wantOK: true,
		},
		{
			name:   "path relative resolves against base root",
			src:    Source{URL: "https://example.com/news", BaseURL: "https://example.com"},
			href:   "post-1",
			want:   "https://example.com/post-1",
			wantOK: true,
		},
		{name: "empty", src: Source{URL: "https://example.com"}, href: "  "},
		{name: "fragment only", src: Source{URL: "https://example.com"}, href: "#top"},
		{name: "javascript", src: Source{URL: "https://example.com"}, href: "JavaScript:void(0)"},
		{name: "mailto", src: Source{URL: "https://example.com"}, href: "mailto:hi@example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := ResolveLink(tt.src, tt.href)
			require.Equal(t, tt.wantOK, ok)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "lowercase host", input: "HTTP://Example.COM/Path", expected: "http://example.com/Path"},
		{name: "default http port", input: "http://example.com:80/a", expected: "http://example.com/a"},
		{name: "default https port", input: "https://example.com:443/a", expected: "https://example.com/a"},
		{name: "sorted query", input: "https://example.com/?b=2&a=1#frag", expected: "https://example.com/?a=1&b=2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := NormalizeURL(tt.input)
			require.NoError(t, err)
			require.Equal(t, tt.expected, got)
		})
	}
}
