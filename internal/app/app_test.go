// Package app_test contains unit tests for the app package.
package app_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/article-digest/internal/app"
	"github.com/JakeFAU/article-digest/internal/config"
	"github.com/JakeFAU/article-digest/internal/crawler"
	"github.com/JakeFAU/article-digest/internal/sink/local"
)

var paragraph = strings.Repeat("Researchers released a new open model that improves reasoning benchmarks across many tasks. ", 6)

func feedServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rss.xml" {
			http.NotFound(w, r)
			return
		}
		hits.Add(1)
		w.Header().Set("Content-Type", "application/rss+xml")
		var items strings.Builder
		for i := 1; i <= 3; i++ {
			fmt.Fprintf(&items,
				`<item><title>Post %d</title><link>/posts/%d</link><content:encoded><![CDATA[<p>%s</p>]]></content:encoded></item>`,
				i, i, paragraph)
		}
		_, _ = fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:content="http://purl.org/rss/1.0/modules/content/">
<channel><title>Example</title><link>%s</link>%s</channel></rss>`, "http://"+r.Host, items.String())
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func testConfig(t *testing.T, feedURL string) config.Config {
	t.Helper()
	return config.Config{
		Crawler: config.CrawlerConfig{
			MaxRetries:       1,
			ArticlesPerSite:  2,
			ExtractMinLength: 200,
			AncestorDepth:    3,
		},
		HTTP: config.HTTPConfig{
			Timeout:   5 * time.Second,
			UserAgent: "digest-test",
		},
		Feed:       config.FeedConfig{MinEmbeddedLength: 200},
		Summarizer: config.SummarizerConfig{Provider: config.ProviderLead},
		Output: config.OutputConfig{
			Local: local.Config{Dir: t.TempDir(), KeepRuns: true},
		},
		Categories: map[string][]crawler.Source{
			"ai": {{Name: "Example", URL: feedURL, IsRSS: true}},
		},
	}
}

func TestCrawlWritesDigest(t *testing.T) {
	t.Parallel()
	srv, hits := feedServer(t)
	cfg := testConfig(t, srv.URL+"/rss.xml")

	a, err := app.New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	digest, err := a.Crawl(context.Background(), "ai")
	require.NoError(t, err)
	require.NotEmpty(t, digest.RunID)
	require.Len(t, digest.Articles, 2)
	assert.Equal(t, int32(1), hits.Load(), "embedded content must not trigger article fetches")

	first := digest.Articles[0]
	assert.Equal(t, "Example", first.Site)
	assert.Equal(t, "ai", first.Category)
	assert.Equal(t, "Post 1", first.Title)
	assert.Equal(t, srv.URL+"/posts/1", first.Link)
	assert.NotEmpty(t, first.SummaryEN)

	latest, ok := a.Latest()
	require.True(t, ok)
	assert.Equal(t, digest.RunID, latest.RunID)

	data, err := os.ReadFile(filepath.Join(cfg.Output.Local.Dir, local.DefaultFileName))
	require.NoError(t, err)
	var written crawler.Digest
	require.NoError(t, json.Unmarshal(data, &written))
	assert.Equal(t, digest.RunID, written.RunID)
	assert.Len(t, written.Articles, 2)

	_, err = os.Stat(filepath.Join(cfg.Output.Local.Dir, "runs", digest.RunID+".json"))
	require.NoError(t, err)
}

func TestCrawlServesLatestDigest(t *testing.T) {
	t.Parallel()
	srv, _ := feedServer(t)
	cfg := testConfig(t, srv.URL+"/rss.xml")

	a, err := app.New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	digest, err := a.Crawl(context.Background())
	require.NoError(t, err)

	rec = httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/digest/latest", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body crawler.Digest
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, digest.RunID, body.RunID)
}

func TestCrawlUnknownCategory(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t, "https://example.com/rss.xml")

	a, err := app.New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	_, err = a.Crawl(context.Background(), "sports")
	require.ErrorIs(t, err, config.ErrUnknownCategory)
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t, "https://example.com/rss.xml")
	cfg.Summarizer.Provider = "gpt"

	_, err := app.New(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown summarizer provider")
}

func TestNewFailsOnUnusableOutputDir(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t, "https://example.com/rss.xml")
	file := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
	cfg.Output.Local.Dir = file

	_, err := app.New(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "init local sink")
}

func TestServeWithoutAddressReturns(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t, "https://example.com/rss.xml")

	a, err := app.New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	require.NoError(t, a.Serve(context.Background()))
}

func TestServeStopsOnCancel(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t, "https://example.com/rss.xml")
	cfg.Metrics.ListenAddr = "127.0.0.1:0"

	a, err := app.New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}
}
