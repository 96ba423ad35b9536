package cmd

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/article-digest/internal/config"
	"github.com/JakeFAU/article-digest/internal/crawler"
)

type fakeApp struct {
	mu         sync.Mutex
	cfg        config.Config
	crawls     [][]string
	onCrawl    func()
	crawlErr   error
	served     bool
	closed     bool
	configPath string
}

func (f *fakeApp) Crawl(_ context.Context, categories ...string) (crawler.Digest, error) {
	f.mu.Lock()
	f.crawls = append(f.crawls, categories)
	hook := f.onCrawl
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	if f.crawlErr != nil {
		return crawler.Digest{}, f.crawlErr
	}
	return crawler.Digest{
		RunID:    "run-1",
		Articles: []crawler.Record{{Site: "Example", Title: "Post", Link: "https://example.com/p"}},
	}, nil
}

func (f *fakeApp) Serve(ctx context.Context) error {
	f.mu.Lock()
	f.served = true
	f.mu.Unlock()
	<-ctx.Done()
	return nil
}

func (f *fakeApp) Close(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeApp) Logger() *zap.Logger   { return zap.NewNop() }
func (f *fakeApp) Config() config.Config { return f.cfg }

func useFakeApp(t *testing.T, fake *fakeApp) {
	t.Helper()
	prev := newApp
	newApp = func(_ context.Context, path string) (App, error) {
		fake.configPath = path
		return fake, nil
	}
	t.Cleanup(func() { newApp = prev })
}

func execute(ctx context.Context, args ...string) (string, error) {
	root, cleanup := newRootCmd()
	defer cleanup()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func TestCrawlCommandPassesCategories(t *testing.T) {
	fake := &fakeApp{}
	useFakeApp(t, fake)

	out, err := execute(context.Background(), "--config", "digest.yaml", "crawl", "-c", "ai", "--category", "arxiv", "--print")
	require.NoError(t, err)

	assert.Equal(t, "digest.yaml", fake.configPath)
	require.Len(t, fake.crawls, 1)
	assert.Equal(t, []string{"ai", "arxiv"}, fake.crawls[0])
	assert.True(t, fake.served)
	assert.True(t, fake.closed)
	assert.Contains(t, out, `"run_id": "run-1"`)
}

func TestCrawlCommandReturnsCrawlError(t *testing.T) {
	fake := &fakeApp{crawlErr: config.ErrUnknownCategory}
	useFakeApp(t, fake)

	_, err := execute(context.Background(), "crawl", "-c", "sports")
	require.ErrorIs(t, err, config.ErrUnknownCategory)
	assert.True(t, fake.closed)
}

func TestInitFailureStopsCommand(t *testing.T) {
	prev := newApp
	newApp = func(context.Context, string) (App, error) {
		return nil, errors.New("bad config")
	}
	t.Cleanup(func() { newApp = prev })

	_, err := execute(context.Background(), "crawl")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to initialize application services")
}

func TestSourcesCommandListsCatalog(t *testing.T) {
	fake := &fakeApp{cfg: config.Config{
		Crawler: config.CrawlerConfig{ArticlesPerSite: 2},
		Categories: map[string][]crawler.Source{
			"arxiv": {{Name: "arXiv AI", URL: "http://arxiv.org/rss/cs.AI", IsRSS: true}},
			"web3": {{
				Name:            "Ethereum Blog",
				URL:             "https://blog.ethereum.org/",
				ArticleSelector: "article.blog-post",
				TitleSelector:   "h2.blog-title",
				LinkSelector:    "a.blog-link",
			}},
		},
	}}
	useFakeApp(t, fake)

	out, err := execute(context.Background(), "sources")
	require.NoError(t, err)
	assert.Contains(t, out, "CATEGORY")
	assert.Contains(t, out, "arXiv AI")
	assert.Contains(t, out, "rss")
	assert.Contains(t, out, "Ethereum Blog")
	assert.Contains(t, out, "browser")

	out, err = execute(context.Background(), "sources", "-c", "arxiv")
	require.NoError(t, err)
	assert.NotContains(t, out, "Ethereum Blog")
}

func TestScheduleCommandRejectsBadCron(t *testing.T) {
	fake := &fakeApp{}
	useFakeApp(t, fake)

	_, err := execute(context.Background(), "schedule", "--cron", "not a cron")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse cron")
}

func TestScheduleCommandRunsNowAndStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fake := &fakeApp{
		cfg:     config.Config{Schedule: config.ScheduleConfig{Cron: "0 7 * * *", Categories: []string{"ai"}}},
		onCrawl: cancel,
	}
	useFakeApp(t, fake)

	done := make(chan error, 1)
	go func() {
		_, err := execute(ctx, "schedule", "--now")
		done <- err
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("schedule did not stop after cancellation")
	}
	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.Len(t, fake.crawls, 1)
	assert.Equal(t, []string{"ai"}, fake.crawls[0])
	assert.True(t, fake.closed)
}
