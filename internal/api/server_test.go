package api

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/JakeFAU/article-digest/internal/crawler"
	"github.com/JakeFAU/article-digest/internal/sink/feed"
)

func TestServer_Healthz(t *testing.T) {
	t.Parallel()

	rec := serve(newTestServer(nil, Config{}), "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", gjson.Get(rec.Body.String(), "status").String())
}

func TestServer_ReadyzNeedsDigest(t *testing.T) {
	t.Parallel()

	require.Equal(t, http.StatusServiceUnavailable, serve(newTestServer(nil, Config{}), "/readyz", nil).Code)
	require.Equal(t, http.StatusOK, serve(newTestServer(sampleDigest(), Config{}), "/readyz", nil).Code)
}

func TestServer_LatestDigest(t *testing.T) {
	t.Parallel()

	rec := serve(newTestServer(nil, Config{}), "/v1/digest/latest", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(newTestServer(sampleDigest(), Config{}), "/v1/digest/latest", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	require.Equal(t, "run-1", gjson.Get(body, "run_id").String())
	require.Equal(t, "Hello", gjson.Get(body, "articles.0.title").String())
}

func TestServer_Feed(t *testing.T) {
	t.Parallel()

	server := newTestServer(sampleDigest(), Config{Feed: feed.Meta{Title: "Digest"}})

	rec := serve(server, "/v1/digest/feed", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, feed.ContentType(feed.FormatRSS), rec.Header().Get("Content-Type"))
	parsed, err := gofeed.NewParser().ParseString(rec.Body.String())
	require.NoError(t, err)
	require.Equal(t, "Digest", parsed.Title)
	require.Len(t, parsed.Items, 1)

	rec = serve(server, "/v1/digest/feed?format=atom", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "<feed")

	rec = serve(server, "/v1/digest/feed?format=yaml", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_FeedConcurrentReaders(t *testing.T) {
	t.Parallel()

	server := newTestServer(sampleDigest(), Config{})
	var wg sync.WaitGroup
	codes := make([]int, 8)
	for i := range codes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			codes[i] = serve(server, "/v1/digest/feed?format=json", nil).Code
		}(i)
	}
	wg.Wait()
	for _, code := range codes {
		require.Equal(t, http.StatusOK, code)
	}
}

func TestServer_APIKeyMiddleware(t *testing.T) {
	t.Parallel()

	server := newTestServer(sampleDigest(), Config{APIKey: "secret"})

	require.Equal(t, http.StatusOK, serve(server, "/healthz", nil).Code)
	require.Equal(t, http.StatusForbidden, serve(server, "/v1/digest/latest", nil).Code)
	require.Equal(t, http.StatusOK, serve(server, "/v1/digest/latest", map[string]string{"X-API-Key": "secret"}).Code)
	require.Equal(t, http.StatusOK, serve(server, "/v1/digest/latest?api_key=secret", nil).Code)
}

func TestServer_Metrics(t *testing.T) {
	t.Parallel()

	server := newTestServer(nil, Config{})
	serve(server, "/healthz", nil)
	rec := serve(server, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestRequestIDMiddlewareSetsHeader(t *testing.T) {
	t.Parallel()

	rec := serve(newTestServer(nil, Config{}), "/healthz", nil)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = serve(newTestServer(nil, Config{}), "/healthz", map[string]string{"X-Request-ID": "given"})
	require.Equal(t, "given", rec.Header().Get("X-Request-ID"))
}

func TestRecoverMiddleware(t *testing.T) {
	t.Parallel()

	h := recoverMiddleware(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestResponseWriterHijackBehavior(t *testing.T) {
	t.Parallel()

	rw := &responseWriter{ResponseWriter: httptest.NewRecorder()}
	_, _, err := rw.Hijack()
	require.EqualError(t, err, "hijacker not supported")

	h := &hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}
	rw = &responseWriter{ResponseWriter: h}
	conn, buf, err := rw.Hijack()
	require.NoError(t, err)
	require.NoError(t, conn.Close())
	require.NoError(t, h.CloseClient())
	require.NotNil(t, buf)
}

// --- helpers/fakes ---

type staticSource struct {
	digest *crawler.Digest
}

func (s staticSource) Get() (crawler.Digest, bool) {
	if s.digest == nil {
		return crawler.Digest{}, false
	}
	return *s.digest, true
}

func sampleDigest() *crawler.Digest {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return &crawler.Digest{
		RunID:      "run-1",
		StartedAt:  at.Add(-time.Minute),
		FinishedAt: at,
		Articles: []crawler.Record{{
			Site:      "OpenAI",
			Title:     "Hello",
			Link:      "https://openai.com/blog/hello",
			SummaryEN: "en",
			Timestamp: at,
		}},
	}
}

func newTestServer(digest *crawler.Digest, cfg Config) *Server {
	return NewServer(staticSource{digest: digest}, cfg, zap.NewNop())
}

func serve(s *Server, target string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

type hijackableRecorder struct {
	*httptest.ResponseRecorder
	client net.Conn
}

func (h *hijackableRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	server, client := net.Pipe()
	h.client = client
	return server, bufio.NewReadWriter(bufio.NewReader(client), bufio.NewWriter(client)), nil
}

func (h *hijackableRecorder) CloseClient() error {
	if h.client != nil {
		if err := h.client.Close(); err != nil {
			return fmt.Errorf("close hijacker client: %w", err)
		}
	}
	return nil
}
