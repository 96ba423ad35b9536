package headless

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"

	"github.com/JakeFAU/article-digest/internal/crawler"
)

func TestConfigDefaults(t *testing.T) {
	t.Parallel()

	cfg := Config{}.withDefaults()
	if cfg.NavigationTimeout != 30*time.Second || cfg.WaitTimeout != 10*time.Second {
		t.Fatalf("unexpected timeouts: %+v", cfg)
	}
	if cfg.OverlayTimeout != 2*time.Second || cfg.ScrollPause != time.Second {
		t.Fatalf("unexpected overlay/scroll defaults: %+v", cfg)
	}
	if cfg.ViewportWidth != 1920 || cfg.ViewportHeight != 1080 {
		t.Fatalf("unexpected viewport: %dx%d", cfg.ViewportWidth, cfg.ViewportHeight)
	}
	if cfg.UserAgent != crawler.DefaultUserAgent {
		t.Fatalf("expected default user agent, got %q", cfg.UserAgent)
	}

	custom := Config{NavigationTimeout: time.Second}.withDefaults()
	if custom.NavigationTimeout != time.Second {
		t.Fatalf("expected override to be kept, got %v", custom.NavigationTimeout)
	}
}

func TestCloneHeaderAndNetworkHeaders(t *testing.T) {
	t.Parallel()

	src := http.Header{"X-Test": {"a", "b"}}
	cloned := cloneHeader(src)
	cloned.Add("X-Test", "c")
	if len(src["X-Test"]) != 2 {
		t.Fatalf("source header mutated: %+v", src)
	}

	netHeaders := toNetworkHeaders(src)
	switch v := netHeaders["X-Test"].(type) {
	case []string:
		if len(v) != 2 {
			t.Fatalf("expected two entries, got %v", v)
		}
	default:
		t.Fatalf("expected []string, got %T", v)
	}
}

func TestNavigationHeadersDropBrowserManaged(t *testing.T) {
	t.Parallel()

	h := crawler.RequestHeaders(crawler.Source{}, "https://openai.com/news", crawler.AcceptHTML)
	got := navigationHeaders(h)
	if _, ok := got["User-Agent"]; ok {
		t.Fatal("user agent must be set through emulation, not extra headers")
	}
	if got["Origin"] != "https://openai.com" {
		t.Fatalf("expected host override to survive, got %v", got["Origin"])
	}
	if h.Get("User-Agent") == "" {
		t.Fatal("input headers must not be mutated")
	}
}

func TestResponseMetaCaptureAndReset(t *testing.T) {
	t.Parallel()

	meta := newResponseMeta()
	meta.captureEvent(&network.EventResponseReceived{
		RequestID: "req-1",
		Type:      network.ResourceTypeDocument,
		Response: &network.Response{
			Status:  204,
			URL:     "https://example.com/rendered",
			Headers: network.Headers{"X-Request-ID": "abc"},
		},
	})
	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeScript,
		Response: &network.Response{Status: 500, URL: "https://example.com/app.js"},
	})

	status, headers, url, requestID := meta.snapshot()
	if status != 204 || headers.Get("X-Request-ID") != "abc" || url != "https://example.com/rendered" || requestID != "req-1" {
		t.Fatalf("unexpected snapshot: status=%d headers=%v url=%s id=%s", status, headers, url, requestID)
	}

	meta.reset()
	status, _, url, requestID = meta.snapshot()
	if status != 0 || url != "" || requestID != "" {
		t.Fatalf("expected reset meta, got status=%d url=%s id=%s", status, url, requestID)
	}
}

func TestForwardCancel(t *testing.T) {
	t.Parallel()

	parent, cancelParent := context.WithCancel(context.Background())
	child, cancelChild := context.WithCancel(context.Background())
	defer cancelChild()

	stop := forwardCancel(parent, cancelChild)
	defer stop()
	cancelParent()

	select {
	case <-child.Done():
	case <-time.After(time.Second):
		t.Fatal("expected parent cancellation to propagate")
	}
}

func TestPresenceScriptQuotesSelector(t *testing.T) {
	t.Parallel()

	got := presenceScript(`button[aria-label='Accept cookies']`)
	want := `document.querySelector("button[aria-label='Accept cookies']") !== null`
	if got != want {
		t.Fatalf("unexpected script: %s", got)
	}
}

func TestDisabledRenderer(t *testing.T) {
	t.Parallel()

	if _, err := NewDisabled().NewPage(context.Background()); !errors.Is(err, crawler.ErrRendererDisabled) {
		t.Fatalf("expected renderer disabled, got %v", err)
	}
}

func TestNewPageHonorsCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New(Config{}, nil).NewPage(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled error without starting chrome, got %v", err)
	}
}
