// Package logging includes tests for the zap logger helpers.
package logging

import (
	"errors"
	"sync"
	"testing"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// TestNewDevelopmentLogger confirms the development logger builds and logs.
func TestNewDevelopmentLogger(t *testing.T) {
	t.Parallel()

	logger, err := New(true)
	if err != nil {
		t.Fatalf("New(true) error = %v", err)
	}
	if logger == nil {
		t.Fatal("expected logger to be non-nil")
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush
	logger.Info("development logger ready")
}

// TestNewProductionLogger ensures the production logger configuration succeeds.
func TestNewProductionLogger(t *testing.T) {
	t.Parallel()

	logger, err := New(false)
	if err != nil {
		t.Fatalf("New(false) error = %v", err)
	}
	if logger == nil {
		t.Fatal("expected logger to be non-nil")
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush
	logger.Info("production logger ready")
}

// TestNewSentryHubWithoutDSN keeps Sentry off when no DSN is configured.
func TestNewSentryHubWithoutDSN(t *testing.T) {
	t.Parallel()

	hub, err := NewSentryHub("", "test")
	if err != nil {
		t.Fatalf("NewSentryHub error = %v", err)
	}
	if hub != nil {
		t.Fatal("expected nil hub without a dsn")
	}

	// A nil hub leaves the logger untouched.
	logger := zap.New(zapcore.NewNopCore(), WithSentry(nil))
	logger.Error("not forwarded")
}

// TestWithSentryForwardsErrors checks only error-level entries reach Sentry, with their fields.
func TestWithSentryForwardsErrors(t *testing.T) {
	t.Parallel()

	var (
		mu     sync.Mutex
		events []*sentry.Event
	)
	client, err := sentry.NewClient(sentry.ClientOptions{
		SampleRate: 1,
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			mu.Lock()
			defer mu.Unlock()
			events = append(events, event)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("NewClient error = %v", err)
	}
	hub := sentry.NewHub(client, sentry.NewScope())

	logger := zap.New(zapcore.NewNopCore(), WithSentry(hub)).Named("orchestrator").With(zap.String("run_id", "run-1"))
	logger.Info("run started")
	logger.Warn("listing unavailable")
	logger.Error("sink write failed", zap.String("source", "arXiv AI"), zap.Error(errors.New("boom")))

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	event := events[0]
	if event.Message != "sink write failed" {
		t.Fatalf("unexpected message %q", event.Message)
	}
	if event.Level != sentry.LevelError {
		t.Fatalf("unexpected level %q", event.Level)
	}
	if event.Logger != "orchestrator" {
		t.Fatalf("unexpected logger %q", event.Logger)
	}
	if event.Extra["run_id"] != "run-1" || event.Extra["source"] != "arXiv AI" {
		t.Fatalf("fields not forwarded: %v", event.Extra)
	}
	if event.Extra["error"] != "boom" {
		t.Fatalf("error not forwarded: %v", event.Extra)
	}
}

// TestSentryLevel maps zap levels onto Sentry levels.
func TestSentryLevel(t *testing.T) {
	t.Parallel()

	cases := map[zapcore.Level]sentry.Level{
		zapcore.DebugLevel:  sentry.LevelDebug,
		zapcore.InfoLevel:   sentry.LevelInfo,
		zapcore.WarnLevel:   sentry.LevelWarning,
		zapcore.ErrorLevel:  sentry.LevelError,
		zapcore.DPanicLevel: sentry.LevelFatal,
		zapcore.FatalLevel:  sentry.LevelFatal,
	}
	for in, want := range cases {
		if got := sentryLevel(in); got != want {
			t.Fatalf("sentryLevel(%v) = %q, want %q", in, got, want)
		}
	}
}
