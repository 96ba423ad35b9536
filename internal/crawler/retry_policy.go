package crawler

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/samber/mo"
	"go.uber.org/zap"
)

// DefaultMaxAttempts bounds every retried operation.
const DefaultMaxAttempts = 3

// AttemptState is the lifecycle of one retried operation.
type AttemptState string

// Attempt states. Success and Exhausted are terminal.
const (
	StateIdle       AttemptState = "idle"
	StateAttempting AttemptState = "attempting"
	StateRetrying   AttemptState = "retrying"
	StateSuccess    AttemptState = "success"
	StateExhausted  AttemptState = "exhausted"
)

// Terminal reports whether no further transitions follow.
func (s AttemptState) Terminal() bool {
	return s == StateSuccess || s == StateExhausted
}

// TransitionFunc observes state changes. attempt is 1-based.
type TransitionFunc func(op string, state AttemptState, attempt int)

// RetryPolicy runs a fallible operation up to maxAttempts times, waiting
// Backoff(n) between attempt n and n+1.
type RetryPolicy struct {
	maxAttempts  int
	clock        Clock
	logger       *zap.Logger
	onTransition TransitionFunc
}

// RetryOption customizes a RetryPolicy.
type RetryOption func(*RetryPolicy)

// WithMaxAttempts overrides the attempt bound; values < 1 are ignored.
func WithMaxAttempts(n int) RetryOption {
	return func(p *RetryPolicy) {
		if n >= 1 {
			p.maxAttempts = n
		}
	}
}

// WithClock injects the clock used for backoff sleeps.
func WithClock(c Clock) RetryOption {
	return func(p *RetryPolicy) {
		if c != nil {
			p.clock = c
		}
	}
}

// WithLogger sets the logger used for retry and exhaustion messages.
func WithLogger(logger *zap.Logger) RetryOption {
	return func(p *RetryPolicy) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithTransitions registers an observer for attempt state changes.
func WithTransitions(fn TransitionFunc) RetryOption {
	return func(p *RetryPolicy) {
		p.onTransition = fn
	}
}

// NewExponentialRetryPolicy builds a policy with 3 attempts and 1s, 2s waits.
func NewExponentialRetryPolicy(opts ...RetryOption) *RetryPolicy {
	p := &RetryPolicy{
		maxAttempts: DefaultMaxAttempts,
		clock:       realClock{},
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// MaxAttempts returns the attempt bound.
func (p *RetryPolicy) MaxAttempts() int {
	return p.maxAttempts
}

// Backoff returns the wait before attempt+1, where attempt is 0-indexed: 2^attempt seconds.
func (p *RetryPolicy) Backoff(attempt int) time.Duration {
	return time.Duration(math.Pow(2, float64(attempt))) * time.Second
}

// ShouldRetry decides whether another attempt follows a failed 0-indexed attempt.
// Timeouts are retried like any other failure; only caller cancellation stops early.
func (p *RetryPolicy) ShouldRetry(ctx context.Context, err error, attempt int) bool {
	if err == nil {
		return false
	}
	if attempt+1 >= p.maxAttempts {
		return false
	}
	return ctx.Err() == nil
}

func (p *RetryPolicy) transition(op string, state AttemptState, attempt int) {
	if p.onTransition != nil {
		p.onTransition(op, state, attempt)
	}
}

// Retry runs op under policy. It yields None when every attempt failed or the
// caller's context ended; it never returns partial output.
func Retry[T any](ctx context.Context, policy *RetryPolicy, op string, fn func(ctx context.Context) (T, error)) mo.Option[T] {
	if policy == nil {
		policy = NewExponentialRetryPolicy()
	}
	policy.transition(op, StateIdle, 0)

	var lastErr error
	for attempt := 0; attempt < policy.maxAttempts; attempt++ {
		policy.transition(op, StateAttempting, attempt+1)
		value, err := fn(ctx)
		if err == nil {
			policy.transition(op, StateSuccess, attempt+1)
			return mo.Some(value)
		}
		lastErr = err
		if !policy.ShouldRetry(ctx, err, attempt) {
			break
		}
		wait := policy.Backoff(attempt)
		policy.logger.Info("retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
		policy.transition(op, StateRetrying, attempt+2)
		if sleepErr := policy.clock.Sleep(ctx, wait); sleepErr != nil {
			lastErr = errors.Join(lastErr, sleepErr)
			break
		}
	}

	policy.transition(op, StateExhausted, policy.maxAttempts)
	policy.logger.Warn("retries exhausted",
		zap.String("op", op),
		zap.Int("max_attempts", policy.maxAttempts),
		zap.Error(lastErr),
	)
	return mo.None[T]()
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now().UTC()
}

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	return SleepContext(ctx, d)
}

// SleepContext waits for d or until ctx ends, whichever comes first.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
