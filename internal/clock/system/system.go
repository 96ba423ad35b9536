// Package system provides a real clock implementation.
package system

import (
	"context"
	"time"

	"github.com/JakeFAU/article-digest/internal/crawler"
)

// Clock implements crawler.Clock using the wall clock.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

// Sleep waits for d or until ctx ends.
func (Clock) Sleep(ctx context.Context, d time.Duration) error {
	return crawler.SleepContext(ctx, d)
}
