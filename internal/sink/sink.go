// Package sink fans a finished digest out to the configured outputs.
package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/article-digest/internal/crawler"
)

// Encode renders a digest as indented JSON.
func Encode(digest crawler.Digest) ([]byte, error) {
	if digest.Articles == nil {
		digest.Articles = []crawler.Record{}
	}
	data, err := json.MarshalIndent(digest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode digest: %w", err)
	}
	return append(data, '\n'), nil
}

// Multi writes to every sink in order. One failing sink does not stop the others.
type Multi struct {
	sinks  []crawler.Sink
	logger *zap.Logger
}

// NewMulti combines sinks. Nil entries are dropped.
func NewMulti(logger *zap.Logger, sinks ...crawler.Sink) *Multi {
	if logger == nil {
		logger = zap.NewNop()
	}
	out := make([]crawler.Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return &Multi{sinks: out, logger: logger}
}

// Len returns the number of wrapped sinks.
func (m *Multi) Len() int {
	return len(m.sinks)
}

// Write implements crawler.Sink.
func (m *Multi) Write(ctx context.Context, digest crawler.Digest) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Write(ctx, digest); err != nil {
			m.logger.Error("sink write failed", zap.String("sink", fmt.Sprintf("%T", s)), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close implements crawler.Sink.
func (m *Multi) Close(ctx context.Context) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Latest keeps the most recent digest in memory for the HTTP API.
type Latest struct {
	mu     sync.RWMutex
	digest crawler.Digest
	ok     bool
}

// NewLatest returns an empty Latest.
func NewLatest() *Latest {
	return &Latest{}
}

// Write implements crawler.Sink.
func (l *Latest) Write(_ context.Context, digest crawler.Digest) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	digest.Articles = append([]crawler.Record(nil), digest.Articles...)
	l.digest = digest
	l.ok = true
	return nil
}

// Close implements crawler.Sink.
func (l *Latest) Close(context.Context) error {
	return nil
}

// Get returns the latest digest and whether one was written.
func (l *Latest) Get() (crawler.Digest, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.digest, l.ok
}
