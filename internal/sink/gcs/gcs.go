// Package gcs uploads digests to a Google Cloud Storage bucket.
package gcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/article-digest/internal/crawler"
	"github.com/JakeFAU/article-digest/internal/sink"
)

const contentType = "application/json; charset=utf-8"

// Config captures the bucket layout.
type Config struct {
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
}

// WriterFunc opens a writer for one object.
type WriterFunc func(ctx context.Context, object, contentType string) io.WriteCloser

// Sink writes <prefix>/runs/<run_id>.json and <prefix>/latest.json.
type Sink struct {
	bucket string
	prefix string
	open   WriterFunc
	close  func() error
	logger *zap.Logger
}

// New creates a sink backed by a storage client. The sink owns the client.
func New(client *storage.Client, cfg Config, logger *zap.Logger) (*Sink, error) {
	if client == nil {
		return nil, errors.New("storage client is required")
	}
	bucket := client.Bucket(cfg.Bucket)
	open := func(ctx context.Context, object, contentType string) io.WriteCloser {
		w := bucket.Object(object).NewWriter(ctx)
		w.ContentType = contentType
		return w
	}
	return NewWithWriter(open, client.Close, cfg, logger)
}

// NewWithWriter creates a sink over an arbitrary object writer.
func NewWithWriter(open WriterFunc, closer func() error, cfg Config, logger *zap.Logger) (*Sink, error) {
	if open == nil {
		return nil, errors.New("object writer is required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("bucket name is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		open:   open,
		close:  closer,
		logger: logger,
	}, nil
}

// Write implements crawler.Sink.
func (s *Sink) Write(ctx context.Context, digest crawler.Digest) error {
	if strings.TrimSpace(digest.RunID) == "" {
		return errors.New("run id is required")
	}
	data, err := sink.Encode(digest)
	if err != nil {
		return err
	}
	for _, object := range []string{s.object("runs", digest.RunID+".json"), s.object("latest.json")} {
		if err := s.put(ctx, object, data); err != nil {
			return err
		}
		s.logger.Info("digest uploaded", zap.String("uri", fmt.Sprintf("gs://%s/%s", s.bucket, object)))
	}
	return nil
}

// Close implements crawler.Sink.
func (s *Sink) Close(context.Context) error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

func (s *Sink) object(parts ...string) string {
	if s.prefix != "" {
		parts = append([]string{s.prefix}, parts...)
	}
	return path.Join(parts...)
}

func (s *Sink) put(ctx context.Context, object string, data []byte) error {
	writer := s.open(ctx, object, contentType)
	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		if closeErr := writer.Close(); closeErr != nil {
			return fmt.Errorf("copy object %s: %w (close writer: %v)", object, err, closeErr)
		}
		return fmt.Errorf("copy object %s: %w", object, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close writer %s: %w", object, err)
	}
	return nil
}
