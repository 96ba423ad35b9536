// Package pubsub announces digest articles on a Google Cloud Pub/Sub topic.
package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/JakeFAU/article-digest/internal/crawler"
)

// Config identifies the topic.
type Config struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// Sink publishes one message per record. Attributes carry the run and site
// so subscribers can filter without decoding the payload.
type Sink struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	owned  bool
	logger *zap.Logger
}

// New dials Pub/Sub with application default credentials.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Sink, error) {
	if cfg.ProjectID == "" || cfg.Topic == "" {
		return nil, errors.New("pubsub project_id and topic are required")
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	s, err := NewWithClient(client, cfg.Topic, logger)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

// NewWithClient publishes through an existing client, which the caller keeps.
func NewWithClient(client *pubsub.Client, topicID string, logger *zap.Logger) (*Sink, error) {
	if client == nil {
		return nil, errors.New("pubsub client is required")
	}
	if topicID == "" {
		return nil, errors.New("topic is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{client: client, topic: client.Topic(topicID), logger: logger}, nil
}

// Write implements crawler.Sink. Every record is published before the first
// result is awaited.
func (s *Sink) Write(ctx context.Context, digest crawler.Digest) error {
	results := make([]*pubsub.PublishResult, 0, len(digest.Articles))
	for _, record := range digest.Articles {
		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshal record: %w", err)
		}
		results = append(results, s.topic.Publish(ctx, &pubsub.Message{
			Data: data,
			Attributes: map[string]string{
				"run_id":   digest.RunID,
				"site":     record.Site,
				"category": record.Category,
			},
		}))
	}

	var errs []error
	for i, result := range results {
		id, err := result.Get(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("publish %s: %w", digest.Articles[i].Link, err))
			continue
		}
		s.logger.Debug("record published", zap.String("message_id", id), zap.String("link", digest.Articles[i].Link))
	}
	return errors.Join(errs...)
}

// Close flushes pending messages and closes an owned client.
func (s *Sink) Close(context.Context) error {
	s.topic.Stop()
	if !s.owned {
		return nil
	}
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}
