// Package feed publishes the digest as an RSS, Atom, or JSON feed.
package feed

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gorilla/feeds"
	"go.uber.org/zap"

	"github.com/JakeFAU/article-digest/internal/crawler"
)

// Supported formats.
const (
	FormatRSS  = "rss"
	FormatAtom = "atom"
	FormatJSON = "json"
)

// Meta describes the feed channel.
type Meta struct {
	Title       string `mapstructure:"title"`
	Link        string `mapstructure:"link"`
	Description string `mapstructure:"description"`
	Author      string `mapstructure:"author"`
}

// Config controls the file sink.
type Config struct {
	Path   string `mapstructure:"path"`
	Format string `mapstructure:"format"`
	Meta   Meta   `mapstructure:",squash"`
}

// Render builds the feed document for digest in the given format.
func Render(digest crawler.Digest, meta Meta, format string) (string, error) {
	if meta.Title == "" {
		meta.Title = "Article digest"
	}
	f := &feeds.Feed{
		Title:       meta.Title,
		Link:        &feeds.Link{Href: meta.Link},
		Description: meta.Description,
		Id:          digest.RunID,
		Created:     digest.FinishedAt,
		Updated:     digest.FinishedAt,
	}
	if meta.Author != "" {
		f.Author = &feeds.Author{Name: meta.Author}
	}
	for _, r := range digest.Articles {
		f.Items = append(f.Items, &feeds.Item{
			Title:       r.Title,
			Link:        &feeds.Link{Href: r.Link},
			Source:      &feeds.Link{Href: r.Link},
			Author:      &feeds.Author{Name: r.Site},
			Description: r.SummaryEN,
			Content:     itemContent(r),
			Id:          r.Link,
			Created:     r.Timestamp,
		})
	}

	switch strings.ToLower(format) {
	case "", FormatRSS:
		return f.ToRss()
	case FormatAtom:
		return f.ToAtom()
	case FormatJSON:
		return f.ToJSON()
	default:
		return "", fmt.Errorf("unsupported feed format %q", format)
	}
}

// ContentType returns the MIME type for format.
func ContentType(format string) string {
	switch strings.ToLower(format) {
	case FormatAtom:
		return "application/atom+xml; charset=utf-8"
	case FormatJSON:
		return "application/feed+json; charset=utf-8"
	default:
		return "application/rss+xml; charset=utf-8"
	}
}

func itemContent(r crawler.Record) string {
	var b strings.Builder
	b.WriteString("<p>" + escape(r.SummaryEN) + "</p>")
	if r.SummaryZH != "" {
		b.WriteString("<p>" + escape(r.SummaryZH) + "</p>")
	}
	if len(r.KeyPointsEN) > 0 {
		b.WriteString("<ul>")
		for _, p := range r.KeyPointsEN {
			b.WriteString("<li>" + escape(p) + "</li>")
		}
		b.WriteString("</ul>")
	}
	return b.String()
}

var escaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func escape(s string) string {
	return escaper.Replace(s)
}

// Sink writes the rendered feed to a file.
type Sink struct {
	cfg    Config
	logger *zap.Logger
}

// New validates cfg.
func New(cfg Config, logger *zap.Logger) (*Sink, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("feed path is required")
	}
	if _, err := Render(crawler.Digest{}, cfg.Meta, cfg.Format); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{cfg: cfg, logger: logger}, nil
}

// Write implements crawler.Sink.
func (s *Sink) Write(_ context.Context, digest crawler.Digest) error {
	doc, err := Render(digest, s.cfg.Meta, s.cfg.Format)
	if err != nil {
		return fmt.Errorf("render feed: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.cfg.Path), 0o750); err != nil {
		return fmt.Errorf("create feed directory: %w", err)
	}
	if err := os.WriteFile(s.cfg.Path, []byte(doc), 0o600); err != nil {
		return fmt.Errorf("write feed: %w", err)
	}
	s.logger.Info("feed written", zap.String("path", s.cfg.Path), zap.Int("items", len(digest.Articles)))
	return nil
}

// Close implements crawler.Sink.
func (s *Sink) Close(context.Context) error {
	return nil
}
