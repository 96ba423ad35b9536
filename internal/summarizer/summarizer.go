// Package summarizer condenses article text into a short bilingual summary
// plus per-chunk key points.
package summarizer

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/samber/lo"
	"github.com/samber/mo"
	"go.uber.org/zap"

	"github.com/JakeFAU/article-digest/internal/crawler"
)

// Pipeline limits.
const (
	MinWords          = 30
	ChunkSize         = 1024
	TranslateChunkLen = 200
)

// Model is the pair of text-to-text operations the pipeline needs.
type Model interface {
	// Summarize condenses text to between minLength and maxLength tokens.
	Summarize(ctx context.Context, text string, minLength, maxLength int) (string, error)
	// Translate renders English text in Chinese. An empty result means the
	// model has no translation.
	Translate(ctx context.Context, text string) (string, error)
}

// Summarizer implements crawler.Summarizer on top of a Model.
type Summarizer struct {
	model  Model
	logger *zap.Logger
}

// New builds a Summarizer.
func New(model Model, logger *zap.Logger) *Summarizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Summarizer{model: model, logger: logger}
}

// Summarize returns None for input under MinWords words. A model failure
// returns an error and no partial summary.
func (s *Summarizer) Summarize(ctx context.Context, text string) (mo.Option[crawler.Summary], error) {
	cleaned := Clean(text)
	if len(strings.Fields(cleaned)) < MinWords {
		return mo.None[crawler.Summary](), nil
	}

	head := Chunks(cleaned, ChunkSize)[0]
	maxLength := min(150, utf8.RuneCountInString(head)-10)
	summaryEN, err := s.model.Summarize(ctx, head, min(50, maxLength-10), maxLength)
	if err != nil {
		return mo.None[crawler.Summary](), fmt.Errorf("summarize: %w", err)
	}

	var pointsEN []string
	for _, chunk := range Chunks(cleaned, ChunkSize) {
		maxLength := min(50, utf8.RuneCountInString(chunk)-5)
		if maxLength <= 0 {
			continue
		}
		point, err := s.model.Summarize(ctx, chunk, max(0, min(20, maxLength-5)), maxLength)
		if err != nil {
			return mo.None[crawler.Summary](), fmt.Errorf("summarize key point: %w", err)
		}
		if point = strings.TrimSpace(point); point != "" {
			pointsEN = append(pointsEN, point)
		}
	}

	summaryZH, err := s.translate(ctx, summaryEN)
	if err != nil {
		return mo.None[crawler.Summary](), err
	}
	pointsZH := make([]string, 0, len(pointsEN))
	for _, point := range pointsEN {
		zh, err := s.translate(ctx, point)
		if err != nil {
			return mo.None[crawler.Summary](), err
		}
		pointsZH = append(pointsZH, zh)
	}

	s.logger.Debug("summarized",
		zap.Int("chars", utf8.RuneCountInString(cleaned)),
		zap.Int("key_points", len(pointsEN)),
	)
	return mo.Some(crawler.Summary{
		Summary:   crawler.Bilingual{EN: strings.TrimSpace(summaryEN), ZH: summaryZH},
		KeyPoints: crawler.KeyPoints{EN: pointsEN, ZH: pointsZH},
	}), nil
}

// translate renders text chunk by chunk. A failed chunk is replaced by a
// marker so one bad sentence does not lose the rest.
func (s *Summarizer) translate(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	chunks := SentenceChunks(text, TranslateChunkLen)
	out := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		zh, err := s.model.Translate(ctx, chunk)
		if err != nil {
			if ctx.Err() != nil {
				return "", fmt.Errorf("translate: %w", ctx.Err())
			}
			s.logger.Warn("translate chunk failed", zap.Int("chunk", i+1), zap.Error(err))
			out = append(out, fmt.Sprintf("[translation error for chunk %d]", i+1))
			continue
		}
		if zh = strings.TrimSpace(zh); zh != "" {
			out = append(out, zh)
		}
	}
	return strings.Join(out, " "), nil
}

// Clean collapses all whitespace runs into single spaces.
func Clean(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// Chunks splits text into pieces of at most size runes.
func Chunks(text string, size int) []string {
	runes := []rune(text)
	if len(runes) <= size {
		return []string{text}
	}
	return lo.Map(lo.Chunk(runes, size), func(chunk []rune, _ int) string {
		return string(chunk)
	})
}

var sentenceEnd = regexp.MustCompile(`[.!?]\s+`)

// Sentences splits text after '.', '!' or '?' followed by whitespace.
func Sentences(text string) []string {
	var out []string
	start := 0
	for _, loc := range sentenceEnd.FindAllStringIndex(text, -1) {
		out = append(out, text[start:loc[0]+1])
		start = loc[1]
	}
	out = append(out, text[start:])
	return lo.Filter(lo.Map(out, func(s string, _ int) string {
		return strings.TrimSpace(s)
	}), func(s string, _ int) bool {
		return s != ""
	})
}

// SentenceChunks groups whole sentences into chunks of about limit characters.
// A single sentence longer than limit becomes its own chunk.
func SentenceChunks(text string, limit int) []string {
	var (
		chunks  []string
		current []string
		length  int
	)
	for _, sentence := range Sentences(text) {
		if length+len(sentence) > limit && len(current) > 0 {
			chunks = append(chunks, strings.Join(current, " "))
			current, length = nil, 0
		}
		current = append(current, sentence)
		length += len(sentence)
	}
	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, " "))
	}
	return chunks
}
