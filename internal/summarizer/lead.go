package summarizer

import (
	"context"
	"strings"
)

// Lead is an offline Model. It summarizes by keeping leading sentences up to
// maxLength words and has no translation.
type Lead struct{}

// Summarize implements Model.
func (Lead) Summarize(_ context.Context, text string, _, maxLength int) (string, error) {
	if maxLength <= 0 {
		return "", nil
	}
	var (
		kept  []string
		words int
	)
	for _, sentence := range Sentences(text) {
		n := len(strings.Fields(sentence))
		if words > 0 && words+n > maxLength {
			break
		}
		kept = append(kept, sentence)
		words += n
		if words >= maxLength {
			break
		}
	}
	out := strings.Join(kept, " ")
	if fields := strings.Fields(out); len(fields) > maxLength {
		out = strings.Join(fields[:maxLength], " ")
	}
	return out, nil
}

// Translate implements Model.
func (Lead) Translate(context.Context, string) (string, error) {
	return "", nil
}
