// Package sha256 derives stable keys for digest records.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/JakeFAU/article-digest/internal/crawler"
)

// Hasher derives hex SHA-256 keys.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash hashes the input and returns a hex digest.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// RecordKey identifies an article across runs by its normalized link, so a
// re-summarized article replaces its earlier row.
func (h *Hasher) RecordKey(link string) string {
	normalized, err := crawler.NormalizeURL(strings.TrimSpace(link))
	if err != nil {
		normalized = strings.TrimSpace(link)
	}
	key, _ := h.Hash([]byte(normalized))
	return key
}
