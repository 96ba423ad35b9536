// Package detector flags article pages whose text is filled in by scripts,
// so callers can retry them in a browser.
package detector

import (
	"bytes"
	"net/http"

	"github.com/JakeFAU/article-digest/internal/crawler"
)

// DefaultMinBytes is the body size below which script-heavy pages count as shells.
const DefaultMinBytes = 2048

// scriptSharePercent is the share of a small body inside <script> elements
// that marks it as a shell.
const scriptSharePercent = 25

var shellMarkers = [][]byte{
	[]byte(`id="__next"`),
	[]byte("__next_data__"),
	[]byte(`id="root"></div>`),
	[]byte(`id="app"></div>`),
	[]byte("data-reactroot"),
	[]byte("ng-app"),
	[]byte("window.__nuxt__"),
	[]byte("window.__apollo_state__"),
}

// Heuristic is a rule-based shell detector.
type Heuristic struct {
	minBytes int
}

// NewHeuristic creates a detector. A non-positive minBytes uses DefaultMinBytes.
func NewHeuristic(minBytes int) *Heuristic {
	if minBytes <= 0 {
		minBytes = DefaultMinBytes
	}
	return &Heuristic{minBytes: minBytes}
}

// ScriptRendered reports whether a successful response looks like an
// application shell: empty, carrying a framework mount marker, or small and
// dominated by scripts.
func (h *Heuristic) ScriptRendered(resp crawler.FetchResponse) bool {
	if resp.StatusCode != http.StatusOK {
		return false
	}
	body := bytes.ToLower(bytes.TrimSpace(resp.Body))
	if len(body) == 0 {
		return true
	}
	for _, marker := range shellMarkers {
		if bytes.Contains(body, marker) {
			return true
		}
	}
	return len(body) < h.minBytes && scriptShare(body) >= scriptSharePercent
}

// scriptShare returns the percentage of body bytes inside <script> elements.
// An unterminated script runs to the end of the body.
func scriptShare(body []byte) int {
	var (
		openTag  = []byte("<script")
		closeTag = []byte("</script>")
		covered  int
		rest     = body
	)
	for {
		start := bytes.Index(rest, openTag)
		if start < 0 {
			break
		}
		end := bytes.Index(rest[start:], closeTag)
		if end < 0 {
			covered += len(rest) - start
			break
		}
		end += start + len(closeTag)
		covered += end - start
		rest = rest[end:]
	}
	return covered * 100 / len(body)
}
