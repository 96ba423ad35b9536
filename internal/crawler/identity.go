package crawler

import (
	"net/http"
	"strings"
)

// DefaultUserAgent is the desktop browser identity presented to every host.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Accept values for the documents the crawlers request.
const (
	AcceptHTML = "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8"
	AcceptFeed = "application/rss+xml,application/atom+xml,application/xml;q=0.9,text/xml;q=0.8,*/*;q=0.5"
	AcceptJSON = "application/json"
)

// DefaultAcceptLanguage accompanies every request, including browser navigations.
const DefaultAcceptLanguage = "en-US,en;q=0.9"

var baseHeaders = map[string]string{
	"User-Agent":                DefaultUserAgent,
	"Accept-Language":           DefaultAcceptLanguage,
	"Upgrade-Insecure-Requests": "1",
	"Sec-Fetch-Dest":            "document",
	"Sec-Fetch-Mode":            "navigate",
	"Sec-Fetch-Site":            "none",
	"Sec-Fetch-User":            "?1",
	"Cache-Control":             "max-age=0",
	"DNT":                       "1",
}

// hostHeaders are applied when the request host equals or is a subdomain of the key.
var hostHeaders = map[string]map[string]string{
	"openai.com": {
		"Origin":             "https://openai.com",
		"Referer":            "https://openai.com/news",
		"sec-ch-ua":          `"Not_A Brand";v="8", "Chromium";v="120", "Google Chrome";v="120"`,
		"sec-ch-ua-mobile":   "?0",
		"sec-ch-ua-platform": `"Windows"`,
	},
}

// RequestHeaders builds the header set for a request to target on behalf of
// src. Later layers win: defaults, host overrides, then src.Headers.
func RequestHeaders(src Source, target, accept string) http.Header {
	headers := make(http.Header, len(baseHeaders)+4)
	for k, v := range baseHeaders {
		headers.Set(k, v)
	}
	if accept != "" {
		headers.Set("Accept", accept)
	}
	host := hostOf(target)
	for suffix, overrides := range hostHeaders {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			for k, v := range overrides {
				headers.Set(k, v)
			}
		}
	}
	for k, v := range src.Headers {
		headers.Set(k, v)
	}
	return headers
}
