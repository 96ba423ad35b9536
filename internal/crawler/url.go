package crawler

import (
	"fmt"
	"net/url"
	"strings"
)

// ResolveBase returns the URL relative links are resolved against: BaseURL
// when present, otherwise the origin (scheme://host) of URL.
func ResolveBase(src Source) (*url.URL, error) {
	if src.BaseURL != "" {
		base, err := url.Parse(src.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("parse base url: %w", err)
		}
		return base, nil
	}
	listing, err := url.Parse(src.URL)
	if err != nil {
		return nil, fmt.Errorf("parse source url: %w", err)
	}
	return &url.URL{Scheme: listing.Scheme, Host: listing.Host, Path: "/"}, nil
}

// ResolveLink turns href into an absolute http(s) URL for src. It reports
// false when href is empty or cannot be made absolute.
func ResolveLink(src Source, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	if !ref.IsAbs() {
		base, err := ResolveBase(src)
		if err != nil {
			return "", false
		}
		ref = base.ResolveReference(ref)
	}
	ref.Fragment = ""
	out := ref.String()
	if !isAbsoluteHTTP(out) {
		return "", false
	}
	return out, true
}

// NormalizeURL standardizes a URL so equal links compare equal.
// It lowercases the scheme and host, removes default ports, sorts query
// parameters, and drops fragments.
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	if u.Scheme == "http" && strings.HasSuffix(u.Host, ":80") {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" && strings.HasSuffix(u.Host, ":443") {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	u.Fragment = ""
	u.RawQuery = u.Query().Encode()

	return u.String(), nil
}
