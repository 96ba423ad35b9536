// Package api hosts the HTTP server that exposes the latest digest.
// Routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/digest/latest for the last digest as JSON.
//   - GET /v1/digest/feed?format=rss|atom|json for the same digest as a feed.
package api
