// Package crawler holds the source-acquisition contracts: source descriptors,
// the Crawler capability interface implemented by the browser, feed, and API
// transports, the shared retry policy, and the records handed to sinks.
package crawler
