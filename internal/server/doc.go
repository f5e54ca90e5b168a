// Package server exposes the HTTP API: playback control (start, stop,
// pause), health and statistics endpoints, and the Prometheus scrape
// target. Every handler except /metrics is wrapped with request metrics.
package server
