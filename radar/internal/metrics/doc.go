// Package metrics exports per-run statistics as a Prometheus text
// exposition file, for the node-exporter textfile collector. A batch job
// has no long-lived /metrics endpoint to scrape, so the file is rewritten
// after every run instead.
package metrics
