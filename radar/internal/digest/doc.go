// Package digest turns a ranking into the delivered report.
//
// Select picks a channel-balanced top N; Builder fills README summaries;
// render.go produces the HTML page (also the e-mail body), JSON, plain
// text for chat webhooks and an optional DOCX export.
package digest
