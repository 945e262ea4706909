// Package search is the radar's window onto the repository host.
//
// Client wraps the GitHub REST API:
//   - Search(ctx, query, limit)   GET /search/repositories
//   - Repository(ctx, id)         GET /repos/{owner}/{name}
//   - Readme(ctx, id)             GET /repos/{owner}/{name}/readme (raw)
//
// Authentication uses an oauth2 static token source when a token is present
// in the environment. All calls share one gobreaker circuit breaker: after
// failure_threshold consecutive failures (network errors, 5xx, rate limits)
// further calls fail fast with gobreaker.ErrOpenState until open_timeout
// passes. 404s do not count as failures.
//
// FeedReader parses RSS/Atom feeds with gofeed and turns github.com links
// into owner/name identifiers for the channel retriever to hydrate.
package search
