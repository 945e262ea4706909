package search

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

// FeedReader pulls repository identifiers out of RSS/Atom feeds such as
// trending-repository feeds. Feeds are not queryable, so items are only
// filtered by whether they link to a repository.
type FeedReader struct {
	client *http.Client
	parser *gofeed.Parser
}

// NewFeedReader returns a FeedReader whose requests time out after timeout.
func NewFeedReader(timeout time.Duration) *FeedReader {
	return &FeedReader{
		client: &http.Client{Timeout: timeout},
		parser: gofeed.NewParser(),
	}
}

// Repositories returns up to limit distinct owner/name identifiers linked
// from the feed at feedURL, in feed order.
func (f *FeedReader) Repositories(ctx context.Context, feedURL string, limit int) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("feed %q: build request: %w", feedURL, err)
	}
	req.Header.Set("Accept", "application/atom+xml, application/rss+xml, application/xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed %q: %w", feedURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed %q: unexpected status %d", feedURL, resp.StatusCode)
	}

	feed, err := f.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("feed %q: parse: %w", feedURL, err)
	}

	seen := make(map[string]bool)
	var ids []string
	for _, it := range feed.Items {
		if len(ids) >= limit {
			break
		}
		links := append([]string{it.Link}, it.Links...)
		for _, l := range links {
			id, ok := RepoIDFromURL(l)
			if !ok || seen[id] {
				continue
			}
			seen[id] = true
			ids = append(ids, id)
			break
		}
	}
	return ids, nil
}

// RepoIDFromURL extracts owner/name from a github.com repository URL.
// Deeper paths (issues, releases) still resolve to their repository.
func RepoIDFromURL(raw string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	if host != "github.com" {
		return "", false
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", false
	}
	name := strings.TrimSuffix(parts[1], ".git")
	switch parts[0] {
	case "topics", "trending", "orgs", "users", "search", "marketplace", "sponsors", "collections":
		return "", false
	}
	return parts[0] + "/" + name, true
}
