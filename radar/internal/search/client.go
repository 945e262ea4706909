package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/oauth2"

	"github.com/starradar/starradar/pkg/types"
	"github.com/starradar/starradar/radar/internal/config"
)

const (
	apiVersion   = "2022-11-28"
	mediaJSON    = "application/vnd.github+json"
	mediaRaw     = "application/vnd.github.raw+json"
	maxBodyBytes = 8 << 20
)

// ErrNotFound is returned when the API answers 404.
var ErrNotFound = errors.New("search: not found")

// RateLimitError is returned for 403/429 answers carrying rate-limit headers.
type RateLimitError struct {
	Status int
	Reset  time.Time // zero when the API did not say
}

func (e *RateLimitError) Error() string {
	if e.Reset.IsZero() {
		return fmt.Sprintf("search: rate limited (HTTP %d)", e.Status)
	}
	return fmt.Sprintf("search: rate limited (HTTP %d) until %s", e.Status, e.Reset.UTC().Format(time.RFC3339))
}

// Client talks to the GitHub REST API. Every call goes through one circuit
// breaker so a rate-limited or unreachable API fails fast for the rest of
// the run instead of burning the per-call timeout on every query.
type Client struct {
	baseURL string
	sort    string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
	logger  *slog.Logger
}

// New builds a Client from the GitHub section of the config. When a token is
// available the transport authenticates with it via oauth2.
func New(cfg config.GitHubConfig, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	u, err := url.Parse(cfg.APIURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("search: invalid api_url %q", cfg.APIURL)
	}

	var transport http.RoundTripper = &headerRoundTripper{
		base:      http.DefaultTransport,
		userAgent: cfg.UserAgent,
	}
	if token := cfg.Token(); token != "" {
		transport = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}),
			Base:   transport,
		}
	} else {
		logger.Warn("search: no API token configured, using unauthenticated rate limits")
	}

	c := &Client{
		baseURL: strings.TrimRight(cfg.APIURL, "/"),
		sort:    cfg.Sort,
		http:    &http.Client{Transport: transport, Timeout: cfg.Timeout},
		logger:  logger,
	}
	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "github",
		MaxRequests: 1,
		Timeout:     cfg.Breaker.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.Breaker.FailureThreshold
		},
		// A missing readme or repository is an answer, not an outage.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("search: circuit breaker state changed",
				"breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return c, nil
}

// headerRoundTripper injects the API version, user agent and default Accept
// header into every outgoing request.
type headerRoundTripper struct {
	base      http.RoundTripper
	userAgent string
}

func (t *headerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	if t.userAgent != "" {
		req.Header.Set("User-Agent", t.userAgent)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", mediaJSON)
	}
	return t.base.RoundTrip(req)
}

// repoJSON is the subset of the GitHub repository object we read.
type repoJSON struct {
	FullName        string    `json:"full_name"`
	Name            string    `json:"name"`
	Description     *string   `json:"description"`
	HTMLURL         string    `json:"html_url"`
	Language        *string   `json:"language"`
	StargazersCount int       `json:"stargazers_count"`
	ForksCount      int       `json:"forks_count"`
	OpenIssuesCount int       `json:"open_issues_count"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	PushedAt        time.Time `json:"pushed_at"`
	Topics          []string  `json:"topics"`
}

type searchResponse struct {
	TotalCount        int        `json:"total_count"`
	IncompleteResults bool       `json:"incomplete_results"`
	Items             []repoJSON `json:"items"`
}

// Search runs one repository-search query and returns at most limit results,
// newest activity first when sort is "updated".
func (c *Client) Search(ctx context.Context, query string, limit int) ([]types.Candidate, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("search: limit must be positive, got %d", limit)
	}
	params := url.Values{}
	params.Set("q", query)
	params.Set("sort", c.sort)
	params.Set("order", "desc")
	params.Set("per_page", strconv.Itoa(limit))

	body, err := c.get(ctx, "/search/repositories", params, mediaJSON)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("search %q: decode: %w", query, err)
	}
	if resp.IncompleteResults {
		c.logger.Debug("search: incomplete results", "query", query)
	}

	items := resp.Items
	if len(items) > limit {
		items = items[:limit]
	}
	out := make([]types.Candidate, 0, len(items))
	for _, it := range items {
		out = append(out, it.toCandidate())
	}
	return out, nil
}

// Repository fetches a single repository by owner/name.
func (c *Client) Repository(ctx context.Context, id string) (types.Candidate, error) {
	if _, _, ok := SplitID(id); !ok {
		return types.Candidate{}, fmt.Errorf("search: invalid repository id %q", id)
	}
	body, err := c.get(ctx, "/repos/"+id, nil, mediaJSON)
	if err != nil {
		return types.Candidate{}, fmt.Errorf("repository %q: %w", id, err)
	}
	var r repoJSON
	if err := json.Unmarshal(body, &r); err != nil {
		return types.Candidate{}, fmt.Errorf("repository %q: decode: %w", id, err)
	}
	return r.toCandidate(), nil
}

// Readme returns the raw README text of a repository.
// A repository without a README yields ("", nil).
func (c *Client) Readme(ctx context.Context, id string) (string, error) {
	if _, _, ok := SplitID(id); !ok {
		return "", fmt.Errorf("search: invalid repository id %q", id)
	}
	body, err := c.get(ctx, "/repos/"+id+"/readme", nil, mediaRaw)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("readme %q: %w", id, err)
	}
	return string(body), nil
}

// get performs a GET through the circuit breaker and returns the body of a
// 200 response.
func (c *Client) get(ctx context.Context, path string, params url.Values, accept string) ([]byte, error) {
	target := c.baseURL + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}
	return c.breaker.Execute(func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Accept", accept)

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("http get: %w", err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
			if err != nil {
				return nil, fmt.Errorf("read body: %w", err)
			}
			return body, nil
		case resp.StatusCode == http.StatusNotFound:
			return nil, ErrNotFound
		case resp.StatusCode == http.StatusTooManyRequests,
			resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0":
			return nil, &RateLimitError{Status: resp.StatusCode, Reset: parseReset(resp.Header.Get("X-RateLimit-Reset"))}
		default:
			return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
	})
}

// parseReset converts the X-RateLimit-Reset epoch seconds header to a time.
func parseReset(v string) time.Time {
	secs, err := strconv.ParseInt(v, 10, 64)
	if err != nil || secs <= 0 {
		return time.Time{}
	}
	return time.Unix(secs, 0)
}

func (r repoJSON) toCandidate() types.Candidate {
	c := types.Candidate{
		ID:         r.FullName,
		Name:       r.Name,
		URL:        r.HTMLURL,
		Stars:      r.StargazersCount,
		Forks:      r.ForksCount,
		OpenIssues: r.OpenIssuesCount,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
		Topics:     r.Topics,
	}
	if r.PushedAt.After(c.UpdatedAt) {
		c.UpdatedAt = r.PushedAt
	}
	if r.Description != nil {
		c.Description = *r.Description
	}
	if r.Language != nil {
		c.Language = *r.Language
	}
	if c.Name == "" {
		_, c.Name, _ = SplitID(r.FullName)
	}
	return c
}

// SplitID splits an owner/name identifier.
func SplitID(id string) (owner, name string, ok bool) {
	owner, name, found := strings.Cut(id, "/")
	if !found || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", false
	}
	return owner, name, true
}
