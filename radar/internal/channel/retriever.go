package channel

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/starradar/starradar/pkg/types"
	"github.com/starradar/starradar/radar/internal/config"
)

// Source is the repository-search interface the retriever queries.
type Source interface {
	Search(ctx context.Context, query string, limit int) ([]types.Candidate, error)
	Repository(ctx context.Context, id string) (types.Candidate, error)
}

// FeedReader lists repository IDs linked from an RSS/Atom feed.
type FeedReader interface {
	Repositories(ctx context.Context, feedURL string, limit int) ([]string, error)
}

// QueryError reports one failed query or feed. It never aborts a run.
type QueryError struct {
	Channel string
	Query   string
	Err     error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("channel %q: query %q: %v", e.Channel, e.Query, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// Result is the merged output of one retrieval pass.
type Result struct {
	// Candidates are deduplicated by ID and sorted by ID.
	Candidates []types.Candidate

	// Queries is the number of queries and feeds issued.
	Queries int

	// Failures holds one *QueryError per skipped query, feed or feed item.
	Failures []error
}

// Retriever fans the configured channels out over a Source.
type Retriever struct {
	src         Source
	feeds       FeedReader
	channels    []config.Channel
	perQueryCap int
	concurrency int
	logger      *slog.Logger
}

// New returns a Retriever. feeds may be nil when no channel lists feeds.
func New(src Source, feeds FeedReader, channels []config.Channel, perQueryCap, concurrency int, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Retriever{
		src:         src,
		feeds:       feeds,
		channels:    channels,
		perQueryCap: perQueryCap,
		concurrency: concurrency,
		logger:      logger,
	}
}

// task is one unit of retrieval: a search query or a feed URL.
type task struct {
	channel string
	query   string
	feed    bool
}

// slot collects the output of one task.
type slot struct {
	cands    []types.Candidate
	failures []error
}

// Retrieve issues every query and feed and merges the results.
func (r *Retriever) Retrieve(ctx context.Context) Result {
	var tasks []task
	for _, ch := range r.channels {
		for _, q := range ch.Queries {
			tasks = append(tasks, task{channel: ch.Name, query: q})
		}
		if r.feeds == nil {
			continue
		}
		for _, f := range ch.Feeds {
			tasks = append(tasks, task{channel: ch.Name, query: f, feed: true})
		}
	}

	slots := make([]slot, len(tasks))
	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for i, tk := range tasks {
		g.Go(func() error {
			if tk.feed {
				slots[i] = r.runFeed(ctx, tk)
			} else {
				slots[i] = r.runQuery(ctx, tk)
			}
			return nil
		})
	}
	_ = g.Wait() // tasks report failures through their slots

	res := Result{Queries: len(tasks)}
	for _, s := range slots {
		res.Failures = append(res.Failures, s.failures...)
	}
	res.Candidates = r.merge(tasks, slots)

	r.logger.Info("channel: retrieval complete",
		"queries", res.Queries,
		"failed", len(res.Failures),
		"candidates", len(res.Candidates),
	)
	return res
}

func (r *Retriever) runQuery(ctx context.Context, tk task) slot {
	cands, err := r.src.Search(ctx, tk.query, r.perQueryCap)
	if err != nil {
		return slot{failures: []error{r.fail(tk, err)}}
	}
	r.logger.Debug("channel: query done", "channel", tk.channel, "query", tk.query, "results", len(cands))
	return slot{cands: cands}
}

// runFeed reads repository IDs from a feed and hydrates each one through
// the Source. Items that fail to hydrate are skipped individually.
func (r *Retriever) runFeed(ctx context.Context, tk task) slot {
	ids, err := r.feeds.Repositories(ctx, tk.query, r.perQueryCap)
	if err != nil {
		return slot{failures: []error{r.fail(tk, err)}}
	}
	var s slot
	for _, id := range ids {
		c, err := r.src.Repository(ctx, id)
		if err != nil {
			s.failures = append(s.failures, r.fail(tk, fmt.Errorf("hydrate %s: %w", id, err)))
			continue
		}
		s.cands = append(s.cands, c)
	}
	r.logger.Debug("channel: feed done", "channel", tk.channel, "feed", tk.query, "results", len(s.cands))
	return s
}

func (r *Retriever) fail(tk task, err error) error {
	qe := &QueryError{Channel: tk.channel, Query: tk.query, Err: err}
	r.logger.Warn("channel: query failed", "channel", tk.channel, "query", tk.query, "err", err)
	return qe
}

// merge deduplicates candidates by ID, unions channel tags and topics, and
// returns the set sorted by ID. Channel tags follow configured order.
func (r *Retriever) merge(tasks []task, slots []slot) []types.Candidate {
	order := make(map[string]int, len(r.channels))
	for i, ch := range r.channels {
		order[ch.Name] = i
	}

	byID := make(map[string]*types.Candidate)
	for i, s := range slots {
		chName := tasks[i].channel
		for _, c := range s.cands {
			if c.ID == "" {
				continue
			}
			existing, ok := byID[c.ID]
			if !ok {
				merged := c
				merged.Channels = []string{chName}
				merged.Topics = append([]string(nil), c.Topics...)
				byID[c.ID] = &merged
				continue
			}
			if !existing.HasChannel(chName) {
				existing.Channels = append(existing.Channels, chName)
			}
			existing.Topics = unionStrings(existing.Topics, c.Topics)
		}
	}

	out := make([]types.Candidate, 0, len(byID))
	for _, c := range byID {
		sort.SliceStable(c.Channels, func(a, b int) bool {
			return order[c.Channels[a]] < order[c.Channels[b]]
		})
		out = append(out, *c)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out
}

// unionStrings appends the members of add not already in base.
func unionStrings(base, add []string) []string {
	if len(add) == 0 {
		return base
	}
	seen := make(map[string]bool, len(base))
	for _, s := range base {
		seen[s] = true
	}
	for _, s := range add {
		if !seen[s] {
			seen[s] = true
			base = append(base, s)
		}
	}
	return base
}
