package digest

import (
	"context"
	"log/slog"
	"time"

	"github.com/starradar/starradar/pkg/types"
	"github.com/starradar/starradar/radar/internal/config"
	"github.com/starradar/starradar/radar/internal/summary"
)

// Item is one digest entry.
type Item struct {
	// Rank is the 1-based position in the full ranking, not in the digest.
	Rank int `json:"rank"`
	types.Ranked
}

// Digest is the rendered-ready report of one run.
type Digest struct {
	Title       string    `json:"title"`
	RunID       string    `json:"run_id"`
	GeneratedAt time.Time `json:"generated_at"`

	// Total is the number of ranked candidates the items were chosen from.
	Total int    `json:"total"`
	Items []Item `json:"items"`
}

// Date returns the report date as YYYY-MM-DD.
func (d *Digest) Date() string {
	return d.GeneratedAt.Format("2006-01-02")
}

// Subject is the delivery subject line: "<title> - YYYY-MM-DD".
func (d *Digest) Subject() string {
	return d.Title + " - " + d.Date()
}

// ReadmeSource fetches raw README text. (*search.Client) satisfies it.
type ReadmeSource interface {
	Readme(ctx context.Context, id string) (string, error)
}

// Builder selects digest entries and fills their summaries.
type Builder struct {
	readmes  ReadmeSource
	cfg      config.DigestConfig
	channels []string
	logger   *slog.Logger
}

// NewBuilder returns a Builder. readmes may be nil, in which case every
// summary falls back to the repository description.
func NewBuilder(readmes ReadmeSource, cfg config.DigestConfig, channels []config.Channel, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	names := make([]string, len(channels))
	for i, ch := range channels {
		names[i] = ch.Name
	}
	return &Builder{readmes: readmes, cfg: cfg, channels: names, logger: logger}
}

// Build selects the channel-balanced top entries of ranked and summarizes
// each from its README. README failures are logged and fall back to the
// description; they never fail the build.
func (b *Builder) Build(ctx context.Context, ranked []types.Ranked, runID string, now time.Time) *Digest {
	rankOf := make(map[string]int, len(ranked))
	for i, r := range ranked {
		rankOf[r.ID] = i + 1
	}

	selected := Select(ranked, b.channels, b.cfg.TopN, b.cfg.PerChannel)
	items := make([]Item, 0, len(selected))
	for _, r := range selected {
		r.Summary = b.summarize(ctx, r.Candidate)
		items = append(items, Item{Rank: rankOf[r.ID], Ranked: r})
	}

	return &Digest{
		Title:       b.cfg.Title,
		RunID:       runID,
		GeneratedAt: now,
		Total:       len(ranked),
		Items:       items,
	}
}

func (b *Builder) summarize(ctx context.Context, c types.Candidate) string {
	if b.readmes == nil {
		return summary.For("", c.Description, b.cfg.SummaryLength)
	}
	readme, err := b.readmes.Readme(ctx, c.ID)
	if err != nil {
		b.logger.Warn("digest: readme fetch failed, using description", "repo", c.ID, "err", err)
		readme = ""
	}
	return summary.For(readme, c.Description, b.cfg.SummaryLength)
}
