package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/starradar/starradar/pkg/types"
	"github.com/starradar/starradar/radar/internal/cache"
	"github.com/starradar/starradar/radar/internal/channel"
	"github.com/starradar/starradar/radar/internal/config"
	"github.com/starradar/starradar/radar/internal/digest"
	"github.com/starradar/starradar/radar/internal/metrics"
	"github.com/starradar/starradar/radar/internal/rank"
)

// Notifier delivers a finished digest. (*notify.Notifier) satisfies it.
type Notifier interface {
	Deliver(ctx context.Context, d *digest.Digest) error
}

// Deps are the network collaborators of a run.
type Deps struct {
	Source channel.Source

	// Feeds is optional; nil disables feed channels.
	Feeds channel.FeedReader

	// Readmes is optional; nil makes every summary fall back to the description.
	Readmes digest.ReadmeSource

	// Notifier is optional; nil skips delivery.
	Notifier Notifier
}

// Outcome is everything one run produced.
type Outcome struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time

	Ranking []types.Ranked
	Digest  *digest.Digest

	Queries   int
	Failures  []error
	CacheHits int

	// PersistErr joins cache, report and metrics write failures.
	PersistErr error

	// DeliveryErr joins the per-target delivery failures.
	DeliveryErr error
}

// Failed reports whether anything after scoring went wrong.
func (o *Outcome) Failed() bool {
	return o.PersistErr != nil || o.DeliveryErr != nil
}

// Runner executes the retrieve, rank, persist, digest and deliver sequence.
// A Runner is bound to one config; build a new one after a reload.
type Runner struct {
	cfg       *config.Config
	retriever *channel.Retriever
	ranker    *rank.Ranker
	builder   *digest.Builder
	notifier  Notifier
	logger    *slog.Logger

	openCache func(context.Context, config.CacheConfig) (cache.Backend, error)
	now       func() time.Time // injectable for deterministic tests
	newID     func() string
}

// New builds a Runner from a validated config.
func New(cfg *config.Config, deps Deps, logger *slog.Logger) (*Runner, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Source == nil {
		return nil, errors.New("pipeline: a search source is required")
	}
	ranker, err := rank.New(cfg.Channels, rank.ParamsFromConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	return &Runner{
		cfg:       cfg,
		retriever: channel.New(deps.Source, deps.Feeds, cfg.Channels, cfg.Search.PerQueryCap, cfg.Search.Concurrency, logger),
		ranker:    ranker,
		builder:   digest.NewBuilder(deps.Readmes, cfg.Digest, cfg.Channels, logger),
		notifier:  deps.Notifier,
		logger:    logger,
		openCache: cache.New,
		now:       time.Now,
		newID:     uuid.NewString,
	}, nil
}

// Run performs one full pass. It returns an error only when the run could
// not reach scoring; later failures are recorded on the Outcome so the
// caller still gets the ranking.
func (r *Runner) Run(ctx context.Context) (*Outcome, error) {
	out := &Outcome{RunID: r.newID(), StartedAt: r.now()}
	log := r.logger.With("run_id", out.RunID)
	log.Info("pipeline: run started", "channels", len(r.cfg.Channels), "cache", r.cfg.Cache.Backend)

	backend, err := r.openCache(ctx, r.cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("pipeline: open cache: %w", err)
	}
	defer backend.Close() //nolint:errcheck

	store, err := r.loadCache(ctx, backend, log)
	if err != nil {
		return nil, err
	}

	res := r.retriever.Retrieve(ctx)
	out.Queries = res.Queries
	out.Failures = res.Failures

	now := r.now()
	out.Ranking = r.ranker.Rank(res.Candidates, store.Get, now)
	for _, rk := range out.Ranking {
		if rk.GrowthSource == types.GrowthFromHistory {
			out.CacheHits++
		}
	}

	var persistErrs []error

	// Stars are recorded for every candidate, ranked high or low.
	store.Observe(res.Candidates, now)
	if err := backend.Save(ctx, store.Entries()); err != nil {
		log.Error("pipeline: cache save failed", "err", err)
		persistErrs = append(persistErrs, fmt.Errorf("pipeline: save cache: %w", err))
	}

	out.Digest = r.builder.Build(ctx, out.Ranking, out.RunID, now)
	paths := digest.Paths{HTML: r.cfg.Digest.HTMLPath, JSON: r.cfg.Digest.JSONPath, DOCX: r.cfg.Digest.DOCXPath}
	if err := digest.WriteFiles(out.Digest, paths); err != nil {
		log.Error("pipeline: report write failed", "err", err)
		persistErrs = append(persistErrs, err)
	} else if paths.HTML != "" {
		log.Info("pipeline: report written", "path", paths.HTML, "items", len(out.Digest.Items))
	}

	if r.notifier != nil {
		if err := r.notifier.Deliver(ctx, out.Digest); err != nil {
			log.Error("pipeline: delivery failed", "err", err)
			out.DeliveryErr = err
		}
	}

	out.FinishedAt = r.now()
	if path := r.cfg.Metrics.TextfilePath; path != "" {
		if err := metrics.WriteTextfile(path, r.stats(out, store.Len())); err != nil {
			log.Error("pipeline: metrics write failed", "err", err)
			persistErrs = append(persistErrs, err)
		}
	}
	out.PersistErr = errors.Join(persistErrs...)

	log.Info("pipeline: run complete",
		"candidates", len(out.Ranking),
		"queries", out.Queries,
		"failed_queries", len(out.Failures),
		"cache_hits", out.CacheHits,
		"digest_items", len(out.Digest.Items),
		"duration", out.FinishedAt.Sub(out.StartedAt),
	)
	return out, nil
}

// loadCache reads persisted history. A corrupt cache is logged and replaced
// by an empty one; any other load failure aborts the run.
func (r *Runner) loadCache(ctx context.Context, backend cache.Backend, log *slog.Logger) (*cache.Store, error) {
	entries, err := backend.Load(ctx)
	var corrupt *cache.CorruptError
	switch {
	case errors.As(err, &corrupt):
		log.Warn("pipeline: cache corrupt, starting empty", "backend", corrupt.Backend, "err", corrupt.Err)
		return cache.NewStore(nil), nil
	case err != nil:
		return nil, fmt.Errorf("pipeline: load cache: %w", err)
	}
	log.Debug("pipeline: cache loaded", "entries", len(entries))
	return cache.NewStore(entries), nil
}

func (r *Runner) stats(out *Outcome, cacheEntries int) metrics.RunStats {
	perChannel := make(map[string]int, len(r.cfg.Channels))
	for _, rk := range out.Ranking {
		for _, ch := range rk.Channels {
			perChannel[ch]++
		}
	}
	return metrics.RunStats{
		Candidates:        len(out.Ranking),
		Queries:           out.Queries,
		QueriesFailed:     len(out.Failures),
		CacheHits:         out.CacheHits,
		CacheEntries:      cacheEntries,
		Duration:          out.FinishedAt.Sub(out.StartedAt),
		FinishedAt:        out.FinishedAt,
		ChannelCandidates: perChannel,
	}
}
