package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/starradar/starradar/radar/internal/api"
	"github.com/starradar/starradar/radar/internal/config"
	"github.com/starradar/starradar/radar/internal/pipeline"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run on a schedule and serve the latest ranking",
	Long: `Run immediately, then every schedule.interval. Config changes are
picked up before the next run. When server.http_addr is set the REST API
serves the latest ranking and digest.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()
		return watch(ctx, cfg)
	},
}

// watch serves the API and runs the scheduler until ctx is cancelled.
func watch(ctx context.Context, initial *config.Config) error {
	logger := slog.Default()
	store := api.NewStore()
	sched := newScheduler(initial, store, func(cfg *config.Config) (passRunner, error) {
		r, err := newRunner(cfg, logger)
		if err != nil {
			return nil, err
		}
		return r, nil
	})

	go func() {
		if err := config.Watch(ctx, cfgFile, sched.update); err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()

	var httpSrv *http.Server
	if addr := initial.Server.HTTPAddr; addr != "" {
		httpSrv = &http.Server{
			Addr:              addr,
			Handler:           api.New(store),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			slog.Info("HTTP server listening", "addr", addr)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("HTTP server stopped", "err", err)
			}
		}()
	}

	sched.loop(ctx)

	slog.Info("radar shutting down")
	if httpSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
	}
	return nil
}

// passRunner is one configured pipeline; *pipeline.Runner implements it.
type passRunner interface {
	Run(ctx context.Context) (*pipeline.Outcome, error)
}

// scheduler runs passes sequentially: one immediately, then one per
// schedule.interval of the current config. Passes never overlap.
type scheduler struct {
	store     *api.Store
	newRunner func(*config.Config) (passRunner, error)

	mu      sync.Mutex
	current *config.Config
	reload  chan struct{}
}

func newScheduler(cfg *config.Config, store *api.Store, factory func(*config.Config) (passRunner, error)) *scheduler {
	return &scheduler{
		store:     store,
		newRunner: factory,
		current:   cfg,
		reload:    make(chan struct{}, 1),
	}
}

// update swaps in a reloaded config. The next pass uses it, and an interval
// change resets the ticker without waiting for the old interval to elapse.
func (s *scheduler) update(cfg *config.Config) {
	s.mu.Lock()
	s.current = cfg
	s.mu.Unlock()
	slog.Info("config hot-reloaded", "channels", len(cfg.Channels), "interval", cfg.Schedule.Interval)

	select {
	case s.reload <- struct{}{}:
	default:
	}
}

func (s *scheduler) config() *config.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *scheduler) loop(ctx context.Context) {
	s.pass(ctx)
	interval := s.config().Schedule.Interval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.reload:
			if next := s.config().Schedule.Interval; next != interval {
				interval = next
				ticker.Reset(interval)
				slog.Info("schedule changed", "interval", interval)
			}
		case <-ticker.C:
			s.pass(ctx)
		}
	}
}

// pass runs the pipeline once with the current config and publishes the
// outcome. A run that fails to start or aborts leaves the store unchanged.
func (s *scheduler) pass(ctx context.Context) {
	runner, err := s.newRunner(s.config())
	if err != nil {
		slog.Error("run skipped", "err", err)
		return
	}
	out, err := runner.Run(ctx)
	if err != nil {
		slog.Error("run failed", "err", err)
		return
	}
	failures := len(out.Failures)
	if out.DeliveryErr != nil {
		failures++
	}
	if out.PersistErr != nil {
		failures++
	}
	s.store.Put(&api.Snapshot{
		RunID:      out.RunID,
		FinishedAt: out.FinishedAt,
		Ranking:    out.Ranking,
		Digest:     out.Digest,
		Failures:   failures,
	})
}
