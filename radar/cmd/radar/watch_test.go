package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/starradar/starradar/pkg/types"
	"github.com/starradar/starradar/radar/internal/api"
	"github.com/starradar/starradar/radar/internal/config"
	"github.com/starradar/starradar/radar/internal/digest"
	"github.com/starradar/starradar/radar/internal/pipeline"
)

// countingRunner records how many passes ran and how many overlapped.
type countingRunner struct {
	delay   time.Duration
	err     error
	outcome *pipeline.Outcome

	inFlight atomic.Int32
	peak     atomic.Int32
	runs     atomic.Int32
	lastCfg  atomic.Pointer[config.Config]
}

func (c *countingRunner) factory(cfg *config.Config) (passRunner, error) {
	c.lastCfg.Store(cfg)
	return c, nil
}

func (c *countingRunner) Run(ctx context.Context) (*pipeline.Outcome, error) {
	n := c.inFlight.Add(1)
	defer c.inFlight.Add(-1)
	for {
		p := c.peak.Load()
		if n <= p || c.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(c.delay)
	run := c.runs.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	if c.outcome != nil {
		return c.outcome, nil
	}
	return &pipeline.Outcome{
		RunID:      fmt.Sprintf("run-%d", run),
		FinishedAt: time.Now(),
		Ranking:    []types.Ranked{},
		Digest:     &digest.Digest{},
	}, nil
}

func scheduleConfig(interval time.Duration) *config.Config {
	return &config.Config{Schedule: config.ScheduleConfig{Interval: interval}}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

// startLoop runs s.loop in the background and returns a stop func that
// cancels it and waits for it to return.
func startLoop(t *testing.T, s *scheduler) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.loop(ctx)
	}()
	stop := func() {
		cancel()
		select {
		case <-done:
		case <-time.After(3 * time.Second):
			t.Fatal("scheduler did not stop after cancel")
		}
	}
	t.Cleanup(cancel)
	return stop
}

func TestScheduler_APIUnavailableUntilFirstPass(t *testing.T) {
	store := api.NewStore()
	srv := httptest.NewServer(api.New(store))
	defer srv.Close()

	get := func() int {
		resp, err := http.Get(srv.URL + "/api/v1/ranking")
		if err != nil {
			t.Fatalf("GET ranking: %v", err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}
	if code := get(); code != http.StatusServiceUnavailable {
		t.Fatalf("before first pass: status = %d, want 503", code)
	}

	runner := &countingRunner{}
	stop := startLoop(t, newScheduler(scheduleConfig(time.Hour), store, runner.factory))
	waitFor(t, "first pass", func() bool { return store.Runs() == 1 })
	stop()

	if code := get(); code != http.StatusOK {
		t.Errorf("after first pass: status = %d, want 200", code)
	}
	if snap, ok := store.Latest(); !ok || snap.RunID != "run-1" {
		t.Errorf("latest = %+v, %v; want run-1", snap, ok)
	}
}

func TestScheduler_PassesNeverOverlap(t *testing.T) {
	store := api.NewStore()
	runner := &countingRunner{delay: 3 * time.Millisecond}
	stop := startLoop(t, newScheduler(scheduleConfig(time.Millisecond), store, runner.factory))
	waitFor(t, "five passes", func() bool { return runner.runs.Load() >= 5 })
	stop()

	if got := runner.peak.Load(); got != 1 {
		t.Errorf("peak concurrent passes = %d, want 1", got)
	}
	if int32(store.Runs()) != runner.runs.Load() {
		t.Errorf("published %d snapshots for %d passes", store.Runs(), runner.runs.Load())
	}
}

func TestScheduler_ReloadChangesInterval(t *testing.T) {
	store := api.NewStore()
	runner := &countingRunner{}
	sched := newScheduler(scheduleConfig(time.Hour), store, runner.factory)
	stop := startLoop(t, sched)
	defer stop()

	waitFor(t, "first pass", func() bool { return runner.runs.Load() == 1 })

	reloaded := scheduleConfig(2 * time.Millisecond)
	sched.update(reloaded)
	waitFor(t, "passes on the reloaded interval", func() bool { return runner.runs.Load() >= 3 })

	if runner.lastCfg.Load() != reloaded {
		t.Error("passes after reload should use the reloaded config")
	}
}

func TestScheduler_FailedPassNotPublished(t *testing.T) {
	store := api.NewStore()

	aborted := &countingRunner{err: errors.New("cache unavailable")}
	newScheduler(scheduleConfig(time.Hour), store, aborted.factory).pass(context.Background())

	unbuildable := func(*config.Config) (passRunner, error) { return nil, errors.New("bad token") }
	newScheduler(scheduleConfig(time.Hour), store, unbuildable).pass(context.Background())

	if store.Runs() != 0 {
		t.Errorf("store runs = %d, want 0", store.Runs())
	}
}

func TestScheduler_SnapshotCountsFailures(t *testing.T) {
	store := api.NewStore()
	runner := &countingRunner{outcome: &pipeline.Outcome{
		RunID:       "run-x",
		Failures:    []error{errors.New("query a"), errors.New("query b")},
		DeliveryErr: errors.New("slack: 500"),
		PersistErr:  errors.New("disk full"),
	}}
	newScheduler(scheduleConfig(time.Hour), store, runner.factory).pass(context.Background())

	snap, ok := store.Latest()
	if !ok {
		t.Fatal("no snapshot published")
	}
	if snap.Failures != 4 {
		t.Errorf("failures = %d, want 4", snap.Failures)
	}
}
