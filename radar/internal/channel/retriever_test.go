package channel

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"

	"github.com/starradar/starradar/pkg/types"
	"github.com/starradar/starradar/radar/internal/config"
)

// fakeSource answers queries from a fixed table. Unknown queries fail.
type fakeSource struct {
	mu      sync.Mutex
	results map[string][]types.Candidate
	errs    map[string]error
	repos   map[string]types.Candidate
	limits  []int
}

func (f *fakeSource) Search(_ context.Context, query string, limit int) ([]types.Candidate, error) {
	f.mu.Lock()
	f.limits = append(f.limits, limit)
	f.mu.Unlock()
	if err, ok := f.errs[query]; ok {
		return nil, err
	}
	res, ok := f.results[query]
	if !ok {
		return nil, fmt.Errorf("unexpected query %q", query)
	}
	return res, nil
}

func (f *fakeSource) Repository(_ context.Context, id string) (types.Candidate, error) {
	c, ok := f.repos[id]
	if !ok {
		return types.Candidate{}, errors.New("not found")
	}
	return c, nil
}

type fakeFeeds struct {
	ids map[string][]string
	err error
}

func (f *fakeFeeds) Repositories(_ context.Context, url string, limit int) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	ids := f.ids[url]
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func repo(id string, stars int, topics ...string) types.Candidate {
	return types.Candidate{ID: id, Name: id, Stars: stars, Topics: topics}
}

func ids(cands []types.Candidate) []string {
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.ID
	}
	return out
}

func TestRetrieve_DedupAcrossChannels(t *testing.T) {
	src := &fakeSource{results: map[string][]types.Candidate{
		"topic:vibe-coding": {repo("shared/tool", 10, "vibe-coding"), repo("only/vibe", 1)},
		"topic:claude-code": {repo("shared/tool", 10, "claude"), repo("only/claude", 2)},
		"topic:agents":      {repo("shared/tool", 10, "agents", "claude")},
	}}
	channels := []config.Channel{
		{Name: "vibecoding", Queries: []string{"topic:vibe-coding"}},
		{Name: "claude", Queries: []string{"topic:claude-code"}},
		{Name: "agents", Queries: []string{"topic:agents"}},
	}

	res := New(src, nil, channels, 20, 3, nil).Retrieve(context.Background())

	if got, want := ids(res.Candidates), []string{"only/claude", "only/vibe", "shared/tool"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("ids = %v, want %v", got, want)
	}
	shared := res.Candidates[2]
	if want := []string{"vibecoding", "claude", "agents"}; !reflect.DeepEqual(shared.Channels, want) {
		t.Errorf("channels = %v, want %v", shared.Channels, want)
	}
	if want := []string{"vibe-coding", "claude", "agents"}; !reflect.DeepEqual(shared.Topics, want) {
		t.Errorf("topics = %v, want %v", shared.Topics, want)
	}
	if res.Queries != 3 || len(res.Failures) != 0 {
		t.Errorf("queries = %d failures = %v", res.Queries, res.Failures)
	}
}

func TestRetrieve_SameChannelTwiceTagsOnce(t *testing.T) {
	src := &fakeSource{results: map[string][]types.Candidate{
		"llm":       {repo("a/b", 1)},
		"topic:llm": {repo("a/b", 1)},
	}}
	channels := []config.Channel{{Name: "llm", Queries: []string{"llm", "topic:llm"}}}

	res := New(src, nil, channels, 20, 2, nil).Retrieve(context.Background())
	if len(res.Candidates) != 1 || len(res.Candidates[0].Channels) != 1 {
		t.Errorf("candidates = %+v", res.Candidates)
	}
}

func TestRetrieve_PartialFailureSkipsQuery(t *testing.T) {
	boom := errors.New("rate limited")
	src := &fakeSource{
		results: map[string][]types.Candidate{"ok": {repo("a/b", 1)}},
		errs:    map[string]error{"bad": boom},
	}
	channels := []config.Channel{
		{Name: "one", Queries: []string{"bad"}},
		{Name: "two", Queries: []string{"ok"}},
	}

	res := New(src, nil, channels, 20, 1, nil).Retrieve(context.Background())

	if got := ids(res.Candidates); !reflect.DeepEqual(got, []string{"a/b"}) {
		t.Errorf("ids = %v", got)
	}
	if len(res.Failures) != 1 {
		t.Fatalf("failures = %v, want 1", res.Failures)
	}
	var qe *QueryError
	if !errors.As(res.Failures[0], &qe) {
		t.Fatalf("failure %T is not *QueryError", res.Failures[0])
	}
	if qe.Channel != "one" || qe.Query != "bad" || !errors.Is(qe, boom) {
		t.Errorf("QueryError = %+v", qe)
	}
}

func TestRetrieve_AllFailIsEmpty(t *testing.T) {
	src := &fakeSource{errs: map[string]error{
		"a": errors.New("down"),
		"b": errors.New("down"),
	}}
	channels := []config.Channel{{Name: "x", Queries: []string{"a", "b"}}}

	res := New(src, nil, channels, 20, 2, nil).Retrieve(context.Background())
	if len(res.Candidates) != 0 {
		t.Errorf("candidates = %v, want none", res.Candidates)
	}
	if len(res.Failures) != 2 || res.Queries != 2 {
		t.Errorf("queries = %d failures = %d", res.Queries, len(res.Failures))
	}
}

func TestRetrieve_DeterministicRegardlessOfConcurrency(t *testing.T) {
	src := &fakeSource{results: map[string][]types.Candidate{
		"q1": {repo("z/z", 1, "t1"), repo("m/m", 1, "t1")},
		"q2": {repo("m/m", 1, "t2"), repo("a/a", 1)},
		"q3": {repo("z/z", 1, "t3")},
	}}
	channels := []config.Channel{
		{Name: "c1", Queries: []string{"q1"}},
		{Name: "c2", Queries: []string{"q2", "q3"}},
	}

	first := New(src, nil, channels, 20, 1, nil).Retrieve(context.Background())
	for i := 0; i < 20; i++ {
		again := New(src, nil, channels, 20, 8, nil).Retrieve(context.Background())
		if !reflect.DeepEqual(first.Candidates, again.Candidates) {
			t.Fatalf("run %d differs:\n%+v\n%+v", i, first.Candidates, again.Candidates)
		}
	}
}

func TestRetrieve_PassesPerQueryCap(t *testing.T) {
	src := &fakeSource{results: map[string][]types.Candidate{"q": nil}}
	New(src, nil, []config.Channel{{Name: "c", Queries: []string{"q"}}}, 7, 1, nil).Retrieve(context.Background())
	if len(src.limits) != 1 || src.limits[0] != 7 {
		t.Errorf("limits = %v, want [7]", src.limits)
	}
}

func TestRetrieve_FeedsHydrateThroughSource(t *testing.T) {
	src := &fakeSource{
		results: map[string][]types.Candidate{"q": {repo("a/a", 1)}},
		repos:   map[string]types.Candidate{"feed/one": repo("feed/one", 5), "a/a": repo("a/a", 1)},
	}
	feeds := &fakeFeeds{ids: map[string][]string{
		"https://feeds.example/trending": {"feed/one", "gone/repo", "a/a"},
	}}
	channels := []config.Channel{
		{Name: "c", Queries: []string{"q"}, Feeds: []string{"https://feeds.example/trending"}},
	}

	res := New(src, feeds, channels, 20, 2, nil).Retrieve(context.Background())

	if got, want := ids(res.Candidates), []string{"a/a", "feed/one"}; !reflect.DeepEqual(got, want) {
		t.Errorf("ids = %v, want %v", got, want)
	}
	if res.Queries != 2 {
		t.Errorf("queries = %d, want 2", res.Queries)
	}
	if len(res.Failures) != 1 {
		t.Errorf("failures = %v, want one hydration failure", res.Failures)
	}
}

func TestRetrieve_FeedFailureIsSkipped(t *testing.T) {
	src := &fakeSource{results: map[string][]types.Candidate{"q": {repo("a/a", 1)}}}
	feeds := &fakeFeeds{err: errors.New("feed down")}
	channels := []config.Channel{{Name: "c", Queries: []string{"q"}, Feeds: []string{"https://x"}}}

	res := New(src, feeds, channels, 20, 2, nil).Retrieve(context.Background())
	if len(res.Candidates) != 1 || len(res.Failures) != 1 {
		t.Errorf("candidates = %d failures = %d", len(res.Candidates), len(res.Failures))
	}
}

func TestRetrieve_NoChannels(t *testing.T) {
	res := New(&fakeSource{}, nil, nil, 20, 2, nil).Retrieve(context.Background())
	if len(res.Candidates) != 0 || res.Queries != 0 {
		t.Errorf("result = %+v", res)
	}
}
