package api_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/starradar/starradar/pkg/types"
	"github.com/starradar/starradar/radar/internal/api"
	"github.com/starradar/starradar/radar/internal/digest"
)

// --- test helpers -----------------------------------------------------------

var finished = time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

func ranked(id string, priority float64) types.Ranked {
	return types.Ranked{
		Candidate: types.Candidate{ID: id, URL: "https://github.com/" + id, Stars: 100, Channels: []string{"llm"}},
		Scores:    types.Scores{Priority: priority},
	}
}

func newStore(failures int) *api.Store {
	st := api.NewStore()
	ranking := []types.Ranked{ranked("acme/alpha", 80), ranked("acme/beta", 60), ranked("zed/gamma", 10)}
	st.Put(&api.Snapshot{
		RunID:      "run-42",
		FinishedAt: finished,
		Ranking:    ranking,
		Digest: &digest.Digest{
			Title: "GitHub AI Daily", RunID: "run-42", GeneratedAt: finished, Total: 3,
			Items: []digest.Item{{Rank: 1, Ranked: ranking[0]}},
		},
		Failures: failures,
	})
	return st
}

func do(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, path, nil))
	return rr
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	return do(t, h, http.MethodGet, path)
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON: %v (body: %s)", err, rr.Body.String())
	}
}

// --- before the first run ---------------------------------------------------

func TestAllRoutes_UnavailableBeforeFirstRun(t *testing.T) {
	h := api.New(api.NewStore())
	for _, path := range []string{
		"/api/v1/health",
		"/api/v1/ranking",
		"/api/v1/ranking/acme/alpha",
		"/api/v1/digest",
	} {
		rr := get(t, h, path)
		if rr.Code != http.StatusServiceUnavailable {
			t.Errorf("%s: status %d, want 503", path, rr.Code)
		}
		if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("%s: Content-Type %q", path, ct)
		}
	}
}

func TestHealth_PendingBody(t *testing.T) {
	rr := get(t, api.New(api.NewStore()), "/api/v1/health")
	var resp api.HealthResponse
	decode(t, rr, &resp)
	if resp.State != "pending" || resp.Runs != 0 {
		t.Errorf("health = %+v, want pending with 0 runs", resp)
	}
}

// --- /api/v1/health ---------------------------------------------------------

func TestHealth_AfterRun(t *testing.T) {
	rr := get(t, api.New(newStore(0)), "/api/v1/health")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp api.HealthResponse
	decode(t, rr, &resp)
	if resp.State != "ok" || resp.RunID != "run-42" || resp.Candidates != 3 || resp.Runs != 1 {
		t.Errorf("health = %+v", resp)
	}
	if resp.FinishedAt != "2026-03-10T08:00:00Z" {
		t.Errorf("finished_at = %q", resp.FinishedAt)
	}
}

func TestHealth_DegradedOnFailures(t *testing.T) {
	var resp api.HealthResponse
	decode(t, get(t, api.New(newStore(2)), "/api/v1/health"), &resp)
	if resp.State != "degraded" || resp.Failures != 2 {
		t.Errorf("health = %+v, want degraded with 2 failures", resp)
	}
}

// --- /api/v1/ranking --------------------------------------------------------

func TestRanking_FullOrderedList(t *testing.T) {
	rr := get(t, api.New(newStore(0)), "/api/v1/ranking")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp api.RankingResponse
	decode(t, rr, &resp)
	if resp.Total != 3 || len(resp.Entries) != 3 {
		t.Fatalf("total = %d, entries = %d", resp.Total, len(resp.Entries))
	}
	for i, want := range []string{"acme/alpha", "acme/beta", "zed/gamma"} {
		if resp.Entries[i].ID != want || resp.Entries[i].Rank != i+1 {
			t.Errorf("entry %d = %s rank %d, want %s rank %d", i, resp.Entries[i].ID, resp.Entries[i].Rank, want, i+1)
		}
	}
}

func TestRanking_TrailingSlashListsAll(t *testing.T) {
	var resp api.RankingResponse
	decode(t, get(t, api.New(newStore(0)), "/api/v1/ranking/"), &resp)
	if resp.Total != 3 {
		t.Errorf("total = %d, want 3", resp.Total)
	}
}

// --- /api/v1/ranking/{owner}/{name} -----------------------------------------

func TestRepository_Found(t *testing.T) {
	rr := get(t, api.New(newStore(0)), "/api/v1/ranking/acme/beta")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var entry api.RankingEntry
	decode(t, rr, &entry)
	if entry.ID != "acme/beta" || entry.Rank != 2 || entry.Scores.Priority != 60 {
		t.Errorf("entry = %+v", entry)
	}
}

func TestRepository_CaseInsensitive(t *testing.T) {
	if rr := get(t, api.New(newStore(0)), "/api/v1/ranking/ACME/Alpha"); rr.Code != http.StatusOK {
		t.Errorf("status: got %d, want 200", rr.Code)
	}
}

func TestRepository_NotFound(t *testing.T) {
	if rr := get(t, api.New(newStore(0)), "/api/v1/ranking/acme/missing"); rr.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", rr.Code)
	}
}

func TestRepository_BadID(t *testing.T) {
	if rr := get(t, api.New(newStore(0)), "/api/v1/ranking/just-owner"); rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", rr.Code)
	}
}

// --- /api/v1/digest ---------------------------------------------------------

func TestDigest(t *testing.T) {
	rr := get(t, api.New(newStore(0)), "/api/v1/digest")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp map[string]interface{}
	decode(t, rr, &resp)
	if resp["subject"] != "GitHub AI Daily - 2026-03-10" || resp["run_id"] != "run-42" {
		t.Errorf("digest = %v", resp)
	}
	items, _ := resp["items"].([]interface{})
	if len(items) != 1 {
		t.Errorf("items = %d, want 1", len(items))
	}
}

func TestDigest_MissingForRun(t *testing.T) {
	st := api.NewStore()
	st.Put(&api.Snapshot{RunID: "r", FinishedAt: finished})
	if rr := get(t, api.New(st), "/api/v1/digest"); rr.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", rr.Code)
	}
}

// --- methods ----------------------------------------------------------------

func TestMethodNotAllowed(t *testing.T) {
	h := api.New(newStore(0))
	for _, path := range []string{"/api/v1/health", "/api/v1/ranking", "/api/v1/ranking/acme/alpha", "/api/v1/digest"} {
		if rr := do(t, h, http.MethodPost, path); rr.Code != http.StatusMethodNotAllowed {
			t.Errorf("POST %s: status %d, want 405", path, rr.Code)
		}
	}
}

// --- store ------------------------------------------------------------------

func TestStore_ConcurrentPutAndRead(t *testing.T) {
	st := api.NewStore()
	h := api.New(st)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			st.Put(&api.Snapshot{RunID: "r", FinishedAt: finished})
		}()
		go func() {
			defer wg.Done()
			get(t, h, "/api/v1/health")
		}()
	}
	wg.Wait()
	if st.Runs() != 20 {
		t.Errorf("runs = %d, want 20", st.Runs())
	}
	if snap, ok := st.Latest(); !ok || snap.RunID != "r" {
		t.Error("latest snapshot missing after puts")
	}
}
