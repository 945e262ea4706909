package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

// Handler is the HTTP handler for all /api/v1/* endpoints.
// It reads the latest run from the Store and returns JSON responses.
type Handler struct {
	store *Store
	mux   *http.ServeMux
}

// New creates a Handler wired to the given store and registers all routes.
func New(st *Store) http.Handler {
	h := &Handler{store: st, mux: http.NewServeMux()}

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/ranking", h.ranking)
	h.mux.HandleFunc("/api/v1/ranking/", h.repository) // subtree, extracts {owner}/{name}
	h.mux.HandleFunc("/api/v1/digest", h.digest)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health. Before the first run it still writes
// a body, with state "pending", but under 503 so health checks fail.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	resp := HealthResponse{State: "pending", Runs: h.store.Runs()}
	snap, ok := h.store.Latest()
	if !ok {
		jsonResp(w, http.StatusServiceUnavailable, resp)
		return
	}

	resp.State = "ok"
	if snap.Failures > 0 {
		resp.State = "degraded"
	}
	resp.RunID = snap.RunID
	resp.FinishedAt = snap.FinishedAt.UTC().Format(time.RFC3339)
	resp.Candidates = len(snap.Ranking)
	resp.Failures = snap.Failures
	jsonResp(w, http.StatusOK, resp)
}

// ranking returns GET /api/v1/ranking, the full ordered list.
func (h *Handler) ranking(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.latest(w, r)
	if !ok {
		return
	}
	entries := make([]RankingEntry, 0, len(snap.Ranking))
	for i, rk := range snap.Ranking {
		entries = append(entries, RankingEntry{Rank: i + 1, Ranked: rk})
	}
	jsonResp(w, http.StatusOK, RankingResponse{RunID: snap.RunID, Total: len(entries), Entries: entries})
}

// repository returns GET /api/v1/ranking/{owner}/{name}.
func (h *Handler) repository(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/ranking/"), "/")
	if id == "" {
		h.ranking(w, r)
		return
	}
	snap, ok := h.latest(w, r)
	if !ok {
		return
	}
	if strings.Count(id, "/") != 1 {
		jsonErr(w, http.StatusBadRequest, "repository id must be owner/name")
		return
	}
	for i, rk := range snap.Ranking {
		if strings.EqualFold(rk.ID, id) {
			jsonResp(w, http.StatusOK, RankingEntry{Rank: i + 1, Ranked: rk})
			return
		}
	}
	jsonErr(w, http.StatusNotFound, "repository not ranked")
}

// digest returns GET /api/v1/digest, the items of the last rendered digest.
func (h *Handler) digest(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.latest(w, r)
	if !ok {
		return
	}
	if snap.Digest == nil {
		jsonErr(w, http.StatusNotFound, "no digest for this run")
		return
	}
	jsonResp(w, http.StatusOK, DigestResponse{Digest: snap.Digest, Subject: snap.Digest.Subject()})
}

// --- helpers ----------------------------------------------------------------

// latest enforces GET and writes 503 until the first run has been published.
func (h *Handler) latest(w http.ResponseWriter, r *http.Request) (*Snapshot, bool) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return nil, false
	}
	snap, ok := h.store.Latest()
	if !ok {
		jsonErr(w, http.StatusServiceUnavailable, "no completed run yet")
		return nil, false
	}
	return snap, true
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
