package api

import (
	"github.com/starradar/starradar/pkg/types"
	"github.com/starradar/starradar/radar/internal/digest"
)

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	State      string `json:"state"`
	RunID      string `json:"run_id"`
	FinishedAt string `json:"finished_at"` // RFC3339
	Candidates int    `json:"candidates"`
	Failures   int    `json:"failures"`
	Runs       int    `json:"runs"`
}

// RankingEntry is one repository in GET /api/v1/ranking.
type RankingEntry struct {
	Rank int `json:"rank"`
	types.Ranked
}

// RankingResponse is the payload for GET /api/v1/ranking.
type RankingResponse struct {
	RunID   string         `json:"run_id"`
	Total   int            `json:"total"`
	Entries []RankingEntry `json:"entries"`
}

// DigestResponse is the payload for GET /api/v1/digest.
type DigestResponse struct {
	*digest.Digest
	Subject string `json:"subject"`
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
