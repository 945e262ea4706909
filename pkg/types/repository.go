package types

import "time"

// Candidate is one repository discovered during a run.
// ID (owner/name) is unique within a run once channel results are merged.
type Candidate struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	URL         string    `json:"url"`
	Language    string    `json:"language,omitempty"`
	Stars       int       `json:"stars"`
	Forks       int       `json:"forks"`
	OpenIssues  int       `json:"open_issues"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Topics      []string  `json:"topics,omitempty"`

	// Channels lists the channels whose queries returned this repository,
	// in configured channel order. Never empty after retrieval.
	Channels []string `json:"channels"`

	// Summary is filled from the README for digest entries only.
	Summary string `json:"summary,omitempty"`
}

// HasChannel reports whether the candidate was found by the named channel.
func (c Candidate) HasChannel(name string) bool {
	for _, ch := range c.Channels {
		if ch == name {
			return true
		}
	}
	return false
}

// CacheEntry is the last persisted star observation for one repository.
type CacheEntry struct {
	Stars      int       `json:"stars"`
	ObservedAt time.Time `json:"timestamp"`
}

// Growth sources recorded on a ranked candidate.
const (
	GrowthFromHistory  = "history"
	GrowthFromEstimate = "estimate"
)

// Scores is the per-run score bundle attached to a candidate.
// All values are in the range 0–100.
type Scores struct {
	Relevance float64 `json:"relevance"`
	Growth    float64 `json:"growth"`
	Quality   float64 `json:"quality"`
	Priority  float64 `json:"priority"`
}

// Ranked is a candidate together with its scores, ready for the digest.
type Ranked struct {
	Candidate
	Scores Scores `json:"scores"`

	// GrowthRate is stars per day; negative when stars were lost.
	GrowthRate   float64 `json:"growth_rate"`
	GrowthSource string  `json:"growth_source"`
}
