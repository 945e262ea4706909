package rank

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/starradar/starradar/pkg/types"
	"github.com/starradar/starradar/radar/internal/config"
)

// tieEpsilon is the priority difference below which two candidates tie.
const tieEpsilon = 1e-9

// Params are the tunables of the scorer.
type Params struct {
	Weights        config.Weights
	Bonus          BonusCurve
	Saturation     float64
	UpdateHalfLife time.Duration
}

// ParamsFromConfig extracts scorer parameters from a loaded config.
func ParamsFromConfig(cfg *config.Config) Params {
	return Params{
		Weights: cfg.Weights,
		Bonus: BonusCurve{
			Max:      cfg.Growth.RecencyBonus.Max,
			HalfLife: cfg.Growth.RecencyBonus.HalfLife,
		},
		Saturation:     cfg.Growth.Saturation,
		UpdateHalfLife: cfg.Quality.UpdateHalfLife,
	}
}

// Lookup returns the cached star observation for a repository ID.
// (*cache.Store).Get satisfies it.
type Lookup func(id string) (types.CacheEntry, bool)

// Ranker scores and orders candidates. It holds no per-run state, so one
// Ranker may rank many runs.
type Ranker struct {
	params Params
	terms  map[string][]string
}

// New returns a Ranker for the given channels. Invalid weights or
// non-positive curve parameters return an error wrapping config.ErrInvalid.
func New(channels []config.Channel, p Params) (*Ranker, error) {
	if err := p.Weights.Validate(); err != nil {
		return nil, fmt.Errorf("rank: %w", err)
	}
	if p.Saturation <= 0 {
		return nil, fmt.Errorf("rank: %w: saturation must be positive", config.ErrInvalid)
	}
	if p.UpdateHalfLife <= 0 || p.Bonus.HalfLife <= 0 {
		return nil, fmt.Errorf("rank: %w: half-lives must be positive", config.ErrInvalid)
	}
	if p.Bonus.Max < 1 {
		return nil, fmt.Errorf("rank: %w: recency bonus max must be >= 1", config.ErrInvalid)
	}

	terms := make(map[string][]string, len(channels))
	for _, ch := range channels {
		terms[ch.Name] = Terms(ch)
	}
	return &Ranker{params: p, terms: terms}, nil
}

// Score computes the growth rate and score bundle of one candidate.
func (r *Ranker) Score(c types.Candidate, lookup Lookup, now time.Time) types.Ranked {
	var (
		entry types.CacheEntry
		hit   bool
	)
	if lookup != nil {
		entry, hit = lookup(c.ID)
	}
	g := EstimateGrowth(c, entry, hit, now, r.params.Bonus)

	s := types.Scores{
		Relevance: Relevance(c, r.terms),
		Growth:    GrowthScore(g.Rate, r.params.Saturation),
		Quality:   QualityScore(c, now, r.params.UpdateHalfLife),
	}
	s.Priority = Priority(s, r.params.Weights)

	return types.Ranked{
		Candidate:    c,
		Scores:       s,
		GrowthRate:   g.Rate,
		GrowthSource: g.Source,
	}
}

// Rank scores every candidate and returns them ordered by priority
// descending; ties go to higher relevance, then to the smaller ID.
// The result is never truncated and is empty (not nil) for empty input.
func (r *Ranker) Rank(cands []types.Candidate, lookup Lookup, now time.Time) []types.Ranked {
	out := make([]types.Ranked, 0, len(cands))
	for _, c := range cands {
		out = append(out, r.Score(c, lookup, now))
	}
	sort.SliceStable(out, func(i, j int) bool { return Less(out[i], out[j]) })
	return out
}

// Less reports whether a ranks before b.
func Less(a, b types.Ranked) bool {
	if d := a.Scores.Priority - b.Scores.Priority; math.Abs(d) > tieEpsilon {
		return d > 0
	}
	if a.Scores.Relevance != b.Scores.Relevance {
		return a.Scores.Relevance > b.Scores.Relevance
	}
	return a.ID < b.ID
}
