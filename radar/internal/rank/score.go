package rank

import (
	"math"
	"time"

	"github.com/starradar/starradar/pkg/types"
	"github.com/starradar/starradar/radar/internal/config"
)

// Quality blend.
const (
	freshnessShare = 0.6
	stabilityShare = 0.4

	// issuePenalty scales the open-issues-per-star ratio in the stability term.
	issuePenalty = 10.0
)

// GrowthScore maps a growth rate to [0, 100) with the saturating curve
//
//	score = 100 * r / (r + saturation)
//
// so a rate equal to saturation scores 50. Non-positive rates score 0.
func GrowthScore(rate, saturation float64) float64 {
	if rate <= 0 || saturation <= 0 || math.IsNaN(rate) {
		return 0
	}
	if math.IsInf(rate, 1) {
		return maxScore
	}
	return maxScore * rate / (rate + saturation)
}

// QualityScore blends update freshness with issue-backlog stability:
//
//	freshness = 100 * 2^(-daysSinceUpdate / updateHalfLife)
//	stability = 100 / (1 + 10 * openIssues / max(stars, 1))
//	quality   = 0.6*freshness + 0.4*stability
func QualityScore(c types.Candidate, now time.Time, updateHalfLife time.Duration) float64 {
	freshness := 0.0
	if halfLife := updateHalfLife.Hours() / 24; halfLife > 0 && !c.UpdatedAt.IsZero() {
		age := math.Max(daysBetween(c.UpdatedAt, now), 0)
		freshness = maxScore * math.Exp2(-age/halfLife)
	}

	stars := math.Max(float64(c.Stars), 1)
	issues := math.Max(float64(c.OpenIssues), 0)
	stability := maxScore / (1 + issuePenalty*issues/stars)

	return clamp(freshnessShare*freshness+stabilityShare*stability, 0, maxScore)
}

// Priority is the weighted composite of the three sub-scores:
//
//	priority = relevance*Wr + growth*Wg + quality*Wq
//
// Weights are assumed valid (summing to 1); see config.Weights.Validate.
func Priority(s types.Scores, w config.Weights) float64 {
	return clamp(s.Relevance*w.Relevance+s.Growth*w.Growth+s.Quality*w.Quality, 0, maxScore)
}

// clamp restricts v to the range [lo, hi].
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
