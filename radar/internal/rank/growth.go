package rank

import (
	"math"
	"time"

	"github.com/starradar/starradar/pkg/types"
)

// MinElapsedDays floors the observation interval (one minute) so a delta
// is never divided by zero or a negative duration.
const MinElapsedDays = 1.0 / (24 * 60)

const day = 24 * time.Hour

// BonusCurve is the cold-start recency multiplier:
//
//	bonus = 1 + (Max-1) * 2^(-daysSinceUpdate / HalfLife)
//
// It equals Max for a repository updated right now and decays toward 1.
type BonusCurve struct {
	Max      float64
	HalfLife time.Duration
}

// At returns the multiplier for a repository last updated daysSinceUpdate
// days ago. Future timestamps count as "just now".
func (b BonusCurve) At(daysSinceUpdate float64) float64 {
	if daysSinceUpdate < 0 {
		daysSinceUpdate = 0
	}
	halfLife := b.HalfLife.Hours() / 24
	if halfLife <= 0 {
		return 1
	}
	return 1 + (b.Max-1)*math.Exp2(-daysSinceUpdate/halfLife)
}

// Growth is an un-normalized growth rate in stars per day.
type Growth struct {
	Rate   float64
	Source string // types.GrowthFromHistory | types.GrowthFromEstimate
}

// EstimateGrowth computes the star velocity of c at now.
//
// With a usable cache entry (hit, observed strictly before now) the rate is
// the real delta over the elapsed days, floored at MinElapsedDays; it may be
// negative. Otherwise the lifetime average is scaled by the recency bonus.
//
// An entry stamped at or after now (clock skew between runs) is treated as a
// miss and takes the cold-start estimate, not a delta over MinElapsedDays.
func EstimateGrowth(c types.Candidate, entry types.CacheEntry, hit bool, now time.Time, curve BonusCurve) Growth {
	if hit && entry.ObservedAt.Before(now) {
		days := math.Max(daysBetween(entry.ObservedAt, now), MinElapsedDays)
		return Growth{
			Rate:   float64(c.Stars-entry.Stars) / days,
			Source: types.GrowthFromHistory,
		}
	}

	age := math.Max(daysBetween(c.CreatedAt, now), 1)
	return Growth{
		Rate:   float64(c.Stars) / age * curve.At(daysBetween(c.UpdatedAt, now)),
		Source: types.GrowthFromEstimate,
	}
}

// daysBetween returns the fractional number of days from a to b.
func daysBetween(a, b time.Time) float64 {
	return float64(b.Sub(a)) / float64(day)
}
