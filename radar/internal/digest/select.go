package digest

import (
	"sort"

	"github.com/starradar/starradar/pkg/types"
)

// Select picks up to topN entries from a ranked list so that every channel
// is represented. Each channel, in the given order, first gets its best
// perChannel entries not already picked. Remaining slots are filled in rank
// order. The selection is returned in rank order.
//
// perChannel == 0 disables balancing and Select returns the first topN.
func Select(ranked []types.Ranked, channels []string, topN, perChannel int) []types.Ranked {
	if topN <= 0 || len(ranked) == 0 {
		return []types.Ranked{}
	}

	picked := make(map[int]bool, topN)
	for _, ch := range channels {
		if perChannel <= 0 {
			break
		}
		taken := 0
		for i, r := range ranked {
			if len(picked) >= topN || taken >= perChannel {
				break
			}
			if picked[i] || !r.HasChannel(ch) {
				continue
			}
			picked[i] = true
			taken++
		}
	}
	for i := range ranked {
		if len(picked) >= topN {
			break
		}
		picked[i] = true
	}

	idx := make([]int, 0, len(picked))
	for i := range picked {
		idx = append(idx, i)
	}
	sort.Ints(idx)

	out := make([]types.Ranked, len(idx))
	for n, i := range idx {
		out[n] = ranked[i]
	}
	return out
}
