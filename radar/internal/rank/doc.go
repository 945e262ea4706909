// Package rank turns retrieved candidates into an ordered priority list.
//
// growth.go estimates star velocity: the real delta against the cached
// observation when one exists, otherwise the lifetime average scaled by a
// recency bonus. relevance.go scores how well a repository matches its
// channels' terms over name (40), topics (30) and description (15).
// score.go normalizes growth and quality to 0–100 and blends the three
// sub-scores with the configured weights (default 0.55/0.30/0.15).
//
// ranker.go applies all of the above to a candidate set and orders it by
// priority, relevance, then ID. Every function takes now explicitly so
// results are reproducible.
package rank
