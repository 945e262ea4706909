// Package channel runs every query of every configured channel against the
// repository-search interface and merges the results into one deduplicated
// candidate set.
//
// Queries run with bounded parallelism but land in per-query slots that are
// merged in configuration order, so the output never depends on completion
// order. A failed query is logged and skipped; a run in which every query
// fails yields an empty, valid result.
package channel
