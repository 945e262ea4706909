// Package cache holds the per-repository star history consulted by the
// growth estimator.
//
// store.go is the in-memory Store the pipeline owns for the duration of one
// run: it is loaded once at start, consulted while ranking, overwritten with
// the current star counts and persisted once at the end.
//
// The Backend implementations persist the entries between runs:
//
//	file    JSON document written atomically (tmp + rename)
//	sqlite  single table, upserted in one transaction (modernc.org/sqlite)
//	redis   one hash, one JSON field per repository (go-redis)
//
// A persisted cache that cannot be decoded is reported as *CorruptError so
// callers can fall back to an empty cache instead of aborting the run.
package cache
