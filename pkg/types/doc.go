// Package types defines shared Go types used across the radar packages.
// These are the canonical in-memory representations of discovered
// repositories, their cached star observations and their ranking scores,
// separate from any wire or storage format.
package types
