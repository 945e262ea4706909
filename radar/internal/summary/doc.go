// Package summary extracts a short plain-text blurb from README markdown for
// the digest. It is heuristic text cleanup, not language understanding.
package summary
