package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/starradar/starradar/pkg/types"
)

// FileBackend stores the cache as one JSON object:
//
//	{"owner/name": {"stars": 120, "timestamp": "2026-03-01T08:00:00Z"}}
//
// Timestamps without a zone offset, as in "2026-03-01T08:00:00.123456",
// are read in the local time zone, which is what wrote them.
type FileBackend struct {
	path string
}

// NewFile returns a FileBackend for path. The file need not exist yet.
func NewFile(path string) *FileBackend {
	return &FileBackend{path: path}
}

func (f *FileBackend) Load(_ context.Context) (map[string]types.CacheEntry, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]types.CacheEntry{}, nil
		}
		return nil, fmt.Errorf("cache: read %s: %w", f.path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return map[string]types.CacheEntry{}, nil
	}

	var raw map[string]fileEntry
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &CorruptError{Backend: "file", Err: err}
	}
	m := make(map[string]types.CacheEntry, len(raw))
	for id, e := range raw {
		ts, err := parseTimestamp(e.Timestamp)
		if err != nil {
			return nil, &CorruptError{Backend: "file", Err: fmt.Errorf("entry %q: %w", id, err)}
		}
		m[id] = types.CacheEntry{Stars: e.Stars, ObservedAt: ts}
	}
	return m, nil
}

type fileEntry struct {
	Stars     int    `json:"stars"`
	Timestamp string `json:"timestamp"`
}

// naiveLayout is an ISO 8601 timestamp without a zone, with an optional
// fractional second.
const naiveLayout = "2006-01-02T15:04:05.999999999"

func parseTimestamp(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts, nil
	}
	ts, err := time.ParseInLocation(naiveLayout, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp %q: %w", s, err)
	}
	return ts, nil
}

// Save writes to a temporary file and renames it over the target so a crash
// never leaves a half-written cache behind.
func (f *FileBackend) Save(_ context.Context, entries map[string]types.CacheEntry) error {
	if dir := filepath.Dir(f.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("cache: create dir: %w", err)
		}
	}
	b, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("cache: encode: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return fmt.Errorf("cache: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("cache: rename %s: %w", tmp, err)
	}
	return nil
}

func (f *FileBackend) Close() error { return nil }
