package cache

import (
	"context"
	"fmt"

	"github.com/starradar/starradar/pkg/types"
	"github.com/starradar/starradar/radar/internal/config"
)

// Backend persists star history between runs.
type Backend interface {
	// Load returns every persisted entry. An absent file, table or key is
	// not an error and yields an empty map.
	Load(ctx context.Context) (map[string]types.CacheEntry, error)

	// Save writes entries, replacing the stored value of every ID present.
	Save(ctx context.Context, entries map[string]types.CacheEntry) error

	Close() error
}

// CorruptError is returned by Load when the persisted cache exists but
// cannot be decoded.
type CorruptError struct {
	Backend string
	Err     error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("cache: corrupt %s cache: %v", e.Backend, e.Err)
}

func (e *CorruptError) Unwrap() error { return e.Err }

// New opens the backend selected by cfg.Backend.
func New(ctx context.Context, cfg config.CacheConfig) (Backend, error) {
	switch cfg.Backend {
	case "file":
		return NewFile(cfg.Path), nil
	case "sqlite":
		b, err := OpenSQLite(ctx, cfg.Path)
		if err != nil {
			return nil, err
		}
		return b, nil
	case "redis":
		url := cfg.RedisURL()
		if url == "" {
			return nil, fmt.Errorf("cache: redis url env %q is empty", cfg.RedisURLEnv)
		}
		b, err := NewRedis(ctx, url, cfg.RedisKey)
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("cache: unknown backend %q", cfg.Backend)
	}
}
