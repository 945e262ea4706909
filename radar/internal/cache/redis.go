package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/starradar/starradar/pkg/types"
)

// RedisBackend stores all entries in one hash; each field is a repository
// ID and each value the JSON-encoded CacheEntry.
type RedisBackend struct {
	client *redis.Client
	key    string
}

// NewRedis connects to the server at url (redis://...) and verifies it with
// a PING.
func NewRedis(ctx context.Context, url, key string) (*RedisBackend, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("cache: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("cache: ping redis: %w", err)
	}
	return &RedisBackend{client: client, key: key}, nil
}

func (r *RedisBackend) Load(ctx context.Context) (map[string]types.CacheEntry, error) {
	raw, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("cache: hgetall %s: %w", r.key, err)
	}
	out := make(map[string]types.CacheEntry, len(raw))
	for id, v := range raw {
		var e types.CacheEntry
		if err := json.Unmarshal([]byte(v), &e); err != nil {
			return nil, &CorruptError{Backend: "redis", Err: fmt.Errorf("field %q: %w", id, err)}
		}
		out[id] = e
	}
	return out, nil
}

func (r *RedisBackend) Save(ctx context.Context, entries map[string]types.CacheEntry) error {
	if len(entries) == 0 {
		return nil
	}
	values := make([]any, 0, 2*len(entries))
	for id, e := range entries {
		b, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("cache: encode %q: %w", id, err)
		}
		values = append(values, id, string(b))
	}
	if err := r.client.HSet(ctx, r.key, values...).Err(); err != nil {
		return fmt.Errorf("cache: hset %s: %w", r.key, err)
	}
	return nil
}

func (r *RedisBackend) Close() error { return r.client.Close() }
