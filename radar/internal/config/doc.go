// Package config loads and watches the radar configuration file (config.yaml).
//
// Top-level types:
//   - Config — the full tree parsed from YAML
//   - GitHubConfig — api_url, token_env (falls back to GITHUB_TOKEN), sort,
//     timeout, breaker thresholds
//   - Channel — name, queries, keywords, feeds
//   - Weights — relevance/growth/quality composite weights; Validate() rejects
//     sums other than 1.0 instead of renormalizing
//   - CacheConfig — file | sqlite | redis star-history backend
//   - DigestConfig, NotifyTarget, MetricsConfig, ScheduleConfig, ServerConfig
//
// Load(path) reads the YAML file, applies defaults (0.55/0.30/0.15 weights,
// 20 results per query, 24h schedule), then validates. Every validation
// failure wraps ErrInvalid so callers can fail fast before any network call.
//
// Watch(ctx, path, onChange) uses fsnotify to detect file changes and calls
// onChange with the newly parsed Config. Bursts of events from one save are
// coalesced, and the watch is re-added after atomic-save renames.
package config
