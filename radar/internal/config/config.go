package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultAPIURL           = "https://api.github.com"
	DefaultTokenEnv         = "GITHUB_PAT"
	FallbackTokenEnv        = "GITHUB_TOKEN"
	DefaultUserAgent        = "starradar"
	DefaultSort             = "updated"
	DefaultRequestTimeout   = 10 * time.Second
	DefaultFailureThreshold = 3
	DefaultBreakerTimeout   = 60 * time.Second

	DefaultPerQueryCap = 20
	DefaultConcurrency = 4

	DefaultRelevanceWeight = 0.55
	DefaultGrowthWeight    = 0.30
	DefaultQualityWeight   = 0.15

	DefaultBonusMax         = 1.5
	DefaultBonusHalfLife    = 7 * 24 * time.Hour
	DefaultGrowthSaturation = 50.0
	DefaultUpdateHalfLife   = 30 * 24 * time.Hour

	DefaultCacheBackend = "file"
	DefaultCachePath    = "star_cache.json"
	DefaultRedisKey     = "starradar:stars"

	DefaultDigestTitle   = "GitHub AI Daily"
	DefaultTopN          = 15
	DefaultPerChannel    = 3
	DefaultSummaryLength = 300
	DefaultHTMLPath      = "report.html"

	DefaultResendEndpoint = "https://api.resend.com/emails"

	DefaultInterval = 24 * time.Hour
	DefaultHTTPAddr = ":8080"
)

// WeightTolerance is the allowed deviation of the weight sum from 1.0.
const WeightTolerance = 1e-9

// ErrInvalid is wrapped by every validation failure returned from Load.
// Callers use errors.Is to distinguish configuration mistakes from I/O errors.
var ErrInvalid = errors.New("invalid configuration")

// Config is the top-level radar configuration.
// Fields map 1:1 to config.example.yaml.
type Config struct {
	GitHub   GitHubConfig   `yaml:"github"`
	Search   SearchConfig   `yaml:"search"`
	Channels []Channel      `yaml:"channels"`
	Weights  Weights        `yaml:"weights"`
	Growth   GrowthConfig   `yaml:"growth"`
	Quality  QualityConfig  `yaml:"quality"`
	Cache    CacheConfig    `yaml:"cache"`
	Digest   DigestConfig   `yaml:"digest"`
	Notify   []NotifyTarget `yaml:"notify"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Server   ServerConfig   `yaml:"server"`
}

// GitHubConfig configures the repository-search API client.
type GitHubConfig struct {
	// APIURL is the REST API base URL. Overridable for GitHub Enterprise and tests.
	APIURL string `yaml:"api_url"`

	// TokenEnv is the name of the environment variable holding the access token.
	// GITHUB_TOKEN is consulted when the named variable is empty.
	TokenEnv string `yaml:"token_env"`

	// Sort is the search sort key: updated | stars | forks | help-wanted-issues.
	Sort string `yaml:"sort"`

	UserAgent string `yaml:"user_agent"`

	// Timeout bounds every single HTTP call.
	Timeout time.Duration `yaml:"timeout"`

	Breaker BreakerConfig `yaml:"breaker"`
}

// Token returns the API token resolved from the environment.
// Returns empty string when neither variable is set; requests go unauthenticated.
func (g GitHubConfig) Token() string {
	if g.TokenEnv != "" {
		if v := os.Getenv(g.TokenEnv); v != "" {
			return v
		}
	}
	return os.Getenv(FallbackTokenEnv)
}

// BreakerConfig controls the circuit breaker around the search API.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the breaker.
	FailureThreshold uint32 `yaml:"failure_threshold"`

	// OpenTimeout is how long the breaker stays open before probing again.
	OpenTimeout time.Duration `yaml:"open_timeout"`
}

// SearchConfig holds retrieval limits shared by all channels.
type SearchConfig struct {
	// PerQueryCap is the maximum number of results kept per query (1–100).
	PerQueryCap int `yaml:"per_query_cap"`

	// Concurrency bounds the number of queries in flight.
	Concurrency int `yaml:"concurrency"`
}

// Channel is a named topic cluster with its own search queries.
type Channel struct {
	Name string `yaml:"name"`

	// Queries are repository-search expressions, e.g. "topic:llm" or "claude code".
	Queries []string `yaml:"queries"`

	// Keywords are the channel's defining terms for relevance scoring.
	// Derived from Queries when empty.
	Keywords []string `yaml:"keywords"`

	// Feeds are optional RSS/Atom URLs whose items link to repositories.
	Feeds []string `yaml:"feeds"`
}

// Weights are the composite priority weights. They must sum to 1.0.
type Weights struct {
	Relevance float64 `yaml:"relevance"`
	Growth    float64 `yaml:"growth"`
	Quality   float64 `yaml:"quality"`
}

// Sum returns the total of the three weights.
func (w Weights) Sum() float64 {
	return w.Relevance + w.Growth + w.Quality
}

// Validate rejects negative weights and sums that differ from 1.0.
// Weights are never renormalized.
func (w Weights) Validate() error {
	if w.Relevance < 0 || w.Growth < 0 || w.Quality < 0 {
		return fmt.Errorf("%w: weights must not be negative (%v)", ErrInvalid, w)
	}
	if sum := w.Sum(); math.Abs(sum-1) > WeightTolerance {
		return fmt.Errorf("%w: weights sum to %.6f, want 1.0", ErrInvalid, sum)
	}
	return nil
}

// GrowthConfig configures the growth estimator and its normalization.
type GrowthConfig struct {
	RecencyBonus RecencyBonus `yaml:"recency_bonus"`

	// Saturation is the growth rate (stars/day) that maps to a score of 50.
	Saturation float64 `yaml:"saturation"`
}

// RecencyBonus is the cold-start multiplier curve:
// 1 + (Max-1) * 2^(-days_since_update / HalfLife).
type RecencyBonus struct {
	Max      float64       `yaml:"max"`
	HalfLife time.Duration `yaml:"half_life"`
}

// QualityConfig configures the quality sub-score.
type QualityConfig struct {
	// UpdateHalfLife is the age at which update freshness drops to 50.
	UpdateHalfLife time.Duration `yaml:"update_half_life"`
}

// CacheConfig selects the star-history backend.
type CacheConfig struct {
	// Backend is one of: file | sqlite | redis.
	Backend string `yaml:"backend"`

	// Path is the JSON file (file) or database file (sqlite).
	Path string `yaml:"path"`

	// RedisURLEnv names the environment variable holding the redis:// URL.
	RedisURLEnv string `yaml:"redis_url_env"`

	// RedisKey is the hash key that stores the entries.
	RedisKey string `yaml:"redis_key"`
}

// RedisURL returns the Redis URL resolved from the environment.
func (c CacheConfig) RedisURL() string {
	if c.RedisURLEnv == "" {
		return ""
	}
	return os.Getenv(c.RedisURLEnv)
}

// DigestConfig controls selection and rendering of the delivered report.
type DigestConfig struct {
	Title string `yaml:"title"`

	// TopN is the number of projects shown in the digest.
	TopN int `yaml:"top_n"`

	// PerChannel guarantees each channel this many slots (0 disables balancing).
	PerChannel int `yaml:"per_channel"`

	// SummaryLength is the maximum README summary length in characters.
	SummaryLength int `yaml:"summary_length"`

	HTMLPath string `yaml:"html_path"`
	JSONPath string `yaml:"json_path"`
	DOCXPath string `yaml:"docx_path"`
}

// NotifyTarget is one delivery destination for the rendered digest.
type NotifyTarget struct {
	// Type is one of: resend | slack | teams | http.
	Type string `yaml:"type"`

	// URLEnv names the variable holding the webhook URL (slack, teams, http).
	URLEnv string `yaml:"url_env"`

	// Endpoint overrides the Resend API URL.
	Endpoint string `yaml:"endpoint"`

	// APIKeyEnv names the variable holding the Resend API key.
	APIKeyEnv string `yaml:"api_key_env"`

	// ToEnv names the variable holding the recipient address.
	ToEnv string `yaml:"to_env"`

	// From is the sender address, e.g. "Radar <onboarding@resend.dev>".
	From string `yaml:"from"`
}

// URL returns the webhook URL resolved from the environment.
func (n NotifyTarget) URL() string {
	if n.URLEnv == "" {
		return ""
	}
	return os.Getenv(n.URLEnv)
}

// APIKey returns the API key resolved from the environment.
func (n NotifyTarget) APIKey() string {
	if n.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(n.APIKeyEnv)
}

// To returns the recipient address resolved from the environment.
func (n NotifyTarget) To() string {
	if n.ToEnv == "" {
		return ""
	}
	return os.Getenv(n.ToEnv)
}

// MetricsConfig configures the Prometheus textfile written after each run.
type MetricsConfig struct {
	// TextfilePath is where the .prom file is written. Empty disables it.
	TextfilePath string `yaml:"textfile_path"`
}

// ScheduleConfig controls the watch loop.
type ScheduleConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// ServerConfig configures the HTTP API served in watch mode.
type ServerConfig struct {
	// HTTPAddr is the listen address. Empty disables the API.
	HTTPAddr string `yaml:"http_addr"`
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with defaults, then the result is
// validated; validation failures wrap ErrInvalid.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML document.
func Parse(data []byte) (*Config, error) {
	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		GitHub: GitHubConfig{
			APIURL:    DefaultAPIURL,
			TokenEnv:  DefaultTokenEnv,
			Sort:      DefaultSort,
			UserAgent: DefaultUserAgent,
			Timeout:   DefaultRequestTimeout,
			Breaker: BreakerConfig{
				FailureThreshold: DefaultFailureThreshold,
				OpenTimeout:      DefaultBreakerTimeout,
			},
		},
		Search: SearchConfig{
			PerQueryCap: DefaultPerQueryCap,
			Concurrency: DefaultConcurrency,
		},
		Weights: Weights{
			Relevance: DefaultRelevanceWeight,
			Growth:    DefaultGrowthWeight,
			Quality:   DefaultQualityWeight,
		},
		Growth: GrowthConfig{
			RecencyBonus: RecencyBonus{Max: DefaultBonusMax, HalfLife: DefaultBonusHalfLife},
			Saturation:   DefaultGrowthSaturation,
		},
		Quality: QualityConfig{UpdateHalfLife: DefaultUpdateHalfLife},
		Cache: CacheConfig{
			Backend:  DefaultCacheBackend,
			Path:     DefaultCachePath,
			RedisKey: DefaultRedisKey,
		},
		Digest: DigestConfig{
			Title:         DefaultDigestTitle,
			TopN:          DefaultTopN,
			PerChannel:    DefaultPerChannel,
			SummaryLength: DefaultSummaryLength,
			HTMLPath:      DefaultHTMLPath,
		},
		Schedule: ScheduleConfig{Interval: DefaultInterval},
		Server:   ServerConfig{HTTPAddr: DefaultHTTPAddr},
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	if cfg.GitHub.APIURL == "" {
		return fmt.Errorf("%w: github.api_url is required", ErrInvalid)
	}
	if cfg.GitHub.Timeout <= 0 {
		return fmt.Errorf("%w: github.timeout must be positive", ErrInvalid)
	}
	switch cfg.GitHub.Sort {
	case "updated", "stars", "forks", "help-wanted-issues":
	default:
		return fmt.Errorf("%w: github.sort: unknown value %q", ErrInvalid, cfg.GitHub.Sort)
	}
	if cfg.GitHub.Breaker.FailureThreshold == 0 {
		return fmt.Errorf("%w: github.breaker.failure_threshold must be positive", ErrInvalid)
	}
	if cfg.GitHub.Breaker.OpenTimeout <= 0 {
		return fmt.Errorf("%w: github.breaker.open_timeout must be positive", ErrInvalid)
	}

	if cfg.Search.PerQueryCap <= 0 || cfg.Search.PerQueryCap > 100 {
		return fmt.Errorf("%w: search.per_query_cap must be in 1..100, got %d", ErrInvalid, cfg.Search.PerQueryCap)
	}
	if cfg.Search.Concurrency <= 0 {
		return fmt.Errorf("%w: search.concurrency must be positive", ErrInvalid)
	}

	if len(cfg.Channels) == 0 {
		return fmt.Errorf("%w: at least one channel is required", ErrInvalid)
	}
	seen := make(map[string]bool, len(cfg.Channels))
	for i, ch := range cfg.Channels {
		if ch.Name == "" {
			return fmt.Errorf("%w: channels[%d]: name is required", ErrInvalid, i)
		}
		if seen[ch.Name] {
			return fmt.Errorf("%w: channels[%d]: duplicate name %q", ErrInvalid, i, ch.Name)
		}
		seen[ch.Name] = true
		if len(ch.Queries) == 0 {
			return fmt.Errorf("%w: channels[%d] %q: at least one query is required", ErrInvalid, i, ch.Name)
		}
		for j, q := range ch.Queries {
			if q == "" {
				return fmt.Errorf("%w: channels[%d] %q: queries[%d] is empty", ErrInvalid, i, ch.Name, j)
			}
		}
	}

	if err := cfg.Weights.Validate(); err != nil {
		return err
	}

	if cfg.Growth.RecencyBonus.Max < 1 {
		return fmt.Errorf("%w: growth.recency_bonus.max must be >= 1", ErrInvalid)
	}
	if cfg.Growth.RecencyBonus.HalfLife <= 0 {
		return fmt.Errorf("%w: growth.recency_bonus.half_life must be positive", ErrInvalid)
	}
	if cfg.Growth.Saturation <= 0 {
		return fmt.Errorf("%w: growth.saturation must be positive", ErrInvalid)
	}
	if cfg.Quality.UpdateHalfLife <= 0 {
		return fmt.Errorf("%w: quality.update_half_life must be positive", ErrInvalid)
	}

	switch cfg.Cache.Backend {
	case "file", "sqlite":
		if cfg.Cache.Path == "" {
			return fmt.Errorf("%w: cache.path is required for backend %q", ErrInvalid, cfg.Cache.Backend)
		}
	case "redis":
		if cfg.Cache.RedisURLEnv == "" {
			return fmt.Errorf("%w: cache.redis_url_env is required for backend redis", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: cache.backend: unknown value %q", ErrInvalid, cfg.Cache.Backend)
	}

	if cfg.Digest.TopN <= 0 {
		return fmt.Errorf("%w: digest.top_n must be positive", ErrInvalid)
	}
	if cfg.Digest.PerChannel < 0 {
		return fmt.Errorf("%w: digest.per_channel must not be negative", ErrInvalid)
	}
	if cfg.Digest.SummaryLength <= 0 {
		return fmt.Errorf("%w: digest.summary_length must be positive", ErrInvalid)
	}

	for i, n := range cfg.Notify {
		switch n.Type {
		case "resend":
			if n.APIKeyEnv == "" || n.ToEnv == "" || n.From == "" {
				return fmt.Errorf("%w: notify[%d] resend: api_key_env, to_env and from are required", ErrInvalid, i)
			}
		case "slack", "teams", "http":
			if n.URLEnv == "" {
				return fmt.Errorf("%w: notify[%d] %s: url_env is required", ErrInvalid, i, n.Type)
			}
		default:
			return fmt.Errorf("%w: notify[%d]: unknown type %q", ErrInvalid, i, n.Type)
		}
	}

	if cfg.Schedule.Interval <= 0 {
		return fmt.Errorf("%w: schedule.interval must be positive", ErrInvalid)
	}
	return nil
}
