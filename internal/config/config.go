// Package config loads and validates crawler configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/crypto-news-crawler/internal/crawler"
	"github.com/JakeFAU/crypto-news-crawler/internal/logging"
)

// DefaultUserAgent is a desktop Chrome user agent; the target sites serve
// reduced pages to unknown agents.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Fetch    FetchConfig           `mapstructure:"fetch"`
	Walker   WalkerConfig          `mapstructure:"walker"`
	Resolver ResolverConfig        `mapstructure:"resolver"`
	Headless HeadlessConfig        `mapstructure:"headless"`
	Output   OutputConfig          `mapstructure:"output"`
	DB       DBConfig              `mapstructure:"db"`
	PubSub   PubSubConfig          `mapstructure:"pubsub"`
	Metrics  MetricsConfig         `mapstructure:"metrics"`
	Logging  logging.Config        `mapstructure:"logging"`
	Sites    map[string]SiteConfig `mapstructure:"sites"`
}

// FetchConfig configures the document fetcher.
type FetchConfig struct {
	UserAgent         string  `mapstructure:"user_agent"`
	FollowRedirects   bool    `mapstructure:"follow_redirects"`
	TimeoutSeconds    int     `mapstructure:"timeout_seconds"`
	MaxRetry          int     `mapstructure:"max_retry"`
	MinDelayMs        int     `mapstructure:"min_delay_ms"`
	MaxDelayMs        int     `mapstructure:"max_delay_ms"`
	MaxConcurrency    int     `mapstructure:"max_concurrency"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// WalkerConfig configures listing pagination.
type WalkerConfig struct {
	PolitenessMinMs     int `mapstructure:"politeness_min_ms"`
	PolitenessMaxMs     int `mapstructure:"politeness_max_ms"`
	IDWindow            int `mapstructure:"id_window"`
	MaxConsecutiveSkips int `mapstructure:"max_consecutive_skips"`
}

// ResolverConfig configures the latest-id browser sessions.
type ResolverConfig struct {
	MaxAttempts int `mapstructure:"max_attempts"`
	MinDelayMs  int `mapstructure:"min_delay_ms"`
	MaxDelayMs  int `mapstructure:"max_delay_ms"`
}

// HeadlessConfig configures the browser used by client-rendered sites.
type HeadlessConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxParallel   int  `mapstructure:"max_parallel"`
	NavTimeoutSec int  `mapstructure:"nav_timeout_seconds"`

	// Load-more feeds poll the item count after each click.
	ClickPollIntervalMs int `mapstructure:"click_poll_interval_ms"`
	ClickPollAttempts   int `mapstructure:"click_poll_attempts"`
}

// OutputConfig sets where site files are written by default.
type OutputConfig struct {
	Dir       string `mapstructure:"dir"`
	GCSPrefix string `mapstructure:"gcs_prefix"`
}

// DBConfig enables the optional Postgres article store.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// PubSubConfig enables run notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// MetricsConfig controls the optional Prometheus listener.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// SiteConfig overrides per-site settings.
type SiteConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// Load builds a Config from defaults, an optional file and NEWSCRAWLER_* env vars.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("NEWSCRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("fetch.user_agent", DefaultUserAgent)
	v.SetDefault("fetch.follow_redirects", true)
	v.SetDefault("fetch.timeout_seconds", 90)
	v.SetDefault("fetch.max_retry", 10)
	v.SetDefault("fetch.min_delay_ms", 550)
	v.SetDefault("fetch.max_delay_ms", 1550)
	v.SetDefault("fetch.max_concurrency", 16)
	v.SetDefault("fetch.requests_per_second", 0)
	v.SetDefault("fetch.burst", 1)
	v.SetDefault("walker.politeness_min_ms", 2000)
	v.SetDefault("walker.politeness_max_ms", 3000)
	v.SetDefault("walker.id_window", 20)
	v.SetDefault("walker.max_consecutive_skips", 5)
	v.SetDefault("resolver.max_attempts", 10)
	v.SetDefault("resolver.min_delay_ms", 1000)
	v.SetDefault("resolver.max_delay_ms", 3000)
	v.SetDefault("headless.enabled", true)
	v.SetDefault("headless.max_parallel", 2)
	v.SetDefault("headless.nav_timeout_seconds", 30)
	v.SetDefault("headless.click_poll_interval_ms", 500)
	v.SetDefault("headless.click_poll_attempts", 20)
	v.SetDefault("output.dir", "datas/news_data")
	v.SetDefault("output.gcs_prefix", "")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "news_articles")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "")
	v.SetDefault("metrics.addr", "")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	var errs []error
	if c.Fetch.TimeoutSeconds <= 0 {
		errs = append(errs, errors.New("fetch.timeout_seconds must be > 0"))
	}
	if c.Fetch.MaxRetry <= 0 {
		errs = append(errs, errors.New("fetch.max_retry must be > 0"))
	}
	if c.Fetch.MinDelayMs < 0 || c.Fetch.MaxDelayMs < c.Fetch.MinDelayMs {
		errs = append(errs, errors.New("fetch delays must satisfy 0 <= min_delay_ms <= max_delay_ms"))
	}
	if c.Fetch.RequestsPerSecond < 0 {
		errs = append(errs, errors.New("fetch.requests_per_second must be >= 0"))
	}
	if c.Walker.PolitenessMinMs < 0 || c.Walker.PolitenessMaxMs < c.Walker.PolitenessMinMs {
		errs = append(errs, errors.New("walker politeness must satisfy 0 <= min <= max"))
	}
	if c.Walker.IDWindow < 0 {
		errs = append(errs, errors.New("walker.id_window must be >= 0"))
	}
	if c.Resolver.MaxAttempts <= 0 {
		errs = append(errs, errors.New("resolver.max_attempts must be > 0"))
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		errs = append(errs, errors.New("headless.max_parallel must be > 0 when headless is enabled"))
	}
	if c.Headless.ClickPollIntervalMs < 0 || c.Headless.ClickPollAttempts <= 0 {
		errs = append(errs, errors.New("headless click polling must satisfy click_poll_interval_ms >= 0 and click_poll_attempts > 0"))
	}
	if strings.TrimSpace(c.Output.Dir) == "" {
		errs = append(errs, errors.New("output.dir is required"))
	}
	if c.PubSub.Topic != "" && c.PubSub.ProjectID == "" {
		errs = append(errs, errors.New("pubsub.project_id is required when pubsub.topic is set"))
	}
	for name := range c.Sites {
		if _, err := crawler.ParseSite(name); err != nil {
			errs = append(errs, fmt.Errorf("sites.%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

func millis(n int) time.Duration { return time.Duration(n) * time.Millisecond }

// RetryDelay is the randomized pause between fetch attempts.
func (c FetchConfig) RetryDelay() crawler.Delay {
	return crawler.Delay{Min: millis(c.MinDelayMs), Max: millis(c.MaxDelayMs)}
}

// Timeout is the per-attempt request timeout.
func (c FetchConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Politeness is the randomized pause between listing pages.
func (c WalkerConfig) Politeness() crawler.Delay {
	return crawler.Delay{Min: millis(c.PolitenessMinMs), Max: millis(c.PolitenessMaxMs)}
}

// RetryDelay is the pause between resolver sessions.
func (c ResolverConfig) RetryDelay() crawler.Delay {
	return crawler.Delay{Min: millis(c.MinDelayMs), Max: millis(c.MaxDelayMs)}
}

// ClickPollInterval is the wait between item counts after a load-more click.
func (c HeadlessConfig) ClickPollInterval() time.Duration {
	return millis(c.ClickPollIntervalMs)
}

// BaseURLs returns the configured per-site root overrides.
func (c Config) BaseURLs() map[crawler.Site]string {
	out := make(map[crawler.Site]string, len(c.Sites))
	for name, sc := range c.Sites {
		site, err := crawler.ParseSite(name)
		if err != nil || sc.BaseURL == "" {
			continue
		}
		out[site] = sc.BaseURL
	}
	return out
}
