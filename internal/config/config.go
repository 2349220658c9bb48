// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/serp-crawler/internal/crawler"
)

// Transport names.
const (
	TransportHTTP    = "http"
	TransportBrowser = "browser"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Source     SourceConfig     `mapstructure:"source"`
	Proxy      ProxyConfig      `mapstructure:"proxy"`
	Fetch      FetchConfig      `mapstructure:"fetch"`
	Retry      RetryConfig      `mapstructure:"retry"`
	Politeness PolitenessConfig `mapstructure:"politeness"`
	Headless   HeadlessConfig   `mapstructure:"headless"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
	Output     OutputConfig     `mapstructure:"output"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// SourceConfig selects the engine preset; the embedded fields override it.
type SourceConfig struct {
	Preset               string `mapstructure:"preset"`
	crawler.SourceConfig `mapstructure:",squash"`
}

// ProxyConfig controls where proxies come from and how they are vetted.
type ProxyConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Required makes an empty or exhausted pool fatal instead of falling back to direct fetches.
	Required              bool          `mapstructure:"required"`
	Sources               []string      `mapstructure:"sources"`
	File                  string        `mapstructure:"file"`
	Static                []string      `mapstructure:"static"`
	Validate              bool          `mapstructure:"validate"`
	ValidationTimeout     time.Duration `mapstructure:"validation_timeout"`
	ValidationConcurrency int           `mapstructure:"validation_concurrency"`
}

// FetchConfig governs the fetch pool and the per-page algorithm.
type FetchConfig struct {
	Transport      string        `mapstructure:"transport"`
	Concurrency    int           `mapstructure:"concurrency"`
	BatchSize      int           `mapstructure:"batch_size"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	FallbackDirect bool          `mapstructure:"fallback_direct"`
	UserAgents     []string      `mapstructure:"user_agents"`
	RatePerSecond  float64       `mapstructure:"rate_per_second"`
	Burst          int           `mapstructure:"burst"`
	// DetectChallenges treats captcha pages served with 200 as failed attempts.
	DetectChallenges bool `mapstructure:"detect_challenges"`
}

// RetryConfig shapes the pause between attempts.
type RetryConfig struct {
	// Mode is "exponential" or "random".
	Mode      string        `mapstructure:"mode"`
	BaseDelay time.Duration `mapstructure:"base_delay"`
	MaxDelay  time.Duration `mapstructure:"max_delay"`
	MinDelay  time.Duration `mapstructure:"min_delay"`
	Jitter    float64       `mapstructure:"jitter"`
}

// PolitenessConfig bounds the pause after each successful page.
type PolitenessConfig struct {
	Min time.Duration `mapstructure:"min"`
	Max time.Duration `mapstructure:"max"`
}

// HeadlessConfig configures the browser transport.
type HeadlessConfig struct {
	MaxParallel int           `mapstructure:"max_parallel"`
	NavTimeout  time.Duration `mapstructure:"nav_timeout"`
	SettleMin   time.Duration `mapstructure:"settle_min"`
	SettleMax   time.Duration `mapstructure:"settle_max"`
	ExecPath    string        `mapstructure:"exec_path"`
}

// CheckpointConfig selects where progress is stored.
type CheckpointConfig struct {
	// Backend is "file" or "gcs".
	Backend   string `mapstructure:"backend"`
	Path      string `mapstructure:"path"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	GCSObject string `mapstructure:"gcs_object"`
}

// OutputConfig selects the result store.
type OutputConfig struct {
	// Backend is "csv", "sqlite" or "postgres".
	Backend    string         `mapstructure:"backend"`
	CSVPath    string         `mapstructure:"csv_path"`
	SQLitePath string         `mapstructure:"sqlite_path"`
	Postgres   PostgresConfig `mapstructure:"postgres"`
}

// PostgresConfig controls access to the relational database.
type PostgresConfig struct {
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ServerConfig controls the optional status server.
type ServerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SERPCRAWL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	preset := strings.ToLower(strings.TrimSpace(v.GetString("source.preset")))
	if preset == "" {
		preset = DefaultPreset
	}
	base, ok := Presets()[preset]
	if !ok {
		return Config{}, fmt.Errorf("source.preset %q is unknown (have %s)", preset, strings.Join(PresetNames(), ", "))
	}
	setSourceDefaults(v, base)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Source.Preset = preset

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// UsePreset replaces the source section with the named preset.
func (c *Config) UsePreset(name string) error {
	name = strings.ToLower(strings.TrimSpace(name))
	preset, ok := Presets()[name]
	if !ok {
		return fmt.Errorf("source preset %q is unknown (have %s)", name, strings.Join(PresetNames(), ", "))
	}
	c.Source = SourceConfig{Preset: name, SourceConfig: preset}
	return nil
}

// PresetNames lists the built-in presets in sorted order.
func PresetNames() []string {
	presets := Presets()
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("source.preset", DefaultPreset)
	v.SetDefault("proxy.enabled", true)
	v.SetDefault("proxy.required", false)
	v.SetDefault("proxy.sources", []string{"sslproxies"})
	v.SetDefault("proxy.validate", true)
	v.SetDefault("proxy.validation_timeout", 5*time.Second)
	v.SetDefault("proxy.validation_concurrency", 10)
	v.SetDefault("fetch.transport", TransportHTTP)
	v.SetDefault("fetch.concurrency", 5)
	v.SetDefault("fetch.timeout", 10*time.Second)
	v.SetDefault("fetch.max_retries", 5)
	v.SetDefault("fetch.fallback_direct", false)
	v.SetDefault("fetch.rate_per_second", 0)
	v.SetDefault("fetch.burst", 1)
	v.SetDefault("fetch.detect_challenges", true)
	v.SetDefault("retry.mode", "random")
	v.SetDefault("retry.base_delay", time.Second)
	v.SetDefault("retry.max_delay", 30*time.Second)
	v.SetDefault("retry.min_delay", 5*time.Second)
	v.SetDefault("retry.jitter", 0.0)
	v.SetDefault("politeness.min", 2*time.Second)
	v.SetDefault("politeness.max", 5*time.Second)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout", 45*time.Second)
	v.SetDefault("headless.settle_min", 2*time.Second)
	v.SetDefault("headless.settle_max", 5*time.Second)
	v.SetDefault("checkpoint.backend", "file")
	v.SetDefault("checkpoint.path", "progress.json")
	v.SetDefault("checkpoint.gcs_object", "serpcrawl/progress.json")
	v.SetDefault("output.backend", "csv")
	v.SetDefault("output.csv_path", "{date}_results.csv")
	v.SetDefault("output.sqlite_path", "results.db")
	v.SetDefault("output.postgres.table", "search_results")
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.addr", ":9090")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
}

// setSourceDefaults seeds the source section from a preset so that explicit keys win.
func setSourceDefaults(v *viper.Viper, p crawler.SourceConfig) {
	v.SetDefault("source.name", p.Name)
	v.SetDefault("source.base_url", p.BaseURL)
	v.SetDefault("source.query_param", p.QueryParam)
	v.SetDefault("source.page_param", p.PageParam)
	v.SetDefault("source.page_size", p.PageSize)
	v.SetDefault("source.validation_url", p.ValidationURL)
	v.SetDefault("source.search_box_selector", p.SearchBoxSelector)
	v.SetDefault("source.extraction.result_selector", p.Extraction.ResultSelector)
	v.SetDefault("source.extraction.title_selector", p.Extraction.TitleSelector)
	v.SetDefault("source.extraction.link_selector", p.Extraction.LinkSelector)
	v.SetDefault("source.extraction.link_prefix", p.Extraction.LinkPrefix)
	fields := make([]map[string]any, 0, len(p.Extraction.Fields))
	for _, f := range p.Extraction.Fields {
		fields = append(fields, map[string]any{"name": f.Name, "selector": f.Selector, "attr": f.Attr})
	}
	v.SetDefault("source.extraction.fields", fields)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Source.BaseURL == "" {
		return fmt.Errorf("source.base_url is required")
	}
	if c.Source.QueryParam == "" && c.Source.SearchBoxSelector == "" {
		return fmt.Errorf("source.query_param or source.search_box_selector is required")
	}
	if c.Source.Extraction.ResultSelector == "" {
		return fmt.Errorf("source.extraction.result_selector is required")
	}
	if c.Fetch.Concurrency <= 0 {
		return fmt.Errorf("fetch.concurrency must be > 0")
	}
	if c.Fetch.MaxRetries <= 0 {
		return fmt.Errorf("fetch.max_retries must be > 0")
	}
	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("fetch.timeout must be > 0")
	}
	switch c.Fetch.Transport {
	case TransportHTTP, TransportBrowser:
	default:
		return fmt.Errorf("fetch.transport must be %q or %q", TransportHTTP, TransportBrowser)
	}
	if c.Proxy.ValidationConcurrency <= 0 {
		return fmt.Errorf("proxy.validation_concurrency must be > 0")
	}
	if c.Proxy.Required && !c.Proxy.Enabled {
		return fmt.Errorf("proxy.required needs proxy.enabled")
	}
	switch c.Retry.Mode {
	case "exponential", "random":
	default:
		return fmt.Errorf("retry.mode must be exponential or random")
	}
	if c.Politeness.Max < c.Politeness.Min {
		return fmt.Errorf("politeness.max must be >= politeness.min")
	}
	if c.Fetch.Transport == TransportBrowser && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 for the browser transport")
	}
	switch c.Checkpoint.Backend {
	case "file":
		if c.Checkpoint.Path == "" {
			return fmt.Errorf("checkpoint.path is required")
		}
	case "gcs":
		if c.Checkpoint.GCSBucket == "" {
			return fmt.Errorf("checkpoint.gcs_bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("checkpoint.backend must be file or gcs")
	}
	switch c.Output.Backend {
	case "csv", "sqlite":
	case "postgres":
		if c.Output.Postgres.DSN == "" {
			return fmt.Errorf("output.postgres.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("output.backend must be csv, sqlite or postgres")
	}
	if c.PubSub.Enabled && (c.PubSub.ProjectID == "" || c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set when pubsub is enabled")
	}
	return nil
}

// BatchSize is the number of pages checkpointed together; it defaults to the fetch concurrency.
func (c Config) BatchSize() int {
	if c.Fetch.BatchSize > 0 {
		return c.Fetch.BatchSize
	}
	return c.Fetch.Concurrency
}
