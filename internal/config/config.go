// Package config loads bbagrid configuration from an optional YAML file and
// BBAGRID_ environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/bbagrid/bbagrid/internal/database"
	"github.com/bbagrid/bbagrid/internal/poll"
	"github.com/bbagrid/bbagrid/internal/telemetry"
	"github.com/bbagrid/bbagrid/internal/tracker"
	"github.com/bbagrid/bbagrid/internal/worker"
)

// EnvPrefix prefixes every environment override, e.g. BBAGRID_SERVER_PORT.
const EnvPrefix = "BBAGRID"

// DevSigningKey is the signing key used when none is configured.
const DevSigningKey = "local-dev-signing-key-change-in-production"

// Config holds the full application configuration.
type Config struct {
	Env          string             `yaml:"env" mapstructure:"env"`
	Log          LogConfig          `yaml:"log" mapstructure:"log"`
	Server       ServerConfig       `yaml:"server" mapstructure:"server"`
	Database     database.Config    `yaml:"database" mapstructure:"database"`
	Telemetry    telemetry.Config   `yaml:"telemetry" mapstructure:"telemetry"`
	Auth         AuthConfig         `yaml:"auth" mapstructure:"auth"`
	PubSub       PubSubConfig       `yaml:"pubsub" mapstructure:"pubsub"`
	Poll         poll.Policy        `yaml:"poll" mapstructure:"poll"`
	Grid         GridConfig         `yaml:"grid" mapstructure:"grid"`
	FeatureFlags FeatureFlagsConfig `yaml:"feature_flags" mapstructure:"feature_flags"`
	Worker       worker.Config      `yaml:"worker" mapstructure:"worker"`
	Tracker      tracker.Config     `yaml:"tracker" mapstructure:"tracker"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the HTTP servers.
type ServerConfig struct {
	Port            int           `yaml:"port" mapstructure:"port"`
	WorkerPort      int           `yaml:"worker_port" mapstructure:"worker_port"`
	ReadTimeout     time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
	RateLimit       int           `yaml:"rate_limit" mapstructure:"rate_limit"`
	RequireTLS      bool          `yaml:"require_tls" mapstructure:"require_tls"`
}

// AuthConfig configures token issuance.
type AuthConfig struct {
	SigningKey string        `yaml:"signing_key" mapstructure:"signing_key"`
	Issuer     string        `yaml:"issuer" mapstructure:"issuer"`
	Audience   string        `yaml:"audience" mapstructure:"audience"`
	AdminKey   string        `yaml:"admin_key" mapstructure:"admin_key"`
	DeviceTTL  time.Duration `yaml:"device_ttl" mapstructure:"device_ttl"`
	AdminTTL   time.Duration `yaml:"admin_ttl" mapstructure:"admin_ttl"`
	Leeway     time.Duration `yaml:"leeway" mapstructure:"leeway"`
}

// PubSubConfig configures block change events. An empty ProjectID means
// events are only logged.
type PubSubConfig struct {
	ProjectID    string        `yaml:"project_id" mapstructure:"project_id"`
	Topic        string        `yaml:"topic" mapstructure:"topic"`
	Subscription string        `yaml:"subscription" mapstructure:"subscription"`
	Timeout      time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// Enabled reports whether Pub/Sub is configured.
func (c PubSubConfig) Enabled() bool {
	return c.ProjectID != ""
}

// GridConfig selects the grid table. An empty File uses the built-in grid.
type GridConfig struct {
	File string `yaml:"file" mapstructure:"file"`
}

// FeatureFlagsConfig configures the flag cache.
type FeatureFlagsConfig struct {
	CacheTTL time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`
}

// IsProduction reports whether Env names a production deployment.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// Validate checks settings that would otherwise fail later at runtime.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if err := c.Poll.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("poll: %w", err))
	}
	if c.IsProduction() && (c.Auth.SigningKey == "" || c.Auth.SigningKey == DevSigningKey) {
		errs = append(errs, errors.New("auth.signing_key must be set in production"))
	}
	if c.Tracker.Mode != "" {
		if _, err := poll.ParseMode(c.Tracker.Mode); err != nil {
			errs = append(errs, fmt.Errorf("tracker.mode: %w", err))
		}
	}
	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "development")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.worker_port", 8081)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.rate_limit", 100)
	v.SetDefault("server.require_tls", false)

	v.SetDefault("database.url", "")
	v.SetDefault("database.host", "")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "bbagrid")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "bbagrid")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.migrate", true)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.otlp_endpoint", "localhost:4317")
	v.SetDefault("telemetry.sample_ratio", 1.0)
	v.SetDefault("telemetry.metric_interval", 15*time.Second)

	v.SetDefault("auth.signing_key", DevSigningKey)
	v.SetDefault("auth.issuer", "bbagrid")
	v.SetDefault("auth.audience", "bbagrid-api")
	v.SetDefault("auth.admin_key", "")
	v.SetDefault("auth.device_ttl", 30*24*time.Hour)
	v.SetDefault("auth.admin_ttl", time.Hour)
	v.SetDefault("auth.leeway", 30*time.Second)

	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "block-changes")
	v.SetDefault("pubsub.subscription", "block-changes-worker")
	v.SetDefault("pubsub.timeout", 5*time.Second)

	p := poll.DefaultPolicy()
	v.SetDefault("poll.min_update_time", p.MinUpdateTime)
	v.SetDefault("poll.foreground", p.Foreground)
	v.SetDefault("poll.background", p.Background)
	v.SetDefault("poll.threshold", p.Threshold)
	v.SetDefault("poll.near_distance", p.NearDistance)
	v.SetDefault("poll.near_distance_change", p.NearDistanceChange)
	v.SetDefault("poll.max_distance_change", p.MaxDistanceChange)

	v.SetDefault("grid.file", "")
	v.SetDefault("feature_flags.cache_ttl", time.Minute)

	w := worker.DefaultConfig()
	v.SetDefault("worker.stale_after", w.StaleAfter)
	v.SetDefault("worker.sweep_interval", w.SweepInterval)
	v.SetDefault("worker.max_outstanding_messages", w.MaxOutstandingMessages)
	v.SetDefault("worker.max_extension", w.MaxExtension)

	v.SetDefault("tracker.api_url", "http://localhost:8080")
	v.SetDefault("tracker.device_id", "")
	v.SetDefault("tracker.token", "")
	v.SetDefault("tracker.mode", string(poll.ModeForeground))
	v.SetDefault("tracker.gpsd_addr", tracker.DefaultGPSDAddr)
	v.SetDefault("tracker.replay_file", "")
	v.SetDefault("tracker.spool_path", "bbagrid-spool.db")
	v.SetDefault("tracker.spool_max", tracker.DefaultSpoolMax)
	v.SetDefault("tracker.flush_interval", tracker.DefaultFlushInterval)
	v.SetDefault("tracker.request_timeout", 10*time.Second)
	v.SetDefault("tracker.max_retries", 2)
}

// Load reads configuration from path, or from bbagrid.yaml in the working
// directory or /etc/bbagrid when path is empty, then applies environment
// overrides. A missing default file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("bbagrid")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/bbagrid")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if cfg.Telemetry.Environment == "" {
		cfg.Telemetry.Environment = cfg.Env
	}
	return &cfg, nil
}

// NewLogger builds the root logger. Format "console" gives human-readable
// output; anything else is JSON.
func NewLogger(cfg LogConfig, w io.Writer, service, version string) (zerolog.Logger, error) {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("config: parse log level: %w", err)
		}
		level = parsed
	}

	if strings.EqualFold(cfg.Format, "console") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	return zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Str("service", service).
		Str("version", version).
		Logger(), nil
}
