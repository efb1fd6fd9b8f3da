// Package config loads application configuration with deterministic
// precedence: runtime overrides > environment variables > config file >
// defaults.
//
// Environment variables use the VIDGRAB_ prefix (VIDGRAB_PORT,
// VIDGRAB_LOG_LEVEL, ...). The Webshare and S3 variables also accept their
// bare upstream names (WEBSHARE_PROXY_USERNAME, AWS_S3_BUCKET, ...) so the
// service drops into environments provisioned for the predecessor scripts.
package config

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// EnvPrefix is the environment variable prefix for all settings.
const EnvPrefix = "VIDGRAB"

var (
	configMu  sync.RWMutex
	appConfig *Config
)

// Config is the complete application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Store      StoreConfig      `mapstructure:"store"`
	Runner     RunnerConfig     `mapstructure:"runner"`
	Fetch      FetchConfig      `mapstructure:"fetch"`
	Proxy      ProxyConfig      `mapstructure:"proxy"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Transcript TranscriptConfig `mapstructure:"transcript"`
	EventLog   EventLogConfig   `mapstructure:"eventlog"`
	Health     HealthConfig     `mapstructure:"health"`
	Debug      DebugConfig      `mapstructure:"debug"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Profile string `mapstructure:"profile"` // STRUCTURED or CONSOLE
}

// StoreConfig configures the in-memory job store and its janitor.
type StoreConfig struct {
	// Retention is how long terminal jobs remain queryable.
	Retention time.Duration `mapstructure:"retention"`

	// SweepInterval is how often the janitor scans for expired jobs.
	SweepInterval time.Duration `mapstructure:"sweep_interval"`

	// MaxJobs caps live entries; zero disables the cap.
	MaxJobs int `mapstructure:"max_jobs"`
}

// RunnerConfig configures the download worker pool.
type RunnerConfig struct {
	Workers     int           `mapstructure:"workers"`
	QueueDepth  int           `mapstructure:"queue_depth"`
	RateLimit   float64       `mapstructure:"rate_limit"`
	MaxDuration time.Duration `mapstructure:"max_duration"`
	WorkDir     string        `mapstructure:"work_dir"`
}

// FetchConfig configures the yt-dlp adapter.
type FetchConfig struct {
	Binary  string        `mapstructure:"binary"`
	Retries int           `mapstructure:"retries"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ProxyConfig configures the rotating proxy pool.
type ProxyConfig struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Count    int    `mapstructure:"count"`
	Endpoint string `mapstructure:"endpoint"`
}

// StorageConfig configures S3 artifact upload.
type StorageConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	ForcePathStyle  bool   `mapstructure:"force_path_style"`
}

// TranscriptConfig configures transcript extraction.
type TranscriptConfig struct {
	MaxDuration time.Duration `mapstructure:"max_duration"`
	Language    string        `mapstructure:"language"`
}

// EventLogConfig configures the JSONL lifecycle event log.
type EventLogConfig struct {
	// Path is the JSONL output file. Empty disables the event log.
	Path string `mapstructure:"path"`
}

// HealthConfig configures health endpoints.
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// DebugConfig configures debug features.
type DebugConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	PprofEnabled bool `mapstructure:"pprof_enabled"`
}

// Load builds the configuration. Later overrides maps win over earlier
// ones; all overrides win over environment variables and defaults. The
// loaded config is retained for GetConfig.
func Load(ctx context.Context, overrides ...map[string]any) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvAliases(v)

	v.SetConfigName("vidgrab")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/vidgrab")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	// Runtime overrides use Set, which outranks env and file values.
	for _, o := range overrides {
		for key, val := range flatten("", o) {
			v.Set(key, val)
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	configMu.Lock()
	appConfig = &cfg
	configMu.Unlock()
	return &cfg, nil
}

// GetConfig returns the most recently loaded configuration, or nil when
// Load has not run.
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// Validate checks cross-field constraints that defaults cannot guarantee.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Runner.Workers < 1 {
		return fmt.Errorf("runner.workers must be at least 1, got %d", c.Runner.Workers)
	}
	if c.Runner.QueueDepth < 1 {
		return fmt.Errorf("runner.queue_depth must be at least 1, got %d", c.Runner.QueueDepth)
	}
	if c.Store.Retention <= 0 {
		return fmt.Errorf("store.retention must be positive, got %s", c.Store.Retention)
	}
	if c.Storage.Enabled && c.Storage.Bucket == "" {
		return fmt.Errorf("storage.bucket is required when storage is enabled")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Minute) // downloads stream through the sync endpoint
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "STRUCTURED")

	v.SetDefault("store.retention", time.Hour)
	v.SetDefault("store.sweep_interval", time.Minute)
	v.SetDefault("store.max_jobs", 1000)

	v.SetDefault("runner.workers", 4)
	v.SetDefault("runner.queue_depth", 16)
	v.SetDefault("runner.rate_limit", 0.0)
	v.SetDefault("runner.max_duration", time.Duration(0))
	v.SetDefault("runner.work_dir", "")

	v.SetDefault("fetch.binary", "yt-dlp")
	v.SetDefault("fetch.retries", 3)
	v.SetDefault("fetch.timeout", 10*time.Minute)

	v.SetDefault("proxy.endpoint", "p.webshare.io:80")
	v.SetDefault("proxy.count", 0)

	v.SetDefault("storage.enabled", false)
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.force_path_style", false)

	v.SetDefault("transcript.max_duration", time.Hour)
	v.SetDefault("transcript.language", "en")

	v.SetDefault("eventlog.path", "")

	v.SetDefault("health.enabled", true)

	v.SetDefault("debug.enabled", false)
	v.SetDefault("debug.pprof_enabled", false)
}

// bindEnvAliases maps short env var names onto nested keys. AutomaticEnv
// only covers VIDGRAB_SERVER_PORT style names; operators expect the short
// forms, and the proxy/storage settings keep their upstream names.
func bindEnvAliases(v *viper.Viper) {
	bind := func(key string, names ...string) {
		args := append([]string{key}, names...)
		_ = v.BindEnv(args...)
	}

	bind("server.host", "VIDGRAB_HOST")
	bind("server.port", "VIDGRAB_PORT")
	bind("server.read_timeout", "VIDGRAB_READ_TIMEOUT")
	bind("server.write_timeout", "VIDGRAB_WRITE_TIMEOUT")
	bind("server.shutdown_timeout", "VIDGRAB_SHUTDOWN_TIMEOUT")

	bind("logging.level", "VIDGRAB_LOG_LEVEL")
	bind("logging.profile", "VIDGRAB_LOG_PROFILE")

	bind("store.retention", "VIDGRAB_RETENTION")
	bind("store.max_jobs", "VIDGRAB_MAX_JOBS")

	bind("runner.workers", "VIDGRAB_WORKERS")
	bind("runner.queue_depth", "VIDGRAB_QUEUE_DEPTH")
	bind("runner.max_duration", "VIDGRAB_MAX_DURATION")

	bind("proxy.username", "VIDGRAB_PROXY_USERNAME", "WEBSHARE_PROXY_USERNAME")
	bind("proxy.password", "VIDGRAB_PROXY_PASSWORD", "WEBSHARE_PROXY_PASSWORD")
	bind("proxy.count", "VIDGRAB_PROXY_COUNT", "WEBSHARE_PROXY_COUNT")

	bind("storage.bucket", "VIDGRAB_S3_BUCKET", "AWS_S3_BUCKET")
	bind("storage.region", "VIDGRAB_S3_REGION", "AWS_REGION")
	bind("storage.endpoint", "VIDGRAB_S3_ENDPOINT")
	bind("storage.access_key_id", "VIDGRAB_S3_ACCESS_KEY_ID", "AWS_ACCESS_KEY_ID")
	bind("storage.secret_access_key", "VIDGRAB_S3_SECRET_ACCESS_KEY", "AWS_SECRET_ACCESS_KEY")

	bind("transcript.max_duration", "VIDGRAB_TRANSCRIPT_MAX_DURATION")
	bind("eventlog.path", "VIDGRAB_EVENTLOG_PATH")
}

// flatten converts nested override maps into dotted viper keys.
func flatten(prefix string, m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, val := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := val.(map[string]any); ok {
			for nk, nv := range flatten(key, nested) {
				out[nk] = nv
			}
			continue
		}
		out[key] = val
	}
	return out
}
