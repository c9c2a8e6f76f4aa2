package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the runtime configuration of the server.
type Config struct {
	Addr             string        `yaml:"addr"`
	DownloadDir      string        `yaml:"download_dir"`
	CookiesFile      string        `yaml:"cookies_file"`
	Format           string        `yaml:"format"`
	ProgressInterval time.Duration `yaml:"progress_interval"`
	Workers          int           `yaml:"workers"`
	QueueSize        int           `yaml:"queue_size"`
	PostgresDSN      string        `yaml:"postgres_dsn"`
	RedisAddr        string        `yaml:"redis_addr"`
	RedisChannel     string        `yaml:"redis_channel"`
	TracingExporter  string        `yaml:"tracing_exporter"`
	TracingEndpoint  string        `yaml:"tracing_endpoint"`
	TracingInsecure  bool          `yaml:"tracing_insecure"`
	ShutdownTimeout  time.Duration `yaml:"shutdown_timeout"`
}

func Default() Config {
	return Config{
		Addr:             ":5000",
		DownloadDir:      "downloads",
		CookiesFile:      "/etc/secrets/cookies.txt",
		Format:           "mp4",
		ProgressInterval: 500 * time.Millisecond,
		Workers:          0, // one goroutine per job
		QueueSize:        16,
		RedisChannel:     "jobs:events",
		TracingExporter:  "none",
		ShutdownTimeout:  30 * time.Second,
	}
}

// yamlConfig holds durations as strings ("500ms", "30s").
type yamlConfig struct {
	Addr             string `yaml:"addr"`
	DownloadDir      string `yaml:"download_dir"`
	CookiesFile      string `yaml:"cookies_file"`
	Format           string `yaml:"format"`
	ProgressInterval string `yaml:"progress_interval"`
	Workers          *int   `yaml:"workers"`
	QueueSize        *int   `yaml:"queue_size"`
	PostgresDSN      string `yaml:"postgres_dsn"`
	RedisAddr        string `yaml:"redis_addr"`
	RedisChannel     string `yaml:"redis_channel"`
	TracingExporter  string `yaml:"tracing_exporter"`
	TracingEndpoint  string `yaml:"tracing_endpoint"`
	TracingInsecure  *bool  `yaml:"tracing_insecure"`
	ShutdownTimeout  string `yaml:"shutdown_timeout"`
}

// LoadFromFile reads a YAML file on top of Default().
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	cfg := Default()
	setString(&cfg.Addr, yc.Addr)
	setString(&cfg.DownloadDir, yc.DownloadDir)
	setString(&cfg.CookiesFile, yc.CookiesFile)
	setString(&cfg.Format, yc.Format)
	setString(&cfg.PostgresDSN, yc.PostgresDSN)
	setString(&cfg.RedisAddr, yc.RedisAddr)
	setString(&cfg.RedisChannel, yc.RedisChannel)
	setString(&cfg.TracingExporter, yc.TracingExporter)
	setString(&cfg.TracingEndpoint, yc.TracingEndpoint)
	if yc.Workers != nil {
		cfg.Workers = *yc.Workers
	}
	if yc.QueueSize != nil {
		cfg.QueueSize = *yc.QueueSize
	}
	if yc.TracingInsecure != nil {
		cfg.TracingInsecure = *yc.TracingInsecure
	}
	if yc.ProgressInterval != "" {
		d, err := time.ParseDuration(yc.ProgressInterval)
		if err != nil {
			return Config{}, fmt.Errorf("parse progress_interval: %w", err)
		}
		cfg.ProgressInterval = d
	}
	if yc.ShutdownTimeout != "" {
		d, err := time.ParseDuration(yc.ShutdownTimeout)
		if err != nil {
			return Config{}, fmt.Errorf("parse shutdown_timeout: %w", err)
		}
		cfg.ShutdownTimeout = d
	}

	return cfg, nil
}

// Load returns Default(), or the file named by CONFIG_FILE, with environment overrides applied.
func Load() (Config, error) {
	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		var err error
		if cfg, err = LoadFromFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// ApplyEnv overrides fields from environment variables.
// PORT is honoured for hosting platforms that only set a port.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("PORT"); v != "" {
		c.Addr = ":" + strings.TrimPrefix(v, ":")
	}
	c.Addr = envOr("HTTP_ADDR", c.Addr)
	c.DownloadDir = envOr("DOWNLOAD_DIR", c.DownloadDir)
	c.CookiesFile = envOr("COOKIES_FILE", c.CookiesFile)
	c.Format = envOr("YTDLP_FORMAT", c.Format)
	c.PostgresDSN = envOr("POSTGRES_DSN", c.PostgresDSN)
	c.RedisAddr = envOr("REDIS_ADDR", c.RedisAddr)
	c.RedisChannel = envOr("REDIS_EVENTS_CHANNEL", c.RedisChannel)
	c.TracingExporter = envOr("TRACING_EXPORTER", c.TracingExporter)
	c.TracingEndpoint = envOr("OTEL_EXPORTER_OTLP_ENDPOINT", c.TracingEndpoint)

	var err error
	if c.Workers, err = envIntOr("WORKERS", c.Workers); err != nil {
		return err
	}
	if c.QueueSize, err = envIntOr("QUEUE_SIZE", c.QueueSize); err != nil {
		return err
	}
	if c.ProgressInterval, err = envDurationOr("PROGRESS_INTERVAL", c.ProgressInterval); err != nil {
		return err
	}
	if c.ShutdownTimeout, err = envDurationOr("SHUTDOWN_TIMEOUT", c.ShutdownTimeout); err != nil {
		return err
	}
	// plain-HTTP collector, e.g. a local otel-collector sidecar
	if c.TracingInsecure, err = envBoolOr("TRACING_INSECURE", c.TracingInsecure); err != nil {
		return err
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Addr == "" {
		return errors.New("config: addr is required")
	}
	if c.DownloadDir == "" {
		return errors.New("config: download_dir is required")
	}
	if c.Workers < 0 {
		return errors.New("config: workers must not be negative")
	}
	if c.QueueSize < 0 {
		return errors.New("config: queue_size must not be negative")
	}
	if c.ProgressInterval <= 0 {
		return errors.New("config: progress_interval must be positive")
	}
	return nil
}

// CookiesAvailable reports whether the configured cookie file exists.
func (c *Config) CookiesAvailable() bool {
	if c.CookiesFile == "" {
		return false
	}
	st, err := os.Stat(c.CookiesFile)
	return err == nil && !st.IsDir()
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func envOr(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func envIntOr(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return i, nil
}

func envDurationOr(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

func envBoolOr(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", key, err)
	}
	return b, nil
}
