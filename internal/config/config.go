package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration, loaded from YAML with an
// environment-variable overlay on top (env wins).
type Config struct {
	App struct {
		// dev | staging | prod
		Env      string `yaml:"env"`
		LogLevel string `yaml:"log_level"`
	} `yaml:"app"`

	Server struct {
		Addr               string   `yaml:"addr"`
		CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
		ReadTimeout        string   `yaml:"read_timeout"`
		WriteTimeout       string   `yaml:"write_timeout"`
	} `yaml:"server"`

	Storage struct {
		DSN      string `yaml:"dsn"`
		Postgres struct {
			MaxOpenConns    int    `yaml:"max_open_conns"`
			MinIdleConns    int    `yaml:"min_idle_conns"`
			ConnMaxLifetime string `yaml:"conn_max_lifetime"`
		} `yaml:"postgres"`
	} `yaml:"storage"`

	Cache struct {
		// memory | redis. With "redis" the in-process tier still runs as
		// the fallback; "memory" skips the remote tier entirely.
		Kind  string `yaml:"kind"`
		Redis struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
		DefaultTTL string `yaml:"default_ttl"`
	} `yaml:"cache"`

	Auth struct {
		// Secret signs both token kinds. Read once at process start.
		Secret     string `yaml:"secret"`
		AccessTTL  string `yaml:"access_ttl"`
		RenewalTTL string `yaml:"renewal_ttl"`
	} `yaml:"auth"`

	Rate struct {
		Enabled     bool   `yaml:"enabled"`
		Window      string `yaml:"window"`
		MaxRequests int    `yaml:"max_requests"`
	} `yaml:"rate"`

	Tenancy struct {
		Header string `yaml:"header"`
		// Gates maps the first path segment under /api/v1 to a feature
		// slug in the feature_flag table. The mapping here is
		// authoritative for the pipeline.
		Gates map[string]string `yaml:"gates"`
	} `yaml:"tenancy"`

	Monitoring struct {
		SampleInterval string `yaml:"sample_interval"`
		BufferSize     int    `yaml:"buffer_size"`
		// ExternalURL is probed by the reachability health check.
		ExternalURL string `yaml:"external_url"`
	} `yaml:"monitoring"`

	Email struct {
		Enabled  bool   `yaml:"enabled"`
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		From     string `yaml:"from"`
	} `yaml:"email"`
}

// Load reads the YAML file at path (optional), applies defaults and the
// environment overlay, and validates the result.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.applyDefaults()
	cfg.applyEnv()

	if cfg.Auth.Secret == "" {
		return nil, fmt.Errorf("config: auth.secret is required (HEALTHGUARD_AUTH_SECRET)")
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ReadTimeout == "" {
		c.Server.ReadTimeout = "10s"
	}
	if c.Server.WriteTimeout == "" {
		c.Server.WriteTimeout = "30s"
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.Cache.DefaultTTL == "" {
		c.Cache.DefaultTTL = "5m"
	}
	if c.Cache.Redis.Prefix == "" {
		c.Cache.Redis.Prefix = "hg"
	}
	if c.Auth.AccessTTL == "" {
		c.Auth.AccessTTL = "30m"
	}
	if c.Auth.RenewalTTL == "" {
		c.Auth.RenewalTTL = "168h" // 7 days
	}
	if c.Rate.Window == "" {
		c.Rate.Window = "1m"
	}
	if c.Rate.MaxRequests == 0 {
		c.Rate.MaxRequests = 60
	}
	if c.Tenancy.Header == "" {
		c.Tenancy.Header = "X-Tenant-ID"
	}
	if c.Tenancy.Gates == nil {
		c.Tenancy.Gates = DefaultGates()
	}
	if c.Monitoring.SampleInterval == "" {
		c.Monitoring.SampleInterval = "30s"
	}
	if c.Monitoring.BufferSize == 0 {
		c.Monitoring.BufferSize = 1000
	}
	if c.Monitoring.ExternalURL == "" {
		c.Monitoring.ExternalURL = "https://www.gstatic.com/generate_204"
	}
	if c.Email.Port == 0 {
		c.Email.Port = 587
	}
}

// applyEnv overlays HEALTHGUARD_* variables over the file values.
func (c *Config) applyEnv() {
	setStr := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	setStr(&c.App.Env, "HEALTHGUARD_ENV")
	setStr(&c.App.LogLevel, "HEALTHGUARD_LOG_LEVEL")
	setStr(&c.Server.Addr, "HEALTHGUARD_ADDR")
	setStr(&c.Storage.DSN, "HEALTHGUARD_DB_DSN")
	setStr(&c.Cache.Kind, "HEALTHGUARD_CACHE_KIND")
	setStr(&c.Cache.Redis.Addr, "HEALTHGUARD_REDIS_ADDR")
	setStr(&c.Cache.Redis.Password, "HEALTHGUARD_REDIS_PASSWORD")
	setStr(&c.Auth.Secret, "HEALTHGUARD_AUTH_SECRET")
	setStr(&c.Email.Host, "HEALTHGUARD_SMTP_HOST")
	setStr(&c.Email.Username, "HEALTHGUARD_SMTP_USER")
	setStr(&c.Email.Password, "HEALTHGUARD_SMTP_PASS")

	if v := os.Getenv("HEALTHGUARD_REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Cache.Redis.DB = n
		}
	}
	if v := os.Getenv("HEALTHGUARD_RATE_ENABLED"); v != "" {
		c.Rate.Enabled = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("HEALTHGUARD_EMAIL_ENABLED"); v != "" {
		c.Email.Enabled = v == "1" || strings.EqualFold(v, "true")
	}
}

// DefaultGates is the path-segment → feature-slug mapping the request
// pipeline enforces when the config file provides none.
func DefaultGates() map[string]string {
	return map[string]string{
		"analytics":  "analytics",
		"storage":    "storage",
		"inventory":  "inventory",
		"financial":  "financial",
		"education":  "education",
		"hr":         "hr",
		"compliance": "compliance",
		"support":    "support",
		"marketing":  "marketing",
		"telehealth": "telehealth",
	}
}

// Duration parses a duration field, falling back to def when the value
// is empty or malformed.
func Duration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
