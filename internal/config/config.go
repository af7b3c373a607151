package config

import (
	"encoding/json"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	dserrors "github.com/vango-dev/datastar/internal/errors"
	"github.com/vango-dev/datastar/pkg/encrypt"
)

const (
	// ConfigName is the base name of the configuration file.
	ConfigName = "datastar"

	// ConfigFileName is the file written by Save without an explicit path.
	ConfigFileName = ConfigName + ".json"

	// EnvPrefix prefixes configuration environment variables.
	EnvPrefix = "DATASTAR"

	// DefaultAddr is the default listen address.
	DefaultAddr = ":8080"
)

// Session drivers.
const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
	DriverBadger   = "badger"
)

// Config is the complete server configuration.
type Config struct {
	Server   ServerConfig   `json:"server" mapstructure:"server"`
	Session  SessionConfig  `json:"session" mapstructure:"session"`
	Signals  SignalsConfig  `json:"signals" mapstructure:"signals"`
	Redirect RedirectConfig `json:"redirect" mapstructure:"redirect"`
	Metrics  MetricsConfig  `json:"metrics" mapstructure:"metrics"`
	Tracing  TracingConfig  `json:"tracing" mapstructure:"tracing"`

	configPath string
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	// Addr is the listen address.
	Addr string `json:"addr" mapstructure:"addr"`

	// BaseURL is the public origin navigation targets resolve against.
	// Empty derives it from each request.
	BaseURL string `json:"base_url,omitempty" mapstructure:"base_url"`

	// AllowedHosts are extra hosts navigation may target.
	AllowedHosts []string `json:"allowed_hosts,omitempty" mapstructure:"allowed_hosts"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `json:"shutdown_timeout" mapstructure:"shutdown_timeout"`

	// Debug shows error details on stream error pages.
	Debug bool `json:"debug" mapstructure:"debug"`
}

// SessionConfig selects and configures the session backend.
type SessionConfig struct {
	// Driver is memory, redis, postgres or badger.
	Driver string `json:"driver" mapstructure:"driver"`

	CookieName string        `json:"cookie_name" mapstructure:"cookie_name"`
	TTL        time.Duration `json:"ttl" mapstructure:"ttl"`
	Secure     bool          `json:"secure" mapstructure:"secure"`

	RedisAddr   string `json:"redis_addr,omitempty" mapstructure:"redis_addr"`
	RedisPrefix string `json:"redis_prefix,omitempty" mapstructure:"redis_prefix"`

	PostgresDSN string `json:"postgres_dsn,omitempty" mapstructure:"postgres_dsn"`

	// BadgerPath is the database directory; empty runs in memory.
	BadgerPath string `json:"badger_path,omitempty" mapstructure:"badger_path"`
}

// SignalsConfig configures signal reading and locked-signal sealing.
type SignalsConfig struct {
	// Param is the query parameter carrying GET signals.
	Param string `json:"param" mapstructure:"param"`

	// MaxBodyBytes bounds the signals request body.
	MaxBodyBytes int64 `json:"max_body_bytes" mapstructure:"max_body_bytes"`

	// EncryptionKey seals the locked-signal record ("base64:..."). Empty
	// generates a process-local key, which does not survive restarts.
	EncryptionKey string `json:"encryption_key,omitempty" mapstructure:"encryption_key"`
}

// RedirectConfig configures client-side redirects.
type RedirectConfig struct {
	Delay time.Duration `json:"delay" mapstructure:"delay"`
}

// MetricsConfig configures Prometheus collection.
type MetricsConfig struct {
	Enabled   bool   `json:"enabled" mapstructure:"enabled"`
	Namespace string `json:"namespace" mapstructure:"namespace"`
	Path      string `json:"path" mapstructure:"path"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	Enabled    bool   `json:"enabled" mapstructure:"enabled"`
	TracerName string `json:"tracer_name" mapstructure:"tracer_name"`
}

// New returns the default configuration.
func New() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            DefaultAddr,
			ShutdownTimeout: 10 * time.Second,
		},
		Session: SessionConfig{
			Driver:      DriverMemory,
			CookieName:  "datastar_session",
			TTL:         2 * time.Hour,
			RedisAddr:   "localhost:6379",
			RedisPrefix: "datastar:session:",
		},
		Signals: SignalsConfig{
			Param:        "datastar",
			MaxBodyBytes: 1 << 20,
		},
		Redirect: RedirectConfig{
			Delay: 100 * time.Millisecond,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "datastar",
			Path:      "/metrics",
		},
		Tracing: TracingConfig{
			TracerName: "datastar",
		},
	}
}

// Load reads the configuration. path names a config file; empty searches
// the working directory for datastar.{json,yaml,toml} and carries on with
// defaults and environment when there is none.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, New())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, dserrors.New("DS040").
				WithDetail("Failed to read " + path + ": " + err.Error()).
				Wrap(err)
		}
	} else {
		v.SetConfigName(ConfigName)
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, dserrors.New("DS040").
					WithDetail("Failed to read " + v.ConfigFileUsed() + ": " + err.Error()).
					Wrap(err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, dserrors.New("DS040").WithDetail(err.Error()).Wrap(err)
	}
	cfg.configPath = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.base_url", d.Server.BaseURL)
	v.SetDefault("server.allowed_hosts", d.Server.AllowedHosts)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("server.debug", d.Server.Debug)

	v.SetDefault("session.driver", d.Session.Driver)
	v.SetDefault("session.cookie_name", d.Session.CookieName)
	v.SetDefault("session.ttl", d.Session.TTL)
	v.SetDefault("session.secure", d.Session.Secure)
	v.SetDefault("session.redis_addr", d.Session.RedisAddr)
	v.SetDefault("session.redis_prefix", d.Session.RedisPrefix)
	v.SetDefault("session.postgres_dsn", d.Session.PostgresDSN)
	v.SetDefault("session.badger_path", d.Session.BadgerPath)

	v.SetDefault("signals.param", d.Signals.Param)
	v.SetDefault("signals.max_body_bytes", d.Signals.MaxBodyBytes)
	v.SetDefault("signals.encryption_key", d.Signals.EncryptionKey)

	v.SetDefault("redirect.delay", d.Redirect.Delay)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.namespace", d.Metrics.Namespace)
	v.SetDefault("metrics.path", d.Metrics.Path)

	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.tracer_name", d.Tracing.TracerName)
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	invalid := func(detail string) error {
		return dserrors.New("DS040").WithDetail(detail)
	}

	if strings.TrimSpace(c.Server.Addr) == "" {
		return invalid("server.addr must not be empty")
	}
	if c.Server.BaseURL != "" {
		u, err := url.Parse(c.Server.BaseURL)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return invalid("server.base_url must be an absolute http(s) URL")
		}
	}

	switch c.Session.Driver {
	case DriverMemory, DriverBadger:
	case DriverRedis:
		if c.Session.RedisAddr == "" {
			return invalid("session.redis_addr is required for the redis driver")
		}
	case DriverPostgres:
		if c.Session.PostgresDSN == "" {
			return invalid("session.postgres_dsn is required for the postgres driver")
		}
	default:
		return invalid("session.driver must be one of memory, redis, postgres, badger; got " + c.Session.Driver)
	}
	if c.Session.TTL <= 0 {
		return invalid("session.ttl must be positive")
	}
	if c.Session.CookieName == "" {
		return invalid("session.cookie_name must not be empty")
	}

	if c.Signals.Param == "" {
		return invalid("signals.param must not be empty")
	}
	if c.Signals.MaxBodyBytes <= 0 {
		return invalid("signals.max_body_bytes must be positive")
	}
	if c.Signals.EncryptionKey != "" {
		if _, err := encrypt.ParseKey(c.Signals.EncryptionKey); err != nil {
			return dserrors.New("DS041").Wrap(err)
		}
	}

	if c.Redirect.Delay < time.Millisecond {
		return invalid("redirect.delay must be at least 1ms")
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return invalid("metrics.path must start with /")
	}
	return nil
}

// Save writes the configuration to the file it was loaded from.
func (c *Config) Save() error {
	if c.configPath == "" {
		return dserrors.New("DS040").WithDetail("no config path set")
	}
	return c.SaveTo(c.configPath)
}

// SaveTo writes the configuration as JSON to path.
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return dserrors.New("DS040").Wrap(err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return dserrors.New("DS040").Wrap(err)
	}
	c.configPath = path
	return nil
}

// Path returns the file the configuration was loaded from, if any.
func (c *Config) Path() string {
	return c.configPath
}

// Dir returns the directory containing the config file.
func (c *Config) Dir() string {
	if c.configPath == "" {
		return ""
	}
	return filepath.Dir(c.configPath)
}
