// Package appconfig loads the authshield service configuration from an
// optional YAML file and AUTHSHIELD_* environment variables.
package appconfig

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/MrEthical07/authshield"
	"github.com/MrEthical07/authshield/internal/logging"
	"github.com/MrEthical07/authshield/monitor"
	"github.com/MrEthical07/authshield/notify"
	"github.com/MrEthical07/authshield/ratelimit"
)

// EnvPrefix prefixes every environment override. Nested keys join with
// underscores, so server.addr is AUTHSHIELD_SERVER_ADDR.
const EnvPrefix = "AUTHSHIELD"

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Postgres    PostgresConfig    `mapstructure:"postgres"`
	SMTP        SMTPConfig        `mapstructure:"smtp"`
	Log         logging.Config    `mapstructure:"log"`
	Monitor     MonitorConfig     `mapstructure:"monitor"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
	Auth        AuthConfig        `mapstructure:"auth"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// PostgresConfig selects the relational store. An empty DSN runs the
// service on the in-memory stores.
type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	Migrate  bool   `mapstructure:"migrate"`
}

// SMTPConfig enables mail delivery. With Enabled false notifications are
// written to the log instead.
type SMTPConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	TLS             bool          `mapstructure:"tls"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	From            string        `mapstructure:"from"`
	AppName         string        `mapstructure:"app_name"`
	BaseURL         string        `mapstructure:"base_url"`
	AlertRecipients []string      `mapstructure:"alert_recipients"`
	Timeout         time.Duration `mapstructure:"timeout"`
	// LogTokens includes token values in logged notifications. Development
	// only.
	LogTokens bool `mapstructure:"log_tokens"`
}

type MonitorConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Interval       time.Duration `mapstructure:"interval"`
	Window         time.Duration `mapstructure:"window"`
	AlertCapacity  int           `mapstructure:"alert_capacity"`
	NotifyInterval time.Duration `mapstructure:"notify_interval"`
	NotifyBurst    int           `mapstructure:"notify_burst"`
}

type MaintenanceConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

type LockoutConfig struct {
	MaxFailedAttempts int           `mapstructure:"max_failed_attempts"`
	ResetWindow       time.Duration `mapstructure:"reset_window"`
	BaseDuration      time.Duration `mapstructure:"base_duration"`
	Multiplier        int           `mapstructure:"multiplier"`
	MaxDuration       time.Duration `mapstructure:"max_duration"`
}

type RateLimitProfile struct {
	MaxRequests int           `mapstructure:"max_requests"`
	Window      time.Duration `mapstructure:"window"`
	Custom      []CustomLimit `mapstructure:"custom"`
}

// CustomLimit overrides MaxRequests for one identifier of a profile. It is a
// list entry rather than a map key because identifiers such as IPs contain
// the key delimiter.
type CustomLimit struct {
	Identifier  string `mapstructure:"identifier"`
	MaxRequests int    `mapstructure:"max_requests"`
}

// AuthConfig carries the engine knobs exposed to operators. Everything
// else keeps its [authshield.DefaultConfig] value.
type AuthConfig struct {
	SigningKey               string                      `mapstructure:"signing_key"`
	SessionTTL               time.Duration               `mapstructure:"session_ttl"`
	RequireEmailVerification bool                        `mapstructure:"require_email_verification"`
	EventsAsync              bool                        `mapstructure:"events_async"`
	EventRetention           time.Duration               `mapstructure:"event_retention"`
	RateLimitEnabled         bool                        `mapstructure:"rate_limit_enabled"`
	RateLimits               map[string]RateLimitProfile `mapstructure:"rate_limits"`
	Lockout                  LockoutConfig               `mapstructure:"lockout"`
}

func setDefaults(v *viper.Viper) {
	engine := authshield.DefaultConfig()
	logs := logging.DefaultConfig()
	mon := monitor.DefaultConfig()

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.migrate", true)

	v.SetDefault("smtp.enabled", false)
	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.tls", true)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from", "")
	v.SetDefault("smtp.app_name", "Authshield")
	v.SetDefault("smtp.base_url", "http://localhost:8080")
	v.SetDefault("smtp.alert_recipients", []string{})
	v.SetDefault("smtp.timeout", 10*time.Second)
	v.SetDefault("smtp.log_tokens", false)

	v.SetDefault("log.level", logs.Level)
	v.SetDefault("log.format", logs.Format)
	v.SetDefault("log.output", logs.Output)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", logs.MaxSizeMB)
	v.SetDefault("log.max_backups", logs.MaxBackups)
	v.SetDefault("log.max_age_days", logs.MaxAgeDays)
	v.SetDefault("log.compress", false)

	v.SetDefault("monitor.enabled", true)
	v.SetDefault("monitor.interval", 5*time.Minute)
	v.SetDefault("monitor.window", mon.Window)
	v.SetDefault("monitor.alert_capacity", mon.AlertCapacity)
	v.SetDefault("monitor.notify_interval", mon.NotifyInterval)
	v.SetDefault("monitor.notify_burst", mon.NotifyBurst)

	v.SetDefault("maintenance.interval", time.Hour)

	v.SetDefault("auth.signing_key", "")
	v.SetDefault("auth.session_ttl", engine.Session.TTL)
	v.SetDefault("auth.require_email_verification", engine.Registration.RequireEmailVerification)
	v.SetDefault("auth.events_async", engine.Events.Async)
	v.SetDefault("auth.event_retention", engine.Events.Retention)
	v.SetDefault("auth.rate_limit_enabled", engine.RateLimit.Enabled)
	v.SetDefault("auth.lockout.max_failed_attempts", engine.Lockout.MaxFailedAttempts)
	v.SetDefault("auth.lockout.reset_window", engine.Lockout.ResetWindow)
	v.SetDefault("auth.lockout.base_duration", engine.Lockout.BaseDuration)
	v.SetDefault("auth.lockout.multiplier", engine.Lockout.Multiplier)
	v.SetDefault("auth.lockout.max_duration", engine.Lockout.MaxDuration)
}

// Load reads path when non-empty, then applies environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the service-level settings. Engine and monitor settings
// are validated by their own constructors.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	if c.Redis.Addr == "" {
		return errors.New("redis.addr is required")
	}
	if c.Monitor.Enabled && c.Monitor.Interval <= 0 {
		return errors.New("monitor.interval must be > 0")
	}
	if c.Maintenance.Interval < 0 {
		return errors.New("maintenance.interval must be >= 0")
	}
	for name, p := range c.Auth.RateLimits {
		if !knownProfile(ratelimit.Profile(name)) {
			return fmt.Errorf("auth.rate_limits: unknown profile %q", name)
		}
		for i, cl := range p.Custom {
			if cl.Identifier == "" || cl.MaxRequests <= 0 {
				return fmt.Errorf("auth.rate_limits.%s.custom[%d]: identifier and max_requests > 0 are required", name, i)
			}
		}
	}
	return nil
}

func knownProfile(p ratelimit.Profile) bool {
	_, ok := ratelimit.DefaultProfiles()[p]
	return ok
}

// Engine returns the engine configuration: defaults overlaid with the
// operator settings.
func (c *Config) Engine() authshield.Config {
	cfg := authshield.DefaultConfig()
	a := c.Auth

	if a.SigningKey != "" {
		cfg.Session.SigningKey = []byte(a.SigningKey)
	}
	cfg.Session.TTL = a.SessionTTL
	cfg.Registration.RequireEmailVerification = a.RequireEmailVerification
	cfg.Events.Async = a.EventsAsync
	cfg.Events.Retention = a.EventRetention
	cfg.RateLimit.Enabled = a.RateLimitEnabled
	cfg.Lockout = authshield.LockoutConfig{
		MaxFailedAttempts: a.Lockout.MaxFailedAttempts,
		ResetWindow:       a.Lockout.ResetWindow,
		BaseDuration:      a.Lockout.BaseDuration,
		Multiplier:        a.Lockout.Multiplier,
		MaxDuration:       a.Lockout.MaxDuration,
	}

	for name, p := range a.RateLimits {
		profile := ratelimit.Profile(name)
		limit := cfg.RateLimit.Profiles[profile]
		if p.MaxRequests > 0 {
			limit.MaxRequests = p.MaxRequests
		}
		if p.Window > 0 {
			limit.Window = p.Window
		}
		cfg.RateLimit.Profiles[profile] = limit

		if len(p.Custom) == 0 {
			continue
		}
		if cfg.RateLimit.Custom == nil {
			cfg.RateLimit.Custom = make(map[ratelimit.Profile]map[string]int)
		}
		limits := make(map[string]int, len(p.Custom))
		for _, cl := range p.Custom {
			limits[cl.Identifier] = cl.MaxRequests
		}
		cfg.RateLimit.Custom[profile] = limits
	}
	return cfg
}

// MonitorConfig returns the monitor configuration with the default
// detectors and thresholds.
func (c *Config) MonitorConfig() monitor.Config {
	cfg := monitor.DefaultConfig()
	cfg.Window = c.Monitor.Window
	cfg.AlertCapacity = c.Monitor.AlertCapacity
	cfg.NotifyInterval = c.Monitor.NotifyInterval
	cfg.NotifyBurst = c.Monitor.NotifyBurst
	return cfg
}

func (c *Config) SMTPConfig() notify.SMTPConfig {
	s := c.SMTP
	return notify.SMTPConfig{
		Host:            s.Host,
		Port:            s.Port,
		TLS:             s.TLS,
		Username:        s.Username,
		Password:        s.Password,
		From:            s.From,
		AppName:         s.AppName,
		BaseURL:         s.BaseURL,
		AlertRecipients: s.AlertRecipients,
		Timeout:         s.Timeout,
	}
}
