// Package config loads notifyhub's startup configuration: a YAML base file
// with ${VAR}/${VAR:-default} expansion, overridable by the environment
// variables enumerated in spec.md §6. Secrets never live in this struct —
// see internal/secrets for SMTP/provider credential resolution.
package config

import (
	"fmt"
	"time"
)

// Config is the fully resolved startup configuration.
type Config struct {
	Environment string           `yaml:"environment"`
	Server      ServerConfig     `yaml:"server"`
	Database    DatabaseConfig   `yaml:"database"`
	Cache       CacheConfig      `yaml:"cache"`
	RateLimit   RateLimitConfig  `yaml:"rateLimit"`
	Retry       RetryConfig      `yaml:"retry"`
	Breaker     ChannelBreakers  `yaml:"breaker"`
	Timeout     ChannelTimeouts  `yaml:"timeout"`
	Retention   RetentionConfig  `yaml:"retention"`
	QuietHours  QuietHoursConfig `yaml:"quietHours"`
	InApp       InAppConfig      `yaml:"inApp"`
	Email       EmailConfig      `yaml:"email"`
	Kafka       KafkaConfig      `yaml:"kafka"`
	Logging     LoggingConfig    `yaml:"logging"`
}

// ServerConfig is the inbound HTTP surface (spec.md §6).
type ServerConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	ReadTimeoutMS  int  `yaml:"readTimeoutMs"`
	WriteTimeoutMS int  `yaml:"writeTimeoutMs"`
	IdleTimeoutMS  int  `yaml:"idleTimeoutMs"`
}

func (s ServerConfig) ReadTimeout() time.Duration  { return time.Duration(s.ReadTimeoutMS) * time.Millisecond }
func (s ServerConfig) WriteTimeout() time.Duration { return time.Duration(s.WriteTimeoutMS) * time.Millisecond }
func (s ServerConfig) IdleTimeout() time.Duration  { return time.Duration(s.IdleTimeoutMS) * time.Millisecond }
func (s ServerConfig) Addr() string                { return fmt.Sprintf("%s:%d", s.Host, s.Port) }

// DatabaseConfig selects the relational backend behind History/Template/
// Preference stores: mysql in production, sqlite3 in tests/local dev,
// selected by DATABASE_DRIVER (spec.md's DOMAIN STACK table).
type DatabaseConfig struct {
	Driver          string `yaml:"driver"`
	DSN             string `yaml:"dsn"`
	MaxOpenConns    int    `yaml:"maxOpenConns"`
	MaxIdleConns    int    `yaml:"maxIdleConns"`
	ConnMaxLifetimeS int   `yaml:"connMaxLifetimeSeconds"`
}

func (d DatabaseConfig) ConnMaxLifetime() time.Duration {
	return time.Duration(d.ConnMaxLifetimeS) * time.Second
}

// CacheConfig configures the layered L1 (go-cache)/L2 (Redis) cache in
// front of the Template and Preference Stores, and the rate limiter's
// optional Redis backend.
type CacheConfig struct {
	RedisAddr          string `yaml:"redisAddr"`
	RedisPassword      string `yaml:"redisPassword"`
	RedisDB            int    `yaml:"redisDB"`
	DefaultTTLSeconds  int    `yaml:"defaultTTLSeconds"`
	CleanupIntervalSec int    `yaml:"cleanupIntervalSeconds"`
	KeyPrefix          string `yaml:"keyPrefix"`
}

func (c CacheConfig) DefaultTTL() time.Duration {
	return time.Duration(c.DefaultTTLSeconds) * time.Second
}

func (c CacheConfig) CleanupInterval() time.Duration {
	return time.Duration(c.CleanupIntervalSec) * time.Second
}

// RateLimitConfig carries the per-channel hourly caps and backend
// selection from spec.md §4.A/§6.
type RateLimitConfig struct {
	Backend      string `yaml:"backend"` // "memory" or "redis"
	EmailPerHour int    `yaml:"emailPerHour"`
	SMSPerHour   int    `yaml:"smsPerHour"`
	PushPerHour  int    `yaml:"pushPerHour"`
	InAppPerHour int    `yaml:"inAppPerHour"`
}

// RetryConfig holds the retry settings read from YAML and the RETRY_*
// environment variables. appwire does not pass it to the channel adapters:
// each adapter's Composed wrapper retries with retry.DefaultConfig().
type RetryConfig struct {
	MaxAttempts    int  `yaml:"maxAttempts"`
	InitialDelayMS int  `yaml:"initialDelayMs"`
	MaxDelayMS     int  `yaml:"maxDelayMs"`
	Jitter         bool `yaml:"jitter"`
}

func (r RetryConfig) InitialDelay() time.Duration { return time.Duration(r.InitialDelayMS) * time.Millisecond }
func (r RetryConfig) MaxDelay() time.Duration     { return time.Duration(r.MaxDelayMS) * time.Millisecond }

// BreakerSetting is one channel's circuit-breaker policy
// (CB_{channel}_ERROR_RATE/WAIT_MS/HALF_OPEN_CALLS).
type BreakerSetting struct {
	ErrorRate     float64 `yaml:"errorRate"`
	WaitMS        int     `yaml:"waitMs"`
	HalfOpenCalls int     `yaml:"halfOpenCalls"`
}

func (b BreakerSetting) Wait() time.Duration { return time.Duration(b.WaitMS) * time.Millisecond }

// ChannelBreakers holds one BreakerSetting per channel in spec.md §3.
type ChannelBreakers struct {
	Email BreakerSetting `yaml:"email"`
	SMS   BreakerSetting `yaml:"sms"`
	Push  BreakerSetting `yaml:"push"`
	InApp BreakerSetting `yaml:"inApp"`
}

// ChannelTimeouts holds the adapter call timeout per channel
// (TIMEOUT_{channel}_MS).
type ChannelTimeouts struct {
	EmailMS int `yaml:"emailMs"`
	SMSMS   int `yaml:"smsMs"`
	PushMS  int `yaml:"pushMs"`
	InAppMS int `yaml:"inAppMs"`
}

func (t ChannelTimeouts) Email() time.Duration { return time.Duration(t.EmailMS) * time.Millisecond }
func (t ChannelTimeouts) SMS() time.Duration   { return time.Duration(t.SMSMS) * time.Millisecond }
func (t ChannelTimeouts) Push() time.Duration  { return time.Duration(t.PushMS) * time.Millisecond }
func (t ChannelTimeouts) InApp() time.Duration { return time.Duration(t.InAppMS) * time.Millisecond }

// RetentionConfig is the audit/analytics retention window (spec.md §6).
type RetentionConfig struct {
	AuditDays     int `yaml:"auditDays"`
	AnalyticsDays int `yaml:"analyticsDays"`
}

func (r RetentionConfig) AuditWindow() time.Duration {
	return time.Duration(r.AuditDays) * 24 * time.Hour
}

// QuietHoursConfig toggles whether URGENT priority bypasses a recipient's
// quiet-hours window (spec.md §6 / dispatcher.WithQuietHoursUrgentBypass).
type QuietHoursConfig struct {
	UrgentBypass bool `yaml:"urgentBypass"`
}

// InAppConfig controls whether IN_APP dispatch requires a connected socket
// session at send time (IN_APP_REQUIRE_SESSION). When false, a notification
// with no connected session is still accepted and held for later delivery.
type InAppConfig struct {
	RequireSession bool `yaml:"requireSession"`
}

// EmailConfig is the SMTP transport configuration handed to email.Config;
// the password itself is resolved through internal/secrets, never stored
// here.
type EmailConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	FromAddr string `yaml:"fromAddr"`
	FromName string `yaml:"fromName"`
	TLS      bool   `yaml:"tls"`
}

// KafkaConfig configures the Event Ingestors and Dead-Letter consumer
// (spec.md §6's topic set).
type KafkaConfig struct {
	Brokers       []string `yaml:"brokers"`
	GroupIDPrefix string   `yaml:"groupIdPrefix"`
	RoutingFile   string   `yaml:"routingFile"`
}

// LoggingConfig selects the leveled logger's verbosity.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns notifyhub's baked-in configuration, used when no YAML
// file is present and as the base Load merges the YAML file and env
// overrides onto.
func Default() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host: "0.0.0.0", Port: 8080,
			ReadTimeoutMS: 10000, WriteTimeoutMS: 10000, IdleTimeoutMS: 120000,
		},
		Database: DatabaseConfig{
			Driver: "sqlite3", DSN: "notifyhub.db",
			MaxOpenConns: 25, MaxIdleConns: 25, ConnMaxLifetimeS: 300,
		},
		Cache: CacheConfig{
			DefaultTTLSeconds: 300, CleanupIntervalSec: 60, KeyPrefix: "notifyhub",
		},
		RateLimit: RateLimitConfig{
			Backend: "memory", EmailPerHour: 1000, SMSPerHour: 100, PushPerHour: 10000, InAppPerHour: 1000,
		},
		Retry: RetryConfig{
			MaxAttempts: 5, InitialDelayMS: 500, MaxDelayMS: 30000, Jitter: true,
		},
		Breaker: ChannelBreakers{
			Email: BreakerSetting{ErrorRate: 0.5, WaitMS: 30000, HalfOpenCalls: 3},
			SMS:   BreakerSetting{ErrorRate: 0.5, WaitMS: 30000, HalfOpenCalls: 3},
			Push:  BreakerSetting{ErrorRate: 0.5, WaitMS: 15000, HalfOpenCalls: 5},
			InApp: BreakerSetting{ErrorRate: 0.6, WaitMS: 10000, HalfOpenCalls: 5},
		},
		Timeout: ChannelTimeouts{EmailMS: 5000, SMSMS: 5000, PushMS: 3000, InAppMS: 1000},
		Retention: RetentionConfig{AuditDays: 90, AnalyticsDays: 365},
		QuietHours: QuietHoursConfig{UrgentBypass: true},
		InApp:      InAppConfig{RequireSession: false},
		Email: EmailConfig{
			Host: "smtp.example.com", Port: 587, FromAddr: "notifications@notifyhub.local", FromName: "notifyhub", TLS: true,
		},
		Kafka: KafkaConfig{
			Brokers: []string{"localhost:9092"}, GroupIDPrefix: "notifyhub", RoutingFile: "config/event_routing.yaml",
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Validate rejects a Config that would make the dependent components
// unusable at construction time.
func Validate(c *Config) error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: invalid server port %d", c.Server.Port)
	}
	if c.Database.Driver == "" {
		return fmt.Errorf("config: database driver cannot be empty")
	}
	if c.RateLimit.Backend != "memory" && c.RateLimit.Backend != "redis" {
		return fmt.Errorf("config: rateLimit.backend must be memory or redis, got %q", c.RateLimit.Backend)
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("config: retry.maxAttempts must be positive")
	}
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("config: kafka.brokers cannot be empty")
	}
	return nil
}
