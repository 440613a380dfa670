package config

import (
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v2"
)

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads path (a YAML file), expands ${VAR}/${VAR:-default} references
// against the process environment, unmarshals onto Default(), and applies
// direct environment-variable overrides per spec.md §6 on top. A missing
// file is not an error: Default() plus env overrides alone is a valid
// configuration for local development.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
		} else {
			expanded := expandEnvVars(string(data))
			if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
				return nil, err
			}
		}
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// expandEnvVars expands ${VAR} or ${VAR:-default} patterns in the string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varExpr := match[2 : len(match)-1]

		parts := strings.SplitN(varExpr, ":-", 2)
		varName := parts[0]
		defaultValue := ""
		if len(parts) > 1 {
			defaultValue = parts[1]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}

// applyEnvOverrides layers the spec.md §6 environment variables directly
// on top of whatever Load already resolved from YAML, so an operator can
// override a single knob without touching the config file.
func applyEnvOverrides(c *Config) {
	strVar(&c.Environment, "APP_ENV")

	strVar(&c.Server.Host, "SERVER_HOST")
	intVar(&c.Server.Port, "SERVER_PORT")

	strVar(&c.Database.Driver, "DATABASE_DRIVER")
	strVar(&c.Database.DSN, "DATABASE_DSN")

	strVar(&c.Cache.RedisAddr, "REDIS_ADDR")
	strVar(&c.Cache.RedisPassword, "REDIS_PASSWORD")
	intVar(&c.Cache.RedisDB, "REDIS_DB")

	strVar(&c.RateLimit.Backend, "RATE_LIMITER_BACKEND")
	intVar(&c.RateLimit.EmailPerHour, "RATE_LIMIT_EMAIL_PER_HOUR")
	intVar(&c.RateLimit.SMSPerHour, "RATE_LIMIT_SMS_PER_HOUR")
	intVar(&c.RateLimit.PushPerHour, "RATE_LIMIT_PUSH_PER_HOUR")
	intVar(&c.RateLimit.InAppPerHour, "RATE_LIMIT_IN_APP_PER_HOUR")

	intVar(&c.Retry.MaxAttempts, "RETRY_MAX_ATTEMPTS")
	intVar(&c.Retry.InitialDelayMS, "RETRY_INITIAL_DELAY_MS")
	intVar(&c.Retry.MaxDelayMS, "RETRY_MAX_DELAY_MS")
	boolVar(&c.Retry.Jitter, "RETRY_JITTER")

	floatVar(&c.Breaker.Email.ErrorRate, "CB_EMAIL_ERROR_RATE")
	intVar(&c.Breaker.Email.WaitMS, "CB_EMAIL_WAIT_MS")
	intVar(&c.Breaker.Email.HalfOpenCalls, "CB_EMAIL_HALF_OPEN_CALLS")
	floatVar(&c.Breaker.SMS.ErrorRate, "CB_SMS_ERROR_RATE")
	intVar(&c.Breaker.SMS.WaitMS, "CB_SMS_WAIT_MS")
	intVar(&c.Breaker.SMS.HalfOpenCalls, "CB_SMS_HALF_OPEN_CALLS")
	floatVar(&c.Breaker.Push.ErrorRate, "CB_PUSH_ERROR_RATE")
	intVar(&c.Breaker.Push.WaitMS, "CB_PUSH_WAIT_MS")
	intVar(&c.Breaker.Push.HalfOpenCalls, "CB_PUSH_HALF_OPEN_CALLS")
	floatVar(&c.Breaker.InApp.ErrorRate, "CB_IN_APP_ERROR_RATE")
	intVar(&c.Breaker.InApp.WaitMS, "CB_IN_APP_WAIT_MS")
	intVar(&c.Breaker.InApp.HalfOpenCalls, "CB_IN_APP_HALF_OPEN_CALLS")

	intVar(&c.Timeout.EmailMS, "TIMEOUT_EMAIL_MS")
	intVar(&c.Timeout.SMSMS, "TIMEOUT_SMS_MS")
	intVar(&c.Timeout.PushMS, "TIMEOUT_PUSH_MS")
	intVar(&c.Timeout.InAppMS, "TIMEOUT_IN_APP_MS")

	intVar(&c.Retention.AuditDays, "AUDIT_RETENTION_DAYS")
	intVar(&c.Retention.AnalyticsDays, "ANALYTICS_RETENTION_DAYS")

	boolVar(&c.QuietHours.UrgentBypass, "QUIET_HOURS_URGENT_BYPASS")
	boolVar(&c.InApp.RequireSession, "IN_APP_REQUIRE_SESSION")

	strVar(&c.Email.Host, "SMTP_HOST")
	intVar(&c.Email.Port, "SMTP_PORT")
	strVar(&c.Email.Username, "SMTP_USERNAME")
	strVar(&c.Email.FromAddr, "SMTP_FROM_ADDR")
	strVar(&c.Email.FromName, "SMTP_FROM_NAME")
	boolVar(&c.Email.TLS, "SMTP_TLS")

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	strVar(&c.Kafka.GroupIDPrefix, "KAFKA_GROUP_ID_PREFIX")
	strVar(&c.Kafka.RoutingFile, "EVENT_ROUTING_FILE")

	strVar(&c.Logging.Level, "LOG_LEVEL")
}

func strVar(dst *string, name string) {
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}

func intVar(dst *int, name string) {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func floatVar(dst *float64, name string) {
	if v := os.Getenv(name); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func boolVar(dst *bool, name string) {
	if v := os.Getenv(name); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
