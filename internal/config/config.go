// Package config implements TOML configuration loading and validation for
// summit-api, plus live reload of the config file so operational knobs
// (log level) can change without a restart.
package config

import "time"

// Config is the top-level configuration structure parsed from a TOML file.
// Durations are TOML strings in Go duration syntax ("30s", "1h"); Validate
// rejects anything unparsable so consumers can use the typed accessors
// without re-checking.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Sync     SyncConfig     `toml:"sync"`
	Auth     AuthConfig     `toml:"auth"`
	Logging  LoggingConfig  `toml:"logging"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	ListenAddr      string `toml:"listen_addr"`
	ReadTimeout     string `toml:"read_timeout"`
	WriteTimeout    string `toml:"write_timeout"`
	ShutdownTimeout string `toml:"shutdown_timeout"`
	MaxBodyBytes    int64  `toml:"max_body_bytes"`
}

// DatabaseConfig locates the SQLite database file.
type DatabaseConfig struct {
	Path string `toml:"path"`
}

// SyncConfig controls the sync core: feed page size bounds, the per-request
// storage deadline, and idempotency cache retention. Retention only bounds
// disk growth: retries inside the window are deduplicated, which is the
// semantic guarantee; older retries are re-evaluated and still version-guarded.
type SyncConfig struct {
	DefaultPageSize          int    `toml:"default_page_size"`
	MaxPageSize              int    `toml:"max_page_size"`
	RequestTimeout           string `toml:"request_timeout"`
	IdempotencyRetentionDays int    `toml:"idempotency_retention_days"`
	PruneInterval            string `toml:"prune_interval"`
}

// AuthConfig configures bearer token verification. TokenSecret has no
// default: serve refuses to start without one.
type AuthConfig struct {
	TokenSecret string `toml:"token_secret"`
	TokenTTL    string `toml:"token_ttl"`
}

// LoggingConfig controls log output. Format "auto" picks text on a TTY and
// JSON otherwise.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// Typed accessors for validated duration fields. They fall back to the
// defaults when the field is empty, and ignore parse errors because
// Validate has already rejected malformed values.

func (c ServerConfig) ReadTimeoutValue() time.Duration {
	return durationOr(c.ReadTimeout, defaultReadTimeout)
}

func (c ServerConfig) WriteTimeoutValue() time.Duration {
	return durationOr(c.WriteTimeout, defaultWriteTimeout)
}

func (c ServerConfig) ShutdownTimeoutValue() time.Duration {
	return durationOr(c.ShutdownTimeout, defaultShutdownTimeout)
}

func (c SyncConfig) RequestTimeoutValue() time.Duration {
	return durationOr(c.RequestTimeout, defaultRequestTimeout)
}

func (c SyncConfig) PruneIntervalValue() time.Duration {
	return durationOr(c.PruneInterval, defaultPruneInterval)
}

func (c SyncConfig) IdempotencyRetention() time.Duration {
	days := c.IdempotencyRetentionDays
	if days <= 0 {
		days = defaultIdempotencyRetentionDays
	}

	return time.Duration(days) * 24 * time.Hour
}

func (c AuthConfig) TokenTTLValue() time.Duration {
	return durationOr(c.TokenTTL, defaultTokenTTL)
}

func durationOr(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}

	return d
}
