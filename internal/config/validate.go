package config

import (
	"fmt"
	"time"
)

var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "error": true,
}

var validLogFormats = map[string]bool{
	"auto": true, "text": true, "json": true,
}

// Validate checks cross-field consistency and rejects malformed values.
// Auth.TokenSecret is deliberately not required here: only serve needs it,
// and it enforces that itself.
func Validate(cfg *Config) error {
	if cfg.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr must not be empty")
	}

	if cfg.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("server.max_body_bytes must be positive, got %d", cfg.Server.MaxBodyBytes)
	}

	if cfg.Database.Path == "" {
		return fmt.Errorf("database.path must not be empty")
	}

	if cfg.Sync.DefaultPageSize <= 0 {
		return fmt.Errorf("sync.default_page_size must be positive, got %d", cfg.Sync.DefaultPageSize)
	}

	if cfg.Sync.MaxPageSize < cfg.Sync.DefaultPageSize {
		return fmt.Errorf("sync.max_page_size (%d) must be >= sync.default_page_size (%d)",
			cfg.Sync.MaxPageSize, cfg.Sync.DefaultPageSize)
	}

	if cfg.Sync.IdempotencyRetentionDays <= 0 {
		return fmt.Errorf("sync.idempotency_retention_days must be positive, got %d",
			cfg.Sync.IdempotencyRetentionDays)
	}

	if !validLogLevels[cfg.Logging.LogLevel] {
		return fmt.Errorf("logging.log_level must be one of debug/info/warn/error, got %q",
			cfg.Logging.LogLevel)
	}

	if !validLogFormats[cfg.Logging.LogFormat] {
		return fmt.Errorf("logging.log_format must be one of auto/text/json, got %q",
			cfg.Logging.LogFormat)
	}

	durations := []struct {
		name  string
		value string
	}{
		{"server.read_timeout", cfg.Server.ReadTimeout},
		{"server.write_timeout", cfg.Server.WriteTimeout},
		{"server.shutdown_timeout", cfg.Server.ShutdownTimeout},
		{"sync.request_timeout", cfg.Sync.RequestTimeout},
		{"sync.prune_interval", cfg.Sync.PruneInterval},
		{"auth.token_ttl", cfg.Auth.TokenTTL},
	}

	for _, d := range durations {
		if d.value == "" {
			continue
		}

		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return fmt.Errorf("%s: invalid duration %q", d.name, d.value)
		}

		if parsed <= 0 {
			return fmt.Errorf("%s must be positive, got %q", d.name, d.value)
		}
	}

	return nil
}
