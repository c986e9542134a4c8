package config

import "time"

// Default values applied before the config file is decoded.
const (
	defaultListenAddr   = "127.0.0.1:8080"
	defaultDatabasePath = "summit.db"
	defaultLogLevel     = "info"
	defaultLogFormat    = "auto"

	defaultReadTimeout     = 30 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultRequestTimeout  = 15 * time.Second
	defaultPruneInterval   = time.Hour
	defaultTokenTTL        = 720 * time.Hour

	defaultMaxBodyBytes = 1 << 20

	// Page size defaults mirror the mobile client's batch sizing.
	defaultPageSize    = 200
	defaultMaxPageSize = 500

	defaultIdempotencyRetentionDays = 30
)

// DefaultConfig returns a Config populated with all default values.
// Duration fields are left empty; the typed accessors supply the defaults,
// so a written-out config file only needs the knobs the operator changed.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:   defaultListenAddr,
			MaxBodyBytes: defaultMaxBodyBytes,
		},
		Database: DatabaseConfig{
			Path: defaultDatabasePath,
		},
		Sync: SyncConfig{
			DefaultPageSize:          defaultPageSize,
			MaxPageSize:              defaultMaxPageSize,
			IdempotencyRetentionDays: defaultIdempotencyRetentionDays,
		},
		Logging: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
	}
}
