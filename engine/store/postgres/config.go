package postgres

import "time"

// Config holds PostgreSQL connection settings for the control plane's
// store driver. Prefer providing a DSN via ConnString; when empty, a DSN
// is synthesized from the individual fields.
type Config struct {
	ConnString string
	Host       string
	Port       string
	User       string
	Password   string
	DBName     string
	SSLMode    string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// dsn returns the connection string to hand to pgxpool, synthesizing one
// from the individual fields when ConnString is empty.
func dsn(cfg *Config) string {
	if cfg.ConnString != "" {
		return cfg.ConnString
	}
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return "postgres://" + cfg.User + ":" + cfg.Password + "@" + cfg.Host + ":" + cfg.Port +
		"/" + cfg.DBName + "?sslmode=" + sslMode
}

// DSNFor exposes dsn for callers that need a database/sql-compatible DSN
// outside this package, such as ApplyMigrationsWithLock.
func DSNFor(cfg *Config) string { return dsn(cfg) }
