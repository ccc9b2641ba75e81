package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// ResolveDSN returns a MySQL-compatible data source name. An explicit DSN is
// validated and normalized (parseTime is required for time scanning);
// otherwise one is assembled from the discrete fields.
func (d *DatabaseConfig) ResolveDSN() (string, error) {
	if d.DSN != "" {
		cfg, err := mysql.ParseDSN(d.DSN)
		if err != nil {
			return "", fmt.Errorf("database.dsn is invalid: %w", err)
		}
		cfg.ParseTime = true
		if cfg.Loc == nil {
			cfg.Loc = time.UTC
		}
		return cfg.FormatDSN(), nil
	}

	if d.Host == "" || d.User == "" || d.Database == "" {
		return "", fmt.Errorf("database requires host, user and database (or a full dsn)")
	}

	cfg := mysql.NewConfig()
	cfg.User = d.User
	cfg.Passwd = d.Password
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%d", d.Host, d.Port)
	cfg.DBName = d.Database
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN(), nil
}

// DatabaseName returns the effective database name, preferring the discrete
// field and falling back to the one embedded in the DSN.
func (d *DatabaseConfig) DatabaseName() (string, error) {
	if d.Database != "" {
		return d.Database, nil
	}
	if d.DSN == "" {
		return "", fmt.Errorf("no database name configured: set database.database or include /<database> in database.dsn")
	}
	cfg, err := mysql.ParseDSN(d.DSN)
	if err != nil {
		return "", fmt.Errorf("database.dsn is invalid: %w", err)
	}
	name := strings.TrimSpace(cfg.DBName)
	if name == "" {
		return "", fmt.Errorf("database.dsn does not include a database name")
	}
	return name, nil
}
