package system

import (
	"fmt"

	_ "github.com/lib/pq" // postgres driver
	"github.com/sirupsen/logrus"

	"github.com/sqlarena/sqlarena/pkg/config"
)

// NewPostgresHandle creates a handle for a PostgreSQL system.
func NewPostgresHandle(log logrus.FieldLogger, cfg *config.SystemConfig) (Handle, error) {
	dsn := cfg.DSN
	if dsn == "" {
		host := cfg.Host
		if host == "" {
			host = "127.0.0.1"
		}

		port := cfg.Port
		if port == 0 {
			port = 5432
		}

		sslMode := cfg.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}

		dsn = fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			host, port, cfg.User, cfg.Password, cfg.Database, sslMode,
		)
	}

	id := Identity{Name: cfg.Name, Kind: cfg.Kind, Version: cfg.Version}

	return newSQLHandle(log, id, "postgres", dsn, "SELECT 1"), nil
}
