package system

import (
	"fmt"

	_ "github.com/go-sql-driver/mysql" // mysql driver
	"github.com/sirupsen/logrus"

	"github.com/sqlarena/sqlarena/pkg/config"
)

// NewMySQLHandle creates a handle for a MySQL system.
func NewMySQLHandle(log logrus.FieldLogger, cfg *config.SystemConfig) (Handle, error) {
	dsn := cfg.DSN
	if dsn == "" {
		host := cfg.Host
		if host == "" {
			host = "127.0.0.1"
		}

		port := cfg.Port
		if port == 0 {
			port = 3306
		}

		dsn = fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			cfg.User, cfg.Password, host, port, cfg.Database,
		)
	}

	id := Identity{Name: cfg.Name, Kind: cfg.Kind, Version: cfg.Version}

	return newSQLHandle(log, id, "mysql", dsn, "SELECT 1"), nil
}
