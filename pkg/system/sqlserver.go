package system

import (
	"fmt"
	"net/url"

	_ "github.com/microsoft/go-mssqldb" // sqlserver driver
	"github.com/sirupsen/logrus"

	"github.com/sqlarena/sqlarena/pkg/config"
)

// NewSQLServerHandle creates a handle for a SQL Server system.
func NewSQLServerHandle(log logrus.FieldLogger, cfg *config.SystemConfig) (Handle, error) {
	dsn := cfg.DSN
	if dsn == "" {
		host := cfg.Host
		if host == "" {
			host = "127.0.0.1"
		}

		port := cfg.Port
		if port == 0 {
			port = 1433
		}

		u := &url.URL{
			Scheme: "sqlserver",
			User:   url.UserPassword(cfg.User, cfg.Password),
			Host:   fmt.Sprintf("%s:%d", host, port),
		}

		q := url.Values{}
		if cfg.Database != "" {
			q.Set("database", cfg.Database)
		}

		u.RawQuery = q.Encode()
		dsn = u.String()
	}

	id := Identity{Name: cfg.Name, Kind: cfg.Kind, Version: cfg.Version}

	return newSQLHandle(log, id, "sqlserver", dsn, "SELECT 1"), nil
}
