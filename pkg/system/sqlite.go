package system

import (
	"fmt"

	_ "github.com/glebarez/go-sqlite" // sqlite driver
	"github.com/sirupsen/logrus"

	"github.com/sqlarena/sqlarena/pkg/config"
)

// NewSQLiteHandle creates a handle for an embedded SQLite database.
func NewSQLiteHandle(log logrus.FieldLogger, cfg *config.SystemConfig) (Handle, error) {
	dsn := cfg.DSN
	if dsn == "" {
		dsn = cfg.Path
	}

	if dsn == "" {
		return nil, fmt.Errorf("system %q: sqlite requires dsn or path", cfg.Name)
	}

	id := Identity{Name: cfg.Name, Kind: cfg.Kind, Version: cfg.Version}

	return newSQLHandle(log, id, "sqlite", dsn, "SELECT 1"), nil
}
