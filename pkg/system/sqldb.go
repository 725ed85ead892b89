package system

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// sqlHandle drives one database engine over database/sql. The pool is pinned
// to a single connection so repeated runs hit the same session and cache
// state deterministically.
type sqlHandle struct {
	log         logrus.FieldLogger
	id          Identity
	driver      string
	dsn         string
	healthQuery string
	db          *sql.DB
}

// Ensure interface compliance.
var _ Handle = (*sqlHandle)(nil)

func newSQLHandle(log logrus.FieldLogger, id Identity, driver, dsn, healthQuery string) *sqlHandle {
	return &sqlHandle{
		log:         log.WithField("system", id.Name),
		id:          id,
		driver:      driver,
		dsn:         dsn,
		healthQuery: healthQuery,
	}
}

// Identity returns the system identity.
func (h *sqlHandle) Identity() Identity {
	return h.id
}

// Install opens the connection pool. The server itself is assumed to be
// provisioned already; container-installed systems wrap this handle.
func (h *sqlHandle) Install(_ context.Context) error {
	db, err := sql.Open(h.driver, h.dsn)
	if err != nil {
		return fmt.Errorf("opening %s connection: %w", h.driver, err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	h.db = db

	h.log.WithField("driver", h.driver).Debug("Connection pool opened")

	return nil
}

// Start is a no-op for preinstalled servers.
func (h *sqlHandle) Start(_ context.Context) error {
	return nil
}

// IsHealthy pings the server and runs the trivial health query.
func (h *sqlHandle) IsHealthy(ctx context.Context, quiet bool) bool {
	if h.db == nil {
		return false
	}

	if err := h.db.PingContext(ctx); err != nil {
		if !quiet {
			h.log.WithError(err).Warn("Health check ping failed")
		}

		return false
	}

	var one int
	if err := h.db.QueryRowContext(ctx, h.healthQuery).Scan(&one); err != nil {
		if !quiet {
			h.log.WithError(err).Warn("Health check query failed")
		}

		return false
	}

	return true
}

// ExecuteQuery runs one query, draining the result set so the elapsed time
// covers the full response, not just the first row.
func (h *sqlHandle) ExecuteQuery(ctx context.Context, text, name string) (*QueryResult, error) {
	if h.db == nil {
		return nil, fmt.Errorf("system %s is not installed", h.id.Name)
	}

	start := time.Now()

	rows, err := h.db.QueryContext(ctx, text)
	if err != nil {
		return &QueryResult{
			Success:   false,
			ElapsedMS: float64(time.Since(start).Nanoseconds()) / 1e6,
			Error:     err.Error(),
		}, nil
	}

	defer func() { _ = rows.Close() }()

	count := 0
	for rows.Next() {
		count++
	}

	elapsed := float64(time.Since(start).Nanoseconds()) / 1e6

	if err := rows.Err(); err != nil {
		return &QueryResult{
			Success:      false,
			ElapsedMS:    elapsed,
			RowsReturned: count,
			Error:        err.Error(),
		}, nil
	}

	h.log.WithFields(logrus.Fields{
		"query":      name,
		"elapsed_ms": elapsed,
		"rows":       count,
	}).Debug("Query completed")

	return &QueryResult{
		Success:      true,
		ElapsedMS:    elapsed,
		RowsReturned: count,
	}, nil
}

// Exec runs a setup statement.
func (h *sqlHandle) Exec(ctx context.Context, text string) error {
	if h.db == nil {
		return fmt.Errorf("system %s is not installed", h.id.Name)
	}

	if _, err := h.db.ExecContext(ctx, text); err != nil {
		return fmt.Errorf("executing statement: %w", err)
	}

	return nil
}

// Teardown closes the connection pool.
func (h *sqlHandle) Teardown(_ context.Context) error {
	if h.db == nil {
		return nil
	}

	err := h.db.Close()
	h.db = nil

	if err != nil {
		return fmt.Errorf("closing %s connection: %w", h.driver, err)
	}

	return nil
}
