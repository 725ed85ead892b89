// Package system defines the control surface over one database deployment.
// The engine depends only on the Handle capability set; concrete engines are
// registered as factories in a Registry built once per process.
package system

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/sqlarena/sqlarena/pkg/config"
	"github.com/sqlarena/sqlarena/pkg/container"
)

// Identity uniquely identifies a system under test within one run.
type Identity struct {
	Name    string `json:"name"`
	Kind    string `json:"kind"`
	Version string `json:"version"`
}

// String returns "name (kind version)" for logging.
func (id Identity) String() string {
	if id.Version == "" {
		return fmt.Sprintf("%s (%s)", id.Name, id.Kind)
	}

	return fmt.Sprintf("%s (%s %s)", id.Name, id.Kind, id.Version)
}

// QueryResult is the outcome of a single query execution attempt.
type QueryResult struct {
	Success      bool    `json:"success"`
	ElapsedMS    float64 `json:"elapsed_ms"`
	RowsReturned int     `json:"rows_returned"`
	Error        string  `json:"error,omitempty"`
}

// Handle is the capability set over one database deployment. The lifecycle
// controller and run executor never depend on a concrete type.
type Handle interface {
	Identity() Identity

	// Install prepares the system (opens connections, provisions a
	// container when the config asks for one).
	Install(ctx context.Context) error

	// Start brings the installed system up.
	Start(ctx context.Context) error

	// IsHealthy reports whether the system answers a trivial query.
	// With quiet set, failures are not logged.
	IsHealthy(ctx context.Context, quiet bool) bool

	// ExecuteQuery runs one query and reports its wall-clock outcome.
	// Execution failures are carried in the result, not the error.
	ExecuteQuery(ctx context.Context, text, name string) (*QueryResult, error)

	// Exec runs a setup statement (DDL or DML) without timing it.
	Exec(ctx context.Context, text string) error

	// Teardown releases everything the handle owns. Idempotent.
	Teardown(ctx context.Context) error
}

// Factory builds a Handle for one configured system.
type Factory func(log logrus.FieldLogger, cfg *config.SystemConfig) (Handle, error)

// Registry maps system kinds to factories.
type Registry interface {
	Get(kind string) (Factory, error)
	Register(kind string, factory Factory)
	List() []string

	// Build constructs the handle for a system config, wrapping it with
	// the container install method when one is configured. The manager
	// may be nil if no configured system uses a container.
	Build(log logrus.FieldLogger, cfg *config.SystemConfig, mgr container.Manager) (Handle, error)
}

// NewRegistry creates a registry with all supported system kinds.
func NewRegistry() Registry {
	r := &registry{
		factories: make(map[string]Factory, 4),
	}

	r.Register("postgres", NewPostgresHandle)
	r.Register("mysql", NewMySQLHandle)
	r.Register("sqlite", NewSQLiteHandle)
	r.Register("sqlserver", NewSQLServerHandle)

	return r
}

type registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// Ensure interface compliance.
var _ Registry = (*registry)(nil)

// Get returns the factory for the given kind.
func (r *registry) Get(kind string) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.factories[kind]
	if !ok {
		return nil, fmt.Errorf("unknown system kind: %s", kind)
	}

	return factory, nil
}

// Register adds a factory to the registry.
func (r *registry) Register(kind string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.factories[kind] = factory
}

// List returns all registered kinds.
func (r *registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]string, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}

	return kinds
}

// Build constructs the handle for one system config.
func (r *registry) Build(
	log logrus.FieldLogger,
	cfg *config.SystemConfig,
	mgr container.Manager,
) (Handle, error) {
	factory, err := r.Get(cfg.Kind)
	if err != nil {
		return nil, err
	}

	if cfg.Container == nil {
		return factory(log, cfg)
	}

	if mgr == nil {
		return nil, fmt.Errorf("system %q requires a container manager", cfg.Name)
	}

	// Container-installed systems are reached through the published port.
	inner := *cfg
	inner.Host = "127.0.0.1"
	inner.Port = cfg.Container.HostPort

	base, err := factory(log, &inner)
	if err != nil {
		return nil, err
	}

	return newContainerHandle(log, cfg, base, mgr)
}
