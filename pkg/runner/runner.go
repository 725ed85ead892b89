// Package runner wires systems, lifecycle, workload, execution, and
// reporting into the operations the CLI exposes. It owns the shared setup
// (registry, container manager, controller) so commands stay thin.
package runner

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sqlarena/sqlarena/pkg/aggregate"
	"github.com/sqlarena/sqlarena/pkg/config"
	"github.com/sqlarena/sqlarena/pkg/container"
	"github.com/sqlarena/sqlarena/pkg/engine"
	"github.com/sqlarena/sqlarena/pkg/lifecycle"
	"github.com/sqlarena/sqlarena/pkg/report"
	"github.com/sqlarena/sqlarena/pkg/system"
	"github.com/sqlarena/sqlarena/pkg/workload"
)

// teardownTimeout bounds cleanup after the run context is cancelled.
const teardownTimeout = 30 * time.Second

// Result is the outcome of a full benchmark run.
type Result struct {
	Report     *report.Report
	ReportPath string

	// Files lists everything written into the run directory.
	Files []string
}

// Runner exposes the benchmark operations.
type Runner interface {
	// Run executes the full benchmark and writes the report files.
	Run(ctx context.Context) (*Result, error)

	// Probe brings every system up, reports the health verdicts, and
	// tears everything down again.
	Probe(ctx context.Context) ([]*lifecycle.Outcome, error)

	// Setup brings every system up and leaves it running.
	Setup(ctx context.Context) ([]*lifecycle.Outcome, error)

	// Load applies the workload's setup statements to every healthy
	// system, then tears down.
	Load(ctx context.Context) error

	// Verify performs a single untimed-warmup-free measured run per
	// query per system and reports whether everything succeeded.
	Verify(ctx context.Context) (bool, []engine.Sample, error)

	// Execute runs one ad-hoc query against one configured system.
	Execute(ctx context.Context, systemName, query string) (*system.QueryResult, error)

	// Cleanup removes every container carrying the sqlarena label.
	Cleanup(ctx context.Context) (int, error)
}

// Compile-time interface check.
var _ Runner = (*runner)(nil)

type runner struct {
	log      logrus.FieldLogger
	cfg      *config.Config
	registry system.Registry
	mgr      container.Manager
}

// New creates a runner. A container manager is only constructed when at
// least one system is container-installed.
func New(log logrus.FieldLogger, cfg *config.Config) (Runner, error) {
	r := &runner{
		log:      log.WithField("component", "runner"),
		cfg:      cfg,
		registry: system.NewRegistry(),
	}

	for i := range cfg.Systems {
		if cfg.Systems[i].Container == nil {
			continue
		}

		mgr, err := container.NewManager(log)
		if err != nil {
			return nil, fmt.Errorf("creating container manager: %w", err)
		}

		r.mgr = mgr

		break
	}

	return r, nil
}

// Run executes the complete benchmark.
func (r *runner) Run(ctx context.Context) (*Result, error) {
	runID := uuid.NewString()
	startedAt := time.Now()

	r.log.WithField("run_id", runID).Info("Benchmark run starting")

	wl, err := workload.New(r.log, r.cfg)
	if err != nil {
		return nil, fmt.Errorf("building workload: %w", err)
	}

	handles, err := r.buildHandles()
	if err != nil {
		return nil, err
	}

	if err := r.startManager(ctx); err != nil {
		return nil, err
	}
	defer r.stopManager()

	controller := r.newController()

	outcomes := controller.BringUpAll(ctx, handles)
	defer r.teardownAll(controller, handles)

	healthy := healthyHandles(handles, outcomes)

	r.applySetup(ctx, wl, outcomes, &healthy)

	queries := wl.Queries()

	executor := engine.NewExecutor(r.log, &engine.Config{
		Cooldown:    r.cfg.Benchmark.Cooldown,
		Concurrency: r.cfg.Concurrency(),
	})

	samples := executor.Run(ctx, healthy, queries)

	agg := aggregate.Reduce(identities(healthy), queryNames(queries), samples)

	rep := report.New(report.Params{
		RunID:      runID,
		StartedAt:  startedAt,
		FinishedAt: time.Now(),
		Workload:   wl.Name(),
		Outcomes:   derefOutcomes(outcomes),
		Queries:    queryNames(queries),
		Samples:    samples,
		Aggregated: agg,
	})

	dir := filepath.Join(r.cfg.Benchmark.ResultsDir, runID)

	jsonPath, err := rep.WriteJSON(dir)
	if err != nil {
		return nil, err
	}

	files := []string{jsonPath}

	if mdPath, err := rep.WriteMarkdown(dir); err != nil {
		r.log.WithError(err).Warn("Failed to write markdown summary")
	} else {
		files = append(files, mdPath)
	}

	if csvPaths, err := rep.WriteCSV(dir); err != nil {
		r.log.WithError(err).Warn("Failed to write CSV export")
	} else {
		files = append(files, csvPaths...)
	}

	r.log.WithFields(logrus.Fields{
		"run_id":  runID,
		"systems": len(handles),
		"healthy": len(healthy),
		"samples": len(samples),
		"dir":     dir,
	}).Info("Benchmark run finished")

	return &Result{Report: rep, ReportPath: jsonPath, Files: files}, nil
}

// Probe brings systems up for a health verdict only.
func (r *runner) Probe(ctx context.Context) ([]*lifecycle.Outcome, error) {
	handles, err := r.buildHandles()
	if err != nil {
		return nil, err
	}

	if err := r.startManager(ctx); err != nil {
		return nil, err
	}
	defer r.stopManager()

	controller := r.newController()

	outcomes := controller.BringUpAll(ctx, handles)

	r.teardownAll(controller, handles)

	return outcomes, nil
}

// Setup brings systems up and leaves them running.
func (r *runner) Setup(ctx context.Context) ([]*lifecycle.Outcome, error) {
	handles, err := r.buildHandles()
	if err != nil {
		return nil, err
	}

	if err := r.startManager(ctx); err != nil {
		return nil, err
	}
	defer r.stopManager()

	controller := r.newController()

	return controller.BringUpAll(ctx, handles), nil
}

// Load applies the workload setup statements to every healthy system.
func (r *runner) Load(ctx context.Context) error {
	wl, err := workload.New(r.log, r.cfg)
	if err != nil {
		return fmt.Errorf("building workload: %w", err)
	}

	if len(wl.Setup()) == 0 {
		r.log.Info("Workload has no setup statements")

		return nil
	}

	handles, err := r.buildHandles()
	if err != nil {
		return err
	}

	if err := r.startManager(ctx); err != nil {
		return err
	}
	defer r.stopManager()

	controller := r.newController()

	outcomes := controller.BringUpAll(ctx, handles)
	defer r.teardownAll(controller, handles)

	healthy := healthyHandles(handles, outcomes)

	var failed int

	for _, h := range healthy {
		if err := applyStatements(ctx, h, wl.Setup()); err != nil {
			r.log.WithError(err).
				WithField("system", h.Identity().Name).
				Error("Setup statements failed")

			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("setup failed on %d of %d systems", failed, len(healthy))
	}

	return nil
}

// Verify runs every query once per system with no warmup.
func (r *runner) Verify(ctx context.Context) (bool, []engine.Sample, error) {
	wl, err := workload.New(r.log, r.cfg)
	if err != nil {
		return false, nil, fmt.Errorf("building workload: %w", err)
	}

	handles, err := r.buildHandles()
	if err != nil {
		return false, nil, err
	}

	if err := r.startManager(ctx); err != nil {
		return false, nil, err
	}
	defer r.stopManager()

	controller := r.newController()

	outcomes := controller.BringUpAll(ctx, handles)
	defer r.teardownAll(controller, handles)

	healthy := healthyHandles(handles, outcomes)

	queries := make([]workload.QuerySpec, len(wl.Queries()))
	copy(queries, wl.Queries())

	for i := range queries {
		queries[i].WarmupRuns = 0
		queries[i].MeasuredRuns = 1
	}

	executor := engine.NewExecutor(r.log, &engine.Config{
		Concurrency: r.cfg.Concurrency(),
	})

	samples := executor.Run(ctx, healthy, queries)

	ok := len(healthy) == len(handles)

	for _, s := range samples {
		if !s.Success {
			ok = false
		}
	}

	return ok, samples, nil
}

// Execute runs one ad-hoc query against one system.
func (r *runner) Execute(ctx context.Context, systemName, query string) (*system.QueryResult, error) {
	var sysCfg *config.SystemConfig

	for i := range r.cfg.Systems {
		if r.cfg.Systems[i].Name == systemName {
			sysCfg = &r.cfg.Systems[i]

			break
		}
	}

	if sysCfg == nil {
		return nil, fmt.Errorf("unknown system: %s", systemName)
	}

	if err := r.startManager(ctx); err != nil {
		return nil, err
	}
	defer r.stopManager()

	h, err := r.registry.Build(r.log, sysCfg, r.mgr)
	if err != nil {
		return nil, fmt.Errorf("building system handle: %w", err)
	}

	controller := r.newController()

	outcome := controller.BringUp(ctx, h)
	defer r.teardownAll(controller, []system.Handle{h})

	if !outcome.Healthy() {
		return nil, fmt.Errorf("system %s not healthy: %s", systemName, outcome.Reason)
	}

	timeout := time.Duration(r.cfg.Benchmark.TimeoutSeconds * float64(time.Second))

	queryCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := h.ExecuteQuery(queryCtx, query, "adhoc")
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}

	return result, nil
}

// Cleanup removes all sqlarena-labelled containers, running or not.
func (r *runner) Cleanup(ctx context.Context) (int, error) {
	if r.mgr == nil {
		mgr, err := container.NewManager(r.log)
		if err != nil {
			return 0, fmt.Errorf("creating container manager: %w", err)
		}

		r.mgr = mgr
	}

	if err := r.startManager(ctx); err != nil {
		return 0, err
	}
	defer r.stopManager()

	infos, err := r.mgr.ListManaged(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing managed containers: %w", err)
	}

	removed := 0

	for _, info := range infos {
		if err := r.mgr.StopContainer(ctx, info.ID); err != nil {
			r.log.WithError(err).WithField("container", info.Name).
				Debug("Failed to stop container")
		}

		if err := r.mgr.RemoveContainer(ctx, info.ID); err != nil {
			r.log.WithError(err).WithField("container", info.Name).
				Warn("Failed to remove container")

			continue
		}

		removed++
	}

	return removed, nil
}

func (r *runner) buildHandles() ([]system.Handle, error) {
	handles := make([]system.Handle, 0, len(r.cfg.Systems))

	for i := range r.cfg.Systems {
		h, err := r.registry.Build(r.log, &r.cfg.Systems[i], r.mgr)
		if err != nil {
			return nil, fmt.Errorf("building system %s: %w", r.cfg.Systems[i].Name, err)
		}

		handles = append(handles, h)
	}

	return handles, nil
}

func (r *runner) newController() lifecycle.Controller {
	return lifecycle.NewController(r.log, &lifecycle.Config{
		HealthRetries:    r.cfg.Benchmark.HealthRetries,
		HealthRetryDelay: r.cfg.Benchmark.HealthRetryDelay,
		Concurrency:      r.cfg.Concurrency(),
	})
}

func (r *runner) startManager(ctx context.Context) error {
	if r.mgr == nil {
		return nil
	}

	if err := r.mgr.Start(ctx); err != nil {
		return fmt.Errorf("starting container manager: %w", err)
	}

	if r.cfg.Global.CleanupOnStart {
		if _, err := r.cleanupStale(ctx); err != nil {
			r.log.WithError(err).Warn("Stale container cleanup failed")
		}
	}

	return nil
}

func (r *runner) stopManager() {
	if r.mgr == nil {
		return
	}

	if err := r.mgr.Stop(); err != nil {
		r.log.WithError(err).Debug("Failed to stop container manager")
	}
}

// cleanupStale removes leftovers from earlier interrupted runs.
func (r *runner) cleanupStale(ctx context.Context) (int, error) {
	infos, err := r.mgr.ListManaged(ctx)
	if err != nil {
		return 0, err
	}

	removed := 0

	for _, info := range infos {
		_ = r.mgr.StopContainer(ctx, info.ID)

		if err := r.mgr.RemoveContainer(ctx, info.ID); err != nil {
			continue
		}

		removed++
	}

	if removed > 0 {
		r.log.WithField("count", removed).Info("Removed stale containers")
	}

	return removed, nil
}

// teardownAll tears systems down on a fresh context so cleanup still runs
// after the run context is cancelled.
func (r *runner) teardownAll(controller lifecycle.Controller, handles []system.Handle) {
	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()

	controller.TeardownAll(ctx, handles)
}

// applySetup runs the workload setup statements on every healthy system.
// A system whose setup fails is excluded from execution and its outcome
// is demoted to failed.
func (r *runner) applySetup(
	ctx context.Context,
	wl workload.Driver,
	outcomes []*lifecycle.Outcome,
	healthy *[]system.Handle,
) {
	if len(wl.Setup()) == 0 {
		return
	}

	kept := (*healthy)[:0]

	for _, h := range *healthy {
		if err := applyStatements(ctx, h, wl.Setup()); err != nil {
			r.log.WithError(err).
				WithField("system", h.Identity().Name).
				Error("Setup statements failed, excluding system")

			for _, o := range outcomes {
				if o.System.Name == h.Identity().Name {
					o.State = lifecycle.StateFailed
					o.Reason = fmt.Sprintf("setup failed: %v", err)
				}
			}

			continue
		}

		kept = append(kept, h)
	}

	*healthy = kept
}

func applyStatements(ctx context.Context, h system.Handle, stmts []workload.Statement) error {
	for _, stmt := range stmts {
		if err := h.Exec(ctx, stmt.Text); err != nil {
			return fmt.Errorf("statement %s: %w", stmt.Name, err)
		}
	}

	return nil
}

func healthyHandles(handles []system.Handle, outcomes []*lifecycle.Outcome) []system.Handle {
	var healthy []system.Handle

	for i, o := range outcomes {
		if o.Healthy() {
			healthy = append(healthy, handles[i])
		}
	}

	return healthy
}

func identities(handles []system.Handle) []system.Identity {
	ids := make([]system.Identity, 0, len(handles))

	for _, h := range handles {
		ids = append(ids, h.Identity())
	}

	return ids
}

func queryNames(queries []workload.QuerySpec) []string {
	names := make([]string, 0, len(queries))

	for _, q := range queries {
		names = append(names, q.Name)
	}

	return names
}

func derefOutcomes(outcomes []*lifecycle.Outcome) []lifecycle.Outcome {
	out := make([]lifecycle.Outcome, 0, len(outcomes))

	for _, o := range outcomes {
		out = append(out, *o)
	}

	return out
}
