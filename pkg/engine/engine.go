// Package engine performs the warmup+measurement protocol for each
// (system, query) pair, capturing one timing sample per run.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sqlarena/sqlarena/pkg/system"
	"github.com/sqlarena/sqlarena/pkg/workload"
)

// Phase tags a sample as warmup or measured. Warmup samples are retained
// for auditability but excluded from all statistics.
type Phase string

const (
	PhaseWarmup   Phase = "warmup"
	PhaseMeasured Phase = "measured"
)

// Sample is one execution attempt. Created exactly once per attempt and
// never mutated; run_index reflects actual execution order within its phase.
type Sample struct {
	System    system.Identity `json:"system"`
	Query     string          `json:"query"`
	RunIndex  int             `json:"run_index"`
	Phase     Phase           `json:"phase"`
	ElapsedMS float64         `json:"elapsed_ms"`
	Success   bool            `json:"success"`
	Error     string          `json:"error,omitempty"`
}

// Config for the executor.
type Config struct {
	// Cooldown is the minimum interval between consecutive runs against
	// the same system. Zero disables pacing.
	Cooldown time.Duration

	// Concurrency bounds how many systems are driven at once. Runs
	// against the same system are always strictly sequential.
	Concurrency int
}

// Executor drives healthy systems through the query workload.
type Executor interface {
	// Execute runs the full warmup+measurement protocol for one
	// (system, query) pair. The returned sequence is in execution order
	// and is complete unless ctx was cancelled, in which case the
	// samples collected so far are returned.
	Execute(ctx context.Context, h system.Handle, spec workload.QuerySpec) []Sample

	// Run executes the whole workload against every given system.
	// Systems run concurrently; within one system all runs are
	// serialized. Sample order is deterministic: system declaration
	// order, then workload order, then run order.
	Run(ctx context.Context, handles []system.Handle, queries []workload.QuerySpec) []Sample
}

// NewExecutor creates a run executor.
func NewExecutor(log logrus.FieldLogger, cfg *Config) Executor {
	return &executor{
		log: log.WithField("component", "executor"),
		cfg: cfg,
	}
}

type executor struct {
	log logrus.FieldLogger
	cfg *Config
}

// Ensure interface compliance.
var _ Executor = (*executor)(nil)

// Execute runs one (system, query) pair.
func (e *executor) Execute(ctx context.Context, h system.Handle, spec workload.QuerySpec) []Sample {
	return e.execute(ctx, h, spec, e.newLimiter())
}

// Run fans the workload out across systems.
func (e *executor) Run(ctx context.Context, handles []system.Handle, queries []workload.QuerySpec) []Sample {
	perSystem := make([][]Sample, len(handles))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency(len(handles)))

	for i, h := range handles {
		i, h := i, h
		g.Go(func() error {
			// One limiter per system: pacing applies across queries too.
			limiter := e.newLimiter()

			samples := make([]Sample, 0, totalRuns(queries))

			for _, q := range queries {
				if gctx.Err() != nil {
					break
				}

				samples = append(samples, e.execute(gctx, h, q, limiter)...)
			}

			perSystem[i] = samples

			// A cancelled or failing system never aborts the others;
			// partial samples are kept.
			return nil
		})
	}

	_ = g.Wait()

	all := make([]Sample, 0, totalRuns(queries)*len(handles))
	for _, s := range perSystem {
		all = append(all, s...)
	}

	return all
}

// execute performs warmup then measured runs, strictly sequentially.
func (e *executor) execute(
	ctx context.Context,
	h system.Handle,
	spec workload.QuerySpec,
	limiter *rate.Limiter,
) []Sample {
	id := h.Identity()
	log := e.log.WithFields(logrus.Fields{
		"system": id.Name,
		"query":  spec.Name,
	})

	samples := make([]Sample, 0, spec.WarmupRuns+spec.MeasuredRuns)

	log.WithFields(logrus.Fields{
		"warmup_runs":   spec.WarmupRuns,
		"measured_runs": spec.MeasuredRuns,
	}).Info("Executing query")

	for i := 0; i < spec.WarmupRuns; i++ {
		if ctx.Err() != nil {
			log.Warn("Execution cancelled during warmup")

			return samples
		}

		samples = append(samples, e.runOnce(ctx, h, spec, i, PhaseWarmup, limiter))
	}

	for i := 0; i < spec.MeasuredRuns; i++ {
		if ctx.Err() != nil {
			log.Warn("Execution cancelled during measurement")

			return samples
		}

		samples = append(samples, e.runOnce(ctx, h, spec, i, PhaseMeasured, limiter))
	}

	return samples
}

// runOnce performs a single execution attempt wrapped in the query timeout.
// Every failure mode degrades to a failed sample; nothing propagates.
func (e *executor) runOnce(
	ctx context.Context,
	h system.Handle,
	spec workload.QuerySpec,
	index int,
	phase Phase,
	limiter *rate.Limiter,
) Sample {
	id := h.Identity()

	sample := Sample{
		System:   id,
		Query:    spec.Name,
		RunIndex: index,
		Phase:    phase,
	}

	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			sample.Error = "cancelled"

			return sample
		}
	}

	timeout := time.Duration(spec.TimeoutSeconds * float64(time.Second))

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()

	result, err := h.ExecuteQuery(runCtx, spec.Text, spec.Name)
	elapsed := float64(time.Since(start).Nanoseconds()) / 1e6

	// The timeout is advisory wall-clock bookkeeping: the run is recorded
	// as failed but the loop keeps going.
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		sample.ElapsedMS = elapsed
		sample.Error = "timeout"

		e.log.WithFields(logrus.Fields{
			"system": id.Name,
			"query":  spec.Name,
			"run":    index,
			"phase":  phase,
		}).Warn("Run timed out")

		return sample
	}

	if err != nil {
		sample.ElapsedMS = elapsed
		sample.Error = err.Error()

		e.log.WithError(err).WithFields(logrus.Fields{
			"system": id.Name,
			"query":  spec.Name,
			"run":    index,
		}).Warn("Run failed")

		return sample
	}

	sample.ElapsedMS = result.ElapsedMS
	sample.Success = result.Success
	sample.Error = result.Error

	e.log.WithFields(logrus.Fields{
		"system":     id.Name,
		"query":      spec.Name,
		"run":        index,
		"phase":      phase,
		"elapsed_ms": result.ElapsedMS,
		"rows":       result.RowsReturned,
	}).Debug("Run completed")

	return sample
}

func (e *executor) newLimiter() *rate.Limiter {
	if e.cfg.Cooldown <= 0 {
		return nil
	}

	return rate.NewLimiter(rate.Every(e.cfg.Cooldown), 1)
}

func (e *executor) concurrency(n int) int {
	if e.cfg.Concurrency > 0 && e.cfg.Concurrency < n {
		return e.cfg.Concurrency
	}

	if n == 0 {
		return 1
	}

	return n
}

func totalRuns(queries []workload.QuerySpec) int {
	total := 0
	for _, q := range queries {
		total += q.WarmupRuns + q.MeasuredRuns
	}

	return total
}
