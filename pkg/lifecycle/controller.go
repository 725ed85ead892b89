// Package lifecycle drives each system under test through its
// install/start/health-check sequence with bounded retries.
package lifecycle

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/sqlarena/sqlarena/pkg/system"
)

// Outcome is the bring-up verdict for one system.
type Outcome struct {
	System         system.Identity `json:"system"`
	State          State           `json:"state"`
	InstallMS      float64         `json:"install_ms"`
	StartupMS      float64         `json:"startup_ms"`
	HealthAttempts int             `json:"health_attempts"`
	Reason         string          `json:"reason,omitempty"`

	// Err carries the typed failure (InstallError, HealthCheckExhaustedError)
	// for callers; Reason is its serialized form for the report.
	Err error `json:"-"`
}

// Healthy reports whether the system is ready to receive the workload.
func (o *Outcome) Healthy() bool {
	return o.State == StateHealthy
}

// Config for the controller.
type Config struct {
	// HealthRetries is the health check retry budget per system.
	HealthRetries int

	// HealthRetryDelay is the base delay between attempts; the actual
	// wait grows linearly with the attempt number.
	HealthRetryDelay time.Duration

	// Concurrency bounds how many systems are brought up at once.
	Concurrency int
}

// Controller owns every system's lifecycle state.
type Controller interface {
	// BringUp drives one system from Uninstalled to Healthy or to a
	// fatal verdict. It never returns a partial state.
	BringUp(ctx context.Context, h system.Handle) *Outcome

	// BringUpAll brings up all systems concurrently with bounded
	// parallelism. Outcomes preserve declaration order. A failed system
	// never aborts the others.
	BringUpAll(ctx context.Context, handles []system.Handle) []*Outcome

	// Teardown moves a system to TornDown from any non-terminal state.
	// Teardown failures are logged, never propagated.
	Teardown(ctx context.Context, h system.Handle)

	// TeardownAll tears down every given system.
	TeardownAll(ctx context.Context, handles []system.Handle)

	// StateOf returns the current state of a system by name.
	StateOf(name string) State
}

// NewController creates a lifecycle controller.
func NewController(log logrus.FieldLogger, cfg *Config) Controller {
	return &controller{
		log:    log.WithField("component", "lifecycle"),
		cfg:    cfg,
		states: make(map[string]State),
	}
}

type controller struct {
	log    logrus.FieldLogger
	cfg    *Config
	mu     sync.Mutex
	states map[string]State
}

// Ensure interface compliance.
var _ Controller = (*controller)(nil)

// StateOf returns the current state of a system by name.
func (c *controller) StateOf(name string) State {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s, ok := c.states[name]; ok {
		return s
	}

	return StateUninstalled
}

// setState records a transition unless the system is already terminal.
func (c *controller) setState(name string, s State) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cur, ok := c.states[name]; ok && cur.Terminal() {
		return false
	}

	c.states[name] = s

	return true
}

// BringUp drives one system through install, start, and health checking.
func (c *controller) BringUp(ctx context.Context, h system.Handle) *Outcome {
	id := h.Identity()
	log := c.log.WithField("system", id.Name)

	outcome := &Outcome{System: id}

	// Install. Failures are fatal and unretried.
	c.setState(id.Name, StateInstalling)
	log.Info("Installing system")

	installStart := time.Now()

	if err := h.Install(ctx); err != nil {
		c.setState(id.Name, StateFailed)

		outcome.State = StateFailed
		outcome.Err = &InstallError{System: id.Name, Stage: "install", Err: err}
		outcome.Reason = outcome.Err.Error()

		log.WithError(err).Error("Installation failed")

		return outcome
	}

	outcome.InstallMS = float64(time.Since(installStart).Nanoseconds()) / 1e6
	c.setState(id.Name, StateInstalled)

	// Start.
	c.setState(id.Name, StateStarting)
	log.Info("Starting system")

	startupStart := time.Now()

	if err := h.Start(ctx); err != nil {
		c.setState(id.Name, StateFailed)

		outcome.State = StateFailed
		outcome.Err = &InstallError{System: id.Name, Stage: "start", Err: err}
		outcome.Reason = outcome.Err.Error()

		log.WithError(err).Error("Startup failed")

		return outcome
	}

	outcome.StartupMS = float64(time.Since(startupStart).Nanoseconds()) / 1e6

	// Health checking with a bounded retry budget and linear backoff.
	for attempt := 1; attempt <= c.cfg.HealthRetries; attempt++ {
		outcome.HealthAttempts = attempt

		// Only the final attempt logs its failure.
		quiet := attempt < c.cfg.HealthRetries

		if h.IsHealthy(ctx, quiet) {
			c.setState(id.Name, StateHealthy)
			outcome.State = StateHealthy

			log.WithField("attempts", attempt).Info("System healthy")

			return outcome
		}

		if attempt == c.cfg.HealthRetries {
			break
		}

		select {
		case <-time.After(c.cfg.HealthRetryDelay * time.Duration(attempt)):
		case <-ctx.Done():
			c.setState(id.Name, StateUnhealthy)

			outcome.State = StateUnhealthy
			outcome.Err = ctx.Err()
			outcome.Reason = "bring-up cancelled: " + ctx.Err().Error()

			log.Warn("Bring-up cancelled during health checks")

			return outcome
		}
	}

	c.setState(id.Name, StateUnhealthy)

	outcome.State = StateUnhealthy
	outcome.Err = &HealthCheckExhaustedError{System: id.Name, Attempts: c.cfg.HealthRetries}
	outcome.Reason = outcome.Err.Error()

	log.WithField("attempts", c.cfg.HealthRetries).Error("Health check budget exhausted")

	return outcome
}

// BringUpAll brings up all systems concurrently.
func (c *controller) BringUpAll(ctx context.Context, handles []system.Handle) []*Outcome {
	outcomes := make([]*Outcome, len(handles))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency(len(handles)))

	for i, h := range handles {
		i, h := i, h
		g.Go(func() error {
			outcomes[i] = c.BringUp(gctx, h)

			// Partial-failure semantics: a failed system never cancels
			// the group.
			return nil
		})
	}

	_ = g.Wait()

	return outcomes
}

// Teardown tears one system down, absorbing failures.
func (c *controller) Teardown(ctx context.Context, h system.Handle) {
	id := h.Identity()
	log := c.log.WithField("system", id.Name)

	if c.StateOf(id.Name) == StateTornDown {
		return
	}

	if err := h.Teardown(ctx); err != nil {
		// Leaving resources running must never abort the report.
		log.WithError(err).Warn("Teardown failed")
	}

	// Terminal states (Failed) keep their verdict; everything else
	// transitions to TornDown unconditionally.
	c.setState(id.Name, StateTornDown)

	log.Debug("System torn down")
}

// TeardownAll tears down every system.
func (c *controller) TeardownAll(ctx context.Context, handles []system.Handle) {
	for _, h := range handles {
		c.Teardown(ctx, h)
	}
}

func (c *controller) concurrency(n int) int {
	if c.cfg.Concurrency > 0 && c.cfg.Concurrency < n {
		return c.cfg.Concurrency
	}

	if n == 0 {
		return 1
	}

	return n
}
