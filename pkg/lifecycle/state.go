package lifecycle

import "fmt"

// State is the lifecycle state of one system under test. Exactly one state
// per system at a time; transitions are driven solely by the Controller.
type State string

const (
	StateUninstalled State = "uninstalled"
	StateInstalling  State = "installing"
	StateInstalled   State = "installed"
	StateStarting    State = "starting"
	StateHealthy     State = "healthy"
	StateUnhealthy   State = "unhealthy"
	StateTornDown    State = "torn_down"
	StateFailed      State = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s State) Terminal() bool {
	return s == StateFailed || s == StateTornDown
}

// InstallError is a fatal installation or startup failure. Installs are
// assumed deterministic and are never retried.
type InstallError struct {
	System string
	Stage  string // "install" or "start"
	Err    error
}

func (e *InstallError) Error() string {
	return fmt.Sprintf("system %s: %s failed: %v", e.System, e.Stage, e.Err)
}

func (e *InstallError) Unwrap() error {
	return e.Err
}

// HealthCheckExhaustedError means the retry budget ran out without a
// successful health check. Fatal for the system, not for the run.
type HealthCheckExhaustedError struct {
	System   string
	Attempts int
}

func (e *HealthCheckExhaustedError) Error() string {
	return fmt.Sprintf("system %s: health check failed after %d attempts", e.System, e.Attempts)
}
