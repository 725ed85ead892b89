package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqlarena/sqlarena/pkg/system"
)

// fakeHandle is a scriptable system handle for controller tests.
type fakeHandle struct {
	id system.Identity

	installErr error
	startErr   error

	// healthyAfter is the health check attempt (1-based) that first
	// succeeds; 0 means never.
	healthyAfter  int
	healthChecks  atomic.Int32
	teardownCalls atomic.Int32
	teardownErr   error
}

var _ system.Handle = (*fakeHandle)(nil)

func (f *fakeHandle) Identity() system.Identity { return f.id }

func (f *fakeHandle) Install(context.Context) error { return f.installErr }

func (f *fakeHandle) Start(context.Context) error { return f.startErr }

func (f *fakeHandle) IsHealthy(context.Context, bool) bool {
	n := int(f.healthChecks.Add(1))

	return f.healthyAfter > 0 && n >= f.healthyAfter
}

func (f *fakeHandle) ExecuteQuery(context.Context, string, string) (*system.QueryResult, error) {
	return &system.QueryResult{Success: true}, nil
}

func (f *fakeHandle) Exec(context.Context, string) error { return nil }

func (f *fakeHandle) Teardown(context.Context) error {
	f.teardownCalls.Add(1)

	return f.teardownErr
}

func newTestController(retries int) Controller {
	return NewController(logrus.New(), &Config{
		HealthRetries:    retries,
		HealthRetryDelay: time.Millisecond,
	})
}

func TestBringUpHappyPath(t *testing.T) {
	h := &fakeHandle{
		id:           system.Identity{Name: "pg", Kind: "postgres"},
		healthyAfter: 1,
	}

	c := newTestController(5)

	outcome := c.BringUp(context.Background(), h)

	assert.Equal(t, StateHealthy, outcome.State)
	assert.True(t, outcome.Healthy())
	assert.Equal(t, 1, outcome.HealthAttempts)
	assert.NoError(t, outcome.Err)
	assert.Equal(t, StateHealthy, c.StateOf("pg"))
}

func TestBringUpInstallFailureIsFatalAndUnretried(t *testing.T) {
	h := &fakeHandle{
		id:         system.Identity{Name: "pg", Kind: "postgres"},
		installErr: errors.New("image not found"),
	}

	c := newTestController(5)

	outcome := c.BringUp(context.Background(), h)

	assert.Equal(t, StateFailed, outcome.State)
	assert.False(t, outcome.Healthy())

	var installErr *InstallError
	require.ErrorAs(t, outcome.Err, &installErr)
	assert.Equal(t, "install", installErr.Stage)
	assert.Equal(t, "pg", installErr.System)

	// The install failure must never reach the health check loop.
	assert.Zero(t, h.healthChecks.Load())
	assert.Equal(t, StateFailed, c.StateOf("pg"))
}

func TestBringUpStartFailure(t *testing.T) {
	h := &fakeHandle{
		id:       system.Identity{Name: "my", Kind: "mysql"},
		startErr: errors.New("exited immediately"),
	}

	c := newTestController(5)

	outcome := c.BringUp(context.Background(), h)

	assert.Equal(t, StateFailed, outcome.State)

	var installErr *InstallError
	require.ErrorAs(t, outcome.Err, &installErr)
	assert.Equal(t, "start", installErr.Stage)
}

func TestBringUpHealthRetryBudget(t *testing.T) {
	t.Run("succeeds on a later attempt", func(t *testing.T) {
		h := &fakeHandle{
			id:           system.Identity{Name: "pg", Kind: "postgres"},
			healthyAfter: 3,
		}

		c := newTestController(5)

		outcome := c.BringUp(context.Background(), h)

		assert.Equal(t, StateHealthy, outcome.State)
		assert.Equal(t, 3, outcome.HealthAttempts)
	})

	t.Run("exhausts the budget", func(t *testing.T) {
		h := &fakeHandle{
			id: system.Identity{Name: "pg", Kind: "postgres"},
		}

		c := newTestController(5)

		outcome := c.BringUp(context.Background(), h)

		assert.Equal(t, StateUnhealthy, outcome.State)
		assert.Equal(t, 5, outcome.HealthAttempts)
		assert.Equal(t, int32(5), h.healthChecks.Load())

		var exhausted *HealthCheckExhaustedError
		require.ErrorAs(t, outcome.Err, &exhausted)
		assert.Equal(t, 5, exhausted.Attempts)
	})
}

func TestBringUpCancelledDuringHealthChecks(t *testing.T) {
	h := &fakeHandle{
		id: system.Identity{Name: "pg", Kind: "postgres"},
	}

	c := NewController(logrus.New(), &Config{
		HealthRetries:    10,
		HealthRetryDelay: time.Hour,
	})

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	outcome := c.BringUp(ctx, h)

	assert.Equal(t, StateUnhealthy, outcome.State)
	assert.Contains(t, outcome.Reason, "cancelled")
}

func TestBringUpAllPartialFailure(t *testing.T) {
	handles := []system.Handle{
		&fakeHandle{id: system.Identity{Name: "a", Kind: "postgres"}, healthyAfter: 1},
		&fakeHandle{id: system.Identity{Name: "b", Kind: "mysql"}, installErr: errors.New("boom")},
		&fakeHandle{id: system.Identity{Name: "c", Kind: "sqlite"}, healthyAfter: 1},
	}

	c := newTestController(2)

	outcomes := c.BringUpAll(context.Background(), handles)

	require.Len(t, outcomes, 3)

	// Declaration order survives concurrent bring-up.
	assert.Equal(t, "a", outcomes[0].System.Name)
	assert.Equal(t, "b", outcomes[1].System.Name)
	assert.Equal(t, "c", outcomes[2].System.Name)

	assert.True(t, outcomes[0].Healthy())
	assert.False(t, outcomes[1].Healthy())
	assert.True(t, outcomes[2].Healthy())
}

func TestTeardown(t *testing.T) {
	t.Run("absorbs errors", func(t *testing.T) {
		h := &fakeHandle{
			id:           system.Identity{Name: "pg", Kind: "postgres"},
			healthyAfter: 1,
			teardownErr:  fmt.Errorf("container already gone"),
		}

		c := newTestController(1)
		c.BringUp(context.Background(), h)

		c.Teardown(context.Background(), h)

		assert.Equal(t, int32(1), h.teardownCalls.Load())
		assert.Equal(t, StateTornDown, c.StateOf("pg"))
	})

	t.Run("idempotent", func(t *testing.T) {
		h := &fakeHandle{
			id:           system.Identity{Name: "pg", Kind: "postgres"},
			healthyAfter: 1,
		}

		c := newTestController(1)
		c.BringUp(context.Background(), h)

		c.Teardown(context.Background(), h)
		c.Teardown(context.Background(), h)

		assert.Equal(t, int32(1), h.teardownCalls.Load())
	})

	t.Run("failed verdict survives teardown", func(t *testing.T) {
		h := &fakeHandle{
			id:         system.Identity{Name: "pg", Kind: "postgres"},
			installErr: errors.New("boom"),
		}

		c := newTestController(1)
		c.BringUp(context.Background(), h)

		c.Teardown(context.Background(), h)

		assert.Equal(t, StateFailed, c.StateOf("pg"))
	})
}

func TestStateTerminal(t *testing.T) {
	assert.True(t, StateFailed.Terminal())
	assert.True(t, StateTornDown.Terminal())
	assert.False(t, StateHealthy.Terminal())
	assert.False(t, StateUninstalled.Terminal())
}
