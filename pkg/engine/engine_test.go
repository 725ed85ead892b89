package engine

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqlarena/sqlarena/pkg/system"
	"github.com/sqlarena/sqlarena/pkg/workload"
)

// fakeHandle is a scriptable handle for executor tests.
type fakeHandle struct {
	id system.Identity

	// elapsedMS is the reported runtime for successful queries.
	elapsedMS float64

	// failQueries marks query names that always fail.
	failQueries map[string]bool

	// blockQueries marks query names that block until the run context
	// expires, simulating a query slower than its timeout.
	blockQueries map[string]bool

	// cancelAfter cancels the given context after that many calls.
	cancelAfter int
	cancel      context.CancelFunc

	calls atomic.Int32
}

var _ system.Handle = (*fakeHandle)(nil)

func (f *fakeHandle) Identity() system.Identity          { return f.id }
func (f *fakeHandle) Install(context.Context) error      { return nil }
func (f *fakeHandle) Start(context.Context) error        { return nil }
func (f *fakeHandle) Exec(context.Context, string) error { return nil }
func (f *fakeHandle) Teardown(context.Context) error     { return nil }

func (f *fakeHandle) IsHealthy(context.Context, bool) bool { return true }

func (f *fakeHandle) ExecuteQuery(ctx context.Context, _, name string) (*system.QueryResult, error) {
	n := int(f.calls.Add(1))

	if f.cancelAfter > 0 && n >= f.cancelAfter && f.cancel != nil {
		f.cancel()
	}

	if f.blockQueries[name] {
		<-ctx.Done()

		return &system.QueryResult{
			Success: false,
			Error:   ctx.Err().Error(),
		}, nil
	}

	if f.failQueries[name] {
		return &system.QueryResult{
			Success:   false,
			ElapsedMS: f.elapsedMS,
			Error:     "syntax error",
		}, nil
	}

	return &system.QueryResult{
		Success:   true,
		ElapsedMS: f.elapsedMS,
	}, nil
}

func spec(name string, warmup, measured int) workload.QuerySpec {
	return workload.QuerySpec{
		Name:           name,
		Text:           "SELECT 1",
		WarmupRuns:     warmup,
		MeasuredRuns:   measured,
		TimeoutSeconds: 5,
	}
}

func newTestExecutor(cfg *Config) Executor {
	if cfg == nil {
		cfg = &Config{}
	}

	return NewExecutor(logrus.New(), cfg)
}

func TestExecuteWarmupAndMeasuredPhases(t *testing.T) {
	h := &fakeHandle{
		id:        system.Identity{Name: "pg", Kind: "postgres"},
		elapsedMS: 100,
	}

	samples := newTestExecutor(nil).Execute(context.Background(), h, spec("q1", 2, 3))

	require.Len(t, samples, 5)

	var warmup, measured int

	for _, s := range samples {
		switch s.Phase {
		case PhaseWarmup:
			warmup++
		case PhaseMeasured:
			measured++
		}

		assert.True(t, s.Success)
		assert.InDelta(t, 100.0, s.ElapsedMS, 1e-9)
	}

	assert.Equal(t, 2, warmup)
	assert.Equal(t, 3, measured)

	// Run indices are 0-based per phase.
	assert.Equal(t, 0, samples[0].RunIndex)
	assert.Equal(t, 1, samples[1].RunIndex)
	assert.Equal(t, 0, samples[2].RunIndex)
	assert.Equal(t, 2, samples[4].RunIndex)
}

func TestExecuteTimeoutIsIsolated(t *testing.T) {
	h := &fakeHandle{
		id:           system.Identity{Name: "pg", Kind: "postgres"},
		elapsedMS:    1,
		blockQueries: map[string]bool{"slow": true},
	}

	slow := spec("slow", 0, 3)
	slow.TimeoutSeconds = 0.02

	executor := newTestExecutor(nil)

	samples := executor.Execute(context.Background(), h, slow)

	// The timed-out runs never abort the loop.
	require.Len(t, samples, 3)

	for _, s := range samples {
		assert.False(t, s.Success)
		assert.Equal(t, "timeout", s.Error)
	}

	// A later query on the same system is unaffected.
	after := executor.Execute(context.Background(), h, spec("fast", 0, 2))
	require.Len(t, after, 2)

	for _, s := range after {
		assert.True(t, s.Success)
	}
}

func TestExecuteFailuresAreRecordedNotRaised(t *testing.T) {
	h := &fakeHandle{
		id:          system.Identity{Name: "pg", Kind: "postgres"},
		elapsedMS:   5,
		failQueries: map[string]bool{"bad": true},
	}

	samples := newTestExecutor(nil).Execute(context.Background(), h, spec("bad", 1, 2))

	require.Len(t, samples, 3)

	for _, s := range samples {
		assert.False(t, s.Success)
		assert.Equal(t, "syntax error", s.Error)
	}
}

func TestRunFanOutKeepsDeclarationOrder(t *testing.T) {
	handles := []system.Handle{
		&fakeHandle{id: system.Identity{Name: "a", Kind: "postgres"}, elapsedMS: 1},
		&fakeHandle{id: system.Identity{Name: "b", Kind: "mysql"}, elapsedMS: 2},
	}

	queries := []workload.QuerySpec{spec("q1", 1, 2), spec("q2", 0, 1)}

	samples := newTestExecutor(&Config{Concurrency: 2}).
		Run(context.Background(), handles, queries)

	// 4 runs per system, system a first.
	require.Len(t, samples, 8)

	for i := 0; i < 4; i++ {
		assert.Equal(t, "a", samples[i].System.Name)
	}

	for i := 4; i < 8; i++ {
		assert.Equal(t, "b", samples[i].System.Name)
	}

	// Within a system: workload order, warmup before measured.
	assert.Equal(t, "q1", samples[0].Query)
	assert.Equal(t, PhaseWarmup, samples[0].Phase)
	assert.Equal(t, "q2", samples[3].Query)
}

func TestRunCancellationKeepsPartialSamples(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := &fakeHandle{
		id:          system.Identity{Name: "pg", Kind: "postgres"},
		elapsedMS:   1,
		cancelAfter: 2,
		cancel:      cancel,
	}

	samples := newTestExecutor(nil).
		Run(ctx, []system.Handle{h}, []workload.QuerySpec{spec("q1", 0, 10)})

	// The first runs completed before cancellation and are kept.
	require.NotEmpty(t, samples)
	assert.Less(t, len(samples), 10)
	assert.True(t, samples[0].Success)
}

func TestRunNoHandles(t *testing.T) {
	samples := newTestExecutor(nil).
		Run(context.Background(), nil, []workload.QuerySpec{spec("q1", 0, 1)})

	assert.Empty(t, samples)
}
