package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func TestLoad(t *testing.T) {
	content := `
global:
  log_level: debug
benchmark:
  warmup_runs: 3
  measured_runs: 10
  timeout_seconds: 30
  cooldown: 500ms
systems:
  - name: pg-local
    kind: postgres
    host: localhost
    port: 5432
    user: bench
    database: tpch
  - name: my-docker
    kind: mysql
    container:
      image: mysql:8.4
      port: 3306
      host_port: 13306
      memory: 2g
`

	cfg, err := Load(writeConfig(t, content))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Global.LogLevel)
	assert.Equal(t, 3, cfg.Benchmark.Warmup())
	assert.Equal(t, 10, cfg.Benchmark.MeasuredRuns)
	assert.InDelta(t, 30.0, cfg.Benchmark.TimeoutSeconds, 1e-9)
	assert.Equal(t, 500*time.Millisecond, cfg.Benchmark.Cooldown)

	require.Len(t, cfg.Systems, 2)
	assert.Equal(t, "pg-local", cfg.Systems[0].Name)
	assert.Nil(t, cfg.Systems[0].Container)

	ctr := cfg.Systems[1].Container
	require.NotNil(t, ctr)
	assert.Equal(t, "mysql:8.4", ctr.Image)
	assert.Equal(t, 13306, ctr.HostPort)

	mem, err := ctr.MemoryBytes()
	require.NoError(t, err)
	assert.Equal(t, int64(2*1024*1024*1024), mem)
}

func TestLoadAppliesDefaults(t *testing.T) {
	content := `
systems:
  - name: lite
    kind: sqlite
    path: /tmp/bench.db
`

	cfg, err := Load(writeConfig(t, content))
	require.NoError(t, err)

	assert.Equal(t, DefaultLogLevel, cfg.Global.LogLevel)
	assert.Equal(t, DefaultResultsDir, cfg.Benchmark.ResultsDir)
	assert.Equal(t, DefaultMeasuredRuns, cfg.Benchmark.MeasuredRuns)
	assert.Equal(t, DefaultWarmupRuns, cfg.Benchmark.Warmup())
	assert.InDelta(t, DefaultTimeoutSeconds, cfg.Benchmark.TimeoutSeconds, 1e-9)
	assert.Equal(t, DefaultHealthRetries, cfg.Benchmark.HealthRetries)
	assert.Equal(t, DefaultHealthRetryDelay, cfg.Benchmark.HealthRetryDelay)
	assert.Equal(t, "sqlite", cfg.History.Driver)
}

func TestLoadExplicitZeroWarmup(t *testing.T) {
	content := `
benchmark:
  warmup_runs: 0
systems:
  - name: lite
    kind: sqlite
    path: /tmp/bench.db
`

	cfg, err := Load(writeConfig(t, content))
	require.NoError(t, err)

	// An explicit zero is not replaced by the default.
	assert.Equal(t, 0, cfg.Benchmark.Warmup())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Benchmark: BenchmarkConfig{
				MeasuredRuns:   5,
				TimeoutSeconds: 60,
			},
			Systems: []SystemConfig{
				{Name: "pg", Kind: "postgres"},
			},
		}
	}

	tests := []struct {
		name        string
		mutate      func(*Config)
		errContains string
	}{
		{
			name:   "valid",
			mutate: func(*Config) {},
		},
		{
			name:        "no systems",
			mutate:      func(c *Config) { c.Systems = nil },
			errContains: "at least one system",
		},
		{
			name:        "missing system name",
			mutate:      func(c *Config) { c.Systems[0].Name = "" },
			errContains: "name is required",
		},
		{
			name: "duplicate system names",
			mutate: func(c *Config) {
				c.Systems = append(c.Systems, SystemConfig{Name: "pg", Kind: "mysql"})
			},
			errContains: "duplicate name",
		},
		{
			name:        "unknown kind",
			mutate:      func(c *Config) { c.Systems[0].Kind = "oracle" },
			errContains: "unknown kind",
		},
		{
			name: "container without image",
			mutate: func(c *Config) {
				c.Systems[0].Container = &ContainerConfig{Port: 5432, HostPort: 15432}
			},
			errContains: "image is required",
		},
		{
			name: "container without ports",
			mutate: func(c *Config) {
				c.Systems[0].Container = &ContainerConfig{Image: "postgres:16"}
			},
			errContains: "host_port",
		},
		{
			name: "bad memory limit",
			mutate: func(c *Config) {
				c.Systems[0].Container = &ContainerConfig{
					Image: "postgres:16", Port: 5432, HostPort: 15432,
					Memory: "lots",
				}
			},
			errContains: "memory",
		},
		{
			name:        "zero measured runs",
			mutate:      func(c *Config) { c.Benchmark.MeasuredRuns = 0 },
			errContains: "measured_runs",
		},
		{
			name:        "negative timeout",
			mutate:      func(c *Config) { c.Benchmark.TimeoutSeconds = -1 },
			errContains: "timeout_seconds",
		},
		{
			name: "negative warmup",
			mutate: func(c *Config) {
				warmup := -1
				c.Benchmark.WarmupRuns = &warmup
			},
			errContains: "warmup_runs",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()

			if tt.errContains == "" {
				assert.NoError(t, err)

				return
			}

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errContains)
		})
	}
}

func TestConcurrency(t *testing.T) {
	cfg := &Config{
		Systems: []SystemConfig{{Name: "a"}, {Name: "b"}, {Name: "c"}},
	}

	assert.Equal(t, 3, cfg.Concurrency())

	cfg.Benchmark.MaxConcurrency = 2
	assert.Equal(t, 2, cfg.Concurrency())
}
