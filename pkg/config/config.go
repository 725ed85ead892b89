package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/spf13/viper"
)

const (
	// DefaultLogLevel is the default logging level.
	DefaultLogLevel = "info"

	// DefaultResultsDir is the default directory for benchmark results.
	DefaultResultsDir = "./results"

	// DefaultDockerNetwork is the default Docker network name for
	// container-installed systems.
	DefaultDockerNetwork = "sqlarena"

	// DefaultWarmupRuns is the default number of warmup executions per query.
	DefaultWarmupRuns = 2

	// DefaultMeasuredRuns is the default number of measured executions per query.
	DefaultMeasuredRuns = 5

	// DefaultTimeoutSeconds is the default per-run query timeout.
	DefaultTimeoutSeconds = 60.0

	// DefaultHealthRetries is the health check retry budget per system.
	DefaultHealthRetries = 5

	// DefaultHealthRetryDelay is the base delay between health check
	// attempts. The actual delay grows linearly with the attempt number.
	DefaultHealthRetryDelay = 2 * time.Second

	// DefaultPullPolicy is the default image pull policy.
	DefaultPullPolicy = "always"
)

// Config is the root configuration for sqlarena.
type Config struct {
	Global    GlobalConfig    `yaml:"global" mapstructure:"global"`
	Benchmark BenchmarkConfig `yaml:"benchmark" mapstructure:"benchmark"`
	Workload  WorkloadConfig  `yaml:"workload" mapstructure:"workload"`
	History   HistoryConfig   `yaml:"history,omitempty" mapstructure:"history"`
	Upload    UploadConfig    `yaml:"upload,omitempty" mapstructure:"upload"`
	Systems   []SystemConfig  `yaml:"systems" mapstructure:"systems"`
}

// GlobalConfig contains global application settings.
type GlobalConfig struct {
	LogLevel       string `yaml:"log_level" mapstructure:"log_level"`
	DockerNetwork  string `yaml:"docker_network" mapstructure:"docker_network"`
	CleanupOnStart bool   `yaml:"cleanup_on_start" mapstructure:"cleanup_on_start"`
}

// BenchmarkConfig contains benchmark execution settings.
type BenchmarkConfig struct {
	ResultsDir string `yaml:"results_dir" mapstructure:"results_dir"`

	// Workload-wide defaults; individual queries may override them.
	// WarmupRuns is a pointer so an explicit zero survives defaulting.
	WarmupRuns     *int    `yaml:"warmup_runs" mapstructure:"warmup_runs"`
	MeasuredRuns   int     `yaml:"measured_runs" mapstructure:"measured_runs"`
	TimeoutSeconds float64 `yaml:"timeout_seconds" mapstructure:"timeout_seconds"`

	// Cooldown is an optional minimum interval between consecutive runs
	// against the same system.
	Cooldown time.Duration `yaml:"cooldown,omitempty" mapstructure:"cooldown"`

	// MaxConcurrency bounds how many systems are brought up and driven
	// concurrently. Zero means one worker per configured system.
	MaxConcurrency int `yaml:"max_concurrency,omitempty" mapstructure:"max_concurrency"`

	HealthRetries    int           `yaml:"health_retries" mapstructure:"health_retries"`
	HealthRetryDelay time.Duration `yaml:"health_retry_delay" mapstructure:"health_retry_delay"`

	// Filter limits execution to queries whose name starts with this prefix.
	Filter string `yaml:"filter,omitempty" mapstructure:"filter"`
}

// WorkloadConfig selects the query workload.
type WorkloadConfig struct {
	// File is a YAML workload definition. Empty selects the built-in
	// TPC-H style suite.
	File string `yaml:"file,omitempty" mapstructure:"file"`
}

// HistoryConfig configures the run history index database.
type HistoryConfig struct {
	Driver   string                `yaml:"driver,omitempty" mapstructure:"driver"`
	SQLite   HistorySQLiteConfig   `yaml:"sqlite,omitempty" mapstructure:"sqlite"`
	Postgres HistoryPostgresConfig `yaml:"postgres,omitempty" mapstructure:"postgres"`
}

// HistorySQLiteConfig contains SQLite settings for the history store.
type HistorySQLiteConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// HistoryPostgresConfig contains PostgreSQL settings for the history store.
type HistoryPostgresConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	Database string `yaml:"database" mapstructure:"database"`
	SSLMode  string `yaml:"ssl_mode" mapstructure:"ssl_mode"`
}

// UploadConfig contains result upload settings.
type UploadConfig struct {
	S3 *S3UploadConfig `yaml:"s3,omitempty" mapstructure:"s3"`
}

// S3UploadConfig contains S3-compatible storage settings.
type S3UploadConfig struct {
	Enabled         bool   `yaml:"enabled" mapstructure:"enabled"`
	EndpointURL     string `yaml:"endpoint_url,omitempty" mapstructure:"endpoint_url"`
	Region          string `yaml:"region,omitempty" mapstructure:"region"`
	Bucket          string `yaml:"bucket" mapstructure:"bucket"`
	AccessKeyID     string `yaml:"access_key_id,omitempty" mapstructure:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty" mapstructure:"secret_access_key"`
	ForcePathStyle  bool   `yaml:"force_path_style" mapstructure:"force_path_style"`
	Prefix          string `yaml:"prefix,omitempty" mapstructure:"prefix"`
}

// SystemConfig defines a single system under test. Declaration order is
// significant: it breaks ties in baseline selection and ranking.
type SystemConfig struct {
	Name    string `yaml:"name" mapstructure:"name"`
	Kind    string `yaml:"kind" mapstructure:"kind"`
	Version string `yaml:"version,omitempty" mapstructure:"version"`

	// DSN, when set, is used verbatim. Otherwise it is assembled from the
	// per-field connection settings by the system handle.
	DSN      string `yaml:"dsn,omitempty" mapstructure:"dsn"`
	Host     string `yaml:"host,omitempty" mapstructure:"host"`
	Port     int    `yaml:"port,omitempty" mapstructure:"port"`
	User     string `yaml:"user,omitempty" mapstructure:"user"`
	Password string `yaml:"password,omitempty" mapstructure:"password"`
	Database string `yaml:"database,omitempty" mapstructure:"database"`
	SSLMode  string `yaml:"ssl_mode,omitempty" mapstructure:"ssl_mode"`

	// Path is the database file path for file-backed engines (sqlite).
	Path string `yaml:"path,omitempty" mapstructure:"path"`

	// Container, when present, makes installation provision a container
	// for the engine instead of assuming a preinstalled server.
	Container *ContainerConfig `yaml:"container,omitempty" mapstructure:"container"`
}

// ContainerConfig defines the container install method for a system.
type ContainerConfig struct {
	Image      string            `yaml:"image" mapstructure:"image"`
	Env        map[string]string `yaml:"environment,omitempty" mapstructure:"environment"`
	Command    []string          `yaml:"command,omitempty" mapstructure:"command"`
	PullPolicy string            `yaml:"pull_policy,omitempty" mapstructure:"pull_policy"`

	// Port is the server port inside the container; HostPort is the port
	// published on the host that the DSN points at.
	Port     int `yaml:"port" mapstructure:"port"`
	HostPort int `yaml:"host_port" mapstructure:"host_port"`

	// Memory is a human-readable limit ("2g"). CpusetCpus pins CPUs.
	Memory     string `yaml:"memory,omitempty" mapstructure:"memory"`
	CpusetCpus string `yaml:"cpuset_cpus,omitempty" mapstructure:"cpuset_cpus"`

	// ReadyWaitAfter is an extra settle delay after the container starts
	// before health checking begins.
	ReadyWaitAfter time.Duration `yaml:"ready_wait_after,omitempty" mapstructure:"ready_wait_after"`
}

// MemoryBytes parses the human-readable memory limit. Zero means unlimited.
func (c *ContainerConfig) MemoryBytes() (int64, error) {
	if c.Memory == "" {
		return 0, nil
	}

	n, err := units.RAMInBytes(c.Memory)
	if err != nil {
		return 0, fmt.Errorf("parsing memory limit %q: %w", c.Memory, err)
	}

	return n, nil
}

// Load reads and parses a configuration file from the given path.
// Environment variables prefixed with SQLARENA_ override file values.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("SQLARENA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for unspecified configuration options.
func (c *Config) applyDefaults() {
	if c.Global.LogLevel == "" {
		c.Global.LogLevel = DefaultLogLevel
	}

	if c.Global.DockerNetwork == "" {
		c.Global.DockerNetwork = DefaultDockerNetwork
	}

	if c.Benchmark.ResultsDir == "" {
		c.Benchmark.ResultsDir = DefaultResultsDir
	}

	if c.Benchmark.WarmupRuns == nil {
		warmup := DefaultWarmupRuns
		c.Benchmark.WarmupRuns = &warmup
	}

	if c.Benchmark.MeasuredRuns == 0 {
		c.Benchmark.MeasuredRuns = DefaultMeasuredRuns
	}

	if c.Benchmark.TimeoutSeconds == 0 {
		c.Benchmark.TimeoutSeconds = DefaultTimeoutSeconds
	}

	if c.Benchmark.HealthRetries == 0 {
		c.Benchmark.HealthRetries = DefaultHealthRetries
	}

	if c.Benchmark.HealthRetryDelay == 0 {
		c.Benchmark.HealthRetryDelay = DefaultHealthRetryDelay
	}

	if c.History.Driver == "" {
		c.History.Driver = "sqlite"
	}

	if c.History.SQLite.Path == "" {
		c.History.SQLite.Path = "./sqlarena-history.db"
	}

	for i := range c.Systems {
		if ctr := c.Systems[i].Container; ctr != nil && ctr.PullPolicy == "" {
			ctr.PullPolicy = DefaultPullPolicy
		}
	}
}

// validKinds is the list of supported system kinds.
var validKinds = map[string]struct{}{
	"postgres":  {},
	"mysql":     {},
	"sqlite":    {},
	"sqlserver": {},
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if len(c.Systems) == 0 {
		return fmt.Errorf("at least one system must be configured")
	}

	seen := make(map[string]struct{}, len(c.Systems))

	for i, sys := range c.Systems {
		if sys.Name == "" {
			return fmt.Errorf("system %d: name is required", i)
		}

		if _, exists := seen[sys.Name]; exists {
			return fmt.Errorf("system %d: duplicate name %q", i, sys.Name)
		}

		seen[sys.Name] = struct{}{}

		if _, ok := validKinds[sys.Kind]; !ok {
			return fmt.Errorf("system %q: unknown kind %q", sys.Name, sys.Kind)
		}

		if ctr := sys.Container; ctr != nil {
			if ctr.Image == "" {
				return fmt.Errorf("system %q: container image is required", sys.Name)
			}

			if ctr.Port == 0 || ctr.HostPort == 0 {
				return fmt.Errorf("system %q: container port and host_port are required", sys.Name)
			}

			if _, err := ctr.MemoryBytes(); err != nil {
				return fmt.Errorf("system %q: %w", sys.Name, err)
			}
		}
	}

	if c.Benchmark.MeasuredRuns < 1 {
		return fmt.Errorf("measured_runs must be at least 1")
	}

	if c.Benchmark.TimeoutSeconds <= 0 {
		return fmt.Errorf("timeout_seconds must be positive")
	}

	if c.Benchmark.WarmupRuns != nil && *c.Benchmark.WarmupRuns < 0 {
		return fmt.Errorf("warmup_runs must not be negative")
	}

	return nil
}

// Warmup returns the benchmark-level warmup default, falling back to
// DefaultWarmupRuns when the config never set one.
func (b *BenchmarkConfig) Warmup() int {
	if b.WarmupRuns == nil {
		return DefaultWarmupRuns
	}

	return *b.WarmupRuns
}

// Concurrency returns the effective bring-up/execution concurrency limit.
func (c *Config) Concurrency() int {
	if c.Benchmark.MaxConcurrency > 0 {
		return c.Benchmark.MaxConcurrency
	}

	return len(c.Systems)
}
