// Package workload supplies the ordered set of named queries the engine
// drives against each system, with per-query execution parameters.
package workload

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/sqlarena/sqlarena/pkg/config"
)

// QuerySpec describes one named query and its execution parameters.
// Immutable once the driver has produced it.
type QuerySpec struct {
	Name           string  `json:"name"`
	Text           string  `json:"text"`
	WarmupRuns     int     `json:"warmup_runs"`
	MeasuredRuns   int     `json:"measured_runs"`
	TimeoutSeconds float64 `json:"timeout_seconds"`
}

// Statement is a named setup statement run before benchmarking (schema
// creation, data loading hooks).
type Statement struct {
	Name string `yaml:"name" json:"name"`
	Text string `yaml:"text" json:"text"`
}

// Driver enumerates the workload. Order is execution order.
type Driver interface {
	// Queries returns the ordered query plan with all defaults resolved.
	Queries() []QuerySpec

	// Setup returns the ordered setup statements, possibly empty.
	Setup() []Statement

	// Name identifies the workload for the report.
	Name() string
}

// fileWorkload is the YAML workload definition format. Warmup counts are
// pointers so an explicit zero can override a nonzero default.
type fileWorkload struct {
	Name     string       `yaml:"name"`
	Defaults fileDefaults `yaml:"defaults"`
	Setup    []Statement  `yaml:"setup"`
	Queries  []fileQuery  `yaml:"queries"`
}

type fileDefaults struct {
	WarmupRuns     *int    `yaml:"warmup_runs"`
	MeasuredRuns   int     `yaml:"measured_runs"`
	TimeoutSeconds float64 `yaml:"timeout_seconds"`
}

type fileQuery struct {
	Name           string  `yaml:"name"`
	Text           string  `yaml:"text"`
	WarmupRuns     *int    `yaml:"warmup_runs"`
	MeasuredRuns   int     `yaml:"measured_runs"`
	TimeoutSeconds float64 `yaml:"timeout_seconds"`
}

// resolve produces the final QuerySpec: per-query values win, then
// file-level defaults, then benchmark-level ones.
func (q fileQuery) resolve(d fileDefaults, bench *config.BenchmarkConfig) QuerySpec {
	spec := QuerySpec{
		Name:           q.Name,
		Text:           q.Text,
		MeasuredRuns:   q.MeasuredRuns,
		TimeoutSeconds: q.TimeoutSeconds,
	}

	switch {
	case q.WarmupRuns != nil:
		spec.WarmupRuns = *q.WarmupRuns
	case d.WarmupRuns != nil:
		spec.WarmupRuns = *d.WarmupRuns
	default:
		spec.WarmupRuns = bench.Warmup()
	}

	if spec.MeasuredRuns == 0 {
		spec.MeasuredRuns = d.MeasuredRuns
	}

	if spec.TimeoutSeconds == 0 {
		spec.TimeoutSeconds = d.TimeoutSeconds
	}

	applyBenchmarkDefaults(&spec, bench)

	return spec
}

type driver struct {
	name    string
	queries []QuerySpec
	setup   []Statement
}

// Ensure interface compliance.
var _ Driver = (*driver)(nil)

func (d *driver) Queries() []QuerySpec { return d.queries }
func (d *driver) Setup() []Statement   { return d.setup }
func (d *driver) Name() string         { return d.name }

// New builds the workload driver from configuration: either a YAML workload
// file or the built-in TPC-H style suite. Benchmark-level defaults fill in
// unset per-query parameters; the filter keeps queries whose name starts
// with the given prefix.
func New(log logrus.FieldLogger, cfg *config.Config) (Driver, error) {
	log = log.WithField("component", "workload")

	var (
		name    string
		queries []QuerySpec
		setup   []Statement
	)

	if cfg.Workload.File != "" {
		fw, err := loadFile(cfg.Workload.File)
		if err != nil {
			return nil, err
		}

		name = fw.Name
		if name == "" {
			name = cfg.Workload.File
		}

		setup = fw.Setup

		queries = make([]QuerySpec, len(fw.Queries))
		for i, fq := range fw.Queries {
			queries[i] = fq.resolve(fw.Defaults, &cfg.Benchmark)
		}
	} else {
		name = builtinSuiteName
		queries = builtinQueries()
		setup = builtinSetup()

		// Builtin specs carry name and text only; everything else
		// comes from the benchmark config.
		for i := range queries {
			queries[i].WarmupRuns = cfg.Benchmark.Warmup()
			applyBenchmarkDefaults(&queries[i], &cfg.Benchmark)
		}
	}

	if cfg.Benchmark.Filter != "" {
		filtered := make([]QuerySpec, 0, len(queries))

		for _, q := range queries {
			if strings.HasPrefix(q.Name, cfg.Benchmark.Filter) {
				filtered = append(filtered, q)
			}
		}

		queries = filtered
	}

	if err := validate(queries); err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"workload": name,
		"queries":  len(queries),
		"setup":    len(setup),
	}).Info("Workload ready")

	return &driver{name: name, queries: queries, setup: setup}, nil
}

func applyBenchmarkDefaults(q *QuerySpec, bench *config.BenchmarkConfig) {
	if q.MeasuredRuns == 0 {
		q.MeasuredRuns = bench.MeasuredRuns
	}

	if q.TimeoutSeconds == 0 {
		q.TimeoutSeconds = bench.TimeoutSeconds
	}
}

func validate(queries []QuerySpec) error {
	if len(queries) == 0 {
		return fmt.Errorf("workload contains no queries")
	}

	seen := make(map[string]struct{}, len(queries))

	for i, q := range queries {
		if q.Name == "" {
			return fmt.Errorf("query %d: name is required", i)
		}

		if _, exists := seen[q.Name]; exists {
			return fmt.Errorf("query %q: duplicate name", q.Name)
		}

		seen[q.Name] = struct{}{}

		if q.Text == "" {
			return fmt.Errorf("query %q: text is required", q.Name)
		}

		if q.MeasuredRuns < 1 {
			return fmt.Errorf("query %q: measured_runs must be at least 1", q.Name)
		}

		if q.WarmupRuns < 0 {
			return fmt.Errorf("query %q: warmup_runs must not be negative", q.Name)
		}

		if q.TimeoutSeconds <= 0 {
			return fmt.Errorf("query %q: timeout_seconds must be positive", q.Name)
		}
	}

	return nil
}

// loadFile reads a YAML workload definition.
func loadFile(path string) (*fileWorkload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading workload file: %w", err)
	}

	var fw fileWorkload
	if err := yaml.Unmarshal(data, &fw); err != nil {
		return nil, fmt.Errorf("parsing workload file: %w", err)
	}

	return &fw, nil
}
