// Package report assembles the immutable run report and renders it to
// JSON, markdown, and CSV. A report is always producible: systems that
// never became healthy and queries with zero data appear explicitly with
// their reason instead of being dropped.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/samber/lo"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/sqlarena/sqlarena/pkg/aggregate"
	"github.com/sqlarena/sqlarena/pkg/engine"
	"github.com/sqlarena/sqlarena/pkg/lifecycle"
	"github.com/sqlarena/sqlarena/pkg/system"
)

const (
	// JSONFileName is the canonical report file name inside a results dir.
	JSONFileName = "report.json"

	// MarkdownFileName is the rendered summary file name.
	MarkdownFileName = "summary.md"
)

// HostInfo describes the machine the benchmark ran on. Collection is
// best-effort: unavailable fields stay zero.
type HostInfo struct {
	Hostname        string  `json:"hostname"`
	Platform        string  `json:"platform"`
	PlatformVersion string  `json:"platform_version"`
	Arch            string  `json:"arch"`
	CPUModel        string  `json:"cpu_model"`
	CPUCount        int     `json:"cpu_count"`
	RAMGB           float64 `json:"ram_gb"`
}

// ExcludedSystem records a system that participated in the run but
// contributed no statistics, with the reason it was excluded.
type ExcludedSystem struct {
	System system.Identity `json:"system"`
	Reason string          `json:"reason"`
}

// RankEntry is one position in the final ranking, 1-based.
type RankEntry struct {
	Rank   int             `json:"rank"`
	System system.Identity `json:"system"`
}

// Report is the serializable outcome of one benchmark run. It is written
// once, after all executors finish, and never mutated afterwards.
type Report struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	DurationMS float64   `json:"duration_ms"`
	Workload   string    `json:"workload"`
	Host       HostInfo  `json:"host"`

	Systems         []lifecycle.Outcome       `json:"systems"`
	ExcludedSystems []ExcludedSystem          `json:"excluded_systems"`
	Queries         []string                  `json:"queries"`
	Samples         []engine.Sample           `json:"samples"`
	Stats           []aggregate.QueryStat     `json:"stats"`
	Comparisons     []aggregate.ComparisonRow `json:"comparisons"`
	BaselineSystem  string                    `json:"baseline_system,omitempty"`
	Ranking         []RankEntry               `json:"ranking"`
}

// Params carries everything New needs to assemble a report.
type Params struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Workload   string
	Outcomes   []lifecycle.Outcome
	Queries    []string
	Samples    []engine.Sample
	Aggregated *aggregate.Result
}

// New assembles a report from run outcomes and the aggregation result.
// Systems that never became healthy and systems with zero successful
// queries both land in ExcludedSystems with distinct reasons.
func New(p Params) *Report {
	r := &Report{
		RunID:      p.RunID,
		StartedAt:  p.StartedAt,
		FinishedAt: p.FinishedAt,
		DurationMS: float64(p.FinishedAt.Sub(p.StartedAt)) / float64(time.Millisecond),
		Workload:   p.Workload,
		Host:       CollectHost(),
		Systems:    p.Outcomes,
		Queries:    p.Queries,
		Samples:    p.Samples,
	}

	for _, o := range p.Outcomes {
		if !o.Healthy() {
			r.ExcludedSystems = append(r.ExcludedSystems, ExcludedSystem{
				System: o.System,
				Reason: o.Reason,
			})
		}
	}

	if p.Aggregated != nil {
		r.Stats = p.Aggregated.Stats
		r.Comparisons = p.Aggregated.Comparisons

		if p.Aggregated.Baseline != nil {
			r.BaselineSystem = p.Aggregated.Baseline.Name
		}

		for _, id := range p.Aggregated.Unranked {
			r.ExcludedSystems = append(r.ExcludedSystems, ExcludedSystem{
				System: id,
				Reason: "no successful measured samples",
			})
		}

		r.Ranking = lo.Map(p.Aggregated.Ranking, func(id system.Identity, i int) RankEntry {
			return RankEntry{Rank: i + 1, System: id}
		})
	}

	return r
}

// CollectHost gathers host details. Failures leave fields zero rather
// than failing the run.
func CollectHost() HostInfo {
	info := HostInfo{Arch: runtime.GOARCH}

	if hostStat, err := host.Info(); err == nil {
		info.Hostname = hostStat.Hostname
		info.Platform = hostStat.Platform
		info.PlatformVersion = hostStat.PlatformVersion
	}

	if cpuStat, err := cpu.Info(); err == nil && len(cpuStat) > 0 {
		info.CPUModel = cpuStat[0].ModelName
		info.CPUCount = len(cpuStat)
	}

	if vmStat, err := mem.VirtualMemory(); err == nil {
		info.RAMGB = float64(vmStat.Total) / 1024 / 1024 / 1024
	}

	return info
}

// WriteJSON writes report.json into dir, creating dir if needed.
func (r *Report) WriteJSON(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating results dir: %w", err)
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshalling report: %w", err)
	}

	path := filepath.Join(dir, JSONFileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing report file: %w", err)
	}

	return path, nil
}

// Load reads a report back from a report.json file.
func Load(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading report file: %w", err)
	}

	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parsing report file: %w", err)
	}

	return &r, nil
}
