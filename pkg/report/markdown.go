package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sqlarena/sqlarena/pkg/aggregate"
)

// RenderMarkdown renders the report as a human-readable summary with
// overview, host, lifecycle, per-query, comparison, and ranking tables.
func (r *Report) RenderMarkdown() string {
	var sb strings.Builder

	writeTitle(&sb, r.RunID)
	writeOverview(&sb, r)
	writeHost(&sb, &r.Host)
	writeSystems(&sb, r)
	writeQueryMedians(&sb, r)
	writeComparisons(&sb, r)
	writeRanking(&sb, r)

	return sb.String()
}

// WriteMarkdown renders and writes summary.md into dir.
func (r *Report) WriteMarkdown(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating results dir: %w", err)
	}

	path := filepath.Join(dir, MarkdownFileName)
	if err := os.WriteFile(path, []byte(r.RenderMarkdown()), 0o644); err != nil {
		return "", fmt.Errorf("writing summary file: %w", err)
	}

	return path, nil
}

func writeTitle(sb *strings.Builder, runID string) {
	sb.WriteString(fmt.Sprintf("# Benchmark Run %s\n\n", runID))
}

func writeOverview(sb *strings.Builder, r *Report) {
	sb.WriteString("## Overview\n\n")
	sb.WriteString("| Field | Value |\n")
	sb.WriteString("|---|---|\n")
	sb.WriteString(fmt.Sprintf("| Workload | %s |\n", r.Workload))
	sb.WriteString(fmt.Sprintf("| Started | %s |\n", r.StartedAt.Format("2006-01-02 15:04:05 MST")))
	sb.WriteString(fmt.Sprintf("| Duration | %.1f ms |\n", r.DurationMS))
	sb.WriteString(fmt.Sprintf("| Systems | %d |\n", len(r.Systems)))
	sb.WriteString(fmt.Sprintf("| Queries | %d |\n", len(r.Queries)))

	if r.BaselineSystem != "" {
		sb.WriteString(fmt.Sprintf("| Baseline | %s |\n", r.BaselineSystem))
	}

	sb.WriteString("\n")
}

func writeHost(sb *strings.Builder, h *HostInfo) {
	sb.WriteString("## Host\n\n")
	sb.WriteString("| Field | Value |\n")
	sb.WriteString("|---|---|\n")
	sb.WriteString(fmt.Sprintf("| Hostname | %s |\n", h.Hostname))
	sb.WriteString(fmt.Sprintf("| Platform | %s %s |\n", h.Platform, h.PlatformVersion))
	sb.WriteString(fmt.Sprintf("| Arch | %s |\n", h.Arch))
	sb.WriteString(fmt.Sprintf("| CPU | %s (%d) |\n", h.CPUModel, h.CPUCount))
	sb.WriteString(fmt.Sprintf("| RAM | %.1f GB |\n", h.RAMGB))
	sb.WriteString("\n")
}

func writeSystems(sb *strings.Builder, r *Report) {
	sb.WriteString("## Systems\n\n")
	sb.WriteString("| System | Kind | State | Install | Startup | Health Attempts | Reason |\n")
	sb.WriteString("|---|---|---|---|---|---|---|\n")

	for _, o := range r.Systems {
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %.0f ms | %.0f ms | %d | %s |\n",
			o.System.Name, o.System.Kind, o.State,
			o.InstallMS, o.StartupMS, o.HealthAttempts, o.Reason))
	}

	sb.WriteString("\n")
}

// writeQueryMedians renders a query x system matrix of median runtimes.
// Pairs with no data render as "failed".
func writeQueryMedians(sb *strings.Builder, r *Report) {
	if len(r.Stats) == 0 {
		return
	}

	// Column order follows declaration order as carried by Stats.
	var names []string

	seen := map[string]bool{}

	for _, s := range r.Stats {
		if !seen[s.System.Name] {
			seen[s.System.Name] = true

			names = append(names, s.System.Name)
		}
	}

	sb.WriteString("## Median Runtime (ms)\n\n")
	sb.WriteString("| Query | " + strings.Join(names, " | ") + " |\n")
	sb.WriteString("|---" + strings.Repeat("|---", len(names)) + "|\n")

	for _, q := range r.Queries {
		row := []string{q}

		for _, name := range names {
			cell := "failed"

			for _, s := range r.Stats {
				if s.System.Name == name && s.Query == q && !s.Failed {
					cell = fmt.Sprintf("%.1f", aggregate.Round1(s.MedianMS))

					break
				}
			}

			row = append(row, cell)
		}

		sb.WriteString("| " + strings.Join(row, " | ") + " |\n")
	}

	sb.WriteString("\n")
}

func writeComparisons(sb *strings.Builder, r *Report) {
	if len(r.Comparisons) == 0 {
		return
	}

	sb.WriteString("## Comparison vs Baseline\n\n")
	sb.WriteString("| Query | System | Baseline (ms) | System (ms) | Ratio | Speedup | Faster |\n")
	sb.WriteString("|---|---|---|---|---|---|---|\n")

	for _, c := range r.Comparisons {
		faster := "no"
		if c.Faster {
			faster = "yes"
		}

		sb.WriteString(fmt.Sprintf("| %s | %s | %.1f | %.1f | %.2f | %.2f | %s |\n",
			c.Query, c.ComparisonSystem,
			aggregate.Round1(c.BaselineMS), aggregate.Round1(c.ComparisonMS),
			c.Ratio, c.Speedup, faster))
	}

	sb.WriteString("\n")
}

func writeRanking(sb *strings.Builder, r *Report) {
	if len(r.Ranking) == 0 && len(r.ExcludedSystems) == 0 {
		return
	}

	sb.WriteString("## Ranking\n\n")

	if len(r.Ranking) > 0 {
		sb.WriteString("| Rank | System |\n")
		sb.WriteString("|---|---|\n")

		for _, e := range r.Ranking {
			sb.WriteString(fmt.Sprintf("| %d | %s |\n", e.Rank, e.System.Name))
		}

		sb.WriteString("\n")
	}

	if len(r.ExcludedSystems) > 0 {
		sb.WriteString("### Excluded\n\n")
		sb.WriteString("| System | Reason |\n")
		sb.WriteString("|---|---|\n")

		for _, e := range r.ExcludedSystems {
			sb.WriteString(fmt.Sprintf("| %s | %s |\n", e.System.Name, e.Reason))
		}

		sb.WriteString("\n")
	}
}
