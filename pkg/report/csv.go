package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

const (
	statsCSVFileName       = "stats.csv"
	comparisonsCSVFileName = "comparisons.csv"
)

// WriteCSV exports stats.csv and comparisons.csv into dir and returns the
// written paths. The comparisons file is skipped when no comparison rows
// exist.
func (r *Report) WriteCSV(dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating results dir: %w", err)
	}

	statsPath := filepath.Join(dir, statsCSVFileName)
	if err := writeCSVFile(statsPath, r.statsRecords()); err != nil {
		return nil, fmt.Errorf("writing stats csv: %w", err)
	}

	paths := []string{statsPath}

	if len(r.Comparisons) > 0 {
		compPath := filepath.Join(dir, comparisonsCSVFileName)
		if err := writeCSVFile(compPath, r.comparisonRecords()); err != nil {
			return nil, fmt.Errorf("writing comparisons csv: %w", err)
		}

		paths = append(paths, compPath)
	}

	return paths, nil
}

func (r *Report) statsRecords() [][]string {
	records := [][]string{{
		"system", "kind", "query", "n",
		"median_ms", "mean_ms", "std_ms", "min_ms", "max_ms", "failed",
	}}

	for _, s := range r.Stats {
		if s.Failed {
			records = append(records, []string{
				s.System.Name, s.System.Kind, s.Query, "0",
				"", "", "", "", "", "true",
			})

			continue
		}

		records = append(records, []string{
			s.System.Name, s.System.Kind, s.Query, strconv.Itoa(s.N),
			formatMS(s.MedianMS), formatMS(s.MeanMS), formatMS(s.StdMS),
			formatMS(s.MinMS), formatMS(s.MaxMS), "false",
		})
	}

	return records
}

func (r *Report) comparisonRecords() [][]string {
	records := [][]string{{
		"query", "baseline_system", "comparison_system",
		"baseline_ms", "comparison_ms", "ratio", "speedup", "faster",
	}}

	for _, c := range r.Comparisons {
		records = append(records, []string{
			c.Query, c.BaselineSystem, c.ComparisonSystem,
			formatMS(c.BaselineMS), formatMS(c.ComparisonMS),
			strconv.FormatFloat(c.Ratio, 'f', -1, 64),
			strconv.FormatFloat(c.Speedup, 'f', -1, 64),
			strconv.FormatBool(c.Faster),
		})
	}

	return records
}

func writeCSVFile(path string, records [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.WriteAll(records); err != nil {
		return fmt.Errorf("writing records: %w", err)
	}

	return nil
}

func formatMS(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
