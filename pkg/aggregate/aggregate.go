// Package aggregate reduces raw timing samples into per-(system, query)
// statistics and cross-system comparisons. It is a pure reduction over
// immutable sample sequences: it never raises on missing or partial data,
// degrading to explicit no-data markers instead.
package aggregate

import (
	"encoding/json"
	"math"
	"sort"

	"github.com/samber/lo"

	"github.com/sqlarena/sqlarena/pkg/engine"
	"github.com/sqlarena/sqlarena/pkg/system"
)

// QueryStat contains derived statistics for one (system, query) pair,
// computed only from successful measured samples. All values are kept at
// full float64 precision; rounding happens at render time only.
type QueryStat struct {
	System system.Identity `json:"system"`
	Query  string          `json:"query"`

	// Failed marks a pair with zero successful measured samples. Failed
	// stats are excluded from comparisons and ranking input.
	Failed bool `json:"failed,omitempty"`

	N        int     `json:"n"`
	MedianMS float64 `json:"median_ms"`
	MeanMS   float64 `json:"mean_ms"`
	StdMS    float64 `json:"std_ms"`
	MinMS    float64 `json:"min_ms"`
	MaxMS    float64 `json:"max_ms"`
}

// MarshalJSON emits numeric fields only when data exists; a failed stat
// carries the failed marker instead.
func (s QueryStat) MarshalJSON() ([]byte, error) {
	if s.Failed {
		return json.Marshal(struct {
			System system.Identity `json:"system"`
			Query  string          `json:"query"`
			N      int             `json:"n"`
			Failed bool            `json:"failed"`
		}{
			System: s.System,
			Query:  s.Query,
			Failed: true,
		})
	}

	return json.Marshal(struct {
		System   system.Identity `json:"system"`
		Query    string          `json:"query"`
		N        int             `json:"n"`
		MedianMS float64         `json:"median_ms"`
		MeanMS   float64         `json:"mean_ms"`
		StdMS    float64         `json:"std_ms"`
		MinMS    float64         `json:"min_ms"`
		MaxMS    float64         `json:"max_ms"`
	}{
		System:   s.System,
		Query:    s.Query,
		N:        s.N,
		MedianMS: s.MedianMS,
		MeanMS:   s.MeanMS,
		StdMS:    s.StdMS,
		MinMS:    s.MinMS,
		MaxMS:    s.MaxMS,
	})
}

// ComparisonRow expresses one non-baseline system's runtime for one query
// relative to the baseline system.
type ComparisonRow struct {
	Query            string  `json:"query"`
	BaselineSystem   string  `json:"baseline_system"`
	ComparisonSystem string  `json:"comparison_system"`
	BaselineMS       float64 `json:"baseline_ms"`
	ComparisonMS     float64 `json:"comparison_ms"`
	Ratio            float64 `json:"ratio"`
	Speedup          float64 `json:"speedup"`
	Faster           bool    `json:"faster"`
}

// Result is the full aggregation output.
type Result struct {
	// Stats holds one entry per (system, query) pair for every system
	// that reached the execution phase, failed markers included.
	Stats []QueryStat

	// Comparisons holds one row per (query, non-baseline system) where
	// both sides have data.
	Comparisons []ComparisonRow

	// Ranking lists systems ascending by aggregate median; systems with
	// zero successful queries are excluded and listed in Unranked.
	Ranking []system.Identity

	// Baseline is nil when no system produced any successful stat.
	Baseline *system.Identity

	// Unranked lists systems that executed but produced no successful
	// query, flagged rather than silently dropped.
	Unranked []system.Identity
}

// Reduce aggregates the sample matrix. Systems and queries must be given in
// declaration/workload order: it determines baseline and ranking tie-breaks,
// making the whole reduction deterministic.
func Reduce(systems []system.Identity, queries []string, samples []engine.Sample) *Result {
	res := &Result{}

	// Bucket successful measured elapsed times per (system, query).
	type key struct{ system, query string }

	times := make(map[key][]float64)

	for _, s := range samples {
		if s.Phase != engine.PhaseMeasured || !s.Success {
			continue
		}

		k := key{s.System.Name, s.Query}
		times[k] = append(times[k], s.ElapsedMS)
	}

	// Per-pair reduction, declaration x workload order.
	for _, sys := range systems {
		for _, q := range queries {
			res.Stats = append(res.Stats, reducePair(sys, q, times[key{sys.Name, q}]))
		}
	}

	// Aggregate summaries per system, successful stats only.
	type summary struct {
		id        system.Identity
		median    float64 // median of per-query medians
		mean      float64 // mean of per-query means
		succeeded int
	}

	summaries := make([]summary, 0, len(systems))

	for _, sys := range systems {
		ok := lo.Filter(res.Stats, func(s QueryStat, _ int) bool {
			return s.System.Name == sys.Name && !s.Failed
		})

		sum := summary{id: sys, succeeded: len(ok)}

		if len(ok) > 0 {
			medians := lo.Map(ok, func(s QueryStat, _ int) float64 { return s.MedianMS })
			means := lo.Map(ok, func(s QueryStat, _ int) float64 { return s.MeanMS })

			sum.median = median(medians)
			sum.mean = mean(means)
		}

		summaries = append(summaries, sum)
	}

	// Baseline: lowest aggregate median among systems with data; ties go
	// to the first-declared system, which the strict < guarantees.
	bestMedian := math.Inf(1)

	for _, sum := range summaries {
		if sum.succeeded == 0 {
			res.Unranked = append(res.Unranked, sum.id)

			continue
		}

		if sum.median < bestMedian {
			bestMedian = sum.median

			id := sum.id
			res.Baseline = &id
		}
	}

	// Ranking: ascending aggregate median, ties by aggregate mean, then
	// declaration order (stable sort over the declaration-ordered slice).
	ranked := lo.Filter(summaries, func(s summary, _ int) bool { return s.succeeded > 0 })

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].median != ranked[j].median {
			return ranked[i].median < ranked[j].median
		}

		return ranked[i].mean < ranked[j].mean
	})

	res.Ranking = lo.Map(ranked, func(s summary, _ int) system.Identity { return s.id })

	// Comparisons against the baseline. A query missing on either side is
	// omitted: partial coverage never fabricates data.
	if res.Baseline != nil {
		statFor := func(name, query string) (QueryStat, bool) {
			for _, s := range res.Stats {
				if s.System.Name == name && s.Query == query && !s.Failed {
					return s, true
				}
			}

			return QueryStat{}, false
		}

		for _, q := range queries {
			base, ok := statFor(res.Baseline.Name, q)
			if !ok {
				continue
			}

			for _, sys := range systems {
				if sys.Name == res.Baseline.Name {
					continue
				}

				comp, ok := statFor(sys.Name, q)
				if !ok {
					continue
				}

				res.Comparisons = append(res.Comparisons, ComparisonRow{
					Query:            q,
					BaselineSystem:   res.Baseline.Name,
					ComparisonSystem: sys.Name,
					BaselineMS:       base.MedianMS,
					ComparisonMS:     comp.MedianMS,
					Ratio:            comp.MedianMS / base.MedianMS,
					Speedup:          base.MedianMS / comp.MedianMS,
					Faster:           comp.MedianMS < base.MedianMS,
				})
			}
		}
	}

	return res
}

// reducePair computes the statistics for one (system, query) pair.
func reducePair(sys system.Identity, query string, elapsed []float64) QueryStat {
	if len(elapsed) == 0 {
		return QueryStat{System: sys, Query: query, Failed: true}
	}

	sorted := make([]float64, len(elapsed))
	copy(sorted, elapsed)
	sort.Float64s(sorted)

	m := mean(sorted)

	return QueryStat{
		System:   sys,
		Query:    query,
		N:        len(sorted),
		MedianMS: median(sorted),
		MeanMS:   m,
		StdMS:    stddev(sorted, m),
		MinMS:    sorted[0],
		MaxMS:    sorted[len(sorted)-1],
	}
}

// median computes the middle value, averaging the two central elements for
// even-length input. The input need not be sorted.
func median(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	n := len(sorted)
	if n == 0 {
		return 0
	}

	if n%2 == 1 {
		return sorted[n/2]
	}

	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sum := 0.0
	for _, v := range values {
		sum += v
	}

	return sum / float64(len(values))
}

// stddev is the sample standard deviation (n-1 denominator). A single
// sample has zero deviation.
func stddev(values []float64, mean float64) float64 {
	if len(values) < 2 {
		return 0
	}

	sum := 0.0
	for _, v := range values {
		d := v - mean
		sum += d * d
	}

	return math.Sqrt(sum / float64(len(values)-1))
}

// Round1 rounds to one decimal place for display. Internal statistics stay
// at full precision.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}
