package aggregate

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqlarena/sqlarena/pkg/engine"
	"github.com/sqlarena/sqlarena/pkg/system"
)

func sampleSet(sys system.Identity, query string, elapsed []float64) []engine.Sample {
	samples := make([]engine.Sample, 0, len(elapsed))

	for i, ms := range elapsed {
		samples = append(samples, engine.Sample{
			System:    sys,
			Query:     query,
			RunIndex:  i,
			Phase:     engine.PhaseMeasured,
			ElapsedMS: ms,
			Success:   true,
		})
	}

	return samples
}

func TestReducePairStatistics(t *testing.T) {
	tests := []struct {
		name       string
		elapsed    []float64
		wantMedian float64
		wantMean   float64
		wantStd    float64
		wantMin    float64
		wantMax    float64
	}{
		{
			name:       "odd count",
			elapsed:    []float64{100, 102, 98, 101, 99},
			wantMedian: 100,
			wantMean:   100,
			wantStd:    1.5811,
			wantMin:    98,
			wantMax:    102,
		},
		{
			name:       "even count averages middle pair",
			elapsed:    []float64{10, 20, 30, 40},
			wantMedian: 25,
			wantMean:   25,
			wantStd:    12.9099,
			wantMin:    10,
			wantMax:    40,
		},
		{
			name:       "single sample has zero deviation",
			elapsed:    []float64{42},
			wantMedian: 42,
			wantMean:   42,
			wantStd:    0,
			wantMin:    42,
			wantMax:    42,
		},
	}

	sys := system.Identity{Name: "pg", Kind: "postgres"}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Reduce(
				[]system.Identity{sys},
				[]string{"q1"},
				sampleSet(sys, "q1", tt.elapsed),
			)

			require.Len(t, res.Stats, 1)

			stat := res.Stats[0]
			assert.False(t, stat.Failed)
			assert.Equal(t, len(tt.elapsed), stat.N)
			assert.InDelta(t, tt.wantMedian, stat.MedianMS, 1e-9)
			assert.InDelta(t, tt.wantMean, stat.MeanMS, 1e-9)
			assert.InDelta(t, tt.wantStd, stat.StdMS, 1e-4)
			assert.InDelta(t, tt.wantMin, stat.MinMS, 1e-9)
			assert.InDelta(t, tt.wantMax, stat.MaxMS, 1e-9)
		})
	}
}

func TestReduceIgnoresWarmupAndFailures(t *testing.T) {
	sys := system.Identity{Name: "pg", Kind: "postgres"}

	samples := sampleSet(sys, "q1", []float64{100, 200, 300})

	samples = append(samples,
		engine.Sample{
			System: sys, Query: "q1", Phase: engine.PhaseWarmup,
			ElapsedMS: 10000, Success: true,
		},
		engine.Sample{
			System: sys, Query: "q1", Phase: engine.PhaseMeasured,
			ElapsedMS: 10000, Success: false, Error: "timeout",
		},
	)

	res := Reduce([]system.Identity{sys}, []string{"q1"}, samples)

	require.Len(t, res.Stats, 1)
	assert.Equal(t, 3, res.Stats[0].N)
	assert.InDelta(t, 200.0, res.Stats[0].MedianMS, 1e-9)
}

func TestReduceTwoSystemComparison(t *testing.T) {
	a := system.Identity{Name: "a", Kind: "postgres"}
	b := system.Identity{Name: "b", Kind: "mysql"}

	samples := sampleSet(a, "q1", []float64{100, 102, 98, 101, 99})
	samples = append(samples, sampleSet(b, "q1", []float64{500, 510, 495, 505, 498})...)

	res := Reduce([]system.Identity{a, b}, []string{"q1"}, samples)

	require.NotNil(t, res.Baseline)
	assert.Equal(t, "a", res.Baseline.Name)

	require.Len(t, res.Comparisons, 1)

	row := res.Comparisons[0]
	assert.Equal(t, "q1", row.Query)
	assert.Equal(t, "a", row.BaselineSystem)
	assert.Equal(t, "b", row.ComparisonSystem)
	assert.InDelta(t, 100.0, row.BaselineMS, 1e-9)
	assert.InDelta(t, 500.0, row.ComparisonMS, 1e-9)
	assert.InDelta(t, 5.0, row.Ratio, 1e-9)
	assert.InDelta(t, 0.2, row.Speedup, 1e-9)
	assert.False(t, row.Faster)

	require.Len(t, res.Ranking, 2)
	assert.Equal(t, "a", res.Ranking[0].Name)
	assert.Equal(t, "b", res.Ranking[1].Name)
}

func TestReduceBaselineTieGoesToDeclarationOrder(t *testing.T) {
	a := system.Identity{Name: "a", Kind: "postgres"}
	b := system.Identity{Name: "b", Kind: "mysql"}

	// Identical medians on both systems.
	samples := sampleSet(b, "q1", []float64{100, 100, 100})
	samples = append(samples, sampleSet(a, "q1", []float64{100, 100, 100})...)

	// Declaration order decides, not sample order.
	res := Reduce([]system.Identity{a, b}, []string{"q1"}, samples)

	require.NotNil(t, res.Baseline)
	assert.Equal(t, "a", res.Baseline.Name)

	// Repeated reduction is deterministic.
	for i := 0; i < 10; i++ {
		again := Reduce([]system.Identity{a, b}, []string{"q1"}, samples)
		require.NotNil(t, again.Baseline)
		assert.Equal(t, "a", again.Baseline.Name)
	}
}

func TestReduceMissingDataNeverRaises(t *testing.T) {
	a := system.Identity{Name: "a", Kind: "postgres"}
	b := system.Identity{Name: "b", Kind: "mysql"}

	t.Run("no samples at all", func(t *testing.T) {
		res := Reduce([]system.Identity{a, b}, []string{"q1", "q2"}, nil)

		require.Len(t, res.Stats, 4)

		for _, s := range res.Stats {
			assert.True(t, s.Failed)
			assert.Zero(t, s.N)
		}

		assert.Nil(t, res.Baseline)
		assert.Empty(t, res.Comparisons)
		assert.Empty(t, res.Ranking)
		assert.Len(t, res.Unranked, 2)
	})

	t.Run("one system with zero successes is flagged not ranked", func(t *testing.T) {
		samples := sampleSet(a, "q1", []float64{50, 60, 70})

		res := Reduce([]system.Identity{a, b}, []string{"q1"}, samples)

		require.NotNil(t, res.Baseline)
		assert.Equal(t, "a", res.Baseline.Name)

		require.Len(t, res.Ranking, 1)
		assert.Equal(t, "a", res.Ranking[0].Name)

		require.Len(t, res.Unranked, 1)
		assert.Equal(t, "b", res.Unranked[0].Name)

		// No comparison row can be built against the missing side.
		assert.Empty(t, res.Comparisons)
	})
}

func TestReducePartialQueryCoverageOmitsRow(t *testing.T) {
	a := system.Identity{Name: "a", Kind: "postgres"}
	b := system.Identity{Name: "b", Kind: "mysql"}

	samples := sampleSet(a, "q1", []float64{100})
	samples = append(samples, sampleSet(a, "q2", []float64{100})...)
	samples = append(samples, sampleSet(b, "q1", []float64{200})...)

	res := Reduce([]system.Identity{a, b}, []string{"q1", "q2"}, samples)

	// b has data for q1 only; q2 must not produce a fabricated row.
	require.Len(t, res.Comparisons, 1)
	assert.Equal(t, "q1", res.Comparisons[0].Query)

	// b still ranks: it has one successful query.
	require.Len(t, res.Ranking, 2)
}

func TestRankingTieBrokenByMeanThenDeclaration(t *testing.T) {
	a := system.Identity{Name: "a", Kind: "postgres"}
	b := system.Identity{Name: "b", Kind: "mysql"}
	c := system.Identity{Name: "c", Kind: "sqlite"}

	// All three share the same median; b has the lowest mean.
	samples := sampleSet(a, "q1", []float64{90, 100, 140})
	samples = append(samples, sampleSet(b, "q1", []float64{90, 100, 110})...)
	samples = append(samples, sampleSet(c, "q1", []float64{90, 100, 140})...)

	res := Reduce([]system.Identity{a, b, c}, []string{"q1"}, samples)

	require.Len(t, res.Ranking, 3)
	assert.Equal(t, "b", res.Ranking[0].Name)
	assert.Equal(t, "a", res.Ranking[1].Name)
	assert.Equal(t, "c", res.Ranking[2].Name)
}

func TestQueryStatMarshalJSON(t *testing.T) {
	sys := system.Identity{Name: "pg", Kind: "postgres", Version: "16"}

	t.Run("failed marker omits numeric fields", func(t *testing.T) {
		data, err := json.Marshal(QueryStat{System: sys, Query: "q1", Failed: true})
		require.NoError(t, err)

		var m map[string]any
		require.NoError(t, json.Unmarshal(data, &m))

		assert.Equal(t, true, m["failed"])
		assert.Equal(t, float64(0), m["n"])
		assert.NotContains(t, m, "median_ms")
		assert.NotContains(t, m, "mean_ms")
	})

	t.Run("successful stat carries canonical keys", func(t *testing.T) {
		stat := QueryStat{
			System: sys, Query: "q1", N: 5,
			MedianMS: 100, MeanMS: 100, StdMS: 1.58, MinMS: 98, MaxMS: 102,
		}

		data, err := json.Marshal(stat)
		require.NoError(t, err)

		var m map[string]any
		require.NoError(t, json.Unmarshal(data, &m))

		for _, key := range []string{"system", "query", "n", "median_ms", "mean_ms", "std_ms", "min_ms", "max_ms"} {
			assert.Contains(t, m, key)
		}

		assert.NotContains(t, m, "failed")
	})
}

func TestRound1(t *testing.T) {
	assert.InDelta(t, 100.3, Round1(100.26), 1e-9)
	assert.InDelta(t, 100.1, Round1(100.14), 1e-9)
	assert.InDelta(t, 0.0, Round1(0.04), 1e-9)
}
