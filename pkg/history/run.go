package history

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sqlarena/sqlarena/pkg/report"
)

// Run is a single indexed benchmark run in the database.
type Run struct {
	ID    uint   `gorm:"primaryKey"`
	RunID string `gorm:"not null;uniqueIndex:idx_runs_run_id"`

	StartedAt  int64
	FinishedAt int64
	DurationMS float64
	Workload   string `gorm:"index"`
	Hostname   string

	// Denormalized run shape.
	SystemsTotal    int
	SystemsExcluded int
	QueriesTotal    int
	BaselineSystem  string
	Winner          string

	// Full ranking serialized as JSON.
	RankingJSON string `gorm:"type:text"`

	// Where the report.json lives on disk.
	ReportPath string

	IndexedAt time.Time
}

// RunFromReport builds an index record from a finished report.
func RunFromReport(r *report.Report, reportPath string) (*Run, error) {
	ranking, err := json.Marshal(r.Ranking)
	if err != nil {
		return nil, fmt.Errorf("marshalling ranking: %w", err)
	}

	run := &Run{
		RunID:           r.RunID,
		StartedAt:       r.StartedAt.Unix(),
		FinishedAt:      r.FinishedAt.Unix(),
		DurationMS:      r.DurationMS,
		Workload:        r.Workload,
		Hostname:        r.Host.Hostname,
		SystemsTotal:    len(r.Systems),
		SystemsExcluded: len(r.ExcludedSystems),
		QueriesTotal:    len(r.Queries),
		BaselineSystem:  r.BaselineSystem,
		RankingJSON:     string(ranking),
		ReportPath:      reportPath,
		IndexedAt:       time.Now(),
	}

	if len(r.Ranking) > 0 {
		run.Winner = r.Ranking[0].System.Name
	}

	return run, nil
}
