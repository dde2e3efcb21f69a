package app

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantSim/internal/domain"
	"quantSim/internal/ports"
	"quantSim/internal/strategy/comparison"
)

func TestWriteReports(t *testing.T) {
	sharpe := 1.5
	reports := []Report{{
		Scenario: "crash",
		Table: &comparison.Table{
			Metric: comparison.MetricSharpe,
			Bars:   30,
			Rows: []comparison.Row{
				{Rank: 1, Strategy: "hold", Score: &sharpe, Result: &domain.SimulationResult{
					Metrics:           domain.Metrics{TotalReturn: 0.1, SharpeRatio: &sharpe, TotalTrades: 1},
					TerminationReason: domain.TerminationCompleted,
				}},
				{Rank: 2, Strategy: "idle", Result: &domain.SimulationResult{
					TerminationReason: domain.TerminationRiskBreach,
				}},
			},
		},
	}}

	var buf bytes.Buffer
	require.NoError(t, WriteReports(&buf, reports))
	out := buf.String()
	assert.Contains(t, out, "## crash (ranked by sharpe over 30 bars)")
	assert.Contains(t, out, "hold")
	assert.Contains(t, out, "1.5000")
	assert.Contains(t, out, "10.00")
	assert.Contains(t, out, "n/a")
	assert.Contains(t, out, "RISK_BREACH")
}

func TestWriteRunSummaries(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteRunSummaries(&buf, []*ports.RunSummary{{
		ID: "abc", Strategy: "ma", Scenario: "baseline", BarsProcessed: 10,
		TerminationReason: domain.TerminationCancelled, CreatedAt: time.Date(2024, 1, 2, 3, 4, 0, 0, time.UTC),
	}}))
	assert.Contains(t, buf.String(), "2024-01-02 03:04")
	assert.Contains(t, buf.String(), "CANCELLED")
}
