package app

import (
	"fmt"
	"io"
	"text/tabwriter"

	"quantSim/internal/ports"
)

func formatOptional(v *float64, format string) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf(format, *v)
}

// WriteReports prints one ranked table per scenario.
func WriteReports(out io.Writer, reports []Report) error {
	for i, r := range reports {
		if i > 0 {
			fmt.Fprintln(out)
		}
		fmt.Fprintf(out, "## %s (ranked by %s over %d bars)\n", r.Scenario, r.Table.Metric, r.Table.Bars)

		w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "Rank\tStrategy\tScore\tReturn%\tMaxDD%\tSharpe\tSortino\tTrades\tWinRate%\tEnd\t")
		for _, row := range r.Table.Rows {
			m := row.Result.Metrics
			var winRate *float64
			if m.WinRate != nil {
				v := *m.WinRate * 100
				winRate = &v
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%.2f\t%.2f\t%s\t%s\t%d\t%s\t%s\t\n",
				row.Rank,
				row.Strategy,
				formatOptional(row.Score, "%.4f"),
				m.TotalReturn*100,
				m.MaxDrawdown*100,
				formatOptional(m.SharpeRatio, "%.2f"),
				formatOptional(m.SortinoRatio, "%.2f"),
				m.TotalTrades,
				formatOptional(winRate, "%.1f"),
				row.Result.TerminationReason,
			)
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}
	return nil
}

// WriteRunSummaries prints persisted runs, newest first.
func WriteRunSummaries(out io.Writer, runs []*ports.RunSummary) error {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tCreated\tScenario\tStrategy\tBars\tTrades\tReturn%\tMaxDD%\tSharpe\tEnd\t")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%.2f\t%.2f\t%s\t%s\t\n",
			r.ID,
			r.CreatedAt.Format("2006-01-02 15:04"),
			r.Scenario,
			r.Strategy,
			r.BarsProcessed,
			r.TotalTrades,
			r.TotalReturn*100,
			r.MaxDrawdown*100,
			formatOptional(r.SharpeRatio, "%.2f"),
			r.TerminationReason,
		)
	}
	return w.Flush()
}
