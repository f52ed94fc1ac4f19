package results

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cast"

	"github.com/ajitpratap0/mtfbacktest/internal/backtest"
	"github.com/ajitpratap0/mtfbacktest/internal/optimization"
	btengine "github.com/ajitpratap0/mtfbacktest/pkg/backtest"
)

// Output file names.
const (
	SummaryFile        = "backtest_summary.csv"
	BestParametersFile = "best_parameters.csv"
	ComparisonFile     = "optimization_comparison_report.txt"
	SimulationsFile    = "montecarlo_simulations.csv"
	optimizationSuffix = "_optimization_results.csv"
	reportSuffix       = "_report.html"
)

// TopReported is the number of records listed per phase in the comparison
// report.
const TopReported = 5

var summaryHeader = []string{
	"Strategy",
	"Final Portfolio Value ($)",
	"Return (%)",
	"Total Trades",
	"Win Rate (%)",
	"Profit Factor",
	"Max Drawdown (%)",
	"Avg Drawdown (%)",
	"Sharpe Ratio",
	"Sortino Ratio",
	"Calmar Ratio",
	"Duration",
	"Start",
	"End",
	"SQN",
}

// Writer exports results under one output directory.
type Writer struct {
	dir    string
	logger zerolog.Logger
}

// NewWriter creates a writer rooted at dir.
func NewWriter(dir string, logger zerolog.Logger) *Writer {
	return &Writer{dir: dir, logger: logger.With().Str("component", "results").Logger()}
}

// Dir returns the output directory.
func (w *Writer) Dir() string {
	return w.dir
}

// Summary writes one line per row to backtest_summary.csv.
func (w *Writer) Summary(rows []Row) (string, error) {
	records := make([][]string, 0, len(rows))
	for _, r := range rows {
		records = append(records, []string{
			r.Key,
			formatFloat(r.FinalEquity),
			formatFloat(r.ReturnPct),
			strconv.Itoa(r.TotalTrades),
			formatFloat(r.WinRate),
			formatFloat(r.ProfitFactor),
			formatFloat(r.MaxDrawdownPct),
			formatFloat(r.AvgDrawdownPct),
			formatFloat(r.SharpeRatio),
			formatFloat(r.SortinoRatio),
			formatFloat(r.CalmarRatio),
			r.Duration.String(),
			formatTime(r.Start),
			formatTime(r.End),
			formatFloat(r.SQN),
		})
	}
	return w.writeCSV(SummaryFile, summaryHeader, records)
}

// Optimization writes every record of table to <name>_optimization_results.csv.
// Parameter columns come first, then the metric columns.
func (w *Writer) Optimization(name string, table *optimization.Table) (string, error) {
	if table == nil {
		return "", fmt.Errorf("optimization table %s is nil", name)
	}
	metrics := table.MetricNames()
	header := make([]string, 0, len(table.Params)+len(metrics))
	header = append(header, table.Params...)
	for _, m := range metrics {
		header = append(header, btengine.DisplayName(m))
	}

	records := make([][]string, 0, table.Len())
	for _, rec := range table.Records {
		records = append(records, recordRow(table.Params, metrics, rec))
	}
	return w.writeCSV(name+optimizationSuffix, header, records)
}

// Best is one labelled winner of a search.
type Best struct {
	Label     string
	Objective optimization.Objective
	Record    optimization.Record
}

// BestParameters writes the winner of each search to best_parameters.csv.
func (w *Writer) BestParameters(best []Best) (string, error) {
	var params []string
	seen := map[string]bool{}
	for _, b := range best {
		for _, name := range b.Record.Params.Names() {
			if !seen[name] {
				seen[name] = true
				params = append(params, name)
			}
		}
	}

	header := append([]string{"Search", "Objective", "Value"}, params...)
	records := make([][]string, 0, len(best))
	for _, b := range best {
		value, _ := b.Record.Value(b.Objective.Metric)
		row := []string{b.Label, b.Objective.String(), formatFloat(value)}
		for _, name := range params {
			row = append(row, formatParam(b.Record.Params[name]))
		}
		records = append(records, row)
	}
	return w.writeCSV(BestParametersFile, header, records)
}

// Simulations writes one line per Monte Carlo draw.
func (w *Writer) Simulations(sims []optimization.Simulation) (string, error) {
	var params []string
	if len(sims) > 0 {
		params = sims[0].Params.Names()
	}
	header := append([]string{"Simulation", "Seed"}, params...)
	header = append(header, btengine.DisplayName(optimization.PerformanceMetric))

	records := make([][]string, 0, len(sims))
	for _, s := range sims {
		row := []string{strconv.Itoa(s.Index), strconv.FormatInt(s.Seed, 10)}
		for _, name := range params {
			row = append(row, formatParam(s.Params[name]))
		}
		records = append(records, append(row, formatFloat(s.Performance)))
	}
	return w.writeCSV(SimulationsFile, header, records)
}

// Comparison writes the phase 1 and phase 2 leaderboards of a sequential
// search side by side in a text report.
func (w *Writer) Comparison(res *optimization.SequentialResult) (string, error) {
	if res == nil || res.Phase1 == nil {
		return "", fmt.Errorf("comparison needs a phase 1 result")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Optimization comparison report\n")
	fmt.Fprintf(&b, "Generated: %s\n\n", time.Now().UTC().Format(time.RFC3339))

	writeLeaderboard(&b, "Phase 1", res.Phase1)
	for _, p := range res.Phase2 {
		fmt.Fprintf(&b, "Refined space: %s\n", describeSpace(p.Space))
		writeLeaderboard(&b, "Phase 2", p.Result)
	}

	path := filepath.Join(w.dir, ComparisonFile)
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", err
	}
	w.logger.Info().Str("path", path).Msg("Wrote comparison report")
	return path, nil
}

// Report renders the HTML report of one result, with an optional leaderboard.
func (w *Writer) Report(res *backtest.Result, cfg btengine.Config, runs []btengine.RankedRun) (string, error) {
	gen, err := btengine.NewReportGenerator(res.Key, cfg, res.Output)
	if err != nil {
		return "", err
	}
	path := filepath.Join(w.dir, res.Key+reportSuffix)
	if err := gen.WithRankedRuns(runs).SaveToFile(path); err != nil {
		return "", fmt.Errorf("report %s: %w", res.Key, err)
	}
	w.logger.Info().Str("path", path).Msg("Wrote HTML report")
	return path, nil
}

// RankedRuns converts the top n records of a search into report rows.
func RankedRuns(res *optimization.Result, n int) []btengine.RankedRun {
	if res == nil || res.Table == nil {
		return nil
	}
	top := res.Table.Top(res.Objective, n)
	runs := make([]btengine.RankedRun, 0, len(top))
	for _, rec := range top {
		value, _ := rec.Value(res.Objective.Metric)
		runs = append(runs, btengine.RankedRun{
			Params: rec.Params.String(),
			Metric: btengine.DisplayName(res.Objective.Metric),
			Value:  value,
		})
	}
	return runs
}

func writeLeaderboard(b *strings.Builder, title string, res *optimization.Result) {
	fmt.Fprintf(b, "%s: top %d by %s (%d evaluated, %d failed, %d filtered)\n",
		title, TopReported, res.Objective, res.Evaluated, res.Failed, res.Filtered)

	tw := tabwriter.NewWriter(b, 0, 0, 2, ' ', 0)
	params := res.Table.Params
	fmt.Fprintf(tw, "Rank\t%s\t%s\n", strings.Join(params, "\t"), btengine.DisplayName(res.Objective.Metric))
	for i, rec := range res.Table.Top(res.Objective, TopReported) {
		cells := make([]string, len(params))
		for j, name := range params {
			cells[j] = formatParam(rec.Params[name])
		}
		value, _ := rec.Value(res.Objective.Metric)
		fmt.Fprintf(tw, "%d\t%s\t%s\n", i+1, strings.Join(cells, "\t"), formatFloat(value))
	}
	tw.Flush()
	b.WriteString("\n")
}

func describeSpace(space *optimization.Space) string {
	if space == nil {
		return ""
	}
	parts := make([]string, 0, len(space.Dimensions))
	for _, d := range space.Dimensions {
		values := make([]string, len(d.Values))
		for i, v := range d.Values {
			values[i] = formatParam(v)
		}
		parts = append(parts, fmt.Sprintf("%s=[%s]", d.Name, strings.Join(values, " ")))
	}
	return strings.Join(parts, " ")
}

func recordRow(params, metrics []string, rec optimization.Record) []string {
	row := make([]string, 0, len(params)+len(metrics))
	for _, name := range params {
		row = append(row, formatParam(rec.Params[name]))
	}
	for _, m := range metrics {
		v, ok := rec.Metrics[m]
		if !ok {
			row = append(row, "")
			continue
		}
		row = append(row, formatFloat(v))
	}
	return row
}

func (w *Writer) writeCSV(name string, header []string, records [][]string) (string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(w.dir, name)
	file, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	cw := csv.NewWriter(file)
	if err := cw.Write(header); err != nil {
		return "", err
	}
	if err := cw.WriteAll(records); err != nil {
		return "", err
	}
	w.logger.Info().Str("path", path).Int("rows", len(records)).Msg("Wrote CSV")
	return path, nil
}

// formatFloat leaves NaN cells empty.
func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatParam(v any) string {
	if v == nil {
		return ""
	}
	return cast.ToString(v)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
