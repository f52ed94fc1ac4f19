// HTML report generation for backtest results
package backtest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"time"
)

// ============================================================================
// REPORT GENERATOR
// ============================================================================

// RankedRun is one row of the optional optimization table.
type RankedRun struct {
	Params string
	Metric string
	Value  float64
}

// ReportGenerator generates HTML reports for backtest results
type ReportGenerator struct {
	title  string
	config Config
	output *Output
	runs   []RankedRun
}

// NewReportGenerator creates a report for one run.
func NewReportGenerator(title string, config Config, output *Output) (*ReportGenerator, error) {
	if output == nil || output.Metrics == nil {
		return nil, fmt.Errorf("report %q: run has no metrics", title)
	}
	return &ReportGenerator{title: title, config: config, output: output}, nil
}

// WithRankedRuns attaches an optimization leaderboard.
func (r *ReportGenerator) WithRankedRuns(runs []RankedRun) *ReportGenerator {
	r.runs = runs
	return r
}

// GenerateHTML generates a complete HTML report
func (r *ReportGenerator) GenerateHTML() (string, error) {
	tmpl, err := template.New("report").Funcs(template.FuncMap{
		"formatFloat":   formatFloat,
		"formatPercent": formatPercent,
		"formatTime":    formatTime,
		"lastTrades": func(items []*Trade, n int) []*Trade {
			if len(items) <= n {
				return items
			}
			return items[len(items)-n:]
		},
	}).Parse(reportTemplate)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, r.prepareTemplateData()); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	return buf.String(), nil
}

// SaveToFile saves the HTML report to a file
func (r *ReportGenerator) SaveToFile(path string) error {
	html, err := r.GenerateHTML()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(html), 0o644)
}

func (r *ReportGenerator) prepareTemplateData() map[string]interface{} {
	labels, equity, drawdown := r.curveSeries()
	return map[string]interface{}{
		"Title":       r.title,
		"GeneratedAt": time.Now(),
		"Config":      r.config,
		"Metrics":     r.output.Metrics,
		"Trades":      r.output.Trades,
		"Runs":        r.runs,
		"Labels":      template.JS(labels),
		"Equity":      template.JS(equity),
		"Drawdown":    template.JS(drawdown),
	}
}

// curveSeries returns JSON arrays for the equity and drawdown charts.
func (r *ReportGenerator) curveSeries() (string, string, string) {
	curve := r.output.EquityCurve
	labels := make([]string, len(curve))
	equity := make([]float64, len(curve))
	drawdown := make([]float64, len(curve))

	peak := r.config.InitialCapital
	for i, point := range curve {
		labels[i] = point.Timestamp.Format("2006-01-02 15:04")
		equity[i] = point.Equity
		if point.Equity > peak {
			peak = point.Equity
		}
		if peak > 0 {
			drawdown[i] = (point.Equity - peak) / peak * 100
		}
	}

	labelsJSON, _ := json.Marshal(labels)
	equityJSON, _ := json.Marshal(equity)
	drawdownJSON, _ := json.Marshal(drawdown)
	return string(labelsJSON), string(equityJSON), string(drawdownJSON)
}

// ============================================================================
// TEMPLATE HELPER FUNCTIONS
// ============================================================================

func formatFloat(f float64) string {
	return fmt.Sprintf("%.2f", f)
}

func formatPercent(f float64) string {
	return fmt.Sprintf("%.2f%%", f)
}

func formatTime(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}

// ============================================================================
// HTML TEMPLATE
// ============================================================================

const reportTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>{{ .Title }}</title>
    <script src="https://cdn.jsdelivr.net/npm/chart.js@4.4.0/dist/chart.umd.min.js"></script>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; background: #f5f5f5; color: #333; }
        .container { max-width: 1400px; margin: 0 auto; padding: 20px; }
        header { background: linear-gradient(135deg, #667eea 0%, #764ba2 100%); color: white; padding: 30px; border-radius: 10px; }
        .section { background: white; padding: 25px; margin-top: 25px; border-radius: 8px; }
        .metrics-grid { display: grid; grid-template-columns: repeat(auto-fit, minmax(220px, 1fr)); gap: 16px; }
        .metric-card { background: #f5f7fa; padding: 16px; border-radius: 8px; }
        .metric-card .value { font-size: 1.6em; font-weight: bold; }
        table { width: 100%; border-collapse: collapse; }
        th, td { padding: 8px; border-bottom: 1px solid #eee; text-align: left; }
        .positive { color: #2e7d32; }
        .negative { color: #c62828; }
    </style>
</head>
<body>
<div class="container">
    <header>
        <h1>{{ .Title }}</h1>
        <p>Generated {{ formatTime .GeneratedAt }} | {{ formatTime .Metrics.StartDate }} to {{ formatTime .Metrics.EndDate }}</p>
    </header>

    <div class="section">
        <h2>Performance</h2>
        <div class="metrics-grid">
            <div class="metric-card"><div>Equity Final</div><div class="value">${{ formatFloat .Metrics.FinalEquity }}</div></div>
            <div class="metric-card"><div>Return</div><div class="value {{ if ge .Metrics.TotalReturnPct 0.0 }}positive{{ else }}negative{{ end }}">{{ formatPercent .Metrics.TotalReturnPct }}</div></div>
            <div class="metric-card"><div>Buy &amp; Hold</div><div class="value">{{ formatPercent .Metrics.BuyHoldReturnPct }}</div></div>
            <div class="metric-card"><div>Max Drawdown</div><div class="value negative">{{ formatPercent .Metrics.MaxDrawdownPct }}</div></div>
            <div class="metric-card"><div>Avg Drawdown</div><div class="value">{{ formatPercent .Metrics.AvgDrawdownPct }}</div></div>
            <div class="metric-card"><div>Sharpe</div><div class="value">{{ formatFloat .Metrics.SharpeRatio }}</div></div>
            <div class="metric-card"><div>Sortino</div><div class="value">{{ formatFloat .Metrics.SortinoRatio }}</div></div>
            <div class="metric-card"><div>Calmar</div><div class="value">{{ formatFloat .Metrics.CalmarRatio }}</div></div>
            <div class="metric-card"><div>Trades</div><div class="value">{{ .Metrics.TotalTrades }}</div></div>
            <div class="metric-card"><div>Win Rate</div><div class="value">{{ formatPercent .Metrics.WinRate }}</div></div>
            <div class="metric-card"><div>Profit Factor</div><div class="value">{{ formatFloat .Metrics.ProfitFactor }}</div></div>
            <div class="metric-card"><div>SQN</div><div class="value">{{ formatFloat .Metrics.SQN }}</div></div>
        </div>
        <p>Initial capital ${{ formatFloat .Config.InitialCapital }}, commission {{ .Config.CommissionRate }}, sizing {{ .Config.PositionSizing }}</p>
    </div>

    <div class="section">
        <h2>Equity Curve</h2>
        <canvas id="equityChart" height="90"></canvas>
        <h2>Drawdown</h2>
        <canvas id="drawdownChart" height="60"></canvas>
    </div>

    {{ if .Runs }}
    <div class="section">
        <h2>Top Parameter Sets</h2>
        <table>
            <tr><th>#</th><th>Parameters</th><th>Metric</th><th>Value</th></tr>
            {{ range $i, $run := .Runs }}
            <tr><td>{{ $i }}</td><td>{{ $run.Params }}</td><td>{{ $run.Metric }}</td><td>{{ formatFloat $run.Value }}</td></tr>
            {{ end }}
        </table>
    </div>
    {{ end }}

    <div class="section">
        <h2>Recent Trades</h2>
        <table>
            <tr><th>Side</th><th>Entry</th><th>Exit</th><th>Entry Price</th><th>Exit Price</th><th>P&amp;L</th><th>Return</th><th>Exit Reason</th></tr>
            {{ range lastTrades .Trades 50 }}
            <tr>
                <td>{{ .Side }}</td>
                <td>{{ formatTime .EntryTime }}</td>
                <td>{{ formatTime .ExitTime }}</td>
                <td>{{ formatFloat .EntryPrice }}</td>
                <td>{{ formatFloat .ExitPrice }}</td>
                <td class="{{ if gt .RealizedPL 0.0 }}positive{{ else }}negative{{ end }}">{{ formatFloat .RealizedPL }}</td>
                <td>{{ formatPercent .ReturnPct }}</td>
                <td>{{ .ExitReason }}</td>
            </tr>
            {{ end }}
        </table>
    </div>
</div>
<script>
    const labels = {{ .Labels }};
    new Chart(document.getElementById('equityChart'), {
        type: 'line',
        data: { labels: labels, datasets: [{ label: 'Equity', data: {{ .Equity }}, borderColor: 'rgb(75, 192, 192)', pointRadius: 0 }] }
    });
    new Chart(document.getElementById('drawdownChart'), {
        type: 'line',
        data: { labels: labels, datasets: [{ label: 'Drawdown (%)', data: {{ .Drawdown }}, borderColor: 'rgb(255, 99, 132)', pointRadius: 0, fill: true }] }
    });
</script>
</body>
</html>
`
