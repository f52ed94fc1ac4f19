package backtest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createReportTestOutput() *Output {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	trades := []*Trade{
		{Side: "LONG", EntryTime: start, ExitTime: start.Add(time.Hour), EntryPrice: 100, ExitPrice: 110, RealizedPL: 100, ReturnPct: 10, ExitReason: ExitTakeProfit},
		{Side: "SHORT", EntryTime: start.Add(2 * time.Hour), ExitTime: start.Add(3 * time.Hour), EntryPrice: 110, ExitPrice: 115, RealizedPL: -50, ReturnPct: -4.5, ExitReason: ExitStopLoss},
	}
	curve := curveFrom(1000, 1100, 1050)
	return &Output{
		FinalEquity: 1050,
		Trades:      trades,
		EquityCurve: curve,
		Metrics:     CalculateMetrics(1000, curve, trades, nil),
	}
}

func TestNewReportGenerator(t *testing.T) {
	_, err := NewReportGenerator("empty", DefaultConfig(), &Output{})
	assert.Error(t, err)

	gen, err := NewReportGenerator("ok", DefaultConfig(), createReportTestOutput())
	require.NoError(t, err)
	assert.NotNil(t, gen)
}

func TestGenerateHTML(t *testing.T) {
	gen, err := NewReportGenerator("Momentum_BTCUSDT", DefaultConfig(), createReportTestOutput())
	require.NoError(t, err)

	html, err := gen.GenerateHTML()
	require.NoError(t, err)

	assert.Contains(t, html, "<!DOCTYPE html>")
	assert.Contains(t, html, "Momentum_BTCUSDT")
	assert.Contains(t, html, "equityChart")
	assert.Contains(t, html, "take_profit")
	assert.Contains(t, html, "stop_loss")
	assert.NotContains(t, html, "Top Parameter Sets")
}

func TestGenerateHTML_RankedRuns(t *testing.T) {
	gen, err := NewReportGenerator("grid", DefaultConfig(), createReportTestOutput())
	require.NoError(t, err)

	html, err := gen.WithRankedRuns([]RankedRun{
		{Params: "sl_percent=2, tp_percent=5", Metric: "final_equity", Value: 1100},
	}).GenerateHTML()
	require.NoError(t, err)

	assert.Contains(t, html, "Top Parameter Sets")
	assert.Contains(t, html, "sl_percent=2, tp_percent=5")
	assert.Contains(t, html, "1100.00")
}

func TestSaveToFile(t *testing.T) {
	gen, err := NewReportGenerator("file", DefaultConfig(), createReportTestOutput())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "nested", "report.html")
	require.NoError(t, gen.SaveToFile(path))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "Equity Curve")
}

func TestFormatHelpers(t *testing.T) {
	assert.Equal(t, "3.14", formatFloat(3.14159))
	assert.Equal(t, "12.50%", formatPercent(12.5))
	assert.Equal(t, "2024-01-01 10:30:00", formatTime(time.Date(2024, 1, 1, 10, 30, 0, 0, time.UTC)))
}
