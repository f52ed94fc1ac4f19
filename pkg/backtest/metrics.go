// Performance metrics calculation for backtesting
package backtest

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"
)

// ============================================================================
// PERFORMANCE METRICS
// ============================================================================

// Metrics holds all performance metrics for a backtest
type Metrics struct {
	// Returns
	TotalReturn      float64 `json:"total_return"`        // Total profit/loss
	TotalReturnPct   float64 `json:"total_return_pct"`    // Total return percentage
	BuyHoldReturnPct float64 `json:"buy_hold_return_pct"` // First to last close
	CAGR             float64 `json:"cagr"`                // Compound Annual Growth Rate

	// Risk metrics
	MaxDrawdown    float64 `json:"max_drawdown"`     // Maximum drawdown in dollars
	MaxDrawdownPct float64 `json:"max_drawdown_pct"` // Maximum drawdown percentage
	AvgDrawdownPct float64 `json:"avg_drawdown_pct"` // Mean of per-episode maximum drawdowns
	Volatility     float64 `json:"volatility"`       // Annualized std dev of bar returns, percent
	SharpeRatio    float64 `json:"sharpe_ratio"`
	SortinoRatio   float64 `json:"sortino_ratio"`
	CalmarRatio    float64 `json:"calmar_ratio"` // CAGR / Max Drawdown

	// Trade statistics
	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	WinRate       float64 `json:"win_rate"` // Percentage of winning trades
	AverageWin    float64 `json:"average_win"`
	AverageLoss   float64 `json:"average_loss"`
	LargestWin    float64 `json:"largest_win"`
	LargestLoss   float64 `json:"largest_loss"`
	ProfitFactor  float64 `json:"profit_factor"` // Total profit / Total loss
	Expectancy    float64 `json:"expectancy"`    // Expected value per trade
	SQN           float64 `json:"sqn"`           // System Quality Number

	// Time statistics
	AverageHoldingTime time.Duration `json:"average_holding_time"`
	MedianHoldingTime  time.Duration `json:"median_holding_time"`
	MaxHoldingTime     time.Duration `json:"max_holding_time"`
	MinHoldingTime     time.Duration `json:"min_holding_time"`

	// Portfolio statistics
	InitialCapital float64       `json:"initial_capital"`
	FinalEquity    float64       `json:"final_equity"`
	PeakEquity     float64       `json:"peak_equity"`
	EquityLow      float64       `json:"equity_low"`
	StartDate      time.Time     `json:"start_date"`
	EndDate        time.Time     `json:"end_date"`
	Duration       time.Duration `json:"duration"`
}

// CalculateMetrics derives all performance metrics from an equity curve and
// its closed trades. closes is the execution price series, used for the
// buy-and-hold benchmark; it may be nil.
func CalculateMetrics(initialCapital float64, curve []EquityPoint, trades []*Trade, closes []float64) *Metrics {
	metrics := &Metrics{
		InitialCapital: initialCapital,
		FinalEquity:    initialCapital,
		PeakEquity:     initialCapital,
		EquityLow:      initialCapital,
	}
	if len(curve) == 0 {
		return metrics
	}

	metrics.FinalEquity = curve[len(curve)-1].Equity
	metrics.StartDate = curve[0].Timestamp
	metrics.EndDate = curve[len(curve)-1].Timestamp
	metrics.Duration = metrics.EndDate.Sub(metrics.StartDate)

	metrics.TotalReturn = metrics.FinalEquity - initialCapital
	metrics.TotalReturnPct = metrics.TotalReturn / initialCapital * 100.0

	if years := metrics.Duration.Hours() / 24.0 / 365.25; years > 0 && metrics.FinalEquity > 0 {
		metrics.CAGR = (math.Pow(metrics.FinalEquity/initialCapital, 1.0/years) - 1.0) * 100.0
	}

	if len(closes) > 1 && closes[0] > 0 {
		metrics.BuyHoldReturnPct = (closes[len(closes)-1] - closes[0]) / closes[0] * 100.0
	}

	calculateDrawdowns(metrics, curve)
	calculateRiskMetrics(metrics, curve)

	if metrics.MaxDrawdownPct > 0 {
		metrics.CalmarRatio = metrics.CAGR / metrics.MaxDrawdownPct
	}

	if len(trades) > 0 {
		calculateTradeStatistics(metrics, trades)
	}

	return metrics
}

// calculateDrawdowns walks the curve once, tracking the running peak. An
// episode starts when equity falls below the peak and ends at a new peak.
func calculateDrawdowns(metrics *Metrics, curve []EquityPoint) {
	peak := curve[0].Equity
	if metrics.InitialCapital > peak {
		peak = metrics.InitialCapital
	}

	var episodes []float64
	episodeMax := 0.0
	for _, point := range curve {
		equity := point.Equity
		if equity < metrics.EquityLow {
			metrics.EquityLow = equity
		}
		if equity >= peak {
			if episodeMax > 0 {
				episodes = append(episodes, episodeMax)
				episodeMax = 0
			}
			peak = equity
			continue
		}

		drawdown := peak - equity
		drawdownPct := drawdown / peak * 100.0
		if drawdownPct > episodeMax {
			episodeMax = drawdownPct
		}
		if drawdown > metrics.MaxDrawdown {
			metrics.MaxDrawdown = drawdown
			metrics.MaxDrawdownPct = drawdownPct
		}
	}
	if episodeMax > 0 {
		episodes = append(episodes, episodeMax)
	}

	metrics.PeakEquity = peak
	if len(episodes) > 0 {
		metrics.AvgDrawdownPct = stat.Mean(episodes, nil)
	}
}

// calculateRiskMetrics annualizes bar returns using the median bar spacing.
// The risk-free rate is zero.
func calculateRiskMetrics(metrics *Metrics, curve []EquityPoint) {
	if len(curve) < 3 {
		return
	}

	returns := make([]float64, 0, len(curve)-1)
	spacings := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity
		if prev <= 0 {
			continue
		}
		returns = append(returns, (curve[i].Equity-prev)/prev)
		spacings = append(spacings, curve[i].Timestamp.Sub(curve[i-1].Timestamp).Seconds())
	}
	if len(returns) < 2 {
		return
	}

	sort.Float64s(spacings)
	spacing := spacings[len(spacings)/2]
	if spacing <= 0 {
		return
	}
	periodsPerYear := 365.25 * 24 * 3600 / spacing
	annualize := math.Sqrt(periodsPerYear)

	mean := stat.Mean(returns, nil)
	stdDev := stat.StdDev(returns, nil)
	metrics.Volatility = stdDev * annualize * 100.0
	if stdDev > 0 {
		metrics.SharpeRatio = mean / stdDev * annualize
	}

	var downsideSq float64
	for _, r := range returns {
		if r < 0 {
			downsideSq += r * r
		}
	}
	if downside := math.Sqrt(downsideSq / float64(len(returns))); downside > 0 {
		metrics.SortinoRatio = mean / downside * annualize
	}
}

// calculateTradeStatistics calculates statistics from closed trades
func calculateTradeStatistics(metrics *Metrics, trades []*Trade) {
	var totalWin, totalLoss float64
	pnls := make([]float64, 0, len(trades))
	holdingTimes := make([]time.Duration, 0, len(trades))

	for _, trade := range trades {
		pnls = append(pnls, trade.RealizedPL)
		holdingTimes = append(holdingTimes, trade.HoldingTime)

		if trade.RealizedPL > 0 {
			metrics.WinningTrades++
			totalWin += trade.RealizedPL
			if trade.RealizedPL > metrics.LargestWin {
				metrics.LargestWin = trade.RealizedPL
			}
		} else {
			metrics.LosingTrades++
			totalLoss += trade.RealizedPL
			if trade.RealizedPL < metrics.LargestLoss {
				metrics.LargestLoss = trade.RealizedPL
			}
		}
	}

	metrics.TotalTrades = len(trades)
	metrics.WinRate = float64(metrics.WinningTrades) / float64(metrics.TotalTrades) * 100.0

	if metrics.WinningTrades > 0 {
		metrics.AverageWin = totalWin / float64(metrics.WinningTrades)
	}
	if metrics.LosingTrades > 0 {
		metrics.AverageLoss = totalLoss / float64(metrics.LosingTrades)
	}
	if totalLoss != 0 {
		metrics.ProfitFactor = totalWin / math.Abs(totalLoss)
	}

	metrics.Expectancy = stat.Mean(pnls, nil)
	if len(pnls) > 1 {
		if sd := stat.StdDev(pnls, nil); sd > 0 {
			metrics.SQN = math.Sqrt(float64(len(pnls))) * metrics.Expectancy / sd
		}
	}

	sort.Slice(holdingTimes, func(i, j int) bool { return holdingTimes[i] < holdingTimes[j] })
	var totalTime time.Duration
	for _, d := range holdingTimes {
		totalTime += d
	}
	metrics.AverageHoldingTime = totalTime / time.Duration(len(holdingTimes))
	metrics.MinHoldingTime = holdingTimes[0]
	metrics.MaxHoldingTime = holdingTimes[len(holdingTimes)-1]
	mid := len(holdingTimes) / 2
	if len(holdingTimes)%2 == 0 {
		metrics.MedianHoldingTime = (holdingTimes[mid-1] + holdingTimes[mid]) / 2
	} else {
		metrics.MedianHoldingTime = holdingTimes[mid]
	}
}

// ============================================================================
// NAMED ACCESS
// ============================================================================

type metricField struct {
	name    string
	display string
	get     func(*Metrics) float64
}

// metricFields lists the selectable metrics in report order.
var metricFields = []metricField{
	{"final_equity", "Equity Final [$]", func(m *Metrics) float64 { return m.FinalEquity }},
	{"peak_equity", "Equity Peak [$]", func(m *Metrics) float64 { return m.PeakEquity }},
	{"return_pct", "Return [%]", func(m *Metrics) float64 { return m.TotalReturnPct }},
	{"buy_hold_return_pct", "Buy & Hold Return [%]", func(m *Metrics) float64 { return m.BuyHoldReturnPct }},
	{"cagr", "Return (Ann.) [%]", func(m *Metrics) float64 { return m.CAGR }},
	{"volatility", "Volatility (Ann.) [%]", func(m *Metrics) float64 { return m.Volatility }},
	{"sharpe_ratio", "Sharpe Ratio", func(m *Metrics) float64 { return m.SharpeRatio }},
	{"sortino_ratio", "Sortino Ratio", func(m *Metrics) float64 { return m.SortinoRatio }},
	{"calmar_ratio", "Calmar Ratio", func(m *Metrics) float64 { return m.CalmarRatio }},
	{"max_drawdown_pct", "Max. Drawdown [%]", func(m *Metrics) float64 { return m.MaxDrawdownPct }},
	{"avg_drawdown_pct", "Avg. Drawdown [%]", func(m *Metrics) float64 { return m.AvgDrawdownPct }},
	{"total_trades", "# Trades", func(m *Metrics) float64 { return float64(m.TotalTrades) }},
	{"win_rate", "Win Rate [%]", func(m *Metrics) float64 { return m.WinRate }},
	{"profit_factor", "Profit Factor", func(m *Metrics) float64 { return m.ProfitFactor }},
	{"expectancy", "Expectancy [$]", func(m *Metrics) float64 { return m.Expectancy }},
	{"sqn", "SQN", func(m *Metrics) float64 { return m.SQN }},
}

var metricIndex = func() map[string]metricField {
	idx := make(map[string]metricField, len(metricFields)*2)
	for _, f := range metricFields {
		idx[f.name] = f
		idx[strings.ToLower(f.display)] = f
	}
	idx["equity_final"] = idx["final_equity"]
	idx["max_drawdown"] = idx["max_drawdown_pct"]
	idx["sharpe"] = idx["sharpe_ratio"]
	idx["sortino"] = idx["sortino_ratio"]
	idx["calmar"] = idx["calmar_ratio"]
	return idx
}()

// MetricNames returns the canonical metric names in report order.
func MetricNames() []string {
	names := make([]string, len(metricFields))
	for i, f := range metricFields {
		names[i] = f.name
	}
	return names
}

// CanonicalMetric resolves a metric name or display label such as
// "Sharpe Ratio" to its canonical name.
func CanonicalMetric(name string) (string, error) {
	f, ok := metricIndex[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return "", fmt.Errorf("unknown metric %q", name)
	}
	return f.name, nil
}

// DisplayName returns the report label for a canonical metric name.
func DisplayName(name string) string {
	if f, ok := metricIndex[name]; ok {
		return f.display
	}
	return name
}

// Value returns the metric with the given name or display label.
func (m *Metrics) Value(name string) (float64, error) {
	f, ok := metricIndex[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("unknown metric %q", name)
	}
	return f.get(m), nil
}

// Values returns every named metric keyed by canonical name.
func (m *Metrics) Values() map[string]float64 {
	out := make(map[string]float64, len(metricFields))
	for _, f := range metricFields {
		out[f.name] = f.get(m)
	}
	return out
}
