// Package metrics exposes backtest and optimization activity as Prometheus
// collectors and serves them over HTTP.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "mtfbacktest"

// Bounded label values. Anything else is reported as OutcomeOther or
// StatusOther so label cardinality stays fixed.
const (
	OutcomeCompleted        = "completed"
	OutcomeNoData           = "no_data"
	OutcomeBadConfiguration = "bad_configuration"
	OutcomeEvaluationFailed = "evaluation_failed"
	OutcomeCancelled        = "cancelled"
	OutcomeOther            = "other"

	StatusOK     = "ok"
	StatusFailed = "failed"
	StatusOther  = "other"
)

var knownOutcomes = map[string]bool{
	OutcomeCompleted:        true,
	OutcomeNoData:           true,
	OutcomeBadConfiguration: true,
	OutcomeEvaluationFailed: true,
	OutcomeCancelled:        true,
}

// NormalizeOutcome maps a runner outcome to the bounded set.
func NormalizeOutcome(outcome string) string {
	if knownOutcomes[outcome] {
		return outcome
	}
	return OutcomeOther
}

// NormalizeStatus maps an evaluation status to the bounded set.
func NormalizeStatus(status string) string {
	switch status {
	case StatusOK, StatusFailed:
		return status
	default:
		return StatusOther
	}
}

// Collectors records backtest runs and search evaluations. It satisfies both
// backtest.Recorder and optimization.Recorder.
type Collectors struct {
	BacktestsTotal   *prometheus.CounterVec
	BacktestDuration prometheus.Histogram
	EvaluationsTotal *prometheus.CounterVec
	BestValue        *prometheus.GaugeVec
	DatasetBars      *prometheus.GaugeVec
}

// NewCollectors registers the collectors on reg. Tests pass a fresh
// prometheus.NewRegistry(); main passes prometheus.DefaultRegisterer.
func NewCollectors(reg prometheus.Registerer) *Collectors {
	factory := promauto.With(reg)
	return &Collectors{
		BacktestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backtests_total",
			Help:      "Backtests run, by outcome",
		}, []string{"outcome"}),

		BacktestDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backtest_duration_seconds",
			Help:      "Wall time of one backtest",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}),

		EvaluationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "optimization_evaluations_total",
			Help:      "Parameter sets evaluated by a search, by engine and status",
		}, []string{"engine", "status"}),

		BestValue: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "optimization_best_value",
			Help:      "Objective value of the best record of the last search, by engine",
		}, []string{"engine"}),

		DatasetBars: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dataset_bars",
			Help:      "Bars loaded per asset and timeframe",
		}, []string{"asset", "timeframe"}),
	}
}

// ObserveBacktest counts one run and records its duration.
func (c *Collectors) ObserveBacktest(outcome string, d time.Duration) {
	c.BacktestsTotal.WithLabelValues(NormalizeOutcome(outcome)).Inc()
	c.BacktestDuration.Observe(d.Seconds())
}

// ObserveEvaluation counts one evaluation of a search engine.
func (c *Collectors) ObserveEvaluation(engine, status string) {
	c.EvaluationsTotal.WithLabelValues(engine, NormalizeStatus(status)).Inc()
}

// ObserveBest records the winning objective value of a search.
func (c *Collectors) ObserveBest(engine string, value float64) {
	c.BestValue.WithLabelValues(engine).Set(value)
}

// SetDatasetBars records the size of one loaded frame.
func (c *Collectors) SetDatasetBars(asset, timeframe string, bars int) {
	c.DatasetBars.WithLabelValues(asset, timeframe).Set(float64(bars))
}
