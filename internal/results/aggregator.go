// Package results collects backtest results into tables, derives summary
// statistics and exports them as CSV, text and HTML reports.
package results

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/ajitpratap0/mtfbacktest/internal/backtest"
)

// Row is the summary line of one (strategy, asset) result.
type Row struct {
	Key            string
	Strategy       string
	Asset          string
	FinalEquity    float64
	ReturnPct      float64
	TotalTrades    int
	WinRate        float64
	ProfitFactor   float64
	MaxDrawdownPct float64
	AvgDrawdownPct float64
	SharpeRatio    float64
	SortinoRatio   float64
	CalmarRatio    float64
	SQN            float64
	Duration       time.Duration
	Start          time.Time
	End            time.Time
}

// NewRow extracts the summary line of res.
func NewRow(res *backtest.Result) Row {
	row := Row{Key: res.Key, Strategy: res.Strategy, Asset: res.Asset}
	if res.Output != nil {
		row.FinalEquity = res.Output.FinalEquity
	}
	m := res.Metrics()
	if m == nil {
		return row
	}
	row.ReturnPct = m.TotalReturnPct
	row.TotalTrades = m.TotalTrades
	row.WinRate = m.WinRate
	row.ProfitFactor = m.ProfitFactor
	row.MaxDrawdownPct = m.MaxDrawdownPct
	row.AvgDrawdownPct = m.AvgDrawdownPct
	row.SharpeRatio = m.SharpeRatio
	row.SortinoRatio = m.SortinoRatio
	row.CalmarRatio = m.CalmarRatio
	row.SQN = m.SQN
	row.Duration = m.Duration
	row.Start = m.StartDate
	row.End = m.EndDate
	return row
}

// Summary describes a set of rows.
type Summary struct {
	Results           int
	Skipped           int
	TotalTrades       int
	MeanFinalEquity   float64
	MedianFinalEquity float64
	MeanSharpe        float64
	BestKey           string
	BestFinalEquity   float64
	WorstKey          string
	WorstFinalEquity  float64
}

// Aggregator owns the results of one run, keyed by (strategy, asset). It is
// safe for concurrent use.
type Aggregator struct {
	mu      sync.Mutex
	order   []string
	results map[string]*backtest.Result
	skipped map[string]*backtest.SkipError
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{
		results: make(map[string]*backtest.Result),
		skipped: make(map[string]*backtest.SkipError),
	}
}

// Add stores res. Each key is accepted once.
func (a *Aggregator) Add(res *backtest.Result) error {
	if res == nil {
		return fmt.Errorf("nil result")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.claim(res.Key); err != nil {
		return err
	}
	a.results[res.Key] = res
	return nil
}

// Skip records a combination that produced no result.
func (a *Aggregator) Skip(skip *backtest.SkipError) error {
	if skip == nil {
		return fmt.Errorf("nil skip")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.claim(skip.Key); err != nil {
		return err
	}
	a.skipped[skip.Key] = skip
	return nil
}

func (a *Aggregator) claim(key string) error {
	if _, ok := a.results[key]; ok {
		return fmt.Errorf("duplicate result for %s", key)
	}
	if _, ok := a.skipped[key]; ok {
		return fmt.Errorf("duplicate result for %s", key)
	}
	a.order = append(a.order, key)
	return nil
}

// AddBatch stores every outcome of a batch in batch order.
func (a *Aggregator) AddBatch(batch *backtest.Batch) error {
	for _, key := range batch.Keys {
		if res, ok := batch.Results[key]; ok {
			if err := a.Add(res); err != nil {
				return err
			}
			continue
		}
		if err := a.Skip(batch.Skipped[key]); err != nil {
			return err
		}
	}
	return nil
}

// Result returns the result stored under key.
func (a *Aggregator) Result(key string) (*backtest.Result, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	res, ok := a.results[key]
	return res, ok
}

// Keys returns the keys of stored results in insertion order.
func (a *Aggregator) Keys() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	keys := make([]string, 0, len(a.results))
	for _, key := range a.order {
		if _, ok := a.results[key]; ok {
			keys = append(keys, key)
		}
	}
	return keys
}

// Rows returns one row per stored result in insertion order.
func (a *Aggregator) Rows() []Row {
	a.mu.Lock()
	defer a.mu.Unlock()
	rows := make([]Row, 0, len(a.results))
	for _, key := range a.order {
		if res, ok := a.results[key]; ok {
			rows = append(rows, NewRow(res))
		}
	}
	return rows
}

// Skipped returns the skipped combinations in insertion order.
func (a *Aggregator) Skipped() []*backtest.SkipError {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*backtest.SkipError, 0, len(a.skipped))
	for _, key := range a.order {
		if s, ok := a.skipped[key]; ok {
			out = append(out, s)
		}
	}
	return out
}

// Summary computes statistics over every stored result. Ties for best and
// worst go to the key stored first.
func (a *Aggregator) Summary() Summary {
	rows := a.Rows()
	s := Summary{Results: len(rows), Skipped: len(a.Skipped())}
	if len(rows) == 0 {
		return s
	}

	equity := make([]float64, len(rows))
	sharpe := make([]float64, len(rows))
	s.BestKey, s.BestFinalEquity = rows[0].Key, rows[0].FinalEquity
	s.WorstKey, s.WorstFinalEquity = rows[0].Key, rows[0].FinalEquity
	for i, r := range rows {
		equity[i] = r.FinalEquity
		sharpe[i] = r.SharpeRatio
		s.TotalTrades += r.TotalTrades
		if r.FinalEquity > s.BestFinalEquity {
			s.BestKey, s.BestFinalEquity = r.Key, r.FinalEquity
		}
		if r.FinalEquity < s.WorstFinalEquity {
			s.WorstKey, s.WorstFinalEquity = r.Key, r.FinalEquity
		}
	}
	s.MeanFinalEquity = stat.Mean(equity, nil)
	s.MeanSharpe = stat.Mean(sharpe, nil)
	sort.Float64s(equity)
	s.MedianFinalEquity = stat.Quantile(0.5, stat.Empirical, equity, nil)
	return s
}
