package optimization

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/mtfbacktest/internal/strategy"
	"github.com/ajitpratap0/mtfbacktest/pkg/market"
)

var errBoom = errors.New("boom")

// fakeEval scores parameter sets without running a backtest.
type fakeEval struct {
	calls atomic.Int64
	fn    func(ps strategy.ParameterSet, data market.Timeframes) (map[string]float64, error)
}

func (f *fakeEval) eval(_ context.Context, ps strategy.ParameterSet, data market.Timeframes) (map[string]float64, error) {
	f.calls.Add(1)
	return f.fn(ps, data)
}

// linear rewards a wide take-profit and a tight stop-loss.
func linear(ps strategy.ParameterSet, _ market.Timeframes) (map[string]float64, error) {
	tp, _ := ps.Float("tp_percent")
	sl, _ := ps.Float("sl_percent")
	return map[string]float64{
		"final_equity":     100000 + 1000*tp - 500*sl,
		"max_drawdown_pct": 2 * sl,
		"sharpe_ratio":     tp / sl,
	}, nil
}

func newFake(fn func(strategy.ParameterSet, market.Timeframes) (map[string]float64, error)) *fakeEval {
	return &fakeEval{fn: fn}
}

func newTestOptimizer(f *fakeEval, opts Options) *Optimizer {
	return NewOptimizer(f.eval, opts, nil, zerolog.Nop())
}

func tpSlSpace(t *testing.T) *Space {
	t.Helper()
	space, err := NewSpace(
		Dimension{Name: "tp_percent", Values: []any{5, 10}},
		Dimension{Name: "sl_percent", Values: []any{2, 4}},
	)
	require.NoError(t, err)
	return space
}

func finalEquity(t *testing.T) Objective {
	t.Helper()
	obj, err := NewObjective("final_equity", Maximize)
	require.NoError(t, err)
	return obj
}

func rampData(t *testing.T, n int) market.Timeframes {
	t.Helper()
	tf := market.MustParseTimeframe("5m")
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]market.Bar, n)
	for i := range bars {
		c := 100 + float64(i)
		bars[i] = market.Bar{
			Timestamp: start.Add(time.Duration(i) * tf.Duration()),
			Open:      c, High: c + 1, Low: c - 1, Close: c, Volume: 1,
		}
	}
	f, err := market.FromBars("BTC", tf, bars)
	require.NoError(t, err)
	return market.Timeframes{tf.String(): f}
}
