package backtest

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/mtfbacktest/internal/strategy"
	btengine "github.com/ajitpratap0/mtfbacktest/pkg/backtest"
	"github.com/ajitpratap0/mtfbacktest/pkg/market"
)

// sineFrame builds a frame whose close oscillates so moving averages cross.
func sineFrame(t *testing.T, asset, tf string, n int) *market.Frame {
	t.Helper()
	timeframe := market.MustParseTimeframe(tf)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]market.Bar, n)
	for i := range bars {
		c := 100 + 10*math.Sin(float64(i)/6)
		bars[i] = market.Bar{
			Timestamp: start.Add(time.Duration(i) * timeframe.Duration()),
			Open:      c,
			High:      c + 0.5,
			Low:       c - 0.5,
			Close:     c,
			Volume:    1,
		}
	}
	f, err := market.FromBars(asset, timeframe, bars)
	require.NoError(t, err)
	return f
}

func testDataset(t *testing.T) market.Dataset {
	t.Helper()
	ds := market.Dataset{}
	ds.Add(sineFrame(t, "BTC", "5m", 400))
	ds.Add(sineFrame(t, "ETH", "5m", 400))
	higher := sineFrame(t, "BTC", "1H", 40)
	require.NoError(t, market.WithSupportResistance(higher, 5))
	ds.Add(higher)
	return ds
}

type countingRecorder struct {
	mu       sync.Mutex
	outcomes map[string]int
}

func (r *countingRecorder) ObserveBacktest(outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.outcomes == nil {
		r.outcomes = make(map[string]int)
	}
	r.outcomes[outcome]++
}

type failingStrategy struct{}

func (failingStrategy) Initialize(_, _ *market.Frame) error { return nil }

func (failingStrategy) Evaluate(i int) (btengine.Signal, error) {
	if i == 3 {
		return btengine.None(), errors.New("indicator blew up")
	}
	return btengine.None(), nil
}

func failingDefinition() strategy.Definition {
	return strategy.Definition{
		Name: "Failing",
		Params: []strategy.ParamSpec{
			{Name: strategy.ParamPrimaryTimeframe, Kind: strategy.KindTimeframe, Default: "5m"},
		},
		New: func(strategy.Config, zerolog.Logger) (strategy.Strategy, error) {
			return failingStrategy{}, nil
		},
	}
}

func newTestRunner(opts Options, rec Recorder) *Runner {
	cfg := btengine.DefaultConfig()
	cfg.InitialCapital = 10000
	return NewRunner(cfg, opts, rec, zerolog.Nop())
}

func TestRunner_Run(t *testing.T) {
	runner := newTestRunner(Options{}, nil)
	ds := testDataset(t)

	res, err := runner.Run(context.Background(), strategy.Momentum(), strategy.ParameterSet{"short_window": 5, "long_window": 20}, "BTC", ds["BTC"])
	require.NoError(t, err)

	assert.Equal(t, "Momentum_BTC", res.Key)
	assert.Equal(t, "BTC", res.Asset)
	assert.Equal(t, 5, res.Params["short_window"])
	require.NotNil(t, res.Metrics())
	assert.NotEmpty(t, res.Output.Trades)
	assert.Len(t, res.Output.EquityCurve, 400)
}

func TestRunner_Skips(t *testing.T) {
	ds := testDataset(t)

	tests := []struct {
		name   string
		def    strategy.Definition
		params strategy.ParameterSet
		asset  string
		reason Reason
	}{
		{"missing primary", strategy.Momentum(), strategy.ParameterSet{"primary_tf": "15m"}, "BTC", ReasonNoData},
		{"unknown asset", strategy.Momentum(), nil, "SOL", ReasonNoData},
		{"unknown parameter", strategy.Momentum(), strategy.ParameterSet{"window": 3}, "BTC", ReasonBadConfiguration},
		{"missing higher", strategy.MultiTimeframe(), nil, "ETH", ReasonNoData},
		{"breakout without higher", strategy.Breakout(), nil, "ETH", ReasonNoData},
		{"evaluation error", failingDefinition(), nil, "BTC", ReasonEvaluationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &countingRecorder{}
			runner := newTestRunner(Options{}, rec)

			res, err := runner.Run(context.Background(), tt.def, tt.params, tt.asset, ds[tt.asset])
			assert.Nil(t, res)

			var skip *SkipError
			require.True(t, errors.As(err, &skip), "got %v", err)
			assert.Equal(t, tt.reason, skip.Reason)
			assert.Equal(t, Key(tt.def.Name, tt.asset), skip.Key)
			assert.Equal(t, 1, rec.outcomes[string(tt.reason)])
		})
	}
}

func TestRunner_BreakoutMissingLevelsIsBadConfiguration(t *testing.T) {
	ds := market.Dataset{}
	ds.Add(sineFrame(t, "BTC", "5m", 100))
	ds.Add(sineFrame(t, "BTC", "1H", 10))

	_, err := newTestRunner(Options{}, nil).Run(context.Background(), strategy.Breakout(), nil, "BTC", ds["BTC"])

	var skip *SkipError
	require.True(t, errors.As(err, &skip))
	assert.Equal(t, ReasonBadConfiguration, skip.Reason)
	assert.True(t, strategy.IsConfigurationError(err))
}

func TestRunner_MultiTimeframe(t *testing.T) {
	ds := testDataset(t)
	runner := newTestRunner(Options{}, nil)

	res, err := runner.Run(context.Background(), strategy.Breakout(), strategy.ParameterSet{"higher_tf_short_ma": 2, "higher_tf_long_ma": 4}, "BTC", ds["BTC"])
	require.NoError(t, err)
	assert.Equal(t, "Breakout_BTC", res.Key)
}

func TestRunner_RunAll(t *testing.T) {
	ds := testDataset(t)
	defs := []strategy.Definition{strategy.Momentum(), strategy.MultiTimeframe()}
	params := map[string]strategy.ParameterSet{
		strategy.MomentumName: {"short_window": 5, "long_window": 20},
	}
	jobs := Jobs(defs, params, ds.Assets())
	require.Len(t, jobs, 4)

	sequential, err := newTestRunner(Options{}, nil).RunAll(context.Background(), jobs, ds)
	require.NoError(t, err)

	rec := &countingRecorder{}
	concurrent, err := newTestRunner(Options{Concurrent: true, Workers: 3}, rec).RunAll(context.Background(), jobs, ds)
	require.NoError(t, err)

	want := []string{"Momentum_BTC", "Momentum_ETH", "MultiTimeframe_BTC", "MultiTimeframe_ETH"}
	assert.Equal(t, want, sequential.Keys)
	assert.Equal(t, want, concurrent.Keys)

	for _, batch := range []*Batch{sequential, concurrent} {
		assert.Len(t, batch.Results, 3)
		require.Contains(t, batch.Skipped, "MultiTimeframe_ETH")
		assert.Equal(t, ReasonNoData, batch.Skipped["MultiTimeframe_ETH"].Reason)
	}
	for _, key := range []string{"Momentum_BTC", "Momentum_ETH", "MultiTimeframe_BTC"} {
		assert.Equal(t, sequential.Results[key].Output.FinalEquity, concurrent.Results[key].Output.FinalEquity, key)
	}
	assert.Equal(t, 3, rec.outcomes["completed"])
	assert.Equal(t, 1, rec.outcomes[string(ReasonNoData)])
}

func TestRunner_RunAllRunsEachKeyOnce(t *testing.T) {
	ds := testDataset(t)
	rec := &countingRecorder{}
	jobs := []Job{
		{Definition: strategy.Momentum(), Asset: "BTC"},
		{Definition: strategy.Momentum(), Asset: "BTC", Params: strategy.ParameterSet{"short_window": 3}},
	}

	batch, err := newTestRunner(Options{Concurrent: true}, rec).RunAll(context.Background(), jobs, ds)
	require.NoError(t, err)

	assert.Equal(t, []string{"Momentum_BTC"}, batch.Keys)
	assert.Equal(t, 1, rec.outcomes["completed"])
	assert.Equal(t, 20, batch.Results["Momentum_BTC"].Params["short_window"])
}

func TestRunner_RunAllCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ds := testDataset(t)
	jobs := Jobs([]strategy.Definition{strategy.Momentum()}, nil, ds.Assets())
	_, err := newTestRunner(Options{}, nil).RunAll(ctx, jobs, ds)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReason_String(t *testing.T) {
	assert.Equal(t, "no data", ReasonNoData.String())
	assert.Equal(t, "bad configuration", ReasonBadConfiguration.String())
	assert.Equal(t, "evaluation failed", ReasonEvaluationFailed.String())
}
