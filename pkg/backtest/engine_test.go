// Backtest Engine Unit Tests
package backtest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/mtfbacktest/pkg/market"
)

// ============================================================================
// TEST HELPERS
// ============================================================================

type scriptedStrategy struct {
	signals     map[int]Signal
	failAt      int
	initErr     error
	initialized bool
	finalized   bool
	calls       int
}

func (s *scriptedStrategy) Initialize(data *market.Frame) error {
	s.initialized = true
	return s.initErr
}

func (s *scriptedStrategy) GenerateSignal(index int) (Signal, error) {
	s.calls++
	if s.failAt > 0 && index == s.failAt {
		return None(), errors.New("boom")
	}
	if sig, ok := s.signals[index]; ok {
		return sig, nil
	}
	return None(), nil
}

func (s *scriptedStrategy) Finalize() error {
	s.finalized = true
	return nil
}

// testFrame builds a frame from close prices, with open equal to the previous
// close and high/low taken from the optional overrides.
func testFrame(t *testing.T, closes []float64, highs, lows map[int]float64) *market.Frame {
	t.Helper()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]market.Bar, len(closes))
	for i, c := range closes {
		open := c
		if i > 0 {
			open = closes[i-1]
		}
		high, low := max(open, c), min(open, c)
		if h, ok := highs[i]; ok {
			high = h
		}
		if l, ok := lows[i]; ok {
			low = l
		}
		bars[i] = market.Bar{
			Timestamp: start.Add(time.Duration(i) * time.Minute),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     c,
			Volume:    1,
		}
	}
	f, err := market.FromBars("BTC", market.MustParseTimeframe("1m"), bars)
	require.NoError(t, err)
	return f
}

func zeroCommission() Config {
	cfg := DefaultConfig()
	cfg.InitialCapital = 1000
	cfg.CommissionRate = 0
	return cfg
}

func buy(sl, tp float64) Signal {
	return Signal{Kind: SignalBuy, StopLoss: sl, TakeProfit: tp}
}

func sell(sl, tp float64) Signal {
	return Signal{Kind: SignalSell, StopLoss: sl, TakeProfit: tp}
}

// ============================================================================
// ENGINE TESTS
// ============================================================================

func TestEngine_NoSignals(t *testing.T) {
	engine := NewEngine(zeroCommission(), zerolog.Nop())
	strategy := &scriptedStrategy{}

	out, err := engine.Run(context.Background(), testFrame(t, []float64{100, 101, 102}, nil, nil), strategy)
	require.NoError(t, err)

	assert.True(t, strategy.initialized)
	assert.True(t, strategy.finalized)
	assert.Equal(t, 3, strategy.calls)
	assert.Equal(t, 1000.0, out.FinalEquity)
	assert.Empty(t, out.Trades)
	assert.Len(t, out.EquityCurve, 3)
	require.NotNil(t, out.Metrics)
	assert.Equal(t, 0, out.Metrics.TotalTrades)
}

func TestEngine_TakeProfit(t *testing.T) {
	engine := NewEngine(zeroCommission(), zerolog.Nop())
	frame := testFrame(t, []float64{100, 100, 100, 100}, map[int]float64{2: 106}, nil)
	strategy := &scriptedStrategy{signals: map[int]Signal{1: buy(90, 105)}}

	out, err := engine.Run(context.Background(), frame, strategy)
	require.NoError(t, err)

	require.Len(t, out.Trades, 1)
	trade := out.Trades[0]
	assert.Equal(t, "LONG", trade.Side)
	assert.Equal(t, ExitTakeProfit, trade.ExitReason)
	assert.Equal(t, 1, trade.EntryBar)
	assert.Equal(t, 2, trade.ExitBar)
	assert.InDelta(t, 105.0, trade.ExitPrice, 1e-9)
	assert.InDelta(t, 50.0, trade.RealizedPL, 1e-9)
	assert.InDelta(t, 5.0, trade.ReturnPct, 1e-9)
	assert.InDelta(t, 1050.0, out.FinalEquity, 1e-9)
}

func TestEngine_StopLossWinsWhenBothTouched(t *testing.T) {
	engine := NewEngine(zeroCommission(), zerolog.Nop())
	frame := testFrame(t, []float64{100, 100, 100}, map[int]float64{2: 106}, map[int]float64{2: 94})
	strategy := &scriptedStrategy{signals: map[int]Signal{1: buy(95, 105)}}

	out, err := engine.Run(context.Background(), frame, strategy)
	require.NoError(t, err)

	require.Len(t, out.Trades, 1)
	assert.Equal(t, ExitStopLoss, out.Trades[0].ExitReason)
	assert.InDelta(t, 950.0, out.FinalEquity, 1e-9)
}

func TestEngine_BracketsNotCheckedOnEntryBar(t *testing.T) {
	engine := NewEngine(zeroCommission(), zerolog.Nop())
	frame := testFrame(t, []float64{100, 100, 100}, map[int]float64{1: 120}, nil)
	strategy := &scriptedStrategy{signals: map[int]Signal{1: buy(90, 105)}}

	out, err := engine.Run(context.Background(), frame, strategy)
	require.NoError(t, err)

	require.Len(t, out.Trades, 1)
	assert.Equal(t, ExitEndOfData, out.Trades[0].ExitReason)
}

func TestEngine_ShortTakeProfit(t *testing.T) {
	engine := NewEngine(zeroCommission(), zerolog.Nop())
	frame := testFrame(t, []float64{100, 100, 100}, nil, map[int]float64{2: 94})
	strategy := &scriptedStrategy{signals: map[int]Signal{1: sell(105, 95)}}

	out, err := engine.Run(context.Background(), frame, strategy)
	require.NoError(t, err)

	require.Len(t, out.Trades, 1)
	assert.Equal(t, "SHORT", out.Trades[0].Side)
	assert.Equal(t, ExitTakeProfit, out.Trades[0].ExitReason)
	assert.InDelta(t, 1050.0, out.FinalEquity, 1e-9)
}

func TestEngine_ExclusiveOrders(t *testing.T) {
	closes := []float64{100, 100, 105, 110, 100}
	signals := map[int]Signal{1: buy(0, 0), 3: sell(0, 0)}

	t.Run("exclusive reverses", func(t *testing.T) {
		engine := NewEngine(zeroCommission(), zerolog.Nop())
		out, err := engine.Run(context.Background(), testFrame(t, closes, nil, nil), &scriptedStrategy{signals: signals})
		require.NoError(t, err)

		require.Len(t, out.Trades, 2)
		assert.Equal(t, ExitSignal, out.Trades[0].ExitReason)
		assert.InDelta(t, 100.0, out.Trades[0].RealizedPL, 1e-9)
		assert.Equal(t, "SHORT", out.Trades[1].Side)
		assert.Equal(t, ExitEndOfData, out.Trades[1].ExitReason)
		assert.InDelta(t, 1200.0, out.FinalEquity, 1e-9)
	})

	t.Run("non-exclusive ignores", func(t *testing.T) {
		cfg := zeroCommission()
		cfg.ExclusiveOrders = false
		engine := NewEngine(cfg, zerolog.Nop())
		out, err := engine.Run(context.Background(), testFrame(t, closes, nil, nil), &scriptedStrategy{signals: signals})
		require.NoError(t, err)

		require.Len(t, out.Trades, 1)
		assert.Equal(t, "LONG", out.Trades[0].Side)
		assert.InDelta(t, 1000.0, out.FinalEquity, 1e-9)
	})
}

func TestEngine_Commission(t *testing.T) {
	cfg := zeroCommission()
	cfg.CommissionRate = 0.001
	engine := NewEngine(cfg, zerolog.Nop())
	strategy := &scriptedStrategy{signals: map[int]Signal{0: buy(0, 0)}}

	out, err := engine.Run(context.Background(), testFrame(t, []float64{100, 100}, nil, nil), strategy)
	require.NoError(t, err)

	require.Len(t, out.Trades, 1)
	qty := 1000.0 / (100 * 1.001)
	assert.InDelta(t, qty, out.Trades[0].Quantity, 1e-9)
	assert.InDelta(t, 1000-2*qty*100*0.001, out.FinalEquity, 1e-9)
	assert.InDelta(t, 2*qty*100*0.001, out.Trades[0].Commission, 1e-9)
}

func TestEngine_FixedSizing(t *testing.T) {
	cfg := zeroCommission()
	cfg.PositionSizing = SizingFixed
	cfg.PositionSize = 200
	engine := NewEngine(cfg, zerolog.Nop())
	strategy := &scriptedStrategy{signals: map[int]Signal{0: buy(0, 0)}}

	out, err := engine.Run(context.Background(), testFrame(t, []float64{100, 110}, nil, nil), strategy)
	require.NoError(t, err)

	require.Len(t, out.Trades, 1)
	assert.InDelta(t, 2.0, out.Trades[0].Quantity, 1e-9)
	assert.InDelta(t, 1020.0, out.FinalEquity, 1e-9)
}

func TestEngine_EquityCurveMarksOpenPosition(t *testing.T) {
	engine := NewEngine(zeroCommission(), zerolog.Nop())
	strategy := &scriptedStrategy{signals: map[int]Signal{0: buy(0, 0)}}

	out, err := engine.Run(context.Background(), testFrame(t, []float64{100, 90, 120}, nil, nil), strategy)
	require.NoError(t, err)

	require.Len(t, out.EquityCurve, 3)
	assert.InDelta(t, 1000.0, out.EquityCurve[0].Equity, 1e-9)
	assert.InDelta(t, 900.0, out.EquityCurve[1].Equity, 1e-9)
	assert.InDelta(t, 1200.0, out.EquityCurve[2].Equity, 1e-9)
	assert.InDelta(t, 1200.0, out.EquityCurve[2].Cash, 1e-9)
}

func TestEngine_StrategyError(t *testing.T) {
	engine := NewEngine(zeroCommission(), zerolog.Nop())
	_, err := engine.Run(context.Background(), testFrame(t, []float64{1, 2, 3}, nil, nil), &scriptedStrategy{failAt: 2})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "bar 2")
}

func TestEngine_InitializeError(t *testing.T) {
	engine := NewEngine(zeroCommission(), zerolog.Nop())
	initErr := errors.New("bad columns")
	_, err := engine.Run(context.Background(), testFrame(t, []float64{1, 2}, nil, nil), &scriptedStrategy{initErr: initErr})

	assert.ErrorIs(t, err, initErr)
}

func TestEngine_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	engine := NewEngine(zeroCommission(), zerolog.Nop())
	_, err := engine.Run(ctx, testFrame(t, []float64{1, 2}, nil, nil), &scriptedStrategy{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default", func(*Config) {}, false},
		{"zero capital", func(c *Config) { c.InitialCapital = 0 }, true},
		{"negative commission", func(c *Config) { c.CommissionRate = -0.1 }, true},
		{"unknown sizing", func(c *Config) { c.PositionSizing = "martingale" }, true},
		{"zero fixed size", func(c *Config) { c.PositionSizing = SizingFixed; c.PositionSize = 0 }, true},
		{"kelly", func(c *Config) { c.PositionSizing = SizingKelly }, false},
		{"kelly fraction too big", func(c *Config) { c.PositionSizing = SizingKelly; c.KellyFraction = 2 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if tt.wantErr {
				assert.Error(t, cfg.Validate())
			} else {
				assert.NoError(t, cfg.Validate())
			}
		})
	}
}
