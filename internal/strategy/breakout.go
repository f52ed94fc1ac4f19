package strategy

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/ajitpratap0/mtfbacktest/internal/align"
	"github.com/ajitpratap0/mtfbacktest/internal/indicators"
	"github.com/ajitpratap0/mtfbacktest/pkg/backtest"
	"github.com/ajitpratap0/mtfbacktest/pkg/market"
)

// BreakoutName is the registry name of the breakout strategy.
const BreakoutName = "Breakout"

// Breakout buys a close above the higher-timeframe resistance while the
// higher-timeframe trend turns bullish, and sells a close below support
// while it turns bearish.
func Breakout() Definition {
	return Definition{
		Name:                       BreakoutName,
		Description:                "Primary close breaking higher-timeframe support/resistance in the direction of a higher-timeframe MA crossover",
		RequiresMultipleTimeframes: true,
		Params: withBase(
			ParamSpec{Name: ParamTakeProfit, Kind: KindFloat, Default: 14.0, Prompt: "Enter take-profit percentage (e.g., 14): ", Optimizable: true, Min: minOf(0)},
			ParamSpec{Name: ParamStopLoss, Kind: KindFloat, Default: 7.0, Prompt: "Enter stop-loss percentage (e.g., 7): ", Optimizable: true, Min: minOf(0)},
			ParamSpec{Name: "higher_tf_short_ma", Kind: KindInt, Default: 20, Prompt: "Enter higher_tf_short_ma (e.g., 20): ", Optimizable: true, Min: minOf(1)},
			ParamSpec{Name: "higher_tf_long_ma", Kind: KindInt, Default: 50, Prompt: "Enter higher_tf_long_ma (e.g., 50): ", Optimizable: true, Min: minOf(1)},
			ParamSpec{Name: ParamPrimaryTimeframe, Kind: KindTimeframe, Default: "5m", Prompt: "Enter primary timeframe (e.g., 5m): "},
			ParamSpec{Name: ParamHigherTimeframe, Kind: KindTimeframe, Default: "1H", Prompt: "Enter higher timeframe (e.g., 1H): "},
		),
		New: newBreakout,
	}
}

type breakout struct {
	cfg    Config
	logger zerolog.Logger

	timestamps []time.Time
	close      []float64

	cursor      *align.Cursor
	higherShort []float64
	higherLong  []float64
	support     []float64
	resistance  []float64
	trend       trendTracker
}

func newBreakout(cfg Config, logger zerolog.Logger) (Strategy, error) {
	return &breakout{cfg: cfg, logger: logger}, nil
}

func (b *breakout) Initialize(primary, higher *market.Frame) error {
	if err := requireColumns(BreakoutName, "primary", primary, market.ColumnClose); err != nil {
		return err
	}
	if err := requireColumns(BreakoutName, ParamHigherTimeframe, higher, market.ColumnClose, market.ColumnSupport, market.ColumnResistance); err != nil {
		return err
	}

	b.timestamps = primary.Timestamps
	b.close, _ = primary.Column(market.ColumnClose)

	higherClose, _ := higher.Column(market.ColumnClose)
	b.higherShort = indicators.SMA(higherClose, b.cfg.Int("higher_tf_short_ma"))
	b.higherLong = indicators.SMA(higherClose, b.cfg.Int("higher_tf_long_ma"))
	b.support, _ = higher.Column(market.ColumnSupport)
	b.resistance, _ = higher.Column(market.ColumnResistance)
	b.cursor = align.NewCursor(higher.Timestamps)
	b.trend = trendTracker{}

	b.logger.Debug().
		Int("primary_bars", primary.Len()).
		Int("higher_bars", higher.Len()).
		Msg("Initialized higher timeframe indicators")
	return nil
}

func (b *breakout) Evaluate(i int) (backtest.Signal, error) {
	ts := b.timestamps[i]
	j := b.cursor.Seek(ts)
	if !b.cursor.Ready(ts) {
		return backtest.None(), nil
	}

	short, long := b.higherShort[j], b.higherLong[j]
	if !indicators.Defined(short, long) {
		return backtest.None(), nil
	}
	bullish, bearish := b.trend.update(short, long)

	price := b.close[i]
	sl, tp := b.cfg.Float(ParamStopLoss), b.cfg.Float(ParamTakeProfit)

	if bullish && price > b.resistance[j] {
		if sig, ok := Bracket(backtest.SignalBuy, price, sl, tp); ok {
			sig.Reason = "resistance_breakout"
			return sig, nil
		}
	}
	if bearish && price < b.support[j] {
		if sig, ok := Bracket(backtest.SignalSell, price, sl, tp); ok {
			sig.Reason = "support_breakdown"
			return sig, nil
		}
	}
	return backtest.None(), nil
}
