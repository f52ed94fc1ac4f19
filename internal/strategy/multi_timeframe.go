package strategy

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/ajitpratap0/mtfbacktest/internal/align"
	"github.com/ajitpratap0/mtfbacktest/internal/indicators"
	"github.com/ajitpratap0/mtfbacktest/pkg/backtest"
	"github.com/ajitpratap0/mtfbacktest/pkg/market"
)

// MultiTimeframeName is the registry name of the multi-timeframe strategy.
const MultiTimeframeName = "MultiTimeframe"

// MultiTimeframe requires a higher-timeframe trend change and a
// primary-timeframe crossover in the same direction on the same bar.
func MultiTimeframe() Definition {
	return Definition{
		Name:                       MultiTimeframeName,
		Description:                "Higher-timeframe MA trend confirmed by a primary-timeframe MA crossover",
		RequiresMultipleTimeframes: true,
		Params: withBase(
			ParamSpec{Name: "higher_tf_short_ma", Kind: KindInt, Default: 5, Prompt: "Enter higher timeframe short MA window (e.g., 5): ", Optimizable: true, Min: minOf(1)},
			ParamSpec{Name: "higher_tf_long_ma", Kind: KindInt, Default: 10, Prompt: "Enter higher timeframe long MA window (e.g., 10): ", Optimizable: true, Min: minOf(1)},
			ParamSpec{Name: "current_tf_short_ma", Kind: KindInt, Default: 3, Prompt: "Enter current timeframe short MA window (e.g., 3): ", Optimizable: true, Min: minOf(1)},
			ParamSpec{Name: "current_tf_long_ma", Kind: KindInt, Default: 7, Prompt: "Enter current timeframe long MA window (e.g., 7): ", Optimizable: true, Min: minOf(1)},
			ParamSpec{Name: ParamPrimaryTimeframe, Kind: KindTimeframe, Default: "5m", Prompt: "Enter primary timeframe (e.g., 5m): "},
			ParamSpec{Name: ParamHigherTimeframe, Kind: KindTimeframe, Default: "1H", Prompt: "Enter higher timeframe (e.g., 1H): "},
			ParamSpec{Name: ParamStopLoss, Kind: KindFloat, Default: 2.0, Prompt: "Enter stop-loss percentage (e.g., 2): ", Optimizable: true, Min: minOf(0)},
			ParamSpec{Name: ParamTakeProfit, Kind: KindFloat, Default: 4.0, Prompt: "Enter take-profit percentage (e.g., 4): ", Optimizable: true, Min: minOf(0)},
		),
		New: newMultiTimeframe,
	}
}

type multiTimeframe struct {
	cfg    Config
	logger zerolog.Logger

	timestamps   []time.Time
	close        []float64
	currentShort []float64
	currentLong  []float64

	cursor      *align.Cursor
	higherShort []float64
	higherLong  []float64
	trend       trendTracker
}

func newMultiTimeframe(cfg Config, logger zerolog.Logger) (Strategy, error) {
	return &multiTimeframe{cfg: cfg, logger: logger}, nil
}

func (m *multiTimeframe) Initialize(primary, higher *market.Frame) error {
	if err := requireColumns(MultiTimeframeName, "primary", primary, market.ColumnClose); err != nil {
		return err
	}
	if err := requireColumns(MultiTimeframeName, ParamHigherTimeframe, higher, market.ColumnClose); err != nil {
		return err
	}

	m.timestamps = primary.Timestamps
	m.close, _ = primary.Column(market.ColumnClose)
	m.currentShort = indicators.SMA(m.close, m.cfg.Int("current_tf_short_ma"))
	m.currentLong = indicators.SMA(m.close, m.cfg.Int("current_tf_long_ma"))

	higherClose, _ := higher.Column(market.ColumnClose)
	m.higherShort = indicators.SMA(higherClose, m.cfg.Int("higher_tf_short_ma"))
	m.higherLong = indicators.SMA(higherClose, m.cfg.Int("higher_tf_long_ma"))
	m.cursor = align.NewCursor(higher.Timestamps)
	m.trend = trendTracker{}

	m.logger.Debug().
		Int("primary_bars", primary.Len()).
		Int("higher_bars", higher.Len()).
		Msg("Initialized multi-timeframe indicators")
	return nil
}

func (m *multiTimeframe) Evaluate(i int) (backtest.Signal, error) {
	ts := m.timestamps[i]
	j := m.cursor.Seek(ts)
	if !m.cursor.Ready(ts) {
		return backtest.None(), nil
	}

	short, long := m.higherShort[j], m.higherLong[j]
	if !indicators.Defined(short, long) {
		return backtest.None(), nil
	}
	bullish, bearish := m.trend.update(short, long)

	price := m.close[i]
	sl, tp := m.cfg.Float(ParamStopLoss), m.cfg.Float(ParamTakeProfit)

	var kind backtest.SignalKind
	switch {
	case bullish && indicators.Crossover(m.currentShort, m.currentLong, i):
		kind = backtest.SignalBuy
	case bearish && indicators.Crossover(m.currentLong, m.currentShort, i):
		kind = backtest.SignalSell
	default:
		return backtest.None(), nil
	}

	sig, ok := Bracket(kind, price, sl, tp)
	if !ok {
		return backtest.None(), nil
	}
	sig.Reason = "trend_confirmed_crossover"
	return sig, nil
}
