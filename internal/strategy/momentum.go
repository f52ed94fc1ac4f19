package strategy

import (
	"github.com/rs/zerolog"

	"github.com/ajitpratap0/mtfbacktest/internal/indicators"
	"github.com/ajitpratap0/mtfbacktest/pkg/backtest"
	"github.com/ajitpratap0/mtfbacktest/pkg/market"
)

// MomentumName is the registry name of the momentum strategy.
const MomentumName = "Momentum"

// Momentum trades short/long moving average crossovers on the primary
// timeframe.
func Momentum() Definition {
	return Definition{
		Name:        MomentumName,
		Description: "Moving average crossover on the primary timeframe",
		Params: withBase(
			ParamSpec{Name: "short_window", Kind: KindInt, Default: 20, Prompt: "Enter short moving average window (e.g., 20): ", Optimizable: true, Min: minOf(1)},
			ParamSpec{Name: "long_window", Kind: KindInt, Default: 100, Prompt: "Enter long moving average window (e.g., 100): ", Optimizable: true, Min: minOf(1)},
			ParamSpec{Name: ParamPrimaryTimeframe, Kind: KindTimeframe, Default: "5m", Prompt: "Enter primary timeframe (e.g., 5m): "},
			ParamSpec{Name: ParamStopLoss, Kind: KindFloat, Default: 2.0, Prompt: "Enter stop-loss percentage (e.g., 2): ", Optimizable: true, Min: minOf(0)},
			ParamSpec{Name: ParamTakeProfit, Kind: KindFloat, Default: 4.0, Prompt: "Enter take-profit percentage (e.g., 4): ", Optimizable: true, Min: minOf(0)},
			ParamSpec{Name: "ma_type", Kind: KindString, Default: "sma", Prompt: "Enter moving average type (sma or ema): ", Choices: []string{"sma", "ema"}},
		),
		New: newMomentum,
	}
}

type momentum struct {
	cfg    Config
	logger zerolog.Logger

	close []float64
	short []float64
	long  []float64
}

func newMomentum(cfg Config, logger zerolog.Logger) (Strategy, error) {
	return &momentum{cfg: cfg, logger: logger}, nil
}

func (m *momentum) Initialize(primary, _ *market.Frame) error {
	if err := requireColumns(MomentumName, "primary", primary, market.ColumnClose); err != nil {
		return err
	}
	m.close, _ = primary.Column(market.ColumnClose)
	kind := m.cfg.String("ma_type")
	m.short = indicators.MovingAverage(kind, m.close, m.cfg.Int("short_window"))
	m.long = indicators.MovingAverage(kind, m.close, m.cfg.Int("long_window"))

	m.logger.Debug().
		Int("short_window", m.cfg.Int("short_window")).
		Int("long_window", m.cfg.Int("long_window")).
		Str("ma_type", kind).
		Msg("Initialized moving averages")
	return nil
}

func (m *momentum) Evaluate(i int) (backtest.Signal, error) {
	if !indicators.Defined(m.short[i], m.long[i]) {
		return backtest.None(), nil
	}

	var kind backtest.SignalKind
	switch {
	case indicators.Crossover(m.short, m.long, i):
		kind = backtest.SignalBuy
	case indicators.Crossover(m.long, m.short, i):
		kind = backtest.SignalSell
	default:
		return backtest.None(), nil
	}

	sig, ok := Bracket(kind, m.close[i], m.cfg.Float(ParamStopLoss), m.cfg.Float(ParamTakeProfit))
	if !ok {
		return backtest.None(), nil
	}
	sig.Reason = "ma_crossover"
	return sig, nil
}
