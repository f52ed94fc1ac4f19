// Package backtest provides the bar-by-bar execution engine that strategies
// are simulated on.
package backtest

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/ajitpratap0/mtfbacktest/pkg/market"
)

// ============================================================================
// DATA STRUCTURES
// ============================================================================

// SignalKind is the action requested by a strategy for one bar.
type SignalKind int

const (
	SignalNone SignalKind = iota
	SignalBuy
	SignalSell
)

func (k SignalKind) String() string {
	switch k {
	case SignalBuy:
		return "BUY"
	case SignalSell:
		return "SELL"
	default:
		return "NONE"
	}
}

// Signal is produced fresh every bar. Prices are only meaningful when Kind is
// not SignalNone.
type Signal struct {
	Kind       SignalKind `json:"kind"`
	Timestamp  time.Time  `json:"timestamp"`
	Entry      float64    `json:"entry"`
	StopLoss   float64    `json:"stop_loss"`
	TakeProfit float64    `json:"take_profit"`
	Reason     string     `json:"reason,omitempty"`
}

// None returns a hold signal.
func None() Signal {
	return Signal{Kind: SignalNone}
}

// Position represents an open trading position
type Position struct {
	Side       string    `json:"side"` // "LONG", "SHORT"
	EntryBar   int       `json:"entry_bar"`
	EntryTime  time.Time `json:"entry_time"`
	EntryPrice float64   `json:"entry_price"`
	Quantity   float64   `json:"quantity"`
	StopLoss   float64   `json:"stop_loss"`
	TakeProfit float64   `json:"take_profit"`
	Commission float64   `json:"commission"`
}

func (p *Position) direction() float64 {
	if p.Side == "SHORT" {
		return -1
	}
	return 1
}

// Exit reasons recorded on trades.
const (
	ExitStopLoss   = "stop_loss"
	ExitTakeProfit = "take_profit"
	ExitSignal     = "signal"
	ExitEndOfData  = "end_of_data"
)

// Trade is a closed round trip with P&L.
type Trade struct {
	Side        string        `json:"side"`
	EntryBar    int           `json:"entry_bar"`
	ExitBar     int           `json:"exit_bar"`
	EntryTime   time.Time     `json:"entry_time"`
	ExitTime    time.Time     `json:"exit_time"`
	EntryPrice  float64       `json:"entry_price"`
	ExitPrice   float64       `json:"exit_price"`
	Quantity    float64       `json:"quantity"`
	RealizedPL  float64       `json:"realized_pl"`
	ReturnPct   float64       `json:"return_pct"`
	HoldingTime time.Duration `json:"holding_time"`
	Commission  float64       `json:"commission"`
	ExitReason  string        `json:"exit_reason"`
}

// EquityPoint represents portfolio equity at a point in time
type EquityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Equity    float64   `json:"equity"`
	Cash      float64   `json:"cash"`
}

// Output is everything one run produces.
type Output struct {
	FinalEquity float64       `json:"final_equity"`
	Trades      []*Trade      `json:"trades"`
	EquityCurve []EquityPoint `json:"equity_curve"`
	Metrics     *Metrics      `json:"metrics"`
}

// ============================================================================
// CONFIGURATION
// ============================================================================

// Position sizing methods.
const (
	SizingFixed   = "fixed"   // PositionSize is a cash amount per trade
	SizingPercent = "percent" // PositionSize is a fraction of equity
	SizingKelly   = "kelly"   // Kelly fraction from the run's closed trades
)

// Config holds configuration for a backtest
type Config struct {
	InitialCapital float64 `json:"initial_capital"`
	CommissionRate float64 `json:"commission_rate"` // e.g., 0.001 for 0.1%

	// ExclusiveOrders closes an open position when a new signal arrives.
	// Without it, signals are ignored while a position is open.
	ExclusiveOrders bool `json:"exclusive_orders"`

	PositionSizing string  `json:"position_sizing"`
	PositionSize   float64 `json:"position_size"`
	KellyFraction  float64 `json:"kelly_fraction"`
}

// DefaultConfig returns the standard settings: $100k cash, 0.1% commission,
// all-in percent sizing and exclusive orders.
func DefaultConfig() Config {
	return Config{
		InitialCapital:  100000,
		CommissionRate:  0.001,
		ExclusiveOrders: true,
		PositionSizing:  SizingPercent,
		PositionSize:    1.0,
		KellyFraction:   0.5,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.InitialCapital <= 0 {
		return fmt.Errorf("initial capital must be positive, got %f", c.InitialCapital)
	}
	if c.CommissionRate < 0 || c.CommissionRate >= 1 {
		return fmt.Errorf("commission rate must be in [0, 1), got %f", c.CommissionRate)
	}
	switch c.PositionSizing {
	case SizingFixed, SizingPercent:
		if c.PositionSize <= 0 {
			return fmt.Errorf("position size must be positive for %s sizing", c.PositionSizing)
		}
	case SizingKelly:
		if c.KellyFraction <= 0 || c.KellyFraction > 1 {
			return fmt.Errorf("kelly fraction must be in (0, 1], got %f", c.KellyFraction)
		}
	default:
		return fmt.Errorf("unknown position sizing %q", c.PositionSizing)
	}
	return nil
}

// ============================================================================
// STRATEGY INTERFACE
// ============================================================================

// Strategy is the interface that trading strategies must implement
type Strategy interface {
	// Initialize is called once with the full execution frame before the
	// first bar.
	Initialize(data *market.Frame) error

	// GenerateSignal is called for every bar index in order.
	GenerateSignal(index int) (Signal, error)

	// Finalize is called after the last bar.
	Finalize() error
}

// ============================================================================
// BACKTEST ENGINE
// ============================================================================

// Engine simulates one strategy over one frame at a time. It keeps no state
// between runs and is safe for concurrent use.
type Engine struct {
	config Config
	logger zerolog.Logger
}

// NewEngine creates a new backtesting engine
func NewEngine(config Config, logger zerolog.Logger) *Engine {
	return &Engine{
		config: config,
		logger: logger.With().Str("component", "backtest_engine").Logger(),
	}
}

// Config returns the engine settings.
func (e *Engine) Config() Config {
	return e.config
}

// account is the mutable state of a single run.
type account struct {
	cfg      Config
	cash     float64
	position *Position
	trades   []*Trade
	curve    []EquityPoint
	kelly    *KellySizer
}

// Run executes the complete backtest. Fills happen at the close of the signal
// bar; stop-loss and take-profit are checked against the high and low of
// later bars, stop-loss first when both are touched. Any position still open
// after the last bar is closed at its close.
func (e *Engine) Run(ctx context.Context, data *market.Frame, strategy Strategy) (*Output, error) {
	if err := e.config.Validate(); err != nil {
		return nil, err
	}
	if err := data.Validate(); err != nil {
		return nil, err
	}
	if missing := data.MissingColumns(market.ColumnClose); len(missing) > 0 {
		return nil, fmt.Errorf("frame %s %s is missing columns %v", data.Asset, data.Timeframe, missing)
	}

	e.logger.Debug().
		Str("asset", data.Asset).
		Str("timeframe", data.Timeframe.String()).
		Int("bars", data.Len()).
		Float64("initial_capital", e.config.InitialCapital).
		Float64("commission_rate", e.config.CommissionRate).
		Bool("exclusive_orders", e.config.ExclusiveOrders).
		Msg("Starting backtest")

	if err := strategy.Initialize(data); err != nil {
		return nil, fmt.Errorf("failed to initialize strategy: %w", err)
	}

	acct := &account{
		cfg:   e.config,
		cash:  e.config.InitialCapital,
		curve: make([]EquityPoint, 0, data.Len()),
	}
	if e.config.PositionSizing == SizingKelly {
		acct.kelly = NewKellySizer(e.config.KellyFraction, e.logger)
	}

	for i := 0; i < data.Len(); i++ {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		bar := data.Bar(i)
		if acct.position != nil && i > acct.position.EntryBar {
			acct.checkBrackets(i, bar)
		}

		signal, err := strategy.GenerateSignal(i)
		if err != nil {
			return nil, fmt.Errorf("bar %d: %w", i, err)
		}
		if signal.Kind != SignalNone {
			acct.execute(i, bar, signal)
		}

		acct.curve = append(acct.curve, EquityPoint{
			Timestamp: bar.Timestamp,
			Equity:    acct.equity(bar.Close),
			Cash:      acct.cash,
		})
	}

	last := data.Len() - 1
	if acct.position != nil {
		lastBar := data.Bar(last)
		acct.close(last, lastBar.Timestamp, lastBar.Close, ExitEndOfData)
		acct.curve[last].Equity = acct.cash
		acct.curve[last].Cash = acct.cash
	}

	if err := strategy.Finalize(); err != nil {
		e.logger.Warn().Err(err).Msg("Failed to finalize strategy")
	}

	out := &Output{
		FinalEquity: acct.curve[last].Equity,
		Trades:      acct.trades,
		EquityCurve: acct.curve,
	}
	closes, _ := data.Column(market.ColumnClose)
	out.Metrics = CalculateMetrics(e.config.InitialCapital, out.EquityCurve, out.Trades, closes)

	e.logger.Debug().
		Str("asset", data.Asset).
		Int("trades", len(out.Trades)).
		Float64("final_equity", out.FinalEquity).
		Msg("Backtest complete")

	return out, nil
}

// ============================================================================
// ORDER EXECUTION
// ============================================================================

func (a *account) equity(price float64) float64 {
	if a.position == nil || math.IsNaN(price) {
		return a.cash
	}
	p := a.position
	return a.cash + p.direction()*p.Quantity*(price-p.EntryPrice)
}

// checkBrackets closes the position when the bar trades through a level.
// Gaps fill at the open.
func (a *account) checkBrackets(i int, bar market.Bar) {
	p := a.position
	if p.Side == "LONG" {
		switch {
		case p.StopLoss > 0 && bar.Low <= p.StopLoss:
			a.close(i, bar.Timestamp, math.Min(bar.Open, p.StopLoss), ExitStopLoss)
		case p.TakeProfit > 0 && bar.High >= p.TakeProfit:
			a.close(i, bar.Timestamp, math.Max(bar.Open, p.TakeProfit), ExitTakeProfit)
		}
		return
	}
	switch {
	case p.StopLoss > 0 && bar.High >= p.StopLoss:
		a.close(i, bar.Timestamp, math.Max(bar.Open, p.StopLoss), ExitStopLoss)
	case p.TakeProfit > 0 && bar.Low <= p.TakeProfit:
		a.close(i, bar.Timestamp, math.Min(bar.Open, p.TakeProfit), ExitTakeProfit)
	}
}

func (a *account) execute(i int, bar market.Bar, signal Signal) {
	if a.position != nil {
		if !a.cfg.ExclusiveOrders {
			return
		}
		a.close(i, bar.Timestamp, bar.Close, ExitSignal)
	}
	a.open(i, bar, signal)
}

func (a *account) open(i int, bar market.Bar, signal Signal) {
	price := bar.Close
	if price <= 0 || math.IsNaN(price) {
		return
	}

	quantity := a.size(price)
	if quantity <= 0 {
		return
	}
	commission := quantity * price * a.cfg.CommissionRate

	side := "LONG"
	if signal.Kind == SignalSell {
		side = "SHORT"
	}

	a.cash -= commission
	a.position = &Position{
		Side:       side,
		EntryBar:   i,
		EntryTime:  bar.Timestamp,
		EntryPrice: price,
		Quantity:   quantity,
		StopLoss:   signal.StopLoss,
		TakeProfit: signal.TakeProfit,
		Commission: commission,
	}
}

func (a *account) close(i int, ts time.Time, price float64, reason string) {
	p := a.position
	gross := p.direction() * p.Quantity * (price - p.EntryPrice)
	commission := p.Quantity * price * a.cfg.CommissionRate

	a.cash += gross - commission
	realized := gross - commission - p.Commission
	entryValue := p.EntryPrice * p.Quantity

	trade := &Trade{
		Side:        p.Side,
		EntryBar:    p.EntryBar,
		ExitBar:     i,
		EntryTime:   p.EntryTime,
		ExitTime:    ts,
		EntryPrice:  p.EntryPrice,
		ExitPrice:   price,
		Quantity:    p.Quantity,
		RealizedPL:  realized,
		HoldingTime: ts.Sub(p.EntryTime),
		Commission:  commission + p.Commission,
		ExitReason:  reason,
	}
	if entryValue > 0 {
		trade.ReturnPct = realized / entryValue * 100.0
	}

	a.trades = append(a.trades, trade)
	a.position = nil
}

// ============================================================================
// POSITION SIZING
// ============================================================================

// size returns the quantity to trade at price, leaving room for commission.
func (a *account) size(price float64) float64 {
	equity := a.cash
	if equity <= 0 {
		return 0
	}

	var dollars float64
	switch a.cfg.PositionSizing {
	case SizingFixed:
		dollars = math.Min(a.cfg.PositionSize, equity)
	case SizingKelly:
		dollars = a.kelly.PositionSize(CalculateStatsFromTrades(a.trades), equity)
	default:
		dollars = equity * math.Min(a.cfg.PositionSize, 1.0)
	}

	return dollars / (price * (1 + a.cfg.CommissionRate))
}
