// Package strategy declares the trading strategies, their parameters, and the
// evaluator that drives a strategy bar by bar inside the backtest engine.
package strategy

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ajitpratap0/mtfbacktest/pkg/backtest"
	"github.com/ajitpratap0/mtfbacktest/pkg/market"
)

// Strategy is one variant's indicator computation and per-bar decision logic.
type Strategy interface {
	// Initialize validates the input frames and computes every indicator over
	// the full history. higher is nil for single-timeframe strategies.
	Initialize(primary, higher *market.Frame) error

	// Evaluate returns the signal for primary bar i. Bars inside the warm-up
	// window return a None signal without error.
	Evaluate(i int) (backtest.Signal, error)
}

// Factory builds a strategy instance from a validated config.
type Factory func(cfg Config, logger zerolog.Logger) (Strategy, error)

// Definition describes a strategy variant: its parameters and how to build it.
type Definition struct {
	Name                       string
	Description                string
	Params                     []ParamSpec
	RequiresMultipleTimeframes bool
	New                        Factory
}

// Param looks up a declared parameter.
func (d Definition) Param(name string) (ParamSpec, bool) {
	for _, p := range d.Params {
		if p.Name == name {
			return p, true
		}
	}
	return ParamSpec{}, false
}

// Optimizable returns the names of the parameters marked optimizable, in
// declaration order.
func (d Definition) Optimizable() []string {
	var names []string
	for _, p := range d.Params {
		if p.Optimizable {
			names = append(names, p.Name)
		}
	}
	return names
}

// Defaults returns the declared default values.
func (d Definition) Defaults() ParameterSet {
	out := make(ParameterSet, len(d.Params))
	for _, p := range d.Params {
		out[p.Name] = p.Default
	}
	return out
}

// Build validates params and returns a fresh strategy and its config.
func (d Definition) Build(params ParameterSet, logger zerolog.Logger) (Strategy, Config, error) {
	cfg, err := NewConfig(d, params)
	if err != nil {
		return nil, Config{}, err
	}
	if d.New == nil {
		return nil, Config{}, &ConfigurationError{Strategy: d.Name, Message: "no factory registered"}
	}
	s, err := d.New(cfg, logger.With().Str("strategy", d.Name).Logger())
	if err != nil {
		return nil, Config{}, err
	}
	return s, cfg, nil
}

// withBase prepends the base parameters unless the variant declares them.
func withBase(params ...ParamSpec) []ParamSpec {
	for _, p := range params {
		if p.Name == ParamPrimaryTimeframe {
			return params
		}
	}
	base := ParamSpec{
		Name:    ParamPrimaryTimeframe,
		Kind:    KindTimeframe,
		Default: DefaultPrimaryTimeframe,
		Prompt:  "Enter primary timeframe (e.g., 1m): ",
	}
	return append([]ParamSpec{base}, params...)
}

// ============================================================================
// REGISTRY
// ============================================================================

// Registry holds the known strategy definitions by name.
type Registry struct {
	defs map[string]Definition
}

// NewRegistry creates a registry holding defs.
func NewRegistry(defs ...Definition) (*Registry, error) {
	r := &Registry{defs: make(map[string]Definition, len(defs))}
	for _, d := range defs {
		if err := r.Register(d); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// DefaultRegistry holds the built-in strategies.
func DefaultRegistry() *Registry {
	r, _ := NewRegistry(Momentum(), Breakout(), MultiTimeframe())
	return r
}

// Register adds a definition. Names are case-insensitive and unique.
func (r *Registry) Register(d Definition) error {
	if d.Name == "" {
		return fmt.Errorf("strategy name is required")
	}
	key := strings.ToLower(d.Name)
	if _, exists := r.defs[key]; exists {
		return fmt.Errorf("strategy %s already registered", d.Name)
	}
	r.defs[key] = d
	return nil
}

// Get returns the definition registered under name.
func (r *Registry) Get(name string) (Definition, bool) {
	d, ok := r.defs[strings.ToLower(name)]
	return d, ok
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.defs))
	for _, d := range r.defs {
		names = append(names, d.Name)
	}
	sort.Strings(names)
	return names
}

// ============================================================================
// SHARED SIGNAL HELPERS
// ============================================================================

// Bracket builds an entry signal with stop-loss and take-profit placed as
// percentage offsets from entry. It returns false when the levels are not
// consistent with the entry side.
func Bracket(kind backtest.SignalKind, entry, slPercent, tpPercent float64) (backtest.Signal, bool) {
	sig := backtest.Signal{Kind: kind, Entry: entry}
	switch kind {
	case backtest.SignalBuy:
		sig.StopLoss = entry * (1 - slPercent/100)
		sig.TakeProfit = entry * (1 + tpPercent/100)
	case backtest.SignalSell:
		sig.StopLoss = entry * (1 + slPercent/100)
		sig.TakeProfit = entry * (1 - tpPercent/100)
	default:
		return backtest.None(), false
	}
	return sig, Consistent(sig)
}

// Consistent reports whether the stop-loss and take-profit straddle the
// entry on the correct sides.
func Consistent(sig backtest.Signal) bool {
	switch sig.Kind {
	case backtest.SignalBuy:
		return sig.StopLoss < sig.Entry && sig.Entry < sig.TakeProfit
	case backtest.SignalSell:
		return sig.TakeProfit < sig.Entry && sig.Entry < sig.StopLoss
	default:
		return true
	}
}

// trendTracker detects a higher-timeframe trend change by comparing the
// current short/long pair with the pair seen on the previous evaluation.
type trendTracker struct {
	prevShort float64
	prevLong  float64
	seen      bool
}

// update returns the trend for the current pair and remembers it.
func (t *trendTracker) update(short, long float64) (bullish, bearish bool) {
	if t.seen {
		bullish = t.prevShort < t.prevLong && short > long
		bearish = t.prevShort > t.prevLong && short < long
	}
	t.prevShort, t.prevLong, t.seen = short, long, true
	return bullish, bearish
}

// requireColumns returns a ConfigurationError naming the columns f lacks.
func requireColumns(strategy, field string, f *market.Frame, columns ...string) error {
	if f == nil || f.Len() == 0 {
		return &ConfigurationError{Strategy: strategy, Field: field, Message: "series not provided"}
	}
	if missing := f.MissingColumns(columns...); len(missing) > 0 {
		return &ConfigurationError{Strategy: strategy, Field: field, Message: fmt.Sprintf("required columns missing: %v", missing)}
	}
	return nil
}
