package strategy

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ajitpratap0/mtfbacktest/pkg/backtest"
	"github.com/ajitpratap0/mtfbacktest/pkg/market"
)

// State is the lifecycle position of an Evaluator.
type State int

const (
	StateUninitialized State = iota
	StateReady
	StateEvaluating
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateEvaluating:
		return "evaluating"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Evaluator adapts a Strategy to the backtest engine. It owns the strategy
// instance and its alignment state for exactly one run.
type Evaluator struct {
	def      Definition
	cfg      Config
	strategy Strategy
	higher   *market.Frame
	primary  *market.Frame
	logger   zerolog.Logger

	state    State
	signals  int
	rejected int
}

// NewEvaluator builds a fresh strategy from params. higher may be nil for
// single-timeframe strategies.
func NewEvaluator(def Definition, params ParameterSet, higher *market.Frame, logger zerolog.Logger) (*Evaluator, error) {
	s, cfg, err := def.Build(params, logger)
	if err != nil {
		return nil, err
	}
	return &Evaluator{
		def:      def,
		cfg:      cfg,
		strategy: s,
		higher:   higher,
		logger:   logger.With().Str("component", "evaluator").Str("strategy", def.Name).Logger(),
	}, nil
}

// Config returns the validated parameters of this run.
func (e *Evaluator) Config() Config {
	return e.cfg
}

// State returns the current lifecycle state.
func (e *Evaluator) State() State {
	return e.state
}

// Initialize implements backtest.Strategy.
func (e *Evaluator) Initialize(primary *market.Frame) (err error) {
	if e.state != StateUninitialized {
		return fmt.Errorf("%w: initialize called in state %s", ErrNotReady, e.state)
	}
	if e.def.RequiresMultipleTimeframes && e.higher.Len() == 0 {
		return &ConfigurationError{
			Strategy: e.def.Name,
			Field:    ParamHigherTimeframe,
			Message:  fmt.Sprintf("strategy requires multiple timeframes but no %s series was provided", e.cfg.HigherTimeframe()),
		}
	}

	defer func() {
		if r := recover(); r != nil {
			err = &ConfigurationError{Strategy: e.def.Name, Message: fmt.Sprintf("initialize panicked: %v", r)}
		}
	}()

	var higher *market.Frame
	if e.def.RequiresMultipleTimeframes {
		higher = e.higher
	}
	if err := e.strategy.Initialize(primary, higher); err != nil {
		return err
	}

	e.primary = primary
	e.state = StateReady
	e.logger.Debug().
		Str("asset", primary.Asset).
		Int("bars", primary.Len()).
		Interface("params", e.cfg.Values()).
		Msg("Evaluator ready")
	return nil
}

// GenerateSignal implements backtest.Strategy. A signal whose stop-loss and
// take-profit do not straddle its entry is dropped.
func (e *Evaluator) GenerateSignal(index int) (sig backtest.Signal, err error) {
	if e.state != StateReady {
		return backtest.None(), fmt.Errorf("%w: evaluate called in state %s", ErrNotReady, e.state)
	}
	if index < 0 || index >= e.primary.Len() {
		return backtest.None(), &EvaluationError{Strategy: e.def.Name, Index: index, Err: fmt.Errorf("index out of range [0,%d)", e.primary.Len())}
	}

	e.state = StateEvaluating
	defer func() {
		if r := recover(); r != nil {
			sig = backtest.None()
			err = &EvaluationError{Strategy: e.def.Name, Index: index, Err: fmt.Errorf("panic: %v", r)}
		}
		if err == nil {
			e.state = StateReady
		} else {
			e.state = StateTerminated
		}
	}()

	sig, err = e.strategy.Evaluate(index)
	if err != nil {
		return backtest.None(), &EvaluationError{Strategy: e.def.Name, Index: index, Err: err}
	}
	if sig.Kind == backtest.SignalNone {
		return sig, nil
	}

	if sig.Timestamp.IsZero() {
		sig.Timestamp = e.primary.Timestamps[index]
	}
	if !Consistent(sig) {
		e.rejected++
		e.logger.Debug().
			Int("bar", index).
			Str("kind", sig.Kind.String()).
			Float64("entry", sig.Entry).
			Float64("stop_loss", sig.StopLoss).
			Float64("take_profit", sig.TakeProfit).
			Msg("Dropped signal with inconsistent bracket")
		return backtest.None(), nil
	}

	e.signals++
	e.logger.Debug().
		Int("bar", index).
		Time("timestamp", sig.Timestamp).
		Str("kind", sig.Kind.String()).
		Float64("entry", sig.Entry).
		Msg("Signal")
	return sig, nil
}

// Finalize implements backtest.Strategy.
func (e *Evaluator) Finalize() error {
	e.state = StateTerminated
	e.logger.Debug().
		Int("signals", e.signals).
		Int("rejected", e.rejected).
		Msg("Evaluator terminated")
	return nil
}
