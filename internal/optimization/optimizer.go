package optimization

import (
	"context"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/mtfbacktest/internal/backtest"
	"github.com/ajitpratap0/mtfbacktest/internal/strategy"
	"github.com/ajitpratap0/mtfbacktest/pkg/market"
)

// Engine names, used in logs, metrics and error messages.
const (
	EngineGrid       = "grid"
	EngineRandom     = "random"
	EngineSequential = "sequential"
	EngineMonteCarlo = "montecarlo"
)

// EvalFunc runs one backtest for params over data and returns its named
// metrics. It must not retain or mutate params or data.
type EvalFunc func(ctx context.Context, params strategy.ParameterSet, data market.Timeframes) (map[string]float64, error)

// RunnerEval evaluates parameter sets of def on asset with runner.
func RunnerEval(runner *backtest.Runner, def strategy.Definition, asset string) EvalFunc {
	return func(ctx context.Context, params strategy.ParameterSet, data market.Timeframes) (map[string]float64, error) {
		res, err := runner.Run(ctx, def, params, asset, data)
		if err != nil {
			return nil, err
		}
		return res.Metrics().Values(), nil
	}
}

// Recorder observes evaluations. A nil Recorder is allowed.
type Recorder interface {
	ObserveEvaluation(engine, status string)
	ObserveBest(engine string, value float64)
}

// Options configures an Optimizer.
type Options struct {
	Workers int
	// Seed is the base seed of random and Monte Carlo search.
	Seed int64
	// MaxAttemptsFactor caps random search at n*MaxAttemptsFactor draws.
	MaxAttemptsFactor int
}

// Optimizer runs parameter searches against one evaluation function.
type Optimizer struct {
	eval     EvalFunc
	opts     Options
	recorder Recorder
	logger   zerolog.Logger
}

// NewOptimizer creates an optimizer.
func NewOptimizer(eval EvalFunc, opts Options, recorder Recorder, logger zerolog.Logger) *Optimizer {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.MaxAttemptsFactor <= 0 {
		opts.MaxAttemptsFactor = 100
	}
	return &Optimizer{
		eval:     eval,
		opts:     opts,
		recorder: recorder,
		logger:   logger.With().Str("component", "optimizer").Logger(),
	}
}

// Result is the outcome of one search.
type Result struct {
	Engine    string
	Objective Objective
	Best      Record
	Table     *Table
	Evaluated int
	Failed    int
	Filtered  int
	Duration  time.Duration
}

// task is one evaluation. data is called inside the worker so per-task
// inputs such as perturbed prices are built concurrently.
type task struct {
	params strategy.ParameterSet
	data   func() market.Timeframes
}

func fixedData(data market.Timeframes) func() market.Timeframes {
	return func() market.Timeframes { return data }
}

// evaluate runs tasks on the worker pool. Failed evaluations are logged and
// dropped; the returned records keep task order.
func (o *Optimizer) evaluate(ctx context.Context, engine string, tasks []task) ([]Record, int, error) {
	slots := make([]*Record, len(tasks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.Workers)
	for i, t := range tasks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			values, err := o.eval(gctx, t.params.Clone(), t.data())
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				o.logger.Warn().
					Str("engine", engine).
					Str("params", t.params.Key()).
					Err(err).
					Msg("Evaluation failed")
				o.observe(engine, "failed")
				return nil
			}
			slots[i] = &Record{Index: i, Params: t.params, Metrics: values}
			o.observe(engine, "ok")

			if (i+1)%25 == 0 {
				o.logger.Debug().
					Str("engine", engine).
					Int("index", i+1).
					Int("total", len(tasks)).
					Msg("Search progress")
			}
			return nil
		})
	}
	// only cancellation reaches here
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	records := make([]Record, 0, len(tasks))
	for _, r := range slots {
		if r != nil {
			records = append(records, *r)
		}
	}
	return records, len(tasks) - len(records), nil
}

func (o *Optimizer) observe(engine, status string) {
	if o.recorder != nil {
		o.recorder.ObserveEvaluation(engine, status)
	}
}

// reduce builds the result of a finished search or an EmptyResultError.
func (o *Optimizer) reduce(engine string, obj Objective, names []string, records []Record, failed, filtered int, start time.Time) (*Result, error) {
	table := &Table{Params: names, Records: records}
	best, ok := table.Best(obj)
	if !ok {
		err := &EmptyResultError{Engine: engine, Evaluated: len(records), Failed: failed, Filtered: filtered}
		o.logger.Error().Str("engine", engine).Err(err).Msg("Search produced no usable record")
		return nil, err
	}

	res := &Result{
		Engine:    engine,
		Objective: obj,
		Best:      best,
		Table:     table,
		Evaluated: len(records),
		Failed:    failed,
		Filtered:  filtered,
		Duration:  time.Since(start),
	}
	value, _ := best.Value(obj.Metric)
	if o.recorder != nil {
		o.recorder.ObserveBest(engine, value)
	}
	o.logger.Info().
		Str("engine", engine).
		Str("objective", obj.String()).
		Float64("best_value", value).
		Str("best_params", best.Params.Key()).
		Int("evaluated", res.Evaluated).
		Int("failed", failed).
		Int("filtered", filtered).
		Dur("duration", res.Duration).
		Msg("Search complete")
	return res, nil
}
