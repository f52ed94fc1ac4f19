// Package backtest runs strategy backtests over a cross product of
// strategies and assets, and persists job records.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/mtfbacktest/internal/strategy"
	btengine "github.com/ajitpratap0/mtfbacktest/pkg/backtest"
	"github.com/ajitpratap0/mtfbacktest/pkg/market"
)

// Reason classifies why a combination was skipped.
type Reason string

const (
	ReasonNoData           Reason = "no_data"
	ReasonBadConfiguration Reason = "bad_configuration"
	ReasonEvaluationFailed Reason = "evaluation_failed"
)

// String returns the user-visible reason.
func (r Reason) String() string {
	switch r {
	case ReasonNoData:
		return "no data"
	case ReasonBadConfiguration:
		return "bad configuration"
	case ReasonEvaluationFailed:
		return "evaluation failed"
	default:
		return string(r)
	}
}

// SkipError reports a strategy-asset combination that produced no result.
// It never aborts a batch.
type SkipError struct {
	Key    string
	Reason Reason
	Err    error
}

func (e *SkipError) Error() string {
	return fmt.Sprintf("%s skipped (%s): %v", e.Key, e.Reason, e.Err)
}

func (e *SkipError) Unwrap() error {
	return e.Err
}

// Key identifies a (strategy, asset) combination.
func Key(strategyName, asset string) string {
	return strategyName + "_" + asset
}

// Result is the immutable outcome of one backtest.
type Result struct {
	Key      string
	Strategy string
	Asset    string
	Params   strategy.ParameterSet
	Output   *btengine.Output
	Duration time.Duration
}

// Metrics returns the engine metrics of the run.
func (r *Result) Metrics() *btengine.Metrics {
	if r == nil || r.Output == nil {
		return nil
	}
	return r.Output.Metrics
}

// Recorder observes backtest outcomes. A nil Recorder is allowed.
type Recorder interface {
	ObserveBacktest(outcome string, d time.Duration)
}

// Options configures a Runner.
type Options struct {
	Concurrent bool
	Workers    int
}

// Runner executes backtests. It holds no per-run state and is safe for
// concurrent use.
type Runner struct {
	engine   btengine.Config
	opts     Options
	recorder Recorder
	logger   zerolog.Logger
}

// NewRunner creates a runner using engine settings for every backtest.
func NewRunner(engine btengine.Config, opts Options, recorder Recorder, logger zerolog.Logger) *Runner {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	return &Runner{
		engine:   engine,
		opts:     opts,
		recorder: recorder,
		logger:   logger.With().Str("component", "backtest_runner").Logger(),
	}
}

// EngineConfig returns the engine settings shared by every run.
func (r *Runner) EngineConfig() btengine.Config {
	return r.engine
}

// Run backtests def with params on one asset's timeframes. Validation and
// evaluation failures are returned as *SkipError; only context cancellation
// is returned as-is.
func (r *Runner) Run(ctx context.Context, def strategy.Definition, params strategy.ParameterSet, asset string, data market.Timeframes) (*Result, error) {
	start := time.Now()
	key := Key(def.Name, asset)

	res, err := r.run(ctx, def, params, asset, data)
	elapsed := time.Since(start)

	outcome := "completed"
	var skip *SkipError
	switch {
	case errors.As(err, &skip):
		outcome = string(skip.Reason)
		r.logger.Warn().
			Str("strategy", def.Name).
			Str("asset", asset).
			Str("reason", skip.Reason.String()).
			Err(skip.Err).
			Msg("Skipping backtest")
	case err != nil:
		outcome = "cancelled"
	default:
		res.Duration = elapsed
		r.logger.Info().
			Str("key", key).
			Float64("final_equity", res.Output.FinalEquity).
			Int("trades", len(res.Output.Trades)).
			Dur("duration", elapsed).
			Msg("Backtest completed")
	}
	if r.recorder != nil {
		r.recorder.ObserveBacktest(outcome, elapsed)
	}
	return res, err
}

func (r *Runner) run(ctx context.Context, def strategy.Definition, params strategy.ParameterSet, asset string, data market.Timeframes) (*Result, error) {
	key := Key(def.Name, asset)
	skip := func(reason Reason, err error) (*Result, error) {
		return nil, &SkipError{Key: key, Reason: reason, Err: err}
	}

	cfg, err := strategy.NewConfig(def, params)
	if err != nil {
		return skip(ReasonBadConfiguration, err)
	}

	primaryTF := cfg.PrimaryTimeframe()
	primary, ok := data.Get(primaryTF)
	if !ok || primary.Len() == 0 {
		return skip(ReasonNoData, fmt.Errorf("no %s data for %s", primaryTF, asset))
	}
	if missing := primary.MissingColumns(market.ColumnClose); len(missing) > 0 {
		return skip(ReasonBadConfiguration, fmt.Errorf("%s %s data is missing columns %v", asset, primaryTF, missing))
	}

	var higher *market.Frame
	if def.RequiresMultipleTimeframes {
		higherTF := cfg.HigherTimeframe()
		if higherTF == "" {
			return skip(ReasonBadConfiguration, &strategy.ConfigurationError{Strategy: def.Name, Field: strategy.ParamHigherTimeframe, Message: "not declared"})
		}
		higher, ok = data.Get(higherTF)
		if !ok || higher.Len() == 0 {
			return skip(ReasonNoData, fmt.Errorf("no %s data for %s", higherTF, asset))
		}
	}

	ev, err := strategy.NewEvaluator(def, params, higher, r.logger)
	if err != nil {
		return skip(ReasonBadConfiguration, err)
	}

	engineCfg := r.engine
	engineCfg.ExclusiveOrders = !def.RequiresMultipleTimeframes
	out, err := btengine.NewEngine(engineCfg, r.logger).Run(ctx, primary, ev)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if strategy.IsConfigurationError(err) {
			return skip(ReasonBadConfiguration, err)
		}
		return skip(ReasonEvaluationFailed, err)
	}

	return &Result{
		Key:      key,
		Strategy: def.Name,
		Asset:    asset,
		Params:   cfg.Values(),
		Output:   out,
	}, nil
}

// ============================================================================
// BATCH
// ============================================================================

// Job is one (strategy, asset) combination of a batch.
type Job struct {
	Definition strategy.Definition
	Params     strategy.ParameterSet
	Asset      string
}

// Batch is the keyed outcome of RunAll. Each key appears in exactly one of
// Results and Skipped.
type Batch struct {
	Results map[string]*Result
	Skipped map[string]*SkipError
	// Keys lists every key in job order.
	Keys []string
}

// Jobs builds the cross product of defs and the dataset's assets, in
// definition order then asset order.
func Jobs(defs []strategy.Definition, params map[string]strategy.ParameterSet, assets []string) []Job {
	jobs := make([]Job, 0, len(defs)*len(assets))
	for _, def := range defs {
		for _, asset := range assets {
			jobs = append(jobs, Job{Definition: def, Params: params[def.Name].Clone(), Asset: asset})
		}
	}
	return jobs
}

// RunAll runs every job, sequentially in job order or on a worker pool.
// A key already seen in the batch is skipped rather than rerun.
func (r *Runner) RunAll(ctx context.Context, jobs []Job, dataset market.Dataset) (*Batch, error) {
	outcomes := make([]outcome, len(jobs))
	seen := make(map[string]bool, len(jobs))
	var unique []int
	for i, job := range jobs {
		key := Key(job.Definition.Name, job.Asset)
		outcomes[i].key = key
		if seen[key] {
			continue
		}
		seen[key] = true
		unique = append(unique, i)
	}

	r.logger.Info().
		Int("jobs", len(unique)).
		Bool("concurrent", r.opts.Concurrent).
		Int("workers", r.opts.Workers).
		Msg("Running backtests")

	runOne := func(i int) error {
		job := jobs[i]
		res, err := r.Run(ctx, job.Definition, job.Params, job.Asset, dataset[job.Asset])
		var skip *SkipError
		if err != nil && !errors.As(err, &skip) {
			return err
		}
		outcomes[i].result, outcomes[i].skip = res, skip
		return nil
	}

	if r.opts.Concurrent {
		var g errgroup.Group
		g.SetLimit(r.opts.Workers)
		for _, i := range unique {
			g.Go(func() error { return runOne(i) })
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		for _, i := range unique {
			if err := runOne(i); err != nil {
				return nil, err
			}
		}
	}

	batch := &Batch{
		Results: make(map[string]*Result),
		Skipped: make(map[string]*SkipError),
	}
	for _, i := range unique {
		o := outcomes[i]
		batch.Keys = append(batch.Keys, o.key)
		if o.result != nil {
			batch.Results[o.key] = o.result
		} else {
			batch.Skipped[o.key] = o.skip
		}
	}
	return batch, nil
}

type outcome struct {
	key    string
	result *Result
	skip   *SkipError
}
