package main

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"github.com/ajitpratap0/mtfbacktest/internal/backtest"
	"github.com/ajitpratap0/mtfbacktest/internal/optimization"
	"github.com/ajitpratap0/mtfbacktest/internal/results"
	"github.com/ajitpratap0/mtfbacktest/internal/strategy"
	"github.com/ajitpratap0/mtfbacktest/pkg/market"
)

const (
	modeGrid       = optimization.EngineGrid
	modeRandom     = optimization.EngineRandom
	modeSequential = optimization.EngineSequential
	modeMonteCarlo = optimization.EngineMonteCarlo

	defaultRandomIterations = 50
)

// searchRun is the resolved target of one search invocation.
type searchRun struct {
	mode       string
	file       *optimization.SearchFile
	def        strategy.Definition
	asset      string
	data       market.Timeframes
	constraint optimization.Constraint
	optimizer  *optimization.Optimizer
}

// searchOutcome is what a search hands back for export and job persistence.
type searchOutcome struct {
	best    []results.Best
	primary *optimization.Result
}

func searchMode(ctx context.Context, mode string, args []string) error {
	var (
		flags      commonFlags
		searchPath string
		iterations int
	)
	fs := flag.NewFlagSet(mode, flag.ContinueOnError)
	flags.register(fs)
	fs.StringVar(&searchPath, "search", "", "Search file describing the space and objective (required)")
	if mode == modeRandom {
		fs.IntVar(&iterations, "iterations", 0, "Number of random samples (default: search file, then 50)")
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if searchPath == "" {
		return errors.New("-search is required")
	}

	file, err := optimization.LoadSearchFile(searchPath)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, flags)
	if err != nil {
		return err
	}
	defer a.close()

	run, err := a.prepareSearch(ctx, mode, file, flags)
	if err != nil {
		return err
	}

	job := a.startJob(ctx, mode, []string{run.def.Name}, []string{run.asset})
	out, err := a.search(ctx, run, iterations)
	if err != nil {
		a.finishJob(ctx, job, nil, err)
		return err
	}
	a.finishJob(ctx, job, jobResults(out.primary), nil)

	if _, err := a.writer.BestParameters(out.best); err != nil {
		return err
	}
	if a.cfg.Report.HTML {
		a.reportBest(ctx, run, out.primary)
	}
	if flags.exportProfile != "" {
		if err := exportProfile(flags.exportProfile, run, out.primary); err != nil {
			return err
		}
		a.logger.Info().Str("path", flags.exportProfile).Msg("Exported best parameters")
	}
	return nil
}

// prepareSearch resolves the strategy and asset, flags first, and loads the
// asset's timeframes.
func (a *app) prepareSearch(ctx context.Context, mode string, file *optimization.SearchFile, flags commonFlags) (*searchRun, error) {
	name := file.Strategy
	if list := splitList(flags.strategies); len(list) > 0 {
		name = list[0]
	}
	def, ok := a.registry.Get(name)
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q", name)
	}

	asset := file.Asset
	if list := splitList(flags.assets); len(list) > 0 {
		asset = list[0]
	}
	if asset == "" && len(a.cfg.Data.Assets) > 0 {
		asset = a.cfg.Data.Assets[0]
	}
	if asset == "" {
		return nil, errors.New("no asset to search on")
	}

	dataset, err := a.loadDataset(ctx, []string{asset})
	if err != nil {
		return nil, err
	}
	data, ok := dataset[asset]
	if !ok || len(data) == 0 {
		return nil, fmt.Errorf("no data for asset %s", asset)
	}

	constraint, err := file.Constraint()
	if err != nil {
		return nil, err
	}

	return &searchRun{
		mode:       mode,
		file:       file,
		def:        def,
		asset:      asset,
		data:       data,
		constraint: constraint,
		optimizer: optimization.NewOptimizer(
			optimization.RunnerEval(a.runner, def, asset),
			a.cfg.Optimization.Options(),
			a.collectors,
			a.logger,
		),
	}, nil
}

func (a *app) search(ctx context.Context, run *searchRun, iterations int) (*searchOutcome, error) {
	prefix := backtest.Key(run.def.Name, run.asset) + "_" + run.mode

	switch run.mode {
	case modeGrid, modeRandom:
		space, err := run.file.Space()
		if err != nil {
			return nil, err
		}
		obj, err := run.file.Objective()
		if err != nil {
			return nil, err
		}
		var res *optimization.Result
		if run.mode == modeGrid {
			res, err = run.optimizer.Grid(ctx, run.data, space, obj, run.constraint)
		} else {
			n := iterations
			if n <= 0 {
				n = run.file.Random.Iterations
			}
			if n <= 0 {
				n = defaultRandomIterations
			}
			res, err = run.optimizer.Random(ctx, run.data, space, n, obj, run.constraint)
		}
		if err != nil {
			return nil, err
		}
		if _, err := a.writer.Optimization(prefix, res.Table); err != nil {
			return nil, err
		}
		a.logBest(res)
		return &searchOutcome{
			best:    []results.Best{{Label: run.mode, Objective: res.Objective, Record: res.Best}},
			primary: res,
		}, nil

	case modeSequential:
		space, err := run.file.Space()
		if err != nil {
			return nil, err
		}
		plan, err := run.file.SequentialPlan(a.cfg.Optimization.SequentialDefaults())
		if err != nil {
			return nil, err
		}
		res, err := run.optimizer.Sequential(ctx, run.data, space, plan, run.constraint)
		if err != nil {
			return nil, err
		}
		if _, err := a.writer.Optimization(prefix+"_phase1", res.Phase1.Table); err != nil {
			return nil, err
		}
		out := &searchOutcome{
			best:    []results.Best{{Label: "phase1", Objective: res.Phase1.Objective, Record: res.Phase1.Best}},
			primary: res.Phase1,
		}
		a.logBest(res.Phase1)
		for _, p2 := range res.Phase2 {
			if _, err := a.writer.Optimization(prefix+"_"+p2.Result.Objective.Metric, p2.Result.Table); err != nil {
				return nil, err
			}
			out.best = append(out.best, results.Best{
				Label:     "phase2 " + p2.Result.Objective.Metric,
				Objective: p2.Result.Objective,
				Record:    p2.Result.Best,
			})
			a.logBest(p2.Result)
		}
		if _, err := a.writer.Comparison(res); err != nil {
			return nil, err
		}
		return out, nil

	case modeMonteCarlo:
		plan, err := run.file.MonteCarloPlan(a.cfg.Optimization.MonteCarloDefaults())
		if err != nil {
			return nil, err
		}
		res, err := run.optimizer.MonteCarlo(ctx, run.data, plan, run.constraint)
		if err != nil {
			return nil, err
		}
		if _, err := a.writer.Optimization(prefix, res.Table); err != nil {
			return nil, err
		}
		if _, err := a.writer.Simulations(res.Simulations); err != nil {
			return nil, err
		}
		a.logBest(res.Result)
		a.logger.Info().
			Int("count", res.Summary.Count).
			Float64("mean", res.Summary.Mean).
			Float64("std_dev", res.Summary.StdDev).
			Float64("p05", res.Summary.P05).
			Float64("median", res.Summary.Median).
			Float64("p95", res.Summary.P95).
			Msg("Monte Carlo distribution of final equity")
		return &searchOutcome{
			best:    []results.Best{{Label: run.mode, Objective: res.Objective, Record: res.Best}},
			primary: res.Result,
		}, nil

	default:
		return nil, fmt.Errorf("unknown search mode %q", run.mode)
	}
}

func (a *app) logBest(res *optimization.Result) {
	value, _ := res.Best.Value(res.Objective.Metric)
	a.logger.Info().
		Str("engine", res.Engine).
		Str("objective", res.Objective.String()).
		Float64("value", value).
		Str("params", res.Best.Params.String()).
		Int("evaluated", res.Evaluated).
		Int("failed", res.Failed).
		Int("filtered", res.Filtered).
		Dur("duration", res.Duration).
		Msg("Search complete")
}

// reportBest reruns the winning parameters on the unperturbed data and
// writes an HTML report ranking the top records.
func (a *app) reportBest(ctx context.Context, run *searchRun, res *optimization.Result) {
	best, err := a.runner.Run(ctx, run.def, res.Best.Params, run.asset, run.data)
	if err != nil {
		a.logger.Warn().Err(err).Msg("Failed to rerun best parameters")
		return
	}
	if _, err := a.writer.Report(best, a.runner.EngineConfig(), results.RankedRuns(res, results.TopReported)); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to write HTML report")
	}
}

func exportProfile(path string, run *searchRun, res *optimization.Result) error {
	p := strategy.NewProfile(fmt.Sprintf("%s %s %s", run.def.Name, run.asset, run.mode), run.def.Name, res.Best.Params)
	p.Metadata.Source = "optimization"
	p.Metadata.Tags = []string{run.mode}
	p.Asset = run.asset
	p.Metric = res.Objective.Metric
	p.Value, _ = res.Best.Value(res.Objective.Metric)
	return strategy.ExportToFile(p, path)
}

func jobResults(res *optimization.Result) *backtest.JobResults {
	value, _ := res.Best.Value(res.Objective.Metric)
	return &backtest.JobResults{
		Metric:     res.Objective.Metric,
		BestValue:  value,
		BestParams: res.Best.Params,
		Evaluated:  res.Evaluated,
		Failed:     res.Failed,
	}
}
