package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/ajitpratap0/mtfbacktest/internal/backtest"
	"github.com/ajitpratap0/mtfbacktest/internal/results"
	"github.com/ajitpratap0/mtfbacktest/internal/strategy"
)

// runMode backtests every selected strategy on every asset and writes the
// summary table plus one HTML report per completed key.
func runMode(ctx context.Context, args []string) error {
	var flags commonFlags
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	flags.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := newApp(ctx, flags)
	if err != nil {
		return err
	}
	defer a.close()

	defs, err := a.definitions(flags.strategies)
	if err != nil {
		return err
	}
	var profile *strategy.Profile
	if flags.profile != "" {
		if profile, err = strategy.ImportFromFile(flags.profile, a.registry); err != nil {
			return err
		}
	}
	overrides, err := parseParams(flags.params)
	if err != nil {
		return err
	}
	params, err := paramsFor(defs, overrides, profile)
	if err != nil {
		return err
	}

	names := make([]string, len(defs))
	for i, def := range defs {
		names[i] = def.Name
	}
	job := a.startJob(ctx, "run", names, a.cfg.Data.Assets)

	batch, err := a.runBatch(ctx, defs, params)
	if err != nil {
		a.finishJob(ctx, job, nil, err)
		return err
	}
	a.finishJob(ctx, job, backtest.SummarizeBatch(batch), nil)
	return nil
}

func (a *app) runBatch(ctx context.Context, defs []strategy.Definition, params map[string]strategy.ParameterSet) (*backtest.Batch, error) {
	dataset, err := a.loadDataset(ctx, a.cfg.Data.Assets)
	if err != nil {
		return nil, err
	}

	batch, err := a.runner.RunAll(ctx, backtest.Jobs(defs, params, a.cfg.Data.Assets), dataset)
	if err != nil {
		return nil, err
	}

	agg := results.NewAggregator()
	if err := agg.AddBatch(batch); err != nil {
		return nil, err
	}
	if _, err := a.writer.Summary(agg.Rows()); err != nil {
		return nil, err
	}
	if a.cfg.Report.HTML {
		for _, key := range agg.Keys() {
			res, _ := agg.Result(key)
			if _, err := a.writer.Report(res, a.runner.EngineConfig(), nil); err != nil {
				a.logger.Warn().Err(err).Str("key", key).Msg("Failed to write HTML report")
			}
		}
	}

	for _, skip := range agg.Skipped() {
		a.logger.Warn().Str("key", skip.Key).Str("reason", skip.Reason.String()).Msg("Backtest skipped")
	}
	s := agg.Summary()
	if s.Results == 0 {
		return batch, fmt.Errorf("no backtest completed (%d skipped)", s.Skipped)
	}
	a.logger.Info().
		Int("results", s.Results).
		Int("skipped", s.Skipped).
		Int("total_trades", s.TotalTrades).
		Float64("mean_final_equity", s.MeanFinalEquity).
		Float64("median_final_equity", s.MedianFinalEquity).
		Float64("mean_sharpe", s.MeanSharpe).
		Str("best", s.BestKey).
		Float64("best_final_equity", s.BestFinalEquity).
		Str("worst", s.WorstKey).
		Float64("worst_final_equity", s.WorstFinalEquity).
		Msg("Backtest batch complete")
	return batch, nil
}
