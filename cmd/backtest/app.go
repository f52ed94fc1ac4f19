package main

import (
	"context"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/ajitpratap0/mtfbacktest/internal/backtest"
	"github.com/ajitpratap0/mtfbacktest/internal/config"
	"github.com/ajitpratap0/mtfbacktest/internal/db"
	"github.com/ajitpratap0/mtfbacktest/internal/metrics"
	"github.com/ajitpratap0/mtfbacktest/internal/results"
	"github.com/ajitpratap0/mtfbacktest/internal/strategy"
	"github.com/ajitpratap0/mtfbacktest/pkg/market"
)

// commonFlags are shared by every mode.
type commonFlags struct {
	configPath    string
	strategies    string
	assets        string
	params        string
	profile       string
	out           string
	verbose       bool
	exportProfile string
	from          string
	to            string
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "Path to the YAML config file")
	fs.StringVar(&c.strategies, "strategies", "", "Comma-separated strategy names (default: all registered)")
	fs.StringVar(&c.assets, "assets", "", "Comma-separated assets (default: data.assets)")
	fs.StringVar(&c.params, "params", "", "Parameter overrides, e.g. sl_percent=3,tp_percent=10")
	fs.StringVar(&c.profile, "profile", "", "Parameter profile to start from (YAML or JSON)")
	fs.StringVar(&c.out, "out", "", "Report directory (default: report.dir)")
	fs.BoolVar(&c.verbose, "verbose", false, "Enable debug logging")
	fs.StringVar(&c.exportProfile, "export-profile", "", "Write the best parameters to this profile file")
	fs.StringVar(&c.from, "from", "", "First bar time to test, YYYY-MM-DD or RFC3339 (default: start of data)")
	fs.StringVar(&c.to, "to", "", "Bars at or after this time are left out (default: end of data)")
}

// app holds what every mode needs once the config is loaded.
type app struct {
	cfg        *config.Config
	logger     zerolog.Logger
	registry   *strategy.Registry
	collectors *metrics.Collectors
	metricsSrv *metrics.Server
	database   *db.DB
	jobs       *backtest.JobManager
	runner     *backtest.Runner
	writer     *results.Writer
	window     window
}

func newApp(ctx context.Context, flags commonFlags) (*app, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	if flags.verbose {
		cfg.Logging.Level = "debug"
	}
	if flags.out != "" {
		cfg.Report.Dir = flags.out
	}
	if assets := splitList(flags.assets); len(assets) > 0 {
		cfg.Data.Assets = assets
	}
	win, err := parseWindow(flags.from, flags.to)
	if err != nil {
		return nil, err
	}

	logger := config.InitLogger(cfg.Logging)
	a := &app{
		cfg:        cfg,
		logger:     logger,
		registry:   strategy.DefaultRegistry(),
		collectors: metrics.NewCollectors(prometheus.DefaultRegisterer),
		writer:     results.NewWriter(cfg.Report.Dir, logger),
		window:     win,
	}
	a.runner = backtest.NewRunner(cfg.Backtest.EngineConfig(), backtest.Options{
		Concurrent: cfg.Backtest.Concurrent,
		Workers:    cfg.Backtest.Workers,
	}, a.collectors, logger)

	if cfg.Monitoring.EnableMetrics {
		a.metricsSrv = metrics.NewServer(cfg.Monitoring.GetMetricsAddr(), prometheus.DefaultGatherer, logger)
		if err := a.metricsSrv.Start(); err != nil {
			return nil, err
		}
	}

	if cfg.Data.UsesDatabase() || cfg.Database.PersistJobs {
		a.database, err = db.New(ctx, cfg.Database.GetDSN(), cfg.Database.PoolSize, logger)
		if err != nil {
			a.close()
			return nil, err
		}
		if cfg.Database.PersistJobs {
			a.jobs = backtest.NewJobManager(a.database.Pool(), logger)
		}
	}

	logger.Info().
		Str("version", config.GetVersion()).
		Str("environment", cfg.App.Environment).
		Strs("assets", cfg.Data.Assets).
		Strs("timeframes", cfg.Data.Timeframes).
		Msg("Backtest starting")
	if !win.isZero() {
		logger.Info().Time("from", win.from).Time("to", win.to).Msg("Restricting bars to date window")
	}
	return a, nil
}

func (a *app) close() {
	if a.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.metricsSrv.Shutdown(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("Metrics server shutdown failed")
		}
	}
	if a.database != nil {
		a.database.Close()
	}
}

// loadDataset reads bars from files or from the candlesticks table and cuts
// them to the -from/-to window. Support and resistance are computed over the
// full history first, so the window's first bars already carry them.
func (a *app) loadDataset(ctx context.Context, assets []string) (market.Dataset, error) {
	var (
		ds  market.Dataset
		err error
	)
	if a.cfg.Data.UsesDatabase() {
		repo := db.NewCandleRepository(a.database.Pool(), "", a.logger)
		ds, err = repo.LoadDataset(ctx, assets, a.cfg.Data.Timeframes, a.cfg.Data.SupportResistanceWindow)
	} else {
		ds, err = market.LoadDataset(a.cfg.Data.Dir, assets, a.cfg.Data.Timeframes, a.cfg.Data.LoadOptions(), a.logger)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load data: %w", err)
	}
	ds = a.window.apply(ds, a.logger)

	for _, asset := range ds.Assets() {
		for _, tf := range ds[asset].Keys() {
			frame, _ := ds[asset].Get(tf)
			a.collectors.SetDatasetBars(asset, tf, frame.Len())
		}
	}
	return ds, nil
}

// definitions resolves the -strategies flag against the registry.
func (a *app) definitions(names string) ([]strategy.Definition, error) {
	list := splitList(names)
	if len(list) == 0 {
		list = a.registry.Names()
	}
	defs := make([]strategy.Definition, 0, len(list))
	for _, name := range list {
		def, ok := a.registry.Get(name)
		if !ok {
			return nil, fmt.Errorf("unknown strategy %q (registered: %s)", name, strings.Join(a.registry.Names(), ", "))
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// startJob records the invocation when job persistence is on. A nil job
// means persistence is off.
func (a *app) startJob(ctx context.Context, mode string, strategies, assets []string) *backtest.BacktestJob {
	if a.jobs == nil {
		return nil
	}
	job := &backtest.BacktestJob{
		Name:           fmt.Sprintf("%s-%s", mode, time.Now().UTC().Format("20060102T150405")),
		Mode:           mode,
		Strategies:     strategies,
		Assets:         assets,
		InitialCapital: a.cfg.Backtest.InitialCash,
		Config: map[string]interface{}{
			"commission":      a.cfg.Backtest.Commission,
			"position_sizing": a.cfg.Backtest.PositionSizing,
			"timeframes":      a.cfg.Data.Timeframes,
			"seed":            a.cfg.Optimization.Seed,
		},
	}
	if err := a.jobs.CreateJob(ctx, job); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to record backtest job")
		return nil
	}
	if err := a.jobs.UpdateJobStatus(ctx, job.ID, backtest.JobStatusRunning, ""); err != nil {
		a.logger.Warn().Err(err).Str("job_id", job.ID.String()).Msg("Failed to mark job running")
	}
	return job
}

// finishJob stores results, or the failure, of a recorded job.
func (a *app) finishJob(ctx context.Context, job *backtest.BacktestJob, res *backtest.JobResults, runErr error) {
	if job == nil {
		return
	}
	var err error
	if runErr != nil {
		err = a.jobs.UpdateJobStatus(ctx, job.ID, backtest.JobStatusFailed, runErr.Error())
	} else {
		err = a.jobs.SaveResults(ctx, job.ID, res)
	}
	if err != nil {
		a.logger.Warn().Err(err).Str("job_id", job.ID.String()).Msg("Failed to update backtest job")
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
