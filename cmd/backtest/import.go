package main

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"github.com/ajitpratap0/mtfbacktest/internal/config"
	"github.com/ajitpratap0/mtfbacktest/internal/db"
	"github.com/ajitpratap0/mtfbacktest/pkg/market"
)

// importMode copies the files under data.dir into the candlesticks table.
func importMode(ctx context.Context, args []string) error {
	var (
		flags    commonFlags
		exchange string
		format   string
	)
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	fs.StringVar(&flags.configPath, "config", "", "Path to the YAML config file")
	fs.StringVar(&flags.assets, "assets", "", "Comma-separated assets (default: data.assets)")
	fs.BoolVar(&flags.verbose, "verbose", false, "Enable debug logging")
	fs.StringVar(&exchange, "exchange", db.DefaultExchange, "Exchange recorded with the bars")
	fs.StringVar(&format, "format", "", "File format, csv or parquet (default: data.source)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := newApp(ctx, flags)
	if err != nil {
		return err
	}
	defer a.close()
	if a.database == nil {
		return errors.New("import needs a database: set database.dsn and database.persist_jobs or data.source=postgres")
	}

	opts := a.cfg.Data.LoadOptions()
	opts.DeriveTimeframes = false
	opts.SupportResistanceWindow = 0
	if format != "" {
		opts.Format = format
	}
	if opts.Format == "" || opts.Format == config.SourcePostgres {
		opts.Format = market.FormatCSV
	}

	ds, err := market.LoadDataset(a.cfg.Data.Dir, a.cfg.Data.Assets, a.cfg.Data.Timeframes, opts, a.logger)
	if err != nil {
		return err
	}

	repo := db.NewCandleRepository(a.database.Pool(), exchange, a.logger)
	var total int64
	for _, asset := range ds.Assets() {
		for _, tf := range ds[asset].Keys() {
			frame, _ := ds[asset].Get(tf)
			n, err := repo.SaveFrame(ctx, frame)
			if err != nil {
				return fmt.Errorf("failed to import %s %s: %w", asset, tf, err)
			}
			total += n
		}
	}
	a.logger.Info().Int64("bars", total).Str("exchange", exchange).Msg("Import complete")
	return nil
}
