package market

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// File formats understood by LoadDataset.
const (
	FormatCSV     = "csv"
	FormatParquet = "parquet"
)

// LoadOptions controls how LoadDataset finds and prepares frames.
type LoadOptions struct {
	Format string // "csv" or "parquet"

	// BaseTimeframe is resampled into any requested timeframe that has no
	// file of its own when DeriveTimeframes is set.
	BaseTimeframe    string
	DeriveTimeframes bool
	// ResampleLabel stamps derived bars; empty means LabelStart.
	ResampleLabel ResampleLabel

	// SupportResistanceWindow adds support/resistance columns to frames that
	// lack them. Zero disables.
	SupportResistanceWindow int
}

// FileName returns the conventional file name for an asset and timeframe,
// e.g. BTCUSDT_5m.csv.
func FileName(asset, timeframe, format string) string {
	return fmt.Sprintf("%s_%s.%s", asset, CanonicalTimeframe(timeframe), format)
}

// LoadDataset reads <dir>/<ASSET>_<TF>.<format> for every requested asset and
// timeframe. An asset with no loadable timeframe is left out and logged;
// callers see the gap as missing data.
func LoadDataset(dir string, assets, timeframes []string, opts LoadOptions, logger zerolog.Logger) (Dataset, error) {
	format := strings.ToLower(opts.Format)
	if format == "" {
		format = FormatCSV
	}
	if format != FormatCSV && format != FormatParquet {
		return nil, fmt.Errorf("unsupported data format %q", opts.Format)
	}

	ds := make(Dataset)
	for _, asset := range assets {
		var base *Frame
		if opts.DeriveTimeframes && opts.BaseTimeframe != "" {
			f, err := loadFrame(dir, asset, opts.BaseTimeframe, format, logger)
			switch {
			case err == nil:
				base = f
			case !errors.Is(err, os.ErrNotExist):
				logger.Warn().Err(err).Str("asset", asset).Str("timeframe", opts.BaseTimeframe).Msg("Failed to load base timeframe")
			}
		}

		for _, timeframe := range timeframes {
			f, err := loadFrame(dir, asset, timeframe, format, logger)
			if errors.Is(err, os.ErrNotExist) && base != nil {
				tf, perr := ParseTimeframe(timeframe)
				if perr != nil {
					return nil, perr
				}
				f, err = ResampleLabeled(base, tf, opts.ResampleLabel)
			}
			if err != nil {
				logger.Warn().Err(err).Str("asset", asset).Str("timeframe", timeframe).Msg("Timeframe unavailable")
				continue
			}

			if opts.SupportResistanceWindow > 0 && len(f.MissingColumns(ColumnSupport, ColumnResistance)) > 0 {
				if err := WithSupportResistance(f, opts.SupportResistanceWindow); err != nil {
					return nil, err
				}
			}
			ds.Add(f)
		}

		if _, ok := ds[asset]; !ok {
			logger.Warn().Str("asset", asset).Msg("No data loaded for asset")
		}
	}

	logger.Info().
		Int("assets", len(ds)).
		Strs("timeframes", timeframes).
		Str("dir", dir).
		Msg("Loaded dataset")

	return ds, nil
}

func loadFrame(dir, asset, timeframe, format string, logger zerolog.Logger) (*Frame, error) {
	tf, err := ParseTimeframe(timeframe)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(dir, FileName(asset, timeframe, format))
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	if format == FormatParquet {
		return LoadParquet(path, asset, tf)
	}
	return LoadCSV(path, asset, tf, logger)
}
