package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/ajitpratap0/mtfbacktest/pkg/market"
)

// DefaultExchange is stored with imported bars that name no exchange.
const DefaultExchange = "binance"

var farFuture = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)

// dbTimeframe is the spelling stored in candlesticks.timeframe: "5m", "1h",
// "1d".
func dbTimeframe(tf market.Timeframe) string {
	return strings.ToLower(tf.String())
}

// CandleRepository reads and writes the candlesticks table.
type CandleRepository struct {
	db       PoolInterface
	exchange string
	logger   zerolog.Logger
}

// NewCandleRepository creates a repository scoped to one exchange.
func NewCandleRepository(db PoolInterface, exchange string, logger zerolog.Logger) *CandleRepository {
	if exchange == "" {
		exchange = DefaultExchange
	}
	return &CandleRepository{
		db:       db,
		exchange: exchange,
		logger:   logger.With().Str("component", "candle_repository").Logger(),
	}
}

// LoadFrame reads the bars of asset at timeframe within [from, to]. A zero to
// means no upper bound. No rows yields market.ErrNoBars.
func (r *CandleRepository) LoadFrame(ctx context.Context, asset string, tf market.Timeframe, from, to time.Time) (*market.Frame, error) {
	if to.IsZero() {
		to = farFuture
	}

	query := `
		SELECT time, open, high, low, close, volume
		FROM candlesticks
		WHERE symbol = $1
			AND exchange = $2
			AND timeframe = $3
			AND time >= $4
			AND time <= $5
		ORDER BY time ASC
	`
	rows, err := r.db.Query(ctx, query, asset, r.exchange, dbTimeframe(tf), from, to)
	if err != nil {
		return nil, fmt.Errorf("query candlesticks: %w", err)
	}
	defer rows.Close()

	var bars []market.Bar
	for rows.Next() {
		var b market.Bar
		if err := rows.Scan(&b.Timestamp, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("scan candlestick: %w", err)
		}
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}

	frame, err := market.FromBars(asset, tf, bars)
	if err != nil {
		return nil, err
	}

	r.logger.Debug().
		Str("asset", asset).
		Str("timeframe", tf.String()).
		Int("bars", frame.Len()).
		Msg("Loaded candlesticks")
	return frame, nil
}

// LoadDataset loads every (asset, timeframe) pair. Missing pairs are logged
// and left out, like market.LoadDataset does for files.
func (r *CandleRepository) LoadDataset(ctx context.Context, assets, timeframes []string, srWindow int) (market.Dataset, error) {
	tfs := make([]market.Timeframe, len(timeframes))
	for i, s := range timeframes {
		tf, err := market.ParseTimeframe(s)
		if err != nil {
			return nil, err
		}
		tfs[i] = tf
	}

	ds := make(market.Dataset)
	for _, asset := range assets {
		for _, tf := range tfs {
			frame, err := r.LoadFrame(ctx, asset, tf, time.Time{}, time.Time{})
			if errors.Is(err, market.ErrNoBars) {
				r.logger.Warn().Str("asset", asset).Str("timeframe", tf.String()).Msg("Timeframe unavailable")
				continue
			}
			if err != nil {
				return nil, err
			}
			if srWindow > 0 {
				if err := market.WithSupportResistance(frame, srWindow); err != nil {
					return nil, err
				}
			}
			ds.Add(frame)
		}
		if _, ok := ds[asset]; !ok {
			r.logger.Warn().Str("asset", asset).Msg("No data loaded for asset")
		}
	}

	r.logger.Info().Int("assets", len(ds)).Strs("timeframes", timeframes).Msg("Loaded dataset from database")
	return ds, nil
}

// SaveFrame bulk-inserts the OHLCV columns of frame and returns the row count.
func (r *CandleRepository) SaveFrame(ctx context.Context, frame *market.Frame) (int64, error) {
	if frame.Len() == 0 {
		return 0, market.ErrNoBars
	}
	if missing := frame.MissingColumns(market.ColumnOpen, market.ColumnHigh, market.ColumnLow, market.ColumnClose, market.ColumnVolume); len(missing) > 0 {
		return 0, fmt.Errorf("%s %s: missing columns %v", frame.Asset, frame.Timeframe, missing)
	}

	tf := dbTimeframe(frame.Timeframe)
	rows := make([][]any, frame.Len())
	for i := range rows {
		b := frame.Bar(i)
		rows[i] = []any{b.Timestamp, frame.Asset, r.exchange, tf, b.Open, b.High, b.Low, b.Close, b.Volume}
	}

	n, err := r.db.CopyFrom(ctx,
		pgx.Identifier{"candlesticks"},
		[]string{"time", "symbol", "exchange", "timeframe", "open", "high", "low", "close", "volume"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return 0, fmt.Errorf("copy candlesticks: %w", err)
	}

	r.logger.Info().Str("asset", frame.Asset).Str("timeframe", tf).Int64("rows", n).Msg("Saved candlesticks")
	return n, nil
}
