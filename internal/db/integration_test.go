package db_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/mtfbacktest/internal/db"
	"github.com/ajitpratap0/mtfbacktest/internal/db/testhelpers"
	"github.com/ajitpratap0/mtfbacktest/pkg/market"
)

func TestMigrationsWithTestcontainers(t *testing.T) {
	tc := testhelpers.SetupTestDatabase(t)
	ctx := context.Background()

	applied, err := tc.ApplyMigrations()
	require.NoError(t, err)
	assert.Equal(t, 2, applied)

	again, err := tc.ApplyMigrations()
	require.NoError(t, err)
	assert.Zero(t, again, "a second run finds nothing pending")

	status, err := db.NewMigrator(tc.DB.Pool(), nil, zerolog.Nop()).Status(ctx)
	require.NoError(t, err)
	require.Len(t, status, 2)
	for _, s := range status {
		assert.True(t, s.Applied, s.Filename)
	}

	assert.NoError(t, tc.DB.Health(ctx))
}

func TestCandleRoundTripWithTestcontainers(t *testing.T) {
	tc := testhelpers.SetupTestDatabase(t)
	_, err := tc.ApplyMigrations()
	require.NoError(t, err)

	ctx := context.Background()
	repo := db.NewCandleRepository(tc.DB.Pool(), "binance", zerolog.Nop())
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	bars := func(n int, step time.Duration) []market.Bar {
		out := make([]market.Bar, n)
		for i := range out {
			c := 100 + float64(i)
			out[i] = market.Bar{Timestamp: start.Add(time.Duration(i) * step), Open: c, High: c + 1, Low: c - 1, Close: c + 0.5, Volume: 10 + float64(i)}
		}
		return out
	}

	t.Run("HourlyFrame", func(t *testing.T) {
		require.NoError(t, tc.TruncateAllTables())

		frame, err := market.FromBars("BTCUSDT", market.MustParseTimeframe("1H"), bars(24, time.Hour))
		require.NoError(t, err)

		n, err := repo.SaveFrame(ctx, frame)
		require.NoError(t, err)
		assert.Equal(t, int64(24), n)

		var stored string
		require.NoError(t, tc.DB.Pool().QueryRow(ctx, "SELECT DISTINCT timeframe FROM candlesticks").Scan(&stored))
		assert.Equal(t, "1h", stored)

		loaded, err := repo.LoadFrame(ctx, "BTCUSDT", market.MustParseTimeframe("1h"), time.Time{}, time.Time{})
		require.NoError(t, err)
		require.Equal(t, frame.Len(), loaded.Len())
		for i := 0; i < frame.Len(); i++ {
			want, got := frame.Bar(i), loaded.Bar(i)
			assert.True(t, want.Timestamp.Equal(got.Timestamp), "bar %d timestamp", i)
			want.Timestamp, got.Timestamp = time.Time{}, time.Time{}
			assert.Equal(t, want, got, "bar %d", i)
		}
	})

	t.Run("Window", func(t *testing.T) {
		require.NoError(t, tc.TruncateAllTables())

		frame, err := market.FromBars("ETHUSDT", market.MustParseTimeframe("5m"), bars(12, 5*time.Minute))
		require.NoError(t, err)
		_, err = repo.SaveFrame(ctx, frame)
		require.NoError(t, err)

		loaded, err := repo.LoadFrame(ctx, "ETHUSDT", frame.Timeframe, start.Add(10*time.Minute), start.Add(20*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, 3, loaded.Len(), "both bounds are inclusive")
	})

	t.Run("Dataset", func(t *testing.T) {
		require.NoError(t, tc.TruncateAllTables())

		for _, f := range []struct {
			tf   string
			step time.Duration
			n    int
		}{{"5m", 5 * time.Minute, 24}, {"1H", time.Hour, 2}} {
			frame, err := market.FromBars("BTCUSDT", market.MustParseTimeframe(f.tf), bars(f.n, f.step))
			require.NoError(t, err)
			_, err = repo.SaveFrame(ctx, frame)
			require.NoError(t, err)
		}

		ds, err := repo.LoadDataset(ctx, []string{"BTCUSDT", "SOLUSDT"}, []string{"5m", "1h", "1d"}, 3)
		require.NoError(t, err)
		require.Contains(t, ds, "BTCUSDT")
		assert.NotContains(t, ds, "SOLUSDT")
		assert.Len(t, ds["BTCUSDT"], 2)
	})

	t.Run("OtherExchange", func(t *testing.T) {
		require.NoError(t, tc.TruncateAllTables())

		frame, err := market.FromBars("BTCUSDT", market.MustParseTimeframe("1h"), bars(3, time.Hour))
		require.NoError(t, err)
		_, err = db.NewCandleRepository(tc.DB.Pool(), "kraken", zerolog.Nop()).SaveFrame(ctx, frame)
		require.NoError(t, err)

		_, err = repo.LoadFrame(ctx, "BTCUSDT", frame.Timeframe, time.Time{}, time.Time{})
		assert.ErrorIs(t, err, market.ErrNoBars)
	})
}
