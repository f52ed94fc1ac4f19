package db

import (
	"context"
	"errors"
	"os"
	"regexp"
	"testing"
	"testing/fstest"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/mtfbacktest/pkg/market"
)

func TestNew_Live(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("Skipping database test: DATABASE_URL not set")
	}
	db, err := New(context.Background(), dsn, 2, zerolog.Nop())
	if err != nil {
		t.Skipf("Skipping database test: failed to connect: %v", err)
	}
	defer db.Close()

	assert.NotNil(t, db.Pool())
	assert.NoError(t, db.Health(context.Background()))
}

func TestNew_RejectsBadDSN(t *testing.T) {
	_, err := New(context.Background(), "", 1, zerolog.Nop())
	assert.Error(t, err)

	_, err = New(context.Background(), "postgres://%zz", 1, zerolog.Nop())
	assert.Error(t, err)
}

var testMigrations = fstest.MapFS{
	"001_candlesticks.sql":      {Data: []byte("CREATE TABLE candlesticks (time TIMESTAMPTZ)")},
	"001_candlesticks_down.sql": {Data: []byte("DROP TABLE candlesticks")},
	"002_backtest_jobs.sql":     {Data: []byte("CREATE TABLE backtest_jobs (id UUID)")},
	"README.md":                 {Data: []byte("not a migration")},
}

func TestMigrator_Load(t *testing.T) {
	m := NewMigrator(nil, testMigrations, zerolog.Nop())
	migrations, err := m.Load()
	require.NoError(t, err)
	require.Len(t, migrations, 2)
	assert.Equal(t, 1, migrations[0].Version)
	assert.Equal(t, "candlesticks", migrations[0].Description)
	assert.Equal(t, "backtest jobs", migrations[1].Description)

	bad := NewMigrator(nil, fstest.MapFS{"init.sql": {Data: []byte("")}}, zerolog.Nop())
	_, err = bad.Load()
	assert.Error(t, err)

	dup := NewMigrator(nil, fstest.MapFS{
		"001_a.sql": {Data: []byte("")},
		"001_b.sql": {Data: []byte("")},
	}, zerolog.Nop())
	_, err = dup.Load()
	assert.Error(t, err)
}

func TestMigrator_EmbeddedSchema(t *testing.T) {
	migrations, err := NewMigrator(nil, nil, zerolog.Nop()).Load()
	require.NoError(t, err)
	require.Len(t, migrations, 2)
	assert.Contains(t, migrations[0].SQL, "CREATE TABLE IF NOT EXISTS candlesticks")
	assert.Contains(t, migrations[1].SQL, "CREATE TABLE IF NOT EXISTS backtest_jobs")
}

func expectVersion(mock pgxmock.PgxPoolIface, version int) {
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_version").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(MAX(version), 0) FROM schema_version")).
		WillReturnRows(pgxmock.NewRows([]string{"version"}).AddRow(version))
}

func TestMigrator_Migrate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	expectVersion(mock, 1)
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE backtest_jobs").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("INSERT INTO schema_version").
		WithArgs(2, "backtest jobs").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	applied, err := NewMigrator(mock, testMigrations, zerolog.Nop()).Migrate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrator_MigrateRollsBack(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	expectVersion(mock, 0)
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE candlesticks").WillReturnError(errors.New("syntax error"))
	mock.ExpectRollback()

	applied, err := NewMigrator(mock, testMigrations, zerolog.Nop()).Migrate(context.Background())
	assert.Error(t, err)
	assert.Zero(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrator_Status(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	expectVersion(mock, 1)
	status, err := NewMigrator(mock, testMigrations, zerolog.Nop()).Status(context.Background())
	require.NoError(t, err)
	require.Len(t, status, 2)
	assert.True(t, status[0].Applied)
	assert.False(t, status[1].Applied)
}

func TestDBTimeframe(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"5m", "5m"},
		{"1h", "1h"},
		{"1H", "1h"},
		{"4h", "4h"},
		{"1d", "1d"},
		{"1D", "1d"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, dbTimeframe(market.MustParseTimeframe(tt.in)))
		})
	}
}

var candleColumns = []string{"time", "open", "high", "low", "close", "volume"}

func TestCandleRepository_LoadFrame(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := pgxmock.NewRows(candleColumns).
		AddRow(start, 100.0, 101.0, 99.0, 100.5, 10.0).
		AddRow(start.Add(time.Hour), 100.5, 102.0, 100.0, 101.5, 12.0)
	mock.ExpectQuery("SELECT time, open, high, low, close, volume").
		WithArgs("BTCUSDT", "binance", "1h", time.Time{}, farFuture).
		WillReturnRows(rows)

	repo := NewCandleRepository(mock, "", zerolog.Nop())
	frame, err := repo.LoadFrame(context.Background(), "BTCUSDT", market.MustParseTimeframe("1H"), time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 2, frame.Len())
	closes, ok := frame.Column(market.ColumnClose)
	require.True(t, ok)
	assert.Equal(t, []float64{100.5, 101.5}, closes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCandleRepository_LoadDataset(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := pgxmock.NewRows(candleColumns)
	for i := 0; i < 5; i++ {
		c := 100 + float64(i)
		rows.AddRow(start.Add(time.Duration(i)*5*time.Minute), c, c+1, c-1, c, 1.0)
	}
	mock.ExpectQuery("FROM candlesticks").
		WithArgs("BTCUSDT", "binance", "5m", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(rows)
	mock.ExpectQuery("FROM candlesticks").
		WithArgs("BTCUSDT", "binance", "1h", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows(candleColumns))

	repo := NewCandleRepository(mock, "binance", zerolog.Nop())
	ds, err := repo.LoadDataset(context.Background(), []string{"BTCUSDT"}, []string{"5m", "1h"}, 3)
	require.NoError(t, err)

	tfs := ds["BTCUSDT"]
	require.Len(t, tfs, 1, "the empty timeframe is left out")
	frame, ok := tfs.Get("5m")
	require.True(t, ok)
	_, ok = frame.Column(market.ColumnSupport)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())

	_, err = repo.LoadDataset(context.Background(), []string{"BTCUSDT"}, []string{"5 minutes"}, 0)
	assert.Error(t, err)
}

func TestCandleRepository_SaveFrame(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	frame, err := market.FromBars("ETHUSDT", market.MustParseTimeframe("1h"), []market.Bar{
		{Timestamp: start, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 3},
		{Timestamp: start.Add(time.Hour), Open: 1.5, High: 2, Low: 1, Close: 1.8, Volume: 4},
	})
	require.NoError(t, err)

	mock.ExpectCopyFrom(pgx.Identifier{"candlesticks"},
		[]string{"time", "symbol", "exchange", "timeframe", "open", "high", "low", "close", "volume"}).
		WillReturnResult(2)

	n, err := NewCandleRepository(mock, "", zerolog.Nop()).SaveFrame(context.Background(), frame)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())

	_, err = NewCandleRepository(mock, "", zerolog.Nop()).SaveFrame(context.Background(), nil)
	assert.ErrorIs(t, err, market.ErrNoBars)
}
