package market

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/rs/zerolog"
)

// ============================================================================
// CSV
// ============================================================================

var timestampHeaders = []string{"timestamp", "time", "date", "datetime", "open_time"}

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// csvColumns are read when present. Headers match case-insensitively.
var csvColumns = []string{
	ColumnOpen, ColumnHigh, ColumnLow, ColumnClose, ColumnVolume,
	ColumnSupport, ColumnResistance,
}

// LoadCSV reads a frame from a CSV file with a header row. A timestamp column
// and a close column are required; rows that fail to parse are logged and
// skipped.
func LoadCSV(path string, asset string, tf Timeframe, logger zerolog.Logger) (*Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	return ReadCSV(file, asset, tf, logger.With().Str("file", path).Logger())
}

// ReadCSV is LoadCSV over an arbitrary reader.
func ReadCSV(r io.Reader, asset string, tf Timeframe, logger zerolog.Logger) (*Frame, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.ToLower(strings.TrimSpace(h))] = i
	}

	tsCol := -1
	for _, name := range timestampHeaders {
		if i, ok := index[name]; ok {
			tsCol = i
			break
		}
	}
	if tsCol < 0 {
		return nil, fmt.Errorf("CSV header %v has no timestamp column", header)
	}
	if _, ok := index[ColumnClose]; !ok {
		return nil, fmt.Errorf("CSV header %v has no %q column", header, ColumnClose)
	}

	var present []string
	for _, name := range csvColumns {
		if _, ok := index[name]; ok {
			present = append(present, name)
		}
	}

	var timestamps []time.Time
	values := make(map[string][]float64, len(present))
	lineNum := 1

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		lineNum++
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV record at line %d: %w", lineNum, err)
		}

		ts, err := parseTimestamp(field(record, tsCol))
		if err != nil {
			logger.Warn().Int("line", lineNum).Str("timestamp", field(record, tsCol)).Msg("Failed to parse timestamp, skipping")
			continue
		}

		row := make([]float64, len(present))
		ok := true
		for j, name := range present {
			raw := strings.TrimSpace(field(record, index[name]))
			if raw == "" {
				row[j] = math.NaN()
				continue
			}
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				logger.Warn().Int("line", lineNum).Str("column", name).Msg("Failed to parse value, skipping")
				ok = false
				break
			}
			row[j] = v
		}
		if !ok {
			continue
		}

		timestamps = append(timestamps, ts)
		for j, name := range present {
			values[name] = append(values[name], row[j])
		}
	}

	if len(timestamps) == 0 {
		return nil, fmt.Errorf("%s %s: %w", asset, tf, ErrNoBars)
	}

	f := NewFrame(asset, tf, timestamps)
	for _, name := range present {
		f.setColumn(name, values[name])
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}

	logger.Debug().
		Str("asset", asset).
		Str("timeframe", tf.String()).
		Int("bars", f.Len()).
		Msg("Loaded CSV frame")

	return f, nil
}

// WriteCSV writes a frame with a timestamp column followed by every column in
// insertion order.
func WriteCSV(f *Frame, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	w := csv.NewWriter(file)
	header := append([]string{"timestamp"}, f.order...)
	if err := w.Write(header); err != nil {
		return err
	}
	for i, ts := range f.Timestamps {
		row := make([]string, 0, len(header))
		row = append(row, ts.UTC().Format(time.RFC3339))
		for _, name := range f.order {
			row = append(row, strconv.FormatFloat(f.columns[name][i], 'f', -1, 64))
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func field(record []string, i int) string {
	if i < 0 || i >= len(record) {
		return ""
	}
	return record[i]
}

// parseTimestamp accepts the layouts above plus Unix seconds or milliseconds.
func parseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if n > 1e12 {
			return time.UnixMilli(n).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}

// ============================================================================
// PARQUET
// ============================================================================

// BarRecord is the Parquet schema for bar files. Support and resistance are
// zero when the source frame carried no levels.
type BarRecord struct {
	Timestamp  int64   `parquet:"timestamp,timestamp(millisecond)"`
	Open       float64 `parquet:"open"`
	High       float64 `parquet:"high"`
	Low        float64 `parquet:"low"`
	Close      float64 `parquet:"close"`
	Volume     float64 `parquet:"volume"`
	Support    float64 `parquet:"support"`
	Resistance float64 `parquet:"resistance"`
}

// LoadParquet reads a frame from a Parquet file of BarRecord rows.
func LoadParquet(path string, asset string, tf Timeframe) (*Frame, error) {
	rows, err := parquet.ReadFile[BarRecord](path)
	if err != nil {
		return nil, fmt.Errorf("failed to read parquet file %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s %s: %w", asset, tf, ErrNoBars)
	}

	bars := make([]Bar, len(rows))
	support := make([]float64, len(rows))
	resistance := make([]float64, len(rows))
	hasLevels := false
	for i, r := range rows {
		bars[i] = Bar{
			Timestamp: time.UnixMilli(r.Timestamp).UTC(),
			Open:      r.Open,
			High:      r.High,
			Low:       r.Low,
			Close:     r.Close,
			Volume:    r.Volume,
		}
		support[i] = r.Support
		resistance[i] = r.Resistance
		if r.Support != 0 || r.Resistance != 0 {
			hasLevels = true
		}
	}

	f, err := FromBars(asset, tf, bars)
	if err != nil {
		return nil, err
	}
	// FromBars sorts; parquet files are written in timestamp order so the
	// level columns line up unless the file was unsorted.
	if hasLevels && sortedRecords(rows) {
		f.setColumn(ColumnSupport, support)
		f.setColumn(ColumnResistance, resistance)
	}
	return f, nil
}

// WriteParquet writes a frame as BarRecord rows.
func WriteParquet(f *Frame, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	support, hasSupport := f.Column(ColumnSupport)
	resistance, hasResistance := f.Column(ColumnResistance)

	rows := make([]BarRecord, f.Len())
	for i := range rows {
		b := f.Bar(i)
		rows[i] = BarRecord{
			Timestamp: b.Timestamp.UnixMilli(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		}
		if hasSupport {
			rows[i].Support = support[i]
		}
		if hasResistance {
			rows[i].Resistance = resistance[i]
		}
	}
	return parquet.WriteFile(path, rows)
}

func sortedRecords(rows []BarRecord) bool {
	for i := 1; i < len(rows); i++ {
		if rows[i].Timestamp <= rows[i-1].Timestamp {
			return false
		}
	}
	return true
}
