// Package market holds the in-memory price series used by backtests: one
// Frame per (asset, timeframe), loaded once and read-only afterwards.
package market

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

// Standard column names. Loaders normalize headers to these.
const (
	ColumnOpen       = "open"
	ColumnHigh       = "high"
	ColumnLow        = "low"
	ColumnClose      = "close"
	ColumnVolume     = "volume"
	ColumnSupport    = "support"
	ColumnResistance = "resistance"
)

// PriceColumns are the OHLC fields perturbed by Monte Carlo simulations.
var PriceColumns = []string{ColumnOpen, ColumnHigh, ColumnLow, ColumnClose}

var (
	// ErrNoBars is returned when a frame has no rows.
	ErrNoBars = errors.New("frame has no bars")
	// ErrNotMonotonic is returned when timestamps are not strictly increasing.
	ErrNotMonotonic = errors.New("timestamps are not strictly increasing")
)

// Bar is a single OHLCV row.
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Frame is a columnar series for one (asset, timeframe) pair. Timestamps are
// strictly increasing and every column has one value per timestamp.
type Frame struct {
	Asset      string
	Timeframe  Timeframe
	Timestamps []time.Time

	columns map[string][]float64
	order   []string
}

// NewFrame creates an empty frame over the given timestamps.
func NewFrame(asset string, tf Timeframe, timestamps []time.Time) *Frame {
	return &Frame{
		Asset:      asset,
		Timeframe:  tf,
		Timestamps: timestamps,
		columns:    make(map[string][]float64),
	}
}

// FromBars builds an OHLCV frame. Bars are sorted by timestamp; duplicate
// timestamps are rejected.
func FromBars(asset string, tf Timeframe, bars []Bar) (*Frame, error) {
	if len(bars) == 0 {
		return nil, fmt.Errorf("%s %s: %w", asset, tf, ErrNoBars)
	}

	sorted := make([]Bar, len(bars))
	copy(sorted, bars)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	n := len(sorted)
	timestamps := make([]time.Time, n)
	open := make([]float64, n)
	high := make([]float64, n)
	low := make([]float64, n)
	closes := make([]float64, n)
	volume := make([]float64, n)
	for i, b := range sorted {
		timestamps[i] = b.Timestamp
		open[i] = b.Open
		high[i] = b.High
		low[i] = b.Low
		closes[i] = b.Close
		volume[i] = b.Volume
	}

	f := NewFrame(asset, tf, timestamps)
	f.setColumn(ColumnOpen, open)
	f.setColumn(ColumnHigh, high)
	f.setColumn(ColumnLow, low)
	f.setColumn(ColumnClose, closes)
	f.setColumn(ColumnVolume, volume)

	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	if f == nil {
		return 0
	}
	return len(f.Timestamps)
}

// SetColumn adds or replaces a column. The length must match the frame.
func (f *Frame) SetColumn(name string, values []float64) error {
	if len(values) != len(f.Timestamps) {
		return fmt.Errorf("column %q has %d values, frame has %d rows", name, len(values), len(f.Timestamps))
	}
	f.setColumn(name, values)
	return nil
}

func (f *Frame) setColumn(name string, values []float64) {
	if _, exists := f.columns[name]; !exists {
		f.order = append(f.order, name)
	}
	f.columns[name] = values
}

// Column returns the values of a column.
func (f *Frame) Column(name string) ([]float64, bool) {
	if f == nil {
		return nil, false
	}
	values, ok := f.columns[name]
	return values, ok
}

// Columns returns column names in insertion order.
func (f *Frame) Columns() []string {
	out := make([]string, len(f.order))
	copy(out, f.order)
	return out
}

// MissingColumns returns the names that the frame does not carry.
func (f *Frame) MissingColumns(names ...string) []string {
	var missing []string
	for _, name := range names {
		if _, ok := f.Column(name); !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// Bar returns row i as a Bar. Missing OHLCV columns read as NaN.
func (f *Frame) Bar(i int) Bar {
	return Bar{
		Timestamp: f.Timestamps[i],
		Open:      f.value(ColumnOpen, i),
		High:      f.value(ColumnHigh, i),
		Low:       f.value(ColumnLow, i),
		Close:     f.value(ColumnClose, i),
		Volume:    f.value(ColumnVolume, i),
	}
}

func (f *Frame) value(name string, i int) float64 {
	values, ok := f.columns[name]
	if !ok {
		return math.NaN()
	}
	return values[i]
}

// Validate checks the frame invariants.
func (f *Frame) Validate() error {
	if f.Len() == 0 {
		return ErrNoBars
	}
	for i := 1; i < len(f.Timestamps); i++ {
		if !f.Timestamps[i].After(f.Timestamps[i-1]) {
			return fmt.Errorf("%s %s row %d (%s): %w",
				f.Asset, f.Timeframe, i, f.Timestamps[i].Format(time.RFC3339), ErrNotMonotonic)
		}
	}
	for _, name := range f.order {
		if len(f.columns[name]) != len(f.Timestamps) {
			return fmt.Errorf("%s %s column %q length mismatch", f.Asset, f.Timeframe, name)
		}
	}
	return nil
}

// Clone returns a deep copy.
func (f *Frame) Clone() *Frame {
	timestamps := make([]time.Time, len(f.Timestamps))
	copy(timestamps, f.Timestamps)

	out := NewFrame(f.Asset, f.Timeframe, timestamps)
	for _, name := range f.order {
		values := make([]float64, len(f.columns[name]))
		copy(values, f.columns[name])
		out.setColumn(name, values)
	}
	return out
}

// Between returns the rows with from <= timestamp < to. Zero bounds are open.
func (f *Frame) Between(from, to time.Time) *Frame {
	start := 0
	if !from.IsZero() {
		start = sort.Search(len(f.Timestamps), func(i int) bool { return !f.Timestamps[i].Before(from) })
	}
	end := len(f.Timestamps)
	if !to.IsZero() {
		end = sort.Search(len(f.Timestamps), func(i int) bool { return !f.Timestamps[i].Before(to) })
	}
	if end < start {
		end = start
	}

	out := NewFrame(f.Asset, f.Timeframe, f.Timestamps[start:end])
	for _, name := range f.order {
		out.setColumn(name, f.columns[name][start:end])
	}
	return out
}
