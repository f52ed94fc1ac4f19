package market

import (
	"fmt"
	"math"
	"time"

	"github.com/ajitpratap0/mtfbacktest/internal/indicators"
)

type aggregation int

const (
	aggFirst aggregation = iota
	aggLast
	aggMax
	aggMin
	aggSum
)

// ResampleLabel selects which edge of its bucket an output bar is stamped with.
type ResampleLabel string

const (
	// LabelStart stamps a bar with its bucket open time, like exchange klines.
	LabelStart ResampleLabel = "start"
	// LabelEnd stamps a bar with its bucket close time, the first instant
	// its whole range is known.
	LabelEnd ResampleLabel = "end"
)

// ParseResampleLabel accepts "start", "end" or "" (start).
func ParseResampleLabel(s string) (ResampleLabel, error) {
	switch ResampleLabel(s) {
	case "", LabelStart:
		return LabelStart, nil
	case LabelEnd:
		return LabelEnd, nil
	}
	return "", fmt.Errorf("unknown resample label %q, want start or end", s)
}

var columnAggregation = map[string]aggregation{
	ColumnOpen:       aggFirst,
	ColumnHigh:       aggMax,
	ColumnLow:        aggMin,
	ColumnClose:      aggLast,
	ColumnVolume:     aggSum,
	ColumnSupport:    aggMin,
	ColumnResistance: aggMax,
}

// Resample aggregates a frame into a coarser timeframe. Each output bar is
// labeled with the start of its bucket; buckets without source bars are
// omitted. Unknown columns take the last value in the bucket.
//
// A start label carries the bucket's final high, low and close. Aligned onto
// a finer series with align.Advance, the 1H bar labelled 10:00 is visible
// from the 10:05 primary bar on, with the close of 10:59. Use
// ResampleLabeled with LabelEnd when higher-timeframe values must only be
// seen once the bucket has closed.
func Resample(f *Frame, target Timeframe) (*Frame, error) {
	return ResampleLabeled(f, target, LabelStart)
}

// ResampleLabeled is Resample with a choice of bucket label. LabelEnd stamps
// each bar with bucket start plus the target duration.
func ResampleLabeled(f *Frame, target Timeframe, label ResampleLabel) (*Frame, error) {
	if f.Len() == 0 {
		return nil, ErrNoBars
	}
	if target.IsZero() {
		return nil, fmt.Errorf("resample %s: target timeframe is unset", f.Asset)
	}
	if !f.Timeframe.IsZero() && target.Duration() < f.Timeframe.Duration() {
		return nil, fmt.Errorf("resample %s: cannot go from %s down to %s", f.Asset, f.Timeframe, target)
	}

	// bucket boundaries: starts[k] is the first source row of bucket k
	var labels []time.Time
	var starts []int
	for i, ts := range f.Timestamps {
		label := target.Floor(ts)
		if len(labels) == 0 || !label.Equal(labels[len(labels)-1]) {
			labels = append(labels, label)
			starts = append(starts, i)
		}
	}
	starts = append(starts, len(f.Timestamps))

	switch label {
	case LabelStart, "":
	case LabelEnd:
		for k := range labels {
			labels[k] = labels[k].Add(target.Duration())
		}
	default:
		return nil, fmt.Errorf("resample %s: unknown label %q", f.Asset, label)
	}

	out := NewFrame(f.Asset, target, labels)
	for _, name := range f.order {
		src := f.columns[name]
		agg, ok := columnAggregation[name]
		if !ok {
			agg = aggLast
		}

		values := make([]float64, len(labels))
		for k := range labels {
			values[k] = aggregate(src[starts[k]:starts[k+1]], agg)
		}
		out.setColumn(name, values)
	}

	return out, nil
}

// aggregate ignores NaN values; a bucket of only NaN yields NaN.
func aggregate(values []float64, agg aggregation) float64 {
	result := math.NaN()
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		switch {
		case math.IsNaN(result):
			result = v
		case agg == aggLast:
			result = v
		case agg == aggMax:
			result = math.Max(result, v)
		case agg == aggMin:
			result = math.Min(result, v)
		case agg == aggSum:
			result += v
		}
	}
	return result
}

// WithSupportResistance adds support and resistance columns: the rolling
// minimum and maximum of close over window bars.
func WithSupportResistance(f *Frame, window int) error {
	closes, ok := f.Column(ColumnClose)
	if !ok {
		return fmt.Errorf("%s %s: missing %q column", f.Asset, f.Timeframe, ColumnClose)
	}
	f.setColumn(ColumnSupport, indicators.RollingMin(closes, window))
	f.setColumn(ColumnResistance, indicators.RollingMax(closes, window))
	return nil
}
