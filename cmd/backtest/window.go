package main

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ajitpratap0/mtfbacktest/pkg/market"
)

// windowLayouts are accepted by -from and -to, tried in order.
var windowLayouts = []string{time.DateOnly, "2006-01-02T15:04", time.RFC3339}

// window bounds the bars handed to every run: from <= timestamp < to. Zero
// bounds are open.
type window struct {
	from time.Time
	to   time.Time
}

func (w window) isZero() bool {
	return w.from.IsZero() && w.to.IsZero()
}

func parseBound(name, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range windowLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid -%s %q, want YYYY-MM-DD or RFC3339", name, s)
}

func parseWindow(from, to string) (window, error) {
	var (
		w   window
		err error
	)
	if w.from, err = parseBound("from", from); err != nil {
		return window{}, err
	}
	if w.to, err = parseBound("to", to); err != nil {
		return window{}, err
	}
	if !w.from.IsZero() && !w.to.IsZero() && !w.to.After(w.from) {
		return window{}, fmt.Errorf("-to %s must be after -from %s", to, from)
	}
	return w, nil
}

// apply cuts every frame of ds to the window. from is floored to each frame's
// own timeframe, so the higher bar in progress at from is kept. Frames left
// empty are dropped, and so are assets left with no frames.
func (w window) apply(ds market.Dataset, logger zerolog.Logger) market.Dataset {
	if w.isZero() {
		return ds
	}
	out := make(market.Dataset, len(ds))
	for _, asset := range ds.Assets() {
		for _, tf := range ds[asset].Keys() {
			frame, _ := ds[asset].Get(tf)
			from := w.from
			if !from.IsZero() {
				from = frame.Timeframe.Floor(from)
			}
			cut := frame.Between(from, w.to)
			if cut.Len() == 0 {
				logger.Warn().Str("asset", asset).Str("timeframe", tf).Msg("No bars inside the date window")
				continue
			}
			out.Add(cut)
		}
	}
	return out
}
