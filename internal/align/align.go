// Package align joins a coarse (higher timeframe) series onto a finer
// (primary timeframe) timestamp stream without look-ahead.
package align

import "time"

// Advance moves cursor forward while the next higher-timeframe bar starts at
// or before ts. It never moves backward, so for increasing ts the returned
// cursors are non-decreasing.
func Advance(cursor int, higher []time.Time, ts time.Time) int {
	if cursor < 0 {
		cursor = 0
	}
	for cursor+1 < len(higher) && !higher[cursor+1].After(ts) {
		cursor++
	}
	return cursor
}

// Cursor is an alignment cursor owned by a single evaluator for one run.
type Cursor struct {
	higher []time.Time
	pos    int
}

// NewCursor creates a cursor positioned at the first higher bar.
func NewCursor(higher []time.Time) *Cursor {
	return &Cursor{higher: higher}
}

// Seek advances the cursor to ts and returns the index of the current higher
// bar.
func (c *Cursor) Seek(ts time.Time) int {
	c.pos = Advance(c.pos, c.higher, ts)
	return c.pos
}

// Ready reports whether the bar at the cursor has actually started by ts. It
// is false when ts precedes the first higher bar, in which case the values at
// the cursor must be treated as insufficient data.
func (c *Cursor) Ready(ts time.Time) bool {
	return c.pos < len(c.higher) && !c.higher[c.pos].After(ts)
}
