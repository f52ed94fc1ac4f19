package market

import "sort"

// Timeframes maps canonical timeframe identifiers to the frames of one asset.
type Timeframes map[string]*Frame

// Get looks up a frame by any accepted spelling of the timeframe.
func (t Timeframes) Get(timeframe string) (*Frame, bool) {
	if t == nil {
		return nil, false
	}
	if f, ok := t[CanonicalTimeframe(timeframe)]; ok && f != nil {
		return f, true
	}
	f, ok := t[timeframe]
	return f, ok && f != nil
}

// Keys returns the timeframe identifiers ordered from finest to coarsest.
func (t Timeframes) Keys() []string {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, errA := ParseTimeframe(keys[i])
		b, errB := ParseTimeframe(keys[j])
		if errA != nil || errB != nil || a.Duration() == b.Duration() {
			return keys[i] < keys[j]
		}
		return a.Duration() < b.Duration()
	})
	return keys
}

// Clone deep-copies every frame.
func (t Timeframes) Clone() Timeframes {
	out := make(Timeframes, len(t))
	for k, f := range t {
		out[k] = f.Clone()
	}
	return out
}

// Dataset maps asset names to their timeframes.
type Dataset map[string]Timeframes

// Add stores a frame under its asset and canonical timeframe.
func (d Dataset) Add(f *Frame) {
	tfs, ok := d[f.Asset]
	if !ok {
		tfs = make(Timeframes)
		d[f.Asset] = tfs
	}
	tfs[f.Timeframe.String()] = f
}

// Assets returns asset names in sorted order.
func (d Dataset) Assets() []string {
	assets := make([]string, 0, len(d))
	for a := range d {
		assets = append(assets, a)
	}
	sort.Strings(assets)
	return assets
}
