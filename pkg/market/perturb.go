package market

import "math/rand"

// Perturb returns a copy of f with every OHLC value scaled by an independent
// factor (1 + N(0, std)). Other columns are copied unchanged. A non-positive
// std returns an unmodified copy.
func Perturb(f *Frame, rng *rand.Rand, std float64) *Frame {
	out := f.Clone()
	if std <= 0 {
		return out
	}
	for _, name := range PriceColumns {
		values, ok := out.columns[name]
		if !ok {
			continue
		}
		for i := range values {
			values[i] *= 1 + rng.NormFloat64()*std
		}
	}
	return out
}

// PerturbAll applies Perturb to every timeframe of one asset using the same
// generator, in finest-to-coarsest order so results are reproducible.
func PerturbAll(tfs Timeframes, rng *rand.Rand, std float64) Timeframes {
	out := make(Timeframes, len(tfs))
	for _, key := range tfs.Keys() {
		out[key] = Perturb(tfs[key], rng, std)
	}
	return out
}
