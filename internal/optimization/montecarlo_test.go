package optimization

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/mtfbacktest/internal/strategy"
	"github.com/ajitpratap0/mtfbacktest/pkg/market"
)

func mcPlan(n int) MonteCarloPlan {
	return MonteCarloPlan{
		Ranges: []Range{
			{Name: "tp_percent", Low: 5, High: 20},
			{Name: "sl_percent", Low: 1, High: 5, Integer: true},
		},
		Simulations: n,
	}
}

func TestMonteCarlo_Deterministic(t *testing.T) {
	run := func() *MonteCarloResult {
		res, err := newTestOptimizer(newFake(linear), Options{Seed: 100, Workers: 4}).MonteCarlo(context.Background(), nil, mcPlan(20), nil)
		require.NoError(t, err)
		return res
	}
	a, b := run(), run()

	require.Len(t, a.Simulations, 20)
	for i := range a.Simulations {
		assert.Equal(t, int64(100+i), a.Simulations[i].Seed)
		assert.Equal(t, a.Simulations[i].Params, b.Simulations[i].Params)
		assert.Equal(t, a.Simulations[i].Performance, b.Simulations[i].Performance)
	}
	assert.Equal(t, a.Best.Params, b.Best.Params)
}

func TestMonteCarlo_SamplesWithinRanges(t *testing.T) {
	res, err := newTestOptimizer(newFake(linear), Options{Seed: 1}).MonteCarlo(context.Background(), nil, mcPlan(50), nil)
	require.NoError(t, err)

	best := math.Inf(-1)
	for _, sim := range res.Simulations {
		tp := sim.Params["tp_percent"].(float64)
		sl := sim.Params["sl_percent"].(int)
		assert.True(t, tp >= 5 && tp <= 20)
		assert.True(t, sl >= 1 && sl <= 5)
		best = math.Max(best, sim.Performance)
	}
	assert.Equal(t, best, res.Best.Metrics[PerformanceMetric])
	assert.Equal(t, EngineMonteCarlo, res.Engine)
	assert.Equal(t, 50, res.Summary.Count)
}

func TestMonteCarlo_FailuresExcluded(t *testing.T) {
	fake := newFake(func(ps strategy.ParameterSet, data market.Timeframes) (map[string]float64, error) {
		if ps["sl_percent"].(int)%2 == 0 {
			return nil, errBoom
		}
		return linear(ps, data)
	})
	res, err := newTestOptimizer(fake, Options{Seed: 5}).MonteCarlo(context.Background(), nil, mcPlan(30), nil)
	require.NoError(t, err)

	assert.Equal(t, 30, res.Evaluated+res.Failed)
	assert.Positive(t, res.Failed)
	assert.Equal(t, res.Evaluated, res.Summary.Count)
	for _, sim := range res.Simulations {
		if sim.Params["sl_percent"].(int)%2 == 0 {
			assert.True(t, math.IsNaN(sim.Performance))
		}
	}
	assert.Equal(t, 1, res.Best.Params["sl_percent"].(int)%2)

	// records point back at their simulation
	for _, r := range res.Table.Records {
		assert.Equal(t, res.Simulations[r.Index].Params, r.Params)
	}
}

func TestMonteCarlo_AllFailed(t *testing.T) {
	failing := newFake(func(strategy.ParameterSet, market.Timeframes) (map[string]float64, error) {
		return nil, errBoom
	})
	_, err := newTestOptimizer(failing, Options{}).MonteCarlo(context.Background(), nil, mcPlan(5), nil)

	var empty *EmptyResultError
	require.True(t, errors.As(err, &empty))
	assert.Equal(t, 5, empty.Failed)
}

func TestMonteCarlo_Perturb(t *testing.T) {
	data := rampData(t, 50)
	lastClose := func(_ strategy.ParameterSet, data market.Timeframes) (map[string]float64, error) {
		f, _ := data.Get("5m")
		closes, _ := f.Column(market.ColumnClose)
		return map[string]float64{PerformanceMetric: closes[len(closes)-1]}, nil
	}

	plan := mcPlan(8)
	plan.Perturb = true
	plan.NoiseStd = 0.05

	run := func() *MonteCarloResult {
		res, err := newTestOptimizer(newFake(lastClose), Options{Seed: 11, Workers: 3}).MonteCarlo(context.Background(), data, plan, nil)
		require.NoError(t, err)
		return res
	}
	a, b := run(), run()

	distinct := map[float64]bool{}
	for i, sim := range a.Simulations {
		assert.Equal(t, sim.Performance, b.Simulations[i].Performance)
		distinct[sim.Performance] = true
	}
	assert.Greater(t, len(distinct), 1, "each draw sees its own noise")

	closes, _ := data["5m"].Column(market.ColumnClose)
	assert.Equal(t, 149.0, closes[len(closes)-1], "source data is untouched")
}

func TestMonteCarlo_Constraint(t *testing.T) {
	small, err := ParseConstraint("sl_percent <= 2")
	require.NoError(t, err)

	fake := newFake(linear)
	res, err := newTestOptimizer(fake, Options{Seed: 2}).MonteCarlo(context.Background(), nil, mcPlan(40), small)
	require.NoError(t, err)
	assert.Equal(t, 40, res.Evaluated+res.Filtered)
	assert.Equal(t, int64(res.Evaluated), fake.calls.Load())
}

func TestMonteCarloPlan_Validate(t *testing.T) {
	assert.NoError(t, mcPlan(1).Validate())
	assert.ErrorIs(t, MonteCarloPlan{Simulations: 1}.Validate(), ErrEmptySpace)
	assert.Error(t, mcPlan(0).Validate())

	dup := mcPlan(1)
	dup.Ranges = append(dup.Ranges, Range{Name: "tp_percent", Low: 1, High: 2})
	assert.Error(t, dup.Validate())

	noisy := mcPlan(1)
	noisy.Perturb = true
	assert.Error(t, noisy.Validate())
}

func TestSummarize(t *testing.T) {
	sims := []Simulation{
		{Performance: 4}, {Performance: math.NaN()}, {Performance: 1},
		{Performance: 3}, {Performance: 2}, {Performance: 5},
	}
	d := Summarize(sims)

	assert.Equal(t, 5, d.Count)
	assert.Equal(t, 1.0, d.Min)
	assert.Equal(t, 5.0, d.Max)
	assert.Equal(t, 3.0, d.Median)
	assert.Equal(t, 3.0, d.Mean)
	assert.InDelta(t, math.Sqrt(2.5), d.StdDev, 1e-9)

	assert.Equal(t, Distribution{}, Summarize(nil))
	assert.Equal(t, 7.0, Summarize([]Simulation{{Performance: 7}}).Mean)
}
