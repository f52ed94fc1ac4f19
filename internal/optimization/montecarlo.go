package optimization

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/ajitpratap0/mtfbacktest/internal/strategy"
	"github.com/ajitpratap0/mtfbacktest/pkg/market"
)

// PerformanceMetric is the realized performance Monte Carlo search ranks by.
const PerformanceMetric = "final_equity"

// MonteCarloPlan configures a Monte Carlo search.
type MonteCarloPlan struct {
	Ranges      []Range
	Simulations int
	// Perturb scales every OHLC value by (1 + N(0, NoiseStd)).
	Perturb  bool
	NoiseStd float64
}

// Validate checks the plan.
func (p MonteCarloPlan) Validate() error {
	if len(p.Ranges) == 0 {
		return ErrEmptySpace
	}
	seen := make(map[string]bool, len(p.Ranges))
	for _, r := range p.Ranges {
		if err := r.Validate(); err != nil {
			return err
		}
		if seen[r.Name] {
			return fmt.Errorf("duplicate range %q", r.Name)
		}
		seen[r.Name] = true
	}
	if p.Simulations <= 0 {
		return fmt.Errorf("simulations must be positive, got %d", p.Simulations)
	}
	if p.Perturb && p.NoiseStd <= 0 {
		return fmt.Errorf("noise_std must be positive when perturbing, got %g", p.NoiseStd)
	}
	return nil
}

// Simulation is one Monte Carlo draw. Performance is NaN when the draw
// failed or was rejected by the constraint.
type Simulation struct {
	Index       int
	Seed        int64
	Params      strategy.ParameterSet
	Performance float64
}

// Distribution summarizes the realized performance of successful draws.
type Distribution struct {
	Count  int
	Mean   float64
	StdDev float64
	Min    float64
	P05    float64
	Median float64
	P95    float64
	Max    float64
}

// MonteCarloResult is the outcome of a Monte Carlo search.
type MonteCarloResult struct {
	*Result
	Simulations []Simulation
	Summary     Distribution
}

// MonteCarlo runs plan.Simulations independent draws. Draw i is seeded
// with Seed+i, so a fixed base seed reproduces parameters and, without
// perturbation, results. Failed draws are excluded from the reduction.
func (o *Optimizer) MonteCarlo(ctx context.Context, data market.Timeframes, plan MonteCarloPlan, constraint Constraint) (*MonteCarloResult, error) {
	start := time.Now()
	if err := plan.Validate(); err != nil {
		return nil, err
	}

	o.logger.Info().
		Str("engine", EngineMonteCarlo).
		Int("simulations", plan.Simulations).
		Bool("perturb", plan.Perturb).
		Float64("noise_std", plan.NoiseStd).
		Int64("seed", o.opts.Seed).
		Msg("Starting Monte Carlo search")

	sims := make([]Simulation, plan.Simulations)
	tasks := make([]task, 0, plan.Simulations)
	taskSim := make([]int, 0, plan.Simulations)
	for i := range sims {
		seed := o.opts.Seed + int64(i)
		rng := rand.New(rand.NewSource(seed))
		params := make(strategy.ParameterSet, len(plan.Ranges))
		for _, r := range plan.Ranges {
			params[r.Name] = r.Sample(rng)
		}
		sims[i] = Simulation{Index: i, Seed: seed, Params: params, Performance: math.NaN()}
		if !constraint.allows(params) {
			continue
		}

		input := fixedData(data)
		if plan.Perturb {
			std := plan.NoiseStd
			input = func() market.Timeframes { return market.PerturbAll(data, rng, std) }
		}
		tasks = append(tasks, task{params: params, data: input})
		taskSim = append(taskSim, i)
	}
	filtered := plan.Simulations - len(tasks)

	records, failed, err := o.evaluate(ctx, EngineMonteCarlo, tasks)
	if err != nil {
		return nil, err
	}
	for j := range records {
		idx := taskSim[records[j].Index]
		records[j].Index = idx
		if v, ok := records[j].Value(PerformanceMetric); ok {
			sims[idx].Performance = v
		}
	}

	names := make([]string, len(plan.Ranges))
	for i, r := range plan.Ranges {
		names[i] = r.Name
	}
	obj := Objective{Metric: PerformanceMetric, Direction: Maximize}
	res, err := o.reduce(EngineMonteCarlo, obj, names, records, failed, filtered, start)
	if err != nil {
		return nil, err
	}
	return &MonteCarloResult{Result: res, Simulations: sims, Summary: Summarize(sims)}, nil
}

// Summarize computes the distribution of non-NaN performances.
func Summarize(sims []Simulation) Distribution {
	values := make([]float64, 0, len(sims))
	for _, s := range sims {
		if !math.IsNaN(s.Performance) {
			values = append(values, s.Performance)
		}
	}
	if len(values) == 0 {
		return Distribution{}
	}
	sort.Float64s(values)

	d := Distribution{
		Count:  len(values),
		Min:    values[0],
		Max:    values[len(values)-1],
		P05:    stat.Quantile(0.05, stat.Empirical, values, nil),
		Median: stat.Quantile(0.5, stat.Empirical, values, nil),
		P95:    stat.Quantile(0.95, stat.Empirical, values, nil),
	}
	if len(values) > 1 {
		d.Mean, d.StdDev = stat.MeanStdDev(values, nil)
	} else {
		d.Mean = values[0]
	}
	return d
}
