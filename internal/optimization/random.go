package optimization

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/ajitpratap0/mtfbacktest/internal/strategy"
	"github.com/ajitpratap0/mtfbacktest/pkg/market"
)

// Random evaluates n distinct combinations drawn uniformly from space and
// returns the best under obj. Draws that repeat an earlier combination or
// violate constraint are rejected. Drawing stops after n*MaxAttemptsFactor
// attempts with an *InsufficientSamplesError.
func (o *Optimizer) Random(ctx context.Context, data market.Timeframes, space *Space, n int, obj Objective, constraint Constraint) (*Result, error) {
	start := time.Now()
	if space == nil || space.Size() == 0 {
		return nil, ErrEmptySpace
	}
	if n <= 0 {
		return nil, fmt.Errorf("random search needs a positive sample count, got %d", n)
	}

	samples, err := o.sample(space, n, constraint)
	if err != nil {
		o.logger.Error().Err(err).Msg("Random search could not draw enough samples")
		return nil, err
	}

	o.logger.Info().
		Str("engine", EngineRandom).
		Str("objective", obj.String()).
		Int("samples", len(samples)).
		Int64("seed", o.opts.Seed).
		Int("workers", o.opts.Workers).
		Msg("Starting random search")

	tasks := make([]task, len(samples))
	for i, ps := range samples {
		tasks[i] = task{params: ps, data: fixedData(data)}
	}
	records, failed, err := o.evaluate(ctx, EngineRandom, tasks)
	if err != nil {
		return nil, err
	}
	return o.reduce(EngineRandom, obj, space.Names(), records, failed, 0, start)
}

// sample draws n unique valid combinations in draw order.
func (o *Optimizer) sample(space *Space, n int, constraint Constraint) ([]strategy.ParameterSet, error) {
	rng := rand.New(rand.NewSource(o.opts.Seed))
	maxAttempts := n * o.opts.MaxAttemptsFactor

	samples := make([]strategy.ParameterSet, 0, n)
	seen := make(map[string]bool, n)
	attempts := 0
	for len(samples) < n && attempts < maxAttempts {
		attempts++
		ps := space.Sample(rng)
		if !constraint.allows(ps) {
			continue
		}
		key := ps.Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		samples = append(samples, ps)
	}
	if len(samples) < n {
		return nil, &InsufficientSamplesError{Requested: n, Collected: len(samples), Attempts: attempts}
	}
	return samples, nil
}
