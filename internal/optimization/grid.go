package optimization

import (
	"context"
	"time"

	"github.com/ajitpratap0/mtfbacktest/pkg/market"
)

// Grid evaluates every combination of space that satisfies constraint and
// returns the best under obj.
func (o *Optimizer) Grid(ctx context.Context, data market.Timeframes, space *Space, obj Objective, constraint Constraint) (*Result, error) {
	return o.grid(ctx, EngineGrid, data, space, obj, constraint)
}

func (o *Optimizer) grid(ctx context.Context, engine string, data market.Timeframes, space *Space, obj Objective, constraint Constraint) (*Result, error) {
	start := time.Now()
	if space == nil || space.Size() == 0 {
		return nil, ErrEmptySpace
	}

	combos := space.Product()
	tasks := make([]task, 0, len(combos))
	for _, ps := range combos {
		if constraint.allows(ps) {
			tasks = append(tasks, task{params: ps, data: fixedData(data)})
		}
	}
	filtered := len(combos) - len(tasks)

	o.logger.Info().
		Str("engine", engine).
		Str("objective", obj.String()).
		Int("combinations", len(combos)).
		Int("filtered", filtered).
		Int("workers", o.opts.Workers).
		Msg("Starting grid search")

	records, failed, err := o.evaluate(ctx, engine, tasks)
	if err != nil {
		return nil, err
	}
	return o.reduce(engine, obj, space.Names(), records, failed, filtered, start)
}
