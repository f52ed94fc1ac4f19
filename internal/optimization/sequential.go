package optimization

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/ajitpratap0/mtfbacktest/pkg/market"
)

// SequentialPlan configures a two-phase search.
type SequentialPlan struct {
	Primary   Objective
	Secondary []Objective
	// TopN phase-1 records seed the refined space.
	TopN int
	// RefineOn names the dimensions refined in phase 2. Empty means every
	// numeric dimension. Other dimensions are held at the best phase-1 value.
	RefineOn []string
	// RefinementStep widens the refined range on both sides.
	RefinementStep float64
	// Step is the spacing of refined values.
	Step float64
}

// Validate checks the plan.
func (p SequentialPlan) Validate() error {
	if len(p.Secondary) == 0 {
		return fmt.Errorf("sequential search needs at least one secondary metric")
	}
	if p.TopN <= 0 {
		return fmt.Errorf("top_n must be positive, got %d", p.TopN)
	}
	if p.RefinementStep < 0 {
		return fmt.Errorf("refinement_step must not be negative, got %g", p.RefinementStep)
	}
	if p.Step <= 0 {
		return fmt.Errorf("step must be positive, got %g", p.Step)
	}
	return nil
}

// Phase2 is the refined search for one secondary objective.
type Phase2 struct {
	Space  *Space
	Result *Result
}

// SequentialResult holds both phases. Phase2 has one entry per secondary
// objective, in plan order.
type SequentialResult struct {
	Phase1   *Result
	Top      []Record
	Phase2   []Phase2
	Duration time.Duration
}

// Sequential runs a grid search over space for the primary objective, then
// one grid search per secondary objective over the neighborhood of the
// phase-1 top records.
func (o *Optimizer) Sequential(ctx context.Context, data market.Timeframes, space *Space, plan SequentialPlan, constraint Constraint) (*SequentialResult, error) {
	start := time.Now()
	if err := plan.Validate(); err != nil {
		return nil, err
	}

	o.logger.Info().
		Str("engine", EngineSequential).
		Str("primary", plan.Primary.String()).
		Int("secondary", len(plan.Secondary)).
		Int("top_n", plan.TopN).
		Msg("Starting phase 1")

	phase1, err := o.grid(ctx, EngineSequential+"_phase1", data, space, plan.Primary, constraint)
	if err != nil {
		return nil, fmt.Errorf("phase 1: %w", err)
	}

	top := phase1.Table.Top(plan.Primary, plan.TopN)
	refined, err := RefineSpace(space, top, phase1.Best, plan.RefineOn, plan.RefinementStep, plan.Step)
	if err != nil {
		return nil, fmt.Errorf("refine space: %w", err)
	}

	out := &SequentialResult{Phase1: phase1, Top: top}
	for _, obj := range plan.Secondary {
		o.logger.Info().
			Str("engine", EngineSequential).
			Str("objective", obj.String()).
			Int("combinations", refined.Size()).
			Msg("Starting phase 2")

		res, err := o.grid(ctx, EngineSequential+"_phase2", data, refined, obj, constraint)
		if err != nil {
			return nil, fmt.Errorf("phase 2 %s: %w", obj.Metric, err)
		}
		out.Phase2 = append(out.Phase2, Phase2{Space: refined, Result: res})
	}
	out.Duration = time.Since(start)
	return out, nil
}

// RefineSpace derives the phase-2 space. Each refined dimension spans
// [max(min-refinementStep, 1), max+refinementStep] over the values the top
// records hold, sampled every step. Dimensions not refined keep the single
// value of best.
func RefineSpace(base *Space, top []Record, best Record, refineOn []string, refinementStep, step float64) (*Space, error) {
	if base == nil || len(top) == 0 {
		return nil, ErrEmptySpace
	}

	refine := make(map[string]bool, len(refineOn))
	for _, name := range refineOn {
		if _, ok := base.Dimension(name); !ok {
			return nil, fmt.Errorf("unknown dimension %q", name)
		}
		refine[name] = true
	}

	dims := make([]Dimension, 0, len(base.Dimensions))
	for _, d := range base.Dimensions {
		lo, hi, ok := bounds(top, d.Name)
		if (len(refineOn) > 0 && !refine[d.Name]) || (len(refineOn) == 0 && !ok) {
			dims = append(dims, Dimension{Name: d.Name, Values: []any{best.Params[d.Name]}})
			continue
		}
		if !ok {
			return nil, fmt.Errorf("dimension %q is not numeric", d.Name)
		}
		lo = math.Max(lo-refinementStep, 1)
		hi += refinementStep
		if hi < lo {
			hi = lo
		}
		values, err := Steps(lo, hi, step)
		if err != nil {
			return nil, fmt.Errorf("dimension %q: %w", d.Name, err)
		}
		dims = append(dims, Dimension{Name: d.Name, Values: values})
	}
	return NewSpace(dims...)
}

// bounds returns the smallest and largest value of name across records.
func bounds(records []Record, name string) (float64, float64, bool) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, r := range records {
		v, ok := numeric(r.Params[name])
		if !ok {
			return 0, 0, false
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi, true
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	default:
		return 0, false
	}
}
