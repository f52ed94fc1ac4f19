// Package optimization searches strategy parameter spaces for the parameter
// set that maximizes or minimizes a backtest metric.
package optimization

import (
	"fmt"
	"math"
	"math/rand"
	"strings"

	"github.com/ajitpratap0/mtfbacktest/internal/strategy"
)

// Dimension is one parameter and its discrete candidate values.
type Dimension struct {
	Name   string
	Values []any
}

// Space is an ordered list of dimensions. Enumeration order follows the
// dimension order, with the first dimension varying slowest.
type Space struct {
	Dimensions []Dimension
}

// NewSpace validates dims and returns a space over them.
func NewSpace(dims ...Dimension) (*Space, error) {
	if len(dims) == 0 {
		return nil, ErrEmptySpace
	}
	seen := make(map[string]bool, len(dims))
	for _, d := range dims {
		name := strings.TrimSpace(d.Name)
		if name == "" {
			return nil, fmt.Errorf("dimension name is required")
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate dimension %q", name)
		}
		seen[name] = true
		if len(d.Values) == 0 {
			return nil, fmt.Errorf("dimension %q: %w", name, ErrEmptySpace)
		}
	}
	return &Space{Dimensions: dims}, nil
}

// Names returns the dimension names in order.
func (s *Space) Names() []string {
	names := make([]string, len(s.Dimensions))
	for i, d := range s.Dimensions {
		names[i] = d.Name
	}
	return names
}

// Dimension returns the dimension called name.
func (s *Space) Dimension(name string) (Dimension, bool) {
	for _, d := range s.Dimensions {
		if d.Name == name {
			return d, true
		}
	}
	return Dimension{}, false
}

// Size is the number of combinations in the Cartesian product.
func (s *Space) Size() int {
	if len(s.Dimensions) == 0 {
		return 0
	}
	n := 1
	for _, d := range s.Dimensions {
		n *= len(d.Values)
	}
	return n
}

// Product enumerates every combination in product order.
func (s *Space) Product() []strategy.ParameterSet {
	size := s.Size()
	if size == 0 {
		return nil
	}
	out := make([]strategy.ParameterSet, 0, size)
	idx := make([]int, len(s.Dimensions))
	for {
		ps := make(strategy.ParameterSet, len(s.Dimensions))
		for i, d := range s.Dimensions {
			ps[d.Name] = d.Values[idx[i]]
		}
		out = append(out, ps)

		// odometer, last dimension fastest
		k := len(idx) - 1
		for k >= 0 {
			idx[k]++
			if idx[k] < len(s.Dimensions[k].Values) {
				break
			}
			idx[k] = 0
			k--
		}
		if k < 0 {
			return out
		}
	}
}

// Sample draws one value uniformly from every dimension.
func (s *Space) Sample(rng *rand.Rand) strategy.ParameterSet {
	ps := make(strategy.ParameterSet, len(s.Dimensions))
	for _, d := range s.Dimensions {
		ps[d.Name] = d.Values[rng.Intn(len(d.Values))]
	}
	return ps
}

// Steps expands an inclusive numeric range into discrete values. The values
// are ints when min, max and step are all integral.
func Steps(min, max, step float64) ([]any, error) {
	if step <= 0 {
		return nil, fmt.Errorf("step must be positive, got %g", step)
	}
	if max < min {
		return nil, fmt.Errorf("max %g is below min %g", max, min)
	}
	integral := isIntegral(min) && isIntegral(max) && isIntegral(step)
	n := int(math.Floor((max-min)/step+1e-9)) + 1
	values := make([]any, 0, n)
	for i := 0; i < n; i++ {
		v := min + float64(i)*step
		if integral {
			values = append(values, int(math.Round(v)))
		} else {
			values = append(values, round(v))
		}
	}
	return values, nil
}

func isIntegral(v float64) bool {
	return v == math.Trunc(v)
}

// round trims float noise from accumulated steps.
func round(v float64) float64 {
	return math.Round(v*1e9) / 1e9
}

// ============================================================================
// CONTINUOUS RANGES
// ============================================================================

// Range is a (low, high) interval sampled by Monte Carlo search. Integer
// ranges are sampled inclusively.
type Range struct {
	Name    string  `yaml:"name"`
	Low     float64 `yaml:"low"`
	High    float64 `yaml:"high"`
	Integer bool    `yaml:"integer"`
}

// Validate checks that the range is well formed.
func (r Range) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("range name is required")
	}
	if r.High < r.Low {
		return fmt.Errorf("range %q: high %g is below low %g", r.Name, r.High, r.Low)
	}
	if r.Integer && (!isIntegral(r.Low) || !isIntegral(r.High)) {
		return fmt.Errorf("range %q: integer bounds must be whole numbers", r.Name)
	}
	return nil
}

// Sample draws one value from the range.
func (r Range) Sample(rng *rand.Rand) any {
	if r.Integer {
		lo, hi := int(r.Low), int(r.High)
		return lo + rng.Intn(hi-lo+1)
	}
	return r.Low + rng.Float64()*(r.High-r.Low)
}
