package optimization

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ajitpratap0/mtfbacktest/internal/strategy"
)

// Constraint reports whether a parameter set may be evaluated. A nil
// Constraint accepts everything.
type Constraint func(strategy.ParameterSet) bool

func (c Constraint) allows(ps strategy.ParameterSet) bool {
	return c == nil || c(ps)
}

// All accepts a set only if every constraint accepts it.
func All(cs ...Constraint) Constraint {
	return func(ps strategy.ParameterSet) bool {
		for _, c := range cs {
			if !c.allows(ps) {
				return false
			}
		}
		return true
	}
}

var comparisons = []struct {
	op string
	fn func(a, b float64) bool
}{
	{"<=", func(a, b float64) bool { return a <= b }},
	{">=", func(a, b float64) bool { return a >= b }},
	{"==", func(a, b float64) bool { return a == b }},
	{"!=", func(a, b float64) bool { return a != b }},
	{"<", func(a, b float64) bool { return a < b }},
	{">", func(a, b float64) bool { return a > b }},
}

// ParseConstraint parses a comparison such as "sl_percent < tp_percent" or
// "short_window <= 50". Each operand is a parameter name or a number. A set
// missing a named parameter, or holding a non-numeric value, is rejected.
func ParseConstraint(expr string) (Constraint, error) {
	for _, c := range comparisons {
		left, right, ok := strings.Cut(expr, c.op)
		if !ok {
			continue
		}
		lhs, err := parseOperand(left)
		if err != nil {
			return nil, fmt.Errorf("constraint %q: %w", expr, err)
		}
		rhs, err := parseOperand(right)
		if err != nil {
			return nil, fmt.Errorf("constraint %q: %w", expr, err)
		}
		cmp := c.fn
		return func(ps strategy.ParameterSet) bool {
			a, ok := lhs(ps)
			if !ok {
				return false
			}
			b, ok := rhs(ps)
			if !ok {
				return false
			}
			return cmp(a, b)
		}, nil
	}
	return nil, fmt.Errorf("constraint %q: no comparison operator", expr)
}

type operand func(strategy.ParameterSet) (float64, bool)

func parseOperand(raw string) (operand, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, fmt.Errorf("missing operand")
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return func(strategy.ParameterSet) (float64, bool) { return v, true }, nil
	}
	if strings.ContainsAny(s, " <>=!") {
		return nil, fmt.Errorf("invalid operand %q", s)
	}
	return func(ps strategy.ParameterSet) (float64, bool) { return ps.Float(s) }, nil
}
