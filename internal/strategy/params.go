package strategy

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/spf13/cast"

	"github.com/ajitpratap0/mtfbacktest/pkg/market"
)

// ParamKind is the declared type of a strategy parameter.
type ParamKind string

const (
	KindInt       ParamKind = "int"
	KindFloat     ParamKind = "float"
	KindString    ParamKind = "string"
	KindBool      ParamKind = "bool"
	KindTimeframe ParamKind = "timeframe"
)

// Well-known parameter names shared by the built-in strategies.
const (
	ParamPrimaryTimeframe = "primary_tf"
	ParamHigherTimeframe  = "higher_tf"
	ParamStopLoss         = "sl_percent"
	ParamTakeProfit       = "tp_percent"
)

// DefaultPrimaryTimeframe applies to strategies that do not declare one.
const DefaultPrimaryTimeframe = "1m"

// ParamSpec declares one strategy parameter.
type ParamSpec struct {
	Name        string    `json:"name" yaml:"name"`
	Kind        ParamKind `json:"kind" yaml:"kind"`
	Default     any       `json:"default" yaml:"default"`
	Prompt      string    `json:"prompt,omitempty" yaml:"prompt,omitempty"`
	Optimizable bool      `json:"optimizable" yaml:"optimizable"`
	Choices     []string  `json:"choices,omitempty" yaml:"choices,omitempty"`
	// Min is the smallest accepted numeric value. Ignored for non-numeric kinds.
	Min *float64 `json:"min,omitempty" yaml:"min,omitempty"`
}

func minOf(v float64) *float64 {
	return &v
}

// coerce converts raw into the declared kind.
func (p ParamSpec) coerce(raw any) (any, error) {
	switch p.Kind {
	case KindInt:
		if f, ok := raw.(float64); ok && f != math.Trunc(f) {
			return nil, fmt.Errorf("%v is not an integer", raw)
		}
		v, err := cast.ToIntE(raw)
		if err != nil {
			return nil, err
		}
		if p.Min != nil && float64(v) < *p.Min {
			return nil, fmt.Errorf("%d is below the minimum %g", v, *p.Min)
		}
		return v, nil
	case KindFloat:
		v, err := cast.ToFloat64E(raw)
		if err != nil {
			return nil, err
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%v is not a finite number", raw)
		}
		if p.Min != nil && v < *p.Min {
			return nil, fmt.Errorf("%g is below the minimum %g", v, *p.Min)
		}
		return v, nil
	case KindBool:
		return cast.ToBoolE(raw)
	case KindTimeframe:
		s, err := cast.ToStringE(raw)
		if err != nil {
			return nil, err
		}
		tf, err := market.ParseTimeframe(s)
		if err != nil {
			return nil, err
		}
		return tf.String(), nil
	case KindString:
		s, err := cast.ToStringE(raw)
		if err != nil {
			return nil, err
		}
		if len(p.Choices) > 0 {
			for _, c := range p.Choices {
				if strings.EqualFold(c, s) {
					return c, nil
				}
			}
			return nil, fmt.Errorf("%q is not one of %v", s, p.Choices)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown parameter kind %q", p.Kind)
	}
}

// ParameterSet maps parameter names to values. It is the unit a search
// engine proposes and records.
type ParameterSet map[string]any

// Clone returns a shallow copy; values are scalars.
func (p ParameterSet) Clone() ParameterSet {
	out := make(ParameterSet, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Names returns the parameter names in sorted order.
func (p ParameterSet) Names() []string {
	names := make([]string, 0, len(p))
	for k := range p {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Key renders the set deterministically, e.g. "sl_percent=2, tp_percent=5".
// Two sets with the same values have the same key.
func (p ParameterSet) Key() string {
	parts := make([]string, 0, len(p))
	for _, name := range p.Names() {
		parts = append(parts, fmt.Sprintf("%s=%v", name, p[name]))
	}
	return strings.Join(parts, ", ")
}

func (p ParameterSet) String() string {
	return p.Key()
}

// Float returns the value of name as a float64.
func (p ParameterSet) Float(name string) (float64, bool) {
	v, ok := p[name]
	if !ok {
		return 0, false
	}
	f, err := cast.ToFloat64E(v)
	return f, err == nil
}

// ============================================================================
// CONFIG
// ============================================================================

// Config is the validated parameter values of one strategy instance. It is
// built fresh for every run and never modified afterwards.
type Config struct {
	strategy string
	values   map[string]any
}

// NewConfig applies overrides on top of the declared defaults. Unknown names
// and values that cannot be coerced to the declared kind are rejected with a
// ConfigurationError.
func NewConfig(def Definition, overrides ParameterSet) (Config, error) {
	values := make(map[string]any, len(def.Params))
	for _, p := range def.Params {
		v, err := p.coerce(p.Default)
		if err != nil {
			return Config{}, &ConfigurationError{Strategy: def.Name, Field: p.Name, Message: fmt.Sprintf("invalid default: %v", err)}
		}
		values[p.Name] = v
	}

	for _, name := range overrides.Names() {
		spec, ok := def.Param(name)
		if !ok {
			return Config{}, &ConfigurationError{Strategy: def.Name, Field: name, Message: "unknown parameter"}
		}
		v, err := spec.coerce(overrides[name])
		if err != nil {
			return Config{}, &ConfigurationError{Strategy: def.Name, Field: name, Message: err.Error()}
		}
		values[name] = v
	}

	return Config{strategy: def.Name, values: values}, nil
}

// Strategy returns the name of the strategy the config was built for.
func (c Config) Strategy() string {
	return c.strategy
}

// Values returns a copy of every parameter value.
func (c Config) Values() ParameterSet {
	out := make(ParameterSet, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

// Int returns an int parameter, or 0 when undeclared.
func (c Config) Int(name string) int {
	v, _ := c.values[name].(int)
	return v
}

// Float returns a numeric parameter, or 0 when undeclared.
func (c Config) Float(name string) float64 {
	switch v := c.values[name].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

// String returns a string or timeframe parameter.
func (c Config) String(name string) string {
	v, _ := c.values[name].(string)
	return v
}

// PrimaryTimeframe is the canonical execution timeframe.
func (c Config) PrimaryTimeframe() string {
	if tf := c.String(ParamPrimaryTimeframe); tf != "" {
		return tf
	}
	return DefaultPrimaryTimeframe
}

// HigherTimeframe is the canonical context timeframe, empty when the strategy
// does not declare one.
func (c Config) HigherTimeframe() string {
	return c.String(ParamHigherTimeframe)
}
