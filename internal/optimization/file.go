package optimization

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// SearchFile is the YAML description of a search.
//
//	strategy: Breakout
//	metric: final_equity
//	direction: maximize
//	constraints: ["sl_percent < tp_percent"]
//	dimensions:
//	  - name: tp_percent
//	    values: [5, 10]
//	  - name: sl_percent
//	    min: 2
//	    max: 4
//	    step: 2
type SearchFile struct {
	Strategy    string          `yaml:"strategy"`
	Asset       string          `yaml:"asset"`
	Metric      string          `yaml:"metric"`
	Direction   string          `yaml:"direction"`
	Constraints []string        `yaml:"constraints"`
	Dimensions  []DimensionSpec `yaml:"dimensions"`
	Random      RandomSpec      `yaml:"random"`
	Sequential  SequentialSpec  `yaml:"sequential"`
	MonteCarlo  MonteCarloSpec  `yaml:"montecarlo"`
}

// DimensionSpec lists values explicitly or as an inclusive min/max/step range.
type DimensionSpec struct {
	Name   string   `yaml:"name"`
	Values []any    `yaml:"values"`
	Min    *float64 `yaml:"min"`
	Max    *float64 `yaml:"max"`
	Step   *float64 `yaml:"step"`
}

// RandomSpec configures random search.
type RandomSpec struct {
	Iterations int `yaml:"iterations"`
}

// ObjectiveSpec is a metric and direction pair.
type ObjectiveSpec struct {
	Metric    string `yaml:"metric"`
	Direction string `yaml:"direction"`
}

// SequentialSpec configures two-phase search. Zero values fall back to
// the defaults passed to SequentialPlan.
type SequentialSpec struct {
	TopN           int             `yaml:"top_n"`
	RefineOn       []string        `yaml:"refine_on"`
	RefinementStep *float64        `yaml:"refinement_step"`
	Step           float64         `yaml:"step"`
	Secondary      []ObjectiveSpec `yaml:"secondary"`
}

// MonteCarloSpec configures Monte Carlo search.
type MonteCarloSpec struct {
	Simulations int     `yaml:"simulations"`
	Perturb     bool    `yaml:"perturb"`
	NoiseStd    float64 `yaml:"noise_std"`
	Ranges      []Range `yaml:"ranges"`
}

// LoadSearchFile reads and parses a search file.
func LoadSearchFile(path string) (*SearchFile, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read search file: %w", err)
	}
	f, err := ParseSearchFile(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// ParseSearchFile parses a search file, rejecting unknown fields.
func ParseSearchFile(data []byte) (*SearchFile, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var f SearchFile
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse search file: %w", err)
	}
	return &f, nil
}

// Space builds the discrete search space in file order.
func (f *SearchFile) Space() (*Space, error) {
	dims := make([]Dimension, 0, len(f.Dimensions))
	for _, spec := range f.Dimensions {
		values := spec.Values
		if len(values) == 0 {
			if spec.Min == nil || spec.Max == nil {
				return nil, fmt.Errorf("dimension %q needs values or min/max", spec.Name)
			}
			step := 1.0
			if spec.Step != nil {
				step = *spec.Step
			}
			var err error
			values, err = Steps(*spec.Min, *spec.Max, step)
			if err != nil {
				return nil, fmt.Errorf("dimension %q: %w", spec.Name, err)
			}
		}
		dims = append(dims, Dimension{Name: spec.Name, Values: values})
	}
	return NewSpace(dims...)
}

// Objective resolves the primary metric, defaulting to maximized final equity.
func (f *SearchFile) Objective() (Objective, error) {
	return objective(ObjectiveSpec{Metric: f.Metric, Direction: f.Direction})
}

func objective(spec ObjectiveSpec) (Objective, error) {
	metric := spec.Metric
	if metric == "" {
		metric = PerformanceMetric
	}
	dir, err := ParseDirection(spec.Direction)
	if err != nil {
		return Objective{}, err
	}
	return NewObjective(metric, dir)
}

// Constraint combines every constraint expression. It is nil when the file
// declares none.
func (f *SearchFile) Constraint() (Constraint, error) {
	if len(f.Constraints) == 0 {
		return nil, nil
	}
	cs := make([]Constraint, 0, len(f.Constraints))
	for _, expr := range f.Constraints {
		c, err := ParseConstraint(expr)
		if err != nil {
			return nil, err
		}
		cs = append(cs, c)
	}
	return All(cs...), nil
}

// SequentialPlan builds the two-phase plan, taking unset values from defaults.
func (f *SearchFile) SequentialPlan(defaults SequentialPlan) (SequentialPlan, error) {
	primary, err := f.Objective()
	if err != nil {
		return SequentialPlan{}, err
	}
	plan := defaults
	plan.Primary = primary
	if f.Sequential.TopN > 0 {
		plan.TopN = f.Sequential.TopN
	}
	if len(f.Sequential.RefineOn) > 0 {
		plan.RefineOn = f.Sequential.RefineOn
	}
	if f.Sequential.RefinementStep != nil {
		plan.RefinementStep = *f.Sequential.RefinementStep
	}
	if f.Sequential.Step > 0 {
		plan.Step = f.Sequential.Step
	}
	plan.Secondary = nil
	for _, spec := range f.Sequential.Secondary {
		obj, err := objective(spec)
		if err != nil {
			return SequentialPlan{}, err
		}
		plan.Secondary = append(plan.Secondary, obj)
	}
	return plan, plan.Validate()
}

// MonteCarloPlan builds the Monte Carlo plan, taking unset values from defaults.
func (f *SearchFile) MonteCarloPlan(defaults MonteCarloPlan) (MonteCarloPlan, error) {
	plan := defaults
	plan.Ranges = f.MonteCarlo.Ranges
	if f.MonteCarlo.Simulations > 0 {
		plan.Simulations = f.MonteCarlo.Simulations
	}
	if f.MonteCarlo.Perturb {
		plan.Perturb = true
	}
	if f.MonteCarlo.NoiseStd > 0 {
		plan.NoiseStd = f.MonteCarlo.NoiseStd
	}
	return plan, plan.Validate()
}
