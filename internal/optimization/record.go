package optimization

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/ajitpratap0/mtfbacktest/internal/strategy"
	btengine "github.com/ajitpratap0/mtfbacktest/pkg/backtest"
)

// Direction tells whether larger or smaller metric values are better.
type Direction int

const (
	Maximize Direction = iota
	Minimize
)

func (d Direction) String() string {
	if d == Minimize {
		return "minimize"
	}
	return "maximize"
}

// ParseDirection accepts "maximize"/"max" and "minimize"/"min".
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "max", "maximize":
		return Maximize, nil
	case "min", "minimize":
		return Minimize, nil
	default:
		return Maximize, fmt.Errorf("unknown direction %q", s)
	}
}

// better reports whether a strictly beats b.
func (d Direction) better(a, b float64) bool {
	if d == Minimize {
		return a < b
	}
	return a > b
}

// Objective is a metric and the direction it is optimized in.
type Objective struct {
	Metric    string
	Direction Direction
}

// NewObjective resolves metric, which may be a canonical name such as
// "sharpe_ratio" or a display label such as "Sharpe Ratio".
func NewObjective(metric string, direction Direction) (Objective, error) {
	name, err := btengine.CanonicalMetric(metric)
	if err != nil {
		return Objective{}, err
	}
	return Objective{Metric: name, Direction: direction}, nil
}

func (o Objective) String() string {
	return fmt.Sprintf("%s %s", o.Direction, o.Metric)
}

// ============================================================================
// RECORDS
// ============================================================================

// Record is one evaluated parameter set. Index is the position of the set in
// the engine's enumeration order.
type Record struct {
	Index   int
	Params  strategy.ParameterSet
	Metrics map[string]float64
}

// Value returns the named metric. Missing and NaN values are not usable.
func (r Record) Value(metric string) (float64, bool) {
	v, ok := r.Metrics[metric]
	if !ok || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// Table holds the records of one search in enumeration order.
type Table struct {
	// Params lists the parameter columns in space order.
	Params  []string
	Records []Record
}

// Len returns the number of records.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Records)
}

// Best returns the record with the best value of obj.Metric. On ties the
// record enumerated first wins. Records without a usable value are skipped.
func (t *Table) Best(obj Objective) (Record, bool) {
	var (
		best  Record
		value float64
		found bool
	)
	if t == nil {
		return best, false
	}
	for _, r := range t.Records {
		v, ok := r.Value(obj.Metric)
		if !ok {
			continue
		}
		if !found || obj.Direction.better(v, value) {
			best, value, found = r, v, true
		}
	}
	return best, found
}

// Top returns up to n records ranked by obj, keeping enumeration order among
// equal values.
func (t *Table) Top(obj Objective, n int) []Record {
	if t == nil || n <= 0 {
		return nil
	}
	ranked := make([]Record, 0, len(t.Records))
	for _, r := range t.Records {
		if _, ok := r.Value(obj.Metric); ok {
			ranked = append(ranked, r)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		a, _ := ranked[i].Value(obj.Metric)
		b, _ := ranked[j].Value(obj.Metric)
		return obj.Direction.better(a, b)
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// MetricNames returns the metric columns present in the table, in the
// engine's report order.
func (t *Table) MetricNames() []string {
	present := make(map[string]bool)
	for _, r := range t.Records {
		for name := range r.Metrics {
			present[name] = true
		}
	}
	var names []string
	for _, name := range btengine.MetricNames() {
		if present[name] {
			names = append(names, name)
			delete(present, name)
		}
	}
	extra := make([]string, 0, len(present))
	for name := range present {
		extra = append(extra, name)
	}
	sort.Strings(extra)
	return append(names, extra...)
}
