package optimization

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/mtfbacktest/internal/strategy"
)

func topRecords(sets ...strategy.ParameterSet) []Record {
	out := make([]Record, len(sets))
	for i, ps := range sets {
		out[i] = Record{Index: i, Params: ps}
	}
	return out
}

func TestRefineSpace(t *testing.T) {
	top := topRecords(
		strategy.ParameterSet{"tp_percent": 10, "sl_percent": 2},
		strategy.ParameterSet{"tp_percent": 5, "sl_percent": 4},
	)

	refined, err := RefineSpace(tpSlSpace(t), top, top[0], nil, 1, 1)
	require.NoError(t, err)

	tp, _ := refined.Dimension("tp_percent")
	sl, _ := refined.Dimension("sl_percent")
	assert.Equal(t, []any{4, 5, 6, 7, 8, 9, 10, 11}, tp.Values)
	assert.Equal(t, []any{1, 2, 3, 4, 5}, sl.Values)
}

func TestRefineSpace_ClipsAtOne(t *testing.T) {
	space, err := NewSpace(Dimension{Name: "short_window", Values: []any{1, 2, 3}})
	require.NoError(t, err)
	top := topRecords(strategy.ParameterSet{"short_window": 1})

	refined, err := RefineSpace(space, top, top[0], nil, 3, 1)
	require.NoError(t, err)
	d, _ := refined.Dimension("short_window")
	assert.Equal(t, []any{1, 2, 3, 4}, d.Values)
}

func TestRefineSpace_HoldsUnrefinedAtBest(t *testing.T) {
	space, err := NewSpace(
		Dimension{Name: "tp_percent", Values: []any{5, 10}},
		Dimension{Name: "sl_percent", Values: []any{2, 4}},
		Dimension{Name: "ma_type", Values: []any{"sma", "ema"}},
	)
	require.NoError(t, err)
	top := topRecords(
		strategy.ParameterSet{"tp_percent": 10, "sl_percent": 4, "ma_type": "ema"},
		strategy.ParameterSet{"tp_percent": 5, "sl_percent": 2, "ma_type": "sma"},
	)

	refined, err := RefineSpace(space, top, top[0], []string{"tp_percent"}, 0, 2.5)
	require.NoError(t, err)

	tp, _ := refined.Dimension("tp_percent")
	sl, _ := refined.Dimension("sl_percent")
	ma, _ := refined.Dimension("ma_type")
	assert.Equal(t, []any{5.0, 7.5, 10.0}, tp.Values)
	assert.Equal(t, []any{4}, sl.Values)
	assert.Equal(t, []any{"ema"}, ma.Values)

	// categorical dimensions are held even when refining every numeric one
	refined, err = RefineSpace(space, top, top[0], nil, 1, 1)
	require.NoError(t, err)
	ma, _ = refined.Dimension("ma_type")
	assert.Equal(t, []any{"ema"}, ma.Values)

	_, err = RefineSpace(space, top, top[0], []string{"ma_type"}, 1, 1)
	assert.Error(t, err)
	_, err = RefineSpace(space, top, top[0], []string{"nope"}, 1, 1)
	assert.Error(t, err)
	_, err = RefineSpace(space, nil, Record{}, nil, 1, 1)
	assert.ErrorIs(t, err, ErrEmptySpace)
}

func TestSequential(t *testing.T) {
	fake := newFake(linear)
	opt := newTestOptimizer(fake, Options{Workers: 4})

	drawdown, err := NewObjective("max_drawdown_pct", Minimize)
	require.NoError(t, err)
	sharpe, err := NewObjective("sharpe_ratio", Maximize)
	require.NoError(t, err)

	plan := SequentialPlan{
		Primary:        finalEquity(t),
		Secondary:      []Objective{drawdown, sharpe},
		TopN:           2,
		RefinementStep: 1,
		Step:           1,
	}
	res, err := opt.Sequential(context.Background(), nil, tpSlSpace(t), plan, nil)
	require.NoError(t, err)

	assert.Equal(t, strategy.ParameterSet{"tp_percent": 10, "sl_percent": 2}, res.Phase1.Best.Params)
	require.Len(t, res.Top, 2)
	assert.Equal(t, strategy.ParameterSet{"tp_percent": 10, "sl_percent": 4}, res.Top[1].Params)

	require.Len(t, res.Phase2, 2)
	// tp in [9, 11], sl in [1, 5]
	assert.Equal(t, 15, res.Phase2[0].Space.Size())
	for _, phase := range res.Phase2 {
		for _, r := range phase.Result.Table.Records {
			tp, _ := r.Params.Float("tp_percent")
			sl, _ := r.Params.Float("sl_percent")
			assert.True(t, tp >= 9 && tp <= 11, "tp %v outside neighborhood", tp)
			assert.True(t, sl >= 1 && sl <= 5, "sl %v outside neighborhood", sl)
		}
	}

	assert.Equal(t, strategy.ParameterSet{"tp_percent": 9, "sl_percent": 1}, res.Phase2[0].Result.Best.Params)
	assert.Equal(t, drawdown, res.Phase2[0].Result.Objective)
	assert.Equal(t, strategy.ParameterSet{"tp_percent": 11, "sl_percent": 1}, res.Phase2[1].Result.Best.Params)
	assert.Equal(t, int64(4+15+15), fake.calls.Load())
}

func TestSequentialPlan_Validate(t *testing.T) {
	valid := SequentialPlan{Secondary: []Objective{{Metric: "sharpe_ratio"}}, TopN: 5, RefinementStep: 1, Step: 1}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*SequentialPlan)
	}{
		{"no secondary", func(p *SequentialPlan) { p.Secondary = nil }},
		{"zero top n", func(p *SequentialPlan) { p.TopN = 0 }},
		{"negative refinement", func(p *SequentialPlan) { p.RefinementStep = -1 }},
		{"zero step", func(p *SequentialPlan) { p.Step = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := valid
			tt.mutate(&plan)
			assert.Error(t, plan.Validate())
		})
	}
}
