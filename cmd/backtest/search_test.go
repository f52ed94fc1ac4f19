package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/mtfbacktest/internal/optimization"
	"github.com/ajitpratap0/mtfbacktest/internal/strategy"
)

func bestResult(t *testing.T) *optimization.Result {
	t.Helper()
	obj, err := optimization.NewObjective("Equity Final [$]", optimization.Maximize)
	require.NoError(t, err)
	best := optimization.Record{
		Index:   1,
		Params:  strategy.ParameterSet{"sl_percent": 2.0, "tp_percent": 10.0},
		Metrics: map[string]float64{"final_equity": 112000},
	}
	return &optimization.Result{
		Engine:    optimization.EngineGrid,
		Objective: obj,
		Best:      best,
		Table:     &optimization.Table{Params: []string{"sl_percent", "tp_percent"}, Records: []optimization.Record{best}},
		Evaluated: 4,
		Failed:    1,
	}
}

func TestJobResults(t *testing.T) {
	res := jobResults(bestResult(t))
	assert.Equal(t, "final_equity", res.Metric)
	assert.Equal(t, 112000.0, res.BestValue)
	assert.Equal(t, 10.0, res.BestParams["tp_percent"])
	assert.Equal(t, 4, res.Evaluated)
	assert.Equal(t, 1, res.Failed)
}

func TestExportProfile(t *testing.T) {
	run := &searchRun{mode: modeGrid, def: strategy.Breakout(), asset: "BTCUSDT"}
	path := filepath.Join(t.TempDir(), "best.yaml")

	require.NoError(t, exportProfile(path, run, bestResult(t)))

	p, err := strategy.ImportFromFile(path, strategy.DefaultRegistry())
	require.NoError(t, err)
	assert.Equal(t, strategy.BreakoutName, p.Strategy)
	assert.Equal(t, "BTCUSDT", p.Asset)
	assert.Equal(t, "optimization", p.Metadata.Source)
	assert.Equal(t, "final_equity", p.Metric)
	assert.Equal(t, 112000.0, p.Value)
	tp, ok := p.Params.Float("tp_percent")
	require.True(t, ok)
	assert.Equal(t, 10.0, tp)
}
