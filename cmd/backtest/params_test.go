package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/mtfbacktest/internal/strategy"
)

func TestParseParams(t *testing.T) {
	ps, err := parseParams("sl_percent=3, tp_percent = 10,higher_timeframe=4h")
	require.NoError(t, err)
	assert.Equal(t, strategy.ParameterSet{
		"sl_percent":       "3",
		"tp_percent":       "10",
		"higher_timeframe": "4h",
	}, ps)

	ps, err = parseParams("")
	require.NoError(t, err)
	assert.Empty(t, ps)

	_, err = parseParams("sl_percent")
	assert.Error(t, err)
	_, err = parseParams("=3")
	assert.Error(t, err)
	_, err = parseParams("sl_percent=3,sl_percent=4")
	assert.Error(t, err)
}

func TestParamsFor(t *testing.T) {
	defs := []strategy.Definition{strategy.Breakout(), strategy.Momentum()}
	profile := strategy.NewProfile("tuned", strategy.BreakoutName, strategy.ParameterSet{"sl_percent": 2.0, "tp_percent": 8.0})

	out, err := paramsFor(defs, strategy.ParameterSet{"tp_percent": "12"}, profile)
	require.NoError(t, err)
	assert.Equal(t, 2.0, out[strategy.BreakoutName]["sl_percent"])
	assert.Equal(t, "12", out[strategy.BreakoutName]["tp_percent"], "flags win over the profile")
	assert.NotContains(t, out[strategy.MomentumName], "sl_percent", "profile applies only to its strategy")

	_, err = paramsFor(defs, strategy.ParameterSet{"no_such_param": "1"}, nil)
	assert.Error(t, err)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, splitList(" BTCUSDT, ,ETHUSDT "))
	assert.Nil(t, splitList(""))
}
