package strategy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_Defaults(t *testing.T) {
	cfg, err := NewConfig(Breakout(), nil)
	require.NoError(t, err)

	assert.Equal(t, BreakoutName, cfg.Strategy())
	assert.Equal(t, 14.0, cfg.Float(ParamTakeProfit))
	assert.Equal(t, 7.0, cfg.Float(ParamStopLoss))
	assert.Equal(t, 20, cfg.Int("higher_tf_short_ma"))
	assert.Equal(t, 50, cfg.Int("higher_tf_long_ma"))
	assert.Equal(t, "5m", cfg.PrimaryTimeframe())
	assert.Equal(t, "1H", cfg.HigherTimeframe())
}

func TestNewConfig_Overrides(t *testing.T) {
	cfg, err := NewConfig(Momentum(), ParameterSet{
		"short_window": "10",
		"long_window":  30.0,
		"sl_percent":   3,
		"ma_type":      "EMA",
		"primary_tf":   "15min",
	})
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Int("short_window"))
	assert.Equal(t, 30, cfg.Int("long_window"))
	assert.Equal(t, 3.0, cfg.Float("sl_percent"))
	assert.Equal(t, "ema", cfg.String("ma_type"))
	assert.Equal(t, "15m", cfg.PrimaryTimeframe())
	assert.Empty(t, cfg.HigherTimeframe())
}

func TestNewConfig_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		params ParameterSet
		field  string
	}{
		{"unknown name", ParameterSet{"lookback": 3}, "lookback"},
		{"fractional int", ParameterSet{"short_window": 2.5}, "short_window"},
		{"not a number", ParameterSet{"sl_percent": "abc"}, "sl_percent"},
		{"below minimum", ParameterSet{"long_window": 0}, "long_window"},
		{"bad choice", ParameterSet{"ma_type": "wma"}, "ma_type"},
		{"bad timeframe", ParameterSet{"primary_tf": "5x"}, "primary_tf"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewConfig(Momentum(), tt.params)
			require.Error(t, err)

			var cfgErr *ConfigurationError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tt.field, cfgErr.Field)
			assert.Equal(t, MomentumName, cfgErr.Strategy)
		})
	}
}

func TestConfig_ValuesIsACopy(t *testing.T) {
	cfg, err := NewConfig(Momentum(), nil)
	require.NoError(t, err)

	values := cfg.Values()
	values["short_window"] = 99

	assert.Equal(t, 20, cfg.Int("short_window"))
}

func TestParameterSet_Key(t *testing.T) {
	a := ParameterSet{"tp_percent": 5, "sl_percent": 2}
	b := ParameterSet{"sl_percent": 2, "tp_percent": 5}

	assert.Equal(t, "sl_percent=2, tp_percent=5", a.Key())
	assert.Equal(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Key(), ParameterSet{"sl_percent": 4, "tp_percent": 5}.Key())

	clone := a.Clone()
	clone["sl_percent"] = 9
	assert.Equal(t, 2, a["sl_percent"])
}

func TestDefinition_Optimizable(t *testing.T) {
	assert.Equal(t, []string{"short_window", "long_window", "sl_percent", "tp_percent"}, Momentum().Optimizable())
	assert.Equal(t, []string{"tp_percent", "sl_percent", "higher_tf_short_ma", "higher_tf_long_ma"}, Breakout().Optimizable())
	assert.Len(t, MultiTimeframe().Optimizable(), 6)
}

func TestWithBase(t *testing.T) {
	params := withBase(ParamSpec{Name: "window", Kind: KindInt, Default: 3})
	require.Len(t, params, 2)
	assert.Equal(t, ParamPrimaryTimeframe, params[0].Name)
	assert.Equal(t, DefaultPrimaryTimeframe, params[0].Default)

	// a variant that declares primary_tf keeps its own default
	p, ok := Momentum().Param(ParamPrimaryTimeframe)
	require.True(t, ok)
	assert.Equal(t, "5m", p.Default)
}

func TestRegistry(t *testing.T) {
	r := DefaultRegistry()
	assert.Equal(t, []string{BreakoutName, MomentumName, MultiTimeframeName}, r.Names())

	def, ok := r.Get("multitimeframe")
	require.True(t, ok)
	assert.True(t, def.RequiresMultipleTimeframes)

	_, ok = r.Get("Scalper")
	assert.False(t, ok)

	assert.Error(t, r.Register(Momentum()))
	assert.Error(t, r.Register(Definition{}))
}
