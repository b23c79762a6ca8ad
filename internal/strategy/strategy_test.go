package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testConfiguration builds a small two-indicator genome used across the
// package tests.
func testConfiguration() *Configuration {
	return &Configuration{
		SchemaVersion: SchemaVersion,
		Indicators: []*IndicatorSpec{
			{
				Name:      "SMA",
				Timeframe: "5m",
				Params: map[string]*Param{
					"period": {Value: 20, Kind: KindInteger, Min: 5, Max: 50},
					"offset": {Value: 0.5, Kind: KindFloat, Min: -1, Max: 1},
					"source": {Value: 0, Kind: KindSkip},
				},
			},
			{
				Name:      "RSI",
				Timeframe: "1h",
				Params: map[string]*Param{
					"period": {Value: 14, Kind: KindInteger, Min: 2, Max: 30},
				},
			},
		},
		Bars: []*Bar{
			{
				Name:            "entry",
				Weights:         map[string]float64{"SMA_5m": 10, "RSI_1h": 20},
				EnterThresholds: []float64{0.5},
				ExitThresholds:  []float64{0.3},
			},
		},
	}
}

func TestQualifiedName(t *testing.T) {
	spec := &IndicatorSpec{Name: "SMA", Timeframe: "5m"}
	assert.Equal(t, "SMA_5m", spec.QualifiedName())

	spec = &IndicatorSpec{Name: "SMA"}
	assert.Equal(t, "SMA", spec.QualifiedName())
}

func TestConfigurationClone(t *testing.T) {
	original := testConfiguration()
	clone := original.Clone()

	// Mutating the clone must never show through the original.
	clone.Indicators[0].Params["period"].Value = 99
	clone.Bars[0].Weights["SMA_5m"] = 77
	clone.Bars[0].EnterThresholds[0] = 0.99

	assert.Equal(t, 20.0, original.Indicators[0].Params["period"].Value)
	assert.Equal(t, 10.0, original.Bars[0].Weights["SMA_5m"])
	assert.Equal(t, 0.5, original.Bars[0].EnterThresholds[0])
}

func TestConfigurationValidate(t *testing.T) {
	t.Run("valid configuration", func(t *testing.T) {
		assert.NoError(t, testConfiguration().Validate())
	})

	t.Run("no indicators", func(t *testing.T) {
		cfg := testConfiguration()
		cfg.Indicators = nil
		assert.Error(t, cfg.Validate())
	})

	t.Run("no bars", func(t *testing.T) {
		cfg := testConfiguration()
		cfg.Bars = nil
		assert.Error(t, cfg.Validate())
	})

	t.Run("duplicate indicator", func(t *testing.T) {
		cfg := testConfiguration()
		cfg.Indicators = append(cfg.Indicators, cfg.Indicators[0].Clone())
		assert.Error(t, cfg.Validate())
	})

	t.Run("inverted parameter range", func(t *testing.T) {
		cfg := testConfiguration()
		cfg.Indicators[0].Params["period"].Min = 50
		cfg.Indicators[0].Params["period"].Max = 5
		assert.Error(t, cfg.Validate())
	})

	t.Run("bar references unknown indicator", func(t *testing.T) {
		cfg := testConfiguration()
		cfg.Bars[0].Weights["MACD_1d"] = 5
		assert.Error(t, cfg.Validate())
	})

	t.Run("bar without enter thresholds", func(t *testing.T) {
		cfg := testConfiguration()
		cfg.Bars[0].EnterThresholds = nil
		assert.Error(t, cfg.Validate())
	})
}

func TestNewIndividual(t *testing.T) {
	ind := NewIndividual(testConfiguration())

	require.NoError(t, ind.Validate())
	assert.Equal(t, WeightMin, ind.TriggerWeights["entry"])
	assert.Equal(t, WeightMin, ind.BearTriggerWeights["entry"])
	assert.Equal(t, MonitorThresholdMin, ind.MonitorThreshold)
}

func TestIndividualClone(t *testing.T) {
	ind := NewIndividual(testConfiguration())
	ind.Mutations = 3
	ind.Provenance = []string{"mut#3@gen2"}

	clone := ind.Clone()

	// Fresh identity, independent state.
	assert.NotEqual(t, ind.ID, clone.ID)
	assert.Equal(t, ind.Mutations, clone.Mutations)
	assert.Equal(t, ind.Provenance, clone.Provenance)

	clone.TriggerWeights["entry"] = 50
	clone.Config.Bars[0].Weights["SMA_5m"] = 42
	clone.Provenance = append(clone.Provenance, "mut#4@gen3")

	assert.Equal(t, WeightMin, ind.TriggerWeights["entry"])
	assert.Equal(t, 10.0, ind.Config.Bars[0].Weights["SMA_5m"])
	assert.Len(t, ind.Provenance, 1)
}

func TestIndividualValidate(t *testing.T) {
	ind := NewIndividual(testConfiguration())
	ind.MonitorThreshold = 0.95
	assert.Error(t, ind.Validate())

	ind.MonitorThreshold = 0.75
	assert.NoError(t, ind.Validate())
}

func TestParamKindText(t *testing.T) {
	cases := []struct {
		kind ParamKind
		text string
	}{
		{KindInteger, "integer"},
		{KindFloat, "float"},
		{KindSkip, "skip"},
	}
	for _, tc := range cases {
		t.Run(tc.text, func(t *testing.T) {
			data, err := tc.kind.MarshalText()
			require.NoError(t, err)
			assert.Equal(t, tc.text, string(data))

			var parsed ParamKind
			require.NoError(t, parsed.UnmarshalText(data))
			assert.Equal(t, tc.kind, parsed)
		})
	}

	t.Run("int alias", func(t *testing.T) {
		var parsed ParamKind
		require.NoError(t, parsed.UnmarshalText([]byte("int")))
		assert.Equal(t, KindInteger, parsed)
	})

	t.Run("unknown kind", func(t *testing.T) {
		var parsed ParamKind
		assert.Error(t, parsed.UnmarshalText([]byte("string")))
	})
}
