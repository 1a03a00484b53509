package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddielth/pt100-south/plugin"
)

func reading(asset string, readings map[string]float64) plugin.Reading {
	return plugin.Reading{Asset: asset, Readings: readings}
}

func TestRangeValidator(t *testing.T) {
	v := &RangeValidator{Field: "temperature", Min: -200, Max: 850}

	assert.NoError(t, v.Validate(reading("a", map[string]float64{"temperature": 21.5})))
	assert.NoError(t, v.Validate(reading("a", map[string]float64{"temperature": 850})))
	assert.Error(t, v.Validate(reading("a", map[string]float64{"temperature": 851})))
	assert.Error(t, v.Validate(reading("a", map[string]float64{"temperature": -200.5})))
	assert.Error(t, v.Validate(reading("a", map[string]float64{"resistance": 100})))
}

func TestFilter(t *testing.T) {
	v := &RangeValidator{Field: "temperature", Min: 0, Max: 100}
	batch := plugin.Batch{
		reading("PT100/temperature8", map[string]float64{"temperature": 20}),
		reading("PT100/temperature11", map[string]float64{"temperature": 120}),
		reading("PT100/temperature3", map[string]float64{"temperature": 99}),
	}

	out, errs := Filter(v, batch)
	require.Len(t, out, 2)
	assert.Equal(t, "PT100/temperature8", out[0].Asset)
	assert.Equal(t, "PT100/temperature3", out[1].Asset)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "PT100/temperature11")

	out, errs = Filter(v, nil)
	assert.Empty(t, out)
	assert.Empty(t, errs)
}
