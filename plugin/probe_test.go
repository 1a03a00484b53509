package plugin_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddielth/pt100-south/bus"
	"github.com/eddielth/pt100-south/plugin"
)

func TestParsePins(t *testing.T) {
	tests := []struct {
		name      string
		csv       string
		want      []int
		wantToken string
	}{
		{name: "single pin", csv: "8", want: []int{8}},
		{name: "two pins keep order", csv: "11,8", want: []int{11, 8}},
		{name: "whitespace trimmed", csv: " 8 , 11 ", want: []int{8, 11}},
		{name: "duplicates kept", csv: "8,8", want: []int{8, 8}},
		{name: "zero is a pin", csv: "0", want: []int{0}},
		{name: "empty string", csv: "", wantToken: ""},
		{name: "trailing comma", csv: "8,", wantToken: ""},
		{name: "not a number", csv: "8,cs1", wantToken: "cs1"},
		{name: "negative", csv: "-1", wantToken: "-1"},
		{name: "explicit sign", csv: "+3", wantToken: "+3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pins, err := plugin.ParsePins(tt.csv)

			if tt.want == nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, plugin.ErrInvalidPin)

				var cerr *plugin.ConfigError
				require.ErrorAs(t, err, &cerr)
				assert.Equal(t, tt.wantToken, cerr.Token)
				assert.Nil(t, pins)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, pins)
		})
	}
}

func TestBuildProbeSet_OrderAndCount(t *testing.T) {
	sim := newSimBus()

	set, err := plugin.BuildProbeSet(sim, "8,11,3")
	require.NoError(t, err)

	assert.Equal(t, 3, set.Len())
	assert.Equal(t, []int{8, 11, 3}, set.Pins())
	for i, b := range set.Bindings() {
		assert.Equal(t, set.Pins()[i], b.Probe.Pin())
	}
}

func TestBuildProbeSet_DuplicatePins(t *testing.T) {
	sim := newSimBus()

	set, err := plugin.BuildProbeSet(sim, "8,8")
	require.NoError(t, err)

	assert.Equal(t, 2, set.Len())
	assert.Equal(t, 2, sim.Acquired(8))

	bindings := set.Bindings()
	assert.NotSame(t, bindings[0].Probe, bindings[1].Probe)
}

func TestBuildProbeSet_RollsBackOnBindFailure(t *testing.T) {
	sim := newSimBus()

	set, err := plugin.BuildProbeSet(sim, "8,11,99")
	require.Error(t, err)
	assert.Nil(t, set)

	assert.ErrorIs(t, err, plugin.ErrBindFailed)
	assert.ErrorIs(t, err, bus.ErrPinOutOfRange)

	var cerr *plugin.ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, 99, cerr.Pin)

	assert.Equal(t, 1, sim.Acquired(8))
	assert.Equal(t, 1, sim.Released(8))
	assert.Equal(t, 1, sim.Acquired(11))
	assert.Equal(t, 1, sim.Released(11))
	assert.Equal(t, 0, sim.Acquired(99))
}

func TestBuildProbeSet_InvalidPinTouchesNoPin(t *testing.T) {
	sim := newSimBus()

	_, err := plugin.BuildProbeSet(sim, "8,x")
	require.Error(t, err)
	assert.True(t, errors.Is(err, plugin.ErrInvalidPin))
	assert.Equal(t, 0, sim.Acquired(8))
}

func TestProbeSet_ReleaseIsIdempotent(t *testing.T) {
	sim := newSimBus()

	set, err := plugin.BuildProbeSet(sim, "8,11")
	require.NoError(t, err)

	require.NoError(t, set.Release())
	require.NoError(t, set.Release())

	assert.Equal(t, 1, sim.Released(8))
	assert.Equal(t, 1, sim.Released(11))

	var nilSet *plugin.ProbeSet
	assert.NoError(t, nilSet.Release())
	assert.Equal(t, 0, nilSet.Len())
}
