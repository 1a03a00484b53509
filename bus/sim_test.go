package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSim_AcquireAndRead(t *testing.T) {
	sim := NewSim(SimConfig{MaxPin: 27, BaseTemperature: 20, Noise: 0})

	probe, err := sim.Acquire(8)
	require.NoError(t, err)
	assert.Equal(t, 8, probe.Pin())

	temp, err := probe.ReadTemperature()
	require.NoError(t, err)
	assert.Equal(t, 20.0, temp)

	sim.SetTemperature(8, 100.25)
	temp, err = probe.ReadTemperature()
	require.NoError(t, err)
	assert.Equal(t, 100.25, temp)
}

func TestSim_PinOutOfRange(t *testing.T) {
	sim := NewSim(DefaultSimConfig())

	_, err := sim.Acquire(28)
	assert.ErrorIs(t, err, ErrPinOutOfRange)

	_, err = sim.Acquire(-1)
	assert.ErrorIs(t, err, ErrPinOutOfRange)
	assert.Equal(t, 0, sim.Acquired(28))
}

func TestSim_NoiseStaysInBounds(t *testing.T) {
	sim := NewSim(SimConfig{MaxPin: 27, BaseTemperature: 21.5, Noise: 0.5, Seed: 42})

	probe, err := sim.Acquire(3)
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		temp, err := probe.ReadTemperature()
		require.NoError(t, err)
		assert.InDelta(t, 21.5, temp, 0.5)
	}
}

func TestSim_FailingPins(t *testing.T) {
	sim := NewSim(SimConfig{MaxPin: 27, FailPins: []int{5}})

	probe, err := sim.Acquire(5)
	require.NoError(t, err)

	_, err = probe.ReadTemperature()
	assert.ErrorIs(t, err, ErrReadFailed)

	sim.SetFailing(5, nil)
	_, err = probe.ReadTemperature()
	assert.NoError(t, err)
}

func TestSim_CloseIsIdempotent(t *testing.T) {
	sim := NewSim(DefaultSimConfig())

	probe, err := sim.Acquire(8)
	require.NoError(t, err)

	require.NoError(t, probe.Close())
	require.NoError(t, probe.Close())
	assert.Equal(t, 1, sim.Released(8))

	_, err = probe.ReadTemperature()
	assert.ErrorIs(t, err, ErrProbeClosed)
}

func TestSim_ReleaseAll(t *testing.T) {
	sim := NewSim(DefaultSimConfig())

	require.NoError(t, sim.ReleaseAll())
	require.NoError(t, sim.ReleaseAll())
	assert.Equal(t, 2, sim.Resets())
}
