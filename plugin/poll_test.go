package plugin_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddielth/pt100-south/plugin"
)

func TestPoll_TwoProbes(t *testing.T) {
	sim := newSimBus()
	sim.SetTemperature(8, 20.25)
	sim.SetTemperature(11, 99.5)

	set, err := plugin.BuildProbeSet(sim, "8,11")
	require.NoError(t, err)

	clock := newStepClock()
	batch, err := plugin.Poll(context.Background(), set, "PT100/", clock, plugin.UUIDKeys{})
	require.NoError(t, err)
	require.Len(t, batch, 2)

	assert.Equal(t, "PT100/temperature8", batch[0].Asset)
	assert.Equal(t, "PT100/temperature11", batch[1].Asset)
	assert.Equal(t, 20.25, batch[0].Temperature())
	assert.Equal(t, 99.5, batch[1].Temperature())
	assert.NotEqual(t, batch[0].Key, batch[1].Key)

	for _, r := range batch {
		assert.True(t, strings.HasSuffix(r.Timestamp, "+00:00"), r.Timestamp)
		_, err := time.Parse(time.RFC3339, r.Timestamp)
		assert.NoError(t, err)
	}
}

func TestPoll_TimestampPerReading(t *testing.T) {
	sim := newSimBus()
	set, err := plugin.BuildProbeSet(sim, "8,11,3")
	require.NoError(t, err)

	batch, err := plugin.Poll(context.Background(), set, "", newStepClock(), &seqKeys{})
	require.NoError(t, err)

	assert.Equal(t, "2026-10-17T08:30:00.000000+00:00", batch[0].Timestamp)
	assert.Equal(t, "2026-10-17T08:30:00.250000+00:00", batch[1].Timestamp)
	assert.Equal(t, "2026-10-17T08:30:00.500000+00:00", batch[2].Timestamp)
	assert.Equal(t, []string{"key-1", "key-2", "key-3"}, []string{batch[0].Key, batch[1].Key, batch[2].Key})
	assert.Equal(t, "temperature3", batch[2].Asset)
}

func TestPoll_FailureDiscardsWholeBatch(t *testing.T) {
	sim := newSimBus()
	set, err := plugin.BuildProbeSet(sim, "8,9,10")
	require.NoError(t, err)

	readErr := errors.New("RTD open circuit")
	sim.SetFailing(9, readErr)

	keys := &seqKeys{}
	batch, err := plugin.Poll(context.Background(), set, "PT100/", newStepClock(), keys)
	require.Error(t, err)
	assert.Nil(t, batch)

	assert.ErrorIs(t, err, plugin.ErrSensorFailure)
	assert.ErrorIs(t, err, readErr)

	var perr *plugin.PollError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 9, perr.Pin)

	// probe 10 was never read
	assert.Equal(t, 1, keys.n)
}

func TestPoll_EmptySet(t *testing.T) {
	batch, err := plugin.Poll(context.Background(), nil, "PT100/", newStepClock(), &seqKeys{})
	require.NoError(t, err)
	assert.NotNil(t, batch)
	assert.Empty(t, batch)
}

func TestPoll_CancelledContext(t *testing.T) {
	sim := newSimBus()
	set, err := plugin.BuildProbeSet(sim, "8")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	batch, err := plugin.Poll(ctx, set, "PT100/", newStepClock(), &seqKeys{})
	assert.Nil(t, batch)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, plugin.ErrSensorFailure)
}

func TestPoll_RepeatableAndLeavesSetUntouched(t *testing.T) {
	sim := newSimBus()
	set, err := plugin.BuildProbeSet(sim, "8,11")
	require.NoError(t, err)

	first, err := plugin.Poll(context.Background(), set, "PT100/", newStepClock(), plugin.UUIDKeys{})
	require.NoError(t, err)
	second, err := plugin.Poll(context.Background(), set, "PT100/", newStepClock(), plugin.UUIDKeys{})
	require.NoError(t, err)

	assert.Equal(t, []int{8, 11}, set.Pins())
	assert.Equal(t, 0, sim.Released(8))

	seen := map[string]bool{}
	for _, r := range append(first, second...) {
		assert.False(t, seen[r.Key], "duplicate key %s", r.Key)
		seen[r.Key] = true
	}
}

func TestFormatTimestamp(t *testing.T) {
	loc := time.FixedZone("CEST", 2*60*60)
	ts := time.Date(2026, 1, 2, 5, 4, 5, 6000, loc)

	assert.Equal(t, "2026-01-02T03:04:05.000006+00:00", plugin.FormatTimestamp(ts))
}
