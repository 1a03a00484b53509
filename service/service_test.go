package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddielth/pt100-south/bus"
	"github.com/eddielth/pt100-south/config"
	"github.com/eddielth/pt100-south/plugin"
	"github.com/eddielth/pt100-south/storage"
	"github.com/eddielth/pt100-south/transformer"
	"github.com/eddielth/pt100-south/validator"
)

type memoryBackend struct {
	mu      sync.Mutex
	batches []plugin.Batch
}

func (b *memoryBackend) Store(batch plugin.Batch) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.batches = append(b.batches, batch)
	return nil
}

func (b *memoryBackend) Close() error {
	return nil
}

func (b *memoryBackend) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.batches)
}

func newTestService(t *testing.T, values map[string]string) (*Service, *bus.Sim, *memoryBackend) {
	t.Helper()

	simCfg := bus.DefaultSimConfig()
	simCfg.Noise = 0
	sim := bus.NewSim(simCfg)

	engine := plugin.NewEngine(sim)
	require.NoError(t, engine.Initialize(plugin.DefaultConfig().WithValues(values)))
	t.Cleanup(func() { _ = engine.Shutdown() })

	backend := &memoryBackend{}
	svc := New(Options{
		Engine:      engine,
		Validator:   &validator.RangeValidator{Field: "temperature", Min: -200, Max: 850},
		Storage:     storage.NewManager([]storage.StorageBackend{backend}),
		PollTimeout: time.Second,
	})
	return svc, sim, backend
}

func TestNew_IntervalFromConfig(t *testing.T) {
	svc, _, _ := newTestService(t, map[string]string{"pollInterval": "250"})
	assert.Equal(t, 250*time.Millisecond, svc.Interval())

	svc, _, _ = newTestService(t, nil)
	assert.Equal(t, DefaultPollInterval, svc.Interval())
}

func TestService_PollOnce(t *testing.T) {
	svc, sim, backend := newTestService(t, map[string]string{"pins": "8,11"})
	sim.SetTemperature(11, 900)

	batch, err := svc.PollOnce(context.Background())
	require.NoError(t, err)

	// 900 degrees is out of the PT100 range and dropped by the validator
	require.Len(t, batch, 1)
	assert.Equal(t, "PT100/temperature8", batch[0].Asset)
	assert.Equal(t, batch, svc.Latest())
	assert.Equal(t, 1, backend.count())

	stats := svc.Stats()
	assert.Equal(t, uint64(1), stats.Polls)
	assert.Equal(t, uint64(1), stats.Readings)
	assert.Equal(t, uint64(1), stats.Dropped)
	assert.Equal(t, "5s", stats.PollInterval)
	assert.False(t, stats.LastPoll.IsZero())
}

func TestService_PollOnceFailure(t *testing.T) {
	svc, sim, backend := newTestService(t, map[string]string{"pins": "8,9"})

	_, err := svc.PollOnce(context.Background())
	require.NoError(t, err)

	sim.SetFailing(9, errors.New("RTD short"))
	_, err = svc.PollOnce(context.Background())
	assert.ErrorIs(t, err, plugin.ErrSensorFailure)

	stats := svc.Stats()
	assert.Equal(t, uint64(2), stats.Polls)
	assert.Equal(t, uint64(1), stats.Failures)
	assert.Contains(t, stats.LastError, "pin 9")
	assert.Equal(t, 1, backend.count())

	// the previous batch is still the latest
	assert.Len(t, svc.Latest(), 2)
}

func TestService_Transformers(t *testing.T) {
	svc, _, _ := newTestService(t, nil)

	tm, err := transformer.NewManager(map[string]config.Transformer{
		transformer.Wildcard: {ScriptCode: `function transform(r) {
  r.readings.fahrenheit = convertTemperature(r.readings.temperature, "C", "F");
  return r;
}`},
	})
	require.NoError(t, err)
	svc.transformers = tm

	batch, err := svc.PollOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.InDelta(t, 70.7, batch[0].Readings["fahrenheit"], 1e-9)
}

func TestService_Reconfigure(t *testing.T) {
	svc, _, _ := newTestService(t, map[string]string{"pins": "8"})

	require.NoError(t, svc.Reconfigure(map[string]string{"pins": "3,4", "pollInterval": "1000"}))
	assert.Equal(t, []int{3, 4}, svc.Engine().Pins())
	assert.Equal(t, time.Second, svc.Interval())

	select {
	case d := <-svc.intervalChanged:
		assert.Equal(t, time.Second, d)
	default:
		t.Fatal("interval change not signalled")
	}

	// unchanged interval signals nothing
	require.NoError(t, svc.Reconfigure(map[string]string{"assetNamePrefix": "lab/"}))
	assert.Len(t, svc.intervalChanged, 0)

	err := svc.Reconfigure(map[string]string{"pins": "x"})
	assert.ErrorIs(t, err, plugin.ErrInvalidPin)
	assert.Equal(t, []int{3, 4}, svc.Engine().Pins())
}

func TestService_ApplyKeepsNewestInterval(t *testing.T) {
	svc, _, _ := newTestService(t, nil)

	require.NoError(t, svc.Reconfigure(map[string]string{"pollInterval": "1000"}))
	require.NoError(t, svc.Reconfigure(map[string]string{"pollInterval": "2000"}))

	require.Len(t, svc.intervalChanged, 1)
	assert.Equal(t, 2*time.Second, <-svc.intervalChanged)
}

func TestService_Run(t *testing.T) {
	svc, _, backend := newTestService(t, map[string]string{"pollInterval": "10"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return backend.count() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
