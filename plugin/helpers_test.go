package plugin_test

import (
	"fmt"
	"sync"
	"time"

	"github.com/eddielth/pt100-south/bus"
	"github.com/eddielth/pt100-south/plugin"
)

// stepClock advances by step every time it is read
type stepClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func newStepClock() *stepClock {
	return &stepClock{
		now:  time.Date(2026, 10, 17, 8, 30, 0, 0, time.UTC),
		step: 250 * time.Millisecond,
	}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

// seqKeys hands out key-1, key-2, ...
type seqKeys struct {
	mu sync.Mutex
	n  int
}

func (k *seqKeys) Next() string {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.n++
	return fmt.Sprintf("key-%d", k.n)
}

func newSimBus() *bus.Sim {
	cfg := bus.DefaultSimConfig()
	cfg.Noise = 0
	return bus.NewSim(cfg)
}

func pluginConfig(pins, prefix string) plugin.Configuration {
	return plugin.DefaultConfig().WithValues(map[string]string{
		plugin.ItemPins:            pins,
		plugin.ItemAssetNamePrefix: prefix,
	})
}
