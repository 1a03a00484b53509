// Package bus provides plugin.Bus implementations.
package bus

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"

	"github.com/eddielth/pt100-south/logger"
	"github.com/eddielth/pt100-south/plugin"
)

var (
	// ErrPinOutOfRange is returned when acquiring a pin the bus does not have
	ErrPinOutOfRange = errors.New("pin out of range")
	// ErrProbeClosed is returned when reading a probe after it was closed
	ErrProbeClosed = errors.New("probe closed")
	// ErrReadFailed is returned by probes on pins marked as failing
	ErrReadFailed = errors.New("probe read failed")
)

// SimConfig configures a simulated MAX31865 bus
type SimConfig struct {
	MaxPin          int     `mapstructure:"max_pin"`
	BaseTemperature float64 `mapstructure:"base_temperature"`
	Noise           float64 `mapstructure:"noise"`
	FailPins        []int   `mapstructure:"fail_pins"`
	Seed            int64   `mapstructure:"seed"`
}

// DefaultSimConfig returns a bus with the BCM GPIO pin range and room temperature probes
func DefaultSimConfig() SimConfig {
	return SimConfig{
		MaxPin:          27,
		BaseTemperature: 21.5,
		Noise:           0.5,
	}
}

// Sim is an in-memory bus whose probes report a noisy constant temperature.
// It counts acquisitions and releases per pin.
type Sim struct {
	mu          sync.Mutex
	cfg         SimConfig
	rnd         *rand.Rand
	failing     map[int]error
	temperature map[int]float64
	acquired    map[int]int
	released    map[int]int
	resets      int
}

// NewSim creates a simulated bus
func NewSim(cfg SimConfig) *Sim {
	s := &Sim{
		cfg:         cfg,
		rnd:         rand.New(rand.NewSource(cfg.Seed)),
		failing:     make(map[int]error),
		temperature: make(map[int]float64),
		acquired:    make(map[int]int),
		released:    make(map[int]int),
	}
	for _, pin := range cfg.FailPins {
		s.failing[pin] = ErrReadFailed
	}
	return s
}

// Acquire binds a simulated probe to pin
func (s *Sim) Acquire(pin int) (plugin.Probe, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if pin < 0 || pin > s.cfg.MaxPin {
		return nil, fmt.Errorf("%w: %d (max %d)", ErrPinOutOfRange, pin, s.cfg.MaxPin)
	}

	s.acquired[pin]++
	logger.Debug("sim bus: acquired pin %d", pin)
	return &simProbe{bus: s, pin: pin}, nil
}

// ReleaseAll resets the bus
func (s *Sim) ReleaseAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.resets++
	logger.Debug("sim bus: released all pins")
	return nil
}

// SetFailing makes reads on pin fail with err; a nil err clears the failure
func (s *Sim) SetFailing(pin int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err == nil {
		delete(s.failing, pin)
		return
	}
	s.failing[pin] = err
}

// SetTemperature fixes the base temperature reported on pin
func (s *Sim) SetTemperature(pin int, celsius float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.temperature[pin] = celsius
}

// Acquired returns how many probes were acquired on pin
func (s *Sim) Acquired(pin int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acquired[pin]
}

// Released returns how many probes on pin were closed
func (s *Sim) Released(pin int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released[pin]
}

// Resets returns how many times ReleaseAll was called
func (s *Sim) Resets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resets
}

func (s *Sim) read(pin int) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err, ok := s.failing[pin]; ok {
		return 0, err
	}

	base, ok := s.temperature[pin]
	if !ok {
		base = s.cfg.BaseTemperature
	}
	if s.cfg.Noise == 0 {
		return base, nil
	}
	return base + (s.rnd.Float64()*2-1)*s.cfg.Noise, nil
}

type simProbe struct {
	bus    *Sim
	pin    int
	mu     sync.Mutex
	closed bool
}

func (p *simProbe) Pin() int {
	return p.pin
}

func (p *simProbe) ReadTemperature() (float64, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()

	if closed {
		return 0, ErrProbeClosed
	}
	return p.bus.read(p.pin)
}

func (p *simProbe) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	p.bus.mu.Lock()
	p.bus.released[p.pin]++
	p.bus.mu.Unlock()
	return nil
}
