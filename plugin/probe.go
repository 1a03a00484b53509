package plugin

import (
	"errors"
	"strconv"
	"strings"
	"sync"
)

// Probe is one resistance thermometer bound to a chip select pin
type Probe interface {
	// Pin returns the chip select pin the probe is bound to
	Pin() int
	// ReadTemperature performs a blocking read and returns degrees Celsius
	ReadTemperature() (float64, error)
	// Close releases the pin held by the probe
	Close() error
}

// Bus hands out probes and owns the process-wide pin state
type Bus interface {
	// Acquire binds a probe to the given chip select pin
	Acquire(pin int) (Probe, error)
	// ReleaseAll resets every pin the bus has touched
	ReleaseAll() error
}

// Binding pairs a configured pin with the probe acquired for it
type Binding struct {
	Pin   int
	Probe Probe
}

// ProbeSet is the ordered collection of bindings built from the pins item
type ProbeSet struct {
	bindings []Binding
	once     sync.Once
	err      error
}

// ParsePins splits a comma separated pin list into pin identifiers
func ParsePins(csv string) ([]int, error) {
	tokens := strings.Split(csv, ",")
	pins := make([]int, 0, len(tokens))

	for _, token := range tokens {
		trimmed := strings.TrimSpace(token)
		pin, err := strconv.Atoi(trimmed)
		if err != nil || pin < 0 || strings.HasPrefix(trimmed, "+") {
			return nil, &ConfigError{Kind: ErrInvalidPin, Option: ItemPins, Token: trimmed}
		}
		pins = append(pins, pin)
	}

	return pins, nil
}

// BuildProbeSet parses csv and acquires one probe per pin, in order.
// Probes acquired before a failing pin are closed before the error is returned.
func BuildProbeSet(bus Bus, csv string) (*ProbeSet, error) {
	pins, err := ParsePins(csv)
	if err != nil {
		return nil, err
	}
	return bindPins(bus, pins)
}

func bindPins(bus Bus, pins []int) (*ProbeSet, error) {
	bindings := make([]Binding, 0, len(pins))

	for _, pin := range pins {
		probe, err := bus.Acquire(pin)
		if err != nil {
			partial := &ProbeSet{bindings: bindings}
			if rerr := partial.Release(); rerr != nil {
				err = errors.Join(err, rerr)
			}
			return nil, &ConfigError{Kind: ErrBindFailed, Option: ItemPins, Pin: pin, Err: err}
		}
		bindings = append(bindings, Binding{Pin: pin, Probe: probe})
	}

	return &ProbeSet{bindings: bindings}, nil
}

// Len returns the number of bindings
func (s *ProbeSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.bindings)
}

// Pins returns the bound pins in order
func (s *ProbeSet) Pins() []int {
	if s == nil {
		return nil
	}

	pins := make([]int, len(s.bindings))
	for i, b := range s.bindings {
		pins[i] = b.Pin
	}
	return pins
}

// Bindings returns a copy of the bindings in order
func (s *ProbeSet) Bindings() []Binding {
	if s == nil {
		return nil
	}

	out := make([]Binding, len(s.bindings))
	copy(out, s.bindings)
	return out
}

// Release closes every probe in the set. Only the first call does any work.
func (s *ProbeSet) Release() error {
	if s == nil {
		return nil
	}

	s.once.Do(func() {
		var errs []error
		for _, b := range s.bindings {
			if err := b.Probe.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		s.err = errors.Join(errs...)
	})

	return s.err
}
