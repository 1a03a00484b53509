// Package plugin implements the PT100 south poll plugin: probe binding,
// poll cycles, reconfiguration and the lifecycle state machine the host drives.
package plugin

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/eddielth/pt100-south/logger"
)

// State is the lifecycle state of an Engine
type State int32

const (
	StateUninitialized State = iota
	StateReady
	StatePolling
	StateReconfiguring
	StateStopped
)

var stateNames = map[State]string{
	StateUninitialized: "uninitialized",
	StateReady:         "ready",
	StatePolling:       "polling",
	StateReconfiguring: "reconfiguring",
	StateStopped:       "stopped",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Engine sequences the plugin lifecycle over a single Bus.
// Every lifecycle call holds the engine lock for its whole duration.
type Engine struct {
	mu     sync.Mutex
	state  atomic.Int32
	bus    Bus
	clock  Clock
	keys   KeyGenerator
	handle Handle
}

// EngineOption customises an Engine
type EngineOption func(*Engine)

// WithClock sets the clock used to timestamp readings
func WithClock(clock Clock) EngineOption {
	return func(e *Engine) {
		e.clock = clock
	}
}

// WithKeyGenerator sets the generator of reading keys
func WithKeyGenerator(keys KeyGenerator) EngineOption {
	return func(e *Engine) {
		e.keys = keys
	}
}

// NewEngine creates an uninitialized engine bound to bus
func NewEngine(bus Bus, opts ...EngineOption) *Engine {
	e := &Engine{
		bus:   bus,
		clock: SystemClock{},
		keys:  UUIDKeys{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// State returns the current lifecycle state
func (e *Engine) State() State {
	return State(e.state.Load())
}

func (e *Engine) setState(s State) {
	e.state.Store(int32(s))
}

// Describe returns the static plugin metadata
func (e *Engine) Describe() Info {
	return Describe()
}

// Config returns a copy of the configuration snapshot currently in effect
func (e *Engine) Config() Configuration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.handle.Config.Clone()
}

// Pins returns the pins of the current probe set
func (e *Engine) Pins() []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.handle.Probes.Pins()
}

// stateError logs lifecycle misuse loudly and returns it
func (e *Engine) stateError(op string, err error) error {
	serr := &StateError{Op: op, State: e.State(), Err: err}
	logger.Error("PT100 %v", serr)
	return serr
}

// Initialize validates cfg and binds its probes
func (e *Engine) Initialize(cfg Configuration) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.State() {
	case StateUninitialized, StateStopped:
	default:
		return e.stateError("initialize", ErrAlreadyInitialized)
	}

	settings, err := cfg.Settings()
	if err != nil {
		return err
	}

	probes, err := bindPins(e.bus, settings.Pins)
	if err != nil {
		return err
	}

	e.handle = Handle{Config: cfg.Clone(), Probes: probes}
	e.setState(StateReady)
	logger.Info("PT100 - MAX31865 with chip selects on pins %s initialized", cfg[ItemPins].Value)
	return nil
}

func (e *Engine) checkReady(op string) error {
	switch e.State() {
	case StateReady:
		return nil
	case StateStopped:
		return e.stateError(op, ErrStopped)
	default:
		return e.stateError(op, ErrNotInitialized)
	}
}

// Poll reads every probe once and returns the batch, or the failure that aborted it
func (e *Engine) Poll(ctx context.Context) (Batch, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkReady("poll"); err != nil {
		return nil, err
	}

	e.setState(StatePolling)
	defer e.setState(StateReady)

	prefix := e.handle.Config[ItemAssetNamePrefix].Value
	batch, err := Poll(ctx, e.handle.Probes, prefix, e.clock, e.keys)
	if err != nil {
		logger.Error("PT100 exception: %v", err)
		return nil, err
	}

	logger.Debug("PT100 reading: %d readings", len(batch))
	return batch, nil
}

// Reconfigure applies cfg. On failure the previous configuration stays in effect.
func (e *Engine) Reconfigure(cfg Configuration) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkReady("reconfigure"); err != nil {
		return err
	}

	e.setState(StateReconfiguring)
	defer e.setState(StateReady)

	logger.Info("old config for PT100 plugin %v, new config %v", e.handle.Config, cfg)

	next, _, err := Reconcile(e.bus, e.handle, cfg)
	e.handle = next
	if err != nil {
		logger.Error("PT100 reconfigure failed: %v", err)
		return err
	}

	return nil
}

// Shutdown releases every probe and the bus. Calls after the first are no-ops.
func (e *Engine) Shutdown() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.State() == StateStopped {
		return nil
	}

	perr := e.handle.Probes.Release()
	berr := e.bus.ReleaseAll()
	e.handle.Probes = nil
	e.setState(StateStopped)

	logger.Info("PT100 poll plugin shut down")
	return errors.Join(perr, berr)
}
