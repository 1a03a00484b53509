package plugin

import (
	"errors"
	"fmt"
)

// Configuration error kinds
var (
	ErrInvalidPin    = errors.New("invalid pin")
	ErrMissingOption = errors.New("missing configuration option")
	ErrInvalidValue  = errors.New("invalid configuration value")
	ErrBindFailed    = errors.New("probe bind failed")
)

// ErrSensorFailure is matched by every PollError
var ErrSensorFailure = errors.New("sensor failure")

// Lifecycle misuse
var (
	ErrAlreadyInitialized = errors.New("plugin already initialized")
	ErrNotInitialized     = errors.New("plugin not initialized")
	ErrStopped            = errors.New("plugin stopped")
)

// ConfigError reports malformed or missing configuration and probe bind failures.
// Kind is one of ErrInvalidPin, ErrMissingOption, ErrInvalidValue or ErrBindFailed.
type ConfigError struct {
	Kind   error
	Option string
	Token  string
	Pin    int
	Err    error
}

func (e *ConfigError) Error() string {
	switch e.Kind {
	case ErrInvalidPin:
		return fmt.Sprintf("%v: %q", e.Kind, e.Token)
	case ErrMissingOption:
		return fmt.Sprintf("%v: %s", e.Kind, e.Option)
	case ErrInvalidValue:
		return fmt.Sprintf("%v for %s: %q", e.Kind, e.Option, e.Token)
	case ErrBindFailed:
		return fmt.Sprintf("%v on pin %d: %v", e.Kind, e.Pin, e.Err)
	default:
		return fmt.Sprintf("configuration error: %v", e.Err)
	}
}

// Is reports whether target is the kind of this error
func (e *ConfigError) Is(target error) bool {
	return target == e.Kind
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// PollError reports the probe read that aborted a poll cycle
type PollError struct {
	Pin int
	Err error
}

func (e *PollError) Error() string {
	return fmt.Sprintf("%v on pin %d: %v", ErrSensorFailure, e.Pin, e.Err)
}

func (e *PollError) Is(target error) bool {
	return target == ErrSensorFailure
}

func (e *PollError) Unwrap() error {
	return e.Err
}

// StateError reports a lifecycle call made in the wrong engine state
type StateError struct {
	Op    string
	State State
	Err   error
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s in state %s: %v", e.Op, e.State, e.Err)
}

func (e *StateError) Unwrap() error {
	return e.Err
}
