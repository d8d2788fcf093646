// Package factory provides a generic framework for component creation and initialization
package factory

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"
)

// Component is the base interface that all components must implement
type Component interface {
	// Init initializes the component with configuration
	Init(parser ConfigParser) error

	// Name returns the component name for logging and identification
	Name() string

	// Validate validates the component state after initialization
	Validate() error
}

// ConfigParser parses configuration into the provided structure.
// Components call this to extract their specific configuration.
type ConfigParser func(v any) error

// Build initializes and validates a component with the provided configuration
func Build[T Component](component T, config any) (T, error) {
	var zero T

	parser := func(v any) error {
		return ParseConfig(config, v)
	}

	if err := component.Init(parser); err != nil {
		return zero, fmt.Errorf("init %s: %w", component.Name(), err)
	}
	if err := component.Validate(); err != nil {
		return zero, fmt.Errorf("validate %s: %w", component.Name(), err)
	}
	return component, nil
}

// BuildWithLogger is Build with lifecycle logging
func BuildWithLogger[T Component](component T, config any, logger *slog.Logger) (T, error) {
	logger.Debug("Building component", "name", component.Name())

	result, err := Build(component, config)
	if err != nil {
		logger.Error("Failed to build component", "name", component.Name(), "error", err)
		return result, err
	}

	logger.Debug("Component built", "name", component.Name())
	return result, nil
}

// ParseConfig fills target from source. A nil source leaves target
// untouched; a source of the target's own type is copied directly; anything
// else goes through JSON.
func ParseConfig(source any, target any) error {
	if source == nil {
		return nil
	}
	tv := reflect.ValueOf(target)
	if tv.Kind() != reflect.Pointer || tv.IsNil() {
		return fmt.Errorf("config target must be a non-nil pointer, got %T", target)
	}

	if reflect.TypeOf(source) == tv.Type().Elem() {
		tv.Elem().Set(reflect.ValueOf(source))
		return nil
	}

	data, err := json.Marshal(source)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	return nil
}
