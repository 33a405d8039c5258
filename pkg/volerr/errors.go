// Package volerr defines the error types raised while building tissue volumes.
// All of them are returned synchronously from the point of detection and can be
// matched with errors.As.
package volerr

import (
	"fmt"
)

// ConfigurationError reports a malformed volume configuration or structure
// descriptor, including degenerate geometry.
type ConfigurationError struct {
	// Subject names the offending setting or structure
	Subject string

	// Reason describes what is wrong with it
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Subject == "" {
		return fmt.Sprintf("configuration error: %s", e.Reason)
	}
	return fmt.Sprintf("configuration error in %s: %s", e.Subject, e.Reason)
}

// Configf builds a ConfigurationError with a formatted reason.
func Configf(subject, format string, args ...interface{}) error {
	return &ConfigurationError{Subject: subject, Reason: fmt.Sprintf(format, args...)}
}

// CompositionError reports a molecular composition whose volume fractions do
// not add up to one, or that cannot be resolved at all.
type CompositionError struct {
	// Composition is the name of the tissue composition
	Composition string

	// Sum is the total volume fraction found, if known
	Sum float64

	// Reason describes the failure
	Reason string
}

func (e *CompositionError) Error() string {
	return fmt.Sprintf("composition error in %q: %s", e.Composition, e.Reason)
}

// NumericAnomalyError reports a non-finite value in a produced volume.
type NumericAnomalyError struct {
	// Property is the name of the volume that failed validation
	Property string

	// X, Y, Z locate the first offending voxel
	X, Y, Z int

	// Value is the offending value
	Value float64
}

func (e *NumericAnomalyError) Error() string {
	return fmt.Sprintf("numeric anomaly in %s at voxel (%d, %d, %d): %v",
		e.Property, e.X, e.Y, e.Z, e.Value)
}
