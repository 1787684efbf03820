// Package simerr defines the engine's structured runtime error type,
// covering the engine's error kinds: generator faults, feasibility
// lapses, sink faults, and starvation.
package simerr

import (
	"errors"
	"fmt"
)

// RuntimeError represents an error detected during a simulation run.
//
// Runtime errors include:
//   - Generator fault: a derived expression or faker path failed mid-event
//   - Feasibility lapse: an event type cannot currently be produced
//   - Sink fault: a transient or permanent output delivery failure
//   - Starvation: no feasible event for a configured run of ticks
//
// RuntimeError includes structured fields for diagnostics and recovery.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// EventType identifies the affected event type, if any.
	EventType string

	// FieldPath identifies the schema field a generator fault occurred at.
	FieldPath string

	// Details contains additional context.
	Details map[string]string
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeGeneratorFault indicates a generator could not produce a value.
	ErrCodeGeneratorFault RuntimeErrorCode = "GENERATOR_FAULT"

	// ErrCodeFeasibilityLapse indicates an event type is not currently producible.
	ErrCodeFeasibilityLapse RuntimeErrorCode = "FEASIBILITY_LAPSE"

	// ErrCodeSinkFault indicates an output sink failed to deliver a record.
	ErrCodeSinkFault RuntimeErrorCode = "SINK_FAULT"

	// ErrCodeStarvation indicates no feasible event was found for the
	// configured consecutive-tick bound.
	ErrCodeStarvation RuntimeErrorCode = "STARVATION"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.EventType != "" && e.FieldPath != "" {
		return fmt.Sprintf("%s: %s (event_type=%s, field=%s)", e.Code, e.Message, e.EventType, e.FieldPath)
	}
	if e.EventType != "" {
		return fmt.Sprintf("%s: %s (event_type=%s)", e.Code, e.Message, e.EventType)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsGeneratorFault reports whether err is a generator-fault RuntimeError.
// Uses errors.As to handle wrapped errors.
func IsGeneratorFault(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeGeneratorFault
	}
	return false
}

// IsStarvationError reports whether err is a starvation RuntimeError.
func IsStarvationError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeStarvation
	}
	return false
}

// IsSinkFault reports whether err is a sink-fault RuntimeError.
func IsSinkFault(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeSinkFault
	}
	return false
}

// NewGeneratorFault creates a RuntimeError for a failed field generation:
// fatal for the event being built, logged with (event_type, field path,
// cause).
func NewGeneratorFault(eventType, fieldPath string, cause error) *RuntimeError {
	return &RuntimeError{
		Code:      ErrCodeGeneratorFault,
		Message:   fmt.Sprintf("generator fault: %v", cause),
		EventType: eventType,
		FieldPath: fieldPath,
	}
}

// NewStarvationError creates a RuntimeError recording that no feasible
// event was found for consecutiveTicks consecutive ticks.
func NewStarvationError(consecutiveTicks, bound int) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeStarvation,
		Message: fmt.Sprintf("no feasible event for %d consecutive ticks (bound %d)", consecutiveTicks, bound),
		Details: map[string]string{
			"consecutive_ticks": fmt.Sprintf("%d", consecutiveTicks),
			"bound":             fmt.Sprintf("%d", bound),
		},
	}
}

// NewSinkFault creates a RuntimeError for an output-delivery failure.
func NewSinkFault(sinkType string, cause error) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeSinkFault,
		Message: fmt.Sprintf("sink %q delivery failed: %v", sinkType, cause),
		Details: map[string]string{"sink_type": sinkType},
	}
}
