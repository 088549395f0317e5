// Package apperr defines the error taxonomy used across the cascade: a small
// set of sentinel kinds that every recoverable error wraps, so call sites can
// branch with errors.Is instead of string matching, mirroring the
// ToolError/NewToolError pattern used for tool-level errors in the pipeline.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is one of the five taxonomy members from the error-handling design.
type Kind string

const (
	Input       Kind = "input"
	Provider    Kind = "provider"
	SubWorkflow Kind = "sub_workflow"
	Persistence Kind = "persistence"
	Fatal       Kind = "fatal"
)

// sentinel errors, one per kind, so errors.Is(err, apperr.ErrProvider) works
// regardless of how the wrapping error was constructed.
var (
	ErrInput       = errors.New(string(Input))
	ErrProvider    = errors.New(string(Provider))
	ErrSubWorkflow = errors.New(string(SubWorkflow))
	ErrPersistence = errors.New(string(Persistence))
	ErrFatal       = errors.New(string(Fatal))
)

func sentinelFor(k Kind) error {
	switch k {
	case Input:
		return ErrInput
	case Provider:
		return ErrProvider
	case SubWorkflow:
		return ErrSubWorkflow
	case Persistence:
		return ErrPersistence
	case Fatal:
		return ErrFatal
	default:
		return ErrFatal
	}
}

// Error wraps an underlying cause with a taxonomy kind and a component name
// for logging (tool, component).
type Error struct {
	Kind      Kind
	Component string
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Component, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Component, e.Kind, e.Cause)
}

func (e *Error) Unwrap() error {
	return sentinelFor(e.Kind)
}

// New constructs a taxonomy error.
func New(kind Kind, component string, cause error) *Error {
	return &Error{Kind: kind, Component: component, Cause: cause}
}

// Is reports whether err carries the given taxonomy kind.
func Is(err error, kind Kind) bool {
	return errors.Is(err, sentinelFor(kind))
}
