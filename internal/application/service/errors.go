package service

import (
	"errors"
	"sort"
	"strings"
)

var (
	// ErrValidation marks input rejected before any state change
	ErrValidation = errors.New("validation failed")

	// ErrDuplicate is returned when the approval id already exists
	ErrDuplicate = errors.New("approval already exists")

	// ErrNotFound is returned for an unknown approval id
	ErrNotFound = errors.New("approval not found")

	// ErrNotPending is returned when a caller-initiated transition targets a resolved approval
	ErrNotPending = errors.New("approval is not pending")

	// ErrNoDeliverableApprovers is returned when no approver has an active identity mapping
	ErrNoDeliverableApprovers = errors.New("no approver has a channel identity")
)

// ValidationError lists the fields that failed validation
type ValidationError struct {
	Fields map[string]string
}

func newValidationError() *ValidationError {
	return &ValidationError{Fields: make(map[string]string)}
}

func (e *ValidationError) add(field, message string) {
	if _, exists := e.Fields[field]; !exists {
		e.Fields[field] = message
	}
}

func (e *ValidationError) empty() bool {
	return len(e.Fields) == 0
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}
