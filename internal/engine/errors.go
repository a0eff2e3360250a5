package engine

import (
	"fmt"
	"strconv"
)

// ValidationError reports malformed or missing input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NotFoundError reports a referenced entity that does not exist.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func notFound(entity string, id int64) NotFoundError {
	return NotFoundError{Entity: entity, ID: formatID(id)}
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// ConflictError reports an operation that is illegal in the current state.
type ConflictError struct {
	Entity  string
	ID      int64
	Field   string
	Current string
	Reason  string
}

func (e ConflictError) Error() string {
	msg := fmt.Sprintf("%s %d: %s already in state %s", e.Entity, e.ID, e.Field, e.Current)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// PreconditionError reports a prior stage that has not been completed.
type PreconditionError struct {
	Stage   string
	Current string
	Reason  string
}

func (e PreconditionError) Error() string {
	return fmt.Sprintf("%s (%s is %s)", e.Reason, e.Stage, e.Current)
}

// OutOfWindowError reports an evidence upload outside the allowed dates.
type OutOfWindowError struct {
	Today string
	From  string
	To    string
}

func (e OutOfWindowError) Error() string {
	return fmt.Sprintf("evidence may only be uploaded between %s and %s (today is %s)", e.From, e.To, e.Today)
}

// ExternalServiceError wraps a failure of the directory or the renderer.
type ExternalServiceError struct {
	Service string
	Err     error
}

func (e ExternalServiceError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Service, e.Err)
}

func (e ExternalServiceError) Unwrap() error { return e.Err }
