package models

import (
	"errors"
	"fmt"
)

var (
	// ErrUpstream indicates the search API rejected a request or reported an error
	ErrUpstream = errors.New("upstream error")

	// ErrPrecondition indicates a credential-gated operation was called without a credential
	ErrPrecondition = errors.New("precondition failed")
)

// UpstreamError carries the status and message of a failed upstream call.
// StatusCode is 0 for GraphQL error arrays returned with a 200 response.
type UpstreamError struct {
	Transport  string
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s API error: %s", e.Transport, e.Message)
	}
	return fmt.Sprintf("%s API returned status %d: %s", e.Transport, e.StatusCode, e.Message)
}

func (e *UpstreamError) Unwrap() error {
	return ErrUpstream
}

// PreconditionError is returned before any network call when a requirement is missing
type PreconditionError struct {
	Operation   string
	Requirement string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s requires %s", e.Operation, e.Requirement)
}

func (e *PreconditionError) Unwrap() error {
	return ErrPrecondition
}

// NewCredentialRequired builds the PreconditionError for a missing bearer token
func NewCredentialRequired(operation string) error {
	return &PreconditionError{Operation: operation, Requirement: "a GitHub credential"}
}
