// SPDX-License-Identifier: AGPL-3.0-only
package errors

import (
	stderrors "errors"
	"fmt"
)

// NotFound creates a formatted "not found" error
func NotFound(resource, id string) error {
	return fmt.Errorf("resource not found: %s with ID %s", resource, id)
}

// AlreadyExists creates a formatted "already exists" error
func AlreadyExists(resource, id string) error {
	return fmt.Errorf("resource already exists: %s with ID %s", resource, id)
}

// InvalidInput creates a formatted "invalid input" error
func InvalidInput(reason string) error {
	return fmt.Errorf("invalid input: %s", reason)
}

// Internal creates a formatted "internal error" error
func Internal(err error) error {
	return fmt.Errorf("internal error: %v", err)
}

// ErrMaxIterations is returned when a tool-calling loop keeps requesting
// tools past its iteration bound.
var ErrMaxIterations = stderrors.New("tool loop exceeded maximum iterations")

// ErrNoServerState is returned when a request continues a stored response
// on a provider that keeps no conversation state.
var ErrNoServerState = stderrors.New("previous response ids require the responses API")

// UnknownToolError reports a tool call for a name that was never registered.
// It signals a mismatch between the advertised schemas and the registry, not
// a recoverable runtime condition.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool: %s", e.Name)
}

// ProviderError wraps a transport or provider failure from a model call.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s provider: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// RefusalError is returned when the model declines to produce structured
// output.
type RefusalError struct {
	Refusal string
}

func (e *RefusalError) Error() string {
	return fmt.Sprintf("model refused: %s", e.Refusal)
}

// Is, As and New re-export the standard helpers so callers importing this
// package under its plain name keep access to them.
func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target interface{}) bool { return stderrors.As(err, target) }

func New(text string) error { return stderrors.New(text) }
