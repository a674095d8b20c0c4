package domain

import (
	"context"
	"errors"
)

// Identity and configuration errors fail fast and never mutate state.
var (
	ErrUnknownProvider      = errors.New("unknown provider")
	ErrUnknownModel         = errors.New("unknown model")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrSessionNotFound      = errors.New("session not found")
	ErrNoRecentSession      = errors.New("no recent session")
	ErrUnknownTool          = errors.New("unknown tool")
	ErrInvalidToolArguments = errors.New("invalid tool arguments")
)

// Runtime errors.
var (
	// ErrProviderNotReady is advisory: switching to a provider that is not connected is allowed.
	ErrProviderNotReady = errors.New("provider not ready")

	// ErrProviderUnavailable is surfaced once transport retries are exhausted or the breaker is open.
	ErrProviderUnavailable = errors.New("provider unavailable")

	ErrToolExecutionFailed = errors.New("tool execution failed")
	ErrTimeout             = errors.New("timeout")
	ErrNotFound            = errors.New("not found")
	ErrMissingCredential   = errors.New("provider credential missing")
)

// FailureKind tells a caller what to do about a failed operation.
type FailureKind string

// Failure kinds.
const (
	FailureNeedsSetup FailureKind = "needs-setup"
	FailureTransient  FailureKind = "transient"
	FailureNotFound   FailureKind = "not-found"
	FailureBug        FailureKind = "bug"
)

// Failure is a structured, user-actionable description of a failed request.
type Failure struct {
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
}

// Classify maps an error onto a FailureKind.
func Classify(err error) FailureKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMissingCredential),
		errors.Is(err, ErrUnknownProvider),
		errors.Is(err, ErrUnknownModel):
		return FailureNeedsSetup
	case errors.Is(err, ErrConversationNotFound),
		errors.Is(err, ErrSessionNotFound),
		errors.Is(err, ErrNoRecentSession),
		errors.Is(err, ErrNotFound):
		return FailureNotFound
	case errors.Is(err, ErrProviderUnavailable),
		errors.Is(err, ErrTimeout),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return FailureTransient
	default:
		return FailureBug
	}
}
