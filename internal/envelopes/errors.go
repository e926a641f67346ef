package envelopes

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("envelope not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrInvalidToken = errors.New("invalid routing token")

	// ErrEnvelopeLocked is returned when the row lock cannot be acquired
	// within the configured wait. Callers may retry with backoff.
	ErrEnvelopeLocked = errors.New("envelope locked")
)

const (
	ErrorCodeValidation      = "VALIDATION_ERROR"
	ErrorCodeNotFound        = "NOT_FOUND"
	ErrorCodeInvalidToken    = "INVALID_TOKEN"
	ErrorCodeLocked          = "ENVELOPE_LOCKED"
	ErrorCodeAlreadyFilled   = "DOCUMENT_ALREADY_FILLED"
	ErrorCodeNotEditable     = "DOCUMENT_NOT_EDITABLE"
	ErrorCodeEditConflict    = "CONCURRENT_EDIT_CONFLICT"
	ErrorCodeSigningFailure  = "SIGNING_FAILURE"
	ErrorCodeStorage         = "STORAGE_ERROR"
	ErrorCodeInternal        = "INTERNAL_ERROR"
)

// AlreadyFilledError is raised when the submitting recipient is already
// completed at lock-acquisition time. Terminal, not retryable.
type AlreadyFilledError struct {
	RecipientName string
}

func (e *AlreadyFilledError) Error() string {
	if e.RecipientName != "" {
		return fmt.Sprintf("document already filled by %s", e.RecipientName)
	}
	return "document already filled"
}

// NotEditableError carries the envelope status blocking the action so the
// caller can explain why it is refused.
type NotEditableError struct {
	Status EnvelopeStatus
}

func (e *NotEditableError) Error() string {
	return fmt.Sprintf("document is %s and can no longer be edited", e.Status)
}

// EditConflictError is raised when a concurrent edit would drop or alter a
// recipient who already completed the envelope.
type EditConflictError struct {
	RecipientEmail string
}

func (e *EditConflictError) Error() string {
	return fmt.Sprintf("recipient %s already completed this document; their entry cannot be changed", e.RecipientEmail)
}

// DeclineRefusedError reports why a decline attempt is not allowed.
type DeclineRefusedError struct {
	Reason string
}

func (e *DeclineRefusedError) Error() string {
	return e.Reason
}
