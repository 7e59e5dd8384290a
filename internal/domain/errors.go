// Package domain provides the canonical types and error taxonomy for the assistant.
package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind represents the category of a domain error.
type ErrorKind string

const (
	// KindValidation indicates a tool argument or request field failed validation.
	KindValidation ErrorKind = "validation_error"

	// KindInvalidIdentity indicates a provider or tier token that does not
	// resolve to a known value.
	KindInvalidIdentity ErrorKind = "invalid_identity"

	// KindRetrievalUnavailable indicates the knowledge index is missing or
	// inconsistent.
	KindRetrievalUnavailable ErrorKind = "retrieval_unavailable"

	// KindCompletion indicates the chat-completion capability failed.
	KindCompletion ErrorKind = "completion_error"

	// KindEmbedding indicates the embedding capability failed or returned a
	// vector of the wrong shape.
	KindEmbedding ErrorKind = "embedding_error"

	// KindTranslation indicates the question could not be translated into the
	// knowledge-base language.
	KindTranslation ErrorKind = "translation_error"
)

// Error is the canonical error returned by assistant components.
type Error struct {
	// Kind is the category of error
	Kind ErrorKind `json:"type"`

	// Message is the human-readable error message
	Message string `json:"message"`

	// Field names the offending input, when there is one
	Field string `json:"field,omitempty"`

	// Err is the underlying cause
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Field != "" {
		msg = fmt.Sprintf("%s (%s): %s", e.Kind, e.Field, e.Message)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatusCode returns the appropriate HTTP status code for this error.
func (e *Error) HTTPStatusCode() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindInvalidIdentity:
		return http.StatusUnprocessableEntity
	case KindRetrievalUnavailable:
		return http.StatusServiceUnavailable
	case KindCompletion, KindEmbedding, KindTranslation:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// WithField records the offending input name.
func (e *Error) WithField(field string) *Error {
	e.Field = field
	return e
}

// NewError creates a new domain error.
func NewError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// ErrValidation creates a validation error.
func ErrValidation(message string) *Error {
	return NewError(KindValidation, message, nil)
}

// ErrInvalidIdentity creates an invalid identity error.
func ErrInvalidIdentity(message string) *Error {
	return NewError(KindInvalidIdentity, message, nil)
}

// ErrRetrievalUnavailable creates a retrieval unavailable error.
func ErrRetrievalUnavailable(message string, cause error) *Error {
	return NewError(KindRetrievalUnavailable, message, cause)
}

// ErrCompletion wraps a chat-completion failure.
func ErrCompletion(cause error) *Error {
	return NewError(KindCompletion, "completion request failed", cause)
}

// ErrEmbedding wraps an embedding failure.
func ErrEmbedding(message string, cause error) *Error {
	return NewError(KindEmbedding, message, cause)
}

// ErrTranslation wraps a translation failure.
func ErrTranslation(cause error) *Error {
	return NewError(KindTranslation, "translation request failed", cause)
}

// KindOf returns the kind of the first domain error in err's chain, or the
// empty kind if there is none.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// IsKind reports whether err carries a domain error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// AsError extracts the domain error from err's chain.
func AsError(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}
