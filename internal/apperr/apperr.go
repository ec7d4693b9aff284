// Package apperr defines the error taxonomy shared by all services.
// Every rejection carries a stable machine-readable code alongside the
// human message, so API consumers can branch without string matching.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for propagation and HTTP mapping.
type Kind int

const (
	// Validation covers malformed input caught before any side effect.
	Validation Kind = iota
	// Conflict covers named business rejections (overlap, already active).
	Conflict
	// Dependency covers failures of the external recognition service;
	// retryable by the caller, never auto-retried here.
	Dependency
	// Consistency covers contract violations that must abort without
	// partial writes (e.g. mismatched embedding dimensionality).
	Consistency
	// NotFound covers missing referenced entities.
	NotFound
)

// Stable codes surfaced to callers.
const (
	CodeInvalidInterval   = "InvalidInterval"
	CodeSelfOverlap       = "SelfOverlap"
	CodeScheduleConflict  = "ScheduleConflict"
	CodeAlreadyActive     = "AlreadyActive"
	CodeNotActive         = "NotActive"
	CodeExtensionLimit    = "ExtensionLimit"
	CodeInvalidToken      = "InvalidToken"
	CodeExpiredToken      = "ExpiredToken"
	CodeInvalidImage      = "InvalidImage"
	CodeStudentNotFound   = "StudentNotFound"
	CodeFaceNotRegistered = "FaceNotRegistered"
	CodeNoFaceDetected    = "NoFaceDetected"
	CodeMultipleFaces     = "MultipleFacesDetected"
	CodeLowQualityImage   = "LowQualityImage"
	CodeFaceMismatch      = "FaceMismatch"
	CodeServiceError      = "VerificationServiceError"
	CodeAlreadyMarked     = "AlreadyMarked"
	CodeDimensionMismatch = "EmbeddingDimensionMismatch"
	CodeNotPermitted      = "NotPermitted"
	CodeNotFound          = "NotFound"
)

// Error is the taxonomy error. Use errors.As to recover it from a chain.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

// New builds an Error without a cause.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Newf builds an Error with a formatted message.
func Newf(kind Kind, code, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error keeping the underlying cause for logs.
func Wrap(kind Kind, code, message string, err error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Code + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// CodeOf returns the stable code of err, or "" when err is not an *Error.
func CodeOf(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

// KindOf returns the Kind of err; unknown errors classify as Dependency
// so they surface as retryable system failures rather than user faults.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return Dependency
}

// IsCode reports whether err carries the given stable code.
func IsCode(err error, code string) bool { return CodeOf(err) == code }
