package proofs

import (
	stdErrors "errors"
	"strings"

	xerrors "ProofMesh/internal/errors"
)

// Short names for the proof error codes in the shared catalog.
const (
	CodeValidationFailed = xerrors.CodeProofValidationFailed
	CodeGenerationFailed = xerrors.CodeProofGenerationFailed
	CodeAnchorFailed     = xerrors.CodeProofAnchorFailed
)

// ValidationMessage is the message carried by a ValidationError for blank
// required fields.
const ValidationMessage = "Content Hash and Generator information are required."

// EncodingMessage is the message carried by a ValidationError for fields that
// are not valid UTF-8.
const EncodingMessage = "Provenance fields must be valid UTF-8 text."

// ValidationError reports input that cannot be canonicalized: a blank
// required field or a field that is not valid UTF-8.
type ValidationError struct {
	// Fields lists the offending fields in input order.
	Fields []string
	// Message overrides ValidationMessage when set.
	Message string
}

func newValidationError(fields ...string) *ValidationError {
	return &ValidationError{Fields: fields}
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return ValidationMessage
}

// Unwrap exposes the coded error so callers can use xerrors.CodeOf.
func (e *ValidationError) Unwrap() error {
	return xerrors.New(CodeValidationFailed, e.Error(),
		xerrors.WithMetadata("fields", strings.Join(e.Fields, ",")))
}

// IsValidationError reports whether err is or wraps a ValidationError.
func IsValidationError(err error) bool {
	var target *ValidationError
	return stdErrors.As(err, &target)
}
