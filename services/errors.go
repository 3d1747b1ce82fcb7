package services

import (
	"errors"
	"fmt"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeNotFound          ErrorType = "not_found"
	ErrorTypeValidation        ErrorType = "validation"
	ErrorTypeUnauthorized      ErrorType = "unauthorized"
	ErrorTypeMalformedBatchRow ErrorType = "malformed_batch_row"
	ErrorTypeProviderTransport ErrorType = "provider_transport"
	ErrorTypeLookupTransport   ErrorType = "lookup_transport"
	ErrorTypeSchemaParse       ErrorType = "schema_parse"
	ErrorTypeUnavailable       ErrorType = "unavailable"
	ErrorTypeInternal          ErrorType = "internal"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// Domain error variables

var (
	ErrPredictionNotFound = NewDomainError(ErrorTypeNotFound, "prediction not found", nil)

	ErrInvalidInput   = NewDomainError(ErrorTypeValidation, "invalid input", nil)
	ErrInvalidFile    = NewDomainError(ErrorTypeValidation, "invalid file type", nil)
	ErrMissingFile    = NewDomainError(ErrorTypeValidation, "no file part", nil)
	ErrMalformedBatch = NewDomainError(ErrorTypeMalformedBatchRow, "malformed batch row", nil)

	ErrInvalidToken = NewDomainError(ErrorTypeUnauthorized, "invalid authentication token", nil)

	ErrProviderTransport = NewDomainError(ErrorTypeProviderTransport, "classification provider failed", nil)
	ErrLookupTransport   = NewDomainError(ErrorTypeLookupTransport, "lookup service request failed", nil)
	ErrSchemaParse       = NewDomainError(ErrorTypeSchemaParse, "provider reply does not match the prediction schema", nil)

	ErrHistoryDisabled = NewDomainError(ErrorTypeUnavailable, "prediction history is not configured", nil)
)

// NewMalformedBatchRowError reports a batch row that does not satisfy the input contract.
// line is the 1-based line number in the uploaded file.
func NewMalformedBatchRowError(line, columns int) *DomainError {
	return NewDomainError(
		ErrorTypeMalformedBatchRow,
		fmt.Sprintf("row on line %d has %d column(s), expected product_name and description", line, columns),
		nil,
	).WithDetail("line", line).WithDetail("columns", columns)
}

// Error type checking helper functions

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	return hasType(err, ErrorTypeNotFound)
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return hasType(err, ErrorTypeValidation)
}

// IsUnauthorizedError checks if an error is an unauthorized error
func IsUnauthorizedError(err error) bool {
	return hasType(err, ErrorTypeUnauthorized)
}

// IsMalformedBatchRowError checks if an error reports a malformed batch row
func IsMalformedBatchRowError(err error) bool {
	return hasType(err, ErrorTypeMalformedBatchRow)
}

// IsProviderTransportError checks if an error is a primary provider failure
func IsProviderTransportError(err error) bool {
	return hasType(err, ErrorTypeProviderTransport)
}

// IsLookupTransportError checks if an error is a lookup service failure
func IsLookupTransportError(err error) bool {
	return hasType(err, ErrorTypeLookupTransport)
}

// IsSchemaParseError checks if an error is a reply schema mismatch
func IsSchemaParseError(err error) bool {
	return hasType(err, ErrorTypeSchemaParse)
}

// IsUnavailableError checks if an error reports a disabled feature
func IsUnavailableError(err error) bool {
	return hasType(err, ErrorTypeUnavailable)
}

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool {
	return hasType(err, ErrorTypeInternal)
}

func hasType(err error, errType ErrorType) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == errType
	}
	return false
}

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// WrapError wraps an error with additional context
func WrapError(errType ErrorType, message string, err error) error {
	return NewDomainError(errType, message, err)
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, message, err)
}

// WrapValidation wraps an error as a validation error
func WrapValidation(message string, err error) error {
	return NewDomainError(ErrorTypeValidation, message, err)
}
