package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode is a typed string for categorizing ingestion errors.
type ErrorCode string

// Complete error code constants.
// All stages MUST use these constants instead of hardcoded strings.
const (
	// Input: the notification or object is unusable as delivered.
	ErrCodeInputMissingNotification ErrorCode = "input_missing_notification"
	ErrCodeInputMissingTypeTag      ErrorCode = "input_missing_type_tag"
	ErrCodeInputUnsupportedType     ErrorCode = "input_unsupported_type"
	ErrCodeInputEmptyContent        ErrorCode = "input_empty_content"
	ErrCodeInputObjectTooLarge      ErrorCode = "input_object_too_large"
	ErrCodeInputForeignBucket       ErrorCode = "input_foreign_bucket"

	// Parse: the payload could not be turned into a usable record.
	ErrCodeParseMalformedMarkup ErrorCode = "parse_malformed_markup"
	ErrCodeParseMalformedText   ErrorCode = "parse_malformed_text"
	ErrCodeParseMissingField    ErrorCode = "parse_missing_field"
	ErrCodeParseInvalidNumber   ErrorCode = "parse_invalid_number"
	ErrCodeParseInvalidRecord   ErrorCode = "parse_invalid_record"
	ErrCodeParseUnknownEncoding ErrorCode = "parse_unknown_content_encoding"

	// Configuration
	ErrCodeConfigMissingSetting ErrorCode = "config_missing_setting"

	// Upstream (transient I/O)
	ErrCodeUpstreamObjectStore ErrorCode = "upstream_object_store_unavailable"
	ErrCodeUpstreamDatabase    ErrorCode = "upstream_database_unavailable"

	// Constraint
	ErrCodeConflictDuplicateReport ErrorCode = "conflict_duplicate_report"

	// Internal
	ErrCodeInternalDB         ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected ErrorCode = "internal_unexpected_error"
)

// ErrorCategory groups error codes into the failure classes used for logging,
// dead-lettering and metrics.
type ErrorCategory string

const (
	CategoryInput      ErrorCategory = "input"
	CategoryParse      ErrorCategory = "parse"
	CategoryConfig     ErrorCategory = "config"
	CategoryTransient  ErrorCategory = "transient"
	CategoryConstraint ErrorCategory = "constraint"
	CategoryInternal   ErrorCategory = "internal"
)

// Category maps an ErrorCode to its failure class by prefix.
// Unrecognized codes are internal.
func (c ErrorCode) Category() ErrorCategory {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "input_"):
		return CategoryInput
	case strings.HasPrefix(s, "parse_"):
		return CategoryParse
	case strings.HasPrefix(s, "config_"):
		return CategoryConfig
	case strings.HasPrefix(s, "upstream_"):
		return CategoryTransient
	case strings.HasPrefix(s, "conflict_"):
		return CategoryConstraint
	default:
		return CategoryInternal
	}
}

// Retryable reports whether replaying the same object could succeed without
// any change to the object itself. Nothing retries internally; the flag is
// carried on dead-letter messages for whoever redrives them.
func (c ErrorCode) Retryable() bool {
	switch c.Category() {
	case CategoryTransient, CategoryConstraint:
		return true
	default:
		return c == ErrCodeInternalDB
	}
}

// AppError is the standard error type used throughout the ingestion pipeline.
// Stage failures are expressed as AppError so the orchestrator can classify
// them without string matching.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetails returns a copy of the error with the provided details merged in.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Details: merged,
	}
}

// NewAppError creates a new AppError with the given code, message, and optional
// underlying error.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewAppErrorWithDetails creates a new AppError with structured details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: details,
	}
}

// CodeOf extracts the ErrorCode from anywhere in err's chain.
// Errors that are not AppErrors report ErrCodeInternalUnexpected.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternalUnexpected
}
