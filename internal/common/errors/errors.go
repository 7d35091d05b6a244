// Package errors provides the structured error taxonomy shared by the lead engine,
// the CRM adapters and the workflow job workers.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

// Lead capture / lifecycle errors
const (
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCodeMissingField     ErrorCode = "MISSING_FIELD"
	ErrCodeDuplicateLead    ErrorCode = "DUPLICATE_LEAD"
	ErrCodeLeadNotFound     ErrorCode = "LEAD_NOT_FOUND"
	ErrCodeConfiguration    ErrorCode = "CONFIGURATION_ERROR"
	ErrCodeStoreFailed      ErrorCode = "LEAD_STORE_FAILED"
)

// CRM adapter errors. These never escape the sync manager as fatal failures.
const (
	ErrCodeCRMAuth        ErrorCode = "CRM_AUTH_ERROR"
	ErrCodeCRMRateLimited ErrorCode = "CRM_RATE_LIMITED"
	ErrCodeCRMNotFound    ErrorCode = "CRM_RECORD_NOT_FOUND"
	ErrCodeCRMTransient   ErrorCode = "CRM_TRANSIENT_NETWORK_ERROR"
	ErrCodeCRMTimeout     ErrorCode = "CRM_TIMEOUT"
	ErrCodeCRMSchema      ErrorCode = "CRM_SCHEMA_ERROR"
)

// Infrastructure / worker errors
const (
	ErrCodeNotificationSendFailed ErrorCode = "NOTIFICATION_SEND_FAILED"
	ErrCodeSchedulingFailed       ErrorCode = "SCHEDULING_FAILED"
	ErrCodeInputParsingFailed     ErrorCode = "INPUT_PARSING_FAILED"
	ErrCodeInternal               ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Cause     error                  `json:"-"`
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.Cause
}

// WithMetadata returns the error with key set in its metadata.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

func newError(code ErrorCode, message, details string, retryable bool, cause error) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		Cause:     cause,
	}
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

// NewMissingFieldError names the first required capture field that is absent.
func NewMissingFieldError(field string) *StandardError {
	return newError(ErrCodeMissingField, "Required field missing", fmt.Sprintf("field: %s", field), false, nil).
		WithMetadata("field", field)
}

// NewValidationError reports a malformed (present but invalid) field.
func NewValidationError(field, details string) *StandardError {
	return newError(ErrCodeValidationFailed, "Lead data validation failed", details, false, nil).
		WithMetadata("field", field)
}

func NewDuplicateLeadError(email string) *StandardError {
	return newError(ErrCodeDuplicateLead, "Lead already exists", fmt.Sprintf("email: %s", email), false, nil).
		WithMetadata("field", "email")
}

func NewLeadNotFoundError(leadID string) *StandardError {
	return newError(ErrCodeLeadNotFound, "Lead not found", fmt.Sprintf("leadId: %s", leadID), false, nil).
		WithMetadata("leadId", leadID)
}

// NewConfigurationError is fatal at startup and never retried.
func NewConfigurationError(details string) *StandardError {
	return newError(ErrCodeConfiguration, "Invalid configuration", details, false, nil)
}

func NewStoreError(operation string, err error) *StandardError {
	return newError(ErrCodeStoreFailed, "Lead store operation failed",
		fmt.Sprintf("operation: %s, error: %v", operation, err), true, err)
}

func NewCRMAuthError(backend string, details string) *StandardError {
	return newError(ErrCodeCRMAuth, fmt.Sprintf("CRM '%s' rejected credentials", backend), details, false, nil).
		WithMetadata("backend", backend)
}

func NewCRMRateLimitedError(backend string, details string) *StandardError {
	return newError(ErrCodeCRMRateLimited, fmt.Sprintf("CRM '%s' rate limit exceeded", backend), details, true, nil).
		WithMetadata("backend", backend)
}

func NewCRMNotFoundError(backend, externalID string) *StandardError {
	return newError(ErrCodeCRMNotFound, fmt.Sprintf("Record not found in CRM '%s'", backend),
		fmt.Sprintf("externalId: %s", externalID), false, nil).
		WithMetadata("backend", backend)
}

func NewCRMTransientError(backend string, err error) *StandardError {
	return newError(ErrCodeCRMTransient, fmt.Sprintf("CRM '%s' network error", backend), errString(err), true, err).
		WithMetadata("backend", backend)
}

func NewCRMTimeoutError(backend string, err error) *StandardError {
	return newError(ErrCodeCRMTimeout, fmt.Sprintf("CRM '%s' timeout", backend), errString(err), true, err).
		WithMetadata("backend", backend)
}

func NewCRMSchemaError(backend string, details string) *StandardError {
	return newError(ErrCodeCRMSchema, fmt.Sprintf("CRM '%s' payload does not match schema", backend), details, false, nil).
		WithMetadata("backend", backend)
}

func NewNotificationSendFailedError(channel string, err error) *StandardError {
	return newError(ErrCodeNotificationSendFailed, "Notification delivery failed",
		fmt.Sprintf("channel: %s, error: %v", channel, err), true, err)
}

func NewSchedulingFailedError(details string, err error) *StandardError {
	return newError(ErrCodeSchedulingFailed, "Nurturing step scheduling failed", details, true, err)
}

func NewInputParsingError(err error) *StandardError {
	return newError(ErrCodeInputParsingFailed, "Failed to parse job variables", errString(err), false, err)
}

func NewInternalError(err error) *StandardError {
	return newError(ErrCodeInternal, "Unexpected error", errString(err), false, err)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// ==========================
// 4. Classification helpers
// ==========================

// AsStandard extracts the first StandardError in err's chain.
func AsStandard(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// CodeOf returns the code of the first StandardError in err's chain, or "".
func CodeOf(err error) ErrorCode {
	if stdErr, ok := AsStandard(err); ok {
		return stdErr.Code
	}
	return ""
}

func HasCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

// IsRetryable reports whether an adapter or worker may attempt the call again.
func IsRetryable(err error) bool {
	if stdErr, ok := AsStandard(err); ok {
		return stdErr.Retryable
	}
	return false
}

// IsValidation covers both the missing-field and malformed-field variants.
func IsValidation(err error) bool {
	code := CodeOf(err)
	return code == ErrCodeValidationFailed || code == ErrCodeMissingField
}

// FieldOf returns the capture field an error refers to, if any.
func FieldOf(err error) string {
	if stdErr, ok := AsStandard(err); ok {
		if field, ok := stdErr.Metadata["field"].(string); ok {
			return field
		}
	}
	return ""
}

// Normalize always yields a StandardError, wrapping foreign errors as internal.
func Normalize(err error) *StandardError {
	if err == nil {
		return nil
	}
	if stdErr, ok := AsStandard(err); ok {
		return stdErr
	}
	return NewInternalError(err)
}

// ==========================
// 5. Error Conversion to BPMN
// ==========================

// GetRetryCount returns the number of job retries the workflow engine should grant.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeStoreFailed,
		ErrCodeCRMTransient,
		ErrCodeNotificationSendFailed,
		ErrCodeSchedulingFailed:
		return 3

	case ErrCodeCRMTimeout,
		ErrCodeCRMRateLimited:
		return 2

	default:
		return 0
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	vars := map[string]interface{}{
		"originalErrorCode": string(stdErr.Code),
		"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
	}
	if field, ok := stdErr.Metadata["field"]; ok {
		vars["errorField"] = field
	}
	if backend, ok := stdErr.Metadata["backend"]; ok {
		vars["errorBackend"] = backend
	}

	return &BPMNError{
		Code:           string(stdErr.Code),
		Message:        stdErr.Message,
		Details:        stdErr.Details,
		Retryable:      stdErr.Retryable,
		Retries:        retries,
		ErrorVariables: vars,
	}
}

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.HasPrefix(codeStr, "CRM_"):
		return "CRM"
	case strings.Contains(codeStr, "VALIDATION") || strings.Contains(codeStr, "MISSING") ||
		strings.Contains(codeStr, "DUPLICATE") || strings.Contains(codeStr, "PARSING"):
		return "VALIDATION"
	case strings.Contains(codeStr, "NOT_FOUND"):
		return "LOOKUP"
	case strings.Contains(codeStr, "STORE"):
		return "DATABASE"
	case strings.Contains(codeStr, "NOTIFICATION") || strings.Contains(codeStr, "SCHEDULING"):
		return "NOTIFICATION"
	case strings.Contains(codeStr, "CONFIGURATION"):
		return "CONFIGURATION"
	default:
		return "OTHER"
	}
}
