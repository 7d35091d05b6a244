package errors

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMissingFieldError_NamesField(t *testing.T) {
	err := NewMissingFieldError("company")

	assert.Equal(t, ErrCodeMissingField, err.Code)
	assert.False(t, err.Retryable)
	assert.Equal(t, "company", FieldOf(err))
	assert.True(t, IsValidation(err))
	assert.Contains(t, err.Error(), "company")
}

func TestClassificationHelpers_WrappedErrors(t *testing.T) {
	base := NewCRMRateLimitedError("zoho", "429")
	wrapped := fmt.Errorf("create contact: %w", base)

	assert.Equal(t, ErrCodeCRMRateLimited, CodeOf(wrapped))
	assert.True(t, HasCode(wrapped, ErrCodeCRMRateLimited))
	assert.True(t, IsRetryable(wrapped))
	assert.False(t, IsValidation(wrapped))

	stdErr, ok := AsStandard(wrapped)
	require.True(t, ok)
	assert.Equal(t, "zoho", stdErr.Metadata["backend"])
}

func TestClassificationHelpers_ForeignError(t *testing.T) {
	err := fmt.Errorf("boom")

	assert.Equal(t, ErrorCode(""), CodeOf(err))
	assert.False(t, IsRetryable(err))
	assert.Equal(t, "", FieldOf(err))
	assert.False(t, HasCode(nil, ErrCodeInternal))

	normalized := Normalize(err)
	assert.Equal(t, ErrCodeInternal, normalized.Code)
	assert.ErrorIs(t, normalized, err)
	assert.Nil(t, Normalize(nil))
}

func TestCRMErrors_Retryability(t *testing.T) {
	tests := []struct {
		name      string
		err       *StandardError
		retryable bool
	}{
		{"auth", NewCRMAuthError("records", "401"), false},
		{"rate limited", NewCRMRateLimitedError("records", "429"), true},
		{"not found", NewCRMNotFoundError("records", "rec1"), false},
		{"transient", NewCRMTransientError("records", fmt.Errorf("connection reset")), true},
		{"timeout", NewCRMTimeoutError("records", context.DeadlineExceeded), true},
		{"schema", NewCRMSchemaError("records", "missing id"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, tt.err.Retryable)
			assert.Equal(t, "CRM", GetErrorCategory(tt.err.Code))
			assert.Equal(t, "records", tt.err.Metadata["backend"])
		})
	}
}

func TestConvertToBPMNError(t *testing.T) {
	t.Run("retryable store failure keeps retries", func(t *testing.T) {
		bpmn := ConvertToBPMNError(NewStoreError("insert", fmt.Errorf("conn refused")))

		assert.Equal(t, string(ErrCodeStoreFailed), bpmn.Code)
		assert.Equal(t, 3, bpmn.Retries)
		assert.True(t, bpmn.Retryable)
	})

	t.Run("validation error is thrown without retries", func(t *testing.T) {
		bpmn := ConvertToBPMNError(NewMissingFieldError("email"))

		assert.Equal(t, 0, bpmn.Retries)
		vars := bpmn.ToErrorVariables()
		assert.Equal(t, "email", vars["errorField"])
		assert.Equal(t, string(ErrCodeMissingField), vars["errorCode"])
	})

	t.Run("non retryable flag overrides code table", func(t *testing.T) {
		stdErr := NewCRMTimeoutError("zoho", nil)
		stdErr.Retryable = false

		assert.Equal(t, 0, ConvertToBPMNError(stdErr).Retries)
	})
}

func TestGetErrorCategory(t *testing.T) {
	tests := map[ErrorCode]string{
		ErrCodeMissingField:           "VALIDATION",
		ErrCodeDuplicateLead:          "VALIDATION",
		ErrCodeLeadNotFound:           "LOOKUP",
		ErrCodeStoreFailed:            "DATABASE",
		ErrCodeNotificationSendFailed: "NOTIFICATION",
		ErrCodeConfiguration:          "CONFIGURATION",
		ErrCodeInternal:               "OTHER",
	}
	for code, want := range tests {
		assert.Equal(t, want, GetErrorCategory(code), string(code))
	}
}
