package capturelead

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"lead-engine/internal/common/config"
	"lead-engine/internal/common/errors"
	"lead-engine/internal/common/logger"
	"lead-engine/internal/lead/qualifier"
	"lead-engine/internal/models"
)

// ==========================
// Mock Service Implementation
// ==========================

type MockService struct {
	mock.Mock
}

func (m *MockService) Capture(ctx context.Context, raw models.RawLead, source models.LeadSource) (string, error) {
	args := m.Called(ctx, raw, source)
	return args.String(0), args.Error(1)
}

func (m *MockService) BulkImport(ctx context.Context, raws []models.RawLead, source models.LeadSource) (*qualifier.BulkImportResult, error) {
	args := m.Called(ctx, raws, source)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*qualifier.BulkImportResult), args.Error(1)
}

// ==========================
// Test Helpers
// ==========================

func createMockJob(key int64, variables map[string]interface{}) entities.Job {
	variablesJSON, _ := json.Marshal(variables)

	return entities.Job{ActivatedJob: &pb.ActivatedJob{
		Key:                key,
		Type:               TaskType,
		ProcessInstanceKey: key * 10,
		BpmnProcessId:      "lead-intake",
		ElementId:          "Activity_CaptureLead",
		CustomHeaders:      "{}",
		Worker:             "test-worker",
		Retries:            3,
		Variables:          string(variablesJSON),
	}}
}

func rawLeadVars(email string) map[string]interface{} {
	return map[string]interface{}{
		"email":        email,
		"first_name":   "Ada",
		"last_name":    "Lovelace",
		"company":      "Acme Corp",
		"job_title":    "CTO",
		"company_size": "LARGE",
	}
}

func newTestHandler(t *testing.T, svc LeadCapturer) *Handler {
	t.Helper()
	h, err := NewHandler(HandlerOptions{
		CustomConfig: DefaultConfig(),
		Service:      svc,
		Logger:       logger.NewTestLogger(t),
	})
	require.NoError(t, err)
	return h
}

// ==========================
// Handler Creation Tests
// ==========================

func TestHandler_NewHandler(t *testing.T) {
	tests := []struct {
		name    string
		opts    HandlerOptions
		wantErr string
	}{
		{
			name: "defaults",
			opts: HandlerOptions{Service: &MockService{}, Logger: logger.NewNoOpLogger()},
		},
		{
			name:    "missing service",
			opts:    HandlerOptions{CustomConfig: DefaultConfig()},
			wantErr: "lead service is required",
		},
		{
			name: "non-positive timeout",
			opts: HandlerOptions{
				CustomConfig: &Config{Enabled: true, MaxJobsActive: 1, DefaultSource: models.SourceEmail},
				Service:      &MockService{},
			},
			wantErr: "timeout must be positive",
		},
		{
			name: "unknown default source",
			opts: HandlerOptions{
				CustomConfig: &Config{Enabled: true, MaxJobsActive: 1, Timeout: time.Second, DefaultSource: "FAX"},
				Service:      &MockService{},
			},
			wantErr: "not a known lead source",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := NewHandler(tt.opts)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, h.IsEnabled())
		})
	}
}

func TestHandler_ConfigFromAppConfig(t *testing.T) {
	appCfg := &config.Config{Workers: map[string]config.WorkerConfig{
		WorkerName: {Enabled: false, MaxJobsActive: 3, Timeout: 5000},
	}}

	h, err := NewHandler(HandlerOptions{AppConfig: appCfg, Service: &MockService{}, Logger: logger.NewNoOpLogger()})
	require.NoError(t, err)

	assert.False(t, h.IsEnabled())
	wc := h.WorkerConfig()
	assert.Equal(t, TaskType, wc.TaskType)
	assert.Equal(t, 3, wc.MaxJobsActive)
	assert.Equal(t, 5*time.Second, wc.Timeout)
	assert.Contains(t, wc.FetchVariables, "leads")
}

// ==========================
// Input Parsing Tests
// ==========================

func TestHandler_ParseInput(t *testing.T) {
	h := newTestHandler(t, &MockService{})

	tests := []struct {
		name      string
		variables map[string]interface{}
		wantCode  errors.ErrorCode
		wantField string
		wantBulk  bool
	}{
		{
			name:      "single lead",
			variables: map[string]interface{}{"lead": rawLeadVars("ada@example.com"), "source": "REFERRAL"},
		},
		{
			name: "batch",
			variables: map[string]interface{}{
				"leads": []interface{}{rawLeadVars("a@example.com"), rawLeadVars("b@example.com")},
			},
			wantBulk: true,
		},
		{
			name:      "neither lead nor leads",
			variables: map[string]interface{}{"source": "EMAIL"},
			wantCode:  errors.ErrCodeMissingField,
			wantField: "lead",
		},
		{
			name: "both lead and leads",
			variables: map[string]interface{}{
				"lead":  rawLeadVars("a@example.com"),
				"leads": []interface{}{rawLeadVars("b@example.com")},
			},
			wantCode:  errors.ErrCodeValidationFailed,
			wantField: "leads",
		},
		{
			name:      "lead is not an object",
			variables: map[string]interface{}{"lead": "ada@example.com"},
			wantCode:  errors.ErrCodeValidationFailed,
			wantField: "lead",
		},
		{
			name:      "source is not a string",
			variables: map[string]interface{}{"lead": rawLeadVars("a@example.com"), "source": 7},
			wantCode:  errors.ErrCodeValidationFailed,
			wantField: "source",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input, err := h.parseInput(createMockJob(1, tt.variables))

			if tt.wantCode != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantCode, errors.CodeOf(err))
				assert.Equal(t, tt.wantField, errors.FieldOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantBulk, input.isBulk())
		})
	}
}

func TestHandler_ParseInput_MapsLeadFields(t *testing.T) {
	h := newTestHandler(t, &MockService{})

	input, err := h.parseInput(createMockJob(1, map[string]interface{}{"lead": rawLeadVars("ada@example.com")}))
	require.NoError(t, err)

	require.NotNil(t, input.Lead)
	assert.Equal(t, "ada@example.com", input.Lead.Email)
	assert.Equal(t, "Lovelace", input.Lead.LastName)
	assert.Equal(t, "CTO", input.Lead.JobTitle)
	assert.Equal(t, "LARGE", input.Lead.CompanySize)
}

// ==========================
// Execution Tests
// ==========================

func TestHandler_Handle_Single(t *testing.T) {
	svc := &MockService{}
	h := newTestHandler(t, svc)
	svc.On("Capture", mock.Anything, mock.MatchedBy(func(raw models.RawLead) bool {
		return raw.Email == "ada@example.com"
	}), models.LeadSource("REFERRAL")).Return("lead-1", nil)

	vars, err := h.Handle(context.Background(), createMockJob(1, map[string]interface{}{
		"lead":   rawLeadVars("ada@example.com"),
		"source": "REFERRAL",
	}))

	require.NoError(t, err)
	assert.Equal(t, "lead-1", vars["leadId"])
	assert.Equal(t, "NEW", vars["leadStatus"])
	svc.AssertExpectations(t)
}

func TestHandler_Handle_DefaultSource(t *testing.T) {
	svc := &MockService{}
	h := newTestHandler(t, svc)
	svc.On("Capture", mock.Anything, mock.Anything, models.SourceWebsiteForm).Return("lead-1", nil)

	_, err := h.Handle(context.Background(), createMockJob(1, map[string]interface{}{"lead": rawLeadVars("ada@example.com")}))

	require.NoError(t, err)
	svc.AssertExpectations(t)
}

func TestHandler_Handle_CaptureErrorPassesThrough(t *testing.T) {
	svc := &MockService{}
	h := newTestHandler(t, svc)
	svc.On("Capture", mock.Anything, mock.Anything, mock.Anything).
		Return("", errors.NewDuplicateLeadError("ada@example.com"))

	vars, err := h.Handle(context.Background(), createMockJob(1, map[string]interface{}{"lead": rawLeadVars("ada@example.com")}))

	assert.Nil(t, vars)
	assert.Equal(t, errors.ErrCodeDuplicateLead, errors.CodeOf(err))
}

func TestHandler_Handle_Bulk(t *testing.T) {
	svc := &MockService{}
	h := newTestHandler(t, svc)
	svc.On("BulkImport", mock.Anything, mock.MatchedBy(func(raws []models.RawLead) bool {
		return len(raws) == 3
	}), models.SourceEvent).Return(&qualifier.BulkImportResult{
		Total:   3,
		LeadIDs: []string{"lead-1", "lead-2"},
		Failures: []qualifier.ImportFailure{{
			Index: 1,
			Email: "",
			Code:  string(errors.ErrCodeMissingField),
			Err:   errors.NewMissingFieldError("email"),
		}},
	}, nil)

	vars, err := h.Handle(context.Background(), createMockJob(1, map[string]interface{}{
		"leads":  []interface{}{rawLeadVars("a@example.com"), map[string]interface{}{}, rawLeadVars("c@example.com")},
		"source": "EVENT",
	}))

	require.NoError(t, err)
	assert.Equal(t, []string{"lead-1", "lead-2"}, vars["leadIds"])
	assert.Equal(t, 3, vars["importTotal"])
	assert.Equal(t, 2, vars["importedCount"])
	failures := vars["importFailures"].([]map[string]interface{})
	require.Len(t, failures, 1)
	assert.Equal(t, 1, failures[0]["index"])
	assert.Equal(t, "MISSING_FIELD", failures[0]["errorCode"])
	svc.AssertExpectations(t)
}

func TestHandler_Handle_BulkCancelled(t *testing.T) {
	svc := &MockService{}
	h := newTestHandler(t, svc)
	svc.On("BulkImport", mock.Anything, mock.Anything, mock.Anything).
		Return(&qualifier.BulkImportResult{Total: 1}, fmt.Errorf("bulk: %w", context.DeadlineExceeded))

	_, err := h.Handle(context.Background(), createMockJob(1, map[string]interface{}{
		"leads": []interface{}{rawLeadVars("a@example.com")},
	}))

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
