package qualifylead

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"lead-engine/internal/common/errors"
	"lead-engine/internal/common/logger"
	"lead-engine/internal/lead/qualifier"
	"lead-engine/internal/lead/scoring"
	"lead-engine/internal/lead/store"
	"lead-engine/internal/models"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) Qualify(ctx context.Context, id string) (models.BANTScore, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(models.BANTScore), args.Error(1)
}

func (m *MockService) GetLead(ctx context.Context, id string) (*models.Lead, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Lead), args.Error(1)
}

func createMockJob(key int64, variables map[string]interface{}) entities.Job {
	variablesJSON, _ := json.Marshal(variables)

	return entities.Job{ActivatedJob: &pb.ActivatedJob{
		Key:                key,
		Type:               TaskType,
		ProcessInstanceKey: key * 10,
		BpmnProcessId:      "lead-intake",
		ElementId:          "Activity_QualifyLead",
		CustomHeaders:      "{}",
		Retries:            3,
		Variables:          string(variablesJSON),
	}}
}

func newTestHandler(t *testing.T, svc LeadQualifier) *Handler {
	t.Helper()
	h, err := NewHandler(HandlerOptions{CustomConfig: DefaultConfig(), Service: svc, Logger: logger.NewTestLogger(t)})
	require.NoError(t, err)
	return h
}

func TestHandler_NewHandler_RequiresService(t *testing.T) {
	_, err := NewHandler(HandlerOptions{CustomConfig: DefaultConfig()})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "lead service is required")
}

func TestHandler_ParseInput(t *testing.T) {
	h := newTestHandler(t, &MockService{})

	tests := []struct {
		name      string
		variables map[string]interface{}
		wantCode  errors.ErrorCode
	}{
		{name: "valid", variables: map[string]interface{}{"leadId": "lead-1", "other": true}},
		{name: "missing", variables: map[string]interface{}{}, wantCode: errors.ErrCodeMissingField},
		{name: "empty", variables: map[string]interface{}{"leadId": ""}, wantCode: errors.ErrCodeValidationFailed},
		{name: "wrong type", variables: map[string]interface{}{"leadId": 42}, wantCode: errors.ErrCodeValidationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input, err := h.parseInput(createMockJob(1, tt.variables))
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, errors.CodeOf(err))
				assert.Equal(t, "leadId", errors.FieldOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "lead-1", input.LeadID)
		})
	}
}

func TestHandler_Handle_WithQualifier(t *testing.T) {
	svc, err := qualifier.NewService(store.NewMemory(), scoring.DefaultCriteria(), logger.NewTestLogger(t))
	require.NoError(t, err)

	id, err := svc.Capture(context.Background(), models.RawLead{
		Email:       "grace@example.com",
		FirstName:   "Grace",
		LastName:    "Hopper",
		Company:     "Acme Corp",
		JobTitle:    "CEO",
		CompanySize: "ENTERPRISE",
		Industry:    "Technology",
	}, models.SourceWebsiteForm)
	require.NoError(t, err)

	h := newTestHandler(t, svc)
	vars, err := h.Handle(context.Background(), createMockJob(1, map[string]interface{}{"leadId": id}))
	require.NoError(t, err)

	assert.Equal(t, id, vars["leadId"])
	assert.Equal(t, "QUALIFIED", vars["leadStatus"])
	assert.Equal(t, true, vars["isQualified"])
	assert.GreaterOrEqual(t, vars["bantScore"].(float64), 75.0)
	assert.NotEmpty(t, vars["qualificationReason"])
	breakdown := vars["scoreBreakdown"].(map[string]interface{})
	assert.Len(t, breakdown, 4)
}

func TestHandler_Handle_UnknownLead(t *testing.T) {
	svc := &MockService{}
	svc.On("Qualify", mock.Anything, "ghost").Return(models.BANTScore{}, errors.NewLeadNotFoundError("ghost"))
	h := newTestHandler(t, svc)

	vars, err := h.Handle(context.Background(), createMockJob(1, map[string]interface{}{"leadId": "ghost"}))

	assert.Nil(t, vars)
	assert.Equal(t, errors.ErrCodeLeadNotFound, errors.CodeOf(err))
	svc.AssertNotCalled(t, "GetLead", mock.Anything, mock.Anything)
}

func TestHandler_Handle_StoreFailureIsRetryable(t *testing.T) {
	svc := &MockService{}
	svc.On("Qualify", mock.Anything, "lead-1").Return(models.BANTScore{}, errors.NewStoreError("update", assert.AnError))
	h := newTestHandler(t, svc)

	_, err := h.Handle(context.Background(), createMockJob(1, map[string]interface{}{"leadId": "lead-1"}))

	assert.True(t, errors.IsRetryable(err))
	bpmn := errors.ConvertToBPMNError(errors.Normalize(err))
	assert.Equal(t, 3, bpmn.Retries)
}
