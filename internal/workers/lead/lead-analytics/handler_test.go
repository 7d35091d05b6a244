package leadanalytics

import (
	"context"
	"encoding/json"
	"testing"
	"time"

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

func (m *MockService) GetAnalytics(ctx context.Context, windowDays int) (*qualifier.Analytics, error) {
	args := m.Called(ctx, windowDays)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*qualifier.Analytics), args.Error(1)
}

func createMockJob(key int64, variables map[string]interface{}) entities.Job {
	variablesJSON, _ := json.Marshal(variables)

	return entities.Job{ActivatedJob: &pb.ActivatedJob{
		Key:                key,
		Type:               TaskType,
		ProcessInstanceKey: key * 10,
		BpmnProcessId:      "lead-reporting",
		ElementId:          "Activity_LeadAnalytics",
		CustomHeaders:      "{}",
		Retries:            1,
		Variables:          string(variablesJSON),
	}}
}

func newTestHandler(t *testing.T, svc AnalyticsProvider) *Handler {
	t.Helper()
	h, err := NewHandler(HandlerOptions{CustomConfig: DefaultConfig(), Service: svc, Logger: logger.NewTestLogger(t)})
	require.NoError(t, err)
	return h
}

func TestHandler_ParseInput(t *testing.T) {
	h := newTestHandler(t, &MockService{})

	tests := []struct {
		name      string
		variables map[string]interface{}
		wantDays  int
		wantCode  errors.ErrorCode
	}{
		{name: "explicit window", variables: map[string]interface{}{"windowDays": 7}, wantDays: 7},
		{name: "default window", variables: map[string]interface{}{}, wantDays: 30},
		{name: "zero", variables: map[string]interface{}{"windowDays": 0}, wantCode: errors.ErrCodeValidationFailed},
		{name: "fractional", variables: map[string]interface{}{"windowDays": 2.5}, wantCode: errors.ErrCodeValidationFailed},
		{name: "string", variables: map[string]interface{}{"windowDays": "7"}, wantCode: errors.ErrCodeValidationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input, err := h.parseInput(createMockJob(1, tt.variables))
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, errors.CodeOf(err))
				assert.Equal(t, "windowDays", errors.FieldOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantDays, input.WindowDays)
		})
	}
}

func TestHandler_Handle_WithQualifier(t *testing.T) {
	now := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	svc, err := qualifier.NewService(store.NewMemory(), scoring.DefaultCriteria(), logger.NewTestLogger(t),
		qualifier.WithClock(func() time.Time { return now }),
	)
	require.NoError(t, err)

	for _, raw := range []models.RawLead{
		{Email: "grace@example.com", FirstName: "Grace", LastName: "Hopper", Company: "Acme Corp", JobTitle: "CEO", CompanySize: "ENTERPRISE", Industry: "Technology"},
		{Email: "bob@example.com", FirstName: "Bob", LastName: "Stone", Company: "Farmhouse", JobTitle: "Coordinator", CompanySize: "STARTUP", Industry: "Agriculture"},
	} {
		id, err := svc.Capture(context.Background(), raw, models.SourceEvent)
		require.NoError(t, err)
		_, err = svc.Qualify(context.Background(), id)
		require.NoError(t, err)
	}

	h := newTestHandler(t, svc)
	vars, err := h.Handle(context.Background(), createMockJob(1, map[string]interface{}{"windowDays": 14}))
	require.NoError(t, err)

	a := vars["analytics"].(map[string]interface{})
	assert.Equal(t, 14, a["windowDays"])
	assert.Equal(t, 2, a["totalLeads"])
	assert.Equal(t, 1, a["qualifiedLeads"])
	assert.Equal(t, 50.0, a["qualificationRate"])
	assert.Equal(t, 0.5, a["timeSavedHours"])
	assert.Equal(t, map[string]interface{}{"EVENT": 2}, a["bySource"])
	assert.Equal(t, now.Format(time.RFC3339), a["to"])
}

func TestHandler_Handle_ServiceError(t *testing.T) {
	svc := &MockService{}
	svc.On("GetAnalytics", mock.Anything, 30).Return(nil, errors.NewStoreError("list", assert.AnError))
	h := newTestHandler(t, svc)

	vars, err := h.Handle(context.Background(), createMockJob(1, nil))

	assert.Nil(t, vars)
	assert.Equal(t, errors.ErrCodeStoreFailed, errors.CodeOf(err))
	svc.AssertExpectations(t)
}

func TestHandler_NewHandler_InvalidConfig(t *testing.T) {
	_, err := NewHandler(HandlerOptions{
		CustomConfig: &Config{Enabled: true, MaxJobsActive: 1, Timeout: time.Second},
		Service:      &MockService{},
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "default_window_days")
}
