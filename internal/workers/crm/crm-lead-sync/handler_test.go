package crmleadsync

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"lead-engine/internal/common/errors"
	"lead-engine/internal/common/logger"
	"lead-engine/internal/crm"
	crmsync "lead-engine/internal/crm/sync"
	"lead-engine/internal/lead/qualifier"
	"lead-engine/internal/lead/scoring"
	"lead-engine/internal/lead/store"
	"lead-engine/internal/models"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) Sync(ctx context.Context, id string) (map[string]models.CRMSyncResult, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]models.CRMSyncResult), args.Error(1)
}

// stubAdapter is an in-memory CRM backend.
type stubAdapter struct {
	name string
	err  error

	mu      sync.Mutex
	created int
}

func (a *stubAdapter) Name() string { return a.name }

func (a *stubAdapter) CreateRecord(ctx context.Context, r crm.Record) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.created++
	return fmt.Sprintf("%s-%d", a.name, a.created), nil
}

func (a *stubAdapter) UpdateRecord(ctx context.Context, id string, u crm.Fields) (bool, error) {
	return a.err == nil, a.err
}

func (a *stubAdapter) GetRecord(ctx context.Context, id string) (*crm.Record, error) {
	return nil, errors.NewCRMNotFoundError(a.name, id)
}

func (a *stubAdapter) createCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.created
}

func createMockJob(key int64, variables map[string]interface{}) entities.Job {
	variablesJSON, _ := json.Marshal(variables)

	return entities.Job{ActivatedJob: &pb.ActivatedJob{
		Key:                key,
		Type:               TaskType,
		ProcessInstanceKey: key * 10,
		BpmnProcessId:      "lead-intake",
		ElementId:          "Activity_SyncLead",
		CustomHeaders:      "{}",
		Retries:            3,
		Variables:          string(variablesJSON),
	}}
}

func newTestHandler(t *testing.T, svc LeadSyncer, requireAll bool) *Handler {
	t.Helper()
	cfg := DefaultConfig()
	cfg.RequireAll = requireAll
	h, err := NewHandler(HandlerOptions{CustomConfig: cfg, Service: svc, Logger: logger.NewTestLogger(t)})
	require.NoError(t, err)
	return h
}

func TestHandler_Handle_WithSyncManager(t *testing.T) {
	log := logger.NewTestLogger(t)
	zoho := &stubAdapter{name: "zoho"}
	docstore := &stubAdapter{name: "docstore"}
	records := &stubAdapter{name: "records", err: errors.NewCRMAuthError("records", "invalid api key")}

	manager, err := crmsync.NewManager([]crm.Adapter{zoho, docstore, records}, time.Second, log)
	require.NoError(t, err)
	svc, err := qualifier.NewService(store.NewMemory(), scoring.DefaultCriteria(), log, qualifier.WithSyncer(manager))
	require.NoError(t, err)

	id, err := svc.Capture(context.Background(), models.RawLead{
		Email:     "ada@example.com",
		FirstName: "Ada",
		LastName:  "Lovelace",
		Company:   "Acme Corp",
		JobTitle:  "CTO",
	}, models.SourceReferral)
	require.NoError(t, err)

	h := newTestHandler(t, svc, false)
	job := createMockJob(1, map[string]interface{}{"leadId": id})

	vars, err := h.Handle(context.Background(), job)
	require.NoError(t, err)

	assert.Equal(t, false, vars["crmSynced"])
	assert.Equal(t, []string{"records"}, vars["crmFailedBackends"])
	assert.Equal(t, map[string]interface{}{"zoho": "zoho-1", "docstore": "docstore-1"}, vars["crmExternalIds"])
	results := vars["crmSyncResults"].(map[string]interface{})
	recordsResult := results["records"].(map[string]interface{})
	assert.Equal(t, string(errors.ErrCodeCRMAuth), recordsResult["errorCode"])

	// A second run only retries the backend that never received the lead.
	_, err = h.Handle(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, 1, zoho.createCount())
	assert.Equal(t, 1, docstore.createCount())

	lead, err := svc.GetLead(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"zoho": "zoho-1", "docstore": "docstore-1"}, lead.ExternalIDs)
}

func TestHandler_Handle_RequireAll(t *testing.T) {
	tests := []struct {
		name      string
		result    models.CRMSyncResult
		wantCode  errors.ErrorCode
		retryable bool
	}{
		{
			name: "standard error keeps its code",
			result: models.CRMSyncResult{
				Backend:   "records",
				ErrorCode: string(errors.ErrCodeCRMRateLimited),
				Err:       errors.NewCRMRateLimitedError("records", "429"),
			},
			wantCode:  errors.ErrCodeCRMRateLimited,
			retryable: true,
		},
		{
			name: "plain error is treated as transient",
			result: models.CRMSyncResult{
				Backend:   "records",
				ErrorCode: string(errors.ErrCodeInternal),
				Err:       fmt.Errorf("boom"),
			},
			wantCode:  errors.ErrCodeCRMTransient,
			retryable: true,
		},
		{
			name: "result without error",
			result: models.CRMSyncResult{
				Backend:      "records",
				ErrorCode:    string(errors.ErrCodeCRMSchema),
				ErrorMessage: "no id returned",
			},
			wantCode:  errors.ErrCodeCRMTransient,
			retryable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockService{}
			svc.On("Sync", mock.Anything, "lead-1").Return(map[string]models.CRMSyncResult{
				"zoho":    {Backend: "zoho", Success: true, ExternalID: "z-1"},
				"records": tt.result,
			}, nil)
			h := newTestHandler(t, svc, true)

			vars, err := h.Handle(context.Background(), createMockJob(1, map[string]interface{}{"leadId": "lead-1"}))

			assert.Nil(t, vars)
			assert.Equal(t, tt.wantCode, errors.CodeOf(err))
			assert.Equal(t, tt.retryable, errors.IsRetryable(err))
		})
	}
}

func TestHandler_Handle_AllSucceeded(t *testing.T) {
	svc := &MockService{}
	svc.On("Sync", mock.Anything, "lead-1").Return(map[string]models.CRMSyncResult{
		"zoho": {Backend: "zoho", Success: true, ExternalID: "z-1"},
	}, nil)
	h := newTestHandler(t, svc, true)

	vars, err := h.Handle(context.Background(), createMockJob(1, map[string]interface{}{"leadId": "lead-1"}))

	require.NoError(t, err)
	assert.Equal(t, true, vars["crmSynced"])
	assert.Empty(t, vars["crmFailedBackends"])
}

func TestHandler_Handle_UnknownLead(t *testing.T) {
	svc := &MockService{}
	svc.On("Sync", mock.Anything, "ghost").Return(nil, errors.NewLeadNotFoundError("ghost"))
	h := newTestHandler(t, svc, false)

	_, err := h.Handle(context.Background(), createMockJob(1, map[string]interface{}{"leadId": "ghost"}))

	assert.Equal(t, errors.ErrCodeLeadNotFound, errors.CodeOf(err))
}

func TestHandler_Handle_MissingLeadID(t *testing.T) {
	h := newTestHandler(t, &MockService{}, false)

	_, err := h.Handle(context.Background(), createMockJob(1, map[string]interface{}{}))

	assert.Equal(t, errors.ErrCodeMissingField, errors.CodeOf(err))
	assert.Equal(t, "leadId", errors.FieldOf(err))
}
