package crmleadsync

import (
	"context"
	"fmt"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"

	"lead-engine/internal/common/camunda"
	"lead-engine/internal/common/config"
	"lead-engine/internal/common/errors"
	"lead-engine/internal/common/logger"
	"lead-engine/internal/common/validation"
	"lead-engine/internal/models"
)

const (
	TaskType   = "crm.lead.sync"
	WorkerName = "crm-lead-sync"
)

type LeadSyncer interface {
	Sync(ctx context.Context, id string) (map[string]models.CRMSyncResult, error)
}

type Handler struct {
	config  *Config
	service LeadSyncer
	logger  logger.Logger
}

type HandlerOptions struct {
	AppConfig    *config.Config
	CustomConfig *Config
	Service      LeadSyncer
	Logger       logger.Logger
}

func NewHandler(opts HandlerOptions) (*Handler, error) {
	workerConfig := createConfigFromAppConfig(opts.AppConfig, opts.CustomConfig)
	if err := workerConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration for %s: %w", WorkerName, err)
	}
	if opts.Service == nil {
		return nil, fmt.Errorf("%s: lead service is required", WorkerName)
	}

	loggerInstance := opts.Logger
	if loggerInstance == nil {
		loggerInstance = logger.NewStructured("info", "json")
	}

	return &Handler{
		config:  workerConfig,
		service: opts.Service,
		logger:  loggerInstance.WithFields(map[string]interface{}{"worker": TaskType}),
	}, nil
}

func (h *Handler) Handle(ctx context.Context, job entities.Job) (map[string]interface{}, error) {
	input, err := h.parseInput(job)
	if err != nil {
		return nil, err
	}

	output, err := h.Execute(ctx, input)
	if err != nil {
		return nil, err
	}
	return output.toVariables(), nil
}

func (h *Handler) parseInput(job entities.Job) (*Input, error) {
	variables, err := job.GetVariablesAsMap()
	if err != nil {
		return nil, errors.NewInputParsingError(err)
	}
	if err := validation.ValidateInput(variables, GetInputSchema()).Err(); err != nil {
		return nil, err
	}
	return &Input{LeadID: variables["leadId"].(string)}, nil
}

// Execute syncs the lead. Backend failures are reported in the output unless
// RequireAll is set, in which case the first failure (by backend name) fails
// the job. A retried job only creates the records that are still missing.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	results, err := h.service.Sync(ctx, input.LeadID)
	if err != nil {
		return nil, err
	}

	output := &Output{LeadID: input.LeadID, Results: results}
	failed := output.FailedBackends()
	if len(failed) > 0 {
		h.logger.Warn("lead sync incomplete", map[string]interface{}{
			"leadId": input.LeadID,
			"failed": failed,
		})
		if h.config.RequireAll {
			return nil, backendError(results[failed[0]])
		}
	}
	return output, nil
}

func backendError(r models.CRMSyncResult) error {
	if stdErr, ok := errors.AsStandard(r.Err); ok {
		return stdErr
	}
	if r.Err != nil {
		return errors.NewCRMTransientError(r.Backend, r.Err)
	}
	return errors.NewCRMTransientError(r.Backend, fmt.Errorf("%s: %s", r.ErrorCode, r.ErrorMessage))
}

func (h *Handler) WorkerConfig() camunda.WorkerConfig {
	return camunda.WorkerConfig{
		TaskType:       TaskType,
		MaxJobsActive:  h.config.MaxJobsActive,
		Timeout:        h.config.Timeout,
		FetchVariables: []string{"leadId"},
	}
}

func (h *Handler) IsEnabled() bool {
	return h.config.Enabled
}
