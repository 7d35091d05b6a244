package capturelead

import (
	"context"
	"fmt"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"

	"lead-engine/internal/common/camunda"
	"lead-engine/internal/common/config"
	"lead-engine/internal/common/errors"
	"lead-engine/internal/common/logger"
	"lead-engine/internal/common/validation"
	"lead-engine/internal/lead/qualifier"
	"lead-engine/internal/models"
)

const (
	TaskType   = "lead.capture.create"
	WorkerName = "capture-lead"
)

// LeadCapturer is the part of the qualifier this worker drives.
type LeadCapturer interface {
	Capture(ctx context.Context, raw models.RawLead, source models.LeadSource) (string, error)
	BulkImport(ctx context.Context, raws []models.RawLead, source models.LeadSource) (*qualifier.BulkImportResult, error)
}

type Handler struct {
	config  *Config
	service LeadCapturer
	logger  logger.Logger
}

type HandlerOptions struct {
	AppConfig    *config.Config
	CustomConfig *Config
	Service      LeadCapturer
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

// Handle implements camunda.JobHandler.
func (h *Handler) Handle(ctx context.Context, job entities.Job) (map[string]interface{}, error) {
	input, err := h.parseInput(job)
	if err != nil {
		return nil, err
	}

	output, err := h.Execute(ctx, input)
	if err != nil {
		return nil, err
	}
	return output.toVariables(input.isBulk()), nil
}

func (h *Handler) parseInput(job entities.Job) (*Input, error) {
	variables, err := job.GetVariablesAsMap()
	if err != nil {
		return nil, errors.NewInputParsingError(err)
	}
	if err := validation.ValidateInput(variables, GetInputSchema()).Err(); err != nil {
		return nil, err
	}

	var input Input
	if err := job.GetVariablesAs(&input); err != nil {
		return nil, errors.NewInputParsingError(err)
	}

	switch {
	case input.Lead == nil && input.Leads == nil:
		return nil, errors.NewMissingFieldError("lead")
	case input.Lead != nil && input.Leads != nil:
		return nil, errors.NewValidationError("leads", "lead and leads are mutually exclusive")
	}
	return &input, nil
}

// Execute captures a single lead or imports a batch.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	source := models.LeadSource(input.Source)
	if source == "" {
		source = h.config.DefaultSource
	}

	if !input.isBulk() {
		id, err := h.service.Capture(ctx, *input.Lead, source)
		if err != nil {
			return nil, err
		}
		return &Output{LeadID: id}, nil
	}

	result, err := h.service.BulkImport(ctx, input.Leads, source)
	if err != nil {
		return nil, err
	}

	h.logger.Info("bulk capture completed", map[string]interface{}{
		"total":    result.Total,
		"imported": len(result.LeadIDs),
		"failed":   len(result.Failures),
	})
	return &Output{
		LeadIDs:  result.LeadIDs,
		Total:    result.Total,
		Failures: result.Failures,
	}, nil
}

func (h *Handler) WorkerConfig() camunda.WorkerConfig {
	return camunda.WorkerConfig{
		TaskType:       TaskType,
		MaxJobsActive:  h.config.MaxJobsActive,
		Timeout:        h.config.Timeout,
		FetchVariables: []string{"lead", "leads", "source"},
	}
}

func (h *Handler) IsEnabled() bool {
	return h.config.Enabled
}
