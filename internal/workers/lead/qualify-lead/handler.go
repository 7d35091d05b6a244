package qualifylead

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
	TaskType   = "lead.qualify.score"
	WorkerName = "qualify-lead"
)

type LeadQualifier interface {
	Qualify(ctx context.Context, id string) (models.BANTScore, error)
	GetLead(ctx context.Context, id string) (*models.Lead, error)
}

type Handler struct {
	config  *Config
	service LeadQualifier
	logger  logger.Logger
}

type HandlerOptions struct {
	AppConfig    *config.Config
	CustomConfig *Config
	Service      LeadQualifier
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

// Execute scores the lead and reads back the status the qualifier persisted.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	score, err := h.service.Qualify(ctx, input.LeadID)
	if err != nil {
		return nil, err
	}

	lead, err := h.service.GetLead(ctx, input.LeadID)
	if err != nil {
		return nil, err
	}

	h.logger.Debug("lead scored", map[string]interface{}{
		"leadId": input.LeadID,
		"score":  score.Overall,
		"status": string(lead.Status),
	})
	return &Output{LeadID: input.LeadID, Score: score, Status: lead.Status}, nil
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
