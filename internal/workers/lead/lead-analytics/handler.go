package leadanalytics

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
)

const (
	TaskType   = "lead.analytics.compute"
	WorkerName = "lead-analytics"
)

type AnalyticsProvider interface {
	GetAnalytics(ctx context.Context, windowDays int) (*qualifier.Analytics, error)
}

type Handler struct {
	config  *Config
	service AnalyticsProvider
	logger  logger.Logger
}

type HandlerOptions struct {
	AppConfig    *config.Config
	CustomConfig *Config
	Service      AnalyticsProvider
	Logger       logger.Logger
}

func NewHandler(opts HandlerOptions) (*Handler, error) {
	workerConfig := createConfigFromAppConfig(opts.AppConfig, opts.CustomConfig)
	if err := workerConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration for %s: %w", WorkerName, err)
	}
	if opts.Service == nil {
		return nil, fmt.Errorf("%s: analytics service is required", WorkerName)
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

	input := &Input{WindowDays: h.config.DefaultWindowDays}
	if days, ok := variables["windowDays"].(float64); ok {
		input.WindowDays = int(days)
	}
	return input, nil
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	analytics, err := h.service.GetAnalytics(ctx, input.WindowDays)
	if err != nil {
		return nil, err
	}

	h.logger.Info("lead analytics computed", map[string]interface{}{
		"windowDays":        analytics.WindowDays,
		"totalLeads":        analytics.TotalLeads,
		"qualificationRate": analytics.QualificationRate,
	})
	return &Output{Analytics: analytics}, nil
}

func (h *Handler) WorkerConfig() camunda.WorkerConfig {
	return camunda.WorkerConfig{
		TaskType:       TaskType,
		MaxJobsActive:  h.config.MaxJobsActive,
		Timeout:        h.config.Timeout,
		FetchVariables: []string{"windowDays"},
	}
}

func (h *Handler) IsEnabled() bool {
	return h.config.Enabled
}
