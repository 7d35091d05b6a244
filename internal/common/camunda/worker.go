// internal/common/camunda/worker.go
package camunda

import (
	"context"
	"fmt"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"

	"lead-engine/internal/common/errors"
	"lead-engine/internal/common/logger"
	"lead-engine/internal/common/metrics"
	"lead-engine/internal/common/observability"
)

// JobHandler executes one job and returns the variables to complete it with.
type JobHandler interface {
	Handle(ctx context.Context, job entities.Job) (map[string]interface{}, error)
}

// WorkerConfig describes one job subscription.
type WorkerConfig struct {
	TaskType      string
	MaxJobsActive int
	Timeout       time.Duration
	// FetchVariables limits the variables activated with each job; empty
	// fetches all.
	FetchVariables []string
}

// CamundaWorker completes jobs with the handler's variables and routes
// failures through errors.ErrorHandler.
type CamundaWorker struct {
	config    WorkerConfig
	handler   JobHandler
	errors    *errors.ErrorHandler
	obs       *observability.Observability
	logger    logger.Logger
	jobWorker worker.JobWorker
}

func NewWorker(cfg WorkerConfig, handler JobHandler, obs *observability.Observability, log logger.Logger) *CamundaWorker {
	if cfg.MaxJobsActive <= 0 {
		cfg.MaxJobsActive = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	log = log.WithFields(map[string]interface{}{"taskType": cfg.TaskType})
	return &CamundaWorker{
		config:  cfg,
		handler: handler,
		errors:  errors.NewErrorHandler(log),
		obs:     obs,
		logger:  log,
	}
}

// Open subscribes to the task type on client.
func (w *CamundaWorker) Open(client zbc.Client) {
	builder := client.NewJobWorker().
		JobType(w.config.TaskType).
		Handler(w.Process).
		MaxJobsActive(w.config.MaxJobsActive).
		Timeout(w.config.Timeout).
		Name(fmt.Sprintf("%s-worker", w.config.TaskType))
	if len(w.config.FetchVariables) > 0 {
		builder = builder.FetchVariables(w.config.FetchVariables...)
	}
	w.jobWorker = builder.Open()

	w.logger.Info("worker registered", map[string]interface{}{
		"maxJobsActive": w.config.MaxJobsActive,
		"timeout":       w.config.Timeout.String(),
	})
}

// Process is the Zeebe job handler.
func (w *CamundaWorker) Process(client worker.JobClient, job entities.Job) {
	start := time.Now()
	taskType := w.config.TaskType
	metrics.WorkerJobsActive.WithLabelValues(taskType).Inc()
	defer metrics.WorkerJobsActive.WithLabelValues(taskType).Dec()

	ctx, cancel := context.WithTimeout(context.Background(), w.config.Timeout)
	defer cancel()

	w.logger.Debug("processing job", map[string]interface{}{
		"jobKey":             job.GetKey(),
		"processInstanceKey": job.GetProcessInstanceKey(),
	})

	variables, err := w.handler.Handle(ctx, job)
	if err != nil {
		code := string(errors.CodeOf(err))
		if code == "" {
			code = string(errors.ErrCodeInternal)
		}
		metrics.WorkerJobsFailed.WithLabelValues(taskType, code).Inc()
		w.obs.RecordJobProcessed(ctx, taskType, "failed")
		w.obs.RecordJobDuration(ctx, taskType, time.Since(start), "failed")
		w.errors.HandleJobError(ctx, client, job, err)
		return
	}

	if err := w.complete(ctx, client, job, variables); err != nil {
		w.logger.Error("failed to complete job", map[string]interface{}{
			"jobKey": job.GetKey(),
			"error":  err.Error(),
		})
		return
	}

	metrics.WorkerJobsCompleted.WithLabelValues(taskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(taskType).Observe(time.Since(start).Seconds())
	w.obs.RecordJobProcessed(ctx, taskType, "completed")
	w.obs.RecordJobDuration(ctx, taskType, time.Since(start), "completed")
}

func (w *CamundaWorker) complete(ctx context.Context, client worker.JobClient, job entities.Job, variables map[string]interface{}) error {
	request, err := client.NewCompleteJobCommand().JobKey(job.GetKey()).VariablesFromMap(variables)
	if err != nil {
		return fmt.Errorf("create complete command: %w", err)
	}
	if _, err := request.Send(ctx); err != nil {
		return fmt.Errorf("send complete command: %w", err)
	}
	return nil
}

func (w *CamundaWorker) TaskType() string {
	return w.config.TaskType
}

// Close stops polling. The shared Zeebe client is closed by its owner.
func (w *CamundaWorker) Close() {
	if w.jobWorker == nil {
		return
	}
	w.logger.Info("stopping worker", nil)
	w.jobWorker.Close()
	w.jobWorker.AwaitClose()
	w.jobWorker = nil
}
