package nurture

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"

	"lead-engine/internal/common/errors"
	"lead-engine/internal/common/logger"
	"lead-engine/internal/models"
	"lead-engine/internal/notify"
)

// LeadGetter loads the current state of a lead.
type LeadGetter interface {
	GetByID(ctx context.Context, id string) (*models.Lead, error)
}

// Handler publishes a due nurturing step unless the lead has since been
// closed or left the NURTURING status.
type Handler struct {
	leads     LeadGetter
	publisher notify.Publisher
	logger    logger.Logger
}

func NewHandler(leads LeadGetter, publisher notify.Publisher, log logger.Logger) *Handler {
	return &Handler{
		leads:     leads,
		publisher: publisher,
		logger:    log.WithFields(map[string]interface{}{"taskType": TaskNurtureStep}),
	}
}

func (h *Handler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseStepPayload(task)
	if err != nil {
		return fmt.Errorf("parse payload: %v: %w", err, asynq.SkipRetry)
	}

	lead, err := h.leads.GetByID(ctx, payload.LeadID)
	if err != nil {
		if errors.HasCode(err, errors.ErrCodeLeadNotFound) {
			h.logger.Warn("lead gone, dropping nurturing step", map[string]interface{}{"leadId": payload.LeadID})
			return nil
		}
		return err
	}

	if !lead.Active || lead.Status != models.StatusNurturing {
		h.logger.Info("lead no longer nurturing, skipping step", map[string]interface{}{
			"leadId": lead.ID,
			"status": string(lead.Status),
			"active": lead.Active,
			"step":   payload.Step,
		})
		return nil
	}

	var score float64
	if lead.Score != nil {
		score = lead.Score.Overall
	}

	event := models.Event{
		Type:      models.EventNurturingStep,
		LeadID:    lead.ID,
		Email:     lead.Email,
		FirstName: lead.FirstName,
		FullName:  lead.FullName(),
		Company:   lead.Company,
		Status:    lead.Status,
		Score:     score,
		Step:      payload.Step,
		Template:  payload.Template,
		Delay:     payload.Delay,
	}
	if err := h.publisher.Publish(ctx, event); err != nil {
		return err
	}

	h.logger.Info("nurturing step delivered", map[string]interface{}{
		"leadId":   lead.ID,
		"step":     payload.Step,
		"template": payload.Template,
	})
	return nil
}

// Worker runs the asynq server for nurturing tasks.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger logger.Logger
}

func NewWorker(opt asynq.RedisClientOpt, queue string, concurrency int, handler *Handler, log logger.Logger) *Worker {
	if queue == "" {
		queue = "default"
	}
	if concurrency < 1 {
		concurrency = 5
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	mux.Handle(TaskNurtureStep, handler)

	return &Worker{server: server, mux: mux, logger: log}
}

// Run blocks until ctx is cancelled, then drains in-flight tasks.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("start nurture worker: %w", err)
	}
	<-ctx.Done()
	w.server.Shutdown()
	w.logger.Info("nurture worker stopped", nil)
	return nil
}
