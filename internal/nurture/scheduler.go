package nurture

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"lead-engine/internal/common/errors"
	"lead-engine/internal/common/logger"
	"lead-engine/internal/common/metrics"
	"lead-engine/internal/models"
)

// Enqueuer is the subset of *asynq.Client used to schedule steps.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Scheduler enqueues one delayed task per nurturing step.
type Scheduler struct {
	client   Enqueuer
	queue    string
	maxRetry int
	logger   logger.Logger
	now      func() time.Time
}

func NewScheduler(client Enqueuer, queue string, maxRetry int, log logger.Logger) *Scheduler {
	if queue == "" {
		queue = "default"
	}
	return &Scheduler{
		client:   client,
		queue:    queue,
		maxRetry: maxRetry,
		logger:   log.WithFields(map[string]interface{}{"component": "nurture-scheduler"}),
		now:      time.Now,
	}
}

// NewClient opens an asynq client on the same Redis the cache uses.
func NewClient(opts *redis.Options) *asynq.Client {
	return asynq.NewClient(RedisClientOpt(opts))
}

func RedisClientOpt(opts *redis.Options) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:      opts.Addr,
		Password:  opts.Password,
		DB:        opts.DB,
		TLSConfig: opts.TLSConfig,
	}
}

// Schedule enqueues every step. Steps are numbered from 1. Enqueueing stops at
// the first failure; already-enqueued steps stay scheduled.
func (s *Scheduler) Schedule(ctx context.Context, lead *models.Lead, steps []models.NurtureStep) error {
	scheduledAt := s.now().UTC()
	for i, step := range steps {
		task, err := NewStepTask(StepPayload{
			LeadID:      lead.ID,
			Step:        i + 1,
			Template:    step.Template,
			Delay:       step.Delay,
			ScheduledAt: scheduledAt,
		})
		if err != nil {
			return errors.NewSchedulingFailedError(fmt.Sprintf("lead %s step %d", lead.ID, i+1), err)
		}

		opts := []asynq.Option{asynq.ProcessIn(step.Delay), asynq.Queue(s.queue)}
		if s.maxRetry > 0 {
			opts = append(opts, asynq.MaxRetry(s.maxRetry))
		}

		info, err := s.client.EnqueueContext(ctx, task, opts...)
		if err != nil {
			return errors.NewSchedulingFailedError(fmt.Sprintf("lead %s step %d", lead.ID, i+1), err)
		}

		metrics.NurtureStepsScheduled.WithLabelValues(step.Template).Inc()
		fields := map[string]interface{}{
			"leadId":   lead.ID,
			"step":     i + 1,
			"template": step.Template,
			"delay":    step.Delay.String(),
		}
		if info != nil {
			fields["taskId"] = info.ID
		}
		s.logger.Info("nurturing step scheduled", fields)
	}
	return nil
}
