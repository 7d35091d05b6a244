// Package nurture schedules nurturing steps as delayed asynq tasks and
// publishes them when due.
package nurture

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const TaskNurtureStep = "lead.nurture.step"

type StepPayload struct {
	LeadID      string        `json:"leadId"`
	Step        int           `json:"step"`
	Template    string        `json:"template"`
	Delay       time.Duration `json:"delay"`
	ScheduledAt time.Time     `json:"scheduledAt"`
}

func NewStepTask(payload StepPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNurtureStep, data), nil
}

func ParseStepPayload(task *asynq.Task) (StepPayload, error) {
	var payload StepPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return StepPayload{}, err
	}
	return payload, nil
}
