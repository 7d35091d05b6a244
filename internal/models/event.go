package models

import "time"

type EventType string

const (
	EventLeadQualified EventType = "lead.qualified"
	EventSalesAlert    EventType = "lead.sales_alert"
	EventNurturingStep EventType = "lead.nurturing_step"
)

// Event is the payload handed to the notification collaborator. Delivery is
// outside the engine; only the payload shape is owned here.
type Event struct {
	ID         string                 `json:"id"`
	Type       EventType              `json:"type"`
	LeadID     string                 `json:"lead_id"`
	Email      string                 `json:"email"`
	FirstName  string                 `json:"first_name"`
	FullName   string                 `json:"full_name"`
	Company    string                 `json:"company"`
	Status     LeadStatus             `json:"status"`
	Score      float64                `json:"score"`
	Step       int                    `json:"step,omitempty"`
	Template   string                 `json:"template,omitempty"`
	Delay      time.Duration          `json:"delay,omitempty"`
	Data       map[string]interface{} `json:"data,omitempty"`
	OccurredAt time.Time              `json:"occurred_at"`
}

// TemplateData flattens the event for {{key}} template rendering.
func (e Event) TemplateData() map[string]interface{} {
	data := map[string]interface{}{
		"lead_id":    e.LeadID,
		"email":      e.Email,
		"first_name": e.FirstName,
		"full_name":  e.FullName,
		"company":    e.Company,
		"status":     string(e.Status),
		"score":      e.Score,
		"step":       e.Step,
	}
	for k, v := range e.Data {
		data[k] = v
	}
	return data
}
