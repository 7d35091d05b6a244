// Package notify delivers lead events to email, SMS and message-broker sinks.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"lead-engine/internal/common/errors"
	"lead-engine/internal/common/logger"
	"lead-engine/internal/common/metrics"
	"lead-engine/internal/models"
)

// Publisher accepts lead events for delivery.
type Publisher interface {
	Publish(ctx context.Context, event models.Event) error
}

// Sink is one delivery channel. A sink ignores event types it does not handle.
type Sink interface {
	Name() string
	Publish(ctx context.Context, event models.Event) error
}

// Template is a subject and body with {{key}} placeholders.
type Template struct {
	Subject string
	Body    string
}

// Dispatcher fans an event out to every sink. All sinks are attempted even
// when one fails.
type Dispatcher struct {
	sinks  []Sink
	logger logger.Logger
	now    func() time.Time
}

func NewDispatcher(log logger.Logger, sinks ...Sink) *Dispatcher {
	return &Dispatcher{
		sinks:  sinks,
		logger: log.WithFields(map[string]interface{}{"component": "notify"}),
		now:    time.Now,
	}
}

func (d *Dispatcher) Sinks() []string {
	names := make([]string, 0, len(d.sinks))
	for _, s := range d.sinks {
		names = append(names, s.Name())
	}
	return names
}

func (d *Dispatcher) Publish(ctx context.Context, event models.Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = d.now().UTC()
	}

	var failed []string
	var firstErr error
	for _, sink := range d.sinks {
		err := sink.Publish(ctx, event)
		outcome := "success"
		if err != nil {
			outcome = "error"
			failed = append(failed, sink.Name())
			if firstErr == nil {
				firstErr = err
			}
			d.logger.Error("event delivery failed", map[string]interface{}{
				"eventId":   event.ID,
				"eventType": string(event.Type),
				"leadId":    event.LeadID,
				"sink":      sink.Name(),
				"error":     err.Error(),
			})
		}
		metrics.EventsPublished.WithLabelValues(string(event.Type), sink.Name(), outcome).Inc()
	}

	if firstErr != nil {
		return errors.NewNotificationSendFailedError(strings.Join(failed, ","), firstErr)
	}

	d.logger.Debug("event published", map[string]interface{}{
		"eventId":   event.ID,
		"eventType": string(event.Type),
		"leadId":    event.LeadID,
		"sinks":     len(d.sinks),
	})
	return nil
}

// renderTemplate replaces {{key}} placeholders and drops any left unresolved.
func renderTemplate(tmpl string, data map[string]interface{}) string {
	result := tmpl

	for k, v := range data {
		placeholder := "{{" + k + "}}"
		value := ""
		switch val := v.(type) {
		case string:
			value = val
		case int:
			value = fmt.Sprintf("%d", val)
		case float64:
			value = fmt.Sprintf("%.2f", val)
			value = strings.TrimRight(strings.TrimRight(value, "0"), ".")
		case nil:
		default:
			value = fmt.Sprintf("%v", val)
		}
		result = strings.ReplaceAll(result, placeholder, value)
	}

	for {
		start := strings.Index(result, "{{")
		if start == -1 {
			break
		}
		end := strings.Index(result[start:], "}}")
		if end == -1 {
			break
		}
		end += start + 2
		result = result[:start] + result[end:]
	}

	return result
}
