package qualifier

import (
	"context"

	"lead-engine/internal/common/errors"
	"lead-engine/internal/common/metrics"
	"lead-engine/internal/crm"
	"lead-engine/internal/lead/lifecycle"
	"lead-engine/internal/lead/store"
	"lead-engine/internal/models"
)

// Qualify scores the lead, derives its status and persists both together with
// a score history record. Follow-up events and CRM updates run afterwards;
// their failures are logged and never fail the call.
func (s *Service) Qualify(ctx context.Context, id string) (models.BANTScore, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	lead, err := store.GetFresh(ctx, s.store, id)
	if err != nil {
		return models.BANTScore{}, err
	}
	if !lead.Active {
		return models.BANTScore{}, errors.NewValidationError("status", "lead "+id+" is closed")
	}

	now := s.now().UTC()
	score := s.engine.Score(lead, now)
	decision := s.classifier.Decide(score.Overall)
	previous := lead.Status

	lead.Score = &score
	lead.Status = decision.Status
	lead.UpdatedAt = now
	switch {
	case decision.Status != models.StatusQualified:
		lead.QualifiedAt = nil
	case previous != models.StatusQualified || lead.QualifiedAt == nil:
		lead.QualifiedAt = &now
	}

	// A failed save leaves the stored status at previous, so a retry sees the
	// same transition and still fires its follow-ups.
	if err := s.store.SaveQualification(ctx, lead, models.ScoreRecord{
		LeadID:   lead.ID,
		Score:    score,
		Status:   decision.Status,
		ScoredAt: now,
	}); err != nil {
		return models.BANTScore{}, err
	}

	metrics.LeadsQualified.WithLabelValues(string(decision.Status)).Inc()
	metrics.LeadScore.Observe(score.Overall)
	s.logger.Info("lead qualified", map[string]interface{}{
		"leadId":   lead.ID,
		"score":    score.Overall,
		"status":   string(decision.Status),
		"previous": string(previous),
	})

	if previous != decision.Status {
		s.onTransition(ctx, lead, decision)
	}
	s.pushQualification(ctx, lead)

	return score, nil
}

func (s *Service) onTransition(ctx context.Context, lead *models.Lead, decision lifecycle.Decision) {
	switch decision.Status {
	case models.StatusQualified:
		s.publish(ctx, s.event(lead, models.EventLeadQualified))
		if decision.SalesAlert {
			s.publish(ctx, s.event(lead, models.EventSalesAlert))
		}
	case models.StatusNurturing:
		if s.scheduler == nil || len(decision.Sequence) == 0 {
			return
		}
		if err := s.scheduler.Schedule(ctx, lead, decision.Sequence); err != nil {
			s.logger.Error("failed to schedule nurturing sequence", map[string]interface{}{
				"leadId": lead.ID,
				"steps":  len(decision.Sequence),
				"error":  err.Error(),
			})
		}
	}
}

func (s *Service) pushQualification(ctx context.Context, lead *models.Lead) {
	if s.syncer == nil || len(lead.ExternalIDs) == 0 {
		return
	}

	results := s.syncer.SyncUpdate(ctx, lead.ExternalIDs, crm.QualificationUpdate(lead))
	for backend, ok := range results {
		if !ok && lead.ExternalIDs[backend] != "" {
			s.logger.Warn("qualification not propagated", map[string]interface{}{
				"leadId":  lead.ID,
				"backend": backend,
			})
		}
	}
}

func (s *Service) event(lead *models.Lead, eventType models.EventType) models.Event {
	e := models.Event{
		ID:         s.newID(),
		Type:       eventType,
		LeadID:     lead.ID,
		Email:      lead.Email,
		FirstName:  lead.FirstName,
		FullName:   lead.FullName(),
		Company:    lead.Company,
		Status:     lead.Status,
		OccurredAt: s.now().UTC(),
	}
	if lead.Score != nil {
		e.Score = lead.Score.Overall
		e.Data = map[string]interface{}{
			"qualification_reason": lead.Score.QualificationReason,
			"job_title":            lead.JobTitle,
			"phone":                lead.Phone,
		}
	}
	return e
}

func (s *Service) publish(ctx context.Context, event models.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Error("failed to publish lead event", map[string]interface{}{
			"leadId":    event.LeadID,
			"eventType": string(event.Type),
			"error":     err.Error(),
		})
	}
}
