package qualifier

import (
	"context"
	"math"
	"time"

	"lead-engine/internal/common/errors"
	"lead-engine/internal/models"
)

// Analytics aggregates leads created within a trailing window.
type Analytics struct {
	WindowDays int       `json:"window_days"`
	From       time.Time `json:"from"`
	To         time.Time `json:"to"`

	TotalLeads     int                       `json:"total_leads"`
	ScoredLeads    int                       `json:"scored_leads"`
	QualifiedLeads int                       `json:"qualified_leads"`
	ByStatus       map[models.LeadStatus]int `json:"by_status"`
	BySource       map[models.LeadSource]int `json:"by_source"`

	// QualificationRate is the percentage of leads currently QUALIFIED.
	QualificationRate float64 `json:"qualification_rate"`
	AverageScore      float64 `json:"average_score"`
	TimeSavedHours    float64 `json:"time_saved_hours"`
}

// GetAnalytics is read-only. The window is (now - windowDays, now].
func (s *Service) GetAnalytics(ctx context.Context, windowDays int) (*Analytics, error) {
	if windowDays <= 0 {
		return nil, errors.NewValidationError("window_days", "window must be at least one day")
	}

	now := s.now().UTC()
	from := now.Add(-time.Duration(windowDays) * 24 * time.Hour)
	to := now.Add(time.Nanosecond)

	leads, err := s.store.ListCreatedBetween(ctx, from, to)
	if err != nil {
		return nil, err
	}

	a := &Analytics{
		WindowDays: windowDays,
		From:       from,
		To:         now,
		TotalLeads: len(leads),
		ByStatus:   make(map[models.LeadStatus]int),
		BySource:   make(map[models.LeadSource]int),
	}

	var scoreSum float64
	for _, lead := range leads {
		a.ByStatus[lead.Status]++
		a.BySource[lead.Source]++
		if lead.Status == models.StatusQualified {
			a.QualifiedLeads++
		}
		if lead.Score != nil {
			a.ScoredLeads++
			scoreSum += lead.Score.Overall
		}
	}

	if a.TotalLeads > 0 {
		a.QualificationRate = round2(float64(a.QualifiedLeads) / float64(a.TotalLeads) * 100)
	}
	if a.ScoredLeads > 0 {
		a.AverageScore = round2(scoreSum / float64(a.ScoredLeads))
	}
	a.TimeSavedHours = round2(float64(a.ScoredLeads) * s.manualMinutes / 60)

	return a, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
