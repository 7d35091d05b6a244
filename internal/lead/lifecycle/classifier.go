// Package lifecycle maps BANT scores to lead statuses and follow-up actions.
package lifecycle

import (
	"lead-engine/internal/lead/scoring"
	"lead-engine/internal/models"
)

// Decision is the outcome of classifying one score.
type Decision struct {
	Status     models.LeadStatus
	SalesAlert bool
	Sequence   []models.NurtureStep
}

type Classifier struct {
	thresholds scoring.Thresholds
	sequence   []models.NurtureStep
}

// NewClassifier fails with a configuration error when the bands are
// inconsistent or a nurturing step is malformed.
func NewClassifier(thresholds scoring.Thresholds, sequence []models.NurtureStep) (*Classifier, error) {
	criteria := scoring.DefaultCriteria()
	criteria.Thresholds = thresholds
	criteria.NurturingSequence = sequence
	if err := criteria.Validate(); err != nil {
		return nil, err
	}

	seq := make([]models.NurtureStep, len(sequence))
	copy(seq, sequence)

	return &Classifier{thresholds: thresholds, sequence: seq}, nil
}

// FromCriteria builds a classifier from the thresholds and sequence of criteria.
func FromCriteria(c scoring.Criteria) (*Classifier, error) {
	return NewClassifier(c.Thresholds, c.NurturingSequence)
}

// Classify is a pure function of the score and the configured thresholds.
func (c *Classifier) Classify(score float64) models.LeadStatus {
	switch {
	case score >= c.thresholds.Qualified:
		return models.StatusQualified
	case score >= c.thresholds.Nurturing:
		return models.StatusNurturing
	default:
		return models.StatusUnqualified
	}
}

func (c *Classifier) Decide(score float64) Decision {
	d := Decision{Status: c.Classify(score)}
	switch d.Status {
	case models.StatusQualified:
		d.SalesAlert = score >= c.thresholds.HighScore
	case models.StatusNurturing:
		d.Sequence = c.Sequence()
	}
	return d
}

// Sequence returns a copy of the configured nurturing sequence.
func (c *Classifier) Sequence() []models.NurtureStep {
	out := make([]models.NurtureStep, len(c.sequence))
	copy(out, c.sequence)
	return out
}

func (c *Classifier) Thresholds() scoring.Thresholds {
	return c.thresholds
}
