package qualifylead

import "lead-engine/internal/models"

type Input struct {
	LeadID string `json:"leadId"`
}

type Output struct {
	LeadID string
	Score  models.BANTScore
	Status models.LeadStatus
}

func (o *Output) toVariables() map[string]interface{} {
	return map[string]interface{}{
		"leadId":              o.LeadID,
		"leadStatus":          string(o.Status),
		"bantScore":           o.Score.Overall,
		"qualificationReason": o.Score.QualificationReason,
		"scoreBreakdown": map[string]interface{}{
			"budget":    o.Score.Budget,
			"authority": o.Score.Authority,
			"need":      o.Score.Need,
			"timeline":  o.Score.Timeline,
		},
		"isQualified": o.Status == models.StatusQualified,
	}
}
