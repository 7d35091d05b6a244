package capturelead

import (
	"lead-engine/internal/lead/qualifier"
	"lead-engine/internal/models"
)

// Input carries either one lead or a batch. Exactly one of Lead and Leads
// must be set.
type Input struct {
	Lead   *models.RawLead  `json:"lead,omitempty"`
	Leads  []models.RawLead `json:"leads,omitempty"`
	Source string           `json:"source,omitempty"`
}

func (i *Input) isBulk() bool {
	return i.Leads != nil
}

type Output struct {
	LeadID   string                    `json:"leadId,omitempty"`
	LeadIDs  []string                  `json:"leadIds,omitempty"`
	Total    int                       `json:"importTotal,omitempty"`
	Failures []qualifier.ImportFailure `json:"importFailures,omitempty"`
}

func (o *Output) toVariables(bulk bool) map[string]interface{} {
	if !bulk {
		return map[string]interface{}{
			"leadId":     o.LeadID,
			"leadStatus": string(models.StatusNew),
		}
	}

	failures := make([]map[string]interface{}, len(o.Failures))
	for i, f := range o.Failures {
		failures[i] = map[string]interface{}{
			"index":     f.Index,
			"email":     f.Email,
			"errorCode": f.Code,
		}
	}
	return map[string]interface{}{
		"leadIds":        o.LeadIDs,
		"importTotal":    o.Total,
		"importedCount":  len(o.LeadIDs),
		"importFailures": failures,
	}
}
