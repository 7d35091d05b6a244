package crmleadsync

import (
	"sort"

	"lead-engine/internal/models"
)

type Input struct {
	LeadID string `json:"leadId"`
}

type Output struct {
	LeadID  string
	Results map[string]models.CRMSyncResult
}

// FailedBackends is sorted for stable output.
func (o *Output) FailedBackends() []string {
	failed := []string{}
	for backend, r := range o.Results {
		if !r.Success {
			failed = append(failed, backend)
		}
	}
	sort.Strings(failed)
	return failed
}

func (o *Output) toVariables() map[string]interface{} {
	results := make(map[string]interface{}, len(o.Results))
	externalIDs := make(map[string]interface{})
	for backend, r := range o.Results {
		entry := map[string]interface{}{"success": r.Success}
		if r.ExternalID != "" {
			entry["externalId"] = r.ExternalID
			externalIDs[backend] = r.ExternalID
		}
		if r.ErrorCode != "" {
			entry["errorCode"] = r.ErrorCode
			entry["errorMessage"] = r.ErrorMessage
		}
		results[backend] = entry
	}

	failed := o.FailedBackends()
	return map[string]interface{}{
		"leadId":            o.LeadID,
		"crmSyncResults":    results,
		"crmExternalIds":    externalIDs,
		"crmFailedBackends": failed,
		"crmSynced":         len(failed) == 0,
	}
}
