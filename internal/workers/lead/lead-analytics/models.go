package leadanalytics

import (
	"time"

	"lead-engine/internal/lead/qualifier"
)

type Input struct {
	WindowDays int
}

type Output struct {
	Analytics *qualifier.Analytics
}

func (o *Output) toVariables() map[string]interface{} {
	a := o.Analytics

	byStatus := make(map[string]interface{}, len(a.ByStatus))
	for status, n := range a.ByStatus {
		byStatus[string(status)] = n
	}
	bySource := make(map[string]interface{}, len(a.BySource))
	for source, n := range a.BySource {
		bySource[string(source)] = n
	}

	return map[string]interface{}{
		"analytics": map[string]interface{}{
			"windowDays":        a.WindowDays,
			"from":              a.From.Format(time.RFC3339),
			"to":                a.To.Format(time.RFC3339),
			"totalLeads":        a.TotalLeads,
			"scoredLeads":       a.ScoredLeads,
			"qualifiedLeads":    a.QualifiedLeads,
			"qualificationRate": a.QualificationRate,
			"averageScore":      a.AverageScore,
			"timeSavedHours":    a.TimeSavedHours,
			"byStatus":          byStatus,
			"bySource":          bySource,
		},
	}
}
