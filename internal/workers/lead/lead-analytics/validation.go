package leadanalytics

import "lead-engine/internal/common/validation"

func GetInputSchema() validation.JSONSchema {
	return validation.JSONSchema{
		Type: "object",
		Properties: map[string]validation.Property{
			"windowDays": {
				Type:        "integer",
				Description: "Trailing window in days",
				Minimum:     validation.FloatPtr(1),
				Maximum:     validation.FloatPtr(3650),
			},
		},
		AdditionalProperties: true,
	}
}
