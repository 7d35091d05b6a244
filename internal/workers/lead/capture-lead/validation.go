package capturelead

import "lead-engine/internal/common/validation"

// GetInputSchema checks the shape of the job variables. Field-level lead
// validation happens in the qualifier so that missing fields are reported in
// a fixed order.
func GetInputSchema() validation.JSONSchema {
	return validation.JSONSchema{
		Type: "object",
		Properties: map[string]validation.Property{
			"lead": {
				Type:        "object",
				Description: "A single lead to capture",
			},
			"leads": {
				Type:        "array",
				Description: "A batch of leads to import",
				Items:       &validation.Property{Type: "object"},
			},
			"source": {
				Type:        "string",
				Description: "Lead source, e.g. WEBSITE_FORM",
				MaxLength:   validation.IntPtr(50),
			},
		},
		AdditionalProperties: true,
	}
}
