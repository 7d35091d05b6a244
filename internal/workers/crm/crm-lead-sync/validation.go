package crmleadsync

import "lead-engine/internal/common/validation"

func GetInputSchema() validation.JSONSchema {
	return validation.JSONSchema{
		Type:     "object",
		Required: []string{"leadId"},
		Properties: map[string]validation.Property{
			"leadId": {
				Type:        "string",
				Description: "Lead to push to the CRM backends",
				MinLength:   validation.IntPtr(1),
				MaxLength:   validation.IntPtr(64),
			},
		},
		AdditionalProperties: true,
	}
}
