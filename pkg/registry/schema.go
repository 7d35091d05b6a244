// pkg/registry/schema.go
package registry

// ActivityRegistry catalogues the job workers a BPMN model can reference.
type ActivityRegistry struct {
	Version     string     `json:"version"`
	LastUpdated string     `json:"lastUpdated"`
	Activities  []Activity `json:"activities" validate:"dive"`
}

type Activity struct {
	ID                   string                 `json:"id" validate:"required"`
	DisplayName          string                 `json:"displayName" validate:"required"`
	Description          string                 `json:"description"`
	Category             string                 `json:"category" validate:"required"`
	Version              string                 `json:"version"`
	TaskType             string                 `json:"taskType" validate:"required"`
	ImplementationStatus string                 `json:"implementationStatus" validate:"omitempty,oneof=planned in-progress completed verified"`
	InputSchema          map[string]interface{} `json:"inputSchema"`
	OutputVariables      []string               `json:"outputVariables"`
	ErrorCodes           []string               `json:"errorCodes"`
	Timeout              string                 `json:"timeout"`
	Retries              int                    `json:"retries" validate:"gte=0"`
	Tags                 []string               `json:"tags"`
}
