// pkg/registry/registry.go
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
)

const CurrentVersion = "1.0.0"

// LoadRegistry reads the registry at path. A missing file yields an empty
// registry.
func LoadRegistry(path string) (*ActivityRegistry, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &ActivityRegistry{Version: CurrentVersion}, nil
	}
	if err != nil {
		return nil, err
	}
	var reg ActivityRegistry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("decode registry %s: %w", path, err)
	}
	return &reg, nil
}

// Save writes the registry as indented JSON, creating the directory if needed.
func (r *ActivityRegistry) Save(path string, now time.Time) error {
	r.LastUpdated = now.UTC().Format(time.RFC3339)

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write registry file: %w", err)
	}
	return nil
}

func (r *ActivityRegistry) Find(id string) (*Activity, bool) {
	for i := range r.Activities {
		if r.Activities[i].ID == id {
			return &r.Activities[i], true
		}
	}
	return nil, false
}

// Upsert replaces the activity with the same ID or appends it. An existing
// implementation status is kept when a has none. It reports whether a was new.
func (r *ActivityRegistry) Upsert(a Activity) bool {
	if existing, ok := r.Find(a.ID); ok {
		if a.ImplementationStatus == "" {
			a.ImplementationStatus = existing.ImplementationStatus
		}
		*existing = a
		return false
	}
	r.Activities = append(r.Activities, a)
	return true
}

// Update sets a single scalar field on the activity with the given ID.
func (r *ActivityRegistry) Update(id, field, value string) error {
	a, ok := r.Find(id)
	if !ok {
		return fmt.Errorf("activity with ID %s not found", id)
	}

	switch field {
	case "status":
		a.ImplementationStatus = value
	case "version":
		a.Version = value
	case "displayName":
		a.DisplayName = value
	case "description":
		a.Description = value
	case "category":
		a.Category = value
	case "timeout":
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid timeout value: %w", err)
		}
		a.Timeout = value
	case "retries":
		retries, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid retries value: %w", err)
		}
		a.Retries = retries
	default:
		return fmt.Errorf("unknown field: %s", field)
	}
	return nil
}

// Validate checks required fields and that IDs and task types are unique.
func (r *ActivityRegistry) Validate() error {
	if len(r.Activities) == 0 {
		return fmt.Errorf("registry contains no activities")
	}
	if err := validator.New().Struct(r); err != nil {
		return fmt.Errorf("invalid activity: %w", err)
	}

	ids := make(map[string]bool, len(r.Activities))
	taskTypes := make(map[string]string, len(r.Activities))
	for _, a := range r.Activities {
		if ids[a.ID] {
			return fmt.Errorf("duplicate activity ID: %s", a.ID)
		}
		ids[a.ID] = true

		if other, ok := taskTypes[a.TaskType]; ok {
			return fmt.Errorf("task type %s is claimed by %s and %s", a.TaskType, other, a.ID)
		}
		taskTypes[a.TaskType] = a.ID
	}
	return nil
}
