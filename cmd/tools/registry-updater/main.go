// cmd/tools/registry-updater/main.go
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"lead-engine/internal/common/errors"
	"lead-engine/internal/common/validation"
	cls "lead-engine/internal/workers/crm/crm-lead-sync"
	cl "lead-engine/internal/workers/lead/capture-lead"
	la "lead-engine/internal/workers/lead/lead-analytics"
	ql "lead-engine/internal/workers/lead/qualify-lead"
	"lead-engine/pkg/registry"
)

const defaultPath = "configs/activity-registry.json"

func main() {
	syncCmd := flag.NewFlagSet("sync", flag.ExitOnError)
	updateCmd := flag.NewFlagSet("update", flag.ExitOnError)
	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)

	syncPath := syncCmd.String("path", defaultPath, "Path to registry file")

	updatePath := updateCmd.String("path", defaultPath, "Path to registry file")
	idUpdate := updateCmd.String("id", "", "Activity ID to update")
	field := updateCmd.String("field", "", "Field to update (status, version, timeout, retries, ...)")
	value := updateCmd.String("value", "", "New value for the field")

	validatePath := validateCmd.String("path", defaultPath, "Path to registry file")

	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "sync":
		syncCmd.Parse(os.Args[2:])
		err = syncRegistry(*syncPath)

	case "update":
		updateCmd.Parse(os.Args[2:])
		if *idUpdate == "" || *field == "" || *value == "" {
			fmt.Println("Error: id, field, and value are required for update.")
			updateCmd.Usage()
			os.Exit(1)
		}
		err = updateActivity(*updatePath, *idUpdate, *field, *value)

	case "validate":
		validateCmd.Parse(os.Args[2:])
		err = validateRegistry(*validatePath)

	default:
		help()
		return
	}

	if err != nil {
		fmt.Printf("%s failed: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

// syncRegistry writes one entry per job worker from the worker packages
// themselves, keeping implementation statuses already recorded.
func syncRegistry(path string) error {
	reg, err := registry.LoadRegistry(path)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}

	activities, err := workerActivities()
	if err != nil {
		return err
	}
	for _, a := range activities {
		if reg.Upsert(a) {
			fmt.Printf("Added activity: %s\n", a.ID)
		} else {
			fmt.Printf("Refreshed activity: %s\n", a.ID)
		}
	}

	if err := reg.Validate(); err != nil {
		return err
	}
	return reg.Save(path, time.Now())
}

func workerActivities() ([]registry.Activity, error) {
	leadErrors := []errors.ErrorCode{errors.ErrCodeInputParsingFailed, errors.ErrCodeValidationFailed, errors.ErrCodeMissingField}

	workers := []struct {
		id          string
		name        string
		description string
		category    string
		taskType    string
		schema      validation.JSONSchema
		timeout     time.Duration
		outputs     []string
		errorCodes  []errors.ErrorCode
	}{
		{
			id:          cl.WorkerName,
			name:        "Capture Lead",
			description: "Validates and stores a single lead or a batch of leads",
			category:    "lead",
			taskType:    cl.TaskType,
			schema:      cl.GetInputSchema(),
			timeout:     cl.DefaultConfig().Timeout,
			outputs:     []string{"leadId", "leadStatus", "leadIds", "importTotal", "importedCount", "importFailures"},
			errorCodes:  append(leadErrors, errors.ErrCodeDuplicateLead, errors.ErrCodeStoreFailed),
		},
		{
			id:          ql.WorkerName,
			name:        "Qualify Lead",
			description: "Scores a lead with BANT and moves it through the lifecycle",
			category:    "lead",
			taskType:    ql.TaskType,
			schema:      ql.GetInputSchema(),
			timeout:     ql.DefaultConfig().Timeout,
			outputs:     []string{"leadId", "leadStatus", "bantScore", "qualificationReason", "scoreBreakdown", "isQualified"},
			errorCodes:  append(leadErrors, errors.ErrCodeLeadNotFound, errors.ErrCodeStoreFailed),
		},
		{
			id:          cls.WorkerName,
			name:        "Sync Lead to CRMs",
			description: "Creates the lead in every configured CRM backend that does not have it yet",
			category:    "crm",
			taskType:    cls.TaskType,
			schema:      cls.GetInputSchema(),
			timeout:     cls.DefaultConfig().Timeout,
			outputs:     []string{"crmSyncResults", "crmExternalIds", "crmFailedBackends", "crmSynced"},
			errorCodes: append(leadErrors, errors.ErrCodeLeadNotFound, errors.ErrCodeCRMAuth,
				errors.ErrCodeCRMRateLimited, errors.ErrCodeCRMTransient, errors.ErrCodeCRMTimeout, errors.ErrCodeCRMSchema),
		},
		{
			id:          la.WorkerName,
			name:        "Lead Analytics",
			description: "Aggregates qualification metrics over a trailing window",
			category:    "reporting",
			taskType:    la.TaskType,
			schema:      la.GetInputSchema(),
			timeout:     la.DefaultConfig().Timeout,
			outputs:     []string{"analytics"},
			errorCodes:  append(leadErrors, errors.ErrCodeStoreFailed),
		},
	}

	activities := make([]registry.Activity, 0, len(workers))
	for _, w := range workers {
		schema, err := schemaMap(w.schema)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", w.id, err)
		}
		codes := make([]string, len(w.errorCodes))
		for i, c := range w.errorCodes {
			codes[i] = string(c)
		}
		activities = append(activities, registry.Activity{
			ID:              w.id,
			DisplayName:     w.name,
			Description:     w.description,
			Category:        w.category,
			Version:         registry.CurrentVersion,
			TaskType:        w.taskType,
			InputSchema:     schema,
			OutputVariables: w.outputs,
			ErrorCodes:      codes,
			Timeout:         w.timeout.String(),
			Retries:         3,
			Tags:            []string{w.category},
		})
	}
	return activities, nil
}

func schemaMap(schema validation.JSONSchema) (map[string]interface{}, error) {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshal input schema: %w", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode input schema: %w", err)
	}
	return m, nil
}

func updateActivity(path, id, field, value string) error {
	reg, err := registry.LoadRegistry(path)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}
	if err := reg.Update(id, field, value); err != nil {
		return err
	}
	if err := reg.Save(path, time.Now()); err != nil {
		return err
	}
	fmt.Printf("Updated activity %s, field %s to %s\n", id, field, value)
	return nil
}

func validateRegistry(path string) error {
	reg, err := registry.LoadRegistry(path)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}
	if err := reg.Validate(); err != nil {
		return err
	}
	fmt.Printf("Registry validation passed. Found %d activities.\n", len(reg.Activities))
	return nil
}

func help() {
	fmt.Print(`
Usage: registry-updater <command> [flags]

Commands:
  sync      Write or refresh the entries for every lead-engine job worker
  update    Update an existing activity's field
  validate  Validate the registry file
  help      Show this help message

Examples:
  registry-updater sync -path configs/activity-registry.json
  registry-updater update -id qualify-lead -field status -value verified
  registry-updater validate -path configs/activity-registry.json

Use 'registry-updater <command> -h' for more information about a command.
` + "\n")
}
