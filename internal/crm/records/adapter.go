// Package records implements the crm.Adapter capability against an
// Airtable-style table API (/v0/{base}/{table}).
package records

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"lead-engine/internal/common/errors"
	httpclient "lead-engine/internal/common/http"
	"lead-engine/internal/common/logger"
	"lead-engine/internal/common/retry"
	"lead-engine/internal/crm"
)

const (
	Name           = "records"
	DefaultBaseURL = "https://api.airtable.com"
	// DefaultRateLimit is the documented per-base limit of the hosted API.
	DefaultRateLimit = 5.0
)

var Fields = crm.FieldMap{
	crm.FieldEmail:       "Email",
	crm.FieldFirstName:   "First Name",
	crm.FieldLastName:    "Last Name",
	crm.FieldCompany:     "Company",
	crm.FieldJobTitle:    "Job Title",
	crm.FieldPhone:       "Phone",
	crm.FieldWebsite:     "Website",
	crm.FieldCompanySize: "Company Size",
	crm.FieldIndustry:    "Industry",
	crm.FieldSource:      "Source",
	crm.FieldStatus:      "Status",
	crm.FieldBANTScore:   "BANT Score",
	crm.FieldCreatedAt:   "Created At",
	crm.FieldUpdatedAt:   "Updated At",
}

// recordSchema is the minimum shape every record response must have.
const recordSchema = `{
	"type": "object",
	"required": ["id", "fields"],
	"properties": {
		"id": {"type": "string", "minLength": 1},
		"createdTime": {"type": "string"},
		"fields": {
			"type": "object",
			"properties": {
				"Email": {"type": "string"},
				"BANT Score": {"type": "number", "minimum": 0, "maximum": 100}
			}
		}
	}
}`

type Config struct {
	BaseURL   string
	APIKey    string
	BaseID    string
	Table     string
	Timeout   time.Duration
	RateLimit float64
	Retry     retry.Policy
}

type Adapter struct {
	tableURL string
	client   *httpclient.Client
	schema   *gojsonschema.Schema
	policy   retry.Policy
	log      logger.Logger
}

type record struct {
	ID          string                 `json:"id"`
	CreatedTime string                 `json:"createdTime,omitempty"`
	Fields      map[string]interface{} `json:"fields"`
}

func New(cfg Config, log logger.Logger) (*Adapter, error) {
	if cfg.BaseID == "" || cfg.Table == "" {
		return nil, errors.NewConfigurationError("records backend requires base id and table")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = DefaultRateLimit
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(recordSchema))
	if err != nil {
		return nil, errors.NewConfigurationError(fmt.Sprintf("invalid record schema: %v", err))
	}

	return &Adapter{
		tableURL: fmt.Sprintf("%s/v0/%s/%s", strings.TrimRight(cfg.BaseURL, "/"),
			url.PathEscape(cfg.BaseID), url.PathEscape(cfg.Table)),
		client: httpclient.NewClient(cfg.Timeout,
			httpclient.WithBackend(Name),
			httpclient.WithHeader("Authorization", "Bearer "+cfg.APIKey),
			httpclient.WithRateLimit(cfg.RateLimit, int(cfg.RateLimit)),
		),
		schema: schema,
		policy: cfg.Retry.Normalized(),
		log:    log.WithFields(map[string]interface{}{"backend": Name}),
	}, nil
}

func (a *Adapter) Name() string { return Name }

func (a *Adapter) CreateRecord(ctx context.Context, rec crm.Record) (string, error) {
	payload := map[string]interface{}{
		"fields":   Fields.ToNative(rec.Fields()),
		"typecast": true,
	}

	return retry.Value(ctx, a.policy, Name, func(ctx context.Context) (string, error) {
		out, err := a.do(ctx, http.MethodPost, a.tableURL, payload)
		if err != nil {
			return "", err
		}
		return out.ID, nil
	}, a.onRetry("create"))
}

func (a *Adapter) UpdateRecord(ctx context.Context, externalID string, updates crm.Fields) (bool, error) {
	payload := map[string]interface{}{
		"fields":   Fields.ToNative(updates),
		"typecast": true,
	}

	return retry.Value(ctx, a.policy, Name, func(ctx context.Context) (bool, error) {
		if _, err := a.do(ctx, http.MethodPatch, a.recordURL(externalID), payload); err != nil {
			return false, notFound(err, externalID)
		}
		return true, nil
	}, a.onRetry("update"))
}

func (a *Adapter) GetRecord(ctx context.Context, externalID string) (*crm.Record, error) {
	return retry.Value(ctx, a.policy, Name, func(ctx context.Context) (*crm.Record, error) {
		out, err := a.do(ctx, http.MethodGet, a.recordURL(externalID), nil)
		if err != nil {
			return nil, notFound(err, externalID)
		}
		rec := crm.RecordFromFields(Fields.FromNative(out.Fields))
		return &rec, nil
	}, a.onRetry("get"))
}

func (a *Adapter) do(ctx context.Context, method, target string, body interface{}) (*record, error) {
	var raw json.RawMessage
	if _, err := a.client.DoJSON(ctx, method, target, body, &raw); err != nil {
		return nil, err
	}
	if err := a.validate(raw); err != nil {
		return nil, err
	}

	var out record
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, errors.NewCRMSchemaError(Name, fmt.Sprintf("failed to decode record: %v", err))
	}
	return &out, nil
}

func (a *Adapter) validate(raw json.RawMessage) error {
	if len(raw) == 0 {
		return errors.NewCRMSchemaError(Name, "empty response")
	}

	result, err := a.schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return errors.NewCRMSchemaError(Name, fmt.Sprintf("validation error: %v", err))
	}
	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			errs[i] = desc.String()
		}
		return errors.NewCRMSchemaError(Name, strings.Join(errs, "; "))
	}
	return nil
}

func (a *Adapter) recordURL(externalID string) string {
	return a.tableURL + "/" + url.PathEscape(externalID)
}

func notFound(err error, externalID string) error {
	if errors.HasCode(err, errors.ErrCodeCRMNotFound) {
		return errors.NewCRMNotFoundError(Name, externalID)
	}
	return err
}

func (a *Adapter) onRetry(op string) retry.OnRetry {
	return func(attempt int, err error) {
		a.log.Warn("Retrying records request", map[string]interface{}{
			"operation": op,
			"attempt":   attempt,
			"error":     err,
		})
	}
}
