// Package zoho implements the crm.Adapter capability against the Zoho CRM v3
// records API.
package zoho

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"lead-engine/internal/common/errors"
	httpclient "lead-engine/internal/common/http"
	"lead-engine/internal/common/logger"
	"lead-engine/internal/common/retry"
	"lead-engine/internal/crm"
)

const (
	Name           = "zoho"
	DefaultBaseURL = "https://www.zohoapis.com/crm/v3"
	DefaultModule  = "Contacts"
)

// Fields maps canonical names to Zoho API names. Status and score live in
// custom fields on the Contacts module.
var Fields = crm.FieldMap{
	crm.FieldEmail:       "Email",
	crm.FieldFirstName:   "First_Name",
	crm.FieldLastName:    "Last_Name",
	crm.FieldCompany:     "Company",
	crm.FieldJobTitle:    "Title",
	crm.FieldPhone:       "Phone",
	crm.FieldWebsite:     "Website",
	crm.FieldCompanySize: "Company_Size",
	crm.FieldIndustry:    "Industry",
	crm.FieldSource:      "Lead_Source",
	crm.FieldStatus:      "Lead_Status",
	crm.FieldBANTScore:   "BANT_Score",
}

type Config struct {
	BaseURL    string
	OAuthToken string
	Module     string
	Timeout    time.Duration
	RateLimit  float64
	Retry      retry.Policy
}

type Adapter struct {
	baseURL string
	module  string
	client  *httpclient.Client
	policy  retry.Policy
	log     logger.Logger
}

type writeResponse struct {
	Data []struct {
		Code    string `json:"code"`
		Details struct {
			ID string `json:"id"`
		} `json:"details"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"data"`
}

type recordsResponse struct {
	Data []map[string]interface{} `json:"data"`
}

func New(cfg Config, log logger.Logger) *Adapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Module == "" {
		cfg.Module = DefaultModule
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Adapter{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		module:  cfg.Module,
		client: httpclient.NewClient(cfg.Timeout,
			httpclient.WithBackend(Name),
			httpclient.WithHeader("Authorization", "Zoho-oauthtoken "+cfg.OAuthToken),
			httpclient.WithRateLimit(cfg.RateLimit, 1),
		),
		policy: cfg.Retry.Normalized(),
		log:    log.WithFields(map[string]interface{}{"backend": Name}),
	}
}

func (a *Adapter) Name() string { return Name }

// CreateRecord returns the id of an existing contact with the same email instead
// of creating a duplicate.
func (a *Adapter) CreateRecord(ctx context.Context, record crm.Record) (string, error) {
	if record.Email != "" {
		existing, err := a.searchByEmail(ctx, record.Email)
		if err != nil {
			return "", err
		}
		if existing != "" {
			a.log.Info("Contact already present in Zoho", map[string]interface{}{"externalId": existing})
			return existing, nil
		}
	}

	payload := map[string]interface{}{
		"data":    []map[string]interface{}{Fields.ToNative(record.Fields())},
		"trigger": []string{},
	}

	return retry.Value(ctx, a.policy, Name, func(ctx context.Context) (string, error) {
		var resp writeResponse
		if _, err := a.client.DoJSON(ctx, http.MethodPost, a.moduleURL(), payload, &resp); err != nil {
			return "", err
		}
		if len(resp.Data) == 0 {
			return "", errors.NewCRMSchemaError(Name, "no data in response")
		}
		if !strings.EqualFold(resp.Data[0].Status, "success") {
			return "", errors.NewCRMSchemaError(Name, fmt.Sprintf("contact creation failed: %s", resp.Data[0].Message))
		}
		return resp.Data[0].Details.ID, nil
	}, a.onRetry("create"))
}

func (a *Adapter) UpdateRecord(ctx context.Context, externalID string, updates crm.Fields) (bool, error) {
	payload := map[string]interface{}{
		"data": []map[string]interface{}{Fields.ToNative(updates)},
	}

	return retry.Value(ctx, a.policy, Name, func(ctx context.Context) (bool, error) {
		var resp writeResponse
		if _, err := a.client.DoJSON(ctx, http.MethodPut, a.recordURL(externalID), payload, &resp); err != nil {
			return false, a.notFound(err, externalID)
		}
		if len(resp.Data) == 0 {
			return false, errors.NewCRMSchemaError(Name, "no data in response")
		}
		if !strings.EqualFold(resp.Data[0].Status, "success") {
			return false, errors.NewCRMSchemaError(Name, fmt.Sprintf("contact update failed: %s", resp.Data[0].Message))
		}
		return true, nil
	}, a.onRetry("update"))
}

func (a *Adapter) GetRecord(ctx context.Context, externalID string) (*crm.Record, error) {
	return retry.Value(ctx, a.policy, Name, func(ctx context.Context) (*crm.Record, error) {
		var resp recordsResponse
		status, err := a.client.DoJSON(ctx, http.MethodGet, a.recordURL(externalID), nil, &resp)
		if err != nil {
			return nil, a.notFound(err, externalID)
		}
		if status == http.StatusNoContent || len(resp.Data) == 0 {
			return nil, errors.NewCRMNotFoundError(Name, externalID)
		}
		record := crm.RecordFromFields(Fields.FromNative(resp.Data[0]))
		return &record, nil
	}, a.onRetry("get"))
}

// searchByEmail returns "" when no contact matches. Zoho answers an empty search
// with 204 No Content.
func (a *Adapter) searchByEmail(ctx context.Context, email string) (string, error) {
	searchURL := fmt.Sprintf("%s/search?email=%s", a.moduleURL(), url.QueryEscape(email))

	return retry.Value(ctx, a.policy, Name, func(ctx context.Context) (string, error) {
		var resp recordsResponse
		status, err := a.client.DoJSON(ctx, http.MethodGet, searchURL, nil, &resp)
		if err != nil {
			return "", err
		}
		if status == http.StatusNoContent || len(resp.Data) == 0 {
			return "", nil
		}
		id, _ := resp.Data[0]["id"].(string)
		return id, nil
	}, a.onRetry("search"))
}

func (a *Adapter) moduleURL() string {
	return a.baseURL + "/" + a.module
}

func (a *Adapter) recordURL(externalID string) string {
	return a.moduleURL() + "/" + url.PathEscape(externalID)
}

func (a *Adapter) notFound(err error, externalID string) error {
	if errors.HasCode(err, errors.ErrCodeCRMNotFound) {
		return errors.NewCRMNotFoundError(Name, externalID)
	}
	return err
}

func (a *Adapter) onRetry(op string) retry.OnRetry {
	return func(attempt int, err error) {
		a.log.Warn("Retrying Zoho request", map[string]interface{}{
			"operation": op,
			"attempt":   attempt,
			"error":     err,
		})
	}
}
