// Package docstore keeps a searchable copy of every lead in an Elasticsearch
// index and exposes it through the crm.Adapter capability.
package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"lead-engine/internal/common/errors"
	httpclient "lead-engine/internal/common/http"
	"lead-engine/internal/common/logger"
	"lead-engine/internal/common/retry"
	"lead-engine/internal/crm"
)

const (
	Name         = "docstore"
	DefaultIndex = "leads"
)

// Fields uses the canonical names unchanged.
var Fields = crm.FieldMap{
	crm.FieldEmail:       crm.FieldEmail,
	crm.FieldFirstName:   crm.FieldFirstName,
	crm.FieldLastName:    crm.FieldLastName,
	crm.FieldCompany:     crm.FieldCompany,
	crm.FieldJobTitle:    crm.FieldJobTitle,
	crm.FieldPhone:       crm.FieldPhone,
	crm.FieldWebsite:     crm.FieldWebsite,
	crm.FieldCompanySize: crm.FieldCompanySize,
	crm.FieldIndustry:    crm.FieldIndustry,
	crm.FieldSource:      crm.FieldSource,
	crm.FieldStatus:      crm.FieldStatus,
	crm.FieldBANTScore:   crm.FieldBANTScore,
	crm.FieldCreatedAt:   crm.FieldCreatedAt,
	crm.FieldUpdatedAt:   crm.FieldUpdatedAt,
}

const indexMapping = `{
	"mappings": {
		"properties": {
			"email": {"type": "keyword"},
			"first_name": {"type": "text"},
			"last_name": {"type": "text"},
			"company": {"type": "text", "fields": {"raw": {"type": "keyword"}}},
			"job_title": {"type": "text"},
			"phone": {"type": "keyword"},
			"website": {"type": "keyword"},
			"company_size": {"type": "keyword"},
			"industry": {"type": "keyword"},
			"source": {"type": "keyword"},
			"status": {"type": "keyword"},
			"bant_score": {"type": "float"},
			"created_at": {"type": "date"},
			"updated_at": {"type": "date"}
		}
	}
}`

type Config struct {
	Index string
	// Refresh is passed through on writes ("true", "false" or "wait_for").
	Refresh string
	Retry   retry.Policy
}

type Adapter struct {
	es      *elasticsearch.Client
	index   string
	refresh string
	policy  retry.Policy
	log     logger.Logger
}

type writeResponse struct {
	ID     string `json:"_id"`
	Result string `json:"result"`
}

type getResponse struct {
	ID     string                 `json:"_id"`
	Found  bool                   `json:"found"`
	Source map[string]interface{} `json:"_source"`
}

func New(es *elasticsearch.Client, cfg Config, log logger.Logger) *Adapter {
	if cfg.Index == "" {
		cfg.Index = DefaultIndex
	}
	return &Adapter{
		es:      es,
		index:   cfg.Index,
		refresh: cfg.Refresh,
		policy:  cfg.Retry.Normalized(),
		log:     log.WithFields(map[string]interface{}{"backend": Name, "index": cfg.Index}),
	}
}

func (a *Adapter) Name() string { return Name }

// EnsureIndex creates the leads index with its mapping when it is missing.
func (a *Adapter) EnsureIndex(ctx context.Context) error {
	exists := esapi.IndicesExistsRequest{Index: []string{a.index}}
	res, err := exists.Do(ctx, a.es)
	if err != nil {
		return a.transportError(ctx, err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}

	create := esapi.IndicesCreateRequest{Index: a.index, Body: bytes.NewReader([]byte(indexMapping))}
	res, err = create.Do(ctx, a.es)
	if err != nil {
		return a.transportError(ctx, err)
	}
	defer res.Body.Close()

	body, _ := io.ReadAll(res.Body)
	if res.StatusCode == http.StatusBadRequest && bytes.Contains(body, []byte("resource_already_exists_exception")) {
		return nil
	}
	if err := httpclient.StatusError(Name, res.StatusCode, body); err != nil {
		return err
	}
	a.log.Info("Created leads index", nil)
	return nil
}

func (a *Adapter) CreateRecord(ctx context.Context, record crm.Record) (string, error) {
	doc, err := json.Marshal(Fields.ToNative(record.Fields()))
	if err != nil {
		return "", errors.NewCRMSchemaError(Name, fmt.Sprintf("failed to marshal document: %v", err))
	}

	return retry.Value(ctx, a.policy, Name, func(ctx context.Context) (string, error) {
		req := esapi.IndexRequest{
			Index:   a.index,
			Body:    bytes.NewReader(doc),
			Refresh: a.refresh,
		}
		var out writeResponse
		if err := a.perform(ctx, req, &out); err != nil {
			return "", err
		}
		if out.ID == "" {
			return "", errors.NewCRMSchemaError(Name, "index response without _id")
		}
		return out.ID, nil
	}, a.onRetry("create"))
}

func (a *Adapter) UpdateRecord(ctx context.Context, externalID string, updates crm.Fields) (bool, error) {
	body, err := json.Marshal(map[string]interface{}{"doc": Fields.ToNative(updates)})
	if err != nil {
		return false, errors.NewCRMSchemaError(Name, fmt.Sprintf("failed to marshal update: %v", err))
	}

	return retry.Value(ctx, a.policy, Name, func(ctx context.Context) (bool, error) {
		req := esapi.UpdateRequest{
			Index:      a.index,
			DocumentID: externalID,
			Body:       bytes.NewReader(body),
			Refresh:    a.refresh,
		}
		var out writeResponse
		if err := a.perform(ctx, req, &out); err != nil {
			return false, notFound(err, externalID)
		}
		return true, nil
	}, a.onRetry("update"))
}

func (a *Adapter) GetRecord(ctx context.Context, externalID string) (*crm.Record, error) {
	return retry.Value(ctx, a.policy, Name, func(ctx context.Context) (*crm.Record, error) {
		req := esapi.GetRequest{Index: a.index, DocumentID: externalID}
		var out getResponse
		if err := a.perform(ctx, req, &out); err != nil {
			return nil, notFound(err, externalID)
		}
		if !out.Found {
			return nil, errors.NewCRMNotFoundError(Name, externalID)
		}
		record := crm.RecordFromFields(Fields.FromNative(out.Source))
		return &record, nil
	}, a.onRetry("get"))
}

type request interface {
	Do(ctx context.Context, transport esapi.Transport) (*esapi.Response, error)
}

func (a *Adapter) perform(ctx context.Context, req request, out interface{}) error {
	res, err := req.Do(ctx, a.es)
	if err != nil {
		return a.transportError(ctx, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return a.transportError(ctx, err)
	}
	if err := httpclient.StatusError(Name, res.StatusCode, body); err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errors.NewCRMSchemaError(Name, fmt.Sprintf("failed to decode response: %v", err))
	}
	return nil
}

func (a *Adapter) transportError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return errors.NewCRMTimeoutError(Name, err)
	}
	return errors.NewCRMTransientError(Name, err)
}

func notFound(err error, externalID string) error {
	if errors.HasCode(err, errors.ErrCodeCRMNotFound) {
		return errors.NewCRMNotFoundError(Name, externalID)
	}
	return err
}

func (a *Adapter) onRetry(op string) retry.OnRetry {
	return func(attempt int, err error) {
		a.log.Warn("Retrying document store request", map[string]interface{}{
			"operation": op,
			"attempt":   attempt,
			"error":     err,
		})
	}
}
