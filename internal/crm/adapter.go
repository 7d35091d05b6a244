// Package crm defines the capability every external CRM backend implements and
// the canonical record shape adapters translate to and from.
package crm

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"lead-engine/internal/models"
)

// Adapter is implemented once per external system. Calls are synchronous from
// the caller's point of view; retries happen inside the adapter and must stop
// when ctx is done.
type Adapter interface {
	Name() string
	CreateRecord(ctx context.Context, record Record) (string, error)
	UpdateRecord(ctx context.Context, externalID string, updates Fields) (bool, error)
	GetRecord(ctx context.Context, externalID string) (*Record, error)
}

// Canonical field names.
const (
	FieldEmail       = "email"
	FieldFirstName   = "first_name"
	FieldLastName    = "last_name"
	FieldCompany     = "company"
	FieldJobTitle    = "job_title"
	FieldPhone       = "phone"
	FieldWebsite     = "website"
	FieldCompanySize = "company_size"
	FieldIndustry    = "industry"
	FieldSource      = "source"
	FieldStatus      = "status"
	FieldBANTScore   = "bant_score"
	FieldCreatedAt   = "created_at"
	FieldUpdatedAt   = "updated_at"
)

// Record is the canonical lead shape every adapter accepts.
type Record struct {
	Email       string
	FirstName   string
	LastName    string
	Company     string
	JobTitle    string
	Phone       string
	Website     string
	CompanySize string
	Industry    string
	Source      string
	Status      string
	BANTScore   *float64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Fields is a partial canonical update keyed by the Field* names.
type Fields map[string]interface{}

func RecordFromLead(lead *models.Lead) Record {
	r := Record{
		Email:       lead.Email,
		FirstName:   lead.FirstName,
		LastName:    lead.LastName,
		Company:     lead.Company,
		JobTitle:    lead.JobTitle,
		Phone:       lead.Phone,
		Website:     lead.Website,
		CompanySize: string(lead.CompanySize),
		Industry:    lead.Industry,
		Source:      string(lead.Source),
		Status:      string(lead.Status),
		CreatedAt:   lead.CreatedAt,
		UpdatedAt:   lead.UpdatedAt,
	}
	if lead.Score != nil {
		overall := lead.Score.Overall
		r.BANTScore = &overall
	}
	return r
}

// QualificationUpdate is the partial update pushed after a lead is re-scored.
func QualificationUpdate(lead *models.Lead) Fields {
	f := Fields{
		FieldStatus:    string(lead.Status),
		FieldUpdatedAt: lead.UpdatedAt,
	}
	if lead.Score != nil {
		f[FieldBANTScore] = lead.Score.Overall
	}
	return f
}

// Fields returns every non-empty canonical value of r.
func (r Record) Fields() Fields {
	f := Fields{}
	set := func(key, value string) {
		if value != "" {
			f[key] = value
		}
	}
	set(FieldEmail, r.Email)
	set(FieldFirstName, r.FirstName)
	set(FieldLastName, r.LastName)
	set(FieldCompany, r.Company)
	set(FieldJobTitle, r.JobTitle)
	set(FieldPhone, r.Phone)
	set(FieldWebsite, r.Website)
	set(FieldCompanySize, r.CompanySize)
	set(FieldIndustry, r.Industry)
	set(FieldSource, r.Source)
	set(FieldStatus, r.Status)
	if r.BANTScore != nil {
		f[FieldBANTScore] = *r.BANTScore
	}
	if !r.CreatedAt.IsZero() {
		f[FieldCreatedAt] = r.CreatedAt
	}
	if !r.UpdatedAt.IsZero() {
		f[FieldUpdatedAt] = r.UpdatedAt
	}
	return f
}

// RecordFromFields reconstructs a best-effort record; unknown or mistyped
// values are skipped.
func RecordFromFields(f Fields) Record {
	var r Record
	r.Email = stringValue(f[FieldEmail])
	r.FirstName = stringValue(f[FieldFirstName])
	r.LastName = stringValue(f[FieldLastName])
	r.Company = stringValue(f[FieldCompany])
	r.JobTitle = stringValue(f[FieldJobTitle])
	r.Phone = stringValue(f[FieldPhone])
	r.Website = stringValue(f[FieldWebsite])
	r.CompanySize = stringValue(f[FieldCompanySize])
	r.Industry = stringValue(f[FieldIndustry])
	r.Source = stringValue(f[FieldSource])
	r.Status = stringValue(f[FieldStatus])
	if v, ok := floatValue(f[FieldBANTScore]); ok {
		r.BANTScore = &v
	}
	r.CreatedAt = timeValue(f[FieldCreatedAt])
	r.UpdatedAt = timeValue(f[FieldUpdatedAt])
	return r
}

// FieldMap translates canonical field names to a backend's native names.
type FieldMap map[string]string

// ToNative renames canonical keys, drops keys the backend has no column for,
// and formats times as RFC 3339.
func (m FieldMap) ToNative(f Fields) map[string]interface{} {
	out := make(map[string]interface{}, len(f))
	for key, value := range f {
		native, ok := m[key]
		if !ok {
			continue
		}
		if t, ok := value.(time.Time); ok {
			value = t.UTC().Format(time.RFC3339)
		}
		out[native] = value
	}
	return out
}

// FromNative is the inverse of ToNative.
func (m FieldMap) FromNative(native map[string]interface{}) Fields {
	out := Fields{}
	for canonical, nativeKey := range m {
		if v, ok := native[nativeKey]; ok && v != nil {
			out[canonical] = v
		}
	}
	return out
}

func stringValue(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case fmt.Stringer:
		return s.String()
	default:
		return ""
	}
}

func floatValue(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func timeValue(v interface{}) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			return parsed
		}
	}
	return time.Time{}
}
