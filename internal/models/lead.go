package models

import (
	"strings"
	"time"
)

type CompanySize string

const (
	CompanySizeStartup    CompanySize = "STARTUP"
	CompanySizeSmall      CompanySize = "SMALL"
	CompanySizeMedium     CompanySize = "MEDIUM"
	CompanySizeLarge      CompanySize = "LARGE"
	CompanySizeEnterprise CompanySize = "ENTERPRISE"
)

// ParseCompanySize is case-insensitive; unknown or empty values yield "".
func ParseCompanySize(s string) CompanySize {
	switch CompanySize(strings.ToUpper(strings.TrimSpace(s))) {
	case CompanySizeStartup:
		return CompanySizeStartup
	case CompanySizeSmall:
		return CompanySizeSmall
	case CompanySizeMedium:
		return CompanySizeMedium
	case CompanySizeLarge:
		return CompanySizeLarge
	case CompanySizeEnterprise:
		return CompanySizeEnterprise
	default:
		return ""
	}
}

type LeadSource string

const (
	SourceWebsiteForm  LeadSource = "WEBSITE_FORM"
	SourceEmail        LeadSource = "EMAIL"
	SourceReferral     LeadSource = "REFERRAL"
	SourceChat         LeadSource = "CHAT"
	SourceSocialMedia  LeadSource = "SOCIAL_MEDIA"
	SourceEvent        LeadSource = "EVENT"
	SourcePaidAd       LeadSource = "PAID_AD"
	SourceColdOutreach LeadSource = "COLD_OUTREACH"
)

var knownSources = map[LeadSource]bool{
	SourceWebsiteForm:  true,
	SourceEmail:        true,
	SourceReferral:     true,
	SourceChat:         true,
	SourceSocialMedia:  true,
	SourceEvent:        true,
	SourcePaidAd:       true,
	SourceColdOutreach: true,
}

// ParseLeadSource accepts any case and "-" or " " separators.
func ParseLeadSource(s string) (LeadSource, bool) {
	normalized := strings.ToUpper(strings.TrimSpace(s))
	normalized = strings.NewReplacer("-", "_", " ", "_").Replace(normalized)
	src := LeadSource(normalized)
	return src, knownSources[src]
}

type LeadStatus string

const (
	StatusNew         LeadStatus = "NEW"
	StatusQualified   LeadStatus = "QUALIFIED"
	StatusNurturing   LeadStatus = "NURTURING"
	StatusUnqualified LeadStatus = "UNQUALIFIED"
)

// BANTScore is immutable once computed. Overall is derived from the four
// sub-scores with fixed weights.
type BANTScore struct {
	Budget              float64 `json:"budget"`
	Authority           float64 `json:"authority"`
	Need                float64 `json:"need"`
	Timeline            float64 `json:"timeline"`
	Overall             float64 `json:"overall"`
	QualificationReason string  `json:"qualification_reason"`
}

// Lead is the canonical lead record. Status is only ever written from a
// BANTScore classification.
type Lead struct {
	ID          string            `json:"id"`
	Email       string            `json:"email"`
	FirstName   string            `json:"first_name"`
	LastName    string            `json:"last_name"`
	Company     string            `json:"company"`
	JobTitle    string            `json:"job_title"`
	Phone       string            `json:"phone,omitempty"`
	Website     string            `json:"website,omitempty"`
	CompanySize CompanySize       `json:"company_size,omitempty"`
	Industry    string            `json:"industry,omitempty"`
	Notes       string            `json:"notes,omitempty"`
	Source      LeadSource        `json:"source"`
	Status      LeadStatus        `json:"status"`
	Score       *BANTScore        `json:"bant_score,omitempty"`
	QualifiedAt *time.Time        `json:"qualified_at,omitempty"`
	ExternalIDs map[string]string `json:"external_ids,omitempty"`
	Active      bool              `json:"active"`
	ClosedAt    *time.Time        `json:"closed_at,omitempty"`
	CloseReason string            `json:"close_reason,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

func (l *Lead) FullName() string {
	return strings.TrimSpace(l.FirstName + " " + l.LastName)
}

// Clone returns a deep copy so stores never share mutable state with callers.
func (l *Lead) Clone() *Lead {
	if l == nil {
		return nil
	}
	c := *l
	if l.Score != nil {
		s := *l.Score
		c.Score = &s
	}
	if l.QualifiedAt != nil {
		t := *l.QualifiedAt
		c.QualifiedAt = &t
	}
	if l.ClosedAt != nil {
		t := *l.ClosedAt
		c.ClosedAt = &t
	}
	if l.ExternalIDs != nil {
		c.ExternalIDs = make(map[string]string, len(l.ExternalIDs))
		for k, v := range l.ExternalIDs {
			c.ExternalIDs[k] = v
		}
	}
	return &c
}

// RawLead is the unvalidated capture input. Field order matters: validation
// reports the first missing required field in declaration order.
type RawLead struct {
	Email       string `json:"email" validate:"required,email"`
	FirstName   string `json:"first_name" validate:"required"`
	LastName    string `json:"last_name" validate:"required"`
	Company     string `json:"company" validate:"required"`
	JobTitle    string `json:"job_title" validate:"required"`
	Phone       string `json:"phone,omitempty"`
	Website     string `json:"website,omitempty" validate:"omitempty,url"`
	CompanySize string `json:"company_size,omitempty"`
	Industry    string `json:"industry,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

// ScoreRecord is one entry of a lead's qualification history.
type ScoreRecord struct {
	LeadID   string     `json:"lead_id"`
	Score    BANTScore  `json:"score"`
	Status   LeadStatus `json:"status"`
	ScoredAt time.Time  `json:"scored_at"`
}

// NurtureStep is a single {delay, template} entry of a nurturing sequence.
type NurtureStep struct {
	Delay    time.Duration `json:"delay" mapstructure:"delay"`
	Template string        `json:"template" mapstructure:"template"`
}

// CRMSyncResult is the per-backend outcome of a sync call.
type CRMSyncResult struct {
	Backend      string    `json:"backend"`
	Success      bool      `json:"success"`
	ExternalID   string    `json:"external_id,omitempty"`
	ErrorCode    string    `json:"error_code,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Err          error     `json:"-"`
	Timestamp    time.Time `json:"timestamp"`
}
