// internal/common/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"lead-engine/internal/common/errors"
	"lead-engine/internal/lead/scoring"
	"lead-engine/internal/models"
)

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig               `mapstructure:"app"`
	Camunda       CamundaConfig           `mapstructure:"camunda"`
	Database      DatabaseConfig          `mapstructure:"database"`
	Storage       StorageConfig           `mapstructure:"storage"`
	Workers       map[string]WorkerConfig `mapstructure:"workers"`
	Qualification QualificationConfig     `mapstructure:"qualification"`
	CRM           CRMConfig               `mapstructure:"crm"`
	Notifications NotificationConfig      `mapstructure:"notifications"`
	Scheduler     SchedulerConfig         `mapstructure:"scheduler"`
	Observability ObservabilityConfig     `mapstructure:"observability"`
	Server        ServerConfig            `mapstructure:"server"`
	Logging       LoggingConfig           `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type CamundaConfig struct {
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	URL       string   `mapstructure:"url"` // Single URL for backwards compatibility
}

// GetURL returns the first address or the URL field
func (e ElasticsearchConfig) GetURL() string {
	if e.URL != "" {
		return e.URL
	}
	if len(e.Addresses) > 0 {
		return e.Addresses[0]
	}
	return ""
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// StorageConfig selects the lead store implementation.
type StorageConfig struct {
	Driver   string        `mapstructure:"driver"` // postgres | memory
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
	// CacheEnabled puts the Redis read-through cache in front of the store.
	CacheEnabled bool `mapstructure:"cache_enabled"`
}

// WorkerConfig holds the core settings applicable to every worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"`     // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"` // For error handling
}

// --- Lead qualification ---

type AuthorityTierConfig struct {
	Name     string   `mapstructure:"name"`
	Score    float64  `mapstructure:"score"`
	Keywords []string `mapstructure:"keywords"`
}

// ThresholdsConfig fields are merged one by one; unset fields keep the default.
type ThresholdsConfig struct {
	Qualified *float64 `mapstructure:"qualified"`
	Nurturing *float64 `mapstructure:"nurturing"`
	HighScore *float64 `mapstructure:"high_score"`
}

// QualificationConfig overrides the built-in scoring criteria. Empty fields keep
// the defaults. Scalar overrides are pointers so an explicit 0 is honored.
type QualificationConfig struct {
	BudgetBaselines       map[string]float64    `mapstructure:"budget_baselines"`
	HighBudgetBonus       *float64              `mapstructure:"high_budget_bonus"`
	HighBudgetIndustries  []string              `mapstructure:"high_budget_industries"`
	TargetIndustries      []string              `mapstructure:"target_industries"`
	TargetIndustryBonus   *float64              `mapstructure:"target_industry_bonus"`
	AuthorityTiers        []AuthorityTierConfig `mapstructure:"authority_tiers"`
	PainIndicators        []string              `mapstructure:"pain_indicators"`
	PainIndicatorBonus    *float64              `mapstructure:"pain_indicator_bonus"`
	DisqualifyingKeywords []string              `mapstructure:"disqualifying_keywords"`
	DisqualifyingPenalty  *float64              `mapstructure:"disqualifying_penalty"`
	SourceOffsets         map[string]float64    `mapstructure:"source_offsets"`
	Thresholds            ThresholdsConfig      `mapstructure:"thresholds"`
	NurturingSequence     []models.NurtureStep  `mapstructure:"nurturing_sequence"`
	ManualMinutesPerLead  float64               `mapstructure:"manual_minutes_per_lead"`
	DefaultPhoneRegion    string                `mapstructure:"default_phone_region"`
}

// ToCriteria merges the configured values over scoring.DefaultCriteria and
// validates the result.
func (q QualificationConfig) ToCriteria() (scoring.Criteria, error) {
	c := scoring.DefaultCriteria()

	for key, score := range q.BudgetBaselines {
		size := models.ParseCompanySize(key)
		if size == "" {
			return c, errors.NewConfigurationError(fmt.Sprintf("qualification.budget_baselines: unknown company size %q", key))
		}
		c.BudgetBaselines[size] = score
	}
	setFloat(&c.HighBudgetBonus, q.HighBudgetBonus)
	if len(q.HighBudgetIndustries) > 0 {
		c.HighBudgetIndustries = q.HighBudgetIndustries
	}
	if len(q.TargetIndustries) > 0 {
		c.TargetIndustries = q.TargetIndustries
	}
	setFloat(&c.TargetIndustryBonus, q.TargetIndustryBonus)
	if len(q.AuthorityTiers) > 0 {
		tiers := make([]scoring.AuthorityTier, len(q.AuthorityTiers))
		for i, t := range q.AuthorityTiers {
			tiers[i] = scoring.AuthorityTier{Name: t.Name, Score: t.Score, Keywords: t.Keywords}
		}
		c.AuthorityTiers = tiers
	}
	if len(q.PainIndicators) > 0 {
		c.PainIndicators = q.PainIndicators
	}
	setFloat(&c.PainIndicatorBonus, q.PainIndicatorBonus)
	if len(q.DisqualifyingKeywords) > 0 {
		c.DisqualifyingKeywords = q.DisqualifyingKeywords
	}
	setFloat(&c.DisqualifyingPenalty, q.DisqualifyingPenalty)
	for key, offset := range q.SourceOffsets {
		src, ok := models.ParseLeadSource(key)
		if !ok {
			return c, errors.NewConfigurationError(fmt.Sprintf("qualification.source_offsets: unknown source %q", key))
		}
		c.SourceOffsets[src] = offset
	}
	setFloat(&c.Thresholds.Qualified, q.Thresholds.Qualified)
	setFloat(&c.Thresholds.Nurturing, q.Thresholds.Nurturing)
	setFloat(&c.Thresholds.HighScore, q.Thresholds.HighScore)
	if len(q.NurturingSequence) > 0 {
		c.NurturingSequence = q.NurturingSequence
	}

	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

func setFloat(dst, override *float64) {
	if override != nil {
		*dst = *override
	}
}

// --- CRM backends ---

type CRMSyncConfig struct {
	TimeoutMs    int `mapstructure:"timeout_ms"`
	MaxAttempts  int `mapstructure:"max_attempts"`
	RetryDelayMs int `mapstructure:"retry_delay_ms"`
}

type ZohoConfig struct {
	Enabled   bool    `mapstructure:"enabled"`
	BaseURL   string  `mapstructure:"base_url"`
	AuthToken string  `mapstructure:"oauth_token"`
	Module    string  `mapstructure:"module"`
	TimeoutMs int     `mapstructure:"timeout_ms"`
	RateLimit float64 `mapstructure:"rate_limit"`
}

type RecordsConfig struct {
	Enabled   bool    `mapstructure:"enabled"`
	BaseURL   string  `mapstructure:"base_url"`
	APIKey    string  `mapstructure:"api_key"`
	BaseID    string  `mapstructure:"base_id"`
	Table     string  `mapstructure:"table"`
	TimeoutMs int     `mapstructure:"timeout_ms"`
	RateLimit float64 `mapstructure:"rate_limit"`
}

// DocstoreConfig reuses database.elasticsearch for the connection.
type DocstoreConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Index   string `mapstructure:"index"`
	Refresh string `mapstructure:"refresh"`
}

type CRMConfig struct {
	Sync     CRMSyncConfig  `mapstructure:"sync"`
	Zoho     ZohoConfig     `mapstructure:"zoho"`
	Records  RecordsConfig  `mapstructure:"records"`
	Docstore DocstoreConfig `mapstructure:"docstore"`
}

// Validate reports an enabled backend without credentials.
func (c CRMConfig) Validate() error {
	var missing []string
	if c.Zoho.Enabled && c.Zoho.AuthToken == "" {
		missing = append(missing, "crm.zoho.oauth_token")
	}
	if c.Records.Enabled {
		if c.Records.APIKey == "" {
			missing = append(missing, "crm.records.api_key")
		}
		if c.Records.BaseID == "" {
			missing = append(missing, "crm.records.base_id")
		}
		if c.Records.Table == "" {
			missing = append(missing, "crm.records.table")
		}
	}
	if len(missing) > 0 {
		return errors.NewConfigurationError("missing CRM credentials: " + strings.Join(missing, ", "))
	}
	return nil
}

// --- Notifications ---

// NotificationConfig holds settings for the event sinks.
type NotificationConfig struct {
	Email struct {
		Enabled    bool   `mapstructure:"enabled"`
		FromEmail  string `mapstructure:"from_email"`
		SalesInbox string `mapstructure:"sales_inbox"`
	} `mapstructure:"email"`
	SMS struct {
		Enabled    bool   `mapstructure:"enabled"`
		SalesPhone string `mapstructure:"sales_phone"`
		SenderID   string `mapstructure:"sender_id"`
	} `mapstructure:"sms"`
	AWS struct {
		Region string `mapstructure:"region"`
	} `mapstructure:"aws"`
	AMQP struct {
		Enabled  bool   `mapstructure:"enabled"`
		URL      string `mapstructure:"url"`
		Exchange string `mapstructure:"exchange"`
	} `mapstructure:"amqp"`
	// Templates maps a template name to its subject and body with {{key}}
	// placeholders.
	Templates map[string]TemplateConfig `mapstructure:"templates"`
}

type TemplateConfig struct {
	Subject string `mapstructure:"subject"`
	Body    string `mapstructure:"body"`
}

// SchedulerConfig configures the delayed nurturing queue.
type SchedulerConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Queue       string `mapstructure:"queue"`
	Concurrency int    `mapstructure:"concurrency"`
	MaxRetry    int    `mapstructure:"max_retry"`
}

type ObservabilityConfig struct {
	ServiceName    string  `mapstructure:"service_name"`
	JaegerEndpoint string  `mapstructure:"jaeger_endpoint"`
	SampleRatio    float64 `mapstructure:"sample_ratio"`
}

// ServerConfig is the operational HTTP endpoint (health, readiness, metrics).
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
