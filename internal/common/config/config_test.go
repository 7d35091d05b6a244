package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"lead-engine/internal/common/errors"
	"lead-engine/internal/lead/scoring"
	"lead-engine/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const minimalConfig = `
camunda:
  broker_address: localhost:26500
storage:
  driver: memory
`

func TestLoadFromFile_AppliesDefaults(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "lead-engine", cfg.App.Name)
	assert.Equal(t, 10000, cfg.CRM.Sync.TimeoutMs)
	assert.Equal(t, 3, cfg.CRM.Sync.MaxAttempts)
	assert.Equal(t, 15.0, cfg.Qualification.ManualMinutesPerLead)
	assert.Equal(t, "nurture", cfg.Scheduler.Queue)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 10*time.Minute, cfg.Storage.CacheTTL)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFromFile_ZeroQualificationOverrides(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, minimalConfig+`
qualification:
  disqualifying_penalty: 0
  thresholds:
    qualified: 80
`))
	require.NoError(t, err)

	criteria, err := cfg.Qualification.ToCriteria()
	require.NoError(t, err)
	assert.Zero(t, criteria.DisqualifyingPenalty)
	assert.Equal(t, scoring.Thresholds{Qualified: 80, Nurturing: 50, HighScore: 85}, criteria.Thresholds)
}

func TestLoadFromFile_RepositoryConfig(t *testing.T) {
	t.Setenv("DB_USER", "leads")
	t.Setenv("DB_PASSWORD", "secret")

	cfg, err := LoadFromFile(filepath.Join("..", "..", "..", "configs", "config.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "leads", cfg.Database.Postgres.User)
	assert.Equal(t, "secret", cfg.Database.Postgres.Password)
	assert.True(t, cfg.CRM.Docstore.Enabled)
	assert.Contains(t, cfg.Notifications.Templates, "sales_alert")
	assert.Equal(t, 5, GetWorkerConfig(cfg, "crm-lead-sync").MaxJobsActive)

	criteria, err := cfg.Qualification.ToCriteria()
	require.NoError(t, err)
	require.Len(t, criteria.NurturingSequence, 3)
	assert.Equal(t, 72*time.Hour, criteria.NurturingSequence[1].Delay)
}

func TestLoadFromFile_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing broker", "storage:\n  driver: memory\n"},
		{"unknown driver", "camunda:\n  broker_address: x\nstorage:\n  driver: mongo\n"},
		{"postgres without host", "camunda:\n  broker_address: x\n"},
		{"cache without redis", minimalConfig + "  cache_enabled: true\n"},
		{"docstore without elasticsearch", minimalConfig + "crm:\n  docstore:\n    enabled: true\n"},
		{"inverted thresholds", minimalConfig + "qualification:\n  thresholds:\n    qualified: 40\n    nurturing: 60\n    high_score: 90\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromFile(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestCRMConfig_Validate(t *testing.T) {
	var c CRMConfig
	assert.NoError(t, c.Validate())

	c.Zoho.Enabled = true
	c.Records.Enabled = true
	c.Records.Table = "Leads"

	err := c.Validate()
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeConfiguration))
	assert.Contains(t, err.Error(), "crm.zoho.oauth_token")
	assert.Contains(t, err.Error(), "crm.records.api_key")
	assert.NotContains(t, err.Error(), "crm.records.table")
}

func TestQualificationConfig_ToCriteria(t *testing.T) {
	t.Run("overrides merge over defaults", func(t *testing.T) {
		q := QualificationConfig{
			BudgetBaselines: map[string]float64{"startup": 40},
			SourceOffsets:   map[string]float64{"paid_ad": 3},
			Thresholds:      ThresholdsConfig{Qualified: float64Ptr(70), Nurturing: float64Ptr(45), HighScore: float64Ptr(90)},
		}

		c, err := q.ToCriteria()
		require.NoError(t, err)

		assert.Equal(t, 40.0, c.BudgetBaselines[models.CompanySizeStartup])
		assert.Equal(t, 95.0, c.BudgetBaselines[models.CompanySizeEnterprise])
		assert.Equal(t, 3.0, c.SourceOffsets[models.SourcePaidAd])
		assert.Equal(t, 10.0, c.SourceOffsets[models.SourceChat])
		assert.Equal(t, 70.0, c.Thresholds.Qualified)
	})

	t.Run("explicit zero overrides are honored", func(t *testing.T) {
		q := QualificationConfig{
			HighBudgetBonus:      float64Ptr(0),
			TargetIndustryBonus:  float64Ptr(0),
			PainIndicatorBonus:   float64Ptr(0),
			DisqualifyingPenalty: float64Ptr(0),
		}

		c, err := q.ToCriteria()
		require.NoError(t, err)

		assert.Zero(t, c.HighBudgetBonus)
		assert.Zero(t, c.TargetIndustryBonus)
		assert.Zero(t, c.PainIndicatorBonus)
		assert.Zero(t, c.DisqualifyingPenalty)
	})

	t.Run("unset overrides keep defaults", func(t *testing.T) {
		c, err := QualificationConfig{}.ToCriteria()
		require.NoError(t, err)

		assert.Equal(t, scoring.DefaultCriteria().HighBudgetBonus, c.HighBudgetBonus)
		assert.Equal(t, scoring.DefaultCriteria().DisqualifyingPenalty, c.DisqualifyingPenalty)
	})

	t.Run("partial thresholds merge field by field", func(t *testing.T) {
		q := QualificationConfig{Thresholds: ThresholdsConfig{Qualified: float64Ptr(70)}}

		c, err := q.ToCriteria()
		require.NoError(t, err)

		assert.Equal(t, scoring.Thresholds{Qualified: 70, Nurturing: 50, HighScore: 85}, c.Thresholds)
	})

	t.Run("nurturing threshold of zero", func(t *testing.T) {
		c, err := QualificationConfig{Thresholds: ThresholdsConfig{Nurturing: float64Ptr(0)}}.ToCriteria()
		require.NoError(t, err)

		assert.Zero(t, c.Thresholds.Nurturing)
		assert.Equal(t, 75.0, c.Thresholds.Qualified)
	})

	t.Run("unknown keys rejected", func(t *testing.T) {
		_, err := QualificationConfig{BudgetBaselines: map[string]float64{"huge": 99}}.ToCriteria()
		assert.True(t, errors.HasCode(err, errors.ErrCodeConfiguration))

		_, err = QualificationConfig{SourceOffsets: map[string]float64{"carrier_pigeon": 1}}.ToCriteria()
		assert.True(t, errors.HasCode(err, errors.ErrCodeConfiguration))
	})

	t.Run("bad nurture step", func(t *testing.T) {
		_, err := QualificationConfig{NurturingSequence: []models.NurtureStep{{Delay: time.Hour}}}.ToCriteria()
		assert.True(t, errors.HasCode(err, errors.ErrCodeConfiguration))
	})
}

func float64Ptr(v float64) *float64 { return &v }

func TestGetDuration(t *testing.T) {
	assert.Equal(t, 1500*time.Millisecond, GetDuration(1500))
}
