package scoring

import (
	"fmt"
	"strings"
	"time"

	"lead-engine/internal/common/errors"
	"lead-engine/internal/models"
)

// AuthorityTier maps title keywords to a baseline authority score.
type AuthorityTier struct {
	Name     string
	Score    float64
	Keywords []string
}

// Thresholds are the inclusive lower bounds of the lifecycle bands.
type Thresholds struct {
	Qualified float64
	Nurturing float64
	HighScore float64
}

// Criteria is the process-wide qualification configuration. It is built once
// at startup, validated, and never mutated afterwards.
type Criteria struct {
	BudgetBaselines       map[models.CompanySize]float64
	HighBudgetBonus       float64
	HighBudgetIndustries  []string
	TargetIndustries      []string
	TargetIndustryBonus   float64
	AuthorityTiers        []AuthorityTier // precedence order
	PainIndicators        []string
	PainIndicatorBonus    float64
	DisqualifyingKeywords []string
	DisqualifyingPenalty  float64
	SourceOffsets         map[models.LeadSource]float64
	Thresholds            Thresholds
	NurturingSequence     []models.NurtureStep
}

const (
	NeedBaseline       = 50.0
	TimelineFresh      = 100.0
	TimelineFloor      = 20.0
	TimelineDecayDays  = 30
	IndividualBaseline = 30.0
)

func DefaultCriteria() Criteria {
	return Criteria{
		BudgetBaselines: map[models.CompanySize]float64{
			models.CompanySizeStartup:    30,
			models.CompanySizeSmall:      50,
			models.CompanySizeMedium:     70,
			models.CompanySizeLarge:      85,
			models.CompanySizeEnterprise: 95,
		},
		HighBudgetBonus:      5,
		HighBudgetIndustries: []string{"technology", "finance", "financial services", "healthcare", "pharmaceuticals", "energy", "telecommunications"},
		TargetIndustries:     []string{"technology", "software", "saas", "finance", "healthcare", "manufacturing", "e-commerce"},
		TargetIndustryBonus:  30,
		AuthorityTiers: []AuthorityTier{
			{Name: "executive", Score: 95, Keywords: []string{"ceo", "cto", "cfo", "coo", "cio", "cmo", "chief", "president", "founder", "co-founder", "owner", "partner"}},
			{Name: "vp_director", Score: 80, Keywords: []string{"vp", "vice president", "svp", "evp", "director", "head of", "head"}},
			{Name: "manager", Score: 60, Keywords: []string{"manager", "lead", "supervisor", "principal"}},
			{Name: "individual", Score: IndividualBaseline, Keywords: []string{"engineer", "analyst", "specialist", "coordinator", "associate", "assistant", "representative", "consultant", "developer"}},
		},
		PainIndicators:        []string{"scaling", "scale", "manual process", "automation", "integration", "efficiency", "cost reduction", "compliance", "growth", "migration"},
		PainIndicatorBonus:    10,
		DisqualifyingKeywords: []string{"student", "intern", "competitor", "job seeker", "test"},
		DisqualifyingPenalty:  20,
		SourceOffsets: map[models.LeadSource]float64{
			models.SourceChat:     10,
			models.SourceReferral: 5,
			models.SourceEvent:    5,
			models.SourceEmail:    -10,
		},
		Thresholds: Thresholds{
			Qualified: 75,
			Nurturing: 50,
			HighScore: 85,
		},
		NurturingSequence: []models.NurtureStep{
			{Delay: 24 * time.Hour, Template: "nurture_welcome"},
			{Delay: 72 * time.Hour, Template: "nurture_case_study"},
			{Delay: 7 * 24 * time.Hour, Template: "nurture_demo_offer"},
		},
	}
}

// Validate reports the first inconsistency as a configuration error.
func (c Criteria) Validate() error {
	t := c.Thresholds
	for name, v := range map[string]float64{"qualified": t.Qualified, "nurturing": t.Nurturing, "high_score": t.HighScore} {
		if v < 0 || v > 100 {
			return errors.NewConfigurationError(fmt.Sprintf("%s threshold %.2f outside [0,100]", name, v))
		}
	}
	if t.Qualified < t.Nurturing {
		return errors.NewConfigurationError(fmt.Sprintf(
			"qualified threshold %.2f must be >= nurturing threshold %.2f", t.Qualified, t.Nurturing))
	}
	if t.HighScore < t.Qualified {
		return errors.NewConfigurationError(fmt.Sprintf(
			"high score threshold %.2f must be >= qualified threshold %.2f", t.HighScore, t.Qualified))
	}
	if len(c.AuthorityTiers) == 0 {
		return errors.NewConfigurationError("at least one authority tier is required")
	}
	for _, tier := range c.AuthorityTiers {
		if tier.Score < 0 || tier.Score > 100 {
			return errors.NewConfigurationError(fmt.Sprintf("authority tier %q score outside [0,100]", tier.Name))
		}
	}
	for size, v := range c.BudgetBaselines {
		if v < 0 || v > 100 {
			return errors.NewConfigurationError(fmt.Sprintf("budget baseline for %s outside [0,100]", size))
		}
	}
	for i, step := range c.NurturingSequence {
		if step.Delay < 0 {
			return errors.NewConfigurationError(fmt.Sprintf("nurturing step %d has a negative delay", i+1))
		}
		if strings.TrimSpace(step.Template) == "" {
			return errors.NewConfigurationError(fmt.Sprintf("nurturing step %d has no template", i+1))
		}
	}
	return nil
}
