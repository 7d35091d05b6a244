// Package scoring computes BANT composite scores for captured leads.
package scoring

import (
	"fmt"
	"math"
	"strings"
	"time"

	"lead-engine/internal/models"
)

const (
	budgetWeight    = 0.25
	authorityWeight = 0.30
	needWeight      = 0.30
	timelineWeight  = 0.15

	reasonSeparator = " | "
)

// Engine is a pure scorer. It holds only immutable, pre-normalised criteria.
type Engine struct {
	criteria   Criteria
	highBudget []string
	target     []string
	pain       []string
	disqualify []string
	tiers      []AuthorityTier
}

func NewEngine(criteria Criteria) (*Engine, error) {
	if err := criteria.Validate(); err != nil {
		return nil, err
	}

	tiers := make([]AuthorityTier, len(criteria.AuthorityTiers))
	for i, t := range criteria.AuthorityTiers {
		tiers[i] = AuthorityTier{Name: t.Name, Score: t.Score, Keywords: normalizeAll(t.Keywords)}
	}

	return &Engine{
		criteria:   criteria,
		highBudget: normalizeAll(criteria.HighBudgetIndustries),
		target:     normalizeAll(criteria.TargetIndustries),
		pain:       normalizeAll(criteria.PainIndicators),
		disqualify: normalizeAll(criteria.DisqualifyingKeywords),
		tiers:      tiers,
	}, nil
}

func (e *Engine) Criteria() Criteria {
	return e.criteria
}

// Score computes the BANT score of lead as of now. The result depends only on
// the lead, now truncated to whole days of age, and the criteria.
func (e *Engine) Score(lead *models.Lead, now time.Time) models.BANTScore {
	var reasons []string

	budget := e.budgetScore(lead, &reasons)
	authority := e.authorityScore(lead, &reasons)
	need := e.needScore(lead, &reasons)
	timeline := e.timelineScore(lead, now, &reasons)

	overall := budget*budgetWeight + authority*authorityWeight + need*needWeight + timeline*timelineWeight

	return models.BANTScore{
		Budget:              budget,
		Authority:           authority,
		Need:                need,
		Timeline:            timeline,
		Overall:             round2(clamp(overall)),
		QualificationReason: strings.Join(reasons, reasonSeparator),
	}
}

func (e *Engine) budgetScore(lead *models.Lead, reasons *[]string) float64 {
	size := lead.CompanySize
	base, ok := e.criteria.BudgetBaselines[size]
	if !ok {
		size = models.CompanySizeStartup
		base = e.criteria.BudgetBaselines[size]
	}
	*reasons = append(*reasons, fmt.Sprintf("budget: %s company (%.0f)", strings.ToLower(string(size)), base))

	industry := normalize(lead.Industry)
	if industry != "" && containsIndustry(e.highBudget, industry) {
		base += e.criteria.HighBudgetBonus
		*reasons = append(*reasons, fmt.Sprintf("budget: high-budget industry %s (+%.0f)", industry, e.criteria.HighBudgetBonus))
	}
	return clamp(base)
}

func (e *Engine) authorityScore(lead *models.Lead, reasons *[]string) float64 {
	title := normalize(lead.JobTitle)
	if title == "" {
		*reasons = append(*reasons, fmt.Sprintf("authority: no title (%.0f)", IndividualBaseline))
		return IndividualBaseline
	}

	for _, tier := range e.tiers {
		for _, kw := range tier.Keywords {
			if matchesWord(title, kw) {
				*reasons = append(*reasons, fmt.Sprintf("authority: %s title %q (%.0f)", tier.Name, kw, tier.Score))
				return clamp(tier.Score)
			}
		}
	}

	*reasons = append(*reasons, fmt.Sprintf("authority: individual contributor (%.0f)", IndividualBaseline))
	return IndividualBaseline
}

func (e *Engine) needScore(lead *models.Lead, reasons *[]string) float64 {
	score := NeedBaseline

	industry := normalize(lead.Industry)
	if industry != "" && containsIndustry(e.target, industry) {
		score += e.criteria.TargetIndustryBonus
		*reasons = append(*reasons, fmt.Sprintf("need: target industry %s (+%.0f)", industry, e.criteria.TargetIndustryBonus))
	} else {
		*reasons = append(*reasons, fmt.Sprintf("need: baseline (%.0f)", NeedBaseline))
	}

	text := normalize(lead.Notes + " " + lead.JobTitle)
	for _, indicator := range e.pain {
		if matchesWord(text, indicator) {
			score += e.criteria.PainIndicatorBonus
			*reasons = append(*reasons, fmt.Sprintf("need: pain indicator %q (+%.0f)", indicator, e.criteria.PainIndicatorBonus))
		}
	}
	score = math.Min(score, 100)

	flagged := normalize(lead.JobTitle + " " + lead.Company + " " + lead.Notes)
	for _, kw := range e.disqualify {
		if matchesWord(flagged, kw) {
			score -= e.criteria.DisqualifyingPenalty
			*reasons = append(*reasons, fmt.Sprintf("need: disqualifier %q (-%.0f)", kw, e.criteria.DisqualifyingPenalty))
		}
	}
	return clamp(score)
}

func (e *Engine) timelineScore(lead *models.Lead, now time.Time, reasons *[]string) float64 {
	days := AgeInDays(lead.CreatedAt, now)

	score := TimelineFloor
	if days < TimelineDecayDays {
		score = TimelineFresh - float64(days)*(TimelineFresh-TimelineFloor)/TimelineDecayDays
	}

	offset := e.criteria.SourceOffsets[lead.Source]
	score = clamp(score + offset)

	if offset != 0 {
		*reasons = append(*reasons, fmt.Sprintf("timeline: %d days old via %s (%+.0f) (%.0f)", days, lead.Source, offset, score))
	} else {
		*reasons = append(*reasons, fmt.Sprintf("timeline: %d days old (%.0f)", days, score))
	}
	return score
}

// AgeInDays counts whole days since created; future timestamps count as 0.
func AgeInDays(created, now time.Time) int {
	if created.IsZero() || !now.After(created) {
		return 0
	}
	return int(now.Sub(created) / (24 * time.Hour))
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func normalizeAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if n := normalize(s); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// matchesWord reports whether keyword occurs in text on word boundaries.
func matchesWord(text, keyword string) bool {
	padded := " " + words(text) + " "
	return strings.Contains(padded, " "+words(keyword)+" ")
}

func words(s string) string {
	return strings.Join(strings.Fields(wordSeparators.Replace(s)), " ")
}

var wordSeparators = strings.NewReplacer(",", " ", ".", " ", "/", " ", "&", " ", "(", " ", ")", " ", ";", " ", ":", " ", "-", " ")

func containsIndustry(list []string, industry string) bool {
	for _, candidate := range list {
		if candidate == industry {
			return true
		}
	}
	return false
}
