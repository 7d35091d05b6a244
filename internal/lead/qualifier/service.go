// Package qualifier sequences lead capture, scoring, classification and CRM
// synchronisation.
package qualifier

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"lead-engine/internal/common/errors"
	"lead-engine/internal/common/logger"
	"lead-engine/internal/common/metrics"
	"lead-engine/internal/common/phone"
	"lead-engine/internal/crm"
	"lead-engine/internal/lead/lifecycle"
	"lead-engine/internal/lead/scoring"
	"lead-engine/internal/lead/store"
	"lead-engine/internal/models"
	"lead-engine/internal/notify"
)

const DefaultManualMinutesPerLead = 15.0

// Syncer propagates leads to the configured CRM backends.
type Syncer interface {
	SyncCreateMissing(ctx context.Context, lead *models.Lead) map[string]models.CRMSyncResult
	SyncUpdate(ctx context.Context, externalIDs map[string]string, updates crm.Fields) map[string]bool
}

// NurtureScheduler delivers each nurturing step after its delay.
type NurtureScheduler interface {
	Schedule(ctx context.Context, lead *models.Lead, steps []models.NurtureStep) error
}

type Service struct {
	store      store.Store
	engine     *scoring.Engine
	classifier *lifecycle.Classifier
	syncer     Syncer
	publisher  notify.Publisher
	scheduler  NurtureScheduler
	phone      *phone.Normalizer
	validate   *validator.Validate
	locks      *keyedMutex

	manualMinutes float64
	logger        logger.Logger
	now           func() time.Time
	newID         func() string
}

type Option func(*Service)

func WithSyncer(s Syncer) Option {
	return func(svc *Service) { svc.syncer = s }
}

func WithPublisher(p notify.Publisher) Option {
	return func(svc *Service) { svc.publisher = p }
}

func WithScheduler(s NurtureScheduler) Option {
	return func(svc *Service) { svc.scheduler = s }
}

// WithPhoneRegion sets the region used to parse numbers without a country code.
func WithPhoneRegion(region string) Option {
	return func(svc *Service) { svc.phone = phone.NewNormalizer(region) }
}

func WithManualMinutesPerLead(minutes float64) Option {
	return func(svc *Service) {
		if minutes > 0 {
			svc.manualMinutes = minutes
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(svc *Service) { svc.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(svc *Service) { svc.newID = newID }
}

// NewService builds the scoring engine and classifier from criteria, failing
// with a configuration error when the criteria are invalid.
func NewService(st store.Store, criteria scoring.Criteria, log logger.Logger, opts ...Option) (*Service, error) {
	engine, err := scoring.NewEngine(criteria)
	if err != nil {
		return nil, err
	}
	classifier, err := lifecycle.FromCriteria(criteria)
	if err != nil {
		return nil, err
	}

	svc := &Service{
		store:         st,
		engine:        engine,
		classifier:    classifier,
		phone:         phone.NewNormalizer(phone.DefaultRegion),
		validate:      newValidator(),
		locks:         newKeyedMutex(),
		manualMinutes: DefaultManualMinutesPerLead,
		logger:        log.WithFields(map[string]interface{}{"component": "qualifier"}),
		now:           time.Now,
		newID:         uuid.NewString,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Capture validates raw, normalises it and persists a NEW lead.
func (s *Service) Capture(ctx context.Context, raw models.RawLead, source models.LeadSource) (string, error) {
	lead, err := s.capture(ctx, raw, source)
	if err != nil {
		metrics.LeadsRejected.WithLabelValues(string(errors.CodeOf(err))).Inc()
		return "", err
	}

	metrics.LeadsCaptured.WithLabelValues(string(lead.Source)).Inc()
	s.logger.Info("lead captured", map[string]interface{}{
		"leadId": lead.ID,
		"source": string(lead.Source),
	})
	return lead.ID, nil
}

func (s *Service) capture(ctx context.Context, raw models.RawLead, source models.LeadSource) (*models.Lead, error) {
	raw = trimRaw(raw)
	if err := s.validateRaw(raw); err != nil {
		return nil, err
	}

	src, ok := models.ParseLeadSource(string(source))
	if !ok {
		return nil, errors.NewValidationError("source", "unknown lead source: "+string(source))
	}

	email := store.NormalizeEmail(raw.Email)
	unlock := s.locks.Lock("email:" + email)
	defer unlock()

	if _, err := s.store.GetByEmail(ctx, email); err == nil {
		return nil, errors.NewDuplicateLeadError(email)
	} else if !errors.HasCode(err, errors.ErrCodeLeadNotFound) {
		return nil, err
	}

	now := s.now().UTC()
	lead := &models.Lead{
		ID:          s.newID(),
		Email:       email,
		FirstName:   raw.FirstName,
		LastName:    raw.LastName,
		Company:     raw.Company,
		JobTitle:    raw.JobTitle,
		Phone:       s.phone.E164(raw.Phone),
		Website:     raw.Website,
		CompanySize: models.ParseCompanySize(raw.CompanySize),
		Industry:    raw.Industry,
		Notes:       raw.Notes,
		Source:      src,
		Status:      models.StatusNew,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.store.Insert(ctx, lead); err != nil {
		return nil, err
	}
	return lead, nil
}

type ImportFailure struct {
	Index int    `json:"index"`
	Email string `json:"email"`
	Code  string `json:"error_code"`
	Err   error  `json:"-"`
}

type BulkImportResult struct {
	Total    int             `json:"total"`
	LeadIDs  []string        `json:"lead_ids"`
	Failures []ImportFailure `json:"failures"`
}

// BulkImport captures every entry independently, collecting failures. A
// cancelled ctx stops the batch; unprocessed entries are recorded as failures
// and ctx.Err() is returned with the partial result.
func (s *Service) BulkImport(ctx context.Context, raws []models.RawLead, source models.LeadSource) (*BulkImportResult, error) {
	result := &BulkImportResult{
		Total:    len(raws),
		LeadIDs:  []string{},
		Failures: []ImportFailure{},
	}

	for i, raw := range raws {
		if err := ctx.Err(); err != nil {
			for j := i; j < len(raws); j++ {
				result.Failures = append(result.Failures, ImportFailure{
					Index: j,
					Email: raws[j].Email,
					Code:  string(errors.ErrCodeInternal),
					Err:   err,
				})
			}
			s.logger.Warn("bulk import cancelled", map[string]interface{}{
				"processed": i,
				"total":     len(raws),
			})
			return result, err
		}

		id, err := s.Capture(ctx, raw, source)
		if err != nil {
			result.Failures = append(result.Failures, ImportFailure{
				Index: i,
				Email: raw.Email,
				Code:  string(errors.Normalize(err).Code),
				Err:   err,
			})
			continue
		}
		result.LeadIDs = append(result.LeadIDs, id)
	}

	s.logger.Info("bulk import finished", map[string]interface{}{
		"total":    result.Total,
		"imported": len(result.LeadIDs),
		"failed":   len(result.Failures),
		"source":   string(source),
	})
	return result, nil
}

func (s *Service) GetLead(ctx context.Context, id string) (*models.Lead, error) {
	return s.store.GetByID(ctx, id)
}

func (s *Service) ScoreHistory(ctx context.Context, id string) ([]models.ScoreRecord, error) {
	return s.store.ScoreHistory(ctx, id)
}

// CloseLead marks a lead inactive. Closing twice is a no-op.
func (s *Service) CloseLead(ctx context.Context, id, reason string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	lead, err := store.GetFresh(ctx, s.store, id)
	if err != nil {
		return err
	}
	if !lead.Active {
		return nil
	}

	now := s.now().UTC()
	lead.Active = false
	lead.ClosedAt = &now
	lead.CloseReason = reason
	lead.UpdatedAt = now
	if err := s.store.Update(ctx, lead); err != nil {
		return err
	}

	s.logger.Info("lead closed", map[string]interface{}{"leadId": id, "reason": reason})
	return nil
}

// Sync creates the lead in every backend that has no record of it yet and
// stores the returned external ids. Only external-id bookkeeping changes.
func (s *Service) Sync(ctx context.Context, id string) (map[string]models.CRMSyncResult, error) {
	if s.syncer == nil {
		return map[string]models.CRMSyncResult{}, nil
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	lead, err := store.GetFresh(ctx, s.store, id)
	if err != nil {
		return nil, err
	}

	results := s.syncer.SyncCreateMissing(ctx, lead)
	changed := false
	for backend, res := range results {
		if res.Success && res.ExternalID != "" && lead.ExternalIDs[backend] != res.ExternalID {
			if lead.ExternalIDs == nil {
				lead.ExternalIDs = make(map[string]string)
			}
			lead.ExternalIDs[backend] = res.ExternalID
			changed = true
		}
	}

	if changed {
		lead.UpdatedAt = s.now().UTC()
		if err := s.store.Update(ctx, lead); err != nil {
			return results, err
		}
	}

	s.logger.Info("lead synced", map[string]interface{}{
		"leadId":   id,
		"backends": len(results),
		"failed":   countFailed(results),
	})
	return results, nil
}

func countFailed(results map[string]models.CRMSyncResult) int {
	n := 0
	for _, r := range results {
		if !r.Success {
			n++
		}
	}
	return n
}
