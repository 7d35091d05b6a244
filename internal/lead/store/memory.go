package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"lead-engine/internal/common/errors"
	"lead-engine/internal/models"
)

// Memory is an in-process Store.
type Memory struct {
	mu      sync.RWMutex
	leads   map[string]*models.Lead
	byEmail map[string]string
	scores  map[string][]models.ScoreRecord
}

func NewMemory() *Memory {
	return &Memory{
		leads:   make(map[string]*models.Lead),
		byEmail: make(map[string]string),
		scores:  make(map[string][]models.ScoreRecord),
	}
}

func (m *Memory) GetByID(ctx context.Context, id string) (*models.Lead, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	lead, ok := m.leads[id]
	if !ok {
		return nil, errors.NewLeadNotFoundError(id)
	}
	return lead.Clone(), nil
}

func (m *Memory) GetByEmail(ctx context.Context, email string) (*models.Lead, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byEmail[NormalizeEmail(email)]
	if !ok {
		return nil, errors.NewLeadNotFoundError(email)
	}
	return m.leads[id].Clone(), nil
}

func (m *Memory) Insert(ctx context.Context, lead *models.Lead) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := NormalizeEmail(lead.Email)
	if _, exists := m.byEmail[key]; exists {
		return errors.NewDuplicateLeadError(lead.Email)
	}
	if _, exists := m.leads[lead.ID]; exists {
		return errors.NewStoreError("insert", errors.NewDuplicateLeadError(lead.ID))
	}

	m.leads[lead.ID] = lead.Clone()
	m.byEmail[key] = lead.ID
	return nil
}

func (m *Memory) Update(ctx context.Context, lead *models.Lead) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.leads[lead.ID]; !ok {
		return errors.NewLeadNotFoundError(lead.ID)
	}
	m.leads[lead.ID] = lead.Clone()
	return nil
}

func (m *Memory) ListCreatedBetween(ctx context.Context, from, to time.Time) ([]*models.Lead, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.Lead
	for _, lead := range m.leads {
		if !lead.CreatedAt.Before(from) && lead.CreatedAt.Before(to) {
			out = append(out, lead.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *Memory) AppendScore(ctx context.Context, record models.ScoreRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.leads[record.LeadID]; !ok {
		return errors.NewLeadNotFoundError(record.LeadID)
	}
	m.scores[record.LeadID] = append(m.scores[record.LeadID], record)
	return nil
}

func (m *Memory) SaveQualification(ctx context.Context, lead *models.Lead, record models.ScoreRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.leads[lead.ID]; !ok {
		return errors.NewLeadNotFoundError(lead.ID)
	}
	m.leads[lead.ID] = lead.Clone()
	m.scores[lead.ID] = append(m.scores[lead.ID], record)
	return nil
}

func (m *Memory) ScoreHistory(ctx context.Context, leadID string) ([]models.ScoreRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.leads[leadID]; !ok {
		return nil, errors.NewLeadNotFoundError(leadID)
	}
	history := m.scores[leadID]
	out := make([]models.ScoreRecord, len(history))
	copy(out, history)
	return out, nil
}

// Count is the number of stored leads.
func (m *Memory) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.leads)
}
