// Package store persists leads and their qualification history.
package store

import (
	"context"
	"strings"
	"time"

	"lead-engine/internal/models"
)

// Store is a conventional keyed lead store. Implementations return
// LEAD_NOT_FOUND for unknown ids or emails, DUPLICATE_LEAD when inserting an
// email that already exists, and LEAD_STORE_FAILED for backend failures.
// Returned leads are copies; mutating them never changes stored state.
type Store interface {
	GetByID(ctx context.Context, id string) (*models.Lead, error)
	GetByEmail(ctx context.Context, email string) (*models.Lead, error)
	Insert(ctx context.Context, lead *models.Lead) error
	Update(ctx context.Context, lead *models.Lead) error
	// ListCreatedBetween returns leads with from <= CreatedAt < to, oldest first.
	ListCreatedBetween(ctx context.Context, from, to time.Time) ([]*models.Lead, error)
	AppendScore(ctx context.Context, record models.ScoreRecord) error
	// SaveQualification updates the lead and appends its score record as one
	// unit: either both are stored or neither is.
	SaveQualification(ctx context.Context, lead *models.Lead, record models.ScoreRecord) error
	// ScoreHistory returns a lead's records oldest first.
	ScoreHistory(ctx context.Context, leadID string) ([]models.ScoreRecord, error)
}

// NormalizeEmail is the uniqueness key for emails.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// FreshReader is implemented by stores that may serve GetByID from a cache.
type FreshReader interface {
	GetByIDFresh(ctx context.Context, id string) (*models.Lead, error)
}

// GetFresh reads a lead from st's authoritative backend.
func GetFresh(ctx context.Context, st Store, id string) (*models.Lead, error) {
	if f, ok := st.(FreshReader); ok {
		return f.GetByIDFresh(ctx, id)
	}
	return st.GetByID(ctx, id)
}
