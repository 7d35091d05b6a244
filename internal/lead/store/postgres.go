package store

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"lead-engine/internal/common/errors"
	"lead-engine/internal/models"
)

const uniqueViolation = "23505"

const schema = `
CREATE TABLE IF NOT EXISTS leads (
	id            TEXT PRIMARY KEY,
	email         TEXT NOT NULL,
	first_name    TEXT NOT NULL,
	last_name     TEXT NOT NULL,
	company       TEXT NOT NULL,
	job_title     TEXT NOT NULL,
	phone         TEXT NOT NULL DEFAULT '',
	website       TEXT NOT NULL DEFAULT '',
	company_size  TEXT NOT NULL DEFAULT '',
	industry      TEXT NOT NULL DEFAULT '',
	notes         TEXT NOT NULL DEFAULT '',
	source        TEXT NOT NULL,
	status        TEXT NOT NULL,
	score         JSONB,
	qualified_at  TIMESTAMPTZ,
	external_ids  JSONB NOT NULL DEFAULT '{}',
	active        BOOLEAN NOT NULL DEFAULT TRUE,
	closed_at     TIMESTAMPTZ,
	close_reason  TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS leads_email_key ON leads (lower(email));
CREATE INDEX IF NOT EXISTS leads_created_at_idx ON leads (created_at);

CREATE TABLE IF NOT EXISTS lead_score_history (
	id         BIGSERIAL PRIMARY KEY,
	lead_id    TEXT NOT NULL REFERENCES leads (id),
	score      JSONB NOT NULL,
	status     TEXT NOT NULL,
	scored_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS lead_score_history_lead_idx ON lead_score_history (lead_id, scored_at);
`

const leadColumns = `id, email, first_name, last_name, company, job_title, phone, website,
	company_size, industry, notes, source, status, score, qualified_at, external_ids,
	active, closed_at, close_reason, created_at, updated_at`

// Postgres is the database/sql Store backed by lib/pq.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Ping(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return errors.NewStoreError("ping", err)
	}
	return nil
}

// EnsureSchema creates the lead tables when they do not exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return errors.NewStoreError("ensure schema", err)
	}
	return nil
}

func (p *Postgres) GetByID(ctx context.Context, id string) (*models.Lead, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, id)
	lead, err := scanLead(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewLeadNotFoundError(id)
	}
	if err != nil {
		return nil, errors.NewStoreError("get by id", err)
	}
	return lead, nil
}

func (p *Postgres) GetByEmail(ctx context.Context, email string) (*models.Lead, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+leadColumns+` FROM leads WHERE lower(email) = $1`, NormalizeEmail(email))
	lead, err := scanLead(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewLeadNotFoundError(email)
	}
	if err != nil {
		return nil, errors.NewStoreError("get by email", err)
	}
	return lead, nil
}

func (p *Postgres) Insert(ctx context.Context, lead *models.Lead) error {
	score, externalIDs, err := encodeJSONColumns(lead)
	if err != nil {
		return errors.NewStoreError("insert", err)
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO leads (`+leadColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`,
		lead.ID, lead.Email, lead.FirstName, lead.LastName, lead.Company, lead.JobTitle,
		lead.Phone, lead.Website, string(lead.CompanySize), lead.Industry, lead.Notes,
		string(lead.Source), string(lead.Status), score, nullTime(lead.QualifiedAt), externalIDs,
		lead.Active, nullTime(lead.ClosedAt), lead.CloseReason, lead.CreatedAt, lead.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if stderrors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return errors.NewDuplicateLeadError(lead.Email)
		}
		return errors.NewStoreError("insert", err)
	}
	return nil
}

// Update writes every mutable column. Id, email and created_at never change.
func (p *Postgres) Update(ctx context.Context, lead *models.Lead) error {
	return updateLead(ctx, p.db, lead)
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func updateLead(ctx context.Context, ex execer, lead *models.Lead) error {
	score, externalIDs, err := encodeJSONColumns(lead)
	if err != nil {
		return errors.NewStoreError("update", err)
	}

	res, err := ex.ExecContext(ctx, `
		UPDATE leads SET
			first_name = $2, last_name = $3, company = $4, job_title = $5, phone = $6,
			website = $7, company_size = $8, industry = $9, notes = $10, source = $11,
			status = $12, score = $13, qualified_at = $14, external_ids = $15,
			active = $16, closed_at = $17, close_reason = $18, updated_at = $19
		WHERE id = $1`,
		lead.ID, lead.FirstName, lead.LastName, lead.Company, lead.JobTitle, lead.Phone,
		lead.Website, string(lead.CompanySize), lead.Industry, lead.Notes, string(lead.Source),
		string(lead.Status), score, nullTime(lead.QualifiedAt), externalIDs,
		lead.Active, nullTime(lead.ClosedAt), lead.CloseReason, lead.UpdatedAt,
	)
	if err != nil {
		return errors.NewStoreError("update", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.NewStoreError("update", err)
	}
	if n == 0 {
		return errors.NewLeadNotFoundError(lead.ID)
	}
	return nil
}

func (p *Postgres) ListCreatedBetween(ctx context.Context, from, to time.Time) ([]*models.Lead, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+leadColumns+` FROM leads
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at, id`, from, to)
	if err != nil {
		return nil, errors.NewStoreError("list", err)
	}
	defer rows.Close()

	var out []*models.Lead
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, errors.NewStoreError("list", err)
		}
		out = append(out, lead)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStoreError("list", err)
	}
	return out, nil
}

func (p *Postgres) AppendScore(ctx context.Context, record models.ScoreRecord) error {
	return appendScore(ctx, p.db, record)
}

func appendScore(ctx context.Context, ex execer, record models.ScoreRecord) error {
	score, err := json.Marshal(record.Score)
	if err != nil {
		return errors.NewStoreError("append score", err)
	}

	_, err = ex.ExecContext(ctx, `
		INSERT INTO lead_score_history (lead_id, score, status, scored_at)
		VALUES ($1, $2, $3, $4)`,
		record.LeadID, score, string(record.Status), record.ScoredAt,
	)
	if err != nil {
		return errors.NewStoreError("append score", err)
	}
	return nil
}

// SaveQualification runs the lead update and the history insert in one
// transaction.
func (p *Postgres) SaveQualification(ctx context.Context, lead *models.Lead, record models.ScoreRecord) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewStoreError("save qualification", err)
	}
	if err := updateLead(ctx, tx, lead); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := appendScore(ctx, tx, record); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.NewStoreError("save qualification", err)
	}
	return nil
}

func (p *Postgres) ScoreHistory(ctx context.Context, leadID string) ([]models.ScoreRecord, error) {
	var exists bool
	if err := p.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM leads WHERE id = $1)`, leadID).Scan(&exists); err != nil {
		return nil, errors.NewStoreError("score history", err)
	}
	if !exists {
		return nil, errors.NewLeadNotFoundError(leadID)
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT lead_id, score, status, scored_at FROM lead_score_history
		WHERE lead_id = $1 ORDER BY scored_at, id`, leadID)
	if err != nil {
		return nil, errors.NewStoreError("score history", err)
	}
	defer rows.Close()

	out := []models.ScoreRecord{}
	for rows.Next() {
		var (
			rec    models.ScoreRecord
			score  []byte
			status string
		)
		if err := rows.Scan(&rec.LeadID, &score, &status, &rec.ScoredAt); err != nil {
			return nil, errors.NewStoreError("score history", err)
		}
		if err := json.Unmarshal(score, &rec.Score); err != nil {
			return nil, errors.NewStoreError("score history", err)
		}
		rec.Status = models.LeadStatus(status)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStoreError("score history", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanLead(s scanner) (*models.Lead, error) {
	var (
		lead                  models.Lead
		companySize, source   string
		status                string
		score, externalIDs    []byte
		qualifiedAt, closedAt sql.NullTime
	)

	err := s.Scan(
		&lead.ID, &lead.Email, &lead.FirstName, &lead.LastName, &lead.Company, &lead.JobTitle,
		&lead.Phone, &lead.Website, &companySize, &lead.Industry, &lead.Notes, &source, &status,
		&score, &qualifiedAt, &externalIDs, &lead.Active, &closedAt, &lead.CloseReason,
		&lead.CreatedAt, &lead.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	lead.CompanySize = models.CompanySize(companySize)
	lead.Source = models.LeadSource(source)
	lead.Status = models.LeadStatus(status)

	if len(score) > 0 {
		var s models.BANTScore
		if err := json.Unmarshal(score, &s); err != nil {
			return nil, fmt.Errorf("decode score: %w", err)
		}
		lead.Score = &s
	}
	if len(externalIDs) > 0 {
		if err := json.Unmarshal(externalIDs, &lead.ExternalIDs); err != nil {
			return nil, fmt.Errorf("decode external ids: %w", err)
		}
		if len(lead.ExternalIDs) == 0 {
			lead.ExternalIDs = nil
		}
	}
	if qualifiedAt.Valid {
		t := qualifiedAt.Time
		lead.QualifiedAt = &t
	}
	if closedAt.Valid {
		t := closedAt.Time
		lead.ClosedAt = &t
	}
	return &lead, nil
}

func encodeJSONColumns(lead *models.Lead) (score interface{}, externalIDs []byte, err error) {
	if lead.Score != nil {
		b, err := json.Marshal(lead.Score)
		if err != nil {
			return nil, nil, err
		}
		score = b
	}
	ids := lead.ExternalIDs
	if ids == nil {
		ids = map[string]string{}
	}
	externalIDs, err = json.Marshal(ids)
	return score, externalIDs, err
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
