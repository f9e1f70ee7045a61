package leads

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leadwire/leadwire/internal/schema"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores leads in the relational database.
type PostgresRepository struct {
	pool querier
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("leads: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

func newPostgresRepositoryWithExec(exec querier) *PostgresRepository {
	if exec == nil {
		panic("leads: exec required")
	}
	return &PostgresRepository{pool: exec}
}

// ResolveOrCreate upserts on (company_id, phone); the insert loses to any
// existing row so concurrent first contacts create exactly one lead.
func (r *PostgresRepository) ResolveOrCreate(ctx context.Context, companyID, phone string) (*schema.Lead, bool, error) {
	id := uuid.New()
	query := `
		INSERT INTO leads (id, company_id, phone, status)
		VALUES ($1, $2, $3, 'new')
		ON CONFLICT (company_id, phone) DO UPDATE SET updated_at = now()
		RETURNING id, status, created_at, updated_at, (xmax = 0) AS inserted
	`
	var lead schema.Lead
	var status string
	var inserted bool
	if err := r.pool.QueryRow(ctx, query, id, companyID, phone).Scan(
		&lead.ID, &status, &lead.CreatedAt, &lead.UpdatedAt, &inserted,
	); err != nil {
		return nil, false, fmt.Errorf("leads: resolve or create: %w", err)
	}
	lead.CompanyID = companyID
	lead.Phone = phone
	lead.Status = schema.LeadStatus(status)
	return &lead, inserted, nil
}

// UpdateStatus enforces the forward-only rule in SQL: the row is only
// touched when the stored status may move to the new one.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, companyID, leadID string, status schema.LeadStatus) (*schema.Lead, error) {
	current, err := r.getByID(ctx, companyID, leadID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(current.Status, status) {
		return nil, ErrInvalidTransition
	}

	query := `
		UPDATE leads
		SET status = $1, updated_at = now()
		WHERE id = $2 AND company_id = $3
		RETURNING updated_at
	`
	var updatedAt time.Time
	if err := r.pool.QueryRow(ctx, query, string(status), leadID, companyID).Scan(&updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLeadNotFound
		}
		return nil, fmt.Errorf("leads: update status: %w", err)
	}
	current.Status = status
	current.UpdatedAt = updatedAt
	return current, nil
}

func (r *PostgresRepository) Reopen(ctx context.Context, companyID, phone string) error {
	query := `
		UPDATE leads
		SET status = 'in_progress', updated_at = now()
		WHERE company_id = $1 AND phone = $2 AND status IN ('handoff', 'disqualified')
	`
	if _, err := r.pool.Exec(ctx, query, companyID, phone); err != nil {
		return fmt.Errorf("leads: reopen: %w", err)
	}
	return nil
}

func (r *PostgresRepository) AppendQualification(ctx context.Context, q schema.Qualification) error {
	if err := q.Validate(); err != nil {
		return err
	}
	query := `
		INSERT INTO qualifications (lead_id, company_id, score, criteria, summary, qualified_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := r.pool.Exec(ctx, query,
		q.LeadID, q.CompanyID, q.Score, q.Criteria, q.Summary, q.QualifiedAt,
	); err != nil {
		return fmt.Errorf("leads: append qualification: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByPhone(ctx context.Context, companyID, phone string) (*schema.Lead, error) {
	query := `
		SELECT id, company_id, phone, COALESCE(name, ''), COALESCE(email, ''), status, created_at, updated_at
		FROM leads
		WHERE company_id = $1 AND phone = $2
	`
	return r.scanLead(r.pool.QueryRow(ctx, query, companyID, phone))
}

func (r *PostgresRepository) getByID(ctx context.Context, companyID, leadID string) (*schema.Lead, error) {
	query := `
		SELECT id, company_id, phone, COALESCE(name, ''), COALESCE(email, ''), status, created_at, updated_at
		FROM leads
		WHERE company_id = $1 AND id = $2
	`
	return r.scanLead(r.pool.QueryRow(ctx, query, companyID, leadID))
}

func (r *PostgresRepository) scanLead(row pgx.Row) (*schema.Lead, error) {
	var lead schema.Lead
	var status string
	if err := row.Scan(
		&lead.ID, &lead.CompanyID, &lead.Phone, &lead.Name, &lead.Email,
		&status, &lead.CreatedAt, &lead.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLeadNotFound
		}
		return nil, fmt.Errorf("leads: select failed: %w", err)
	}
	lead.Status = schema.LeadStatus(status)
	return &lead, nil
}
