package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/porteria/visitor-access/internal/domain"
)

type ApprovalRepository interface {
	Create(ctx context.Context, visitID int64, token string, expiresAt time.Time) (*domain.Approval, error)
	GetByToken(ctx context.Context, token string) (*domain.Approval, error)
	// Decide marks the approval decided if still pending and unexpired;
	// returns false when another caller already decided it or it lapsed.
	Decide(ctx context.Context, token string, decision domain.ApprovalDecision, now time.Time) (bool, error)
}

type approvalRepository struct {
	pool *pgxpool.Pool
}

func NewApprovalRepository(pool *pgxpool.Pool) ApprovalRepository {
	return &approvalRepository{pool: pool}
}

const approvalCols = `id, token, visit_id, status, decision, expires_at, decided_at, created_at`

func scanApproval(row pgx.Row) (*domain.Approval, error) {
	var a domain.Approval
	var decision *string
	err := row.Scan(&a.ID, &a.Token, &a.VisitID, &a.Status, &decision,
		&a.ExpiresAt, &a.DecidedAt, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	if decision != nil {
		a.Decision = domain.ApprovalDecision(*decision)
	}
	return &a, nil
}

func (r *approvalRepository) Create(ctx context.Context, visitID int64, token string, expiresAt time.Time) (*domain.Approval, error) {
	const q = `INSERT INTO approvals (token, visit_id, status, expires_at)
		VALUES ($1,$2,'pending',$3)
		RETURNING ` + approvalCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return scanApproval(r.pool.QueryRow(ctx, q, token, visitID, expiresAt))
}

func (r *approvalRepository) GetByToken(ctx context.Context, token string) (*domain.Approval, error) {
	const q = `SELECT ` + approvalCols + ` FROM approvals WHERE token=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	a, err := scanApproval(r.pool.QueryRow(ctx, q, token))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return a, err
}

func (r *approvalRepository) Decide(ctx context.Context, token string, decision domain.ApprovalDecision, now time.Time) (bool, error) {
	const q = `UPDATE approvals
		SET status='decided', decision=$2, decided_at=$3
		WHERE token=$1 AND status='pending' AND expires_at > $3`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	tag, err := r.pool.Exec(ctx, q, token, decision, now)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
