package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/porteria/visitor-access/internal/domain"
)

type BlacklistRepository interface {
	FindByIdentifier(ctx context.Context, companyID int64, identifier string) (*domain.BlacklistEntry, error)
	List(ctx context.Context, companyID int64, limit, offset int) ([]domain.BlacklistEntry, error)
	Create(ctx context.Context, e *domain.BlacklistEntry) (*domain.BlacklistEntry, error)
	Delete(ctx context.Context, companyID, id int64) (bool, error)
}

type blacklistRepository struct {
	pool *pgxpool.Pool
}

func NewBlacklistRepository(pool *pgxpool.Pool) BlacklistRepository {
	return &blacklistRepository{pool: pool}
}

const blacklistCols = `id, company_id, identifier, reason, created_by, created_at`

func (r *blacklistRepository) FindByIdentifier(ctx context.Context, companyID int64, identifier string) (*domain.BlacklistEntry, error) {
	const q = `SELECT ` + blacklistCols + ` FROM blacklist
		WHERE company_id=$1 AND lower(identifier)=lower($2)
		LIMIT 1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var e domain.BlacklistEntry
	err := r.pool.QueryRow(ctx, q, companyID, identifier).Scan(
		&e.ID, &e.CompanyID, &e.Identifier, &e.Reason, &e.CreatedBy, &e.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *blacklistRepository) List(ctx context.Context, companyID int64, limit, offset int) ([]domain.BlacklistEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	const q = `SELECT ` + blacklistCols + ` FROM blacklist
		WHERE company_id=$1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, companyID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.BlacklistEntry
	for rows.Next() {
		var e domain.BlacklistEntry
		if err := rows.Scan(&e.ID, &e.CompanyID, &e.Identifier, &e.Reason, &e.CreatedBy, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *blacklistRepository) Create(ctx context.Context, e *domain.BlacklistEntry) (*domain.BlacklistEntry, error) {
	const q = `INSERT INTO blacklist (company_id, identifier, reason, created_by)
		VALUES ($1,$2,$3,$4)
		RETURNING ` + blacklistCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var out domain.BlacklistEntry
	err := r.pool.QueryRow(ctx, q, e.CompanyID, e.Identifier, e.Reason, e.CreatedBy).Scan(
		&out.ID, &out.CompanyID, &out.Identifier, &out.Reason, &out.CreatedBy, &out.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *blacklistRepository) Delete(ctx context.Context, companyID, id int64) (bool, error) {
	const q = `DELETE FROM blacklist WHERE company_id=$1 AND id=$2`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	tag, err := r.pool.Exec(ctx, q, companyID, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
