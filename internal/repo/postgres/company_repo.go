package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/porteria/visitor-access/internal/domain"
)

type CompanyRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Company, error)
}

type companyRepository struct {
	pool *pgxpool.Pool
}

func NewCompanyRepository(pool *pgxpool.Pool) CompanyRepository {
	return &companyRepository{pool: pool}
}

func (r *companyRepository) GetByID(ctx context.Context, id int64) (*domain.Company, error) {
	const q = `SELECT id, name, settings, created_at FROM companies WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var c domain.Company
	err := r.pool.QueryRow(ctx, q, id).Scan(&c.ID, &c.Name, &c.Settings, &c.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
