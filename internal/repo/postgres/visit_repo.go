package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/porteria/visitor-access/internal/domain"
)

type VisitRepository interface {
	Create(ctx context.Context, v *domain.Visit) (*domain.Visit, error)
	GetByID(ctx context.Context, id int64) (*domain.Visit, error)
	List(ctx context.Context, companyID int64, limit, offset int, status *domain.VisitStatus) ([]domain.Visit, error)
	ListByHost(ctx context.Context, hostID int64, limit, offset int) ([]domain.Visit, error)
	Update(ctx context.Context, id int64, patch domain.VisitPatch) (*domain.Visit, error)
	Approve(ctx context.Context, id int64) (bool, error)
	Reject(ctx context.Context, id int64) (bool, error)
	CheckIn(ctx context.Context, id int64, at time.Time) (bool, error)
	Complete(ctx context.Context, id int64, at time.Time, photos []string) (bool, error)
}

type visitRepository struct {
	pool *pgxpool.Pool
}

func NewVisitRepository(pool *pgxpool.Pool) VisitRepository {
	return &visitRepository{pool: pool}
}

const visitCols = `id, company_id, status,
visitor_name, visitor_email, visitor_phone, visitor_company, visitor_photo,
host_id, reason, scheduled_date,
access_code, visit_type,
check_in_time, check_out_time, assigned_resource, check_out_photos,
created_at, updated_at`

func scanVisit(row pgx.Row) (*domain.Visit, error) {
	var v domain.Visit
	err := row.Scan(
		&v.ID, &v.CompanyID, &v.Status,
		&v.VisitorName, &v.VisitorEmail, &v.VisitorPhone, &v.VisitorCompany, &v.VisitorPhoto,
		&v.HostID, &v.Reason, &v.ScheduledDate,
		&v.AccessCode, &v.VisitType,
		&v.CheckInTime, &v.CheckOutTime, &v.AssignedResource, &v.CheckOutPhotos,
		&v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *visitRepository) Create(ctx context.Context, v *domain.Visit) (*domain.Visit, error) {
	const q = `INSERT INTO visits (
		company_id, status,
		visitor_name, visitor_email, visitor_phone, visitor_company, visitor_photo,
		host_id, reason, scheduled_date,
		access_code, visit_type
	) VALUES ($1,'pending',$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	RETURNING ` + visitCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return scanVisit(r.pool.QueryRow(ctx, q,
		v.CompanyID,
		v.VisitorName, v.VisitorEmail, v.VisitorPhone, v.VisitorCompany, v.VisitorPhoto,
		v.HostID, v.Reason, v.ScheduledDate,
		v.AccessCode, v.VisitType,
	))
}

func (r *visitRepository) GetByID(ctx context.Context, id int64) (*domain.Visit, error) {
	const q = `SELECT ` + visitCols + ` FROM visits WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	v, err := scanVisit(r.pool.QueryRow(ctx, q, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return v, err
}

func (r *visitRepository) List(ctx context.Context, companyID int64, limit, offset int, status *domain.VisitStatus) ([]domain.Visit, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	q := `SELECT ` + visitCols + ` FROM visits WHERE company_id=$1`
	args := []any{companyID}
	if status != nil {
		q += ` AND status=$2 ORDER BY scheduled_date DESC LIMIT $3 OFFSET $4`
		args = append(args, *status, limit, offset)
	} else {
		q += ` ORDER BY scheduled_date DESC LIMIT $2 OFFSET $3`
		args = append(args, limit, offset)
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var visits []domain.Visit
	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, err
		}
		visits = append(visits, *v)
	}
	return visits, rows.Err()
}

func (r *visitRepository) ListByHost(ctx context.Context, hostID int64, limit, offset int) ([]domain.Visit, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	const q = `SELECT ` + visitCols + ` FROM visits
		WHERE host_id=$1 ORDER BY scheduled_date DESC LIMIT $2 OFFSET $3`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, hostID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var visits []domain.Visit
	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, err
		}
		visits = append(visits, *v)
	}
	return visits, rows.Err()
}

func (r *visitRepository) Update(ctx context.Context, id int64, patch domain.VisitPatch) (*domain.Visit, error) {
	const q = `
		UPDATE visits
		SET
			visitor_name      = COALESCE($2, visitor_name),
			visitor_phone     = COALESCE($3, visitor_phone),
			visitor_company   = COALESCE($4, visitor_company),
			reason            = COALESCE($5, reason),
			scheduled_date    = COALESCE($6, scheduled_date),
			assigned_resource = COALESCE($7, assigned_resource),
			updated_at        = now()
		WHERE id=$1
		RETURNING ` + visitCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	v, err := scanVisit(r.pool.QueryRow(ctx, q, id,
		patch.VisitorName, patch.VisitorPhone, patch.VisitorCompany,
		patch.Reason, patch.ScheduledDate, patch.AssignedResource))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return v, err
}

// The status transitions below guard on the current status in SQL, so a
// stale caller loses the race instead of regressing the state machine.

func (r *visitRepository) Approve(ctx context.Context, id int64) (bool, error) {
	const q = `UPDATE visits SET status='approved', updated_at=now()
		WHERE id=$1 AND status='pending'`
	return r.exec(ctx, q, id)
}

func (r *visitRepository) Reject(ctx context.Context, id int64) (bool, error) {
	const q = `UPDATE visits SET status='rejected', updated_at=now()
		WHERE id=$1 AND status='pending'`
	return r.exec(ctx, q, id)
}

func (r *visitRepository) CheckIn(ctx context.Context, id int64, at time.Time) (bool, error) {
	const q = `UPDATE visits SET status='checked-in', check_in_time=$2, updated_at=now()
		WHERE id=$1 AND status='approved'`
	return r.exec(ctx, q, id, at)
}

func (r *visitRepository) Complete(ctx context.Context, id int64, at time.Time, photos []string) (bool, error) {
	const q = `UPDATE visits SET status='completed', check_out_time=$2, check_out_photos=$3, updated_at=now()
		WHERE id=$1 AND status='checked-in'`
	return r.exec(ctx, q, id, at, photos)
}

func (r *visitRepository) exec(ctx context.Context, q string, args ...any) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	tag, err := r.pool.Exec(ctx, q, args...)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
