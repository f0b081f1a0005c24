package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/porteria/visitor-access/internal/domain"
)

type AccessRepository interface {
	Create(ctx context.Context, a *domain.Access) (*domain.Access, error)
	GetByID(ctx context.Context, id int64) (*domain.Access, error)
	GetByCode(ctx context.Context, code string) (*domain.Access, error)
	List(ctx context.Context, companyID int64, limit, offset int, status *domain.AccessStatus) ([]domain.Access, error)
	ListByCreator(ctx context.Context, creatorID int64, limit, offset int) ([]domain.Access, error)
	ListPublicActive(ctx context.Context, now time.Time) ([]domain.Access, error)
	ListExpired(ctx context.Context, now time.Time) ([]domain.Access, error)
	ListReminderDue(ctx context.Context, now time.Time) ([]domain.Access, error)
	UpdateInfo(ctx context.Context, id int64, patch domain.AccessPatch) (*domain.Access, error)
	ExtendEndDate(ctx context.Context, id int64, newEnd time.Time) (bool, error)
	UpdateGuests(ctx context.Context, id int64, guests []domain.Guest) error
	Cancel(ctx context.Context, id int64) (bool, error)
	Finalize(ctx context.Context, id int64, pinEndDate bool, now time.Time) (bool, error)
	ClaimReminder(ctx context.Context, id int64) (bool, error)
}

type accessRepository struct {
	pool *pgxpool.Pool
}

func NewAccessRepository(pool *pgxpool.Pool) AccessRepository {
	return &accessRepository{pool: pool}
}

const accessCols = `id, company_id, creator_id, event_name, type,
location, event_image, additional_info,
start_date, end_date, status, access_code,
settings, invited_users, reminder_sent, created_at, updated_at`

func scanAccess(row pgx.Row) (*domain.Access, error) {
	var a domain.Access
	err := row.Scan(
		&a.ID, &a.CompanyID, &a.CreatorID, &a.EventName, &a.Type,
		&a.Location, &a.EventImage, &a.AdditionalInfo,
		&a.StartDate, &a.EndDate, &a.Status, &a.AccessCode,
		&a.Settings, &a.InvitedUsers, &a.ReminderSent,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *accessRepository) collect(ctx context.Context, q string, args ...any) ([]domain.Access, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accesses []domain.Access
	for rows.Next() {
		a, err := scanAccess(rows)
		if err != nil {
			return nil, err
		}
		accesses = append(accesses, *a)
	}
	return accesses, rows.Err()
}

func (r *accessRepository) Create(ctx context.Context, a *domain.Access) (*domain.Access, error) {
	const q = `INSERT INTO accesses (
		company_id, creator_id, event_name, type,
		location, event_image, additional_info,
		start_date, end_date, status, access_code,
		settings, invited_users, reminder_sent
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,'active',$10,$11,$12,false)
	RETURNING ` + accessCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return scanAccess(r.pool.QueryRow(ctx, q,
		a.CompanyID, a.CreatorID, a.EventName, a.Type,
		a.Location, a.EventImage, a.AdditionalInfo,
		a.StartDate, a.EndDate, a.AccessCode,
		a.Settings, a.InvitedUsers,
	))
}

func (r *accessRepository) GetByID(ctx context.Context, id int64) (*domain.Access, error) {
	const q = `SELECT ` + accessCols + ` FROM accesses WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	a, err := scanAccess(r.pool.QueryRow(ctx, q, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return a, err
}

func (r *accessRepository) GetByCode(ctx context.Context, code string) (*domain.Access, error) {
	const q = `SELECT ` + accessCols + ` FROM accesses WHERE access_code=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	a, err := scanAccess(r.pool.QueryRow(ctx, q, code))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return a, err
}

func (r *accessRepository) List(ctx context.Context, companyID int64, limit, offset int, status *domain.AccessStatus) ([]domain.Access, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	q := `SELECT ` + accessCols + ` FROM accesses WHERE company_id=$1`
	args := []any{companyID}
	if status != nil {
		q += ` AND status=$2 ORDER BY created_at DESC LIMIT $3 OFFSET $4`
		args = append(args, *status, limit, offset)
	} else {
		q += ` ORDER BY created_at DESC LIMIT $2 OFFSET $3`
		args = append(args, limit, offset)
	}

	return r.collect(ctx, q, args...)
}

func (r *accessRepository) ListByCreator(ctx context.Context, creatorID int64, limit, offset int) ([]domain.Access, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	const q = `SELECT ` + accessCols + ` FROM accesses
		WHERE creator_id=$1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	return r.collect(ctx, q, creatorID, limit, offset)
}

func (r *accessRepository) ListPublicActive(ctx context.Context, now time.Time) ([]domain.Access, error) {
	const q = `SELECT ` + accessCols + ` FROM accesses
		WHERE status='active'
		  AND COALESCE((settings->>'enable_pre_registration')::bool, false)
		  AND (COALESCE((settings->>'no_expiration')::bool, false) OR end_date > $1)
		ORDER BY start_date ASC`
	return r.collect(ctx, q, now)
}

func (r *accessRepository) ListExpired(ctx context.Context, now time.Time) ([]domain.Access, error) {
	const q = `SELECT ` + accessCols + ` FROM accesses
		WHERE status='active'
		  AND end_date < $1
		  AND NOT COALESCE((settings->>'no_expiration')::bool, false)`
	return r.collect(ctx, q, now)
}

func (r *accessRepository) ListReminderDue(ctx context.Context, now time.Time) ([]domain.Access, error) {
	const q = `SELECT ` + accessCols + ` FROM accesses
		WHERE status='active' AND reminder_sent=false AND start_date <= $1`
	return r.collect(ctx, q, now)
}

func (r *accessRepository) UpdateInfo(ctx context.Context, id int64, patch domain.AccessPatch) (*domain.Access, error) {
	const q = `
		UPDATE accesses
		SET
			location        = COALESCE($2, location),
			event_image     = COALESCE($3, event_image),
			additional_info = COALESCE($4, additional_info),
			updated_at      = now()
		WHERE id=$1
		RETURNING ` + accessCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	a, err := scanAccess(r.pool.QueryRow(ctx, q, id,
		patch.Location, patch.EventImage, patch.AdditionalInfo))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return a, err
}

// ExtendEndDate only moves the end date forward: the WHERE clause makes a
// shortening attempt a no-op rather than an error.
func (r *accessRepository) ExtendEndDate(ctx context.Context, id int64, newEnd time.Time) (bool, error) {
	const q = `UPDATE accesses SET end_date=$2, updated_at=now()
		WHERE id=$1 AND end_date < $2`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	tag, err := r.pool.Exec(ctx, q, id, newEnd)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *accessRepository) UpdateGuests(ctx context.Context, id int64, guests []domain.Guest) error {
	const q = `UPDATE accesses SET invited_users=$2, updated_at=now() WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.pool.Exec(ctx, q, id, guests)
	return err
}

func (r *accessRepository) Cancel(ctx context.Context, id int64) (bool, error) {
	const q = `UPDATE accesses SET status='cancelled', updated_at=now()
		WHERE id=$1 AND status='active'`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	tag, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Finalize is only effective while the access is active, which is what
// makes the expiration sweep idempotent.
func (r *accessRepository) Finalize(ctx context.Context, id int64, pinEndDate bool, now time.Time) (bool, error) {
	const q = `UPDATE accesses SET
			status='finalized',
			end_date = CASE WHEN $2 THEN $3 ELSE end_date END,
			updated_at=now()
		WHERE id=$1 AND status='active'`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	tag, err := r.pool.Exec(ctx, q, id, pinEndDate, now)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ClaimReminder flips the one-way reminder latch. The conditional write
// is the compare-and-swap that keeps concurrent sweeps from both sending:
// only the caller that claimed the latch sends, and the latch protects
// against duplicate sends, not against lost ones.
func (r *accessRepository) ClaimReminder(ctx context.Context, id int64) (bool, error) {
	const q = `UPDATE accesses SET reminder_sent=true, updated_at=now()
		WHERE id=$1 AND reminder_sent=false`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	tag, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
