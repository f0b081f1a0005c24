package service

import (
	"context"
	"sync"
	"time"

	"github.com/porteria/visitor-access/internal/domain"
)

// In-memory repositories with the same conditional-write semantics as
// the SQL ones. They hand out copies so callers mutate nothing until
// they write back, same as scanning a row.

type memAccessRepo struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]*domain.Access
}

func newMemAccessRepo() *memAccessRepo {
	return &memAccessRepo{rows: map[int64]*domain.Access{}}
}

func copyAccess(a *domain.Access) *domain.Access {
	out := *a
	out.InvitedUsers = append([]domain.Guest(nil), a.InvitedUsers...)
	return &out
}

func (r *memAccessRepo) Create(_ context.Context, a *domain.Access) (*domain.Access, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	row := copyAccess(a)
	row.ID = r.nextID
	row.Status = domain.AccessActive
	row.CreatedAt = time.Now()
	row.UpdatedAt = row.CreatedAt
	r.rows[row.ID] = row
	return copyAccess(row), nil
}

func (r *memAccessRepo) GetByID(_ context.Context, id int64) (*domain.Access, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, nil
	}
	return copyAccess(row), nil
}

func (r *memAccessRepo) GetByCode(_ context.Context, code string) (*domain.Access, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.AccessCode == code {
			return copyAccess(row), nil
		}
	}
	return nil, nil
}

func (r *memAccessRepo) List(_ context.Context, companyID int64, _, _ int, status *domain.AccessStatus) ([]domain.Access, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Access
	for _, row := range r.rows {
		if row.CompanyID != companyID {
			continue
		}
		if status != nil && row.Status != *status {
			continue
		}
		out = append(out, *copyAccess(row))
	}
	return out, nil
}

func (r *memAccessRepo) ListByCreator(_ context.Context, creatorID int64, _, _ int) ([]domain.Access, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Access
	for _, row := range r.rows {
		if row.CreatorID == creatorID {
			out = append(out, *copyAccess(row))
		}
	}
	return out, nil
}

func (r *memAccessRepo) ListPublicActive(_ context.Context, now time.Time) ([]domain.Access, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Access
	for _, row := range r.rows {
		if row.Status != domain.AccessActive || !row.Settings.EnablePreRegistration {
			continue
		}
		if !row.Settings.NoExpiration && !row.EndDate.After(now) {
			continue
		}
		out = append(out, *copyAccess(row))
	}
	return out, nil
}

func (r *memAccessRepo) ListExpired(_ context.Context, now time.Time) ([]domain.Access, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Access
	for _, row := range r.rows {
		if row.Status == domain.AccessActive && !row.Settings.NoExpiration && row.EndDate.Before(now) {
			out = append(out, *copyAccess(row))
		}
	}
	return out, nil
}

func (r *memAccessRepo) ListReminderDue(_ context.Context, now time.Time) ([]domain.Access, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Access
	for _, row := range r.rows {
		if row.Status == domain.AccessActive && !row.ReminderSent && !row.StartDate.After(now) {
			out = append(out, *copyAccess(row))
		}
	}
	return out, nil
}

func (r *memAccessRepo) UpdateInfo(_ context.Context, id int64, patch domain.AccessPatch) (*domain.Access, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, nil
	}
	if patch.Location != nil {
		row.Location = *patch.Location
	}
	if patch.EventImage != nil {
		row.EventImage = *patch.EventImage
	}
	if patch.AdditionalInfo != nil {
		row.AdditionalInfo = *patch.AdditionalInfo
	}
	return copyAccess(row), nil
}

func (r *memAccessRepo) ExtendEndDate(_ context.Context, id int64, newEnd time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok || !row.EndDate.Before(newEnd) {
		return false, nil
	}
	row.EndDate = newEnd
	return true, nil
}

func (r *memAccessRepo) UpdateGuests(_ context.Context, id int64, guests []domain.Guest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if row, ok := r.rows[id]; ok {
		row.InvitedUsers = append([]domain.Guest(nil), guests...)
	}
	return nil
}

func (r *memAccessRepo) Cancel(_ context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok || row.Status != domain.AccessActive {
		return false, nil
	}
	row.Status = domain.AccessCancelled
	return true, nil
}

func (r *memAccessRepo) Finalize(_ context.Context, id int64, pinEndDate bool, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok || row.Status != domain.AccessActive {
		return false, nil
	}
	row.Status = domain.AccessFinalized
	if pinEndDate {
		row.EndDate = now
	}
	return true, nil
}

func (r *memAccessRepo) ClaimReminder(_ context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok || row.ReminderSent {
		return false, nil
	}
	row.ReminderSent = true
	return true, nil
}

type memVisitRepo struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]*domain.Visit
}

func newMemVisitRepo() *memVisitRepo {
	return &memVisitRepo{rows: map[int64]*domain.Visit{}}
}

func copyVisit(v *domain.Visit) *domain.Visit {
	out := *v
	out.CheckOutPhotos = append([]string(nil), v.CheckOutPhotos...)
	return &out
}

func (r *memVisitRepo) Create(_ context.Context, v *domain.Visit) (*domain.Visit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	row := copyVisit(v)
	row.ID = r.nextID
	row.Status = domain.VisitPending
	row.CreatedAt = time.Now()
	row.UpdatedAt = row.CreatedAt
	r.rows[row.ID] = row
	return copyVisit(row), nil
}

func (r *memVisitRepo) GetByID(_ context.Context, id int64) (*domain.Visit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, nil
	}
	return copyVisit(row), nil
}

func (r *memVisitRepo) List(_ context.Context, companyID int64, _, _ int, status *domain.VisitStatus) ([]domain.Visit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Visit
	for _, row := range r.rows {
		if row.CompanyID != companyID {
			continue
		}
		if status != nil && row.Status != *status {
			continue
		}
		out = append(out, *copyVisit(row))
	}
	return out, nil
}

func (r *memVisitRepo) ListByHost(_ context.Context, hostID int64, _, _ int) ([]domain.Visit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Visit
	for _, row := range r.rows {
		if row.HostID == hostID {
			out = append(out, *copyVisit(row))
		}
	}
	return out, nil
}

func (r *memVisitRepo) Update(_ context.Context, id int64, patch domain.VisitPatch) (*domain.Visit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, nil
	}
	if patch.VisitorName != nil {
		row.VisitorName = *patch.VisitorName
	}
	if patch.Reason != nil {
		row.Reason = *patch.Reason
	}
	if patch.ScheduledDate != nil {
		row.ScheduledDate = *patch.ScheduledDate
	}
	if patch.AssignedResource != nil {
		row.AssignedResource = *patch.AssignedResource
	}
	return copyVisit(row), nil
}

func (r *memVisitRepo) transition(id int64, from, to domain.VisitStatus, mutate func(*domain.Visit)) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok || row.Status != from {
		return false, nil
	}
	row.Status = to
	if mutate != nil {
		mutate(row)
	}
	return true, nil
}

func (r *memVisitRepo) Approve(_ context.Context, id int64) (bool, error) {
	return r.transition(id, domain.VisitPending, domain.VisitApproved, nil)
}

func (r *memVisitRepo) Reject(_ context.Context, id int64) (bool, error) {
	return r.transition(id, domain.VisitPending, domain.VisitRejected, nil)
}

func (r *memVisitRepo) CheckIn(_ context.Context, id int64, at time.Time) (bool, error) {
	return r.transition(id, domain.VisitApproved, domain.VisitCheckedIn, func(v *domain.Visit) {
		v.CheckInTime = &at
	})
}

func (r *memVisitRepo) Complete(_ context.Context, id int64, at time.Time, photos []string) (bool, error) {
	return r.transition(id, domain.VisitCheckedIn, domain.VisitCompleted, func(v *domain.Visit) {
		v.CheckOutTime = &at
		v.CheckOutPhotos = append([]string(nil), photos...)
	})
}

type memApprovalRepo struct {
	mu   sync.Mutex
	rows map[string]*domain.Approval
}

func newMemApprovalRepo() *memApprovalRepo {
	return &memApprovalRepo{rows: map[string]*domain.Approval{}}
}

func (r *memApprovalRepo) Create(_ context.Context, visitID int64, token string, expiresAt time.Time) (*domain.Approval, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := &domain.Approval{
		ID: int64(len(r.rows) + 1), Token: token, VisitID: visitID,
		Status: domain.ApprovalPending, ExpiresAt: expiresAt, CreatedAt: time.Now(),
	}
	r.rows[token] = a
	return a, nil
}

func (r *memApprovalRepo) GetByToken(_ context.Context, token string) (*domain.Approval, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.rows[token]
	if !ok {
		return nil, nil
	}
	out := *a
	return &out, nil
}

func (r *memApprovalRepo) Decide(_ context.Context, token string, decision domain.ApprovalDecision, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.rows[token]
	if !ok || a.Status != domain.ApprovalPending || !a.ExpiresAt.After(now) {
		return false, nil
	}
	a.Status = domain.ApprovalDecided
	a.Decision = decision
	a.DecidedAt = &now
	return true, nil
}

type memBlacklistRepo struct {
	mu   sync.Mutex
	rows []domain.BlacklistEntry
}

func (r *memBlacklistRepo) FindByIdentifier(_ context.Context, companyID int64, identifier string) (*domain.BlacklistEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.rows {
		if r.rows[i].CompanyID == companyID && r.rows[i].Identifier == identifier {
			out := r.rows[i]
			return &out, nil
		}
	}
	return nil, nil
}

func (r *memBlacklistRepo) List(_ context.Context, companyID int64, _, _ int) ([]domain.BlacklistEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.BlacklistEntry
	for _, e := range r.rows {
		if e.CompanyID == companyID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memBlacklistRepo) Create(_ context.Context, e *domain.BlacklistEntry) (*domain.BlacklistEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row := *e
	row.ID = int64(len(r.rows) + 1)
	row.CreatedAt = time.Now()
	r.rows = append(r.rows, row)
	return &row, nil
}

func (r *memBlacklistRepo) Delete(_ context.Context, companyID, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.rows {
		if r.rows[i].ID == id && r.rows[i].CompanyID == companyID {
			r.rows = append(r.rows[:i], r.rows[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

type memUserRepo struct {
	users map[int64]*domain.User
}

func (r *memUserRepo) FindByID(_ context.Context, id int64) (*domain.User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	out := *u
	return &out, nil
}

func (r *memUserRepo) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	for _, u := range r.users {
		if u.Email == email {
			out := *u
			return &out, nil
		}
	}
	return nil, nil
}

type memCompanyRepo struct {
	companies map[int64]*domain.Company
}

func (r *memCompanyRepo) GetByID(_ context.Context, id int64) (*domain.Company, error) {
	c, ok := r.companies[id]
	if !ok {
		return nil, nil
	}
	out := *c
	return &out, nil
}

// recordingDispatcher counts notification calls by name.
type recordingDispatcher struct {
	mu             sync.Mutex
	calls          map[string]int
	lastApproveURL string
}

func newRecordingDispatcher() *recordingDispatcher {
	return &recordingDispatcher{calls: map[string]int{}}
}

func (d *recordingDispatcher) record(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls[name]++
}

func (d *recordingDispatcher) count(name string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[name]
}

func (d *recordingDispatcher) AccessCreated(context.Context, *domain.Access, *domain.User) {
	d.record("AccessCreated")
}
func (d *recordingDispatcher) GuestInvited(context.Context, *domain.Access, *domain.Guest) {
	d.record("GuestInvited")
}
func (d *recordingDispatcher) AccessReminder(context.Context, *domain.Access, *domain.User) {
	d.record("AccessReminder")
}
func (d *recordingDispatcher) GuestReminder(context.Context, *domain.Access, *domain.Guest) {
	d.record("GuestReminder")
}
func (d *recordingDispatcher) AccessCanceled(context.Context, *domain.Access, *domain.User) {
	d.record("AccessCanceled")
}
func (d *recordingDispatcher) GuestAccessCanceled(context.Context, *domain.Access, *domain.Guest) {
	d.record("GuestAccessCanceled")
}
func (d *recordingDispatcher) GuestCheckedIn(context.Context, *domain.Access, *domain.User, *domain.Guest) {
	d.record("GuestCheckedIn")
}
func (d *recordingDispatcher) GuestPreRegistered(context.Context, *domain.Access, *domain.User, *domain.Guest) {
	d.record("GuestPreRegistered")
}
func (d *recordingDispatcher) VisitApprovalRequest(_ context.Context, _ *domain.Visit, _ *domain.User, approveURL, _ string) {
	d.mu.Lock()
	d.lastApproveURL = approveURL
	d.mu.Unlock()
	d.record("VisitApprovalRequest")
}
func (d *recordingDispatcher) VisitDecision(context.Context, *domain.Visit, domain.ApprovalDecision) {
	d.record("VisitDecision")
}
func (d *recordingDispatcher) VisitCheckedIn(context.Context, *domain.Visit, *domain.User) {
	d.record("VisitCheckedIn")
}

// recordingBus collects published subjects.
type recordingBus struct {
	mu       sync.Mutex
	subjects []string
}

func (b *recordingBus) Publish(_ context.Context, subject string, _ interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subjects = append(b.subjects, subject)
	return nil
}

func (b *recordingBus) Close() error { return nil }

func (b *recordingBus) published(subject string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, s := range b.subjects {
		if s == subject {
			n++
		}
	}
	return n
}
