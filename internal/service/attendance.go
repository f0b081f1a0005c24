package service

import (
	"context"
	"time"

	"github.com/porteria/visitor-access/internal/domain"
	"github.com/porteria/visitor-access/internal/notify"
	"github.com/porteria/visitor-access/internal/repo/postgres"
	"github.com/porteria/visitor-access/pkg/events"
	"github.com/porteria/visitor-access/pkg/logger"
)

// AttendanceTracker owns the per-guest attendance state machine inside an
// Access and the identity-match linkage from Visit check-ins.
type AttendanceTracker struct {
	accessRepo postgres.AccessRepository
	userRepo   postgres.UserRepository
	dispatcher notify.Dispatcher
	eventBus   events.Publisher
}

func NewAttendanceTracker(
	accessRepo postgres.AccessRepository,
	userRepo postgres.UserRepository,
	dispatcher notify.Dispatcher,
	eventBus events.Publisher,
) *AttendanceTracker {
	return &AttendanceTracker{
		accessRepo: accessRepo,
		userRepo:   userRepo,
		dispatcher: dispatcher,
		eventBus:   eventBus,
	}
}

// MarkAttended transitions the guest at idx to asistio and persists the
// guest list. Returns false without error when the guest is already in a
// terminal attendance state; repeated check-ins are tolerated silently.
func (t *AttendanceTracker) MarkAttended(ctx context.Context, access *domain.Access, idx int, at time.Time) (bool, error) {
	if idx < 0 || idx >= len(access.InvitedUsers) {
		return false, domain.NotFoundError("guest not found in access")
	}

	guest := &access.InvitedUsers[idx]
	if !guest.MarkAttended(at) {
		return false, nil
	}

	if err := t.accessRepo.UpdateGuests(ctx, access.ID, access.InvitedUsers); err != nil {
		return false, err
	}

	if guest.Origin.NotifyCreatorOnCheckIn() {
		creator := t.creator(ctx, access)
		t.dispatcher.GuestCheckedIn(ctx, access, creator, guest)
	}

	if err := t.eventBus.Publish(ctx, events.GuestCheckedIn, events.GuestCheckedInEvent{
		AccessID:    access.ID,
		GuestEmail:  guest.Email,
		CheckInTime: at,
	}); err != nil {
		logger.WarnContext(ctx, "Failed to publish guest checked-in event", "error", err, "access_id", access.ID)
	}

	return true, nil
}

// MarkAbsentIfPending flips every still-pending guest to no-asistio and
// returns how many changed. Guests already in a terminal state are never
// touched. The caller persists the mutated list as part of finalize.
func (t *AttendanceTracker) MarkAbsentIfPending(access *domain.Access) int {
	changed := 0
	for i := range access.InvitedUsers {
		if access.InvitedUsers[i].MarkAbsent() {
			changed++
		}
	}
	return changed
}

// ReconcileVisit links a checked-in visit back to its Access guest list
// by identity match. Everything here is best-effort: the visit's own
// check-in already committed and is the source of truth, so failures are
// logged and never propagated.
func (t *AttendanceTracker) ReconcileVisit(ctx context.Context, visit *domain.Visit, at time.Time) {
	access, err := t.accessRepo.GetByCode(ctx, visit.AccessCode)
	if err != nil {
		logger.WarnContext(ctx, "Visit reconciliation: access lookup failed",
			"error", err, "visit_id", visit.ID, "access_code", visit.AccessCode)
		return
	}
	if access == nil {
		logger.WarnContext(ctx, "Visit reconciliation: no access for code",
			"visit_id", visit.ID, "access_code", visit.AccessCode)
		return
	}
	if !access.IsActive() {
		logger.WarnContext(ctx, "Visit reconciliation: access not active",
			"visit_id", visit.ID, "access_id", access.ID, "status", access.Status)
		return
	}

	idx := access.GuestIndexByIdentity(visit.VisitorEmail, visit.VisitorPhone)
	if idx < 0 {
		logger.WarnContext(ctx, "Visit reconciliation: no guest matched",
			"visit_id", visit.ID, "access_id", access.ID, "visitor_email", visit.VisitorEmail)
		return
	}

	if _, err := t.MarkAttended(ctx, access, idx, at); err != nil {
		logger.WarnContext(ctx, "Visit reconciliation: attendance update failed",
			"error", err, "visit_id", visit.ID, "access_id", access.ID)
	}
}

func (t *AttendanceTracker) creator(ctx context.Context, access *domain.Access) *domain.User {
	creator, err := t.userRepo.FindByID(ctx, access.CreatorID)
	if err != nil {
		logger.WarnContext(ctx, "Creator lookup failed", "error", err, "access_id", access.ID)
		return nil
	}
	return creator
}
