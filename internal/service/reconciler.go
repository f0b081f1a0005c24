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

// Reconciler runs the periodic sweep: finalize expired accesses, then
// fire due start-of-window reminders. Both passes are idempotent, so the
// sweep can run as often as the scheduler likes. It runs on its own
// timer, decoupled from any read request.
type Reconciler struct {
	accessRepo postgres.AccessRepository
	userRepo   postgres.UserRepository
	accessSvc  AccessService
	dispatcher notify.Dispatcher
	eventBus   events.Publisher
}

func NewReconciler(
	accessRepo postgres.AccessRepository,
	userRepo postgres.UserRepository,
	accessSvc AccessService,
	dispatcher notify.Dispatcher,
	eventBus events.Publisher,
) *Reconciler {
	return &Reconciler{
		accessRepo: accessRepo,
		userRepo:   userRepo,
		accessSvc:  accessSvc,
		dispatcher: dispatcher,
		eventBus:   eventBus,
	}
}

// RunSweep executes one full reconciliation pass. Errors inside the pass
// are logged per access; one bad record never stalls the rest.
func (r *Reconciler) RunSweep(ctx context.Context, now time.Time) {
	if n, err := r.FinalizeExpired(ctx, now); err != nil {
		logger.ErrorContext(ctx, "Expiration sweep failed", "error", err)
	} else if n > 0 {
		logger.InfoContext(ctx, "Expired accesses finalized", "count", n)
	}

	if n, err := r.SendDueReminders(ctx, now); err != nil {
		logger.ErrorContext(ctx, "Reminder sweep failed", "error", err)
	} else if n > 0 {
		logger.InfoContext(ctx, "Access reminders dispatched", "count", n)
	}
}

// FinalizeExpired finalizes every active access whose window has closed.
// Finalize is only effective while the access is active, so re-running
// on the same now is a no-op.
func (r *Reconciler) FinalizeExpired(ctx context.Context, now time.Time) (int, error) {
	expired, err := r.accessRepo.ListExpired(ctx, now)
	if err != nil {
		return 0, err
	}

	finalized := 0
	for i := range expired {
		err := r.accessSvc.Finalize(ctx, domain.SystemActor(), expired[i].ID, false, now)
		if err != nil {
			// Losing the finalize race to a concurrent sweep is fine.
			if domain.CodeOf(err) == domain.CodeInvalidState {
				continue
			}
			logger.ErrorContext(ctx, "Failed to finalize expired access",
				"error", err, "access_id", expired[i].ID)
			continue
		}
		finalized++
	}
	return finalized, nil
}

// SendDueReminders fires the one-time start reminder for every active
// access whose window has opened. The latch is claimed before any send:
// delivery is at-most-once, and a claim with failed sends is not
// retried.
func (r *Reconciler) SendDueReminders(ctx context.Context, now time.Time) (int, error) {
	due, err := r.accessRepo.ListReminderDue(ctx, now)
	if err != nil {
		return 0, err
	}

	sent := 0
	for i := range due {
		access := &due[i]

		claimed, err := r.accessRepo.ClaimReminder(ctx, access.ID)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to claim reminder latch",
				"error", err, "access_id", access.ID)
			continue
		}
		if !claimed {
			continue
		}

		recipients := 0
		if access.Settings.SendAccessByEmail {
			creator, err := r.userRepo.FindByID(ctx, access.CreatorID)
			if err != nil {
				logger.WarnContext(ctx, "Creator lookup failed", "error", err, "access_id", access.ID)
			}
			if creator != nil {
				r.dispatcher.AccessReminder(ctx, access, creator)
				recipients++
			}
			for j := range access.InvitedUsers {
				guest := &access.InvitedUsers[j]
				if guest.Email == "" {
					continue
				}
				// Reuses the payload issued at invitation time.
				r.dispatcher.GuestReminder(ctx, access, guest)
				recipients++
			}
		}

		if err := r.eventBus.Publish(ctx, events.AccessReminderSent, events.AccessReminderSentEvent{
			AccessID:   access.ID,
			Recipients: recipients,
			SentAt:     now,
		}); err != nil {
			logger.WarnContext(ctx, "Failed to publish reminder event", "error", err, "access_id", access.ID)
		}

		sent++
	}
	return sent, nil
}
