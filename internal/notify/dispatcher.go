// Package notify sends best-effort notifications. Every send failure is
// logged and swallowed: a missing email must never fail the state
// transition that triggered it.
package notify

import (
	"context"
	"fmt"

	"github.com/porteria/visitor-access/internal/domain"
	"github.com/porteria/visitor-access/internal/platform/mailer"
	"github.com/porteria/visitor-access/pkg/logger"
)

type Dispatcher interface {
	AccessCreated(ctx context.Context, access *domain.Access, creator *domain.User)
	GuestInvited(ctx context.Context, access *domain.Access, guest *domain.Guest)
	AccessReminder(ctx context.Context, access *domain.Access, creator *domain.User)
	GuestReminder(ctx context.Context, access *domain.Access, guest *domain.Guest)
	AccessCanceled(ctx context.Context, access *domain.Access, creator *domain.User)
	GuestAccessCanceled(ctx context.Context, access *domain.Access, guest *domain.Guest)
	GuestCheckedIn(ctx context.Context, access *domain.Access, creator *domain.User, guest *domain.Guest)
	GuestPreRegistered(ctx context.Context, access *domain.Access, creator *domain.User, guest *domain.Guest)
	VisitApprovalRequest(ctx context.Context, visit *domain.Visit, host *domain.User, approveURL, rejectURL string)
	VisitDecision(ctx context.Context, visit *domain.Visit, decision domain.ApprovalDecision)
	VisitCheckedIn(ctx context.Context, visit *domain.Visit, host *domain.User)
}

type emailDispatcher struct {
	mail mailer.Service
}

func NewEmailDispatcher(mail mailer.Service) Dispatcher {
	return &emailDispatcher{mail: mail}
}

func (d *emailDispatcher) send(ctx context.Context, toEmail, toName, subject, text string, logArgs ...any) {
	if toEmail == "" {
		return
	}
	if _, err := d.mail.Send(toEmail, toName, subject, text, ""); err != nil {
		args := append([]any{"error", err, "to", toEmail, "subject", subject}, logArgs...)
		logger.WarnContext(ctx, "Notification send failed", args...)
	}
}

func (d *emailDispatcher) AccessCreated(ctx context.Context, access *domain.Access, creator *domain.User) {
	if creator == nil {
		return
	}
	d.send(ctx, creator.Email, creator.Name,
		fmt.Sprintf("Access created: %s", access.EventName),
		fmt.Sprintf("Your access %q is active from %s to %s. Access code: %s",
			access.EventName, access.StartDate.Format("2006-01-02 15:04"),
			access.EndDate.Format("2006-01-02 15:04"), access.AccessCode),
		"access_id", access.ID)
}

func (d *emailDispatcher) GuestInvited(ctx context.Context, access *domain.Access, guest *domain.Guest) {
	d.send(ctx, guest.Email, guest.Name,
		fmt.Sprintf("You are invited: %s", access.EventName),
		fmt.Sprintf("Hi %s, you are invited to %q at %s on %s. Present this code at entry: %s",
			guest.Name, access.EventName, access.Location,
			access.StartDate.Format("2006-01-02 15:04"), guest.QRCode),
		"access_id", access.ID)
}

func (d *emailDispatcher) AccessReminder(ctx context.Context, access *domain.Access, creator *domain.User) {
	if creator == nil {
		return
	}
	d.send(ctx, creator.Email, creator.Name,
		fmt.Sprintf("Reminder: %s has started", access.EventName),
		fmt.Sprintf("Your access %q started at %s and runs until %s.",
			access.EventName, access.StartDate.Format("2006-01-02 15:04"),
			access.EndDate.Format("2006-01-02 15:04")),
		"access_id", access.ID)
}

func (d *emailDispatcher) GuestReminder(ctx context.Context, access *domain.Access, guest *domain.Guest) {
	d.send(ctx, guest.Email, guest.Name,
		fmt.Sprintf("Reminder: %s", access.EventName),
		fmt.Sprintf("Hi %s, a reminder for %q at %s. Your entry code: %s",
			guest.Name, access.EventName, access.Location, guest.QRCode),
		"access_id", access.ID)
}

func (d *emailDispatcher) AccessCanceled(ctx context.Context, access *domain.Access, creator *domain.User) {
	if creator == nil {
		return
	}
	d.send(ctx, creator.Email, creator.Name,
		fmt.Sprintf("Access cancelled: %s", access.EventName),
		fmt.Sprintf("Your access %q has been cancelled.", access.EventName),
		"access_id", access.ID)
}

func (d *emailDispatcher) GuestAccessCanceled(ctx context.Context, access *domain.Access, guest *domain.Guest) {
	d.send(ctx, guest.Email, guest.Name,
		fmt.Sprintf("Cancelled: %s", access.EventName),
		fmt.Sprintf("Hi %s, the event %q has been cancelled. Your invitation is no longer valid.",
			guest.Name, access.EventName),
		"access_id", access.ID)
}

func (d *emailDispatcher) GuestCheckedIn(ctx context.Context, access *domain.Access, creator *domain.User, guest *domain.Guest) {
	if creator == nil {
		return
	}
	d.send(ctx, creator.Email, creator.Name,
		fmt.Sprintf("Guest checked in: %s", guest.Name),
		fmt.Sprintf("%s checked in to %q.", guest.Name, access.EventName),
		"access_id", access.ID)
}

func (d *emailDispatcher) GuestPreRegistered(ctx context.Context, access *domain.Access, creator *domain.User, guest *domain.Guest) {
	if creator == nil {
		return
	}
	d.send(ctx, creator.Email, creator.Name,
		fmt.Sprintf("Guest registered: %s", guest.Name),
		fmt.Sprintf("%s registered for %q via the public registration page.",
			guest.Name, access.EventName),
		"access_id", access.ID)
}

func (d *emailDispatcher) VisitApprovalRequest(ctx context.Context, visit *domain.Visit, host *domain.User, approveURL, rejectURL string) {
	if host == nil {
		return
	}
	d.send(ctx, host.Email, host.Name,
		fmt.Sprintf("Visit request from %s", visit.VisitorName),
		fmt.Sprintf("%s (%s) requests a visit on %s.\nReason: %s\n\nApprove: %s\nReject: %s",
			visit.VisitorName, visit.VisitorCompany,
			visit.ScheduledDate.Format("2006-01-02 15:04"), visit.Reason,
			approveURL, rejectURL),
		"visit_id", visit.ID)
}

func (d *emailDispatcher) VisitDecision(ctx context.Context, visit *domain.Visit, decision domain.ApprovalDecision) {
	subject := "Your visit was rejected"
	body := fmt.Sprintf("Hi %s, your visit scheduled for %s was rejected.",
		visit.VisitorName, visit.ScheduledDate.Format("2006-01-02 15:04"))
	if decision == domain.DecisionApproved {
		subject = "Your visit was approved"
		body = fmt.Sprintf("Hi %s, your visit scheduled for %s was approved. See you there.",
			visit.VisitorName, visit.ScheduledDate.Format("2006-01-02 15:04"))
	}
	d.send(ctx, visit.VisitorEmail, visit.VisitorName, subject, body, "visit_id", visit.ID)
}

func (d *emailDispatcher) VisitCheckedIn(ctx context.Context, visit *domain.Visit, host *domain.User) {
	if host == nil {
		return
	}
	d.send(ctx, host.Email, host.Name,
		fmt.Sprintf("Visitor arrived: %s", visit.VisitorName),
		fmt.Sprintf("%s has checked in for the visit scheduled on %s.",
			visit.VisitorName, visit.ScheduledDate.Format("2006-01-02 15:04")),
		"visit_id", visit.ID)
}
