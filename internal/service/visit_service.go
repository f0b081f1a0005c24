package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/porteria/visitor-access/internal/domain"
	"github.com/porteria/visitor-access/internal/notify"
	"github.com/porteria/visitor-access/internal/repo/postgres"
	"github.com/porteria/visitor-access/pkg/events"
	"github.com/porteria/visitor-access/pkg/logger"
)

type VisitService interface {
	Create(ctx context.Context, actor domain.Actor, req *domain.CreateVisitReq) (*domain.Visit, error)
	SelfRegister(ctx context.Context, companyID int64, req *domain.CreateVisitReq) (*domain.Visit, error)
	Get(ctx context.Context, actor domain.Actor, id int64) (*domain.Visit, error)
	List(ctx context.Context, actor domain.Actor, limit, offset int, status *domain.VisitStatus) ([]domain.Visit, error)
	Update(ctx context.Context, actor domain.Actor, id int64, patch domain.VisitPatch) (*domain.Visit, error)
	Approve(ctx context.Context, actor domain.Actor, id int64, now time.Time) (*domain.Visit, error)
	Reject(ctx context.Context, actor domain.Actor, id int64, now time.Time) (*domain.Visit, error)
	DecideByToken(ctx context.Context, token string, decision domain.ApprovalDecision, now time.Time) (*domain.Visit, error)
	CheckIn(ctx context.Context, actor domain.Actor, id int64, now time.Time) (*domain.Visit, error)
	CheckOut(ctx context.Context, actor domain.Actor, id int64, photos []string, now time.Time) (*domain.Visit, error)
}

type visitService struct {
	visitRepo    postgres.VisitRepository
	approvalRepo postgres.ApprovalRepository
	companyRepo  postgres.CompanyRepository
	userRepo     postgres.UserRepository
	gate         *BlacklistGate
	tracker      *AttendanceTracker
	dispatcher   notify.Dispatcher
	eventBus     events.Publisher
	baseURL      string
	approvalTTL  time.Duration
}

func NewVisitService(
	visitRepo postgres.VisitRepository,
	approvalRepo postgres.ApprovalRepository,
	companyRepo postgres.CompanyRepository,
	userRepo postgres.UserRepository,
	gate *BlacklistGate,
	tracker *AttendanceTracker,
	dispatcher notify.Dispatcher,
	eventBus events.Publisher,
	baseURL string,
	approvalTTL time.Duration,
) VisitService {
	return &visitService{
		visitRepo:    visitRepo,
		approvalRepo: approvalRepo,
		companyRepo:  companyRepo,
		userRepo:     userRepo,
		gate:         gate,
		tracker:      tracker,
		dispatcher:   dispatcher,
		eventBus:     eventBus,
		baseURL:      baseURL,
		approvalTTL:  approvalTTL,
	}
}

func (s *visitService) Create(ctx context.Context, actor domain.Actor, req *domain.CreateVisitReq) (*domain.Visit, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	// Staff see the match as a warning upstream; creation itself proceeds.
	if entry := s.gate.Check(ctx, actor.CompanyID, req.VisitorEmail); entry != nil {
		logger.WarnContext(ctx, "Visit created for blacklisted visitor",
			"identifier", req.VisitorEmail, "reason", entry.Reason)
	}
	return s.create(ctx, actor.CompanyID, req)
}

// SelfRegister is the kiosk/public path. A blacklist match is a hard
// refusal here, and the caller learns nothing beyond the refusal.
func (s *visitService) SelfRegister(ctx context.Context, companyID int64, req *domain.CreateVisitReq) (*domain.Visit, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if entry := s.gate.Check(ctx, companyID, req.VisitorEmail); entry != nil {
		return nil, domain.BlacklistedError("registration refused")
	}
	return s.create(ctx, companyID, req)
}

func (s *visitService) create(ctx context.Context, companyID int64, req *domain.CreateVisitReq) (*domain.Visit, error) {
	host, err := s.userRepo.FindByID(ctx, req.HostID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up host: %w", err)
	}
	if host == nil || host.CompanyID != companyID {
		return nil, domain.ValidationError("host not found")
	}

	visit, err := s.visitRepo.Create(ctx, &domain.Visit{
		CompanyID:      companyID,
		VisitorName:    req.VisitorName,
		VisitorEmail:   req.VisitorEmail,
		VisitorPhone:   req.VisitorPhone,
		VisitorCompany: req.VisitorCompany,
		VisitorPhoto:   req.VisitorPhoto,
		HostID:         req.HostID,
		Reason:         req.Reason,
		ScheduledDate:  req.ScheduledDate,
		AccessCode:     req.AccessCode,
		VisitType:      req.VisitType,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create visit: %w", err)
	}

	if err := s.eventBus.Publish(ctx, events.VisitCreated, events.VisitCreatedEvent{
		VisitID:       visit.ID,
		CompanyID:     visit.CompanyID,
		VisitorEmail:  visit.VisitorEmail,
		HostID:        visit.HostID,
		ScheduledDate: visit.ScheduledDate,
		Status:        string(visit.Status),
		CreatedAt:     visit.CreatedAt,
	}); err != nil {
		logger.WarnContext(ctx, "Failed to publish visit created event", "error", err, "visit_id", visit.ID)
	}

	company, err := s.companyRepo.GetByID(ctx, companyID)
	if err != nil {
		logger.WarnContext(ctx, "Company settings lookup failed", "error", err, "company_id", companyID)
	}

	if company != nil && company.Settings.AutoApproveVisits {
		return s.applyDecision(ctx, visit, domain.DecisionApproved, time.Now())
	}

	// Manual approval: a single-use token pair for the host's one-click
	// decision from the email.
	s.issueApproval(ctx, visit, host)

	return visit, nil
}

// issueApproval creates the decision token and emails the host. Failures
// are logged only; the visit still exists and the host can decide in-app.
func (s *visitService) issueApproval(ctx context.Context, visit *domain.Visit, host *domain.User) {
	token := uuid.NewString()
	if _, err := s.approvalRepo.Create(ctx, visit.ID, token, time.Now().Add(s.approvalTTL)); err != nil {
		logger.ErrorContext(ctx, "Failed to create approval token", "error", err, "visit_id", visit.ID)
		return
	}

	approveURL := fmt.Sprintf("%s/v1/visits/approve/%s", s.baseURL, token)
	rejectURL := fmt.Sprintf("%s/v1/visits/reject/%s", s.baseURL, token)
	s.dispatcher.VisitApprovalRequest(ctx, visit, host, approveURL, rejectURL)
}

func (s *visitService) Get(ctx context.Context, actor domain.Actor, id int64) (*domain.Visit, error) {
	visit, err := s.visitRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get visit: %w", err)
	}
	if visit == nil || !s.visible(actor, visit) {
		return nil, domain.NotFoundError("visit not found")
	}
	return visit, nil
}

func (s *visitService) List(ctx context.Context, actor domain.Actor, limit, offset int, status *domain.VisitStatus) ([]domain.Visit, error) {
	if actor.IsAdmin() {
		return s.visitRepo.List(ctx, actor.CompanyID, limit, offset, status)
	}
	return s.visitRepo.ListByHost(ctx, actor.ID, limit, offset)
}

func (s *visitService) Update(ctx context.Context, actor domain.Actor, id int64, patch domain.VisitPatch) (*domain.Visit, error) {
	visit, err := s.visitRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get visit: %w", err)
	}
	if visit == nil || !s.visible(actor, visit) {
		return nil, domain.NotFoundError("visit not found")
	}
	if visit.Status.Terminal() {
		return nil, domain.InvalidStateError("visit is closed")
	}
	updated, err := s.visitRepo.Update(ctx, id, patch)
	if err != nil {
		return nil, fmt.Errorf("failed to update visit: %w", err)
	}
	if updated == nil {
		return nil, domain.NotFoundError("visit not found")
	}
	return updated, nil
}

func (s *visitService) Approve(ctx context.Context, actor domain.Actor, id int64, now time.Time) (*domain.Visit, error) {
	return s.decide(ctx, actor, id, domain.DecisionApproved, now)
}

func (s *visitService) Reject(ctx context.Context, actor domain.Actor, id int64, now time.Time) (*domain.Visit, error) {
	return s.decide(ctx, actor, id, domain.DecisionRejected, now)
}

func (s *visitService) decide(ctx context.Context, actor domain.Actor, id int64, decision domain.ApprovalDecision, now time.Time) (*domain.Visit, error) {
	visit, err := s.visitRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get visit: %w", err)
	}
	if visit == nil || !s.visible(actor, visit) {
		return nil, domain.NotFoundError("visit not found")
	}
	// Only the host being visited, or an admin, decides.
	if !actor.IsSystem() && !actor.IsAdmin() && visit.HostID != actor.ID {
		return nil, domain.ForbiddenError("only the host or an administrator may decide")
	}
	return s.applyDecision(ctx, visit, decision, now)
}

// DecideByToken redeems a one-click email link. The token is consumed
// atomically: a second click, or a click after expiry, changes nothing.
func (s *visitService) DecideByToken(ctx context.Context, token string, decision domain.ApprovalDecision, now time.Time) (*domain.Visit, error) {
	approval, err := s.approvalRepo.GetByToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to get approval: %w", err)
	}
	if approval == nil {
		return nil, domain.NotFoundError("approval not found")
	}
	if approval.Status == domain.ApprovalDecided {
		return nil, domain.InvalidStateError("approval already decided")
	}
	if approval.Expired(now) {
		return nil, domain.ExpiredTokenError("approval link has expired")
	}

	consumed, err := s.approvalRepo.Decide(ctx, token, decision, now)
	if err != nil {
		return nil, fmt.Errorf("failed to consume approval: %w", err)
	}
	if !consumed {
		return nil, domain.InvalidStateError("approval already decided")
	}

	visit, err := s.visitRepo.GetByID(ctx, approval.VisitID)
	if err != nil {
		return nil, fmt.Errorf("failed to get visit: %w", err)
	}
	if visit == nil {
		return nil, domain.NotFoundError("visit not found")
	}
	return s.applyDecision(ctx, visit, decision, now)
}

// applyDecision moves a pending visit to approved or rejected, notifies
// the visitor, and runs the company's auto-check-in cascade on approval.
func (s *visitService) applyDecision(ctx context.Context, visit *domain.Visit, decision domain.ApprovalDecision, now time.Time) (*domain.Visit, error) {
	target := domain.VisitRejected
	subject := events.VisitRejected
	if decision == domain.DecisionApproved {
		target = domain.VisitApproved
		subject = events.VisitApproved
	}
	if !visit.Status.CanTransition(target) {
		return nil, domain.InvalidStateError("visit is not pending")
	}

	var (
		moved bool
		err   error
	)
	if target == domain.VisitApproved {
		moved, err = s.visitRepo.Approve(ctx, visit.ID)
	} else {
		moved, err = s.visitRepo.Reject(ctx, visit.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to record decision: %w", err)
	}
	if !moved {
		return nil, domain.InvalidStateError("visit is not pending")
	}
	visit.Status = target

	s.dispatcher.VisitDecision(ctx, visit, decision)

	if err := s.eventBus.Publish(ctx, subject, events.VisitDecisionEvent{
		VisitID:   visit.ID,
		Decision:  string(decision),
		DecidedAt: now,
	}); err != nil {
		logger.WarnContext(ctx, "Failed to publish visit decision event", "error", err, "visit_id", visit.ID)
	}

	if decision == domain.DecisionApproved {
		company, err := s.companyRepo.GetByID(ctx, visit.CompanyID)
		if err != nil {
			logger.WarnContext(ctx, "Company settings lookup failed", "error", err, "company_id", visit.CompanyID)
		}
		if company != nil && company.Settings.AutoCheckInOnApprove {
			return s.checkIn(ctx, visit, now)
		}
	}

	return visit, nil
}

func (s *visitService) CheckIn(ctx context.Context, actor domain.Actor, id int64, now time.Time) (*domain.Visit, error) {
	visit, err := s.visitRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get visit: %w", err)
	}
	if visit == nil || !s.visible(actor, visit) {
		return nil, domain.NotFoundError("visit not found")
	}
	return s.checkIn(ctx, visit, now)
}

func (s *visitService) checkIn(ctx context.Context, visit *domain.Visit, now time.Time) (*domain.Visit, error) {
	if !visit.Status.CanTransition(domain.VisitCheckedIn) {
		return nil, domain.InvalidStateError("visit is not approved")
	}
	moved, err := s.visitRepo.CheckIn(ctx, visit.ID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to check in visit: %w", err)
	}
	if !moved {
		return nil, domain.InvalidStateError("visit is not approved")
	}
	visit.Status = domain.VisitCheckedIn
	visit.CheckInTime = &now

	// The visit check-in is authoritative. Marking the linked access
	// guest is best effort and never unwinds the check-in.
	if visit.LinkedToAccess() {
		s.tracker.ReconcileVisit(ctx, visit, now)
	}

	host, err := s.userRepo.FindByID(ctx, visit.HostID)
	if err != nil {
		logger.WarnContext(ctx, "Host lookup failed", "error", err, "visit_id", visit.ID)
	}
	s.dispatcher.VisitCheckedIn(ctx, visit, host)

	if err := s.eventBus.Publish(ctx, events.VisitCheckedIn, events.VisitCheckedInEvent{
		VisitID:     visit.ID,
		AccessCode:  visit.AccessCode,
		CheckInTime: now,
	}); err != nil {
		logger.WarnContext(ctx, "Failed to publish visit check-in event", "error", err, "visit_id", visit.ID)
	}

	return visit, nil
}

func (s *visitService) CheckOut(ctx context.Context, actor domain.Actor, id int64, photos []string, now time.Time) (*domain.Visit, error) {
	visit, err := s.visitRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get visit: %w", err)
	}
	if visit == nil || !s.visible(actor, visit) {
		return nil, domain.NotFoundError("visit not found")
	}

	if !visit.Status.CanTransition(domain.VisitCompleted) {
		return nil, domain.InvalidStateError("visit is not checked in")
	}
	if photos == nil {
		photos = []string{}
	}
	if len(photos) > domain.MaxCheckOutPhotos {
		photos = photos[:domain.MaxCheckOutPhotos]
	}

	moved, err := s.visitRepo.Complete(ctx, visit.ID, now, photos)
	if err != nil {
		return nil, fmt.Errorf("failed to check out visit: %w", err)
	}
	if !moved {
		return nil, domain.InvalidStateError("visit is not checked in")
	}
	visit.Status = domain.VisitCompleted
	visit.CheckOutTime = &now
	visit.CheckOutPhotos = photos

	if err := s.eventBus.Publish(ctx, events.VisitCompleted, events.VisitCompletedEvent{
		VisitID:      visit.ID,
		CheckOutTime: now,
		PhotoCount:   len(photos),
	}); err != nil {
		logger.WarnContext(ctx, "Failed to publish visit completed event", "error", err, "visit_id", visit.ID)
	}

	return visit, nil
}

func (s *visitService) visible(actor domain.Actor, visit *domain.Visit) bool {
	if actor.IsSystem() {
		return true
	}
	return visit.CompanyID == actor.CompanyID
}
