package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/porteria/visitor-access/internal/domain"
	"github.com/porteria/visitor-access/internal/notify"
	"github.com/porteria/visitor-access/internal/platform/qr"
	"github.com/porteria/visitor-access/internal/repo/postgres"
	"github.com/porteria/visitor-access/pkg/events"
	"github.com/porteria/visitor-access/pkg/logger"
)

type AccessService interface {
	Create(ctx context.Context, actor domain.Actor, req *domain.CreateAccessReq) (*domain.Access, []string, error)
	Get(ctx context.Context, actor domain.Actor, id int64) (*domain.Access, error)
	List(ctx context.Context, actor domain.Actor, limit, offset int, status *domain.AccessStatus) ([]domain.Access, error)
	Update(ctx context.Context, actor domain.Actor, id int64, patch domain.AccessPatch) (*domain.Access, []string, error)
	AddGuests(ctx context.Context, actor domain.Actor, id int64, guests []domain.GuestReq, origin domain.GuestOrigin) ([]domain.Guest, []string, error)
	Cancel(ctx context.Context, actor domain.Actor, id int64) error
	Finalize(ctx context.Context, actor domain.Actor, id int64, manual bool, now time.Time) error

	ListPublicActive(ctx context.Context, now time.Time) ([]domain.Access, error)
	PublicInfo(ctx context.Context, id int64) (*domain.Access, error)
	PreRegister(ctx context.Context, id int64, req *domain.GuestReq) (*domain.Guest, error)
	CheckInByCode(ctx context.Context, accessCode, email, phone string, at time.Time) (*domain.Guest, error)
}

type accessService struct {
	accessRepo      postgres.AccessRepository
	userRepo        postgres.UserRepository
	gate            *BlacklistGate
	tracker         *AttendanceTracker
	dispatcher      notify.Dispatcher
	eventBus        events.Publisher
	defaultLanguage string
}

func NewAccessService(
	accessRepo postgres.AccessRepository,
	userRepo postgres.UserRepository,
	gate *BlacklistGate,
	tracker *AttendanceTracker,
	dispatcher notify.Dispatcher,
	eventBus events.Publisher,
	defaultLanguage string,
) AccessService {
	return &accessService{
		accessRepo:      accessRepo,
		userRepo:        userRepo,
		gate:            gate,
		tracker:         tracker,
		dispatcher:      dispatcher,
		eventBus:        eventBus,
		defaultLanguage: defaultLanguage,
	}
}

func (s *accessService) Create(ctx context.Context, actor domain.Actor, req *domain.CreateAccessReq) (*domain.Access, []string, error) {
	if req.EventName == "" {
		return nil, nil, domain.ValidationError("event name is required")
	}
	accessType, ok := domain.ParseAccessType(req.Type)
	if !ok {
		return nil, nil, domain.ValidationError(fmt.Sprintf("unknown access type %q", req.Type))
	}
	if req.StartDate.IsZero() || req.EndDate.IsZero() {
		return nil, nil, domain.ValidationError("start and end dates are required")
	}
	if req.EndDate.Before(req.StartDate) {
		return nil, nil, domain.ValidationError("end date must not precede start date")
	}

	access := &domain.Access{
		CompanyID:      actor.CompanyID,
		CreatorID:      actor.ID,
		EventName:      req.EventName,
		Type:           accessType,
		Location:       req.Location,
		EventImage:     req.EventImage,
		AdditionalInfo: req.AdditionalInfo,
		StartDate:      req.StartDate,
		EndDate:        req.EndDate,
		AccessCode:     uuid.NewString(),
		Settings:       req.Settings.Normalize(s.defaultLanguage),
		InvitedUsers:   []domain.Guest{},
	}

	var warnings []string
	for i := range req.InvitedUsers {
		g := &req.InvitedUsers[i]
		if err := g.Validate(); err != nil {
			return nil, nil, err
		}
		if access.HasGuestConflict(g.Email, g.Phone) {
			warnings = append(warnings, fmt.Sprintf("duplicate guest skipped: %s", g.Name))
			continue
		}
		// Advisory only for staff-initiated creation: the caller sees the
		// warning and may proceed anyway.
		if entry := s.gate.Check(ctx, actor.CompanyID, g.Email); entry != nil {
			warnings = append(warnings, fmt.Sprintf("guest %s is blacklisted: %s", g.Email, entry.Reason))
		}
		access.InvitedUsers = append(access.InvitedUsers, domain.Guest{
			Name:             g.Name,
			Email:            g.Email,
			Phone:            g.Phone,
			Company:          g.Company,
			Photo:            g.Photo,
			AttendanceStatus: domain.AttendancePending,
			Origin:           domain.OriginInvited,
		})
	}

	created, err := s.accessRepo.Create(ctx, access)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create access: %w", err)
	}

	creator := s.creator(ctx, created)
	s.backfillGuestCodes(ctx, created, creator)

	if created.Settings.SendAccessByEmail {
		s.dispatcher.AccessCreated(ctx, created, creator)
		for i := range created.InvitedUsers {
			s.dispatcher.GuestInvited(ctx, created, &created.InvitedUsers[i])
		}
	}

	if err := s.eventBus.Publish(ctx, events.AccessCreated, events.AccessCreatedEvent{
		AccessID:   created.ID,
		CompanyID:  created.CompanyID,
		CreatorID:  created.CreatorID,
		EventName:  created.EventName,
		AccessCode: created.AccessCode,
		StartDate:  created.StartDate,
		EndDate:    created.EndDate,
		GuestCount: len(created.InvitedUsers),
		CreatedAt:  created.CreatedAt,
	}); err != nil {
		logger.WarnContext(ctx, "Failed to publish access created event", "error", err, "access_id", created.ID)
	}

	return created, warnings, nil
}

func (s *accessService) Get(ctx context.Context, actor domain.Actor, id int64) (*domain.Access, error) {
	access, err := s.accessRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get access: %w", err)
	}
	if access == nil || !s.visible(actor, access) {
		return nil, domain.NotFoundError("access not found")
	}

	// Lazy backfill: guests added before QR generation succeeded get one
	// on the next read.
	s.backfillGuestCodes(ctx, access, s.creator(ctx, access))

	return access, nil
}

func (s *accessService) List(ctx context.Context, actor domain.Actor, limit, offset int, status *domain.AccessStatus) ([]domain.Access, error) {
	if actor.IsAdmin() {
		return s.accessRepo.List(ctx, actor.CompanyID, limit, offset, status)
	}
	return s.accessRepo.ListByCreator(ctx, actor.ID, limit, offset)
}

func (s *accessService) Update(ctx context.Context, actor domain.Actor, id int64, patch domain.AccessPatch) (*domain.Access, []string, error) {
	access, err := s.accessRepo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get access: %w", err)
	}
	if access == nil || !s.visible(actor, access) {
		return nil, nil, domain.NotFoundError("access not found")
	}
	if !access.IsActive() {
		return nil, nil, domain.InvalidStateError("access is not active")
	}

	// End date can only grow. Shortening attempts are a deliberate no-op
	// rather than an error.
	if patch.EndDate != nil {
		extended, err := s.accessRepo.ExtendEndDate(ctx, id, *patch.EndDate)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to extend access: %w", err)
		}
		if extended {
			if err := s.eventBus.Publish(ctx, events.AccessExtended, events.AccessExtendedEvent{
				AccessID:   access.ID,
				NewEndDate: *patch.EndDate,
				ExtendedBy: actor.ID,
				ExtendedAt: time.Now(),
			}); err != nil {
				logger.WarnContext(ctx, "Failed to publish access extended event", "error", err, "access_id", access.ID)
			}
		}
	}

	if patch.Location != nil || patch.EventImage != nil || patch.AdditionalInfo != nil {
		if _, err := s.accessRepo.UpdateInfo(ctx, id, patch); err != nil {
			return nil, nil, fmt.Errorf("failed to update access: %w", err)
		}
	}

	var warnings []string
	if len(patch.InvitedUsers) > 0 {
		_, w, err := s.AddGuests(ctx, actor, id, patch.InvitedUsers, domain.OriginAddedInEdit)
		if err != nil {
			return nil, nil, err
		}
		warnings = w
	}

	updated, err := s.accessRepo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to reload access: %w", err)
	}
	return updated, warnings, nil
}

func (s *accessService) AddGuests(ctx context.Context, actor domain.Actor, id int64, guests []domain.GuestReq, origin domain.GuestOrigin) ([]domain.Guest, []string, error) {
	access, err := s.accessRepo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get access: %w", err)
	}
	if access == nil || !s.visible(actor, access) {
		return nil, nil, domain.NotFoundError("access not found")
	}
	if !access.IsActive() {
		return nil, nil, domain.InvalidStateError("access is not active")
	}

	var warnings []string
	var added []domain.Guest
	for i := range guests {
		g := &guests[i]
		if err := g.Validate(); err != nil {
			return nil, nil, err
		}
		if access.HasGuestConflict(g.Email, g.Phone) {
			continue
		}
		if entry := s.gate.Check(ctx, access.CompanyID, g.Email); entry != nil {
			warnings = append(warnings, fmt.Sprintf("guest %s is blacklisted: %s", g.Email, entry.Reason))
		}
		guest := domain.Guest{
			Name:             g.Name,
			Email:            g.Email,
			Phone:            g.Phone,
			Company:          g.Company,
			Photo:            g.Photo,
			AttendanceStatus: domain.AttendancePending,
			Origin:           origin,
		}
		access.InvitedUsers = append(access.InvitedUsers, guest)
		added = append(added, guest)
	}

	if len(added) == 0 {
		return nil, warnings, nil
	}

	if err := s.accessRepo.UpdateGuests(ctx, access.ID, access.InvitedUsers); err != nil {
		return nil, nil, fmt.Errorf("failed to persist guests: %w", err)
	}

	creator := s.creator(ctx, access)
	s.backfillGuestCodes(ctx, access, creator)

	if access.Settings.SendAccessByEmail {
		start := len(access.InvitedUsers) - len(added)
		for i := start; i < len(access.InvitedUsers); i++ {
			s.dispatcher.GuestInvited(ctx, access, &access.InvitedUsers[i])
		}
	}

	if err := s.eventBus.Publish(ctx, events.GuestAdded, events.GuestAddedEvent{
		AccessID:   access.ID,
		GuestCount: len(added),
		Origin:     string(origin),
		AddedBy:    actor.ID,
	}); err != nil {
		logger.WarnContext(ctx, "Failed to publish guest added event", "error", err, "access_id", access.ID)
	}

	return added, warnings, nil
}

func (s *accessService) Cancel(ctx context.Context, actor domain.Actor, id int64) error {
	access, err := s.accessRepo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get access: %w", err)
	}
	if access == nil || !s.visible(actor, access) {
		return domain.NotFoundError("access not found")
	}
	if !access.IsActive() {
		return domain.InvalidStateError("access is not active")
	}
	if err := s.canManage(actor, access); err != nil {
		return err
	}

	canceled, err := s.accessRepo.Cancel(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to cancel access: %w", err)
	}
	if !canceled {
		return domain.InvalidStateError("access is not active")
	}
	access.Status = domain.AccessCancelled

	creator := s.creator(ctx, access)
	s.dispatcher.AccessCanceled(ctx, access, creator)
	for i := range access.InvitedUsers {
		s.dispatcher.GuestAccessCanceled(ctx, access, &access.InvitedUsers[i])
	}

	if err := s.eventBus.Publish(ctx, events.AccessCanceled, events.AccessCanceledEvent{
		AccessID:   access.ID,
		CanceledBy: actor.ID,
		CanceledAt: time.Now(),
	}); err != nil {
		logger.WarnContext(ctx, "Failed to publish access canceled event", "error", err, "access_id", access.ID)
	}

	return nil
}

func (s *accessService) Finalize(ctx context.Context, actor domain.Actor, id int64, manual bool, now time.Time) error {
	access, err := s.accessRepo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get access: %w", err)
	}
	if access == nil || !s.visible(actor, access) {
		return domain.NotFoundError("access not found")
	}
	if !access.IsActive() {
		return domain.InvalidStateError("access is not active")
	}
	if manual {
		if err := s.canManage(actor, access); err != nil {
			return err
		}
	}

	finalized, err := s.accessRepo.Finalize(ctx, id, access.Settings.NoExpiration, now)
	if err != nil {
		return fmt.Errorf("failed to finalize access: %w", err)
	}
	if !finalized {
		// A concurrent sweep got there first; finalize is idempotent.
		return domain.InvalidStateError("access is not active")
	}
	access.Status = domain.AccessFinalized

	absent := s.tracker.MarkAbsentIfPending(access)
	if absent > 0 {
		if err := s.accessRepo.UpdateGuests(ctx, access.ID, access.InvitedUsers); err != nil {
			logger.ErrorContext(ctx, "Failed to persist no-show guests after finalize",
				"error", err, "access_id", access.ID)
		}
	}

	if err := s.eventBus.Publish(ctx, events.AccessFinalized, events.AccessFinalizedEvent{
		AccessID:    access.ID,
		Manual:      manual,
		AbsentCount: absent,
		FinalizedAt: now,
	}); err != nil {
		logger.WarnContext(ctx, "Failed to publish access finalized event", "error", err, "access_id", access.ID)
	}

	return nil
}

func (s *accessService) ListPublicActive(ctx context.Context, now time.Time) ([]domain.Access, error) {
	return s.accessRepo.ListPublicActive(ctx, now)
}

func (s *accessService) PublicInfo(ctx context.Context, id int64) (*domain.Access, error) {
	access, err := s.accessRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get access: %w", err)
	}
	// Non-pre-registration accesses are invisible to the public, not
	// forbidden.
	if access == nil || !access.IsActive() || !access.Settings.EnablePreRegistration {
		return nil, domain.NotFoundError("access not found")
	}
	return access, nil
}

func (s *accessService) PreRegister(ctx context.Context, id int64, req *domain.GuestReq) (*domain.Guest, error) {
	access, err := s.accessRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get access: %w", err)
	}
	if access == nil || !access.Settings.EnablePreRegistration {
		return nil, domain.NotFoundError("access not found")
	}
	if !access.IsActive() {
		return nil, domain.InvalidStateError("access is not active")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	// Unauthenticated self-service: a blacklist match is a hard block,
	// unlike the advisory warning staff get.
	if entry := s.gate.Check(ctx, access.CompanyID, req.Email); entry != nil {
		return nil, domain.BlacklistedError("registration refused")
	}

	if access.HasGuestConflict(req.Email, req.Phone) {
		return nil, domain.ValidationError("guest is already registered")
	}

	guest := domain.Guest{
		Name:             req.Name,
		Email:            req.Email,
		Phone:            req.Phone,
		Company:          req.Company,
		Photo:            req.Photo,
		AttendanceStatus: domain.AttendancePending,
		Origin:           domain.OriginPreRegistered,
	}
	access.InvitedUsers = append(access.InvitedUsers, guest)

	if err := s.accessRepo.UpdateGuests(ctx, access.ID, access.InvitedUsers); err != nil {
		return nil, fmt.Errorf("failed to persist pre-registration: %w", err)
	}

	creator := s.creator(ctx, access)
	s.backfillGuestCodes(ctx, access, creator)

	// The "guest arrived" variant goes out now; check-in will not notify
	// the creator again for this guest.
	s.dispatcher.GuestPreRegistered(ctx, access, creator, &access.InvitedUsers[len(access.InvitedUsers)-1])
	if access.Settings.SendAccessByEmail {
		s.dispatcher.GuestInvited(ctx, access, &access.InvitedUsers[len(access.InvitedUsers)-1])
	}

	out := access.InvitedUsers[len(access.InvitedUsers)-1]
	return &out, nil
}

func (s *accessService) CheckInByCode(ctx context.Context, accessCode, email, phone string, at time.Time) (*domain.Guest, error) {
	access, err := s.accessRepo.GetByCode(ctx, accessCode)
	if err != nil {
		return nil, fmt.Errorf("failed to get access: %w", err)
	}
	if access == nil {
		return nil, domain.NotFoundError("access not found")
	}
	if !access.IsActive() {
		return nil, domain.InvalidStateError("access is not active")
	}

	idx := access.GuestIndexByIdentity(email, phone)
	if idx < 0 {
		return nil, domain.NotFoundError("no guest matches the given identity")
	}

	if _, err := s.tracker.MarkAttended(ctx, access, idx, at); err != nil {
		return nil, err
	}

	out := access.InvitedUsers[idx]
	return &out, nil
}

// visible scopes reads: the system actor sees everything, staff see
// their own company.
func (s *accessService) visible(actor domain.Actor, access *domain.Access) bool {
	if actor.IsSystem() {
		return true
	}
	return access.CompanyID == actor.CompanyID
}

// canManage enforces the cancellation/finalization ownership rule: hosts
// only manage accesses they created, admins manage any in their company.
func (s *accessService) canManage(actor domain.Actor, access *domain.Access) error {
	if actor.IsSystem() || actor.IsAdmin() {
		return nil
	}
	if access.CreatorID != actor.ID {
		return domain.ForbiddenError("only the creator or an administrator may do this")
	}
	return nil
}

func (s *accessService) creator(ctx context.Context, access *domain.Access) *domain.User {
	creator, err := s.userRepo.FindByID(ctx, access.CreatorID)
	if err != nil {
		logger.WarnContext(ctx, "Creator lookup failed", "error", err, "access_id", access.ID)
		return nil
	}
	return creator
}

// backfillGuestCodes generates the invitation payload for any guest with
// an identity and no code yet, then persists. Failures are logged and
// never fail the caller; the next read retries.
func (s *accessService) backfillGuestCodes(ctx context.Context, access *domain.Access, creator *domain.User) {
	hostName := ""
	if creator != nil {
		hostName = creator.Name
	}

	changed := false
	for i := range access.InvitedUsers {
		g := &access.InvitedUsers[i]
		if g.QRCode != "" || (g.Email == "" && g.Phone == "") {
			continue
		}
		encoded, err := qr.Encode(qr.Payload{
			Type:       qr.TypeAccessInvitation,
			AccessID:   access.ID,
			AccessCode: access.AccessCode,
			GuestName:  g.Name,
			GuestEmail: g.Email,
			EventName:  access.EventName,
			EventDate:  access.StartDate,
			Location:   access.Location,
			HostName:   hostName,
		})
		if err != nil {
			logger.WarnContext(ctx, "QR payload generation failed",
				"error", err, "access_id", access.ID, "guest", g.Name)
			continue
		}
		g.QRCode = encoded
		changed = true
	}

	if !changed {
		return
	}
	if err := s.accessRepo.UpdateGuests(ctx, access.ID, access.InvitedUsers); err != nil {
		logger.WarnContext(ctx, "Failed to persist guest QR codes", "error", err, "access_id", access.ID)
	}
}
