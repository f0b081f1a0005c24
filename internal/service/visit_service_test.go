package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/porteria/visitor-access/internal/domain"
)

type visitFixture struct {
	svc        VisitService
	visits     *memVisitRepo
	approvals  *memApprovalRepo
	accesses   *memAccessRepo
	companies  *memCompanyRepo
	blacklist  *memBlacklistRepo
	dispatcher *recordingDispatcher
	bus        *recordingBus
}

func newVisitFixture() *visitFixture {
	visitRepo := newMemVisitRepo()
	approvalRepo := newMemApprovalRepo()
	accessRepo := newMemAccessRepo()
	blacklistRepo := &memBlacklistRepo{}
	companyRepo := &memCompanyRepo{companies: map[int64]*domain.Company{
		1: {ID: 1, Name: "Acme"},
	}}
	users := &memUserRepo{users: map[int64]*domain.User{
		10: {ID: 10, CompanyID: 1, Name: "Host One", Email: "host1@acme.test", Role: "host"},
		11: {ID: 11, CompanyID: 1, Name: "Host Two", Email: "host2@acme.test", Role: "host"},
		12: {ID: 12, CompanyID: 1, Name: "Admin", Email: "admin@acme.test", Role: "admin"},
	}}
	dispatcher := newRecordingDispatcher()
	bus := &recordingBus{}
	gate := NewBlacklistGate(blacklistRepo)
	tracker := NewAttendanceTracker(accessRepo, users, dispatcher, bus)
	svc := NewVisitService(visitRepo, approvalRepo, companyRepo, users, gate, tracker,
		dispatcher, bus, "http://localhost:8080", 48*time.Hour)
	return &visitFixture{
		svc: svc, visits: visitRepo, approvals: approvalRepo, accesses: accessRepo,
		companies: companyRepo, blacklist: blacklistRepo, dispatcher: dispatcher, bus: bus,
	}
}

func validVisitReq() *domain.CreateVisitReq {
	return &domain.CreateVisitReq{
		VisitorName:   "Carlos Vega",
		VisitorEmail:  "carlos@visitor.test",
		HostID:        10,
		Reason:        "contract signing",
		ScheduledDate: time.Now().Add(2 * time.Hour),
	}
}

func TestCreateVisitIssuesApproval(t *testing.T) {
	f := newVisitFixture()
	visit, err := f.svc.Create(context.Background(), hostActor, validVisitReq())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if visit.Status != domain.VisitPending {
		t.Fatalf("status = %q, want pending", visit.Status)
	}
	if got := f.dispatcher.count("VisitApprovalRequest"); got != 1 {
		t.Fatalf("approval emails = %d, want 1", got)
	}
	if !strings.Contains(f.dispatcher.lastApproveURL, "/v1/visits/approve/") {
		t.Fatalf("approve URL %q missing token path", f.dispatcher.lastApproveURL)
	}
	if got := f.bus.published("visit.created"); got != 1 {
		t.Fatalf("visit.created events = %d, want 1", got)
	}
}

func TestCreateVisitRejectsUnknownHost(t *testing.T) {
	f := newVisitFixture()
	req := validVisitReq()
	req.HostID = 999
	if _, err := f.svc.Create(context.Background(), hostActor, req); domain.CodeOf(err) != domain.CodeValidationFailed {
		t.Fatalf("code = %q, want %q", domain.CodeOf(err), domain.CodeValidationFailed)
	}
}

func TestSelfRegisterBlacklistHardBlock(t *testing.T) {
	f := newVisitFixture()
	f.blacklist.rows = append(f.blacklist.rows, domain.BlacklistEntry{
		ID: 1, CompanyID: 1, Identifier: "carlos@visitor.test", Reason: "banned",
	})

	_, err := f.svc.SelfRegister(context.Background(), 1, validVisitReq())
	if domain.CodeOf(err) != domain.CodeBlacklisted {
		t.Fatalf("code = %q, want %q", domain.CodeOf(err), domain.CodeBlacklisted)
	}
	if visits, _ := f.visits.List(context.Background(), 1, 50, 0, nil); len(visits) != 0 {
		t.Fatal("blocked registration must not create a visit")
	}
}

func TestAutoApproveCascade(t *testing.T) {
	f := newVisitFixture()
	f.companies.companies[1].Settings.AutoApproveVisits = true

	visit, err := f.svc.Create(context.Background(), hostActor, validVisitReq())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if visit.Status != domain.VisitApproved {
		t.Fatalf("status = %q, want auto-approved", visit.Status)
	}
	if got := f.dispatcher.count("VisitApprovalRequest"); got != 0 {
		t.Fatalf("approval emails = %d, want 0 with auto-approve", got)
	}

	f.companies.companies[1].Settings.AutoCheckInOnApprove = true
	visit2, err := f.svc.Create(context.Background(), hostActor, validVisitReq())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if visit2.Status != domain.VisitCheckedIn {
		t.Fatalf("status = %q, want auto-checked-in", visit2.Status)
	}
	if visit2.CheckInTime == nil {
		t.Fatal("auto check-in must stamp the check-in time")
	}
}

func TestDecidePermissions(t *testing.T) {
	f := newVisitFixture()
	ctx := context.Background()
	visit, _ := f.svc.Create(ctx, hostActor, validVisitReq())

	now := time.Now()
	if _, err := f.svc.Approve(ctx, host2Actor, visit.ID, now); domain.CodeOf(err) != domain.CodeForbidden {
		t.Fatalf("non-host approve code = %q, want %q", domain.CodeOf(err), domain.CodeForbidden)
	}
	approved, err := f.svc.Approve(ctx, hostActor, visit.ID, now)
	if err != nil {
		t.Fatalf("host approve: %v", err)
	}
	if approved.Status != domain.VisitApproved {
		t.Fatalf("status = %q, want approved", approved.Status)
	}
	if got := f.dispatcher.count("VisitDecision"); got != 1 {
		t.Fatalf("decision emails = %d, want 1", got)
	}

	// Forward-only: a decided visit cannot be re-decided.
	if _, err := f.svc.Reject(ctx, adminActor, visit.ID, now); domain.CodeOf(err) != domain.CodeInvalidState {
		t.Fatalf("re-decide code = %q, want %q", domain.CodeOf(err), domain.CodeInvalidState)
	}
}

func createVisitWithToken(t *testing.T, f *visitFixture) (*domain.Visit, string) {
	t.Helper()
	visit, err := f.svc.Create(context.Background(), hostActor, validVisitReq())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	url := f.dispatcher.lastApproveURL
	token := url[strings.LastIndex(url, "/")+1:]
	if token == "" {
		t.Fatal("no approval token issued")
	}
	return visit, token
}

func TestDecideByToken(t *testing.T) {
	f := newVisitFixture()
	ctx := context.Background()
	visit, token := createVisitWithToken(t, f)

	now := time.Now()
	decided, err := f.svc.DecideByToken(ctx, token, domain.DecisionApproved, now)
	if err != nil {
		t.Fatalf("DecideByToken: %v", err)
	}
	if decided.ID != visit.ID || decided.Status != domain.VisitApproved {
		t.Fatalf("decided visit %d status %q, want %d approved", decided.ID, decided.Status, visit.ID)
	}

	// Second click on the same link.
	if _, err := f.svc.DecideByToken(ctx, token, domain.DecisionRejected, now); domain.CodeOf(err) != domain.CodeInvalidState {
		t.Fatalf("reused token code = %q, want %q", domain.CodeOf(err), domain.CodeInvalidState)
	}

	if _, err := f.svc.DecideByToken(ctx, "no-such-token", domain.DecisionApproved, now); domain.CodeOf(err) != domain.CodeNotFound {
		t.Fatalf("unknown token code = %q, want %q", domain.CodeOf(err), domain.CodeNotFound)
	}
}

func TestDecideByTokenExpired(t *testing.T) {
	f := newVisitFixture()
	ctx := context.Background()
	_, token := createVisitWithToken(t, f)

	late := time.Now().Add(72 * time.Hour)
	if _, err := f.svc.DecideByToken(ctx, token, domain.DecisionApproved, late); domain.CodeOf(err) != domain.CodeExpiredToken {
		t.Fatalf("expired token code = %q, want %q", domain.CodeOf(err), domain.CodeExpiredToken)
	}
	visit, _ := f.visits.GetByID(ctx, 1)
	if visit.Status != domain.VisitPending {
		t.Fatalf("visit status = %q, want untouched pending", visit.Status)
	}
}

func TestCheckInRequiresApproval(t *testing.T) {
	f := newVisitFixture()
	ctx := context.Background()
	visit, _ := f.svc.Create(ctx, hostActor, validVisitReq())

	now := time.Now()
	if _, err := f.svc.CheckIn(ctx, hostActor, visit.ID, now); domain.CodeOf(err) != domain.CodeInvalidState {
		t.Fatalf("pending check-in code = %q, want %q", domain.CodeOf(err), domain.CodeInvalidState)
	}

	if _, err := f.svc.Approve(ctx, hostActor, visit.ID, now); err != nil {
		t.Fatalf("approve: %v", err)
	}
	checked, err := f.svc.CheckIn(ctx, hostActor, visit.ID, now)
	if err != nil {
		t.Fatalf("check-in: %v", err)
	}
	if checked.Status != domain.VisitCheckedIn || checked.CheckInTime == nil {
		t.Fatalf("status = %q check_in=%v, want checked-in with time", checked.Status, checked.CheckInTime)
	}
	if got := f.dispatcher.count("VisitCheckedIn"); got != 1 {
		t.Fatalf("host arrival emails = %d, want 1", got)
	}
}

func TestCheckInReconcilesLinkedAccess(t *testing.T) {
	f := newVisitFixture()
	ctx := context.Background()

	f.accesses.Create(ctx, &domain.Access{
		CompanyID: 1, CreatorID: 10, EventName: "Works Visit", Type: domain.AccessVisita,
		StartDate: time.Now().Add(-time.Hour), EndDate: time.Now().Add(time.Hour),
		AccessCode: "code-works",
		InvitedUsers: []domain.Guest{
			{Name: "Carlos", Email: "carlos@visitor.test", AttendanceStatus: domain.AttendancePending, Origin: domain.OriginInvited},
		},
	})

	req := validVisitReq()
	req.AccessCode = "code-works"
	req.VisitType = domain.VisitTypeAccessCode
	visit, _ := f.svc.Create(ctx, hostActor, req)

	now := time.Now()
	if _, err := f.svc.Approve(ctx, hostActor, visit.ID, now); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := f.svc.CheckIn(ctx, hostActor, visit.ID, now); err != nil {
		t.Fatalf("check-in: %v", err)
	}

	access, _ := f.accesses.GetByCode(ctx, "code-works")
	if access.InvitedUsers[0].AttendanceStatus != domain.AttendanceShowed {
		t.Fatalf("linked guest status = %q, want asistio", access.InvitedUsers[0].AttendanceStatus)
	}
}

func TestCheckInSurvivesReconcileMismatch(t *testing.T) {
	f := newVisitFixture()
	ctx := context.Background()

	req := validVisitReq()
	req.AccessCode = "no-such-code"
	req.VisitType = domain.VisitTypeAccessCode
	visit, _ := f.svc.Create(ctx, hostActor, req)

	now := time.Now()
	if _, err := f.svc.Approve(ctx, hostActor, visit.ID, now); err != nil {
		t.Fatalf("approve: %v", err)
	}
	checked, err := f.svc.CheckIn(ctx, hostActor, visit.ID, now)
	if err != nil {
		t.Fatalf("check-in must succeed despite reconcile failure: %v", err)
	}
	if checked.Status != domain.VisitCheckedIn {
		t.Fatalf("status = %q, want checked-in", checked.Status)
	}
}

func TestCheckOut(t *testing.T) {
	f := newVisitFixture()
	ctx := context.Background()
	visit, _ := f.svc.Create(ctx, hostActor, validVisitReq())

	now := time.Now()
	if _, err := f.svc.CheckOut(ctx, hostActor, visit.ID, nil, now); domain.CodeOf(err) != domain.CodeInvalidState {
		t.Fatalf("checkout before check-in code = %q, want %q", domain.CodeOf(err), domain.CodeInvalidState)
	}

	if _, err := f.svc.Approve(ctx, hostActor, visit.ID, now); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := f.svc.CheckIn(ctx, hostActor, visit.ID, now); err != nil {
		t.Fatalf("check-in: %v", err)
	}

	photos := []string{"p1", "p2", "p3", "p4", "p5", "p6", "p7"}
	done, err := f.svc.CheckOut(ctx, hostActor, visit.ID, photos, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if done.Status != domain.VisitCompleted || done.CheckOutTime == nil {
		t.Fatalf("status = %q, want completed with checkout time", done.Status)
	}
	if len(done.CheckOutPhotos) != domain.MaxCheckOutPhotos {
		t.Fatalf("photos kept = %d, want truncated to %d", len(done.CheckOutPhotos), domain.MaxCheckOutPhotos)
	}
	if got := f.bus.published("visit.completed"); got != 1 {
		t.Fatalf("completed events = %d, want 1", got)
	}
}

func TestCheckOutWithoutPhotos(t *testing.T) {
	f := newVisitFixture()
	ctx := context.Background()
	visit, _ := f.svc.Create(ctx, hostActor, validVisitReq())

	now := time.Now()
	if _, err := f.svc.Approve(ctx, hostActor, visit.ID, now); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := f.svc.CheckIn(ctx, hostActor, visit.ID, now); err != nil {
		t.Fatalf("check-in: %v", err)
	}

	// Photos are optional on checkout. A nil slice must reach the store as
	// an empty array, never as NULL.
	done, err := f.svc.CheckOut(ctx, hostActor, visit.ID, nil, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("checkout without photos: %v", err)
	}
	if done.Status != domain.VisitCompleted {
		t.Fatalf("status = %q, want completed", done.Status)
	}
	if done.CheckOutPhotos == nil || len(done.CheckOutPhotos) != 0 {
		t.Fatalf("photos = %#v, want empty non-nil slice", done.CheckOutPhotos)
	}
}
