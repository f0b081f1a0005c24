package domain

import (
	"strings"
	"time"
)

type AccessStatus string

const (
	AccessActive    AccessStatus = "active"
	AccessFinalized AccessStatus = "finalized"
	AccessCancelled AccessStatus = "cancelled"
)

func ParseAccessStatus(s string) (AccessStatus, bool) {
	switch AccessStatus(s) {
	case AccessActive, AccessFinalized, AccessCancelled:
		return AccessStatus(s), true
	default:
		return "", false
	}
}

// Terminal reports whether no further status transition is allowed.
// Active is the only non-terminal status.
func (s AccessStatus) Terminal() bool { return s != AccessActive }

type AccessType string

const (
	AccessReunion  AccessType = "reunion"
	AccessProyecto AccessType = "proyecto"
	AccessEvento   AccessType = "evento"
	AccessVisita   AccessType = "visita"
	AccessOtro     AccessType = "otro"
)

func ParseAccessType(s string) (AccessType, bool) {
	switch AccessType(s) {
	case AccessReunion, AccessProyecto, AccessEvento, AccessVisita, AccessOtro:
		return AccessType(s), true
	default:
		return "", false
	}
}

type AttendanceStatus string

const (
	AttendancePending AttendanceStatus = "pendiente"
	AttendanceShowed  AttendanceStatus = "asistio"
	AttendanceNoShow  AttendanceStatus = "no-asistio"
)

// Terminal reports whether the attendance status can no longer change.
// Pendiente is the only non-terminal state.
func (s AttendanceStatus) Terminal() bool { return s != AttendancePending }

// GuestOrigin records how a guest entered the list. It drives which
// notification variant is sent when the guest checks in: guests who
// pre-registered themselves already triggered a "guest arrived" email,
// so the creator is not notified again at check-in.
type GuestOrigin string

const (
	OriginInvited       GuestOrigin = "invited"
	OriginPreRegistered GuestOrigin = "pre_registered"
	OriginAddedInEdit   GuestOrigin = "added_in_edit"
)

// notifyCreatorOnCheckIn is the notification selection table keyed by
// guest origin.
var notifyCreatorOnCheckIn = map[GuestOrigin]bool{
	OriginInvited:       true,
	OriginPreRegistered: false,
	OriginAddedInEdit:   true,
}

func (o GuestOrigin) NotifyCreatorOnCheckIn() bool {
	notify, ok := notifyCreatorOnCheckIn[o]
	if !ok {
		return true
	}
	return notify
}

type AccessSettings struct {
	SendAccessByEmail     bool   `json:"send_access_by_email"`
	EnablePreRegistration bool   `json:"enable_pre_registration"`
	NoExpiration          bool   `json:"no_expiration"`
	Language              string `json:"language"`
}

type Guest struct {
	Name             string           `json:"name"`
	Email            string           `json:"email"`
	Phone            string           `json:"phone"`
	Company          string           `json:"company"`
	Photo            string           `json:"photo"`
	AttendanceStatus AttendanceStatus `json:"attendance_status"`
	CheckInTime      *time.Time       `json:"check_in_time,omitempty"`
	QRCode           string           `json:"qr_code,omitempty"`
	Origin           GuestOrigin      `json:"origin"`
}

// MarkAttended transitions pendiente -> asistio and stamps the check-in
// time. Returns false (leaving the guest untouched) when the guest is
// already in a terminal attendance state; repeated check-in attempts are
// tolerated silently.
func (g *Guest) MarkAttended(at time.Time) bool {
	if g.AttendanceStatus != AttendancePending {
		return false
	}
	g.AttendanceStatus = AttendanceShowed
	g.CheckInTime = &at
	return true
}

// MarkAbsent transitions pendiente -> no-asistio. Guests who already
// showed up (or were already marked absent) are never touched.
func (g *Guest) MarkAbsent() bool {
	if g.AttendanceStatus != AttendancePending {
		return false
	}
	g.AttendanceStatus = AttendanceNoShow
	return true
}

type Access struct {
	ID             int64          `json:"id"`
	CompanyID      int64          `json:"company_id"`
	CreatorID      int64          `json:"creator_id"`
	EventName      string         `json:"event_name"`
	Type           AccessType     `json:"type"`
	Location       string         `json:"location"`
	EventImage     string         `json:"event_image,omitempty"`
	AdditionalInfo string         `json:"additional_info,omitempty"`
	StartDate      time.Time      `json:"start_date"`
	EndDate        time.Time      `json:"end_date"`
	Status         AccessStatus   `json:"status"`
	AccessCode     string         `json:"access_code"`
	Settings       AccessSettings `json:"settings"`
	InvitedUsers   []Guest        `json:"invited_users"`
	ReminderSent   bool           `json:"reminder_sent"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

func (a *Access) IsActive() bool { return a.Status == AccessActive }

// GuestIndexByIdentity locates a guest by exact email match, falling back
// to exact phone match when no email is supplied or nothing matched.
// Matching is case-sensitive as stored. Returns -1 when nothing matched.
func (a *Access) GuestIndexByIdentity(email, phone string) int {
	if email != "" {
		for i := range a.InvitedUsers {
			if a.InvitedUsers[i].Email != "" && a.InvitedUsers[i].Email == email {
				return i
			}
		}
	}
	if phone != "" {
		for i := range a.InvitedUsers {
			if a.InvitedUsers[i].Phone != "" && a.InvitedUsers[i].Phone == phone {
				return i
			}
		}
	}
	return -1
}

// HasGuestConflict reports whether an existing guest already claims the
// candidate's non-empty email or non-empty phone. This is the
// de-duplication key at insertion time.
func (a *Access) HasGuestConflict(email, phone string) bool {
	for i := range a.InvitedUsers {
		g := &a.InvitedUsers[i]
		if email != "" && g.Email != "" && g.Email == email {
			return true
		}
		if phone != "" && g.Phone != "" && g.Phone == phone {
			return true
		}
	}
	return false
}

type GuestReq struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Company string `json:"company"`
	Photo   string `json:"photo"`
}

func (g *GuestReq) Validate() error {
	if strings.TrimSpace(g.Name) == "" {
		return ValidationError("guest name is required")
	}
	if g.Email == "" && g.Phone == "" {
		return ValidationError("guest requires an email or a phone")
	}
	if g.Email != "" && !ValidEmail(g.Email) {
		return ValidationError("guest email is malformed")
	}
	return nil
}

// AccessSettingsReq uses pointers so absent fields fall back to their
// defaults: send_access_by_email defaults true, the rest default false.
type AccessSettingsReq struct {
	SendAccessByEmail     *bool  `json:"send_access_by_email,omitempty"`
	EnablePreRegistration *bool  `json:"enable_pre_registration,omitempty"`
	NoExpiration          *bool  `json:"no_expiration,omitempty"`
	Language              string `json:"language,omitempty"`
}

// Normalize resolves the request against defaults.
func (r *AccessSettingsReq) Normalize(defaultLanguage string) AccessSettings {
	s := AccessSettings{
		SendAccessByEmail: true,
		Language:          defaultLanguage,
	}
	if r == nil {
		return s
	}
	if r.SendAccessByEmail != nil {
		s.SendAccessByEmail = *r.SendAccessByEmail
	}
	if r.EnablePreRegistration != nil {
		s.EnablePreRegistration = *r.EnablePreRegistration
	}
	if r.NoExpiration != nil {
		s.NoExpiration = *r.NoExpiration
	}
	if r.Language != "" {
		s.Language = r.Language
	}
	return s
}

type CreateAccessReq struct {
	EventName      string             `json:"event_name"`
	Type           string             `json:"type"`
	Location       string             `json:"location"`
	EventImage     string             `json:"event_image"`
	AdditionalInfo string             `json:"additional_info"`
	StartDate      time.Time          `json:"start_date"`
	EndDate        time.Time          `json:"end_date"`
	Settings       *AccessSettingsReq `json:"settings,omitempty"`
	InvitedUsers   []GuestReq         `json:"invited_users"`
}

type AccessPatch struct {
	EndDate        *time.Time `json:"end_date,omitempty"`
	Location       *string    `json:"location,omitempty"`
	EventImage     *string    `json:"event_image,omitempty"`
	AdditionalInfo *string    `json:"additional_info,omitempty"`
	InvitedUsers   []GuestReq `json:"invited_users,omitempty"`
}

// ValidEmail is a deliberately loose shape check; delivery failures are
// handled downstream by the mailer.
func ValidEmail(email string) bool {
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 {
		return false
	}
	if strings.ContainsAny(email, " \t\n") {
		return false
	}
	return strings.Contains(email[at+1:], ".")
}
