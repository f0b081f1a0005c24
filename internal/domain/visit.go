package domain

import (
	"strings"
	"time"
)

type VisitStatus string

const (
	VisitPending   VisitStatus = "pending"
	VisitApproved  VisitStatus = "approved"
	VisitRejected  VisitStatus = "rejected"
	VisitCheckedIn VisitStatus = "checked-in"
	VisitCompleted VisitStatus = "completed"
)

func ParseVisitStatus(s string) (VisitStatus, bool) {
	switch VisitStatus(s) {
	case VisitPending, VisitApproved, VisitRejected, VisitCheckedIn, VisitCompleted:
		return VisitStatus(s), true
	default:
		return "", false
	}
}

// CanTransition reports whether moving from s to next is a legal forward
// step. A visit never regresses.
func (s VisitStatus) CanTransition(next VisitStatus) bool {
	switch s {
	case VisitPending:
		return next == VisitApproved || next == VisitRejected
	case VisitApproved:
		return next == VisitCheckedIn
	case VisitCheckedIn:
		return next == VisitCompleted
	default:
		return false
	}
}

func (s VisitStatus) Terminal() bool {
	return s == VisitRejected || s == VisitCompleted
}

// VisitTypeAccessCode marks a visit linked to an Access: its check-in is
// reconciled against that Access's guest list.
const VisitTypeAccessCode = "access-code"

// MaxCheckOutPhotos bounds the checkout attachment list; extras are
// silently truncated.
const MaxCheckOutPhotos = 5

type Visit struct {
	ID               int64       `json:"id"`
	CompanyID        int64       `json:"company_id"`
	Status           VisitStatus `json:"status"`
	VisitorName      string      `json:"visitor_name"`
	VisitorEmail     string      `json:"visitor_email"`
	VisitorPhone     string      `json:"visitor_phone"`
	VisitorCompany   string      `json:"visitor_company"`
	VisitorPhoto     string      `json:"visitor_photo,omitempty"`
	HostID           int64       `json:"host_id"`
	Reason           string      `json:"reason"`
	ScheduledDate    time.Time   `json:"scheduled_date"`
	AccessCode       string      `json:"access_code,omitempty"`
	VisitType        string      `json:"visit_type,omitempty"`
	CheckInTime      *time.Time  `json:"check_in_time,omitempty"`
	CheckOutTime     *time.Time  `json:"check_out_time,omitempty"`
	AssignedResource string      `json:"assigned_resource,omitempty"`
	CheckOutPhotos   []string    `json:"check_out_photos,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

// LinkedToAccess reports whether this visit's check-in must be reconciled
// against an Access guest list.
func (v *Visit) LinkedToAccess() bool {
	return v.VisitType == VisitTypeAccessCode && v.AccessCode != ""
}

type CreateVisitReq struct {
	VisitorName    string    `json:"visitor_name"`
	VisitorEmail   string    `json:"visitor_email"`
	VisitorPhone   string    `json:"visitor_phone"`
	VisitorCompany string    `json:"visitor_company"`
	VisitorPhoto   string    `json:"visitor_photo"`
	HostID         int64     `json:"host_id"`
	Reason         string    `json:"reason"`
	ScheduledDate  time.Time `json:"scheduled_date"`
	AccessCode     string    `json:"access_code"`
	VisitType      string    `json:"visit_type"`
}

func (r *CreateVisitReq) Validate() error {
	if strings.TrimSpace(r.VisitorName) == "" {
		return ValidationError("visitor name is required")
	}
	if r.VisitorEmail != "" && !ValidEmail(r.VisitorEmail) {
		return ValidationError("visitor email is malformed")
	}
	if r.HostID == 0 {
		return ValidationError("host is required")
	}
	if strings.TrimSpace(r.Reason) == "" {
		return ValidationError("reason is required")
	}
	if r.ScheduledDate.IsZero() {
		return ValidationError("scheduled date is required")
	}
	return nil
}

type VisitPatch struct {
	VisitorName      *string    `json:"visitor_name,omitempty"`
	VisitorPhone     *string    `json:"visitor_phone,omitempty"`
	VisitorCompany   *string    `json:"visitor_company,omitempty"`
	Reason           *string    `json:"reason,omitempty"`
	ScheduledDate    *time.Time `json:"scheduled_date,omitempty"`
	AssignedResource *string    `json:"assigned_resource,omitempty"`
}
