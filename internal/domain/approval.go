package domain

import "time"

type ApprovalStatus string

const (
	ApprovalPending ApprovalStatus = "pending"
	ApprovalDecided ApprovalStatus = "decided"
)

type ApprovalDecision string

const (
	DecisionApproved ApprovalDecision = "approved"
	DecisionRejected ApprovalDecision = "rejected"
)

// Approval is the single-use token behind one-click approve/reject email
// links. Terminal once decided or expired; expiry is checked at
// redemption, not enforced by deletion.
type Approval struct {
	ID        int64            `json:"id"`
	Token     string           `json:"token"`
	VisitID   int64            `json:"visit_id"`
	Status    ApprovalStatus   `json:"status"`
	Decision  ApprovalDecision `json:"decision,omitempty"`
	ExpiresAt time.Time        `json:"expires_at"`
	DecidedAt *time.Time       `json:"decided_at,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

func (a *Approval) Expired(now time.Time) bool {
	return now.After(a.ExpiresAt)
}
