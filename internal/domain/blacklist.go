package domain

import "time"

// BlacklistEntry is a deny-list record keyed by identifier (email). The
// gate that consults it is advisory for authenticated staff and blocking
// for unauthenticated self-service flows; that policy lives at the call
// sites, not here.
type BlacklistEntry struct {
	ID         int64     `json:"id"`
	CompanyID  int64     `json:"company_id"`
	Identifier string    `json:"identifier"`
	Reason     string    `json:"reason,omitempty"`
	CreatedBy  int64     `json:"created_by"`
	CreatedAt  time.Time `json:"created_at"`
}
