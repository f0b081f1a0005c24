package domain

import "time"

type User struct {
	ID        int64     `json:"id"`
	CompanyID int64     `json:"company_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Actor is the authenticated principal behind a request, derived from
// JWT claims. The system actor drives scheduler-initiated transitions.
type Actor struct {
	ID        int64
	Role      string
	CompanyID int64
}

const RoleSystem = "system"

func SystemActor() Actor { return Actor{Role: RoleSystem} }

func (a Actor) IsAdmin() bool  { return a.Role == "admin" }
func (a Actor) IsSystem() bool { return a.Role == RoleSystem }
