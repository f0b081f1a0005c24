package domain

import "time"

type CompanySettings struct {
	AutoApproveVisits    bool   `json:"auto_approve_visits"`
	AutoCheckInOnApprove bool   `json:"auto_check_in_on_approve"`
	DefaultLanguage      string `json:"default_language"`
}

type Company struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Settings  CompanySettings `json:"settings"`
	CreatedAt time.Time       `json:"created_at"`
}
