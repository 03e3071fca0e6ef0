package models

import "time"

// CanonicalEntity is the normalized view of exactly one SourcePayload.
// It is immutable once written; re-ingests produce new rows.
type CanonicalEntity struct {
	ID                 string    `json:"id" db:"id"`
	PayloadID          string    `json:"payload_id" db:"payload_id"`
	Source             string    `json:"source" db:"source"`
	Name               *string   `json:"name,omitempty" db:"name"`
	LegalName          *string   `json:"legal_name,omitempty" db:"legal_name"`
	RegistrationNumber *string   `json:"registration_number,omitempty" db:"registration_number"`
	JurisdictionCode   *string   `json:"jurisdiction_code,omitempty" db:"jurisdiction_code"`
	RevenueUSD         *float64  `json:"revenue_usd,omitempty" db:"revenue_usd"`
	EmployeeCount      *int64    `json:"employee_count,omitempty" db:"employee_count"`
	ValidFrom          time.Time `json:"valid_from" db:"valid_from"`
}
