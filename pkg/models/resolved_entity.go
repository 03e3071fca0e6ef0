package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// DefaultRiskScore is projected downstream when a golden record has no risk score
const DefaultRiskScore = 50

// ResolvedEntity is the golden record: the authoritative merge of every
// canonical entity linked to the same identity cluster.
type ResolvedEntity struct {
	ID                 string    `json:"id" db:"id"`
	Name               *string   `json:"name,omitempty" db:"name"`
	LegalName          *string   `json:"legal_name,omitempty" db:"legal_name"`
	RegistrationNumber *string   `json:"registration_number,omitempty" db:"registration_number"`
	JurisdictionCode   *string   `json:"jurisdiction_code,omitempty" db:"jurisdiction_code"`
	RevenueUSD         *float64  `json:"revenue_usd,omitempty" db:"revenue_usd"`
	EmployeeCount      *int64    `json:"employee_count,omitempty" db:"employee_count"`
	RiskScore          *int      `json:"risk_score,omitempty" db:"risk_score"`
	Lineage            Lineage   `json:"lineage_metadata" db:"lineage_metadata"`
	Version            int       `json:"version" db:"version"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time `json:"updated_at" db:"updated_at"`
}

// Clone returns a deep copy so a merge never mutates a record the caller still holds.
func (r *ResolvedEntity) Clone() *ResolvedEntity {
	if r == nil {
		return nil
	}
	c := *r
	c.Name = cloneString(r.Name)
	c.LegalName = cloneString(r.LegalName)
	c.RegistrationNumber = cloneString(r.RegistrationNumber)
	c.JurisdictionCode = cloneString(r.JurisdictionCode)
	if r.RevenueUSD != nil {
		v := *r.RevenueUSD
		c.RevenueUSD = &v
	}
	if r.EmployeeCount != nil {
		v := *r.EmployeeCount
		c.EmployeeCount = &v
	}
	if r.RiskScore != nil {
		v := *r.RiskScore
		c.RiskScore = &v
	}
	c.Lineage = r.Lineage.Clone()
	return &c
}

// EffectiveRiskScore returns the risk score or the default when unset
func (r *ResolvedEntity) EffectiveRiskScore() int {
	if r.RiskScore == nil {
		return DefaultRiskScore
	}
	return *r.RiskScore
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// LineageEntry records which source, payload and trust weight produced a field's value.
type LineageEntry struct {
	Source      string    `json:"source"`
	Value       any       `json:"value"`
	Confidence  int       `json:"confidence"`
	PayloadID   string    `json:"payload_id"`
	LastUpdated time.Time `json:"last_updated"`
}

// SameOrigin reports whether two entries describe the same write, ignoring LastUpdated.
func (e LineageEntry) SameOrigin(other LineageEntry) bool {
	return e.Source == other.Source &&
		e.PayloadID == other.PayloadID &&
		e.Confidence == other.Confidence &&
		ValuesEqual(e.Value, other.Value)
}

// Lineage maps field name to its provenance
type Lineage map[string]LineageEntry

// Clone returns a copy of the lineage map
func (l Lineage) Clone() Lineage {
	if l == nil {
		return nil
	}
	c := make(Lineage, len(l))
	for k, v := range l {
		c[k] = v
	}
	return c
}

// Scan implements sql.Scanner for JSONB columns
func (l *Lineage) Scan(src any) error {
	if src == nil {
		*l = Lineage{}
		return nil
	}
	var b []byte
	switch v := src.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("Lineage.Scan: expected []byte, got %T", src)
	}
	m := Lineage{}
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	*l = m
	return nil
}

// Value implements driver.Valuer for JSONB columns
func (l Lineage) Value() (driver.Value, error) {
	if l == nil {
		return "{}", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// FieldConflict is an equal-weight disagreement left for manual review.
type FieldConflict struct {
	Field          string `json:"field"`
	CurrentValue   any    `json:"current_value"`
	CurrentSource  string `json:"current_source"`
	IncomingValue  any    `json:"incoming_value"`
	IncomingSource string `json:"incoming_source"`
	Weight         int    `json:"weight"`
	PayloadID      string `json:"payload_id"`
}
