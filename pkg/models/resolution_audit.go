package models

import "time"

// ResolutionAudit records one resolution pass, including equal-weight
// conflicts left for manual review.
type ResolutionAudit struct {
	ID                string          `json:"id" db:"id"`
	ResolvedEntityID  string          `json:"resolved_entity_id" db:"resolved_entity_id"`
	CanonicalEntityID string          `json:"canonical_entity_id" db:"canonical_entity_id"`
	PayloadID         string          `json:"payload_id" db:"payload_id"`
	Source            string          `json:"source" db:"source"`
	IsNew             bool            `json:"is_new" db:"is_new"`
	ChangedFields     []Field         `json:"changed_fields" db:"-"`
	Conflicts         []FieldConflict `json:"conflicts" db:"-"`
	TieBreakPolicy    string          `json:"tie_break_policy" db:"tie_break_policy"`
	EntityVersion     int             `json:"entity_version" db:"entity_version"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
}

// EntityLink records which golden record a payload was resolved into
type EntityLink struct {
	PayloadID        string    `json:"payload_id" db:"payload_id"`
	ResolvedEntityID string    `json:"resolved_entity_id" db:"resolved_entity_id"`
	Source           string    `json:"source" db:"source"`
	LinkedAt         time.Time `json:"linked_at" db:"linked_at"`
}

// GoldenRecordUpdate is what downstream projectors receive after a golden
// record is persisted. It is passed by value and carries a copy of the record.
type GoldenRecordUpdate struct {
	Entity            ResolvedEntity  `json:"entity"`
	IsNew             bool            `json:"is_new"`
	ChangedFields     []Field         `json:"changed_fields"`
	Conflicts         []FieldConflict `json:"conflicts,omitempty"`
	Source            string          `json:"source"`
	PayloadID         string          `json:"payload_id"`
	CanonicalEntityID string          `json:"canonical_entity_id"`
}

// Changed reports whether the update wrote anything
func (u GoldenRecordUpdate) Changed() bool {
	return u.IsNew || len(u.ChangedFields) > 0
}
