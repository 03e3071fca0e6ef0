package models

import "time"

// WildcardField matches every field of a source
const WildcardField = "*"

// DefaultTrustWeight is used when no rule matches
const DefaultTrustWeight = 1

// TrustRule assigns a weight to a (source, field) pair for a period of time.
// A nil EffectiveTo means the rule is open-ended.
type TrustRule struct {
	ID            string     `json:"id" db:"id" yaml:"-"`
	Source        string     `json:"source" db:"source" yaml:"source"`
	Field         string     `json:"field" db:"field" yaml:"field"`
	Weight        int        `json:"weight" db:"weight" yaml:"weight"`
	EffectiveFrom time.Time  `json:"effective_from" db:"effective_from" yaml:"effective_from"`
	EffectiveTo   *time.Time `json:"effective_to,omitempty" db:"effective_to" yaml:"effective_to,omitempty"`
}

// EffectiveAt reports whether the rule applies at the given instant.
func (r TrustRule) EffectiveAt(at time.Time) bool {
	if r.EffectiveFrom.After(at) {
		return false
	}
	return r.EffectiveTo == nil || !r.EffectiveTo.Before(at)
}

// IsWildcard reports whether the rule applies to every field
func (r TrustRule) IsWildcard() bool {
	return r.Field == WildcardField
}

// UpsertTrustRuleRequest is the request to create or replace a trust rule
type UpsertTrustRuleRequest struct {
	Source        string     `json:"source" validate:"required"`
	Field         string     `json:"field" validate:"required"`
	Weight        int        `json:"weight" validate:"gte=0"`
	EffectiveFrom *time.Time `json:"effective_from,omitempty"`
	EffectiveTo   *time.Time `json:"effective_to,omitempty"`
}
