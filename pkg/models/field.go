package models

import (
	"encoding/json"
	"fmt"
	"math"
)

// Field names a mergeable golden record attribute
type Field string

const (
	FieldName               Field = "name"
	FieldLegalName          Field = "legal_name"
	FieldRegistrationNumber Field = "registration_number"
	FieldJurisdictionCode   Field = "jurisdiction_code"
	FieldRevenueUSD         Field = "revenue_usd"
	FieldEmployeeCount      Field = "employee_count"
)

// MergeableFields lists the fields the resolution engine merges, in processing order.
var MergeableFields = []Field{
	FieldName,
	FieldLegalName,
	FieldRegistrationNumber,
	FieldJurisdictionCode,
	FieldRevenueUSD,
	FieldEmployeeCount,
}

// IsMergeable reports whether name is one of MergeableFields
func IsMergeable(name string) bool {
	for _, f := range MergeableFields {
		if string(f) == name {
			return true
		}
	}
	return false
}

// Value returns the canonical entity's value for f. ok is false when the field is null.
func (c *CanonicalEntity) Value(f Field) (any, bool) {
	switch f {
	case FieldName:
		return derefString(c.Name)
	case FieldLegalName:
		return derefString(c.LegalName)
	case FieldRegistrationNumber:
		return derefString(c.RegistrationNumber)
	case FieldJurisdictionCode:
		return derefString(c.JurisdictionCode)
	case FieldRevenueUSD:
		if c.RevenueUSD == nil {
			return nil, false
		}
		return *c.RevenueUSD, true
	case FieldEmployeeCount:
		if c.EmployeeCount == nil {
			return nil, false
		}
		return *c.EmployeeCount, true
	}
	return nil, false
}

// Value returns the golden record's value for f. ok is false when the field is null.
func (r *ResolvedEntity) Value(f Field) (any, bool) {
	switch f {
	case FieldName:
		return derefString(r.Name)
	case FieldLegalName:
		return derefString(r.LegalName)
	case FieldRegistrationNumber:
		return derefString(r.RegistrationNumber)
	case FieldJurisdictionCode:
		return derefString(r.JurisdictionCode)
	case FieldRevenueUSD:
		if r.RevenueUSD == nil {
			return nil, false
		}
		return *r.RevenueUSD, true
	case FieldEmployeeCount:
		if r.EmployeeCount == nil {
			return nil, false
		}
		return *r.EmployeeCount, true
	}
	return nil, false
}

// Set assigns value to f on the golden record.
func (r *ResolvedEntity) Set(f Field, value any) error {
	switch f {
	case FieldName, FieldLegalName, FieldRegistrationNumber, FieldJurisdictionCode:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("field %s expects a string, got %T", f, value)
		}
		switch f {
		case FieldName:
			r.Name = &s
		case FieldLegalName:
			r.LegalName = &s
		case FieldRegistrationNumber:
			r.RegistrationNumber = &s
		case FieldJurisdictionCode:
			r.JurisdictionCode = &s
		}
		return nil
	case FieldRevenueUSD:
		n, ok := toFloat(value)
		if !ok {
			return fmt.Errorf("field %s expects a number, got %T", f, value)
		}
		r.RevenueUSD = &n
		return nil
	case FieldEmployeeCount:
		n, ok := toFloat(value)
		if !ok || n != math.Trunc(n) {
			return fmt.Errorf("field %s expects an integer, got %v", f, value)
		}
		i := int64(n)
		r.EmployeeCount = &i
		return nil
	}
	return fmt.Errorf("unknown field %s", f)
}

// ValuesEqual compares two field values, treating every numeric type as float64
// so values read back from JSON lineage compare equal to typed columns.
func ValuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	fa, aNum := toFloat(a)
	fb, bNum := toFloat(b)
	if aNum || bNum {
		return aNum && bNum && fa == fb
	}
	sa, aStr := a.(string)
	sb, bStr := b.(string)
	if aStr && bStr {
		return sa == sb
	}
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	return errA == nil && errB == nil && string(ja) == string(jb)
}

func derefString(s *string) (any, bool) {
	if s == nil {
		return nil, false
	}
	return *s, true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
