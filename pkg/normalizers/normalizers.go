// Package normalizers cleans extracted field values before they are merged
package normalizers

import (
	"strings"
	"unicode"
)

// Normalizer is a function that normalizes a string value
type Normalizer func(string) string

var registry = map[string]Normalizer{}

func init() {
	Register("trim", Trim)
	Register("lowercase", strings.ToLower)
	Register("uppercase", strings.ToUpper)
	Register("collapse_whitespace", CollapseWhitespace)
	Register("nname", NormalizeName)
	Register("nregistration", NormalizeRegistrationNumber)
	Register("ncountry", NormalizeCountryCode)
	Register("digits_only", DigitsOnly)
}

// Register adds a normalizer to the registry
func Register(name string, fn Normalizer) {
	registry[name] = fn
}

// Get retrieves a normalizer by name
func Get(name string) (Normalizer, bool) {
	fn, ok := registry[name]
	return fn, ok
}

// Apply applies a named normalizer to a value. Unknown names leave the value unchanged.
func Apply(value, normalizer string) string {
	fn, ok := registry[normalizer]
	if !ok {
		return value
	}
	return fn(value)
}

// ApplyChain applies multiple normalizers in sequence
func ApplyChain(value string, normalizers ...string) string {
	for _, name := range normalizers {
		value = Apply(value, name)
	}
	return value
}

// Trim removes leading and trailing whitespace
func Trim(s string) string {
	return strings.TrimSpace(s)
}

// CollapseWhitespace trims and replaces runs of whitespace with a single space
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeName tidies a company name for display. Case is preserved.
func NormalizeName(s string) string {
	return CollapseWhitespace(s)
}

// NormalizeRegistrationNumber uppercases and strips whitespace, dots and dashes
// so "reg-123" and "REG 123" link to the same identity.
func NormalizeRegistrationNumber(s string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(s) {
		if unicode.IsSpace(r) || r == '-' || r == '.' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// NormalizeCountryCode returns an upper-case ISO 3166 alpha-2 code, or "" if s is not one
func NormalizeCountryCode(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) != 2 {
		return ""
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return ""
		}
	}
	return s
}

// DigitsOnly keeps only digit characters
func DigitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// StringPtr normalizes s with the chain and returns nil when the result is empty
func StringPtr(s string, normalizers ...string) *string {
	s = ApplyChain(s, normalizers...)
	if s == "" {
		return nil
	}
	return &s
}
