// Package records defines the request-scoped data model shared by every stage
// of a resolve: provider fetch results, per-field candidates and their
// classification, evaluator signals, and the final ResolvedRecord.
//
// Every value in this package is created once and never mutated after it is
// handed to the next stage.
package records

import (
	"fmt"
	"strings"
)

// FieldName names a company attribute, for example "employee_count".
type FieldName string

// String returns the field name.
func (f FieldName) String() string { return string(f) }

// SourceID identifies a data provider.
type SourceID string

// String returns the source ID.
func (s SourceID) String() string { return string(s) }

// Value is a raw field value as returned by a provider.
type Value = any

// FieldValues is the set of values a provider returned for one subject.
type FieldValues map[FieldName]Value

// Tier is a provider's static reliability rank. Tier 1 is the most reliable;
// larger numbers are less trusted.
type Tier int

// Valid reports whether the tier is a usable rank.
func (t Tier) Valid() bool { return t >= 1 }

// Weight maps the rank to a reliability weight in (0,1].
func (t Tier) Weight() float64 {
	if !t.Valid() {
		return 0
	}
	return 1 / float64(t)
}

// Outranks reports whether t is a more reliable tier than other.
func (t Tier) Outranks(other Tier) bool {
	if !t.Valid() {
		return false
	}
	if !other.Valid() {
		return true
	}
	return t < other
}

// Subject identifies the company being resolved.
type Subject struct {
	Name   string `json:"name" yaml:"name"`
	Domain string `json:"domain,omitempty" yaml:"domain,omitempty"`
}

// Key returns a stable identifier for the subject, preferring the domain.
func (s Subject) Key() string {
	if d := strings.ToLower(strings.TrimSpace(s.Domain)); d != "" {
		d = strings.TrimPrefix(d, "https://")
		d = strings.TrimPrefix(d, "http://")
		d = strings.TrimPrefix(d, "www.")
		return strings.TrimSuffix(d, "/")
	}
	return strings.Join(strings.Fields(strings.ToLower(s.Name)), "-")
}

// String renders the subject for logs.
func (s Subject) String() string {
	if s.Domain == "" {
		return s.Name
	}
	return fmt.Sprintf("%s (%s)", s.Name, s.Domain)
}

// IsZero reports whether neither name nor domain is set.
func (s Subject) IsZero() bool {
	return strings.TrimSpace(s.Name) == "" && strings.TrimSpace(s.Domain) == ""
}
