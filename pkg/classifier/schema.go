package classifier

import (
	"fmt"
	"sort"

	"github.com/agentstation/corroborate/pkg/constants"
	"github.com/agentstation/corroborate/pkg/errors"
	"github.com/agentstation/corroborate/pkg/records"
)

// Kind selects how a field's values are normalized and compared.
type Kind int

const (
	// Text values compare after Unicode folding and whitespace collapse.
	Text Kind = iota
	// Numeric values compare within a relative tolerance band.
	Numeric
	// Identity values (domains, URLs) compare in canonical form.
	Identity
)

// String returns the kind's config name.
func (k Kind) String() string {
	switch k {
	case Numeric:
		return "numeric"
	case Identity:
		return "identity"
	default:
		return "text"
	}
}

// ParseKind parses a config name into a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "", "text":
		return Text, nil
	case "numeric", "number":
		return Numeric, nil
	case "identity", "url", "domain":
		return Identity, nil
	}
	return Text, fmt.Errorf("unknown field kind %q", s)
}

// FieldSpec describes one known record field.
type FieldSpec struct {
	Name      records.FieldName
	Kind      Kind
	Tolerance float64
}

// Schema is the set of fields the classifier knows about.
type Schema struct {
	fields []FieldSpec
	byName map[records.FieldName]int
}

// NewSchema builds a schema. Field names must be unique and tolerances in [0,1).
func NewSchema(specs ...FieldSpec) (*Schema, error) {
	s := &Schema{byName: make(map[records.FieldName]int, len(specs))}
	for _, spec := range specs {
		if spec.Name == "" {
			return nil, errors.NewConfigError("classifier", "field name must not be empty", nil)
		}
		if _, dup := s.byName[spec.Name]; dup {
			return nil, errors.NewConfigError("classifier", fmt.Sprintf("duplicate field %s", spec.Name), nil)
		}
		if spec.Tolerance < 0 || spec.Tolerance >= 1 {
			return nil, errors.NewConfigError("classifier", fmt.Sprintf("tolerance for %s must be within [0,1)", spec.Name), nil)
		}
		s.byName[spec.Name] = len(s.fields)
		s.fields = append(s.fields, spec)
	}
	sort.Slice(s.fields, func(i, j int) bool { return s.fields[i].Name < s.fields[j].Name })
	for i, f := range s.fields {
		s.byName[f.Name] = i
	}
	return s, nil
}

// DefaultSchema returns the built-in company fields.
func DefaultSchema() *Schema {
	tol := constants.DefaultNumericTolerance
	s, err := NewSchema(
		FieldSpec{Name: "legal_name", Kind: Text},
		FieldSpec{Name: "domain", Kind: Identity},
		FieldSpec{Name: "website", Kind: Identity},
		FieldSpec{Name: "linkedin_url", Kind: Identity},
		FieldSpec{Name: "headquarters", Kind: Text},
		FieldSpec{Name: "industry", Kind: Text},
		FieldSpec{Name: "ceo", Kind: Text},
		FieldSpec{Name: "employee_count", Kind: Numeric, Tolerance: tol},
		FieldSpec{Name: "annual_revenue_usd", Kind: Numeric, Tolerance: tol},
		FieldSpec{Name: "founded_year", Kind: Numeric},
	)
	if err != nil {
		panic(err)
	}
	return s
}

// Fields returns the specs sorted by name.
func (s *Schema) Fields() []FieldSpec {
	return append([]FieldSpec(nil), s.fields...)
}

// Lookup returns the spec for name.
func (s *Schema) Lookup(name records.FieldName) (FieldSpec, bool) {
	i, ok := s.byName[name]
	if !ok {
		return FieldSpec{}, false
	}
	return s.fields[i], true
}

// WithTolerance returns a copy of the schema with name's tolerance replaced.
func (s *Schema) WithTolerance(name records.FieldName, tolerance float64) (*Schema, error) {
	if _, ok := s.byName[name]; !ok {
		return nil, errors.NewConfigError("classifier", fmt.Sprintf("unknown field %s", name), nil)
	}
	specs := s.Fields()
	for i := range specs {
		if specs[i].Name == name {
			specs[i].Tolerance = tolerance
		}
	}
	return NewSchema(specs...)
}

// Len returns the number of fields.
func (s *Schema) Len() int { return len(s.fields) }
