package records

import (
	"fmt"
	"time"
)

// Candidate is one provider's value for one field.
type Candidate struct {
	SourceID   SourceID  `json:"source_id" yaml:"source_id"`
	Value      Value     `json:"value" yaml:"value"`
	Tier       Tier      `json:"tier" yaml:"tier"`
	ObservedAt time.Time `json:"observed_at" yaml:"observed_at"`
	// Order is the candidate's position in the merged, source-sorted candidate list.
	Order int `json:"order" yaml:"order"`
}

// FieldObservation is every candidate value collected for a field.
type FieldObservation struct {
	Field      FieldName   `json:"field" yaml:"field"`
	Candidates []Candidate `json:"candidates" yaml:"candidates"`
}

// ClassificationKind tags a field's agreement state.
type ClassificationKind int

const (
	// Absent means no provider returned a value.
	Absent ClassificationKind = iota
	// Unanimous means every value normalizes to the same thing.
	Unanimous
	// Conflicting means at least two distinct normalized values exist.
	Conflicting
	// ConflictingUnresolved is a conflict the panel could not score.
	ConflictingUnresolved
)

var kindNames = map[ClassificationKind]string{
	Absent:                "absent",
	Unanimous:             "unanimous",
	Conflicting:           "conflicting",
	ConflictingUnresolved: "conflicting_unresolved",
}

// String returns the snake_case name used in logs and serialized records.
func (k ClassificationKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("classification(%d)", int(k))
}

// MarshalText implements encoding.TextMarshaler.
func (k ClassificationKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *ClassificationKind) UnmarshalText(b []byte) error {
	for kind, name := range kindNames {
		if name == string(b) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown classification %q", string(b))
}

// IsConflict reports whether the kind needs the evaluator panel or a fallback.
func (k ClassificationKind) IsConflict() bool {
	return k == Conflicting || k == ConflictingUnresolved
}

// FieldClassification is the classifier's verdict on a field.
type FieldClassification struct {
	Field      FieldName          `json:"field" yaml:"field"`
	Kind       ClassificationKind `json:"kind" yaml:"kind"`
	Value      Value              `json:"value,omitempty" yaml:"value,omitempty"`
	Candidates []Candidate        `json:"candidates,omitempty" yaml:"candidates,omitempty"`
}

// NewUnanimous classifies a field whose candidates all agree on v.
func NewUnanimous(field FieldName, v Value, candidates []Candidate) FieldClassification {
	return FieldClassification{Field: field, Kind: Unanimous, Value: v, Candidates: candidates}
}

// NewConflicting classifies a field with at least two distinct values.
func NewConflicting(field FieldName, candidates []Candidate) FieldClassification {
	return FieldClassification{Field: field, Kind: Conflicting, Candidates: candidates}
}

// NewAbsent classifies a field nobody returned.
func NewAbsent(field FieldName) FieldClassification {
	return FieldClassification{Field: field, Kind: Absent}
}

// Unresolved returns a copy of a conflicting classification marked as
// ConflictingUnresolved. Other kinds are returned unchanged.
func (c FieldClassification) Unresolved() FieldClassification {
	if c.Kind == Conflicting {
		c.Kind = ConflictingUnresolved
	}
	return c
}

// SourceIDs lists the sources behind the classification's candidates.
func (c FieldClassification) SourceIDs() []SourceID {
	ids := make([]SourceID, 0, len(c.Candidates))
	for _, cand := range c.Candidates {
		ids = append(ids, cand.SourceID)
	}
	return ids
}
