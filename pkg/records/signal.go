package records

import (
	"math"

	"github.com/agentstation/corroborate/pkg/errors"
)

// PanelSignal is one evaluator agent's opinion on a conflicting field.
// All scores lie in [0,1].
type PanelSignal struct {
	AgentID           string    `json:"agent_id" yaml:"agent_id"`
	Field             FieldName `json:"field" yaml:"field"`
	PreferredValue    Value     `json:"preferred_value" yaml:"preferred_value"`
	Confidence        float64   `json:"confidence" yaml:"confidence"`
	ReliabilityWeight float64   `json:"reliability_weight" yaml:"reliability_weight"`
	RecencyScore      float64   `json:"recency_score" yaml:"recency_score"`
	AgreementScore    float64   `json:"agreement_score" yaml:"agreement_score"`
	Rationale         string    `json:"rationale,omitempty" yaml:"rationale,omitempty"`
}

// Validate rejects signals that do not conform to the signal schema.
// Out-of-range scores are errors, never clamped.
func (s PanelSignal) Validate() error {
	if s.AgentID == "" {
		return errors.NewValidationError("agent_id", s.AgentID, "must not be empty")
	}
	if s.Field == "" {
		return errors.NewValidationError("field", s.Field, "must not be empty")
	}
	if s.PreferredValue == nil {
		return errors.NewValidationError("preferred_value", nil, "must not be null")
	}
	scores := []struct {
		name string
		v    float64
	}{
		{"confidence", s.Confidence},
		{"reliability_weight", s.ReliabilityWeight},
		{"recency_score", s.RecencyScore},
		{"agreement_score", s.AgreementScore},
	}
	for _, sc := range scores {
		if math.IsNaN(sc.v) || sc.v < 0 || sc.v > 1 {
			return errors.NewValidationError(sc.name, sc.v, "must be within [0,1]")
		}
	}
	return nil
}
