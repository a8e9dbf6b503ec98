package records

import (
	"slices"
	"sort"
	"time"
)

// RuleName identifies a decision rule recorded in a field's audit trail.
type RuleName string

// Rules the aggregator can apply.
const (
	RuleUnanimous              RuleName = "unanimous"
	RuleAbsent                 RuleName = "absent"
	RuleWeightedScore          RuleName = "weighted_score"
	RuleRecencyWeighting       RuleName = "recency_weighting"
	RuleTieBreakSourceTier     RuleName = "tie_break_source_tier"
	RuleTieBreakRecency        RuleName = "tie_break_recency"
	RuleTieBreakFirstSeen      RuleName = "tie_break_first_seen"
	RuleNoQuorumFallback       RuleName = "no_quorum_fallback"
	RuleFallbackConfidenceCap  RuleName = "fallback_confidence_cap"
	RuleUnmatchedSignalDropped RuleName = "unmatched_signal_discarded"
)

// Alternative is a losing candidate value and its score.
type Alternative struct {
	Value     Value      `json:"value" yaml:"value"`
	Score     float64    `json:"score" yaml:"score"`
	SourceIDs []SourceID `json:"source_ids" yaml:"source_ids"`
}

// ResolutionDecision is the final, audited outcome for one field.
type ResolutionDecision struct {
	Field             FieldName          `json:"field" yaml:"field"`
	Classification    ClassificationKind `json:"classification" yaml:"classification"`
	WinnerValue       Value              `json:"winner_value" yaml:"winner_value"`
	WinnerConfidence  float64            `json:"winner_confidence" yaml:"winner_confidence"`
	WinnerSources     []SourceID         `json:"winner_sources,omitempty" yaml:"winner_sources,omitempty"`
	Alternatives      []Alternative      `json:"alternatives" yaml:"alternatives"`
	RulesApplied      []RuleName         `json:"rules_applied" yaml:"rules_applied"`
	SignalsConsidered int                `json:"signals_considered" yaml:"signals_considered"`
}

// HasRule reports whether rule appears in the decision's audit trail.
func (d ResolutionDecision) HasRule(rule RuleName) bool {
	return slices.Contains(d.RulesApplied, rule)
}

// ResolvedRecord is the engine's output for one subject.
type ResolvedRecord struct {
	ID                string                           `json:"id" yaml:"id"`
	Subject           Subject                          `json:"subject" yaml:"subject"`
	Fields            map[FieldName]ResolutionDecision `json:"fields" yaml:"fields"`
	OverallConfidence float64                          `json:"overall_confidence" yaml:"overall_confidence"`
	GeneratedAt       time.Time                        `json:"generated_at" yaml:"generated_at"`
	Sources           []SourceReport                   `json:"sources" yaml:"sources"`
}

// FieldNames returns the record's fields in sorted order.
func (r *ResolvedRecord) FieldNames() []FieldName {
	names := make([]FieldName, 0, len(r.Fields))
	for name := range r.Fields {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// Decision returns the decision for a field.
func (r *ResolvedRecord) Decision(name FieldName) (ResolutionDecision, bool) {
	d, ok := r.Fields[name]
	return d, ok
}

// Value returns the winning value for a field, or nil.
func (r *ResolvedRecord) Value(name FieldName) Value {
	return r.Fields[name].WinnerValue
}

// OverallConfidence averages winner confidence over the fields that had at
// least one candidate. A record where every field is absent scores 0.
func OverallConfidence(decisions map[FieldName]ResolutionDecision) float64 {
	names := make([]FieldName, 0, len(decisions))
	for name := range decisions {
		names = append(names, name)
	}
	// Fixed summation order keeps the float result reproducible.
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })

	var sum float64
	var n int
	for _, name := range names {
		d := decisions[name]
		if d.Classification == Absent {
			continue
		}
		sum += d.WinnerConfidence
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
