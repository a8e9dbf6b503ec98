// Package verdict is the shared prompt and response contract for
// model-backed evaluator agents.
package verdict

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"

	"github.com/agentstation/corroborate/pkg/classifier"
	"github.com/agentstation/corroborate/pkg/errors"
	"github.com/agentstation/corroborate/pkg/panel"
	"github.com/agentstation/corroborate/pkg/records"
)

// Verdict is what a model must answer with.
type Verdict struct {
	CandidateIndex int     `json:"candidate_index" jsonschema:"description=Index of the candidate value judged most likely correct"`
	Confidence     float64 `json:"confidence" jsonschema:"description=Confidence in the choice from 0 to 1"`
	Rationale      string  `json:"rationale" jsonschema:"description=One sentence explaining the choice"`
}

// SchemaName names the structured output schema.
const SchemaName = "field_verdict"

// Schema returns the JSON schema for Verdict, inlined and closed to
// extra properties as strict structured output requires.
func Schema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	return reflector.Reflect(&Verdict{})
}

// Lenses are the reviewer personas an agent instance can take, chosen by
// its index in the panel.
var Lenses = []string{
	"You weigh source reliability above everything else.",
	"You are skeptical of outliers and favour values several sources agree on.",
	"You favour the most recently verified information.",
	"You look for formatting or unit mistakes that explain the disagreement.",
}

// Lens returns the persona for the index-th instance.
func Lens(index int) string {
	return Lenses[index%len(Lenses)]
}

// Prompt renders the system and user messages for one field.
func Prompt(lens string, field records.FieldName, candidates []records.Candidate, ec panel.Context) (system, user string) {
	system = "You reconcile conflicting company data reported by several sources. " +
		"Tier 1 sources are the most reliable. " + lens +
		" Answer only with JSON matching the provided schema."

	var sb strings.Builder
	fmt.Fprintf(&sb, "Company: %s\n", ec.Subject)
	fmt.Fprintf(&sb, "Field: %s (%s)\n", field, ec.Spec.Kind)
	sb.WriteString("Candidates:\n")
	for i, c := range candidates {
		fmt.Fprintf(&sb, "%d. %v  [source=%s tier=%d", i, c.Value, c.SourceID, c.Tier)
		if !c.ObservedAt.IsZero() {
			fmt.Fprintf(&sb, " observed=%s", c.ObservedAt.Format("2006-01-02"))
		}
		sb.WriteString("]\n")
	}
	sb.WriteString("Pick the candidate_index of the correct value.")
	return system, sb.String()
}

// Parse decodes a model reply.
func Parse(content string) (Verdict, error) {
	var v Verdict
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimSuffix(strings.TrimPrefix(content, "```"), "```")
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &v); err != nil {
		return Verdict{}, errors.NewValidationError("verdict", content, fmt.Sprintf("not valid JSON: %v", err))
	}
	return v, nil
}

// ToSignal turns a verdict into a panel signal, scoring the chosen
// candidate's cluster the same way the built-in agents do.
func ToSignal(agentID string, field records.FieldName, candidates []records.Candidate, ec panel.Context, v Verdict) (records.PanelSignal, error) {
	if v.CandidateIndex < 0 || v.CandidateIndex >= len(candidates) {
		return records.PanelSignal{}, errors.NewValidationError("candidate_index", v.CandidateIndex,
			fmt.Sprintf("must be within [0, %d)", len(candidates)))
	}
	chosen := candidates[v.CandidateIndex]

	clusters := ec.Clusters
	if len(clusters) == 0 {
		clusters = classifier.Group(ec.Spec, candidates)
	}
	i := classifier.Find(ec.Spec, clusters, chosen.Value)
	if i < 0 {
		return records.PanelSignal{}, errors.NewValidationError("candidate_index", v.CandidateIndex, "candidate not in any cluster")
	}
	reliability, agreement, recency := panel.ClusterScores(clusters[i], len(candidates), ec.Now)

	return records.PanelSignal{
		AgentID:           agentID,
		Field:             field,
		PreferredValue:    chosen.Value,
		Confidence:        v.Confidence,
		ReliabilityWeight: reliability,
		RecencyScore:      recency,
		AgreementScore:    agreement,
		Rationale:         v.Rationale,
	}, nil
}
