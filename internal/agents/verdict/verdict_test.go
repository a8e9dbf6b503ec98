package verdict

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/corroborate/pkg/classifier"
	pkgerrors "github.com/agentstation/corroborate/pkg/errors"
	"github.com/agentstation/corroborate/pkg/panel"
	"github.com/agentstation/corroborate/pkg/records"
)

var now = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func fixture() ([]records.Candidate, panel.Context) {
	cands := []records.Candidate{
		{SourceID: "alpha", Value: 500, Tier: 1, ObservedAt: now, Order: 0},
		{SourceID: "bravo", Value: 505, Tier: 1, ObservedAt: now, Order: 1},
		{SourceID: "charlie", Value: 9000, Tier: 3, ObservedAt: now, Order: 2},
	}
	spec, _ := classifier.DefaultSchema().Lookup("annual_revenue_usd")
	return cands, panel.Context{
		Subject:  records.Subject{Name: "Acme", Domain: "acme.com"},
		Spec:     spec,
		Clusters: classifier.Group(spec, cands),
		Now:      now,
	}
}

func TestSchemaIsStrict(t *testing.T) {
	data, err := json.Marshal(Schema())
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, false, doc["additionalProperties"])
	assert.ElementsMatch(t, []any{"candidate_index", "confidence", "rationale"}, doc["required"])
	assert.NotContains(t, string(data), "$ref")
}

func TestPrompt(t *testing.T) {
	cands, ec := fixture()
	system, user := Prompt(Lens(1), "annual_revenue_usd", cands, ec)
	assert.Contains(t, system, "skeptical of outliers")
	assert.Contains(t, user, "Company: Acme (acme.com)")
	assert.Contains(t, user, "2. 9000  [source=charlie tier=3 observed=2025-06-01]")
	assert.Equal(t, Lens(0), Lens(len(Lenses)))
}

func TestParse(t *testing.T) {
	v, err := Parse("```json\n{\"candidate_index\":1,\"confidence\":0.7,\"rationale\":\"agrees\"}\n```")
	require.NoError(t, err)
	assert.Equal(t, Verdict{CandidateIndex: 1, Confidence: 0.7, Rationale: "agrees"}, v)

	_, err = Parse("not json")
	assert.True(t, pkgerrors.IsValidationError(err))
}

func TestToSignal(t *testing.T) {
	cands, ec := fixture()
	s, err := ToSignal("openai-01", "annual_revenue_usd", cands, ec, Verdict{CandidateIndex: 1, Confidence: 0.9, Rationale: "tier 1"})
	require.NoError(t, err)
	assert.Equal(t, 505, s.PreferredValue)
	assert.Equal(t, 1.0, s.ReliabilityWeight)
	assert.InDelta(t, 2.0/3.0, s.AgreementScore, 1e-9)
	assert.Equal(t, 1.0, s.RecencyScore)
	assert.NoError(t, s.Validate())

	_, err = ToSignal("openai-01", "annual_revenue_usd", cands, ec, Verdict{CandidateIndex: 3})
	assert.True(t, pkgerrors.IsValidationError(err))
}
