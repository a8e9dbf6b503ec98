package classifier_test

import (
	"context"
	"testing"
	"time"

	"github.com/agentstation/corroborate/pkg/classifier"
	"github.com/agentstation/corroborate/pkg/errors"
	"github.com/agentstation/corroborate/pkg/logging"
	"github.com/agentstation/corroborate/pkg/records"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fetchedAt = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func result(id string, tier int, values records.FieldValues) records.FetchResult {
	return records.FetchResult{SourceID: records.SourceID(id), Tier: records.Tier(tier), FieldValues: values, FetchedAt: fetchedAt}
}

func byField(all []classifier.Classified) map[records.FieldName]classifier.Classified {
	m := make(map[records.FieldName]classifier.Classified, len(all))
	for _, c := range all {
		m[c.Observation.Field] = c
	}
	return m
}

func TestEquivalentNumericTolerance(t *testing.T) {
	spec := classifier.FieldSpec{Name: "employee_count", Kind: classifier.Numeric, Tolerance: 0.05}
	tests := []struct {
		a, b any
		want bool
	}{
		{500, 505, true},
		{500, 524, true},
		{500, 530, false},
		{500, 9000, false},
		{"1,200", 1200, true},
		{"12k", 12000.0, true},
		{"$5.2M", 5_200_000, true},
		{int64(0), 0.0, true},
		{"n/a", 10, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, classifier.Equivalent(spec, tt.a, tt.b), "%v vs %v", tt.a, tt.b)
	}

	exact := classifier.FieldSpec{Name: "founded_year", Kind: classifier.Numeric}
	assert.False(t, classifier.Equivalent(exact, 1998, 1999))
	assert.True(t, classifier.Equivalent(exact, "1998", 1998))
}

func TestEquivalentText(t *testing.T) {
	spec := classifier.FieldSpec{Name: "headquarters", Kind: classifier.Text}
	assert.True(t, classifier.Equivalent(spec, "San Francisco,  CA", "san francisco, ca"))
	assert.True(t, classifier.Equivalent(spec, "Ｔｏｋｙｏ", "TOKYO"), "full-width folds under NFKC")
	assert.False(t, classifier.Equivalent(spec, "Austin", "Boston"))
}

func TestEquivalentIdentity(t *testing.T) {
	spec := classifier.FieldSpec{Name: "domain", Kind: classifier.Identity}
	assert.True(t, classifier.Equivalent(spec, "https://www.Acme.com/", "acme.com"))
	assert.True(t, classifier.Equivalent(spec, "http://acme.com?ref=x", "ACME.COM"))
	assert.False(t, classifier.Equivalent(spec, "acme.com", "acme.io"))

	li := classifier.FieldSpec{Name: "linkedin_url", Kind: classifier.Identity}
	assert.True(t, classifier.Equivalent(li, "https://www.linkedin.com/company/acme/", "linkedin.com/company/acme"))
}

func TestNewSchemaValidation(t *testing.T) {
	_, err := classifier.NewSchema(classifier.FieldSpec{Name: ""})
	assert.True(t, errors.IsConfigError(err))

	_, err = classifier.NewSchema(classifier.FieldSpec{Name: "a"}, classifier.FieldSpec{Name: "a"})
	assert.True(t, errors.IsConfigError(err))

	_, err = classifier.NewSchema(classifier.FieldSpec{Name: "a", Kind: classifier.Numeric, Tolerance: 1})
	assert.True(t, errors.IsConfigError(err))

	s := classifier.DefaultSchema()
	s2, err := s.WithTolerance("employee_count", 0.1)
	require.NoError(t, err)
	spec, ok := s2.Lookup("employee_count")
	require.True(t, ok)
	assert.Equal(t, 0.1, spec.Tolerance)
	orig, _ := s.Lookup("employee_count")
	assert.Equal(t, 0.05, orig.Tolerance)

	_, err = s.WithTolerance("nope", 0.1)
	assert.Error(t, err)
}

func TestParseKind(t *testing.T) {
	k, err := classifier.ParseKind("numeric")
	require.NoError(t, err)
	assert.Equal(t, classifier.Numeric, k)
	_, err = classifier.ParseKind("blob")
	assert.Error(t, err)
	assert.Equal(t, "identity", classifier.Identity.String())
}

func TestClassifyAll(t *testing.T) {
	c := classifier.New(nil)
	results := []records.FetchResult{
		result("b-source", 1, records.FieldValues{"employee_count": 505, "headquarters": "Austin, TX", "domain": "acme.com"}),
		result("a-source", 1, records.FieldValues{"employee_count": 500, "headquarters": "austin,  tx"}),
		result("c-source", 3, records.FieldValues{"employee_count": 9000, "headquarters": nil}),
		{SourceID: "d-broken", Tier: 1, Err: errors.New("boom"), FieldValues: records.FieldValues{"ceo": "Nobody"}},
	}

	all := c.ClassifyAll(context.Background(), results)
	require.Len(t, all, classifier.DefaultSchema().Len())
	fields := byField(all)

	emp := fields["employee_count"]
	assert.Equal(t, records.Conflicting, emp.Classification.Kind)
	require.Len(t, emp.Observation.Candidates, 3)
	assert.Equal(t, records.SourceID("a-source"), emp.Observation.Candidates[0].SourceID, "merge is ordered by source")
	assert.Equal(t, 0, emp.Observation.Candidates[0].Order)
	require.Len(t, emp.Clusters, 2)
	assert.Len(t, emp.Clusters[0].Members, 2)

	hq := fields["headquarters"]
	assert.Equal(t, records.Unanimous, hq.Classification.Kind)
	assert.Len(t, hq.Observation.Candidates, 2, "nil values are skipped")

	dom := fields["domain"]
	assert.Equal(t, records.Unanimous, dom.Classification.Kind)
	assert.Equal(t, "acme.com", dom.Classification.Value)

	ceo := fields["ceo"]
	assert.Equal(t, records.Absent, ceo.Classification.Kind, "failed providers contribute nothing")
}

func TestClassifyDeterministicAcrossInputOrder(t *testing.T) {
	c := classifier.New(nil)
	a := result("a", 2, records.FieldValues{"industry": "Software"})
	b := result("b", 1, records.FieldValues{"industry": "Fintech"})
	cc := result("c", 1, records.FieldValues{"industry": "software"})

	first := c.ClassifyAll(context.Background(), []records.FetchResult{a, b, cc})
	second := c.ClassifyAll(context.Background(), []records.FetchResult{cc, a, b})
	assert.Equal(t, first, second)
}

func TestUnanimousPicksBestTierValue(t *testing.T) {
	c := classifier.New(nil)
	all := c.ClassifyAll(context.Background(), []records.FetchResult{
		result("a", 3, records.FieldValues{"legal_name": "ACME INC"}),
		result("b", 1, records.FieldValues{"legal_name": "Acme Inc"}),
	})
	ln := byField(all)["legal_name"]
	require.Equal(t, records.Unanimous, ln.Classification.Kind)
	assert.Equal(t, "Acme Inc", ln.Classification.Value)
}

func TestDatedValuesCarryObservedAt(t *testing.T) {
	asOf := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	c := classifier.New(nil)
	all := c.ClassifyAll(context.Background(), []records.FetchResult{
		result("a", 1, records.FieldValues{"ceo": records.Dated{Value: "Jane Roe", AsOf: asOf}}),
	})
	ceo := byField(all)["ceo"]
	require.Len(t, ceo.Observation.Candidates, 1)
	assert.Equal(t, "Jane Roe", ceo.Observation.Candidates[0].Value)
	assert.Equal(t, asOf, ceo.Observation.Candidates[0].ObservedAt)
}

func TestUnknownFieldsLoggedAndDropped(t *testing.T) {
	tl := logging.NewTestLogger(t)
	ctx := logging.WithLogger(context.Background(), tl.Logger)

	c := classifier.New(nil)
	all := c.ClassifyAll(ctx, []records.FetchResult{
		result("a", 1, records.FieldValues{"favorite_color": "blue"}),
	})
	for _, cl := range all {
		assert.Equal(t, records.Absent, cl.Classification.Kind)
	}
	assert.True(t, tl.ContainsAll("Dropping unknown field", "favorite_color"))
}

func TestGroupAnchorsOnFirstSeen(t *testing.T) {
	spec := classifier.FieldSpec{Name: "employee_count", Kind: classifier.Numeric, Tolerance: 0.05}
	cands := []records.Candidate{
		{SourceID: "a", Value: 500, Order: 0},
		{SourceID: "b", Value: 520, Order: 1},
		{SourceID: "c", Value: 540, Order: 2},
	}
	clusters := classifier.Group(spec, cands)
	require.Len(t, clusters, 2, "tolerance is measured against the anchor, not chained")
	assert.Equal(t, []records.SourceID{"a", "b"}, clusters[0].SourceIDs())
	assert.Equal(t, 1, classifier.Find(spec, clusters, 545))
	assert.Equal(t, -1, classifier.Find(spec, clusters, 10))
}

func TestPreferCandidate(t *testing.T) {
	older := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.AddDate(1, 0, 0)
	assert.True(t, classifier.PreferCandidate(records.Candidate{Tier: 1, Order: 5}, records.Candidate{Tier: 2, Order: 0}))
	assert.True(t, classifier.PreferCandidate(records.Candidate{Tier: 1, ObservedAt: newer, Order: 3}, records.Candidate{Tier: 1, ObservedAt: older}))
	assert.True(t, classifier.PreferCandidate(records.Candidate{Tier: 1, Order: 0}, records.Candidate{Tier: 1, Order: 1}))
	assert.False(t, classifier.PreferCandidate(records.Candidate{Tier: 1, Order: 1}, records.Candidate{Tier: 1, Order: 0}))
}
