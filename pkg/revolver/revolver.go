// Package revolver turns a field classification and its panel signals into
// a single audited decision.
package revolver

import (
	"context"
	"math"
	"sort"

	"github.com/sourcegraph/conc/pool"

	"github.com/agentstation/corroborate/pkg/classifier"
	"github.com/agentstation/corroborate/pkg/constants"
	"github.com/agentstation/corroborate/pkg/logging"
	"github.com/agentstation/corroborate/pkg/records"
)

// Revolver scores candidate values. It holds no per-request state and is
// safe for concurrent use.
type Revolver struct {
	schema *classifier.Schema
	opts   *options
}

// New creates a Revolver. The schema supplies normalization rules for
// matching signals to candidates; fields it does not list compare as text.
func New(schema *classifier.Schema, opts ...Option) (*Revolver, error) {
	o, err := defaultOptions().apply(opts...)
	if err != nil {
		return nil, err
	}
	if schema == nil {
		schema = classifier.DefaultSchema()
	}
	return &Revolver{schema: schema, opts: o}, nil
}

// Weights returns the score weights in use.
func (r *Revolver) Weights() Weights { return r.opts.weights }

// FallbackCap returns the confidence ceiling for fallback decisions.
func (r *Revolver) FallbackCap() float64 { return r.opts.fallbackCap }

func (r *Revolver) spec(field records.FieldName) classifier.FieldSpec {
	if s, ok := r.schema.Lookup(field); ok {
		return s
	}
	return classifier.FieldSpec{Name: field, Kind: classifier.Text}
}

// Resolve decides one field. The result depends only on the set of
// signals, not their order.
func (r *Revolver) Resolve(c records.FieldClassification, signals []records.PanelSignal) records.ResolutionDecision {
	switch c.Kind {
	case records.Absent:
		return records.ResolutionDecision{
			Field:          c.Field,
			Classification: records.Absent,
			Alternatives:   []records.Alternative{},
			RulesApplied:   []records.RuleName{records.RuleAbsent},
		}
	case records.Unanimous:
		return records.ResolutionDecision{
			Field:            c.Field,
			Classification:   records.Unanimous,
			WinnerValue:      c.Value,
			WinnerConfidence: 1.0,
			WinnerSources:    c.SourceIDs(),
			Alternatives:     []records.Alternative{},
			RulesApplied:     []records.RuleName{records.RuleUnanimous},
		}
	}

	spec := r.spec(c.Field)
	clusters := classifier.Group(spec, c.Candidates)
	if len(clusters) == 0 {
		return r.Resolve(records.NewAbsent(c.Field), nil)
	}

	var matched []records.PanelSignal
	var unmatched bool
	if c.Kind == records.Conflicting {
		matched, unmatched = r.match(spec, clusters, signals)
	}
	if len(matched) == 0 {
		d := r.fallback(c.Field, clusters, len(c.Candidates))
		if unmatched {
			d.RulesApplied = append(d.RulesApplied, records.RuleUnmatchedSignalDropped)
		}
		return d
	}
	return r.weighted(c.Field, spec, clusters, matched, unmatched)
}

// match keeps the signals whose preferred value falls in some cluster.
// The result is sorted by agent so float sums are reproducible.
func (r *Revolver) match(spec classifier.FieldSpec, clusters []classifier.Cluster, signals []records.PanelSignal) ([]records.PanelSignal, bool) {
	var matched []records.PanelSignal
	unmatched := false
	for _, s := range signals {
		if classifier.Find(spec, clusters, s.PreferredValue) < 0 {
			unmatched = true
			continue
		}
		matched = append(matched, s)
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].AgentID < matched[j].AgentID })
	return matched, unmatched
}

// ranked is a cluster with its score.
type ranked struct {
	cluster classifier.Cluster
	score   float64
}

func (r *Revolver) weighted(field records.FieldName, spec classifier.FieldSpec, clusters []classifier.Cluster, signals []records.PanelSignal, unmatched bool) records.ResolutionDecision {
	type sums struct {
		n           int
		reliability float64
		agreement   float64
		confidence  float64
		rec         float64
	}
	acc := make([]sums, len(clusters))
	for _, s := range signals {
		i := classifier.Find(spec, clusters, s.PreferredValue)
		acc[i].n++
		acc[i].reliability += s.ReliabilityWeight
		acc[i].agreement += s.AgreementScore
		acc[i].confidence += s.Confidence
		acc[i].rec += s.RecencyScore
	}

	w := r.opts.weights
	rs := make([]ranked, len(clusters))
	for i, c := range clusters {
		rs[i].cluster = c
		a := acc[i]
		if a.n == 0 {
			continue
		}
		n := float64(a.n)
		score := w.Reliability*a.reliability/n +
			w.Agreement*a.agreement/n +
			w.Confidence*a.confidence/n +
			w.Recency*a.rec/n
		rs[i].score = math.Min(1, math.Max(0, score))
	}

	rules := []records.RuleName{records.RuleWeightedScore}
	if w.Recency > 0 {
		rules = append(rules, records.RuleRecencyWeighting)
	}
	if unmatched {
		rules = append(rules, records.RuleUnmatchedSignalDropped)
	}
	rank(rs, true)
	rules = append(rules, tieBreaks(rs, true)...)

	winner := rs[0]
	return records.ResolutionDecision{
		Field:             field,
		Classification:    records.Conflicting,
		WinnerValue:       winner.cluster.Representative().Value,
		WinnerConfidence:  winner.score,
		WinnerSources:     winner.cluster.SourceIDs(),
		Alternatives:      alternatives(rs[1:], true),
		RulesApplied:      rules,
		SignalsConsidered: len(signals),
	}
}

// fallback decides without panel input: best tier, then most recent, then
// first seen. Confidence is capped.
func (r *Revolver) fallback(field records.FieldName, clusters []classifier.Cluster, total int) records.ResolutionDecision {
	rs := make([]ranked, len(clusters))
	for i, c := range clusters {
		rs[i].cluster = c
	}
	rank(rs, false)

	winner := rs[0].cluster
	w := r.opts.weights
	agreement := float64(len(winner.Members)) / float64(total)
	base := (w.Reliability*winner.BestTier().Weight() + w.Agreement*agreement) / (w.Reliability + w.Agreement + constants.ScoreEpsilon)

	rules := []records.RuleName{records.RuleNoQuorumFallback, records.RuleFallbackConfidenceCap}
	rules = append(rules, tieBreaks(rs, false)...)

	return records.ResolutionDecision{
		Field:            field,
		Classification:   records.ConflictingUnresolved,
		WinnerValue:      winner.Representative().Value,
		WinnerConfidence: math.Min(r.opts.fallbackCap, math.Max(0, base)),
		WinnerSources:    winner.SourceIDs(),
		Alternatives:     alternatives(rs[1:], false),
		RulesApplied:     rules,
	}
}

// scoreStep snaps a score to a multiple of ScoreEpsilon. Equal steps tie,
// which keeps the ordering transitive.
func scoreStep(score float64) float64 {
	return math.Round(score / constants.ScoreEpsilon)
}

// decide compares two clusters. It returns whether a ranks ahead of b and
// the tie-break rule that decided it, empty when the score did.
func decide(a, b ranked, byScore bool) (bool, records.RuleName) {
	if byScore {
		if as, bs := scoreStep(a.score), scoreStep(b.score); as != bs {
			return as > bs, ""
		}
	}
	at, bt := a.cluster.BestTier(), b.cluster.BestTier()
	if at != bt {
		return at.Outranks(bt), records.RuleTieBreakSourceTier
	}
	al, bl := a.cluster.Latest().ObservedAt, b.cluster.Latest().ObservedAt
	if !al.Equal(bl) {
		return al.After(bl), records.RuleTieBreakRecency
	}
	return a.cluster.FirstOrder() < b.cluster.FirstOrder(), records.RuleTieBreakFirstSeen
}

func rank(rs []ranked, byScore bool) {
	sort.SliceStable(rs, func(i, j int) bool {
		ahead, _ := decide(rs[i], rs[j], byScore)
		return ahead
	})
}

// tieBreaks lists, in precedence order, the rules that separated the
// winner from each runner-up it did not beat on score alone.
func tieBreaks(rs []ranked, byScore bool) []records.RuleName {
	fired := make(map[records.RuleName]bool)
	for _, other := range rs[1:] {
		if _, rule := decide(rs[0], other, byScore); rule != "" {
			fired[rule] = true
		}
	}
	var out []records.RuleName
	for _, rule := range []records.RuleName{
		records.RuleTieBreakSourceTier,
		records.RuleTieBreakRecency,
		records.RuleTieBreakFirstSeen,
	} {
		if fired[rule] {
			out = append(out, rule)
		}
	}
	return out
}

func alternatives(rs []ranked, scored bool) []records.Alternative {
	out := make([]records.Alternative, 0, len(rs))
	for _, r := range rs {
		alt := records.Alternative{
			Value:     r.cluster.Representative().Value,
			SourceIDs: r.cluster.SourceIDs(),
		}
		if scored {
			alt.Score = r.score
		}
		out = append(out, alt)
	}
	return out
}

// Item is one field's input to ResolveAll.
type Item struct {
	Classification records.FieldClassification
	Signals        []records.PanelSignal
}

// ResolveAll decides every field concurrently and returns the decisions
// keyed by field.
func (r *Revolver) ResolveAll(ctx context.Context, items []Item) map[records.FieldName]records.ResolutionDecision {
	rp := pool.NewWithResults[records.ResolutionDecision]().WithMaxGoroutines(r.opts.workers)
	for _, it := range items {
		rp.Go(func() records.ResolutionDecision {
			return r.Resolve(it.Classification, it.Signals)
		})
	}

	out := make(map[records.FieldName]records.ResolutionDecision, len(items))
	for _, d := range rp.Wait() {
		out[d.Field] = d
	}

	logger := logging.FromContext(ctx)
	logger.Debug().
		Int("field_count", len(out)).
		Float64("overall_confidence", records.OverallConfidence(out)).
		Msg("Resolved fields")
	return out
}
