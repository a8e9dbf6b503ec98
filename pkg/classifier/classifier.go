// Package classifier merges provider results into per-field candidate lists
// and tags each field as Unanimous, Conflicting, or Absent.
//
// Classification is a pure function of the candidate set: merge order is
// fixed by source ID, and values are compared after normalization so that
// formatting differences and small numeric drift do not read as conflicts.
package classifier

import (
	"context"

	"github.com/agentstation/corroborate/pkg/logging"
	"github.com/agentstation/corroborate/pkg/records"
)

// Classified pairs a field's observation with its classification.
type Classified struct {
	Spec           FieldSpec
	Observation    records.FieldObservation
	Classification records.FieldClassification
	Clusters       []Cluster
}

// Classifier merges and classifies fields against a schema.
type Classifier struct {
	schema *Schema
}

// New creates a classifier. A nil schema uses DefaultSchema.
func New(schema *Schema) *Classifier {
	if schema == nil {
		schema = DefaultSchema()
	}
	return &Classifier{schema: schema}
}

// Schema returns the classifier's schema.
func (c *Classifier) Schema() *Schema {
	return c.schema
}

// Merge builds one observation per schema field from the successful fetch
// results. Results are ordered by source ID first, so the candidate order is
// independent of provider completion order.
func (c *Classifier) Merge(ctx context.Context, results []records.FetchResult) []records.FieldObservation {
	sorted := append([]records.FetchResult(nil), results...)
	records.SortFetchResults(sorted)

	byField := make(map[records.FieldName][]records.Candidate, c.schema.Len())
	for _, res := range sorted {
		if !res.OK() {
			continue
		}
		for _, spec := range c.schema.fields {
			raw, ok := res.FieldValues[spec.Name]
			if !ok || raw == nil {
				continue
			}
			cand := records.Candidate{
				SourceID:   res.SourceID,
				Value:      raw,
				Tier:       res.Tier,
				ObservedAt: res.FetchedAt,
			}
			if d, ok := raw.(records.Dated); ok {
				if d.Value == nil {
					continue
				}
				cand.Value = d.Value
				if !d.AsOf.IsZero() {
					cand.ObservedAt = d.AsOf
				}
			}
			byField[spec.Name] = append(byField[spec.Name], cand)
		}
		for name := range res.FieldValues {
			if _, known := c.schema.Lookup(name); !known {
				logging.FromContext(ctx).Debug().
					Str("source_id", string(res.SourceID)).
					Str("field_name", string(name)).
					Msg("Dropping unknown field")
			}
		}
	}

	out := make([]records.FieldObservation, 0, c.schema.Len())
	for _, spec := range c.schema.fields {
		cands := byField[spec.Name]
		for i := range cands {
			cands[i].Order = i
		}
		out = append(out, records.FieldObservation{Field: spec.Name, Candidates: cands})
	}
	return out
}

// Classify tags a single observation.
func (c *Classifier) Classify(obs records.FieldObservation) Classified {
	spec, ok := c.schema.Lookup(obs.Field)
	if !ok {
		spec = FieldSpec{Name: obs.Field, Kind: Text}
	}
	out := Classified{Spec: spec, Observation: obs}
	if len(obs.Candidates) == 0 {
		out.Classification = records.NewAbsent(obs.Field)
		return out
	}

	out.Clusters = Group(spec, obs.Candidates)
	if len(out.Clusters) == 1 {
		rep := out.Clusters[0].Representative()
		out.Classification = records.NewUnanimous(obs.Field, rep.Value, obs.Candidates)
		return out
	}
	out.Classification = records.NewConflicting(obs.Field, obs.Candidates)
	return out
}

// ClassifyAll merges results and classifies every schema field, in field-name order.
func (c *Classifier) ClassifyAll(ctx context.Context, results []records.FetchResult) []Classified {
	observations := c.Merge(ctx, results)
	out := make([]Classified, 0, len(observations))
	for _, obs := range observations {
		cl := c.Classify(obs)
		logging.FromContext(ctx).Debug().
			Str("field_name", string(obs.Field)).
			Stringer("classification", cl.Classification.Kind).
			Int("candidates", len(obs.Candidates)).
			Int("clusters", len(cl.Clusters)).
			Msg("Classified field")
		out = append(out, cl)
	}
	return out
}
