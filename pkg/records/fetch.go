package records

import (
	"sort"
	"time"
)

// FetchResult is what one provider produced for one request. A failed
// provider carries Err and no values.
type FetchResult struct {
	SourceID    SourceID      `json:"source_id" yaml:"source_id"`
	Tier        Tier          `json:"tier" yaml:"tier"`
	FieldValues FieldValues   `json:"field_values,omitempty" yaml:"field_values,omitempty"`
	FetchedAt   time.Time     `json:"fetched_at" yaml:"fetched_at"`
	Attempts    int           `json:"attempts" yaml:"attempts"`
	Duration    time.Duration `json:"duration" yaml:"duration"`
	Err         error         `json:"-" yaml:"-"`
}

// OK reports whether the provider returned values.
func (r FetchResult) OK() bool {
	return r.Err == nil
}

// Report summarizes the fetch for inclusion in a ResolvedRecord.
func (r FetchResult) Report() SourceReport {
	rep := SourceReport{
		SourceID:   r.SourceID,
		Tier:       r.Tier,
		OK:         r.OK(),
		FieldCount: len(r.FieldValues),
		Attempts:   r.Attempts,
		Duration:   r.Duration,
	}
	if r.Err != nil {
		rep.Error = r.Err.Error()
		rep.FieldCount = 0
	}
	return rep
}

// SortFetchResults orders results by source ID so downstream merging does
// not depend on completion order.
func SortFetchResults(results []FetchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].SourceID < results[j].SourceID
	})
}

// Dated is a field value carrying its own as-of time. Providers that know
// when a fact was last verified return it so recency reflects the fact's age
// rather than the fetch time.
type Dated struct {
	Value Value     `json:"value" yaml:"value"`
	AsOf  time.Time `json:"as_of" yaml:"as_of"`
}

// SourceReport is the per-provider outcome attached to a record.
type SourceReport struct {
	SourceID   SourceID      `json:"source_id" yaml:"source_id"`
	Tier       Tier          `json:"tier" yaml:"tier"`
	OK         bool          `json:"ok" yaml:"ok"`
	Error      string        `json:"error,omitempty" yaml:"error,omitempty"`
	FieldCount int           `json:"field_count" yaml:"field_count"`
	Attempts   int           `json:"attempts" yaml:"attempts"`
	Duration   time.Duration `json:"duration" yaml:"duration"`
}
