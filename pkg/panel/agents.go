package panel

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/agentstation/corroborate/pkg/classifier"
	"github.com/agentstation/corroborate/pkg/constants"
	"github.com/agentstation/corroborate/pkg/records"
)

// DefaultRegistry returns a registry with the built-in deterministic strategies.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, s := range builtins {
		// Built-in names are unique.
		_ = r.Register(s.name, s.factory())
	}
	return r
}

// strategy scores every cluster through a lens; the highest score wins.
type strategy struct {
	name      string
	rationale string
	lenses    []float64
	// score returns a lens-specific preference for each cluster.
	score func(ec Context, clusters []classifier.Cluster, total int, lens float64) []float64
}

func (s strategy) factory() Factory {
	return func(id string, index int) (Agent, error) {
		lens := s.lenses[index%len(s.lenses)]
		return NewAgent(id, func(_ context.Context, field records.FieldName, candidates []records.Candidate, ec Context) (records.PanelSignal, error) {
			clusters := ec.Clusters
			if len(clusters) == 0 {
				clusters = classifier.Group(ec.Spec, candidates)
			}
			if len(clusters) == 0 {
				return records.PanelSignal{}, fmt.Errorf("no candidates for %s", field)
			}
			scores := s.score(ec, clusters, len(candidates), lens)
			best, margin := pick(clusters, scores)
			c := clusters[best]
			reliability, agreement, recency := ClusterScores(c, len(candidates), ec.Now)
			return records.PanelSignal{
				AgentID:           id,
				Field:             field,
				PreferredValue:    c.Representative().Value,
				Confidence:        0.5 + 0.5*margin,
				ReliabilityWeight: reliability,
				RecencyScore:      recency,
				AgreementScore:    agreement,
				Rationale:         fmt.Sprintf("%s (lens %.2g)", s.rationale, lens),
			}, nil
		}), nil
	}
}

var builtins = []strategy{
	{
		name:      "tier",
		rationale: "prefers the value backed by the most reliable sources",
		lenses:    []float64{1, 2, 0.5},
		score: func(_ Context, clusters []classifier.Cluster, _ int, p float64) []float64 {
			out := make([]float64, len(clusters))
			for i, c := range clusters {
				for _, m := range c.Members {
					out[i] += math.Pow(m.Tier.Weight(), p)
				}
			}
			return out
		},
	},
	{
		name:      "consensus",
		rationale: "prefers the value most sources agree on",
		lenses:    []float64{0, 2, 3},
		score: func(_ Context, clusters []classifier.Cluster, _ int, maxTier float64) []float64 {
			out := make([]float64, len(clusters))
			for i, c := range clusters {
				for _, m := range c.Members {
					if maxTier == 0 || float64(m.Tier) <= maxTier {
						out[i]++
					}
				}
			}
			return out
		},
	},
	{
		name:      "recency",
		rationale: "prefers the most recently observed value",
		lenses:    []float64{365, 90, 3 * 365},
		score: func(ec Context, clusters []classifier.Cluster, _ int, halfLifeDays float64) []float64 {
			hl := time.Duration(halfLifeDays * float64(24*time.Hour))
			out := make([]float64, len(clusters))
			for i, c := range clusters {
				out[i] = decay(c, ec.Now, hl)
			}
			return out
		},
	},
	{
		name:      "median",
		rationale: "prefers the value nearest the tier-weighted median",
		lenses:    []float64{1, 2},
		score:     medianScores,
	},
	{
		name:      "authority",
		rationale: "prefers the single most reliable source's value",
		lenses:    []float64{1},
		score: func(_ Context, clusters []classifier.Cluster, _ int, _ float64) []float64 {
			best := 0
			for i := 1; i < len(clusters); i++ {
				if classifier.PreferCandidate(clusters[i].Representative(), clusters[best].Representative()) {
					best = i
				}
			}
			out := make([]float64, len(clusters))
			for i, c := range clusters {
				out[i] = c.BestTier().Weight() / 2
			}
			out[best] = 1
			return out
		},
	},
}

// medianScores scores numeric clusters by closeness to the weighted median.
// Non-numeric fields fall back to counting members.
func medianScores(_ Context, clusters []classifier.Cluster, _ int, p float64) []float64 {
	type point struct {
		v, w float64
	}
	var pts []point
	means := make([]float64, len(clusters))
	for i, c := range clusters {
		var sum float64
		for _, m := range c.Members {
			f, ok := numeric(m)
			if !ok {
				return countScores(clusters)
			}
			w := math.Pow(m.Tier.Weight(), p)
			pts = append(pts, point{f, w})
			sum += f
		}
		means[i] = sum / float64(len(c.Members))
	}

	sort.SliceStable(pts, func(i, j int) bool { return pts[i].v < pts[j].v })
	var total float64
	for _, pt := range pts {
		total += pt.w
	}
	var acc, median float64
	for _, pt := range pts {
		acc += pt.w
		if acc >= total/2 {
			median = pt.v
			break
		}
	}

	out := make([]float64, len(clusters))
	for i := range clusters {
		denom := math.Max(math.Abs(median), 1)
		out[i] = 1 / (1 + math.Abs(means[i]-median)/denom)
	}
	return out
}

func numeric(m records.Candidate) (float64, bool) {
	f, ok := classifier.Normalize(classifier.FieldSpec{Kind: classifier.Numeric}, m.Value).(float64)
	return f, ok
}

func countScores(clusters []classifier.Cluster) []float64 {
	out := make([]float64, len(clusters))
	for i, c := range clusters {
		out[i] = float64(len(c.Members))
	}
	return out
}

// pick returns the best cluster and a margin in [0,1] over the runner-up.
// Ties fall to the deterministic candidate order.
func pick(clusters []classifier.Cluster, scores []float64) (int, float64) {
	best := 0
	for i := 1; i < len(clusters); i++ {
		switch {
		case scores[i] > scores[best]+constants.ScoreEpsilon:
			best = i
		case math.Abs(scores[i]-scores[best]) <= constants.ScoreEpsilon &&
			classifier.PreferCandidate(clusters[i].Representative(), clusters[best].Representative()):
			best = i
		}
	}
	second := math.Inf(-1)
	for i, s := range scores {
		if i != best && s > second {
			second = s
		}
	}
	if math.IsInf(second, -1) || scores[best] <= 0 {
		return best, 0
	}
	margin := (scores[best] - second) / scores[best]
	return best, math.Max(0, math.Min(1, margin))
}

// ClusterScores returns the signal scores for preferring c: its best tier
// weight, its share of the total candidates, and the recency of its latest
// observation under the default half-life.
func ClusterScores(c classifier.Cluster, total int, now time.Time) (reliability, agreement, recency float64) {
	reliability = c.BestTier().Weight()
	if total > 0 {
		agreement = float64(len(c.Members)) / float64(total)
	}
	return reliability, agreement, decay(c, now, constants.RecencyHalfLife)
}

// decay halves every halfLife from the latest observation.
func decay(c classifier.Cluster, now time.Time, halfLife time.Duration) float64 {
	latest := c.Latest().ObservedAt
	if latest.IsZero() || now.IsZero() || halfLife <= 0 {
		return 0
	}
	age := now.Sub(latest)
	if age <= 0 {
		return 1
	}
	return math.Pow(0.5, float64(age)/float64(halfLife))
}
