package classifier

import "github.com/agentstation/corroborate/pkg/records"

// Cluster is a set of candidates that normalize to the same value.
type Cluster struct {
	// Anchor is the first-seen member; membership is decided against it.
	Anchor  records.Candidate
	Members []records.Candidate
}

// Representative picks the cluster's reported value: the best-tier member,
// then the most recently observed, then the first seen.
func (c Cluster) Representative() records.Candidate {
	best := c.Members[0]
	for _, m := range c.Members[1:] {
		if PreferCandidate(m, best) {
			best = m
		}
	}
	return best
}

// SourceIDs lists the members' sources in candidate order.
func (c Cluster) SourceIDs() []records.SourceID {
	ids := make([]records.SourceID, 0, len(c.Members))
	for _, m := range c.Members {
		ids = append(ids, m.SourceID)
	}
	return ids
}

// BestTier returns the most reliable tier among the members.
func (c Cluster) BestTier() records.Tier {
	best := c.Members[0].Tier
	for _, m := range c.Members[1:] {
		if m.Tier.Outranks(best) {
			best = m.Tier
		}
	}
	return best
}

// Latest returns the member observed most recently.
func (c Cluster) Latest() records.Candidate {
	latest := c.Members[0]
	for _, m := range c.Members[1:] {
		if m.ObservedAt.After(latest.ObservedAt) {
			latest = m
		}
	}
	return latest
}

// FirstOrder returns the smallest candidate order in the cluster.
func (c Cluster) FirstOrder() int {
	return c.Anchor.Order
}

// Contains reports whether v falls in this cluster under spec.
func (c Cluster) Contains(spec FieldSpec, v records.Value) bool {
	return Equivalent(spec, c.Anchor.Value, v)
}

// PreferCandidate reports whether a beats b under the deterministic order:
// better tier, then more recent, then first seen.
func PreferCandidate(a, b records.Candidate) bool {
	if a.Tier != b.Tier {
		return a.Tier.Outranks(b.Tier)
	}
	if !a.ObservedAt.Equal(b.ObservedAt) {
		return a.ObservedAt.After(b.ObservedAt)
	}
	return a.Order < b.Order
}

// Group partitions candidates into clusters in first-seen order. A candidate
// joins the first cluster whose anchor it is equivalent to.
func Group(spec FieldSpec, candidates []records.Candidate) []Cluster {
	var clusters []Cluster
	for _, cand := range candidates {
		placed := false
		for i := range clusters {
			if clusters[i].Contains(spec, cand.Value) {
				clusters[i].Members = append(clusters[i].Members, cand)
				placed = true
				break
			}
		}
		if !placed {
			clusters = append(clusters, Cluster{Anchor: cand, Members: []records.Candidate{cand}})
		}
	}
	return clusters
}

// Find returns the index of the cluster containing v, or -1.
func Find(spec FieldSpec, clusters []Cluster, v records.Value) int {
	for i, c := range clusters {
		if c.Contains(spec, v) {
			return i
		}
	}
	return -1
}
