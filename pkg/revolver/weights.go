package revolver

import (
	"fmt"
	"math"

	"github.com/agentstation/corroborate/pkg/constants"
	"github.com/agentstation/corroborate/pkg/errors"
)

// Weights are the coefficients of the per-value score.
type Weights struct {
	Reliability float64 `json:"reliability" yaml:"reliability" mapstructure:"reliability"`
	Agreement   float64 `json:"agreement" yaml:"agreement" mapstructure:"agreement"`
	Confidence  float64 `json:"confidence" yaml:"confidence" mapstructure:"confidence"`
	Recency     float64 `json:"recency" yaml:"recency" mapstructure:"recency"`
}

// DefaultWeights returns 0.4 reliability, 0.3 agreement, 0.3 confidence.
func DefaultWeights() Weights {
	return Weights{
		Reliability: constants.ReliabilityWeight,
		Agreement:   constants.AgreementWeight,
		Confidence:  constants.ConfidenceWeight,
		Recency:     constants.RecencyWeight,
	}
}

// Sum returns the total weight.
func (w Weights) Sum() float64 {
	return w.Reliability + w.Agreement + w.Confidence + w.Recency
}

// Validate requires each weight in [0,1] and a sum in (0,1], so every
// score stays within [0,1].
func (w Weights) Validate() error {
	named := []struct {
		name string
		v    float64
	}{
		{"reliability", w.Reliability},
		{"agreement", w.Agreement},
		{"confidence", w.Confidence},
		{"recency", w.Recency},
	}
	for _, n := range named {
		if math.IsNaN(n.v) || n.v < 0 || n.v > 1 {
			return errors.NewConfigError("revolver", fmt.Sprintf("%s weight %v outside [0,1]", n.name, n.v), nil)
		}
	}
	sum := w.Sum()
	if sum <= 0 || sum > 1+constants.ScoreEpsilon {
		return errors.NewConfigError("revolver", fmt.Sprintf("weights sum to %v, want (0,1]", sum), nil)
	}
	return nil
}
