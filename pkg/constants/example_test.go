package constants_test

import (
	"fmt"
	"time"

	"github.com/agentstation/corroborate/pkg/constants"
)

// Example_scoring shows the default score weights sum to one.
func Example_scoring() {
	sum := constants.ReliabilityWeight + constants.AgreementWeight + constants.ConfidenceWeight + constants.RecencyWeight
	fmt.Printf("weights: %.1f/%.1f/%.1f sum=%.1f\n",
		constants.ReliabilityWeight, constants.AgreementWeight, constants.ConfidenceWeight, sum)
	fmt.Printf("fallback cap: %.1f\n", constants.FallbackConfidenceCap)
	// Output:
	// weights: 0.4/0.3/0.3 sum=1.0
	// fallback cap: 0.3
}

// Example_backoff shows the retry schedule implied by the defaults.
func Example_backoff() {
	for i := 0; i < constants.MaxRetries-1; i++ {
		backoff := constants.RetryBackoff * time.Duration(1<<i)
		if backoff > constants.MaxRetryBackoff {
			backoff = constants.MaxRetryBackoff
		}
		fmt.Printf("retry %d after %v\n", i+1, backoff)
	}
	fmt.Printf("breaker opens after %d failures for %v\n", constants.BreakerFailureThreshold, constants.BreakerCooldown)
	// Output:
	// retry 1 after 1s
	// retry 2 after 2s
	// breaker opens after 5 failures for 30s
}
