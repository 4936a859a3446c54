package navigator

import (
	"math"
	"time"
)

// Policy bounds the retry behaviour for one target class.
type Policy struct {
	MaxAttempts    int
	AttemptTimeout time.Duration
	BaseBackoff    time.Duration
	BackoffCap     time.Duration
	// SettleDelay is extra wall-clock settle time after a successful
	// navigation, for routes known to keep rendering after load.
	SettleDelay time.Duration
}

// DefaultPolicy applies to any target without a class entry.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		AttemptTimeout: 30 * time.Second,
		BaseBackoff:    5 * time.Second,
		BackoffCap:     60 * time.Second,
	}
}

// PolicyTable maps a target label class to its policy. Lookup is by
// exact label; missing labels get the default.
type PolicyTable struct {
	ByLabel map[string]Policy
	Default Policy
}

// NewPolicyTable builds a table over the default policy.
func NewPolicyTable(byLabel map[string]Policy) PolicyTable {
	return PolicyTable{ByLabel: byLabel, Default: DefaultPolicy()}
}

// For returns the policy for a target label.
func (t PolicyTable) For(label string) Policy {
	if p, ok := t.ByLabel[label]; ok {
		return p
	}
	return t.Default
}

// Backoff returns the wait before retry attempt+1:
// min(base * 1.5^(attempt-1), cap). Non-decreasing in the attempt
// number and never above the cap.
func Backoff(p Policy, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := time.Duration(float64(p.BaseBackoff) * math.Pow(1.5, float64(attempt-1)))
	if p.BackoffCap > 0 && d > p.BackoffCap {
		return p.BackoffCap
	}
	return d
}

// defaultUserAgents is the rotation pool used when the caller supplies
// none. Rotating the client signature per attempt rules out server-side
// throttling as the cause of repeated failures.
var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:122.0) Gecko/20100101 Firefox/122.0",
}
