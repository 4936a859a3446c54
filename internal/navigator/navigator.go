// Package navigator wraps a single navigation target with bounded
// retries, wait-condition escalation, exponential backoff, and periodic
// full browser-context recovery. The three concerns are deliberately
// separate layers: attempt counting lives in Execute, condition
// escalation in runAttempt, and recovery in maybeRecover, each driven by
// an injectable clock and driver so they test without a browser.
package navigator

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"faqharvest/internal/browser"
	"faqharvest/internal/faults"
)

// State names the machine's phases. Transitions:
// Idle → Navigating → Stabilizing → Extracting → Succeeded | Failed,
// with Navigating → Recovering → Idle when the failure count crosses
// the recovery threshold.
type State string

const (
	StateIdle        State = "idle"
	StateNavigating  State = "navigating"
	StateStabilizing State = "stabilizing"
	StateExtracting  State = "extracting"
	StateRecovering  State = "recovering"
	StateSucceeded   State = "succeeded"
	StateFailed      State = "failed"
)

const (
	// recoveryEvery is the failed-attempt interval between context
	// recoveries; maxRecoveries bounds them per target.
	recoveryEvery = 2
	maxRecoveries = 2
)

// Target is one named navigation destination. DirectURL, when set, is a
// known-good deep link used as the alternate path once indirect
// navigation exhausts its sub-budget.
type Target struct {
	Label     string
	URL       string
	DirectURL string
}

// AttemptOutcome records one navigation attempt. Appended to the
// attempt log for diagnostics; never mutated after creation.
type AttemptOutcome struct {
	Target    string        `json:"target"`
	Attempt   int           `json:"attempt"`
	Condition string        `json:"condition"`
	Direct    bool          `json:"direct"`
	Success   bool          `json:"success"`
	Class     faults.Class  `json:"class,omitempty"`
	Err       string        `json:"error,omitempty"`
	Elapsed   time.Duration `json:"elapsed"`
}

// Driver is the browser capability the machine depends on. The real
// implementation is *browser.Session.
type Driver interface {
	Navigate(url string, cond browser.WaitCondition, timeout time.Duration) error
	SetUserAgent(ua string) error
	Recycle() error
}

// Machine executes targets under a policy.
type Machine struct {
	driver     Driver
	policies   PolicyTable
	conditions []browser.WaitCondition
	userAgents []string
	log        *log.Logger

	sleep func(time.Duration)
	now   func() time.Time

	state State
}

// New builds a Machine on the real clock.
func New(driver Driver, policies PolicyTable, logger *log.Logger) *Machine {
	return &Machine{
		driver:     driver,
		policies:   policies,
		conditions: browser.EscalationOrder(),
		userAgents: defaultUserAgents,
		log:        logger,
		sleep:      time.Sleep,
		now:        time.Now,
		state:      StateIdle,
	}
}

// WithClock swaps the time hooks; used by tests.
func (m *Machine) WithClock(sleep func(time.Duration), now func() time.Time) *Machine {
	m.sleep = sleep
	m.now = now
	return m
}

// WithUserAgents overrides the rotation pool.
func (m *Machine) WithUserAgents(uas []string) *Machine {
	if len(uas) > 0 {
		m.userAgents = uas
	}
	return m
}

// State exposes the current phase for the orchestrator's report.
func (m *Machine) State() State { return m.state }

// Execute navigates to target, retrying per its policy. It returns the
// full attempt log and, on terminal failure, the last classified error.
// The attempt log is returned in both cases so partial progress is
// never discarded.
func (m *Machine) Execute(ctx context.Context, target Target) ([]AttemptOutcome, error) {
	policy := m.policies.For(target.Label)
	outcomes := make([]AttemptOutcome, 0, policy.MaxAttempts)

	// Indirect navigation gets the first half of the budget; once it is
	// spent and a deep link exists, the remaining attempts go direct.
	indirectBudget := policy.MaxAttempts
	if target.DirectURL != "" && target.DirectURL != target.URL {
		indirectBudget = (policy.MaxAttempts + 1) / 2
	}

	failures := 0
	recoveries := 0
	var lastErr error

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			m.sleep(Backoff(policy, attempt-1))
		}

		ua := m.userAgents[(attempt-1)%len(m.userAgents)]
		if err := m.driver.SetUserAgent(ua); err != nil {
			m.log.Warn("user-agent rotation failed", "target", target.Label, "err", err)
		}

		url := target.URL
		direct := false
		if attempt > indirectBudget && target.DirectURL != "" {
			url = target.DirectURL
			direct = true
		}

		m.state = StateNavigating
		outcome, err := m.runAttempt(ctx, target, policy, url, attempt, direct)
		outcomes = append(outcomes, outcome)

		if err == nil {
			m.state = StateStabilizing
			if policy.SettleDelay > 0 {
				m.sleep(policy.SettleDelay)
			}
			m.state = StateSucceeded
			return outcomes, nil
		}
		lastErr = err
		failures++
		m.log.Warn("navigation attempt failed",
			"target", target.Label, "attempt", attempt, "direct", direct, "err", err)

		if ctx.Err() != nil {
			break
		}
		if err := m.maybeRecover(attempt, policy, failures, &recoveries); err != nil {
			lastErr = err
			break
		}
	}

	m.state = StateFailed
	return outcomes, fmt.Errorf("target %q failed after %d attempts: %w",
		target.Label, len(outcomes), lastErr)
}

// runAttempt tries the wait conditions strict-to-loose within a single
// attempt. A hard timeout short-circuits the remaining conditions:
// timeouts are assumed not to self-correct within the same attempt.
func (m *Machine) runAttempt(ctx context.Context, target Target, policy Policy, url string, attempt int, direct bool) (AttemptOutcome, error) {
	start := m.now()
	var lastErr error
	lastCond := m.conditions[0]

	for _, cond := range m.conditions {
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}
		lastCond = cond
		err := m.driver.Navigate(url, cond, policy.AttemptTimeout)
		if err == nil {
			return AttemptOutcome{
				Target:    target.Label,
				Attempt:   attempt,
				Condition: string(cond),
				Direct:    direct,
				Success:   true,
				Elapsed:   m.now().Sub(start),
			}, nil
		}
		lastErr = err
		if faults.IsTimeout(err) {
			break
		}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no wait conditions configured")
	}
	return AttemptOutcome{
		Target:    target.Label,
		Attempt:   attempt,
		Condition: string(lastCond),
		Direct:    direct,
		Success:   false,
		Class:     faults.Classify(lastErr),
		Err:       lastErr.Error(),
		Elapsed:   m.now().Sub(start),
	}, lastErr
}

// maybeRecover recreates the browser context every recoveryEvery failed
// attempts, at most maxRecoveries times, and never after the final
// attempt. Recovery is the only remedy for a wedged session; it is
// distinct from a plain retry. A failed relaunch leaves no page to
// retry against, so the error is returned and ends the target.
func (m *Machine) maybeRecover(attempt int, policy Policy, failures int, recoveries *int) error {
	if attempt >= policy.MaxAttempts {
		return nil
	}
	if failures%recoveryEvery != 0 || *recoveries >= maxRecoveries {
		return nil
	}
	m.state = StateRecovering
	if err := m.driver.Recycle(); err != nil {
		m.log.Error("context recovery failed", "err", err)
		return fmt.Errorf("%w: context recovery: %v", faults.ErrSessionUnusable, err)
	}
	*recoveries++
	m.state = StateIdle
	return nil
}
