package navigator

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"faqharvest/internal/browser"
	"faqharvest/internal/faults"
)

type navCall struct {
	url  string
	cond browser.WaitCondition
}

// fakeDriver scripts per-call navigation results and records recoveries
// and user-agent rotation.
type fakeDriver struct {
	results    []error // one per Navigate call, nil past the end
	calls      []navCall
	userAgents []string
	recycles   int
	recycleErr error
}

func (d *fakeDriver) Navigate(url string, cond browser.WaitCondition, _ time.Duration) error {
	i := len(d.calls)
	d.calls = append(d.calls, navCall{url: url, cond: cond})
	if i < len(d.results) {
		return d.results[i]
	}
	return nil
}

func (d *fakeDriver) SetUserAgent(ua string) error {
	d.userAgents = append(d.userAgents, ua)
	return nil
}

func (d *fakeDriver) Recycle() error {
	d.recycles++
	return d.recycleErr
}

type fakeClock struct {
	now   time.Time
	slept []time.Duration
}

func (c *fakeClock) Sleep(d time.Duration) {
	c.slept = append(c.slept, d)
	c.now = c.now.Add(d)
}

func (c *fakeClock) Now() time.Time { return c.now }

func quietLogger() *log.Logger { return log.New(io.Discard) }

var errTimeout = errors.New("navigation timeout: context deadline exceeded")
var errFlaky = errors.New("net::ERR_CONNECTION_RESET")

func machine(d *fakeDriver, p Policy) (*Machine, *fakeClock) {
	c := &fakeClock{now: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)}
	m := New(d, NewPolicyTable(map[string]Policy{"t": p}), quietLogger()).
		WithClock(c.Sleep, c.Now)
	return m, c
}

func TestBackoffMonotoneAndCapped(t *testing.T) {
	p := Policy{BaseBackoff: 20000 * time.Millisecond, BackoffCap: 60000 * time.Millisecond, MaxAttempts: 5}

	var prev time.Duration
	for i := 1; i <= 4; i++ {
		d := Backoff(p, i)
		assert.GreaterOrEqual(t, d, prev, "backoff must be non-decreasing at attempt %d", i)
		assert.LessOrEqual(t, d, p.BackoffCap, "backoff must not exceed the cap at attempt %d", i)
		prev = d
	}
	assert.Equal(t, 20000*time.Millisecond, Backoff(p, 1))
	assert.Equal(t, 30000*time.Millisecond, Backoff(p, 2))
	assert.Equal(t, 45000*time.Millisecond, Backoff(p, 3))
	assert.Equal(t, 60000*time.Millisecond, Backoff(p, 4), "1.5^3 overshoots and must clamp to the cap")
}

func TestExecuteSucceedsFirstTry(t *testing.T) {
	d := &fakeDriver{}
	m, c := machine(d, Policy{MaxAttempts: 3, AttemptTimeout: time.Second, BaseBackoff: time.Second, BackoffCap: time.Minute})

	outcomes, err := m.Execute(context.Background(), Target{Label: "t", URL: "https://site.example/"})
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Success)
	assert.Equal(t, string(browser.WaitDOMStable), outcomes[0].Condition)
	assert.Empty(t, c.slept, "no backoff on a clean first attempt")
	assert.Equal(t, StateSucceeded, m.State())
}

func TestExecuteEscalatesConditionsWithinAttempt(t *testing.T) {
	// The strict condition flakes twice with non-timeout errors, then
	// the third (network-idle) succeeds — all inside attempt 1.
	d := &fakeDriver{results: []error{errFlaky, errFlaky, nil}}
	m, _ := machine(d, Policy{MaxAttempts: 3, AttemptTimeout: time.Second, BaseBackoff: time.Second, BackoffCap: time.Minute})

	outcomes, err := m.Execute(context.Background(), Target{Label: "t", URL: "https://site.example/"})
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, string(browser.WaitNetworkIdle), outcomes[0].Condition)
	require.Len(t, d.calls, 3)
	assert.Equal(t, browser.WaitDOMStable, d.calls[0].cond)
	assert.Equal(t, browser.WaitRequestIdle, d.calls[1].cond)
	assert.Equal(t, browser.WaitNetworkIdle, d.calls[2].cond)
}

func TestExecuteTimeoutShortCircuitsAttempt(t *testing.T) {
	// A hard timeout on the first condition must not burn the looser
	// conditions in the same attempt; attempt 2 starts fresh.
	d := &fakeDriver{results: []error{errTimeout, nil}}
	m, c := machine(d, Policy{MaxAttempts: 3, AttemptTimeout: time.Second, BaseBackoff: 2 * time.Second, BackoffCap: time.Minute})

	outcomes, err := m.Execute(context.Background(), Target{Label: "t", URL: "https://site.example/"})
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.False(t, outcomes[0].Success)
	assert.Equal(t, faults.ClassNavigationTimeout, outcomes[0].Class)
	assert.True(t, outcomes[1].Success)

	// Only one Navigate call in attempt 1, then backoff, then attempt 2.
	require.Len(t, d.calls, 2)
	assert.Equal(t, browser.WaitDOMStable, d.calls[0].cond)
	assert.Equal(t, browser.WaitDOMStable, d.calls[1].cond)
	require.Len(t, c.slept, 1)
	assert.Equal(t, 2*time.Second, c.slept[0])
}

func TestExecuteRecoveryCadence(t *testing.T) {
	// Every attempt times out: 5 attempts, one Navigate each.
	d := &fakeDriver{results: []error{errTimeout, errTimeout, errTimeout, errTimeout, errTimeout}}
	m, _ := machine(d, Policy{MaxAttempts: 5, AttemptTimeout: time.Second, BaseBackoff: time.Second, BackoffCap: time.Minute})

	outcomes, err := m.Execute(context.Background(), Target{Label: "t", URL: "https://site.example/"})
	require.Error(t, err)
	assert.Equal(t, faults.ClassNavigationTimeout, faults.Classify(err))
	assert.Len(t, outcomes, 5)
	for i, o := range outcomes {
		assert.False(t, o.Success, "attempt %d", i+1)
	}
	// floor((5-1)/2) = 2 recoveries, after attempts 2 and 4.
	assert.Equal(t, 2, d.recycles)
	assert.Equal(t, StateFailed, m.State())
}

func TestExecuteRecoveryCappedAtTwo(t *testing.T) {
	d := &fakeDriver{results: []error{
		errTimeout, errTimeout, errTimeout, errTimeout,
		errTimeout, errTimeout, errTimeout, errTimeout,
	}}
	m, _ := machine(d, Policy{MaxAttempts: 8, AttemptTimeout: time.Second, BaseBackoff: time.Second, BackoffCap: time.Minute})

	_, err := m.Execute(context.Background(), Target{Label: "t", URL: "https://site.example/"})
	require.Error(t, err)
	assert.Equal(t, 2, d.recycles, "recoveries must cap at 2 regardless of budget")
}

func TestExecuteFailedRecoveryEndsTarget(t *testing.T) {
	// Recycle cannot bring the browser back: the target must end with a
	// session-class error instead of retrying against a dead page.
	d := &fakeDriver{
		results:    []error{errTimeout, errTimeout, errTimeout, errTimeout, errTimeout},
		recycleErr: errors.New("launch chromium: exec: no such file or directory"),
	}
	m, _ := machine(d, Policy{MaxAttempts: 5, AttemptTimeout: time.Second, BaseBackoff: time.Second, BackoffCap: time.Minute})

	outcomes, err := m.Execute(context.Background(), Target{Label: "t", URL: "https://site.example/"})
	require.Error(t, err)
	assert.ErrorIs(t, err, faults.ErrSessionUnusable)
	assert.Equal(t, faults.ClassSession, faults.Classify(err))
	assert.Equal(t, 1, d.recycles, "the first failed recovery must stop the target")
	assert.Len(t, outcomes, 2, "the attempt log up to the failed recovery is kept")
	assert.Equal(t, StateFailed, m.State())
}

func TestExecuteNoRecoveryAfterFinalAttempt(t *testing.T) {
	d := &fakeDriver{results: []error{errTimeout, errTimeout}}
	m, _ := machine(d, Policy{MaxAttempts: 2, AttemptTimeout: time.Second, BaseBackoff: time.Second, BackoffCap: time.Minute})

	_, err := m.Execute(context.Background(), Target{Label: "t", URL: "https://site.example/"})
	require.Error(t, err)
	assert.Zero(t, d.recycles, "a recovery after the last attempt would be wasted work")
}

func TestExecuteDirectURLFallback(t *testing.T) {
	// 4-attempt budget with a deep link: attempts 1-2 go indirect,
	// attempts 3+ switch to the direct URL.
	d := &fakeDriver{results: []error{errTimeout, errTimeout, nil}}
	m, _ := machine(d, Policy{MaxAttempts: 4, AttemptTimeout: time.Second, BaseBackoff: time.Second, BackoffCap: time.Minute})

	outcomes, err := m.Execute(context.Background(), Target{
		Label:     "t",
		URL:       "https://site.example/",
		DirectURL: "https://site.example/help/settlement",
	})
	require.NoError(t, err)
	require.Len(t, outcomes, 3)
	assert.False(t, outcomes[0].Direct)
	assert.False(t, outcomes[1].Direct)
	assert.True(t, outcomes[2].Direct)
	assert.Equal(t, "https://site.example/help/settlement", d.calls[len(d.calls)-1].url)
}

func TestExecuteRotatesUserAgents(t *testing.T) {
	d := &fakeDriver{results: []error{errTimeout, errTimeout, nil}}
	m, _ := machine(d, Policy{MaxAttempts: 3, AttemptTimeout: time.Second, BaseBackoff: time.Second, BackoffCap: time.Minute})
	m.WithUserAgents([]string{"ua-a", "ua-b"})

	_, err := m.Execute(context.Background(), Target{Label: "t", URL: "https://site.example/"})
	require.NoError(t, err)
	assert.Equal(t, []string{"ua-a", "ua-b", "ua-a"}, d.userAgents)
}

func TestExecuteSettleDelayAfterSuccess(t *testing.T) {
	d := &fakeDriver{}
	m, c := machine(d, Policy{MaxAttempts: 2, AttemptTimeout: time.Second, BaseBackoff: time.Second, BackoffCap: time.Minute, SettleDelay: 3 * time.Second})

	_, err := m.Execute(context.Background(), Target{Label: "t", URL: "https://site.example/"})
	require.NoError(t, err)
	require.Len(t, c.slept, 1)
	assert.Equal(t, 3*time.Second, c.slept[0])
}

func TestPolicyTableFallsBackToDefault(t *testing.T) {
	table := NewPolicyTable(map[string]Policy{"Settlement": {MaxAttempts: 7}})
	assert.Equal(t, 7, table.For("Settlement").MaxAttempts)
	assert.Equal(t, DefaultPolicy().MaxAttempts, table.For("unknown").MaxAttempts)
}

func TestExecuteStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	d := &fakeDriver{results: []error{errTimeout}}
	m, _ := machine(d, Policy{MaxAttempts: 5, AttemptTimeout: time.Second, BaseBackoff: time.Second, BackoffCap: time.Minute})

	cancel()
	outcomes, err := m.Execute(ctx, Target{Label: "t", URL: "https://site.example/"})
	require.Error(t, err)
	assert.Len(t, outcomes, 1, "a cancelled run must not keep burning attempts")
}
