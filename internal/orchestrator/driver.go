package orchestrator

import (
	"context"

	"github.com/charmbracelet/log"

	"faqharvest/internal/browser"
	"faqharvest/internal/config"
	"faqharvest/internal/discovery"
	"faqharvest/internal/locator"
	"faqharvest/internal/navigator"
	"faqharvest/internal/routes"
	"faqharvest/internal/stability"
)

// PageDriver is everything the orchestrator needs from a live page.
// The production implementation sits on a rod browser session; tests
// swap in a scripted fake.
type PageDriver interface {
	// Open navigates to a target through the retry state machine and
	// returns the full attempt log.
	Open(ctx context.Context, target navigator.Target) ([]navigator.AttemptOutcome, error)
	// Locate finds an element by its visible label and marks it.
	Locate(label string) (*locator.Result, error)
	// Click activates the marked element.
	Click(selector string) error
	// AwaitStable waits for the page to settle after an action.
	AwaitStable(ctx context.Context, marker string) stability.Outcome
	CaptureHTML() (string, error)
	Screenshot() ([]byte, error)
	// Routes enumerates sub-routes with the configured discovery mode.
	Routes(opts routes.Options) ([]routes.Route, error)
	Categories(selectors []string) ([]discovery.Candidate, error)
	Questions(hints []string) ([]discovery.Candidate, error)
	// Location reports the page's current URL and title.
	Location() (url, title string, err error)
	Close()
}

// rodDriver binds the page primitives to one browser session.
type rodDriver struct {
	session *browser.Session
	machine *navigator.Machine
	waiter  *stability.Waiter
	mode    string
	wait    config.Wait
	answers []string
}

// NewDriver starts a browser session and wires the retry machine and
// stability waiter around it.
func NewDriver(cfg *config.Config, logger *log.Logger) (PageDriver, error) {
	session, err := browser.NewSession(browser.Config{
		Headless:       cfg.IsHeadless(),
		ProxyURL:       cfg.Proxy,
		ViewportWidth:  cfg.Viewport.Width,
		ViewportHeight: cfg.Viewport.Height,
	}, logger.WithPrefix("browser"))
	if err != nil {
		return nil, err
	}

	policy := navigator.Policy{
		MaxAttempts:    cfg.Retry.MaxAttempts,
		AttemptTimeout: cfg.Retry.AttemptTimeout.Std(),
		BaseBackoff:    cfg.Retry.BaseBackoff.Std(),
		BackoffCap:     cfg.Retry.BackoffCap.Std(),
		SettleDelay:    cfg.Delay.Std(),
	}
	table := navigator.PolicyTable{Default: policy}
	machine := navigator.New(session, table, logger.WithPrefix("navigate")).WithUserAgents(cfg.UserAgents)

	return &rodDriver{
		session: session,
		machine: machine,
		waiter:  stability.New(),
		mode:    cfg.Mode,
		wait:    cfg.Wait,
		answers: cfg.AnswerSelectors,
	}, nil
}

func (d *rodDriver) Open(ctx context.Context, target navigator.Target) ([]navigator.AttemptOutcome, error) {
	return d.machine.Execute(ctx, target)
}

func (d *rodDriver) Locate(label string) (*locator.Result, error) {
	return locator.Locate(d.session, label)
}

func (d *rodDriver) Click(selector string) error {
	return d.session.Click(selector)
}

func (d *rodDriver) AwaitStable(ctx context.Context, marker string) stability.Outcome {
	return d.waiter.Wait(ctx, d.session, stability.Options{
		Marker:          marker,
		AnswerSelectors: d.answers,
		SignalTimeout:   d.wait.SignalTimeout.Std(),
		Poll:            d.wait.Poll.Std(),
		Grace:           d.wait.Grace.Std(),
	})
}

func (d *rodDriver) CaptureHTML() (string, error)   { return d.session.CaptureHTML() }
func (d *rodDriver) Screenshot() ([]byte, error)    { return d.session.Screenshot() }
func (d *rodDriver) Location() (string, string, error) { return d.session.Location() }

func (d *rodDriver) Routes(opts routes.Options) ([]routes.Route, error) {
	enum, ok := routes.Get(d.mode)
	if !ok {
		enum, _ = routes.Get("links")
	}
	return enum.Enumerate(d.session, opts)
}

func (d *rodDriver) Categories(selectors []string) ([]discovery.Candidate, error) {
	return discovery.Collect(d.session, selectors)
}

func (d *rodDriver) Questions(hints []string) ([]discovery.Candidate, error) {
	return discovery.CollectQuestions(d.session, hints)
}

func (d *rodDriver) Close() {
	d.session.Close()
}
