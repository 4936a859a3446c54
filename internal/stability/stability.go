// Package stability waits for the page to settle after a navigation or
// an in-place expansion. The target app gives no single reliable
// "finished" signal, so three independent checks run in sequence, each
// on its own budget, and the first success wins. The last check is a
// fixed grace wait that always succeeds: the waiter can degrade but
// never fails hard.
package stability

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ysmood/gson"
)

// Prober runs a script in the live page and returns its JSON value.
type Prober interface {
	Eval(js string) (gson.JSON, error)
}

// Signal names which check declared the page stable.
type Signal string

const (
	// SignalExpanded fired because the acted-upon element flipped its
	// aria-expanded state.
	SignalExpanded Signal = "expanded"
	// SignalContent fired because answer/body content appeared.
	SignalContent Signal = "content"
	// SignalGrace is the guaranteed wall-clock fallback.
	SignalGrace Signal = "grace"
)

// Options configures one wait.
type Options struct {
	// Marker selects the element whose aria-expanded flag is watched.
	// Empty skips the first check.
	Marker string
	// AnswerSelectors are the structural patterns whose appearance means
	// new body content rendered.
	AnswerSelectors []string
	// SignalTimeout is the budget for each of the two DOM checks.
	SignalTimeout time.Duration
	// Poll is the probe interval.
	Poll time.Duration
	// Grace is the fixed fallback wait.
	Grace time.Duration
}

// Outcome records how stability was reached. Degraded means both DOM
// checks timed out and only the grace wait "succeeded".
type Outcome struct {
	Signal   Signal
	Degraded bool
	Elapsed  time.Duration
}

// Waiter applies the three-check sequence. The clock hooks exist so the
// retry layers can be tested without real sleeps.
type Waiter struct {
	Sleep func(time.Duration)
	Now   func() time.Time
}

// New returns a Waiter on the real clock.
func New() *Waiter {
	return &Waiter{Sleep: time.Sleep, Now: time.Now}
}

func defaulted(opts Options) Options {
	if opts.SignalTimeout <= 0 {
		opts.SignalTimeout = 5 * time.Second
	}
	if opts.Poll <= 0 {
		opts.Poll = 250 * time.Millisecond
	}
	if opts.Grace <= 0 {
		opts.Grace = 2 * time.Second
	}
	return opts
}

// Wait blocks until one of the checks accepts the page state.
func (w *Waiter) Wait(ctx context.Context, p Prober, opts Options) Outcome {
	opts = defaulted(opts)
	start := w.Now()

	if opts.Marker != "" {
		if w.poll(ctx, p, expandedScript(opts.Marker), opts) {
			return Outcome{Signal: SignalExpanded, Elapsed: w.Now().Sub(start)}
		}
	}
	if len(opts.AnswerSelectors) > 0 {
		if w.poll(ctx, p, contentScript(opts.AnswerSelectors), opts) {
			return Outcome{Signal: SignalContent, Elapsed: w.Now().Sub(start)}
		}
	}

	w.Sleep(opts.Grace)
	return Outcome{Signal: SignalGrace, Degraded: true, Elapsed: w.Now().Sub(start)}
}

// poll evaluates script until it returns true or the signal budget runs
// out. Evaluation errors count as "not yet".
func (w *Waiter) poll(ctx context.Context, p Prober, script string, opts Options) bool {
	deadline := w.Now().Add(opts.SignalTimeout)
	for {
		if ctx.Err() != nil {
			return false
		}
		v, err := p.Eval(script)
		if err == nil && v.Bool() {
			return true
		}
		if !w.Now().Add(opts.Poll).Before(deadline) {
			return false
		}
		w.Sleep(opts.Poll)
	}
}

func expandedScript(marker string) string {
	return fmt.Sprintf(`() => {
		const el = document.querySelector(%s);
		return !!el && el.getAttribute('aria-expanded') === 'true';
	}`, jsString(marker))
}

func contentScript(selectors []string) string {
	quoted := make([]string, len(selectors))
	for i, s := range selectors {
		quoted[i] = jsString(s)
	}
	return fmt.Sprintf(`() => {
		for (const sel of [%s]) {
			for (const el of document.querySelectorAll(sel)) {
				if ((el.innerText || '').trim().length > 0) return true;
			}
		}
		return false;
	}`, strings.Join(quoted, ", "))
}

func jsString(s string) string {
	quoted, _ := json.Marshal(s)
	return string(quoted)
}
