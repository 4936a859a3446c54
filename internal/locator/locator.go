// Package locator finds the single best interactive element for a
// human-readable label. Strategies are an ordered list tried strictly in
// rank order; the first hit wins and no cross-strategy scoring happens.
// Locating is a pure query: the only page mutation is a marker attribute
// on the chosen element so a later click can address it.
package locator

import (
	"encoding/json"
	"fmt"

	"github.com/ysmood/gson"

	"faqharvest/internal/faults"
)

// Marker is the attribute set on the located element. Click actions
// address the element through this selector.
const Marker = "[data-harvest-hit]"

// markerAttr is the bare attribute name used inside scripts.
const markerAttr = "data-harvest-hit"

// interactiveFamilies are the tag/attribute families considered
// clickable. The target app renders "buttons" as nested generic
// containers, so focusable divs are included.
const interactiveFamilies = `button, a, [role="button"], [role="link"], [role="tab"], summary`

// Evaluator runs a script in the live page and returns its JSON value.
type Evaluator interface {
	Eval(js string) (gson.JSON, error)
}

// Result is a handle to a found element: the strategy that matched, its
// rank, and the element's vertical page position for ordering. It is
// valid for one interaction attempt only.
type Result struct {
	Marker   string
	Strategy string
	Rank     int
	Top      float64
	Text     string
}

// Strategy generates the page script for one lookup approach. Script is
// a pure function of the label; running it is the runner's job.
type Strategy struct {
	Rank   int
	Name   string
	Script func(label string) string
}

// jsString renders s as a JavaScript string literal.
func jsString(s string) string {
	quoted, _ := json.Marshal(s)
	return string(quoted)
}

// prelude defines the helpers every strategy script shares: a strict
// visibility check and a marker that clears any previous hit.
const prelude = `
	const visible = (el) => {
		if (!el) return false;
		const r = el.getBoundingClientRect();
		if (r.width <= 0 || r.height <= 0) return false;
		const cs = window.getComputedStyle(el);
		return cs.visibility !== 'hidden' && cs.display !== 'none';
	};
	const mark = (el) => {
		document.querySelectorAll('[` + markerAttr + `]').forEach(e => e.removeAttribute('` + markerAttr + `'));
		el.setAttribute('` + markerAttr + `', '1');
		const r = el.getBoundingClientRect();
		return {found: true, top: r.top + window.scrollY, text: (el.innerText || el.textContent || '').trim()};
	};
	const miss = {found: false, top: 0, text: ''};
`

func selectorScan(selector, match string) func(string) string {
	return func(label string) string {
		return fmt.Sprintf(`() => {
			%s
			const label = %s;
			for (const el of document.querySelectorAll(%s)) {
				if (!visible(el)) continue;
				const text = (el.innerText || el.textContent || '').trim();
				if (%s) return mark(el);
			}
			return miss;
		}`, prelude, jsString(label), jsString(selector), match)
	}
}

func xpathScan(expr string) func(string) string {
	return func(label string) string {
		return fmt.Sprintf(`() => {
			%s
			const label = %s;
			const q = document.evaluate(%s, document, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
			for (let i = 0; i < q.snapshotLength; i++) {
				const el = q.snapshotItem(i);
				if (visible(el)) return mark(el);
			}
			return miss;
		}`, prelude, jsString(label), expr)
	}
}

// Strategies returns the ranked chain. Order matters: exact matches on
// interactive roles beat focusable containers, substring matches are
// tried only after both exact passes missed, and XPath is the last
// resort for text buried in nested spans.
func Strategies() []Strategy {
	return []Strategy{
		{Rank: 1, Name: "exact-interactive", Script: selectorScan(interactiveFamilies, `text === label`)},
		{Rank: 2, Name: "exact-focusable", Script: selectorScan(`[tabindex]`, `text === label`)},
		{Rank: 3, Name: "contains-interactive", Script: selectorScan(interactiveFamilies+`, [tabindex]`, `text.includes(label)`)},
		{Rank: 4, Name: "xpath-exact", Script: xpathScan(`'//*[normalize-space(text())=' + JSON.stringify(label) + ']'`)},
		{Rank: 5, Name: "xpath-contains", Script: xpathScan(`'//*[contains(text(),' + JSON.stringify(label) + ')]'`)},
	}
}

// Locate runs the strategy chain for label against the page. It returns
// faults.ErrNotFound when every strategy misses; that is a skip signal,
// not a failure.
func Locate(ev Evaluator, label string) (*Result, error) {
	return locate(ev, label, Strategies())
}

func locate(ev Evaluator, label string, strategies []Strategy) (*Result, error) {
	for _, st := range strategies {
		v, err := ev.Eval(st.Script(label))
		if err != nil {
			// A broken evaluation does not disqualify the looser
			// strategies behind it.
			continue
		}
		if v.Get("found").Bool() {
			return &Result{
				Marker:   Marker,
				Strategy: st.Name,
				Rank:     st.Rank,
				Top:      v.Get("top").Num(),
				Text:     v.Get("text").Str(),
			}, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", faults.ErrNotFound, label)
}
