package locator

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ysmood/gson"

	"faqharvest/internal/faults"
)

// fakeEvaluator replays one canned response per Eval call.
type fakeEvaluator struct {
	responses []any
	errs      []error
	scripts   []string
	calls     int
}

func (f *fakeEvaluator) Eval(js string) (gson.JSON, error) {
	i := f.calls
	f.calls++
	f.scripts = append(f.scripts, js)
	if i < len(f.errs) && f.errs[i] != nil {
		return gson.New(nil), f.errs[i]
	}
	if i < len(f.responses) {
		return gson.New(f.responses[i]), nil
	}
	return gson.New(map[string]any{"found": false}), nil
}

func hit(top float64, text string) map[string]any {
	return map[string]any{"found": true, "top": top, "text": text}
}

func miss() map[string]any {
	return map[string]any{"found": false, "top": 0, "text": ""}
}

func TestLocateFirstStrategyWins(t *testing.T) {
	ev := &fakeEvaluator{responses: []any{hit(120, "Settlement")}}

	res, err := Locate(ev, "Settlement")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Rank)
	assert.Equal(t, "exact-interactive", res.Strategy)
	assert.Equal(t, 120.0, res.Top)
	assert.Equal(t, Marker, res.Marker)
	assert.Equal(t, 1, ev.calls, "later strategies must not run after a hit")
}

func TestLocateFallsThroughInRankOrder(t *testing.T) {
	ev := &fakeEvaluator{responses: []any{miss(), miss(), hit(300, "Collect link fees")}}

	res, err := Locate(ev, "Collect link")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Rank)
	assert.Equal(t, "contains-interactive", res.Strategy)
	assert.Equal(t, 3, ev.calls)
}

func TestLocateNotFound(t *testing.T) {
	ev := &fakeEvaluator{responses: []any{miss(), miss(), miss(), miss(), miss()}}

	_, err := Locate(ev, "No such label")
	require.Error(t, err)
	assert.True(t, errors.Is(err, faults.ErrNotFound))
	assert.Equal(t, len(Strategies()), ev.calls)
}

func TestLocateEvalErrorDoesNotAbortChain(t *testing.T) {
	ev := &fakeEvaluator{
		errs:      []error{errors.New("eval failed")},
		responses: []any{nil, hit(50, "Refunds")},
	}

	res, err := Locate(ev, "Refunds")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Rank)
}

func TestStrategyScriptsQuoteLabel(t *testing.T) {
	label := `He said "reset" & <quit>`
	for _, st := range Strategies() {
		js := st.Script(label)
		assert.Contains(t, js, `\"reset\"`, "strategy %s must JSON-escape the label", st.Name)
		assert.NotContains(t, js, "\"He said \"reset\"", "strategy %s must not inject raw quotes", st.Name)
	}
}

func TestStrategyOrderAndFamilies(t *testing.T) {
	sts := Strategies()
	require.Len(t, sts, 5)
	for i, st := range sts {
		assert.Equal(t, i+1, st.Rank)
	}

	// Exact interactive-role pass scans buttons and anchors.
	js := sts[0].Script("x")
	assert.Contains(t, js, "button")
	assert.Contains(t, js, "role=")

	// Focusable pass keys on the tabindex attribute.
	assert.Contains(t, sts[1].Script("x"), "tabindex")

	// XPath passes go through document.evaluate.
	assert.Contains(t, sts[3].Script("x"), "document.evaluate")
	assert.Contains(t, sts[4].Script("x"), "contains(text()")

	// Every strategy enforces visibility.
	for _, st := range sts {
		assert.Contains(t, st.Script("x"), "getBoundingClientRect", st.Name)
	}
}

func TestJSString(t *testing.T) {
	out := jsString("a\"b\nc")
	assert.True(t, strings.HasPrefix(out, `"`))
	assert.Contains(t, out, `\"`)
	assert.Contains(t, out, `\n`)
}
