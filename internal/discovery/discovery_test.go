package discovery

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ysmood/gson"
)

type fakeEvaluator struct {
	value   any
	scripts []string
}

func (f *fakeEvaluator) Eval(js string) (gson.JSON, error) {
	f.scripts = append(f.scripts, js)
	return gson.New(f.value), nil
}

func cand(text string, top float64) Candidate {
	return Candidate{Text: text, Top: top, Visible: true}
}

func TestFilterCategoriesVocabularyAndOrder(t *testing.T) {
	cands := []Candidate{
		cand("Settlement ▾", 400),
		cand("Random banner text", 100),
		cand("Collect link", 200),
		cand("collect LINK payments", 300), // duplicate by vocabulary name
		{Text: "Refunds", Top: 50, Visible: false},
	}
	vocab := []string{"Collect link", "Settlement", "Refunds"}

	got := FilterCategories(cands, vocab)
	assert.Equal(t, []string{"Collect link", "Settlement"}, got,
		"ascending by position, hidden and duplicate entries dropped")
}

func TestFilterCategoriesIdempotent(t *testing.T) {
	cands := []Candidate{cand("Settlement", 10), cand("Collect link help", 20)}
	vocab := []string{"Collect link", "Settlement"}

	first := FilterCategories(cands, vocab)
	second := FilterCategories(cands, vocab)
	assert.Equal(t, first, second)
}

func TestFilterQuestionsRules(t *testing.T) {
	long := "Why " + strings.Repeat("really ", 50) + "long?"
	cands := []Candidate{
		cand("How do I reset my password?", 300),
		cand("What is a collect link?", 100),
		cand("Short?", 150),                // under the length floor
		cand(long, 160),                    // over the length ceiling
		cand("No question mark here", 200), // no '?'
		{Text: "Hidden question?", Top: 50, Visible: false},
		cand("What is a collect link?", 400), // exact duplicate
	}

	got := FilterQuestions(cands)
	assert.Equal(t, []string{"What is a collect link?", "How do I reset my password?"}, got)
}

func TestFilterQuestionsCountsCharactersNotBytes(t *testing.T) {
	// Devanagari runs three bytes per character, so byte-based bounds
	// misjudge Hindi questions at both ends.
	kept := "भुगतान असफल होने पर पैसा वापस कब मिलेगा?" // 40 chars, ~100 bytes
	long := strings.Repeat("पैसा वापस ", 11) + "कब मिलेगा?" // 120 chars, >300 bytes
	short := "मिलेगा?"                                // 7 chars, 19 bytes

	got := FilterQuestions([]Candidate{cand(kept, 100), cand(long, 150), cand(short, 200)})
	assert.Equal(t, []string{kept, long}, got, "bounds apply to characters, not bytes")
}

func TestNearDuplicatePrefixIsRuneBased(t *testing.T) {
	// The two questions share their first 17 characters (over 20 bytes)
	// and diverge before character 20, so they are distinct items.
	a := "भुगतान असफल होने पर पैसा वापस कब मिलेगा?"
	b := "भुगतान असफल होने का कारण कैसे पता करें?"
	assert.False(t, NearDuplicate(a, b))
	assert.True(t, NearDuplicate(a, a+" "))
}

func TestFilterQuestionsIdempotent(t *testing.T) {
	cands := []Candidate{
		cand("How are refunds processed?", 10),
		cand("When do settlements happen?", 20),
	}
	first := FilterQuestions(cands)
	second := FilterQuestions(cands)
	require.Equal(t, first, second, "same cardinality and order on rerun")
}

func TestNearDuplicateTrailingSpaceVariant(t *testing.T) {
	assert.True(t, NearDuplicate("How do I reset my password?", "How do I reset my password? "))
}

func TestNearDuplicatePrefixContainment(t *testing.T) {
	assert.True(t, NearDuplicate(
		"How do I reset my password?",
		"How do I reset my password on the mobile app?"))
	assert.False(t, NearDuplicate(
		"How do I reset my password?",
		"When are settlements credited to my account?"))
}

func TestAppendUniqueRejectsNearDuplicates(t *testing.T) {
	pairs := []QAPair{}
	pairs, ok := AppendUnique(pairs, QAPair{Question: "How do I reset my password?"})
	require.True(t, ok)
	pairs, ok = AppendUnique(pairs, QAPair{Question: "How do I reset my password? "})
	assert.False(t, ok)
	assert.Len(t, pairs, 1, "the first sighting wins; near-duplicates are rejected, not merged")

	pairs, ok = AppendUnique(pairs, QAPair{Question: "When are settlements credited?"})
	assert.True(t, ok)
	assert.Len(t, pairs, 2)
}

func TestCollectParsesCandidates(t *testing.T) {
	ev := &fakeEvaluator{value: []any{
		map[string]any{"text": "Settlement", "top": 120.5, "visible": true},
		map[string]any{"text": "footer", "top": 900.0, "visible": false},
	}}

	got, err := Collect(ev, []string{".nav-item", "[class*='category']"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Settlement", got[0].Text)
	assert.Equal(t, 120.5, got[0].Top)
	assert.False(t, got[1].Visible)

	require.Len(t, ev.scripts, 1)
	assert.Contains(t, ev.scripts[0], "category")
	assert.Contains(t, ev.scripts[0], "getBoundingClientRect")
}

func TestCollectQuestionsDefaultsToGenericFamilies(t *testing.T) {
	ev := &fakeEvaluator{value: []any{}}
	_, err := CollectQuestions(ev, nil)
	require.NoError(t, err)
	assert.Contains(t, ev.scripts[0], `"h3"`)
	assert.Contains(t, ev.scripts[0], `"li"`)
}
