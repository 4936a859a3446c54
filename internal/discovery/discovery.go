// Package discovery enumerates candidate category and question elements
// on the live page, orders them by visual position, and removes
// duplicates by normalized text. Collection goes through page scripts;
// filtering, ordering and deduplication are pure functions so a rerun
// on an unchanged page yields an identical list.
package discovery

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/ysmood/gson"
)

// Evaluator runs a script in the live page and returns its JSON value.
type Evaluator interface {
	Eval(js string) (gson.JSON, error)
}

// Candidate is one raw element sighting: its text, vertical pixel
// position, and whether it is currently rendered.
type Candidate struct {
	Text    string
	Top     float64
	Visible bool
}

// QAPair is one extracted question/answer with its provenance.
type QAPair struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Category string `json:"category,omitempty"`
	Index    int    `json:"index"`
	Source   string `json:"source,omitempty"`
}

// Category owns its QAPairs exclusively; produced once per crawl pass.
type Category struct {
	Name  string   `json:"name"`
	Pairs []QAPair `json:"pairs"`
}

// Count returns the number of retained pairs.
func (c Category) Count() int { return len(c.Pairs) }

// questionMinLen/questionMaxLen bound plausible question text.
const (
	questionMinLen = 10
	questionMaxLen = 300
)

// nearDupPrefix is how many leading characters of a question are
// compared for near-duplicate suppression.
const nearDupPrefix = 20

// defaultQuestionFamilies are the generic tags scanned for question
// text; the app does not tag questions semantically.
var defaultQuestionFamilies = []string{"div", "span", "p", "h3", "h4", "li", "button"}

func jsString(s string) string {
	quoted, _ := json.Marshal(s)
	return string(quoted)
}

func collectScript(selectors []string) string {
	quoted := make([]string, len(selectors))
	for i, s := range selectors {
		quoted[i] = jsString(s)
	}
	return fmt.Sprintf(`() => {
		const seen = new Set();
		const out = [];
		for (const sel of [%s]) {
			let nodes;
			try { nodes = document.querySelectorAll(sel); } catch (e) { continue; }
			for (const el of nodes) {
				if (seen.has(el)) continue;
				seen.add(el);
				const r = el.getBoundingClientRect();
				const cs = window.getComputedStyle(el);
				out.push({
					text: (el.innerText || el.textContent || '').trim(),
					top: r.top + window.scrollY,
					visible: r.width > 0 && r.height > 0 && cs.visibility !== 'hidden' && cs.display !== 'none',
				});
			}
		}
		return out;
	}`, strings.Join(quoted, ", "))
}

// Collect gathers candidates for the given selectors from the page.
func Collect(ev Evaluator, selectors []string) ([]Candidate, error) {
	v, err := ev.Eval(collectScript(selectors))
	if err != nil {
		return nil, fmt.Errorf("candidate collection failed: %w", err)
	}
	var out []Candidate
	for _, item := range v.Arr() {
		out = append(out, Candidate{
			Text:    item.Get("text").Str(),
			Top:     item.Get("top").Num(),
			Visible: item.Get("visible").Bool(),
		})
	}
	return out, nil
}

// CollectQuestions gathers candidates from the generic tag families,
// or from hints when the configuration provides them.
func CollectQuestions(ev Evaluator, hints []string) ([]Candidate, error) {
	selectors := hints
	if len(selectors) == 0 {
		selectors = defaultQuestionFamilies
	}
	return Collect(ev, selectors)
}

// FilterCategories keeps candidates whose text contains a vocabulary
// entry (case-insensitive), orders them by vertical position, and drops
// later duplicates by exact name. The retained name is the vocabulary
// spelling, so "Settlement ▾" and "Settlement" collapse.
func FilterCategories(cands []Candidate, vocab []string) []string {
	type hit struct {
		name string
		top  float64
	}
	var hits []hit
	for _, c := range cands {
		if !c.Visible {
			continue
		}
		lower := strings.ToLower(c.Text)
		for _, v := range vocab {
			if v != "" && strings.Contains(lower, strings.ToLower(v)) {
				hits = append(hits, hit{name: v, top: c.Top})
				break
			}
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].top < hits[j].top })

	seen := make(map[string]bool)
	var out []string
	for _, h := range hits {
		if seen[h.name] {
			continue
		}
		seen[h.name] = true
		out = append(out, h.name)
	}
	return out
}

// FilterQuestions keeps visible candidates that look like questions:
// text containing '?', length in [10, 300) characters. Ordered by
// position, exact duplicates dropped.
func FilterQuestions(cands []Candidate) []string {
	var hits []Candidate
	for _, c := range cands {
		text := strings.TrimSpace(c.Text)
		if !c.Visible || !strings.Contains(text, "?") {
			continue
		}
		if n := utf8.RuneCountInString(text); n < questionMinLen || n >= questionMaxLen {
			continue
		}
		hits = append(hits, Candidate{Text: text, Top: c.Top, Visible: true})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Top < hits[j].Top })

	seen := make(map[string]bool)
	var out []string
	for _, h := range hits {
		if seen[h.Text] {
			continue
		}
		seen[h.Text] = true
		out = append(out, h.Text)
	}
	return out
}

// NearDuplicate reports whether two questions are the same item: the
// leading prefix of either, normalized, is contained in the other.
func NearDuplicate(a, b string) bool {
	na := normalizeQuestion(a)
	nb := normalizeQuestion(b)
	if na == "" || nb == "" {
		return na == nb
	}
	return strings.Contains(na, prefix(nb)) || strings.Contains(nb, prefix(na))
}

// AppendUnique adds p unless its question near-duplicates an accepted
// one. Rejects rather than merges: the first sighting wins.
func AppendUnique(pairs []QAPair, p QAPair) ([]QAPair, bool) {
	for _, existing := range pairs {
		if NearDuplicate(existing.Question, p.Question) {
			return pairs, false
		}
	}
	return append(pairs, p), true
}

func normalizeQuestion(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// prefix returns the first nearDupPrefix characters, never cutting a
// multibyte rune in half.
func prefix(s string) string {
	r := []rune(s)
	if len(r) > nearDupPrefix {
		return string(r[:nearDupPrefix])
	}
	return s
}
