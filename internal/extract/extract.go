// Package extract turns a captured HTML document into the best
// available text through a layered fallback chain. The target app's
// structure is inconsistent across routes, so no single selector is
// reliable; the chain trades precision for guaranteed non-empty output.
// The first tier producing content over its threshold wins and tags the
// result with its identifier.
package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
)

// Tier identifiers, reported on every result so callers can tell a
// precise extraction from a desperate one.
const (
	MethodMainSelector      = "main-selector"
	MethodContainerSelector = "container-selector"
	MethodReadability       = "readability"
	MethodDocumentText      = "document-text"
	MethodRawTruncated      = "raw-truncated"
)

// Result is the chain's output. Partial marks the raw-truncation tier.
type Result struct {
	Text    string
	Method  string
	Partial bool
}

// Chain is the configured fallback sequence.
type Chain struct {
	// MainSelectors is the ranked "this is the content" list.
	MainSelectors []string
	// ContainerSelectors is the ranked generic wrapper list, accepted
	// only over the higher threshold.
	ContainerSelectors []string
	// Stoplist holds chrome/navigation phrases; short lines matching one
	// are dropped in the whole-document tier (case-insensitive).
	Stoplist []string
	// Readability parses article-style pages. Nil disables the tier.
	Readability func(html string) (string, error)

	MinMain      int
	MinContainer int
	RawCap       int
}

// NewChain returns the default chain tuned for the target app.
func NewChain() *Chain {
	return &Chain{
		MainSelectors: []string{
			"main", "article", "[role='main']",
			".faq-content", ".help-content", ".content-area", "#content",
		},
		ContainerSelectors: []string{
			".container", ".wrapper", ".page", "#root section", "#app section", "section",
		},
		Stoplist: []string{
			"home", "about us", "contact", "privacy policy", "terms",
			"login", "sign in", "sign up", "copyright", "all rights reserved",
			"menu", "navigation", "skip to content", "follow us", "subscribe",
			"cookie", "back to top", "download the app",
		},
		Readability:  readabilityText,
		MinMain:      50,
		MinContainer: 100,
		RawCap:       2000,
	}
}

// Extract runs the chain. The output is never empty unless the input
// document itself has no text at all.
func (c *Chain) Extract(html string) Result {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		// Unparseable markup goes straight to the raw tier.
		return c.truncateRaw(html)
	}
	doc.Find("script, style, noscript").Remove()

	if text, ok := firstOverThreshold(doc, c.MainSelectors, c.MinMain); ok {
		return Result{Text: text, Method: MethodMainSelector}
	}
	if text, ok := firstOverThreshold(doc, c.ContainerSelectors, c.MinContainer); ok {
		return Result{Text: text, Method: MethodContainerSelector}
	}
	if c.Readability != nil {
		if text, err := c.Readability(html); err == nil {
			if t := normalize(text); len(t) >= c.MinContainer {
				return Result{Text: t, Method: MethodReadability}
			}
		}
	}

	whole := doc.Find("body").Text()
	if whole == "" {
		whole = doc.Text()
	}
	if filtered := c.filterLines(whole); len(filtered) >= c.MinMain {
		return Result{Text: filtered, Method: MethodDocumentText}
	}

	return c.truncateRaw(whole)
}

func firstOverThreshold(doc *goquery.Document, selectors []string, min int) (string, bool) {
	for _, sel := range selectors {
		text := normalize(doc.Find(sel).First().Text())
		if len(text) >= min {
			return text, true
		}
	}
	return "", false
}

var numericPunct = regexp.MustCompile(`^[\d\s[:punct:]]+$`)

// filterLines drops short stoplist lines and purely numeric/punctuation
// lines from whole-document text.
func (c *Chain) filterLines(text string) string {
	var kept []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if numericPunct.MatchString(line) {
			continue
		}
		if len(line) < 60 && c.matchesStoplist(line) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

func (c *Chain) matchesStoplist(line string) bool {
	lower := strings.ToLower(line)
	for _, phrase := range c.Stoplist {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

func (c *Chain) truncateRaw(text string) Result {
	text = normalize(stripTags(text))
	if len(text) > c.RawCap {
		text = text[:c.RawCap]
	}
	return Result{Text: text, Method: MethodRawTruncated, Partial: true}
}

func readabilityText(html string) (string, error) {
	article, err := readability.FromReader(strings.NewReader(html), nil)
	if err != nil {
		return "", err
	}
	return article.TextContent, nil
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

func stripTags(s string) string {
	return tagPattern.ReplaceAllString(s, " ")
}

// normalize collapses blank lines and trims each line.
func normalize(s string) string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
