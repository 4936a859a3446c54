// Package routes enumerates the sub-routes of the start page. The app
// exposes its sections three different ways depending on build — plain
// links, tab widgets, or hash routes — so enumerators register by mode
// name and the configuration picks one.
package routes

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/ysmood/gson"
)

// Evaluator runs a script in the live page and returns its JSON value.
type Evaluator interface {
	Eval(js string) (gson.JSON, error)
}

// Route is one enumerated destination. URL is empty for tab-style
// routes that are reached by clicking rather than navigating.
type Route struct {
	Label string
	URL   string
}

// Options scopes an enumeration pass.
type Options struct {
	// Selectors are the candidate submenu/category containers.
	Selectors []string
	// BaseURL resolves relative hrefs.
	BaseURL string
	// Cap bounds the number of routes returned; 0 means no cap.
	Cap int
}

// Enumerator produces routes for one discovery mode.
type Enumerator interface {
	Name() string
	Enumerate(ev Evaluator, opts Options) ([]Route, error)
}

var registry = map[string]Enumerator{}

// Register adds an enumerator under its lower-cased name.
func Register(e Enumerator) {
	registry[strings.ToLower(e.Name())] = e
}

// Get looks an enumerator up by mode name.
func Get(name string) (Enumerator, bool) {
	e, ok := registry[strings.ToLower(name)]
	return e, ok
}

// Modes lists the registered mode names.
func Modes() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	return out
}

func init() {
	Register(linkEnumerator{})
	Register(tabEnumerator{})
	Register(hashEnumerator{})
}

func jsString(s string) string {
	quoted, _ := json.Marshal(s)
	return string(quoted)
}

func quotedList(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = jsString(s)
	}
	return strings.Join(quoted, ", ")
}

func scanScript(selectors []string, itemExpr string) string {
	return fmt.Sprintf(`() => {
		const out = [];
		const seen = new Set();
		for (const sel of [%s]) {
			let nodes;
			try { nodes = document.querySelectorAll(sel); } catch (e) { continue; }
			for (const root of nodes) {
				for (const el of root.querySelectorAll(%s)) {
					const label = (el.innerText || el.textContent || '').trim();
					const href = el.getAttribute('href') || '';
					const key = label + '|' + href;
					if (!label || seen.has(key)) continue;
					seen.add(key);
					out.push({label: label, href: href});
				}
			}
		}
		return out;
	}`, quotedList(selectors), itemExpr)
}

func collect(ev Evaluator, js, baseURL string, cap int, keepHref func(string) bool) ([]Route, error) {
	v, err := ev.Eval(js)
	if err != nil {
		return nil, fmt.Errorf("route enumeration failed: %w", err)
	}

	base, _ := url.Parse(baseURL)
	var out []Route
	for _, item := range v.Arr() {
		href := item.Get("href").Str()
		if keepHref != nil && !keepHref(href) {
			continue
		}
		r := Route{Label: item.Get("label").Str(), URL: resolve(base, href)}
		out = append(out, r)
		if cap > 0 && len(out) >= cap {
			break
		}
	}
	return out, nil
}

func resolve(base *url.URL, href string) string {
	if href == "" || base == nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

// linkEnumerator walks anchors inside the candidate containers.
type linkEnumerator struct{}

func (linkEnumerator) Name() string { return "links" }

func (linkEnumerator) Enumerate(ev Evaluator, opts Options) ([]Route, error) {
	js := scanScript(opts.Selectors, jsString("a[href]"))
	return collect(ev, js, opts.BaseURL, opts.Cap, func(href string) bool {
		return href != "" && !strings.HasPrefix(href, "javascript:") && !strings.HasPrefix(href, "mailto:")
	})
}

// tabEnumerator finds tab-style widgets; they carry no href and are
// reached by clicking their label.
type tabEnumerator struct{}

func (tabEnumerator) Name() string { return "tabs" }

func (tabEnumerator) Enumerate(ev Evaluator, opts Options) ([]Route, error) {
	js := scanScript(opts.Selectors, jsString(`[role="tab"], [class*="tab"], [tabindex]`))
	routes, err := collect(ev, js, opts.BaseURL, opts.Cap, nil)
	if err != nil {
		return nil, err
	}
	for i := range routes {
		routes[i].URL = ""
	}
	return routes, nil
}

// hashEnumerator keeps only fragment routes of the single-page app.
type hashEnumerator struct{}

func (hashEnumerator) Name() string { return "hash" }

func (hashEnumerator) Enumerate(ev Evaluator, opts Options) ([]Route, error) {
	js := scanScript(opts.Selectors, jsString("a[href]"))
	return collect(ev, js, opts.BaseURL, opts.Cap, func(href string) bool {
		return strings.Contains(href, "#/")
	})
}
