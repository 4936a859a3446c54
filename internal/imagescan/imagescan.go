// Package imagescan pulls asset URLs out of captured page HTML:
// images referenced by <img> tags (including lazy-load attributes and
// inline background styles) and linked documents.
package imagescan

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var backgroundURL = regexp.MustCompile(`url\(\s*['"]?([^'")]+)['"]?\s*\)`)

var documentExtensions = []string{".pdf", ".doc", ".docx", ".xls", ".xlsx", ".csv"}

// Images scans html for image URLs, resolves them against baseURL, and
// returns them sorted and deduplicated. Data URIs are skipped.
func Images(html, baseURL string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url %q: %w", baseURL, err)
	}

	seen := map[string]bool{}
	var out []string
	add := func(raw string) {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "data:") {
			return
		}
		resolved := resolve(base, raw)
		if resolved == "" || seen[resolved] {
			return
		}
		seen[resolved] = true
		out = append(out, resolved)
	}

	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		for _, attr := range []string{"src", "data-src", "data-lazy-src", "data-original"} {
			if v, ok := s.Attr(attr); ok {
				add(v)
			}
		}
		if srcset, ok := s.Attr("srcset"); ok {
			add(firstSrcsetEntry(srcset))
		}
	})

	doc.Find("[style]").Each(func(_ int, s *goquery.Selection) {
		style, _ := s.Attr("style")
		for _, m := range backgroundURL.FindAllStringSubmatch(style, -1) {
			add(m[1])
		}
	})

	sort.Strings(out)
	return out, nil
}

// Documents scans html for anchors pointing at downloadable documents.
func Documents(html, baseURL string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url %q: %w", baseURL, err)
	}

	seen := map[string]bool{}
	var out []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if !isDocument(href) {
			return
		}
		resolved := resolve(base, href)
		if resolved == "" || seen[resolved] {
			return
		}
		seen[resolved] = true
		out = append(out, resolved)
	})

	sort.Strings(out)
	return out, nil
}

func isDocument(href string) bool {
	cleaned := strings.ToLower(href)
	if i := strings.IndexAny(cleaned, "?#"); i >= 0 {
		cleaned = cleaned[:i]
	}
	for _, ext := range documentExtensions {
		if strings.HasSuffix(cleaned, ext) {
			return true
		}
	}
	return false
}

func resolve(base *url.URL, raw string) string {
	ref, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	resolved := base.ResolveReference(ref)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	return resolved.String()
}

func firstSrcsetEntry(srcset string) string {
	entry := srcset
	if i := strings.IndexByte(entry, ','); i >= 0 {
		entry = entry[:i]
	}
	fields := strings.Fields(entry)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
