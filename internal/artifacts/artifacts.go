// Package artifacts owns the on-disk layout of a harvest run:
//
//	<root>/html/<route>.html        rendered page snapshots
//	<root>/html/errors/<route>.html failure-time snapshots
//	<root>/images/<route>/          downloaded page images
//	<root>/images/errors/<route>.log  image URLs that failed to download
//	<root>/docs/<route>/            downloaded linked documents
//	<root>/text/<route>.ndjson      extracted question/answer records
//	<root>/text/errors.ndjson       per-target failure records
package artifacts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var unsafeChars = regexp.MustCompile(`[^a-z0-9._-]+`)

// RouteSlug turns a route label or URL fragment into a filesystem-safe
// name. Empty input maps to "root".
func RouteSlug(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "#/")
	s = unsafeChars.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-.")
	if s == "" {
		return "root"
	}
	if len(s) > 80 {
		s = s[:80]
	}
	return s
}

// Store writes run artifacts under a root directory.
type Store struct {
	root string
}

// NewStore creates the directory skeleton under root.
func NewStore(root string) (*Store, error) {
	for _, dir := range []string{
		root,
		filepath.Join(root, "html"),
		filepath.Join(root, "html", "errors"),
		filepath.Join(root, "images"),
		filepath.Join(root, "images", "errors"),
		filepath.Join(root, "docs"),
		filepath.Join(root, "text"),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create artifact dir %s: %w", dir, err)
		}
	}
	return &Store{root: root}, nil
}

// Root returns the store's base directory.
func (s *Store) Root() string { return s.root }

// SaveHTML persists a rendered page snapshot for a route.
func (s *Store) SaveHTML(route, html string) (string, error) {
	path := filepath.Join(s.root, "html", RouteSlug(route)+".html")
	return path, write(path, []byte(html))
}

// SaveErrorHTML persists the page snapshot captured when a route failed.
func (s *Store) SaveErrorHTML(route, html string) (string, error) {
	path := filepath.Join(s.root, "html", "errors", RouteSlug(route)+".html")
	return path, write(path, []byte(html))
}

// SaveImage stores one downloaded image under the route's image dir.
func (s *Store) SaveImage(route, name string, data []byte) (string, error) {
	dir := filepath.Join(s.root, "images", RouteSlug(route))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create image dir %s: %w", dir, err)
	}
	path := filepath.Join(dir, filepath.Base(name))
	return path, write(path, data)
}

// AppendImageFailure notes an image that could not be downloaded in the
// route's image-error log.
func (s *Store) AppendImageFailure(route, url string, cause error) error {
	path := filepath.Join(s.root, "images", "errors", RouteSlug(route)+".log")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	_, err = fmt.Fprintf(f, "%s\t%v\n", url, cause)
	return err
}

// SaveDocument stores one downloaded document under the route's doc dir.
func (s *Store) SaveDocument(route, name string, data []byte) (string, error) {
	dir := filepath.Join(s.root, "docs", RouteSlug(route))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create doc dir %s: %w", dir, err)
	}
	path := filepath.Join(dir, filepath.Base(name))
	return path, write(path, data)
}

// AppendRecords appends records as NDJSON lines to the route's text file.
func (s *Store) AppendRecords(route string, records ...any) error {
	return s.appendNDJSON(filepath.Join(s.root, "text", RouteSlug(route)+".ndjson"), records)
}

// AppendError appends a failure record to the shared errors file.
func (s *Store) AppendError(record any) error {
	return s.appendNDJSON(filepath.Join(s.root, "text", "errors.ndjson"), []any{record})
}

// SaveReport writes the aggregate run report.
func (s *Store) SaveReport(name string, data []byte) (string, error) {
	path := filepath.Join(s.root, name)
	return path, write(path, data)
}

func (s *Store) appendNDJSON(path string, records []any) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encode record to %s: %w", path, err)
		}
	}
	return nil
}

func write(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
