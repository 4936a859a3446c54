package artifacts

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouteSlug(t *testing.T) {
	cases := map[string]string{
		"Partner Program":        "partner-program",
		"#/business":             "business",
		"UPI & Wallet FAQs":      "upi-wallet-faqs",
		"":                       "root",
		"///":                    "root",
		"already-safe_name.v2":   "already-safe_name.v2",
		"  Trailing spaces  ":    "trailing-spaces",
	}
	for in, want := range cases {
		assert.Equal(t, want, RouteSlug(in), in)
	}
}

func TestRouteSlugCapsLength(t *testing.T) {
	long := RouteSlug("a" + strings.Repeat("b", 200))
	assert.LessOrEqual(t, len(long), 80)
}

func TestStoreLayout(t *testing.T) {
	root := t.TempDir()
	store, err := NewStore(root)
	require.NoError(t, err)

	htmlPath, err := store.SaveHTML("Partner Program", "<html>ok</html>")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "html", "partner-program.html"), htmlPath)

	errPath, err := store.SaveErrorHTML("Partner Program", "<html>broken</html>")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "html", "errors", "partner-program.html"), errPath)

	imgPath, err := store.SaveImage("Partner Program", "abc123.png", []byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "images", "partner-program", "abc123.png"), imgPath)

	data, err := os.ReadFile(imgPath)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, data)

	docPath, err := store.SaveDocument("Partner Program", "terms.pdf", []byte("%PDF"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "docs", "partner-program", "terms.pdf"), docPath)
}

func TestAppendImageFailure(t *testing.T) {
	root := t.TempDir()
	store, err := NewStore(root)
	require.NoError(t, err)

	require.NoError(t, store.AppendImageFailure("home", "https://cdn/x.png", assert.AnError))
	require.NoError(t, store.AppendImageFailure("home", "https://cdn/y.png", assert.AnError))

	data, err := os.ReadFile(filepath.Join(root, "images", "errors", "home.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "https://cdn/x.png")
	assert.Contains(t, string(data), "https://cdn/y.png")
}

func TestSaveImageStripsPathTraversal(t *testing.T) {
	root := t.TempDir()
	store, err := NewStore(root)
	require.NoError(t, err)

	path, err := store.SaveImage("home", "../../escape.png", nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "images", "home", "escape.png"), path)
}

func TestAppendRecordsWritesNDJSON(t *testing.T) {
	root := t.TempDir()
	store, err := NewStore(root)
	require.NoError(t, err)

	type rec struct {
		Question string `json:"question"`
	}
	require.NoError(t, store.AppendRecords("home", rec{"What is a wallet?"}, rec{"How do I pay?"}))
	require.NoError(t, store.AppendRecords("home", rec{"Third question?"}))

	f, err := os.Open(filepath.Join(root, "text", "home.ndjson"))
	require.NoError(t, err)
	defer f.Close()

	var lines []rec
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var r rec
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &r))
		lines = append(lines, r)
	}
	require.Len(t, lines, 3)
	assert.Equal(t, "What is a wallet?", lines[0].Question)
	assert.Equal(t, "Third question?", lines[2].Question)
}

func TestAppendErrorSharedFile(t *testing.T) {
	root := t.TempDir()
	store, err := NewStore(root)
	require.NoError(t, err)

	type failure struct {
		Route string `json:"route"`
		Error string `json:"error"`
	}
	require.NoError(t, store.AppendError(failure{"business", "navigation timeout"}))
	require.NoError(t, store.AppendError(failure{"partner", "element not found"}))

	data, err := os.ReadFile(filepath.Join(root, "text", "errors.ndjson"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "navigation timeout")
	assert.Contains(t, string(data), "element not found")
}
