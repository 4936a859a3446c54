// Package textify renders answer HTML as clean markdown-flavoured text.
// The pipeline is sanitize, convert tables, then HTML-to-markdown.
package textify

import (
	"fmt"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
)

var tablePattern = regexp.MustCompile(`(?is)<table\b[^>]*>.*?</table>`)

// tableToken survives sanitization and markdown conversion untouched.
const tableToken = "MDTABLE"

// Renderer converts answer HTML to text. Safe for concurrent use.
type Renderer struct {
	policy *bluemonday.Policy
}

// New builds a Renderer with a UGC sanitization policy that keeps
// tables intact for later conversion.
func New() *Renderer {
	p := bluemonday.UGCPolicy()
	p.AllowTables()
	return &Renderer{policy: p}
}

// Render sanitizes html and converts it to markdown text. Tables are
// converted separately and spliced back in afterwards, so the HTML
// whitespace rules of the converter cannot flatten their rows.
func (r *Renderer) Render(html string) (string, error) {
	clean := r.policy.Sanitize(html)

	var tables []string
	clean = tablePattern.ReplaceAllStringFunc(clean, func(tableHTML string) string {
		tables = append(tables, tableToMarkdown(tableHTML))
		return fmt.Sprintf("<p>%s%d%s</p>", tableToken, len(tables)-1, tableToken)
	})

	converter := md.NewConverter("", true, nil)
	text, err := converter.ConvertString(clean)
	if err != nil {
		return "", fmt.Errorf("convert to markdown: %w", err)
	}

	for i, table := range tables {
		token := fmt.Sprintf("%s%d%s", tableToken, i, tableToken)
		text = strings.Replace(text, token, "\n"+table, 1)
	}
	return strings.TrimSpace(text), nil
}

// tableToMarkdown rewrites one HTML table as a markdown table,
// returning the input unchanged when it cannot be parsed.
func tableToMarkdown(tableHTML string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(tableHTML))
	if err != nil {
		return tableHTML
	}

	var b strings.Builder
	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		headerRow := table.Find("thead tr").First()
		if headerRow.Length() == 0 {
			headerRow = table.Find("tr").First()
		}
		var headers []string
		headerRow.Find("th, td").Each(func(_ int, cell *goquery.Selection) {
			headers = append(headers, strings.TrimSpace(cell.Text()))
		})
		if len(headers) == 0 {
			return
		}

		writeRow(&b, headers)
		rule := make([]string, len(headers))
		for i := range rule {
			rule[i] = "---"
		}
		writeRow(&b, rule)

		dataRows := table.Find("tbody tr")
		if dataRows.Length() == 0 {
			dataRows = table.Find("tr").Slice(1, goquery.ToEnd)
		}
		dataRows.Each(func(_ int, row *goquery.Selection) {
			var cells []string
			row.Find("td, th").Each(func(_ int, cell *goquery.Selection) {
				cells = append(cells, strings.TrimSpace(cell.Text()))
			})
			if len(cells) > 0 {
				writeRow(&b, cells)
			}
		})
		b.WriteString("\n")
	})

	return b.String()
}

func writeRow(b *strings.Builder, cells []string) {
	b.WriteString("| ")
	b.WriteString(strings.Join(cells, " | "))
	b.WriteString(" |\n")
}
