package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	sanitizer   = bluemonday.UGCPolicy()
	mdConverter = converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(),
		),
	)
)

// extractHTML sanitises a rendered page, keeps its tables, and converts
// the main content to markdown. Readability sometimes drops schedule
// tables on short pages, so the full sanitised page is the fallback.
func extractHTML(path string) (*Content, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	title := pageTitle(raw)
	clean := sanitizer.SanitizeBytes(raw)

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(clean))
	if err != nil {
		return nil, fmt.Errorf("extract: parse html: %w", err)
	}
	tables := htmlTables(doc)

	main := string(clean)
	pageURL, _ := url.Parse("file://" + path)
	if article, err := readability.FromReader(bytes.NewReader(clean), pageURL); err == nil {
		if title == "" {
			title = article.Title
		}
		if len(tables) == 0 || strings.Contains(article.Content, "<table") {
			main = article.Content
		}
	}

	text, err := mdConverter.ConvertString(main)
	if err != nil || strings.TrimSpace(text) == "" {
		text = doc.Text()
	}

	c := &Content{Title: title, Text: text, Tables: tables, Method: MethodHTML}
	c.Schedule = scheduleFromTables(tables)
	return c, nil
}

func htmlTables(doc *goquery.Document) []Table {
	var tables []Table
	doc.Find("table").Each(func(_ int, t *goquery.Selection) {
		var tbl Table
		t.Find("tr").Each(func(_ int, tr *goquery.Selection) {
			var row []string
			tr.Find("th, td").Each(func(_ int, cell *goquery.Selection) {
				row = append(row, strings.Join(strings.Fields(cell.Text()), " "))
			})
			if len(row) > 0 {
				tbl.Rows = append(tbl.Rows, row)
			}
		})
		if len(tbl.Rows) > 0 {
			tables = append(tables, tbl)
		}
	})
	return tables
}

// pageTitle returns the <title> text, before sanitising drops the head.
func pageTitle(raw []byte) string {
	z := html.NewTokenizer(bytes.NewReader(raw))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return ""
		case html.StartTagToken:
			name, _ := z.TagName()
			if atom.Lookup(name) == atom.Title {
				if z.Next() == html.TextToken {
					return strings.TrimSpace(string(z.Text()))
				}
				return ""
			}
		}
	}
}
