package extract

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"strings"
)

// extractDocx reads the paragraphs of word/document.xml. Table cells are
// separated by tabs so schedule rows stay on one line.
func extractDocx(path string) (*Content, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("extract: open docx: %w", err)
	}
	defer zr.Close()

	var doc *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			doc = f
			break
		}
	}
	if doc == nil {
		return nil, fmt.Errorf("extract: word/document.xml not found")
	}
	rc, err := doc.Open()
	if err != nil {
		return nil, fmt.Errorf("extract: open document.xml: %w", err)
	}
	defer rc.Close()

	var (
		lines   []string
		para    strings.Builder
		row     []string
		inText  bool
		inTable int
		table   Table
		tables  []Table
	)
	dec := xml.NewDecoder(rc)
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				para.WriteByte('\t')
			case "br":
				para.WriteByte('\n')
			case "tbl":
				inTable++
				table = Table{}
			case "tr":
				row = nil
			}
		case xml.CharData:
			if inText {
				para.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				text := strings.TrimSpace(para.String())
				para.Reset()
				if text == "" {
					continue
				}
				if inTable > 0 {
					row = append(row, text)
				} else {
					lines = append(lines, text)
				}
			case "tr":
				if len(row) > 0 {
					table.Rows = append(table.Rows, row)
					lines = append(lines, strings.Join(row, "\t"))
				}
			case "tbl":
				inTable--
				if len(table.Rows) > 0 {
					tables = append(tables, table)
				}
			}
		}
	}

	c := &Content{Text: strings.Join(lines, "\n"), Tables: tables, Method: MethodDocx}
	c.Schedule = scheduleFromTables(tables)
	return c, nil
}
