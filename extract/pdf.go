package extract

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// extractPDF reads the text operators of every page's content stream. It
// is the fallback when pdftotext is missing; layout is approximated by
// breaking lines on positioning operators.
func extractPDF(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	ctx, err := api.ReadValidateAndOptimize(f, model.NewDefaultConfiguration())
	if err != nil {
		return "", fmt.Errorf("extract: pdfcpu read: %w", err)
	}

	var pages []string
	for nr := 1; nr <= ctx.PageCount; nr++ {
		r, err := pdfcpu.ExtractPageContent(ctx, nr)
		if err != nil || r == nil {
			continue
		}
		data, err := io.ReadAll(r)
		if err != nil || len(data) == 0 {
			continue
		}
		if t := streamText(data); t != "" {
			pages = append(pages, t)
		}
	}
	if len(pages) == 0 {
		return "", fmt.Errorf("extract: no text operators in %d pages", ctx.PageCount)
	}
	return strings.Join(pages, "\n\n"), nil
}

var (
	// textOp matches the text-showing and text-positioning operators of a
	// content stream, wherever they sit on a line.
	textOp = regexp.MustCompile(`\[(?:\\.|[^\]\\])*\]\s*TJ|\((?:\\.|[^\\)])*\)\s*(?:Tj|'|")|T\*|\bT[dDm]\b`)

	// stringOrNumber matches a literal string or a kerning number.
	stringOrNumber = regexp.MustCompile(`\(((?:\\.|[^\\)])*)\)|(-?\d+(?:\.\d+)?)`)
)

// streamText turns content-stream operators into lines of text.
func streamText(data []byte) string {
	var sb strings.Builder
	newline := func() {
		if sb.Len() > 0 && !strings.HasSuffix(sb.String(), "\n") {
			sb.WriteByte('\n')
		}
	}

	for _, op := range textOp.FindAll(data, -1) {
		switch {
		case bytes.HasSuffix(op, []byte("TJ")):
			for _, m := range stringOrNumber.FindAllSubmatch(op, -1) {
				if bytes.HasPrefix(m[0], []byte("(")) {
					sb.WriteString(decodePDFString(m[1]))
					continue
				}
				// Wide negative kerning is a word gap.
				if n, err := strconv.ParseFloat(string(m[2]), 64); err == nil && n < -200 {
					sb.WriteByte(' ')
				}
			}
		case bytes.HasSuffix(op, []byte("Tj")):
			sb.WriteString(decodePDFString(literal(op)))
		case bytes.HasSuffix(op, []byte("'")), bytes.HasSuffix(op, []byte(`"`)):
			newline()
			sb.WriteString(decodePDFString(literal(op)))
		default:
			newline()
		}
	}
	return tidyLines(sb.String())
}

// literal returns the body of the first string literal in op.
func literal(op []byte) []byte {
	if m := stringOrNumber.FindSubmatch(op); m != nil && bytes.HasPrefix(m[0], []byte("(")) {
		return m[1]
	}
	return nil
}

// decodePDFString resolves the escapes of a PDF literal string.
func decodePDFString(raw []byte) string {
	var sb strings.Builder
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if c != '\\' || i+1 == len(raw) {
			sb.WriteByte(c)
			continue
		}
		i++
		switch raw[i] {
		case 'n':
			sb.WriteByte('\n')
		case 'r', 't':
			sb.WriteByte(' ')
		case '0', '1', '2', '3', '4', '5', '6', '7':
			val, j := 0, i
			for ; j < len(raw) && j < i+3 && raw[j] >= '0' && raw[j] <= '7'; j++ {
				val = val*8 + int(raw[j]-'0')
			}
			sb.WriteByte(byte(val))
			i = j - 1
		default:
			sb.WriteByte(raw[i])
		}
	}
	return sb.String()
}

// tidyLines collapses runs of blanks inside each line and drops empty
// lines and non-printable bytes.
func tidyLines(s string) string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.Map(func(r rune) rune {
			if r < 0x20 && r != '\t' {
				return -1
			}
			return r
		}, line)
		if f := strings.Fields(line); len(f) > 0 {
			out = append(out, strings.Join(f, " "))
		}
	}
	return strings.Join(out, "\n")
}
