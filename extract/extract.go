// CLAUDE:SUMMARY Content Extractor: turns a captured file (PDF, DOCX, HTML, text) into normalised text, tables and schedule rows; degrades instead of failing.
// Package extract converts captured documents to text for triage.
// Extraction never fails the pipeline: when every method gives up the
// Content comes back empty with Degraded set.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Methods.
const (
	MethodPDFToText = "pdftotext"
	MethodPDFCPU    = "pdfcpu"
	MethodDocx      = "docx"
	MethodHTML      = "html"
	MethodText      = "text"
	MethodNone      = "none"
)

// Content is the extracted form of one document.
type Content struct {
	Title    string  `json:"title,omitempty"`
	Text     string  `json:"text"`
	Tables   []Table `json:"tables,omitempty"`
	Schedule []Row   `json:"schedule,omitempty"`
	Method   string  `json:"method"`
	Degraded bool    `json:"degraded"`
}

// Table is a parsed HTML table.
type Table struct {
	Rows [][]string `json:"rows"`
}

// Config configures the extractor.
type Config struct {
	// PDFToText is the pdftotext binary. Default: "pdftotext" on PATH.
	PDFToText string `json:"pdftotext" yaml:"pdftotext"`

	// Timeout bounds one pdftotext run. Default: 60s.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// MaxBytes caps the files read into memory. Default: 50MB.
	MaxBytes int64 `json:"max_bytes" yaml:"max_bytes"`
}

func (c *Config) defaults() {
	if c.PDFToText == "" {
		c.PDFToText = "pdftotext"
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 50 << 20
	}
}

// Extractor dispatches on file extension.
type Extractor struct {
	cfg    Config
	logger *slog.Logger
}

// New creates an Extractor.
func New(cfg *Config, logger *slog.Logger) *Extractor {
	var c Config
	if cfg != nil {
		c = *cfg
	}
	c.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{cfg: c, logger: logger}
}

// Extract reads path. Only an unreadable path is an error.
func (x *Extractor) Extract(ctx context.Context, path string) (*Content, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}
	if info.Size() > x.cfg.MaxBytes {
		x.logger.Warn("extract: file too large", "path", path, "size", info.Size())
		return &Content{Method: MethodNone, Degraded: true}, nil
	}

	var c *Content
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".pdf":
		c = x.pdf(ctx, path)
	case ".docx":
		c, err = extractDocx(path)
	case ".html", ".htm":
		c, err = extractHTML(path)
	case ".txt", ".md":
		var data []byte
		if data, err = os.ReadFile(path); err == nil {
			c = &Content{Text: string(data), Method: MethodText}
		}
	default:
		x.logger.Info("extract: no extractor for type", "path", path, "ext", ext)
	}
	if err != nil {
		x.logger.Warn("extract: failed", "path", path, "error", err)
		c = nil
	}
	if c == nil {
		c = &Content{Method: MethodNone}
	}

	c.Text = strings.TrimSpace(c.Text)
	if c.Text == "" {
		c.Degraded = true
	}
	if len(c.Schedule) == 0 {
		c.Schedule = ParseSchedule(c.Text)
	}
	return c, nil
}

// pdf tries pdftotext, then the pdfcpu content-stream parser.
func (x *Extractor) pdf(ctx context.Context, path string) *Content {
	text, err := x.pdftotext(ctx, path)
	if err == nil {
		return &Content{Text: text, Method: MethodPDFToText}
	}
	x.logger.Info("extract: pdftotext unavailable, using pdfcpu", "path", path, "error", err)

	text, err = extractPDF(path)
	if err == nil {
		return &Content{Text: text, Method: MethodPDFCPU}
	}
	x.logger.Warn("extract: pdf has no extractable text", "path", path, "error", err)
	return &Content{Method: MethodNone, Degraded: true}
}
