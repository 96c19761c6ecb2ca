// CLAUDE:SUMMARY HTTP client for the external capture service: POST /scrape for one page (HTML, markdown, PDF).
package render

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hazyhaar/bellscout/horosafe"
)

// Client talks to the capture service.
type Client struct {
	base    string
	timeout time.Duration
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a service client.
func NewClient(cfg *Config, logger *slog.Logger) *Client {
	var c Config
	if cfg != nil {
		c = *cfg
	}
	c.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		base:    strings.TrimRight(c.BaseURL, "/"),
		timeout: c.Timeout,
		http:    &http.Client{},
		logger:  logger,
	}
}

type scrapeRequest struct {
	URL        string `json:"url"`
	WaitForMs  int64  `json:"waitForMs,omitempty"`
	CapturePDF bool   `json:"capturePdf,omitempty"`
}

type scrapeResponse struct {
	Success   bool   `json:"success"`
	HTML      string `json:"html"`
	Markdown  string `json:"markdown"`
	PDFBase64 string `json:"pdfBase64"`
	Blocked   bool   `json:"blocked"`
	Error     string `json:"error"`
}

// Render implements Renderer through POST /scrape. Screenshots are not
// offered by the service and are silently omitted.
func (c *Client) Render(ctx context.Context, url string, opts Options) (*Page, error) {
	var out scrapeResponse
	err := c.post(ctx, "/scrape", scrapeRequest{
		URL:        url,
		WaitForMs:  opts.WaitFor.Milliseconds(),
		CapturePDF: opts.PDF,
	}, &out)
	if err != nil {
		return nil, err
	}

	p := &Page{URL: url, HTML: out.HTML, Markdown: out.Markdown, Blocked: out.Blocked}
	if out.PDFBase64 != "" {
		if p.PDF, err = base64.StdEncoding.DecodeString(out.PDFBase64); err != nil {
			return nil, fmt.Errorf("render: decode pdf of %s: %w", url, err)
		}
	}
	if !out.Success && !out.Blocked {
		msg := out.Error
		if msg == "" {
			msg = "success=false"
		}
		return p, fmt.Errorf("render: scrape %s: %s", url, msg)
	}
	return p, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("render: marshal: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("render: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotAvailable, err)
	}
	defer resp.Body.Close()

	data, err := horosafe.LimitedReadAll(resp.Body, 64<<20)
	if err != nil {
		return fmt.Errorf("render: read %s: %w", path, err)
	}
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("render: %s: status %d", path, resp.StatusCode)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("render: decode %s: %w", path, err)
	}
	c.logger.Debug("render: service call", "path", path, "duration", time.Since(start))
	return nil
}
