package fetch

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/hazyhaar/bellscout/horosafe"
)

// response is a fully read HTTP reply.
type response struct {
	status  int
	header  http.Header
	cookies []*http.Cookie
	body    []byte
}

func (e *Engine) get(ctx context.Context, target string) (*response, error) {
	if err := e.validate(target); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch: new request: %w", err)
	}
	req.Header.Set("User-Agent", e.cfg.UserAgent)
	req.Header.Set("Accept", "application/pdf,application/octet-stream,*/*;q=0.8")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: get: %w", err)
	}
	defer resp.Body.Close()

	body, err := horosafe.LimitedReadAll(resp.Body, e.cfg.MaxBytes)
	if err != nil {
		return &response{status: resp.StatusCode, header: resp.Header}, fmt.Errorf("fetch: read body: %w", err)
	}
	return &response{status: resp.StatusCode, header: resp.Header, cookies: resp.Cookies(), body: body}, nil
}

// direct downloads rawURL and accepts it only if both the declared type
// and the leading bytes say document.
func (e *Engine) direct(ctx context.Context, res *Result, rawURL, destDir, base string) (string, error) {
	start := time.Now()
	r, err := e.get(ctx, rawURL)
	if err != nil {
		status := 0
		if r != nil {
			status = r.status
		}
		res.record(ChannelDirect, "download", start, status, err)
		return "", err
	}
	path, err := e.accept(res, r, rawURL, destDir, base)
	res.record(ChannelDirect, "download", start, r.status, err)
	return path, err
}

// accept checks status, block signatures and document validity, then
// writes the body.
func (e *Engine) accept(res *Result, r *response, rawURL, destDir, base string) (string, error) {
	if r.status/100 != 2 {
		if b := DetectBlock(r.status, r.header, r.body); b.Security() {
			res.Block = b
			return "", fmt.Errorf("%w: %s (status %d)", ErrBlocked, b, r.status)
		}
		if r.status == http.StatusNotFound || r.status == http.StatusGone {
			return "", fmt.Errorf("%w (status %d)", ErrNotFound, r.status)
		}
		return "", fmt.Errorf("fetch: status %d", r.status)
	}
	ext, err := validateDocument(r.header.Get("Content-Type"), r.body, rawURL)
	if err != nil {
		if b := DetectBlock(r.status, r.header, r.body); b.Security() {
			res.Block = b
			return "", fmt.Errorf("%w: %s", ErrBlocked, b)
		}
		return "", err
	}
	return writeFile(destDir, base+ext, r.body)
}

var documentTypes = []string{
	"application/pdf",
	"application/x-pdf",
	"application/msword",
	"application/octet-stream",
	"binary/octet-stream",
	"application/zip",
}

func documentType(ct string) bool {
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		mt = strings.ToLower(strings.TrimSpace(ct))
	}
	if strings.Contains(mt, "officedocument") || strings.HasPrefix(mt, "application/vnd.ms-") {
		return true
	}
	for _, d := range documentTypes {
		if mt == d {
			return true
		}
	}
	return false
}

var (
	magicPDF  = []byte("%PDF-")
	magicZip  = []byte("PK\x03\x04")
	magicOLE2 = []byte{0xD0, 0xCF, 0x11, 0xE0}
)

// validateDocument returns the file extension for body, or ErrValidation
// when the declared type or the magic bytes say otherwise.
func validateDocument(contentType string, body []byte, rawURL string) (string, error) {
	if !documentType(contentType) {
		return "", fmt.Errorf("%w: content-type %q", ErrValidation, contentType)
	}
	head := body[:min(len(body), 1024)]
	urlExt := ""
	if u, err := url.Parse(rawURL); err == nil {
		urlExt = DocumentExt(u)
	}
	ct := strings.ToLower(contentType)

	switch {
	case bytes.Contains(head, magicPDF):
		return ".pdf", nil
	case bytes.HasPrefix(body, magicZip):
		switch {
		case strings.Contains(ct, "spreadsheetml"):
			return ".xlsx", nil
		case strings.Contains(ct, "presentationml"):
			return ".pptx", nil
		case urlExt == ".xlsx" || urlExt == ".pptx":
			return urlExt, nil
		}
		return ".docx", nil
	case bytes.HasPrefix(body, magicOLE2):
		switch {
		case strings.Contains(ct, "ms-excel"):
			return ".xls", nil
		case strings.Contains(ct, "ms-powerpoint"):
			return ".ppt", nil
		case urlExt == ".xls" || urlExt == ".ppt":
			return urlExt, nil
		}
		return ".doc", nil
	}
	return "", fmt.Errorf("%w: unrecognised leading bytes", ErrValidation)
}

func writeFile(dir, name string, data []byte) (string, error) {
	p, err := horosafe.SafePath(dir, name)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return "", fmt.Errorf("fetch: write %s: %w", p, err)
	}
	return p, nil
}
