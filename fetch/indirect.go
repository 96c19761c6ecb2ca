// CLAUDE:SUMMARY Indirect document hosts (Google Drive/Docs, Dropbox): export-link download with one confirm-token retry, rendered preview, then vision fallback.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/hazyhaar/bellscout/render"
)

// indirect walks the host's sub-steps: export link, rendered preview,
// vision. Each failure advances to the next step, except a block or a
// missing file.
func (e *Engine) indirect(ctx context.Context, res *Result, rawURL, destDir, base string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("fetch: parse %s: %w", rawURL, err)
	}

	if exportURL, ok := e.export(u); ok {
		path, err := e.exportDownload(ctx, res, exportURL, destDir, base)
		if err == nil || res.Blocked() || errors.Is(err, ErrNotFound) {
			return path, err
		}
	} else {
		res.record(ChannelIndirect, "export", time.Now(), 0, fmt.Errorf("fetch: no export link for %s", u.Host))
	}

	path, err := e.rendered(ctx, res, ChannelIndirect, "preview", rawURL, destDir, base)
	if err == nil || res.Blocked() {
		return path, err
	}

	return e.visionText(ctx, res, rawURL, destDir, base)
}

var (
	drivePathID = regexp.MustCompile(`/(?:file|document|spreadsheets|presentation)/d/([A-Za-z0-9_-]+)`)
)

// ExportURL maps a viewer URL on an indirect host to its direct export
// link.
func ExportURL(u *url.URL) (string, bool) {
	host := strings.ToLower(u.Hostname())
	switch host {
	case "drive.google.com":
		id := u.Query().Get("id")
		if m := drivePathID.FindStringSubmatch(u.Path); m != nil {
			id = m[1]
		}
		if id == "" {
			return "", false
		}
		return "https://drive.google.com/uc?export=download&id=" + url.QueryEscape(id), true

	case "docs.google.com":
		m := drivePathID.FindStringSubmatch(u.Path)
		if m == nil {
			if id := u.Query().Get("id"); id != "" {
				return "https://drive.google.com/uc?export=download&id=" + url.QueryEscape(id), true
			}
			return "", false
		}
		id := m[1]
		switch {
		case strings.HasPrefix(u.Path, "/document/"):
			return "https://docs.google.com/document/d/" + id + "/export?format=pdf", true
		case strings.HasPrefix(u.Path, "/spreadsheets/"):
			return "https://docs.google.com/spreadsheets/d/" + id + "/export?format=pdf", true
		case strings.HasPrefix(u.Path, "/presentation/"):
			return "https://docs.google.com/presentation/d/" + id + "/export/pdf", true
		}
		return "https://drive.google.com/uc?export=download&id=" + id, true

	case "dropbox.com", "www.dropbox.com":
		out := *u
		q := out.Query()
		q.Set("dl", "1")
		out.RawQuery = q.Encode()
		return out.String(), true
	}
	return "", false
}

// exportDownload fetches an export link. A large-file warning page is
// answered once with its confirmation token.
func (e *Engine) exportDownload(ctx context.Context, res *Result, exportURL, destDir, base string) (string, error) {
	start := time.Now()
	r, err := e.get(ctx, exportURL)
	if err != nil {
		res.record(ChannelIndirect, "export", start, 0, err)
		return "", err
	}
	path, err := e.accept(res, r, exportURL, destDir, base)
	if err == nil || res.Blocked() || r.status/100 != 2 {
		res.record(ChannelIndirect, "export", start, r.status, err)
		return path, err
	}

	retryURL, ok := confirmURL(exportURL, r)
	if !ok {
		res.record(ChannelIndirect, "export", start, r.status, err)
		return "", err
	}
	res.record(ChannelIndirect, "export", start, r.status, fmt.Errorf("fetch: confirmation page: %w", err))

	start = time.Now()
	r, err = e.get(ctx, retryURL)
	if err != nil {
		res.record(ChannelIndirect, "export-confirm", start, 0, err)
		return "", err
	}
	path, err = e.accept(res, r, retryURL, destDir, base)
	res.record(ChannelIndirect, "export-confirm", start, r.status, err)
	return path, err
}

// confirmURL builds the retry URL of a download-warning interstitial. The
// token comes from a download_warning* cookie, else from a hidden confirm
// field; a form action, when present, replaces the original URL.
func confirmURL(exportURL string, r *response) (string, bool) {
	var token string
	for _, c := range r.cookies {
		if strings.HasPrefix(c.Name, "download_warning") {
			token = c.Value
			break
		}
	}

	var action string
	fields := url.Values{}
	if doc, err := goquery.NewDocumentFromReader(bytes.NewReader(r.body)); err == nil {
		form := doc.Find(`form:has(input[name="confirm"])`).First()
		if form.Length() > 0 {
			action, _ = form.Attr("action")
			form.Find(`input[type="hidden"]`).Each(func(_ int, s *goquery.Selection) {
				name, _ := s.Attr("name")
				val, _ := s.Attr("value")
				if name != "" {
					fields.Set(name, val)
				}
			})
		}
	}
	if token == "" {
		token = fields.Get("confirm")
	}
	if token == "" {
		return "", false
	}

	base, err := url.Parse(exportURL)
	if err != nil {
		return "", false
	}
	target := base
	q := base.Query()
	if action != "" {
		if a, err := base.Parse(action); err == nil {
			target = a
			q = a.Query()
			for k := range fields {
				q.Set(k, fields.Get(k))
			}
		}
	}
	q.Set("confirm", token)
	target.RawQuery = q.Encode()
	return target.String(), true
}

// rendered captures rawURL through the renderer, preferring its PDF.
func (e *Engine) rendered(ctx context.Context, res *Result, ch Channel, step, rawURL, destDir, base string) (string, error) {
	start := time.Now()
	page, err := e.renderer.Render(ctx, rawURL, render.Options{WaitFor: e.cfg.RenderWait, PDF: true})
	if err != nil {
		res.record(ch, step, start, 0, err)
		return "", err
	}

	block := DetectBlock(200, nil, []byte(page.HTML))
	if page.Blocked && !block.Security() {
		block = BlockWAF
	}
	if block.Security() {
		res.Block = block
		err := fmt.Errorf("%w: %s", ErrBlocked, block)
		res.record(ch, step, start, 0, err)
		return "", err
	}

	var path string
	switch {
	case bytes.HasPrefix(page.PDF, magicPDF):
		path, err = writeFile(destDir, base+".pdf", page.PDF)
	case step == "render" && strings.TrimSpace(page.HTML) != "":
		path, err = writeFile(destDir, base+".html", []byte(page.HTML))
	default:
		err = fmt.Errorf("%w: render produced no pdf", ErrValidation)
	}
	res.record(ch, step, start, 0, err)
	return path, err
}

// visionText screenshots the preview and asks the vision model for its
// text. Without a model it reports ErrNotSupported.
func (e *Engine) visionText(ctx context.Context, res *Result, rawURL, destDir, base string) (string, error) {
	start := time.Now()
	if e.vision == nil {
		res.record(ChannelIndirect, "vision", start, 0, ErrNotSupported)
		return "", ErrNotSupported
	}
	page, err := e.renderer.Render(ctx, rawURL, render.Options{WaitFor: e.cfg.RenderWait, Screenshot: true})
	if err == nil && len(page.Screenshot) == 0 {
		err = fmt.Errorf("%w: no screenshot", ErrValidation)
	}
	if err != nil {
		res.record(ChannelIndirect, "vision", start, 0, err)
		return "", err
	}
	text, err := e.vision.ImageText(ctx, e.cfg.VisionPrompt, page.Screenshot, "image/png")
	if err == nil && strings.TrimSpace(text) == "" {
		err = fmt.Errorf("%w: vision returned no text", ErrValidation)
	}
	if err != nil {
		res.record(ChannelIndirect, "vision", start, 0, err)
		return "", err
	}
	path, err := writeFile(destDir, base+".txt", []byte(text))
	res.record(ChannelIndirect, "vision", start, 0, err)
	return path, err
}
