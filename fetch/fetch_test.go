package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hazyhaar/bellscout/render"
)

const pdfBody = "%PDF-1.4\n1 0 obj <<>> endobj\ntrailer\n%%EOF"

type fakeRenderer struct {
	calls int
	page  *render.Page
	err   error
}

func (f *fakeRenderer) Render(_ context.Context, u string, _ render.Options) (*render.Page, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	p := *f.page
	p.URL = u
	return &p, nil
}

func testEngine(t *testing.T, r render.Renderer, v VisionExtractor) *Engine {
	t.Helper()
	return New(&Config{AllowPrivateHosts: true}, r, v, nil)
}

func TestRoute_Priority(t *testing.T) {
	cases := []struct {
		url  string
		want []Channel
	}{
		{"https://drive.google.com/file/d/abc/view", []Channel{ChannelIndirect}},
		{"https://drive.google.com/files/bell.pdf", []Channel{ChannelIndirect}},
		{"https://www.dropbox.com/s/x/bell.pdf?dl=0", []Channel{ChannelIndirect}},
		{"https://d.org/docs/Bell-Schedule.PDF", []Channel{ChannelDirect, ChannelRendered}},
		{"https://d.org/download?file=bell.docx", []Channel{ChannelDirect, ChannelRendered}},
		{"https://d.org/bell-schedule", []Channel{ChannelRendered}},
		{"https://drive.google.com.evil.org/x.pdf", []Channel{ChannelDirect, ChannelRendered}},
		{"::not a url", []Channel{ChannelRendered}},
	}
	for _, c := range cases {
		got := Route(c.url)
		if len(got) != len(c.want) {
			t.Errorf("Route(%s) = %v, want %v", c.url, got, c.want)
			continue
		}
		for i := range got {
			if got[i] != c.want[i] {
				t.Errorf("Route(%s) = %v, want %v", c.url, got, c.want)
			}
		}
	}
}

func TestFetch_DirectPDF(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte(pdfBody))
	}))
	defer srv.Close()

	rr := &fakeRenderer{err: render.ErrNotAvailable}
	dir := t.TempDir()
	res := testEngine(t, rr, nil).Fetch(context.Background(), srv.URL+"/bell.pdf", dir, "01_bell")

	if !res.Success || res.Channel != ChannelDirect {
		t.Fatalf("res = %+v", res)
	}
	if res.FilePath != filepath.Join(dir, "01_bell.pdf") {
		t.Errorf("file = %s", res.FilePath)
	}
	if data, _ := os.ReadFile(res.FilePath); string(data) != pdfBody {
		t.Error("file content mismatch")
	}
	if rr.calls != 0 {
		t.Error("renderer should not run after a direct success")
	}
	if Outcome(res) != OutcomeSuccess {
		t.Errorf("outcome = %s", Outcome(res))
	}
}

func TestFetch_NonPDFContentTypeFallsBack(t *testing.T) {
	// WHAT: a .pdf URL answered with text/html is not accepted; the
	// rendered-capture channel runs next.
	// WHY: content-type and magic bytes must both say document.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<html><body>Document moved, click here</body></html>"))
	}))
	defer srv.Close()

	rr := &fakeRenderer{page: &render.Page{HTML: "<html>Bell</html>", PDF: []byte(pdfBody)}}
	res := testEngine(t, rr, nil).Fetch(context.Background(), srv.URL+"/bell.pdf", t.TempDir(), "01_bell")

	if !res.Success || res.Channel != ChannelRendered {
		t.Fatalf("res = %+v", res)
	}
	if len(res.Attempts) != 2 || res.Attempts[0].OK || res.Attempts[0].Channel != ChannelDirect {
		t.Errorf("attempts = %+v", res.Attempts)
	}
	if !strings.Contains(res.Attempts[0].Reason, "content-type") {
		t.Errorf("reason = %s", res.Attempts[0].Reason)
	}
}

func TestFetch_PDFTypeButWrongMagic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("<html>not really</html>"))
	}))
	defer srv.Close()

	res := testEngine(t, nil, nil).Fetch(context.Background(), srv.URL+"/bell.pdf", t.TempDir(), "x")
	if res.Success {
		t.Fatal("accepted a non-PDF body")
	}
	if !strings.Contains(res.Attempts[0].Reason, "leading bytes") {
		t.Errorf("attempts = %+v", res.Attempts)
	}
	if res.Channel != ChannelRendered {
		t.Errorf("last channel = %s", res.Channel)
	}
}

func TestFetch_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	res := testEngine(t, nil, nil).Fetch(context.Background(), srv.URL+"/gone.pdf", t.TempDir(), "x")
	if res.Success || res.StatusCode != http.StatusNotFound {
		t.Fatalf("res = %+v", res)
	}
	if Outcome(res) != OutcomeNotFound {
		t.Errorf("outcome = %s", Outcome(res))
	}
}

func TestFetch_NotFoundSkipsRenderer(t *testing.T) {
	// WHAT: a 404 on the direct download ends the URL even with a working renderer.
	// WHY: rendering the error page would file it as a captured document and
	// hide the 404 from the not-found short-circuit.
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	rr := &fakeRenderer{page: &render.Page{HTML: "<html><body><h1>Page not found</h1></body></html>"}}
	dir := t.TempDir()
	res := testEngine(t, rr, nil).Fetch(context.Background(), srv.URL+"/bell-schedule.pdf", dir, "01_bell")

	if res.Success || res.FilePath != "" || res.Channel != ChannelDirect {
		t.Fatalf("res = %+v", res)
	}
	if !strings.Contains(res.Error, ErrNotFound.Error()) {
		t.Errorf("error = %q", res.Error)
	}
	if rr.calls != 0 {
		t.Errorf("renderer called %d times after a 404", rr.calls)
	}
	if Outcome(res) != OutcomeNotFound {
		t.Errorf("outcome = %s", Outcome(res))
	}
	if entries, _ := os.ReadDir(dir); len(entries) != 0 {
		t.Errorf("files written: %v", entries)
	}
}

func TestFetch_GoneIsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
	}))
	defer srv.Close()

	rr := &fakeRenderer{page: &render.Page{PDF: []byte(pdfBody)}}
	res := testEngine(t, rr, nil).Fetch(context.Background(), srv.URL+"/old.pdf", t.TempDir(), "x")
	if res.Success || rr.calls != 0 || Outcome(res) != OutcomeNotFound {
		t.Errorf("res = %+v, renderer calls = %d", res, rr.calls)
	}
}

func TestFetch_ServerErrorFallsBack(t *testing.T) {
	// WHAT: other error statuses still fall through to the rendered channel.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	rr := &fakeRenderer{page: &render.Page{PDF: []byte(pdfBody)}}
	res := testEngine(t, rr, nil).Fetch(context.Background(), srv.URL+"/bell.pdf", t.TempDir(), "x")
	if !res.Success || res.Channel != ChannelRendered || rr.calls != 1 {
		t.Errorf("res = %+v, renderer calls = %d", res, rr.calls)
	}
}

func TestFetch_CloudflareStopsChain(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("<title>Just a moment...</title>"))
	}))
	defer srv.Close()

	rr := &fakeRenderer{page: &render.Page{PDF: []byte(pdfBody)}}
	res := testEngine(t, rr, nil).Fetch(context.Background(), srv.URL+"/bell.pdf", t.TempDir(), "x")
	if !res.Blocked() || res.Block != BlockCloudflare {
		t.Fatalf("res = %+v", res)
	}
	if rr.calls != 0 {
		t.Error("a security block must not fall through to the next channel")
	}
	if Outcome(res) != OutcomeBlocked {
		t.Errorf("outcome = %s", Outcome(res))
	}
}

func TestFetch_RenderedHTMLPage(t *testing.T) {
	rr := &fakeRenderer{page: &render.Page{HTML: "<html><body><table><tr><td>Period 1</td></tr></table></body></html>"}}
	dir := t.TempDir()
	res := testEngine(t, rr, nil).Fetch(context.Background(), "https://d.org/bell-schedule", dir, "02_page")
	if !res.Success || res.FilePath != filepath.Join(dir, "02_page.html") {
		t.Fatalf("res = %+v", res)
	}
}

func TestFetch_RenderedBlocked(t *testing.T) {
	rr := &fakeRenderer{page: &render.Page{HTML: `<div class="g-recaptcha"></div>`}}
	res := testEngine(t, rr, nil).Fetch(context.Background(), "https://d.org/bell", t.TempDir(), "x")
	if res.Block != BlockCaptcha {
		t.Errorf("block = %s", res.Block)
	}
}

func TestFetch_RenderedPageWithCaptchaWidget(t *testing.T) {
	// WHAT: a content page that embeds a reCAPTCHA form or Turnstile is captured.
	// WHY: a widget in the footer is not a bot wall; calling it one would stop
	// the job and put the district on the skip list.
	page := `<html><head><title>Bell Schedule | Springfield High</title>
		<script src="https://challenges.cloudflare.com/turnstile/v0/api.js"></script></head>
		<body><h1>Bell Schedule 2025-2026</h1>
		<table>
		<tr><td>Period 1</td><td>8:05 - 8:55</td></tr>
		<tr><td>Period 2</td><td>9:00 - 9:50</td></tr>
		<tr><td>Period 3</td><td>9:55 - 10:45</td></tr>
		<tr><td>Lunch</td><td>10:50 - 11:20</td></tr>
		<tr><td>Period 4</td><td>11:25 - 12:15</td></tr>
		<tr><td>Period 5</td><td>12:20 - 1:10</td></tr>
		<tr><td>Period 6</td><td>1:15 - 2:05</td></tr>
		</table>
		<p>Early release Wednesdays follow the minimum day schedule posted in the main office.</p>
		<footer><p>Contact the front office with questions about daily schedules.</p>
		<form><textarea name="msg"></textarea><div class="g-recaptcha" data-sitekey="x"></div></form></footer>
		</body></html>`
	rr := &fakeRenderer{page: &render.Page{HTML: page}}
	dir := t.TempDir()
	res := testEngine(t, rr, nil).Fetch(context.Background(), "https://d.org/bell-schedule", dir, "01_bell")
	if !res.Success || res.Block != BlockNone || res.FilePath != filepath.Join(dir, "01_bell.html") {
		t.Fatalf("res = %+v", res)
	}
	if Outcome(res) != OutcomeSuccess {
		t.Errorf("outcome = %s", Outcome(res))
	}
}

func TestFetch_RenderedServiceBlockedFlag(t *testing.T) {
	rr := &fakeRenderer{page: &render.Page{HTML: "<html><body>" + strings.Repeat("text ", 100) + "</body></html>", Blocked: true}}
	res := testEngine(t, rr, nil).Fetch(context.Background(), "https://d.org/bell", t.TempDir(), "x")
	if res.Block != BlockWAF || Outcome(res) != OutcomeBlocked {
		t.Errorf("res = %+v", res)
	}
}

func TestIndirect_ExportNotFoundStops(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	rr := &fakeRenderer{page: &render.Page{HTML: "<html>Sorry, the file you have requested does not exist.</html>"}}
	e := testEngine(t, rr, fakeVision{text: "Period 1 8:00-8:50"})
	e.export = func(*url.URL) (string, bool) { return srv.URL + "/export", true }

	res := e.Fetch(context.Background(), "https://drive.google.com/file/d/abc/view", t.TempDir(), "x")
	if res.Success || rr.calls != 0 || Outcome(res) != OutcomeNotFound {
		t.Errorf("res = %+v, renderer calls = %d", res, rr.calls)
	}
}

func TestFetch_InvalidURL(t *testing.T) {
	res := New(nil, nil, nil, nil).Fetch(context.Background(), "ftp://d.org/x.pdf", t.TempDir(), "x")
	if res.Success || res.Error == "" || len(res.Attempts) != 0 {
		t.Errorf("res = %+v", res)
	}
}

func TestFetch_RobotsDisallow(t *testing.T) {
	var docHits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			w.Write([]byte("User-agent: *\nDisallow: /private/\n"))
			return
		}
		docHits++
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte(pdfBody))
	}))
	defer srv.Close()

	e := New(&Config{AllowPrivateHosts: true, RespectRobots: true}, nil, nil, nil)
	res := e.Fetch(context.Background(), srv.URL+"/private/bell.pdf", t.TempDir(), "x")
	if res.Block != BlockRobots || res.Blocked() {
		t.Errorf("res = %+v", res)
	}
	if docHits != 0 {
		t.Error("disallowed document was requested")
	}
	if res := e.Fetch(context.Background(), srv.URL+"/public/bell.pdf", t.TempDir(), "x"); !res.Success {
		t.Errorf("allowed fetch failed: %+v", res)
	}
}

func TestExportURL(t *testing.T) {
	cases := map[string]string{
		"https://drive.google.com/file/d/1AbC_d-E/view?usp=sharing":      "https://drive.google.com/uc?export=download&id=1AbC_d-E",
		"https://drive.google.com/open?id=XYZ":                           "https://drive.google.com/uc?export=download&id=XYZ",
		"https://docs.google.com/document/d/DOC1/edit":                   "https://docs.google.com/document/d/DOC1/export?format=pdf",
		"https://docs.google.com/spreadsheets/d/SH1/edit#gid=0":          "https://docs.google.com/spreadsheets/d/SH1/export?format=pdf",
		"https://docs.google.com/presentation/d/PR1/edit":                "https://docs.google.com/presentation/d/PR1/export/pdf",
		"https://www.dropbox.com/s/abc/bell.pdf?dl=0":                    "https://www.dropbox.com/s/abc/bell.pdf?dl=1",
	}
	for in, want := range cases {
		u, _ := url.Parse(in)
		got, ok := ExportURL(u)
		if !ok || got != want {
			t.Errorf("ExportURL(%s) = %s %v, want %s", in, got, ok, want)
		}
	}
	u, _ := url.Parse("https://drive.google.com/drive/folders")
	if _, ok := ExportURL(u); ok {
		t.Error("folder view has no export link")
	}
}

func TestExportDownload_ConfirmCookie(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if r.URL.Query().Get("confirm") == "T0K3N" {
			w.Header().Set("Content-Type", "application/pdf")
			w.Write([]byte(pdfBody))
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "download_warning_123_abc", Value: "T0K3N"})
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html>Google Drive can't scan this file for viruses.</html>"))
	}))
	defer srv.Close()

	e := testEngine(t, nil, nil)
	res := &Result{Block: BlockNone}
	path, err := e.exportDownload(context.Background(), res, srv.URL+"/uc?export=download&id=abc", t.TempDir(), "x")
	if err != nil {
		t.Fatalf("err = %v, attempts = %+v", err, res.Attempts)
	}
	if filepath.Ext(path) != ".pdf" || hits != 2 {
		t.Errorf("path = %s, hits = %d", path, hits)
	}
	if len(res.Attempts) != 2 || res.Attempts[1].Step != "export-confirm" || !res.Attempts[1].OK {
		t.Errorf("attempts = %+v", res.Attempts)
	}
}

func TestExportDownload_ConfirmFormRetriedOnce(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Header().Set("Content-Type", "text/html")
		if r.URL.Path == "/download" && r.URL.Query().Get("confirm") == "t" && r.URL.Query().Get("uuid") == "u-1" {
			// Still not a document: the engine must give up, not loop.
			w.Write([]byte("<html>quota exceeded</html>"))
			return
		}
		w.Write([]byte(`<html><form id="download-form" action="/download" method="get">
			<input type="hidden" name="id" value="abc">
			<input type="hidden" name="confirm" value="t">
			<input type="hidden" name="uuid" value="u-1">
		</form></html>`))
	}))
	defer srv.Close()

	e := testEngine(t, nil, nil)
	res := &Result{Block: BlockNone}
	_, err := e.exportDownload(context.Background(), res, srv.URL+"/uc?export=download&id=abc", t.TempDir(), "x")
	if !errors.Is(err, ErrValidation) {
		t.Errorf("err = %v", err)
	}
	if hits != 2 {
		t.Errorf("hits = %d, want exactly one retry", hits)
	}
}

type fakeVision struct{ text string }

func (f fakeVision) ImageText(context.Context, string, []byte, string) (string, error) {
	return f.text, nil
}

func TestIndirect_ExhaustedIsNotSupported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html>sign in</html>"))
	}))
	defer srv.Close()

	e := testEngine(t, render.Disabled{}, nil)
	e.export = func(*url.URL) (string, bool) { return srv.URL + "/export", true }

	res := e.Fetch(context.Background(), "https://drive.google.com/file/d/abc/view", t.TempDir(), "x")
	if res.Success || res.Channel != ChannelIndirect {
		t.Fatalf("res = %+v", res)
	}
	steps := []string{}
	for _, a := range res.Attempts {
		steps = append(steps, a.Step)
	}
	if strings.Join(steps, ",") != "export,preview,vision" {
		t.Errorf("steps = %v", steps)
	}
	last := res.Attempts[len(res.Attempts)-1]
	if !strings.Contains(last.Reason, ErrNotSupported.Error()) {
		t.Errorf("last attempt = %+v", last)
	}
}

func TestIndirect_VisionText(t *testing.T) {
	rr := &fakeRenderer{page: &render.Page{HTML: "<html>preview</html>", Screenshot: []byte("png")}}
	e := testEngine(t, rr, fakeVision{text: "Period 1 8:00-8:50"})
	e.export = func(*url.URL) (string, bool) { return "", false }

	dir := t.TempDir()
	res := e.Fetch(context.Background(), "https://docs.google.com/document/d/x/edit", dir, "03_doc")
	if !res.Success || res.TextPath != filepath.Join(dir, "03_doc.txt") {
		t.Fatalf("res = %+v", res)
	}
}

// contentPage is enough visible text to rule out a widget-only page.
var contentPage = "<h1>Bell Schedule</h1><table>" + strings.Repeat("<tr><td>Period</td><td>8:05 - 8:55</td></tr>", 20) + "</table>"

func TestDetectBlock(t *testing.T) {
	cf := http.Header{}
	cf.Set("cf-mitigated", "challenge")
	cases := []struct {
		status int
		header http.Header
		body   string
		want   Block
	}{
		{403, cf, "", BlockCloudflare},
		{503, nil, "<title>Just a moment...</title>", BlockCloudflare},
		{200, nil, "Attention Required! | Cloudflare", BlockCloudflare},
		{200, nil, `<div class="h-captcha">`, BlockCaptcha},
		{429, nil, "please solve the captcha", BlockCaptcha},
		{200, nil, "our captcha policy page", BlockNone},
		{403, nil, "<h1>Access Denied</h1>", BlockWAF},
		{403, nil, "Request blocked.", BlockWAF},
		{200, nil, "/_Incapsula_Resource?", BlockWAF},
		{200, nil, `<title>Just a moment...</title><script src="https://challenges.cloudflare.com/x.js"></script>`, BlockCloudflare},
		{200, nil, `<title>Security check</title><body>` + strings.Repeat("Please wait while we check your browser. ", 10) + `<div class="g-recaptcha"></div></body>`, BlockCaptcha},
		{200, nil, `<body>` + contentPage + `<div class="g-recaptcha"></div></body>`, BlockNone},
		{200, nil, `<body>` + contentPage + `<div class="h-captcha"></div></body>`, BlockNone},
		{200, nil, `<script src="https://challenges.cloudflare.com/turnstile/v0/api.js"></script><body>` + contentPage + `</body>`, BlockNone},
		{200, nil, `<script src="/_Incapsula_Resource?SWJIYLWA=1"></script><body>` + contentPage + `</body>`, BlockNone},
		{403, nil, `<body>` + contentPage + `<div class="g-recaptcha"></div></body>`, BlockCaptcha},
		{404, nil, "Not Found", BlockNone},
	}
	for i, c := range cases {
		if got := DetectBlock(c.status, c.header, []byte(c.body)); got != c.want {
			t.Errorf("case %d: got %s, want %s", i, got, c.want)
		}
	}
}

func TestOutcome(t *testing.T) {
	cases := []struct {
		res  Result
		want string
	}{
		{Result{Success: true}, OutcomeSuccess},
		{Result{Block: BlockWAF}, OutcomeBlocked},
		{Result{Block: BlockRobots}, OutcomeBlocked},
		{Result{Block: BlockNone, StatusCode: 410}, OutcomeNotFound},
		{Result{Block: BlockNone, Error: "fetch: get: context deadline exceeded"}, OutcomeTimeout},
		{Result{Block: BlockNone, Error: "boom"}, OutcomeError},
	}
	for i, c := range cases {
		if got := Outcome(&c.res); got != c.want {
			t.Errorf("case %d: got %s, want %s", i, got, c.want)
		}
	}
}
