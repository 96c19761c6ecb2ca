package organize

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/hazyhaar/bellscout/extract"
	"github.com/hazyhaar/bellscout/fetch"
	"github.com/hazyhaar/bellscout/scoring"
	"github.com/hazyhaar/bellscout/triage"
)

func TestJobDir(t *testing.T) {
	o := New("/out", nil)
	got := o.JobDir("CA", "0612345", "Springfield Unified")
	want := filepath.Join("/out", "ca", "0612345_springfield-unified")
	if got != want {
		t.Errorf("JobDir = %q, want %q", got, want)
	}
}

func TestPrepare_Idempotent(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "job")
	o := New(t.TempDir(), nil)
	for i := 0; i < 2; i++ {
		if err := o.Prepare(dir); err != nil {
			t.Fatalf("Prepare #%d: %v", i, err)
		}
	}
	for _, tier := range triage.Tiers {
		if fi, err := os.Stat(filepath.Join(dir, tier)); err != nil || !fi.IsDir() {
			t.Errorf("tier %s missing: %v", tier, err)
		}
	}
}

func TestSlugAndBaseName(t *testing.T) {
	cases := map[string]string{
		"Bell Schedule 2024-25!": "bell-schedule-2024-25",
		"  --x--  ":              "x",
		"":                       "",
	}
	for in, want := range cases {
		if got := Slug(in); got != want {
			t.Errorf("Slug(%q) = %q, want %q", in, got, want)
		}
	}
	if got := BaseName(3, "https://d.org/docs/Bell_Schedule.pdf"); got != "03_bell-schedule" {
		t.Errorf("BaseName = %q", got)
	}
	if got := BaseName(12, "https://d.org/"); got != "12_d-org" {
		t.Errorf("BaseName host = %q", got)
	}
}

// writeCapture drops a fake capture in the job dir root, the way fetch does.
func writeCapture(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestFile_TiersAndManifest(t *testing.T) {
	// WHAT: File moves each capture into its tier and counts everything.
	// WHY: metadata.json is the only contract downstream tools read.
	o := New(t.TempDir(), nil)
	dir := o.JobDir("ca", "0612345", "Springfield")
	if err := o.Prepare(dir); err != nil {
		t.Fatal(err)
	}

	pdf := writeCapture(t, dir, "a.pdf", "%PDF-1.4 bell")
	html := writeCapture(t, dir, "b.html", "<p>maybe</p>")
	vision := writeCapture(t, dir, "c.txt", "Period 1 8:00-8:50")

	items := []Item{
		{
			Rank:    scoring.Result{Key: "https://d.org/bell-schedule.pdf", Score: 0.9, Reason: "pdf", Source: scoring.SourceLLM},
			Capture: &fetch.Result{Success: true, Channel: fetch.ChannelDirect, FilePath: pdf, Block: fetch.BlockNone},
			Content: &extract.Content{Text: "Period 1 8:00 - 8:50", Method: extract.MethodPDFToText},
			Triage:  &triage.Result{Score: 0.92, Reason: "times", Source: scoring.SourceLLM, Tier: triage.TierActive, Times: []string{"8:00"}},
		},
		{
			Rank:    scoring.Result{Key: "https://d.org/hours", Score: 0.5, Reason: "hours", Source: scoring.SourceHeuristic},
			Capture: &fetch.Result{Success: true, Channel: fetch.ChannelRendered, FilePath: html, Block: fetch.BlockNone},
			Content: &extract.Content{Text: "maybe", Method: extract.MethodHTML},
			Triage:  &triage.Result{Score: 0.4, Reason: "weak", Source: scoring.SourceHeuristic, Tier: triage.TierQuarantine},
		},
		{
			Rank:    scoring.Result{Key: "https://drive.google.com/file/d/x/view", Score: 0.6, Reason: "drive", Source: scoring.SourceLLM},
			Capture: &fetch.Result{Success: true, Channel: fetch.ChannelIndirect, FilePath: vision, TextPath: vision, Block: fetch.BlockNone},
			Content: &extract.Content{Text: "Period 1 8:00-8:50", Method: extract.MethodText},
			Triage:  &triage.Result{Score: 0.1, Reason: "none", Source: scoring.SourceHeuristic, Tier: triage.TierRejected},
		},
		{
			Rank:    scoring.Result{Key: "https://d.org/blocked.pdf", Score: 0.7, Reason: "pdf", Source: scoring.SourceLLM},
			Capture: &fetch.Result{Error: "cloudflare", Block: fetch.BlockCloudflare},
		},
	}
	job := JobInfo{Key: "0612345", Name: "Springfield", State: "ca", PagesMapped: 40, URLsScored: 40}

	m, err := o.File(context.Background(), dir, job, items)
	if err != nil {
		t.Fatalf("File: %v", err)
	}

	want := Summary{PagesMapped: 40, URLsScored: 40, DocumentsCaptured: 3, Active: 1, Quarantine: 1, Rejected: 1, Failed: 1}
	if m.Summary != want {
		t.Errorf("summary = %+v, want %+v", m.Summary, want)
	}
	if m.CaptureMethods["direct-download"] != 1 || m.CaptureMethods["failed"] != 1 {
		t.Errorf("capture_methods = %v", m.CaptureMethods)
	}

	for _, p := range []string{
		"active/01_bell-schedule.pdf",
		"active/01_bell-schedule.txt",
		"quarantine/02_hours.html",
		"quarantine/02_hours.txt",
		"rejected/03_view.txt",
	} {
		if _, err := os.Stat(filepath.Join(dir, p)); err != nil {
			t.Errorf("expected %s: %v", p, err)
		}
	}
	if _, err := os.Stat(pdf); !os.IsNotExist(err) {
		t.Error("original capture should have moved")
	}
	if m.Sources[2].File != m.Sources[2].TextFile {
		t.Errorf("vision text should be its own text file: %+v", m.Sources[2])
	}
	if m.Sources[3].File != "" || m.Sources[3].Capture.Block != fetch.BlockCloudflare {
		t.Errorf("failed source = %+v", m.Sources[3])
	}
	if _, err := os.Stat(filepath.Join(dir, ManifestName+".tmp")); !os.IsNotExist(err) {
		t.Error("temp manifest left behind")
	}

	back, err := ReadManifest(filepath.Join(dir, ManifestName))
	if err != nil {
		t.Fatalf("ReadManifest: %v", err)
	}
	if back.Job.Key != "0612345" || len(back.Sources) != 4 {
		t.Errorf("round trip = %+v", back.Job)
	}
	if n := back.Documents(triage.TierActive, triage.TierQuarantine); n != 2 {
		t.Errorf("Documents(active,quarantine) = %d, want 2", n)
	}
}

func TestWalk(t *testing.T) {
	root := t.TempDir()
	o := New(root, nil)
	for _, key := range []string{"a", "b"} {
		dir := o.JobDir("tx", key, "")
		if _, err := o.File(context.Background(), dir, JobInfo{Key: key}, nil); err != nil {
			t.Fatal(err)
		}
	}
	bad := filepath.Join(root, "tx", "broken")
	os.MkdirAll(bad, 0o755)
	os.WriteFile(filepath.Join(bad, ManifestName), []byte("{"), 0o644)

	var keys []string
	var bads int
	err := Walk(context.Background(), root, func(_ string, m *Manifest, err error) error {
		if err != nil {
			bads++
			return nil
		}
		keys = append(keys, m.Job.Key)
		return nil
	})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if len(keys) != 2 || bads != 1 {
		t.Errorf("keys=%v bad=%d", keys, bads)
	}

	stop := errors.New("stop")
	err = Walk(context.Background(), root, func(string, *Manifest, error) error { return stop })
	if !errors.Is(err, stop) {
		t.Errorf("Walk err = %v, want stop", err)
	}
}
