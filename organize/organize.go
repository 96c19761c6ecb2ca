// CLAUDE:SUMMARY Classifier/Organizer: lays out the per-job tier directories, moves captured files into their triage tier, and writes metadata.json atomically.
// Package organize files a job's captured documents into quality tiers and
// writes the metadata.json manifest that downstream tooling reads.
//
// Layout: <root>/<state>/<key>_<name>/{active,quarantine,rejected}/NN_<slug>.<ext>
// with the extracted text next to each file and metadata.json at the job
// directory root.
package organize

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/hazyhaar/bellscout/extract"
	"github.com/hazyhaar/bellscout/fetch"
	"github.com/hazyhaar/bellscout/scoring"
	"github.com/hazyhaar/bellscout/triage"
)

// ManifestName is the manifest file at the root of every job directory.
const ManifestName = "metadata.json"

// Item is everything known about one selected URL.
type Item struct {
	Rank    scoring.Result
	Capture *fetch.Result
	Content *extract.Content
	Triage  *triage.Result
}

// Organizer owns the output tree.
type Organizer struct {
	root   string
	logger *slog.Logger
	now    func() time.Time
}

// New creates an Organizer rooted at root.
func New(root string, logger *slog.Logger) *Organizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Organizer{root: root, logger: logger, now: time.Now}
}

// JobDir returns the directory of a job. Nothing is created.
func (o *Organizer) JobDir(state, key, name string) string {
	if state == "" {
		state = "unknown"
	}
	dir := key
	if s := Slug(name); s != "" {
		dir += "_" + s
	}
	return filepath.Join(o.root, Slug(state), dir)
}

// Prepare creates the tier directories of jobDir. It is idempotent.
func (o *Organizer) Prepare(jobDir string) error {
	for _, tier := range triage.Tiers {
		if err := os.MkdirAll(filepath.Join(jobDir, tier), 0o755); err != nil {
			return fmt.Errorf("organize: create %s: %w", tier, err)
		}
	}
	return nil
}

// BaseName is the file stem for the n-th selected URL (1-based).
func BaseName(n int, rawURL string) string {
	return fmt.Sprintf("%02d_%s", n, urlSlug(rawURL))
}

// File moves each captured file into its tier directory, writes the
// extracted text beside it, and writes the manifest. Failed captures only
// appear in the manifest.
func (o *Organizer) File(ctx context.Context, jobDir string, job JobInfo, items []Item) (*Manifest, error) {
	if err := o.Prepare(jobDir); err != nil {
		return nil, err
	}
	m := &Manifest{
		Job:            job,
		CaptureMethods: map[string]int{},
		GeneratedAt:    o.now().UnixMilli(),
	}
	m.Summary.PagesMapped = job.PagesMapped
	m.Summary.URLsScored = job.URLsScored

	for i, it := range items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		src, err := o.place(jobDir, i+1, it)
		if err != nil {
			return nil, err
		}
		m.Sources = append(m.Sources, src)

		if !src.Capture.Success {
			m.CaptureMethods["failed"]++
			m.Summary.Failed++
			continue
		}
		m.CaptureMethods[string(src.Capture.Channel)]++
		m.Summary.DocumentsCaptured++
		switch src.Tier() {
		case triage.TierActive:
			m.Summary.Active++
		case triage.TierQuarantine:
			m.Summary.Quarantine++
		default:
			m.Summary.Rejected++
		}
	}

	if err := writeManifest(filepath.Join(jobDir, ManifestName), m); err != nil {
		return nil, err
	}
	o.logger.Info("organize: filed",
		"job_key", job.Key, "dir", jobDir,
		"active", m.Summary.Active, "quarantine", m.Summary.Quarantine,
		"rejected", m.Summary.Rejected, "failed", m.Summary.Failed)
	return m, nil
}

func (o *Organizer) place(jobDir string, n int, it Item) (Source, error) {
	src := Source{
		URL:  it.Rank.Key,
		Rank: RankInfo{Score: it.Rank.Score, Reason: it.Rank.Reason, Source: it.Rank.Source},
	}
	if it.Capture == nil {
		src.Capture = CaptureInfo{Error: "not attempted", Block: fetch.BlockNone}
		return src, nil
	}
	c := it.Capture
	src.Capture = CaptureInfo{
		Success:  c.Success,
		Channel:  c.Channel,
		Error:    c.Error,
		Block:    c.Block,
		Attempts: c.Attempts,
	}
	if !c.Success || c.FilePath == "" {
		return src, nil
	}

	tier := triage.TierRejected
	if it.Triage != nil {
		tier = it.Triage.Tier
		src.Triage = it.Triage
	}
	if it.Content != nil {
		src.Extraction = &ExtractionInfo{Method: it.Content.Method, Degraded: it.Content.Degraded, Rows: len(it.Content.Schedule)}
	}

	base := BaseName(n, it.Rank.Key)
	ext := filepath.Ext(c.FilePath)
	dest := filepath.Join(jobDir, tier, base+ext)
	if err := os.Rename(c.FilePath, dest); err != nil {
		return src, fmt.Errorf("organize: move %s: %w", c.FilePath, err)
	}
	src.File = rel(jobDir, dest)

	if ext == ".txt" {
		src.TextFile = src.File
		return src, nil
	}
	if it.Content != nil && it.Content.Text != "" {
		txt := filepath.Join(jobDir, tier, base+".txt")
		if err := os.WriteFile(txt, []byte(it.Content.Text), 0o644); err != nil {
			return src, fmt.Errorf("organize: write text: %w", err)
		}
		src.TextFile = rel(jobDir, txt)
	}
	return src, nil
}

func rel(base, p string) string {
	if r, err := filepath.Rel(base, p); err == nil {
		return filepath.ToSlash(r)
	}
	return p
}

// writeManifest writes m to a temp file and renames it into place.
func writeManifest(target string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("organize: marshal manifest: %w", err)
	}
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("organize: write tmp: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("organize: rename: %w", err)
	}
	return nil
}

// Slug lower-cases s and keeps letters, digits and single dashes.
func Slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	out := strings.TrimRight(b.String(), "-")
	if len(out) > 60 {
		out = strings.TrimRight(out[:60], "-")
	}
	return out
}

// urlSlug names a file after the last path segment of rawURL, without
// its extension, or the host when the path is empty.
func urlSlug(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "document"
	}
	seg := path.Base(strings.TrimRight(u.Path, "/"))
	seg = strings.TrimSuffix(seg, path.Ext(seg))
	if seg == "" || seg == "." || seg == "/" {
		seg = u.Hostname()
	}
	if s := Slug(seg); s != "" {
		return s
	}
	return "document"
}
