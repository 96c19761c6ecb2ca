package organize

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/hazyhaar/bellscout/fetch"
	"github.com/hazyhaar/bellscout/triage"
)

// Manifest is the metadata.json contract.
type Manifest struct {
	Job            JobInfo        `json:"job"`
	Summary        Summary        `json:"summary"`
	CaptureMethods map[string]int `json:"capture_methods"`
	Sources        []Source       `json:"sources"`
	GeneratedAt    int64          `json:"generated_at"`
}

// JobInfo is the job header of a manifest.
type JobInfo struct {
	Key         string `json:"key"`
	RunID       string `json:"run_id"`
	Name        string `json:"name"`
	State       string `json:"state"`
	URL         string `json:"url"`
	Status      string `json:"status"`
	StartedAt   int64  `json:"started_at"`
	CompletedAt int64  `json:"completed_at,omitempty"`
	PagesMapped int    `json:"pages_mapped"`
	URLsScored  int    `json:"urls_scored"`
}

// Summary counts a job's results.
type Summary struct {
	PagesMapped       int `json:"pages_mapped"`
	URLsScored        int `json:"urls_scored"`
	DocumentsCaptured int `json:"documents_captured"`
	Active            int `json:"active"`
	Quarantine        int `json:"quarantine"`
	Rejected          int `json:"rejected"`
	Failed            int `json:"failed"`
}

// Source is the per-URL provenance record.
type Source struct {
	URL        string          `json:"url"`
	Rank       RankInfo        `json:"rank"`
	Capture    CaptureInfo     `json:"capture"`
	File       string          `json:"file,omitempty"`
	TextFile   string          `json:"text_file,omitempty"`
	Triage     *triage.Result  `json:"triage,omitempty"`
	Extraction *ExtractionInfo `json:"extraction,omitempty"`
}

// Tier is the source's tier, or "" when it was not captured.
func (s Source) Tier() string {
	if !s.Capture.Success {
		return ""
	}
	if s.Triage == nil {
		return triage.TierRejected
	}
	return s.Triage.Tier
}

// RankInfo is how the ranker scored the URL.
type RankInfo struct {
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
	Source string  `json:"source"`
}

// CaptureInfo is how the URL was fetched.
type CaptureInfo struct {
	Success  bool            `json:"success"`
	Channel  fetch.Channel   `json:"channel,omitempty"`
	Error    string          `json:"error,omitempty"`
	Block    fetch.Block     `json:"block"`
	Attempts []fetch.Attempt `json:"attempts,omitempty"`
}

// ExtractionInfo is how the text was obtained.
type ExtractionInfo struct {
	Method   string `json:"method"`
	Degraded bool   `json:"degraded"`
	Rows     int    `json:"schedule_rows"`
}

// Documents counts captured sources in the given tiers.
func (m *Manifest) Documents(tiers ...string) int {
	var n int
	for _, s := range m.Sources {
		t := s.Tier()
		for _, want := range tiers {
			if t == want {
				n++
				break
			}
		}
	}
	return n
}

// ReadManifest loads a metadata.json.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("organize: read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("organize: decode %s: %w", path, err)
	}
	return &m, nil
}

// Walk calls fn for every manifest under root. A manifest that cannot be
// decoded is passed to fn as an error; returning it stops the walk.
func Walk(ctx context.Context, root string, fn func(path string, m *Manifest, err error) error) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || d.Name() != ManifestName {
			return nil
		}
		m, err := ReadManifest(p)
		return fn(p, m, err)
	})
}
