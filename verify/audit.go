package verify

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/hazyhaar/bellscout/fetch"
	"github.com/hazyhaar/bellscout/organize"
	"github.com/hazyhaar/bellscout/triage"
)

// Attempt is the part of an enrichment attempt the checks need.
type Attempt struct {
	JobKey    string `json:"job_key"`
	RunID     string `json:"run_id"`
	Outcome   string `json:"outcome"`
	Block     string `json:"block"`
	CreatedAt int64  `json:"created_at"`
}

// AttemptLog reads the attempt log of one run.
type AttemptLog interface {
	RunAttempts(ctx context.Context, runID string) ([]Attempt, error)
}

// Report is one audited job.
type Report struct {
	Key      string  `json:"key"`
	Manifest string  `json:"manifest,omitempty"`
	Check    string  `json:"check"`
	Finding  Finding `json:"finding"`
}

// Checks.
const (
	CheckClaims   = "claims"
	CheckAttempts = "attempts"
)

// Auditor walks an output tree and reports discrepancies.
type Auditor struct {
	log    AttemptLog
	logger *slog.Logger
}

// NewAuditor creates an Auditor. log may be nil when only manifests are audited.
func NewAuditor(log AttemptLog, logger *slog.Logger) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{log: log, logger: logger}
}

// AuditManifests compares each claimed document count with the usable
// (active plus quarantine) documents in the job's manifest. Claimed keys
// without a manifest are audited against zero. Reports are sorted by key.
func (a *Auditor) AuditManifests(ctx context.Context, root string, claims map[string]int) ([]Report, error) {
	seen := make(map[string]bool)
	var out []Report
	err := organize.Walk(ctx, root, func(path string, m *organize.Manifest, err error) error {
		if err != nil {
			a.logger.Warn("verify: unreadable manifest", "path", path, "error", err)
			return nil
		}
		documented, ok := claims[m.Job.Key]
		if !ok {
			return nil
		}
		seen[m.Job.Key] = true
		actual := m.Documents(triage.TierActive, triage.TierQuarantine)
		out = append(out, a.report(m.Job.Key, path, CheckClaims, documented, actual))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("verify: walk: %w", err)
	}
	for key, documented := range claims {
		if !seen[key] {
			out = append(out, a.report(key, "", CheckClaims, documented, 0))
		}
	}
	sortReports(out)
	return out, nil
}

// AuditAttempts compares each manifest's documents_captured with the
// successful attempts logged for the same run.
func (a *Auditor) AuditAttempts(ctx context.Context, root string) ([]Report, error) {
	if a.log == nil {
		return nil, fmt.Errorf("verify: no attempt log")
	}
	var out []Report
	err := organize.Walk(ctx, root, func(path string, m *organize.Manifest, err error) error {
		if err != nil {
			a.logger.Warn("verify: unreadable manifest", "path", path, "error", err)
			return nil
		}
		if m.Job.RunID == "" {
			return nil
		}
		attempts, err := a.log.RunAttempts(ctx, m.Job.RunID)
		if err != nil {
			return fmt.Errorf("attempts for %s: %w", m.Job.Key, err)
		}
		var ok int
		for _, at := range attempts {
			if at.Outcome == fetch.OutcomeSuccess {
				ok++
			}
		}
		out = append(out, a.report(m.Job.Key, path, CheckAttempts, m.Summary.DocumentsCaptured, ok))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("verify: walk: %w", err)
	}
	sortReports(out)
	return out, nil
}

func (a *Auditor) report(key, path, check string, documented, actual int) Report {
	f := CheckDiscrepancy(documented, actual)
	if f.Discrepancy() {
		a.logger.Warn("verify: discrepancy",
			"job_key", key, "check", check, "severity", f.Severity,
			"documented", documented, "actual", actual)
	}
	return Report{Key: key, Manifest: path, Check: check, Finding: f}
}

func sortReports(r []Report) {
	sort.SliceStable(r, func(i, j int) bool { return r[i].Key < r[j].Key })
}

// SkipList returns, sorted, the keys whose latest run hit a security block.
// The latest run of a key is the run of its newest attempt.
func SkipList(attempts []Attempt) []string {
	type latest struct {
		runID string
		at    int64
	}
	runs := make(map[string]latest)
	blocked := make(map[string]bool) // run id
	for _, at := range attempts {
		if fetch.Block(at.Block).Security() {
			blocked[at.RunID] = true
		}
		if cur, ok := runs[at.JobKey]; !ok || at.CreatedAt > cur.at {
			runs[at.JobKey] = latest{runID: at.RunID, at: at.CreatedAt}
		}
	}
	var keys []string
	for key, r := range runs {
		if blocked[r.runID] {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}
