// CLAUDE:SUMMARY Stage machine of one job: health → map → rank → capture → triage → persist, with short-circuits, attempt logging and learning feedback.
package acquire

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/hazyhaar/bellscout/extract"
	"github.com/hazyhaar/bellscout/fetch"
	"github.com/hazyhaar/bellscout/idgen"
	"github.com/hazyhaar/bellscout/kit"
	"github.com/hazyhaar/bellscout/mapper"
	"github.com/hazyhaar/bellscout/organize"
	"github.com/hazyhaar/bellscout/patterns"
	"github.com/hazyhaar/bellscout/rank"
	"github.com/hazyhaar/bellscout/scoring"
	"github.com/hazyhaar/bellscout/triage"
)

// Notes written on attempts that were never made.
const (
	NoteSkippedBlock    = "skipped: security block"
	NoteSkippedNotFound = "skipped: not found threshold"
)

// run drives job to a terminal state. It never returns an error: every
// failure ends up on the job row.
func (s *Service) run(job *Job, req Request) {
	ctx := kit.WithJobKey(context.Background(), job.Key)
	log := s.logger.With("job_key", job.Key, "run_id", job.RunID)

	defer func() {
		if r := recover(); r != nil {
			log.Error("acquire: job panic", "panic", r, "stack", string(debug.Stack()))
			s.fail(ctx, job, fmt.Errorf("panic: %v", r), log)
		}
	}()

	start := s.now()
	if err := s.pipeline(ctx, job, req, log); err != nil {
		s.fail(ctx, job, err, log)
		return
	}
	log.Info("acquire: job finished",
		"status", job.Status, "documents", job.DocumentsCaptured,
		"duration_ms", time.Since(start).Milliseconds())
}

func (s *Service) fail(ctx context.Context, job *Job, err error, log *slog.Logger) {
	job.Status = StatusFailed
	job.Error = err.Error()
	job.CompletedAt = s.now().UnixMilli()
	log.Error("acquire: stage failed", "stage", job.Stage, "error", err)
	s.save(ctx, job, log)
}

// enter moves job into stage and persists it.
func (s *Service) enter(ctx context.Context, job *Job, stage Status, log *slog.Logger) {
	job.Status = stage
	job.Stage = stage
	s.save(ctx, job, log)
	log.Debug("acquire: stage", "stage", stage)
}

func (s *Service) save(ctx context.Context, job *Job, log *slog.Logger) {
	job.UpdatedAt = s.now().UnixMilli()
	if err := s.store.SaveJob(ctx, job); err != nil {
		log.Error("acquire: save job", "error", err)
	}
}

// candidate is one selected URL carried through capture and triage.
type candidate struct {
	rank    scoring.Result
	capture *fetch.Result
	content *extract.Content
	triage  *triage.Result
}

func (s *Service) pipeline(ctx context.Context, job *Job, req Request, log *slog.Logger) error {
	s.enter(ctx, job, StatusCheckingMapper, log)
	if err := s.mapper.Health(ctx); err != nil {
		return err
	}

	s.enter(ctx, job, StatusMapping, log)
	eff, err := s.patterns.Effective(ctx)
	if err != nil {
		return fmt.Errorf("effective patterns: %w", err)
	}
	matcher, err := patterns.NewMatcher(eff)
	if err != nil {
		return fmt.Errorf("compile patterns: %w", err)
	}
	mapped, err := s.mapper.Map(ctx, mapper.Request{
		URL:          job.URL,
		MaxRequests:  req.MaxRequests,
		MaxDepth:     req.MaxDepth,
		ExcludeGlobs: eff.ExcludeGlobs,
	})
	if err != nil {
		return err
	}
	job.PagesMapped = len(mapped.Pages)

	s.enter(ctx, job, StatusRanking, log)
	ranked, failures := s.ranker.Rank(ctx, mapped.Pages, rank.Context{Name: job.Name, State: job.State, Matcher: matcher})
	for _, f := range failures {
		log.Warn("acquire: ranker fell back", "strategy", f.Strategy, "error", f.Err)
	}
	job.URLsScored = len(ranked)
	selected := s.pick(ranked, req.TopN)
	if len(selected) == 0 {
		job.Status = StatusCompletedNoCandidates
		job.CompletedAt = s.now().UnixMilli()
		s.save(ctx, job, log)
		log.Info("acquire: no candidate above threshold", "scored", job.URLsScored)
		return nil
	}

	s.enter(ctx, job, StatusCapturing, log)
	jobDir := s.organizer.JobDir(job.State, job.Key, job.Name)
	if err := s.organizer.Prepare(jobDir); err != nil {
		return err
	}
	job.OutputDir = jobDir
	cands, err := s.capture(ctx, job, jobDir, selected, log)
	if err != nil {
		return err
	}

	s.enter(ctx, job, StatusTriaging, log)
	s.triage(ctx, cands, log)

	s.enter(ctx, job, StatusPersisting, log)
	return s.persist(ctx, job, jobDir, cands, log)
}

// pick keeps results at or above the candidate threshold, best first,
// at most topN of them.
func (s *Service) pick(ranked []scoring.Result, topN int) []scoring.Result {
	if topN <= 0 {
		topN = s.cfg.TopN
	}
	var out []scoring.Result
	for _, r := range ranked {
		if r.Score < s.cfg.MinCandidateScore {
			continue
		}
		out = append(out, r)
		if len(out) == topN {
			break
		}
	}
	return out
}

// capture fetches the selected URLs one at a time. A security block or too
// many 404s stop the loop; the rest are logged as skipped.
func (s *Service) capture(ctx context.Context, job *Job, jobDir string, selected []scoring.Result, log *slog.Logger) ([]*candidate, error) {
	cands := make([]*candidate, len(selected))
	var (
		notFound int
		stop     string
		stopBy   = fetch.BlockNone
	)
	for i, sel := range selected {
		c := &candidate{rank: sel}
		cands[i] = c

		if stop != "" {
			c.capture = &fetch.Result{URL: sel.Key, Error: stop, Block: fetch.BlockNone}
			s.logAttempt(ctx, job, &Attempt{
				URL:     sel.Key,
				Outcome: fetch.OutcomeBlocked,
				Block:   string(stopBy),
				Notes:   stop,
			}, log)
			continue
		}

		res := s.fetcher.Fetch(ctx, sel.Key, jobDir, organize.BaseName(i+1, sel.Key))
		c.capture = res
		outcome := fetch.Outcome(res)
		s.logAttempt(ctx, job, &Attempt{
			URL:        sel.Key,
			Outcome:    outcome,
			Block:      string(res.Block),
			Channel:    string(res.Channel),
			DurationMs: totalDuration(res.Attempts),
			Notes:      attemptNotes(res),
		}, log)
		log.Info("acquire: fetched", "url", sel.Key, "outcome", outcome, "channel", res.Channel, "block", res.Block)

		if outcome == fetch.OutcomeNotFound {
			notFound++
		}
		switch {
		case res.Blocked():
			stop, stopBy = NoteSkippedBlock, res.Block
		case notFound >= s.cfg.NotFoundThreshold:
			stop = NoteSkippedNotFound
		}
		if stop != "" && i < len(selected)-1 {
			log.Warn("acquire: capture short-circuited", "reason", stop, "remaining", len(selected)-i-1)
		}
	}
	return cands, nil
}

func (s *Service) logAttempt(ctx context.Context, job *Job, a *Attempt, log *slog.Logger) {
	a.ID = idgen.New()
	a.JobKey = job.Key
	a.RunID = job.RunID
	a.CreatedAt = s.now().UnixMilli()
	if a.Block == "" {
		a.Block = string(fetch.BlockNone)
	}
	if err := s.store.AppendAttempt(ctx, a); err != nil {
		log.Error("acquire: append attempt", "url", a.URL, "error", err)
	}
}

func totalDuration(steps []fetch.Attempt) int64 {
	var ms int64
	for _, st := range steps {
		ms += st.DurationMs
	}
	return ms
}

// attemptNotes summarises the channel steps, e.g. "direct-download/get: 404".
func attemptNotes(res *fetch.Result) string {
	parts := make([]string, 0, len(res.Attempts))
	for _, a := range res.Attempts {
		p := string(a.Channel) + "/" + a.Step
		switch {
		case a.OK:
			p += ": ok"
		case a.Reason != "":
			p += ": " + a.Reason
		}
		parts = append(parts, p)
	}
	return strings.Join(parts, "; ")
}

// triage extracts every captured file and scores the texts in one batch.
func (s *Service) triage(ctx context.Context, cands []*candidate, log *slog.Logger) {
	var docs []triage.Document
	var idx []int
	for i, c := range cands {
		if !c.capture.Success {
			continue
		}
		path := c.capture.FilePath
		if c.capture.TextPath != "" {
			path = c.capture.TextPath
		}
		content, err := s.extractor.Extract(ctx, path)
		if err != nil {
			log.Warn("acquire: extract failed", "url", c.rank.Key, "error", err)
			content = &extract.Content{Method: extract.MethodNone, Degraded: true}
		}
		c.content = content
		docs = append(docs, triage.Document{URL: c.rank.Key, Text: content.Text})
		idx = append(idx, i)
	}
	if len(docs) == 0 {
		return
	}
	results, failures := s.scorer.Score(ctx, docs)
	for _, f := range failures {
		log.Warn("acquire: triage fell back", "strategy", f.Strategy, "error", f.Err)
	}
	for j, r := range results {
		cands[idx[j]].triage = &r
	}
}

// persist files the artifacts, writes the manifest and feeds the tiers
// back into the pattern store.
func (s *Service) persist(ctx context.Context, job *Job, jobDir string, cands []*candidate, log *slog.Logger) error {
	items := make([]organize.Item, len(cands))
	for i, c := range cands {
		items[i] = organize.Item{Rank: c.rank, Capture: c.capture, Content: c.content, Triage: c.triage}
	}
	completedAt := s.now().UnixMilli()
	info := organize.JobInfo{
		Key:         job.Key,
		RunID:       job.RunID,
		Name:        job.Name,
		State:       job.State,
		URL:         job.URL,
		Status:      string(StatusCompleted),
		StartedAt:   job.StartedAt,
		CompletedAt: completedAt,
		PagesMapped: job.PagesMapped,
		URLsScored:  job.URLsScored,
	}
	m, err := s.organizer.File(ctx, jobDir, info, items)
	if err != nil {
		return err
	}

	for _, src := range m.Sources {
		var outcome patterns.Outcome
		switch src.Tier() {
		case triage.TierActive:
			outcome = patterns.Confirmed
		case triage.TierRejected:
			outcome = patterns.Rejected
		case triage.TierQuarantine:
			outcome = patterns.Pending
		default:
			continue
		}
		if _, err := s.patterns.Observe(ctx, src.URL, outcome, job.Key); err != nil {
			log.Warn("acquire: learning feedback failed", "url", src.URL, "error", err)
		}
	}

	job.DocumentsCaptured = m.Summary.DocumentsCaptured
	job.Status = StatusCompleted
	job.CompletedAt = completedAt
	s.save(ctx, job, log)
	return nil
}

