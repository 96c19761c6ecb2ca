package store

import (
	"context"
	"errors"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/bellscout/dbopen"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(dbopen.OpenMemory(t))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func newJob(key, run string, st Status) *Job {
	return &Job{Key: key, RunID: run, URL: "https://d.org", Status: st, Stage: st, StartedAt: 1, UpdatedAt: 1}
}

func TestClaim_OneActivePerKey(t *testing.T) {
	// WHAT: a second claim on a running key fails; a claim after a terminal state succeeds.
	// WHY: at most one job per key may run, but finished keys can be re-run.
	s := testStore(t)
	ctx := context.Background()

	if err := s.Claim(ctx, newJob("k", "r1", StatusInitializing)); err != nil {
		t.Fatal(err)
	}
	if err := s.Claim(ctx, newJob("k", "r2", StatusInitializing)); !errors.Is(err, ErrActive) {
		t.Fatalf("second claim = %v, want ErrActive", err)
	}

	j := newJob("k", "r1", StatusCompleted)
	j.DocumentsCaptured = 2
	if err := s.SaveJob(ctx, j); err != nil {
		t.Fatal(err)
	}
	if err := s.Claim(ctx, newJob("k", "r2", StatusInitializing)); err != nil {
		t.Fatalf("claim after completion: %v", err)
	}
	got, err := s.GetJob(ctx, "k")
	if err != nil || got == nil {
		t.Fatalf("GetJob: %v %v", got, err)
	}
	if got.RunID != "r2" || got.DocumentsCaptured != 0 {
		t.Errorf("row not replaced: %+v", got)
	}
}

func TestSaveJob_OnlyOwningRun(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	s.Claim(ctx, newJob("k", "r1", StatusMapping))

	stale := newJob("k", "r0", StatusFailed)
	if err := s.SaveJob(ctx, stale); err != nil {
		t.Fatal(err)
	}
	got, _ := s.GetJob(ctx, "k")
	if got.Status != StatusMapping {
		t.Errorf("status = %s, a stale run must not write", got.Status)
	}
}

func TestGetJob_Absent(t *testing.T) {
	got, err := testStore(t).GetJob(context.Background(), "nope")
	if err != nil || got != nil {
		t.Errorf("GetJob = %v, %v", got, err)
	}
}

func TestFailActive(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	s.Claim(ctx, newJob("a", "r1", StatusCapturing))
	s.Claim(ctx, newJob("b", "r2", StatusCompleted))
	s.Claim(ctx, newJob("c", "r3", StatusCompletedNoCandidates))

	n, err := s.FailActive(ctx, "interrupted", 99)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("changed = %d, want 1", n)
	}
	a, _ := s.GetJob(ctx, "a")
	if a.Status != StatusFailed || a.Error != "interrupted" || a.Stage != StatusCapturing {
		t.Errorf("a = %+v", a)
	}
	jobs, _ := s.ListJobs(ctx)
	if len(jobs) != 3 {
		t.Errorf("jobs = %d", len(jobs))
	}
}

func TestAttempts(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	for i, a := range []*Attempt{
		{ID: "1", JobKey: "k", RunID: "r1", URL: "u1", Outcome: "success", Block: "none", CreatedAt: 5},
		{ID: "2", JobKey: "k", RunID: "r1", URL: "u2", Outcome: "blocked", Block: "waf", CreatedAt: 5},
		{ID: "3", JobKey: "k", RunID: "r2", URL: "u1", Outcome: "error", Block: "none", CreatedAt: 9},
		{ID: "4", JobKey: "x", RunID: "r9", URL: "u", Outcome: "success", Block: "none", CreatedAt: 1},
	} {
		if err := s.AppendAttempt(ctx, a); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	got, err := s.Attempts(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got[0].ID != "1" || got[1].ID != "2" || got[2].ID != "3" {
		t.Errorf("Attempts(k) order wrong: %+v", got)
	}
	run, _ := s.RunAttempts(ctx, "r1")
	if len(run) != 2 {
		t.Errorf("RunAttempts = %d", len(run))
	}
	all, _ := s.AllAttempts(ctx)
	if len(all) != 4 || all[0].ID != "4" {
		t.Errorf("AllAttempts = %+v", all)
	}
}
