// CLAUDE:SUMMARY Job rows: transactional one-active-per-key claim, stage updates, restart recovery.
package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/hazyhaar/bellscout/dbopen"
)

// ErrActive is returned by Claim when the key already has a running job.
var ErrActive = errors.New("acquire store: job active")

// Status is the lifecycle state of a job.
type Status string

// Statuses, in stage order, then the terminal ones.
const (
	StatusInitializing   Status = "initializing"
	StatusCheckingMapper Status = "checking_mapper"
	StatusMapping        Status = "mapping"
	StatusRanking        Status = "ranking"
	StatusCapturing      Status = "capturing"
	StatusTriaging       Status = "triaging"
	StatusPersisting     Status = "persisting"

	StatusCompleted             Status = "completed"
	StatusCompletedNoCandidates Status = "completed_no_candidates"
	StatusFailed                Status = "failed"
)

var terminal = []Status{StatusCompleted, StatusCompletedNoCandidates, StatusFailed}

// Terminal reports whether no further transition can happen.
func (s Status) Terminal() bool {
	for _, t := range terminal {
		if s == t {
			return true
		}
	}
	return false
}

// Job is one acquisition run for a key. The latest run overwrites the row.
type Job struct {
	Key               string `json:"key"`
	RunID             string `json:"run_id"`
	Name              string `json:"name"`
	State             string `json:"state"`
	URL               string `json:"url"`
	Status            Status `json:"status"`
	Stage             Status `json:"stage"` // last attempted stage
	StartedAt         int64  `json:"started_at"`
	CompletedAt       int64  `json:"completed_at,omitempty"`
	PagesMapped       int    `json:"pages_mapped"`
	URLsScored        int    `json:"urls_scored"`
	DocumentsCaptured int    `json:"documents_captured"`
	Error             string `json:"error,omitempty"`
	OutputDir         string `json:"output_dir,omitempty"`
	UpdatedAt         int64  `json:"updated_at"`
}

const jobCols = `job_key, run_id, name, state, url, status, stage, started_at, completed_at,
	pages_mapped, urls_scored, documents_captured, error, output_dir, updated_at`

// Claim inserts or replaces the row of j.Key, unless the current row is
// still running, in which case it returns ErrActive.
func (s *Store) Claim(ctx context.Context, j *Job) error {
	return dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		var cur Status
		err := tx.QueryRowContext(ctx, `SELECT status FROM jobs WHERE job_key = ?`, j.Key).Scan(&cur)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return err
		case !cur.Terminal():
			return ErrActive
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO jobs (`+jobCols+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
			ON CONFLICT(job_key) DO UPDATE SET
				run_id=excluded.run_id, name=excluded.name, state=excluded.state, url=excluded.url,
				status=excluded.status, stage=excluded.stage, started_at=excluded.started_at,
				completed_at=excluded.completed_at, pages_mapped=excluded.pages_mapped,
				urls_scored=excluded.urls_scored, documents_captured=excluded.documents_captured,
				error=excluded.error, output_dir=excluded.output_dir, updated_at=excluded.updated_at`,
			j.Key, j.RunID, j.Name, j.State, j.URL, j.Status, j.Stage, j.StartedAt, j.CompletedAt,
			j.PagesMapped, j.URLsScored, j.DocumentsCaptured, j.Error, j.OutputDir, j.UpdatedAt)
		return err
	})
}

// SaveJob writes the mutable fields of j. Only the run that owns the row
// can write it.
func (s *Store) SaveJob(ctx context.Context, j *Job) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE jobs SET status=?, stage=?, completed_at=?, pages_mapped=?, urls_scored=?,
			documents_captured=?, error=?, output_dir=?, updated_at=?
		WHERE job_key = ? AND run_id = ?`,
		j.Status, j.Stage, j.CompletedAt, j.PagesMapped, j.URLsScored,
		j.DocumentsCaptured, j.Error, j.OutputDir, j.UpdatedAt,
		j.Key, j.RunID)
	return err
}

// GetJob returns the job or nil when absent.
func (s *Store) GetJob(ctx context.Context, key string) (*Job, error) {
	j, err := scanJob(s.DB.QueryRowContext(ctx, `SELECT `+jobCols+` FROM jobs WHERE job_key = ?`, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return j, err
}

// ListJobs returns every job, most recently started first.
func (s *Store) ListJobs(ctx context.Context) ([]*Job, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT `+jobCols+` FROM jobs ORDER BY started_at DESC, job_key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// FailActive marks every non-terminal job failed with reason. It returns
// the number of rows changed.
func (s *Store) FailActive(ctx context.Context, reason string, now int64) (int64, error) {
	args := []any{StatusFailed, reason, now, now}
	for _, t := range terminal {
		args = append(args, t)
	}
	res, err := s.DB.ExecContext(ctx, `
		UPDATE jobs SET status = ?, error = ?, completed_at = ?, updated_at = ?
		WHERE status NOT IN (?`+strings.Repeat(",?", len(terminal)-1)+`)`, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(sc scanner) (*Job, error) {
	j := &Job{}
	err := sc.Scan(&j.Key, &j.RunID, &j.Name, &j.State, &j.URL, &j.Status, &j.Stage, &j.StartedAt,
		&j.CompletedAt, &j.PagesMapped, &j.URLsScored, &j.DocumentsCaptured, &j.Error, &j.OutputDir, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return j, nil
}
