package store

import (
	"context"
	"database/sql"
)

// Attempt is one entry of the append-only enrichment-attempt log.
type Attempt struct {
	ID         string `json:"id"`
	JobKey     string `json:"job_key"`
	RunID      string `json:"run_id"`
	URL        string `json:"url"`
	Outcome    string `json:"outcome"`
	Block      string `json:"block"`
	Channel    string `json:"channel,omitempty"`
	DurationMs int64  `json:"duration_ms"`
	Notes      string `json:"notes,omitempty"`
	CreatedAt  int64  `json:"created_at"`
}

const attemptCols = `id, job_key, run_id, url, outcome, block, channel, duration_ms, notes, created_at`

// AppendAttempt adds a to the log.
func (s *Store) AppendAttempt(ctx context.Context, a *Attempt) error {
	_, err := s.DB.ExecContext(ctx, `INSERT INTO enrichment_attempts (`+attemptCols+`) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.JobKey, a.RunID, a.URL, a.Outcome, a.Block, a.Channel, a.DurationMs, a.Notes, a.CreatedAt)
	return err
}

// Attempts returns the log of one job key, oldest first.
func (s *Store) Attempts(ctx context.Context, jobKey string) ([]*Attempt, error) {
	return s.queryAttempts(ctx, `WHERE job_key = ?`, jobKey)
}

// RunAttempts returns the log of one run, oldest first.
func (s *Store) RunAttempts(ctx context.Context, runID string) ([]*Attempt, error) {
	return s.queryAttempts(ctx, `WHERE run_id = ?`, runID)
}

// AllAttempts returns the whole log, oldest first.
func (s *Store) AllAttempts(ctx context.Context) ([]*Attempt, error) {
	return s.queryAttempts(ctx, ``)
}

func (s *Store) queryAttempts(ctx context.Context, where string, args ...any) ([]*Attempt, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+attemptCols+` FROM enrichment_attempts `+where+` ORDER BY created_at, rowid`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAttempts(rows)
}

func scanAttempts(rows *sql.Rows) ([]*Attempt, error) {
	var out []*Attempt
	for rows.Next() {
		a := &Attempt{}
		if err := rows.Scan(&a.ID, &a.JobKey, &a.RunID, &a.URL, &a.Outcome, &a.Block, &a.Channel,
			&a.DurationMs, &a.Notes, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
