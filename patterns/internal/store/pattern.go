// CLAUDE:SUMMARY Learned pattern rows: get, list by status, transactional read-modify-write upsert, delete.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"slices"
	"strings"

	"github.com/hazyhaar/bellscout/dbopen"
)

// Pattern statuses.
const (
	StatusLearning = "learning"
	StatusReview   = "review"
	StatusApproved = "approved"
	StatusFlagged  = "flagged"
)

// Pattern kinds.
const (
	KindInclude = "include"
	KindExclude = "exclude"
)

// Pattern is a learned URL glob and its observation history.
type Pattern struct {
	Pattern     string   `json:"pattern"`
	Kind        string   `json:"kind"`
	Keywords    []string `json:"keywords"`
	JobKeys     []string `json:"job_keys"` // distinct, first-seen order
	Matches     int      `json:"matches"`
	Confirmed   int      `json:"confirmed"`
	Rejected    int      `json:"rejected"`
	Pending     int      `json:"pending"`
	SuccessRate float64  `json:"success_rate"`
	Status      string   `json:"status"`
	CreatedAt   int64    `json:"created_at"`
	UpdatedAt   int64    `json:"updated_at"`
	ApprovedAt  int64    `json:"approved_at,omitempty"`
}

// Districts is the number of distinct job keys that produced a match.
func (p *Pattern) Districts() int { return len(p.JobKeys) }

// Decided reports whether at least one confirmed or rejected outcome exists.
func (p *Pattern) Decided() bool { return p.Confirmed+p.Rejected > 0 }

// AddJobKey records key if it is new. Returns true when added.
func (p *Pattern) AddJobKey(key string) bool {
	if key == "" || slices.Contains(p.JobKeys, key) {
		return false
	}
	p.JobKeys = append(p.JobKeys, key)
	return true
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const patternCols = `pattern, kind, keywords, job_keys, matches, confirmed, rejected, pending,
	success_rate, status, created_at, updated_at, approved_at`

// GetPattern returns the pattern or nil when absent.
func (s *Store) GetPattern(ctx context.Context, pattern string) (*Pattern, error) {
	return getPattern(ctx, s.DB, pattern)
}

func getPattern(ctx context.Context, q queryer, pattern string) (*Pattern, error) {
	p, err := scanPattern(q.QueryRowContext(ctx,
		`SELECT `+patternCols+` FROM learned_patterns WHERE pattern = ?`, pattern))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

// ListPatterns returns patterns, restricted to the given statuses when any.
func (s *Store) ListPatterns(ctx context.Context, statuses ...string) ([]*Pattern, error) {
	query := `SELECT ` + patternCols + ` FROM learned_patterns`
	var args []any
	if len(statuses) > 0 {
		query += ` WHERE status IN (?` + strings.Repeat(",?", len(statuses)-1) + `)`
		for _, st := range statuses {
			args = append(args, st)
		}
	}
	query += ` ORDER BY pattern`

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Pattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Update runs a read-modify-write of one pattern inside a transaction.
// fn receives the current row (nil when absent) and returns the row to
// store, or nil to leave the table unchanged.
func (s *Store) Update(ctx context.Context, pattern string, fn func(*Pattern) (*Pattern, error)) error {
	return dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		cur, err := getPattern(ctx, tx, pattern)
		if err != nil {
			return err
		}
		next, err := fn(cur)
		if err != nil || next == nil {
			return err
		}
		return upsert(ctx, tx, next)
	})
}

// DeletePattern removes a pattern. Absent patterns are not an error.
func (s *Store) DeletePattern(ctx context.Context, pattern string) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM learned_patterns WHERE pattern = ?`, pattern)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func upsert(ctx context.Context, tx *sql.Tx, p *Pattern) error {
	kw, _ := json.Marshal(nonNil(p.Keywords))
	keys, _ := json.Marshal(nonNil(p.JobKeys))
	_, err := tx.ExecContext(ctx, `
		INSERT INTO learned_patterns (`+patternCols+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(pattern) DO UPDATE SET
			kind=excluded.kind, keywords=excluded.keywords, job_keys=excluded.job_keys,
			matches=excluded.matches, confirmed=excluded.confirmed, rejected=excluded.rejected,
			pending=excluded.pending, success_rate=excluded.success_rate, status=excluded.status,
			updated_at=excluded.updated_at, approved_at=excluded.approved_at`,
		p.Pattern, p.Kind, string(kw), string(keys), p.Matches, p.Confirmed, p.Rejected, p.Pending,
		p.SuccessRate, p.Status, p.CreatedAt, p.UpdatedAt, p.ApprovedAt,
	)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPattern(sc scanner) (*Pattern, error) {
	p := &Pattern{}
	var kw, keys string
	err := sc.Scan(&p.Pattern, &p.Kind, &kw, &keys, &p.Matches, &p.Confirmed, &p.Rejected, &p.Pending,
		&p.SuccessRate, &p.Status, &p.CreatedAt, &p.UpdatedAt, &p.ApprovedAt)
	if err != nil {
		return nil, err
	}
	json.Unmarshal([]byte(kw), &p.Keywords)
	json.Unmarshal([]byte(keys), &p.JobKeys)
	return p, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
