// CLAUDE:SUMMARY Re-exports store types and status constants; defines observation outcomes and the effective-pattern projection.
package patterns

import "github.com/hazyhaar/bellscout/patterns/internal/store"

// Pattern is a learned URL glob with its promotion state.
type Pattern = store.Pattern

// Statuses. Rejection deletes the pattern, so it has no status value.
const (
	StatusLearning = store.StatusLearning
	StatusReview   = store.StatusReview
	StatusApproved = store.StatusApproved
	StatusFlagged  = store.StatusFlagged
)

// Kinds. Include patterns point at target documents; exclude patterns
// at pages that should be skipped.
const (
	KindInclude = store.KindInclude
	KindExclude = store.KindExclude
)

// Outcome is the result of one observation of a URL.
type Outcome string

const (
	Confirmed Outcome = "confirmed"
	Rejected  Outcome = "rejected"
	Pending   Outcome = "pending"
)

// Effective is the read-time union of base and trusted learned globs.
type Effective struct {
	IncludeGlobs []string `json:"include_globs"`
	ExcludeGlobs []string `json:"exclude_globs"`
}
