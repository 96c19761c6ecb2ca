// CLAUDE:SUMMARY UUIDv7 identifiers for job runs and enrichment attempts, with a swappable default generator.
// Package idgen generates the identifiers stored alongside jobs and attempts.
package idgen

import (
	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// UUIDv7 returns a Generator of RFC 9562 v7 UUIDs. They sort by creation
// time, which keeps run ids ordered in the attempt log.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed prepends prefix to every id from gen ("run_", "att_").
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Default is used by New. Tests may swap it for a deterministic sequence.
var Default Generator = UUIDv7()

// New produces an id from Default.
func New() string {
	return Default()
}
