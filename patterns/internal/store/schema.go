package store

// Schema is the DDL for learned URL patterns.
const Schema = `
CREATE TABLE IF NOT EXISTS learned_patterns (
    pattern         TEXT PRIMARY KEY,
    kind            TEXT NOT NULL DEFAULT 'include',
    keywords        TEXT NOT NULL DEFAULT '[]',
    job_keys        TEXT NOT NULL DEFAULT '[]',
    matches         INTEGER NOT NULL DEFAULT 0,
    confirmed       INTEGER NOT NULL DEFAULT 0,
    rejected        INTEGER NOT NULL DEFAULT 0,
    pending         INTEGER NOT NULL DEFAULT 0,
    success_rate    REAL NOT NULL DEFAULT 0.0,
    status          TEXT NOT NULL DEFAULT 'learning',
    created_at      INTEGER NOT NULL,
    updated_at      INTEGER NOT NULL,
    approved_at     INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_learned_patterns_status ON learned_patterns(status);
`
