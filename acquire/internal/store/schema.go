package store

// Schema is the DDL for job records and the enrichment-attempt log.
const Schema = `
CREATE TABLE IF NOT EXISTS jobs (
    job_key             TEXT PRIMARY KEY,
    run_id              TEXT NOT NULL,
    name                TEXT NOT NULL DEFAULT '',
    state               TEXT NOT NULL DEFAULT '',
    url                 TEXT NOT NULL,
    status              TEXT NOT NULL,
    stage               TEXT NOT NULL DEFAULT '',
    started_at          INTEGER NOT NULL,
    completed_at        INTEGER NOT NULL DEFAULT 0,
    pages_mapped        INTEGER NOT NULL DEFAULT 0,
    urls_scored         INTEGER NOT NULL DEFAULT 0,
    documents_captured  INTEGER NOT NULL DEFAULT 0,
    error               TEXT NOT NULL DEFAULT '',
    output_dir          TEXT NOT NULL DEFAULT '',
    updated_at          INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);

CREATE TABLE IF NOT EXISTS enrichment_attempts (
    id           TEXT PRIMARY KEY,
    job_key      TEXT NOT NULL,
    run_id       TEXT NOT NULL,
    url          TEXT NOT NULL,
    outcome      TEXT NOT NULL,
    block        TEXT NOT NULL DEFAULT 'none',
    channel      TEXT NOT NULL DEFAULT '',
    duration_ms  INTEGER NOT NULL DEFAULT 0,
    notes        TEXT NOT NULL DEFAULT '',
    created_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_attempts_job ON enrichment_attempts(job_key, created_at);
CREATE INDEX IF NOT EXISTS idx_attempts_run ON enrichment_attempts(run_id);
`
