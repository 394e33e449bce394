package store

// schemaVersion is the current schema. Fresh installs get it directly;
// anything else is unknown and refused.
const schemaVersion = 1

var schemaDDL = `
CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL);

CREATE TABLE IF NOT EXISTS runs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	case_name   TEXT NOT NULL UNIQUE,
	prompt      TEXT NOT NULL DEFAULT '',
	target      REAL NOT NULL,
	status      TEXT NOT NULL DEFAULT 'running',
	created_at  TEXT NOT NULL,
	finished_at TEXT
);

CREATE TABLE IF NOT EXISTS iterations (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id     INTEGER NOT NULL REFERENCES runs(id),
	n          INTEGER NOT NULL,
	overall    REAL NOT NULL,
	scores     TEXT NOT NULL DEFAULT '{}',
	outcome    TEXT NOT NULL,
	action     TEXT,
	created_at TEXT NOT NULL,
	UNIQUE(run_id, n)
);

CREATE TABLE IF NOT EXISTS defects (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	iteration_id INTEGER NOT NULL REFERENCES iterations(id),
	pass         TEXT NOT NULL,
	source       TEXT NOT NULL,
	type         TEXT NOT NULL,
	severity     REAL NOT NULL DEFAULT 0,
	description  TEXT NOT NULL DEFAULT '',
	fix_target   TEXT,
	fix_hint     TEXT
);

CREATE TABLE IF NOT EXISTS guardrails (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id       INTEGER NOT NULL REFERENCES runs(id),
	trigger_text TEXT NOT NULL,
	instruction  TEXT NOT NULL,
	iteration    INTEGER NOT NULL,
	created_at   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_iterations_run ON iterations(run_id);
CREATE INDEX IF NOT EXISTS idx_defects_iteration ON defects(iteration_id);
CREATE INDEX IF NOT EXISTS idx_guardrails_run ON guardrails(run_id);
`
