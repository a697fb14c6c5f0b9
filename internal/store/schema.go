package store

// schema is applied once at startup. It is idempotent (CREATE TABLE IF NOT
// EXISTS) so a process can be restarted against an existing database file
// without a separate migration runner.
const schema = `
CREATE TABLE IF NOT EXISTS projects (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	state       INTEGER NOT NULL,
	policy_json TEXT NOT NULL,
	dag_json    TEXT NOT NULL,
	memory_json TEXT NOT NULL DEFAULT '{}',
	usage_json  TEXT NOT NULL DEFAULT '{}',
	created_at  INTEGER NOT NULL,
	updated_at  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS tasks (
	id              TEXT NOT NULL,
	project_id      TEXT NOT NULL REFERENCES projects(id),
	state           INTEGER NOT NULL,
	description     TEXT NOT NULL DEFAULT '',
	priority        INTEGER NOT NULL DEFAULT 0,
	wave            INTEGER NOT NULL DEFAULT 0,
	deps_json       TEXT NOT NULL DEFAULT '[]',
	model           TEXT NOT NULL DEFAULT '',
	task_type       TEXT NOT NULL DEFAULT '',
	complexity      TEXT NOT NULL DEFAULT '',
	retry_count     INTEGER NOT NULL DEFAULT 0,
	max_retries     INTEGER NOT NULL DEFAULT 0,
	retry_deadline  INTEGER NOT NULL DEFAULT 0,
	output          TEXT NOT NULL DEFAULT '',
	partial_result  INTEGER NOT NULL DEFAULT 0,
	error_json      TEXT,
	estimated_json  TEXT NOT NULL DEFAULT '{}',
	actual_json     TEXT NOT NULL DEFAULT '{}',
	created_at      INTEGER NOT NULL DEFAULT 0,
	started_at      INTEGER NOT NULL DEFAULT 0,
	completed_at    INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (project_id, id)
);

CREATE TABLE IF NOT EXISTS usage_records (
	id          TEXT PRIMARY KEY,
	project_id  TEXT NOT NULL REFERENCES projects(id),
	task_id     TEXT NOT NULL,
	model       TEXT NOT NULL,
	tokens      INTEGER NOT NULL,
	cost_amount REAL NOT NULL,
	currency    TEXT NOT NULL,
	period_key  TEXT NOT NULL,
	recorded_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS budget_periods (
	project_id TEXT NOT NULL REFERENCES projects(id),
	kind       INTEGER NOT NULL,
	period_key TEXT NOT NULL,
	limit_amount   REAL NOT NULL,
	limit_currency TEXT NOT NULL,
	reserved   REAL NOT NULL DEFAULT 0,
	spent      REAL NOT NULL DEFAULT 0,
	PRIMARY KEY (project_id, kind, period_key)
);

CREATE TABLE IF NOT EXISTS checkpoints (
	id          TEXT PRIMARY KEY,
	project_id  TEXT NOT NULL REFERENCES projects(id),
	task_id     TEXT NOT NULL,
	state       INTEGER NOT NULL,
	reason      TEXT NOT NULL DEFAULT '',
	created_at  INTEGER NOT NULL,
	resolved_at INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS events (
	id          TEXT PRIMARY KEY,
	project_id  TEXT NOT NULL,
	type        TEXT NOT NULL,
	payload_json TEXT NOT NULL DEFAULT '{}',
	created_at  INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tasks_project ON tasks(project_id);
CREATE INDEX IF NOT EXISTS idx_events_project ON events(project_id, created_at);
CREATE INDEX IF NOT EXISTS idx_checkpoints_project ON checkpoints(project_id, state);
`
