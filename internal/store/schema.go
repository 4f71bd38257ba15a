package store

// SchemaVersion tracks the shape of the bootstrapped schema. Bumping it
// has no migration effect today (see Bootstrap); it exists so a future
// migration step has a version to branch on.
const SchemaVersion = 1

// schema is applied on every startup. CREATE TABLE IF NOT EXISTS makes
// bootstrap idempotent on an already-initialised database file — no
// destructive migrations are ever attempted.
const schema = `
CREATE TABLE IF NOT EXISTS connections (
	id                      TEXT PRIMARY KEY,
	name                    TEXT NOT NULL,
	service_key             TEXT NOT NULL,
	category                TEXT NOT NULL DEFAULT '',
	base_url                TEXT NOT NULL DEFAULT '',
	api_key_enc             TEXT NOT NULL DEFAULT '',
	token_enc               TEXT NOT NULL DEFAULT '',
	cred_file_path_enc      TEXT NOT NULL DEFAULT '',
	enabled                 INTEGER NOT NULL DEFAULT 1,
	daily_limit_usd         REAL NOT NULL DEFAULT 0,
	weekly_limit_usd        REAL NOT NULL DEFAULT 0,
	monthly_limit_usd       REAL NOT NULL DEFAULT 0,
	budget_override_until   TEXT,
	is_default              INTEGER NOT NULL DEFAULT 0,
	created_at              TEXT NOT NULL,
	updated_at              TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS cost_configs (
	id                    TEXT PRIMARY KEY,
	connection_id         TEXT REFERENCES connections(id) ON DELETE CASCADE,
	model_pattern         TEXT NOT NULL,
	input_usd_per_million REAL NOT NULL DEFAULT 0,
	output_usd_per_million REAL NOT NULL DEFAULT 0,
	updated_at            TEXT NOT NULL,
	UNIQUE(connection_id, model_pattern)
);

CREATE TABLE IF NOT EXISTS budget_limits (
	id                INTEGER PRIMARY KEY CHECK (id = 1),
	daily_limit_usd   REAL NOT NULL DEFAULT 5,
	weekly_limit_usd  REAL NOT NULL DEFAULT 25,
	monthly_limit_usd REAL NOT NULL DEFAULT 80,
	updated_at        TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS requests (
	id                TEXT PRIMARY KEY,
	created_at        TEXT NOT NULL,
	model             TEXT NOT NULL,
	provider          TEXT NOT NULL,
	connection_id     TEXT NOT NULL DEFAULT '',
	prompt_tokens     INTEGER NOT NULL DEFAULT 0,
	completion_tokens INTEGER NOT NULL DEFAULT 0,
	cost_usd          REAL NOT NULL DEFAULT 0,
	latency_ms        INTEGER NOT NULL DEFAULT 0,
	success           INTEGER NOT NULL,
	error             TEXT NOT NULL DEFAULT '',
	workflow_name     TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_requests_connection_created ON requests(connection_id, created_at);
CREATE INDEX IF NOT EXISTS idx_requests_created ON requests(created_at);

CREATE TABLE IF NOT EXISTS api_calls (
	id            TEXT PRIMARY KEY,
	created_at    TEXT NOT NULL,
	service_key   TEXT NOT NULL,
	operation     TEXT NOT NULL,
	endpoint      TEXT NOT NULL,
	method        TEXT NOT NULL,
	status_code   INTEGER NOT NULL DEFAULT 0,
	latency_ms    INTEGER NOT NULL DEFAULT 0,
	cost_usd      REAL NOT NULL DEFAULT 0,
	metadata_json TEXT NOT NULL DEFAULT '{}',
	success       INTEGER NOT NULL,
	error         TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_api_calls_created ON api_calls(created_at);

CREATE TABLE IF NOT EXISTS alerts (
	id            TEXT PRIMARY KEY,
	created_at    TEXT NOT NULL,
	resolved_at   TEXT,
	dismissed_at  TEXT,
	connection_id TEXT NOT NULL,
	kind          TEXT NOT NULL,
	severity      TEXT NOT NULL,
	message       TEXT NOT NULL,
	metadata_json TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_alerts_active ON alerts(connection_id, kind, resolved_at, dismissed_at);
`

// Bootstrap creates any missing tables and indexes. It is safe to run
// on every process start, including against an already-initialised
// database.
func (s *Store) Bootstrap() error {
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return s.ensureBudgetLimitsRow()
}

func (s *Store) ensureBudgetLimitsRow() error {
	_, err := s.db.Exec(`INSERT OR IGNORE INTO budget_limits (id, daily_limit_usd, weekly_limit_usd, monthly_limit_usd, updated_at)
		VALUES (1, 5, 25, 80, ?)`, nowRFC3339())
	return err
}
