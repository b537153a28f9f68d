package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS request_history (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	sender       TEXT NOT NULL,
	requested_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_request_history_sender ON request_history(sender);
CREATE INDEX IF NOT EXISTS idx_request_history_requested_at ON request_history(requested_at);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE TABLE IF NOT EXISTS processed_messages (
	id           TEXT PRIMARY KEY,
	message_id   TEXT NOT NULL,
	sender       TEXT NOT NULL,
	subject      TEXT NOT NULL DEFAULT '',
	outcome      TEXT NOT NULL CHECK(outcome IN ('replied', 'dropped', 'rate_limited', 'send_failed', 'failed')),
	detail       TEXT NOT NULL DEFAULT '',
	processed_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_processed_messages_processed_at ON processed_messages(processed_at);
CREATE INDEX IF NOT EXISTS idx_processed_messages_sender ON processed_messages(sender);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
