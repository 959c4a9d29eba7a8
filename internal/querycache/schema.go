package querycache

// Schema version tracking:
// 1 - initial schema
const schemaVersion = 1

// Schema is the full projection schema. The projection is disposable: it can
// always be rebuilt by replaying the log from empty, so there is no data
// migration story beyond CREATE IF NOT EXISTS plus user_version bumps.
const Schema = `
CREATE TABLE IF NOT EXISTS applied_events (
	event_id   TEXT PRIMARY KEY,
	event_type TEXT NOT NULL,
	device_id  TEXT NOT NULL DEFAULT '',
	timestamp  INTEGER NOT NULL,
	applied_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS workspaces (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	description   TEXT NOT NULL DEFAULT '',
	root_path     TEXT NOT NULL DEFAULT '',
	created       INTEGER NOT NULL,
	last_accessed INTEGER NOT NULL,
	is_active     INTEGER NOT NULL DEFAULT 0,
	context       TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_workspaces_accessed ON workspaces(last_accessed);

CREATE TABLE IF NOT EXISTS sessions (
	id           TEXT PRIMARY KEY,
	workspace_id TEXT NOT NULL,
	name         TEXT NOT NULL,
	description  TEXT NOT NULL DEFAULT '',
	start_time   INTEGER NOT NULL,
	end_time     INTEGER NOT NULL DEFAULT 0,
	is_active    INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_sessions_workspace ON sessions(workspace_id);
CREATE INDEX IF NOT EXISTS idx_sessions_start ON sessions(start_time);

CREATE TABLE IF NOT EXISTS states (
	id           TEXT PRIMARY KEY,
	session_id   TEXT NOT NULL,
	workspace_id TEXT NOT NULL,
	name         TEXT NOT NULL,
	description  TEXT NOT NULL DEFAULT '',
	created      INTEGER NOT NULL,
	tags         TEXT NOT NULL DEFAULT '',
	content      TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_states_session ON states(session_id);
CREATE INDEX IF NOT EXISTS idx_states_workspace ON states(workspace_id);

CREATE TABLE IF NOT EXISTS traces (
	id           TEXT PRIMARY KEY,
	session_id   TEXT NOT NULL,
	workspace_id TEXT NOT NULL,
	timestamp    INTEGER NOT NULL,
	type         TEXT NOT NULL DEFAULT '',
	content      TEXT NOT NULL DEFAULT '',
	metadata     TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_traces_session ON traces(session_id);
CREATE INDEX IF NOT EXISTS idx_traces_workspace ON traces(workspace_id);
CREATE INDEX IF NOT EXISTS idx_traces_timestamp ON traces(timestamp);

CREATE TABLE IF NOT EXISTS conversations (
	id            TEXT PRIMARY KEY,
	title         TEXT NOT NULL DEFAULT '',
	created       INTEGER NOT NULL,
	updated       INTEGER NOT NULL,
	space         TEXT NOT NULL DEFAULT '',
	message_count INTEGER NOT NULL DEFAULT 0,
	workspace_id  TEXT NOT NULL DEFAULT '',
	session_id    TEXT NOT NULL DEFAULT '',
	parent_conversation_id TEXT NOT NULL DEFAULT '',
	parent_message_id      TEXT NOT NULL DEFAULT '',
	branch_type            TEXT NOT NULL DEFAULT '',
	meta          TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_conversations_updated ON conversations(updated);
CREATE INDEX IF NOT EXISTS idx_conversations_parent ON conversations(parent_conversation_id);

CREATE TABLE IF NOT EXISTS messages (
	id              TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL,
	role            TEXT NOT NULL,
	content         TEXT NOT NULL DEFAULT '',
	timestamp       INTEGER NOT NULL,
	sequence_number INTEGER NOT NULL,
	state           TEXT NOT NULL DEFAULT 'draft',
	tool_calls      TEXT NOT NULL DEFAULT '',
	reasoning       TEXT NOT NULL DEFAULT '',
	alternatives    TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, sequence_number);
`
