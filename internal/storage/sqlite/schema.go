package sqlite

// Schema is the complete DDL for the primary store. It is idempotent so
// it can be applied on every open.
//
// messages is the append-only chat log; messages_fts mirrors its content
// column via triggers. memories and the graph tables (entities, facts,
// edges, memory_links) hold the derived knowledge graph written by the
// summarization engine; memories_fts mirrors the summary column.
// Timestamps are unix seconds throughout.
const Schema = `
CREATE TABLE IF NOT EXISTS messages (
	id      TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	role    TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
	content TEXT NOT NULL,
	ts      INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_user_ts ON messages(user_id, ts);

CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(
	content,
	content='messages',
	content_rowid='rowid'
);

CREATE TRIGGER IF NOT EXISTS messages_fts_insert AFTER INSERT ON messages BEGIN
	INSERT INTO messages_fts(rowid, content) VALUES (new.rowid, new.content);
END;

CREATE TRIGGER IF NOT EXISTS messages_fts_delete AFTER DELETE ON messages BEGIN
	INSERT INTO messages_fts(messages_fts, rowid, content) VALUES ('delete', old.rowid, old.content);
END;

CREATE TABLE IF NOT EXISTS memories (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	summary    TEXT NOT NULL,
	tags       TEXT,
	salience   REAL,
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_memories_user_created ON memories(user_id, created_at);

CREATE VIRTUAL TABLE IF NOT EXISTS memories_fts USING fts5(
	summary,
	content='memories',
	content_rowid='rowid'
);

CREATE TRIGGER IF NOT EXISTS memories_fts_insert AFTER INSERT ON memories BEGIN
	INSERT INTO memories_fts(rowid, summary) VALUES (new.rowid, new.summary);
END;

CREATE TRIGGER IF NOT EXISTS memories_fts_delete AFTER DELETE ON memories BEGIN
	INSERT INTO memories_fts(memories_fts, rowid, summary) VALUES ('delete', old.rowid, old.summary);
END;

CREATE TABLE IF NOT EXISTS entities (
	id           TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL,
	name         TEXT NOT NULL,
	entity_type  TEXT,
	canonical_id TEXT
);

CREATE INDEX IF NOT EXISTS idx_entities_user_name ON entities(user_id, name);

CREATE TABLE IF NOT EXISTS facts (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	subject    TEXT NOT NULL,
	predicate  TEXT NOT NULL,
	object     TEXT NOT NULL,
	confidence REAL,
	source     TEXT
);

CREATE INDEX IF NOT EXISTS idx_facts_user ON facts(user_id);

CREATE TABLE IF NOT EXISTS edges (
	id            TEXT PRIMARY KEY,
	user_id       TEXT NOT NULL,
	src_node_type TEXT NOT NULL,
	src_node_id   TEXT NOT NULL,
	dst_node_type TEXT NOT NULL,
	dst_node_id   TEXT NOT NULL,
	edge_type     TEXT NOT NULL,
	weight        REAL NOT NULL DEFAULT 1.0,
	created_at    INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_edges_user_src ON edges(user_id, src_node_id);

CREATE TABLE IF NOT EXISTS memory_links (
	id         TEXT PRIMARY KEY,
	memory_id  TEXT NOT NULL,
	node_type  TEXT NOT NULL,
	node_id    TEXT NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_memory_links_memory ON memory_links(memory_id);
`
