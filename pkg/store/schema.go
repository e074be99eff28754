package store

const schemaVersion = 1

// schemaSQL creates every table in the database schema, including the
// FTS5 external-content table and its sync triggers.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY,
	applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS memories (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	profile TEXT NOT NULL,
	content TEXT NOT NULL,
	summary TEXT NOT NULL DEFAULT '',
	tags_json TEXT NOT NULL DEFAULT '[]',
	metadata_json TEXT NOT NULL DEFAULT '{}',
	project TEXT NOT NULL DEFAULT '',
	importance INTEGER NOT NULL DEFAULT 5,
	tier INTEGER NOT NULL DEFAULT 1,
	parent_id INTEGER,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	last_accessed DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	access_count INTEGER NOT NULL DEFAULT 0,
	FOREIGN KEY (parent_id) REFERENCES memories(id) ON DELETE SET NULL
);

CREATE INDEX IF NOT EXISTS idx_memories_profile_created ON memories(profile, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_memories_profile_importance ON memories(profile, importance DESC);
CREATE INDEX IF NOT EXISTS idx_memories_profile_tier ON memories(profile, tier);

CREATE VIRTUAL TABLE IF NOT EXISTS memories_fts USING fts5(
	content, summary, tags,
	content='memories', content_rowid='id'
);

CREATE TRIGGER IF NOT EXISTS memories_ai AFTER INSERT ON memories BEGIN
	INSERT INTO memories_fts(rowid, content, summary, tags)
	VALUES (new.id, new.content, new.summary, new.tags_json);
END;
CREATE TRIGGER IF NOT EXISTS memories_ad AFTER DELETE ON memories BEGIN
	INSERT INTO memories_fts(memories_fts, rowid, content, summary, tags)
	VALUES ('delete', old.id, old.content, old.summary, old.tags_json);
END;
CREATE TRIGGER IF NOT EXISTS memories_au AFTER UPDATE ON memories BEGIN
	INSERT INTO memories_fts(memories_fts, rowid, content, summary, tags)
	VALUES ('delete', old.id, old.content, old.summary, old.tags_json);
	INSERT INTO memories_fts(rowid, content, summary, tags)
	VALUES (new.id, new.content, new.summary, new.tags_json);
END;

CREATE TABLE IF NOT EXISTS memory_archive (
	memory_id INTEGER PRIMARY KEY,
	full_content TEXT NOT NULL,
	archived_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (memory_id) REFERENCES memories(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS graph_nodes (
	memory_id INTEGER PRIMARY KEY,
	profile TEXT NOT NULL,
	entities_json TEXT NOT NULL DEFAULT '[]',
	vector_blob BLOB,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (memory_id) REFERENCES memories(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_graph_nodes_profile ON graph_nodes(profile);

CREATE TABLE IF NOT EXISTS graph_edges (
	source_id INTEGER NOT NULL,
	target_id INTEGER NOT NULL,
	profile TEXT NOT NULL,
	weight REAL NOT NULL,
	kind TEXT NOT NULL,
	shared_entities_json TEXT NOT NULL DEFAULT '[]',
	PRIMARY KEY (source_id, target_id),
	FOREIGN KEY (source_id) REFERENCES memories(id) ON DELETE CASCADE,
	FOREIGN KEY (target_id) REFERENCES memories(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_graph_edges_profile ON graph_edges(profile);
CREATE INDEX IF NOT EXISTS idx_graph_edges_target ON graph_edges(target_id);

CREATE TABLE IF NOT EXISTS graph_clusters (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	profile TEXT NOT NULL,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	member_count INTEGER NOT NULL DEFAULT 0,
	avg_importance REAL NOT NULL DEFAULT 0,
	parent_cluster_id INTEGER,
	depth INTEGER NOT NULL DEFAULT 0,
	FOREIGN KEY (parent_cluster_id) REFERENCES graph_clusters(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_graph_clusters_profile ON graph_clusters(profile);

CREATE TABLE IF NOT EXISTS cluster_members (
	cluster_id INTEGER NOT NULL,
	memory_id INTEGER NOT NULL,
	PRIMARY KEY (cluster_id, memory_id),
	FOREIGN KEY (cluster_id) REFERENCES graph_clusters(id) ON DELETE CASCADE,
	FOREIGN KEY (memory_id) REFERENCES memories(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS identity_patterns (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	profile TEXT NOT NULL,
	type TEXT NOT NULL,
	category TEXT NOT NULL,
	value TEXT NOT NULL,
	confidence REAL NOT NULL DEFAULT 0,
	evidence_count INTEGER NOT NULL DEFAULT 0,
	first_seen DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	last_updated DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (profile, type, category, value)
);

CREATE INDEX IF NOT EXISTS idx_identity_patterns_profile ON identity_patterns(profile);

CREATE TABLE IF NOT EXISTS pattern_examples (
	pattern_id INTEGER NOT NULL,
	memory_id INTEGER NOT NULL,
	excerpt TEXT NOT NULL,
	relevance REAL NOT NULL DEFAULT 0,
	PRIMARY KEY (pattern_id, memory_id),
	FOREIGN KEY (pattern_id) REFERENCES identity_patterns(id) ON DELETE CASCADE,
	FOREIGN KEY (memory_id) REFERENCES memories(id) ON DELETE CASCADE
);
`

// migrate applies idempotent forward migrations driven by schema_version.
// Downgrades are rejected: a stored version newer than schemaVersion means
// this binary is older than the database it's opening.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(schemaSQL); err != nil {
		return err
	}

	row := s.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`)
	var current int
	if err := row.Scan(&current); err != nil {
		return err
	}
	if current > schemaVersion {
		return ErrSchemaDowngrade
	}
	if current < schemaVersion {
		if _, err := s.db.Exec(`INSERT INTO schema_version (version) VALUES (?)`, schemaVersion); err != nil {
			return err
		}
	}
	return nil
}
