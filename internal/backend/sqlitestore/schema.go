package sqlitestore

// schema creates the tables a fresh database needs, mirroring the
// table names spec.md §6.1 names explicitly. Grounded in the texture of
// _examples/untoldecay-BeadsLog/internal/storage/sqlite/schema.go: one
// CREATE TABLE IF NOT EXISTS block per concern plus its indexes,
// executed once up front rather than column-by-column migrated, since
// (unlike the teacher's issue tracker) this schema has no accumulated
// migration history to replay.
const schema = `
CREATE TABLE IF NOT EXISTS entries (
	id                   TEXT PRIMARY KEY,
	tree_id              TEXT NOT NULL,
	is_root              INTEGER NOT NULL DEFAULT 0,
	verification_status  INTEGER NOT NULL DEFAULT 0,
	tree_height          INTEGER NOT NULL DEFAULT 0,
	entry_json           TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_entries_tree ON entries(tree_id);
CREATE INDEX IF NOT EXISTS idx_entries_tree_height ON entries(tree_id, tree_height);
CREATE INDEX IF NOT EXISTS idx_entries_status ON entries(tree_id, verification_status);

CREATE TABLE IF NOT EXISTS tree_parents (
	child_id  TEXT NOT NULL,
	parent_id TEXT NOT NULL,
	PRIMARY KEY (child_id, parent_id)
);

CREATE INDEX IF NOT EXISTS idx_tree_parents_parent ON tree_parents(parent_id);

CREATE TABLE IF NOT EXISTS store_memberships (
	entry_id   TEXT NOT NULL,
	store_name TEXT NOT NULL,
	PRIMARY KEY (entry_id, store_name)
);

CREATE INDEX IF NOT EXISTS idx_store_memberships_store ON store_memberships(store_name);

CREATE TABLE IF NOT EXISTS store_parents (
	child_id   TEXT NOT NULL,
	parent_id  TEXT NOT NULL,
	store_name TEXT NOT NULL,
	PRIMARY KEY (child_id, parent_id, store_name)
);

CREATE INDEX IF NOT EXISTS idx_store_parents_parent ON store_parents(parent_id, store_name);
CREATE INDEX IF NOT EXISTS idx_store_parents_child ON store_parents(child_id, store_name);

-- store_name = '' is the tree-level tip sentinel (spec.md §6.1).
CREATE TABLE IF NOT EXISTS tips (
	entry_id   TEXT NOT NULL,
	tree_id    TEXT NOT NULL,
	store_name TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (tree_id, store_name, entry_id)
);

CREATE TABLE IF NOT EXISTS subtrees (
	entry_id   TEXT NOT NULL,
	store_name TEXT NOT NULL,
	height     INTEGER NOT NULL,
	PRIMARY KEY (entry_id, store_name)
);

CREATE TABLE IF NOT EXISTS crdt_cache (
	entry_id   TEXT NOT NULL,
	store_name TEXT NOT NULL,
	state      BLOB NOT NULL,
	PRIMARY KEY (entry_id, store_name)
);

CREATE TABLE IF NOT EXISTS instance_metadata (
	singleton INTEGER PRIMARY KEY CHECK (singleton = 1),
	data      TEXT NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS roots (
	entry_id TEXT PRIMARY KEY
);
`
