// Package sqlitestore is a SQL-backed Backend implementation, storing
// entries and their DAG indices in a SQLite database opened through
// github.com/ncruces/go-sqlite3 — the pure-Go driver the teacher repo
// already depends on (go.mod) rather than a cgo one.
//
// Grounded in the shape of
// _examples/untoldecay-BeadsLog/internal/storage/sqlite: a package-level
// schema string executed with CREATE TABLE IF NOT EXISTS, a mutex-free
// design that trusts SQLite's own locking, and errors wrapped with the
// operation name the way the teacher's sqlite package does throughout
// its query files. Ancestor/merge-base/path queries use recursive CTEs
// per spec.md §6.1's own suggestion ("Tips maintenance and ancestor
// queries use recursive CTEs where supported").
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/latticedb/lattice/internal/backend"
	"github.com/latticedb/lattice/internal/entry"
)

// Store is a SQLite-backed Backend.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) a SQLite database at path and ensures
// its schema exists. path may be ":memory:" for an ephemeral store.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // single-writer file-backed SQLite (teacher's internal/storage/sqlite convention)

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = OFF"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitestore: pragma foreign_keys: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitestore: pragma journal_mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitestore: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

var _ backend.Backend = (*Store)(nil)

// --- Put / Get -------------------------------------------------------

func (s *Store) Put(ctx context.Context, status backend.VerificationStatus, e *entry.Entry) error {
	id, err := e.ID()
	if err != nil {
		return backend.NewError(backend.KindInvalidEntry, "compute id", err)
	}

	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT 1 FROM entries WHERE id = ?`, string(id)).Scan(&exists); err == nil {
		_, err := s.db.ExecContext(ctx, `UPDATE entries SET verification_status = ? WHERE id = ?`, int(status), string(id))
		if err != nil {
			return fmt.Errorf("sqlitestore: update status for %s: %w", id, err)
		}
		return nil
	} else if err != sql.ErrNoRows {
		return fmt.Errorf("sqlitestore: lookup %s: %w", id, err)
	}

	isRoot := e.IsRoot()
	tree := e.Tree
	if isRoot {
		tree = id
	}

	for name, st := range e.Subtrees {
		for _, p := range st.Parents {
			var ok int
			if err := s.db.QueryRowContext(ctx, `SELECT 1 FROM entries WHERE id = ?`, string(p)).Scan(&ok); err == sql.ErrNoRows {
				return backend.NewError(backend.KindInvalidEntry,
					fmt.Sprintf("sub-store %q parent %s not present", name, p), nil)
			} else if err != nil {
				return fmt.Errorf("sqlitestore: lookup parent %s: %w", p, err)
			}
		}
	}

	txn, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlitestore: begin put: %w", err)
	}
	defer txn.Rollback()

	treeHeight, err := s.nextTreeHeight(ctx, txn, e.Parents)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("sqlitestore: marshal entry %s: %w", id, err)
	}

	if _, err := txn.ExecContext(ctx,
		`INSERT INTO entries (id, tree_id, is_root, verification_status, tree_height, entry_json) VALUES (?, ?, ?, ?, ?, ?)`,
		string(id), string(tree), boolToInt(isRoot), int(status), treeHeight, string(raw),
	); err != nil {
		return fmt.Errorf("sqlitestore: insert entry %s: %w", id, err)
	}

	if isRoot {
		if _, err := txn.ExecContext(ctx, `INSERT OR IGNORE INTO roots (entry_id) VALUES (?)`, string(id)); err != nil {
			return fmt.Errorf("sqlitestore: insert root %s: %w", id, err)
		}
	}

	for _, p := range e.Parents {
		if _, err := txn.ExecContext(ctx, `INSERT OR IGNORE INTO tree_parents (child_id, parent_id) VALUES (?, ?)`, string(id), string(p)); err != nil {
			return fmt.Errorf("sqlitestore: insert tree_parents %s->%s: %w", id, p, err)
		}
		if _, err := txn.ExecContext(ctx, `DELETE FROM tips WHERE tree_id = ? AND store_name = '' AND entry_id = ?`, string(tree), string(p)); err != nil {
			return fmt.Errorf("sqlitestore: clear tree tip %s: %w", p, err)
		}
	}
	hasTreeChild, err := hasChild(ctx, txn, `SELECT 1 FROM tree_parents WHERE parent_id = ?`, id)
	if err != nil {
		return err
	}
	if !hasTreeChild {
		if _, err := txn.ExecContext(ctx, `INSERT OR IGNORE INTO tips (entry_id, tree_id, store_name) VALUES (?, ?, '')`, string(id), string(tree)); err != nil {
			return fmt.Errorf("sqlitestore: insert tree tip %s: %w", id, err)
		}
	}

	for name, st := range e.Subtrees {
		storeHeight, err := s.nextStoreHeight(ctx, txn, name, st.Parents)
		if err != nil {
			return err
		}
		if _, err := txn.ExecContext(ctx, `INSERT INTO store_memberships (entry_id, store_name) VALUES (?, ?)`, string(id), name); err != nil {
			return fmt.Errorf("sqlitestore: insert store_membership %s/%s: %w", id, name, err)
		}
		if _, err := txn.ExecContext(ctx, `INSERT INTO subtrees (entry_id, store_name, height) VALUES (?, ?, ?)`, string(id), name, storeHeight); err != nil {
			return fmt.Errorf("sqlitestore: insert subtree height %s/%s: %w", id, name, err)
		}
		for _, p := range st.Parents {
			if _, err := txn.ExecContext(ctx, `INSERT OR IGNORE INTO store_parents (child_id, parent_id, store_name) VALUES (?, ?, ?)`, string(id), string(p), name); err != nil {
				return fmt.Errorf("sqlitestore: insert store_parents %s->%s/%s: %w", id, p, name, err)
			}
			if _, err := txn.ExecContext(ctx, `DELETE FROM tips WHERE tree_id = ? AND store_name = ? AND entry_id = ?`, string(tree), name, string(p)); err != nil {
				return fmt.Errorf("sqlitestore: clear store tip %s/%s: %w", p, name, err)
			}
		}
		hasStoreChild, err := hasStoreChild(ctx, txn, id, name)
		if err != nil {
			return err
		}
		if !hasStoreChild {
			if _, err := txn.ExecContext(ctx, `INSERT OR IGNORE INTO tips (entry_id, tree_id, store_name) VALUES (?, ?, ?)`, string(id), string(tree), name); err != nil {
				return fmt.Errorf("sqlitestore: insert store tip %s/%s: %w", id, name, err)
			}
		}
	}

	return txn.Commit()
}

func hasChild(ctx context.Context, txn *sql.Tx, query string, id entry.ID) (bool, error) {
	var x int
	err := txn.QueryRowContext(ctx, query, string(id)).Scan(&x)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sqlitestore: check children of %s: %w", id, err)
	}
	return true, nil
}

func hasStoreChild(ctx context.Context, txn *sql.Tx, id entry.ID, store string) (bool, error) {
	var x int
	err := txn.QueryRowContext(ctx,
		`SELECT 1 FROM store_parents WHERE parent_id = ? AND store_name = ?`, string(id), store).Scan(&x)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sqlitestore: check store children of %s/%s: %w", id, store, err)
	}
	return true, nil
}

func (s *Store) nextTreeHeight(ctx context.Context, txn *sql.Tx, parents []entry.ID) (int64, error) {
	var heights []int64
	for _, p := range parents {
		var h int64
		if err := txn.QueryRowContext(ctx, `SELECT tree_height FROM entries WHERE id = ?`, string(p)).Scan(&h); err == nil {
			heights = append(heights, h)
		} else if err != sql.ErrNoRows {
			return 0, fmt.Errorf("sqlitestore: read parent height %s: %w", p, err)
		}
	}
	return entry.HeightIncremental.NextHeight(heights, 0), nil
}

func (s *Store) nextStoreHeight(ctx context.Context, txn *sql.Tx, store string, parents []entry.ID) (int64, error) {
	var heights []int64
	for _, p := range parents {
		var h int64
		err := txn.QueryRowContext(ctx, `SELECT height FROM subtrees WHERE entry_id = ? AND store_name = ?`, string(p), store).Scan(&h)
		if err == nil {
			heights = append(heights, h)
		} else if err != sql.ErrNoRows {
			return 0, fmt.Errorf("sqlitestore: read parent store height %s/%s: %w", p, store, err)
		}
	}
	return entry.HeightIncremental.NextHeight(heights, 0), nil
}

func (s *Store) Get(ctx context.Context, id entry.ID) (*entry.Entry, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT entry_json FROM entries WHERE id = ?`, string(id)).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, backend.NewError(backend.KindNotFound, string(id), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: get %s: %w", id, err)
	}
	var e entry.Entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return nil, fmt.Errorf("sqlitestore: unmarshal %s: %w", id, err)
	}
	return &e, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (s *Store) idsFromRows(rows *sql.Rows) ([]entry.ID, error) {
	defer rows.Close()
	var ids []entry.ID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlitestore: scan id: %w", err)
		}
		ids = append(ids, entry.ID(id))
	}
	return ids, rows.Err()
}

func (s *Store) GetTips(ctx context.Context, tree entry.ID) ([]entry.ID, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT t.entry_id FROM tips t JOIN entries e ON e.id = t.entry_id
		 WHERE t.tree_id = ? AND t.store_name = '' ORDER BY e.tree_height, t.entry_id`,
		string(tree))
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: get tips %s: %w", tree, err)
	}
	return s.idsFromRows(rows)
}

func (s *Store) GetStoreTips(ctx context.Context, tree entry.ID, store string) ([]entry.ID, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT t.entry_id FROM tips t JOIN subtrees s ON s.entry_id = t.entry_id AND s.store_name = t.store_name
		 WHERE t.tree_id = ? AND t.store_name = ? ORDER BY s.height, t.entry_id`,
		string(tree), store)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: get store tips %s/%s: %w", tree, store, err)
	}
	return s.idsFromRows(rows)
}

func (s *Store) AllRoots(ctx context.Context) ([]entry.ID, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT r.entry_id FROM roots r JOIN entries e ON e.id = r.entry_id ORDER BY e.tree_height, r.entry_id`)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: all roots: %w", err)
	}
	return s.idsFromRows(rows)
}

func (s *Store) GetTree(ctx context.Context, tree entry.ID) ([]entry.ID, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM entries WHERE tree_id = ? OR id = ? ORDER BY tree_height, id`,
		string(tree), string(tree))
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: get tree %s: %w", tree, err)
	}
	return s.idsFromRows(rows)
}

func (s *Store) GetStore(ctx context.Context, tree entry.ID, store string) ([]entry.ID, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT e.id FROM entries e JOIN store_memberships m ON m.entry_id = e.id
		 JOIN subtrees s ON s.entry_id = e.id AND s.store_name = m.store_name
		 WHERE (e.tree_id = ? OR e.id = ?) AND m.store_name = ?
		 ORDER BY s.height, e.id`,
		string(tree), string(tree), store)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: get store %s/%s: %w", tree, store, err)
	}
	return s.idsFromRows(rows)
}

func (s *Store) CountEntries(ctx context.Context, tree entry.ID) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM entries WHERE tree_id = ? OR id = ?`, string(tree), string(tree)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlitestore: count entries %s: %w", tree, err)
	}
	return n, nil
}

func (s *Store) GetSortedStoreParents(ctx context.Context, tree entry.ID, id entry.ID, store string) ([]entry.ID, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT sp.parent_id FROM store_parents sp
		 LEFT JOIN subtrees s ON s.entry_id = sp.parent_id AND s.store_name = sp.store_name
		 WHERE sp.child_id = ? AND sp.store_name = ?
		 ORDER BY COALESCE(s.height, 0), sp.parent_id`,
		string(id), store)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: get sorted store parents %s/%s: %w", id, store, err)
	}
	return s.idsFromRows(rows)
}

func (s *Store) GetHeight(ctx context.Context, id entry.ID) (int64, error) {
	var h int64
	err := s.db.QueryRowContext(ctx, `SELECT tree_height FROM entries WHERE id = ?`, string(id)).Scan(&h)
	if err == sql.ErrNoRows {
		return 0, backend.NewError(backend.KindNotFound, string(id), nil)
	}
	if err != nil {
		return 0, fmt.Errorf("sqlitestore: get height %s: %w", id, err)
	}
	return h, nil
}

func (s *Store) GetStoreHeight(ctx context.Context, id entry.ID, store string) (int64, error) {
	var h int64
	err := s.db.QueryRowContext(ctx, `SELECT height FROM subtrees WHERE entry_id = ? AND store_name = ?`, string(id), store).Scan(&h)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("sqlitestore: get store height %s/%s: %w", id, store, err)
	}
	return h, nil
}
