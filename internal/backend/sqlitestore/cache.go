package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/latticedb/lattice/internal/backend"
	"github.com/latticedb/lattice/internal/entry"
)

func (s *Store) CacheCRDTState(ctx context.Context, id entry.ID, store string, state []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO crdt_cache (entry_id, store_name, state) VALUES (?, ?, ?)
		 ON CONFLICT(entry_id, store_name) DO UPDATE SET state = excluded.state`,
		string(id), store, state)
	if err != nil {
		return fmt.Errorf("sqlitestore: cache crdt state %s/%s: %w", id, store, err)
	}
	return nil
}

func (s *Store) GetCachedCRDTState(ctx context.Context, id entry.ID, store string) ([]byte, bool, error) {
	var state []byte
	err := s.db.QueryRowContext(ctx, `SELECT state FROM crdt_cache WHERE entry_id = ? AND store_name = ?`, string(id), store).Scan(&state)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("sqlitestore: get cached crdt state %s/%s: %w", id, store, err)
	}
	return state, true, nil
}

func (s *Store) ClearCRDTCache(ctx context.Context, tree entry.ID) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM crdt_cache WHERE entry_id IN (SELECT id FROM entries WHERE tree_id = ? OR id = ?)`,
		string(tree), string(tree))
	if err != nil {
		return fmt.Errorf("sqlitestore: clear crdt cache %s: %w", tree, err)
	}
	return nil
}

func (s *Store) GetVerificationStatus(ctx context.Context, id entry.ID) (backend.VerificationStatus, error) {
	var status int
	err := s.db.QueryRowContext(ctx, `SELECT verification_status FROM entries WHERE id = ?`, string(id)).Scan(&status)
	if err == sql.ErrNoRows {
		return 0, backend.NewError(backend.KindNotFound, string(id), nil)
	}
	if err != nil {
		return 0, fmt.Errorf("sqlitestore: get verification status %s: %w", id, err)
	}
	return backend.VerificationStatus(status), nil
}

func (s *Store) UpdateVerificationStatus(ctx context.Context, id entry.ID, status backend.VerificationStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE entries SET verification_status = ? WHERE id = ?`, int(status), string(id))
	if err != nil {
		return fmt.Errorf("sqlitestore: update verification status %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlitestore: rows affected %s: %w", id, err)
	}
	if n == 0 {
		return backend.NewError(backend.KindNotFound, string(id), nil)
	}
	return nil
}

func (s *Store) GetEntriesByVerificationStatus(ctx context.Context, tree entry.ID, status backend.VerificationStatus) ([]entry.ID, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM entries WHERE (tree_id = ? OR id = ?) AND verification_status = ? ORDER BY tree_height, id`,
		string(tree), string(tree), int(status))
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: entries by verification status %s: %w", tree, err)
	}
	return s.idsFromRows(rows)
}

func (s *Store) GetInstanceMetadata(ctx context.Context, key string) ([]byte, bool, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM instance_metadata WHERE singleton = 1`).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("sqlitestore: get instance metadata: %w", err)
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return nil, false, fmt.Errorf("sqlitestore: decode instance metadata: %w", err)
	}
	v, ok := m[key]
	if !ok {
		return nil, false, nil
	}
	return []byte(v), true, nil
}

func (s *Store) SetInstanceMetadata(ctx context.Context, key string, value []byte) error {
	txn, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlitestore: begin set instance metadata: %w", err)
	}
	defer txn.Rollback()

	var data string
	err = txn.QueryRowContext(ctx, `SELECT data FROM instance_metadata WHERE singleton = 1`).Scan(&data)
	m := map[string]string{}
	if err == nil {
		if err := json.Unmarshal([]byte(data), &m); err != nil {
			return fmt.Errorf("sqlitestore: decode instance metadata: %w", err)
		}
	} else if err != sql.ErrNoRows {
		return fmt.Errorf("sqlitestore: read instance metadata: %w", err)
	}
	m[key] = string(value)

	encoded, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("sqlitestore: encode instance metadata: %w", err)
	}
	if _, err := txn.ExecContext(ctx,
		`INSERT INTO instance_metadata (singleton, data) VALUES (1, ?)
		 ON CONFLICT(singleton) DO UPDATE SET data = excluded.data`, string(encoded)); err != nil {
		return fmt.Errorf("sqlitestore: write instance metadata: %w", err)
	}
	return txn.Commit()
}
