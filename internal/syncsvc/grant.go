package syncsvc

import (
	"context"
	"fmt"

	"github.com/latticedb/lattice/internal/auth"
	"github.com/latticedb/lattice/internal/crdt"
	"github.com/latticedb/lattice/internal/database"
	"github.com/latticedb/lattice/internal/txn"
)

// grantKey writes (or overwrites) an Active AuthKey named keyName in db's
// `_settings.auth`, signing the grant transaction with signerKeyName (the
// Admin identity performing the grant — auto-approved bootstrap signs
// with this Service's own adminKey; a manually-approved request signs
// with whichever Admin key the approver names).
//
// Grounded in _examples/untoldecay-BeadsLog's pattern of read-modify-write
// against a materialized settings doc (internal/storage's
// RunInTransaction callers), generalized here from SQL rows to a CRDT
// sub-store.
func grantKey(ctx context.Context, db *database.Database, signerKeyName, keyName, pubkey string, perm auth.Permission) error {
	snap, err := db.AuthSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("syncsvc: grant key: snapshot: %w", err)
	}
	snap.Keys[keyName] = auth.AuthKey{
		Pubkey:      pubkey,
		Permissions: perm,
		Status:      auth.Active,
	}

	rendered := crdt.NewDoc()
	txn.ApplyAuthSnapshot(rendered, snap)

	tx, err := db.NewTransaction(ctx)
	if err != nil {
		return fmt.Errorf("syncsvc: grant key: begin: %w", err)
	}
	tx.SetAuthKey(signerKeyName)
	store, err := tx.Store(database.SettingsStoreName)
	if err != nil {
		return fmt.Errorf("syncsvc: grant key: open settings: %w", err)
	}
	for _, k := range rendered.RawKeys() {
		v, _ := rendered.GetRaw(k)
		store.Set(k, v)
	}
	if _, err := tx.Commit(); err != nil {
		return fmt.Errorf("syncsvc: grant key: commit: %w", err)
	}
	return nil
}
