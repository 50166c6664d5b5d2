// Package database implements the per-tree facade described in
// SPEC_FULL.md §3.5: a thin handle binding a root ID, a shared Backend,
// and a default signing key, exposing tips/transaction/entry-retrieval
// operations without forcing callers through the Backend directly.
//
// Grounded in the root-facade pattern of
// _examples/untoldecay-BeadsLog/beads.go (a package that re-exports a
// narrow surface of an internal engine) and in
// _examples/original_source/crates/lib/src/tree.rs's `Tree` type, which
// this package's Database mirrors: a cheap-to-clone handle carrying the
// root id plus a shared backend reference.
package database

import (
	"context"
	"fmt"

	"github.com/latticedb/lattice/internal/auth"
	"github.com/latticedb/lattice/internal/backend"
	"github.com/latticedb/lattice/internal/crdt"
	"github.com/latticedb/lattice/internal/entry"
	"github.com/latticedb/lattice/internal/txn"
)

// SettingsStoreName is the distinguished sub-store carrying a database's
// auth configuration and arbitrary metadata (display name, height
// strategy). Exported so sibling packages (syncsvc) can address it
// without importing txn for the bare string constant.
const SettingsStoreName = "_settings"

// Database is a per-tree handle: a root ID, a shared Backend, and enough
// wiring (materializer, validator, key provider) to begin Transactions and
// answer DAG queries. Cloning a Database is cheap: copy the struct, the
// Backend underneath is shared and synchronizes itself (SPEC_FULL.md §5).
type Database struct {
	root           entry.ID
	backend        backend.Backend
	materializer   *txn.Materializer
	keys           txn.KeyProvider
	defaultSigName string
	commitHook     CommitHook
}

// CommitHook is invoked after every successful Transaction commit on this
// Database, naming the tree and the new Entry's ID. Installed by an
// Instance's sync service to implement auto-sync-on-commit (SPEC_FULL.md
// §4.6); a Database with no hook installed behaves identically but
// without any broadcast side effect. The hook runs synchronously after
// Commit returns its ID but must not block on network I/O itself — it is
// expected to enqueue, not deliver (§9, "message-passing handle").
type CommitHook func(ctx context.Context, root entry.ID, id entry.ID)

// WithCommitHook installs hook, replacing any previously installed one.
func (d *Database) WithCommitHook(hook CommitHook) *Database {
	d.commitHook = hook
	return d
}

// Open returns a Database handle for root, bound to b. keys resolves a
// signing-key name to a private key; defaultSigName is used when a
// Transaction does not call SetAuthKey explicitly (§4.4 step 4's
// precedence: explicit override > database default > commit error).
func Open(root entry.ID, b backend.Backend, keys txn.KeyProvider, defaultSigName string) *Database {
	return &Database{
		root:           root,
		backend:        b,
		materializer:   txn.NewMaterializer(b),
		keys:           keys,
		defaultSigName: defaultSigName,
	}
}

// Root returns the database's root Entry ID (its tree identity).
func (d *Database) Root() entry.ID { return d.root }

// Backend exposes the underlying Backend for callers (syncsvc) that need
// raw DAG queries beyond what Database wraps.
func (d *Database) Backend() backend.Backend { return d.backend }

// crossDatabaseMaterializer builds the auth.Materializer a Validator needs
// to resolve DelegationPath SigKeys: materializing another database's
// `_settings.auth` at an arbitrary tip set via this same Backend.
func crossDatabaseMaterializer(b backend.Backend, mat *txn.Materializer) auth.Materializer {
	return func(ctx context.Context, tree entry.ID, tips []entry.ID) (*auth.AuthSnapshot, error) {
		doc, err := mat.MaterializeStore(ctx, tree, SettingsStoreName, tips)
		if err != nil {
			return nil, fmt.Errorf("database: materialize delegated settings for %s: %w", tree, err)
		}
		return txn.ToAuthSnapshot(doc)
	}
}

// NewTransaction begins a Transaction at the database's current tips.
func (d *Database) NewTransaction(ctx context.Context) (*txn.Transaction, error) {
	return d.NewTransactionWithTips(ctx, nil)
}

// NewTransactionWithTips begins a Transaction pinned to an explicit tip
// set, enabling deliberate branches and merges (§4.4, "Explicit tips").
// A nil tips reads the database's current tips.
func (d *Database) NewTransactionWithTips(ctx context.Context, tips []entry.ID) (*txn.Transaction, error) {
	validator := auth.NewValidator(crossDatabaseMaterializer(d.backend, d.materializer))
	t, err := txn.Begin(ctx, d.backend, d.materializer, validator, d.keys, d.root, tips)
	if err != nil {
		return nil, err
	}
	if d.defaultSigName != "" {
		t.SetAuthKey(d.defaultSigName)
	}
	if d.commitHook != nil {
		hook := d.commitHook
		root := d.root
		t.SetCommitHook(func(id entry.ID) { hook(ctx, root, id) })
	}
	return t, nil
}

// Tips returns the database's current tree-level tips, sorted by
// (height, ID) as the Backend always returns them.
func (d *Database) Tips(ctx context.Context) ([]entry.ID, error) {
	return d.backend.GetTips(ctx, d.root)
}

// HeightOf returns id's tree-level height. Supplemental convenience named
// in SPEC_FULL.md §4 item 6, mirroring original_source's tree.rs exposing
// height directly rather than forcing callers through the backend.
func (d *Database) HeightOf(ctx context.Context, id entry.ID) (int64, error) {
	return d.backend.GetHeight(ctx, id)
}

// GetEntry retrieves a single Entry by ID, failing with backend.ErrNotFound
// if absent or backend.ErrEntryNotInTree if it belongs to another tree.
func (d *Database) GetEntry(ctx context.Context, id entry.ID) (*entry.Entry, error) {
	e, err := d.backend.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	in, err := e.InTree(d.root)
	if err != nil {
		return nil, err
	}
	if !in {
		return nil, backend.NewError(backend.KindEntryNotInTree, string(id), nil)
	}
	return e, nil
}

// Settings materializes the `_settings` sub-store at the database's
// current settings tips (the tips of `_settings` reachable from the
// current tree tips), for read-only inspection (display name, height
// strategy, auth policy) without opening a Transaction.
func (d *Database) Settings(ctx context.Context) (*crdt.Doc, error) {
	tips, err := d.Tips(ctx)
	if err != nil {
		return nil, err
	}
	settingsTips, err := d.backend.GetStoreTipsUpTo(ctx, d.root, SettingsStoreName, tips)
	if err != nil {
		return nil, err
	}
	return d.materializer.MaterializeStore(ctx, d.root, SettingsStoreName, settingsTips)
}

// MaterializeStore exposes the CRDT materializer for an arbitrary
// sub-store at the database's current tips, the read path most callers
// want (`Database.Store("data")` equivalent in the original Rust API).
func (d *Database) MaterializeStore(ctx context.Context, store string) (*crdt.Doc, error) {
	tips, err := d.Tips(ctx)
	if err != nil {
		return nil, err
	}
	storeTips, err := d.backend.GetStoreTipsUpTo(ctx, d.root, store, tips)
	if err != nil {
		return nil, err
	}
	return d.materializer.MaterializeStore(ctx, d.root, store, storeTips)
}

// AuthSnapshot materializes and parses the database's current auth
// configuration, the typed view the auth.Validator consumes.
func (d *Database) AuthSnapshot(ctx context.Context) (*auth.AuthSnapshot, error) {
	doc, err := d.Settings(ctx)
	if err != nil {
		return nil, err
	}
	return txn.ToAuthSnapshot(doc)
}

// ValidateExternalEntry checks e — an Entry received from a peer rather
// than built by a local Transaction — against the historical `_settings`
// snapshot reachable from the settings tips its own Metadata declares
// (§4.5), exactly the check Transaction.Commit performs for locally-built
// entries (internal/txn/transaction.go's Commit), so a synced Entry is
// held to the authorization rules in force at the moment its author
// committed it rather than the database's current rules. Returns an
// error if those settings tips cannot yet be materialized locally (an
// unresolved dependency) or if validation itself rejects the Entry.
func (d *Database) ValidateExternalEntry(ctx context.Context, e *entry.Entry) error {
	settingsTips, err := entry.DecodeSettingsTips(e.Metadata)
	if err != nil {
		return fmt.Errorf("database: validate external entry: decode settings tips: %w", err)
	}
	settingsDoc, err := d.materializer.MaterializeStore(ctx, d.root, SettingsStoreName, settingsTips)
	if err != nil {
		return fmt.Errorf("database: validate external entry: materialize historical settings: %w", err)
	}
	snapshot, err := txn.ToAuthSnapshot(settingsDoc)
	if err != nil {
		return fmt.Errorf("database: validate external entry: parse historical auth snapshot: %w", err)
	}
	validator := auth.NewValidator(crossDatabaseMaterializer(d.backend, d.materializer))
	fingerprint := string(d.root) + "@" + txn.SettingsFingerprint(settingsTips)
	return validator.ValidateEntry(ctx, e, snapshot, fingerprint)
}
