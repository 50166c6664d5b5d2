// Package lattice is the public entry point for embedding a lattice
// Instance in a Go program: create or open an Instance over a Backend,
// open Databases (trees) within it, and commit Transactions against
// their sub-stores.
//
// Grounded in the teacher's own root package
// (_examples/untoldecay-BeadsLog/beads.go): a thin file of type aliases
// and passthrough constructors re-exporting its internal packages,
// generalized here from "one SQLite-backed issue store" to "any Backend
// holding any number of Entry trees."
package lattice

import (
	"context"

	"github.com/latticedb/lattice/internal/auth"
	"github.com/latticedb/lattice/internal/backend"
	"github.com/latticedb/lattice/internal/backend/memstore"
	"github.com/latticedb/lattice/internal/backend/sqlitestore"
	"github.com/latticedb/lattice/internal/crdt"
	"github.com/latticedb/lattice/internal/database"
	"github.com/latticedb/lattice/internal/entry"
	"github.com/latticedb/lattice/internal/instance"
	"github.com/latticedb/lattice/internal/txn"
)

// Core types re-exported for embedders.
type (
	Instance      = instance.Instance
	Database      = database.Database
	Transaction   = txn.Transaction
	StoreHandle   = txn.StoreHandle
	Backend       = backend.Backend
	Entry         = entry.Entry
	ID            = entry.ID
	CommitHook    = database.CommitHook
	Doc           = crdt.Doc
	Value         = crdt.Value
	AuthSnapshot  = auth.AuthSnapshot
	AuthKey       = auth.AuthKey
	Permission    = auth.Permission
	Policy        = auth.Policy
)

// Verification status constants, re-exported from internal/backend.
const (
	Verified = backend.Verified
	Failed   = backend.Failed
)

// SettingsStoreName is the reserved sub-store name every tree's auth
// configuration and database metadata live under.
const SettingsStoreName = database.SettingsStoreName

// OpenMemStore returns an ephemeral in-memory Backend, suitable for
// tests and scratch instances. snapshotPath may be empty; when set,
// the store can be persisted/restored as a JSON file (see
// internal/backend/memstore).
func OpenMemStore(snapshotPath string) Backend {
	return memstore.New(snapshotPath)
}

// OpenSQLiteStore opens (creating if absent) a SQLite-backed Backend at
// path. path may be ":memory:" for an ephemeral database.
func OpenSQLiteStore(ctx context.Context, path string) (Backend, error) {
	return sqlitestore.Open(ctx, path)
}

// CreateInstance initializes a brand-new Instance over b: generates a
// device keypair and a users database granting the device key Admin
// over it. Fails with instance.ErrAlreadyInitialized if b already
// carries Instance metadata; use OpenInstance for load-or-initialize.
func CreateInstance(ctx context.Context, b Backend) (*Instance, error) {
	return instance.Create(ctx, b)
}

// OpenInstance loads an existing Instance from b's metadata, or
// initializes a new one if none is present.
func OpenInstance(ctx context.Context, b Backend) (*Instance, error) {
	return instance.Open(ctx, b)
}

// NewCRDTDoc returns an empty CRDT document, the unit of state a
// sub-store materializes to and a Transaction's StoreHandle reads/writes
// against.
func NewCRDTDoc() *Doc {
	return crdt.NewDoc()
}
