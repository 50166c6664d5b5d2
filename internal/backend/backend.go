// Package backend defines the persistence and DAG-query contract that the
// transaction and auth layers are built against (SPEC_FULL.md §4.3). It is
// grounded in the shape of _examples/untoldecay-BeadsLog's
// internal/storage.Storage interface: a narrow, doc-commented interface
// with concrete implementations living in sibling packages.
package backend

import (
	"context"

	"github.com/latticedb/lattice/internal/entry"
)

// VerificationStatus tracks whether an Entry's signature/auth has been
// checked by the core. The backend never verifies; it only stores what
// the core tells it.
type VerificationStatus int

const (
	Verified VerificationStatus = iota
	Failed
)

func (s VerificationStatus) String() string {
	if s == Failed {
		return "failed"
	}
	return "verified"
}

// StoredEntry pairs a backend-held Entry with its verification status.
type StoredEntry struct {
	Entry  entry.Entry
	Status VerificationStatus
}

// Backend is the storage + DAG-query interface every database engine is
// built against. Two implementations exist in this module: memstore (an
// in-memory map with auxiliary indices) and sqlitestore (a SQL-backed
// implementation using recursive CTEs for ancestor queries).
type Backend interface {
	// Put is an idempotent insert: if the Entry already exists, only
	// status may change. Validates §3.2 invariants before inserting.
	Put(ctx context.Context, status VerificationStatus, e *entry.Entry) error

	// Get fails with a NotFound Error if id is absent.
	Get(ctx context.Context, id entry.ID) (*entry.Entry, error)

	// GetTips returns the Entries in tree with no children at the tree
	// level.
	GetTips(ctx context.Context, tree entry.ID) ([]entry.ID, error)

	// GetStoreTips returns the tips of a named sub-store within tree.
	GetStoreTips(ctx context.Context, tree entry.ID, store string) ([]entry.ID, error)

	// GetStoreTipsUpTo returns sub-store tips reachable from mainTips.
	GetStoreTipsUpTo(ctx context.Context, tree entry.ID, store string, mainTips []entry.ID) ([]entry.ID, error)

	// FindMergeBase returns the lowest Entry through which all paths from
	// each id to the root pass, within store. Fails with ErrNoCommonAncestor
	// for disjoint history, ErrEmptyEntryList for an empty input. A
	// singleton input returns itself.
	FindMergeBase(ctx context.Context, tree entry.ID, store string, ids []entry.ID) (entry.ID, error)

	// GetTree returns the full topological listing of tree, sorted by
	// (height, ID).
	GetTree(ctx context.Context, tree entry.ID) ([]entry.ID, error)

	// GetStore returns the full topological listing of store within tree.
	GetStore(ctx context.Context, tree entry.ID, store string) ([]entry.ID, error)

	// GetTreeFromTips returns the tree listing bounded by reachable-from-
	// tips. Returns ErrEntryNotInTree if a tip belongs to a different tree.
	GetTreeFromTips(ctx context.Context, tree entry.ID, tips []entry.ID) ([]entry.ID, error)

	// GetStoreFromTips is the sub-store analogue of GetTreeFromTips.
	GetStoreFromTips(ctx context.Context, tree entry.ID, store string, tips []entry.ID) ([]entry.ID, error)

	// GetPathFromTo returns entries reachable by following sub-store
	// parents from any of tos back to (excluding) from, sorted by
	// (height, ID). Correctly handles diamond merges.
	GetPathFromTo(ctx context.Context, tree entry.ID, store string, from entry.ID, tos []entry.ID) ([]entry.ID, error)

	// GetSortedStoreParents returns id's sub-store parents within store,
	// ordered by (height, ID).
	GetSortedStoreParents(ctx context.Context, tree entry.ID, id entry.ID, store string) ([]entry.ID, error)

	// CacheCRDTState stores an opaque CRDT-state blob keyed by (id, store).
	CacheCRDTState(ctx context.Context, id entry.ID, store string, state []byte) error
	// GetCachedCRDTState returns the blob cached for (id, store), or
	// ok=false if absent.
	GetCachedCRDTState(ctx context.Context, id entry.ID, store string) (state []byte, ok bool, err error)
	// ClearCRDTCache drops every cache entry for tree.
	ClearCRDTCache(ctx context.Context, tree entry.ID) error

	// GetVerificationStatus reports the stored status of id.
	GetVerificationStatus(ctx context.Context, id entry.ID) (VerificationStatus, error)
	// UpdateVerificationStatus changes the stored status of an existing id.
	UpdateVerificationStatus(ctx context.Context, id entry.ID, status VerificationStatus) error
	// GetEntriesByVerificationStatus lists ids with the given status.
	GetEntriesByVerificationStatus(ctx context.Context, tree entry.ID, status VerificationStatus) ([]entry.ID, error)

	// AllRoots returns every root Entry known to the backend.
	AllRoots(ctx context.Context) ([]entry.ID, error)

	// GetHeight returns id's tree-level height, as assigned at Put by
	// entry.HeightIncremental (the only strategy either backend applies).
	// Supplemental convenience over
	// the spec's bare interface (SPEC_FULL.md §4 item 6), backing
	// Database.HeightOf.
	GetHeight(ctx context.Context, id entry.ID) (int64, error)

	// GetStoreHeight returns id's height within store, or 0 if id does not
	// touch store.
	GetStoreHeight(ctx context.Context, id entry.ID, store string) (int64, error)

	// CountEntries returns the number of entries known to belong to tree.
	// Supplemental convenience over the spec's bare interface, grounded in
	// original_source's backend benchmark helpers (SPEC_FULL.md §4 item 3).
	CountEntries(ctx context.Context, tree entry.ID) (int, error)

	// GetInstanceMetadata / SetInstanceMetadata manage the singleton,
	// process-wide Instance state slot.
	GetInstanceMetadata(ctx context.Context, key string) ([]byte, bool, error)
	SetInstanceMetadata(ctx context.Context, key string, value []byte) error

	// Close releases any resources (file handles, connection pools).
	Close() error
}
