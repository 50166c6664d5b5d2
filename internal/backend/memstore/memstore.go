// Package memstore is an in-memory Backend implementation: a map of
// entries plus auxiliary tip/child indices, suitable for tests and
// ephemeral workloads, optionally persistable to a JSON snapshot file.
//
// Grounded in the shape of
// _examples/untoldecay-BeadsLog/internal/storage/memory (MemoryStorage):
// a single mutex-guarded struct implementing the storage interface
// without any external dependency, plus file-backed snapshotting guarded
// by github.com/gofrs/flock the way the teacher's storage layer guards
// its own on-disk state.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/latticedb/lattice/internal/backend"
	"github.com/latticedb/lattice/internal/entry"
)

type record struct {
	Entry        entry.Entry
	Status       backend.VerificationStatus
	TreeHeight   int64
	StoreHeights map[string]int64
}

// MemStore is an in-memory Backend. Zero value is not usable; use New.
type MemStore struct {
	mu sync.RWMutex

	records map[entry.ID]*record

	// tree-level indices
	treeChildren map[entry.ID][]entry.ID
	treeTips     map[entry.ID]map[entry.ID]bool
	roots        map[entry.ID]bool

	// sub-store indices, keyed by "tree\x00store"
	storeChildren map[string]map[entry.ID][]entry.ID
	storeTips     map[string]map[entry.ID]bool

	crdtCache    map[string][]byte // "id\x00store"
	instanceMeta map[string][]byte

	snapshotPath string
}

// New returns an empty MemStore. snapshotPath may be empty; when set,
// Save/Load can persist/restore the store to that JSON file.
func New(snapshotPath string) *MemStore {
	return &MemStore{
		records:       make(map[entry.ID]*record),
		treeChildren:  make(map[entry.ID][]entry.ID),
		treeTips:      make(map[entry.ID]map[entry.ID]bool),
		roots:         make(map[entry.ID]bool),
		storeChildren: make(map[string]map[entry.ID][]entry.ID),
		storeTips:     make(map[string]map[entry.ID]bool),
		crdtCache:     make(map[string][]byte),
		instanceMeta:  make(map[string][]byte),
		snapshotPath:  snapshotPath,
	}
}

func storeKey(tree entry.ID, store string) string {
	return string(tree) + "\x00" + store
}

func cacheKey(id entry.ID, store string) string {
	return string(id) + "\x00" + store
}

func (m *MemStore) Close() error { return nil }

// --- Put / Get -------------------------------------------------------

func (m *MemStore) Put(ctx context.Context, status backend.VerificationStatus, e *entry.Entry) error {
	id, err := e.ID()
	if err != nil {
		return backend.NewError(backend.KindInvalidEntry, "compute id", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.records[id]; ok {
		// Idempotent: only verification status may change.
		existing.Status = status
		return nil
	}

	isRoot := e.IsRoot()
	tree := e.Tree
	if isRoot {
		tree = id
	}

	for name, st := range e.Subtrees {
		for _, p := range st.Parents {
			if _, ok := m.records[p]; !ok {
				return backend.NewError(backend.KindInvalidEntry,
					fmt.Sprintf("sub-store %q parent %s not present", name, p), nil)
			}
		}
	}

	rec := &record{Entry: *e, Status: status, StoreHeights: make(map[string]int64)}

	var parentTreeHeights []int64
	for _, p := range e.Parents {
		if pr, ok := m.records[p]; ok {
			parentTreeHeights = append(parentTreeHeights, pr.TreeHeight)
		}
	}
	rec.TreeHeight = entry.HeightIncremental.NextHeight(parentTreeHeights, 0)

	for name, st := range e.Subtrees {
		var parentHeights []int64
		for _, p := range st.Parents {
			if pr, ok := m.records[p]; ok {
				parentHeights = append(parentHeights, pr.StoreHeights[name])
			}
		}
		rec.StoreHeights[name] = entry.HeightIncremental.NextHeight(parentHeights, 0)
	}

	m.records[id] = rec
	if isRoot {
		m.roots[id] = true
	}

	// Tree-level tip maintenance.
	if m.treeTips[tree] == nil {
		m.treeTips[tree] = make(map[entry.ID]bool)
	}
	for _, p := range e.Parents {
		delete(m.treeTips[tree], p)
		m.treeChildren[p] = append(m.treeChildren[p], id)
	}
	if len(m.treeChildren[id]) == 0 {
		m.treeTips[tree][id] = true
	}

	// Sub-store tip maintenance.
	for name, st := range e.Subtrees {
		key := storeKey(tree, name)
		if m.storeTips[key] == nil {
			m.storeTips[key] = make(map[entry.ID]bool)
		}
		for _, p := range st.Parents {
			delete(m.storeTips[key], p)
			if m.storeChildren[key] == nil {
				m.storeChildren[key] = make(map[entry.ID][]entry.ID)
			}
			m.storeChildren[key][p] = append(m.storeChildren[key][p], id)
		}
		if len(m.storeChildren[key][id]) == 0 {
			m.storeTips[key][id] = true
		}
	}

	return nil
}

func (m *MemStore) Get(ctx context.Context, id entry.ID) (*entry.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, backend.NewError(backend.KindNotFound, string(id), nil)
	}
	e := rec.Entry
	return &e, nil
}

func sortByHeightThenID(ids []entry.ID, height func(entry.ID) int64) []entry.ID {
	out := append([]entry.ID(nil), ids...)
	sort.Slice(out, func(i, j int) bool {
		hi, hj := height(out[i]), height(out[j])
		if hi != hj {
			return hi < hj
		}
		return out[i].Less(out[j])
	})
	return out
}

func setToSorted(set map[entry.ID]bool, height func(entry.ID) int64) []entry.ID {
	ids := make([]entry.ID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return sortByHeightThenID(ids, height)
}

func (m *MemStore) treeHeight(id entry.ID) int64 {
	if r, ok := m.records[id]; ok {
		return r.TreeHeight
	}
	return 0
}

func (m *MemStore) storeHeight(store string) func(entry.ID) int64 {
	return func(id entry.ID) int64 {
		if r, ok := m.records[id]; ok {
			return r.StoreHeights[store]
		}
		return 0
	}
}

func (m *MemStore) GetTips(ctx context.Context, tree entry.ID) ([]entry.ID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return setToSorted(m.treeTips[tree], m.treeHeight), nil
}

func (m *MemStore) GetStoreTips(ctx context.Context, tree entry.ID, store string) ([]entry.ID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return setToSorted(m.storeTips[storeKey(tree, store)], m.storeHeight(store)), nil
}
