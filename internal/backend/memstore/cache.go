package memstore

import (
	"context"

	"github.com/latticedb/lattice/internal/backend"
	"github.com/latticedb/lattice/internal/entry"
)

func (m *MemStore) CacheCRDTState(ctx context.Context, id entry.ID, store string, state []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := append([]byte(nil), state...)
	m.crdtCache[cacheKey(id, store)] = cp
	return nil
}

func (m *MemStore) GetCachedCRDTState(ctx context.Context, id entry.ID, store string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.crdtCache[cacheKey(id, store)]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), state...), true, nil
}

func (m *MemStore) ClearCRDTCache(ctx context.Context, tree entry.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, rec := range m.records {
		if rec.Entry.Tree != tree && id != tree {
			continue
		}
		for name := range rec.Entry.Subtrees {
			delete(m.crdtCache, cacheKey(id, name))
		}
	}
	return nil
}

func (m *MemStore) GetVerificationStatus(ctx context.Context, id entry.ID) (backend.VerificationStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return 0, backend.NewError(backend.KindNotFound, string(id), nil)
	}
	return rec.Status, nil
}

func (m *MemStore) UpdateVerificationStatus(ctx context.Context, id entry.ID, status backend.VerificationStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return backend.NewError(backend.KindNotFound, string(id), nil)
	}
	rec.Status = status
	return nil
}

func (m *MemStore) GetEntriesByVerificationStatus(ctx context.Context, tree entry.ID, status backend.VerificationStatus) ([]entry.ID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []entry.ID
	for id, rec := range m.records {
		if rec.Entry.Tree != tree && id != tree {
			continue
		}
		if rec.Status == status {
			ids = append(ids, id)
		}
	}
	return sortByHeightThenID(ids, m.treeHeight), nil
}

func (m *MemStore) GetHeight(ctx context.Context, id entry.ID) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return 0, backend.NewError(backend.KindNotFound, string(id), nil)
	}
	return rec.TreeHeight, nil
}

func (m *MemStore) GetStoreHeight(ctx context.Context, id entry.ID, store string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return 0, backend.NewError(backend.KindNotFound, string(id), nil)
	}
	return rec.StoreHeights[store], nil
}

func (m *MemStore) GetInstanceMetadata(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.instanceMeta[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (m *MemStore) SetInstanceMetadata(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.instanceMeta[key] = append([]byte(nil), value...)
	return nil
}
