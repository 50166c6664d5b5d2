package memstore

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/gofrs/flock"

	"github.com/latticedb/lattice/internal/backend"
	"github.com/latticedb/lattice/internal/entry"
)

// snapshot is the on-disk JSON layout described in SPEC_FULL.md §6.3: a
// single object holding every entry plus the auxiliary indices needed to
// resume without replaying tip maintenance.
type snapshot struct {
	Entries      map[entry.ID]record                `json:"entries"`
	TreeTips     map[entry.ID]map[entry.ID]bool      `json:"tree_tips"`
	StoreTips    map[string]map[entry.ID]bool        `json:"store_tips"`
	TreeChildren map[entry.ID][]entry.ID             `json:"tree_children"`
	StoreChildren map[string]map[entry.ID][]entry.ID `json:"store_children"`
	Roots        map[entry.ID]bool                   `json:"roots"`
	CRDTCache    map[string][]byte                   `json:"crdt_cache"`
	InstanceMeta map[string][]byte                   `json:"instance_metadata"`
}

// Save writes the current state to m.snapshotPath, guarded by an advisory
// file lock (the teacher's cmd/bd/sync.go TryLock/defer-Unlock pattern)
// so two processes sharing a snapshot file don't interleave writes.
func (m *MemStore) Save() error {
	if m.snapshotPath == "" {
		return nil
	}
	lock := flock.New(m.snapshotPath + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("memstore: acquiring snapshot lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("memstore: snapshot file is locked by another process")
	}
	defer func() { _ = lock.Unlock() }()

	m.mu.RLock()
	snap := snapshot{
		Entries:       make(map[entry.ID]record, len(m.records)),
		TreeTips:      m.treeTips,
		StoreTips:     m.storeTips,
		TreeChildren:  m.treeChildren,
		StoreChildren: m.storeChildren,
		Roots:         m.roots,
		CRDTCache:     m.crdtCache,
		InstanceMeta:  m.instanceMeta,
	}
	for id, rec := range m.records {
		snap.Entries[id] = *rec
	}
	m.mu.RUnlock()

	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("memstore: marshal snapshot: %w", err)
	}
	if err := os.WriteFile(m.snapshotPath, b, 0o644); err != nil {
		return fmt.Errorf("memstore: write snapshot: %w", err)
	}
	return nil
}

// Load restores state from m.snapshotPath. A missing file is not an error
// (a fresh MemStore simply stays empty).
func (m *MemStore) Load() error {
	if m.snapshotPath == "" {
		return nil
	}
	b, err := os.ReadFile(m.snapshotPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("memstore: read snapshot: %w", err)
	}
	var snap snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return fmt.Errorf("memstore: unmarshal snapshot: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = make(map[entry.ID]*record, len(snap.Entries))
	for id, rec := range snap.Entries {
		r := rec
		m.records[id] = &r
	}
	if snap.TreeTips != nil {
		m.treeTips = snap.TreeTips
	}
	if snap.StoreTips != nil {
		m.storeTips = snap.StoreTips
	}
	if snap.TreeChildren != nil {
		m.treeChildren = snap.TreeChildren
	}
	if snap.StoreChildren != nil {
		m.storeChildren = snap.StoreChildren
	}
	if snap.Roots != nil {
		m.roots = snap.Roots
	}
	if snap.CRDTCache != nil {
		m.crdtCache = snap.CRDTCache
	}
	if snap.InstanceMeta != nil {
		m.instanceMeta = snap.InstanceMeta
	}
	return nil
}

var _ backend.Backend = (*MemStore)(nil)
