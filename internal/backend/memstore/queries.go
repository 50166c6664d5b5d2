package memstore

import (
	"context"

	"github.com/latticedb/lattice/internal/backend"
	"github.com/latticedb/lattice/internal/entry"
)

// ancestorSet walks store-parent links backward from id (inclusive),
// returning every reachable ancestor. Used as the building block for
// merge-base, path, and tips-up-to queries, per SPEC_FULL.md §4.2's
// "recursive ancestor collection" description. The visited map also
// guards against cycles.
func (m *MemStore) ancestorSet(store string, id entry.ID) map[entry.ID]bool {
	visited := make(map[entry.ID]bool)
	stack := []entry.ID{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[cur] {
			continue
		}
		visited[cur] = true
		rec, ok := m.records[cur]
		if !ok {
			continue
		}
		var parents []entry.ID
		if store == "" {
			parents = rec.Entry.Parents
		} else if st, ok := rec.Entry.Subtrees[store]; ok {
			parents = st.Parents
		}
		for _, p := range parents {
			if !visited[p] {
				stack = append(stack, p)
			}
		}
	}
	return visited
}

// parentsFor returns id's parents as ancestorSet walks them: tree
// parents when store is "", else id's Subtrees[store].Parents. Nodes
// with no entry (unknown) or no parents in this context are treated
// identically as dead ends/roots by both ancestorSet and isDominator.
func (m *MemStore) parentsFor(store string, id entry.ID) []entry.ID {
	rec, ok := m.records[id]
	if !ok {
		return nil
	}
	if store == "" {
		return rec.Entry.Parents
	}
	if st, ok := rec.Entry.Subtrees[store]; ok {
		return st.Parents
	}
	return nil
}

// isDominator reports whether cand lies on every path from id up to a
// root, i.e. id cannot reach a root while treating cand as a dead end
// (its own parents are never walked). Mirrors the original's
// crates/lib/src/backend/database/sql/traversal.rs:is_dominator_cte,
// used by FindMergeBase per spec.md §4.2 step 1 / §8 invariant 6.
func (m *MemStore) isDominator(store string, cand, id entry.ID) bool {
	visited := make(map[entry.ID]bool)
	stack := []entry.ID{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[cur] {
			continue
		}
		visited[cur] = true
		if cur == cand {
			continue
		}
		parents := m.parentsFor(store, cur)
		if len(parents) == 0 {
			return false
		}
		for _, p := range parents {
			if !visited[p] {
				stack = append(stack, p)
			}
		}
	}
	return true
}

func (m *MemStore) FindMergeBase(ctx context.Context, tree entry.ID, store string, ids []entry.ID) (entry.ID, error) {
	if len(ids) == 0 {
		return "", backend.NewError(backend.KindEmptyEntryList, "find_merge_base", nil)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(ids) == 1 {
		return ids[0], nil
	}

	sets := make([]map[entry.ID]bool, len(ids))
	for i, id := range ids {
		sets[i] = m.ancestorSet(store, id)
	}
	common := sets[0]
	for _, s := range sets[1:] {
		next := make(map[entry.ID]bool)
		for id := range common {
			if s[id] {
				next[id] = true
			}
		}
		common = next
	}
	if len(common) == 0 {
		return "", backend.NewError(backend.KindNoCommonAncestor, "find_merge_base", nil)
	}

	height := m.storeHeight(store)
	if store == "" {
		height = m.treeHeight
	}

	// A common ancestor is the merge base only if it dominates every
	// input: no input can reach a root while bypassing it. Walk
	// candidates from highest height down (most recent first) so the
	// first one that dominates all inputs is returned.
	byHeightAsc := setToSorted(common, height)
	for i := len(byHeightAsc) - 1; i >= 0; i-- {
		cand := byHeightAsc[i]
		dominates := true
		for _, id := range ids {
			if !m.isDominator(store, cand, id) {
				dominates = false
				break
			}
		}
		if dominates {
			return cand, nil
		}
	}
	// The most-ancestral common ancestor always dominates in a
	// single-root tree; fall back to it if nothing higher qualified.
	return byHeightAsc[0], nil
}

func (m *MemStore) GetTree(ctx context.Context, tree entry.ID) ([]entry.ID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []entry.ID
	for id, rec := range m.records {
		if rec.Entry.Tree == tree || id == tree {
			ids = append(ids, id)
		}
	}
	return sortByHeightThenID(ids, m.treeHeight), nil
}

func (m *MemStore) GetStore(ctx context.Context, tree entry.ID, store string) ([]entry.ID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []entry.ID
	for id, rec := range m.records {
		if rec.Entry.Tree != tree && id != tree {
			continue
		}
		if _, ok := rec.Entry.Subtrees[store]; ok {
			ids = append(ids, id)
		}
	}
	return sortByHeightThenID(ids, m.storeHeight(store)), nil
}

func (m *MemStore) reachableFromTips(store string, tips []entry.ID) map[entry.ID]bool {
	reach := make(map[entry.ID]bool)
	for _, t := range tips {
		for id := range m.ancestorSet(store, t) {
			reach[id] = true
		}
	}
	return reach
}

func (m *MemStore) GetTreeFromTips(ctx context.Context, tree entry.ID, tips []entry.ID) ([]entry.ID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range tips {
		rec, ok := m.records[t]
		if !ok {
			continue
		}
		if rec.Entry.Tree != tree && t != tree {
			return nil, backend.NewError(backend.KindEntryNotInTree, string(t), nil)
		}
	}
	reach := m.reachableFromTips("", tips)
	ids := make([]entry.ID, 0, len(reach))
	for id := range reach {
		ids = append(ids, id)
	}
	return sortByHeightThenID(ids, m.treeHeight), nil
}

func (m *MemStore) GetStoreFromTips(ctx context.Context, tree entry.ID, store string, tips []entry.ID) ([]entry.ID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	reach := m.reachableFromTips(store, tips)
	ids := make([]entry.ID, 0, len(reach))
	for id := range reach {
		ids = append(ids, id)
	}
	return sortByHeightThenID(ids, m.storeHeight(store)), nil
}

// GetStoreTipsUpTo returns the sub-store tips reachable from mainTips. A
// fast path applies when mainTips equals the tree's current tips.
func (m *MemStore) GetStoreTipsUpTo(ctx context.Context, tree entry.ID, store string, mainTips []entry.ID) ([]entry.ID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	current := setToSorted(m.treeTips[tree], m.treeHeight)
	if sameIDSet(current, mainTips) {
		return setToSorted(m.storeTips[storeKey(tree, store)], m.storeHeight(store)), nil
	}

	reach := m.reachableFromTips(store, mainTips)
	storeMembers := make(map[entry.ID]bool)
	for id := range reach {
		rec, ok := m.records[id]
		if !ok {
			continue
		}
		if _, touches := rec.Entry.Subtrees[store]; touches {
			storeMembers[id] = true
		}
	}
	// A store member is a tip-up-to iff none of its store-children are
	// also in storeMembers.
	key := storeKey(tree, store)
	tips := make(map[entry.ID]bool, len(storeMembers))
	for id := range storeMembers {
		isTip := true
		for _, child := range m.storeChildren[key][id] {
			if storeMembers[child] {
				isTip = false
				break
			}
		}
		if isTip {
			tips[id] = true
		}
	}
	return setToSorted(tips, m.storeHeight(store)), nil
}

func sameIDSet(a []entry.ID, b []entry.ID) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[entry.ID]bool, len(a))
	for _, id := range a {
		set[id] = true
	}
	for _, id := range b {
		if !set[id] {
			return false
		}
	}
	return true
}

// GetPathFromTo returns entries reachable by following sub-store parents
// from any of tos back to (excluding) from: the ancestors of tos that are
// also descendants of from.
func (m *MemStore) GetPathFromTo(ctx context.Context, tree entry.ID, store string, from entry.ID, tos []entry.ID) ([]entry.ID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ancestorsOfTos := m.reachableFromTips(store, tos)
	var out []entry.ID
	for id := range ancestorsOfTos {
		if id == from {
			continue
		}
		if m.ancestorSet(store, id)[from] {
			out = append(out, id)
		}
	}
	return sortByHeightThenID(out, m.storeHeight(store)), nil
}

func (m *MemStore) GetSortedStoreParents(ctx context.Context, tree entry.ID, id entry.ID, store string) ([]entry.ID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, backend.NewError(backend.KindNotFound, string(id), nil)
	}
	st, ok := rec.Entry.Subtrees[store]
	if !ok {
		return nil, nil
	}
	return sortByHeightThenID(st.Parents, m.storeHeight(store)), nil
}

func (m *MemStore) AllRoots(ctx context.Context) ([]entry.ID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]entry.ID, 0, len(m.roots))
	for id := range m.roots {
		ids = append(ids, id)
	}
	return sortByHeightThenID(ids, m.treeHeight), nil
}

func (m *MemStore) CountEntries(ctx context.Context, tree entry.ID) (int, error) {
	ids, err := m.GetTree(ctx, tree)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}
