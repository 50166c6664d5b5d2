package syncsvc

import (
	"context"
	"fmt"

	"github.com/latticedb/lattice/internal/backend"
	"github.com/latticedb/lattice/internal/database"
	"github.com/latticedb/lattice/internal/entry"
	"github.com/latticedb/lattice/internal/latticelog"
)

// ApplyEntries ingests entries received from a peer — a SyncTreeResponse's
// Bootstrap/Incremental payload, or a pushed SendEntriesRequest — into
// tree's local Database. Per §4.6's "Ordering and failure model": each
// Entry already present is left untouched (duplicates are silently
// ignored); each new Entry is validated against the historical
// `_settings` snapshot its own Metadata declares (Database.
// ValidateExternalEntry) and stored Verified or Failed accordingly.
//
// Entries are applied in dependency order within the batch so that, when
// the caller handed them to us out of order, a child is never attempted
// before a parent that arrived alongside it. An Entry whose dependency
// (tree or sub-store parent) is absent both from this batch and from the
// local backend cannot be stored at all yet — Put itself rejects it
// (backend.KindInvalidEntry) — so it is logged and left for a future
// sync round to deliver once that dependency exists; we don't implement
// the "follow-up request" half of §4.6's either/or, only the simpler
// wait-and-retry-later one.
func (s *Service) ApplyEntries(ctx context.Context, tree entry.ID, entries []entry.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	db := s.resolveOrBootstrap(ctx, tree)

	ordered, err := topoSortByParents(entries)
	if err != nil {
		return err
	}

	for i := range ordered {
		e := &ordered[i]
		id, err := e.ID()
		if err != nil {
			latticelog.Errorf("syncsvc: apply: compute id for entry in %s: %v", tree, err)
			continue
		}
		if _, err := db.Backend().Get(ctx, id); err == nil {
			continue // already known, per §4.6 duplicates are silently ignored
		}

		status := backend.Verified
		if verr := db.ValidateExternalEntry(ctx, e); verr != nil {
			latticelog.Debugf("syncsvc: apply %s: validation failed, storing failed: %v", id, verr)
			status = backend.Failed
		}

		if err := applyEntry(ctx, db, status, e); err != nil {
			latticelog.Errorf("syncsvc: apply %s: dependency not yet satisfiable, deferring: %v", id, err)
			continue
		}
	}
	return nil
}

// resolveOrBootstrap resolves tree the normal way (the resolver an
// Instance wires, which expects the tree's root Entry to already exist
// locally) and falls back to a bare Database handle over this Service's
// own syncDB backend when that fails. Every Database an Instance opens
// shares that one Backend (SPEC_FULL.md §5), so the fallback is safe —
// it's needed for bootstrapping a tree this Instance has never heard of
// before: resolve necessarily fails for it since nothing has put its
// root Entry locally yet, which is exactly the entry this call is about
// to apply.
func (s *Service) resolveOrBootstrap(ctx context.Context, tree entry.ID) *database.Database {
	if db, err := s.resolve(ctx, tree); err == nil {
		return db
	}
	return database.Open(tree, s.syncDB.Backend(), nil, "")
}

func applyEntry(ctx context.Context, db *database.Database, status backend.VerificationStatus, e *entry.Entry) error {
	if err := db.Backend().Put(ctx, status, e); err != nil {
		return fmt.Errorf("syncsvc: put: %w", err)
	}
	return nil
}

// topoSortByParents orders entries so that, for dependencies the batch
// itself satisfies (both tree-level Parents and every sub-store's
// SubtreeData.Parents), a parent is always emitted before its child. A
// parent referenced by an entry but absent from this batch is assumed
// already resolved locally (or will be reported missing when Put is
// attempted) and imposes no ordering constraint here.
func topoSortByParents(entries []entry.Entry) ([]entry.Entry, error) {
	byID := make(map[entry.ID]int, len(entries))
	for i := range entries {
		id, err := entries[i].ID()
		if err != nil {
			return nil, fmt.Errorf("syncsvc: compute id for batch entry %d: %w", i, err)
		}
		byID[id] = i
	}

	deps := make([][]int, len(entries))
	for i := range entries {
		e := &entries[i]
		seen := make(map[int]bool)
		add := func(p entry.ID) {
			if j, ok := byID[p]; ok && j != i && !seen[j] {
				seen[j] = true
				deps[i] = append(deps[i], j)
			}
		}
		for _, p := range e.Parents {
			add(p)
		}
		for _, st := range e.Subtrees {
			for _, p := range st.Parents {
				add(p)
			}
		}
	}

	order := make([]int, 0, len(entries))
	visited := make([]bool, len(entries))
	inStack := make([]bool, len(entries))
	var visit func(i int) error
	visit = func(i int) error {
		if visited[i] {
			return nil
		}
		if inStack[i] {
			return fmt.Errorf("syncsvc: cycle detected among batch entries")
		}
		inStack[i] = true
		for _, j := range deps[i] {
			if err := visit(j); err != nil {
				return err
			}
		}
		inStack[i] = false
		visited[i] = true
		order = append(order, i)
		return nil
	}
	for i := range entries {
		if err := visit(i); err != nil {
			return nil, err
		}
	}

	out := make([]entry.Entry, len(order))
	for k, i := range order {
		out[k] = entries[i]
	}
	return out, nil
}
