// Package txn implements the Transaction pipeline: capturing tips,
// materializing per-sub-store pre-state via the CRDT merge algorithm,
// staging writes, and committing a single signed Entry.
//
// Grounded in _examples/untoldecay-BeadsLog/internal/storage.Storage's
// RunInTransaction pattern for the begin/stage/commit shape, and in
// original_source's atomicop/tree materialization semantics for the
// merge-base fold itself.
package txn

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/latticedb/lattice/internal/backend"
	"github.com/latticedb/lattice/internal/crdt"
	"github.com/latticedb/lattice/internal/entry"
)

// Materializer computes the CRDT state of a sub-store at an arbitrary tip
// set, implementing SPEC_FULL.md §4.2. Concurrent requests for the same
// (tree, store, tips) are deduplicated via singleflight so that two
// transactions opening the same sub-store at the same tips don't redo the
// fold independently.
type Materializer struct {
	backend backend.Backend
	group   singleflight.Group
}

// NewMaterializer builds a Materializer over b.
func NewMaterializer(b backend.Backend) *Materializer {
	return &Materializer{backend: b}
}

func materializeKey(tree entry.ID, store string, tips []entry.ID) string {
	var sb strings.Builder
	sb.WriteString(string(tree))
	sb.WriteByte(0)
	sb.WriteString(store)
	sb.WriteByte(0)
	for _, t := range tips {
		sb.WriteString(string(t))
		sb.WriteByte(',')
	}
	return sb.String()
}

// MaterializeStore returns the merged Doc for store within tree, as of
// tips. An empty tips slice yields an empty document (the sub-store has
// never been written).
func (m *Materializer) MaterializeStore(ctx context.Context, tree entry.ID, store string, tips []entry.ID) (*crdt.Doc, error) {
	if len(tips) == 0 {
		return crdt.NewDoc(), nil
	}
	key := materializeKey(tree, store, tips)
	v, err, _ := m.group.Do(key, func() (interface{}, error) {
		return m.materializeUncached(ctx, tree, store, tips)
	})
	if err != nil {
		return nil, err
	}
	return v.(*crdt.Doc), nil
}

func (m *Materializer) materializeUncached(ctx context.Context, tree entry.ID, store string, tips []entry.ID) (*crdt.Doc, error) {
	base, err := m.backend.FindMergeBase(ctx, tree, store, tips)
	noCommonAncestor := errors.Is(err, backend.ErrNoCommonAncestor)
	if err != nil && !noCommonAncestor {
		return nil, fmt.Errorf("txn: find merge base: %w", err)
	}

	acc := crdt.NewDoc()
	var last entry.ID

	if noCommonAncestor {
		path, err := m.backend.GetStoreFromTips(ctx, tree, store, tips)
		if err != nil {
			return nil, fmt.Errorf("txn: get store from tips: %w", err)
		}
		acc, last, err = m.foldEntries(ctx, store, acc, path)
		if err != nil {
			return nil, err
		}
	} else {
		cached, ok, cerr := m.backend.GetCachedCRDTState(ctx, base, store)
		if cerr == nil && ok {
			if uerr := acc.UnmarshalCRDT(cached); uerr != nil {
				return nil, fmt.Errorf("txn: unmarshal cached state: %w", uerr)
			}
			last = base
		} else {
			// Cache miss at the merge base: its own contribution would
			// otherwise be silently dropped, since GetPathFromTo excludes
			// the base itself. Recompute base's state from scratch.
			basePath, err := m.backend.GetStoreFromTips(ctx, tree, store, []entry.ID{base})
			if err != nil {
				return nil, fmt.Errorf("txn: get store up to base: %w", err)
			}
			acc, last, err = m.foldEntries(ctx, store, acc, basePath)
			if err != nil {
				return nil, err
			}
		}

		path, err := m.backend.GetPathFromTo(ctx, tree, store, base, tips)
		if err != nil {
			return nil, fmt.Errorf("txn: get path: %w", err)
		}
		acc, last, err = m.foldEntries(ctx, store, acc, path)
		if err != nil {
			return nil, err
		}
		if last == "" {
			last = base
		}
	}

	if last != "" {
		if b, merr := acc.MarshalCRDT(); merr == nil {
			_ = m.backend.CacheCRDTState(ctx, last, store, b)
		}
	}
	return acc, nil
}

// foldEntries merges each id's sub-store data (in order) into acc, returning
// the updated document and the last id that actually touched store (used as
// the cache key), or "" if none of ids did.
func (m *Materializer) foldEntries(ctx context.Context, store string, acc *crdt.Doc, ids []entry.ID) (*crdt.Doc, entry.ID, error) {
	var last entry.ID
	for _, id := range ids {
		e, err := m.backend.Get(ctx, id)
		if err != nil {
			return nil, "", fmt.Errorf("txn: get entry %s: %w", id, err)
		}
		st, ok := e.Subtrees[store]
		if !ok {
			continue
		}
		doc, err := crdt.UnmarshalDoc([]byte(st.Data))
		if err != nil {
			return nil, "", fmt.Errorf("txn: unmarshal entry %s sub-store %s: %w", id, store, err)
		}
		acc = acc.Merge(doc)
		last = id
	}
	return acc, last, nil
}
