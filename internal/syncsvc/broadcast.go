package syncsvc

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/latticedb/lattice/internal/database"
	"github.com/latticedb/lattice/internal/entry"
	"github.com/latticedb/lattice/internal/latticelog"
)

// CommitHook returns a database.CommitHook that broadcasts every commit
// on root to its registered peers, the "message-passing handle, not
// direct function pointer" auto-sync-on-commit design SPEC_FULL.md §9
// calls for: Database and Transaction never import syncsvc, they only
// invoke whatever function an Instance installed.
//
// The hook enqueues a fire-and-forget goroutine rather than blocking the
// committing caller on network I/O, mirroring the async dispatch shape
// of _examples/untoldecay-BeadsLog/internal/daemon's background workers.
func (s *Service) CommitHook() database.CommitHook {
	return func(ctx context.Context, root entry.ID, id entry.ID) {
		go s.broadcastCommit(context.Background(), root, id)
	}
}

// broadcastCommit pushes the single Entry id (just committed on tree) to
// every peer sharing tree via the SendEntries wire variant (§6.2):
// unlike a SyncTreeRequest, which would ask a peer to tell *us* what it's
// missing, this is delivery in the direction auto-sync-on-commit actually
// needs — our peers don't yet know id exists.
func (s *Service) broadcastCommit(ctx context.Context, tree entry.ID, id entry.ID) {
	peers, err := s.PeersForTree(ctx, tree)
	if err != nil {
		latticelog.Errorf("syncsvc: broadcast: list peers for %s: %v", tree, err)
		return
	}
	if len(peers) == 0 || s.transport == nil {
		return
	}

	db, err := s.resolve(ctx, tree)
	if err != nil {
		latticelog.Errorf("syncsvc: broadcast: resolve %s: %v", tree, err)
		return
	}
	e, err := db.Backend().Get(ctx, id)
	if err != nil {
		latticelog.Errorf("syncsvc: broadcast: fetch committed entry %s: %v", id, err)
		return
	}

	due := make([]Peer, 0, len(peers))
	for _, p := range peers {
		if p.Status == PeerActive && s.scheduler.Due(p.Pubkey) {
			due = append(due, p)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, p := range due {
		p := p
		g.Go(func() error {
			_, err := s.transport.SendEntries(gctx, p, SendEntriesRequest{
				TreeID:  tree,
				Entries: []entry.Entry{*e},
			})
			if err != nil {
				s.scheduler.RecordFailure(p.Pubkey)
				latticelog.Debugf("syncsvc: broadcast to %s failed: %v", p.Pubkey, err)
				return nil // don't abort siblings over one peer's failure
			}
			s.scheduler.RecordSuccess(p.Pubkey)
			return nil
		})
	}
	_ = g.Wait()
}
