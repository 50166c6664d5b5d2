package syncsvc

import (
	"context"
	"fmt"

	"github.com/latticedb/lattice/internal/auth"
	"github.com/latticedb/lattice/internal/database"
	"github.com/latticedb/lattice/internal/entry"
)

// HandleSyncTreeRequest answers an inbound SyncTreeRequest as a
// responder: bootstrap (req.OurTips empty) or incremental (otherwise),
// per SPEC_FULL.md §4.6 and scenarios S6/S7.
func (s *Service) HandleSyncTreeRequest(ctx context.Context, requesterPubkey string, req SyncTreeRequest) (*SyncTreeResponse, error) {
	db, err := s.resolve(ctx, req.TreeID)
	if err != nil {
		return nil, err
	}

	if len(req.OurTips) == 0 {
		return s.handleBootstrap(ctx, db, requesterPubkey, req)
	}
	return s.handleIncremental(ctx, db, req)
}

func (s *Service) handleBootstrap(ctx context.Context, db *database.Database, requesterPubkey string, req SyncTreeRequest) (*SyncTreeResponse, error) {
	snap, err := db.AuthSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("syncsvc: bootstrap: auth snapshot: %w", err)
	}

	perm := RequestedPermission{Kind: "read"}
	if req.RequestedPermission != nil {
		perm = *req.RequestedPermission
	}

	// A previously-approved key (via manual approval or an earlier
	// auto-approve) may bootstrap again without re-queuing: the policy
	// gate only protects the *first* grant.
	if alreadyGranted(snap, requesterPubkey) {
		entries, err := s.allEntries(ctx, db)
		if err != nil {
			return nil, err
		}
		if err := s.addSyncedTree(ctx, requesterPubkey, req.TreeID); err != nil {
			return nil, err
		}
		return &SyncTreeResponse{
			Bootstrap: &BootstrapResult{Entries: entries, KeyApproved: true},
		}, nil
	}

	if !snap.Policy.BootstrapAutoApprove {
		requestID, err := s.createPending(ctx, PendingRequest{
			TreeID:              req.TreeID,
			RequesterPubkey:     requesterPubkey,
			RequesterKeyName:    req.RequestingKeyName,
			RequestedPermission: perm,
		})
		if err != nil {
			return nil, err
		}
		return &SyncTreeResponse{
			BootstrapPending: &BootstrapPending{
				RequestID: requestID,
				Reason:    "bootstrap_auto_approve disabled; awaiting Admin approval",
			},
		}, nil
	}

	keyName := req.RequestingKeyName
	if keyName == "" {
		keyName = requesterPubkey
	}
	if err := grantKey(ctx, db, s.adminKey, keyName, requesterPubkey, perm.toPermission()); err != nil {
		return nil, fmt.Errorf("syncsvc: bootstrap: auto-grant: %w", err)
	}

	entries, err := s.allEntries(ctx, db)
	if err != nil {
		return nil, err
	}
	if err := s.addSyncedTree(ctx, requesterPubkey, req.TreeID); err != nil {
		return nil, err
	}

	return &SyncTreeResponse{
		Bootstrap: &BootstrapResult{
			Entries:           entries,
			KeyApproved:       true,
			GrantedPermission: &perm,
		},
	}, nil
}

func alreadyGranted(snap *auth.AuthSnapshot, pubkey string) bool {
	for _, ak := range snap.Keys {
		if ak.Pubkey == pubkey && ak.Status == auth.Active {
			return true
		}
	}
	return false
}

func (s *Service) handleIncremental(ctx context.Context, db *database.Database, req SyncTreeRequest) (*SyncTreeResponse, error) {
	allIDs, err := db.Backend().GetTree(ctx, req.TreeID)
	if err != nil {
		return nil, fmt.Errorf("syncsvc: incremental: get tree: %w", err)
	}

	known := knownTips(ctx, db, req.OurTips)
	have := make(map[entry.ID]bool)
	if len(known) > 0 {
		reachable, err := db.Backend().GetTreeFromTips(ctx, req.TreeID, known)
		if err != nil {
			return nil, fmt.Errorf("syncsvc: incremental: reachable from our_tips: %w", err)
		}
		for _, id := range reachable {
			have[id] = true
		}
	}

	var missing []entry.Entry
	for _, id := range allIDs {
		if have[id] {
			continue
		}
		e, err := db.Backend().Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("syncsvc: incremental: fetch %s: %w", id, err)
		}
		missing = append(missing, *e)
	}

	return &SyncTreeResponse{
		Incremental: &IncrementalResult{Entries: missing},
	}, nil
}

// knownTips filters tips down to the ones this backend actually has,
// skipping any a peer claims but we've never seen — a peer may race
// ahead of us or reference entries from a branch we haven't received.
func knownTips(ctx context.Context, db *database.Database, tips []entry.ID) []entry.ID {
	var out []entry.ID
	for _, id := range tips {
		if _, err := db.Backend().Get(ctx, id); err == nil {
			out = append(out, id)
		}
	}
	return out
}

// PullTree is the requester half of tree sync: it asks peer to sync
// tree, bootstrapping (no local tips yet) or incrementally (otherwise),
// then applies whatever Entries the response carries via ApplyEntries —
// the production counterpart to HandleSyncTreeRequest, and the piece
// that was previously missing entirely (§4.6's receiving half).
// BootstrapPending responses apply nothing; the caller retries later
// once an Admin has approved the request.
func (s *Service) PullTree(ctx context.Context, peer Peer, tree entry.ID, requestingKeyName string, requestedPermission *RequestedPermission) error {
	if s.transport == nil {
		return newError(ErrTransport.Kind, "no transport installed", nil)
	}

	var ourTips []entry.ID
	if db, err := s.resolve(ctx, tree); err == nil {
		ourTips, err = db.Tips(ctx)
		if err != nil {
			return fmt.Errorf("syncsvc: pull %s: local tips: %w", tree, err)
		}
	}

	resp, err := s.transport.SendSyncTreeRequest(ctx, peer, SyncTreeRequest{
		TreeID:              tree,
		OurTips:             ourTips,
		RequestingKeyName:   requestingKeyName,
		RequestedPermission: requestedPermission,
	})
	if err != nil {
		return fmt.Errorf("syncsvc: pull %s: %w", tree, err)
	}

	switch {
	case resp.Bootstrap != nil:
		if err := s.ApplyEntries(ctx, tree, resp.Bootstrap.Entries); err != nil {
			return err
		}
		return s.addSyncedTree(ctx, peer.Pubkey, tree)
	case resp.Incremental != nil:
		return s.ApplyEntries(ctx, tree, resp.Incremental.Entries)
	case resp.BootstrapPending != nil:
		return nil
	default:
		return fmt.Errorf("syncsvc: pull %s: empty sync tree response", tree)
	}
}

// HandleSendEntries answers an inbound SendEntriesRequest — the push
// wire variant's receiving half, per §4.6 auto-sync-on-commit: unlike
// HandleSyncTreeRequest's pull-shaped bootstrap/incremental exchange,
// the sender already decided what to deliver, so there is nothing to
// resolve beyond applying it.
func (s *Service) HandleSendEntries(ctx context.Context, requesterPubkey string, req SendEntriesRequest) (*Ack, error) {
	if err := s.ApplyEntries(ctx, req.TreeID, req.Entries); err != nil {
		return nil, err
	}
	if err := s.addSyncedTree(ctx, requesterPubkey, req.TreeID); err != nil {
		return nil, err
	}
	return &Ack{}, nil
}

func (s *Service) allEntries(ctx context.Context, db *database.Database) ([]entry.Entry, error) {
	ids, err := db.Backend().GetTree(ctx, db.Root())
	if err != nil {
		return nil, fmt.Errorf("syncsvc: get tree: %w", err)
	}
	out := make([]entry.Entry, 0, len(ids))
	for _, id := range ids {
		e, err := db.Backend().Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("syncsvc: fetch %s: %w", id, err)
		}
		out = append(out, *e)
	}
	return out, nil
}
