package syncsvc

import (
	"context"
	"fmt"

	"github.com/latticedb/lattice/internal/crdt"
	"github.com/latticedb/lattice/internal/database"
	"github.com/latticedb/lattice/internal/entry"
)

const peersStoreName = "peers"

const (
	fieldDisplayName = "display_name"
	fieldStatus      = "status"
	fieldAddresses   = "addresses"
	fieldSyncedTrees = "synced_trees"
	fieldScheme      = "scheme"
	fieldValue       = "value"
)

func peerStatusName(s PeerStatus) string {
	if s == PeerBlocked {
		return "blocked"
	}
	return "active"
}

func parsePeerStatus(s string) PeerStatus {
	if s == "blocked" {
		return PeerBlocked
	}
	return PeerActive
}

func addressToValue(a Address) crdt.Value {
	d := crdt.NewDoc()
	d.Set(fieldScheme, crdt.NewText(a.Scheme))
	d.Set(fieldValue, crdt.NewText(a.Value))
	return crdt.NewNode(d)
}

func addressFromValue(v crdt.Value) Address {
	d, ok := v.Node()
	if !ok {
		return Address{}
	}
	scheme, _ := d.Get(fieldScheme)
	value, _ := d.Get(fieldValue)
	return Address{Scheme: scheme.TextOr(""), Value: value.TextOr("")}
}

func peerToValue(p Peer) crdt.Value {
	d := crdt.NewDoc()
	if p.DisplayName != "" {
		d.Set(fieldDisplayName, crdt.NewText(p.DisplayName))
	}
	d.Set(fieldStatus, crdt.NewText(peerStatusName(p.Status)))

	addrs := crdt.NewList()
	for _, a := range p.Addresses {
		addrs.Append(addressToValue(a))
	}
	d.Set(fieldAddresses, crdt.NewListValue(addrs))

	trees := crdt.NewList()
	for _, t := range p.SyncedTrees {
		trees.Append(crdt.NewText(string(t)))
	}
	d.Set(fieldSyncedTrees, crdt.NewListValue(trees))
	return crdt.NewNode(d)
}

func peerFromValue(pubkey string, v crdt.Value) (Peer, error) {
	d, ok := v.Node()
	if !ok {
		return Peer{}, fmt.Errorf("syncsvc: peer record for %s is not a node", pubkey)
	}
	p := Peer{Pubkey: pubkey}
	if nv, ok := d.Get(fieldDisplayName); ok {
		p.DisplayName = nv.TextOr("")
	}
	if sv, ok := d.Get(fieldStatus); ok {
		p.Status = parsePeerStatus(sv.TextOr("active"))
	}
	if av, ok := d.Get(fieldAddresses); ok {
		if l, ok := av.List(); ok {
			for _, item := range l.Live() {
				p.Addresses = append(p.Addresses, addressFromValue(item.Value))
			}
		}
	}
	if tv, ok := d.Get(fieldSyncedTrees); ok {
		if l, ok := tv.List(); ok {
			for _, item := range l.Live() {
				s, _ := item.Value.Text()
				p.SyncedTrees = append(p.SyncedTrees, entry.ID(s))
			}
		}
	}
	return p, nil
}

// RegisterPeer upserts p into the peer registry's "peers" sub-store,
// keyed by pubkey. Registration is idempotent: calling it again with the
// same pubkey overwrites the stored record (callers that want to merge
// addresses/synced_trees should read-modify-write via GetPeer first,
// which Handshake and addSyncedTree both do).
func (s *Service) RegisterPeer(ctx context.Context, p Peer) error {
	tx, err := s.syncDB.NewTransaction(ctx)
	if err != nil {
		return fmt.Errorf("syncsvc: register peer: begin: %w", err)
	}
	store, err := tx.Store(peersStoreName)
	if err != nil {
		return fmt.Errorf("syncsvc: register peer: open store: %w", err)
	}
	store.Set(p.Pubkey, peerToValue(p))
	if _, err := tx.Commit(); err != nil {
		return fmt.Errorf("syncsvc: register peer: commit: %w", err)
	}
	return nil
}

// GetPeer looks up a peer by pubkey in the current registry state.
func (s *Service) GetPeer(ctx context.Context, pubkey string) (Peer, bool, error) {
	doc, err := s.syncDB.MaterializeStore(ctx, peersStoreName)
	if err != nil {
		return Peer{}, false, fmt.Errorf("syncsvc: get peer: materialize: %w", err)
	}
	v, ok := doc.Get(pubkey)
	if !ok {
		return Peer{}, false, nil
	}
	p, err := peerFromValue(pubkey, v)
	if err != nil {
		return Peer{}, false, err
	}
	return p, true, nil
}

// ListPeers returns every registered peer.
func (s *Service) ListPeers(ctx context.Context) ([]Peer, error) {
	doc, err := s.syncDB.MaterializeStore(ctx, peersStoreName)
	if err != nil {
		return nil, fmt.Errorf("syncsvc: list peers: materialize: %w", err)
	}
	var peers []Peer
	for _, k := range doc.Keys() {
		v, _ := doc.Get(k)
		p, err := peerFromValue(k, v)
		if err != nil {
			return nil, err
		}
		peers = append(peers, p)
	}
	return peers, nil
}

// PeersForTree returns every registered peer that shares tree, the
// broadcast list the auto-sync-on-commit hook consults.
func (s *Service) PeersForTree(ctx context.Context, tree entry.ID) ([]Peer, error) {
	all, err := s.ListPeers(ctx)
	if err != nil {
		return nil, err
	}
	var out []Peer
	for _, p := range all {
		for _, t := range p.SyncedTrees {
			if t == tree {
				out = append(out, p)
				break
			}
		}
	}
	return out, nil
}

// addSyncedTree records that pubkey now shares tree, read-modify-write so
// concurrent handshakes don't clobber each other's address lists (the
// CRDT merge at the Entry level resolves any concurrent write, but this
// keeps a single committer's view consistent without relying on that).
func (s *Service) addSyncedTree(ctx context.Context, pubkey string, tree entry.ID) error {
	p, ok, err := s.GetPeer(ctx, pubkey)
	if err != nil {
		return err
	}
	if !ok {
		p = Peer{Pubkey: pubkey, Status: PeerActive}
	}
	for _, t := range p.SyncedTrees {
		if t == tree {
			return nil // already recorded
		}
	}
	p.SyncedTrees = append(p.SyncedTrees, tree)
	return s.RegisterPeer(ctx, p)
}
