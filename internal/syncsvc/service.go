package syncsvc

import (
	"context"

	"github.com/latticedb/lattice/internal/database"
	"github.com/latticedb/lattice/internal/entry"
)

// TreeResolver opens the local Database for a tree root known to this
// Instance, or returns an error (wrapped as ErrUnknownTree by callers) if
// it isn't hosted/cached locally. Supplied by the caller (typically
// instance.Instance.OpenDatabase) so syncsvc never has to know how
// Databases are constructed.
type TreeResolver func(ctx context.Context, tree entry.ID) (*database.Database, error)

// Transport delivers a wire message to a peer. Concrete network
// implementations (HTTP, QUIC-like P2P) are external collaborators
// (spec.md §1); syncsvc only depends on this narrow interface, and a nil
// Transport simply disables outbound auto-sync delivery (handshake/
// tree-sync handling as an inbound responder still works without one).
type Transport interface {
	SendSyncTreeRequest(ctx context.Context, peer Peer, req SyncTreeRequest) (*SyncTreeResponse, error)

	// SendEntries pushes req's entries to peer, the SendEntries wire
	// variant auto-sync-on-commit uses instead of round-tripping a
	// SyncTreeRequest.
	SendEntries(ctx context.Context, peer Peer, req SendEntriesRequest) (*Ack, error)
}

// Service is the per-Instance sync subsystem: a peer registry backed by
// a dedicated `_sync` Database, a TreeResolver for answering requests
// about locally-hosted trees, an optional Transport for outbound
// delivery, and a Scheduler tracking per-peer liveness/backoff state.
//
// Grounded in _examples/original_source/crates/lib/src/sync/state.rs
// (peer bookkeeping + pending-request persistence) and in the
// background-service shape of
// _examples/untoldecay-BeadsLog/internal/daemon/registry.go.
type Service struct {
	syncDB   *database.Database
	resolver TreeResolver
	adminKey string // signing key name used to write auth grants during bootstrap

	deviceID        string
	devicePubkey    string
	displayName     string
	listenAddresses []Address

	transport Transport
	scheduler *Scheduler
}

// New builds a Service rooted at syncDB (the Instance's dedicated
// `_sync` database). adminKeyName is the signing key syncDB's commits
// (and bootstrap auth-grant transactions against resolved trees) use.
func New(syncDB *database.Database, resolver TreeResolver, adminKeyName, deviceID, devicePubkey, displayName string, listenAddresses []Address) *Service {
	return &Service{
		syncDB:          syncDB,
		resolver:        resolver,
		adminKey:        adminKeyName,
		deviceID:        deviceID,
		devicePubkey:    devicePubkey,
		displayName:     displayName,
		listenAddresses: listenAddresses,
		scheduler:       NewScheduler(),
	}
}

// SetTransport installs the outbound delivery transport. A Service
// without one can still answer inbound requests (useful for tests and
// for a responder-only node).
func (s *Service) SetTransport(t Transport) { s.transport = t }

func (s *Service) resolve(ctx context.Context, tree entry.ID) (*database.Database, error) {
	db, err := s.resolver(ctx, tree)
	if err != nil {
		return nil, newError(ErrUnknownTree.Kind, tree.String(), err)
	}
	return db, nil
}
