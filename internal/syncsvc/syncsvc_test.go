package syncsvc

import (
	"context"
	"fmt"
	"testing"

	"github.com/latticedb/lattice/internal/auth"
	"github.com/latticedb/lattice/internal/backend/memstore"
	"github.com/latticedb/lattice/internal/crdt"
	"github.com/latticedb/lattice/internal/database"
	"github.com/latticedb/lattice/internal/entry"
	"github.com/latticedb/lattice/internal/instance"
	"github.com/latticedb/lattice/internal/txn"
)

type testNode struct {
	inst *instance.Instance
	svc  *Service
}

func newTestNode(t *testing.T, deviceID, displayName string) *testNode {
	t.Helper()
	ctx := context.Background()
	inst, err := instance.Create(ctx, memstore.New(""))
	if err != nil {
		t.Fatalf("create instance: %v", err)
	}
	syncDB, err := inst.CreateDatabase(ctx)
	if err != nil {
		t.Fatalf("create sync database: %v", err)
	}
	resolver := func(ctx context.Context, tree entry.ID) (*database.Database, error) {
		if _, err := inst.Backend().Get(ctx, tree); err != nil {
			return nil, fmt.Errorf("unknown tree %s: %w", tree, err)
		}
		return inst.OpenDatabase(tree), nil
	}
	svc := New(syncDB, resolver, "device", deviceID, inst.DevicePubkey(), displayName, nil)
	return &testNode{inst: inst, svc: svc}
}

func TestHandshakeRegistersPeer(t *testing.T) {
	ctx := context.Background()
	a := newTestNode(t, "device-a", "Alice")
	b := newTestNode(t, "device-b", "Bob")

	resp, err := a.svc.Handshake(ctx, HandshakeRequest{
		DeviceID:        "device-b",
		PublicKey:       b.inst.DevicePubkey(),
		DisplayName:     "Bob",
		ProtocolVersion: ProtocolVersion,
		ListenAddresses: []Address{{Scheme: "tcp", Value: "10.0.0.2:9000"}},
	}, nil)
	if err != nil {
		t.Fatalf("handshake: %v", err)
	}
	if resp.PublicKey != a.inst.DevicePubkey() {
		t.Fatalf("expected responder pubkey %s, got %s", a.inst.DevicePubkey(), resp.PublicKey)
	}

	peer, ok, err := a.svc.GetPeer(ctx, b.inst.DevicePubkey())
	if err != nil {
		t.Fatalf("get peer: %v", err)
	}
	if !ok {
		t.Fatalf("expected peer to be registered")
	}
	if peer.DisplayName != "Bob" || len(peer.Addresses) != 1 {
		t.Fatalf("unexpected peer record: %+v", peer)
	}

	// Repeat handshake should not duplicate addresses.
	if _, err := a.svc.Handshake(ctx, HandshakeRequest{
		DeviceID:        "device-b",
		PublicKey:       b.inst.DevicePubkey(),
		ListenAddresses: []Address{{Scheme: "tcp", Value: "10.0.0.2:9000"}},
	}, nil); err != nil {
		t.Fatalf("repeat handshake: %v", err)
	}
	peer, _, _ = a.svc.GetPeer(ctx, b.inst.DevicePubkey())
	if len(peer.Addresses) != 1 {
		t.Fatalf("expected address merge to dedupe, got %v", peer.Addresses)
	}
}

func TestBootstrapAutoApprove(t *testing.T) {
	ctx := context.Background()
	host := newTestNode(t, "device-host", "Host")
	guest := newTestNode(t, "device-guest", "Guest")

	db, err := host.inst.CreateDatabase(ctx)
	if err != nil {
		t.Fatalf("create database: %v", err)
	}
	setBootstrapAutoApprove(t, ctx, db, true)

	tx, err := db.NewTransaction(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	store, err := tx.Store("data")
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	store.Set("greeting", crdt.NewText("hello"))
	if _, err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	resp, err := host.svc.HandleSyncTreeRequest(ctx, guest.inst.DevicePubkey(), SyncTreeRequest{
		TreeID:            db.Root(),
		RequestingKeyName: "guest",
	})
	if err != nil {
		t.Fatalf("sync tree request: %v", err)
	}
	if resp.Bootstrap == nil {
		t.Fatalf("expected a Bootstrap response, got %+v", resp)
	}
	if !resp.Bootstrap.KeyApproved {
		t.Fatalf("expected auto-approve to grant access")
	}
	if len(resp.Bootstrap.Entries) == 0 {
		t.Fatalf("expected at least the root entry")
	}

	if err := guest.svc.ApplyEntries(ctx, db.Root(), resp.Bootstrap.Entries); err != nil {
		t.Fatalf("guest apply entries: %v", err)
	}
	guestDB := guest.inst.OpenDatabase(db.Root())
	doc, err := guestDB.MaterializeStore(ctx, "data")
	if err != nil {
		t.Fatalf("guest materialize: %v", err)
	}
	v, ok := doc.Get("greeting")
	if !ok || v.TextOr("") != "hello" {
		t.Fatalf("expected replicated greeting=hello, got %v ok=%v", v, ok)
	}

	peers, err := host.svc.PeersForTree(ctx, db.Root())
	if err != nil {
		t.Fatalf("peers for tree: %v", err)
	}
	if len(peers) != 1 || peers[0].Pubkey != guest.inst.DevicePubkey() {
		t.Fatalf("expected guest tracked as synced peer, got %+v", peers)
	}
}

func TestBootstrapManualApproval(t *testing.T) {
	ctx := context.Background()
	host := newTestNode(t, "device-host", "Host")
	guest := newTestNode(t, "device-guest", "Guest")

	db, err := host.inst.CreateDatabase(ctx)
	if err != nil {
		t.Fatalf("create database: %v", err)
	}
	// BootstrapAutoApprove defaults to false.

	resp, err := host.svc.HandleSyncTreeRequest(ctx, guest.inst.DevicePubkey(), SyncTreeRequest{
		TreeID:            db.Root(),
		RequestingKeyName: "guest",
	})
	if err != nil {
		t.Fatalf("sync tree request: %v", err)
	}
	if resp.BootstrapPending == nil {
		t.Fatalf("expected BootstrapPending, got %+v", resp)
	}
	requestID := resp.BootstrapPending.RequestID

	// A second Admin-decision attempt before approval must still read
	// back as pending, and an out-of-band approve/reject race is guarded
	// by InvalidRequestState once decided.
	pending, ok, err := host.svc.GetPending(ctx, requestID)
	if err != nil || !ok {
		t.Fatalf("expected pending request to exist, err=%v ok=%v", err, ok)
	}
	if pending.Status != PendingOpen {
		t.Fatalf("expected Open status, got %v", pending.Status)
	}

	if err := host.svc.Approve(ctx, requestID, "device"); err != nil {
		t.Fatalf("approve: %v", err)
	}

	if err := host.svc.Approve(ctx, requestID, "device"); err == nil {
		t.Fatalf("expected re-approval to fail")
	} else if !errorIs(err, ErrInvalidRequestState) {
		t.Fatalf("expected ErrInvalidRequestState, got %v", err)
	}

	// Guest retries the bootstrap now that it's approved; should succeed
	// without creating another pending request.
	resp2, err := host.svc.HandleSyncTreeRequest(ctx, guest.inst.DevicePubkey(), SyncTreeRequest{
		TreeID:            db.Root(),
		RequestingKeyName: "guest",
	})
	if err != nil {
		t.Fatalf("second sync tree request: %v", err)
	}
	if resp2.Bootstrap == nil || !resp2.Bootstrap.KeyApproved {
		t.Fatalf("expected approved bootstrap on retry, got %+v", resp2)
	}

	stillPending, err := host.svc.ListPending(ctx)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(stillPending) != 0 {
		t.Fatalf("expected no open pending requests left, got %v", stillPending)
	}
}

func TestIncrementalSync(t *testing.T) {
	ctx := context.Background()
	host := newTestNode(t, "device-host", "Host")
	guest := newTestNode(t, "device-guest", "Guest")

	db, err := host.inst.CreateDatabase(ctx)
	if err != nil {
		t.Fatalf("create database: %v", err)
	}
	setBootstrapAutoApprove(t, ctx, db, true)

	// Guest bootstraps first.
	resp, err := host.svc.HandleSyncTreeRequest(ctx, guest.inst.DevicePubkey(), SyncTreeRequest{TreeID: db.Root()})
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if err := guest.svc.ApplyEntries(ctx, db.Root(), resp.Bootstrap.Entries); err != nil {
		t.Fatalf("guest apply entries: %v", err)
	}
	guestDB := guest.inst.OpenDatabase(db.Root())
	guestTips, err := guestDB.Tips(ctx)
	if err != nil {
		t.Fatalf("guest tips: %v", err)
	}

	// Host makes further progress after the guest's bootstrap snapshot.
	tx, err := db.NewTransaction(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	store, err := tx.Store("data")
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	store.Set("k2", crdt.NewText("v2"))
	if _, err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	incResp, err := host.svc.HandleSyncTreeRequest(ctx, guest.inst.DevicePubkey(), SyncTreeRequest{
		TreeID:  db.Root(),
		OurTips: guestTips,
	})
	if err != nil {
		t.Fatalf("incremental request: %v", err)
	}
	if incResp.Incremental == nil {
		t.Fatalf("expected Incremental response, got %+v", incResp)
	}
	if len(incResp.Incremental.Entries) != 1 {
		t.Fatalf("expected exactly the one new commit, got %d entries", len(incResp.Incremental.Entries))
	}

	if err := guest.svc.ApplyEntries(ctx, db.Root(), incResp.Incremental.Entries); err != nil {
		t.Fatalf("guest apply incremental entries: %v", err)
	}
	doc, err := guestDB.MaterializeStore(ctx, "data")
	if err != nil {
		t.Fatalf("guest materialize: %v", err)
	}
	if v, ok := doc.Get("k2"); !ok || v.TextOr("") != "v2" {
		t.Fatalf("expected replicated k2=v2, got %v ok=%v", v, ok)
	}
}

func TestApproveUnknownRequestFails(t *testing.T) {
	ctx := context.Background()
	host := newTestNode(t, "device-host", "Host")
	if err := host.svc.Approve(ctx, "does-not-exist", "device"); err == nil {
		t.Fatalf("expected approve of unknown request to fail")
	} else if !errorIs(err, ErrInvalidRequestState) {
		t.Fatalf("expected ErrInvalidRequestState, got %v", err)
	}
}

func errorIs(err, target error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			if t, ok := target.(*Error); ok && e.Kind == t.Kind {
				return true
			}
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return false
}

func setBootstrapAutoApprove(t *testing.T, ctx context.Context, db *database.Database, enabled bool) {
	t.Helper()
	snap, err := db.AuthSnapshot(ctx)
	if err != nil {
		t.Fatalf("auth snapshot: %v", err)
	}
	snap.Policy.BootstrapAutoApprove = enabled
	applySnapshot(t, ctx, db, snap)
}

func applySnapshot(t *testing.T, ctx context.Context, db *database.Database, snap *auth.AuthSnapshot) {
	t.Helper()
	rendered := crdt.NewDoc()
	txn.ApplyAuthSnapshot(rendered, snap)
	tx, err := db.NewTransaction(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	tx.SetAuthKey("device")
	store, err := tx.Store(database.SettingsStoreName)
	if err != nil {
		t.Fatalf("open settings: %v", err)
	}
	for _, k := range rendered.RawKeys() {
		v, _ := rendered.GetRaw(k)
		store.Set(k, v)
	}
	if _, err := tx.Commit(); err != nil {
		t.Fatalf("commit settings: %v", err)
	}
}
