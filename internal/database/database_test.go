package database

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/latticedb/lattice/internal/auth"
	"github.com/latticedb/lattice/internal/backend"
	"github.com/latticedb/lattice/internal/backend/memstore"
	"github.com/latticedb/lattice/internal/crdt"
	"github.com/latticedb/lattice/internal/entry"
	"github.com/latticedb/lattice/internal/txn"
)

// setupTestDatabase mirrors the teacher's setupTestMemory convention: a
// single constructor that returns a ready-to-use Database plus the
// device keypair it was rooted with.
func setupTestDatabase(t *testing.T) (*Database, ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	ctx := context.Background()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	settings := crdt.NewDoc()
	snap := auth.NewAuthSnapshot()
	snap.Keys["device1"] = auth.AuthKey{
		Pubkey:      entry.EncodePubkey(pub),
		Permissions: auth.AdminPermission(0),
		Status:      auth.Active,
	}
	txn.ApplyAuthSnapshot(settings, snap)
	data, err := settings.MarshalCRDT()
	if err != nil {
		t.Fatalf("marshal settings: %v", err)
	}

	root := &entry.Entry{
		Subtrees: map[string]entry.SubtreeData{
			SettingsStoreName: {Data: string(data)},
		},
	}
	rootID, err := root.ID()
	if err != nil {
		t.Fatalf("root id: %v", err)
	}

	m := memstore.New("")
	if err := m.Put(ctx, backend.Verified, root); err != nil {
		t.Fatalf("put root: %v", err)
	}

	keys := func(name string) (ed25519.PrivateKey, error) { return priv, nil }
	db := Open(rootID, m, keys, "device1")
	return db, pub, priv
}

func TestOpenTipsAndHeightOf(t *testing.T) {
	ctx := context.Background()
	db, _, _ := setupTestDatabase(t)

	tips, err := db.Tips(ctx)
	if err != nil {
		t.Fatalf("tips: %v", err)
	}
	if len(tips) != 1 || tips[0] != db.Root() {
		t.Fatalf("expected single root tip, got %v", tips)
	}

	h, err := db.HeightOf(ctx, db.Root())
	if err != nil {
		t.Fatalf("height of root: %v", err)
	}
	if h != 1 {
		t.Fatalf("expected root height 1, got %d", h)
	}
}

func TestTransactionCommitAdvancesTips(t *testing.T) {
	ctx := context.Background()
	db, _, _ := setupTestDatabase(t)

	tx, err := db.NewTransaction(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	store, err := tx.Store("data")
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	store.Set("k0", crdt.NewText("v0"))

	id, err := tx.Commit()
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	tips, err := db.Tips(ctx)
	if err != nil {
		t.Fatalf("tips: %v", err)
	}
	if len(tips) != 1 || tips[0] != id {
		t.Fatalf("expected new tip %s, got %v", id, tips)
	}

	doc, err := db.MaterializeStore(ctx, "data")
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	v, ok := doc.Get("k0")
	if !ok || v.TextOr("") != "v0" {
		t.Fatalf("expected k0=v0, got %v ok=%v", v, ok)
	}
}

// TestLinearChainScenario mirrors spec.md scenario S1: three sequential
// commits against `data`, materializing to the union of all three writes.
func TestLinearChainScenario(t *testing.T) {
	ctx := context.Background()
	db, _, _ := setupTestDatabase(t)

	for i, kv := range [][2]string{{"k0", "v0"}, {"k1", "v1"}, {"k2", "v2"}} {
		tx, err := db.NewTransaction(ctx)
		if err != nil {
			t.Fatalf("begin %d: %v", i, err)
		}
		store, err := tx.Store("data")
		if err != nil {
			t.Fatalf("store %d: %v", i, err)
		}
		store.Set(kv[0], crdt.NewText(kv[1]))
		if _, err := tx.Commit(); err != nil {
			t.Fatalf("commit %d: %v", i, err)
		}
	}

	doc, err := db.MaterializeStore(ctx, "data")
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	for _, kv := range [][2]string{{"k0", "v0"}, {"k1", "v1"}, {"k2", "v2"}} {
		v, ok := doc.Get(kv[0])
		if !ok || v.TextOr("") != kv[1] {
			t.Fatalf("expected %s=%s, got %v ok=%v", kv[0], kv[1], v, ok)
		}
	}
}

func TestAuthSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	db, pub, _ := setupTestDatabase(t)

	snap, err := db.AuthSnapshot(ctx)
	if err != nil {
		t.Fatalf("auth snapshot: %v", err)
	}
	ak, ok := snap.Keys["device1"]
	if !ok {
		t.Fatalf("expected device1 key in snapshot")
	}
	if ak.Pubkey != entry.EncodePubkey(pub) {
		t.Fatalf("pubkey mismatch")
	}
	if !ak.Permissions.CanAdmin() {
		t.Fatalf("expected device1 to hold Admin")
	}
}

func TestGetEntryRejectsOtherTree(t *testing.T) {
	ctx := context.Background()
	db, _, _ := setupTestDatabase(t)
	m := db.Backend()

	other := &entry.Entry{}
	if err := m.Put(ctx, backend.Verified, other); err != nil {
		t.Fatalf("put other root: %v", err)
	}
	otherID, _ := other.ID()

	if _, err := db.GetEntry(ctx, otherID); err == nil {
		t.Fatalf("expected EntryNotInTree error")
	}
}
