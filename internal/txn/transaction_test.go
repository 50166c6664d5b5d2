package txn

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
)

func rootEntry(t *testing.T, pub ed25519.PublicKey) (*entry.Entry, entry.ID) {
	t.Helper()
	settings := crdt.NewDoc()
	snap := auth.NewAuthSnapshot()
	snap.Keys["device1"] = auth.AuthKey{Pubkey: entry.EncodePubkey(pub), Permissions: auth.AdminPermission(0), Status: auth.Active}
	ApplyAuthSnapshot(settings, snap)
	data, err := settings.MarshalCRDT()
	if err != nil {
		t.Fatalf("marshal settings: %v", err)
	}
	root := &entry.Entry{
		Subtrees: map[string]entry.SubtreeData{
			"_settings": {Data: string(data)},
		},
	}
	id, err := root.ID()
	if err != nil {
		t.Fatalf("root id: %v", err)
	}
	return root, id
}

// TestLinearChainCommit mirrors scenario S1: a sequence of transactions
// against a single sub-store, each building on the previous tip.
func TestLinearChainCommit(t *testing.T) {
	ctx := context.Background()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	m := memstore.New("")
	mat := NewMaterializer(m)
	keys := func(name string) (ed25519.PrivateKey, error) { return priv, nil }

	root, rootID := rootEntry(t, pub)
	if err := m.Put(ctx, backend.Verified, root); err != nil {
		t.Fatalf("put root: %v", err)
	}

	validator := auth.NewValidator(nil)

	tx1, err := Begin(ctx, m, mat, validator, keys, rootID, nil)
	if err != nil {
		t.Fatalf("begin tx1: %v", err)
	}
	tx1.SetAuthKey("device1")
	h, err := tx1.Store("data")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	h.Set("title", crdt.NewText("hello"))
	id1, err := tx1.Commit()
	if err != nil {
		t.Fatalf("commit tx1: %v", err)
	}

	tx2, err := Begin(ctx, m, mat, validator, keys, rootID, nil)
	if err != nil {
		t.Fatalf("begin tx2: %v", err)
	}
	tx2.SetAuthKey("device1")
	h2, err := tx2.Store("data")
	if err != nil {
		t.Fatalf("open store tx2: %v", err)
	}
	title, ok := h2.Get("title")
	if !ok || title.TextOr("") != "hello" {
		t.Fatalf("expected tx2 to see tx1's write, got %v ok=%v", title, ok)
	}
	h2.Set("status", crdt.NewText("open"))
	id2, err := tx2.Commit()
	if err != nil {
		t.Fatalf("commit tx2: %v", err)
	}

	tips, err := m.GetTips(ctx, rootID)
	if err != nil {
		t.Fatalf("get tips: %v", err)
	}
	if len(tips) != 1 || tips[0] != id2 {
		t.Fatalf("expected single tip %s, got %v", id2, tips)
	}

	final, err := mat.MaterializeStore(ctx, rootID, "data", []entry.ID{id2})
	if err != nil {
		t.Fatalf("materialize final: %v", err)
	}
	title, _ = final.Get("title")
	status, _ := final.Get("status")
	if title.TextOr("") != "hello" || status.TextOr("") != "open" {
		t.Fatalf("unexpected final state: title=%v status=%v", title, status)
	}
	_ = id1
}

func TestCommitFailsWithoutSigningKeyForNonRoot(t *testing.T) {
	ctx := context.Background()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	m := memstore.New("")
	mat := NewMaterializer(m)
	root, rootID := rootEntry(t, pub)
	if err := m.Put(ctx, backend.Verified, root); err != nil {
		t.Fatalf("put root: %v", err)
	}

	tx, err := Begin(ctx, m, mat, nil, nil, rootID, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	h, err := tx.Store("data")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	h.Set("x", crdt.NewInt(1))
	if _, err := tx.Commit(); err == nil {
		t.Fatalf("expected commit to fail without a signing key")
	}
}

func TestCommitRejectsWriteOnlyKeyForSettings(t *testing.T) {
	ctx := context.Background()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	m := memstore.New("")
	mat := NewMaterializer(m)
	keys := func(name string) (ed25519.PrivateKey, error) { return priv, nil }

	settings := crdt.NewDoc()
	snap := auth.NewAuthSnapshot()
	snap.Keys["device1"] = auth.AuthKey{Pubkey: entry.EncodePubkey(pub), Permissions: auth.WritePermission(5), Status: auth.Active}
	ApplyAuthSnapshot(settings, snap)
	data, err := settings.MarshalCRDT()
	if err != nil {
		t.Fatalf("marshal settings: %v", err)
	}
	root := &entry.Entry{Subtrees: map[string]entry.SubtreeData{"_settings": {Data: string(data)}}}
	rootID, _ := root.ID()
	if err := m.Put(ctx, backend.Verified, root); err != nil {
		t.Fatalf("put root: %v", err)
	}

	validator := auth.NewValidator(nil)
	tx, err := Begin(ctx, m, mat, validator, keys, rootID, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	tx.SetAuthKey("device1")
	h, err := tx.Store("_settings")
	if err != nil {
		t.Fatalf("open settings store: %v", err)
	}
	h.Set("junk", crdt.NewInt(1))
	if _, err := tx.Commit(); err == nil {
		t.Fatalf("expected write-only key to be rejected for a _settings write")
	}
}
