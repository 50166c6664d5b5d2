package instance

import (
	"context"
	"testing"

	"github.com/latticedb/lattice/internal/backend/memstore"
	"github.com/latticedb/lattice/internal/crdt"
	"github.com/latticedb/lattice/internal/entry"
)

func setupTestInstance(t *testing.T) *Instance {
	t.Helper()
	inst, err := Create(context.Background(), memstore.New(""))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return inst
}

func TestCreateFailsWhenAlreadyInitialized(t *testing.T) {
	ctx := context.Background()
	b := memstore.New("")
	if _, err := Create(ctx, b); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := Create(ctx, b); err == nil {
		t.Fatalf("expected second create to fail")
	}
}

func TestOpenLoadsExistingInstance(t *testing.T) {
	ctx := context.Background()
	b := memstore.New("")
	first, err := Create(ctx, b)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	second, err := Open(ctx, b)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if first.DevicePubkey() != second.DevicePubkey() {
		t.Fatalf("expected same device key across open, got %s != %s", first.DevicePubkey(), second.DevicePubkey())
	}
	if first.Users().Root() != second.Users().Root() {
		t.Fatalf("expected same users root")
	}
}

func TestOpenInitializesWhenAbsent(t *testing.T) {
	ctx := context.Background()
	b := memstore.New("")
	inst, err := Open(ctx, b)
	if err != nil {
		t.Fatalf("open (fresh): %v", err)
	}
	if inst.DevicePubkey() == "" {
		t.Fatalf("expected a device key to be generated")
	}
}

func TestCreateDatabaseAndTransact(t *testing.T) {
	ctx := context.Background()
	inst := setupTestInstance(t)

	db, err := inst.CreateDatabase(ctx)
	if err != nil {
		t.Fatalf("create database: %v", err)
	}

	tx, err := db.NewTransaction(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	store, err := tx.Store("data")
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	store.Set("hello", crdt.NewText("world"))
	if _, err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	doc, err := db.MaterializeStore(ctx, "data")
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	v, ok := doc.Get("hello")
	if !ok || v.TextOr("") != "world" {
		t.Fatalf("expected hello=world, got %v ok=%v", v, ok)
	}
}

func TestCommitHookFiresOnCommit(t *testing.T) {
	ctx := context.Background()
	inst := setupTestInstance(t)

	var fired int
	inst.SetCommitHook(func(ctx context.Context, root, id entry.ID) {
		fired++
	})

	db, err := inst.CreateDatabase(ctx)
	if err != nil {
		t.Fatalf("create database: %v", err)
	}
	tx, err := db.NewTransaction(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	store, err := tx.Store("data")
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	store.Set("k", crdt.NewText("v"))
	if _, err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if fired != 1 {
		t.Fatalf("expected commit hook to fire once, fired %d times", fired)
	}
}
