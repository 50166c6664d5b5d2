package lattice_test

import (
	"context"
	"path/filepath"
	"testing"

	lattice "github.com/latticedb/lattice"
	"github.com/latticedb/lattice/internal/crdt"
)

func TestCreateInstanceAndDatabaseRoundTrip(t *testing.T) {
	ctx := context.Background()
	b := lattice.OpenMemStore("")
	defer b.Close()

	inst, err := lattice.CreateInstance(ctx, b)
	if err != nil {
		t.Fatalf("create instance: %v", err)
	}

	db, err := inst.CreateDatabase(ctx)
	if err != nil {
		t.Fatalf("create database: %v", err)
	}

	tx, err := db.NewTransaction(ctx)
	if err != nil {
		t.Fatalf("new transaction: %v", err)
	}
	store, err := tx.Store("notes")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	store.Set("title", crdt.NewText("hello"))
	if _, err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	tips, err := db.Tips(ctx)
	if err != nil {
		t.Fatalf("tips: %v", err)
	}
	if len(tips) != 1 {
		t.Fatalf("expected 1 tip, got %d", len(tips))
	}
}

func TestOpenInstanceLoadsExisting(t *testing.T) {
	ctx := context.Background()
	b := lattice.OpenMemStore("")
	defer b.Close()

	inst1, err := lattice.CreateInstance(ctx, b)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	inst2, err := lattice.OpenInstance(ctx, b)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if inst1.DevicePubkey() != inst2.DevicePubkey() {
		t.Fatalf("expected same device pubkey across Create/Open, got %s vs %s", inst1.DevicePubkey(), inst2.DevicePubkey())
	}
}

func TestOpenSQLiteStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "lattice.db")

	b, err := lattice.OpenSQLiteStore(ctx, path)
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	defer b.Close()

	inst, err := lattice.CreateInstance(ctx, b)
	if err != nil {
		t.Fatalf("create instance: %v", err)
	}
	if inst.DevicePubkey() == "" {
		t.Fatalf("expected non-empty device pubkey")
	}
}
