package memstore

import (
	"context"
	"testing"

	"github.com/latticedb/lattice/internal/backend"
	"github.com/latticedb/lattice/internal/entry"
)

func mustID(t *testing.T, e *entry.Entry) entry.ID {
	t.Helper()
	id, err := e.ID()
	if err != nil {
		t.Fatalf("id: %v", err)
	}
	return id
}

func TestPutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := New("")
	root := &entry.Entry{}
	rootID := mustID(t, root)

	if err := m.Put(ctx, backend.Verified, root); err != nil {
		t.Fatalf("put root: %v", err)
	}
	got, err := m.Get(ctx, rootID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if gotID := mustID(t, got); gotID != rootID {
		t.Fatalf("round-trip id mismatch: %s != %s", gotID, rootID)
	}
}

func TestTipMaintenance(t *testing.T) {
	ctx := context.Background()
	m := New("")
	root := &entry.Entry{}
	rootID := mustID(t, root)
	if err := m.Put(ctx, backend.Verified, root); err != nil {
		t.Fatalf("put root: %v", err)
	}

	child := &entry.Entry{Tree: rootID, Parents: []entry.ID{rootID}}
	childID := mustID(t, child)
	if err := m.Put(ctx, backend.Verified, child); err != nil {
		t.Fatalf("put child: %v", err)
	}

	tips, err := m.GetTips(ctx, rootID)
	if err != nil {
		t.Fatalf("get tips: %v", err)
	}
	if len(tips) != 1 || tips[0] != childID {
		t.Fatalf("expected tips=[%s], got %v", childID, tips)
	}
}

func TestFindMergeBaseDiamond(t *testing.T) {
	ctx := context.Background()
	m := New("")

	root := &entry.Entry{}
	rootID := mustID(t, root)
	m.Put(ctx, backend.Verified, root)

	a := &entry.Entry{
		Tree: rootID, Parents: []entry.ID{rootID},
		Subtrees: map[string]entry.SubtreeData{"data": {Parents: nil, Data: `{"x":1}`}},
	}
	aID := mustID(t, a)
	m.Put(ctx, backend.Verified, a)

	b := &entry.Entry{
		Tree: rootID, Parents: []entry.ID{aID},
		Subtrees: map[string]entry.SubtreeData{"data": {Parents: []entry.ID{aID}, Data: `{"x":2}`}},
	}
	bID := mustID(t, b)
	m.Put(ctx, backend.Verified, b)

	c := &entry.Entry{
		Tree: rootID, Parents: []entry.ID{aID},
		Subtrees: map[string]entry.SubtreeData{"data": {Parents: []entry.ID{aID}, Data: `{"y":3}`}},
	}
	cID := mustID(t, c)
	m.Put(ctx, backend.Verified, c)

	base, err := m.FindMergeBase(ctx, rootID, "data", []entry.ID{bID, cID})
	if err != nil {
		t.Fatalf("find merge base: %v", err)
	}
	if base != aID {
		t.Fatalf("expected merge base %s, got %s", aID, base)
	}
}

// TestFindMergeBaseCrissCross builds R->A, R->B, {A,B}->C, {A,B}->D: A
// and B are both common ancestors of {C,D} but neither dominates (each
// can be bypassed via the other back to R), so the merge base must be
// R, not the higher but non-dominating A or B.
func TestFindMergeBaseCrissCross(t *testing.T) {
	ctx := context.Background()
	m := New("")

	root := &entry.Entry{}
	rootID := mustID(t, root)
	m.Put(ctx, backend.Verified, root)

	// Distinct sub-store data keeps A/B and C/D from sharing one
	// content-addressed ID.
	a := &entry.Entry{Tree: rootID, Parents: []entry.ID{rootID}, Subtrees: map[string]entry.SubtreeData{"tag": {Data: "a"}}}
	aID := mustID(t, a)
	m.Put(ctx, backend.Verified, a)

	b := &entry.Entry{Tree: rootID, Parents: []entry.ID{rootID}, Subtrees: map[string]entry.SubtreeData{"tag": {Data: "b"}}}
	bID := mustID(t, b)
	m.Put(ctx, backend.Verified, b)

	c := &entry.Entry{Tree: rootID, Parents: []entry.ID{aID, bID}, Subtrees: map[string]entry.SubtreeData{"tag": {Data: "c"}}}
	cID := mustID(t, c)
	m.Put(ctx, backend.Verified, c)

	d := &entry.Entry{Tree: rootID, Parents: []entry.ID{aID, bID}, Subtrees: map[string]entry.SubtreeData{"tag": {Data: "d"}}}
	dID := mustID(t, d)
	m.Put(ctx, backend.Verified, d)

	base, err := m.FindMergeBase(ctx, rootID, "", []entry.ID{cID, dID})
	if err != nil {
		t.Fatalf("find merge base: %v", err)
	}
	if base != rootID {
		t.Fatalf("expected dominator merge base %s, got %s", rootID, base)
	}
}

func TestFindMergeBaseSingleton(t *testing.T) {
	ctx := context.Background()
	m := New("")
	root := &entry.Entry{}
	rootID := mustID(t, root)
	m.Put(ctx, backend.Verified, root)

	base, err := m.FindMergeBase(ctx, rootID, "data", []entry.ID{rootID})
	if err != nil {
		t.Fatalf("find merge base: %v", err)
	}
	if base != rootID {
		t.Fatalf("singleton input should return itself, got %s", base)
	}
}

func TestFindMergeBaseEmptyFails(t *testing.T) {
	ctx := context.Background()
	m := New("")
	_, err := m.FindMergeBase(ctx, "tree", "data", nil)
	if !backend.IsNotFound(err) && err == nil {
		t.Fatalf("expected an error for empty input")
	}
}

func TestGetVerificationStatus(t *testing.T) {
	ctx := context.Background()
	m := New("")
	root := &entry.Entry{}
	rootID := mustID(t, root)
	m.Put(ctx, backend.Verified, root)

	status, err := m.GetVerificationStatus(ctx, rootID)
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	if status != backend.Verified {
		t.Fatalf("expected Verified, got %v", status)
	}

	if err := m.UpdateVerificationStatus(ctx, rootID, backend.Failed); err != nil {
		t.Fatalf("update status: %v", err)
	}
	status, _ = m.GetVerificationStatus(ctx, rootID)
	if status != backend.Failed {
		t.Fatalf("expected Failed after update, got %v", status)
	}
}

func TestPutIdempotent(t *testing.T) {
	ctx := context.Background()
	m := New("")
	root := &entry.Entry{}
	if err := m.Put(ctx, backend.Verified, root); err != nil {
		t.Fatalf("first put: %v", err)
	}
	if err := m.Put(ctx, backend.Failed, root); err != nil {
		t.Fatalf("second put: %v", err)
	}
	rootID := mustID(t, root)
	status, _ := m.GetVerificationStatus(ctx, rootID)
	if status != backend.Failed {
		t.Fatalf("re-put should only update status, got %v", status)
	}
}

func TestCRDTCache(t *testing.T) {
	ctx := context.Background()
	m := New("")
	if err := m.CacheCRDTState(ctx, "sha256:x", "data", []byte(`{"a":1}`)); err != nil {
		t.Fatalf("cache: %v", err)
	}
	state, ok, err := m.GetCachedCRDTState(ctx, "sha256:x", "data")
	if err != nil || !ok {
		t.Fatalf("expected cached state, ok=%v err=%v", ok, err)
	}
	if string(state) != `{"a":1}` {
		t.Fatalf("unexpected cached state: %s", state)
	}
}
